package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"

	"github.com/tanklog/tanklog/internal/bus"
	"github.com/tanklog/tanklog/internal/config"
	"github.com/tanklog/tanklog/internal/connectivity"
	"github.com/tanklog/tanklog/internal/profile"
	"github.com/tanklog/tanklog/internal/remote"
	"github.com/tanklog/tanklog/internal/store"
	intsync "github.com/tanklog/tanklog/internal/sync"
	"github.com/tanklog/tanklog/internal/tui"
	"github.com/tanklog/tanklog/internal/tui/model"
)

func main() {
	profileFlag := flag.String("profile", "", "profile name (overrides config default)")
	flag.Parse()

	profileName := profile.Resolve(*profileFlag)
	if err := profile.ValidateName(profileName); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if err := run(profileName); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(profileName string) error {
	cfg, err := config.Load(profile.ConfigPath())
	if errors.Is(err, fs.ErrNotExist) {
		cfg = &config.Config{}
	} else if err != nil {
		return err
	}

	if err := profile.EnsureDir(profileName); err != nil {
		return err
	}
	db, err := store.Open(profile.DBPath(profileName))
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()
	if _, err := db.Migrate(); err != nil {
		return err
	}

	ownerID, err := db.EnsureOwner(cfg.Remote.OwnerID)
	if err != nil {
		return err
	}

	b := bus.New()
	client := remote.New(cfg.Remote.BaseURL, cfg.Remote.APIKey)
	watcher := connectivity.NewWatcher(client, b, nil, cfg.ProbeInterval())
	engine := intsync.NewEngine(db, client, watcher, b, nil)
	drainer := intsync.NewDrainer(engine, b, nil, ownerID, cfg.Remote.OwnerID, cfg.ReconcileInterval())

	ctx := context.Background()
	watcher.Start(ctx)
	defer watcher.Stop()
	drainer.Start(ctx)
	defer drainer.Stop()
	defer engine.Flush()

	vm := model.NewViewModel(engine, db, ownerID, cfg.Remote.OwnerID)
	app := tui.NewApp(vm, b, profileName, cfg.Remote.OwnerID)
	return app.Run()
}
