package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/tanklog/tanklog/internal/config"
	"github.com/tanklog/tanklog/internal/lock"
	"github.com/tanklog/tanklog/internal/profile"
	"github.com/tanklog/tanklog/internal/remote"
	"github.com/tanklog/tanklog/internal/stats"
	"github.com/tanklog/tanklog/internal/store"
	intsync "github.com/tanklog/tanklog/internal/sync"
)

func main() {
	profileFlag := flag.String("profile", "", "profile name (overrides config default)")
	jsonFlag := flag.Bool("json", false, "output in JSON format")
	flag.Parse()

	profileName := profile.Resolve(*profileFlag)
	if err := profile.ValidateName(profileName); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	env, err := openEnv(profileName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	defer env.close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch args[0] {
	case "add":
		cmdAdd(ctx, env, args[1:], *jsonFlag)
	case "list":
		cmdList(ctx, env, *jsonFlag)
	case "rm":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: tanklogctl rm <id>")
			os.Exit(1)
		}
		cmdRemove(ctx, env, args[1])
	case "stats":
		cmdStats(ctx, env, *jsonFlag)
	case "sync":
		cmdSync(ctx, env)
	case "login":
		cmdLogin(env, args[1:])
	case "logout":
		cmdLogout(env)
	case "status":
		cmdStatus(env, profileName, *jsonFlag)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: tanklogctl [--profile <name>] [--json] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  add --date <YYYY-MM-DD> --paid <n> --odo <n> --fuel <n> [--station <s>]")
	fmt.Fprintln(os.Stderr, "                   Record a fill-up")
	fmt.Fprintln(os.Stderr, "  list             List fill-ups")
	fmt.Fprintln(os.Stderr, "  rm <id>          Remove a fill-up")
	fmt.Fprintln(os.Stderr, "  stats            Show spending and consumption metrics")
	fmt.Fprintln(os.Stderr, "  sync             Reconcile with the remote store now")
	fmt.Fprintln(os.Stderr, "  login            Configure the remote account")
	fmt.Fprintln(os.Stderr, "  logout           Sign out and clear local data")
	fmt.Fprintln(os.Stderr, "  status           Show daemon, connectivity and queue state")
}

// env bundles everything a subcommand needs: the profile store, the remote
// client and a sync engine over them. Connectivity is probed once at startup;
// subcommands are short-lived.
type env struct {
	cfg     *config.Config
	db      *store.DB
	client  *remote.Client
	engine  *intsync.Engine
	ownerID int64
	net     *probedNet
}

// probedNet answers the engine's online checks from a single startup probe.
type probedNet struct {
	online bool
}

func (n *probedNet) Online() bool { return n.online }

func openEnv(profileName string) (*env, error) {
	cfg, err := config.Load(profile.ConfigPath())
	if errors.Is(err, fs.ErrNotExist) {
		cfg = &config.Config{}
	} else if err != nil {
		return nil, err
	}

	if err := profile.EnsureDir(profileName); err != nil {
		return nil, err
	}
	db, err := store.Open(profile.DBPath(profileName))
	if err != nil {
		return nil, err
	}
	if _, err := db.Migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}

	ownerID, err := db.EnsureOwner(cfg.Remote.OwnerID)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	client := remote.New(cfg.Remote.BaseURL, cfg.Remote.APIKey)
	net := &probedNet{}
	if cfg.Remote.BaseURL != "" {
		probeCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		net.online = client.Ping(probeCtx) == nil
		cancel()
	}

	return &env{
		cfg:     cfg,
		db:      db,
		client:  client,
		engine:  intsync.NewEngine(db, client, net, nil, nil),
		ownerID: ownerID,
		net:     net,
	}, nil
}

func (e *env) close() {
	// Let any detached remote write settle before the process exits.
	e.engine.Flush()
	_ = e.db.Close()
}

func cmdAdd(ctx context.Context, env *env, args []string, jsonOut bool) {
	fs := flag.NewFlagSet("add", flag.ExitOnError)
	date := fs.String("date", time.Now().Format("2006-01-02"), "fill date (YYYY-MM-DD)")
	paid := fs.Float64("paid", 0, "amount paid")
	odo := fs.Float64("odo", 0, "odometer reading")
	fuel := fs.Float64("fuel", 0, "fuel volume filled")
	station := fs.String("station", "", "station name")
	_ = fs.Parse(args)

	if *paid <= 0 || *odo <= 0 || *fuel <= 0 {
		fmt.Fprintln(os.Stderr, "error: --paid, --odo and --fuel are required and must be positive")
		os.Exit(1)
	}
	if _, err := time.Parse("2006-01-02", *date); err != nil {
		fmt.Fprintf(os.Stderr, "error: bad --date %q: want YYYY-MM-DD\n", *date)
		os.Exit(1)
	}

	rec, err := env.engine.Create(ctx, store.RecordFields{
		Date: *date, AmountPaid: *paid, Odometer: *odo, FuelFilled: *fuel, Station: *station,
	}, env.ownerID, env.cfg.Remote.OwnerID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	env.engine.Flush()

	if jsonOut {
		outputJSON(rec)
		return
	}
	fmt.Printf("Recorded fill-up #%d: %s, %.2f paid, %.1f at odometer %.0f\n",
		rec.ID, rec.Date, rec.AmountPaid, rec.FuelFilled, rec.Odometer)
}

func cmdList(ctx context.Context, env *env, jsonOut bool) {
	records, err := env.engine.List(ctx, env.ownerID, env.cfg.Remote.OwnerID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if jsonOut {
		outputJSON(records)
		return
	}
	if len(records) == 0 {
		fmt.Println("No fill-ups recorded.")
		return
	}
	fmt.Printf("%-6s %-12s %10s %10s %8s %-6s %s\n", "ID", "DATE", "PAID", "ODOMETER", "FUEL", "SYNC", "STATION")
	for _, r := range records {
		synced := "-"
		if r.RemoteID != "" {
			synced = "yes"
		}
		fmt.Printf("%-6d %-12s %10.2f %10.0f %8.1f %-6s %s\n",
			r.ID, r.Date, r.AmountPaid, r.Odometer, r.FuelFilled, synced, r.Station)
	}
}

func cmdRemove(ctx context.Context, env *env, idArg string) {
	id, err := strconv.ParseInt(idArg, 10, 64)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: bad id %q\n", idArg)
		os.Exit(1)
	}
	rec, err := env.db.GetByID(id)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if rec == nil || rec.OwnerID != env.ownerID {
		fmt.Fprintf(os.Stderr, "error: no fill-up with id %d\n", id)
		os.Exit(1)
	}
	if err := env.engine.Delete(ctx, env.ownerID, rec.ID, rec.RemoteID, env.cfg.Remote.OwnerID); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	env.engine.Flush()
	fmt.Printf("Removed fill-up #%d\n", id)
}

func cmdStats(ctx context.Context, env *env, jsonOut bool) {
	records, err := env.engine.List(ctx, env.ownerID, env.cfg.Remote.OwnerID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	summary := stats.Summarize(records)
	months := stats.ByMonth(records)

	if jsonOut {
		outputJSON(struct {
			Summary stats.Summary      `json:"summary"`
			Months  []stats.MonthTotal `json:"months"`
		}{summary, months})
		return
	}

	fmt.Printf("Fill-ups:       %d\n", summary.Records)
	fmt.Printf("Total spent:    %.2f\n", summary.TotalSpent)
	fmt.Printf("Total fuel:     %.1f\n", summary.TotalFuel)
	fmt.Printf("Distance:       %.0f\n", summary.TotalDistance)
	fmt.Printf("Avg price/unit: %.2f\n", summary.AvgPrice)
	if summary.AvgEfficiency > 0 {
		fmt.Printf("Efficiency:     %.1f per unit\n", summary.AvgEfficiency)
		fmt.Printf("Cost/distance:  %.2f\n", summary.CostPerKm)
	}
	if len(months) > 0 {
		fmt.Println()
		fmt.Printf("%-8s %6s %10s %8s\n", "MONTH", "FILLS", "SPENT", "FUEL")
		for _, m := range months {
			fmt.Printf("%-8s %6d %10.2f %8.1f\n", m.Month, m.Fills, m.Spent, m.Fuel)
		}
	}
}

func cmdSync(ctx context.Context, env *env) {
	if env.cfg.Remote.OwnerID == "" {
		fmt.Fprintln(os.Stderr, "error: not signed in, nothing to sync (tanklogctl login)")
		os.Exit(1)
	}
	if !env.net.Online() {
		fmt.Fprintln(os.Stderr, "error: remote unreachable, changes stay queued")
		os.Exit(1)
	}
	if err := env.engine.FullReconcile(ctx, env.ownerID, env.cfg.Remote.OwnerID); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	pending, err := env.db.PendingQueue(env.ownerID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if len(pending) > 0 {
		fmt.Printf("Reconciled with %d change(s) still queued.\n", len(pending))
		return
	}
	fmt.Println("Reconciled.")
}

func cmdLogin(env *env, args []string) {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	url := fs.String("url", env.cfg.Remote.BaseURL, "remote base URL")
	key := fs.String("key", env.cfg.Remote.APIKey, "remote API key")
	owner := fs.String("owner", "", "remote owner id")
	_ = fs.Parse(args)

	if *url == "" || *owner == "" {
		fmt.Fprintln(os.Stderr, "usage: tanklogctl login --url <base-url> --key <api-key> --owner <owner-id>")
		os.Exit(1)
	}

	env.cfg.Remote.BaseURL = *url
	env.cfg.Remote.APIKey = *key
	env.cfg.Remote.OwnerID = *owner
	if err := config.Save(profile.ConfigPath(), env.cfg); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Signed in as %s. Run tanklogctl sync to pull existing records.\n", *owner)
}

func cmdLogout(env *env) {
	if env.cfg.Remote.OwnerID == "" {
		fmt.Fprintln(os.Stderr, "error: not signed in")
		os.Exit(1)
	}
	// Local data belongs to the signed-in account: drop records and queued
	// changes. The remote copy is untouched.
	if err := env.engine.ClearAll(env.ownerID); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	env.cfg.Remote.OwnerID = ""
	if err := config.Save(profile.ConfigPath(), env.cfg); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Signed out. Local records cleared; remote copy kept.")
}

func cmdStatus(env *env, profileName string, jsonOut bool) {
	daemonRunning := false
	daemonPID := 0
	l, err := lock.Acquire(profile.Dir(profileName))
	var held *lock.LockHeldError
	if errors.As(err, &held) {
		daemonRunning = true
		daemonPID = held.PID
	} else if err == nil {
		_ = l.Release()
	}

	pending, err := env.db.PendingQueue(env.ownerID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	lastReconcile, _ := intsync.NewCheckpoints(env.db).Get(fmt.Sprintf("last_reconcile_at.%d", env.ownerID))

	if jsonOut {
		outputJSON(struct {
			Profile       string `json:"profile"`
			SignedIn      bool   `json:"signed_in"`
			Owner         string `json:"owner,omitempty"`
			Online        bool   `json:"online"`
			DaemonRunning bool   `json:"daemon_running"`
			DaemonPID     int    `json:"daemon_pid,omitempty"`
			QueuedChanges int    `json:"queued_changes"`
			LastReconcile string `json:"last_reconcile,omitempty"`
		}{profileName, env.cfg.Remote.OwnerID != "", env.cfg.Remote.OwnerID,
			env.net.Online(), daemonRunning, daemonPID, len(pending), lastReconcile})
		return
	}

	fmt.Printf("Profile:        %s\n", profileName)
	if env.cfg.Remote.OwnerID != "" {
		fmt.Printf("Account:        %s\n", env.cfg.Remote.OwnerID)
	} else {
		fmt.Println("Account:        signed out (local-only)")
	}
	if env.net.Online() {
		fmt.Println("Remote:         reachable")
	} else {
		fmt.Println("Remote:         unreachable")
	}
	if daemonRunning {
		fmt.Printf("Daemon:         running (pid %d)\n", daemonPID)
	} else {
		fmt.Println("Daemon:         not running")
	}
	fmt.Printf("Queued changes: %d\n", len(pending))
	if lastReconcile != "" {
		fmt.Printf("Last reconcile: %s\n", lastReconcile)
	}
}

func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "json encode error: %v\n", err)
	}
}
