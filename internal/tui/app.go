package tui

import (
	"context"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"github.com/tanklog/tanklog/internal/bus"
	"github.com/tanklog/tanklog/internal/store"
	"github.com/tanklog/tanklog/internal/tui/model"
	"github.com/tanklog/tanklog/internal/tui/views"
)

// App is the main TUI application shell.
type App struct {
	app        *tview.Application
	pages      *tview.Pages
	vm         *model.ViewModel
	bus        *bus.Bus
	statusBar  *views.StatusBar
	recordList *views.RecordList
	form       *views.RecordForm
	statsView  *views.StatsView
	ctx        context.Context
	cancel     context.CancelFunc
}

// NewApp creates the TUI application.
func NewApp(vm *model.ViewModel, b *bus.Bus, profileName, account string) *App {
	ctx, cancel := context.WithCancel(context.Background())

	a := &App{
		app:        tview.NewApplication(),
		pages:      tview.NewPages(),
		vm:         vm,
		bus:        b,
		statusBar:  views.NewStatusBar(),
		recordList: views.NewRecordList(),
		form:       views.NewRecordForm(),
		statsView:  views.NewStatsView(),
		ctx:        ctx,
		cancel:     cancel,
	}

	a.statusBar.SetProfile(profileName)
	a.statusBar.SetAccount(account)
	a.setupCallbacks()
	a.setupLayout()

	return a
}

func (a *App) setupCallbacks() {
	a.form.SetOnSubmit(func(fields store.RecordFields) {
		go func() {
			if err := a.vm.Add(a.ctx, fields); err != nil {
				a.vm.SetFlash("Add failed: "+err.Error(), 5*time.Second)
				return
			}
			a.app.QueueUpdateDraw(func() {
				a.refresh()
				a.pages.SwitchToPage("records")
				a.app.SetFocus(a.recordList)
			})
		}()
	})
	a.form.SetOnCancel(func() {
		a.pages.SwitchToPage("records")
		a.app.SetFocus(a.recordList)
	})
}

func (a *App) setupLayout() {
	a.pages.AddPage("records", a.recordList, true, true)
	a.pages.AddPage("add", a.form, true, false)
	a.pages.AddPage("stats", a.statsView, true, false)

	help := tview.NewTextView().SetDynamicColors(true)
	_, _ = help.Write([]byte(" a:add  d:delete  s:stats  r:refresh  q:quit"))

	root := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(a.pages, 0, 1, true).
		AddItem(help, 1, 0, false).
		AddItem(a.statusBar, 1, 0, false)

	a.app.SetRoot(root, true)

	a.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		currentPage, _ := a.pages.GetFrontPage()

		if event.Key() == tcell.KeyEscape && currentPage != "records" {
			a.pages.SwitchToPage("records")
			a.app.SetFocus(a.recordList)
			return nil
		}

		// The form handles its own input.
		if currentPage == "add" {
			return event
		}

		if event.Key() == tcell.KeyRune {
			switch event.Rune() {
			case 'q':
				a.app.Stop()
				return nil
			case 'a':
				a.form.Reset()
				a.pages.SwitchToPage("add")
				a.app.SetFocus(a.form)
				return nil
			case 's':
				a.pages.SwitchToPage("stats")
				return nil
			case 'd':
				if currentPage == "records" {
					a.deleteSelected()
				}
				return nil
			case 'r':
				go func() { _ = a.vm.Load(a.ctx) }()
				return nil
			}
		}
		return event
	})
}

func (a *App) deleteSelected() {
	rec, ok := a.recordList.Selected()
	if !ok {
		return
	}
	go func() {
		if err := a.vm.Remove(a.ctx, rec); err != nil {
			a.vm.SetFlash("Delete failed: "+err.Error(), 5*time.Second)
			return
		}
		a.app.QueueUpdateDraw(a.refresh)
	}()
}

func (a *App) refresh() {
	a.recordList.Update(a.vm.Records())
	a.statsView.Update(a.vm.Summary(), a.vm.Months())
	a.statusBar.SetQueued(a.vm.Queued())
	a.statusBar.SetFlash(a.vm.Flash())
}

// Run starts the TUI application.
func (a *App) Run() error {
	a.watchBus()

	go func() {
		_ = a.vm.Load(a.ctx)
		a.app.QueueUpdateDraw(a.refresh)
		a.startRefreshLoop()
	}()

	return a.app.Run()
}

// watchBus keeps the status bar in step with connectivity and sync events
// and reloads when a reconcile lands records.
func (a *App) watchBus() {
	netCh, netUnsub := a.bus.Subscribe("net.", 16)
	syncCh, syncUnsub := a.bus.Subscribe("sync.", 16)

	go func() {
		defer netUnsub()
		defer syncUnsub()
		for {
			select {
			case evt := <-netCh:
				online := evt.Kind == "net.online"
				a.app.QueueUpdateDraw(func() {
					a.statusBar.SetOnline(online)
				})
			case evt := <-syncCh:
				switch evt.Kind {
				case "sync.started":
					a.app.QueueUpdateDraw(func() {
						a.statusBar.SetSyncing(true)
					})
				case "sync.reconciled":
					a.app.QueueUpdateDraw(func() {
						a.statusBar.SetSyncing(false)
					})
					go func() { _ = a.vm.Load(a.ctx) }()
				}
			case <-a.ctx.Done():
				return
			}
		}
	}()
}

func (a *App) startRefreshLoop() {
	ticker := time.NewTicker(5 * time.Second)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				go func() { _ = a.vm.Load(a.ctx) }()
			case <-a.vm.RefreshCh():
				a.app.QueueUpdateDraw(a.refresh)
			case <-a.ctx.Done():
				return
			}
		}
	}()
}

// Stop gracefully shuts down the TUI.
func (a *App) Stop() {
	a.cancel()
	a.app.Stop()
}
