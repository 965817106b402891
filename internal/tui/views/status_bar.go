package views

import (
	"fmt"
	"time"

	"github.com/rivo/tview"
)

// StatusBar displays persistent profile/connectivity/queue status.
type StatusBar struct {
	*tview.TextView
	profile string
	account string
	online  bool
	syncing bool
	queued  int
	flash   string
}

// NewStatusBar creates a new status bar.
func NewStatusBar() *StatusBar {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBackgroundColor(tview.Styles.MoreContrastBackgroundColor)

	return &StatusBar{TextView: tv}
}

// SetProfile updates the profile name display.
func (sb *StatusBar) SetProfile(name string) {
	sb.profile = name
	sb.render()
}

// SetAccount updates the signed-in account display.
func (sb *StatusBar) SetAccount(owner string) {
	sb.account = owner
	sb.render()
}

// SetOnline updates the connectivity indicator.
func (sb *StatusBar) SetOnline(online bool) {
	sb.online = online
	sb.render()
}

// SetSyncing updates the sync indicator.
func (sb *StatusBar) SetSyncing(syncing bool) {
	sb.syncing = syncing
	sb.render()
}

// SetQueued updates the pending change counter.
func (sb *StatusBar) SetQueued(n int) {
	sb.queued = n
	sb.render()
}

// SetFlash sets a temporary message.
func (sb *StatusBar) SetFlash(msg string) {
	sb.flash = msg
	sb.render()
}

func (sb *StatusBar) render() {
	sb.Clear()

	conn := "[red]offline[-]"
	if sb.online {
		conn = "[green]online[-]"
	}
	if sb.syncing {
		conn = "[yellow]syncing[-]"
	}

	account := sb.account
	if account == "" {
		account = "local-only"
	}

	line := fmt.Sprintf(" [::b]%s[-:-:-] | %s | %s", sb.profile, account, conn)
	if sb.queued > 0 {
		line += fmt.Sprintf(" | %d queued", sb.queued)
	}
	line += " | " + time.Now().Format("15:04")
	if sb.flash != "" {
		line += fmt.Sprintf(" | [yellow]%s[-]", sb.flash)
	}

	_, _ = fmt.Fprint(sb, line)
}
