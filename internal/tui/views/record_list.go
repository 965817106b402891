package views

import (
	"fmt"

	"github.com/rivo/tview"
	"github.com/tanklog/tanklog/internal/store"
)

// RecordList is the main fill-up table.
type RecordList struct {
	*tview.Table
	records    []store.FuelRecord
	selectedFn func() (int, int)
}

// NewRecordList creates a new fill-up table.
func NewRecordList() *RecordList {
	table := tview.NewTable().
		SetSelectable(true, false).
		SetBorders(false)
	table.SetBorder(true).SetTitle(" Fill-ups ")

	rl := &RecordList{Table: table}
	rl.selectedFn = table.GetSelection
	return rl
}

// Update refreshes the table with new data.
func (rl *RecordList) Update(records []store.FuelRecord) {
	rl.records = records
	rl.Clear()

	headers := []string{" Date", " Paid", " Odometer", " Fuel", " Station", " Sync"}
	for col, h := range headers {
		rl.SetCell(0, col, tview.NewTableCell(h).SetSelectable(false).SetTextColor(tview.Styles.SecondaryTextColor))
	}

	for i, rec := range records {
		row := i + 1
		synced := "pending"
		if rec.RemoteID != "" {
			synced = "synced"
		}
		rl.SetCell(row, 0, tview.NewTableCell(" "+rec.Date).SetMaxWidth(12))
		rl.SetCell(row, 1, tview.NewTableCell(fmt.Sprintf(" %.2f", rec.AmountPaid)).SetAlign(tview.AlignRight))
		rl.SetCell(row, 2, tview.NewTableCell(fmt.Sprintf(" %.0f", rec.Odometer)).SetAlign(tview.AlignRight))
		rl.SetCell(row, 3, tview.NewTableCell(fmt.Sprintf(" %.1f", rec.FuelFilled)).SetAlign(tview.AlignRight))
		rl.SetCell(row, 4, tview.NewTableCell(" "+rec.Station).SetMaxWidth(24).SetExpansion(1))
		rl.SetCell(row, 5, tview.NewTableCell(" "+synced).SetMaxWidth(8))
	}
}

// Selected returns the currently selected record, if any.
func (rl *RecordList) Selected() (store.FuelRecord, bool) {
	row, _ := rl.selectedFn()
	idx := row - 1 // account for header
	if idx >= 0 && idx < len(rl.records) {
		return rl.records[idx], true
	}
	return store.FuelRecord{}, false
}
