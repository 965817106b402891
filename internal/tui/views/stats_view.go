package views

import (
	"fmt"
	"strings"

	"github.com/rivo/tview"
	"github.com/tanklog/tanklog/internal/stats"
)

// StatsView renders spending and consumption metrics.
type StatsView struct {
	*tview.TextView
}

// NewStatsView creates an empty stats pane.
func NewStatsView() *StatsView {
	tv := tview.NewTextView().SetDynamicColors(true)
	tv.SetBorder(true).SetTitle(" Statistics ")
	return &StatsView{TextView: tv}
}

// Update re-renders the pane from the given metrics.
func (sv *StatsView) Update(summary stats.Summary, months []stats.MonthTotal) {
	var b strings.Builder

	fmt.Fprintf(&b, "\n [::b]Overall[-:-:-]\n\n")
	fmt.Fprintf(&b, "  Fill-ups        %d\n", summary.Records)
	fmt.Fprintf(&b, "  Total spent     %.2f\n", summary.TotalSpent)
	fmt.Fprintf(&b, "  Total fuel      %.1f\n", summary.TotalFuel)
	fmt.Fprintf(&b, "  Avg price/unit  %.2f\n", summary.AvgPrice)
	if summary.TotalDistance > 0 {
		fmt.Fprintf(&b, "  Distance        %.0f\n", summary.TotalDistance)
		fmt.Fprintf(&b, "  Efficiency      %.1f per unit\n", summary.AvgEfficiency)
		fmt.Fprintf(&b, "  Cost/distance   %.2f\n", summary.CostPerKm)
	}

	if len(months) > 0 {
		fmt.Fprintf(&b, "\n [::b]By month[-:-:-]\n\n")
		fmt.Fprintf(&b, "  %-8s %6s %10s %8s\n", "MONTH", "FILLS", "SPENT", "FUEL")
		for _, m := range months {
			fmt.Fprintf(&b, "  %-8s %6d %10.2f %8.1f\n", m.Month, m.Fills, m.Spent, m.Fuel)
		}
	}

	sv.SetText(b.String())
}
