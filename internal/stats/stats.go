// Package stats derives spending and consumption metrics from fuel records.
// Everything here is pure computation over an in-memory slice; callers fetch
// the records through the sync engine first.
package stats

import (
	"sort"

	"github.com/tanklog/tanklog/internal/store"
)

// Summary aggregates a whole record list.
type Summary struct {
	Records       int
	TotalSpent    float64
	TotalFuel     float64
	TotalDistance float64 // odometer span between first and last fill
	AvgPrice      float64 // spend per unit of fuel, over all fills
	AvgEfficiency float64 // distance per unit of fuel, over consecutive fills
	CostPerKm     float64 // spend per unit of distance
}

// MonthTotal aggregates the fills of one calendar month.
type MonthTotal struct {
	Month string // "YYYY-MM"
	Fills int
	Spent float64
	Fuel  float64
}

// Interval describes one leg between two consecutive fills, ordered by
// odometer. Efficiency divides the distance driven by the fuel taken on at
// the end of the leg, the usual full-tank accounting.
type Interval struct {
	From       store.FuelRecord
	To         store.FuelRecord
	Distance   float64
	Efficiency float64 // 0 when the later fill has no volume
}

// byOdometer returns a copy sorted by odometer, date as tiebreaker.
func byOdometer(records []store.FuelRecord) []store.FuelRecord {
	out := make([]store.FuelRecord, len(records))
	copy(out, records)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Odometer != out[j].Odometer {
			return out[i].Odometer < out[j].Odometer
		}
		return out[i].Date < out[j].Date
	})
	return out
}

// Summarize computes the overall summary. A single record yields totals but
// no distance-based metrics; an empty list yields a zero summary.
func Summarize(records []store.FuelRecord) Summary {
	s := Summary{Records: len(records)}
	for _, r := range records {
		s.TotalSpent += r.AmountPaid
		s.TotalFuel += r.FuelFilled
	}
	if s.TotalFuel > 0 {
		s.AvgPrice = s.TotalSpent / s.TotalFuel
	}

	ordered := byOdometer(records)
	if len(ordered) >= 2 {
		s.TotalDistance = ordered[len(ordered)-1].Odometer - ordered[0].Odometer
	}
	if s.TotalDistance > 0 {
		s.CostPerKm = s.TotalSpent / s.TotalDistance
		// Fuel taken on at the first fill predates the measured distance.
		burned := s.TotalFuel - ordered[0].FuelFilled
		if burned > 0 {
			s.AvgEfficiency = s.TotalDistance / burned
		}
	}
	return s
}

// Intervals lists the legs between consecutive fills, oldest first.
func Intervals(records []store.FuelRecord) []Interval {
	ordered := byOdometer(records)
	if len(ordered) < 2 {
		return nil
	}
	out := make([]Interval, 0, len(ordered)-1)
	for i := 1; i < len(ordered); i++ {
		iv := Interval{
			From:     ordered[i-1],
			To:       ordered[i],
			Distance: ordered[i].Odometer - ordered[i-1].Odometer,
		}
		if ordered[i].FuelFilled > 0 {
			iv.Efficiency = iv.Distance / ordered[i].FuelFilled
		}
		out = append(out, iv)
	}
	return out
}

// ByMonth groups fills into calendar months, oldest first. Records whose
// date is shorter than "YYYY-MM" are skipped.
func ByMonth(records []store.FuelRecord) []MonthTotal {
	totals := make(map[string]*MonthTotal)
	for _, r := range records {
		if len(r.Date) < 7 {
			continue
		}
		month := r.Date[:7]
		mt, ok := totals[month]
		if !ok {
			mt = &MonthTotal{Month: month}
			totals[month] = mt
		}
		mt.Fills++
		mt.Spent += r.AmountPaid
		mt.Fuel += r.FuelFilled
	}

	out := make([]MonthTotal, 0, len(totals))
	for _, mt := range totals {
		out = append(out, *mt)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Month < out[j].Month })
	return out
}
