package statistics

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/at-ishikawa/ieltsnotes/internal/practice"
)

// PracticeStatistics holds statistics for a time period
type PracticeStatistics struct {
	Period        string // "2025-01"
	Sessions      int
	NewNotes      int // Notes practiced for the first time
	RepeatsCount  int // Practices of notes seen in an earlier session
	RepeatsUnique int
}

// AggregateStatistics holds totals across all periods with global unique counts
type AggregateStatistics struct {
	Sessions      int
	NewNotes      int
	RepeatsCount  int
	RepeatsUnique int // Deduplicated across periods
}

type StatisticsResult struct {
	Periods   []PracticeStatistics
	Aggregate AggregateStatistics
}

type periodData struct {
	sessions      int
	newNotes      int
	repeatsTotal  int
	repeatsUnique map[string]struct{}
}

// CalculateStatistics groups practice records by month.
// It accepts optional year and month filters (0 means no filter).
// Records with an unreadable date are skipped, but every record still counts
// towards deciding whether a later practice of a note is a repeat.
func CalculateStatistics(records []practice.Record, year, month int) StatisticsResult {
	type dated struct {
		at     time.Time
		record practice.Record
	}
	var sorted []dated
	for _, r := range records {
		at, err := time.Parse(time.RFC3339Nano, r.Date)
		if err != nil {
			slog.Default().Warn("skip practice record without a valid date",
				slog.Int64("id", r.ID),
				slog.String("date", r.Date))
			continue
		}
		sorted = append(sorted, dated{at: at, record: r})
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].at.Before(sorted[j].at)
	})

	stats := make(map[string]*periodData)
	seen := make(map[string]struct{})
	globalRepeatsUnique := make(map[string]struct{})
	for _, d := range sorted {
		inPeriod := matchesFilter(d.at.Year(), int(d.at.Month()), year, month)
		period := fmt.Sprintf("%d-%02d", d.at.Year(), int(d.at.Month()))
		if inPeriod {
			ensurePeriodExists(stats, period)
			stats[period].sessions++
		}

		for _, id := range d.record.NoteIDs {
			_, repeat := seen[id]
			seen[id] = struct{}{}
			if !inPeriod {
				continue
			}
			if !repeat {
				stats[period].newNotes++
				continue
			}
			stats[period].repeatsTotal++
			stats[period].repeatsUnique[id] = struct{}{}
			globalRepeatsUnique[id] = struct{}{}
		}
	}

	return buildResult(stats, globalRepeatsUnique)
}

func ensurePeriodExists(stats map[string]*periodData, period string) {
	if stats[period] == nil {
		stats[period] = &periodData{
			repeatsUnique: make(map[string]struct{}),
		}
	}
}

func matchesFilter(logYear, logMonth, filterYear, filterMonth int) bool {
	if filterYear == 0 {
		return true
	}
	if logYear != filterYear {
		return false
	}
	if filterMonth == 0 {
		return true
	}
	return logMonth == filterMonth
}

func buildResult(stats map[string]*periodData, globalRepeatsUnique map[string]struct{}) StatisticsResult {
	periods := make([]PracticeStatistics, 0, len(stats))

	var aggregate AggregateStatistics
	for period, data := range stats {
		periods = append(periods, PracticeStatistics{
			Period:        period,
			Sessions:      data.sessions,
			NewNotes:      data.newNotes,
			RepeatsCount:  data.repeatsTotal,
			RepeatsUnique: len(data.repeatsUnique),
		})
		aggregate.Sessions += data.sessions
		aggregate.NewNotes += data.newNotes
		aggregate.RepeatsCount += data.repeatsTotal
	}
	aggregate.RepeatsUnique = len(globalRepeatsUnique)

	// Sort by period descending (newest first)
	sort.Slice(periods, func(i, j int) bool {
		return periods[i].Period > periods[j].Period
	})

	return StatisticsResult{
		Periods:   periods,
		Aggregate: aggregate,
	}
}
