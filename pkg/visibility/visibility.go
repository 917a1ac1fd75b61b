// Package visibility turns check records into dashboard metrics.
//
// Every function here is pure: it reads the records it is given, performs no
// I/O and never consults the clock. Callers filter records by owner, project
// and time window before aggregating. Nil records are skipped.
package visibility

import (
	"math"

	"github.com/ekaya-inc/ekaya-visibility/pkg/models"
)

// DayLayout formats the UTC calendar day used for trend buckets.
const DayLayout = "2006-01-02"

// GroupBy partitions checks by the key returned from keyFn.
// Records keep their input order inside each group.
func GroupBy[K comparable](checks []*models.Check, keyFn func(*models.Check) K) map[K][]*models.Check {
	groups := make(map[K][]*models.Check)
	for _, c := range checks {
		if c == nil {
			continue
		}
		k := keyFn(c)
		groups[k] = append(groups[k], c)
	}
	return groups
}

// Summarize computes all four dashboard outputs over the same record set.
func Summarize(checks []*models.Check) models.Summary {
	return models.Summary{
		VisibilityScore:  EngineScores(checks),
		Trends:           Trends(checks),
		KeywordBreakdown: KeywordBreakdown(checks),
		Recommendations:  Recommendations(checks),
	}
}

// tally accumulates the counters every score is derived from.
type tally struct {
	total         int
	present       int
	positionSum   int
	positionCount int
	citationSum   int
}

func tallyOf(checks []*models.Check) tally {
	var t tally
	for _, c := range checks {
		if c == nil {
			continue
		}
		t.total++
		t.citationSum += c.CitationsCount
		if !c.Presence {
			continue
		}
		t.present++
		// A present record without a usable rank still counts as present.
		if c.Position >= 1 {
			t.positionSum += c.Position
			t.positionCount++
		}
	}
	return t
}

// ratio is the unrounded presence percentage. Callers guarantee total > 0.
func (t tally) ratio() float64 {
	return float64(t.present) / float64(t.total) * 100
}

func (t tally) score() float64 {
	return round2(t.ratio())
}

func (t tally) avgPosition() *float64 {
	if t.positionCount == 0 {
		return nil
	}
	v := round2(float64(t.positionSum) / float64(t.positionCount))
	return &v
}

func (t tally) avgCitations() float64 {
	return round2(float64(t.citationSum) / float64(t.total))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
