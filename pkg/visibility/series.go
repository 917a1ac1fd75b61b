package visibility

import (
	"sort"

	"github.com/ekaya-inc/ekaya-visibility/pkg/models"
)

// MaxTopKeywords caps the keywords listed per engine in a comparison.
const MaxTopKeywords = 5

// KeywordEngineSeries builds a daily series per engine. It is meant for
// records already narrowed to one keyword. OverallVisibility averages the
// daily scores, so every day weighs the same regardless of its volume.
// Engines are sorted by name and days ascending.
func KeywordEngineSeries(checks []*models.Check) []models.KeywordEngineSeries {
	byEngine := GroupBy(checks, func(c *models.Check) models.Engine { return c.Engine })

	out := make([]models.KeywordEngineSeries, 0, len(byEngine))
	for engine, group := range byEngine {
		byDay := GroupBy(group, dayOf)

		points := make([]models.KeywordDayPoint, 0, len(byDay))
		var scoreSum float64
		for day, dayChecks := range byDay {
			t := tallyOf(dayChecks)
			scoreSum += t.ratio()
			points = append(points, models.KeywordDayPoint{
				Date:            day,
				VisibilityScore: t.score(),
				AvgPosition:     t.avgPosition(),
				AvgCitations:    t.avgCitations(),
				TotalChecks:     t.total,
			})
		}
		sort.Slice(points, func(i, j int) bool { return points[i].Date < points[j].Date })

		out = append(out, models.KeywordEngineSeries{
			Engine:            engine,
			Data:              points,
			OverallVisibility: round2(scoreSum / float64(len(points))),
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Engine < out[j].Engine })
	return out
}

// CompareEngines ranks engines like EngineScores and attaches up to five
// distinct keywords that most recently surfaced the brand on each engine.
func CompareEngines(checks []*models.Check) []models.EngineComparisonEntry {
	byEngine := GroupBy(checks, func(c *models.Check) models.Engine { return c.Engine })

	scores := EngineScores(checks)
	out := make([]models.EngineComparisonEntry, 0, len(scores))
	for _, s := range scores {
		group := byEngine[s.Engine]
		out = append(out, models.EngineComparisonEntry{
			EngineVisibility:      s,
			PresenceCount:         tallyOf(group).present,
			TopPerformingKeywords: topKeywords(group),
		})
	}
	return out
}

func topKeywords(group []*models.Check) []string {
	present := make([]*models.Check, 0, len(group))
	for _, c := range group {
		if c.Presence {
			present = append(present, c)
		}
	}
	sort.SliceStable(present, func(i, j int) bool {
		if !present[i].CreatedAt.Equal(present[j].CreatedAt) {
			return present[i].CreatedAt.After(present[j].CreatedAt)
		}
		return present[i].Keyword < present[j].Keyword
	})

	seen := make(map[string]bool)
	keywords := make([]string, 0, MaxTopKeywords)
	for _, c := range present {
		if seen[c.Keyword] {
			continue
		}
		seen[c.Keyword] = true
		keywords = append(keywords, c.Keyword)
		if len(keywords) == MaxTopKeywords {
			break
		}
	}
	return keywords
}
