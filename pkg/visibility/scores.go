package visibility

import (
	"sort"

	"github.com/ekaya-inc/ekaya-visibility/pkg/models"
)

// EngineScores returns one entry per engine present in checks, ordered by
// visibility score descending and then engine name ascending.
func EngineScores(checks []*models.Check) []models.EngineVisibility {
	byEngine := GroupBy(checks, func(c *models.Check) models.Engine { return c.Engine })

	out := make([]models.EngineVisibility, 0, len(byEngine))
	for engine, group := range byEngine {
		t := tallyOf(group)
		out = append(out, models.EngineVisibility{
			Engine:          engine,
			VisibilityScore: t.score(),
			AvgPosition:     t.avgPosition(),
			AvgCitations:    t.avgCitations(),
			TotalChecks:     t.total,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].VisibilityScore != out[j].VisibilityScore {
			return out[i].VisibilityScore > out[j].VisibilityScore
		}
		return out[i].Engine < out[j].Engine
	})
	return out
}
