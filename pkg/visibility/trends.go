package visibility

import (
	"sort"

	"github.com/ekaya-inc/ekaya-visibility/pkg/models"
)

type dayEngine struct {
	day    string
	engine models.Engine
}

// Trends buckets checks by UTC day and engine. Days are ascending and each
// day lists only the engines that have records on it, sorted by name.
func Trends(checks []*models.Check) []models.TrendPoint {
	buckets := GroupBy(checks, func(c *models.Check) dayEngine {
		return dayEngine{day: dayOf(c), engine: c.Engine}
	})

	byDay := make(map[string][]models.EngineDayScore)
	for key, group := range buckets {
		byDay[key.day] = append(byDay[key.day], models.EngineDayScore{
			Engine:          key.engine,
			VisibilityScore: tallyOf(group).score(),
		})
	}

	out := make([]models.TrendPoint, 0, len(byDay))
	for day, scores := range byDay {
		sort.Slice(scores, func(i, j int) bool { return scores[i].Engine < scores[j].Engine })
		out = append(out, models.TrendPoint{Date: day, Engines: scores})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}

func dayOf(c *models.Check) string {
	return c.CreatedAt.UTC().Format(DayLayout)
}
