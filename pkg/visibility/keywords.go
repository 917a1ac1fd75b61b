package visibility

import (
	"sort"

	"github.com/ekaya-inc/ekaya-visibility/pkg/models"
)

// MaxKeywordBreakdown caps the number of keywords in a breakdown.
const MaxKeywordBreakdown = 10

// KeywordBreakdown ranks keywords across all engines by visibility score
// descending, ties broken by keyword ascending, and keeps the top ten.
func KeywordBreakdown(checks []*models.Check) []models.KeywordVisibility {
	byKeyword := GroupBy(checks, func(c *models.Check) string { return c.Keyword })

	out := make([]models.KeywordVisibility, 0, len(byKeyword))
	for keyword, group := range byKeyword {
		t := tallyOf(group)
		engines := make(map[models.Engine]struct{})
		for _, c := range group {
			engines[c.Engine] = struct{}{}
		}
		out = append(out, models.KeywordVisibility{
			Keyword:         keyword,
			VisibilityScore: t.score(),
			AvgPosition:     t.avgPosition(),
			TotalChecks:     t.total,
			PresenceCount:   t.present,
			EnginesCount:    len(engines),
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].VisibilityScore != out[j].VisibilityScore {
			return out[i].VisibilityScore > out[j].VisibilityScore
		}
		return out[i].Keyword < out[j].Keyword
	})

	if len(out) > MaxKeywordBreakdown {
		out = out[:MaxKeywordBreakdown]
	}
	return out
}
