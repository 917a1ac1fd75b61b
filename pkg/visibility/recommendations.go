package visibility

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ekaya-inc/ekaya-visibility/pkg/models"
)

const (
	// LowVisibilityThreshold is the engine score below which an engine is flagged.
	LowVisibilityThreshold = 50.0
	// LowCitationsThreshold is the mean citation count below which a keyword is flagged.
	LowCitationsThreshold = 2.0
	// maxLowCitationKeywords bounds how many keywords a low_citations entry names.
	maxLowCitationKeywords = 3
)

// Recommendations applies the low-visibility and low-citation heuristics.
// A low_visibility entry, when present, always precedes low_citations.
// An empty result means nothing needs attention.
func Recommendations(checks []*models.Check) []models.Recommendation {
	out := make([]models.Recommendation, 0, 2)

	// The engine mean is taken over presence as 100/0, which equals the
	// count ratio because every record carries the same weight.
	var lowEngines []string
	for engine, group := range GroupBy(checks, func(c *models.Check) models.Engine { return c.Engine }) {
		if tallyOf(group).ratio() < LowVisibilityThreshold {
			lowEngines = append(lowEngines, string(engine))
		}
	}
	if len(lowEngines) > 0 {
		sort.Strings(lowEngines)
		out = append(out, models.Recommendation{
			Type:     models.RecommendationLowVisibility,
			Priority: models.PriorityHigh,
			Message:  fmt.Sprintf("Low visibility detected on engines: %s", strings.Join(lowEngines, ", ")),
			Action:   "Consider optimizing content for these AI engines",
		})
	}

	var lowKeywords []string
	for keyword, group := range GroupBy(checks, func(c *models.Check) string { return c.Keyword }) {
		t := tallyOf(group)
		if float64(t.citationSum)/float64(t.total) < LowCitationsThreshold {
			lowKeywords = append(lowKeywords, keyword)
		}
	}
	if len(lowKeywords) > 0 {
		sort.Strings(lowKeywords)
		if len(lowKeywords) > maxLowCitationKeywords {
			lowKeywords = lowKeywords[:maxLowCitationKeywords]
		}
		out = append(out, models.Recommendation{
			Type:     models.RecommendationLowCitations,
			Priority: models.PriorityMedium,
			Message:  fmt.Sprintf("Keywords with low citations: %s", strings.Join(lowKeywords, ", ")),
			Action:   "Improve content authority and backlinks for these keywords",
		})
	}

	return out
}
