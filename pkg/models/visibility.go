package models

// EngineVisibility summarizes one engine over a record set.
// AvgPosition is nil when the brand was never present.
type EngineVisibility struct {
	Engine          Engine   `json:"engine"`
	VisibilityScore float64  `json:"visibility_score"`
	AvgPosition     *float64 `json:"avg_position"`
	AvgCitations    float64  `json:"avg_citations"`
	TotalChecks     int      `json:"total_checks"`
}

// EngineDayScore is one engine's score inside a trend point.
type EngineDayScore struct {
	Engine          Engine  `json:"engine"`
	VisibilityScore float64 `json:"visibility_score"`
}

// TrendPoint holds the per-engine scores of a single UTC day (YYYY-MM-DD).
type TrendPoint struct {
	Date    string           `json:"date"`
	Engines []EngineDayScore `json:"engines"`
}

// KeywordVisibility summarizes one keyword across engines.
type KeywordVisibility struct {
	Keyword         string   `json:"keyword"`
	VisibilityScore float64  `json:"visibility_score"`
	AvgPosition     *float64 `json:"avg_position"`
	TotalChecks     int      `json:"total_checks"`
	PresenceCount   int      `json:"presence_count"`
	EnginesCount    int      `json:"engines_count"`
}

// RecommendationType names a recommendation heuristic.
type RecommendationType string

const (
	RecommendationLowVisibility RecommendationType = "low_visibility"
	RecommendationLowCitations  RecommendationType = "low_citations"
)

// Priority ranks a recommendation.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
)

// Recommendation is a heuristic suggestion derived from check results.
type Recommendation struct {
	Type     RecommendationType `json:"type"`
	Priority Priority           `json:"priority"`
	Message  string             `json:"message"`
	Action   string             `json:"action"`
}

// Summary bundles the four aggregator outputs over one record set.
type Summary struct {
	VisibilityScore  []EngineVisibility  `json:"visibility_score"`
	Trends           []TrendPoint        `json:"trends"`
	KeywordBreakdown []KeywordVisibility `json:"keyword_breakdown"`
	Recommendations  []Recommendation    `json:"recommendations"`
}

// Period is the time window a dashboard result covers.
type Period struct {
	Days      int    `json:"days"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

// Overview is the dashboard response for an owner or a single project.
type Overview struct {
	Summary
	Period Period `json:"period"`
}

// KeywordDayPoint is one day of a keyword's series on one engine.
type KeywordDayPoint struct {
	Date            string   `json:"date"`
	VisibilityScore float64  `json:"visibility_score"`
	AvgPosition     *float64 `json:"avg_position"`
	AvgCitations    float64  `json:"avg_citations"`
	TotalChecks     int      `json:"total_checks"`
}

// KeywordEngineSeries is a keyword's daily history on one engine.
// OverallVisibility is the mean of the daily scores.
type KeywordEngineSeries struct {
	Engine            Engine            `json:"engine"`
	Data              []KeywordDayPoint `json:"data"`
	OverallVisibility float64           `json:"overall_visibility"`
}

// KeywordAnalysis is the per-engine breakdown of a single keyword.
type KeywordAnalysis struct {
	Keyword string                `json:"keyword"`
	Engines []KeywordEngineSeries `json:"engines"`
	Period  Period                `json:"period"`
}

// EngineComparisonEntry extends EngineVisibility with the keywords that
// most recently surfaced the brand on that engine.
type EngineComparisonEntry struct {
	EngineVisibility
	PresenceCount         int      `json:"presence_count"`
	TopPerformingKeywords []string `json:"top_performing_keywords"`
}

// EngineComparison ranks engines against each other.
type EngineComparison struct {
	Engines []EngineComparisonEntry `json:"engines"`
	Period  Period                  `json:"period"`
}
