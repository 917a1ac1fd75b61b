package models

import (
	"time"

	"github.com/google/uuid"
)

// CheckStatus is the lifecycle state of a check.
type CheckStatus string

const (
	CheckPending   CheckStatus = "pending"
	CheckCompleted CheckStatus = "completed"
	CheckFailed    CheckStatus = "failed"
)

// Terminal reports whether no further transition is allowed from s.
func (s CheckStatus) Terminal() bool {
	return s == CheckCompleted || s == CheckFailed
}

// MaxSnippetLength caps the stored answer excerpt, in runes.
const MaxSnippetLength = 2000

// Check is one observation of brand presence for an engine and keyword.
//
// Position is 0 and ObservedURLs is empty whenever Presence is false.
type Check struct {
	ID             uuid.UUID     `json:"id"`
	ProjectID      uuid.UUID     `json:"project_id"`
	Engine         Engine        `json:"engine"`
	Keyword        string        `json:"keyword"`
	Presence       bool          `json:"presence"`
	Position       int           `json:"position"`
	AnswerSnippet  string        `json:"answer_snippet,omitempty"`
	CitationsCount int           `json:"citations_count"`
	ObservedURLs   []ObservedURL `json:"observed_urls"`
	Metadata       CheckMetadata `json:"metadata"`
	Status         CheckStatus   `json:"status"`
	ErrorMessage   string        `json:"error_message,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// ObservedURL is a source cited by an engine answer. Position starts at 1.
type ObservedURL struct {
	URL      string `json:"url"`
	Domain   string `json:"domain"`
	Position int    `json:"position"`
}

// CheckMetadata records how an observation was obtained.
type CheckMetadata struct {
	QueryTimeMs  int64  `json:"query_time_ms,omitempty"`
	ResponseSize int    `json:"response_size,omitempty"`
	Model        string `json:"model,omitempty"`
	Attempts     int    `json:"attempts,omitempty"`
	// CompetitorsMentioned names competitors found in the answer, in order of appearance.
	CompetitorsMentioned []string `json:"competitors_mentioned,omitempty"`
}

// Observation is the outcome of querying an engine, applied to a pending
// check when it completes.
type Observation struct {
	Presence      bool
	Position      int
	AnswerSnippet string
	ObservedURLs  []ObservedURL
	Metadata      CheckMetadata
}

// Normalize enforces the absent-brand invariant on the observation.
func (o *Observation) Normalize() {
	if o.Position < 0 {
		o.Position = 0
	}
	if !o.Presence {
		o.Position = 0
		o.ObservedURLs = nil
	}
}

// Pagination describes one page of a list result.
type Pagination struct {
	Current int `json:"current"`
	Pages   int `json:"pages"`
	Total   int `json:"total"`
}

// NewPagination computes page counts for total items split by limit.
func NewPagination(page, limit, total int) Pagination {
	pages := 0
	if limit > 0 {
		pages = (total + limit - 1) / limit
	}
	return Pagination{Current: page, Pages: pages, Total: total}
}
