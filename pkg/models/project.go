// Package models contains domain types for the visibility tracker.
package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// KeywordCategory groups tracked keywords by importance.
type KeywordCategory string

const (
	KeywordPrimary   KeywordCategory = "primary"
	KeywordSecondary KeywordCategory = "secondary"
	KeywordLongTail  KeywordCategory = "long-tail"
)

// Valid reports whether c is a known category.
func (c KeywordCategory) Valid() bool {
	switch c {
	case KeywordPrimary, KeywordSecondary, KeywordLongTail:
		return true
	}
	return false
}

// CheckFrequency is the cadence a project would like to be checked at.
// Checks are only ever triggered on demand; the value is informational.
type CheckFrequency string

const (
	FrequencyDaily   CheckFrequency = "daily"
	FrequencyWeekly  CheckFrequency = "weekly"
	FrequencyMonthly CheckFrequency = "monthly"
)

// Valid reports whether f is a known frequency.
func (f CheckFrequency) Valid() bool {
	switch f {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly:
		return true
	}
	return false
}

// Project is a named brand tracking configuration owned by a single user.
type Project struct {
	ID          uuid.UUID        `json:"id"`
	OwnerID     uuid.UUID        `json:"owner_id"`
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	Domain      string           `json:"domain"`
	Brand       string           `json:"brand"`
	Competitors []Competitor     `json:"competitors"`
	Keywords    []ProjectKeyword `json:"keywords"`
	Settings    ProjectSettings  `json:"settings"`
	IsActive    bool             `json:"is_active"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// Competitor is another brand whose mentions compete with the project's brand.
type Competitor struct {
	Name   string `json:"name"`
	Domain string `json:"domain,omitempty"`
}

// ProjectKeyword is one tracked search phrase.
type ProjectKeyword struct {
	Keyword        string          `json:"keyword"`
	Category       KeywordCategory `json:"category"`
	TargetPosition *int            `json:"target_position,omitempty"`
}

// ProjectSettings holds per-project check defaults.
type ProjectSettings struct {
	CheckFrequency CheckFrequency `json:"check_frequency"`
	Engines        []Engine       `json:"engines"`
}

// KeywordList returns the project's keywords in configured order.
func (p *Project) KeywordList() []string {
	out := make([]string, 0, len(p.Keywords))
	for _, k := range p.Keywords {
		out = append(out, k.Keyword)
	}
	return out
}

// DefaultCheckEngines returns the engines to check when a run names none.
func (p *Project) DefaultCheckEngines() []Engine {
	if len(p.Settings.Engines) > 0 {
		return p.Settings.Engines
	}
	return DefaultEngines
}

// NormalizeKeyword trims and lowercases a search phrase.
func NormalizeKeyword(k string) string {
	return strings.ToLower(strings.TrimSpace(k))
}

// NormalizeDomain reduces a URL or hostname to a lowercase host without
// scheme, port, path or leading "www.".
func NormalizeDomain(d string) string {
	d = strings.ToLower(strings.TrimSpace(d))
	if i := strings.Index(d, "://"); i >= 0 {
		d = d[i+3:]
	}
	if i := strings.IndexAny(d, "/?#"); i >= 0 {
		d = d[:i]
	}
	if i := strings.LastIndex(d, "@"); i >= 0 {
		d = d[i+1:]
	}
	if i := strings.LastIndex(d, ":"); i >= 0 && !strings.Contains(d[i:], "]") {
		d = d[:i]
	}
	d = strings.TrimSuffix(d, ".")
	return strings.TrimPrefix(d, "www.")
}
