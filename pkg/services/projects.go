package services

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/net/publicsuffix"

	"github.com/ekaya-inc/ekaya-visibility/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-visibility/pkg/models"
	"github.com/ekaya-inc/ekaya-visibility/pkg/repositories"
)

const (
	maxNameLength        = 100
	maxDescriptionLength = 500
	maxKeywordLength     = 200
	maxKeywords          = 100
	maxCompetitors       = 50
)

var hostnamePattern = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]*[a-z0-9])?(\.[a-z0-9]([a-z0-9-]*[a-z0-9])?)+$`)

// CreateProjectRequest holds the fields of a new project.
type CreateProjectRequest struct {
	Name        string                  `json:"name"`
	Description string                  `json:"description"`
	Domain      string                  `json:"domain"`
	Brand       string                  `json:"brand"`
	Competitors []models.Competitor     `json:"competitors"`
	Keywords    []models.ProjectKeyword `json:"keywords"`
	Settings    *models.ProjectSettings `json:"settings"`
}

// UpdateProjectRequest is a partial update; nil fields are left unchanged.
type UpdateProjectRequest struct {
	Name        *string                  `json:"name"`
	Description *string                  `json:"description"`
	Domain      *string                  `json:"domain"`
	Brand       *string                  `json:"brand"`
	Competitors *[]models.Competitor     `json:"competitors"`
	Keywords    *[]models.ProjectKeyword `json:"keywords"`
	Settings    *models.ProjectSettings  `json:"settings"`
}

// ProjectService defines the interface for project operations.
// Every method is scoped to the calling owner.
type ProjectService interface {
	List(ctx context.Context, ownerID uuid.UUID) ([]*models.Project, error)
	Get(ctx context.Context, ownerID, id uuid.UUID) (*models.Project, error)
	Create(ctx context.Context, ownerID uuid.UUID, req CreateProjectRequest) (*models.Project, error)
	Update(ctx context.Context, ownerID, id uuid.UUID, req UpdateProjectRequest) (*models.Project, error)
	Delete(ctx context.Context, ownerID, id uuid.UUID) error
}

type projectService struct {
	repo        repositories.ProjectRepository
	invalidator OverviewInvalidator
	logger      *zap.Logger
}

// NewProjectService creates a new project service. invalidator may be nil.
func NewProjectService(repo repositories.ProjectRepository, invalidator OverviewInvalidator, logger *zap.Logger) ProjectService {
	return &projectService{
		repo:        repo,
		invalidator: invalidator,
		logger:      logger.Named("projects"),
	}
}

var _ ProjectService = (*projectService)(nil)

func (s *projectService) List(ctx context.Context, ownerID uuid.UUID) ([]*models.Project, error) {
	return s.repo.List(ctx, ownerID)
}

func (s *projectService) Get(ctx context.Context, ownerID, id uuid.UUID) (*models.Project, error) {
	return s.repo.Get(ctx, ownerID, id)
}

func (s *projectService) Create(ctx context.Context, ownerID uuid.UUID, req CreateProjectRequest) (*models.Project, error) {
	project := &models.Project{
		OwnerID:     ownerID,
		Name:        req.Name,
		Description: req.Description,
		Domain:      req.Domain,
		Brand:       req.Brand,
		Competitors: req.Competitors,
		Keywords:    req.Keywords,
	}
	if req.Settings != nil {
		project.Settings = *req.Settings
	}

	if err := normalizeProject(project); err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, project); err != nil {
		return nil, err
	}

	s.logger.Info("Project created",
		zap.String("project_id", project.ID.String()),
		zap.String("owner_id", ownerID.String()),
		zap.Int("keywords", len(project.Keywords)))

	return project, nil
}

func (s *projectService) Update(ctx context.Context, ownerID, id uuid.UUID, req UpdateProjectRequest) (*models.Project, error) {
	project, err := s.repo.Get(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		project.Name = *req.Name
	}
	if req.Description != nil {
		project.Description = *req.Description
	}
	if req.Domain != nil {
		project.Domain = *req.Domain
	}
	if req.Brand != nil {
		project.Brand = *req.Brand
	}
	if req.Competitors != nil {
		project.Competitors = *req.Competitors
	}
	if req.Keywords != nil {
		project.Keywords = *req.Keywords
	}
	if req.Settings != nil {
		project.Settings = *req.Settings
	}

	if err := normalizeProject(project); err != nil {
		return nil, err
	}

	if err := s.repo.Update(ctx, project); err != nil {
		return nil, err
	}
	s.invalidate(ctx, ownerID)

	return project, nil
}

func (s *projectService) Delete(ctx context.Context, ownerID, id uuid.UUID) error {
	if err := s.repo.SoftDelete(ctx, ownerID, id); err != nil {
		return err
	}
	// The owner-wide overview still counts the deleted project's checks.
	s.invalidate(ctx, ownerID)

	s.logger.Info("Project deleted",
		zap.String("project_id", id.String()),
		zap.String("owner_id", ownerID.String()))
	return nil
}

func (s *projectService) invalidate(ctx context.Context, ownerID uuid.UUID) {
	if s.invalidator != nil {
		s.invalidator.InvalidateOwner(ctx, ownerID)
	}
}

func validationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", apperrors.ErrValidation, fmt.Sprintf(format, args...))
}

// normalizeProject trims and lowercases user input, fills setting defaults
// and validates every field.
func normalizeProject(p *models.Project) error {
	p.Name = strings.TrimSpace(p.Name)
	if n := utf8.RuneCountInString(p.Name); n < 1 || n > maxNameLength {
		return validationError("name must be 1-%d characters", maxNameLength)
	}

	p.Description = strings.TrimSpace(p.Description)
	if utf8.RuneCountInString(p.Description) > maxDescriptionLength {
		return validationError("description cannot exceed %d characters", maxDescriptionLength)
	}

	domain, err := normalizeHostname(p.Domain)
	if err != nil {
		return err
	}
	p.Domain = domain

	p.Brand = strings.TrimSpace(p.Brand)
	if n := utf8.RuneCountInString(p.Brand); n < 1 || n > maxNameLength {
		return validationError("brand must be 1-%d characters", maxNameLength)
	}

	if err := normalizeCompetitors(p); err != nil {
		return err
	}
	if err := normalizeKeywords(p); err != nil {
		return err
	}
	return normalizeSettings(&p.Settings)
}

// normalizeHostname accepts a bare domain or URL and requires a hostname
// under a public suffix.
func normalizeHostname(raw string) (string, error) {
	domain := models.NormalizeDomain(raw)
	if domain == "" {
		return "", validationError("domain is required")
	}
	if !hostnamePattern.MatchString(domain) {
		return "", validationError("%q is not a valid domain", raw)
	}
	// Unlisted TLDs fall through to the "*" rule: a single label, not ICANN.
	if suffix, icann := publicsuffix.PublicSuffix(domain); !icann && !strings.Contains(suffix, ".") {
		return "", validationError("%q is not under a known public suffix", raw)
	}
	if _, err := publicsuffix.EffectiveTLDPlusOne(domain); err != nil {
		return "", validationError("%q is a public suffix, not a domain", raw)
	}
	return domain, nil
}

func normalizeCompetitors(p *models.Project) error {
	if len(p.Competitors) > maxCompetitors {
		return validationError("at most %d competitors are allowed", maxCompetitors)
	}

	out := make([]models.Competitor, 0, len(p.Competitors))
	for i, c := range p.Competitors {
		c.Name = strings.TrimSpace(c.Name)
		if n := utf8.RuneCountInString(c.Name); n < 1 || n > maxNameLength {
			return validationError("competitor %d: name must be 1-%d characters", i+1, maxNameLength)
		}
		if strings.TrimSpace(c.Domain) != "" {
			domain, err := normalizeHostname(c.Domain)
			if err != nil {
				return fmt.Errorf("competitor %d: %w", i+1, err)
			}
			c.Domain = domain
		} else {
			c.Domain = ""
		}
		out = append(out, c)
	}
	p.Competitors = out
	return nil
}

// normalizeKeywords lowercases keywords and drops repeats, keeping the
// first occurrence.
func normalizeKeywords(p *models.Project) error {
	if len(p.Keywords) == 0 {
		return validationError("at least one keyword is required")
	}
	if len(p.Keywords) > maxKeywords {
		return validationError("at most %d keywords are allowed", maxKeywords)
	}

	seen := make(map[string]bool, len(p.Keywords))
	out := make([]models.ProjectKeyword, 0, len(p.Keywords))
	for i, k := range p.Keywords {
		k.Keyword = models.NormalizeKeyword(k.Keyword)
		if k.Keyword == "" {
			return validationError("keyword %d is empty", i+1)
		}
		if utf8.RuneCountInString(k.Keyword) > maxKeywordLength {
			return validationError("keyword %d exceeds %d characters", i+1, maxKeywordLength)
		}
		if k.Category == "" {
			k.Category = models.KeywordPrimary
		}
		if !k.Category.Valid() {
			return validationError("keyword %q: unknown category %q", k.Keyword, k.Category)
		}
		if k.TargetPosition != nil && (*k.TargetPosition < 1 || *k.TargetPosition > 10) {
			return validationError("keyword %q: target position must be between 1 and 10", k.Keyword)
		}
		if seen[k.Keyword] {
			continue
		}
		seen[k.Keyword] = true
		out = append(out, k)
	}
	p.Keywords = out
	return nil
}

func normalizeSettings(s *models.ProjectSettings) error {
	if s.CheckFrequency == "" {
		s.CheckFrequency = models.FrequencyDaily
	}
	if !s.CheckFrequency.Valid() {
		return validationError("unknown check frequency %q", s.CheckFrequency)
	}

	if len(s.Engines) == 0 {
		s.Engines = append([]models.Engine(nil), models.DefaultEngines...)
		return nil
	}

	names := make([]string, len(s.Engines))
	for i, e := range s.Engines {
		names[i] = string(e)
	}
	engines, err := models.ParseEngines(names)
	if err != nil {
		return validationError("%s", err.Error())
	}
	s.Engines = engines
	return nil
}
