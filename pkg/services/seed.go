package services

import (
	"context"
	"encoding/binary"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-visibility/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-visibility/pkg/models"
	"github.com/ekaya-inc/ekaya-visibility/pkg/repositories"
)

// DemoProjectName names the project created by DemoSeeder.
const DemoProjectName = "TechCorp AI Visibility"

// DefaultDemoDays is how many days of history the demo project gets.
const DefaultDemoDays = 14

// demoPresenceFactor scales the base presence rate per engine.
var demoPresenceFactor = map[models.Engine]float64{
	models.EngineChatGPT:    1.0,
	models.EngineGemini:     0.9,
	models.EngineClaude:     0.85,
	models.EnginePerplexity: 0.8,
}

var demoSnippets = []string{
	"TechCorp is a leading provider of %s solutions, offering comprehensive services to help businesses adopt new technology.",
	"When it comes to %s, TechCorp has established itself as an industry leader with proven results.",
	"TechCorp's expertise in %s spans over a decade, with implementations across many industries.",
	"The company's %s platform is recognized for its advanced capabilities and approachable interface.",
}

var demoURLs = []string{
	"https://techcorp.com/solutions/ai",
	"https://techcorp.com/blog/ai-trends",
	"https://techcorp.com/case-studies",
	"https://techcorp.com/resources/whitepapers",
}

func intPtr(v int) *int { return &v }

// demoProjects returns the projects created for a demo owner. Only the first
// gets check history.
func demoProjects() []CreateProjectRequest {
	return []CreateProjectRequest{
		{
			Name:        DemoProjectName,
			Description: "Tracking AI search visibility for TechCorp brand and products",
			Domain:      "techcorp.com",
			Brand:       "TechCorp",
			Competitors: []models.Competitor{
				{Name: "Competitor A", Domain: "competitor-a.com"},
				{Name: "Competitor B", Domain: "competitor-b.com"},
			},
			Keywords: []models.ProjectKeyword{
				{Keyword: "artificial intelligence", Category: models.KeywordPrimary, TargetPosition: intPtr(3)},
				{Keyword: "machine learning", Category: models.KeywordPrimary, TargetPosition: intPtr(2)},
				{Keyword: "AI automation", Category: models.KeywordSecondary, TargetPosition: intPtr(5)},
				{Keyword: "deep learning algorithms", Category: models.KeywordLongTail, TargetPosition: intPtr(4)},
				{Keyword: "neural networks", Category: models.KeywordPrimary, TargetPosition: intPtr(3)},
				{Keyword: "AI consulting services", Category: models.KeywordSecondary, TargetPosition: intPtr(6)},
				{Keyword: "automated decision making", Category: models.KeywordLongTail, TargetPosition: intPtr(7)},
				{Keyword: "predictive analytics", Category: models.KeywordSecondary, TargetPosition: intPtr(4)},
				{Keyword: "AI implementation guide", Category: models.KeywordLongTail, TargetPosition: intPtr(5)},
				{Keyword: "intelligent systems", Category: models.KeywordPrimary, TargetPosition: intPtr(3)},
			},
			Settings: &models.ProjectSettings{
				CheckFrequency: models.FrequencyDaily,
				Engines: []models.Engine{
					models.EngineChatGPT, models.EngineGemini, models.EngineClaude, models.EnginePerplexity,
				},
			},
		},
		{
			Name:        "E-commerce AI Tracking",
			Description: "Monitoring AI search presence for e-commerce platform",
			Domain:      "shopai.com",
			Brand:       "ShopAI",
			Competitors: []models.Competitor{
				{Name: "E-commerce Giant", Domain: "ecommerce-giant.com"},
			},
			Keywords: []models.ProjectKeyword{
				{Keyword: "e-commerce AI", Category: models.KeywordPrimary, TargetPosition: intPtr(2)},
				{Keyword: "shopping automation", Category: models.KeywordSecondary, TargetPosition: intPtr(4)},
				{Keyword: "AI product recommendations", Category: models.KeywordLongTail, TargetPosition: intPtr(3)},
			},
			Settings: &models.ProjectSettings{
				CheckFrequency: models.FrequencyWeekly,
				Engines:        []models.Engine{models.EngineChatGPT, models.EngineGemini},
			},
		},
	}
}

// SeedResult summarizes a demo seed.
type SeedResult struct {
	Projects []*models.Project
	Checks   int
}

// DemoSeeder fills an owner's account with demo projects and a completed
// check history. The generated observations depend only on the owner and
// the seed time, so two runs with the same inputs store the same data.
type DemoSeeder struct {
	projects ProjectService
	checks   repositories.CheckRepository
	logger   *zap.Logger
}

// NewDemoSeeder creates a demo seeder.
func NewDemoSeeder(projects ProjectService, checks repositories.CheckRepository, logger *zap.Logger) *DemoSeeder {
	return &DemoSeeder{
		projects: projects,
		checks:   checks,
		logger:   logger.Named("seed"),
	}
}

// Seed creates the demo projects for ownerID and one completed check per
// engine and keyword for each of the days ending at now. ctx must carry a
// database scope for ownerID. Seeding an owner that already has the demo
// project fails with apperrors.ErrConflict.
func (s *DemoSeeder) Seed(ctx context.Context, ownerID uuid.UUID, now time.Time, days int) (*SeedResult, error) {
	if days < 1 {
		return nil, validationError("days must be at least 1")
	}

	existing, err := s.projects.List(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	for _, p := range existing {
		if p.Name == DemoProjectName {
			return nil, fmt.Errorf("%w: %q already exists for owner %s", apperrors.ErrConflict, DemoProjectName, ownerID)
		}
	}

	result := &SeedResult{}
	for _, req := range demoProjects() {
		project, err := s.projects.Create(ctx, ownerID, req)
		if err != nil {
			return nil, fmt.Errorf("failed to create demo project %q: %w", req.Name, err)
		}
		result.Projects = append(result.Projects, project)
	}

	project := result.Projects[0]
	rng := rand.New(rand.NewPCG(binary.BigEndian.Uint64(ownerID[:8]), uint64(now.Unix())))

	for day := days - 1; day >= 0; day-- {
		at := now.UTC().AddDate(0, 0, -day)
		n, err := s.seedDay(ctx, project, at, rng)
		if err != nil {
			return nil, err
		}
		result.Checks += n
	}

	s.logger.Info("Demo data seeded",
		zap.String("owner_id", ownerID.String()),
		zap.String("project_id", project.ID.String()),
		zap.Int("projects", len(result.Projects)),
		zap.Int("checks", result.Checks))
	return result, nil
}

// seedDay stores and completes one day of checks for project.
func (s *DemoSeeder) seedDay(ctx context.Context, project *models.Project, at time.Time, rng *rand.Rand) (int, error) {
	var checks []*models.Check
	var observations []models.Observation
	for _, engine := range project.Settings.Engines {
		for _, k := range project.Keywords {
			checks = append(checks, &models.Check{
				ProjectID: project.ID,
				Engine:    engine,
				Keyword:   k.Keyword,
				CreatedAt: at,
			})
			observations = append(observations, demoObservation(rng, project, engine, k.Keyword))
		}
	}

	if err := s.checks.CreatePending(ctx, checks); err != nil {
		return 0, fmt.Errorf("failed to create demo checks: %w", err)
	}
	for i, c := range checks {
		if err := s.checks.Complete(ctx, c.ID, observations[i]); err != nil {
			return 0, fmt.Errorf("failed to complete demo check %s: %w", c.ID, err)
		}
	}
	return len(checks), nil
}

// demoObservation draws a plausible answer. Presence follows a 60-90% base
// rate scaled per engine.
func demoObservation(rng *rand.Rand, project *models.Project, engine models.Engine, keyword string) models.Observation {
	factor, ok := demoPresenceFactor[engine]
	if !ok {
		factor = 0.75
	}
	presence := rng.Float64() < (0.6+rng.Float64()*0.3)*factor
	position := rng.IntN(8) + 1
	citations := rng.IntN(4)
	snippet := fmt.Sprintf(demoSnippets[rng.IntN(len(demoSnippets))], keyword)

	obs := models.Observation{
		Presence: presence,
		Position: position,
		Metadata: models.CheckMetadata{
			QueryTimeMs:  int64(rng.IntN(1500) + 500),
			ResponseSize: rng.IntN(3000) + 1000,
			Model:        "demo",
			Attempts:     1,
		},
	}
	if !presence {
		return obs
	}

	obs.AnswerSnippet = snippet
	for i := 0; i < citations; i++ {
		obs.ObservedURLs = append(obs.ObservedURLs, models.ObservedURL{
			URL:      demoURLs[i],
			Domain:   project.Domain,
			Position: i + 1,
		})
	}
	if len(project.Competitors) > 0 && rng.IntN(3) == 0 {
		obs.Metadata.CompetitorsMentioned = []string{project.Competitors[rng.IntN(len(project.Competitors))].Name}
	}
	return obs
}
