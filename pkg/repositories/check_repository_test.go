//go:build integration

package repositories

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-visibility/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-visibility/pkg/models"
)

func pendingBatch(projectID uuid.UUID, engines []models.Engine, keywords []string) []*models.Check {
	var checks []*models.Check
	for _, e := range engines {
		for _, k := range keywords {
			checks = append(checks, &models.Check{ProjectID: projectID, Engine: e, Keyword: k})
		}
	}
	return checks
}

func TestCheckRepository_CreatePendingAndGet(t *testing.T) {
	tc := setupRepoTest(t)
	ctx, done := tc.ownerContext(tc.ownerID)
	defer done()

	project := tc.createProject(ctx, "Checks")
	checks := pendingBatch(project.ID,
		[]models.Engine{models.EngineChatGPT, models.EngineGemini},
		[]string{"crm software", "sales pipeline"})

	require.NoError(t, tc.checks.CreatePending(ctx, checks))

	for _, c := range checks {
		require.NotEqual(t, uuid.Nil, c.ID)
		got, err := tc.checks.Get(ctx, tc.ownerID, c.ID)
		require.NoError(t, err)
		assert.Equal(t, models.CheckPending, got.Status)
		assert.Equal(t, c.Engine, got.Engine)
		assert.Equal(t, c.Keyword, got.Keyword)
		assert.False(t, got.Presence)
		assert.Empty(t, got.ObservedURLs)
	}

	total, err := tc.checks.CountByProject(ctx, project.ID, CheckFilter{})
	require.NoError(t, err)
	assert.Equal(t, 4, total)
}

func TestCheckRepository_CreatePending_KeepsPresetCreatedAt(t *testing.T) {
	tc := setupRepoTest(t)
	ctx, done := tc.ownerContext(tc.ownerID)
	defer done()

	project := tc.createProject(ctx, "Backfill")
	past := time.Now().UTC().AddDate(0, 0, -5).Truncate(time.Second)
	checks := []*models.Check{
		{ProjectID: project.ID, Engine: models.EngineChatGPT, Keyword: "backdated", CreatedAt: past},
		{ProjectID: project.ID, Engine: models.EngineChatGPT, Keyword: "fresh"},
	}

	require.NoError(t, tc.checks.CreatePending(ctx, checks))

	backdated, err := tc.checks.Get(ctx, tc.ownerID, checks[0].ID)
	require.NoError(t, err)
	assert.True(t, past.Equal(backdated.CreatedAt.UTC()), "got %s", backdated.CreatedAt)

	fresh, err := tc.checks.Get(ctx, tc.ownerID, checks[1].ID)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), fresh.CreatedAt, time.Minute)
}

func TestCheckRepository_CreatePending_RollsBackOnError(t *testing.T) {
	tc := setupRepoTest(t)
	ctx, done := tc.ownerContext(tc.ownerID)
	defer done()

	project := tc.createProject(ctx, "Atomic")
	checks := []*models.Check{
		{ProjectID: project.ID, Engine: models.EngineChatGPT, Keyword: "ok"},
		{ProjectID: project.ID, Engine: models.Engine("bing"), Keyword: "rejected"},
	}

	require.Error(t, tc.checks.CreatePending(ctx, checks))

	total, err := tc.checks.CountByProject(ctx, project.ID, CheckFilter{})
	require.NoError(t, err)
	assert.Zero(t, total, "no check of a failed batch should be stored")
}

func TestCheckRepository_Get_OtherOwner(t *testing.T) {
	tc := setupRepoTest(t)
	ctx, done := tc.ownerContext(tc.ownerID)
	project := tc.createProject(ctx, "Mine")
	checks := pendingBatch(project.ID, []models.Engine{models.EngineClaude}, []string{"crm"})
	require.NoError(t, tc.checks.CreatePending(ctx, checks))
	done()

	stranger := uuid.New()
	strangerCtx, strangerDone := tc.ownerContext(stranger)
	defer strangerDone()

	_, err := tc.checks.Get(strangerCtx, stranger, checks[0].ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestCheckRepository_CompleteOnce(t *testing.T) {
	tc := setupRepoTest(t)
	ctx, done := tc.ownerContext(tc.ownerID)
	defer done()

	project := tc.createProject(ctx, "Complete")
	checks := pendingBatch(project.ID, []models.Engine{models.EngineChatGPT}, []string{"crm"})
	require.NoError(t, tc.checks.CreatePending(ctx, checks))

	sysCtx, sysDone := tc.systemContext()
	defer sysDone()

	obs := models.Observation{
		Presence:      true,
		Position:      2,
		AnswerSnippet: "Rival and Acme are popular.",
		ObservedURLs: []models.ObservedURL{
			{URL: "https://acme.com", Domain: "acme.com", Position: 1},
			{URL: "https://rival.io", Domain: "rival.io", Position: 2},
		},
		Metadata: models.CheckMetadata{Model: "gpt-4o-mini", Attempts: 1, CompetitorsMentioned: []string{"Rival"}},
	}
	require.NoError(t, tc.checks.Complete(sysCtx, checks[0].ID, obs))

	got, err := tc.checks.Get(ctx, tc.ownerID, checks[0].ID)
	require.NoError(t, err)
	assert.Equal(t, models.CheckCompleted, got.Status)
	assert.True(t, got.Presence)
	assert.Equal(t, 2, got.Position)
	assert.Equal(t, 2, got.CitationsCount)
	assert.Equal(t, obs.ObservedURLs, got.ObservedURLs)
	assert.Equal(t, obs.Metadata, got.Metadata)

	// Terminal checks never transition again.
	assert.ErrorIs(t, tc.checks.Complete(sysCtx, checks[0].ID, models.Observation{}), apperrors.ErrAlreadyResolved)
	assert.ErrorIs(t, tc.checks.Fail(sysCtx, checks[0].ID, "late failure"), apperrors.ErrAlreadyResolved)

	got, err = tc.checks.Get(ctx, tc.ownerID, checks[0].ID)
	require.NoError(t, err)
	assert.Equal(t, models.CheckCompleted, got.Status)
	assert.Empty(t, got.ErrorMessage)
}

func TestCheckRepository_CompleteAbsentBrandClearsRank(t *testing.T) {
	tc := setupRepoTest(t)
	ctx, done := tc.ownerContext(tc.ownerID)
	defer done()

	project := tc.createProject(ctx, "Absent")
	checks := pendingBatch(project.ID, []models.Engine{models.EngineGemini}, []string{"crm"})
	require.NoError(t, tc.checks.CreatePending(ctx, checks))

	obs := models.Observation{
		Presence:     false,
		Position:     4,
		ObservedURLs: []models.ObservedURL{{URL: "https://rival.io", Domain: "rival.io", Position: 1}},
	}
	require.NoError(t, tc.checks.Complete(ctx, checks[0].ID, obs))

	got, err := tc.checks.Get(ctx, tc.ownerID, checks[0].ID)
	require.NoError(t, err)
	assert.Zero(t, got.Position)
	assert.Zero(t, got.CitationsCount)
	assert.Empty(t, got.ObservedURLs)
}

func TestCheckRepository_Fail(t *testing.T) {
	tc := setupRepoTest(t)
	ctx, done := tc.ownerContext(tc.ownerID)
	defer done()

	project := tc.createProject(ctx, "Fail")
	checks := pendingBatch(project.ID, []models.Engine{models.EngineCopilot}, []string{"crm"})
	require.NoError(t, tc.checks.CreatePending(ctx, checks))

	require.NoError(t, tc.checks.Fail(ctx, checks[0].ID, "engine not configured"))

	got, err := tc.checks.Get(ctx, tc.ownerID, checks[0].ID)
	require.NoError(t, err)
	assert.Equal(t, models.CheckFailed, got.Status)
	assert.Equal(t, "engine not configured", got.ErrorMessage)
	assert.ErrorIs(t, tc.checks.Complete(ctx, checks[0].ID, models.Observation{Presence: true, Position: 1}), apperrors.ErrAlreadyResolved)
}

func TestCheckRepository_ListByProject_FilterAndPage(t *testing.T) {
	tc := setupRepoTest(t)
	ctx, done := tc.ownerContext(tc.ownerID)
	defer done()

	project := tc.createProject(ctx, "List")
	require.NoError(t, tc.checks.CreatePending(ctx, pendingBatch(project.ID,
		[]models.Engine{models.EngineChatGPT, models.EngineGemini},
		[]string{"crm software", "best crm", "100%_match"})))

	byEngine, err := tc.checks.ListByProject(ctx, project.ID, CheckFilter{Engine: models.EngineGemini})
	require.NoError(t, err)
	assert.Len(t, byEngine, 3)
	for _, c := range byEngine {
		assert.Equal(t, models.EngineGemini, c.Engine)
	}

	byKeyword, err := tc.checks.ListByProject(ctx, project.ID, CheckFilter{KeywordContains: "CRM"})
	require.NoError(t, err)
	assert.Len(t, byKeyword, 4)

	literal, err := tc.checks.CountByProject(ctx, project.ID, CheckFilter{KeywordContains: "%_"})
	require.NoError(t, err)
	assert.Equal(t, 2, literal, "wildcards in the filter match literally")

	page, err := tc.checks.ListByProject(ctx, project.ID, CheckFilter{Limit: 4, Offset: 4})
	require.NoError(t, err)
	assert.Len(t, page, 2)
}

func TestCheckRepository_ListForAggregation(t *testing.T) {
	tc := setupRepoTest(t)
	ctx, done := tc.ownerContext(tc.ownerID)
	defer done()

	kept := tc.createProject(ctx, "Kept")
	other := tc.createProject(ctx, "Other")
	dropped := tc.createProject(ctx, "Dropped")

	keptChecks := pendingBatch(kept.ID, []models.Engine{models.EngineChatGPT}, []string{"crm software", "invoicing"})
	require.NoError(t, tc.checks.CreatePending(ctx, keptChecks))
	require.NoError(t, tc.checks.CreatePending(ctx, pendingBatch(other.ID, []models.Engine{models.EngineClaude}, []string{"crm software"})))
	require.NoError(t, tc.checks.CreatePending(ctx, pendingBatch(dropped.ID, []models.Engine{models.EngineGemini}, []string{"crm software"})))
	require.NoError(t, tc.projects.SoftDelete(ctx, tc.ownerID, dropped.ID))

	require.NoError(t, tc.checks.Complete(ctx, keptChecks[0].ID, models.Observation{Presence: true, Position: 1}))

	since := time.Now().Add(-time.Hour)

	all, err := tc.checks.ListForAggregation(ctx, AggregationFilter{OwnerID: tc.ownerID, Since: since})
	require.NoError(t, err)
	assert.Len(t, all, 3, "inactive projects are excluded")

	one, err := tc.checks.ListForAggregation(ctx, AggregationFilter{OwnerID: tc.ownerID, ProjectID: &kept.ID, Since: since})
	require.NoError(t, err)
	assert.Len(t, one, 2)

	completed, err := tc.checks.ListForAggregation(ctx, AggregationFilter{OwnerID: tc.ownerID, Since: since, Status: models.CheckCompleted})
	require.NoError(t, err)
	require.Len(t, completed, 1)
	assert.Equal(t, keptChecks[0].ID, completed[0].ID)

	keyword, err := tc.checks.ListForAggregation(ctx, AggregationFilter{OwnerID: tc.ownerID, Since: since, KeywordContains: "crm"})
	require.NoError(t, err)
	assert.Len(t, keyword, 2)

	future, err := tc.checks.ListForAggregation(ctx, AggregationFilter{OwnerID: tc.ownerID, Since: time.Now().Add(time.Hour)})
	require.NoError(t, err)
	assert.Empty(t, future)

	foreign, err := tc.checks.ListForAggregation(ctx, AggregationFilter{OwnerID: uuid.New(), Since: since})
	require.NoError(t, err)
	assert.Empty(t, foreign)
}

func TestCheckRepository_FailStalePending(t *testing.T) {
	tc := setupRepoTest(t)
	ctx, done := tc.ownerContext(tc.ownerID)
	defer done()

	project := tc.createProject(ctx, "Stale")
	checks := pendingBatch(project.ID, []models.Engine{models.EngineChatGPT}, []string{"old", "older", "done"})
	require.NoError(t, tc.checks.CreatePending(ctx, checks))
	require.NoError(t, tc.checks.Complete(ctx, checks[2].ID, models.Observation{}))

	sysCtx, sysDone := tc.systemContext()
	defer sysDone()

	// A cutoff in the past leaves fresh checks alone.
	n, err := tc.checks.FailStalePending(sysCtx, time.Now().Add(-time.Hour), "abandoned")
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = tc.checks.FailStalePending(sysCtx, time.Now().Add(time.Minute), "abandoned: process restarted")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, int64(2))

	for _, c := range checks[:2] {
		got, err := tc.checks.Get(ctx, tc.ownerID, c.ID)
		require.NoError(t, err)
		assert.Equal(t, models.CheckFailed, got.Status)
		assert.Equal(t, "abandoned: process restarted", got.ErrorMessage)
	}

	got, err := tc.checks.Get(ctx, tc.ownerID, checks[2].ID)
	require.NoError(t, err)
	assert.Equal(t, models.CheckCompleted, got.Status)
}
