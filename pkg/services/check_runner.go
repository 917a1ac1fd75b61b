package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-visibility/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-visibility/pkg/database"
	"github.com/ekaya-inc/ekaya-visibility/pkg/engines"
	"github.com/ekaya-inc/ekaya-visibility/pkg/logging"
	"github.com/ekaya-inc/ekaya-visibility/pkg/models"
	"github.com/ekaya-inc/ekaya-visibility/pkg/repositories"
	"github.com/ekaya-inc/ekaya-visibility/pkg/retry"
)

const (
	// StaleCheckMessage is recorded on checks abandoned by a previous process.
	StaleCheckMessage = "abandoned: process restarted"
	// ShutdownCheckMessage is recorded on checks the runner gave up on while stopping.
	ShutdownCheckMessage = "interrupted: server shutting down"

	// persistTimeout bounds each terminal write, which must outlive a cancelled run.
	persistTimeout = 10 * time.Second
)

// QuerierSource resolves an engine to the querier that asks it.
type QuerierSource interface {
	Get(engine models.Engine) (engines.Querier, error)
}

// OverviewInvalidator drops cached dashboard results for an owner.
type OverviewInvalidator interface {
	InvalidateOwner(ctx context.Context, ownerID uuid.UUID)
}

// CheckRunnerConfig tunes check resolution.
type CheckRunnerConfig struct {
	DispatchDelay time.Duration
	QueryTimeout  time.Duration
	MaxRetries    int
	Concurrency   int
	StaleAfter    time.Duration
	// RetryInitialDelay overrides the first backoff delay; zero keeps the default.
	RetryInitialDelay time.Duration
}

// checkJob is the part of a check and its project that resolution needs.
type checkJob struct {
	checkID   uuid.UUID
	projectID uuid.UUID
	ownerID   uuid.UUID
	engine    models.Engine
	request   engines.QueryRequest
}

// CheckRunner resolves pending checks in the background. Every check moves
// from pending to exactly one of completed or failed, and a failing check
// never affects the others in its batch.
type CheckRunner struct {
	checks      repositories.CheckRepository
	queriers    QuerierSource
	scopes      database.ScopeProvider
	invalidator OverviewInvalidator
	pool        *engines.WorkerPool
	retryCfg    *retry.Config
	cfg         CheckRunnerConfig
	logger      *zap.Logger
	now         func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool
}

var _ CheckDispatcher = (*CheckRunner)(nil)

// NewCheckRunner creates a runner. invalidator may be nil.
func NewCheckRunner(
	checks repositories.CheckRepository,
	queriers QuerierSource,
	scopes database.ScopeProvider,
	invalidator OverviewInvalidator,
	cfg CheckRunnerConfig,
	logger *zap.Logger,
) *CheckRunner {
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = 60 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}

	retryCfg := retry.WithMaxRetries(cfg.MaxRetries)
	if cfg.RetryInitialDelay > 0 {
		retryCfg.InitialDelay = cfg.RetryInitialDelay
	}

	logger = logger.Named("check-runner")
	ctx, cancel := context.WithCancel(context.Background())

	return &CheckRunner{
		checks:      checks,
		queriers:    queriers,
		scopes:      scopes,
		invalidator: invalidator,
		pool:        engines.NewWorkerPool(engines.WorkerPoolConfig{MaxConcurrent: cfg.Concurrency}, logger),
		retryCfg:    retryCfg,
		cfg:         cfg,
		logger:      logger,
		now:         time.Now,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Dispatch schedules checks for resolution after the configured delay and
// returns immediately. The checks must already be stored as pending.
func (r *CheckRunner) Dispatch(project *models.Project, checks []*models.Check) {
	if len(checks) == 0 {
		return
	}

	jobs := make([]checkJob, 0, len(checks))
	competitors := append([]models.Competitor(nil), project.Competitors...)
	for _, c := range checks {
		jobs = append(jobs, checkJob{
			checkID:   c.ID,
			projectID: project.ID,
			ownerID:   project.OwnerID,
			engine:    c.Engine,
			request: engines.QueryRequest{
				Keyword:     c.Keyword,
				Brand:       project.Brand,
				Domain:      project.Domain,
				Competitors: competitors,
			},
		})
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		r.logger.Warn("Dispatch after shutdown, failing checks", zap.Int("checks", len(jobs)))
		for _, job := range jobs {
			r.fail(job, errors.New(ShutdownCheckMessage))
		}
		return
	}
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()
		r.runBatch(jobs)
	}()
}

func (r *CheckRunner) runBatch(jobs []checkJob) {
	if r.cfg.DispatchDelay > 0 {
		timer := time.NewTimer(r.cfg.DispatchDelay)
		select {
		case <-timer.C:
		case <-r.ctx.Done():
			timer.Stop()
			for _, job := range jobs {
				r.fail(job, errors.New(ShutdownCheckMessage))
			}
			return
		}
	}

	statuses := make([]models.CheckStatus, len(jobs))
	skipped := r.pool.Run(r.ctx, len(jobs), func(ctx context.Context, i int) {
		statuses[i], _ = r.resolve(ctx, jobs[i])
	})
	// Checks that never got a slot before shutdown never reached resolve.
	for _, i := range skipped {
		r.fail(jobs[i], errors.New(ShutdownCheckMessage))
		statuses[i] = models.CheckFailed
	}

	completed := 0
	for _, status := range statuses {
		if status == models.CheckCompleted {
			completed++
		}
	}

	if r.invalidator != nil && len(jobs) > 0 {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(r.ctx), persistTimeout)
		r.invalidator.InvalidateOwner(ctx, jobs[0].ownerID)
		cancel()
	}

	r.logger.Info("Check batch resolved",
		zap.String("project_id", jobs[0].projectID.String()),
		zap.Int("completed", completed),
		zap.Int("failed", len(jobs)-completed))
}

// resolve queries one engine for one check and records the outcome.
// It returns the terminal status written, and an error when the check failed.
func (r *CheckRunner) resolve(ctx context.Context, job checkJob) (models.CheckStatus, error) {
	querier, err := r.queriers.Get(job.engine)
	if err != nil {
		r.fail(job, err)
		return models.CheckFailed, err
	}

	attempts := 0
	var obs *models.Observation
	err = retry.DoIfRetryable(ctx, r.retryCfg, func() error {
		attempts++
		queryCtx, cancel := context.WithTimeout(ctx, r.cfg.QueryTimeout)
		defer cancel()

		o, err := querier.Query(queryCtx, job.request)
		if err != nil {
			r.logger.Debug("Engine attempt failed",
				zap.String("check_id", job.checkID.String()),
				zap.String("engine", string(job.engine)),
				zap.Int("attempt", attempts),
				zap.String("error", logging.SanitizeError(err)))
			return err
		}
		obs = o
		return nil
	})
	if err != nil {
		if r.ctx.Err() != nil {
			err = errors.New(ShutdownCheckMessage)
		}
		r.fail(job, err)
		return models.CheckFailed, err
	}

	obs.Metadata.Attempts = attempts
	if err := r.persist(func(ctx context.Context) error {
		return r.checks.Complete(ctx, job.checkID, *obs)
	}); err != nil {
		if errors.Is(err, apperrors.ErrAlreadyResolved) {
			r.logger.Debug("Check already resolved", zap.String("check_id", job.checkID.String()))
			return models.CheckCompleted, nil
		}
		r.logger.Error("Failed to record completed check",
			zap.String("check_id", job.checkID.String()),
			zap.Error(err))
		return models.CheckFailed, err
	}

	return models.CheckCompleted, nil
}

// fail records cause on the check. The stored message is sanitized.
func (r *CheckRunner) fail(job checkJob, cause error) {
	message := logging.ErrorMessage(cause)

	err := r.persist(func(ctx context.Context) error {
		return r.checks.Fail(ctx, job.checkID, message)
	})
	switch {
	case err == nil:
		r.logger.Warn("Check failed",
			zap.String("check_id", job.checkID.String()),
			zap.String("engine", string(job.engine)),
			zap.String("error", message))
	case errors.Is(err, apperrors.ErrAlreadyResolved):
		r.logger.Debug("Check already resolved", zap.String("check_id", job.checkID.String()))
	default:
		r.logger.Error("Failed to record failed check",
			zap.String("check_id", job.checkID.String()),
			zap.Error(err))
	}
}

// persist runs fn on a fresh system-scoped connection. The write is not tied
// to the runner's lifetime so shutdown can still record terminal states.
func (r *CheckRunner) persist(fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.ctx), persistTimeout)
	defer cancel()

	scoped, cleanup, err := r.scopes.WithSystemScope(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire system scope: %w", err)
	}
	defer cleanup()

	return fn(scoped)
}

// Start launches the periodic sweep for checks stuck in pending. It is a
// no-op when StaleAfter is not positive.
func (r *CheckRunner) Start() {
	if r.cfg.StaleAfter <= 0 {
		return
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(r.cfg.StaleAfter)
		defer ticker.Stop()

		for {
			select {
			case <-r.ctx.Done():
				return
			case <-ticker.C:
				if _, err := r.RecoverStale(r.ctx); err != nil && r.ctx.Err() == nil {
					r.logger.Error("Stale check sweep failed", zap.Error(err))
				}
			}
		}
	}()
}

// RecoverStale fails checks left pending by an earlier process, so every
// check eventually reaches a terminal state.
func (r *CheckRunner) RecoverStale(ctx context.Context) (int64, error) {
	scoped, cleanup, err := r.scopes.WithSystemScope(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to acquire system scope: %w", err)
	}
	defer cleanup()

	cutoff := r.now().Add(-r.cfg.StaleAfter)
	n, err := r.checks.FailStalePending(scoped, cutoff, StaleCheckMessage)
	if err != nil {
		return 0, err
	}

	if n > 0 {
		r.logger.Warn("Failed stale pending checks",
			zap.Int64("count", n),
			zap.Time("cutoff", cutoff))
	}
	return n, nil
}

// Shutdown stops accepting work, cancels in-flight queries and waits for
// every batch to record its outcome, or for ctx to end.
func (r *CheckRunner) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	r.cancel()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("Check runner stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("check runner shutdown: %w", ctx.Err())
	}
}
