// Package engines queries AI answer engines and turns their answers into
// brand visibility observations.
//
// Each engine is reached through a provider Client (OpenAI-compatible chat,
// Anthropic messages or Gemini). A Querier wraps a client with the prompt,
// a circuit breaker and answer analysis so callers only deal in
// observations.
package engines

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-visibility/pkg/models"
)

// QueryRequest is one keyword to ask an engine about, along with the brand
// details the answer is analyzed against.
type QueryRequest struct {
	Keyword     string
	Brand       string
	Domain      string
	Competitors []models.Competitor
}

// Answer is a provider's raw reply.
type Answer struct {
	Text string
	// Citations are source URLs the provider attached outside the text.
	Citations []string
	Model     string
}

// Client sends a single prompt to a provider.
type Client interface {
	Ask(ctx context.Context, prompt string) (*Answer, error)
	Model() string
}

// Querier asks one engine about a keyword and reports what it saw.
type Querier interface {
	Engine() models.Engine
	Query(ctx context.Context, req QueryRequest) (*models.Observation, error)
}

const promptTemplate = `Answer the following question the way you would for someone searching for it.
Name the specific products, companies or services you would recommend, and list the sources you relied on as full URLs.

Question: %s`

// BuildPrompt renders the question sent to every engine. The brand is not
// named so the answer reflects what the engine would say unprompted.
func BuildPrompt(keyword string) string {
	return fmt.Sprintf(promptTemplate, keyword)
}

type engineQuerier struct {
	engine  models.Engine
	client  Client
	breaker *CircuitBreaker
	logger  *zap.Logger
}

var _ Querier = (*engineQuerier)(nil)

// NewQuerier wraps a provider client for engine. A nil breaker disables
// circuit breaking.
func NewQuerier(engine models.Engine, client Client, breaker *CircuitBreaker, logger *zap.Logger) Querier {
	return &engineQuerier{
		engine:  engine,
		client:  client,
		breaker: breaker,
		logger:  logger.Named("engine").With(zap.String("engine", string(engine))),
	}
}

func (q *engineQuerier) Engine() models.Engine {
	return q.engine
}

func (q *engineQuerier) Query(ctx context.Context, req QueryRequest) (*models.Observation, error) {
	if q.breaker != nil {
		if ok, err := q.breaker.Allow(); !ok {
			return nil, &Error{
				Type:    ErrorTypeUnavailable,
				Engine:  q.engine,
				Message: "engine temporarily unavailable",
				Cause:   err,
			}
		}
	}

	start := time.Now()
	answer, err := q.client.Ask(ctx, BuildPrompt(req.Keyword))
	elapsed := time.Since(start)
	if err == nil && (answer == nil || (answer.Text == "" && len(answer.Citations) == 0)) {
		err = &Error{Type: ErrorTypeEmpty, Message: "engine returned an empty answer", Retryable: true}
	}
	if err != nil {
		classified := ClassifyError(err)
		classified.Engine = q.engine
		if classified.Model == "" {
			classified.Model = q.client.Model()
		}
		// Cancellation says nothing about the engine's health.
		if q.breaker != nil && classified.Type != ErrorTypeCanceled {
			q.breaker.RecordFailure()
		}
		q.logger.Debug("Engine query failed",
			zap.String("keyword", req.Keyword),
			zap.Duration("elapsed", elapsed),
			zap.Error(classified))
		return nil, classified
	}
	if q.breaker != nil {
		q.breaker.RecordSuccess()
	}

	obs := Analyze(answer, req)
	obs.Metadata.QueryTimeMs = elapsed.Milliseconds()
	obs.Metadata.ResponseSize = len(answer.Text)
	obs.Metadata.Model = answer.Model
	if obs.Metadata.Model == "" {
		obs.Metadata.Model = q.client.Model()
	}

	q.logger.Debug("Engine query completed",
		zap.String("keyword", req.Keyword),
		zap.Bool("presence", obs.Presence),
		zap.Int("position", obs.Position),
		zap.Int("urls", len(obs.ObservedURLs)),
		zap.Duration("elapsed", elapsed))

	return &obs, nil
}
