package engines

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-visibility/pkg/models"
)

func TestBuildPrompt(t *testing.T) {
	prompt := BuildPrompt("best crm for startups")
	assert.Contains(t, prompt, "Question: best crm for startups")
}

func TestQuerier_Success(t *testing.T) {
	var gotPrompt string
	client := &MockClient{
		ModelName: "gpt-4o-mini",
		AskFunc: func(ctx context.Context, prompt string) (*Answer, error) {
			gotPrompt = prompt
			return &Answer{Text: "Acme is the leader. https://acme.com/crm", Model: "gpt-4o-mini-2024-07-18"}, nil
		},
	}
	q := NewQuerier(models.EngineChatGPT, client, NewCircuitBreaker(DefaultCircuitBreakerConfig()), zap.NewNop())

	obs, err := q.Query(context.Background(), acmeRequest())

	require.NoError(t, err)
	assert.Equal(t, models.EngineChatGPT, q.Engine())
	assert.Equal(t, BuildPrompt("project tracking software"), gotPrompt)
	assert.True(t, obs.Presence)
	assert.Equal(t, 1, obs.Position)
	assert.Len(t, obs.ObservedURLs, 1)
	assert.Equal(t, "gpt-4o-mini-2024-07-18", obs.Metadata.Model)
	assert.Equal(t, len("Acme is the leader. https://acme.com/crm"), obs.Metadata.ResponseSize)
	assert.GreaterOrEqual(t, obs.Metadata.QueryTimeMs, int64(0))
}

func TestQuerier_FallsBackToClientModel(t *testing.T) {
	client := &MockClient{
		ModelName: "sonar",
		AskFunc: func(ctx context.Context, prompt string) (*Answer, error) {
			return &Answer{Text: "Nothing relevant."}, nil
		},
	}
	q := NewQuerier(models.EnginePerplexity, client, nil, zap.NewNop())

	obs, err := q.Query(context.Background(), acmeRequest())

	require.NoError(t, err)
	assert.False(t, obs.Presence)
	assert.Equal(t, "sonar", obs.Metadata.Model)
}

func TestQuerier_ClassifiesErrors(t *testing.T) {
	client := &MockClient{
		ModelName: "gpt-4o-mini",
		AskFunc: func(ctx context.Context, prompt string) (*Answer, error) {
			return nil, &openai.APIError{HTTPStatusCode: 429, Message: "slow down"}
		},
	}
	q := NewQuerier(models.EngineChatGPT, client, nil, zap.NewNop())

	_, err := q.Query(context.Background(), acmeRequest())

	var engErr *Error
	require.ErrorAs(t, err, &engErr)
	assert.Equal(t, ErrorTypeRateLimit, engErr.Type)
	assert.Equal(t, models.EngineChatGPT, engErr.Engine)
	assert.Equal(t, "gpt-4o-mini", engErr.Model)
	assert.True(t, engErr.Retryable)
}

func TestQuerier_EmptyAnswerIsRetryable(t *testing.T) {
	client := &MockClient{
		AskFunc: func(ctx context.Context, prompt string) (*Answer, error) {
			return &Answer{}, nil
		},
	}
	q := NewQuerier(models.EngineGemini, client, nil, zap.NewNop())

	_, err := q.Query(context.Background(), acmeRequest())

	assert.Equal(t, ErrorTypeEmpty, GetErrorType(err))
	assert.True(t, IsRetryable(err))
}

func TestQuerier_BreakerRejectsAfterFailures(t *testing.T) {
	calls := 0
	client := &MockClient{
		AskFunc: func(ctx context.Context, prompt string) (*Answer, error) {
			calls++
			return nil, errors.New("HTTP 503 service unavailable")
		},
	}
	breaker := NewCircuitBreaker(CircuitBreakerConfig{Threshold: 2, ResetAfter: time.Hour})
	q := NewQuerier(models.EngineClaude, client, breaker, zap.NewNop())

	for i := 0; i < 2; i++ {
		_, err := q.Query(context.Background(), acmeRequest())
		assert.Equal(t, ErrorTypeServer, GetErrorType(err))
	}

	_, err := q.Query(context.Background(), acmeRequest())
	assert.Equal(t, ErrorTypeUnavailable, GetErrorType(err))
	assert.False(t, IsRetryable(err))
	assert.Equal(t, 2, calls, "open circuit must not reach the provider")
}

func TestQuerier_CancellationDoesNotTripBreaker(t *testing.T) {
	client := &MockClient{
		AskFunc: func(ctx context.Context, prompt string) (*Answer, error) {
			return nil, ctx.Err()
		},
	}
	breaker := NewCircuitBreaker(CircuitBreakerConfig{Threshold: 1, ResetAfter: time.Hour})
	q := NewQuerier(models.EngineClaude, client, breaker, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := q.Query(ctx, acmeRequest())

	assert.Equal(t, ErrorTypeCanceled, GetErrorType(err))
	assert.Equal(t, CircuitClosed, breaker.State())
}
