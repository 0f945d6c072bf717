package providers_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"sceneforge-backend/internal/errs"
	"sceneforge-backend/internal/logger"
	"sceneforge-backend/internal/providers"
)

// scriptedProvider replays a fixed sequence of status checks.
type scriptedProvider struct {
	name   string
	checks []func() (*providers.TaskCheck, error)
	calls  int
}

func (p *scriptedProvider) Name() string { return p.name }

func (p *scriptedProvider) Generate(ctx context.Context, input providers.GenerateInput) (*providers.GenerateOutput, error) {
	return nil, errors.New("not used")
}

func (p *scriptedProvider) CheckStatus(ctx context.Context, taskID string) (*providers.TaskCheck, error) {
	i := p.calls
	if i >= len(p.checks) {
		i = len(p.checks) - 1
	}
	p.calls++
	return p.checks[i]()
}

func (p *scriptedProvider) ExtractResult(payload json.RawMessage) (string, error) {
	return "", errors.New("not used")
}

func check(rawStatus string) func() (*providers.TaskCheck, error) {
	return func() (*providers.TaskCheck, error) {
		return &providers.TaskCheck{RawStatus: rawStatus, Payload: json.RawMessage(`{"ok":true}`)}, nil
	}
}

func checkErr(err error) func() (*providers.TaskCheck, error) {
	return func() (*providers.TaskCheck, error) { return nil, err }
}

func fastConfig(maxAttempts int) providers.PollConfig {
	return providers.PollConfig{
		InitialDelay:      time.Millisecond,
		MaxDelay:          5 * time.Millisecond,
		BackoffMultiplier: 2,
		MaxAttempts:       maxAttempts,
		Timeout:           time.Second,
	}
}

func TestPoll_CompletesAfterProgress(t *testing.T) {
	provider := &scriptedProvider{
		name:   providers.ProviderFal,
		checks: []func() (*providers.TaskCheck, error){check("IN_QUEUE"), check("IN_PROGRESS"), check("COMPLETED")},
	}

	result := providers.NewPoller(logger.NewNop()).Poll(context.Background(), provider, "task-1", fastConfig(10))

	assert.True(t, result.Success)
	assert.Equal(t, providers.StatusComplete, result.Status)
	assert.Equal(t, 3, result.Attempts)
	assert.NoError(t, result.Err)
	assert.JSONEq(t, `{"ok":true}`, string(result.Payload))
}

func TestPoll_TerminalFailure(t *testing.T) {
	provider := &scriptedProvider{
		name:   providers.ProviderFal,
		checks: []func() (*providers.TaskCheck, error){check("IN_PROGRESS"), check("FAILED")},
	}

	result := providers.NewPoller(logger.NewNop()).Poll(context.Background(), provider, "task-2", fastConfig(10))

	assert.False(t, result.Success)
	assert.Equal(t, providers.StatusError, result.Status)
	assert.Error(t, result.Err)
}

func TestPoll_TransientErrorIsRetried(t *testing.T) {
	provider := &scriptedProvider{
		name: providers.ProviderFal,
		checks: []func() (*providers.TaskCheck, error){
			checkErr(fmt.Errorf("connection reset")),
			check("COMPLETED"),
		},
	}

	result := providers.NewPoller(logger.NewNop()).Poll(context.Background(), provider, "task-3", fastConfig(10))

	assert.True(t, result.Success)
	assert.Equal(t, 2, result.Attempts)
}

func TestPoll_AttemptBudgetExhausted(t *testing.T) {
	provider := &scriptedProvider{
		name:   providers.ProviderFal,
		checks: []func() (*providers.TaskCheck, error){check("IN_PROGRESS")},
	}

	result := providers.NewPoller(logger.NewNop()).Poll(context.Background(), provider, "task-4", fastConfig(3))

	assert.False(t, result.Success)
	assert.Equal(t, providers.StatusProcessing, result.Status)
	assert.Equal(t, 3, result.Attempts)

	var timeoutErr *errs.PollingTimeoutError
	require.ErrorAs(t, result.Err, &timeoutErr)
	assert.Equal(t, 3, timeoutErr.Attempts)
	assert.Equal(t, "task-4", timeoutErr.TaskID)
}

func TestPoll_LastAttemptError(t *testing.T) {
	boom := errors.New("boom")
	provider := &scriptedProvider{
		name:   providers.ProviderFal,
		checks: []func() (*providers.TaskCheck, error){checkErr(boom)},
	}

	result := providers.NewPoller(logger.NewNop()).Poll(context.Background(), provider, "task-5", fastConfig(2))

	assert.False(t, result.Success)
	assert.ErrorIs(t, result.Err, boom)
}

func TestPoll_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	provider := &scriptedProvider{
		name:   providers.ProviderFal,
		checks: []func() (*providers.TaskCheck, error){check("IN_PROGRESS")},
	}

	result := providers.NewPoller(logger.NewNop()).Poll(ctx, provider, "task-6", fastConfig(10))

	assert.False(t, result.Success)
	assert.Equal(t, providers.StatusCancelled, result.Status)
	assert.ErrorIs(t, result.Err, context.Canceled)
	assert.Zero(t, provider.calls)
}

func TestPoll_CancellationDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	provider := &scriptedProvider{
		name: providers.ProviderFal,
		checks: []func() (*providers.TaskCheck, error){
			func() (*providers.TaskCheck, error) {
				cancel()
				return &providers.TaskCheck{RawStatus: "IN_PROGRESS"}, nil
			},
		},
	}

	cfg := fastConfig(10)
	cfg.InitialDelay = time.Minute
	cfg.MaxDelay = time.Minute
	cfg.Timeout = time.Hour
	result := providers.NewPoller(logger.NewNop()).Poll(ctx, provider, "task-7", cfg)

	assert.Equal(t, providers.StatusCancelled, result.Status)
	assert.Equal(t, 1, result.Attempts)
}
