package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"sceneforge-backend/internal/errs"
	"sceneforge-backend/internal/logger"
)

type PollConfig struct {
	InitialDelay      time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64
	MaxAttempts       int
	Timeout           time.Duration
}

// DefaultPollConfig suits image tasks that typically finish within a minute.
func DefaultPollConfig() PollConfig {
	return PollConfig{
		InitialDelay:      2 * time.Second,
		MaxDelay:          30 * time.Second,
		BackoffMultiplier: 1.5,
		MaxAttempts:       40,
		Timeout:           10 * time.Minute,
	}
}

type PollResult struct {
	Success  bool
	Status   TaskStatus
	Payload  json.RawMessage
	Err      error
	Attempts int
	Duration time.Duration
}

// Poller drives a remote task to a terminal state on an exponential backoff.
type Poller struct {
	log *logger.Logger
}

func NewPoller(log *logger.Logger) *Poller {
	return &Poller{log: log}
}

// Poll checks the task's status until it reaches a terminal state, the
// attempt budget runs out, or the wall-clock timeout elapses. A transient
// CheckStatus error is logged and retried; it only terminates polling on the
// final attempt. Cancellation via ctx stops local tracking only — the remote
// task keeps running.
func (p *Poller) Poll(ctx context.Context, provider Provider, taskID string, cfg PollConfig) PollResult {
	start := time.Now()
	delay := cfg.InitialDelay
	deadline := start.Add(cfg.Timeout)

	var lastErr error
	attempts := 0
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return PollResult{
				Status:   StatusCancelled,
				Err:      err,
				Attempts: attempt - 1,
				Duration: time.Since(start),
			}
		}

		attempts = attempt
		check, err := provider.CheckStatus(ctx, taskID)
		if err != nil {
			lastErr = err
			if attempt == cfg.MaxAttempts {
				break
			}
			p.log.Warn("status check failed, retrying",
				"provider", provider.Name(), "task_id", taskID,
				"attempt", attempt, "error", err)
		} else {
			status := NormalizeStatus(provider.Name(), check.RawStatus)
			if status.IsTerminal() {
				result := PollResult{
					Success:  status == StatusComplete,
					Status:   status,
					Payload:  check.Payload,
					Attempts: attempt,
					Duration: time.Since(start),
				}
				if status != StatusComplete {
					result.Err = fmt.Errorf("task %s ended %s (raw %q)", taskID, status, check.RawStatus)
				}
				return result
			}
			lastErr = nil
		}

		if time.Now().Add(delay).After(deadline) {
			break
		}

		select {
		case <-ctx.Done():
			return PollResult{
				Status:   StatusCancelled,
				Err:      ctx.Err(),
				Attempts: attempt,
				Duration: time.Since(start),
			}
		case <-time.After(delay):
		}

		delay = time.Duration(float64(delay) * cfg.BackoffMultiplier)
		if delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}

	err := lastErr
	if err == nil {
		err = &errs.PollingTimeoutError{
			Provider: provider.Name(),
			TaskID:   taskID,
			Attempts: attempts,
		}
	}
	return PollResult{
		Status:   StatusProcessing,
		Err:      err,
		Attempts: attempts,
		Duration: time.Since(start),
	}
}
