package providers_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"sceneforge-backend/internal/providers"
)

func TestNormalizeStatus_FalTable(t *testing.T) {
	cases := map[string]providers.TaskStatus{
		"IN_QUEUE":    providers.StatusPending,
		"IN_PROGRESS": providers.StatusProcessing,
		"COMPLETED":   providers.StatusComplete,
		"FAILED":      providers.StatusError,
		"CANCELLED":   providers.StatusCancelled,
	}
	for raw, want := range cases {
		assert.Equal(t, want, providers.NormalizeStatus(providers.ProviderFal, raw), raw)
	}
}

func TestNormalizeStatus_KlingTable(t *testing.T) {
	cases := map[string]providers.TaskStatus{
		"submitted":  providers.StatusPending,
		"processing": providers.StatusProcessing,
		"succeed":    providers.StatusComplete,
		"failed":     providers.StatusError,
	}
	for raw, want := range cases {
		assert.Equal(t, want, providers.NormalizeStatus(providers.ProviderKling, raw), raw)
	}
}

func TestNormalizeStatus_SubstringFallback(t *testing.T) {
	cases := map[string]providers.TaskStatus{
		"Job Completed Successfully": providers.StatusComplete,
		"task_success":               providers.StatusComplete,
		"FAILURE":                    providers.StatusError,
		"internal error":             providers.StatusError,
		"user_cancelled":             providers.StatusCancelled,
		"warming up":                 providers.StatusProcessing,
		"":                           providers.StatusProcessing,
	}
	for raw, want := range cases {
		assert.Equal(t, want, providers.NormalizeStatus("some-new-provider", raw), raw)
	}
}

func TestNormalizeStatus_UnknownRawFallsThroughTable(t *testing.T) {
	// A raw value missing from the provider's table still normalizes via the
	// substring heuristics.
	assert.Equal(t, providers.StatusError, providers.NormalizeStatus(providers.ProviderKling, "task failed badly"))
}

func TestTaskStatus_IsTerminal(t *testing.T) {
	assert.True(t, providers.StatusComplete.IsTerminal())
	assert.True(t, providers.StatusError.IsTerminal())
	assert.True(t, providers.StatusCancelled.IsTerminal())
	assert.False(t, providers.StatusPending.IsTerminal())
	assert.False(t, providers.StatusProcessing.IsTerminal())
}
