package providers

import "strings"

// TaskStatus is the canonical remote task state shared by all providers.
type TaskStatus string

const (
	StatusPending    TaskStatus = "pending"
	StatusProcessing TaskStatus = "processing"
	StatusComplete   TaskStatus = "complete"
	StatusError      TaskStatus = "error"
	StatusCancelled  TaskStatus = "cancelled"
)

// IsTerminal reports whether polling should stop on this status.
func (s TaskStatus) IsTerminal() bool {
	return s == StatusComplete || s == StatusError || s == StatusCancelled
}

// statusTables maps each provider's raw status strings onto the canonical
// set. Unknown providers fall through to substring heuristics.
var statusTables = map[string]map[string]TaskStatus{
	ProviderFal: {
		"IN_QUEUE":    StatusPending,
		"IN_PROGRESS": StatusProcessing,
		"COMPLETED":   StatusComplete,
		"FAILED":      StatusError,
		"CANCELLED":   StatusCancelled,
	},
	ProviderKling: {
		"submitted":  StatusPending,
		"processing": StatusProcessing,
		"succeed":    StatusComplete,
		"failed":     StatusError,
	},
}

// NormalizeStatus maps a provider's raw status string to the canonical set.
func NormalizeStatus(provider, raw string) TaskStatus {
	if table, ok := statusTables[provider]; ok {
		if status, ok := table[raw]; ok {
			return status
		}
	}

	lower := strings.ToLower(raw)
	switch {
	case strings.Contains(lower, "success"), strings.Contains(lower, "complete"):
		return StatusComplete
	case strings.Contains(lower, "fail"), strings.Contains(lower, "error"):
		return StatusError
	case strings.Contains(lower, "cancel"):
		return StatusCancelled
	default:
		return StatusProcessing
	}
}
