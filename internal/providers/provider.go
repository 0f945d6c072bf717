package providers

import (
	"context"
	"encoding/json"
	"fmt"
)

// Provider names.
const (
	ProviderModal = "modal"
	ProviderFal   = "fal"
	ProviderKling = "kling"
)

type GenerateInput struct {
	Prompt       string
	ReferenceURL string // optional source image for edit-style generation
	AspectRatio  string
	Resolution   string
}

// GenerateOutput is either an immediate result (URL or raw image bytes the
// caller must upload) or an async task id to be polled.
type GenerateOutput struct {
	ImmediateURL string
	ImageData    []byte
	TaskID       string
	RealCost     float64
}

// Async reports whether the call produced a task id that must be polled.
func (o *GenerateOutput) Async() bool {
	return o.TaskID != ""
}

// TaskCheck is one status probe of a remote task: the provider's raw status
// string plus whatever result payload the provider returned with it.
type TaskCheck struct {
	RawStatus string
	Payload   json.RawMessage
}

// Provider is one generation backend. Adding a provider means adding one
// adapter and registering it, not growing a string-keyed branch tree.
type Provider interface {
	Name() string
	Generate(ctx context.Context, input GenerateInput) (*GenerateOutput, error)
	CheckStatus(ctx context.Context, taskID string) (*TaskCheck, error)
	// ExtractResult pulls the result URL out of a completed task's payload.
	// Providers nest it differently.
	ExtractResult(payload json.RawMessage) (string, error)
}

// Registry holds the configured provider adapters keyed by name.
type Registry struct {
	providers map[string]Provider
}

func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[string]Provider, len(providers))}
	for _, p := range providers {
		r.providers[p.Name()] = p
	}
	return r
}

func (r *Registry) Get(name string) (Provider, error) {
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("unknown provider %q", name)
	}
	return p, nil
}

// DefaultFor picks the default provider for a target type.
func (r *Registry) DefaultFor(targetType string) (Provider, error) {
	switch targetType {
	case "video":
		return r.Get(ProviderKling)
	default:
		return r.Get(ProviderModal)
	}
}
