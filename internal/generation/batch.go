// Package generation fans independent generation calls out in
// concurrency-bounded waves and keeps the persisted batch job's progress
// current as waves complete.
package generation

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"sceneforge-backend/internal/credits"
	"sceneforge-backend/internal/errs"
	"sceneforge-backend/internal/logger"
	"sceneforge-backend/internal/models"
	"sceneforge-backend/internal/providers"
)

// Store is the persistence surface the engine needs. Implemented by
// supabase.DatabaseClient.
type Store interface {
	CreateBatchJob(job *models.BatchJob) (*models.BatchJob, error)
	GetBatchJob(batchID uuid.UUID) (*models.BatchJob, error)
	UpdateBatchProgress(batchID uuid.UUID, completedCount, failedCount, progress int) error
	FinishBatchJob(batchID uuid.UUID, status string, errorDetails []models.BatchItemError) error
	ApplySceneMedia(sceneID uuid.UUID, targetType, url string) error
}

// AssetStore matches workflow.AssetStore; bytes-returning providers need it.
type AssetStore interface {
	Upload(projectID uuid.UUID, filename, contentType string, data []byte) (string, error)
}

type Notifier interface {
	Notify(userID uuid.UUID, kind, title, body string, payload map[string]interface{})
}

type BatchRequest struct {
	ProjectID uuid.UUID
	UserID    uuid.UUID
	BatchID   uuid.UUID
	Items     []models.BatchItemSpec
	Provider  string
	Model     string
	Config    models.BatchConfig
}

// Engine dispatches batches. Each submitted batch runs in its own goroutine;
// callers observe progress through the batch job row.
type Engine struct {
	store       Store
	assets      AssetStore
	notifier    Notifier
	registry    *providers.Registry
	poller      *providers.Poller
	charges     *credits.ChargeService
	concurrency int
	pollCfg     providers.PollConfig
	log         *logger.Logger

	mu      sync.Mutex
	cancels map[uuid.UUID]context.CancelFunc
}

func NewEngine(
	store Store,
	assets AssetStore,
	notifier Notifier,
	registry *providers.Registry,
	poller *providers.Poller,
	charges *credits.ChargeService,
	concurrency int,
	log *logger.Logger,
) *Engine {
	if concurrency < 1 {
		concurrency = 5
	}
	return &Engine{
		store:       store,
		assets:      assets,
		notifier:    notifier,
		registry:    registry,
		poller:      poller,
		charges:     charges,
		concurrency: concurrency,
		pollCfg:     providers.DefaultPollConfig(),
		log:         log,
	}
}

// Submit pre-checks the summed cost of all items once, persists the batch
// job and starts dispatching. Settlement happens per item as each completes.
func (e *Engine) Submit(req BatchRequest) (*models.BatchJob, error) {
	if len(req.Items) == 0 {
		return nil, fmt.Errorf("batch has no items")
	}

	providerName := req.Provider
	if providerName == "" {
		providerName = providers.ProviderModal
	}
	provider, err := e.registry.Get(providerName)
	if err != nil {
		return nil, err
	}

	perItemCost := credits.CostPerAttempt(models.TargetTypeImage, req.Config.Resolution)
	if !req.Config.UseOwnKey {
		if err := e.charges.Precheck(req.UserID, perItemCost*len(req.Items)); err != nil {
			return nil, err
		}
	}

	if req.BatchID == uuid.Nil {
		req.BatchID = uuid.New()
	}
	job, err := e.store.CreateBatchJob(&models.BatchJob{
		ID:           req.BatchID,
		ProjectID:    req.ProjectID,
		UserID:       req.UserID,
		TotalCount:   len(req.Items),
		ProviderUsed: provider.Name(),
		ModelUsed:    req.Model,
	})
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	e.mu.Lock()
	if e.cancels == nil {
		e.cancels = make(map[uuid.UUID]context.CancelFunc)
	}
	e.cancels[job.ID] = cancel
	e.mu.Unlock()

	go e.run(ctx, provider, perItemCost, req, job)

	return job, nil
}

// Cancel stops dispatching further waves of the batch. In-flight items
// finish; the remote side effects of already-submitted tasks are not
// recalled.
func (e *Engine) Cancel(batchID uuid.UUID) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	cancel, ok := e.cancels[batchID]
	if ok {
		cancel()
		delete(e.cancels, batchID)
	}
	return ok
}

func (e *Engine) run(ctx context.Context, provider providers.Provider, perItemCost int, req BatchRequest, job *models.BatchJob) {
	defer func() {
		e.mu.Lock()
		delete(e.cancels, job.ID)
		e.mu.Unlock()
	}()

	total := len(req.Items)
	completed := 0
	failed := 0
	var itemErrors []models.BatchItemError
	cancelled := false

	// Dispatched items must run to completion even after Cancel fires; the
	// cancel signal is consulted only at wave boundaries.
	itemCtx := context.WithoutCancel(ctx)

	for start := 0; start < total; start += e.concurrency {
		if ctx.Err() != nil {
			cancelled = true
			break
		}

		end := start + e.concurrency
		if end > total {
			end = total
		}
		wave := req.Items[start:end]

		var mu sync.Mutex
		g := new(errgroup.Group)
		for _, item := range wave {
			item := item
			g.Go(func() error {
				url, err := e.generateItem(itemCtx, provider, perItemCost, req, item)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					failed++
					itemErrors = append(itemErrors, models.BatchItemError{
						SceneID: item.SceneID,
						Error:   err.Error(),
					})
					e.log.Warn("batch item failed",
						"batch_id", job.ID, "scene_id", item.SceneID, "error", err)
					return nil
				}
				completed++
				e.log.Debug("batch item completed",
					"batch_id", job.ID, "scene_id", item.SceneID, "url", url)
				return nil
			})
		}
		_ = g.Wait()

		processed := completed + failed
		progress := (processed*100 + total/2) / total
		if err := e.store.UpdateBatchProgress(job.ID, completed, failed, progress); err != nil {
			e.log.Error("failed to persist batch progress", "batch_id", job.ID, "error", err)
		}
	}

	status := models.BatchStatusCompleted
	switch {
	case cancelled:
		status = models.BatchStatusCancelled
	case failed > 0:
		status = models.BatchStatusCompletedWithErrors
	}
	if err := e.store.FinishBatchJob(job.ID, status, itemErrors); err != nil {
		e.log.Error("failed to finish batch job", "batch_id", job.ID, "error", err)
	}

	job.Status = status
	job.CompletedCount = completed
	job.FailedCount = failed
	e.notifier.Notify(req.UserID, models.NotificationBatchCompleted,
		"Batch generation finished",
		fmt.Sprintf("%d of %d scenes generated", completed, total),
		map[string]interface{}{
			"batch_id":        job.ID.String(),
			"status":          status,
			"completed_count": completed,
			"failed_count":    failed,
		})
}

// generateItem runs one scene's generation through the charge wrapper and
// applies the produced image to the scene. The batch-level precheck already
// covered the summed cost, so the per-item charge skips its own.
func (e *Engine) generateItem(ctx context.Context, provider providers.Provider, perItemCost int, req BatchRequest, item models.BatchItemSpec) (string, error) {
	return e.charges.Charge(ctx, credits.ChargeRequest{
		UserID:       req.UserID,
		CreditCost:   perItemCost,
		Provider:     provider.Name(),
		ProjectID:    uuid.NullUUID{UUID: req.ProjectID, Valid: true},
		Description:  fmt.Sprintf("batch image generation for scene %s", item.SceneID),
		OwnKey:       req.Config.UseOwnKey,
		SkipPrecheck: true,
	}, func(ctx context.Context) (string, float64, error) {
		out, err := provider.Generate(ctx, providers.GenerateInput{
			Prompt:      item.Prompt,
			AspectRatio: req.Config.AspectRatio,
			Resolution:  req.Config.Resolution,
		})
		if err != nil {
			return "", 0, &errs.ProviderError{Provider: provider.Name(), Err: err}
		}

		url := out.ImmediateURL
		switch {
		case out.Async():
			result := e.poller.Poll(ctx, provider, out.TaskID, e.pollCfg)
			if !result.Success {
				return "", 0, &errs.ProviderError{Provider: provider.Name(), Err: result.Err}
			}
			url, err = provider.ExtractResult(result.Payload)
			if err != nil {
				return "", 0, &errs.ProviderError{Provider: provider.Name(), Err: err}
			}
		case url == "":
			filename := fmt.Sprintf("batch_%s_%s.png", req.BatchID.String(), item.SceneID.String())
			url, err = e.assets.Upload(req.ProjectID, filename, "image/png", out.ImageData)
			if err != nil {
				return "", 0, fmt.Errorf("failed to store generated image: %w", err)
			}
		}

		if err := e.store.ApplySceneMedia(item.SceneID, models.TargetTypeImage, url); err != nil {
			return "", 0, err
		}
		return url, out.RealCost, nil
	})
}
