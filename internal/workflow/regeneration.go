// Package workflow implements the regeneration request approval state
// machine:
//
//	pending -> approved | rejected
//	approved <-> generating (one in-flight attempt at a time)
//	generating -> selecting (once attempts are exhausted)
//	selecting -> awaiting_final
//	awaiting_final -> completed | rejected
//
// Credits are escrowed by the approver for the full attempt budget at
// approval time; consuming attempts never debits the requester.
package workflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"sceneforge-backend/internal/credits"
	"sceneforge-backend/internal/errs"
	"sceneforge-backend/internal/logger"
	"sceneforge-backend/internal/models"
	"sceneforge-backend/internal/providers"
)

// Store is the persistence surface the workflow drives. Implemented by
// supabase.DatabaseClient.
type Store interface {
	CreateRegenerationRequest(req *models.RegenerationRequest) (*models.RegenerationRequest, error)
	GetRegenerationRequest(id uuid.UUID) (*models.RegenerationRequest, error)
	ListRegenerationRequests(projectID uuid.UUID, statuses []string, requesterID *uuid.UUID) ([]models.RegenerationRequest, error)
	HasPendingRequest(targetID uuid.UUID, targetType string) (bool, error)
	TransitionRequestStatus(id uuid.UUID, from, to string) error
	ApproveRequestWithEscrow(requestID, adminID uuid.UUID, note string, totalCost int, entry models.TransactionEntry) (int, error)
	RejectRegenerationRequest(id, adminID uuid.UUID, note string) error
	AppendGeneratedURL(id uuid.UUID, url, newStatus string) error
	SelectResult(id uuid.UUID, url string) error
	FinalizeRequest(id, reviewerID uuid.UUID, note, terminalStatus string) error
	DeleteRegenerationRequest(id uuid.UUID) error

	GetProjectRole(userID, projectID uuid.UUID) (models.Role, error)
	ListProjectAdmins(projectID uuid.UUID) ([]uuid.UUID, error)
	GetScene(sceneID uuid.UUID) (*models.Scene, error)
	GetProjectScenes(projectID uuid.UUID, sceneIDs []uuid.UUID) ([]models.Scene, error)
	ApplySceneMedia(sceneID uuid.UUID, targetType, url string) error
}

// AssetStore stores and deletes generated media. Deletion is best-effort.
type AssetStore interface {
	Upload(projectID uuid.UUID, filename, contentType string, data []byte) (string, error)
	Delete(url string) error
}

// Notifier delivers fire-and-forget user notifications.
type Notifier interface {
	Notify(userID uuid.UUID, kind, title, body string, payload map[string]interface{})
	NotifyAll(userIDs []uuid.UUID, kind, title, body string, payload map[string]interface{})
}

type RegenerationService struct {
	store    Store
	assets   AssetStore
	notifier Notifier
	registry *providers.Registry
	poller   *providers.Poller
	charges  *credits.ChargeService
	pollCfg  providers.PollConfig
	log      *logger.Logger
}

func NewRegenerationService(
	store Store,
	assets AssetStore,
	notifier Notifier,
	registry *providers.Registry,
	poller *providers.Poller,
	charges *credits.ChargeService,
	log *logger.Logger,
) *RegenerationService {
	return &RegenerationService{
		store:    store,
		assets:   assets,
		notifier: notifier,
		registry: registry,
		poller:   poller,
		charges:  charges,
		pollCfg:  providers.DefaultPollConfig(),
		log:      log,
	}
}

type CreateResult struct {
	Requests []models.RegenerationRequest
	Created  int
	Skipped  int
}

// Create files one pending request per target scene. Targets that already
// have a pending request of the same type are skipped, as are ids that are
// not scenes of the project. Admins are barred: they regenerate directly and
// must not file requests they could approve themselves.
func (s *RegenerationService) Create(requester, projectID uuid.UUID, targetType string, sceneIDs []uuid.UUID, reason string) (*CreateResult, error) {
	role, err := s.store.GetProjectRole(requester, projectID)
	if err != nil {
		return nil, err
	}
	if role.CanApproveRequests() {
		return nil, &errs.AuthorizationError{Capability: "request-regeneration (admins regenerate directly)"}
	}
	if !role.CanRequestRegeneration() {
		return nil, &errs.AuthorizationError{Capability: "request-regeneration"}
	}

	scenes, err := s.store.GetProjectScenes(projectID, sceneIDs)
	if err != nil {
		return nil, err
	}
	byID := make(map[uuid.UUID]models.Scene, len(scenes))
	for _, scene := range scenes {
		byID[scene.ID] = scene
	}

	var batchID uuid.NullUUID
	if len(sceneIDs) > 1 {
		batchID = uuid.NullUUID{UUID: uuid.New(), Valid: true}
	}

	result := &CreateResult{}
	for _, sceneID := range sceneIDs {
		scene, ok := byID[sceneID]
		if !ok {
			result.Skipped++
			continue
		}

		pending, err := s.store.HasPendingRequest(sceneID, targetType)
		if err != nil {
			return nil, err
		}
		if pending {
			result.Skipped++
			continue
		}

		created, err := s.store.CreateRegenerationRequest(&models.RegenerationRequest{
			ID:          uuid.New(),
			ProjectID:   projectID,
			RequesterID: requester,
			TargetType:  targetType,
			TargetID:    sceneID,
			TargetName:  scene.Name,
			Reason:      reason,
			BatchID:     batchID,
			MaxAttempts: models.DefaultMaxAttempts,
		})
		if err != nil {
			return nil, err
		}
		result.Requests = append(result.Requests, *created)
		result.Created++
	}

	if result.Created > 0 {
		admins, err := s.store.ListProjectAdmins(projectID)
		if err != nil {
			s.log.Warn("failed to list admins for notification", "project_id", projectID, "error", err)
		} else {
			s.notifier.NotifyAll(admins, models.NotificationRegenerationRequested,
				"Regeneration requested",
				fmt.Sprintf("%d regeneration request(s) await review", result.Created),
				map[string]interface{}{"project_id": projectID.String(), "count": result.Created})
		}
	}

	return result, nil
}

type ApproveResult struct {
	Request          *models.RegenerationRequest
	CreditsPaid      int
	CreditsRemaining int
}

// Approve escrows costPerAttempt x maxAttempts from the admin's ledger and
// moves the request to approved. The escrow debit and the status transition
// are one atomic unit: insufficient balance leaves the request untouched.
func (s *RegenerationService) Approve(admin, requestID uuid.UUID, note string) (*ApproveResult, error) {
	req, err := s.authorizeReview(admin, requestID)
	if err != nil {
		return nil, err
	}
	if req.Status != models.RequestStatusPending {
		return nil, &errs.InvalidTransitionError{
			Operation:      "approve",
			CurrentStatus:  req.Status,
			RequiredStatus: models.RequestStatusPending,
		}
	}

	totalCost := credits.CostPerAttempt(req.TargetType, "") * req.MaxAttempts

	// Default-funds the admin's ledger on first access, so a fresh approver
	// escrows against the signup grant instead of hitting a missing row.
	if err := s.charges.Precheck(admin, totalCost); err != nil {
		return nil, err
	}

	remaining, err := s.store.ApproveRequestWithEscrow(requestID, admin, note, totalCost, models.TransactionEntry{
		Type:        models.TransactionTypeRegenerationHold,
		ProjectID:   uuid.NullUUID{UUID: req.ProjectID, Valid: true},
		Description: fmt.Sprintf("escrow for %s regeneration of %s (%d attempts)", req.TargetType, req.TargetName, req.MaxAttempts),
	})
	if errors.Is(err, errs.ErrStaleStatus) {
		return nil, &errs.InvalidTransitionError{
			Operation:      "approve",
			CurrentStatus:  "changed",
			RequiredStatus: models.RequestStatusPending,
		}
	}
	if err != nil {
		return nil, err
	}

	s.notifier.Notify(req.RequesterID, models.NotificationRegenerationApproved,
		"Regeneration approved",
		fmt.Sprintf("Your regeneration request for %s was approved", req.TargetName),
		map[string]interface{}{"request_id": requestID.String(), "credits_paid": totalCost})

	updated, err := s.store.GetRegenerationRequest(requestID)
	if err != nil {
		return nil, err
	}
	return &ApproveResult{
		Request:          updated,
		CreditsPaid:      totalCost,
		CreditsRemaining: remaining,
	}, nil
}

// Reject declines a pending request. No credit movement.
func (s *RegenerationService) Reject(admin, requestID uuid.UUID, note string) (*models.RegenerationRequest, error) {
	req, err := s.authorizeReview(admin, requestID)
	if err != nil {
		return nil, err
	}
	if req.Status != models.RequestStatusPending {
		return nil, &errs.InvalidTransitionError{
			Operation:      "reject",
			CurrentStatus:  req.Status,
			RequiredStatus: models.RequestStatusPending,
		}
	}

	if err := s.store.RejectRegenerationRequest(requestID, admin, note); err != nil {
		return nil, s.mapStale(err, "reject", models.RequestStatusPending)
	}

	s.notifier.Notify(req.RequesterID, models.NotificationRegenerationRejected,
		"Regeneration rejected",
		fmt.Sprintf("Your regeneration request for %s was rejected", req.TargetName),
		map[string]interface{}{"request_id": requestID.String(), "note": note})

	return s.store.GetRegenerationRequest(requestID)
}

// ConsumeAttempt runs one generation attempt. The transition into generating
// is a compare-and-transition, so two concurrent calls can never both
// consume an attempt. A failed generation reverts to approved without
// consuming the attempt; only a successful result counts against the budget.
func (s *RegenerationService) ConsumeAttempt(ctx context.Context, requester, requestID uuid.UUID) (*models.RegenerationRequest, error) {
	req, err := s.store.GetRegenerationRequest(requestID)
	if err != nil {
		return nil, err
	}
	if req.RequesterID != requester {
		return nil, &errs.AuthorizationError{Capability: "consume-attempt (requester only)"}
	}
	if req.Status != models.RequestStatusApproved && req.Status != models.RequestStatusGenerating {
		return nil, &errs.InvalidTransitionError{
			Operation:      "regenerate",
			CurrentStatus:  req.Status,
			RequiredStatus: models.RequestStatusApproved,
		}
	}
	if req.AttemptsUsed >= req.MaxAttempts {
		return nil, &errs.InvalidTransitionError{
			Operation:      "regenerate",
			CurrentStatus:  req.Status,
			RequiredStatus: models.RequestStatusSelecting,
		}
	}
	if req.CreditsPaid <= 0 {
		return nil, &errs.InsufficientCreditsError{Required: 1, Balance: 0}
	}

	// Claim the in-flight slot. A concurrent caller loses here and sees
	// "already generating".
	if err := s.store.TransitionRequestStatus(requestID, models.RequestStatusApproved, models.RequestStatusGenerating); err != nil {
		if errors.Is(err, errs.ErrStaleStatus) {
			return nil, &errs.InvalidTransitionError{
				Operation:      "regenerate",
				CurrentStatus:  models.RequestStatusGenerating,
				RequiredStatus: models.RequestStatusApproved,
			}
		}
		return nil, err
	}

	url, err := s.runGeneration(ctx, req)
	if err != nil {
		// Failures are free retries: revert and leave the attempt budget
		// untouched.
		if revertErr := s.store.TransitionRequestStatus(requestID, models.RequestStatusGenerating, models.RequestStatusApproved); revertErr != nil {
			s.log.Error("failed to revert request after generation failure",
				"request_id", requestID, "error", revertErr)
		}
		return nil, err
	}

	newStatus := models.RequestStatusApproved
	if req.AttemptsUsed+1 >= req.MaxAttempts {
		newStatus = models.RequestStatusSelecting
	}
	if err := s.store.AppendGeneratedURL(requestID, url, newStatus); err != nil {
		return nil, err
	}

	if newStatus == models.RequestStatusSelecting {
		s.notifier.Notify(req.RequesterID, models.NotificationSelectionReady,
			"All attempts used",
			fmt.Sprintf("Pick your favourite result for %s", req.TargetName),
			map[string]interface{}{"request_id": requestID.String()})
	}

	return s.store.GetRegenerationRequest(requestID)
}

// runGeneration invokes the provider through the charge wrapper in prepaid
// mode: real cost lands on the approver's ledger, no further credit debit.
func (s *RegenerationService) runGeneration(ctx context.Context, req *models.RegenerationRequest) (string, error) {
	provider, err := s.registry.DefaultFor(req.TargetType)
	if err != nil {
		return "", err
	}

	scene, err := s.store.GetScene(req.TargetID)
	if err != nil {
		return "", err
	}

	costBearer := req.RequesterID
	if req.ReviewedBy.Valid {
		costBearer = req.ReviewedBy.UUID
	}

	return s.charges.Charge(ctx, credits.ChargeRequest{
		UserID:      req.RequesterID,
		Provider:    provider.Name(),
		ProjectID:   uuid.NullUUID{UUID: req.ProjectID, Valid: true},
		Description: fmt.Sprintf("regeneration attempt %d/%d for %s", req.AttemptsUsed+1, req.MaxAttempts, req.TargetName),
		Prepaid:     true,
		CostBearer:  costBearer,
	}, func(ctx context.Context) (string, float64, error) {
		return s.generate(ctx, provider, req, scene)
	})
}

func (s *RegenerationService) generate(ctx context.Context, provider providers.Provider, req *models.RegenerationRequest, scene *models.Scene) (string, float64, error) {
	input := providers.GenerateInput{
		Prompt:      scene.Prompt,
		AspectRatio: "16:9",
	}
	if req.TargetType == models.TargetTypeVideo && scene.ImageURL.Valid {
		input.ReferenceURL = scene.ImageURL.String
	}

	out, err := provider.Generate(ctx, input)
	if err != nil {
		return "", 0, &errs.ProviderError{Provider: provider.Name(), Err: err}
	}

	if out.Async() {
		result := s.poller.Poll(ctx, provider, out.TaskID, s.pollCfg)
		if !result.Success {
			return "", 0, &errs.ProviderError{Provider: provider.Name(), Err: result.Err}
		}
		url, err := provider.ExtractResult(result.Payload)
		if err != nil {
			return "", 0, &errs.ProviderError{Provider: provider.Name(), Err: err}
		}
		return url, out.RealCost, nil
	}

	if out.ImmediateURL != "" {
		return out.ImmediateURL, out.RealCost, nil
	}

	filename := fmt.Sprintf("regen_%s_%d.png", req.ID.String(), req.AttemptsUsed+1)
	url, err := s.assets.Upload(req.ProjectID, filename, "image/png", out.ImageData)
	if err != nil {
		return "", 0, &errs.ProviderError{Provider: provider.Name(), Err: err}
	}
	return url, out.RealCost, nil
}

// Select records the requester's chosen result and moves the request to
// awaiting_final. Early selection while approved or generating is permitted;
// unused attempts are forfeited, not refunded.
func (s *RegenerationService) Select(requester, requestID uuid.UUID, selectedURL string) (*models.RegenerationRequest, error) {
	req, err := s.store.GetRegenerationRequest(requestID)
	if err != nil {
		return nil, err
	}
	if req.RequesterID != requester {
		return nil, &errs.AuthorizationError{Capability: "select-result (requester only)"}
	}
	if !req.HasGeneratedURL(selectedURL) {
		return nil, &errs.InvalidTransitionError{
			Operation:      "select",
			CurrentStatus:  req.Status,
			RequiredStatus: "a url from generated_urls",
		}
	}

	if err := s.store.SelectResult(requestID, selectedURL); err != nil {
		return nil, s.mapStale(err, "select", models.RequestStatusSelecting)
	}

	admins, err := s.store.ListProjectAdmins(req.ProjectID)
	if err != nil {
		s.log.Warn("failed to list admins for notification", "project_id", req.ProjectID, "error", err)
	} else {
		s.notifier.NotifyAll(admins, models.NotificationAwaitingFinalReview,
			"Selection awaiting final review",
			fmt.Sprintf("A result was selected for %s", req.TargetName),
			map[string]interface{}{"request_id": requestID.String()})
	}

	return s.store.GetRegenerationRequest(requestID)
}

// FinalApprove applies the selected url to the target scene, deletes the
// unused results from the asset store (best-effort) and completes the
// request.
func (s *RegenerationService) FinalApprove(admin, requestID uuid.UUID, note string) (*models.RegenerationRequest, error) {
	req, err := s.authorizeReview(admin, requestID)
	if err != nil {
		return nil, err
	}
	if req.Status != models.RequestStatusAwaitingFinal || !req.SelectedURL.Valid {
		return nil, &errs.InvalidTransitionError{
			Operation:      "final_approve",
			CurrentStatus:  req.Status,
			RequiredStatus: models.RequestStatusAwaitingFinal,
		}
	}

	if err := s.store.ApplySceneMedia(req.TargetID, req.TargetType, req.SelectedURL.String); err != nil {
		return nil, err
	}

	if err := s.store.FinalizeRequest(requestID, admin, note, models.RequestStatusCompleted); err != nil {
		return nil, s.mapStale(err, "final_approve", models.RequestStatusAwaitingFinal)
	}

	for _, url := range req.GeneratedURLs {
		if url == req.SelectedURL.String {
			continue
		}
		if err := s.assets.Delete(url); err != nil {
			s.log.Warn("failed to delete unused result", "url", url, "error", err)
		}
	}

	s.notifier.Notify(req.RequesterID, models.NotificationRegenerationCompleted,
		"Regeneration completed",
		fmt.Sprintf("Your selected result for %s is now live", req.TargetName),
		map[string]interface{}{"request_id": requestID.String(), "selected_url": req.SelectedURL.String})

	return s.store.GetRegenerationRequest(requestID)
}

// FinalReject discards every generated result and rejects the request.
func (s *RegenerationService) FinalReject(admin, requestID uuid.UUID, note string) (*models.RegenerationRequest, error) {
	req, err := s.authorizeReview(admin, requestID)
	if err != nil {
		return nil, err
	}
	if req.Status != models.RequestStatusAwaitingFinal {
		return nil, &errs.InvalidTransitionError{
			Operation:      "final_reject",
			CurrentStatus:  req.Status,
			RequiredStatus: models.RequestStatusAwaitingFinal,
		}
	}

	if err := s.store.FinalizeRequest(requestID, admin, note, models.RequestStatusRejected); err != nil {
		return nil, s.mapStale(err, "final_reject", models.RequestStatusAwaitingFinal)
	}

	for _, url := range req.GeneratedURLs {
		if err := s.assets.Delete(url); err != nil {
			s.log.Warn("failed to delete rejected result", "url", url, "error", err)
		}
	}

	s.notifier.Notify(req.RequesterID, models.NotificationRegenerationRejected,
		"Regeneration rejected",
		fmt.Sprintf("Your selection for %s was not applied", req.TargetName),
		map[string]interface{}{"request_id": requestID.String(), "note": note})

	return s.store.GetRegenerationRequest(requestID)
}

// Cancel hard-deletes a pending request. Allowed for the requester and for
// project admins.
func (s *RegenerationService) Cancel(user, requestID uuid.UUID) error {
	req, err := s.store.GetRegenerationRequest(requestID)
	if err != nil {
		return err
	}

	if req.RequesterID != user {
		role, err := s.store.GetProjectRole(user, req.ProjectID)
		if err != nil {
			return err
		}
		if !role.CanApproveRequests() {
			return &errs.AuthorizationError{Capability: "cancel-request"}
		}
	}

	if err := s.store.DeleteRegenerationRequest(requestID); err != nil {
		return s.mapStale(err, "cancel", models.RequestStatusPending)
	}
	return nil
}

// List returns the project's requests: admins see everything, other members
// only their own.
func (s *RegenerationService) List(user, projectID uuid.UUID, statuses []string) ([]models.RegenerationRequest, error) {
	role, err := s.store.GetProjectRole(user, projectID)
	if err != nil {
		return nil, err
	}
	if !role.IsMember() {
		return nil, &errs.AuthorizationError{Capability: "project membership"}
	}

	var requesterFilter *uuid.UUID
	if !role.CanApproveRequests() {
		requesterFilter = &user
	}
	return s.store.ListRegenerationRequests(projectID, statuses, requesterFilter)
}

func (s *RegenerationService) authorizeReview(admin, requestID uuid.UUID) (*models.RegenerationRequest, error) {
	req, err := s.store.GetRegenerationRequest(requestID)
	if err != nil {
		return nil, err
	}
	role, err := s.store.GetProjectRole(admin, req.ProjectID)
	if err != nil {
		return nil, err
	}
	if !role.CanApproveRequests() {
		return nil, &errs.AuthorizationError{Capability: "approve-requests"}
	}
	return req, nil
}

func (s *RegenerationService) mapStale(err error, operation, required string) error {
	if errors.Is(err, errs.ErrStaleStatus) {
		return &errs.InvalidTransitionError{
			Operation:      operation,
			CurrentStatus:  "changed",
			RequiredStatus: required,
		}
	}
	return err
}
