package workflow_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"sceneforge-backend/internal/credits"
	"sceneforge-backend/internal/errs"
	"sceneforge-backend/internal/logger"
	"sceneforge-backend/internal/models"
	"sceneforge-backend/internal/providers"
	"sceneforge-backend/internal/workflow"
)

// fakeStore mirrors the database client's compare-and-transition semantics
// behind a mutex, so the concurrency guarantees under test are the real ones.
type fakeStore struct {
	mu       sync.Mutex
	requests map[uuid.UUID]*models.RegenerationRequest
	roles    map[uuid.UUID]models.Role
	scenes   map[uuid.UUID]*models.Scene
	balances map[uuid.UUID]int
	realCost map[uuid.UUID]float64
	entries  []models.TransactionEntry
	applied  map[uuid.UUID]map[string]string // sceneID -> targetType -> url
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		requests: make(map[uuid.UUID]*models.RegenerationRequest),
		roles:    make(map[uuid.UUID]models.Role),
		scenes:   make(map[uuid.UUID]*models.Scene),
		balances: make(map[uuid.UUID]int),
		realCost: make(map[uuid.UUID]float64),
		applied:  make(map[uuid.UUID]map[string]string),
	}
}

func (s *fakeStore) CreateRegenerationRequest(req *models.RegenerationRequest) (*models.RegenerationRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := *req
	stored.Status = models.RequestStatusPending
	s.requests[req.ID] = &stored
	copied := stored
	return &copied, nil
}

func (s *fakeStore) GetRegenerationRequest(id uuid.UUID) (*models.RegenerationRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	copied := *req
	copied.GeneratedURLs = append([]string(nil), req.GeneratedURLs...)
	return &copied, nil
}

func (s *fakeStore) ListRegenerationRequests(projectID uuid.UUID, statuses []string, requesterID *uuid.UUID) ([]models.RegenerationRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.RegenerationRequest
	for _, req := range s.requests {
		if req.ProjectID != projectID {
			continue
		}
		if requesterID != nil && req.RequesterID != *requesterID {
			continue
		}
		if len(statuses) > 0 {
			match := false
			for _, st := range statuses {
				if req.Status == st {
					match = true
					break
				}
			}
			if !match {
				continue
			}
		}
		out = append(out, *req)
	}
	return out, nil
}

func (s *fakeStore) HasPendingRequest(targetID uuid.UUID, targetType string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, req := range s.requests {
		if req.TargetID == targetID && req.TargetType == targetType && req.Status == models.RequestStatusPending {
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeStore) TransitionRequestStatus(id uuid.UUID, from, to string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[id]
	if !ok {
		return errs.ErrNotFound
	}
	if req.Status != from {
		return errs.ErrStaleStatus
	}
	req.Status = to
	return nil
}

func (s *fakeStore) ApproveRequestWithEscrow(requestID, adminID uuid.UUID, note string, totalCost int, entry models.TransactionEntry) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[requestID]
	if !ok {
		return 0, errs.ErrNotFound
	}
	if req.Status != models.RequestStatusPending {
		return 0, errs.ErrStaleStatus
	}
	balance := s.balances[adminID]
	if balance < totalCost {
		return 0, &errs.InsufficientCreditsError{Required: totalCost, Balance: balance}
	}
	s.balances[adminID] = balance - totalCost
	s.entries = append(s.entries, entry)
	req.Status = models.RequestStatusApproved
	req.CreditsPaid = totalCost
	req.ReviewedBy = uuid.NullUUID{UUID: adminID, Valid: true}
	return s.balances[adminID], nil
}

func (s *fakeStore) RejectRegenerationRequest(id, adminID uuid.UUID, note string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[id]
	if !ok {
		return errs.ErrNotFound
	}
	if req.Status != models.RequestStatusPending {
		return errs.ErrStaleStatus
	}
	req.Status = models.RequestStatusRejected
	req.ReviewedBy = uuid.NullUUID{UUID: adminID, Valid: true}
	return nil
}

func (s *fakeStore) AppendGeneratedURL(id uuid.UUID, url, newStatus string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[id]
	if !ok {
		return errs.ErrNotFound
	}
	if req.Status != models.RequestStatusGenerating || req.AttemptsUsed >= req.MaxAttempts {
		return errs.ErrStaleStatus
	}
	req.GeneratedURLs = append(req.GeneratedURLs, url)
	req.AttemptsUsed++
	req.Status = newStatus
	return nil
}

func (s *fakeStore) SelectResult(id uuid.UUID, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[id]
	if !ok {
		return errs.ErrNotFound
	}
	selectable := req.Status == models.RequestStatusSelecting ||
		req.Status == models.RequestStatusApproved ||
		req.Status == models.RequestStatusGenerating
	found := false
	for _, u := range req.GeneratedURLs {
		if u == url {
			found = true
			break
		}
	}
	if !selectable || !found {
		return errs.ErrStaleStatus
	}
	req.SelectedURL = sql.NullString{String: url, Valid: true}
	req.Status = models.RequestStatusAwaitingFinal
	return nil
}

func (s *fakeStore) FinalizeRequest(id, reviewerID uuid.UUID, note, terminalStatus string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[id]
	if !ok {
		return errs.ErrNotFound
	}
	if req.Status != models.RequestStatusAwaitingFinal {
		return errs.ErrStaleStatus
	}
	req.Status = terminalStatus
	req.FinalReviewBy = uuid.NullUUID{UUID: reviewerID, Valid: true}
	return nil
}

func (s *fakeStore) DeleteRegenerationRequest(id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[id]
	if !ok {
		return errs.ErrNotFound
	}
	if req.Status != models.RequestStatusPending {
		return errs.ErrStaleStatus
	}
	delete(s.requests, id)
	return nil
}

func (s *fakeStore) GetProjectRole(userID, projectID uuid.UUID) (models.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roles[userID], nil
}

func (s *fakeStore) ListProjectAdmins(projectID uuid.UUID) ([]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var admins []uuid.UUID
	for id, role := range s.roles {
		if role.CanApproveRequests() {
			admins = append(admins, id)
		}
	}
	return admins, nil
}

func (s *fakeStore) GetScene(sceneID uuid.UUID) (*models.Scene, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	scene, ok := s.scenes[sceneID]
	if !ok {
		return nil, errs.ErrNotFound
	}
	copied := *scene
	return &copied, nil
}

func (s *fakeStore) GetProjectScenes(projectID uuid.UUID, sceneIDs []uuid.UUID) ([]models.Scene, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Scene
	for _, id := range sceneIDs {
		if scene, ok := s.scenes[id]; ok && scene.ProjectID == projectID {
			out = append(out, *scene)
		}
	}
	return out, nil
}

func (s *fakeStore) ApplySceneMedia(sceneID uuid.UUID, targetType, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.scenes[sceneID]; !ok {
		return errs.ErrNotFound
	}
	if s.applied[sceneID] == nil {
		s.applied[sceneID] = make(map[string]string)
	}
	s.applied[sceneID][targetType] = url
	return nil
}

// fakeStore doubles as the credit ledger so escrow and settlement observe the
// same balances.
func (s *fakeStore) GetOrCreateCredits(userID uuid.UUID, signupGrant int) (*models.Credits, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.balances[userID]; !ok {
		s.balances[userID] = signupGrant
	}
	return &models.Credits{UserID: userID, Balance: s.balances[userID]}, nil
}

func (s *fakeStore) DebitCredits(userID uuid.UUID, amount int, realCost float64, entry models.TransactionEntry) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	balance := s.balances[userID]
	if balance < amount {
		return 0, &errs.InsufficientCreditsError{Required: amount, Balance: balance}
	}
	s.balances[userID] = balance - amount
	s.realCost[userID] += realCost
	s.entries = append(s.entries, entry)
	return s.balances[userID], nil
}

func (s *fakeStore) CreditCredits(userID uuid.UUID, amount int, entry models.TransactionEntry) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[userID] += amount
	s.entries = append(s.entries, entry)
	return s.balances[userID], nil
}

func (s *fakeStore) TrackRealCost(userID uuid.UUID, realCost float64, entry models.TransactionEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.realCost[userID] += realCost
	s.entries = append(s.entries, entry)
	return nil
}

type fakeAssets struct {
	mu      sync.Mutex
	uploads []string
	deleted []string
}

func (a *fakeAssets) Upload(projectID uuid.UUID, filename, contentType string, data []byte) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	url := "https://cdn.example.com/" + filename
	a.uploads = append(a.uploads, url)
	return url, nil
}

func (a *fakeAssets) Delete(url string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.deleted = append(a.deleted, url)
	return nil
}

type fakeNotifier struct {
	mu    sync.Mutex
	kinds []string
}

func (n *fakeNotifier) Notify(userID uuid.UUID, kind, title, body string, payload map[string]interface{}) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.kinds = append(n.kinds, kind)
}

func (n *fakeNotifier) NotifyAll(userIDs []uuid.UUID, kind, title, body string, payload map[string]interface{}) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.kinds = append(n.kinds, kind)
}

// countingProvider produces a distinct immediate URL per call and can be told
// to fail.
type countingProvider struct {
	name string
	mu   sync.Mutex
	n    int
	fail error
}

func (p *countingProvider) Name() string { return p.name }

func (p *countingProvider) Generate(ctx context.Context, input providers.GenerateInput) (*providers.GenerateOutput, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail != nil {
		return nil, p.fail
	}
	p.n++
	return &providers.GenerateOutput{
		ImmediateURL: fmt.Sprintf("https://cdn.example.com/result_%d.png", p.n),
		RealCost:     0.04,
	}, nil
}

func (p *countingProvider) CheckStatus(ctx context.Context, taskID string) (*providers.TaskCheck, error) {
	return nil, errors.New("sync provider")
}

func (p *countingProvider) ExtractResult(payload json.RawMessage) (string, error) {
	return "", errors.New("sync provider")
}

type fixture struct {
	store     *fakeStore
	assets    *fakeAssets
	notifier  *fakeNotifier
	provider  *countingProvider
	service   *workflow.RegenerationService
	requester uuid.UUID
	admin     uuid.UUID
	projectID uuid.UUID
	sceneID   uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		store:     newFakeStore(),
		assets:    &fakeAssets{},
		notifier:  &fakeNotifier{},
		provider:  &countingProvider{name: providers.ProviderModal},
		requester: uuid.New(),
		admin:     uuid.New(),
		projectID: uuid.New(),
		sceneID:   uuid.New(),
	}
	f.store.roles[f.requester] = models.RoleCollaborator
	f.store.roles[f.admin] = models.RoleAdmin
	f.store.balances[f.admin] = 100
	f.store.scenes[f.sceneID] = &models.Scene{
		ID:        f.sceneID,
		ProjectID: f.projectID,
		Name:      "Opening shot",
		Prompt:    "a rainy neon street at dusk",
	}

	log := logger.NewNop()
	charges := credits.NewChargeService(f.store, 100, log)
	f.service = workflow.NewRegenerationService(
		f.store, f.assets, f.notifier,
		providers.NewRegistry(f.provider),
		providers.NewPoller(log), charges, log)
	return f
}

func (f *fixture) approvedRequest(t *testing.T) uuid.UUID {
	t.Helper()
	result, err := f.service.Create(f.requester, f.projectID, models.TargetTypeImage, []uuid.UUID{f.sceneID}, "too dark")
	require.NoError(t, err)
	require.Equal(t, 1, result.Created)
	id := result.Requests[0].ID
	_, err = f.service.Approve(f.admin, id, "")
	require.NoError(t, err)
	return id
}

func TestCreate_AdminBarred(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.Create(f.admin, f.projectID, models.TargetTypeImage, []uuid.UUID{f.sceneID}, "r")

	var authErr *errs.AuthorizationError
	assert.ErrorAs(t, err, &authErr)
}

func TestCreate_ReaderBarred(t *testing.T) {
	f := newFixture(t)
	reader := uuid.New()
	f.store.roles[reader] = models.RoleReader

	_, err := f.service.Create(reader, f.projectID, models.TargetTypeImage, []uuid.UUID{f.sceneID}, "r")

	var authErr *errs.AuthorizationError
	assert.ErrorAs(t, err, &authErr)
}

func TestCreate_SkipsDuplicatesAndUnknownScenes(t *testing.T) {
	f := newFixture(t)

	first, err := f.service.Create(f.requester, f.projectID, models.TargetTypeImage, []uuid.UUID{f.sceneID}, "r")
	require.NoError(t, err)
	assert.Equal(t, 1, first.Created)

	second, err := f.service.Create(f.requester, f.projectID, models.TargetTypeImage,
		[]uuid.UUID{f.sceneID, uuid.New()}, "r")
	require.NoError(t, err)
	assert.Equal(t, 0, second.Created)
	assert.Equal(t, 2, second.Skipped)
}

func TestCreate_MultiSceneSharesBatchID(t *testing.T) {
	f := newFixture(t)
	scene2 := uuid.New()
	f.store.scenes[scene2] = &models.Scene{ID: scene2, ProjectID: f.projectID, Name: "Second shot"}

	result, err := f.service.Create(f.requester, f.projectID, models.TargetTypeImage,
		[]uuid.UUID{f.sceneID, scene2}, "r")
	require.NoError(t, err)
	require.Equal(t, 2, result.Created)
	require.True(t, result.Requests[0].BatchID.Valid)
	assert.Equal(t, result.Requests[0].BatchID.UUID, result.Requests[1].BatchID.UUID)
}

func TestApprove_EscrowsFullAttemptBudget(t *testing.T) {
	f := newFixture(t)
	created, err := f.service.Create(f.requester, f.projectID, models.TargetTypeImage, []uuid.UUID{f.sceneID}, "r")
	require.NoError(t, err)
	id := created.Requests[0].ID

	result, err := f.service.Approve(f.admin, id, "go ahead")
	require.NoError(t, err)

	// 3 attempts x 27 credits at the default image resolution.
	assert.Equal(t, 81, result.CreditsPaid)
	assert.Equal(t, 19, result.CreditsRemaining)
	assert.Equal(t, models.RequestStatusApproved, result.Request.Status)
	assert.Equal(t, 81, result.Request.CreditsPaid)
	assert.Equal(t, 19, f.store.balances[f.admin])
}

func TestApprove_InsufficientBalanceLeavesRequestPending(t *testing.T) {
	f := newFixture(t)
	f.store.balances[f.admin] = 50
	created, err := f.service.Create(f.requester, f.projectID, models.TargetTypeImage, []uuid.UUID{f.sceneID}, "r")
	require.NoError(t, err)
	id := created.Requests[0].ID

	_, err = f.service.Approve(f.admin, id, "")

	var credErr *errs.InsufficientCreditsError
	require.ErrorAs(t, err, &credErr)
	assert.Equal(t, 81, credErr.Required)
	assert.Equal(t, 50, credErr.Balance)

	req, err := f.store.GetRegenerationRequest(id)
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusPending, req.Status)
	assert.Equal(t, 0, req.CreditsPaid)
	assert.Equal(t, 50, f.store.balances[f.admin])
}

func TestApprove_ProvisionsApproverLedgerOnFirstUse(t *testing.T) {
	f := newFixture(t)
	newAdmin := uuid.New()
	f.store.roles[newAdmin] = models.RoleAdmin
	// No credits row exists for newAdmin yet.

	created, err := f.service.Create(f.requester, f.projectID, models.TargetTypeImage, []uuid.UUID{f.sceneID}, "r")
	require.NoError(t, err)

	result, err := f.service.Approve(newAdmin, created.Requests[0].ID, "")
	require.NoError(t, err)

	assert.Equal(t, 81, result.CreditsPaid)
	assert.Equal(t, 19, result.CreditsRemaining, "escrow comes out of the signup grant")
	assert.Equal(t, models.RequestStatusApproved, result.Request.Status)
}

func TestApprove_RequiresAdminRole(t *testing.T) {
	f := newFixture(t)
	created, err := f.service.Create(f.requester, f.projectID, models.TargetTypeImage, []uuid.UUID{f.sceneID}, "r")
	require.NoError(t, err)

	_, err = f.service.Approve(f.requester, created.Requests[0].ID, "")

	var authErr *errs.AuthorizationError
	assert.ErrorAs(t, err, &authErr)
}

func TestReject_NoCreditMovement(t *testing.T) {
	f := newFixture(t)
	created, err := f.service.Create(f.requester, f.projectID, models.TargetTypeImage, []uuid.UUID{f.sceneID}, "r")
	require.NoError(t, err)

	updated, err := f.service.Reject(f.admin, created.Requests[0].ID, "not needed")
	require.NoError(t, err)

	assert.Equal(t, models.RequestStatusRejected, updated.Status)
	assert.Equal(t, 0, updated.CreditsPaid)
	assert.Equal(t, 100, f.store.balances[f.admin])
}

func TestConsumeAttempt_AppendsURLWithoutDebit(t *testing.T) {
	f := newFixture(t)
	id := f.approvedRequest(t)

	updated, err := f.service.ConsumeAttempt(context.Background(), f.requester, id)
	require.NoError(t, err)

	assert.Equal(t, models.RequestStatusApproved, updated.Status)
	assert.Equal(t, 1, updated.AttemptsUsed)
	require.Len(t, updated.GeneratedURLs, 1)
	assert.Equal(t, 19, f.store.balances[f.admin], "attempts are covered by the escrow")
	assert.InDelta(t, 0.04, f.store.realCost[f.admin], 1e-9, "real cost lands on the approver")
}

func TestConsumeAttempt_ExhaustionMovesToSelecting(t *testing.T) {
	f := newFixture(t)
	id := f.approvedRequest(t)

	for i := 0; i < models.DefaultMaxAttempts; i++ {
		_, err := f.service.ConsumeAttempt(context.Background(), f.requester, id)
		require.NoError(t, err)
	}

	req, err := f.store.GetRegenerationRequest(id)
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusSelecting, req.Status)
	assert.Equal(t, models.DefaultMaxAttempts, req.AttemptsUsed)
	assert.Len(t, req.GeneratedURLs, models.DefaultMaxAttempts)

	_, err = f.service.ConsumeAttempt(context.Background(), f.requester, id)
	var transErr *errs.InvalidTransitionError
	assert.ErrorAs(t, err, &transErr)
}

func TestConsumeAttempt_FailureIsFreeRetry(t *testing.T) {
	f := newFixture(t)
	id := f.approvedRequest(t)
	f.provider.fail = errors.New("provider exploded")

	_, err := f.service.ConsumeAttempt(context.Background(), f.requester, id)

	var provErr *errs.ProviderError
	require.ErrorAs(t, err, &provErr)

	req, getErr := f.store.GetRegenerationRequest(id)
	require.NoError(t, getErr)
	assert.Equal(t, models.RequestStatusApproved, req.Status, "failed attempt reverts to approved")
	assert.Equal(t, 0, req.AttemptsUsed, "failed attempt is not consumed")
	assert.Empty(t, req.GeneratedURLs)
}

func TestConsumeAttempt_RequesterOnly(t *testing.T) {
	f := newFixture(t)
	id := f.approvedRequest(t)

	_, err := f.service.ConsumeAttempt(context.Background(), f.admin, id)

	var authErr *errs.AuthorizationError
	assert.ErrorAs(t, err, &authErr)
}

// Concurrent regenerate calls race for the single in-flight slot. However
// many callers hammer the request, exactly maxAttempts attempts may land.
func TestConsumeAttempt_ConcurrentCallersNeverExceedBudget(t *testing.T) {
	f := newFixture(t)
	id := f.approvedRequest(t)

	workers := models.DefaultMaxAttempts + 2
	var wg sync.WaitGroup
	var mu sync.Mutex
	successes := 0

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				_, err := f.service.ConsumeAttempt(context.Background(), f.requester, id)
				if err == nil {
					mu.Lock()
					successes++
					mu.Unlock()
					continue
				}
				var transErr *errs.InvalidTransitionError
				if errors.As(err, &transErr) && transErr.CurrentStatus == models.RequestStatusGenerating {
					// Lost the in-flight slot, try again.
					continue
				}
				return
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, models.DefaultMaxAttempts, successes)

	req, err := f.store.GetRegenerationRequest(id)
	require.NoError(t, err)
	assert.Equal(t, models.DefaultMaxAttempts, req.AttemptsUsed)
	assert.Len(t, req.GeneratedURLs, models.DefaultMaxAttempts)
	assert.Equal(t, models.RequestStatusSelecting, req.Status)
}

func TestSelect_RequiresGeneratedURL(t *testing.T) {
	f := newFixture(t)
	id := f.approvedRequest(t)
	_, err := f.service.ConsumeAttempt(context.Background(), f.requester, id)
	require.NoError(t, err)

	_, err = f.service.Select(f.requester, id, "https://cdn.example.com/forged.png")

	var transErr *errs.InvalidTransitionError
	assert.ErrorAs(t, err, &transErr)
}

func TestSelect_EarlySelectionForfeitsRemainingAttempts(t *testing.T) {
	f := newFixture(t)
	id := f.approvedRequest(t)
	_, err := f.service.ConsumeAttempt(context.Background(), f.requester, id)
	require.NoError(t, err)

	req, err := f.store.GetRegenerationRequest(id)
	require.NoError(t, err)
	url := req.GeneratedURLs[0]

	updated, err := f.service.Select(f.requester, id, url)
	require.NoError(t, err)

	assert.Equal(t, models.RequestStatusAwaitingFinal, updated.Status)
	assert.Equal(t, url, updated.SelectedURL.String)
	assert.Equal(t, 19, f.store.balances[f.admin], "unused attempts are not refunded")

	_, err = f.service.ConsumeAttempt(context.Background(), f.requester, id)
	var transErr *errs.InvalidTransitionError
	assert.ErrorAs(t, err, &transErr)
}

func TestFinalApprove_AppliesSelectionAndCleansUp(t *testing.T) {
	f := newFixture(t)
	id := f.approvedRequest(t)
	for i := 0; i < models.DefaultMaxAttempts; i++ {
		_, err := f.service.ConsumeAttempt(context.Background(), f.requester, id)
		require.NoError(t, err)
	}
	req, err := f.store.GetRegenerationRequest(id)
	require.NoError(t, err)
	chosen := req.GeneratedURLs[1]
	_, err = f.service.Select(f.requester, id, chosen)
	require.NoError(t, err)

	updated, err := f.service.FinalApprove(f.admin, id, "ship it")
	require.NoError(t, err)

	assert.Equal(t, models.RequestStatusCompleted, updated.Status)
	assert.Equal(t, chosen, f.store.applied[f.sceneID][models.TargetTypeImage])
	assert.Len(t, f.assets.deleted, models.DefaultMaxAttempts-1)
	assert.NotContains(t, f.assets.deleted, chosen)
}

func TestFinalReject_DiscardsAllResults(t *testing.T) {
	f := newFixture(t)
	id := f.approvedRequest(t)
	for i := 0; i < models.DefaultMaxAttempts; i++ {
		_, err := f.service.ConsumeAttempt(context.Background(), f.requester, id)
		require.NoError(t, err)
	}
	req, err := f.store.GetRegenerationRequest(id)
	require.NoError(t, err)
	_, err = f.service.Select(f.requester, id, req.GeneratedURLs[0])
	require.NoError(t, err)

	updated, err := f.service.FinalReject(f.admin, id, "off brief")
	require.NoError(t, err)

	assert.Equal(t, models.RequestStatusRejected, updated.Status)
	assert.Len(t, f.assets.deleted, models.DefaultMaxAttempts)
	assert.Empty(t, f.store.applied[f.sceneID])
}

func TestFinalApprove_RequiresSelection(t *testing.T) {
	f := newFixture(t)
	id := f.approvedRequest(t)

	_, err := f.service.FinalApprove(f.admin, id, "")

	var transErr *errs.InvalidTransitionError
	assert.ErrorAs(t, err, &transErr)
}

func TestCancel_PendingOnly(t *testing.T) {
	f := newFixture(t)
	created, err := f.service.Create(f.requester, f.projectID, models.TargetTypeImage, []uuid.UUID{f.sceneID}, "r")
	require.NoError(t, err)
	id := created.Requests[0].ID

	require.NoError(t, f.service.Cancel(f.requester, id))
	_, err = f.store.GetRegenerationRequest(id)
	assert.ErrorIs(t, err, errs.ErrNotFound)

	approvedID := f.approvedRequest(t)
	err = f.service.Cancel(f.requester, approvedID)
	var transErr *errs.InvalidTransitionError
	assert.ErrorAs(t, err, &transErr)
}

func TestCancel_StrangerForbidden(t *testing.T) {
	f := newFixture(t)
	created, err := f.service.Create(f.requester, f.projectID, models.TargetTypeImage, []uuid.UUID{f.sceneID}, "r")
	require.NoError(t, err)

	stranger := uuid.New()
	f.store.roles[stranger] = models.RoleReader
	err = f.service.Cancel(stranger, created.Requests[0].ID)

	var authErr *errs.AuthorizationError
	assert.ErrorAs(t, err, &authErr)
}

func TestList_MembersSeeOnlyTheirOwn(t *testing.T) {
	f := newFixture(t)
	other := uuid.New()
	f.store.roles[other] = models.RoleCollaborator
	scene2 := uuid.New()
	f.store.scenes[scene2] = &models.Scene{ID: scene2, ProjectID: f.projectID, Name: "Second"}

	_, err := f.service.Create(f.requester, f.projectID, models.TargetTypeImage, []uuid.UUID{f.sceneID}, "r")
	require.NoError(t, err)
	_, err = f.service.Create(other, f.projectID, models.TargetTypeImage, []uuid.UUID{scene2}, "r")
	require.NoError(t, err)

	mine, err := f.service.List(f.requester, f.projectID, nil)
	require.NoError(t, err)
	assert.Len(t, mine, 1)

	all, err := f.service.List(f.admin, f.projectID, nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = f.service.List(uuid.New(), f.projectID, nil)
	var authErr *errs.AuthorizationError
	assert.ErrorAs(t, err, &authErr)
}
