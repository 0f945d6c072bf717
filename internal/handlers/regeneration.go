package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"sceneforge-backend/internal/middleware"
	"sceneforge-backend/internal/models"
	"sceneforge-backend/internal/workflow"
)

type RegenerationHandler struct {
	service *workflow.RegenerationService
}

func NewRegenerationHandler(service *workflow.RegenerationService) *RegenerationHandler {
	return &RegenerationHandler{service: service}
}

// Create godoc
// @Summary     File regeneration requests
// @Description Creates one pending regeneration request per target scene. Targets with an existing pending request of the same type are skipped.
// @Tags        regeneration
// @Accept      json
// @Produce     json
// @Security    Bearer
// @Param       project_id path string true "Project ID (UUID)"
// @Param       request body models.CreateRegenerationRequest true "Targets and reason"
// @Success     201 {object} models.CreateRegenerationResponse
// @Failure     400 {object} models.ErrorResponse
// @Failure     403 {object} models.ErrorResponse
// @Router      /projects/{project_id}/regeneration-requests [post]
func (h *RegenerationHandler) Create(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: "user id not found"})
		return
	}

	projectID, err := uuid.Parse(c.Param("project_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid project id"})
		return
	}

	var req models.CreateRegenerationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid request body", Message: err.Error()})
		return
	}

	result, err := h.service.Create(userID, projectID, req.TargetType, req.SceneIDs, req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}

	resp := models.CreateRegenerationResponse{
		Requests: make([]models.RegenerationRequestResponse, 0, len(result.Requests)),
		Created:  result.Created,
		Skipped:  result.Skipped,
	}
	for i := range result.Requests {
		resp.Requests = append(resp.Requests, toRequestResponse(&result.Requests[i]))
	}

	c.JSON(http.StatusCreated, resp)
}

// List godoc
// @Summary     List regeneration requests
// @Description Lists a project's regeneration requests. Admins see all requests, other members only their own. Filter with ?status=a,b,c.
// @Tags        regeneration
// @Produce     json
// @Security    Bearer
// @Param       project_id path string true "Project ID (UUID)"
// @Param       status query string false "Comma-separated status filter"
// @Success     200 {array} models.RegenerationRequestResponse
// @Failure     403 {object} models.ErrorResponse
// @Router      /projects/{project_id}/regeneration-requests [get]
func (h *RegenerationHandler) List(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: "user id not found"})
		return
	}

	projectID, err := uuid.Parse(c.Param("project_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid project id"})
		return
	}

	var statuses []string
	if raw := c.Query("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			if s = strings.TrimSpace(s); s != "" {
				statuses = append(statuses, s)
			}
		}
	}

	requests, err := h.service.List(userID, projectID, statuses)
	if err != nil {
		respondError(c, err)
		return
	}

	resp := make([]models.RegenerationRequestResponse, 0, len(requests))
	for i := range requests {
		resp = append(resp, toRequestResponse(&requests[i]))
	}

	c.JSON(http.StatusOK, resp)
}

// Review godoc
// @Summary     Approve or reject a pending request
// @Description Approving escrows costPerAttempt x maxAttempts from the reviewer's credit balance. Insufficient balance returns 402 with the required and available amounts.
// @Tags        regeneration
// @Accept      json
// @Produce     json
// @Security    Bearer
// @Param       request_id path string true "Request ID (UUID)"
// @Param       request body models.ReviewRegenerationRequest true "Review decision"
// @Success     200 {object} models.ApproveRegenerationResponse
// @Failure     400 {object} models.ErrorResponse
// @Failure     402 {object} models.InsufficientCreditsResponse
// @Failure     403 {object} models.ErrorResponse
// @Router      /regeneration-requests/{request_id} [put]
func (h *RegenerationHandler) Review(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: "user id not found"})
		return
	}

	requestID, err := uuid.Parse(c.Param("request_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid request id"})
		return
	}

	var req models.ReviewRegenerationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid request body", Message: err.Error()})
		return
	}

	if !req.Approved {
		updated, err := h.service.Reject(userID, requestID, req.Note)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, toRequestResponse(updated))
		return
	}

	result, err := h.service.Approve(userID, requestID, req.Note)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.ApproveRegenerationResponse{
		Status:           result.Request.Status,
		MaxAttempts:      result.Request.MaxAttempts,
		CreditsPaid:      result.CreditsPaid,
		CreditsRemaining: result.CreditsRemaining,
	})
}

// Action godoc
// @Summary     Drive a request through its lifecycle
// @Description Dispatches regenerate, select, final_approve and final_reject actions on a request.
// @Tags        regeneration
// @Accept      json
// @Produce     json
// @Security    Bearer
// @Param       request_id path string true "Request ID (UUID)"
// @Param       request body models.RegenerationActionRequest true "Action"
// @Success     200 {object} models.RegenerationRequestResponse
// @Failure     400 {object} models.ErrorResponse
// @Failure     402 {object} models.InsufficientCreditsResponse
// @Failure     403 {object} models.ErrorResponse
// @Failure     500 {object} models.ErrorResponse
// @Router      /regeneration-requests/{request_id} [patch]
func (h *RegenerationHandler) Action(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: "user id not found"})
		return
	}

	requestID, err := uuid.Parse(c.Param("request_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid request id"})
		return
	}

	var req models.RegenerationActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid request body", Message: err.Error()})
		return
	}

	var updated *models.RegenerationRequest
	switch req.Action {
	case models.RequestActionRegenerate:
		updated, err = h.service.ConsumeAttempt(c.Request.Context(), userID, requestID)
	case models.RequestActionSelect:
		if req.SelectedURL == "" {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "selected_url is required"})
			return
		}
		updated, err = h.service.Select(userID, requestID, req.SelectedURL)
	case models.RequestActionFinalApprove:
		updated, err = h.service.FinalApprove(userID, requestID, req.Note)
	case models.RequestActionFinalReject:
		updated, err = h.service.FinalReject(userID, requestID, req.Note)
	default:
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "unknown action"})
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, toRequestResponse(updated))
}

// Cancel godoc
// @Summary     Cancel a pending request
// @Description Hard-deletes a request while it is still pending. Allowed for the requester and project admins.
// @Tags        regeneration
// @Produce     json
// @Security    Bearer
// @Param       request_id path string true "Request ID (UUID)"
// @Success     204 "No Content"
// @Failure     400 {object} models.ErrorResponse
// @Failure     403 {object} models.ErrorResponse
// @Router      /regeneration-requests/{request_id} [delete]
func (h *RegenerationHandler) Cancel(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: "user id not found"})
		return
	}

	requestID, err := uuid.Parse(c.Param("request_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid request id"})
		return
	}

	if err := h.service.Cancel(userID, requestID); err != nil {
		respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func toRequestResponse(req *models.RegenerationRequest) models.RegenerationRequestResponse {
	resp := models.RegenerationRequestResponse{
		ID:            req.ID.String(),
		ProjectID:     req.ProjectID.String(),
		RequesterID:   req.RequesterID.String(),
		TargetType:    req.TargetType,
		TargetID:      req.TargetID.String(),
		TargetName:    req.TargetName,
		Reason:        req.Reason,
		Status:        req.Status,
		MaxAttempts:   req.MaxAttempts,
		AttemptsUsed:  req.AttemptsUsed,
		CreditsPaid:   req.CreditsPaid,
		GeneratedURLs: req.GeneratedURLs,
		CreatedAt:     req.CreatedAt,
		UpdatedAt:     req.UpdatedAt,
	}
	if resp.GeneratedURLs == nil {
		resp.GeneratedURLs = []string{}
	}
	if req.BatchID.Valid {
		resp.BatchID = req.BatchID.UUID.String()
	}
	if req.SelectedURL.Valid {
		resp.SelectedURL = req.SelectedURL.String
	}
	if req.ReviewNote.Valid {
		resp.ReviewNote = req.ReviewNote.String
	}
	if req.CompletedAt.Valid {
		t := req.CompletedAt.Time
		resp.CompletedAt = &t
	}
	return resp
}
