package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"sceneforge-backend/internal/generation"
	"sceneforge-backend/internal/middleware"
	"sceneforge-backend/internal/models"
	"sceneforge-backend/internal/supabase"
)

type BatchHandler struct {
	engine *generation.Engine
	db     *supabase.DatabaseClient
}

func NewBatchHandler(engine *generation.Engine, db *supabase.DatabaseClient) *BatchHandler {
	return &BatchHandler{engine: engine, db: db}
}

// Submit godoc
// @Summary     Submit a batch generation job
// @Description Starts asynchronous image generation for a set of scenes. The summed cost of all items is pre-checked against the submitter's balance before anything runs.
// @Tags        batches
// @Accept      json
// @Produce     json
// @Security    Bearer
// @Param       project_id path string true "Project ID (UUID)"
// @Param       request body models.SubmitBatchRequest true "Batch items and generation config"
// @Success     202 {object} models.BatchJobResponse
// @Failure     400 {object} models.ErrorResponse
// @Failure     402 {object} models.InsufficientCreditsResponse
// @Failure     403 {object} models.ErrorResponse
// @Router      /projects/{project_id}/generation-batches [post]
func (h *BatchHandler) Submit(c *gin.Context) {
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

	var req models.SubmitBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid request body", Message: err.Error()})
		return
	}

	role, err := h.db.GetProjectRole(userID, projectID)
	if err != nil {
		respondError(c, err)
		return
	}
	if !role.CanApproveRequests() {
		c.JSON(http.StatusForbidden, models.ErrorResponse{Error: "forbidden", Message: "batch generation requires an owner or admin role"})
		return
	}

	job, err := h.engine.Submit(generation.BatchRequest{
		ProjectID: projectID,
		UserID:    userID,
		BatchID:   req.BatchID,
		Items:     req.Items,
		Provider:  req.Provider,
		Model:     req.Model,
		Config:    req.Config,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, toBatchResponse(job))
}

// Get godoc
// @Summary     Get batch job status
// @Description Returns the batch job's current counters and progress percentage.
// @Tags        batches
// @Produce     json
// @Security    Bearer
// @Param       batch_id path string true "Batch ID (UUID)"
// @Success     200 {object} models.BatchJobResponse
// @Failure     404 {object} models.ErrorResponse
// @Router      /generation-batches/{batch_id} [get]
func (h *BatchHandler) Get(c *gin.Context) {
	if _, ok := middleware.UserID(c); !ok {
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: "user id not found"})
		return
	}

	batchID, err := uuid.Parse(c.Param("batch_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid batch id"})
		return
	}

	job, err := h.db.GetBatchJob(batchID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, toBatchResponse(job))
}

// Cancel godoc
// @Summary     Cancel a running batch job
// @Description Stops dispatching further items. In-flight items run to completion and stay charged.
// @Tags        batches
// @Produce     json
// @Security    Bearer
// @Param       batch_id path string true "Batch ID (UUID)"
// @Success     202 {object} models.BatchJobResponse
// @Failure     400 {object} models.ErrorResponse
// @Failure     404 {object} models.ErrorResponse
// @Router      /generation-batches/{batch_id} [delete]
func (h *BatchHandler) Cancel(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: "user id not found"})
		return
	}

	batchID, err := uuid.Parse(c.Param("batch_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid batch id"})
		return
	}

	job, err := h.db.GetBatchJob(batchID)
	if err != nil {
		respondError(c, err)
		return
	}

	role, err := h.db.GetProjectRole(userID, job.ProjectID)
	if err != nil {
		respondError(c, err)
		return
	}
	if job.UserID != userID && !role.CanApproveRequests() {
		c.JSON(http.StatusForbidden, models.ErrorResponse{Error: "forbidden", Message: "only the submitter or a project admin can cancel a batch"})
		return
	}

	if !h.engine.Cancel(batchID) {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "batch is not running"})
		return
	}

	c.JSON(http.StatusAccepted, toBatchResponse(job))
}

func toBatchResponse(job *models.BatchJob) models.BatchJobResponse {
	return models.BatchJobResponse{
		BatchID:        job.ID.String(),
		Status:         job.Status,
		TotalCount:     job.TotalCount,
		CompletedCount: job.CompletedCount,
		FailedCount:    job.FailedCount,
		Progress:       job.Progress,
		ProviderUsed:   job.ProviderUsed,
		ModelUsed:      job.ModelUsed,
		CreatedAt:      job.CreatedAt,
		UpdatedAt:      job.UpdatedAt,
	}
}
