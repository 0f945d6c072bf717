package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"sceneforge-backend/internal/errs"
	"sceneforge-backend/internal/models"
)

// respondError maps the service error taxonomy onto HTTP statuses:
// authorization 403, invalid transition / bad input 400, insufficient
// credits 402, missing entities 404, provider failures 500.
func respondError(c *gin.Context, err error) {
	var authErr *errs.AuthorizationError
	if errors.As(err, &authErr) {
		c.JSON(http.StatusForbidden, models.ErrorResponse{Error: "forbidden", Message: authErr.Error()})
		return
	}

	var transErr *errs.InvalidTransitionError
	if errors.As(err, &transErr) {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid transition", Message: transErr.Error()})
		return
	}

	var credErr *errs.InsufficientCreditsError
	if errors.As(err, &credErr) {
		c.JSON(http.StatusPaymentRequired, models.InsufficientCreditsResponse{
			Error:    "insufficient credits",
			Required: credErr.Required,
			Balance:  credErr.Balance,
		})
		return
	}

	if errors.Is(err, errs.ErrNotFound) {
		c.JSON(http.StatusNotFound, models.ErrorResponse{Error: "not found"})
		return
	}

	var provErr *errs.ProviderError
	if errors.As(err, &provErr) {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "generation failed", Message: provErr.Error()})
		return
	}

	c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "internal error", Message: err.Error()})
}
