package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"sceneforge-backend/internal/config"
	"sceneforge-backend/internal/middleware"
	"sceneforge-backend/internal/models"
	"sceneforge-backend/internal/supabase"
)

type CreditsHandler struct {
	db  *supabase.DatabaseClient
	cfg *config.Config
}

func NewCreditsHandler(db *supabase.DatabaseClient, cfg *config.Config) *CreditsHandler {
	return &CreditsHandler{db: db, cfg: cfg}
}

// Balance godoc
// @Summary     Get credit balance
// @Description Returns the caller's credit balance and lifetime totals. First access creates the account with the signup grant.
// @Tags        credits
// @Produce     json
// @Security    Bearer
// @Success     200 {object} models.CreditsResponse
// @Failure     401 {object} models.ErrorResponse
// @Router      /credits [get]
func (h *CreditsHandler) Balance(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: "user id not found"})
		return
	}

	credits, err := h.db.GetOrCreateCredits(userID, h.cfg.SignupCreditGrant)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.CreditsResponse{
		Balance:       credits.Balance,
		TotalSpent:    credits.TotalSpent,
		TotalEarned:   credits.TotalEarned,
		TotalRealCost: credits.TotalRealCost,
		LastUpdated:   credits.LastUpdated,
	})
}

// Transactions godoc
// @Summary     List credit transactions
// @Description Returns the caller's ledger entries, newest first. Limit defaults to 100.
// @Tags        credits
// @Produce     json
// @Security    Bearer
// @Param       limit query int false "Maximum entries to return"
// @Success     200 {array} models.CreditTransactionResponse
// @Failure     401 {object} models.ErrorResponse
// @Router      /credits/transactions [get]
func (h *CreditsHandler) Transactions(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: "user id not found"})
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid limit"})
			return
		}
		limit = parsed
	}

	transactions, err := h.db.ListCreditTransactions(userID, limit)
	if err != nil {
		respondError(c, err)
		return
	}

	resp := make([]models.CreditTransactionResponse, 0, len(transactions))
	for _, t := range transactions {
		entry := models.CreditTransactionResponse{
			ID:          t.ID.String(),
			Amount:      t.Amount,
			RealCost:    t.RealCost,
			Type:        t.Type,
			Provider:    t.Provider,
			Description: t.Description,
			CreatedAt:   t.CreatedAt,
		}
		if t.ProjectID.Valid {
			entry.ProjectID = t.ProjectID.UUID.String()
		}
		resp = append(resp, entry)
	}

	c.JSON(http.StatusOK, resp)
}
