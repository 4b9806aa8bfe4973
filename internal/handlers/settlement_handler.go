package handlers

import (
	"errors"
	"math/big"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"settlement-backend/internal/ledger"
	"settlement-backend/internal/repository"
	"settlement-backend/internal/services"
	"settlement-backend/internal/utils"
)

// SettlementHandler serves the participant-facing API: registration,
// mint/redeem submission, request queries and cleanup.
type SettlementHandler struct {
	coordinator *services.SettlementCoordinator
	requests    repository.RequestRepository
	book        *ledger.Ledger
}

func NewSettlementHandler(coordinator *services.SettlementCoordinator, requests repository.RequestRepository, book *ledger.Ledger) *SettlementHandler {
	return &SettlementHandler{
		coordinator: coordinator,
		requests:    requests,
		book:        book,
	}
}

type RegisterRequest struct {
	ExternalAccountID string `json:"external_account_id" binding:"required"`
}

type SubmitRequest struct {
	Ticker         string `json:"ticker" binding:"required"`
	Amount         string `json:"amount" binding:"required"`
	ExpectedOutput string `json:"expected_output"`
}

// callerAddress reads the authenticated participant address set by the
// auth middleware.
func callerAddress(c *gin.Context) string {
	return c.GetString("participant_address")
}

func (h *SettlementHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := h.coordinator.RegisterParticipant(c.Request.Context(), callerAddress(c), req.ExternalAccountID); err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *SettlementHandler) Mint(c *gin.Context) {
	h.submit(c, true)
}

func (h *SettlementHandler) Redeem(c *gin.Context) {
	h.submit(c, false)
}

func (h *SettlementHandler) submit(c *gin.Context, mint bool) {
	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	amount, err := utils.ParseAmount(req.Amount)
	if err != nil {
		badRequest(c, err)
		return
	}
	var expectedOutput *big.Int
	if req.ExpectedOutput != "" {
		expectedOutput, err = utils.ParseAmount(req.ExpectedOutput)
		if err != nil {
			badRequest(c, err)
			return
		}
	}

	var requestID string
	if mint {
		requestID, err = h.coordinator.Mint(c.Request.Context(), callerAddress(c), amount, req.Ticker, expectedOutput)
	} else {
		requestID, err = h.coordinator.Redeem(c.Request.Context(), callerAddress(c), amount, req.Ticker, expectedOutput)
	}
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"request_id": requestID,
	})
}

func (h *SettlementHandler) GetRequest(c *gin.Context) {
	req, err := h.requests.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "request not found"})
			return
		}
		internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "request": req})
}

func (h *SettlementHandler) ListMyRequests(c *gin.Context) {
	limit, offset := pagination(c)
	reqs, err := h.requests.FindByRequester(c.Request.Context(), callerAddress(c), limit, offset)
	if err != nil {
		internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"requests": reqs,
		"limit":    limit,
		"offset":   offset,
	})
}

type CleanupRequest struct {
	Tickers []string `json:"tickers" binding:"required"`
}

func (h *SettlementHandler) Cleanup(c *gin.Context) {
	var req CleanupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	n, err := h.coordinator.CleanupParticipantExpired(c.Request.Context(), callerAddress(c), req.Tickers)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "expired": n})
}

// AcceptOwnership completes a pending ownership transfer; callable only by
// the nominated address.
func (h *SettlementHandler) AcceptOwnership(c *gin.Context) {
	if err := h.coordinator.AcceptOwnership(callerAddress(c)); err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "owner": h.coordinator.Owner()})
}

func (h *SettlementHandler) ListAssets(c *gin.Context) {
	assets, err := h.coordinator.Assets(c.Request.Context())
	if err != nil {
		internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "assets": assets})
}

func (h *SettlementHandler) GetBalance(c *gin.Context) {
	currency := c.Query("currency")
	if currency == "" {
		badRequest(c, errors.New("currency query parameter required"))
		return
	}
	bal := h.book.Balance(callerAddress(c), currency)
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"currency": currency,
		"balance":  utils.FormatAmount(bal),
	})
}

func pagination(c *gin.Context) (int, int) {
	limit := 20
	offset := 0
	if v := c.Query("limit"); v != "" {
		if n, err := atoiBounded(v, 1, 100); err == nil {
			limit = n
		}
	}
	if v := c.Query("offset"); v != "" {
		if n, err := atoiBounded(v, 0, 1<<30); err == nil {
			offset = n
		}
	}
	return limit, offset
}

func atoiBounded(s string, min, max int) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if n < min {
		n = min
	}
	if n > max {
		n = max
	}
	return n, nil
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
}

func internalError(c *gin.Context, err error) {
	logrus.WithError(err).Error("request failed")
	c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "internal error"})
}

// respondServiceError maps the service error taxonomy to HTTP statuses.
func respondServiceError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, services.ErrNotAuthorized):
		status = http.StatusForbidden
	case errors.Is(err, services.ErrPaused):
		status = http.StatusServiceUnavailable
	case errors.Is(err, services.ErrRateLimited):
		status = http.StatusTooManyRequests
	case errors.Is(err, services.ErrParticipantNotRegistered),
		errors.Is(err, services.ErrAssetNotFound),
		errors.Is(err, services.ErrRequestNotFound):
		status = http.StatusNotFound
	case errors.Is(err, services.ErrAlreadyRegistered),
		errors.Is(err, services.ErrAssetAlreadyExists),
		errors.Is(err, services.ErrRequestAlreadyProcessed):
		status = http.StatusConflict
	case errors.Is(err, services.ErrInvalidAccountID),
		errors.Is(err, services.ErrInvalidAddress),
		errors.Is(err, services.ErrAmountOutOfBounds),
		errors.Is(err, services.ErrInvalidTimeout),
		errors.Is(err, services.ErrInvalidBatchSize),
		errors.Is(err, services.ErrTokenAddressMismatch):
		status = http.StatusBadRequest
	case errors.Is(err, services.ErrRequestExpired):
		status = http.StatusGone
	default:
		logrus.WithError(err).Error("unmapped service error")
		c.JSON(status, gin.H{"success": false, "error": "internal error"})
		return
	}
	c.JSON(status, gin.H{"success": false, "error": err.Error()})
}
