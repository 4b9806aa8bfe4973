package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"settlement-backend/internal/ledger"
	"settlement-backend/internal/services"
	"settlement-backend/internal/utils"
)

// AdminHandler serves the operator API. Administrative calls act with the
// configured owner address, so the coordinator's ownership checks apply.
type AdminHandler struct {
	coordinator *services.SettlementCoordinator
	book        *ledger.Ledger
	owner       string
}

func NewAdminHandler(coordinator *services.SettlementCoordinator, book *ledger.Ledger, owner string) *AdminHandler {
	return &AdminHandler{
		coordinator: coordinator,
		book:        book,
		owner:       owner,
	}
}

type ListAssetRequest struct {
	Ticker      string `json:"ticker" binding:"required"`
	DisplayName string `json:"display_name"`
	MetadataURI string `json:"metadata_uri"`
}

func (h *AdminHandler) ListAsset(c *gin.Context) {
	var req ListAssetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := h.coordinator.ListAsset(c.Request.Context(), h.owner, req.Ticker, req.DisplayName, req.MetadataURI); err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *AdminHandler) DelistAsset(c *gin.Context) {
	if err := h.coordinator.DelistAsset(c.Request.Context(), h.owner, c.Param("ticker")); err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

type SetTimeoutRequest struct {
	TimeoutSeconds int `json:"timeout_seconds" binding:"required"`
}

func (h *AdminHandler) SetAssetTimeout(c *gin.Context) {
	var req SetTimeoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	d := time.Duration(req.TimeoutSeconds) * time.Second
	if err := h.coordinator.SetAssetTimeout(h.owner, c.Param("ticker"), d); err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

type AdminExpireRequest struct {
	RequestIDs []string `json:"request_ids" binding:"required"`
}

func (h *AdminHandler) ExpireRequests(c *gin.Context) {
	var req AdminExpireRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	n, err := h.coordinator.AdminExpire(c.Request.Context(), h.owner, c.Param("ticker"), req.RequestIDs)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "expired": n})
}

func (h *AdminHandler) Pause(c *gin.Context) {
	if err := h.coordinator.Pause(h.owner); err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "paused": true})
}

func (h *AdminHandler) Unpause(c *gin.Context) {
	if err := h.coordinator.Unpause(h.owner); err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "paused": false})
}

type UpgradeLogicRequest struct {
	Version       string `json:"version" binding:"required"`
	SlippageMinBP uint32 `json:"slippage_min_bp"`
	SlippageMaxBP uint32 `json:"slippage_max_bp"`
}

func (h *AdminHandler) UpgradeLogic(c *gin.Context) {
	var req UpgradeLogicRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	err := h.coordinator.UpgradeExecutionLogic(h.owner, services.ExecutionLogic{
		Version:       req.Version,
		SlippageMinBP: req.SlippageMinBP,
		SlippageMaxBP: req.SlippageMaxBP,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "version": req.Version})
}

type TransferOwnershipRequest struct {
	NewOwner string `json:"new_owner" binding:"required"`
}

func (h *AdminHandler) TransferOwnership(c *gin.Context) {
	var req TransferOwnershipRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := h.coordinator.TransferOwnership(h.owner, req.NewOwner); err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "pending_owner": req.NewOwner})
}

type CreditRequest struct {
	Address  string `json:"address" binding:"required"`
	Currency string `json:"currency" binding:"required"`
	Amount   string `json:"amount" binding:"required"`
}

// CreditParticipant issues ledger funds to an account. Operator tooling
// for dev environments and treasury topping.
func (h *AdminHandler) CreditParticipant(c *gin.Context) {
	var req CreditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	amount, err := utils.ParseAmount(req.Amount)
	if err != nil {
		badRequest(c, err)
		return
	}
	if err := h.book.Mint(req.Address, req.Currency, amount); err != nil {
		badRequest(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"balance": utils.FormatAmount(h.book.Balance(req.Address, req.Currency)),
	})
}

func (h *AdminHandler) Status(c *gin.Context) {
	assets, err := h.coordinator.Assets(c.Request.Context())
	if err != nil {
		internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"paused":  h.coordinator.Paused(),
		"owner":   h.coordinator.Owner(),
		"assets":  len(assets),
	})
}
