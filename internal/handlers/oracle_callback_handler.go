package handlers

import (
	"net/http"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"settlement-backend/internal/services"
)

// OracleCallbackHandler receives asynchronous execution results from the
// brokerage relay and hands them to the dispatcher for settlement.
type OracleCallbackHandler struct {
	dispatcher *services.AssetDispatcher
}

func NewOracleCallbackHandler(dispatcher *services.AssetDispatcher) *OracleCallbackHandler {
	return &OracleCallbackHandler{dispatcher: dispatcher}
}

type OracleCallbackRequest struct {
	RequestID string `json:"request_id" binding:"required"`
	// Result is the hex-encoded big-endian output amount, empty on failure.
	Result string `json:"result"`
	// Error is the hex-encoded failure payload; empty means success.
	Error string `json:"error"`
}

func (h *OracleCallbackHandler) Callback(c *gin.Context) {
	var req OracleCallbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	resultBytes, err := decodeHexField(req.Result)
	if err != nil {
		badRequest(c, err)
		return
	}
	errBytes, err := decodeHexField(req.Error)
	if err != nil {
		badRequest(c, err)
		return
	}

	if err := h.dispatcher.OnOracleResult(c.Request.Context(), req.RequestID, resultBytes, errBytes); err != nil {
		logrus.WithFields(logrus.Fields{
			"request_id": req.RequestID,
		}).WithError(err).Warn("oracle callback not settled")
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func decodeHexField(s string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	return hexutil.Decode(s)
}
