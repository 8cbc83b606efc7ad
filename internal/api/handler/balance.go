package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/OpenGrantStack/GrantReady-Ledger/internal/engine"
)

// BalanceHandler exposes per-account balance lookups.
type BalanceHandler struct {
	engine *engine.Engine
	logger *zap.Logger
}

// NewBalanceHandler creates a BalanceHandler.
func NewBalanceHandler(eng *engine.Engine, logger *zap.Logger) *BalanceHandler {
	return &BalanceHandler{engine: eng, logger: logger}
}

// Register mounts the balance routes on the given router group.
func (h *BalanceHandler) Register(rg *gin.RouterGroup) {
	rg.GET("/balances/:accountId", h.Get)
}

// Get handles GET /balances/:accountId?currency=USD.
func (h *BalanceHandler) Get(c *gin.Context) {
	bal, err := h.engine.AccountBalance(c.Request.Context(),
		c.Param("accountId"), c.Query("currency"))
	if err != nil {
		h.logger.Error("balance lookup", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to derive balance"})
		return
	}
	c.JSON(http.StatusOK, bal)
}
