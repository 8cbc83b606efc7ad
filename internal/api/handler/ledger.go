// Package handler exposes the ledger engine over HTTP. Handlers are thin:
// they bind/validate the request shape, call the engine, and map error
// kinds to status codes.
package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/OpenGrantStack/GrantReady-Ledger/internal/engine"
	"github.com/OpenGrantStack/GrantReady-Ledger/internal/ledger"
)

// LedgerHandler exposes read-only endpoints for the entry chain.
type LedgerHandler struct {
	engine *engine.Engine
	logger *zap.Logger
}

// NewLedgerHandler creates a LedgerHandler.
func NewLedgerHandler(eng *engine.Engine, logger *zap.Logger) *LedgerHandler {
	return &LedgerHandler{engine: eng, logger: logger}
}

// Register mounts the ledger routes on the given router group.
func (h *LedgerHandler) Register(rg *gin.RouterGroup) {
	l := rg.Group("/ledger")
	{
		l.GET("", h.Overview)
		l.GET("/verify", h.Verify)
		l.GET("/entries/:id", h.GetEntry)
	}
}

// Overview handles GET /ledger — chain length and current tip.
func (h *LedgerHandler) Overview(c *gin.Context) {
	ctx := c.Request.Context()
	store := h.engine.Store()

	count, err := store.Len(ctx)
	if err != nil {
		h.logger.Error("ledger Len", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query ledger"})
		return
	}
	tip, err := store.Tip(ctx)
	if err != nil {
		h.logger.Error("ledger Tip", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query chain tip"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"entries": count,
		"tip":     tip,
	})
}

// Verify handles GET /ledger/verify — full integrity sweep.
func (h *LedgerHandler) Verify(c *gin.Context) {
	report, err := h.engine.VerifyIntegrity(c.Request.Context())
	if err != nil {
		h.logger.Error("integrity sweep", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "integrity sweep failed"})
		return
	}
	c.JSON(http.StatusOK, report)
}

// GetEntry handles GET /ledger/entries/:id.
func (h *LedgerHandler) GetEntry(c *gin.Context) {
	entry, err := h.engine.Store().Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if isNotFound(err) {
			c.JSON(http.StatusNotFound, gin.H{"error": "entry not found"})
			return
		}
		h.logger.Error("get entry", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query entry"})
		return
	}
	c.JSON(http.StatusOK, entry)
}

func isNotFound(err error) bool {
	var nf *ledger.NotFoundError
	return errors.As(err, &nf)
}
