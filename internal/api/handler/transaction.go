package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/OpenGrantStack/GrantReady-Ledger/internal/engine"
	"github.com/OpenGrantStack/GrantReady-Ledger/internal/ledger"
)

// TransactionHandler exposes the transaction lifecycle over HTTP.
type TransactionHandler struct {
	engine *engine.Engine
	logger *zap.Logger
}

// NewTransactionHandler creates a TransactionHandler.
func NewTransactionHandler(eng *engine.Engine, logger *zap.Logger) *TransactionHandler {
	return &TransactionHandler{engine: eng, logger: logger}
}

// Register mounts the transaction routes on the given router group.
// auth guards the mutating routes.
func (h *TransactionHandler) Register(rg *gin.RouterGroup, auth gin.HandlerFunc) {
	t := rg.Group("/transactions")
	{
		t.GET("/:id", h.Get)
		t.POST("", auth, h.Create)
		t.POST("/:id/submit", auth, h.Submit)
		t.POST("/:id/signatures", auth, h.Sign)
		t.POST("/:id/execute", auth, h.Execute)
		t.POST("/:id/cancel", auth, h.Cancel)
	}
	rg.GET("/grantcycles/:id/transactions", h.ByGrantCycle)
}

// ByGrantCycle handles GET /grantcycles/:id/transactions — the ids of
// the transactions recorded under a grant cycle, in creation order.
func (h *TransactionHandler) ByGrantCycle(c *gin.Context) {
	ids, err := h.engine.TransactionsByGrantCycle(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.logger.Error("cycle transactions", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query grant cycle"})
		return
	}
	if ids == nil {
		ids = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"grantCycleId": c.Param("id"), "transactions": ids})
}

// createRequest is the payload for POST /transactions.
type createRequest struct {
	GrantCycleID    string                 `json:"grantCycleId" binding:"required"`
	TransactionType ledger.TransactionType `json:"transactionType" binding:"required"`
	Description     string                 `json:"description"`
	PolicyID        string                 `json:"policyId"`
	Entries         []engine.EntryInput    `json:"entries" binding:"required"`
}

// txResponse pairs a transaction with its resolved entries.
type txResponse struct {
	*ledger.Transaction
	Entries []*ledger.Entry `json:"entries"`
}

// Create handles POST /transactions.
func (h *TransactionHandler) Create(c *gin.Context) {
	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	tx, err := h.engine.CreateTransaction(c.Request.Context(),
		req.GrantCycleID, req.TransactionType, req.Entries, req.Description, req.PolicyID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	_, entries, err := h.engine.GetTransaction(c.Request.Context(), tx.ID)
	if err != nil {
		h.logger.Error("resolve created transaction", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "transaction created but not resolvable"})
		return
	}
	c.JSON(http.StatusCreated, txResponse{Transaction: tx, Entries: entries})
}

// Get handles GET /transactions/:id.
func (h *TransactionHandler) Get(c *gin.Context) {
	tx, entries, err := h.engine.GetTransaction(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, txResponse{Transaction: tx, Entries: entries})
}

// Submit handles POST /transactions/:id/submit.
func (h *TransactionHandler) Submit(c *gin.Context) {
	tx, err := h.engine.Submit(c.Request.Context(), c.Param("id"), Actor(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, tx)
}

// signRequest is the payload for POST /transactions/:id/signatures.
type signRequest struct {
	Signer        string               `json:"signer" binding:"required"`
	Signature     string               `json:"signature" binding:"required"`
	SignatureType ledger.SignatureType `json:"signatureType" binding:"required"`
}

// Sign handles POST /transactions/:id/signatures.
func (h *TransactionHandler) Sign(c *gin.Context) {
	var req signRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	tx, err := h.engine.AddSignature(c.Request.Context(),
		c.Param("id"), req.Signer, req.Signature, req.SignatureType)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, tx)
}

// Execute handles POST /transactions/:id/execute.
func (h *TransactionHandler) Execute(c *gin.Context) {
	tx, err := h.engine.Execute(c.Request.Context(), c.Param("id"), Actor(c))
	if err != nil {
		var sinkErr *ledger.SinkError
		if errors.As(err, &sinkErr) {
			// The transaction moved to REJECTED; report it with the outcome.
			c.JSON(http.StatusBadGateway, gin.H{"error": sinkErr.Error(), "transaction": tx})
			return
		}
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, tx)
}

// cancelRequest is the payload for POST /transactions/:id/cancel.
type cancelRequest struct {
	Reason string `json:"reason"`
}

// Cancel handles POST /transactions/:id/cancel.
func (h *TransactionHandler) Cancel(c *gin.Context) {
	var req cancelRequest
	_ = c.ShouldBindJSON(&req)

	ok, err := h.engine.Cancel(c.Request.Context(), c.Param("id"), req.Reason, Actor(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"cancelled": ok})
}

func (h *TransactionHandler) writeError(c *gin.Context, err error) {
	var (
		valErr *ledger.ValidationError
		unbal  *ledger.UnbalancedError
	)
	switch {
	case isNotFound(err):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.As(err, &valErr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "validation failed", "errors": valErr.Errors})
	case errors.As(err, &unbal),
		errors.Is(err, ledger.ErrCurrencyMismatch),
		errors.Is(err, ledger.ErrAmountOutOfRange):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.Is(err, ledger.ErrDuplicateSigner),
		errors.Is(err, ledger.ErrIllegalTransactionTransition),
		errors.Is(err, ledger.ErrIllegalEntryTransition):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		h.logger.Error("transaction request failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
