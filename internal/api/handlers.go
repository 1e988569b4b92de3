package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"usdcx/bridge/internal/blockchain/stacks"
	"usdcx/bridge/internal/models"
	"usdcx/bridge/internal/orchestrator"
	"usdcx/bridge/internal/service"
)

// Prompts exposes the contract calls waiting for the Stacks wallet
type Prompts interface {
	Pending() []stacks.Prompt
	Finish(id, txID string) error
	Cancel(id string) error
	Fail(id, reason string) error
}

// Handler holds dependencies for HTTP handlers
type Handler struct {
	sessions  *service.SessionService
	portfolio *service.PortfolioService
	addresses *service.AddressService
	prompts   Prompts
	logger    *zap.Logger

	// background operations started by requests
	wg sync.WaitGroup
}

// NewHandler creates a new API handler
func NewHandler(
	sessions *service.SessionService,
	portfolio *service.PortfolioService,
	addresses *service.AddressService,
	prompts Prompts,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		sessions:  sessions,
		portfolio: portfolio,
		addresses: addresses,
		prompts:   prompts,
		logger:    logger,
	}
}

// Wait blocks until background operations have returned
func (h *Handler) Wait() {
	h.wg.Wait()
}

// ==================== Health Check ====================

// HandleHealth returns service health status
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status:  "ok",
		Version: "1.0.0",
	}
	respondJSON(w, http.StatusOK, response)
}

// ==================== Sessions ====================

// HandleCreateSession handles POST /api/v1/sessions
func (h *Handler) HandleCreateSession(w http.ResponseWriter, r *http.Request) {
	orch, err := h.sessions.CreateSession(r.Context())
	if err != nil {
		h.logger.Error("Failed to create session", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Failed to create session", err)
		return
	}

	// balances are best effort; the wallet may connect later
	if err := orch.RefreshBalances(r.Context()); err != nil {
		h.logger.Debug("Balances unavailable for new session", zap.Error(err))
	}

	respondJSON(w, http.StatusCreated, orch.Snapshot())
}

// HandleListSessions handles GET /api/v1/sessions
func (h *Handler) HandleListSessions(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, ListSessionsResponse{Sessions: h.sessions.ListSessions()})
}

// HandleGetSession handles GET /api/v1/sessions/{sessionId}
func (h *Handler) HandleGetSession(w http.ResponseWriter, r *http.Request) {
	orch := h.session(w, r)
	if orch == nil {
		return
	}
	respondJSON(w, http.StatusOK, orch.Snapshot())
}

// HandleApprove handles POST /api/v1/sessions/{sessionId}/approve
func (h *Handler) HandleApprove(w http.ResponseWriter, r *http.Request) {
	orch := h.session(w, r)
	if orch == nil {
		return
	}

	var req AmountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if _, err := orchestrator.ParseAmount(req.Amount); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid amount", err)
		return
	}

	h.launch(w, r, orch, "approve", func() (orchestrator.Operation, error) {
		return orch.StartApprove(req.Amount)
	})
}

// HandleTransfer handles POST /api/v1/sessions/{sessionId}/transfer
func (h *Handler) HandleTransfer(w http.ResponseWriter, r *http.Request) {
	orch := h.session(w, r)
	if orch == nil {
		return
	}

	var req TransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if _, err := orchestrator.ParseAmount(req.Amount); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid amount", err)
		return
	}
	if _, err := stacks.EncodeForBridge(req.Destination); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid destination", err)
		return
	}

	h.launch(w, r, orch, "transfer", func() (orchestrator.Operation, error) {
		return orch.StartTransfer(req.Amount, req.Destination)
	})
}

// HandleDeposit handles POST /api/v1/sessions/{sessionId}/deposit
func (h *Handler) HandleDeposit(w http.ResponseWriter, r *http.Request) {
	orch := h.session(w, r)
	if orch == nil {
		return
	}

	var req AmountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if _, err := orchestrator.ParseAmount(req.Amount); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid amount", err)
		return
	}

	h.launch(w, r, orch, "deposit", func() (orchestrator.Operation, error) {
		return orch.StartDeposit(req.Amount)
	})
}

// HandleRetry handles POST /api/v1/sessions/{sessionId}/retry
func (h *Handler) HandleRetry(w http.ResponseWriter, r *http.Request) {
	orch := h.session(w, r)
	if orch == nil {
		return
	}

	if orch.Snapshot().ErrorStep == 0 {
		respondJSON(w, http.StatusOK, orch.Snapshot())
		return
	}

	h.launch(w, r, orch, "retry", orch.StartRetry)
}

// HandleReset handles POST /api/v1/sessions/{sessionId}/reset
func (h *Handler) HandleReset(w http.ResponseWriter, r *http.Request) {
	orch := h.session(w, r)
	if orch == nil {
		return
	}

	if err := orch.Reset(); err != nil {
		respondError(w, operationStatus(err), "Cannot reset session", err)
		return
	}
	respondJSON(w, http.StatusOK, orch.Snapshot())
}

// HandleSetStrategy handles PUT /api/v1/sessions/{sessionId}/strategy
func (h *Handler) HandleSetStrategy(w http.ResponseWriter, r *http.Request) {
	orch := h.session(w, r)
	if orch == nil {
		return
	}

	var req StrategyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	strategy, err := models.ParseStrategy(req.Strategy)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid strategy", err)
		return
	}

	if err := orch.SetStrategy(strategy); err != nil {
		respondError(w, operationStatus(err), "Cannot change strategy", err)
		return
	}
	respondJSON(w, http.StatusOK, orch.Snapshot())
}

// HandleRefreshBalances handles POST /api/v1/sessions/{sessionId}/refresh
func (h *Handler) HandleRefreshBalances(w http.ResponseWriter, r *http.Request) {
	orch := h.session(w, r)
	if orch == nil {
		return
	}

	if err := orch.RefreshBalances(r.Context()); err != nil {
		if errors.Is(err, orchestrator.ErrWalletNotConnected) {
			respondError(w, http.StatusBadRequest, "Cannot refresh balances", err)
			return
		}
		h.logger.Error("Failed to refresh balances", zap.String("session_id", orch.ID()), zap.Error(err))
		respondError(w, http.StatusBadGateway, "Failed to refresh balances", err)
		return
	}
	respondJSON(w, http.StatusOK, orch.Snapshot())
}

// HandleGetTransactions handles GET /api/v1/sessions/{sessionId}/transactions
func (h *Handler) HandleGetTransactions(w http.ResponseWriter, r *http.Request) {
	orch := h.session(w, r)
	if orch == nil {
		return
	}

	respondJSON(w, http.StatusOK, TransactionsResponse{
		SessionID:    orch.ID(),
		Transactions: orch.Transactions(),
	})
}

// HandleNeedsApproval handles GET /api/v1/sessions/{sessionId}/needs-approval?amount=
func (h *Handler) HandleNeedsApproval(w http.ResponseWriter, r *http.Request) {
	orch := h.session(w, r)
	if orch == nil {
		return
	}

	amount := r.URL.Query().Get("amount")
	if amount == "" {
		respondError(w, http.StatusBadRequest, "amount is required", nil)
		return
	}

	respondJSON(w, http.StatusOK, NeedsApprovalResponse{
		Amount:        amount,
		NeedsApproval: orch.NeedsApproval(amount),
		Allowance:     orch.Snapshot().Allowance,
	})
}

// ==================== Prompts ====================

// HandleListPrompts handles GET /api/v1/prompts
func (h *Handler) HandleListPrompts(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.prompts.Pending())
}

// HandleFinishPrompt handles POST /api/v1/prompts/{promptId}/finish
func (h *Handler) HandleFinishPrompt(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["promptId"]

	var req FinishPromptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	h.resolvePrompt(w, id, models.OutcomeSuccess, h.prompts.Finish(id, req.TxID))
}

// HandleCancelPrompt handles POST /api/v1/prompts/{promptId}/cancel
func (h *Handler) HandleCancelPrompt(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["promptId"]
	h.resolvePrompt(w, id, models.OutcomeCancelled, h.prompts.Cancel(id))
}

// HandleFailPrompt handles POST /api/v1/prompts/{promptId}/fail
func (h *Handler) HandleFailPrompt(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["promptId"]

	var req FailPromptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	h.resolvePrompt(w, id, models.OutcomeError, h.prompts.Fail(id, req.Reason))
}

func (h *Handler) resolvePrompt(w http.ResponseWriter, id string, result models.OutcomeResult, err error) {
	if errors.Is(err, stacks.ErrPromptNotFound) {
		respondError(w, http.StatusNotFound, "Prompt not found", nil)
		return
	}
	if err != nil {
		respondError(w, http.StatusBadRequest, "Cannot resolve prompt", err)
		return
	}

	h.logger.Info("Prompt resolved", zap.String("prompt_id", id), zap.String("result", string(result)))
	respondJSON(w, http.StatusOK, PromptResolvedResponse{ID: id, Result: result})
}

// ==================== Portfolio ====================

// HandleGetPortfolio handles GET /api/v1/portfolio/{principal}
func (h *Handler) HandleGetPortfolio(w http.ResponseWriter, r *http.Request) {
	principal := mux.Vars(r)["principal"]

	portfolio, err := h.portfolio.GetPortfolio(r.Context(), principal)
	if err != nil {
		if errors.Is(err, stacks.ErrInvalidAddress) {
			respondError(w, http.StatusBadRequest, "Invalid principal", err)
			return
		}
		h.logger.Error("Failed to get portfolio", zap.String("principal", principal), zap.Error(err))
		respondError(w, http.StatusBadGateway, "Failed to get portfolio", err)
		return
	}

	respondJSON(w, http.StatusOK, portfolio)
}

// HandleWithdraw handles POST /api/v1/portfolio/withdraw
// The withdrawal waits on a wallet prompt, so it runs in the background unless ?wait=true.
func (h *Handler) HandleWithdraw(w http.ResponseWriter, r *http.Request) {
	var req AmountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if _, err := orchestrator.ParseAmount(req.Amount); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid amount", err)
		return
	}

	if r.URL.Query().Get("wait") == "true" {
		outcome, err := h.portfolio.Withdraw(r.Context(), req.Amount)
		if err != nil {
			respondError(w, http.StatusBadRequest, "Cannot withdraw", err)
			return
		}
		respondJSON(w, http.StatusOK, withdrawResponse(outcome))
		return
	}

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		outcome, err := h.portfolio.Withdraw(context.Background(), req.Amount)
		if err != nil {
			h.logger.Warn("Withdrawal failed", zap.Error(err))
			return
		}
		if outcome.Err != nil {
			h.logger.Warn("Withdrawal failed", zap.Error(outcome.Err))
		}
	}()

	respondJSON(w, http.StatusAccepted, WithdrawResponse{Result: "prompted"})
}

func withdrawResponse(outcome models.Outcome) WithdrawResponse {
	resp := WithdrawResponse{Result: outcome.Result, TxID: outcome.TxID}
	if outcome.Err != nil {
		resp.Error = outcome.Err.Error()
	}
	return resp
}

// ==================== Addresses ====================

// HandleEncodeAddress handles POST /api/v1/addresses/encode
func (h *Handler) HandleEncodeAddress(w http.ResponseWriter, r *http.Request) {
	var req EncodeAddressRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	var (
		recipient *service.Recipient
		err       error
	)
	switch {
	case req.PublicKey != "":
		recipient, err = h.addresses.FromPublicKey(req.PublicKey)
	case req.Address != "":
		recipient, err = h.addresses.Encode(req.Address)
	default:
		respondError(w, http.StatusBadRequest, "address or public_key is required", nil)
		return
	}
	if err != nil {
		respondError(w, http.StatusBadRequest, "Cannot encode address", err)
		return
	}

	respondJSON(w, http.StatusOK, recipient)
}

// HandleDecodeAddress handles POST /api/v1/addresses/decode
func (h *Handler) HandleDecodeAddress(w http.ResponseWriter, r *http.Request) {
	var req DecodeAddressRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Recipient == "" {
		respondError(w, http.StatusBadRequest, "recipient is required", nil)
		return
	}

	recipient, err := h.addresses.Decode(req.Recipient)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Cannot decode recipient", err)
		return
	}

	respondJSON(w, http.StatusOK, recipient)
}

// ==================== Helper Functions ====================

// session resolves the {sessionId} route variable, writing the error response itself
func (h *Handler) session(w http.ResponseWriter, r *http.Request) *orchestrator.Orchestrator {
	id := mux.Vars(r)["sessionId"]

	orch, err := h.sessions.GetSession(r.Context(), id)
	if err != nil {
		h.logger.Error("Failed to get session", zap.String("session_id", id), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Failed to get session", err)
		return nil
	}
	if orch == nil {
		respondError(w, http.StatusNotFound, "Session not found", nil)
		return nil
	}
	return orch
}

// launch claims the session for an operation and runs it. Precondition failures are answered
// before anything runs. With ?wait=true it answers with the snapshot after the operation
// returns; otherwise it answers 202 right away and the client polls the session.
// Adapter failures land in the snapshot, not in the HTTP status.
func (h *Handler) launch(
	w http.ResponseWriter,
	r *http.Request,
	orch *orchestrator.Orchestrator,
	operation string,
	start func() (orchestrator.Operation, error),
) {
	op, err := start()
	if err != nil {
		status := operationStatus(err)
		if status == 0 {
			status = http.StatusInternalServerError
		}
		respondError(w, status, fmt.Sprintf("Cannot %s", operation), err)
		return
	}

	if r.URL.Query().Get("wait") == "true" {
		h.run(r.Context(), orch, operation, op)
		respondJSON(w, http.StatusOK, orch.Snapshot())
		return
	}

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		h.run(context.Background(), orch, operation, op)
	}()

	respondJSON(w, http.StatusAccepted, orch.Snapshot())
}

func (h *Handler) run(ctx context.Context, orch *orchestrator.Orchestrator, operation string, op orchestrator.Operation) {
	if err := op(ctx); err != nil {
		h.logger.Warn("Operation failed",
			zap.String("operation", operation),
			zap.String("session_id", orch.ID()),
			zap.Error(err))
	}
}

// operationStatus maps precondition errors to an HTTP status, 0 for anything else
func operationStatus(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, orchestrator.ErrOperationInProgress),
		errors.Is(err, orchestrator.ErrInvalidState),
		errors.Is(err, orchestrator.ErrStrategyLocked):
		return http.StatusConflict
	case orchestrator.IsPrecondition(err):
		return http.StatusBadRequest
	}
	return 0
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Log error but can't send response since headers already written
		fmt.Printf("Failed to encode JSON response: %v\n", err)
	}
}

// respondError sends an error response
func respondError(w http.ResponseWriter, statusCode int, message string, err error) {
	errorMsg := message
	if err != nil {
		errorMsg = fmt.Sprintf("%s: %v", message, err)
	}

	response := ErrorResponse{
		Error:   message,
		Message: errorMsg,
	}

	respondJSON(w, statusCode, response)
}
