package api

import (
	"usdcx/bridge/internal/models"
	"usdcx/bridge/internal/orchestrator"
)

// ==================== Sessions ====================

// AmountRequest carries a decimal token amount, e.g. "100.5"
type AmountRequest struct {
	Amount string `json:"amount"`
}

// TransferRequest represents request to bridge USDC to a Stacks address
type TransferRequest struct {
	Amount      string `json:"amount"`
	Destination string `json:"destination"`
}

// StrategyRequest represents request to select the session strategy
type StrategyRequest struct {
	Strategy string `json:"strategy"`
}

// ListSessionsResponse represents response with live sessions
type ListSessionsResponse struct {
	Sessions []orchestrator.Snapshot `json:"sessions"`
}

// TransactionsResponse represents response with a session ledger, newest first
type TransactionsResponse struct {
	SessionID    string            `json:"session_id"`
	Transactions []models.TxRecord `json:"transactions"`
}

// NeedsApprovalResponse represents response to an allowance check
type NeedsApprovalResponse struct {
	Amount        string `json:"amount"`
	NeedsApproval bool   `json:"needs_approval"`
	Allowance     string `json:"allowance,omitempty"`
}

// ==================== Prompts ====================

// FinishPromptRequest reports the tx id the wallet broadcast
type FinishPromptRequest struct {
	TxID string `json:"tx_id"`
}

// FailPromptRequest reports a wallet error
type FailPromptRequest struct {
	Reason string `json:"reason"`
}

// PromptResolvedResponse represents response after resolving a prompt
type PromptResolvedResponse struct {
	ID     string               `json:"id"`
	Result models.OutcomeResult `json:"result"`
}

// ==================== Portfolio ====================

// WithdrawResponse represents response to a vault withdrawal
type WithdrawResponse struct {
	Result models.OutcomeResult `json:"result"`
	TxID   string               `json:"tx_id,omitempty"`
	Error  string               `json:"error,omitempty"`
}

// ==================== Addresses ====================

// EncodeAddressRequest represents request to encode a Stacks address, or the address of a
// public key, as a bridge recipient
type EncodeAddressRequest struct {
	Address   string `json:"address,omitempty"`
	PublicKey string `json:"public_key,omitempty"`
}

// DecodeAddressRequest represents request to decode a hex bridge recipient
type DecodeAddressRequest struct {
	Recipient string `json:"recipient"`
}

// ==================== Error Response ====================

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// ==================== Health Check ====================

// HealthResponse represents health check response
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}
