package models

import (
	"errors"
	"fmt"
	"time"
)

// Step is the ordinal stage of a bridging session (1..5)
type Step int

const (
	StepConnect  Step = 1
	StepApprove  Step = 2
	StepTransfer Step = 3
	StepDeposit  Step = 4
	StepComplete Step = 5
)

func (s Step) String() string {
	switch s {
	case StepConnect:
		return "connect"
	case StepApprove:
		return "approve"
	case StepTransfer:
		return "transfer"
	case StepDeposit:
		return "deposit"
	case StepComplete:
		return "complete"
	}
	return fmt.Sprintf("step(%d)", int(s))
}

// Progress returns the progress percentage shown for a step
func (s Step) Progress() int {
	switch s {
	case StepApprove:
		return 25
	case StepTransfer:
		return 50
	case StepDeposit:
		return 75
	case StepComplete:
		return 100
	}
	return 0
}

// SessionStatus represents the state of a bridging session
type SessionStatus string

const (
	StatusIdle             SessionStatus = "idle"
	StatusAwaitingApproval SessionStatus = "awaiting_approval"
	StatusApproving        SessionStatus = "approving"
	StatusAwaitingTransfer SessionStatus = "awaiting_transfer"
	StatusTransferring     SessionStatus = "transferring"
	StatusSettling         SessionStatus = "settling"
	StatusAwaitingDeposit  SessionStatus = "awaiting_deposit"
	StatusDepositing       SessionStatus = "depositing"
	StatusComplete         SessionStatus = "complete"
)

var statusSteps = map[SessionStatus]Step{
	StatusIdle:             StepConnect,
	StatusAwaitingApproval: StepApprove,
	StatusApproving:        StepApprove,
	StatusAwaitingTransfer: StepTransfer,
	StatusTransferring:     StepTransfer,
	StatusSettling:         StepTransfer,
	StatusAwaitingDeposit:  StepDeposit,
	StatusDepositing:       StepDeposit,
	StatusComplete:         StepComplete,
}

// Step returns the step a status occupies
func (s SessionStatus) Step() Step {
	return statusSteps[s]
}

// Valid reports whether s is a known status
func (s SessionStatus) Valid() bool {
	_, ok := statusSteps[s]
	return ok
}

// Strategy selects where bridged funds end up
type Strategy string

const (
	StrategyWallet Strategy = "wallet"
	StrategyVault  Strategy = "vault"
)

// ParseStrategy parses a strategy name
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case StrategyWallet, StrategyVault:
		return Strategy(s), nil
	}
	return "", fmt.Errorf("unknown strategy %q", s)
}

// Chain identifies the ledger a transaction lives on
type Chain string

const (
	ChainEthereum Chain = "ethereum"
	ChainStacks   Chain = "stacks"
)

// TxStatus represents the status of a recorded transaction
type TxStatus string

const (
	TxPending   TxStatus = "pending"
	TxConfirmed TxStatus = "confirmed"
	TxFailed    TxStatus = "failed"
)

// TxRecord is one submitted transaction shown in the session history
type TxRecord struct {
	ID          string    `db:"id" json:"id"`
	SessionID   string    `db:"session_id" json:"session_id"`
	Chain       Chain     `db:"chain" json:"chain"`
	Label       string    `db:"label" json:"label"`
	Subtitle    string    `db:"subtitle" json:"subtitle"`
	Status      TxStatus  `db:"status" json:"status"`
	ExplorerURL *string   `db:"explorer_url" json:"explorer_url,omitempty"`
	Timestamp   time.Time `db:"created_at" json:"timestamp"`
}

// TxPhase is a stage of a source-chain transaction lifecycle
type TxPhase string

const (
	PhasePending    TxPhase = "pending"
	PhaseConfirming TxPhase = "confirming"
	PhaseSuccess    TxPhase = "success"
	PhaseError      TxPhase = "error"
)

// TxEvent is one lifecycle event emitted by the source-chain adapter
type TxEvent struct {
	Phase  TxPhase
	TxHash string
	Err    error
}

// Terminal reports whether the event ends the lifecycle
func (e TxEvent) Terminal() bool {
	return e.Phase == PhaseSuccess || e.Phase == PhaseError
}

// OutcomeResult is the result variant of a destination-chain signing prompt
type OutcomeResult string

const (
	OutcomeSuccess   OutcomeResult = "success"
	OutcomeCancelled OutcomeResult = "cancelled"
	OutcomeError     OutcomeResult = "error"
)

// Outcome is the result of a destination-chain contract call
type Outcome struct {
	Result OutcomeResult
	TxID   string
	Err    error
}

// FailureKind classifies adapter failures
type FailureKind string

const (
	KindRejected   FailureKind = "rejected"
	KindReverted   FailureKind = "reverted"
	KindTimeout    FailureKind = "timeout"
	KindSettlement FailureKind = "settlement"
)

// AdapterError is a retryable failure reported by a chain adapter
type AdapterError struct {
	Kind   FailureKind
	Reason string
	Err    error
}

func (e *AdapterError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

func (e *AdapterError) Unwrap() error {
	return e.Err
}

// FailureKindOf extracts the failure kind of err, defaulting to rejected
func FailureKindOf(err error) FailureKind {
	var adapterErr *AdapterError
	if errors.As(err, &adapterErr) {
		return adapterErr.Kind
	}
	return KindRejected
}
