package orchestrator

import (
	"errors"

	"usdcx/bridge/internal/blockchain/stacks"
)

// Precondition errors. None of them sets the session's error step.
var (
	ErrInvalidAmount       = errors.New("amount must be a positive number with at most 6 decimals")
	ErrWalletNotConnected  = errors.New("wallet not connected")
	ErrOperationInProgress = errors.New("an operation is already in progress")
	ErrInvalidState        = errors.New("operation not allowed in the current state")
	ErrStrategyLocked      = errors.New("strategy cannot change after the transfer was initiated")
	ErrInvalidAddress      = stacks.ErrInvalidAddress
)

// IsPrecondition reports whether err is a caller-correctable precondition failure
func IsPrecondition(err error) bool {
	for _, target := range []error{
		ErrInvalidAmount,
		ErrWalletNotConnected,
		ErrOperationInProgress,
		ErrInvalidState,
		ErrStrategyLocked,
		ErrInvalidAddress,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
