package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"usdcx/bridge/internal/blockchain/stacks"
	"usdcx/bridge/internal/config"
	"usdcx/bridge/internal/ledger"
	"usdcx/bridge/internal/models"
)

// SourceChain is the ledger funds leave from
type SourceChain interface {
	Account() (string, bool)
	Allowance(ctx context.Context, owner string) (*big.Int, error)
	Balance(ctx context.Context, owner string) (*big.Int, error)
	AuthorizeSpend(ctx context.Context, amount *big.Int) <-chan models.TxEvent
	InitiateTransfer(ctx context.Context, amount *big.Int, recipient [32]byte) <-chan models.TxEvent
	TxURL(txHash string) string
}

// DestinationChain is the ledger funds arrive on
type DestinationChain interface {
	TokenBalance(ctx context.Context, principal string) (*big.Int, error)
	AwaitArrival(ctx context.Context, recipient string, baseline, amount *big.Int) error
	DepositToVault(ctx context.Context, sender string, amount *big.Int) models.Outcome
	TxURL(txID string) string
}

type session struct {
	id             string
	step           models.Step
	status         models.SessionStatus
	errorStep      models.Step // zero when unset
	errorKind      models.FailureKind
	errorReason    string
	amount         string
	strategy       models.Strategy
	destination    string
	strategyLocked bool
	sourceBalance  *big.Int
	allowance      *big.Int
	createdAt      time.Time
	updatedAt      time.Time
}

// settlement is the arrival wait of a transfer confirmed on the source chain
type settlement struct {
	recipient string
	baseline  *big.Int
	amount    *big.Int
}

// Snapshot is a point-in-time copy of a session
type Snapshot struct {
	ID             string               `json:"id"`
	Step           models.Step          `json:"step"`
	StepName       string               `json:"step_name"`
	Status         models.SessionStatus `json:"status"`
	Progress       int                  `json:"progress"`
	ErrorStep      models.Step          `json:"error_step,omitempty"`
	ErrorKind      models.FailureKind   `json:"error_kind,omitempty"`
	ErrorReason    string               `json:"error_reason,omitempty"`
	Amount         string               `json:"amount"`
	Strategy       models.Strategy      `json:"strategy"`
	StrategyLocked bool                 `json:"strategy_locked"`
	Destination    string               `json:"destination,omitempty"`
	SourceBalance  string               `json:"source_balance,omitempty"`
	Allowance      string               `json:"allowance,omitempty"`
	InFlight       bool                 `json:"in_flight"`
	Message        StatusMessage        `json:"message"`
	CreatedAt      time.Time            `json:"created_at"`
	UpdatedAt      time.Time            `json:"updated_at"`
}

// Orchestrator drives one bridging session through approve, transfer and deposit.
// At most one operation runs at a time; adapter lifecycle events are applied in order.
type Orchestrator struct {
	id         string
	mu         sync.Mutex
	s          session
	inFlight   bool
	settlement *settlement

	source  SourceChain
	dest    DestinationChain
	ledger  *ledger.Ledger
	cfg     config.OrchestratorConfig
	metrics *Metrics
	logger  *zap.Logger
}

// New creates an orchestrator for a fresh session
func New(
	id string,
	source SourceChain,
	dest DestinationChain,
	l *ledger.Ledger,
	cfg config.OrchestratorConfig,
	metrics *Metrics,
	logger *zap.Logger,
) *Orchestrator {
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	now := time.Now().UTC()

	return &Orchestrator{
		id:      id,
		s:       newSession(id, now),
		source:  source,
		dest:    dest,
		ledger:  l,
		cfg:     cfg,
		metrics: metrics,
		logger:  logger.Named("orchestrator").With(zap.String("session_id", id)),
	}
}

func newSession(id string, createdAt time.Time) session {
	return session{
		id:        id,
		step:      models.StepConnect,
		status:    models.StatusIdle,
		strategy:  models.StrategyWallet,
		createdAt: createdAt,
		updatedAt: createdAt,
	}
}

// ID returns the session id
func (o *Orchestrator) ID() string {
	return o.id
}

// Ledger returns the session's transaction ledger
func (o *Orchestrator) Ledger() *ledger.Ledger {
	return o.ledger
}

// Transactions returns the session history, newest first
func (o *Orchestrator) Transactions() []models.TxRecord {
	return o.ledger.All()
}

// Snapshot returns a copy of the current session state
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()

	snap := Snapshot{
		ID:             o.s.id,
		Step:           o.s.step,
		StepName:       o.s.step.String(),
		Status:         o.s.status,
		Progress:       o.s.step.Progress(),
		ErrorStep:      o.s.errorStep,
		ErrorKind:      o.s.errorKind,
		ErrorReason:    o.s.errorReason,
		Amount:         o.s.amount,
		Strategy:       o.s.strategy,
		StrategyLocked: o.s.strategyLocked,
		Destination:    o.s.destination,
		InFlight:       o.inFlight,
		Message:        MessageFor(o.s.status, o.s.strategy, o.s.errorStep, o.s.errorReason),
		CreatedAt:      o.s.createdAt,
		UpdatedAt:      o.s.updatedAt,
	}
	if o.s.sourceBalance != nil {
		snap.SourceBalance = FormatUnits(o.s.sourceBalance)
	}
	if o.s.allowance != nil {
		snap.Allowance = FormatUnits(o.s.allowance)
	}
	return snap
}

// NeedsApproval reports whether amount exceeds the last known allowance. Invalid amounts and
// an unknown allowance need approval. The snapshot may be stale.
func (o *Orchestrator) NeedsApproval(amount string) bool {
	units, err := ParseAmount(amount)
	if err != nil {
		return true
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	return o.s.allowance == nil || units.Cmp(o.s.allowance) > 0
}

// RefreshBalances re-queries the allowance and source balance of the connected account
func (o *Orchestrator) RefreshBalances(ctx context.Context) error {
	owner, ok := o.source.Account()
	if !ok {
		return ErrWalletNotConnected
	}

	allowance, err := o.source.Allowance(ctx, owner)
	if err != nil {
		return fmt.Errorf("failed to query allowance: %w", err)
	}
	balance, err := o.source.Balance(ctx, owner)
	if err != nil {
		return fmt.Errorf("failed to query balance: %w", err)
	}

	o.mu.Lock()
	o.s.allowance = allowance
	o.s.sourceBalance = balance
	o.mu.Unlock()
	return nil
}

// SetStrategy selects where bridged funds end up
func (o *Orchestrator) SetStrategy(strategy models.Strategy) error {
	if _, err := models.ParseStrategy(string(strategy)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidState, err)
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.s.strategyLocked && strategy != o.s.strategy {
		return ErrStrategyLocked
	}
	o.s.strategy = strategy
	o.s.updatedAt = time.Now().UTC()
	return nil
}

// Operation is a claimed session operation. Calling it runs the operation and releases the
// session; it must be called exactly once.
type Operation func(ctx context.Context) error

func noop(context.Context) error { return nil }

// Approve authorizes the bridge contract to spend amount of the connected account's USDC
func (o *Orchestrator) Approve(ctx context.Context, amount string) error {
	op, err := o.StartApprove(amount)
	if err != nil {
		return err
	}
	return op(ctx)
}

// StartApprove checks the approval preconditions and claims the session
func (o *Orchestrator) StartApprove(amount string) (Operation, error) {
	units, err := ParseAmount(amount)
	if err != nil {
		return nil, err
	}
	if _, ok := o.source.Account(); !ok {
		return nil, ErrWalletNotConnected
	}

	err = o.begin(func() error {
		if o.s.status != models.StatusIdle && o.s.status != models.StatusAwaitingApproval {
			return fmt.Errorf("%w: cannot approve while %s", ErrInvalidState, o.s.status)
		}
		o.clearErrorLocked()
		o.s.amount = amount
		return nil
	})
	if err != nil {
		return nil, err
	}

	return func(ctx context.Context) error {
		defer o.end()
		return o.approve(ctx, units)
	}, nil
}

func (o *Orchestrator) approve(ctx context.Context, units *big.Int) error {
	start := time.Now()
	actx, cancel := context.WithTimeout(ctx, o.cfg.ApprovalTimeout)
	defer cancel()

	result := o.await(actx, o.source.AuthorizeSpend(actx, units), func(ev models.TxEvent) {
		switch ev.Phase {
		case models.PhasePending:
			o.transition(models.StatusAwaitingApproval)
		case models.PhaseConfirming:
			o.transition(models.StatusApproving)
		}
	})
	if result.Phase == models.PhaseError {
		o.fail(models.StepApprove, models.StatusAwaitingApproval, result.Err)
		o.observe("approve", start, result.Err)
		return result.Err
	}

	o.ledger.Record(models.TxRecord{
		ID:          result.TxHash,
		Chain:       models.ChainEthereum,
		Label:       "USDC Approval",
		Subtitle:    FormatUnits(units) + " USDC",
		Status:      models.TxConfirmed,
		ExplorerURL: explorerURL(o.source.TxURL(result.TxHash)),
	})
	o.refresh(ctx)
	o.transition(models.StatusAwaitingTransfer)
	o.observe("approve", start, nil)
	return nil
}

// Transfer sends amount USDC through the bridge to destination and waits for it to arrive
func (o *Orchestrator) Transfer(ctx context.Context, amount, destination string) error {
	op, err := o.StartTransfer(amount, destination)
	if err != nil {
		return err
	}
	return op(ctx)
}

// StartTransfer checks the transfer preconditions, encodes destination and claims the session
func (o *Orchestrator) StartTransfer(amount, destination string) (Operation, error) {
	units, err := ParseAmount(amount)
	if err != nil {
		return nil, err
	}
	destination = strings.TrimSpace(destination)
	if destination == "" {
		return nil, fmt.Errorf("%w: destination is required", ErrInvalidAddress)
	}
	recipient, err := stacks.EncodeForBridge(destination)
	if err != nil {
		return nil, err
	}
	if _, ok := o.source.Account(); !ok {
		return nil, ErrWalletNotConnected
	}

	err = o.begin(func() error {
		if o.s.status != models.StatusAwaitingTransfer {
			return fmt.Errorf("%w: cannot transfer while %s", ErrInvalidState, o.s.status)
		}
		o.clearErrorLocked()
		o.s.amount = amount
		o.s.destination = destination
		o.s.strategyLocked = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	return func(ctx context.Context) error {
		defer o.end()
		start := time.Now()
		err := o.transfer(ctx, units, destination, recipient)
		o.observe("transfer", start, err)
		return err
	}, nil
}

func (o *Orchestrator) transfer(ctx context.Context, units *big.Int, destination string, recipient [32]byte) error {
	baseline, err := o.dest.TokenBalance(ctx, destination)
	if err != nil {
		err = &models.AdapterError{Kind: models.KindRejected, Reason: "could not read destination balance", Err: err}
		o.failTransfer(err)
		return err
	}

	tctx, cancel := context.WithTimeout(ctx, o.cfg.TransferTimeout)
	defer cancel()

	result := o.await(tctx, o.source.InitiateTransfer(tctx, units, recipient), func(models.TxEvent) {
		o.transition(models.StatusTransferring)
	})
	if result.Phase == models.PhaseError {
		o.failTransfer(result.Err)
		return result.Err
	}

	o.ledger.Record(models.TxRecord{
		ID:          result.TxHash,
		Chain:       models.ChainEthereum,
		Label:       "Bridge to USDCx",
		Subtitle:    FormatUnits(units) + " USDC → USDCx",
		Status:      models.TxConfirmed,
		ExplorerURL: explorerURL(o.source.TxURL(result.TxHash)),
	})

	o.mu.Lock()
	o.settlement = &settlement{recipient: destination, baseline: baseline, amount: units}
	o.transitionLocked(models.StatusSettling)
	o.mu.Unlock()

	return o.settle(ctx)
}

// failTransfer rolls a transfer that never confirmed back to awaiting_transfer.
// The strategy stays open until a transfer confirms.
func (o *Orchestrator) failTransfer(err error) {
	o.mu.Lock()
	o.s.strategyLocked = false
	o.mu.Unlock()
	o.fail(models.StepTransfer, models.StatusAwaitingTransfer, err)
}

// settle waits for the bridged funds on the destination chain
func (o *Orchestrator) settle(ctx context.Context) error {
	o.mu.Lock()
	st := o.settlement
	o.mu.Unlock()

	sctx, cancel := context.WithTimeout(ctx, o.cfg.SettlementTimeout)
	defer cancel()

	if err := o.dest.AwaitArrival(sctx, st.recipient, st.baseline, st.amount); err != nil {
		if models.FailureKindOf(err) != models.KindSettlement {
			err = &models.AdapterError{Kind: models.KindSettlement, Reason: "bridged funds did not arrive", Err: err}
		}
		o.fail(models.StepTransfer, models.StatusSettling, err)
		return err
	}

	o.mu.Lock()
	o.settlement = nil
	if o.s.strategy == models.StrategyVault {
		o.transitionLocked(models.StatusAwaitingDeposit)
	} else {
		o.transitionLocked(models.StatusComplete)
	}
	o.mu.Unlock()

	o.refresh(ctx)
	return nil
}

// Deposit moves amount of the bridged USDCx into the vault
func (o *Orchestrator) Deposit(ctx context.Context, amount string) error {
	op, err := o.StartDeposit(amount)
	if err != nil {
		return err
	}
	return op(ctx)
}

// StartDeposit checks the deposit preconditions and claims the session
func (o *Orchestrator) StartDeposit(amount string) (Operation, error) {
	units, err := ParseAmount(amount)
	if err != nil {
		return nil, err
	}

	var (
		prev   session
		sender string
	)
	err = o.begin(func() error {
		if o.s.strategy != models.StrategyVault {
			return fmt.Errorf("%w: deposit requires the vault strategy", ErrInvalidState)
		}
		if o.s.status != models.StatusAwaitingDeposit {
			return fmt.Errorf("%w: cannot deposit while %s", ErrInvalidState, o.s.status)
		}
		if o.s.destination == "" {
			return ErrWalletNotConnected
		}
		prev = o.s
		sender = o.s.destination
		o.clearErrorLocked()
		o.s.amount = amount
		o.transitionLocked(models.StatusDepositing)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return func(ctx context.Context) error {
		defer o.end()
		return o.deposit(ctx, prev, sender, units)
	}, nil
}

func (o *Orchestrator) deposit(ctx context.Context, prev session, sender string, units *big.Int) error {
	start := time.Now()
	dctx, cancel := context.WithTimeout(ctx, o.cfg.DepositTimeout)
	defer cancel()

	outcome := o.dest.DepositToVault(dctx, sender, units)

	switch outcome.Result {
	case models.OutcomeSuccess:
		o.ledger.Record(models.TxRecord{
			ID:          outcome.TxID,
			Chain:       models.ChainStacks,
			Label:       "Vault Deposit",
			Subtitle:    FormatUnits(units) + " USDCx",
			Status:      models.TxPending,
			ExplorerURL: explorerURL(o.dest.TxURL(outcome.TxID)),
		})
		o.transition(models.StatusComplete)
		o.observe("deposit", start, nil)
		return nil

	case models.OutcomeCancelled:
		o.mu.Lock()
		o.metrics.Transitions.WithLabelValues(string(o.s.status), string(prev.status)).Inc()
		o.s = prev
		o.mu.Unlock()
		o.logger.Info("Deposit cancelled")
		o.metrics.Operations.WithLabelValues("deposit", "cancelled").Observe(time.Since(start).Seconds())
		return nil

	default:
		err := outcome.Err
		if err == nil {
			err = &models.AdapterError{Kind: models.KindRejected, Reason: "deposit failed"}
		}
		o.fail(models.StepDeposit, models.StatusAwaitingDeposit, err)
		o.observe("deposit", start, err)
		return err
	}
}

// Retry re-runs the operation of the failed step. It does nothing when no step failed.
// A transfer that failed while settling only resumes the arrival wait.
func (o *Orchestrator) Retry(ctx context.Context) error {
	op, err := o.StartRetry()
	if err != nil {
		return err
	}
	return op(ctx)
}

// StartRetry claims the session for a retry of the failed step
func (o *Orchestrator) StartRetry() (Operation, error) {
	o.mu.Lock()
	step := o.s.errorStep
	amount := o.s.amount
	destination := o.s.destination
	settling := o.settlement != nil
	o.mu.Unlock()

	switch step {
	case models.StepApprove:
		return o.StartApprove(amount)
	case models.StepTransfer:
		if settling {
			return o.startSettlement()
		}
		return o.StartTransfer(amount, destination)
	case models.StepDeposit:
		return o.StartDeposit(amount)
	}
	return noop, nil
}

func (o *Orchestrator) startSettlement() (Operation, error) {
	err := o.begin(func() error {
		if o.settlement == nil || o.s.status != models.StatusSettling {
			return fmt.Errorf("%w: no settlement to resume", ErrInvalidState)
		}
		o.clearErrorLocked()
		return nil
	})
	if err != nil {
		return nil, err
	}

	return func(ctx context.Context) error {
		defer o.end()
		start := time.Now()
		err := o.settle(ctx)
		o.observe("settle", start, err)
		return err
	}, nil
}

// Reset starts the session over. The ledger is kept.
func (o *Orchestrator) Reset() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.inFlight {
		return ErrOperationInProgress
	}

	from := o.s.status
	next := newSession(o.s.id, o.s.createdAt)
	next.allowance = o.s.allowance
	next.sourceBalance = o.s.sourceBalance
	next.updatedAt = time.Now().UTC()
	o.s = next
	o.settlement = nil

	if from != models.StatusIdle {
		o.metrics.Transitions.WithLabelValues(string(from), string(models.StatusIdle)).Inc()
	}
	o.logger.Info("Session reset")
	return nil
}

// begin claims the in-flight slot after check passes under the session lock
func (o *Orchestrator) begin(check func() error) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.inFlight {
		return ErrOperationInProgress
	}
	if err := check(); err != nil {
		return err
	}
	o.inFlight = true
	o.s.updatedAt = time.Now().UTC()
	return nil
}

func (o *Orchestrator) end() {
	o.mu.Lock()
	o.inFlight = false
	o.mu.Unlock()
}

// await applies non-terminal events through onEvent and returns the terminal one
func (o *Orchestrator) await(ctx context.Context, events <-chan models.TxEvent, onEvent func(models.TxEvent)) models.TxEvent {
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return models.TxEvent{Phase: models.PhaseError, Err: &models.AdapterError{
					Kind:   models.KindRejected,
					Reason: "transaction lifecycle ended without a result",
				}}
			}
			if ev.Terminal() {
				if ev.Phase == models.PhaseError && ev.Err == nil {
					ev.Err = &models.AdapterError{Kind: models.KindRejected, Reason: "transaction failed"}
				}
				return ev
			}
			onEvent(ev)
		case <-ctx.Done():
			return models.TxEvent{Phase: models.PhaseError, Err: &models.AdapterError{
				Kind:   models.KindTimeout,
				Reason: "no confirmation before the deadline",
				Err:    ctx.Err(),
			}}
		}
	}
}

func (o *Orchestrator) transition(to models.SessionStatus) {
	o.mu.Lock()
	o.transitionLocked(to)
	o.mu.Unlock()
}

func (o *Orchestrator) transitionLocked(to models.SessionStatus) {
	from := o.s.status
	if from == to {
		return
	}
	o.s.status = to
	o.s.step = to.Step()
	o.s.updatedAt = time.Now().UTC()

	o.metrics.Transitions.WithLabelValues(string(from), string(to)).Inc()
	o.logger.Debug("Status transition",
		zap.String("from", string(from)),
		zap.String("to", string(to)),
		zap.Int("step", int(o.s.step)))
}

// fail records a failed forward operation and rolls the status back to entry
func (o *Orchestrator) fail(step models.Step, entry models.SessionStatus, err error) {
	kind := models.FailureKindOf(err)

	o.mu.Lock()
	o.s.errorStep = step
	o.s.errorKind = kind
	o.s.errorReason = reasonOf(err)
	o.transitionLocked(entry)
	o.mu.Unlock()

	o.metrics.Failures.WithLabelValues(step.String(), string(kind)).Inc()
	o.logger.Warn("Step failed",
		zap.String("step", step.String()),
		zap.String("kind", string(kind)),
		zap.Error(err))
}

func (o *Orchestrator) clearErrorLocked() {
	o.s.errorStep = 0
	o.s.errorKind = ""
	o.s.errorReason = ""
}

// refresh updates the balance snapshots; failures only make them stale
func (o *Orchestrator) refresh(ctx context.Context) {
	if err := o.RefreshBalances(ctx); err != nil {
		o.logger.Warn("Failed to refresh balances", zap.Error(err))
	}
}

func (o *Orchestrator) observe(operation string, start time.Time, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	o.metrics.Operations.WithLabelValues(operation, result).Observe(time.Since(start).Seconds())
}

func reasonOf(err error) string {
	var adapterErr *models.AdapterError
	if errors.As(err, &adapterErr) {
		if adapterErr.Err != nil {
			return fmt.Sprintf("%s: %v", adapterErr.Reason, adapterErr.Err)
		}
		return adapterErr.Reason
	}
	return err.Error()
}

func explorerURL(u string) *string {
	if u == "" {
		return nil
	}
	return &u
}
