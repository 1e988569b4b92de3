package orchestrator

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"usdcx/bridge/internal/models"
)

// fakeSource scripts the lifecycle of each source-chain call. An exhausted script
// confirms with a fresh hash.
type fakeSource struct {
	mu sync.Mutex

	account   string
	connected bool
	allowance *big.Int
	balance   *big.Int

	approveScripts  [][]models.TxEvent
	transferScripts [][]models.TxEvent
	approveCalls    int
	transferCalls   int
	lastRecipient   [32]byte

	// gate, when set, holds lifecycle delivery until closed
	gate chan struct{}
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		account:   "0x00000000000000000000000000000000000000aa",
		connected: true,
		allowance: big.NewInt(0),
		balance:   big.NewInt(1_000_000_000),
	}
}

func confirmed(hash string) []models.TxEvent {
	return []models.TxEvent{
		{Phase: models.PhasePending},
		{Phase: models.PhaseConfirming, TxHash: hash},
		{Phase: models.PhaseSuccess, TxHash: hash},
	}
}

func failed(kind models.FailureKind, reason string) []models.TxEvent {
	return []models.TxEvent{
		{Phase: models.PhasePending},
		{Phase: models.PhaseError, Err: &models.AdapterError{Kind: kind, Reason: reason}},
	}
}

func (f *fakeSource) Account() (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.account, f.connected
}

func (f *fakeSource) Allowance(ctx context.Context, owner string) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return new(big.Int).Set(f.allowance), nil
}

func (f *fakeSource) Balance(ctx context.Context, owner string) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return new(big.Int).Set(f.balance), nil
}

func (f *fakeSource) AuthorizeSpend(ctx context.Context, amount *big.Int) <-chan models.TxEvent {
	f.mu.Lock()
	f.approveCalls++
	events := f.next(&f.approveScripts, fmt.Sprintf("0xapprove%d", f.approveCalls))
	if events[len(events)-1].Phase == models.PhaseSuccess {
		f.allowance = new(big.Int).Set(amount)
	}
	f.mu.Unlock()
	return f.emit(events)
}

func (f *fakeSource) InitiateTransfer(ctx context.Context, amount *big.Int, recipient [32]byte) <-chan models.TxEvent {
	f.mu.Lock()
	f.transferCalls++
	f.lastRecipient = recipient
	events := f.next(&f.transferScripts, fmt.Sprintf("0xtransfer%d", f.transferCalls))
	if events[len(events)-1].Phase == models.PhaseSuccess {
		f.balance = new(big.Int).Sub(f.balance, amount)
		f.allowance = new(big.Int).Sub(f.allowance, amount)
	}
	f.mu.Unlock()
	return f.emit(events)
}

func (f *fakeSource) TxURL(txHash string) string {
	return "https://etherscan.io/tx/" + txHash
}

func (f *fakeSource) next(scripts *[][]models.TxEvent, hash string) []models.TxEvent {
	if len(*scripts) == 0 {
		return confirmed(hash)
	}
	events := (*scripts)[0]
	*scripts = (*scripts)[1:]
	return events
}

func (f *fakeSource) emit(events []models.TxEvent) <-chan models.TxEvent {
	ch := make(chan models.TxEvent, len(events))
	gate := f.gate
	go func() {
		defer close(ch)
		if gate != nil {
			<-gate
		}
		for _, ev := range events {
			ch <- ev
		}
	}()
	return ch
}

func (f *fakeSource) calls() (approve, transfer int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.approveCalls, f.transferCalls
}

// fakeDestination credits the recipient on each successful arrival wait
type fakeDestination struct {
	mu sync.Mutex

	balance        *big.Int
	balanceErr     error
	arrivalErrs    []error
	arrivalCalls   int
	depositResults []models.Outcome
	depositCalls   int
	lastSender     string
}

func newFakeDestination() *fakeDestination {
	return &fakeDestination{balance: big.NewInt(0)}
}

func (f *fakeDestination) TokenBalance(ctx context.Context, principal string) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.balanceErr != nil {
		return nil, f.balanceErr
	}
	return new(big.Int).Set(f.balance), nil
}

func (f *fakeDestination) AwaitArrival(ctx context.Context, recipient string, baseline, amount *big.Int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.arrivalCalls++
	if len(f.arrivalErrs) > 0 {
		err := f.arrivalErrs[0]
		f.arrivalErrs = f.arrivalErrs[1:]
		if err != nil {
			return err
		}
	}
	f.balance = new(big.Int).Add(baseline, amount)
	return nil
}

func (f *fakeDestination) DepositToVault(ctx context.Context, sender string, amount *big.Int) models.Outcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.depositCalls++
	f.lastSender = sender
	if len(f.depositResults) > 0 {
		outcome := f.depositResults[0]
		f.depositResults = f.depositResults[1:]
		return outcome
	}
	return models.Outcome{Result: models.OutcomeSuccess, TxID: fmt.Sprintf("0xdeposit%d", f.depositCalls)}
}

func (f *fakeDestination) TxURL(txID string) string {
	return "https://explorer.hiro.so/txid/" + txID + "?chain=mainnet"
}
