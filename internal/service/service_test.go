package service

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"usdcx/bridge/internal/config"
	"usdcx/bridge/internal/models"
)

const testPrincipal = "SP2J6ZY48GV1EZ5V2V5RB9MP66SW86PYKKNRV9EJ7"

type stubSource struct {
	connected bool
	balance   *big.Int
	err       error
}

func (s *stubSource) Account() (string, bool) {
	return "0x00000000000000000000000000000000000000aa", s.connected
}

func (s *stubSource) Allowance(ctx context.Context, owner string) (*big.Int, error) {
	return big.NewInt(0), nil
}

func (s *stubSource) Balance(ctx context.Context, owner string) (*big.Int, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.balance, nil
}

func (s *stubSource) AuthorizeSpend(ctx context.Context, amount *big.Int) <-chan models.TxEvent {
	return closedEvents()
}

func (s *stubSource) InitiateTransfer(ctx context.Context, amount *big.Int, recipient [32]byte) <-chan models.TxEvent {
	return closedEvents()
}

func (s *stubSource) TxURL(txHash string) string { return "" }

func closedEvents() <-chan models.TxEvent {
	ch := make(chan models.TxEvent)
	close(ch)
	return ch
}

type stubDest struct {
	balance   *big.Int
	withdrawn *big.Int
}

func (d *stubDest) TokenBalance(ctx context.Context, principal string) (*big.Int, error) {
	return d.balance, nil
}

func (d *stubDest) AwaitArrival(ctx context.Context, recipient string, baseline, amount *big.Int) error {
	return nil
}

func (d *stubDest) DepositToVault(ctx context.Context, sender string, amount *big.Int) models.Outcome {
	return models.Outcome{Result: models.OutcomeSuccess, TxID: "0xdeposit"}
}

func (d *stubDest) WithdrawFromVault(ctx context.Context, shares *big.Int) models.Outcome {
	d.withdrawn = shares
	return models.Outcome{Result: models.OutcomeSuccess, TxID: "0xwithdraw"}
}

func (d *stubDest) TxURL(txID string) string { return "" }

type stubStore struct {
	mu      sync.Mutex
	records []models.TxRecord
	updated []string
}

func (s *stubStore) InsertTxRecord(ctx context.Context, rec *models.TxRecord) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, *rec)
	return true, nil
}

func (s *stubStore) UpdateTxRecordStatus(ctx context.Context, id string, status models.TxStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.records {
		if s.records[i].ID == id && s.records[i].Status == models.TxPending {
			s.records[i].Status = status
			s.updated = append(s.updated, id)
			return true, nil
		}
	}
	return false, nil
}

func (s *stubStore) GetTxRecordsBySession(ctx context.Context, sessionID string) ([]models.TxRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.TxRecord
	for i := len(s.records) - 1; i >= 0; i-- {
		if s.records[i].SessionID == sessionID {
			out = append(out, s.records[i])
		}
	}
	return out, nil
}

func (s *stubStore) GetPendingTxRecords(ctx context.Context, chain models.Chain) ([]models.TxRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.TxRecord
	for _, rec := range s.records {
		if rec.Chain == chain && rec.Status == models.TxPending {
			out = append(out, rec)
		}
	}
	return out, nil
}

func testOrchestratorConfig() config.OrchestratorConfig {
	return config.OrchestratorConfig{
		ApprovalTimeout:   time.Second,
		TransferTimeout:   time.Second,
		SettlementTimeout: time.Second,
		DepositTimeout:    time.Second,
	}
}

func newTestSessions(store RecordStore) *SessionService {
	return NewSessionService(
		&stubSource{connected: true, balance: big.NewInt(0)},
		&stubDest{balance: big.NewInt(0)},
		store,
		testOrchestratorConfig(),
		nil,
		zap.NewNop(),
	)
}

func TestCreateAndGetSession(t *testing.T) {
	svc := newTestSessions(nil)
	ctx := context.Background()

	orch, err := svc.CreateSession(ctx)
	if err != nil {
		t.Fatalf("CreateSession() error: %v", err)
	}
	if orch.ID() == "" {
		t.Fatal("session id is empty")
	}

	got, err := svc.GetSession(ctx, orch.ID())
	if err != nil {
		t.Fatalf("GetSession() error: %v", err)
	}
	if got != orch {
		t.Error("GetSession() returned a different session")
	}

	missing, err := svc.GetSession(ctx, "4b8f1c1e-0000-4000-8000-000000000000")
	if err != nil || missing != nil {
		t.Errorf("GetSession(unknown) = %v, %v; want nil, nil", missing, err)
	}

	second, _ := svc.CreateSession(ctx)
	if second.ID() == orch.ID() {
		t.Error("session ids collide")
	}
	if n := len(svc.ListSessions()); n != 2 {
		t.Errorf("ListSessions() returned %d sessions, want 2", n)
	}
}

func TestGetSessionRestoresHistory(t *testing.T) {
	store := &stubStore{}
	ctx := context.Background()

	first := newTestSessions(store)
	orch, _ := first.CreateSession(ctx)
	orch.Ledger().Record(models.TxRecord{ID: "0xabc", Chain: models.ChainEthereum, Label: "Bridge to USDCx", Status: models.TxConfirmed})

	// a fresh service stands in for a restart
	restarted := newTestSessions(store)
	restored, err := restarted.GetSession(ctx, orch.ID())
	if err != nil {
		t.Fatalf("GetSession() error: %v", err)
	}
	if restored == nil {
		t.Fatal("GetSession() = nil, want restored session")
	}
	if restored.Ledger().Len() != 1 {
		t.Errorf("restored ledger size = %d, want 1", restored.Ledger().Len())
	}
	if snap := restored.Snapshot(); snap.Status != models.StatusIdle {
		t.Errorf("restored status = %s, want idle", snap.Status)
	}

	if got, _ := restarted.GetSession(ctx, "not-a-uuid"); got != nil {
		t.Error("GetSession() restored a malformed id")
	}
}

func TestPendingRecordsAndUpdate(t *testing.T) {
	store := &stubStore{
		records: []models.TxRecord{
			{ID: "0xold", SessionID: "earlier-run", Chain: models.ChainStacks, Status: models.TxPending},
		},
	}
	svc := newTestSessions(store)
	ctx := context.Background()

	orch, _ := svc.CreateSession(ctx)
	orch.Ledger().Record(models.TxRecord{ID: "0xlive", Chain: models.ChainStacks, Label: "Vault Deposit", Status: models.TxPending})
	orch.Ledger().Record(models.TxRecord{ID: "0xeth", Chain: models.ChainEthereum, Label: "Bridge to USDCx", Status: models.TxPending})

	pending, err := svc.PendingRecords(ctx, models.ChainStacks)
	if err != nil {
		t.Fatalf("PendingRecords() error: %v", err)
	}
	ids := map[string]bool{}
	for _, rec := range pending {
		ids[rec.ID] = true
	}
	if len(pending) != 2 || !ids["0xlive"] || !ids["0xold"] {
		t.Errorf("PendingRecords() = %+v, want 0xlive and 0xold once each", pending)
	}

	for _, rec := range pending {
		updated, err := svc.UpdateRecordStatus(ctx, rec, models.TxConfirmed)
		if err != nil || !updated {
			t.Errorf("UpdateRecordStatus(%s) = %v, %v", rec.ID, updated, err)
		}
	}
	if got, _ := orch.Ledger().Get("0xlive"); got.Status != models.TxConfirmed {
		t.Errorf("live record status = %s, want confirmed", got.Status)
	}

	pending, _ = svc.PendingRecords(ctx, models.ChainStacks)
	if len(pending) != 0 {
		t.Errorf("records still pending: %+v", pending)
	}
}

func TestGetPortfolio(t *testing.T) {
	tests := []struct {
		name      string
		source    *stubSource
		principal string
		wantUSDCx string
		wantUSDC  string
		wantErr   bool
	}{
		{
			name:      "wallet connected",
			source:    &stubSource{connected: true, balance: big.NewInt(12_500_000)},
			principal: testPrincipal,
			wantUSDCx: "3.00",
			wantUSDC:  "12.50",
		},
		{
			name:      "no wallet",
			source:    &stubSource{},
			principal: testPrincipal,
			wantUSDCx: "3.00",
		},
		{
			name:      "invalid principal",
			source:    &stubSource{},
			principal: "nope",
			wantErr:   true,
		},
		{
			name:      "source unavailable",
			source:    &stubSource{connected: true, err: errors.New("rpc down")},
			principal: testPrincipal,
			wantErr:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dest := &stubDest{balance: big.NewInt(3_000_000)}
			svc := NewPortfolioService(tt.source, dest, dest, zap.NewNop())

			p, err := svc.GetPortfolio(context.Background(), tt.principal)
			if (err != nil) != tt.wantErr {
				t.Fatalf("GetPortfolio() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if p.USDCx != tt.wantUSDCx || p.USDC != tt.wantUSDC {
				t.Errorf("portfolio = %+v", p)
			}
		})
	}
}

func TestWithdraw(t *testing.T) {
	dest := &stubDest{balance: big.NewInt(0)}
	svc := NewPortfolioService(&stubSource{}, dest, dest, zap.NewNop())

	outcome, err := svc.Withdraw(context.Background(), "1.5")
	if err != nil {
		t.Fatalf("Withdraw() error: %v", err)
	}
	if outcome.Result != models.OutcomeSuccess || outcome.TxID != "0xwithdraw" {
		t.Errorf("outcome = %+v", outcome)
	}
	if dest.withdrawn.Cmp(big.NewInt(1_500_000)) != 0 {
		t.Errorf("shares = %s, want 1500000", dest.withdrawn)
	}

	if _, err := svc.Withdraw(context.Background(), "0"); err == nil {
		t.Error("Withdraw(0) expected error")
	}
}

func TestAddressService(t *testing.T) {
	svc := NewAddressService("mainnet", zap.NewNop())

	enc, err := svc.Encode(testPrincipal)
	if err != nil {
		t.Fatalf("Encode() error: %v", err)
	}
	want := "0x0000000000000000000000" + "16" + "a46ff88886c2ef9762d970b4d2c63678835bd39d"
	if enc.Hex != want {
		t.Errorf("Encode() hex = %s, want %s", enc.Hex, want)
	}
	if enc.Version != 22 || enc.Network != "mainnet" {
		t.Errorf("Encode() = %+v", enc)
	}

	dec, err := svc.Decode(want)
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	if dec.Address != testPrincipal {
		t.Errorf("Decode() address = %s, want %s", dec.Address, testPrincipal)
	}

	if _, err := svc.Encode("SP123"); err == nil {
		t.Error("Encode() accepted an invalid address")
	}
	if _, err := svc.Decode("0x1234"); err == nil {
		t.Error("Decode() accepted a short recipient")
	}

	fromKey, err := svc.FromPublicKey("0279be667ef9dcbbac55a06295ce870b07029bfcdb2dce28d959f2815b16f81798")
	if err != nil {
		t.Fatalf("FromPublicKey() error: %v", err)
	}
	if fromKey.Hex != "0x0000000000000000000000"+"16"+"751e76e8199196d454941c45d1b3a323f1433bd6" {
		t.Errorf("FromPublicKey() hex = %s", fromKey.Hex)
	}
}
