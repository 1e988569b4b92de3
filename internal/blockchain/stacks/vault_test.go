package stacks

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"go.uber.org/zap"

	"usdcx/bridge/internal/models"
)

func newTestVault(t *testing.T, signer Signer) *Vault {
	t.Helper()
	v, err := NewVault(testStacksConfig("https://api.mainnet.hiro.so"), signer, zap.NewNop())
	if err != nil {
		t.Fatalf("NewVault() error: %v", err)
	}
	return v
}

func TestNewVaultRejectsBadContract(t *testing.T) {
	cfg := testStacksConfig("https://api.mainnet.hiro.so")
	for _, contract := range []string{"usdcx-vault", "SPBAD.usdcx-vault", "SP3K8BC0PPEVCV7NZ6QSRWPQ2JE9E5B6N3PA0KBR9."} {
		cfg.VaultContract = contract
		if _, err := NewVault(cfg, NewPromptSigner(zap.NewNop()), zap.NewNop()); err == nil {
			t.Errorf("NewVault(%q) expected error", contract)
		}
	}
}

func TestDepositCall(t *testing.T) {
	v := newTestVault(t, NewPromptSigner(zap.NewNop()))

	call := v.DepositCall(testPrincipal, big.NewInt(25_500_000))

	if call.ContractAddress != "SP3K8BC0PPEVCV7NZ6QSRWPQ2JE9E5B6N3PA0KBR9" || call.ContractName != "usdcx-vault" {
		t.Errorf("contract = %s.%s", call.ContractAddress, call.ContractName)
	}
	if call.FunctionName != "deposit" {
		t.Errorf("function = %s, want deposit", call.FunctionName)
	}
	if len(call.FunctionArgs) != 1 || call.FunctionArgs[0] != (ClarityArg{Type: "uint", Value: "25500000"}) {
		t.Errorf("args = %+v", call.FunctionArgs)
	}
	if call.PostConditionMode != PostConditionDeny {
		t.Errorf("post condition mode = %s, want deny", call.PostConditionMode)
	}
	want := PostCondition{
		Principal: testPrincipal,
		Condition: "lte",
		Amount:    "25500000",
		Asset:     "SP3K8BC0PPEVCV7NZ6QSRWPQ2JE9E5B6N3PA0KBR9.token-usdcx",
		AssetName: "usdcx",
	}
	if len(call.PostConditions) != 1 || call.PostConditions[0] != want {
		t.Errorf("post conditions = %+v, want %+v", call.PostConditions, want)
	}
}

func TestWithdrawCall(t *testing.T) {
	v := newTestVault(t, NewPromptSigner(zap.NewNop()))

	call := v.WithdrawCall(big.NewInt(1_000_000))
	if call.FunctionName != "withdraw" || call.PostConditionMode != PostConditionAllow {
		t.Errorf("call = %+v", call)
	}
	if len(call.PostConditions) != 0 {
		t.Errorf("withdraw should carry no post conditions, got %+v", call.PostConditions)
	}
}

func waitForPrompt(t *testing.T, signer *PromptSigner) Prompt {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if pending := signer.Pending(); len(pending) > 0 {
			return pending[0]
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("no prompt opened")
	return Prompt{}
}

func TestDepositToVaultOutcomes(t *testing.T) {
	tests := []struct {
		name    string
		resolve func(s *PromptSigner, id string) error
		want    models.OutcomeResult
		wantTx  string
	}{
		{
			name:    "finished",
			resolve: func(s *PromptSigner, id string) error { return s.Finish(id, "0xfeed") },
			want:    models.OutcomeSuccess,
			wantTx:  "0xfeed",
		},
		{
			name:    "cancelled",
			resolve: func(s *PromptSigner, id string) error { return s.Cancel(id) },
			want:    models.OutcomeCancelled,
		},
		{
			name:    "failed",
			resolve: func(s *PromptSigner, id string) error { return s.Fail(id, "insufficient balance") },
			want:    models.OutcomeError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			signer := NewPromptSigner(zap.NewNop())
			v := newTestVault(t, signer)

			done := make(chan models.Outcome, 1)
			go func() {
				done <- v.DepositToVault(context.Background(), testPrincipal, big.NewInt(1_000_000))
			}()

			prompt := waitForPrompt(t, signer)
			if prompt.Call.FunctionName != "deposit" {
				t.Errorf("prompt function = %s", prompt.Call.FunctionName)
			}
			if err := tt.resolve(signer, prompt.ID); err != nil {
				t.Fatalf("resolve error: %v", err)
			}

			outcome := <-done
			if outcome.Result != tt.want {
				t.Errorf("outcome = %s, want %s", outcome.Result, tt.want)
			}
			if outcome.TxID != tt.wantTx {
				t.Errorf("tx id = %q, want %q", outcome.TxID, tt.wantTx)
			}
			if len(signer.Pending()) != 0 {
				t.Error("prompt still pending after resolution")
			}
		})
	}
}

func TestDepositToVaultWithoutSender(t *testing.T) {
	v := newTestVault(t, NewPromptSigner(zap.NewNop()))

	outcome := v.DepositToVault(context.Background(), "", big.NewInt(1))
	if outcome.Result != models.OutcomeError {
		t.Errorf("outcome = %s, want error", outcome.Result)
	}
}

func TestPromptExpires(t *testing.T) {
	signer := NewPromptSigner(zap.NewNop())
	v := newTestVault(t, signer)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	outcome := v.WithdrawFromVault(ctx, big.NewInt(1))
	if outcome.Result != models.OutcomeError {
		t.Fatalf("outcome = %s, want error", outcome.Result)
	}
	if kind := models.FailureKindOf(outcome.Err); kind != models.KindTimeout {
		t.Errorf("failure kind = %s, want timeout", kind)
	}
	if len(signer.Pending()) != 0 {
		t.Error("expired prompt still pending")
	}
}

func TestResolveUnknownPrompt(t *testing.T) {
	signer := NewPromptSigner(zap.NewNop())

	if err := signer.Finish("missing", "0x1"); !errors.Is(err, ErrPromptNotFound) {
		t.Errorf("Finish() error = %v, want ErrPromptNotFound", err)
	}
	if err := signer.Cancel("missing"); !errors.Is(err, ErrPromptNotFound) {
		t.Errorf("Cancel() error = %v, want ErrPromptNotFound", err)
	}
	if err := signer.Fail("missing", ""); !errors.Is(err, ErrPromptNotFound) {
		t.Errorf("Fail() error = %v, want ErrPromptNotFound", err)
	}
	if err := signer.Finish("missing", ""); err == nil {
		t.Error("Finish() with empty tx id should fail")
	}
}
