package stacks

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"usdcx/bridge/internal/config"
	"usdcx/bridge/internal/models"
)

const testPrincipal = "SP2J6ZY48GV1EZ5V2V5RB9MP66SW86PYKKNRV9EJ7"

func testStacksConfig(endpoint string) *config.StacksConfig {
	return &config.StacksConfig{
		Network:         "mainnet",
		APIEndpoint:     endpoint,
		TokenContract:   "SP3K8BC0PPEVCV7NZ6QSRWPQ2JE9E5B6N3PA0KBR9.token-usdcx",
		TokenAssetName:  "usdcx",
		VaultContract:   "SP3K8BC0PPEVCV7NZ6QSRWPQ2JE9E5B6N3PA0KBR9.usdcx-vault",
		ExplorerURL:     "https://explorer.hiro.so/",
		ArrivalInterval: 5 * time.Millisecond,
	}
}

func balancesBody(balance string) map[string]interface{} {
	return map[string]interface{}{
		"stx": map[string]string{"balance": "0"},
		"fungible_tokens": map[string]interface{}{
			"SP3K8BC0PPEVCV7NZ6QSRWPQ2JE9E5B6N3PA0KBR9.token-usdcx::usdcx": map[string]string{
				"balance": balance,
			},
		},
	}
}

func TestNewClient(t *testing.T) {
	if _, err := NewClient(testStacksConfig(""), zap.NewNop()); err == nil {
		t.Error("NewClient() expected error for empty endpoint")
	}
	if _, err := NewClient(testStacksConfig("https://api.mainnet.hiro.so"), zap.NewNop()); err != nil {
		t.Errorf("NewClient() unexpected error = %v", err)
	}
}

func TestTokenBalance(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/extended/v1/address/" + testPrincipal + "/balances":
			json.NewEncoder(w).Encode(balancesBody("12500000"))
		case "/extended/v1/address/SP000000000000000000002Q6VF78/balances":
			json.NewEncoder(w).Encode(map[string]interface{}{"fungible_tokens": map[string]interface{}{}})
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer server.Close()

	client, err := NewClient(testStacksConfig(server.URL), zap.NewNop())
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	tests := []struct {
		name      string
		principal string
		want      int64
		wantErr   bool
	}{
		{name: "holder", principal: testPrincipal, want: 12_500_000},
		{name: "never held token", principal: "SP000000000000000000002Q6VF78", want: 0},
		{name: "server error", principal: "SP00000000000000000005JA84HQ", wantErr: true},
		{name: "empty principal", principal: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := client.TokenBalance(context.Background(), tt.principal)
			if (err != nil) != tt.wantErr {
				t.Fatalf("TokenBalance() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got.Cmp(big.NewInt(tt.want)) != 0 {
				t.Errorf("TokenBalance() = %s, want %d", got, tt.want)
			}
		})
	}
}

func TestTxStatus(t *testing.T) {
	statuses := map[string]string{
		"/extended/v1/tx/0xaa": "success",
		"/extended/v1/tx/0xbb": "pending",
		"/extended/v1/tx/0xcc": "abort_by_post_condition",
		"/extended/v1/tx/0xdd": "dropped_replace_by_fee",
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		status, ok := statuses[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"tx_id": r.URL.Path[len("/extended/v1/tx/"):], "tx_status": status})
	}))
	defer server.Close()

	client, err := NewClient(testStacksConfig(server.URL), zap.NewNop())
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	tests := []struct {
		txID string
		want models.TxStatus
	}{
		{"0xaa", models.TxConfirmed},
		{"bb", models.TxPending},
		{"0xcc", models.TxFailed},
		{"0xdd", models.TxFailed},
		{"0xee", models.TxPending},
	}

	for _, tt := range tests {
		t.Run(tt.txID, func(t *testing.T) {
			got, err := client.TxStatus(context.Background(), tt.txID)
			if err != nil {
				t.Fatalf("TxStatus() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("TxStatus() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestAwaitArrival(t *testing.T) {
	var polls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&polls, 1)
		switch {
		case n == 1:
			w.WriteHeader(http.StatusBadGateway)
		case n < 4:
			json.NewEncoder(w).Encode(balancesBody("1000000"))
		default:
			json.NewEncoder(w).Encode(balancesBody("6000000"))
		}
	}))
	defer server.Close()

	client, err := NewClient(testStacksConfig(server.URL), zap.NewNop())
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.AwaitArrival(ctx, testPrincipal, big.NewInt(1_000_000), big.NewInt(5_000_000)); err != nil {
		t.Fatalf("AwaitArrival() error = %v", err)
	}
	if got := atomic.LoadInt32(&polls); got < 4 {
		t.Errorf("expected at least 4 polls, got %d", got)
	}
}

func TestAwaitArrivalTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(balancesBody("1000000"))
	}))
	defer server.Close()

	client, err := NewClient(testStacksConfig(server.URL), zap.NewNop())
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	err = client.AwaitArrival(ctx, testPrincipal, big.NewInt(1_000_000), big.NewInt(5_000_000))
	if kind := models.FailureKindOf(err); kind != models.KindSettlement {
		t.Errorf("AwaitArrival() failure kind = %s, want settlement (err: %v)", kind, err)
	}
}

func TestStacksTxURL(t *testing.T) {
	client, err := NewClient(testStacksConfig("https://api.mainnet.hiro.so"), zap.NewNop())
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	want := "https://explorer.hiro.so/txid/0xabc?chain=mainnet"
	if got := client.TxURL("abc"); got != want {
		t.Errorf("TxURL() = %s, want %s", got, want)
	}
}
