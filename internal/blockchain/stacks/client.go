package stacks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"usdcx/bridge/internal/config"
	"usdcx/bridge/internal/models"
)

// ErrNotFound is returned when the API does not know the requested transaction
var ErrNotFound = errors.New("not found")

// Client queries the Hiro Stacks API
type Client struct {
	apiEndpoint     string
	explorerURL     string
	network         string
	tokenKey        string
	arrivalInterval time.Duration
	httpClient      *http.Client
	logger          *zap.Logger
}

// NewClient creates a new Hiro REST API client
func NewClient(cfg *config.StacksConfig, logger *zap.Logger) (*Client, error) {
	if cfg.APIEndpoint == "" {
		return nil, fmt.Errorf("Stacks API endpoint cannot be empty")
	}
	if cfg.TokenContract == "" || cfg.TokenAssetName == "" {
		return nil, fmt.Errorf("USDCx token contract and asset name are required")
	}

	interval := cfg.ArrivalInterval
	if interval <= 0 {
		interval = 15 * time.Second
	}

	return &Client{
		apiEndpoint:     strings.TrimSuffix(cfg.APIEndpoint, "/"),
		explorerURL:     strings.TrimSuffix(cfg.ExplorerURL, "/"),
		network:         cfg.Network,
		tokenKey:        cfg.TokenContract + "::" + cfg.TokenAssetName,
		arrivalInterval: interval,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger.Named("stacks"),
	}, nil
}

type balancesResponse struct {
	FungibleTokens map[string]struct {
		Balance string `json:"balance"`
	} `json:"fungible_tokens"`
}

type txResponse struct {
	TxID     string `json:"tx_id"`
	TxStatus string `json:"tx_status"`
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiEndpoint+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to query Stacks API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("Stacks API returned status %d: %s", resp.StatusCode, string(body))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// TokenBalance returns the USDCx balance of principal in micro units. A principal that has
// never held the token has a zero balance.
//
// API endpoint: GET {apiEndpoint}/extended/v1/address/{principal}/balances
func (c *Client) TokenBalance(ctx context.Context, principal string) (*big.Int, error) {
	if principal == "" {
		return nil, fmt.Errorf("principal cannot be empty")
	}

	var result balancesResponse
	if err := c.get(ctx, "/extended/v1/address/"+url.PathEscape(principal)+"/balances", &result); err != nil {
		return nil, fmt.Errorf("failed to query balances of %s: %w", principal, err)
	}

	entry, ok := result.FungibleTokens[c.tokenKey]
	if !ok {
		return big.NewInt(0), nil
	}
	balance, ok := new(big.Int).SetString(entry.Balance, 10)
	if !ok {
		return nil, fmt.Errorf("invalid balance %q for %s", entry.Balance, c.tokenKey)
	}
	return balance, nil
}

// TxStatus maps the API status of txID to a ledger status. Unknown transactions are pending,
// since the API indexes mempool entries with a delay.
//
// API endpoint: GET {apiEndpoint}/extended/v1/tx/{txid}
func (c *Client) TxStatus(ctx context.Context, txID string) (models.TxStatus, error) {
	if txID == "" {
		return "", fmt.Errorf("tx id cannot be empty")
	}
	if !strings.HasPrefix(txID, "0x") {
		txID = "0x" + txID
	}

	var result txResponse
	err := c.get(ctx, "/extended/v1/tx/"+txID, &result)
	if errors.Is(err, ErrNotFound) {
		return models.TxPending, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to query tx %s: %w", txID, err)
	}

	return mapTxStatus(result.TxStatus), nil
}

func mapTxStatus(status string) models.TxStatus {
	switch {
	case status == "success":
		return models.TxConfirmed
	case strings.HasPrefix(status, "abort_"), strings.HasPrefix(status, "dropped_"):
		return models.TxFailed
	default:
		return models.TxPending
	}
}

// AwaitArrival polls the USDCx balance of recipient until it has grown by at least amount over
// baseline, or ctx ends. Transient API errors are logged and retried.
func (c *Client) AwaitArrival(ctx context.Context, recipient string, baseline, amount *big.Int) error {
	target := new(big.Int).Add(baseline, amount)

	ticker := time.NewTicker(c.arrivalInterval)
	defer ticker.Stop()

	for {
		balance, err := c.TokenBalance(ctx, recipient)
		switch {
		case err != nil:
			c.logger.Warn("Failed to check arrival", zap.String("recipient", recipient), zap.Error(err))
		case balance.Cmp(target) >= 0:
			c.logger.Info("Bridged funds arrived",
				zap.String("recipient", recipient),
				zap.String("balance", balance.String()))
			return nil
		default:
			c.logger.Debug("Waiting for bridged funds",
				zap.String("recipient", recipient),
				zap.String("balance", balance.String()),
				zap.String("target", target.String()))
		}

		select {
		case <-ctx.Done():
			return &models.AdapterError{
				Kind:   models.KindSettlement,
				Reason: "bridged funds did not arrive",
				Err:    ctx.Err(),
			}
		case <-ticker.C:
		}
	}
}

// TxURL returns the explorer link for a transaction id
func (c *Client) TxURL(txID string) string {
	if !strings.HasPrefix(txID, "0x") {
		txID = "0x" + txID
	}
	return fmt.Sprintf("%s/txid/%s?chain=%s", c.explorerURL, txID, c.network)
}
