package service

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"go.uber.org/zap"

	"usdcx/bridge/internal/blockchain/stacks"
	"usdcx/bridge/internal/models"
	"usdcx/bridge/internal/orchestrator"
)

// SourceBalances reads the connected source-chain account
type SourceBalances interface {
	Account() (string, bool)
	Balance(ctx context.Context, owner string) (*big.Int, error)
}

// TokenBalances reads USDCx balances on the destination chain
type TokenBalances interface {
	TokenBalance(ctx context.Context, principal string) (*big.Int, error)
}

// VaultWithdrawer redeems vault shares
type VaultWithdrawer interface {
	WithdrawFromVault(ctx context.Context, shares *big.Int) models.Outcome
}

// Portfolio summarizes the holdings of a Stacks principal and the connected Ethereum account
type Portfolio struct {
	Principal       string `json:"principal"`
	USDCx           string `json:"usdcx"`
	EthereumAccount string `json:"ethereum_account,omitempty"`
	USDC            string `json:"usdc,omitempty"`
}

// PortfolioService handles balance summaries and vault withdrawals
type PortfolioService struct {
	source SourceBalances
	tokens TokenBalances
	vault  VaultWithdrawer
	logger *zap.Logger
}

// NewPortfolioService creates a new portfolio service
func NewPortfolioService(source SourceBalances, tokens TokenBalances, vault VaultWithdrawer, logger *zap.Logger) *PortfolioService {
	return &PortfolioService{
		source: source,
		tokens: tokens,
		vault:  vault,
		logger: logger.Named("portfolio"),
	}
}

// GetPortfolio returns the USDCx balance of principal and, when a wallet is connected, its
// USDC balance
func (s *PortfolioService) GetPortfolio(ctx context.Context, principal string) (*Portfolio, error) {
	principal = strings.TrimSpace(principal)
	if _, err := stacks.ParseAddress(principal); err != nil {
		return nil, err
	}

	usdcx, err := s.tokens.TokenBalance(ctx, principal)
	if err != nil {
		return nil, fmt.Errorf("failed to get USDCx balance: %w", err)
	}

	p := &Portfolio{
		Principal: principal,
		USDCx:     orchestrator.FormatUnits(usdcx),
	}

	if owner, ok := s.source.Account(); ok {
		usdc, err := s.source.Balance(ctx, owner)
		if err != nil {
			return nil, fmt.Errorf("failed to get USDC balance: %w", err)
		}
		p.EthereumAccount = owner
		p.USDC = orchestrator.FormatUnits(usdc)
	}

	s.logger.Debug("Portfolio computed",
		zap.String("principal", principal),
		zap.String("usdcx", p.USDCx),
		zap.String("usdc", p.USDC))

	return p, nil
}

// Withdraw redeems amount of vault shares back to USDCx
func (s *PortfolioService) Withdraw(ctx context.Context, amount string) (models.Outcome, error) {
	shares, err := orchestrator.ParseAmount(amount)
	if err != nil {
		return models.Outcome{}, err
	}

	outcome := s.vault.WithdrawFromVault(ctx, shares)

	s.logger.Info("Vault withdrawal finished",
		zap.String("amount", amount),
		zap.String("result", string(outcome.Result)),
		zap.String("tx_id", outcome.TxID))

	return outcome, nil
}
