package stacks

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"go.uber.org/zap"

	"usdcx/bridge/internal/config"
	"usdcx/bridge/internal/models"
)

// Post condition modes
const (
	PostConditionDeny  = "deny"
	PostConditionAllow = "allow"
)

// ClarityArg is a function argument of a contract call
type ClarityArg struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// UintArg builds a Clarity uint argument
func UintArg(v *big.Int) ClarityArg {
	return ClarityArg{Type: "uint", Value: v.String()}
}

// PostCondition is a fungible-token post condition: Principal sends at most Amount of Asset
type PostCondition struct {
	Principal string `json:"principal"`
	Condition string `json:"condition"`
	Amount    string `json:"amount"`
	Asset     string `json:"asset"` // contract principal
	AssetName string `json:"asset_name"`
}

// ContractCall is an unsigned contract call handed to the wallet for signing
type ContractCall struct {
	Network           string          `json:"network"`
	ContractAddress   string          `json:"contract_address"`
	ContractName      string          `json:"contract_name"`
	FunctionName      string          `json:"function_name"`
	FunctionArgs      []ClarityArg    `json:"function_args"`
	PostConditionMode string          `json:"post_condition_mode"`
	PostConditions    []PostCondition `json:"post_conditions,omitempty"`
}

// Signer asks the connected wallet to sign and broadcast a contract call
type Signer interface {
	Request(ctx context.Context, call ContractCall) models.Outcome
}

// Vault builds vault contract calls and submits them through a Signer
type Vault struct {
	network      string
	contractAddr string
	contractName string
	token        string
	tokenAsset   string
	signer       Signer
	logger       *zap.Logger
}

// NewVault creates a vault adapter for the configured vault contract
func NewVault(cfg *config.StacksConfig, signer Signer, logger *zap.Logger) (*Vault, error) {
	addr, name, ok := strings.Cut(cfg.VaultContract, ".")
	if !ok || name == "" {
		return nil, fmt.Errorf("invalid vault contract principal: %q", cfg.VaultContract)
	}
	if _, err := ParseAddress(addr); err != nil {
		return nil, fmt.Errorf("invalid vault contract principal: %w", err)
	}

	return &Vault{
		network:      cfg.Network,
		contractAddr: addr,
		contractName: name,
		token:        cfg.TokenContract,
		tokenAsset:   cfg.TokenAssetName,
		signer:       signer,
		logger:       logger.Named("vault"),
	}, nil
}

// DepositCall builds deposit(amount). The deny-mode post condition caps what sender can lose.
func (v *Vault) DepositCall(sender string, amount *big.Int) ContractCall {
	return ContractCall{
		Network:           v.network,
		ContractAddress:   v.contractAddr,
		ContractName:      v.contractName,
		FunctionName:      "deposit",
		FunctionArgs:      []ClarityArg{UintArg(amount)},
		PostConditionMode: PostConditionDeny,
		PostConditions: []PostCondition{{
			Principal: sender,
			Condition: "lte",
			Amount:    amount.String(),
			Asset:     v.token,
			AssetName: v.tokenAsset,
		}},
	}
}

// WithdrawCall builds withdraw(shares)
func (v *Vault) WithdrawCall(shares *big.Int) ContractCall {
	return ContractCall{
		Network:           v.network,
		ContractAddress:   v.contractAddr,
		ContractName:      v.contractName,
		FunctionName:      "withdraw",
		FunctionArgs:      []ClarityArg{UintArg(shares)},
		PostConditionMode: PostConditionAllow,
	}
}

// DepositToVault deposits amount USDCx micro units held by sender into the vault
func (v *Vault) DepositToVault(ctx context.Context, sender string, amount *big.Int) models.Outcome {
	if sender == "" {
		return failedOutcome("deposit", errors.New("wallet not connected"))
	}
	return v.submit(ctx, v.DepositCall(sender, amount))
}

// WithdrawFromVault redeems shares vault shares, in micro units
func (v *Vault) WithdrawFromVault(ctx context.Context, shares *big.Int) models.Outcome {
	return v.submit(ctx, v.WithdrawCall(shares))
}

func (v *Vault) submit(ctx context.Context, call ContractCall) models.Outcome {
	v.logger.Info("Requesting contract call signature",
		zap.String("function", call.FunctionName),
		zap.String("args", call.FunctionArgs[0].Value))

	outcome := v.signer.Request(ctx, call)

	switch outcome.Result {
	case models.OutcomeSuccess:
		v.logger.Info("Contract call broadcast",
			zap.String("function", call.FunctionName),
			zap.String("tx_id", outcome.TxID))
	case models.OutcomeCancelled:
		v.logger.Info("Contract call cancelled", zap.String("function", call.FunctionName))
	default:
		v.logger.Warn("Contract call failed",
			zap.String("function", call.FunctionName),
			zap.Error(outcome.Err))
	}
	return outcome
}

func failedOutcome(function string, err error) models.Outcome {
	kind := models.KindRejected
	if errors.Is(err, context.DeadlineExceeded) {
		kind = models.KindTimeout
	}
	return models.Outcome{
		Result: models.OutcomeError,
		Err:    &models.AdapterError{Kind: kind, Reason: function + " failed", Err: err},
	}
}
