package evm

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"usdcx/bridge/internal/config"
	"usdcx/bridge/internal/models"
)

// ERC20ABI covers the USDC calls the bridge needs
const ERC20ABI = `[
	{
		"inputs": [
			{"internalType": "address", "name": "spender", "type": "address"},
			{"internalType": "uint256", "name": "amount", "type": "uint256"}
		],
		"name": "approve",
		"outputs": [{"internalType": "bool", "name": "", "type": "bool"}],
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"inputs": [
			{"internalType": "address", "name": "owner", "type": "address"},
			{"internalType": "address", "name": "spender", "type": "address"}
		],
		"name": "allowance",
		"outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [{"internalType": "address", "name": "account", "type": "address"}],
		"name": "balanceOf",
		"outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}],
		"stateMutability": "view",
		"type": "function"
	}
]`

// XReserveABI is the ABI for the xReserve deposit entrypoint
const XReserveABI = `[
	{
		"inputs": [
			{"internalType": "uint256", "name": "value", "type": "uint256"},
			{"internalType": "uint32", "name": "remoteDomain", "type": "uint32"},
			{"internalType": "bytes32", "name": "remoteRecipient", "type": "bytes32"},
			{"internalType": "address", "name": "localToken", "type": "address"},
			{"internalType": "uint256", "name": "maxFee", "type": "uint256"},
			{"internalType": "bytes", "name": "hookData", "type": "bytes"}
		],
		"name": "depositToRemote",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	}
]`

// Bridge drives USDC approvals and xReserve deposits from the connected account
type Bridge struct {
	client       *Client
	usdc         common.Address
	xreserve     common.Address
	remoteDomain uint32
	maxFee       *big.Int
	explorerURL  string
	erc20        abi.ABI
	reserve      abi.ABI
	logger       *zap.Logger
}

// NewBridge creates a new Bridge instance
func NewBridge(client *Client, cfg *config.EthereumConfig, logger *zap.Logger) (*Bridge, error) {
	erc20, err := abi.JSON(strings.NewReader(ERC20ABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse ERC20 ABI: %w", err)
	}
	reserve, err := abi.JSON(strings.NewReader(XReserveABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse xReserve ABI: %w", err)
	}
	if !common.IsHexAddress(cfg.BridgeAddress) {
		return nil, fmt.Errorf("invalid xReserve address: %q", cfg.BridgeAddress)
	}
	if !common.IsHexAddress(cfg.USDCContractAddress) {
		return nil, fmt.Errorf("invalid USDC address: %q", cfg.USDCContractAddress)
	}

	return &Bridge{
		client:       client,
		usdc:         common.HexToAddress(cfg.USDCContractAddress),
		xreserve:     common.HexToAddress(cfg.BridgeAddress),
		remoteDomain: cfg.RemoteDomain,
		maxFee:       big.NewInt(cfg.MaxFee),
		explorerURL:  strings.TrimSuffix(cfg.ExplorerURL, "/"),
		erc20:        erc20,
		reserve:      reserve,
		logger:       logger.Named("bridge"),
	}, nil
}

// Account returns the connected account address and whether one is connected
func (b *Bridge) Account() (string, bool) {
	addr, ok := b.client.Account()
	if !ok {
		return "", false
	}
	return addr.Hex(), true
}

// Allowance returns how much USDC the xReserve contract may pull from owner
func (b *Bridge) Allowance(ctx context.Context, owner string) (*big.Int, error) {
	if !common.IsHexAddress(owner) {
		return nil, fmt.Errorf("invalid owner address: %q", owner)
	}
	return b.callUint(ctx, "allowance", common.HexToAddress(owner), b.xreserve)
}

// Balance returns the USDC balance of owner
func (b *Bridge) Balance(ctx context.Context, owner string) (*big.Int, error) {
	if !common.IsHexAddress(owner) {
		return nil, fmt.Errorf("invalid owner address: %q", owner)
	}
	return b.callUint(ctx, "balanceOf", common.HexToAddress(owner))
}

func (b *Bridge) callUint(ctx context.Context, method string, args ...interface{}) (*big.Int, error) {
	data, err := b.erc20.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s call: %w", method, err)
	}

	result, err := b.client.Call(ctx, b.usdc, data)
	if err != nil {
		return nil, fmt.Errorf("failed to call %s: %w", method, err)
	}

	values, err := b.erc20.Unpack(method, result)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack %s result: %w", method, err)
	}
	if len(values) != 1 {
		return nil, fmt.Errorf("unexpected %s result length: %d", method, len(values))
	}
	value, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected %s result type %T", method, values[0])
	}
	return value, nil
}

// PackApprove encodes approve(xReserve, amount)
func (b *Bridge) PackApprove(amount *big.Int) ([]byte, error) {
	return b.erc20.Pack("approve", b.xreserve, amount)
}

// PackDepositToRemote encodes depositToRemote for the configured domain, token and fee cap
func (b *Bridge) PackDepositToRemote(amount *big.Int, recipient [32]byte) ([]byte, error) {
	return b.reserve.Pack("depositToRemote",
		amount,
		b.remoteDomain,
		recipient,
		b.usdc,
		b.maxFee,
		[]byte{},
	)
}

// AuthorizeSpend approves the xReserve contract to spend amount USDC. The returned channel
// receives the lifecycle events and is closed after the terminal one.
func (b *Bridge) AuthorizeSpend(ctx context.Context, amount *big.Int) <-chan models.TxEvent {
	data, err := b.PackApprove(amount)
	return b.submit(ctx, "approve", b.usdc, data, err)
}

// InitiateTransfer deposits amount USDC into xReserve for recipient on the remote domain
func (b *Bridge) InitiateTransfer(ctx context.Context, amount *big.Int, recipient [32]byte) <-chan models.TxEvent {
	data, err := b.PackDepositToRemote(amount, recipient)
	return b.submit(ctx, "depositToRemote", b.xreserve, data, err)
}

// TxURL returns the explorer link for a transaction hash
func (b *Bridge) TxURL(txHash string) string {
	return b.explorerURL + "/tx/" + txHash
}

func (b *Bridge) submit(ctx context.Context, method string, to common.Address, data []byte, packErr error) <-chan models.TxEvent {
	events := make(chan models.TxEvent, 3)

	go func() {
		defer close(events)

		if packErr != nil {
			events <- models.TxEvent{Phase: models.PhaseError, Err: &models.AdapterError{
				Kind:   models.KindRejected,
				Reason: fmt.Sprintf("failed to encode %s", method),
				Err:    packErr,
			}}
			return
		}

		events <- models.TxEvent{Phase: models.PhasePending}

		txHash, err := b.client.SignAndSendTransaction(ctx, to, data, big.NewInt(0))
		if err != nil {
			b.logger.Warn("Transaction not submitted", zap.String("method", method), zap.Error(err))
			events <- models.TxEvent{Phase: models.PhaseError, Err: classify(ctx, method, err)}
			return
		}

		events <- models.TxEvent{Phase: models.PhaseConfirming, TxHash: txHash.Hex()}

		receipt, err := b.client.WaitForTransaction(ctx, txHash)
		if err != nil {
			b.logger.Warn("Transaction failed",
				zap.String("method", method),
				zap.String("tx_hash", txHash.Hex()),
				zap.Error(err))
			events <- models.TxEvent{Phase: models.PhaseError, TxHash: txHash.Hex(), Err: classify(ctx, method, err)}
			return
		}

		b.logger.Info("Transaction confirmed",
			zap.String("method", method),
			zap.String("tx_hash", txHash.Hex()),
			zap.Uint64("gas_used", receipt.GasUsed))

		events <- models.TxEvent{Phase: models.PhaseSuccess, TxHash: txHash.Hex()}
	}()

	return events
}

// classify maps a submission or confirmation failure to a failure kind
func classify(ctx context.Context, method string, err error) error {
	switch {
	case errors.Is(err, ErrReverted):
		return &models.AdapterError{Kind: models.KindReverted, Reason: method + " reverted", Err: err}
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		return &models.AdapterError{Kind: models.KindTimeout, Reason: method + " timed out", Err: err}
	default:
		return &models.AdapterError{Kind: models.KindRejected, Reason: method + " rejected", Err: err}
	}
}
