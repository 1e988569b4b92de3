package service

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"usdcx/bridge/internal/blockchain/stacks"
)

// Recipient is a Stacks address together with its bridge encoding
type Recipient struct {
	Address string `json:"address"`
	Network string `json:"network"`
	Version byte   `json:"version"`
	Hex     string `json:"recipient"` // 0x-prefixed 32-byte bridge recipient
}

// AddressService converts between Stacks addresses and bridge recipients
type AddressService struct {
	network string
	logger  *zap.Logger
}

// NewAddressService creates a new address service for network
func NewAddressService(network string, logger *zap.Logger) *AddressService {
	return &AddressService{
		network: network,
		logger:  logger.Named("addresses"),
	}
}

// Encode returns the bridge recipient for a Stacks address
func (s *AddressService) Encode(address string) (*Recipient, error) {
	addr, err := stacks.ParseAddress(address)
	if err != nil {
		return nil, err
	}
	encoded, err := stacks.EncodeForBridgeHex(addr.String())
	if err != nil {
		return nil, err
	}

	if addr.Network() != s.network {
		s.logger.Warn("Recipient is on a different network",
			zap.String("address", addr.String()),
			zap.String("address_network", addr.Network()),
			zap.String("network", s.network))
	}

	return &Recipient{
		Address: addr.String(),
		Network: addr.Network(),
		Version: addr.Version,
		Hex:     encoded,
	}, nil
}

// Decode returns the Stacks address encoded in a hex bridge recipient
func (s *AddressService) Decode(recipient string) (*Recipient, error) {
	address, err := stacks.DecodeFromBridgeHex(strings.TrimSpace(recipient))
	if err != nil {
		return nil, err
	}
	addr, err := stacks.ParseAddress(address)
	if err != nil {
		return nil, fmt.Errorf("failed to parse decoded address: %w", err)
	}

	encoded, err := stacks.EncodeForBridgeHex(address)
	if err != nil {
		return nil, err
	}

	return &Recipient{
		Address: address,
		Network: addr.Network(),
		Version: addr.Version,
		Hex:     encoded,
	}, nil
}

// FromPublicKey derives the standard address of a hex public key on the service's network
func (s *AddressService) FromPublicKey(pubKeyHex string) (*Recipient, error) {
	addr, err := stacks.AddressFromPublicKey(strings.TrimSpace(pubKeyHex), s.network)
	if err != nil {
		return nil, err
	}
	return s.Encode(addr.String())
}
