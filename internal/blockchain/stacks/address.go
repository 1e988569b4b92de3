package stacks

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcutil"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Address versions for standard principals
const (
	VersionMainnetSingleSig byte = 22 // SP...
	VersionMainnetMultiSig  byte = 20 // SM...
	VersionTestnetSingleSig byte = 26 // ST...
	VersionTestnetMultiSig  byte = 21 // SN...
)

// RecipientSize is the length of the bridge recipient argument
const RecipientSize = 32

const (
	recipientVersionIndex = 11
	recipientHashOffset   = 12
)

var (
	// ErrInvalidAddress is returned when a string is not a well-formed Stacks address
	ErrInvalidAddress = errors.New("invalid stacks address")

	// ErrInvalidEncoding is returned when a bridge recipient cannot be decoded
	ErrInvalidEncoding = errors.New("invalid recipient encoding")
)

// Address is a standard Stacks principal: a version byte and a hash160
type Address struct {
	Version byte
	Hash160 [20]byte
}

// ParseAddress parses a c32check encoded standard principal. Only the canonical upper-case
// form is accepted, so String returns exactly the parsed input.
func ParseAddress(s string) (Address, error) {
	s = strings.TrimSpace(s)
	if len(s) <= 5 || (s[0] != 'S' && s[0] != 's') {
		return Address{}, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	if strings.Contains(s, ".") {
		return Address{}, fmt.Errorf("%w: contract principals cannot receive bridged funds: %q", ErrInvalidAddress, s)
	}

	version, data, err := c32CheckDecode(s[1:])
	if err != nil {
		return Address{}, fmt.Errorf("%w: %q: %v", ErrInvalidAddress, s, err)
	}
	if len(data) != 20 {
		return Address{}, fmt.Errorf("%w: %q: hash length %d, want 20", ErrInvalidAddress, s, len(data))
	}

	addr := Address{Version: version}
	copy(addr.Hash160[:], data)
	if canonical := addr.String(); canonical != s {
		return Address{}, fmt.Errorf("%w: %q is not canonical, use %s", ErrInvalidAddress, s, canonical)
	}
	return addr, nil
}

// String formats the address in c32check form
func (a Address) String() string {
	s, err := c32CheckEncode(a.Version, a.Hash160[:])
	if err != nil {
		return ""
	}
	return "S" + s
}

// Network returns "mainnet" or "testnet" for known versions, "" otherwise
func (a Address) Network() string {
	switch a.Version {
	case VersionMainnetSingleSig, VersionMainnetMultiSig:
		return "mainnet"
	case VersionTestnetSingleSig, VersionTestnetMultiSig:
		return "testnet"
	}
	return ""
}

// AddressFromPublicKey derives the single-sig principal of a hex encoded secp256k1 public key
func AddressFromPublicKey(pubKeyHex string, network string) (Address, error) {
	pubKey, err := hex.DecodeString(strings.TrimPrefix(pubKeyHex, "0x"))
	if err != nil {
		return Address{}, fmt.Errorf("failed to decode public key: %w", err)
	}
	if len(pubKey) != 33 && len(pubKey) != 65 {
		return Address{}, fmt.Errorf("invalid public key length: %d", len(pubKey))
	}

	addr := Address{Version: VersionMainnetSingleSig}
	if network == "testnet" {
		addr.Version = VersionTestnetSingleSig
	}
	copy(addr.Hash160[:], btcutil.Hash160(pubKey))
	return addr, nil
}

// EncodeForBridge converts a Stacks address into the 32-byte recipient expected by xReserve.
//
// Layout: 11 zero bytes, 1 version byte, 20 hash160 bytes.
func EncodeForBridge(address string) ([RecipientSize]byte, error) {
	var out [RecipientSize]byte

	addr, err := ParseAddress(address)
	if err != nil {
		return out, err
	}

	out[recipientVersionIndex] = addr.Version
	copy(out[recipientHashOffset:], addr.Hash160[:])
	return out, nil
}

// DecodeFromBridge converts a 32-byte recipient back to a Stacks address.
// Padding bytes are not checked.
func DecodeFromBridge(recipient []byte) (string, error) {
	if len(recipient) != RecipientSize {
		return "", fmt.Errorf("%w: got %d bytes, want %d", ErrInvalidEncoding, len(recipient), RecipientSize)
	}

	version := recipient[recipientVersionIndex]
	if version >= 32 {
		return "", fmt.Errorf("%w: version byte %d out of range", ErrInvalidEncoding, version)
	}

	addr := Address{Version: version}
	copy(addr.Hash160[:], recipient[recipientHashOffset:])
	return addr.String(), nil
}

// EncodeForBridgeHex is EncodeForBridge with 0x-prefixed hex output
func EncodeForBridgeHex(address string) (string, error) {
	recipient, err := EncodeForBridge(address)
	if err != nil {
		return "", err
	}
	return hexutil.Encode(recipient[:]), nil
}

// DecodeFromBridgeHex is DecodeFromBridge for 0x-prefixed hex input
func DecodeFromBridgeHex(s string) (string, error) {
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		s = "0x" + s
	}
	raw, err := hexutil.Decode(s)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidEncoding, err)
	}
	return DecodeFromBridge(raw)
}
