package stacks

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"strings"
)

// c32Alphabet is the Crockford base32 alphabet used by Stacks addresses
const c32Alphabet = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

// c32Encode encodes data as a c32 string. Each leading zero byte becomes one leading '0'.
func c32Encode(data []byte) string {
	out := make([]byte, 0, len(data)*8/5+1)

	var acc uint32
	bits := 0
	for i := len(data) - 1; i >= 0; i-- {
		acc |= uint32(data[i]) << bits
		bits += 8
		for bits >= 5 {
			out = append(out, c32Alphabet[acc&0x1f])
			acc >>= 5
			bits -= 5
		}
	}
	if bits > 0 {
		out = append(out, c32Alphabet[acc&0x1f])
	}

	// out holds the digits least significant first
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	out = bytes.TrimLeft(out, "0")

	zeros := 0
	for zeros < len(data) && data[zeros] == 0 {
		zeros++
	}
	return strings.Repeat("0", zeros) + string(out)
}

// c32Normalize upper-cases s and maps the ambiguous characters O, I and L
func c32Normalize(s string) string {
	s = strings.ToUpper(s)
	s = strings.ReplaceAll(s, "O", "0")
	s = strings.ReplaceAll(s, "L", "1")
	s = strings.ReplaceAll(s, "I", "1")
	return s
}

// c32Decode decodes a c32 string. Each leading '0' becomes one leading zero byte.
func c32Decode(s string) ([]byte, error) {
	s = c32Normalize(s)

	out := make([]byte, 0, len(s)*5/8+1)
	var acc uint32
	bits := 0
	for i := len(s) - 1; i >= 0; i-- {
		v := strings.IndexByte(c32Alphabet, s[i])
		if v < 0 {
			return nil, fmt.Errorf("invalid c32 character %q", s[i])
		}
		acc |= uint32(v) << bits
		bits += 5
		if bits >= 8 {
			out = append(out, byte(acc))
			acc >>= 8
			bits -= 8
		}
	}
	if bits > 0 && acc != 0 {
		out = append(out, byte(acc))
	}

	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	out = bytes.TrimLeft(out, "\x00")

	zeros := 0
	for zeros < len(s) && s[zeros] == '0' {
		zeros++
	}
	return append(make([]byte, zeros), out...), nil
}

// c32Checksum is the first four bytes of sha256(sha256(version || data))
func c32Checksum(version byte, data []byte) []byte {
	first := sha256.Sum256(append([]byte{version}, data...))
	second := sha256.Sum256(first[:])
	return second[:4]
}

// c32CheckEncode encodes version and data with a trailing checksum
func c32CheckEncode(version byte, data []byte) (string, error) {
	if version >= 32 {
		return "", fmt.Errorf("invalid version %d: must be < 32", version)
	}
	payload := append(append([]byte{}, data...), c32Checksum(version, data)...)
	return string(c32Alphabet[version]) + c32Encode(payload), nil
}

// c32CheckDecode reverses c32CheckEncode and verifies the checksum
func c32CheckDecode(s string) (byte, []byte, error) {
	if len(s) < 2 {
		return 0, nil, fmt.Errorf("c32check string too short")
	}
	s = c32Normalize(s)

	v := strings.IndexByte(c32Alphabet, s[0])
	if v < 0 {
		return 0, nil, fmt.Errorf("invalid version character %q", s[0])
	}
	version := byte(v)

	payload, err := c32Decode(s[1:])
	if err != nil {
		return 0, nil, err
	}
	if len(payload) < 4 {
		return 0, nil, fmt.Errorf("c32check payload too short")
	}

	data, checksum := payload[:len(payload)-4], payload[len(payload)-4:]
	if !bytes.Equal(checksum, c32Checksum(version, data)) {
		return 0, nil, fmt.Errorf("checksum mismatch")
	}
	return version, data, nil
}
