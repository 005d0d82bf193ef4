package indietreat

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// ZeroAddress is the null recipient; purchases may never pay out to it.
const ZeroAddress = "0x0000000000000000000000000000000000000000"

// NormalizeAddress returns the EIP-55 checksummed form of a hex address.
func NormalizeAddress(address string) string {
	return common.HexToAddress(address).Hex()
}

// IsValidAddress reports whether address is a well-formed, non-zero hex address.
func IsValidAddress(address string) bool {
	if !common.IsHexAddress(address) {
		return false
	}
	return common.HexToAddress(address) != (common.Address{})
}

// SameAddress compares two hex addresses ignoring case and checksum.
func SameAddress(a, b string) bool {
	return common.HexToAddress(a) == common.HexToAddress(b)
}

// IsPositive reports whether amount is non-nil and strictly positive.
func IsPositive(amount *big.Int) bool {
	return amount != nil && amount.Sign() > 0
}

// BytesToHex encodes bytes as a 0x-prefixed hex string.
func BytesToHex(b []byte) string {
	return "0x" + hex.EncodeToString(b)
}

// HexToBytes decodes a hex string with or without the 0x prefix.
func HexToBytes(s string) ([]byte, error) {
	s = strings.TrimPrefix(s, "0x")
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex string: %w", err)
	}
	return b, nil
}
