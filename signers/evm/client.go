// Package evm provides client-side signing for TreatToken permits.
package evm

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/indietreat/indietreat/go/token"
)

// PermitSigner signs EIP-2612 permit messages with an ECDSA private key.
// This is what a buyer uses to produce the signed authorization accepted by
// TokenCheckout.PurchaseWithPermit.
type PermitSigner struct {
	privateKey *ecdsa.PrivateKey
	address    string
}

// NewPermitSignerFromPrivateKey creates a signer from a hex-encoded private
// key (with or without "0x" prefix).
func NewPermitSignerFromPrivateKey(privateKeyHex string) (*PermitSigner, error) {
	privateKeyHex = strings.TrimPrefix(privateKeyHex, "0x")

	privateKey, err := crypto.HexToECDSA(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return NewPermitSigner(privateKey), nil
}

// NewPermitSigner creates a signer from an ECDSA private key.
func NewPermitSigner(privateKey *ecdsa.PrivateKey) *PermitSigner {
	return &PermitSigner{
		privateKey: privateKey,
		address:    crypto.PubkeyToAddress(privateKey.PublicKey).Hex(),
	}
}

// Address returns the signer's address.
func (s *PermitSigner) Address() string {
	return s.address
}

// SignPermit signs the permit {owner: s.Address(), spender, value, nonce,
// deadline} for the given token domain. Returns the 65-byte r||s||v
// signature with v as 27/28.
func (s *PermitSigner) SignPermit(
	ctx context.Context,
	domain token.PermitDomain,
	spender string,
	value *big.Int,
	nonce uint64,
	deadline int64,
) ([]byte, error) {
	digest, err := token.PermitDigest(domain, s.address, spender, value, nonce, deadline)
	if err != nil {
		return nil, fmt.Errorf("failed to hash permit: %w", err)
	}

	signature, err := crypto.Sign(digest, s.privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign: %w", err)
	}

	// Recovery ID 0/1 -> Ethereum v 27/28
	signature[64] += 27
	return signature, nil
}
