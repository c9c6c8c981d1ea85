// Package signer implements the Signer capability with a secp256k1 key. Key
// custody (HSMs, keyrings) stays outside; this takes a raw hex key from the
// environment the same way the network's reference tooling does.
package signer

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// Signer signs submission payloads and exposes the derived actor identity.
type Signer struct {
	key     *ecdsa.PrivateKey
	address string
}

// New parses a hex-encoded secp256k1 private key (with or without the 0x
// prefix) and derives the actor address from it.
func New(privateKeyHex string) (*Signer, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %v", err)
	}
	return &Signer{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey).Hex(),
	}, nil
}

// Address returns the actor identity derived from the key.
func (s *Signer) Address() string {
	return s.address
}

// signedEnvelope is the broadcastable transaction wrapping the payload.
type signedEnvelope struct {
	Payload   json.RawMessage `json:"payload"`
	Signature string          `json:"signature"`
	Signer    string          `json:"signer"`
}

// Sign hashes the payload with Keccak256, signs the digest, and returns the
// JSON envelope the broadcast route accepts.
func (s *Signer) Sign(_ context.Context, payload []byte) ([]byte, error) {
	digest := crypto.Keccak256(payload)
	sig, err := crypto.Sign(digest, s.key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign payload: %v", err)
	}

	envelope, err := json.Marshal(signedEnvelope{
		Payload:   payload,
		Signature: hexutil.Encode(sig),
		Signer:    s.address,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal signed envelope: %v", err)
	}
	return envelope, nil
}
