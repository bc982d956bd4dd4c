package jws

import (
	"crypto/ed25519"
	"errors"

	jose "github.com/go-jose/go-jose/v3"
)

var (
	ErrInvalidSignature = errors.New("invalid jws signature")
	ErrMalformed        = errors.New("malformed jws message")
)

// Serialize signs payload with an Ed25519 key and returns the compact JWS
// serialization (header.payload.signature, alg EdDSA).
func Serialize(payload []byte, key ed25519.PrivateKey) ([]byte, error) {
	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.EdDSA, Key: key}, nil)
	if err != nil {
		return nil, err
	}
	obj, err := signer.Sign(payload)
	if err != nil {
		return nil, err
	}
	compact, err := obj.CompactSerialize()
	if err != nil {
		return nil, err
	}
	return []byte(compact), nil
}

// Deserialize parses a compact JWS message and verifies its signature with
// the counterparty's Ed25519 public key, returning the embedded payload.
func Deserialize(raw []byte, key ed25519.PublicKey) ([]byte, error) {
	obj, err := jose.ParseSigned(string(raw))
	if err != nil {
		return nil, ErrMalformed
	}
	payload, err := obj.Verify(key)
	if err != nil {
		return nil, ErrInvalidSignature
	}
	return payload, nil
}
