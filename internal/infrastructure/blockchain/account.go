package blockchain

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"

	"vasp-link.backend/pkg/addr"
)

// LocalAccount holds the signing keys of an on-chain account the VASP
// controls. The compliance key signs off-chain envelopes and travel rule
// metadata; it is distinct from the transaction key.
type LocalAccount struct {
	Address       addr.AccountAddress
	PrivateKey    ed25519.PrivateKey
	ComplianceKey ed25519.PrivateKey
}

// GenLocalAccount creates an account with fresh random address and keys.
func GenLocalAccount() (*LocalAccount, error) {
	var address addr.AccountAddress
	if _, err := rand.Read(address[:]); err != nil {
		return nil, err
	}
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	_, compliance, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	return &LocalAccount{Address: address, PrivateKey: priv, ComplianceKey: compliance}, nil
}

// CompliancePublicKeyHex returns the hex-encoded compliance public key as
// published on chain.
func (a *LocalAccount) CompliancePublicKeyHex() string {
	pub := a.ComplianceKey.Public().(ed25519.PublicKey)
	return hex.EncodeToString(pub)
}

// SignCompliance signs msg with the compliance key, returning hex.
func (a *LocalAccount) SignCompliance(msg []byte) string {
	return hex.EncodeToString(ed25519.Sign(a.ComplianceKey, msg))
}
