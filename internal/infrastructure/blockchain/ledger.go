package blockchain

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"net/http"
	"sync"

	"github.com/ethereum/go-ethereum/rpc"

	"vasp-link.backend/pkg/addr"
)

// faucetAmount is the balance minted to each freshly generated VASP account.
const faucetAmount = uint64(1_000_000_000_000)

// Ledger is an in-process chain used for local development and tests. It
// keeps accounts and balances in memory and enforces the travel rule on
// transfers: the metadata signature must verify against the receiving
// VASP's parent compliance key.
type Ledger struct {
	mu       sync.Mutex
	accounts map[string]*ledgerAccount
}

type ledgerAccount struct {
	account *Account
	authKey ed25519.PublicKey
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{accounts: map[string]*ledgerAccount{}}
}

// Handler returns an HTTP handler serving the ledger's JSON-RPC API under
// the vasp namespace.
func (l *Ledger) Handler() (http.Handler, error) {
	server := rpc.NewServer()
	if err := server.RegisterName("vasp", &ledgerService{ledger: l}); err != nil {
		return nil, err
	}
	return server, nil
}

// GenVASPAccount creates and funds a parent VASP account publishing the
// given off-chain base URL.
func (l *Ledger) GenVASPAccount(baseURL string) (*LocalAccount, error) {
	account, err := GenLocalAccount()
	if err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.accounts[account.Address.Hex()] = &ledgerAccount{
		account: &Account{
			Address:  account.Address.Hex(),
			Balances: map[string]uint64{DefaultCurrency: faucetAmount},
			Role: &AccountRole{
				Type:          AccountRoleParentVASP,
				BaseURL:       baseURL,
				ComplianceKey: account.CompliancePublicKeyHex(),
			},
		},
		authKey: account.PrivateKey.Public().(ed25519.PublicKey),
	}
	return account, nil
}

// GenChildVASP creates and funds a child account under a parent VASP.
func (l *Ledger) GenChildVASP(parent *LocalAccount) (*LocalAccount, error) {
	account, err := GenLocalAccount()
	if err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.accounts[parent.Address.Hex()]; !ok {
		return nil, fmt.Errorf("unknown parent account %s", parent.Address.Hex())
	}
	l.accounts[account.Address.Hex()] = &ledgerAccount{
		account: &Account{
			Address:  account.Address.Hex(),
			Balances: map[string]uint64{DefaultCurrency: faucetAmount},
			Role: &AccountRole{
				Type:              AccountRoleChildVASP,
				ParentVASPAddress: parent.Address.Hex(),
			},
		},
		authKey: account.PrivateKey.Public().(ed25519.PublicKey),
	}
	return account, nil
}

// GetAccount returns a copy of the stored account, or an error when unknown.
func (l *Ledger) GetAccount(address string) (*Account, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	stored, ok := l.accounts[address]
	if !ok {
		return nil, fmt.Errorf("unknown account %s", address)
	}
	return copyAccount(stored.account), nil
}

// SubmitTransfer validates and executes a transfer.
func (l *Ledger) SubmitTransfer(req *TransferRequest) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	sender, ok := l.accounts[req.Sender]
	if !ok {
		return fmt.Errorf("unknown sender account %s", req.Sender)
	}
	receiver, ok := l.accounts[req.Receiver]
	if !ok {
		return fmt.Errorf("unknown receiver account %s", req.Receiver)
	}

	senderSig, err := hex.DecodeString(req.SenderSignature)
	if err != nil || !ed25519.Verify(sender.authKey, req.SigningPayload(), senderSig) {
		return fmt.Errorf("invalid sender signature")
	}
	if err := l.verifyTravelRule(req, receiver); err != nil {
		return err
	}

	if sender.account.Balances[req.Currency] < req.Amount {
		return fmt.Errorf("insufficient %s balance on %s", req.Currency, req.Sender)
	}
	sender.account.Balances[req.Currency] -= req.Amount
	receiver.account.Balances[req.Currency] += req.Amount
	return nil
}

// verifyTravelRule checks the metadata signature against the receiving
// VASP's parent compliance key. Caller holds the lock.
func (l *Ledger) verifyTravelRule(req *TransferRequest, receiver *ledgerAccount) error {
	parent := receiver
	if receiver.account.Role != nil && receiver.account.Role.Type == AccountRoleChildVASP {
		p, ok := l.accounts[receiver.account.Role.ParentVASPAddress]
		if !ok {
			return fmt.Errorf("receiver %s has unknown parent", req.Receiver)
		}
		parent = p
	}
	if parent.account.Role == nil || parent.account.Role.ComplianceKey == "" {
		return fmt.Errorf("receiver %s has no compliance key", req.Receiver)
	}
	complianceKey, err := hex.DecodeString(parent.account.Role.ComplianceKey)
	if err != nil || len(complianceKey) != ed25519.PublicKeySize {
		return fmt.Errorf("receiver %s has invalid compliance key", req.Receiver)
	}

	metadata, err := hex.DecodeString(req.Metadata)
	if err != nil {
		return fmt.Errorf("invalid metadata encoding")
	}
	senderAddress, err := addr.AccountAddressFromHex(req.Sender)
	if err != nil {
		return fmt.Errorf("invalid sender address")
	}
	_, sigMsg := TravelRuleMetadata(string(metadata), senderAddress, req.Amount)

	sig, err := hex.DecodeString(req.MetadataSignature)
	if err != nil || !ed25519.Verify(ed25519.PublicKey(complianceKey), sigMsg, sig) {
		return fmt.Errorf("invalid travel rule metadata signature")
	}
	return nil
}

// Balance returns an account's balance in the given currency, zero when the
// account is unknown.
func (l *Ledger) Balance(address, currency string) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	stored, ok := l.accounts[address]
	if !ok {
		return 0
	}
	return stored.account.Balances[currency]
}

func copyAccount(a *Account) *Account {
	out := *a
	out.Balances = map[string]uint64{}
	for c, v := range a.Balances {
		out.Balances[c] = v
	}
	if a.Role != nil {
		role := *a.Role
		out.Role = &role
	}
	return &out
}

// ledgerService exposes the ledger over JSON-RPC.
type ledgerService struct {
	ledger *Ledger
}

func (s *ledgerService) GetAccount(ctx context.Context, address string) (*Account, error) {
	return s.ledger.GetAccount(address)
}

func (s *ledgerService) SubmitTransfer(ctx context.Context, req *TransferRequest) (bool, error) {
	if err := s.ledger.SubmitTransfer(req); err != nil {
		return false, err
	}
	return true, nil
}
