package blockchain

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"fmt"

	"github.com/ethereum/go-ethereum/rpc"

	"vasp-link.backend/pkg/addr"
)

// Account roles as published on chain. A parent VASP account carries the
// off-chain base URL and compliance key for the whole VASP; child accounts
// point back to their parent.
const (
	AccountRoleParentVASP = "parent_vasp"
	AccountRoleChildVASP  = "child_vasp"
)

// DefaultCurrency is the testnet settlement currency.
const DefaultCurrency = "XUS"

// AccountRole describes the VASP role of an on-chain account.
type AccountRole struct {
	Type              string `json:"type"`
	ParentVASPAddress string `json:"parent_vasp_address,omitempty"`
	BaseURL           string `json:"base_url,omitempty"`
	ComplianceKey     string `json:"compliance_key,omitempty"`
}

// Account is the on-chain view of an account.
type Account struct {
	Address  string            `json:"address"`
	Balances map[string]uint64 `json:"balances"`
	Role     *AccountRole      `json:"role"`
}

// TransferRequest is a peer to peer transfer with travel rule metadata
// attached. MetadataSignature is the receiving VASP's compliance signature
// over the travel rule message, hex encoded.
type TransferRequest struct {
	Sender            string `json:"sender"`
	Receiver          string `json:"receiver"`
	Currency          string `json:"currency"`
	Amount            uint64 `json:"amount"`
	Metadata          string `json:"metadata"`
	MetadataSignature string `json:"metadata_signature"`
	SenderSignature   string `json:"sender_signature"`
}

// SigningPayload is the byte string a sender account signs to authorize the
// transfer.
func (t *TransferRequest) SigningPayload() []byte {
	payload := fmt.Sprintf("%s|%s|%s|%d|%s", t.Sender, t.Receiver, t.Currency, t.Amount, t.Metadata)
	return []byte(payload)
}

// Client talks to the chain's JSON-RPC endpoint.
type Client struct {
	rpc *rpc.Client
}

// Dial connects to a chain JSON-RPC URL.
func Dial(url string) (*Client, error) {
	c, err := rpc.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial chain rpc: %w", err)
	}
	return &Client{rpc: c}, nil
}

// NewClient wraps an existing RPC client.
func NewClient(c *rpc.Client) *Client {
	return &Client{rpc: c}
}

func (c *Client) Close() {
	c.rpc.Close()
}

// GetAccount fetches the on-chain account for an address.
func (c *Client) GetAccount(ctx context.Context, address addr.AccountAddress) (*Account, error) {
	var account Account
	if err := c.rpc.CallContext(ctx, &account, "vasp_getAccount", address.Hex()); err != nil {
		return nil, fmt.Errorf("get account %s: %w", address.Hex(), err)
	}
	return &account, nil
}

// SubmitTransfer submits a signed transfer and waits for execution.
func (c *Client) SubmitTransfer(ctx context.Context, req *TransferRequest) error {
	var ok bool
	if err := c.rpc.CallContext(ctx, &ok, "vasp_submitTransfer", req); err != nil {
		return fmt.Errorf("submit transfer: %w", err)
	}
	return nil
}

// GetBaseURLAndComplianceKey resolves the off-chain endpoint of the VASP
// owning an address, walking a child account up to its parent.
func (c *Client) GetBaseURLAndComplianceKey(ctx context.Context, address addr.AccountAddress) (string, ed25519.PublicKey, error) {
	account, err := c.GetAccount(ctx, address)
	if err != nil {
		return "", nil, err
	}
	if account.Role == nil {
		return "", nil, fmt.Errorf("account %s has no VASP role", address.Hex())
	}
	if account.Role.Type == AccountRoleChildVASP {
		parent, err := addr.AccountAddressFromHex(account.Role.ParentVASPAddress)
		if err != nil {
			return "", nil, fmt.Errorf("account %s: bad parent address: %w", address.Hex(), err)
		}
		return c.GetBaseURLAndComplianceKey(ctx, parent)
	}
	if account.Role.BaseURL == "" || account.Role.ComplianceKey == "" {
		return "", nil, fmt.Errorf("account %s has no off-chain endpoint", address.Hex())
	}
	raw, err := hex.DecodeString(account.Role.ComplianceKey)
	if err != nil || len(raw) != ed25519.PublicKeySize {
		return "", nil, fmt.Errorf("account %s has invalid compliance key", address.Hex())
	}
	return account.Role.BaseURL, ed25519.PublicKey(raw), nil
}
