package usecases

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"vasp-link.backend/internal/domain/entities"
	"vasp-link.backend/internal/domain/errors"
	"vasp-link.backend/internal/domain/protocol"
	"vasp-link.backend/internal/infrastructure/blockchain"
	"vasp-link.backend/pkg/addr"
	"vasp-link.backend/pkg/jws"
)

const (
	// defaultConnectTimeout bounds dialing the counterparty endpoint.
	defaultConnectTimeout = 2 * time.Second
	// defaultRequestTimeout bounds the whole outbound exchange.
	defaultRequestTimeout = 5 * time.Second
)

// ChainClient is the chain lookup surface the off-chain client needs.
type ChainClient interface {
	GetAccount(ctx context.Context, address addr.AccountAddress) (*blockchain.Account, error)
	GetBaseURLAndComplianceKey(ctx context.Context, address addr.AccountAddress) (string, ed25519.PublicKey, error)
	SubmitTransfer(ctx context.Context, req *blockchain.TransferRequest) error
}

// CommandResponseFailure is returned when the counterparty acknowledged the
// request with a failure response.
type CommandResponseFailure struct {
	Response *entities.CommandResponse
}

func (e *CommandResponseFailure) Error() string {
	msgs := make([]string, 0, len(e.Response.Error))
	for _, oe := range e.Response.Error {
		m := oe.Type + "/" + oe.Code
		if oe.Message != nil {
			m += ": " + *oe.Message
		}
		msgs = append(msgs, m)
	}
	return "command response failure: " + strings.Join(msgs, "; ")
}

// OffchainClient exchanges signed command requests with counterparty VASPs
// and verifies inbound ones. Endpoint and verification key discovery go
// through the chain: each parent VASP account publishes its base URL and
// compliance key.
type OffchainClient struct {
	myParentAddress addr.AccountAddress
	myAccountID     string
	hrp             string
	chain           ChainClient
	httpClient      *http.Client
}

// NewOffchainClient creates a client for the VASP owning the given parent
// account address.
func NewOffchainClient(parentAddress addr.AccountAddress, chain ChainClient, hrp string) (*OffchainClient, error) {
	myAccountID, err := addr.EncodeAccount(parentAddress, nil, hrp)
	if err != nil {
		return nil, err
	}
	return &OffchainClient{
		myParentAddress: parentAddress,
		myAccountID:     myAccountID,
		hrp:             hrp,
		chain:           chain,
		httpClient: &http.Client{
			Timeout: defaultRequestTimeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{Timeout: defaultConnectTimeout}).DialContext,
			},
		},
	}, nil
}

// MyAccountID returns this VASP's parent account identifier.
func (c *OffchainClient) MyAccountID() string {
	return c.myAccountID
}

// HRP returns the network human readable prefix.
func (c *OffchainClient) HRP() string {
	return c.hrp
}

// SendRequest signs and posts a command request to the counterparty of the
// payment, determined by role, and verifies the signed response.
func (c *OffchainClient) SendRequest(ctx context.Context, role protocol.Role, request *entities.CommandRequest, signKey ed25519.PrivateKey) (*entities.CommandResponse, error) {
	payment := request.Command.Payment
	counterpartyID := role.Opposite().PaymentActor(payment).Address
	counterpartyAddress, _, err := addr.DecodeAccount(counterpartyID, c.hrp)
	if err != nil {
		return nil, err
	}
	baseURL, verifyKey, err := c.chain.GetBaseURLAndComplianceKey(ctx, counterpartyAddress)
	if err != nil {
		return nil, err
	}

	payload, err := entities.ToJSON(request)
	if err != nil {
		return nil, err
	}
	signed, err := jws.Serialize(payload, signKey)
	if err != nil {
		return nil, err
	}

	url := strings.TrimRight(baseURL, "/") + protocol.CommandEndpoint
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(signed))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set(protocol.HeaderRequestID, uuid.NewString())
	httpReq.Header.Set(protocol.HeaderVerificationKeyAddress, c.myAccountID)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()
	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, err
	}
	if httpResp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("counterparty returned status %d", httpResp.StatusCode)
	}

	respPayload, err := jws.Deserialize(body, verifyKey)
	if err != nil {
		return nil, err
	}
	var response entities.CommandResponse
	if err := entities.FromJSON(respPayload, &response); err != nil {
		return nil, err
	}
	if response.Status == entities.ResponseStatusFailure {
		return nil, &CommandResponseFailure{Response: &response}
	}
	return &response, nil
}

// VerifyRequest resolves the sender VASP's compliance key from the
// verification key address header and verifies and decodes the signed
// request.
func (c *OffchainClient) VerifyRequest(ctx context.Context, keyAccountID string, raw []byte) (*entities.CommandRequest, error) {
	keyAddress, _, err := addr.DecodeAccount(keyAccountID, c.hrp)
	if err != nil {
		return nil, errors.ProtocolError(entities.ErrorCodeInvalidRequest, "",
			fmt.Sprintf("invalid verification key address: %v", err))
	}
	_, verifyKey, err := c.chain.GetBaseURLAndComplianceKey(ctx, keyAddress)
	if err != nil {
		return nil, errors.ProtocolError(entities.ErrorCodeInvalidRequest, "",
			fmt.Sprintf("could not resolve verification key: %v", err))
	}
	payload, err := jws.Deserialize(raw, verifyKey)
	if err != nil {
		return nil, errors.ProtocolError(entities.ErrorCodeInvalidRequest, "",
			fmt.Sprintf("deserialize command request failed: %v", err))
	}
	var request entities.CommandRequest
	if err := entities.FromJSON(payload, &request); err != nil {
		return nil, errors.InvalidRequest(fmt.Sprintf("decode command request failed: %v", err))
	}
	return &request, nil
}

// ValidateInboundCommand determines the local role on the payment and
// validates the new command version against the stored prior one.
func (c *OffchainClient) ValidateInboundCommand(ctx context.Context, command, prior *entities.Command) (protocol.Role, error) {
	myRole, err := c.MyRole(ctx, command.Payment)
	if err != nil {
		return "", err
	}
	var priorPayment *entities.Payment
	if prior != nil {
		priorPayment = prior.Payment
	}
	if err := protocol.ValidateInboundPayment(command.Payment, myRole.Opposite(), priorPayment); err != nil {
		return "", err
	}
	return myRole, nil
}

// MyRole reports which payment actor belongs to this VASP.
func (c *OffchainClient) MyRole(ctx context.Context, payment *entities.Payment) (protocol.Role, error) {
	mine, err := c.IsMyAccountID(ctx, payment.Sender.Address)
	if err != nil {
		return "", err
	}
	if mine {
		return protocol.RoleSender, nil
	}
	mine, err = c.IsMyAccountID(ctx, payment.Receiver.Address)
	if err != nil {
		return "", err
	}
	if mine {
		return protocol.RoleReceiver, nil
	}
	return "", errors.InvalidRequest("unknown actor addresses")
}

// IsMyAccountID reports whether an account identifier belongs to this VASP,
// either the parent account itself or one of its children.
func (c *OffchainClient) IsMyAccountID(ctx context.Context, accountID string) (bool, error) {
	address, _, err := addr.DecodeAccount(accountID, c.hrp)
	if err != nil {
		return false, errors.InvalidRequest(fmt.Sprintf("invalid account identifier %q: %v", accountID, err))
	}
	if address == c.myParentAddress {
		return true, nil
	}
	account, err := c.chain.GetAccount(ctx, address)
	if err != nil {
		return false, err
	}
	if account.Role != nil && account.Role.ParentVASPAddress != "" {
		return account.Role.ParentVASPAddress == c.myParentAddress.Hex(), nil
	}
	return false, nil
}
