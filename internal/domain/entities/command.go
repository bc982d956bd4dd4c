package entities

import (
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
)

const (
	CommandTypePayment        = "PaymentCommand"
	ObjectTypeCommandRequest  = "CommandRequestObject"
	ObjectTypeCommandResponse = "CommandResponseObject"
	ResponseStatusSuccess     = "success"
	ResponseStatusFailure     = "failure"
	ErrorTypeCommand          = "command_error"
	ErrorTypeProtocol         = "protocol_error"
	ErrorCodeInvalidRequest   = "invalid-request"
	AbortCodeRejectedKycData  = "rejected"
	AbortCodeNoKycNeeded      = "no-kyc-needed"
)

// Command wraps the payment document on the wire.
type Command struct {
	ObjectType string   `json:"_ObjectType"`
	Payment    *Payment `json:"payment,omitempty"`
}

func (c *Command) Validate() error {
	if c.ObjectType != CommandTypePayment {
		return fmt.Errorf("command: invalid _ObjectType %q", c.ObjectType)
	}
	if c.Payment == nil {
		return fmt.Errorf("command: payment is required")
	}
	return c.Payment.Validate()
}

// CommandRequest is the signed-envelope payload of an outbound command.
// CID correlates the response; a fresh one is minted per command version.
type CommandRequest struct {
	ObjectType  string   `json:"_ObjectType"`
	CID         string   `json:"cid"`
	CommandType string   `json:"command_type"`
	Command     *Command `json:"command"`
}

func (r *CommandRequest) Validate() error {
	if r.ObjectType != ObjectTypeCommandRequest {
		return fmt.Errorf("request: invalid _ObjectType %q", r.ObjectType)
	}
	if r.CID == "" {
		return fmt.Errorf("request: cid is required")
	}
	if r.CommandType != CommandTypePayment {
		return fmt.Errorf("request: invalid command_type %q", r.CommandType)
	}
	if r.Command == nil {
		return fmt.Errorf("request: command is required")
	}
	return r.Command.Validate()
}

// OffChainError is the wire error object. Type command_error covers
// document-level failures (validation, illegal transition); protocol_error
// covers envelope-level failures (signature, malformed JSON, headers).
type OffChainError struct {
	Type    string  `json:"type"`
	Code    string  `json:"code"`
	Field   *string `json:"field,omitempty"`
	Message *string `json:"message,omitempty"`
}

func (e *OffChainError) Validate() error {
	if e.Type != ErrorTypeCommand && e.Type != ErrorTypeProtocol {
		return fmt.Errorf("error: invalid type %q", e.Type)
	}
	if e.Code == "" {
		return fmt.Errorf("error: code is required")
	}
	return nil
}

// CommandResponse acknowledges or rejects a command request.
type CommandResponse struct {
	ObjectType string          `json:"_ObjectType"`
	Status     string          `json:"status"`
	Error      []OffChainError `json:"error,omitempty"`
	CID        *string         `json:"cid,omitempty"`
}

func (r *CommandResponse) Validate() error {
	if r.ObjectType != ObjectTypeCommandResponse {
		return fmt.Errorf("response: invalid _ObjectType %q", r.ObjectType)
	}
	if r.Status != ResponseStatusSuccess && r.Status != ResponseStatusFailure {
		return fmt.Errorf("response: invalid status %q", r.Status)
	}
	for i := range r.Error {
		if err := r.Error[i].Validate(); err != nil {
			return err
		}
	}
	return nil
}

// NewCID returns a fresh 128-bit hex command correlation id.
func NewCID() string {
	id := uuid.New()
	return hex.EncodeToString(id[:])
}

// NewReferenceID returns a fresh globally unique payment reference id.
func NewReferenceID() string {
	id := uuid.New()
	return hex.EncodeToString(id[:])
}

// InitPaymentRequest builds the initial command of a new payment exchange:
// sender needs_kyc_data with its KYC attached, receiver none.
func InitPaymentRequest(senderAccountID string, senderKyc *KycData, receiverAccountID string, amount uint64, currency string) *CommandRequest {
	return NewPaymentRequest(&Payment{
		ReferenceID: NewReferenceID(),
		Sender: &PaymentActor{
			Address: senderAccountID,
			Status:  &StatusObject{Status: StatusNeedsKycData},
			KycData: senderKyc,
		},
		Receiver: &PaymentActor{
			Address: receiverAccountID,
			Status:  &StatusObject{Status: StatusNone},
		},
		Action: NewPaymentAction(amount, currency),
	})
}

// NewPaymentRequest wraps a payment into a command request with a fresh cid.
func NewPaymentRequest(payment *Payment) *CommandRequest {
	return &CommandRequest{
		ObjectType:  ObjectTypeCommandRequest,
		CID:         NewCID(),
		CommandType: CommandTypePayment,
		Command: &Command{
			ObjectType: CommandTypePayment,
			Payment:    payment,
		},
	}
}

// ReplyRequest builds the response to a command request: success when errs
// is empty, failure otherwise. cid may be nil when the request could not be
// decoded.
func ReplyRequest(cid *string, errs ...OffChainError) *CommandResponse {
	status := ResponseStatusSuccess
	if len(errs) > 0 {
		status = ResponseStatusFailure
	}
	return &CommandResponse{
		ObjectType: ObjectTypeCommandResponse,
		Status:     status,
		Error:      errs,
		CID:        cid,
	}
}
