package entities

import (
	"fmt"
	"time"
)

// Status is the per-actor progress marker of a payment exchange.
type Status string

const (
	// StatusNone means the actor has not stated anything yet.
	StatusNone Status = "none"
	// StatusNeedsKycData means the actor requires counterparty KYC data.
	StatusNeedsKycData Status = "needs_kyc_data"
	// StatusReadyForSettlement means the actor considers the payment ready
	// for on-chain settlement.
	StatusReadyForSettlement Status = "ready_for_settlement"
	// StatusAbort means the actor wants to abort instead of settling.
	StatusAbort Status = "abort"
	// StatusSoftMatch means KYC screening soft-matched a watchlist entry and
	// additional_kyc_data is required.
	StatusSoftMatch Status = "soft_match"
)

// ActionCharge is the only supported payment action.
const ActionCharge = "charge"

// StatusObject is an actor status plus optional abort details.
type StatusObject struct {
	Status       Status  `json:"status"`
	AbortCode    *string `json:"abort_code,omitempty"`
	AbortMessage *string `json:"abort_message,omitempty"`
}

func (s *StatusObject) Validate() error {
	switch s.Status {
	case StatusNone, StatusNeedsKycData, StatusReadyForSettlement, StatusAbort, StatusSoftMatch:
		return nil
	}
	return fmt.Errorf("status: invalid value %q", s.Status)
}

// PaymentAction is the immutable what-and-how-much of a payment. Amount is
// in the smallest currency units.
type PaymentAction struct {
	Amount    uint64 `json:"amount"`
	Currency  string `json:"currency"`
	Action    string `json:"action"`
	Timestamp int64  `json:"timestamp"`
}

// NewPaymentAction returns a charge action stamped with the current time.
func NewPaymentAction(amount uint64, currency string) *PaymentAction {
	return &PaymentAction{
		Amount:    amount,
		Currency:  currency,
		Action:    ActionCharge,
		Timestamp: time.Now().Unix(),
	}
}

func (a *PaymentAction) Validate() error {
	if a.Action != ActionCharge {
		return fmt.Errorf("action: must be %q, got %q", ActionCharge, a.Action)
	}
	if a.Currency == "" {
		return fmt.Errorf("action: currency is required")
	}
	if a.Timestamp == 0 {
		return fmt.Errorf("action: timestamp is required")
	}
	return nil
}

// PaymentActor is one side of a payment exchange.
type PaymentActor struct {
	Address  string        `json:"address"`
	Status   *StatusObject `json:"status"`
	KycData  *KycData      `json:"kyc_data,omitempty"`
	Metadata []string      `json:"metadata,omitempty"`
}

func (a *PaymentActor) Validate() error {
	if a.Address == "" {
		return fmt.Errorf("actor: address is required")
	}
	if a.Status == nil {
		return fmt.Errorf("actor: status is required")
	}
	if err := a.Status.Validate(); err != nil {
		return err
	}
	if a.KycData != nil {
		return a.KycData.Validate()
	}
	return nil
}

// Payment is the shared document both VASPs evolve. ReferenceID and Action
// never change after creation; RecipientSignature and each actor's KycData
// are write-once.
type Payment struct {
	ReferenceID                string         `json:"reference_id"`
	Sender                     *PaymentActor  `json:"sender"`
	Receiver                   *PaymentActor  `json:"receiver"`
	Action                     *PaymentAction `json:"action"`
	OriginalPaymentReferenceID *string        `json:"original_payment_reference_id,omitempty"`
	RecipientSignature         *string        `json:"recipient_signature,omitempty"`
	Description                *string        `json:"description,omitempty"`
}

func (p *Payment) Validate() error {
	if p.ReferenceID == "" {
		return fmt.Errorf("payment: reference_id is required")
	}
	if p.Sender == nil || p.Receiver == nil {
		return fmt.Errorf("payment: sender and receiver are required")
	}
	if err := p.Sender.Validate(); err != nil {
		return fmt.Errorf("payment sender: %w", err)
	}
	if err := p.Receiver.Validate(); err != nil {
		return fmt.Errorf("payment receiver: %w", err)
	}
	if p.Action == nil {
		return fmt.Errorf("payment: action is required")
	}
	return p.Action.Validate()
}

// Clone deep-copies the payment through its canonical encoding.
func (p *Payment) Clone() (*Payment, error) {
	raw, err := ToJSON(p)
	if err != nil {
		return nil, err
	}
	var out Payment
	if err := FromJSON(raw, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
