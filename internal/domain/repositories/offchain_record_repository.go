package repositories

import (
	"context"

	"vasp-link.backend/internal/domain/entities"
	"vasp-link.backend/internal/domain/protocol"
)

// OffchainRecord is the stored latest command version of a payment exchange,
// keyed by reference id. CmdJSON holds the canonical command encoding; byte
// equality against an inbound command detects idempotent replays.
type OffchainRecord struct {
	ReferenceID string
	CID         string
	Role        protocol.Role
	CmdJSON     []byte
}

// Command decodes the stored canonical command.
func (r *OffchainRecord) Command() (*entities.Command, error) {
	var cmd entities.Command
	if err := entities.FromJSON(r.CmdJSON, &cmd); err != nil {
		return nil, err
	}
	return &cmd, nil
}

// Payment decodes the stored payment document.
func (r *OffchainRecord) Payment() (*entities.Payment, error) {
	cmd, err := r.Command()
	if err != nil {
		return nil, err
	}
	return cmd.Payment, nil
}

// OppositeKycData returns the counterparty actor's KYC data, nil when the
// counterparty has not provided any yet.
func (r *OffchainRecord) OppositeKycData() (*entities.KycData, error) {
	payment, err := r.Payment()
	if err != nil {
		return nil, err
	}
	return r.Role.Opposite().PaymentActor(payment).KycData, nil
}

// OffchainRecordRepository stores the latest record per reference id.
type OffchainRecordRepository interface {
	// Get returns the record for a reference id, nil when none exists.
	Get(ctx context.Context, refID string) (*OffchainRecord, error)
	// Save stores or replaces the record for its reference id.
	Save(ctx context.Context, record *OffchainRecord) error
	// LockRef serializes updates per reference id. The returned func releases
	// the lock.
	LockRef(refID string) func()
	// List returns all stored records.
	List(ctx context.Context) ([]*OffchainRecord, error)
}
