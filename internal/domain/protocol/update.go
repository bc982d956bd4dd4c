package protocol

import (
	"vasp-link.backend/internal/domain/entities"
)

// PaymentChanges lists the per-actor fields a follow-up action may patch
// onto its own side of a payment. Nil fields are left alone; a status patch
// always rebuilds the status object so stale abort codes do not linger.
type PaymentChanges struct {
	Status             *entities.Status
	AbortCode          *string
	AbortMessage       *string
	KycData            *entities.KycData
	AdditionalKycData  *string
	RecipientSignature *string
}

// UpdatePayment returns a new payment version with the changes applied to
// the actor owned by role. The input payment is not mutated.
func UpdatePayment(role Role, payment *entities.Payment, ch PaymentChanges) (*entities.Payment, error) {
	updated, err := payment.Clone()
	if err != nil {
		return nil, err
	}
	if ch.RecipientSignature != nil {
		updated.RecipientSignature = ch.RecipientSignature
	}
	updateActor(role.PaymentActor(updated), ch)
	return updated, nil
}

func updateActor(actor *entities.PaymentActor, ch PaymentChanges) {
	st := actor.Status.Status
	if ch.Status != nil {
		st = *ch.Status
	}
	actor.Status = &entities.StatusObject{
		Status:       st,
		AbortCode:    ch.AbortCode,
		AbortMessage: ch.AbortMessage,
	}
	if ch.KycData != nil {
		actor.KycData = ch.KycData
	}
	if ch.AdditionalKycData != nil {
		kyc := actor.KycData
		if kyc == nil {
			kyc = entities.NewKycData(entities.KycDataTypeIndividual)
		}
		kyc.AdditionalKycData = ch.AdditionalKycData
		actor.KycData = kyc
	}
}

// UpdatePaymentRequest applies the changes and wraps the new payment version
// into a fresh command request.
func UpdatePaymentRequest(role Role, payment *entities.Payment, ch PaymentChanges) (*entities.CommandRequest, error) {
	updated, err := UpdatePayment(role, payment, ch)
	if err != nil {
		return nil, err
	}
	return entities.NewPaymentRequest(updated), nil
}

// StatusPtr is a convenience for building PaymentChanges literals.
func StatusPtr(s entities.Status) *entities.Status {
	return &s
}
