package protocol

import (
	"fmt"

	"vasp-link.backend/internal/domain/entities"
	"vasp-link.backend/internal/domain/errors"
)

// ValidateInboundPayment checks a counterparty's new payment version against
// the stored prior version (nil for a brand new payment):
//
//  1. write-once fields are unchanged,
//  2. the new version matches exactly one machine state,
//  3. that state is authored by the counterparty's role,
//  4. prior -> new is a legal transition, or new is initial when there is no
//     prior.
func ValidateInboundPayment(newPayment *entities.Payment, eventRole Role, prior *entities.Payment) error {
	if prior != nil {
		if err := validateWriteOnceFields(newPayment, prior); err != nil {
			return err
		}
	}

	newState, err := MatchState(newPayment)
	if err != nil {
		return errors.InvalidRequest(fmt.Sprintf(
			"new payment(%s) does not match any valid states", Summary(newPayment)))
	}

	if expected := TriggerRole(newState); eventRole != expected {
		return errors.InvalidRequest(fmt.Sprintf(
			"payment(%s) is expected from %s, but from %s", Summary(newPayment), expected, eventRole))
	}

	if prior == nil {
		if !Machine.IsInitial(newState) {
			return errors.InvalidRequest(fmt.Sprintf(
				"invalid initial payment(%s)", Summary(newPayment)))
		}
		return nil
	}

	priorState, err := MatchState(prior)
	if err != nil {
		return errors.InvalidRequest(fmt.Sprintf(
			"stored payment(%s) does not match any valid states", Summary(prior)))
	}
	if !Machine.IsValidTransition(priorState, newState, newPayment) {
		return errors.InvalidRequest(fmt.Sprintf(
			"can not transit payment(%s) from %s", Summary(newPayment), Summary(prior)))
	}
	return nil
}

func validateWriteOnceFields(newPayment, prior *entities.Payment) error {
	if newPayment.ReferenceID != prior.ReferenceID {
		return immutable("reference_id")
	}
	if !strPtrEqual(newPayment.OriginalPaymentReferenceID, prior.OriginalPaymentReferenceID) {
		return immutable("original_payment_reference_id")
	}
	if prior.RecipientSignature != nil && !strPtrEqual(newPayment.RecipientSignature, prior.RecipientSignature) {
		return immutable("recipient_signature")
	}
	if err := validateActionUnchanged(newPayment.Action, prior.Action); err != nil {
		return err
	}
	if err := validateActorWriteOnce("sender", newPayment.Sender, prior.Sender); err != nil {
		return err
	}
	return validateActorWriteOnce("receiver", newPayment.Receiver, prior.Receiver)
}

func validateActionUnchanged(newAction, prior *entities.PaymentAction) error {
	if newAction == nil || prior == nil {
		return immutable("action")
	}
	if newAction.Amount != prior.Amount || newAction.Currency != prior.Currency ||
		newAction.Action != prior.Action || newAction.Timestamp != prior.Timestamp {
		return immutable("action")
	}
	return nil
}

func validateActorWriteOnce(name string, newActor, prior *entities.PaymentActor) error {
	if newActor == nil || prior == nil {
		return immutable(name)
	}
	if newActor.Address != prior.Address {
		return immutable(name + ".address")
	}
	// kyc_data may grow (additional data attached) but never disappear.
	if prior.KycData != nil && newActor.KycData == nil {
		return immutable(name + ".kyc_data")
	}
	return nil
}

func immutable(field string) error {
	return errors.CommandError(entities.ErrorCodeInvalidRequest, "command.payment."+field,
		fmt.Sprintf("field %s can not be changed", field))
}

func strPtrEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
