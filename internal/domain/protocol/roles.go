package protocol

import "vasp-link.backend/internal/domain/entities"

// Role identifies which side of a payment the local VASP plays.
type Role string

const (
	RoleSender   Role = "sender"
	RoleReceiver Role = "receiver"
)

func (r Role) Opposite() Role {
	if r == RoleSender {
		return RoleReceiver
	}
	return RoleSender
}

// PaymentActor returns the actor this role owns on the payment.
func (r Role) PaymentActor(p *entities.Payment) *entities.PaymentActor {
	if r == RoleSender {
		return p.Sender
	}
	return p.Receiver
}

// Action is a follow-up business action owed by one role at a given state.
type Action string

const (
	ActionEvaluateKycData Action = "evaluate_kyc_data"
	ActionReviewKycData   Action = "review_kyc_data"
	ActionClearSoftMatch  Action = "clear_soft_match"
	ActionSubmitTxn       Action = "submit_transaction"
)

// HTTP headers of the off-chain wire protocol.
const (
	// HeaderRequestID is a per-HTTP-attempt UUID, distinct from the
	// envelope-level cid.
	HeaderRequestID = "X-Request-ID"
	// HeaderVerificationKeyAddress carries the sending VASP's parent account
	// id; the receiver resolves the envelope verification key from it.
	HeaderVerificationKeyAddress = "X-Verification-Key-Address"
)

// CommandEndpoint is the path commands are POSTed to under a VASP base URL.
const CommandEndpoint = "/v1/command"
