package protocol

import (
	"strings"

	"vasp-link.backend/internal/domain/entities"
	sm "vasp-link.backend/internal/domain/statemachine"
)

func status(actor string, s entities.Status) sm.ValueCondition {
	return sm.Value(actor+".status.status", s)
}

// The nine states of the payment machine. Each is a predicate over the
// payment document; a stored payment matches exactly one.
var (
	SInit = sm.State{ID: "S_INIT", Require: sm.Require(
		status("sender", entities.StatusNeedsKycData),
		status("receiver", entities.StatusNone),
		sm.Field("sender.kyc_data"),
	)}
	SAbort = sm.State{ID: "S_ABORT", Require: sm.Require(
		status("sender", entities.StatusAbort),
		status("receiver", entities.StatusReadyForSettlement),
	)}
	SSoft = sm.State{ID: "S_SOFT", Require: sm.Require(
		status("sender", entities.StatusSoftMatch),
		status("receiver", entities.StatusReadyForSettlement),
		sm.FieldNotSet("receiver.kyc_data.additional_kyc_data"),
	)}
	SSoftSend = sm.State{ID: "S_SOFT_SEND", Require: sm.Require(
		status("sender", entities.StatusNeedsKycData),
		sm.Field("sender.kyc_data.additional_kyc_data"),
		status("receiver", entities.StatusSoftMatch),
	)}
	Ready = sm.State{ID: "READY", Require: sm.Require(
		status("sender", entities.StatusReadyForSettlement),
		status("receiver", entities.StatusReadyForSettlement),
	)}
	RAbort = sm.State{ID: "R_ABORT", Require: sm.Require(
		status("sender", entities.StatusNeedsKycData),
		status("receiver", entities.StatusAbort),
	)}
	RSoft = sm.State{ID: "R_SOFT", Require: sm.Require(
		status("sender", entities.StatusNeedsKycData),
		sm.FieldNotSet("sender.kyc_data.additional_kyc_data"),
		status("receiver", entities.StatusSoftMatch),
	)}
	RSoftSend = sm.State{ID: "R_SOFT_SEND", Require: sm.Require(
		status("sender", entities.StatusSoftMatch),
		status("receiver", entities.StatusReadyForSettlement),
		sm.Field("receiver.kyc_data.additional_kyc_data"),
	)}
	RSend = sm.State{ID: "R_SEND", Require: sm.Require(
		status("sender", entities.StatusNeedsKycData),
		status("receiver", entities.StatusReadyForSettlement),
		sm.Field("receiver.kyc_data"),
		sm.Field("recipient_signature"),
	)}
)

// Machine is the payment state machine: S_INIT is the only initial state;
// READY, S_ABORT and R_ABORT are terminal.
var Machine = sm.Build([]sm.Transition{
	sm.NewTransition(SInit, RSend),
	sm.NewTransition(SInit, RAbort),
	sm.NewTransition(SInit, RSoft),
	sm.NewTransition(RSend, Ready),
	sm.NewTransition(RSend, SAbort),
	sm.NewTransition(RSend, SSoft),
	sm.NewTransition(RSoft, SSoftSend),
	sm.NewTransition(SSoftSend, RAbort),
	sm.NewTransition(SSoftSend, RSend),
	sm.NewTransition(SSoft, RSoftSend),
	sm.NewTransition(RSoftSend, SAbort),
	sm.NewTransition(RSoftSend, Ready),
})

type followUp struct {
	role   Role
	action Action
}

// followUps maps each state to the single follow-up owed at it, if any.
// Terminal abort states owe nothing.
var followUps = map[string]*followUp{
	SInit.ID:     {RoleReceiver, ActionEvaluateKycData},
	RSend.ID:     {RoleSender, ActionEvaluateKycData},
	RAbort.ID:    nil,
	RSoft.ID:     {RoleSender, ActionClearSoftMatch},
	Ready.ID:     {RoleSender, ActionSubmitTxn},
	SAbort.ID:    nil,
	SSoft.ID:     {RoleReceiver, ActionClearSoftMatch},
	SSoftSend.ID: {RoleReceiver, ActionReviewKycData},
	RSoftSend.ID: {RoleSender, ActionReviewKycData},
}

// TriggerRole returns the role whose write produced the given state. R_*
// states are receiver-authored; the rest, READY included, come from the
// sender.
func TriggerRole(state sm.State) Role {
	switch state.ID {
	case RSend.ID, RAbort.ID, RSoft.ID, RSoftSend.ID:
		return RoleReceiver
	}
	return RoleSender
}

// FollowUpAction returns the action the local role owes at the given state,
// or "" when the other side (or nobody) has the next move.
func FollowUpAction(role Role, state sm.State) Action {
	f := followUps[state.ID]
	if f == nil || f.role != role {
		return ""
	}
	return f.action
}

// MatchState resolves the unique machine state for a payment.
func MatchState(p *entities.Payment) (sm.State, error) {
	return Machine.MatchState(p)
}

// Summary renders a compact shape signature of a payment for logs and error
// messages, e.g. "needs_kyc_data_k_none_-_-".
func Summary(p *entities.Payment) string {
	if p == nil {
		return "-"
	}
	return strings.Join([]string{
		actorSummary(p.Sender),
		actorSummary(p.Receiver),
		presence(p.RecipientSignature != nil),
	}, "_")
}

func actorSummary(a *entities.PaymentActor) string {
	if a == nil {
		return "-"
	}
	kyc := "-"
	if a.KycData != nil {
		kyc = "k"
		if a.KycData.AdditionalKycData != nil {
			kyc = "k+"
		}
	}
	st := "-"
	if a.Status != nil {
		st = string(a.Status.Status)
	}
	return st + "_" + kyc
}

func presence(set bool) string {
	if set {
		return "s"
	}
	return "-"
}
