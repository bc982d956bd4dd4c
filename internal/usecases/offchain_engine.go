package usecases

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"vasp-link.backend/internal/domain/entities"
	"vasp-link.backend/internal/domain/errors"
	"vasp-link.backend/internal/domain/protocol"
	"vasp-link.backend/internal/domain/repositories"
	"vasp-link.backend/internal/infrastructure/metrics"
	"vasp-link.backend/pkg/jws"
	"vasp-link.backend/pkg/logger"
)

// ActionResult reports the outcome of a business action or send attempt.
type ActionResult string

const (
	ActionResultPass                  ActionResult = "pass"
	ActionResultReject                ActionResult = "reject"
	ActionResultSoftMatch             ActionResult = "soft_match"
	ActionResultSentAdditionalKycData ActionResult = "sent_additional_kyc_data"
	ActionResultTxnExecuted           ActionResult = "transaction_executed"
	ActionResultSendRequestFailed     ActionResult = "send_request_failed"
	ActionResultSendRequestSuccess    ActionResult = "send_request_success"
)

// TaskResult is what a background task produced. Action is empty for send
// retry tasks.
type TaskResult struct {
	Action protocol.Action
	Result ActionResult
}

// ActionDispatcher executes the wallet-side business action owed at a
// record's current state.
type ActionDispatcher interface {
	Execute(ctx context.Context, action protocol.Action, record *repositories.OffchainRecord) (ActionResult, error)
}

type backgroundTask func(ctx context.Context) (*TaskResult, error)

// OffchainEngine drives payment exchanges: it persists command versions,
// processes inbound requests, sends outbound ones, and queues the follow-up
// work each new state owes. Business decisions are delegated to the
// dispatcher.
type OffchainEngine struct {
	client     *OffchainClient
	records    repositories.OffchainRecordRepository
	dispatcher ActionDispatcher

	// mu guards the task queue and the signing key
	mu            sync.Mutex
	tasks         []backgroundTask
	complianceKey ed25519.PrivateKey
}

// NewOffchainEngine creates an engine signing envelopes with the given
// compliance key.
func NewOffchainEngine(client *OffchainClient, records repositories.OffchainRecordRepository, complianceKey ed25519.PrivateKey) *OffchainEngine {
	return &OffchainEngine{
		client:        client,
		records:       records,
		complianceKey: complianceKey,
	}
}

// SetDispatcher wires the business action dispatcher. Must be called before
// background tasks run.
func (e *OffchainEngine) SetDispatcher(d ActionDispatcher) {
	e.dispatcher = d
}

// SetComplianceKey replaces the envelope signing key. Safe to call while
// background tasks are running.
func (e *OffchainEngine) SetComplianceKey(key ed25519.PrivateKey) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.complianceKey = key
}

func (e *OffchainEngine) signingKey() ed25519.PrivateKey {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.complianceKey
}

// Records exposes the record store.
func (e *OffchainEngine) Records() repositories.OffchainRecordRepository {
	return e.records
}

// Client exposes the off-chain client.
func (e *OffchainEngine) Client() *OffchainClient {
	return e.client
}

// Initiate saves and sends a brand new outbound payment request authored by
// this VASP as sender.
func (e *OffchainEngine) Initiate(ctx context.Context, request *entities.CommandRequest) error {
	if err := e.saveRecord(ctx, request, protocol.RoleSender); err != nil {
		return err
	}
	e.sendRequest(ctx, request, protocol.RoleSender)
	return nil
}

// ProcessInbound handles one inbound signed command request and returns the
// HTTP status code plus the signed response body. A non-nil error means an
// unexpected failure the transport should map to a 500.
func (e *OffchainEngine) ProcessInbound(ctx context.Context, keyAccountID string, raw []byte) (int, []byte, error) {
	started := time.Now()
	code, response, err := e.processInbound(ctx, keyAccountID, raw)
	if err != nil {
		metrics.ObserveInbound(http.StatusInternalServerError, time.Since(started))
		return 0, nil, err
	}
	signed, err := e.SignResponse(response)
	if err != nil {
		return 0, nil, err
	}
	metrics.ObserveInbound(code, time.Since(started))
	return code, signed, nil
}

// SignResponse encodes and signs a command response envelope.
func (e *OffchainEngine) SignResponse(response *entities.CommandResponse) ([]byte, error) {
	payload, err := entities.ToJSON(response)
	if err != nil {
		return nil, err
	}
	return jws.Serialize(payload, e.signingKey())
}

func (e *OffchainEngine) processInbound(ctx context.Context, keyAccountID string, raw []byte) (int, *entities.CommandResponse, error) {
	request, err := e.client.VerifyRequest(ctx, keyAccountID, raw)
	if err != nil {
		return e.inboundFailure(ctx, nil, err)
	}

	refID := request.Command.Payment.ReferenceID
	unlock := e.records.LockRef(refID)
	defer unlock()

	record, err := e.records.Get(ctx, refID)
	if err != nil {
		return 0, nil, err
	}
	var prior *entities.Command
	var priorJSON []byte
	if record != nil {
		if prior, err = record.Command(); err != nil {
			return 0, nil, err
		}
		priorJSON = record.CmdJSON
	}

	newJSON, err := entities.ToJSON(request.Command)
	if err != nil {
		return e.inboundFailure(ctx, &request.CID, errors.InvalidRequest(err.Error()))
	}

	// replays of the stored version are acknowledged without re-processing
	if !bytes.Equal(newJSON, priorJSON) {
		myRole, err := e.client.ValidateInboundCommand(ctx, request.Command, prior)
		if err != nil {
			return e.inboundFailure(ctx, &request.CID, err)
		}
		if err := e.saveRecord(ctx, request, myRole); err != nil {
			return 0, nil, err
		}
	}

	return http.StatusOK, entities.ReplyRequest(&request.CID), nil
}

func (e *OffchainEngine) inboundFailure(ctx context.Context, cid *string, err error) (int, *entities.CommandResponse, error) {
	oe, ok := errors.AsOffchainError(err)
	if !ok {
		return 0, nil, err
	}
	logger.Warn(ctx, "inbound command rejected", zap.Error(err))
	return http.StatusBadRequest, entities.ReplyRequest(cid, oe.Obj), nil
}

// UpdatePaymentRecord applies changes to the local actor of a stored
// payment, persists the new version with its follow-up, and sends it to the
// counterparty.
func (e *OffchainEngine) UpdatePaymentRecord(ctx context.Context, record *repositories.OffchainRecord, ch protocol.PaymentChanges) (ActionResult, error) {
	payment, err := record.Payment()
	if err != nil {
		return "", err
	}
	request, err := protocol.UpdatePaymentRequest(record.Role, payment, ch)
	if err != nil {
		return "", err
	}
	if err := e.saveRecord(ctx, request, record.Role); err != nil {
		return "", err
	}
	return e.sendRequest(ctx, request, record.Role), nil
}

// sendRequest attempts delivery; failures are logged and retried by a
// queued background task.
func (e *OffchainEngine) sendRequest(ctx context.Context, request *entities.CommandRequest, role protocol.Role) ActionResult {
	_, err := e.client.SendRequest(ctx, role, request, e.signingKey())
	if err != nil {
		logger.Warn(ctx, "send command request failed, queued for retry",
			zap.String("cid", request.CID), zap.Error(err))
		metrics.CountOutbound(string(ActionResultSendRequestFailed))
		e.enqueue(func(ctx context.Context) (*TaskResult, error) {
			return &TaskResult{Result: e.sendRequest(ctx, request, role)}, nil
		})
		return ActionResultSendRequestFailed
	}
	metrics.CountOutbound(string(ActionResultSendRequestSuccess))
	return ActionResultSendRequestSuccess
}

// saveRecord persists the command version and queues the follow-up action
// the new state owes to this VASP's role, if any.
func (e *OffchainEngine) saveRecord(ctx context.Context, request *entities.CommandRequest, role protocol.Role) error {
	cmdJSON, err := entities.ToJSON(request.Command)
	if err != nil {
		return err
	}
	refID := request.Command.Payment.ReferenceID
	record := &repositories.OffchainRecord{
		ReferenceID: refID,
		CID:         request.CID,
		Role:        role,
		CmdJSON:     cmdJSON,
	}
	if err := e.records.Save(ctx, record); err != nil {
		return err
	}

	state, err := protocol.MatchState(request.Command.Payment)
	if err != nil {
		return err
	}
	action := protocol.FollowUpAction(role, state)
	if action == "" {
		return nil
	}
	logger.Debug(ctx, "queued follow-up action",
		zap.String("reference_id", refID), zap.String("action", string(action)))
	e.enqueue(func(ctx context.Context) (*TaskResult, error) {
		return e.runBusinessAction(ctx, action, refID)
	})
	return nil
}

func (e *OffchainEngine) runBusinessAction(ctx context.Context, action protocol.Action, refID string) (*TaskResult, error) {
	unlock := e.records.LockRef(refID)
	defer unlock()

	record, err := e.records.Get(ctx, refID)
	if err != nil {
		return nil, err
	}
	result, err := e.dispatcher.Execute(ctx, action, record)
	if err != nil {
		return nil, err
	}
	metrics.CountBackgroundTask(string(action))
	return &TaskResult{Action: action, Result: result}, nil
}

// RunOnceBackground pops and runs one queued task in FIFO order. The bool
// reports whether a task ran.
func (e *OffchainEngine) RunOnceBackground(ctx context.Context) (*TaskResult, bool, error) {
	e.mu.Lock()
	if len(e.tasks) == 0 {
		e.mu.Unlock()
		return nil, false, nil
	}
	task := e.tasks[0]
	e.tasks = e.tasks[1:]
	e.mu.Unlock()

	result, err := task(ctx)
	if err != nil {
		return nil, true, err
	}
	return result, true, nil
}

// PendingTasks reports the current queue depth.
func (e *OffchainEngine) PendingTasks() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.tasks)
}

func (e *OffchainEngine) enqueue(task backgroundTask) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tasks = append(e.tasks, task)
}
