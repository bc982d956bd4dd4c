package usecases_test

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"io"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vasp-link.backend/internal/domain/entities"
	"vasp-link.backend/internal/domain/protocol"
	"vasp-link.backend/internal/usecases"
	"vasp-link.backend/pkg/jws"
)

func assertRetry(t *testing.T, w *testWallet, result usecases.ActionResult) {
	t.Helper()
	assertTask(t, w, usecases.TaskResult{Result: result})
}

// postRaw posts a body to a wallet's command endpoint with the given headers
// and decodes the signed response.
func postRaw(t *testing.T, target *testWallet, headers map[string]string, body []byte) (int, *entities.CommandResponse) {
	t.Helper()

	req, err := http.NewRequest(http.MethodPost, target.url+protocol.CommandEndpoint, bytes.NewReader(body))
	require.NoError(t, err)
	for name, value := range headers {
		req.Header.Set(name, value)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	payload, err := jws.Deserialize(raw, target.parent.ComplianceKey.Public().(ed25519.PublicKey))
	require.NoError(t, err)
	var response entities.CommandResponse
	require.NoError(t, entities.FromJSON(payload, &response))
	return resp.StatusCode, &response
}

// postCommand posts a signed payload the way a counterparty VASP would.
func postCommand(t *testing.T, target *testWallet, keyAccountID string, signed []byte) (int, *entities.CommandResponse) {
	t.Helper()
	return postRaw(t, target, map[string]string{
		protocol.HeaderRequestID:              uuid.NewString(),
		protocol.HeaderVerificationKeyAddress: keyAccountID,
	}, signed)
}

func TestSendWithWrongComplianceKeyRetriesUntilKeyRestored(t *testing.T) {
	env := setupEnv(t)

	_, wrongKey, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	env.sender.engine.SetComplianceKey(wrongKey)

	env.pay(t)
	assertRetry(t, env.sender, usecases.ActionResultSendRequestFailed)

	env.sender.engine.SetComplianceKey(env.sender.parent.ComplianceKey)
	assertRetry(t, env.sender, usecases.ActionResultSendRequestSuccess)

	assertTask(t, env.receiver, usecases.TaskResult{Action: "evaluate_kyc_data", Result: usecases.ActionResultPass})
	assertTask(t, env.sender, usecases.TaskResult{Action: "evaluate_kyc_data", Result: usecases.ActionResultPass})
	assertNoTask(t, env.receiver)
	assertTask(t, env.sender, usecases.TaskResult{Action: "submit_transaction", Result: usecases.ActionResultTxnExecuted})
	assertNoTask(t, env.receiver)

	env.assertFinalStatus(t, entities.StatusReadyForSettlement, entities.StatusReadyForSettlement, amount)
}

func TestCounterpartyStorageOutageRetriesUntilRecovered(t *testing.T) {
	env := setupEnv(t)

	// receiver cannot persist, every inbound request answers 500
	env.receiver.repo.setFailSave(true)

	env.pay(t)
	assertRetry(t, env.sender, usecases.ActionResultSendRequestFailed)

	env.receiver.repo.setFailSave(false)
	assertRetry(t, env.sender, usecases.ActionResultSendRequestSuccess)
	assertNoTask(t, env.sender)

	assertTask(t, env.receiver, usecases.TaskResult{Action: "evaluate_kyc_data", Result: usecases.ActionResultPass})

	// outage strikes again while the sender moves the payment to ready
	env.receiver.repo.setFailSave(true)
	assertTask(t, env.sender, usecases.TaskResult{Action: "evaluate_kyc_data", Result: usecases.ActionResultPass})

	senderRecords := records(t, env.sender)
	require.Len(t, senderRecords, 1)
	payment, err := senderRecords[0].Payment()
	require.NoError(t, err)
	assert.Equal(t, entities.StatusReadyForSettlement, payment.Sender.Status.Status)

	receiverRecords := records(t, env.receiver)
	require.Len(t, receiverRecords, 1)
	payment, err = receiverRecords[0].Payment()
	require.NoError(t, err)
	assert.Equal(t, entities.StatusNeedsKycData, payment.Sender.Status.Status)

	// the settlement follow-up was queued before the failed send's retry
	assertTask(t, env.sender, usecases.TaskResult{Action: "submit_transaction", Result: usecases.ActionResultTxnExecuted})
	assertRetry(t, env.sender, usecases.ActionResultSendRequestFailed)

	env.receiver.repo.setFailSave(false)
	assertRetry(t, env.sender, usecases.ActionResultSendRequestSuccess)

	env.assertFinalStatus(t, entities.StatusReadyForSettlement, entities.StatusReadyForSettlement, amount)
}

func TestInvalidCommandRequestJSON(t *testing.T) {
	env := setupEnv(t)

	signed, err := jws.Serialize([]byte(`"invalid_request_json"`), env.sender.parent.ComplianceKey)
	require.NoError(t, err)

	code, response := postCommand(t, env.receiver, env.sender.engine.Client().MyAccountID(), signed)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, entities.ResponseStatusFailure, response.Status)
	assert.Nil(t, response.CID)
	require.Len(t, response.Error, 1)
	assert.Equal(t, entities.ErrorTypeCommand, response.Error[0].Type)

	assert.Empty(t, records(t, env.receiver))
	assert.Equal(t, 0, env.receiver.engine.PendingTasks())
}

func TestUnverifiableCommandBody(t *testing.T) {
	env := setupEnv(t)

	code, response := postCommand(t, env.receiver, env.sender.engine.Client().MyAccountID(), []byte("not a signed envelope"))
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, entities.ResponseStatusFailure, response.Status)
	assert.Nil(t, response.CID)
	require.Len(t, response.Error, 1)
	assert.Equal(t, entities.ErrorTypeProtocol, response.Error[0].Type)

	assert.Empty(t, records(t, env.receiver))
	assert.Equal(t, 0, env.receiver.engine.PendingTasks())
}

func TestMissingVerificationKeyAddressHeader(t *testing.T) {
	env := setupEnv(t)

	signed, err := jws.Serialize([]byte(`{}`), env.sender.parent.ComplianceKey)
	require.NoError(t, err)

	code, response := postRaw(t, env.receiver, map[string]string{
		protocol.HeaderRequestID: uuid.NewString(),
	}, signed)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, entities.ResponseStatusFailure, response.Status)
	assert.Nil(t, response.CID)
	require.Len(t, response.Error, 1)
	assert.Equal(t, entities.ErrorTypeProtocol, response.Error[0].Type)
}

func TestCommandRequestWithoutPayment(t *testing.T) {
	env := setupEnv(t)

	payload := []byte(`{"_ObjectType":"CommandRequestObject","cid":"abc","command_type":"PaymentCommand","command":{"_ObjectType":"PaymentCommand"}}`)
	signed, err := jws.Serialize(payload, env.sender.parent.ComplianceKey)
	require.NoError(t, err)

	code, response := postCommand(t, env.receiver, env.sender.engine.Client().MyAccountID(), signed)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, entities.ResponseStatusFailure, response.Status)
	assert.Nil(t, response.CID)
	require.Len(t, response.Error, 1)
	assert.Equal(t, entities.ErrorTypeCommand, response.Error[0].Type)

	assert.Empty(t, records(t, env.receiver))
}

func TestReplayedRequestIsAcknowledgedWithoutReprocessing(t *testing.T) {
	env := setupEnv(t)
	env.pay(t)
	require.Equal(t, 1, env.receiver.engine.PendingTasks())

	receiverRecords := records(t, env.receiver)
	require.Len(t, receiverRecords, 1)
	record := receiverRecords[0]
	command, err := record.Command()
	require.NoError(t, err)

	request := &entities.CommandRequest{
		ObjectType:  entities.ObjectTypeCommandRequest,
		CID:         record.CID,
		CommandType: entities.CommandTypePayment,
		Command:     command,
	}
	payload, err := entities.ToJSON(request)
	require.NoError(t, err)
	signed, err := jws.Serialize(payload, env.sender.parent.ComplianceKey)
	require.NoError(t, err)

	code, response := postCommand(t, env.receiver, env.sender.engine.Client().MyAccountID(), signed)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, entities.ResponseStatusSuccess, response.Status)
	require.NotNil(t, response.CID)
	assert.Equal(t, record.CID, *response.CID)

	// no second follow-up was queued
	assert.Equal(t, 1, env.receiver.engine.PendingTasks())
}
