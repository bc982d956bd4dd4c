package usecases_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vasp-link.backend/internal/domain/entities"
	domainrepos "vasp-link.backend/internal/domain/repositories"
	"vasp-link.backend/internal/infrastructure/blockchain"
	infrarepos "vasp-link.backend/internal/infrastructure/repositories"
	"vasp-link.backend/internal/interfaces/http/handlers"
	"vasp-link.backend/internal/usecases"
	"vasp-link.backend/pkg/logger"
)

const (
	testHRP    = "tvl"
	amount     = uint64(1_000_000_000)
	currency   = blockchain.DefaultCurrency
	senderName = "foo"
	payeeName  = "bar"
)

func TestMain(m *testing.M) {
	logger.Init("development")
	gin.SetMode(gin.TestMode)
	m.Run()
}

// flakyRepo wraps the in-memory store so tests can simulate storage
// outages, which surface to the counterparty as 500 responses.
type flakyRepo struct {
	*infrarepos.OffchainRecordRepository
	mu       sync.Mutex
	failSave bool
}

func (r *flakyRepo) Save(ctx context.Context, record *domainrepos.OffchainRecord) error {
	r.mu.Lock()
	fail := r.failSave
	r.mu.Unlock()
	if fail {
		return errors.New("storage unavailable")
	}
	return r.OffchainRecordRepository.Save(ctx, record)
}

func (r *flakyRepo) setFailSave(fail bool) {
	r.mu.Lock()
	r.failSave = fail
	r.mu.Unlock()
}

// testWallet is one VASP: a wallet plus its engine, record store, and a
// running off-chain HTTP endpoint registered on the shared ledger.
type testWallet struct {
	*usecases.WalletUsecase

	engine *usecases.OffchainEngine
	repo   *flakyRepo
	parent *blockchain.LocalAccount
	url    string
}

func launchWallet(t *testing.T, name string, ledger *blockchain.Ledger, chainURL string) *testWallet {
	t.Helper()

	// the endpoint URL must exist before the parent account publishing it
	var handler http.Handler
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handler.ServeHTTP(w, r)
	}))
	t.Cleanup(ts.Close)

	parent, err := ledger.GenVASPAccount(ts.URL)
	require.NoError(t, err)
	child, err := ledger.GenChildVASP(parent)
	require.NoError(t, err)

	chainClient, err := blockchain.Dial(chainURL)
	require.NoError(t, err)
	t.Cleanup(chainClient.Close)

	client, err := usecases.NewOffchainClient(parent.Address, chainClient, testHRP)
	require.NoError(t, err)

	repo := &flakyRepo{OffchainRecordRepository: infrarepos.NewOffchainRecordRepository()}
	engine := usecases.NewOffchainEngine(client, repo, parent.ComplianceKey)
	wallet := usecases.NewWalletUsecase(name, parent, testHRP, chainClient, engine)
	wallet.AddChildVASP(child)
	engine.SetDispatcher(wallet)

	r := gin.New()
	commandHandler := handlers.NewCommandHandler(engine)
	r.POST("/v1/command", commandHandler.HandleCommand)
	handler = r

	return &testWallet{WalletUsecase: wallet, engine: engine, repo: repo, parent: parent, url: ts.URL}
}

type testEnv struct {
	ledger   *blockchain.Ledger
	sender   *testWallet
	receiver *testWallet

	senderBalance   uint64
	receiverBalance uint64
}

func setupEnv(t *testing.T) *testEnv {
	t.Helper()
	ledger := blockchain.NewLedger()
	ledgerHandler, err := ledger.Handler()
	require.NoError(t, err)
	chainTS := httptest.NewServer(ledgerHandler)
	t.Cleanup(chainTS.Close)

	sender := launchWallet(t, "sender's wallet", ledger, chainTS.URL)
	receiver := launchWallet(t, "receiver's wallet", ledger, chainTS.URL)

	for _, name := range []string{"foo", "user-x", "hello"} {
		sender.AddUser(name)
	}
	for _, name := range []string{"bar", "user-y", "world"} {
		receiver.AddUser(name)
	}

	env := &testEnv{ledger: ledger, sender: sender, receiver: receiver}
	env.senderBalance = env.balance(t, sender)
	env.receiverBalance = env.balance(t, receiver)
	return env
}

func (env *testEnv) balance(t *testing.T, w *testWallet) uint64 {
	t.Helper()
	balance, err := w.VASPBalance(context.Background(), currency)
	require.NoError(t, err)
	return balance
}

// pay starts a payment of the standard amount from the sender's user to the
// receiver's user and returns the reference id.
func (env *testEnv) pay(t *testing.T) string {
	t.Helper()
	intentID, err := env.receiver.GenIntentID(payeeName, amount, currency)
	require.NoError(t, err)
	refID, err := env.sender.Pay(context.Background(), senderName, intentID)
	require.NoError(t, err)
	return refID
}

func runOnce(t *testing.T, w *testWallet) *usecases.TaskResult {
	t.Helper()
	result, ran, err := w.engine.RunOnceBackground(context.Background())
	require.NoError(t, err)
	if !ran {
		return nil
	}
	return result
}

func assertNoTask(t *testing.T, w *testWallet) {
	t.Helper()
	assert.Nil(t, runOnce(t, w))
}

func assertTask(t *testing.T, w *testWallet, expected usecases.TaskResult) {
	t.Helper()
	got := runOnce(t, w)
	require.NotNil(t, got)
	assert.Equal(t, expected, *got)
}

func records(t *testing.T, w *testWallet) []*domainrepos.OffchainRecord {
	t.Helper()
	all, err := w.engine.Records().List(context.Background())
	require.NoError(t, err)
	return all
}

// assertFinalStatus checks both wallets converged on the same final command
// version, the expected actor statuses, and the expected balance movement.
func (env *testEnv) assertFinalStatus(t *testing.T, senderStatus, receiverStatus entities.Status, balanceChange uint64) {
	t.Helper()

	senderRecords := records(t, env.sender)
	receiverRecords := records(t, env.receiver)
	require.Len(t, senderRecords, 1)
	require.Len(t, receiverRecords, 1)

	senderRecord, receiverRecord := senderRecords[0], receiverRecords[0]
	assert.Equal(t, senderRecord.ReferenceID, receiverRecord.ReferenceID)
	assert.Equal(t, senderRecord.CID, receiverRecord.CID)
	assert.Equal(t, senderRecord.CmdJSON, receiverRecord.CmdJSON)

	payment, err := senderRecord.Payment()
	require.NoError(t, err)
	assert.Equal(t, senderStatus, payment.Sender.Status.Status)
	assert.Equal(t, receiverStatus, payment.Receiver.Status.Status)

	assert.Equal(t, env.senderBalance-balanceChange, env.balance(t, env.sender))
	assert.Equal(t, env.receiverBalance+balanceChange, env.balance(t, env.receiver))

	// nothing left
	assertNoTask(t, env.sender)
	assertNoTask(t, env.receiver)
}

func TestTravelRuleDataExchangeHappyPath(t *testing.T) {
	env := setupEnv(t)
	env.pay(t)

	assertNoTask(t, env.sender)
	assertTask(t, env.receiver, usecases.TaskResult{Action: "evaluate_kyc_data", Result: usecases.ActionResultPass})
	assertTask(t, env.sender, usecases.TaskResult{Action: "evaluate_kyc_data", Result: usecases.ActionResultPass})
	assertNoTask(t, env.receiver)
	assertTask(t, env.sender, usecases.TaskResult{Action: "submit_transaction", Result: usecases.ActionResultTxnExecuted})
	assertNoTask(t, env.receiver)

	env.assertFinalStatus(t, entities.StatusReadyForSettlement, entities.StatusReadyForSettlement, amount)
}

func TestReceiverRejectsSenderKycData(t *testing.T) {
	env := setupEnv(t)
	env.receiver.EvaluateKycDataResult["foo"] = usecases.ActionResultReject

	env.pay(t)

	assertNoTask(t, env.sender)
	assertTask(t, env.receiver, usecases.TaskResult{Action: "evaluate_kyc_data", Result: usecases.ActionResultReject})

	env.assertFinalStatus(t, entities.StatusNeedsKycData, entities.StatusAbort, 0)
}

func TestReceiverSoftMatchThenReject(t *testing.T) {
	env := setupEnv(t)
	env.receiver.EvaluateKycDataResult["foo"] = usecases.ActionResultSoftMatch
	env.receiver.ManualReviewResult["foo"] = usecases.ActionResultReject

	env.pay(t)

	assertNoTask(t, env.sender)
	assertTask(t, env.receiver, usecases.TaskResult{Action: "evaluate_kyc_data", Result: usecases.ActionResultSoftMatch})
	assertTask(t, env.sender, usecases.TaskResult{Action: "clear_soft_match", Result: usecases.ActionResultSentAdditionalKycData})
	assertTask(t, env.receiver, usecases.TaskResult{Action: "review_kyc_data", Result: usecases.ActionResultReject})

	env.assertFinalStatus(t, entities.StatusNeedsKycData, entities.StatusAbort, 0)
}

func TestReceiverSoftMatchThenPass(t *testing.T) {
	env := setupEnv(t)
	env.receiver.EvaluateKycDataResult["foo"] = usecases.ActionResultSoftMatch
	env.receiver.ManualReviewResult["foo"] = usecases.ActionResultPass

	env.pay(t)

	assertNoTask(t, env.sender)
	assertTask(t, env.receiver, usecases.TaskResult{Action: "evaluate_kyc_data", Result: usecases.ActionResultSoftMatch})
	assertTask(t, env.sender, usecases.TaskResult{Action: "clear_soft_match", Result: usecases.ActionResultSentAdditionalKycData})
	assertTask(t, env.receiver, usecases.TaskResult{Action: "review_kyc_data", Result: usecases.ActionResultPass})
	assertTask(t, env.sender, usecases.TaskResult{Action: "evaluate_kyc_data", Result: usecases.ActionResultPass})
	assertNoTask(t, env.receiver)

	assertTask(t, env.sender, usecases.TaskResult{Action: "submit_transaction", Result: usecases.ActionResultTxnExecuted})
	assertNoTask(t, env.receiver)

	env.assertFinalStatus(t, entities.StatusReadyForSettlement, entities.StatusReadyForSettlement, amount)
}

func TestSenderRejectsReceiverKycData(t *testing.T) {
	env := setupEnv(t)
	env.sender.EvaluateKycDataResult["bar"] = usecases.ActionResultReject

	env.pay(t)

	assertNoTask(t, env.sender)
	assertTask(t, env.receiver, usecases.TaskResult{Action: "evaluate_kyc_data", Result: usecases.ActionResultPass})
	assertTask(t, env.sender, usecases.TaskResult{Action: "evaluate_kyc_data", Result: usecases.ActionResultReject})
	assertNoTask(t, env.receiver)

	env.assertFinalStatus(t, entities.StatusAbort, entities.StatusReadyForSettlement, 0)
}

func TestSenderSoftMatchThenReject(t *testing.T) {
	env := setupEnv(t)
	env.sender.EvaluateKycDataResult["bar"] = usecases.ActionResultSoftMatch
	env.sender.ManualReviewResult["bar"] = usecases.ActionResultReject

	env.pay(t)

	assertNoTask(t, env.sender)
	assertTask(t, env.receiver, usecases.TaskResult{Action: "evaluate_kyc_data", Result: usecases.ActionResultPass})
	assertTask(t, env.sender, usecases.TaskResult{Action: "evaluate_kyc_data", Result: usecases.ActionResultSoftMatch})
	assertTask(t, env.receiver, usecases.TaskResult{Action: "clear_soft_match", Result: usecases.ActionResultSentAdditionalKycData})
	assertTask(t, env.sender, usecases.TaskResult{Action: "review_kyc_data", Result: usecases.ActionResultReject})
	assertNoTask(t, env.receiver)

	env.assertFinalStatus(t, entities.StatusAbort, entities.StatusReadyForSettlement, 0)
}

func TestSenderSoftMatchThenPass(t *testing.T) {
	env := setupEnv(t)
	env.sender.EvaluateKycDataResult["bar"] = usecases.ActionResultSoftMatch
	env.sender.ManualReviewResult["bar"] = usecases.ActionResultPass

	env.pay(t)

	assertNoTask(t, env.sender)
	assertTask(t, env.receiver, usecases.TaskResult{Action: "evaluate_kyc_data", Result: usecases.ActionResultPass})
	assertTask(t, env.sender, usecases.TaskResult{Action: "evaluate_kyc_data", Result: usecases.ActionResultSoftMatch})
	assertTask(t, env.receiver, usecases.TaskResult{Action: "clear_soft_match", Result: usecases.ActionResultSentAdditionalKycData})
	assertTask(t, env.sender, usecases.TaskResult{Action: "review_kyc_data", Result: usecases.ActionResultPass})
	assertNoTask(t, env.receiver)
	assertTask(t, env.sender, usecases.TaskResult{Action: "submit_transaction", Result: usecases.ActionResultTxnExecuted})
	assertNoTask(t, env.receiver)

	env.assertFinalStatus(t, entities.StatusReadyForSettlement, entities.StatusReadyForSettlement, amount)
}

func TestBothSidesSoftMatchSenderRejected(t *testing.T) {
	env := setupEnv(t)
	env.receiver.EvaluateKycDataResult["foo"] = usecases.ActionResultSoftMatch
	env.receiver.ManualReviewResult["foo"] = usecases.ActionResultPass
	env.sender.EvaluateKycDataResult["bar"] = usecases.ActionResultSoftMatch
	env.sender.ManualReviewResult["bar"] = usecases.ActionResultReject

	env.pay(t)

	assertNoTask(t, env.sender)
	assertTask(t, env.receiver, usecases.TaskResult{Action: "evaluate_kyc_data", Result: usecases.ActionResultSoftMatch})
	assertTask(t, env.sender, usecases.TaskResult{Action: "clear_soft_match", Result: usecases.ActionResultSentAdditionalKycData})
	assertTask(t, env.receiver, usecases.TaskResult{Action: "review_kyc_data", Result: usecases.ActionResultPass})

	assertTask(t, env.sender, usecases.TaskResult{Action: "evaluate_kyc_data", Result: usecases.ActionResultSoftMatch})
	assertTask(t, env.receiver, usecases.TaskResult{Action: "clear_soft_match", Result: usecases.ActionResultSentAdditionalKycData})
	assertTask(t, env.sender, usecases.TaskResult{Action: "review_kyc_data", Result: usecases.ActionResultReject})
	assertNoTask(t, env.receiver)

	env.assertFinalStatus(t, entities.StatusAbort, entities.StatusReadyForSettlement, 0)
}

func TestBothSidesSoftMatchBothPass(t *testing.T) {
	env := setupEnv(t)
	env.receiver.EvaluateKycDataResult["foo"] = usecases.ActionResultSoftMatch
	env.receiver.ManualReviewResult["foo"] = usecases.ActionResultPass
	env.sender.EvaluateKycDataResult["bar"] = usecases.ActionResultSoftMatch
	env.sender.ManualReviewResult["bar"] = usecases.ActionResultPass

	env.pay(t)

	assertNoTask(t, env.sender)
	assertTask(t, env.receiver, usecases.TaskResult{Action: "evaluate_kyc_data", Result: usecases.ActionResultSoftMatch})
	assertTask(t, env.sender, usecases.TaskResult{Action: "clear_soft_match", Result: usecases.ActionResultSentAdditionalKycData})
	assertTask(t, env.receiver, usecases.TaskResult{Action: "review_kyc_data", Result: usecases.ActionResultPass})

	assertTask(t, env.sender, usecases.TaskResult{Action: "evaluate_kyc_data", Result: usecases.ActionResultSoftMatch})
	assertTask(t, env.receiver, usecases.TaskResult{Action: "clear_soft_match", Result: usecases.ActionResultSentAdditionalKycData})
	assertTask(t, env.sender, usecases.TaskResult{Action: "review_kyc_data", Result: usecases.ActionResultPass})
	assertNoTask(t, env.receiver)

	assertTask(t, env.sender, usecases.TaskResult{Action: "submit_transaction", Result: usecases.ActionResultTxnExecuted})
	assertNoTask(t, env.receiver)

	env.assertFinalStatus(t, entities.StatusReadyForSettlement, entities.StatusReadyForSettlement, amount)
}
