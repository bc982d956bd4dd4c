package usecases

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"vasp-link.backend/internal/domain/entities"
	"vasp-link.backend/internal/domain/protocol"
	"vasp-link.backend/internal/domain/repositories"
	"vasp-link.backend/internal/infrastructure/blockchain"
	"vasp-link.backend/pkg/addr"
	"vasp-link.backend/pkg/logger"
)

// User is a custodial wallet customer. Each payment allocates the user a
// fresh subaddress so counterparties never learn a stable on-chain link.
type User struct {
	Name         string
	Subaddresses [][]byte
}

// KycData returns the user's travel rule KYC payload.
func (u *User) KycData() *entities.KycData {
	kyc := entities.NewKycData(entities.KycDataTypeIndividual)
	given := u.Name
	surname := "surname-" + u.Name
	city := "San Francisco"
	kyc.GivenName = &given
	kyc.Surname = &surname
	kyc.Address = &entities.Address{City: &city}
	return kyc
}

// AdditionalKycData is the extra payload sent to clear a soft match.
func (u *User) AdditionalKycData() string {
	return u.Name + "'s secret"
}

// WalletUsecase is a custodial wallet built on the off-chain engine. It
// owns the users, decides KYC evaluation outcomes, and executes the business
// actions the engine queues.
//
// EvaluateKycDataResult and ManualReviewResult override the per-user
// outcome, keyed by the counterparty KYC given name; absent entries pass.
type WalletUsecase struct {
	Name string

	parentVASP *blockchain.LocalAccount
	childVASPs []*blockchain.LocalAccount
	hrp        string
	chain      ChainClient
	engine     *OffchainEngine

	EvaluateKycDataResult map[string]ActionResult
	ManualReviewResult    map[string]ActionResult

	mu    sync.Mutex
	users map[string]*User
}

// NewWalletUsecase creates a wallet for the given parent VASP account.
func NewWalletUsecase(name string, parentVASP *blockchain.LocalAccount, hrp string, chain ChainClient, engine *OffchainEngine) *WalletUsecase {
	return &WalletUsecase{
		Name:                  name,
		parentVASP:            parentVASP,
		hrp:                   hrp,
		chain:                 chain,
		engine:                engine,
		EvaluateKycDataResult: map[string]ActionResult{},
		ManualReviewResult:    map[string]ActionResult{},
		users:                 map[string]*User{},
	}
}

// AddChildVASP registers a child account used as on-chain source of user
// subaddresses.
func (w *WalletUsecase) AddChildVASP(child *blockchain.LocalAccount) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.childVASPs = append(w.childVASPs, child)
}

// AddUser registers a wallet customer.
func (w *WalletUsecase) AddUser(name string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.users[name] = &User{Name: name}
}

// Pay starts a payment from a user account to a counterparty intent,
// returning the payment reference id.
func (w *WalletUsecase) Pay(ctx context.Context, userName, intentID string) (string, error) {
	intent, err := addr.DecodeIntent(intentID, w.hrp)
	if err != nil {
		return "", err
	}
	user, err := w.findUser(userName)
	if err != nil {
		return "", err
	}
	accountID, err := w.genUserAccountID(user)
	if err != nil {
		return "", err
	}
	request := entities.InitPaymentRequest(accountID, user.KycData(), intent.AccountID, intent.Amount, intent.Currency)
	if err := w.engine.Initiate(ctx, request); err != nil {
		return "", err
	}
	return request.Command.Payment.ReferenceID, nil
}

// GenIntentID allocates a fresh receiving account id for a user and renders
// the payment intent URI.
func (w *WalletUsecase) GenIntentID(userName string, amount uint64, currency string) (string, error) {
	user, err := w.findUser(userName)
	if err != nil {
		return "", err
	}
	accountID, err := w.genUserAccountID(user)
	if err != nil {
		return "", err
	}
	return addr.EncodeIntent(accountID, currency, amount), nil
}

// VASPBalance sums the balances of the parent and all child accounts.
func (w *WalletUsecase) VASPBalance(ctx context.Context, currency string) (uint64, error) {
	w.mu.Lock()
	accounts := append([]*blockchain.LocalAccount{w.parentVASP}, w.childVASPs...)
	w.mu.Unlock()

	total := uint64(0)
	for _, account := range accounts {
		onchain, err := w.chain.GetAccount(ctx, account.Address)
		if err != nil {
			return 0, err
		}
		total += onchain.Balances[currency]
	}
	return total, nil
}

// Execute runs one queued business action against the stored record.
func (w *WalletUsecase) Execute(ctx context.Context, action protocol.Action, record *repositories.OffchainRecord) (ActionResult, error) {
	logger.Debug(ctx, "executing business action",
		zap.String("wallet", w.Name),
		zap.String("action", string(action)),
		zap.String("reference_id", record.ReferenceID))
	switch action {
	case protocol.ActionEvaluateKycData:
		return w.evaluateKycData(ctx, record)
	case protocol.ActionReviewKycData:
		return w.manualReview(ctx, record)
	case protocol.ActionClearSoftMatch:
		return w.sendAdditionalKycData(ctx, record)
	case protocol.ActionSubmitTxn:
		return w.submitTravelRuleTxn(ctx, record)
	}
	return "", fmt.Errorf("unknown action %q", action)
}

// evaluateKycData screens the counterparty KYC data. Soft matches request
// additional data; otherwise the result decides pass or reject.
func (w *WalletUsecase) evaluateKycData(ctx context.Context, record *repositories.OffchainRecord) (ActionResult, error) {
	kyc, err := record.OppositeKycData()
	if err != nil {
		return "", err
	}
	ret := w.lookupResult(w.EvaluateKycDataResult, kyc)
	if ret == ActionResultSoftMatch {
		if _, err := w.engine.UpdatePaymentRecord(ctx, record, protocol.PaymentChanges{
			Status: protocol.StatusPtr(entities.StatusSoftMatch),
		}); err != nil {
			return "", err
		}
		return ret, nil
	}
	return ret, w.kycDataResult(ctx, "evaluate kyc data", ret, record)
}

// manualReview resolves a soft match after reviewing the additional data.
func (w *WalletUsecase) manualReview(ctx context.Context, record *repositories.OffchainRecord) (ActionResult, error) {
	kyc, err := record.OppositeKycData()
	if err != nil {
		return "", err
	}
	ret := w.lookupResult(w.ManualReviewResult, kyc)
	return ret, w.kycDataResult(ctx, "review", ret, record)
}

func (w *WalletUsecase) lookupResult(results map[string]ActionResult, kyc *entities.KycData) ActionResult {
	if kyc == nil || kyc.GivenName == nil {
		return ActionResultPass
	}
	if ret, ok := results[*kyc.GivenName]; ok {
		return ret
	}
	return ActionResultPass
}

func (w *WalletUsecase) kycDataResult(ctx context.Context, action string, ret ActionResult, record *repositories.OffchainRecord) error {
	if ret != ActionResultPass {
		return w.abort(ctx, record, entities.AbortCodeRejectedKycData, fmt.Sprintf("%s: %s", action, ret))
	}
	if record.Role == protocol.RoleReceiver {
		return w.sendKycDataAndRecipientSignature(ctx, record)
	}
	_, err := w.engine.UpdatePaymentRecord(ctx, record, protocol.PaymentChanges{
		Status: protocol.StatusPtr(entities.StatusReadyForSettlement),
	})
	return err
}

// sendKycDataAndRecipientSignature attaches the receiving user's KYC data
// plus the compliance signature over the travel rule message.
func (w *WalletUsecase) sendKycDataAndRecipientSignature(ctx context.Context, record *repositories.OffchainRecord) error {
	payment, err := record.Payment()
	if err != nil {
		return err
	}
	senderAddress, _, err := addr.DecodeAccount(payment.Sender.Address, w.hrp)
	if err != nil {
		return err
	}
	_, subaddress, err := addr.DecodeAccount(payment.Receiver.Address, w.hrp)
	if err != nil {
		return err
	}
	user, err := w.findUserBySubaddress(subaddress)
	if err != nil {
		return err
	}
	_, sigMsg := blockchain.TravelRuleMetadata(payment.ReferenceID, senderAddress, payment.Action.Amount)
	signature := w.parentVASP.SignCompliance(sigMsg)

	_, err = w.engine.UpdatePaymentRecord(ctx, record, protocol.PaymentChanges{
		Status:             protocol.StatusPtr(entities.StatusReadyForSettlement),
		KycData:            user.KycData(),
		RecipientSignature: &signature,
	})
	return err
}

// sendAdditionalKycData clears a soft match raised by the counterparty.
func (w *WalletUsecase) sendAdditionalKycData(ctx context.Context, record *repositories.OffchainRecord) (ActionResult, error) {
	payment, err := record.Payment()
	if err != nil {
		return "", err
	}
	accountID := record.Role.PaymentActor(payment).Address
	_, subaddress, err := addr.DecodeAccount(accountID, w.hrp)
	if err != nil {
		return "", err
	}
	user, err := w.findUserBySubaddress(subaddress)
	if err != nil {
		return "", err
	}
	additional := user.AdditionalKycData()
	if _, err := w.engine.UpdatePaymentRecord(ctx, record, protocol.PaymentChanges{
		AdditionalKycData: &additional,
	}); err != nil {
		return "", err
	}
	return ActionResultSentAdditionalKycData, nil
}

// submitTravelRuleTxn settles a ready payment on chain with the travel rule
// metadata and the receiver's compliance signature attached.
func (w *WalletUsecase) submitTravelRuleTxn(ctx context.Context, record *repositories.OffchainRecord) (ActionResult, error) {
	payment, err := record.Payment()
	if err != nil {
		return "", err
	}
	senderAddress, _, err := addr.DecodeAccount(payment.Sender.Address, w.hrp)
	if err != nil {
		return "", err
	}
	receiverAddress, _, err := addr.DecodeAccount(payment.Receiver.Address, w.hrp)
	if err != nil {
		return "", err
	}
	if payment.RecipientSignature == nil {
		return "", fmt.Errorf("payment %s has no recipient signature", payment.ReferenceID)
	}
	child, err := w.findChildVASP(senderAddress)
	if err != nil {
		return "", err
	}

	metadata, _ := blockchain.TravelRuleMetadata(payment.ReferenceID, senderAddress, payment.Action.Amount)
	transfer := &blockchain.TransferRequest{
		Sender:            senderAddress.Hex(),
		Receiver:          receiverAddress.Hex(),
		Currency:          payment.Action.Currency,
		Amount:            payment.Action.Amount,
		Metadata:          hex.EncodeToString(metadata),
		MetadataSignature: *payment.RecipientSignature,
	}
	transfer.SenderSignature = hex.EncodeToString(ed25519.Sign(child.PrivateKey, transfer.SigningPayload()))

	if err := w.chain.SubmitTransfer(ctx, transfer); err != nil {
		return "", err
	}
	return ActionResultTxnExecuted, nil
}

func (w *WalletUsecase) abort(ctx context.Context, record *repositories.OffchainRecord, code, msg string) error {
	_, err := w.engine.UpdatePaymentRecord(ctx, record, protocol.PaymentChanges{
		Status:       protocol.StatusPtr(entities.StatusAbort),
		AbortCode:    &code,
		AbortMessage: &msg,
	})
	return err
}

func (w *WalletUsecase) findUser(name string) (*User, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	user, ok := w.users[name]
	if !ok {
		return nil, fmt.Errorf("unknown user %q", name)
	}
	return user, nil
}

func (w *WalletUsecase) findUserBySubaddress(subaddress []byte) (*User, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, user := range w.users {
		for _, sub := range user.Subaddresses {
			if bytes.Equal(sub, subaddress) {
				return user, nil
			}
		}
	}
	return nil, fmt.Errorf("could not find user by subaddress %x in %s", subaddress, w.Name)
}

// genUserAccountID allocates a fresh subaddress under an available child
// VASP account.
func (w *WalletUsecase) genUserAccountID(user *User) (string, error) {
	subaddress, err := addr.GenSubaddress()
	if err != nil {
		return "", err
	}
	w.mu.Lock()
	user.Subaddresses = append(user.Subaddresses, subaddress)
	if len(w.childVASPs) == 0 {
		w.mu.Unlock()
		return "", fmt.Errorf("wallet %s has no child VASP accounts", w.Name)
	}
	child := w.childVASPs[0]
	w.mu.Unlock()
	return addr.EncodeAccount(child.Address, subaddress, w.hrp)
}

func (w *WalletUsecase) findChildVASP(address addr.AccountAddress) (*blockchain.LocalAccount, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, child := range w.childVASPs {
		if child.Address == address {
			return child, nil
		}
	}
	return nil, fmt.Errorf("could not find child vasp by address %s", address.Hex())
}
