package app

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/juliangm996/pluto-server-dlycop/internal/domain"
	"github.com/juliangm996/pluto-server-dlycop/internal/store"
)

var testMerchantWallet = common.HexToAddress("0x00000000000000000000000000000000000000AA")

type reconcilerRepoStub struct {
	store.Repository

	order  *domain.Order
	wallet *domain.TempWallet
	conn   *domain.Connection

	settleErr    error
	settleCalls  int
	settleParams store.SettleOrderParams

	walletLookups int
	notifications []domain.Notification
}

func (s *reconcilerRepoStub) FindPendingOrderByTempAddress(ctx context.Context, toAddress string) (*domain.Order, error) {
	if s.order == nil || !strings.Contains(strings.ToLower(toAddress), strings.ToLower(s.order.TempAddress)) {
		return nil, store.ErrOrderNotFound
	}
	return s.order, nil
}

func (s *reconcilerRepoStub) SettleOrder(ctx context.Context, orderID uuid.UUID, params store.SettleOrderParams) error {
	s.settleCalls++
	s.settleParams = params
	if s.settleErr != nil {
		return s.settleErr
	}
	s.order.Status = params.Status
	return nil
}

func (s *reconcilerRepoStub) FindTempWalletByAddress(ctx context.Context, address string) (*domain.TempWallet, error) {
	s.walletLookups++
	if s.wallet == nil {
		return nil, store.ErrWalletNotFound
	}
	return s.wallet, nil
}

func (s *reconcilerRepoStub) CreateNotification(ctx context.Context, notification *domain.Notification) (*domain.Notification, error) {
	notification.ID = uuid.New()
	s.notifications = append(s.notifications, *notification)
	return notification, nil
}

func (s *reconcilerRepoStub) FindConnectionByUserID(ctx context.Context, userID uuid.UUID) (*domain.Connection, error) {
	if s.conn == nil {
		return nil, store.ErrConnectionNotFound
	}
	return s.conn, nil
}

type signerStub struct {
	calls         int
	lastKey       string
	lastAmount    int64
	lastRecipient common.Address
	err           error
}

func (s *signerStub) SignAndRelay(ctx context.Context, privateKeyHex string, amount int64, recipient common.Address) error {
	s.calls++
	s.lastKey = privateKeyHex
	s.lastAmount = amount
	s.lastRecipient = recipient
	return s.err
}

type notifierStub struct {
	emits []string
}

func (n *notifierStub) Emit(socketID string, notification *domain.Notification) {
	n.emits = append(n.emits, socketID)
}

type lockerStub struct {
	allow    bool
	err      error
	acquired int
	released int
}

func (l *lockerStub) AcquireOrderLock(ctx context.Context, orderID uuid.UUID) (bool, error) {
	l.acquired++
	return l.allow, l.err
}

func (l *lockerStub) ReleaseOrderLock(ctx context.Context, orderID uuid.UUID) {
	l.released++
}

type publisherStub struct {
	routingKeys []string
}

func (p *publisherStub) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	p.routingKeys = append(p.routingKeys, routingKey)
	return nil
}

func (p *publisherStub) Close() {}

func pendingOrder() *domain.Order {
	return &domain.Order{
		ID:          uuid.New(),
		TempAddress: "0xaabbccddeeff00112233445566778899aabbccdd",
		AmountIn:    10000,
		Status:      domain.OrderStatusPending,
		Ref:         "ORD-1042",
		UserID:      uuid.New(),
		CreatedAt:   time.Now().Add(-5 * time.Minute),
	}
}

func confirmedEvent(order *domain.Order, value string) domain.TransferEvent {
	return domain.TransferEvent{
		From:            "0x1111111111111111111111111111111111111111",
		To:              order.TempAddress,
		Value:           value,
		Confirmed:       true,
		TransactionHash: "0xfeed",
		ObjectID:        "ev_42",
	}
}

func TestHandleTransferEvent_ConfirmsMatchingOrder(t *testing.T) {
	order := pendingOrder()
	repo := &reconcilerRepoStub{
		order:  order,
		wallet: &domain.TempWallet{Address: order.TempAddress, PrivateKey: "4c0883a69102937d6231471b5dbb6204fe51296170827936ea5cce4b76994b0f"},
		conn:   &domain.Connection{SocketID: "sock-1", UserID: order.UserID},
	}
	signer := &signerStub{}
	notifier := &notifierStub{}
	publisher := &publisherStub{}
	reconciler := NewReconciler(repo, signer, notifier, nil, publisher, "dlycop_events", testMerchantWallet)

	// 10000 tokens at 18 decimals.
	event := confirmedEvent(order, "10000000000000000000000")
	if err := reconciler.HandleTransferEvent(context.Background(), event); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}

	if repo.settleCalls != 1 {
		t.Fatalf("expected exactly one order update, got %d", repo.settleCalls)
	}
	if repo.settleParams.Status != domain.OrderStatusCompleted || repo.settleParams.HashStatus != domain.HashStatusConfirmed {
		t.Fatalf("expected completed/confirmed transition, got %s/%s", repo.settleParams.Status, repo.settleParams.HashStatus)
	}
	if repo.settleParams.TransferID != "ev_42" || repo.settleParams.Hash != "0xfeed" {
		t.Fatalf("expected event references on the order, got %+v", repo.settleParams)
	}
	if signer.calls != 1 {
		t.Fatalf("expected exactly one signer invocation, got %d", signer.calls)
	}
	if signer.lastAmount != 10000 {
		t.Fatalf("expected signer amount 10000, got %d", signer.lastAmount)
	}
	if signer.lastRecipient != testMerchantWallet {
		t.Fatalf("expected settlement to the merchant wallet, got %s", signer.lastRecipient.Hex())
	}
	if len(repo.notifications) != 1 {
		t.Fatalf("expected exactly one notification, got %d", len(repo.notifications))
	}
	payload := repo.notifications[0].Payload
	if payload.Status != domain.NotificationStatusConfirmed {
		t.Fatalf("expected CONFIRMED notification, got %s", payload.Status)
	}
	if payload.Amount != 10000 || payload.Currency != "DLYCOP" || payload.OrderRef != "ORD-1042" {
		t.Fatalf("unexpected notification payload: %+v", payload)
	}
	if len(notifier.emits) != 1 || notifier.emits[0] != "sock-1" {
		t.Fatalf("expected one push to sock-1, got %v", notifier.emits)
	}
	if len(publisher.routingKeys) != 1 || publisher.routingKeys[0] != "order.completed" {
		t.Fatalf("expected one order.completed publish, got %v", publisher.routingKeys)
	}
}

func TestHandleTransferEvent_RejectsAmountMismatch(t *testing.T) {
	order := pendingOrder()
	repo := &reconcilerRepoStub{
		order:  order,
		wallet: &domain.TempWallet{Address: order.TempAddress, PrivateKey: "unused"},
		conn:   &domain.Connection{SocketID: "sock-1", UserID: order.UserID},
	}
	signer := &signerStub{}
	notifier := &notifierStub{}
	publisher := &publisherStub{}
	reconciler := NewReconciler(repo, signer, notifier, nil, publisher, "dlycop_events", testMerchantWallet)

	// 9000 tokens against an order expecting 10000.
	event := confirmedEvent(order, "9000000000000000000000")
	if err := reconciler.HandleTransferEvent(context.Background(), event); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}

	if repo.settleCalls != 1 {
		t.Fatalf("expected exactly one order update, got %d", repo.settleCalls)
	}
	if repo.settleParams.Status != domain.OrderStatusRejected || repo.settleParams.HashStatus != domain.HashStatusRejected {
		t.Fatalf("expected rejected/rejected transition, got %s/%s", repo.settleParams.Status, repo.settleParams.HashStatus)
	}
	if signer.calls != 0 {
		t.Fatalf("expected no signer invocation on mismatch, got %d", signer.calls)
	}
	if len(repo.notifications) != 1 || repo.notifications[0].Payload.Status != domain.NotificationStatusRejected {
		t.Fatalf("expected one REJECTED notification, got %+v", repo.notifications)
	}
	if len(publisher.routingKeys) != 1 || publisher.routingKeys[0] != "order.rejected" {
		t.Fatalf("expected one order.rejected publish, got %v", publisher.routingKeys)
	}
}

func TestHandleTransferEvent_IgnoresUnconfirmedEvent(t *testing.T) {
	order := pendingOrder()
	repo := &reconcilerRepoStub{order: order}
	signer := &signerStub{}
	reconciler := NewReconciler(repo, signer, &notifierStub{}, nil, nil, "dlycop_events", testMerchantWallet)

	event := confirmedEvent(order, "10000000000000000000000")
	event.Confirmed = false
	if err := reconciler.HandleTransferEvent(context.Background(), event); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}

	if repo.settleCalls != 0 || signer.calls != 0 || len(repo.notifications) != 0 {
		t.Fatal("expected a pure no-op for an unconfirmed event")
	}
}

func TestHandleTransferEvent_IgnoresNonPendingOrder(t *testing.T) {
	order := pendingOrder()
	order.Status = domain.OrderStatusCompleted
	repo := &reconcilerRepoStub{order: order}
	signer := &signerStub{}
	reconciler := NewReconciler(repo, signer, &notifierStub{}, nil, nil, "dlycop_events", testMerchantWallet)

	if err := reconciler.HandleTransferEvent(context.Background(), confirmedEvent(order, "10000000000000000000000")); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}

	if repo.settleCalls != 0 || signer.calls != 0 || len(repo.notifications) != 0 {
		t.Fatal("expected a pure no-op for a settled order")
	}
}

func TestHandleTransferEvent_NoMatchingOrderIsNoOp(t *testing.T) {
	repo := &reconcilerRepoStub{}
	signer := &signerStub{}
	reconciler := NewReconciler(repo, signer, &notifierStub{}, nil, nil, "dlycop_events", testMerchantWallet)

	event := domain.TransferEvent{
		To:        "0x9999999999999999999999999999999999999999",
		Value:     "1000000000000000000",
		Confirmed: true,
	}
	if err := reconciler.HandleTransferEvent(context.Background(), event); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if repo.settleCalls != 0 || signer.calls != 0 {
		t.Fatal("expected no side effects without a matching order")
	}
}

func TestHandleTransferEvent_DuplicateDeliveryIsIdempotent(t *testing.T) {
	order := pendingOrder()
	repo := &reconcilerRepoStub{
		order:     order,
		wallet:    &domain.TempWallet{Address: order.TempAddress, PrivateKey: "unused"},
		settleErr: store.ErrOrderNotPending,
	}
	signer := &signerStub{}
	reconciler := NewReconciler(repo, signer, &notifierStub{}, nil, nil, "dlycop_events", testMerchantWallet)

	if err := reconciler.HandleTransferEvent(context.Background(), confirmedEvent(order, "10000000000000000000000")); err != nil {
		t.Fatalf("expected idempotent skip, got %v", err)
	}

	if signer.calls != 0 {
		t.Fatalf("expected no signer invocation when the transition loses the race, got %d", signer.calls)
	}
	if len(repo.notifications) != 0 {
		t.Fatalf("expected no duplicate notification, got %d", len(repo.notifications))
	}
}

func TestHandleTransferEvent_MissingWalletSkipsSignerButCompletes(t *testing.T) {
	order := pendingOrder()
	repo := &reconcilerRepoStub{order: order}
	signer := &signerStub{}
	reconciler := NewReconciler(repo, signer, &notifierStub{}, nil, nil, "dlycop_events", testMerchantWallet)

	if err := reconciler.HandleTransferEvent(context.Background(), confirmedEvent(order, "10000000000000000000000")); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}

	if repo.walletLookups != 1 {
		t.Fatalf("expected one wallet lookup, got %d", repo.walletLookups)
	}
	if signer.calls != 0 {
		t.Fatal("expected signer skip when the temporary wallet is missing")
	}
	if repo.settleParams.Status != domain.OrderStatusCompleted {
		t.Fatalf("expected order to still complete, got %s", repo.settleParams.Status)
	}
	if len(repo.notifications) != 1 || repo.notifications[0].Payload.Status != domain.NotificationStatusConfirmed {
		t.Fatal("expected the CONFIRMED notification despite the missing wallet")
	}
}

func TestHandleTransferEvent_SignerFailureDoesNotBlockNotification(t *testing.T) {
	order := pendingOrder()
	repo := &reconcilerRepoStub{
		order:  order,
		wallet: &domain.TempWallet{Address: order.TempAddress, PrivateKey: "unused"},
	}
	signer := &signerStub{err: errors.New("rpc unreachable")}
	reconciler := NewReconciler(repo, signer, &notifierStub{}, nil, nil, "dlycop_events", testMerchantWallet)

	if err := reconciler.HandleTransferEvent(context.Background(), confirmedEvent(order, "10000000000000000000000")); err != nil {
		t.Fatalf("expected signer failure to be swallowed, got %v", err)
	}

	if signer.calls != 1 {
		t.Fatalf("expected one signer attempt, got %d", signer.calls)
	}
	if repo.settleParams.Status != domain.OrderStatusCompleted {
		t.Fatalf("expected completed order despite signer failure, got %s", repo.settleParams.Status)
	}
	if len(repo.notifications) != 1 {
		t.Fatalf("expected the notification to be created, got %d", len(repo.notifications))
	}
}

func TestHandleTransferEvent_LockContentionSkips(t *testing.T) {
	order := pendingOrder()
	repo := &reconcilerRepoStub{order: order}
	signer := &signerStub{}
	locker := &lockerStub{allow: false}
	reconciler := NewReconciler(repo, signer, &notifierStub{}, locker, nil, "dlycop_events", testMerchantWallet)

	if err := reconciler.HandleTransferEvent(context.Background(), confirmedEvent(order, "10000000000000000000000")); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}

	if locker.acquired != 1 {
		t.Fatalf("expected one lock attempt, got %d", locker.acquired)
	}
	if repo.settleCalls != 0 || signer.calls != 0 || len(repo.notifications) != 0 {
		t.Fatal("expected no side effects while another handler holds the order")
	}
}

func TestHandleTransferEvent_LockBackendErrorDegradesToConditionalUpdate(t *testing.T) {
	order := pendingOrder()
	repo := &reconcilerRepoStub{
		order:  order,
		wallet: &domain.TempWallet{Address: order.TempAddress, PrivateKey: "unused"},
	}
	signer := &signerStub{}
	locker := &lockerStub{err: errors.New("redis down")}
	reconciler := NewReconciler(repo, signer, &notifierStub{}, locker, nil, "dlycop_events", testMerchantWallet)

	if err := reconciler.HandleTransferEvent(context.Background(), confirmedEvent(order, "10000000000000000000000")); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}

	if repo.settleCalls != 1 {
		t.Fatalf("expected settlement to proceed without the lock, got %d settle calls", repo.settleCalls)
	}
	if locker.released != 0 {
		t.Fatalf("expected no release for an unacquired lock, got %d", locker.released)
	}
}

func TestHandleTransferEvent_MalformedValueReturnsError(t *testing.T) {
	order := pendingOrder()
	repo := &reconcilerRepoStub{order: order}
	reconciler := NewReconciler(repo, &signerStub{}, &notifierStub{}, nil, nil, "dlycop_events", testMerchantWallet)

	event := confirmedEvent(order, "not-a-number")
	if err := reconciler.HandleTransferEvent(context.Background(), event); err == nil {
		t.Fatal("expected an error for a malformed transfer value")
	}
	if repo.settleCalls != 0 {
		t.Fatal("expected no order mutation for a malformed event")
	}
}

func TestHandleTransferEvent_NoLiveSessionStillNotifies(t *testing.T) {
	order := pendingOrder()
	repo := &reconcilerRepoStub{
		order:  order,
		wallet: &domain.TempWallet{Address: order.TempAddress, PrivateKey: "unused"},
	}
	notifier := &notifierStub{}
	reconciler := NewReconciler(repo, &signerStub{}, notifier, nil, nil, "dlycop_events", testMerchantWallet)

	if err := reconciler.HandleTransferEvent(context.Background(), confirmedEvent(order, "10000000000000000000000")); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}

	if len(repo.notifications) != 1 {
		t.Fatalf("expected the notification to persist, got %d", len(repo.notifications))
	}
	if len(notifier.emits) != 0 {
		t.Fatalf("expected no push without a live session, got %v", notifier.emits)
	}
}
