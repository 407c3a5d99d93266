/**
 * @description
 * The transfer-event reconciler. For every DLYCOP transfer pushed by the
 * live-query feed it decides whether the event confirms, rejects, or is
 * irrelevant to a pending order, applies the matching order transition,
 * triggers the gasless settlement transfer, and fans out a user
 * notification.
 *
 * All collaborators are injected at construction; the reconciler holds no
 * ambient globals and is exercised in tests with fakes.
 *
 * @notes
 * - Signer failures are swallowed by policy: a failed on-chain settlement is
 *   logged with the order id but never blocks the order transition or the
 *   user notification. The only user-visible signal of a silent chain
 *   failure is the absence of a relayed transfer.
 * - Duplicate or racing events for one order are defused twice: the
 *   optional per-order lock short-circuits concurrent handlers, and the
 *   store's conditional pending-only update guarantees at most one
 *   settlement even without the lock.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/juliangm996/pluto-server-dlycop/internal/domain"
	"github.com/juliangm996/pluto-server-dlycop/internal/store"
	"github.com/juliangm996/pluto-server-dlycop/pkg/rabbitmq"
)

// handleTimeout bounds one event's chain and database round-trips so a hung
// RPC endpoint cannot stall a handler goroutine forever.
const handleTimeout = 60 * time.Second

// Signer relays a gasless token transfer from the temporary wallet holding
// privateKeyHex. Implemented by chain.PermitSigner.
type Signer interface {
	SignAndRelay(ctx context.Context, privateKeyHex string, amount int64, recipient common.Address) error
}

// Notifier pushes a persisted notification to a live websocket session.
// Delivery is best-effort; an unknown socket id is a no-op.
type Notifier interface {
	Emit(socketID string, notification *domain.Notification)
}

// OrderLocker serializes settlement attempts for a single order across
// handler goroutines (and across replicas when backed by Redis).
type OrderLocker interface {
	AcquireOrderLock(ctx context.Context, orderID uuid.UUID) (bool, error)
	ReleaseOrderLock(ctx context.Context, orderID uuid.UUID)
}

// Reconciler consumes transfer events and settles pending orders.
type Reconciler struct {
	repo           store.Repository
	signer         Signer
	notifier       Notifier
	locker         OrderLocker        // optional
	publisher      rabbitmq.Publisher // optional
	eventsExchange string
	merchantWallet common.Address
}

// NewReconciler wires the reconciler with its collaborators. locker and
// publisher may be nil; the reconciler degrades to the store's conditional
// update and skips event publishing respectively.
func NewReconciler(repo store.Repository, signer Signer, notifier Notifier, locker OrderLocker, publisher rabbitmq.Publisher, eventsExchange string, merchantWallet common.Address) *Reconciler {
	return &Reconciler{
		repo:           repo,
		signer:         signer,
		notifier:       notifier,
		locker:         locker,
		publisher:      publisher,
		eventsExchange: eventsExchange,
		merchantWallet: merchantWallet,
	}
}

// RunFeed drains the feed channel until it closes or ctx is cancelled. Each
// event is handled on its own goroutine so a slow settlement never blocks
// events for other orders.
func (r *Reconciler) RunFeed(ctx context.Context, events <-chan domain.TransferEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			go func(ev domain.TransferEvent) {
				handleCtx, cancel := context.WithTimeout(context.Background(), handleTimeout)
				defer cancel()
				if err := r.HandleTransferEvent(handleCtx, ev); err != nil {
					log.Printf("level=error component=reconciler msg=\"event handling failed\" tx=%s err=%v", ev.TransactionHash, err)
				}
			}(ev)
		}
	}
}

// HandleTransferEvent reconciles one transfer event against the order book.
// Per qualifying event it performs at most one order update, one signer
// invocation, one notification and one session push.
func (r *Reconciler) HandleTransferEvent(ctx context.Context, ev domain.TransferEvent) error {
	order, err := r.repo.FindPendingOrderByTempAddress(ctx, ev.To)
	if err != nil {
		if errors.Is(err, store.ErrOrderNotFound) {
			return nil
		}
		return fmt.Errorf("lookup order: %w", err)
	}

	if order.Status != domain.OrderStatusPending || !ev.Confirmed {
		return nil
	}

	valueReceived, ok := ev.WholeTokens()
	if !ok {
		return fmt.Errorf("malformed transfer value %q for tx %s", ev.Value, ev.TransactionHash)
	}

	if r.locker != nil {
		acquired, lockErr := r.locker.AcquireOrderLock(ctx, order.ID)
		if lockErr != nil {
			// Lock backend trouble is not fatal: the conditional update below
			// still guarantees a single settlement.
			log.Printf("level=warn component=reconciler msg=\"order lock unavailable; relying on conditional update\" order_id=%s err=%v", order.ID, lockErr)
		} else if !acquired {
			log.Printf("level=info component=reconciler msg=\"order locked by concurrent handler; skipping\" order_id=%s tx=%s", order.ID, ev.TransactionHash)
			return nil
		} else {
			defer r.locker.ReleaseOrderLock(ctx, order.ID)
		}
	}

	if valueReceived == order.AmountIn {
		return r.confirmOrder(ctx, order, ev, valueReceived)
	}
	return r.rejectOrder(ctx, order, ev, valueReceived)
}

func (r *Reconciler) confirmOrder(ctx context.Context, order *domain.Order, ev domain.TransferEvent, valueReceived int64) error {
	err := r.repo.SettleOrder(ctx, order.ID, store.SettleOrderParams{
		Status:     domain.OrderStatusCompleted,
		HashStatus: domain.HashStatusConfirmed,
		TransferID: ev.ObjectID,
		Hash:       ev.TransactionHash,
	})
	if err != nil {
		if errors.Is(err, store.ErrOrderNotPending) {
			log.Printf("level=info component=reconciler msg=\"duplicate confirmation ignored\" order_id=%s tx=%s", order.ID, ev.TransactionHash)
			return nil
		}
		return fmt.Errorf("settle order %s: %w", order.ID, err)
	}

	r.relaySettlement(ctx, order, valueReceived)

	return r.notifyOutcome(ctx, order, ev, valueReceived, domain.NotificationStatusConfirmed)
}

func (r *Reconciler) rejectOrder(ctx context.Context, order *domain.Order, ev domain.TransferEvent, valueReceived int64) error {
	err := r.repo.SettleOrder(ctx, order.ID, store.SettleOrderParams{
		Status:     domain.OrderStatusRejected,
		HashStatus: domain.HashStatusRejected,
		TransferID: ev.ObjectID,
		Hash:       ev.TransactionHash,
	})
	if err != nil {
		if errors.Is(err, store.ErrOrderNotPending) {
			log.Printf("level=info component=reconciler msg=\"duplicate rejection ignored\" order_id=%s tx=%s", order.ID, ev.TransactionHash)
			return nil
		}
		return fmt.Errorf("settle order %s: %w", order.ID, err)
	}

	log.Printf("level=info component=reconciler msg=\"order rejected on amount mismatch\" order_id=%s expected=%d received=%d", order.ID, order.AmountIn, valueReceived)

	return r.notifyOutcome(ctx, order, ev, valueReceived, domain.NotificationStatusRejected)
}

// relaySettlement forwards the received tokens from the order's temporary
// wallet to the merchant settlement wallet. Failures here are logged and
// swallowed: order completion is decoupled from on-chain settlement by
// policy.
func (r *Reconciler) relaySettlement(ctx context.Context, order *domain.Order, valueReceived int64) {
	wallet, err := r.repo.FindTempWalletByAddress(ctx, order.TempAddress)
	if err != nil {
		if errors.Is(err, store.ErrWalletNotFound) {
			log.Printf("level=warn component=reconciler msg=\"no temporary wallet for order; settlement transfer skipped\" order_id=%s temp_address=%s", order.ID, order.TempAddress)
			return
		}
		log.Printf("level=warn component=reconciler msg=\"wallet lookup failed; settlement transfer skipped\" order_id=%s err=%v", order.ID, err)
		return
	}

	if err := r.signer.SignAndRelay(ctx, wallet.PrivateKey, valueReceived, r.merchantWallet); err != nil {
		log.Printf("level=warn component=reconciler msg=\"settlement transfer failed; order remains completed\" order_id=%s err=%v", order.ID, err)
	}
}

func (r *Reconciler) notifyOutcome(ctx context.Context, order *domain.Order, ev domain.TransferEvent, valueReceived int64, status string) error {
	notification := &domain.Notification{
		UserID: order.UserID,
		Payload: domain.NotificationPayload{
			Dest:        order.TempAddress,
			Source:      ev.From,
			Message:     "",
			Metadata:    map[string]string{},
			Currency:    "DLYCOP",
			Amount:      valueReceived,
			CreatedAt:   order.CreatedAt.UnixMilli(),
			ConfirmedAt: time.Now().UnixMilli(),
			OrderRef:    order.Ref,
			Status:      status,
		},
	}

	entity, err := r.repo.CreateNotification(ctx, notification)
	if err != nil {
		return fmt.Errorf("create notification for order %s: %w", order.ID, err)
	}

	conn, err := r.repo.FindConnectionByUserID(ctx, order.UserID)
	switch {
	case err == nil && conn.SocketID != "":
		r.notifier.Emit(conn.SocketID, entity)
	case err != nil && !errors.Is(err, store.ErrConnectionNotFound):
		log.Printf("level=warn component=reconciler msg=\"connection lookup failed; push skipped\" user_id=%s err=%v", order.UserID, err)
	}

	r.publishSettled(ctx, order, ev, valueReceived, status)
	return nil
}

func (r *Reconciler) publishSettled(ctx context.Context, order *domain.Order, ev domain.TransferEvent, valueReceived int64, status string) {
	if r.publisher == nil {
		return
	}

	routingKey := "order.completed"
	orderStatus := domain.OrderStatusCompleted
	if status == domain.NotificationStatusRejected {
		routingKey = "order.rejected"
		orderStatus = domain.OrderStatusRejected
	}

	event := domain.OrderSettledEvent{
		OrderID:    order.ID,
		Ref:        order.Ref,
		UserID:     order.UserID,
		Status:     orderStatus,
		Amount:     valueReceived,
		TxHash:     ev.TransactionHash,
		OccurredAt: time.Now().UTC(),
	}
	if err := r.publisher.Publish(ctx, r.eventsExchange, routingKey, event); err != nil {
		log.Printf("level=warn component=reconciler msg=\"settlement event publish failed\" order_id=%s err=%v", order.ID, err)
	}
}
