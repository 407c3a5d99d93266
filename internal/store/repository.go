/**
 * @description
 * This file defines the `Repository` interface, the contract for all data
 * access the settlement watcher needs against the web application's store:
 * pending orders, temporary wallets, notifications and live websocket
 * connections. The interface keeps the reconciliation logic decoupled from
 * PostgreSQL and testable with fakes.
 *
 * @dependencies
 * - context: Standard Go library.
 * - github.com/google/uuid: For order / user / notification ids.
 * - internal/domain: For the service's domain models.
 */

package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/juliangm996/pluto-server-dlycop/internal/domain"
)

// SettleOrderParams carries the fields written when an order leaves the
// pending state. Status and HashStatus always travel together:
// completed/confirmed on the confirm path, rejected/rejected otherwise.
type SettleOrderParams struct {
	Status     string
	HashStatus string
	TransferID string
	Hash       string
}

// Repository defines the set of methods for interacting with the database.
type Repository interface {
	// Order methods
	FindPendingOrderByTempAddress(ctx context.Context, toAddress string) (*domain.Order, error)
	// SettleOrder transitions an order out of `pending` atomically: the
	// update applies only while the row's status is still pending, so a
	// duplicate or racing event observes ErrOrderNotPending instead of
	// settling twice.
	SettleOrder(ctx context.Context, orderID uuid.UUID, params SettleOrderParams) error

	// Temporary wallet methods
	FindTempWalletByAddress(ctx context.Context, address string) (*domain.TempWallet, error)

	// Notification methods
	CreateNotification(ctx context.Context, notification *domain.Notification) (*domain.Notification, error)
	ListNotificationsByUserID(ctx context.Context, userID uuid.UUID, limit int) ([]domain.Notification, error)

	// Connection / session methods
	FindConnectionByUserID(ctx context.Context, userID uuid.UUID) (*domain.Connection, error)
	SaveConnection(ctx context.Context, conn domain.Connection) error
	DeleteConnection(ctx context.Context, socketID string) error
}
