/**
 * @description
 * This file defines the core domain models for the settlement watcher.
 * These structs represent the entities persisted by the web application's
 * order flow and consumed by this service while reconciling on-chain
 * transfer events.
 *
 * @notes
 * - Order amounts are stored as `int64` whole DLYCOP tokens. On-chain values
 *   arrive as 18-decimal base units and are truncated to whole tokens before
 *   any comparison against an order.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// Order statuses. An order transitions pending -> completed or
// pending -> rejected exactly once; it is never created by this service.
const (
	OrderStatusPending   = "pending"
	OrderStatusCompleted = "completed"
	OrderStatusRejected  = "rejected"
)

// Hash statuses recorded alongside the order transition.
const (
	HashStatusConfirmed = "confirmed"
	HashStatusRejected  = "rejected"
)

// Order represents a pending purchase order awaiting an on-chain transfer to
// its temporary deposit address. This struct maps directly to the `orders`
// table owned by the web application.
type Order struct {
	ID          uuid.UUID `json:"id"`
	TempAddress string    `json:"temp_address"`
	AmountIn    int64     `json:"amount_in"` // whole DLYCOP tokens
	Status      string    `json:"status"`
	HashStatus  *string   `json:"hash_status,omitempty"`
	TransferID  *string   `json:"transfer_id,omitempty"`
	Hash        *string   `json:"hash,omitempty"`
	Ref         string    `json:"ref"`
	UserID      uuid.UUID `json:"user_id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TempWallet is the disposable funding wallet created for a single order.
// Its private key is the only secret the permit signer needs; the wallet is
// conceptually spent once per confirmed order.
type TempWallet struct {
	Address    string `json:"address"`
	PrivateKey string `json:"pkey"`
}

// Connection records a live websocket session for a user, used to locate a
// push target when a notification is created.
type Connection struct {
	SocketID string    `json:"socket_id"`
	UserID   uuid.UUID `json:"user_id"`
}
