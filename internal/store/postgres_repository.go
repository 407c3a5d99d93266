/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository`
 * interface. It contains all the SQL needed to reconcile transfer events
 * against orders, resolve temporary wallets, persist notifications, and
 * track live websocket connections.
 *
 * @dependencies
 * - context, errors: Standard Go libraries.
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - internal/domain: Contains the domain models used for data transfer.
 */

package store

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/juliangm996/pluto-server-dlycop/internal/domain"
)

var (
	ErrOrderNotFound      = errors.New("order not found")
	ErrOrderNotPending    = errors.New("order is no longer pending")
	ErrWalletNotFound     = errors.New("temporary wallet not found")
	ErrConnectionNotFound = errors.New("connection not found")
)

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// FindPendingOrderByTempAddress finds the newest pending order whose
// temporary deposit address appears in the event's to-address. The
// contains-match (rather than strict equality) mirrors how the feed encodes
// addresses; both sides are compared lowercased.
func (r *PostgresRepository) FindPendingOrderByTempAddress(ctx context.Context, toAddress string) (*domain.Order, error) {
	query := `
		SELECT id, temp_address, amount_in, status, hash_status, transfer_id, hash, ref, user_id, created_at, updated_at
		FROM orders
		WHERE POSITION(LOWER(temp_address) IN LOWER($1)) > 0
		ORDER BY created_at DESC
		LIMIT 1`

	var order domain.Order
	err := r.db.QueryRow(ctx, query, strings.TrimSpace(toAddress)).Scan(
		&order.ID,
		&order.TempAddress,
		&order.AmountIn,
		&order.Status,
		&order.HashStatus,
		&order.TransferID,
		&order.Hash,
		&order.Ref,
		&order.UserID,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return &order, nil
}

// SettleOrder applies the pending -> {completed, rejected} transition. The
// WHERE clause makes the transition conditional on the row still being
// pending, so concurrent events for the same order settle it at most once.
func (r *PostgresRepository) SettleOrder(ctx context.Context, orderID uuid.UUID, params SettleOrderParams) error {
	query := `
		UPDATE orders
		SET status = $2, hash_status = $3, transfer_id = $4, hash = $5, updated_at = NOW()
		WHERE id = $1 AND status = 'pending'`

	tag, err := r.db.Exec(ctx, query, orderID, params.Status, params.HashStatus, params.TransferID, params.Hash)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrOrderNotPending
	}
	return nil
}

func (r *PostgresRepository) FindTempWalletByAddress(ctx context.Context, address string) (*domain.TempWallet, error) {
	var wallet domain.TempWallet
	err := r.db.QueryRow(ctx,
		`SELECT address, pkey FROM temporal_wallets WHERE LOWER(address) = LOWER($1)`,
		strings.TrimSpace(address),
	).Scan(&wallet.Address, &wallet.PrivateKey)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrWalletNotFound
		}
		return nil, err
	}
	return &wallet, nil
}

func (r *PostgresRepository) CreateNotification(ctx context.Context, notification *domain.Notification) (*domain.Notification, error) {
	if notification.ID == uuid.Nil {
		notification.ID = uuid.New()
	}

	payload, err := json.Marshal(notification.Payload)
	if err != nil {
		return nil, err
	}

	query := `
		INSERT INTO notifications (id, user_id, payload, created_at)
		VALUES ($1, $2, $3, NOW())
		RETURNING created_at`

	if err := r.db.QueryRow(ctx, query, notification.ID, notification.UserID, payload).Scan(&notification.CreatedAt); err != nil {
		return nil, err
	}
	return notification, nil
}

func (r *PostgresRepository) ListNotificationsByUserID(ctx context.Context, userID uuid.UUID, limit int) ([]domain.Notification, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.Query(ctx,
		`SELECT id, user_id, payload, created_at FROM notifications WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []domain.Notification
	for rows.Next() {
		var n domain.Notification
		var payload []byte
		if err := rows.Scan(&n.ID, &n.UserID, &payload, &n.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(payload, &n.Payload); err != nil {
			return nil, err
		}
		items = append(items, n)
	}
	return items, rows.Err()
}

// FindConnectionByUserID returns the most recent live session for a user.
func (r *PostgresRepository) FindConnectionByUserID(ctx context.Context, userID uuid.UUID) (*domain.Connection, error) {
	var conn domain.Connection
	err := r.db.QueryRow(ctx,
		`SELECT socket_id, user_id FROM connections WHERE user_id = $1 ORDER BY created_at DESC LIMIT 1`,
		userID,
	).Scan(&conn.SocketID, &conn.UserID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrConnectionNotFound
		}
		return nil, err
	}
	return &conn, nil
}

func (r *PostgresRepository) SaveConnection(ctx context.Context, conn domain.Connection) error {
	query := `
		INSERT INTO connections (socket_id, user_id, created_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (socket_id) DO UPDATE SET user_id = EXCLUDED.user_id`
	_, err := r.db.Exec(ctx, query, conn.SocketID, conn.UserID)
	return err
}

func (r *PostgresRepository) DeleteConnection(ctx context.Context, socketID string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM connections WHERE socket_id = $1`, socketID)
	return err
}
