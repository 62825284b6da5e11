package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"nftmarket/apps/market/internal/events"
	"nftmarket/apps/market/internal/model"
)

const orderColumns = `order_id, raw, is_sell, maker, contract_address, token_id, price, expiration_time,
	verified, signature, matched_order_id, created_at, verified_at`

type OrderRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewOrderRepository(db *sql.DB, logger *zap.Logger) *OrderRepository {
	return &OrderRepository{db: db, logger: logger}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanOrder(row rowScanner) (model.Order, error) {
	var order model.Order
	err := row.Scan(&order.OrderID, &order.Raw, &order.IsSell, &order.Maker, &order.ContractAddress, &order.TokenID,
		&order.Price, &order.ExpirationTime, &order.Verified, &order.Signature, &order.MatchedOrderID,
		&order.CreatedAt, &order.VerifiedAt)
	return order, err
}

// CreateOrder inserts an unverified order together with its order_created outbox event
func (r *OrderRepository) CreateOrder(ctx context.Context, order model.Order) error {
	if order.Verified || order.Signature != nil {
		return fmt.Errorf("failed to create order %s: new orders must be unverified", order.OrderID)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() // Will be ignored if tx.Commit() succeeds

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (order_id, raw, is_sell, maker, contract_address, token_id, price, expiration_time, verified, matched_order_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, FALSE, $9, $10)
	`, order.OrderID, order.Raw, order.IsSell, order.Maker, order.ContractAddress, order.TokenID, order.Price,
		order.ExpirationTime, order.MatchedOrderID, order.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}

	if err := insertOutboxEvent(ctx, tx, model.EventOrderCreated, order); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit order creation: %w", err)
	}

	r.logger.Info("Created order",
		zap.String("order_id", order.OrderID),
		zap.Bool("is_sell", order.IsSell),
		zap.String("maker", order.Maker),
		zap.String("contract_address", order.ContractAddress),
		zap.String("token_id", order.TokenID))
	return nil
}

// GetOrderByID returns nil, nil when no order has the given id
func (r *OrderRepository) GetOrderByID(ctx context.Context, orderID string) (*model.Order, error) {
	if _, err := uuid.Parse(orderID); err != nil {
		return nil, nil
	}

	order, err := scanOrder(r.db.QueryRowContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE order_id = $1
	`, orderID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get order by ID: %w", err)
	}

	return &order, nil
}

// MarkOrderVerified flips an unverified order to verified and records its
// signature. It reports false, without error, if the order was already
// verified, so exactly one of several concurrent callers wins.
func (r *OrderRepository) MarkOrderVerified(ctx context.Context, orderID, signature string, verifiedAt time.Time) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	order, err := scanOrder(tx.QueryRowContext(ctx, `
		UPDATE orders
		SET verified = TRUE, signature = $2, verified_at = $3
		WHERE order_id = $1 AND verified = FALSE
		RETURNING `+orderColumns, orderID, signature, verifiedAt))
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to mark order verified: %w", err)
	}

	if err := insertOutboxEvent(ctx, tx, model.EventOrderVerified, order); err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit order verification: %w", err)
	}

	r.logger.Info("Marked order verified",
		zap.String("order_id", orderID),
		zap.String("maker", order.Maker))
	return true, nil
}

// ListOrders returns the orders matching q
func (r *OrderRepository) ListOrders(ctx context.Context, q model.OrderQuery) ([]model.Order, error) {
	var (
		conditions []string
		args       []interface{}
	)
	where := func(condition string, arg interface{}) {
		args = append(args, arg)
		conditions = append(conditions, fmt.Sprintf(condition, len(args)))
	}

	if q.ContractAddress != "" {
		where("contract_address = $%d", q.ContractAddress)
	}
	if q.TokenID != "" {
		where("token_id = $%d", q.TokenID)
	}
	if q.Maker != "" {
		where("maker = $%d", q.Maker)
	}
	if q.IsSell != nil {
		where("is_sell = $%d", *q.IsSell)
	}
	if q.Verified != nil {
		where("verified = $%d", *q.Verified)
	}
	if q.ActiveAt > 0 {
		where("expiration_time > $%d", q.ActiveAt)
	}

	query := `SELECT ` + orderColumns + ` FROM orders`
	if len(conditions) > 0 {
		query += ` WHERE ` + strings.Join(conditions, " AND ")
	}

	switch q.OrderBy {
	case model.OrderByPriceAsc:
		query += ` ORDER BY price ASC, created_at ASC`
	case model.OrderByPriceDesc:
		query += ` ORDER BY price DESC, created_at ASC`
	case model.OrderByExpiration:
		query += ` ORDER BY expiration_time ASC`
	default:
		query += ` ORDER BY created_at DESC`
	}

	if q.Limit > 0 {
		args = append(args, q.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()

	var orders []model.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, order)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating orders: %w", err)
	}

	return orders, nil
}

func insertOutboxEvent(ctx context.Context, tx *sql.Tx, eventType string, order model.Order) error {
	blob, err := json.Marshal(events.NewOrderEvent(eventType, order, time.Now()))
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", eventType, err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO event_outbox (order_id, event_type, status, event_blob)
		VALUES ($1, $2, 'unsent', $3)
	`, order.OrderID, eventType, blob)
	if err != nil {
		return fmt.Errorf("failed to store outbox event: %w", err)
	}
	return nil
}
