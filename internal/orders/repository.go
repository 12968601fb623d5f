package orders

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/aquaflow/internal/domain"
)

var (
	ErrNotCancellable    = errors.New("order can no longer be cancelled")
	ErrInvalidTransition = errors.New("order status transition not allowed")
)

type OrderRepository struct {
	db *sql.DB
}

func NewOrderRepository(db *sql.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// Create stores order unless an order with the same id already exists, in
// which case it reports created=false and leaves the stored order untouched.
func (r *OrderRepository) Create(ctx context.Context, sessionID string, order *domain.Order) (bool, error) {
	address, err := json.Marshal(order.ShippingAddress)
	if err != nil {
		return false, fmt.Errorf("marshal shipping address: %w", err)
	}
	payment, err := json.Marshal(order.PaymentMethod.Masked())
	if err != nil {
		return false, fmt.Errorf("marshal payment method: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, `
		INSERT INTO orders (id, session_id, status, subtotal, shipping, tax, total,
			shipping_address, payment_method, tracking_number, notes, estimated_delivery, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $13)
		ON CONFLICT (id) DO NOTHING
	`, order.ID, sessionID, order.Status, order.Subtotal, order.Shipping, order.Tax, order.Total,
		address, payment, order.TrackingNumber, order.Notes, order.EstimatedDelivery, order.Date)
	if err != nil {
		return false, err
	}

	inserted, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	if inserted == 0 {
		return false, nil
	}

	for _, item := range order.Items {
		options, err := json.Marshal(item.Options)
		if err != nil {
			return false, fmt.Errorf("marshal item options: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO order_items (id, order_id, line_id, name, quantity, price, image, options)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, uuid.New().String(), order.ID, item.ID, item.Name, item.Quantity, item.Price, item.Image, options)
		if err != nil {
			return false, err
		}
	}

	return true, tx.Commit()
}

const orderColumns = `id, status, subtotal, shipping, tax, total, shipping_address, payment_method,
	tracking_number, notes, estimated_delivery, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanOrder(s scanner) (*domain.Order, error) {
	var (
		order            domain.Order
		address, payment []byte
	)
	err := s.Scan(&order.ID, &order.Status, &order.Subtotal, &order.Shipping, &order.Tax, &order.Total,
		&address, &payment, &order.TrackingNumber, &order.Notes, &order.EstimatedDelivery, &order.Date)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(address, &order.ShippingAddress); err != nil {
		return nil, fmt.Errorf("decode shipping address: %w", err)
	}
	if err := json.Unmarshal(payment, &order.PaymentMethod); err != nil {
		return nil, fmt.Errorf("decode payment method: %w", err)
	}
	order.Items = []domain.OrderItem{}
	return &order, nil
}

func scanItem(s scanner) (string, domain.OrderItem, error) {
	var (
		orderID string
		item    domain.OrderItem
		options []byte
	)
	if err := s.Scan(&orderID, &item.ID, &item.Name, &item.Quantity, &item.Price, &item.Image, &options); err != nil {
		return "", item, err
	}
	if len(options) > 0 && string(options) != "null" {
		item.Options = &domain.SelectedOptions{}
		if err := json.Unmarshal(options, item.Options); err != nil {
			return "", item, fmt.Errorf("decode item options: %w", err)
		}
	}
	return orderID, item, nil
}

func (r *OrderRepository) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	return r.get(ctx, `WHERE id = $1`, id)
}

// GetForSession returns the order only when it was placed by sessionID.
func (r *OrderRepository) GetForSession(ctx context.Context, id, sessionID string) (*domain.Order, error) {
	return r.get(ctx, `WHERE id = $1 AND session_id = $2`, id, sessionID)
}

func (r *OrderRepository) get(ctx context.Context, where string, args ...any) (*domain.Order, error) {
	order, err := scanOrder(r.db.QueryRowContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		`+where, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT order_id, line_id, name, quantity, price, image, options
		FROM order_items
		WHERE order_id = $1
		ORDER BY id
	`, order.ID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		_, item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		order.Items = append(order.Items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return order, nil
}

// UpdateStatus moves an order to status. Moves the status machine does not
// allow return ErrInvalidTransition; unknown orders return nil.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id string, status domain.OrderStatus) (*domain.Order, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE orders SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = ANY($3)
	`, status, id, pq.Array(statusStrings(status.Predecessors())))
	if err != nil {
		return nil, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}

	order, err := r.GetByID(ctx, id)
	if err != nil || order == nil {
		return order, err
	}
	if rowsAffected == 0 {
		return nil, ErrInvalidTransition
	}
	return order, nil
}

// Cancel moves an order placed by sessionID to cancelled. Orders that have
// already shipped or reached a final status return ErrNotCancellable.
func (r *OrderRepository) Cancel(ctx context.Context, id, sessionID string) (*domain.Order, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE orders SET status = $1, updated_at = NOW()
		WHERE id = $2 AND session_id = $3 AND status = ANY($4)
	`, domain.OrderStatusCancelled, id, sessionID, pq.Array(cancellableStatuses()))
	if err != nil {
		return nil, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}

	order, err := r.GetForSession(ctx, id, sessionID)
	if err != nil || order == nil {
		return order, err
	}
	if rowsAffected == 0 {
		return nil, ErrNotCancellable
	}
	return order, nil
}

func cancellableStatuses() []string {
	var statuses []domain.OrderStatus
	for _, s := range allStatuses {
		if s.CanCancel() {
			statuses = append(statuses, s)
		}
	}
	return statusStrings(statuses)
}

func statusStrings(statuses []domain.OrderStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

var allStatuses = []domain.OrderStatus{
	domain.OrderStatusPending,
	domain.OrderStatusConfirmed,
	domain.OrderStatusProcessing,
	domain.OrderStatusShipped,
	domain.OrderStatusDelivered,
	domain.OrderStatusCancelled,
}

// List returns the orders placed by sessionID, newest first.
func (r *OrderRepository) List(ctx context.Context, sessionID string) ([]domain.Order, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE session_id = $1
		ORDER BY created_at DESC
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	orderMap := make(map[string]*domain.Order)
	var orderIDs []string

	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orderMap[order.ID] = order
		orderIDs = append(orderIDs, order.ID)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(orderIDs) == 0 {
		return []domain.Order{}, nil
	}

	itemRows, err := r.db.QueryContext(ctx, `
		SELECT order_id, line_id, name, quantity, price, image, options
		FROM order_items
		WHERE order_id = ANY($1)
		ORDER BY id
	`, pq.Array(orderIDs))
	if err != nil {
		return nil, err
	}
	defer func() { _ = itemRows.Close() }()

	for itemRows.Next() {
		orderID, item, err := scanItem(itemRows)
		if err != nil {
			return nil, err
		}
		order := orderMap[orderID]
		order.Items = append(order.Items, item)
	}

	if err := itemRows.Err(); err != nil {
		return nil, err
	}

	orders := make([]domain.Order, 0, len(orderIDs))
	for _, id := range orderIDs {
		orders = append(orders, *orderMap[id])
	}

	return orders, nil
}

// Stats counts sessionID's orders per status. Cancelled orders do not count
// towards the amount spent.
func (r *OrderRepository) Stats(ctx context.Context, sessionID string) (*domain.OrderStats, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT status, COUNT(*), COALESCE(SUM(total), 0)
		FROM orders
		WHERE session_id = $1
		GROUP BY status
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	stats := &domain.OrderStats{
		TotalSpent: decimal.Zero,
		ByStatus:   make(map[domain.OrderStatus]int),
	}
	for rows.Next() {
		var (
			status domain.OrderStatus
			count  int
			sum    decimal.Decimal
		)
		if err := rows.Scan(&status, &count, &sum); err != nil {
			return nil, err
		}
		stats.ByStatus[status] = count
		stats.TotalOrders += count
		if status != domain.OrderStatusCancelled {
			stats.TotalSpent = stats.TotalSpent.Add(sum)
		}
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return stats, nil
}
