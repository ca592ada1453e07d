package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/kevin07696/mpesa-checkout/internal/domain"
	"github.com/kevin07696/mpesa-checkout/internal/domain/ports"
)

const orderColumns = `id, order_number, customer_name, customer_phone, customer_email,
	delivery_address, notes, total_amount, payment_status, order_status,
	mpesa_checkout_id, mpesa_receipt, created_at, updated_at`

// OrderRepository implements ports.OrderRepository on PostgreSQL
type OrderRepository struct {
	db *DBExecutor
}

var _ ports.OrderRepository = (*OrderRepository)(nil)

// NewOrderRepository creates a new order repository
func NewOrderRepository(db *DBExecutor) *OrderRepository {
	return &OrderRepository{db: db}
}

// Create inserts the order and its lines in one transaction.
// Order numbers are MO-YYMMDD-NNNN with the date in Nairobi time.
func (r *OrderRepository) Create(ctx context.Context, order *domain.Order, lines []domain.OrderLine) error {
	return r.db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		var id uuid.UUID
		err := tx.QueryRow(ctx, `
			WITH seq AS (SELECT nextval('order_number_seq')::text AS n)
			INSERT INTO orders (
				order_number, customer_name, customer_phone, customer_email,
				delivery_address, notes, total_amount, payment_status, order_status
			)
			SELECT 'MO-' || to_char(now() AT TIME ZONE 'Africa/Nairobi', 'YYMMDD') || '-' ||
			       lpad(seq.n, greatest(4, length(seq.n)), '0'),
			       $1, $2, $3, $4, $5, $6, $7, $8
			FROM seq
			RETURNING id, order_number, created_at, updated_at`,
			order.CustomerName,
			order.CustomerPhone,
			nullText(order.CustomerEmail),
			nullText(order.DeliveryAddress),
			nullText(order.Notes),
			order.TotalAmount,
			string(order.PaymentStatus),
			string(order.OrderStatus),
		).Scan(&id, &order.OrderNumber, &order.CreatedAt, &order.UpdatedAt)
		if err != nil {
			return fmt.Errorf("insert order: %w", err)
		}
		order.ID = id.String()

		order.Items = make([]domain.OrderLine, 0, len(lines))
		for _, l := range lines {
			var lineID uuid.UUID
			err := tx.QueryRow(ctx, `
				INSERT INTO order_items (order_id, menu_item_id, menu_item_name, quantity, unit_price, subtotal)
				VALUES ($1, $2, $3, $4, $5, $6)
				RETURNING id, created_at`,
				id, l.MenuItemID, l.MenuItemName, l.Quantity, l.UnitPrice, l.Subtotal,
			).Scan(&lineID, &l.CreatedAt)
			if err != nil {
				return fmt.Errorf("insert order item: %w", err)
			}
			l.ID = lineID.String()
			l.OrderID = order.ID
			order.Items = append(order.Items, l)
		}
		return nil
	})
}

// GetByID returns the order with its lines
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	oid, err := parseID(id)
	if err != nil {
		return nil, err
	}

	order, err := scanOrder(r.db.pool.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1`, oid))
	if err != nil {
		return nil, notFound(err)
	}

	items, err := r.lines(ctx, r.db.pool, oid)
	if err != nil {
		return nil, err
	}
	order.Items = items
	return order, nil
}

func (r *OrderRepository) GetByCorrelationID(ctx context.Context, checkoutRequestID string) (*domain.Order, error) {
	order, err := scanOrder(r.db.pool.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE mpesa_checkout_id = $1`, checkoutRequestID))
	if err != nil {
		return nil, notFound(err)
	}
	return order, nil
}

// UpdateCorrelation stores the CheckoutRequestID and reopens a failed order.
// Paid and refunded orders keep their correlation id.
func (r *OrderRepository) UpdateCorrelation(ctx context.Context, id, checkoutRequestID string) error {
	oid, err := parseID(id)
	if err != nil {
		return err
	}

	tag, err := r.db.pool.Exec(ctx, `
		UPDATE orders
		SET mpesa_checkout_id = $2,
		    payment_status = CASE WHEN payment_status = 'failed' THEN 'pending' ELSE payment_status END,
		    updated_at = now()
		WHERE id = $1 AND payment_status IN ('pending', 'failed')`,
		oid, checkoutRequestID)
	if err != nil {
		return fmt.Errorf("update correlation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var status string
		err := r.db.pool.QueryRow(ctx, `SELECT payment_status FROM orders WHERE id = $1`, oid).Scan(&status)
		if err != nil {
			return notFound(err)
		}
		return domain.NewDomainError(domain.ErrorCodeOrderAlreadyPaid, "order is already settled").
			WithDetail("payment_status", status)
	}
	return nil
}

// UpdatePayment only touches pending orders, so replays and late failures are no-ops
func (r *OrderRepository) UpdatePayment(ctx context.Context, update ports.PaymentUpdate) (bool, error) {
	oid, err := parseID(update.OrderID)
	if err != nil {
		return false, err
	}

	var orderStatus *string
	if update.OrderStatus != nil {
		s := string(*update.OrderStatus)
		orderStatus = &s
	}

	tag, err := r.db.pool.Exec(ctx, `
		UPDATE orders
		SET payment_status = $2,
		    mpesa_receipt = COALESCE($3, mpesa_receipt),
		    order_status = COALESCE($4, order_status),
		    updated_at = now()
		WHERE id = $1 AND payment_status = 'pending'`,
		oid, string(update.PaymentStatus), nullText(update.Receipt), nullText(orderStatus))
	if err != nil {
		return false, fmt.Errorf("update payment: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return true, nil
	}

	if err := r.exists(ctx, oid); err != nil {
		return false, err
	}
	return false, nil
}

func (r *OrderRepository) UpdateOrderStatus(ctx context.Context, id string, status domain.OrderStatus) error {
	oid, err := parseID(id)
	if err != nil {
		return err
	}

	tag, err := r.db.pool.Exec(ctx,
		`UPDATE orders SET order_status = $2, updated_at = now() WHERE id = $1`,
		oid, string(status))
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrOrderNotFound
	}
	return nil
}

func (r *OrderRepository) MarkRefunded(ctx context.Context, id string) error {
	oid, err := parseID(id)
	if err != nil {
		return err
	}

	tag, err := r.db.pool.Exec(ctx, `
		UPDATE orders SET payment_status = 'refunded', updated_at = now()
		WHERE id = $1 AND payment_status = 'paid'`, oid)
	if err != nil {
		return fmt.Errorf("mark refunded: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if err := r.exists(ctx, oid); err != nil {
			return err
		}
		return domain.ErrInvalidStatusTransition
	}
	return nil
}

// List returns orders newest first. Lines are not loaded.
func (r *OrderRepository) List(ctx context.Context, filter ports.OrderFilter) ([]*domain.Order, error) {
	var (
		where []string
		args  []any
	)
	if filter.PaymentStatus != nil {
		args = append(args, string(*filter.PaymentStatus))
		where = append(where, fmt.Sprintf("payment_status = $%d", len(args)))
	}
	if filter.OrderStatus != nil {
		args = append(args, string(*filter.OrderStatus))
		where = append(where, fmt.Sprintf("order_status = $%d", len(args)))
	}

	query := `SELECT ` + orderColumns + ` FROM orders`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	return r.query(ctx, query, args...)
}

// ListDegraded returns pending orders older than cutoff that never got a CheckoutRequestID
func (r *OrderRepository) ListDegraded(ctx context.Context, cutoff time.Time) ([]*domain.Order, error) {
	return r.query(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE payment_status = 'pending' AND mpesa_checkout_id IS NULL AND created_at < $1
		ORDER BY created_at`, cutoff)
}

func (r *OrderRepository) query(ctx context.Context, sql string, args ...any) ([]*domain.Order, error) {
	rows, err := r.db.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	orders := []*domain.Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

func (r *OrderRepository) lines(ctx context.Context, q Querier, orderID uuid.UUID) ([]domain.OrderLine, error) {
	rows, err := q.Query(ctx, `
		SELECT id, order_id, menu_item_id, menu_item_name, quantity, unit_price, subtotal, created_at
		FROM order_items WHERE order_id = $1 ORDER BY created_at, id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("query order items: %w", err)
	}
	defer rows.Close()

	var lines []domain.OrderLine
	for rows.Next() {
		var (
			l       domain.OrderLine
			id, oid uuid.UUID
		)
		if err := rows.Scan(&id, &oid, &l.MenuItemID, &l.MenuItemName, &l.Quantity, &l.UnitPrice, &l.Subtotal, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		l.ID = id.String()
		l.OrderID = oid.String()
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func (r *OrderRepository) exists(ctx context.Context, id uuid.UUID) error {
	var one int
	err := r.db.pool.QueryRow(ctx, `SELECT 1 FROM orders WHERE id = $1`, id).Scan(&one)
	if err != nil {
		return notFound(err)
	}
	return nil
}

func scanOrder(row pgx.Row) (*domain.Order, error) {
	var (
		o                                   domain.Order
		id                                  uuid.UUID
		email, address, notes, checkout, rc pgtype.Text
		paymentStatus, orderStatus          string
	)
	err := row.Scan(
		&id, &o.OrderNumber, &o.CustomerName, &o.CustomerPhone, &email,
		&address, &notes, &o.TotalAmount, &paymentStatus, &orderStatus,
		&checkout, &rc, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	o.ID = id.String()
	o.CustomerEmail = textPtr(email)
	o.DeliveryAddress = textPtr(address)
	o.Notes = textPtr(notes)
	o.CheckoutID = textPtr(checkout)
	o.Receipt = textPtr(rc)
	o.PaymentStatus = domain.PaymentStatus(paymentStatus)
	o.OrderStatus = domain.OrderStatus(orderStatus)
	return &o, nil
}
