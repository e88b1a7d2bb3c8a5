package database

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const orderColumns = `id, order_id, student_name, student_phone, total_amount, special_instructions,
    status, upi_id, payment_proof, verified_by, verification_time, rejection_reason,
    created_at, updated_at`

func scanOrder(row pgx.Row) (Order, error) {
	var i Order
	err := row.Scan(
		&i.ID,
		&i.OrderID,
		&i.StudentName,
		&i.StudentPhone,
		&i.TotalAmount,
		&i.SpecialInstructions,
		&i.Status,
		&i.UpiID,
		&i.PaymentProof,
		&i.VerifiedBy,
		&i.VerificationTime,
		&i.RejectionReason,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

func collectOrders(rows pgx.Rows, err error) ([]Order, error) {
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []Order{}
	for rows.Next() {
		i, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

// The counter for a day never falls below the greatest sequence already used
// by an order carrying that day's prefix.
const nextOrderSequence = `
INSERT INTO order_sequences (order_date, last_seq)
VALUES (
    $1::date,
    COALESCE((
        SELECT MAX(CAST(SUBSTRING(order_id FROM 12) AS INTEGER))
        FROM orders
        WHERE order_id LIKE $2::text || '%'
    ), 0) + 1
)
ON CONFLICT (order_date) DO UPDATE
SET last_seq = GREATEST(order_sequences.last_seq, EXCLUDED.last_seq - 1) + 1
RETURNING last_seq
`

type NextOrderSequenceParams struct {
	OrderDate pgtype.Date `json:"order_date"`
	Prefix    string      `json:"prefix"`
}

// NextOrderSequence atomically allocates the next sequence for a day. Run it
// inside the order-creation transaction: the row lock it takes serializes
// concurrent creators until commit, and a rollback releases the number.
func (q *Queries) NextOrderSequence(ctx context.Context, arg NextOrderSequenceParams) (int32, error) {
	row := q.db.QueryRow(ctx, nextOrderSequence, arg.OrderDate, arg.Prefix)
	var lastSeq int32
	err := row.Scan(&lastSeq)
	return lastSeq, err
}

const createOrder = `
INSERT INTO orders (order_id, student_name, student_phone, total_amount, special_instructions, status, upi_id)
VALUES ($1, $2, $3, $4, $5, 'pending_payment', $6)
RETURNING ` + orderColumns

type CreateOrderParams struct {
	OrderID             string         `json:"order_id"`
	StudentName         string         `json:"student_name"`
	StudentPhone        string         `json:"student_phone"`
	TotalAmount         pgtype.Numeric `json:"total_amount"`
	SpecialInstructions string         `json:"special_instructions"`
	UpiID               string         `json:"upi_id"`
}

func (q *Queries) CreateOrder(ctx context.Context, arg CreateOrderParams) (Order, error) {
	row := q.db.QueryRow(ctx, createOrder,
		arg.OrderID,
		arg.StudentName,
		arg.StudentPhone,
		arg.TotalAmount,
		arg.SpecialInstructions,
		arg.UpiID,
	)
	return scanOrder(row)
}

const getOrderByOrderID = `
SELECT ` + orderColumns + `
FROM orders
WHERE order_id = $1
`

func (q *Queries) GetOrderByOrderID(ctx context.Context, orderID string) (Order, error) {
	row := q.db.QueryRow(ctx, getOrderByOrderID, orderID)
	return scanOrder(row)
}

const listOrdersByPhone = `
SELECT ` + orderColumns + `
FROM orders
WHERE student_phone = $1
ORDER BY created_at DESC, order_id DESC
LIMIT $2
`

type ListOrdersByPhoneParams struct {
	StudentPhone string `json:"student_phone"`
	Limit        int32  `json:"limit"`
}

func (q *Queries) ListOrdersByPhone(ctx context.Context, arg ListOrdersByPhoneParams) ([]Order, error) {
	return collectOrders(q.db.Query(ctx, listOrdersByPhone, arg.StudentPhone, arg.Limit))
}

const listOrdersByStatuses = `
SELECT ` + orderColumns + `
FROM orders
WHERE status = ANY($1::text[])
ORDER BY created_at ASC, order_id ASC
`

// ListOrdersByStatuses returns matching orders oldest first.
func (q *Queries) ListOrdersByStatuses(ctx context.Context, statuses []string) ([]Order, error) {
	return collectOrders(q.db.Query(ctx, listOrdersByStatuses, statuses))
}

const listOrders = `
SELECT ` + orderColumns + `
FROM orders
WHERE ($1::text IS NULL OR status = $1::text)
  AND ($2::timestamptz IS NULL OR created_at >= $2::timestamptz)
  AND ($3::timestamptz IS NULL OR created_at < $3::timestamptz)
ORDER BY created_at DESC, order_id DESC
LIMIT $4 OFFSET $5
`

type ListOrdersParams struct {
	Status    pgtype.Text        `json:"status"`
	StartDate pgtype.Timestamptz `json:"start_date"`
	EndDate   pgtype.Timestamptz `json:"end_date"`
	Limit     int32              `json:"limit"`
	Offset    int32              `json:"offset"`
}

func (q *Queries) ListOrders(ctx context.Context, arg ListOrdersParams) ([]Order, error) {
	return collectOrders(q.db.Query(ctx, listOrders,
		arg.Status,
		arg.StartDate,
		arg.EndDate,
		arg.Limit,
		arg.Offset,
	))
}

const countOrders = `
SELECT COUNT(*)
FROM orders
WHERE ($1::text IS NULL OR status = $1::text)
  AND ($2::timestamptz IS NULL OR created_at >= $2::timestamptz)
  AND ($3::timestamptz IS NULL OR created_at < $3::timestamptz)
`

type CountOrdersParams struct {
	Status    pgtype.Text        `json:"status"`
	StartDate pgtype.Timestamptz `json:"start_date"`
	EndDate   pgtype.Timestamptz `json:"end_date"`
}

func (q *Queries) CountOrders(ctx context.Context, arg CountOrdersParams) (int64, error) {
	row := q.db.QueryRow(ctx, countOrders, arg.Status, arg.StartDate, arg.EndDate)
	var count int64
	err := row.Scan(&count)
	return count, err
}

// Stamp columns only change when a value is supplied; a NULL argument keeps
// what is already stored.
const transitionOrder = `
UPDATE orders
SET status            = $2,
    payment_proof     = COALESCE($4, payment_proof),
    verified_by       = COALESCE($5, verified_by),
    verification_time = COALESCE($6, verification_time),
    rejection_reason  = COALESCE($7, rejection_reason),
    updated_at        = now()
WHERE order_id = $1
  AND status = ANY($3::text[])
RETURNING ` + orderColumns

type TransitionOrderParams struct {
	OrderID          string             `json:"order_id"`
	Status           OrderStatus        `json:"status"`
	FromStatuses     []string           `json:"from_statuses"`
	PaymentProof     pgtype.Text        `json:"payment_proof"`
	VerifiedBy       pgtype.Text        `json:"verified_by"`
	VerificationTime pgtype.Timestamptz `json:"verification_time"`
	RejectionReason  pgtype.Text        `json:"rejection_reason"`
}

// TransitionOrder applies a status change only if the current status is one
// of FromStatuses. It returns pgx.ErrNoRows when nothing was updated.
func (q *Queries) TransitionOrder(ctx context.Context, arg TransitionOrderParams) (Order, error) {
	row := q.db.QueryRow(ctx, transitionOrder,
		arg.OrderID,
		string(arg.Status),
		arg.FromStatuses,
		arg.PaymentProof,
		arg.VerifiedBy,
		arg.VerificationTime,
		arg.RejectionReason,
	)
	return scanOrder(row)
}

const listOrdersForReport = `
SELECT ` + orderColumns + `
FROM orders
WHERE created_at >= $1
  AND created_at < $2
  AND status = ANY($3::text[])
ORDER BY created_at ASC
`

type ListOrdersForReportParams struct {
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Statuses  []string  `json:"statuses"`
}

func (q *Queries) ListOrdersForReport(ctx context.Context, arg ListOrdersForReportParams) ([]Order, error) {
	return collectOrders(q.db.Query(ctx, listOrdersForReport, arg.StartTime, arg.EndTime, arg.Statuses))
}

const getOrderSummary = `
SELECT
    COUNT(*)                                                               AS total_orders,
    COUNT(*) FILTER (WHERE status = 'payment_submitted')                   AS pending_payments,
    COUNT(*) FILTER (WHERE status IN ('verified', 'preparing', 'ready'))   AS verified_orders,
    COUNT(*) FILTER (WHERE status = 'completed')                           AS completed_orders,
    COALESCE(SUM(total_amount) FILTER (WHERE status = 'completed'), 0)::numeric(14, 2) AS total_revenue
FROM orders
`

type GetOrderSummaryRow struct {
	TotalOrders     int64          `json:"total_orders"`
	PendingPayments int64          `json:"pending_payments"`
	VerifiedOrders  int64          `json:"verified_orders"`
	CompletedOrders int64          `json:"completed_orders"`
	TotalRevenue    pgtype.Numeric `json:"total_revenue"`
}

func (q *Queries) GetOrderSummary(ctx context.Context) (GetOrderSummaryRow, error) {
	row := q.db.QueryRow(ctx, getOrderSummary)
	var i GetOrderSummaryRow
	err := row.Scan(
		&i.TotalOrders,
		&i.PendingPayments,
		&i.VerifiedOrders,
		&i.CompletedOrders,
		&i.TotalRevenue,
	)
	return i, err
}

const orderItemColumns = `id, order_id, menu_item_id, name, price, quantity, position`

func scanOrderItem(row pgx.Row) (OrderItem, error) {
	var i OrderItem
	err := row.Scan(
		&i.ID,
		&i.OrderID,
		&i.MenuItemID,
		&i.Name,
		&i.Price,
		&i.Quantity,
		&i.Position,
	)
	return i, err
}

func collectOrderItems(rows pgx.Rows, err error) ([]OrderItem, error) {
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []OrderItem{}
	for rows.Next() {
		i, err := scanOrderItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const createOrderItem = `
INSERT INTO order_items (order_id, menu_item_id, name, price, quantity, position)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING ` + orderItemColumns

type CreateOrderItemParams struct {
	OrderID    uuid.UUID      `json:"order_id"`
	MenuItemID uuid.UUID      `json:"menu_item_id"`
	Name       string         `json:"name"`
	Price      pgtype.Numeric `json:"price"`
	Quantity   int32          `json:"quantity"`
	Position   int32          `json:"position"`
}

func (q *Queries) CreateOrderItem(ctx context.Context, arg CreateOrderItemParams) (OrderItem, error) {
	row := q.db.QueryRow(ctx, createOrderItem,
		arg.OrderID,
		arg.MenuItemID,
		arg.Name,
		arg.Price,
		arg.Quantity,
		arg.Position,
	)
	return scanOrderItem(row)
}

const listOrderItemsByOrder = `
SELECT ` + orderItemColumns + `
FROM order_items
WHERE order_id = $1
ORDER BY position ASC
`

func (q *Queries) ListOrderItemsByOrder(ctx context.Context, orderID uuid.UUID) ([]OrderItem, error) {
	return collectOrderItems(q.db.Query(ctx, listOrderItemsByOrder, orderID))
}

const listOrderItemsByOrders = `
SELECT ` + orderItemColumns + `
FROM order_items
WHERE order_id = ANY($1::uuid[])
ORDER BY order_id, position ASC
`

func (q *Queries) ListOrderItemsByOrders(ctx context.Context, orderIDs []uuid.UUID) ([]OrderItem, error) {
	return collectOrderItems(q.db.Query(ctx, listOrderItemsByOrders, orderIDs))
}
