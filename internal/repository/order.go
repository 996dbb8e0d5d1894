package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vendora/commerce-core/internal/domain/order"
)

const (
	createOrderSQL = `INSERT INTO orders (id, order_number, user_id, items, subtotal, shipping_charge,
		discount, total, coupon, status, history, payment, waybill_id,
		cancelled, cancel_reason, cancelled_at, returned, return_reason, returned_at, return_status,
		delivered_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13,
		$14, $15, $16, $17, $18, $19, $20, $21, $22, $23)`

	updateOrderSQL = `UPDATE orders SET items = $2, subtotal = $3, shipping_charge = $4,
		discount = $5, total = $6, coupon = $7, status = $8, history = $9, payment = $10,
		waybill_id = $11, cancelled = $12, cancel_reason = $13, cancelled_at = $14,
		returned = $15, return_reason = $16, returned_at = $17, return_status = $18,
		delivered_at = $19, updated_at = $20
		WHERE id = $1`

	orderColumns = `id, order_number, user_id, items, subtotal, shipping_charge, discount, total,
		coupon, status, history, payment, waybill_id,
		cancelled, cancel_reason, cancelled_at, returned, return_reason, returned_at, return_status,
		delivered_at, created_at, updated_at`

	getOrderSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	getOrderByWaybillSQL = `SELECT ` + orderColumns + ` FROM orders WHERE waybill_id = $1`

	nextOrderSequenceSQL = `INSERT INTO order_sequences (day, value) VALUES ($1, 1)
		ON CONFLICT (day) DO UPDATE SET value = order_sequences.value + 1
		RETURNING value`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL. Line
// items, the coupon snapshot, status history, and payment state are stored
// as JSONB documents on the order row.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists a new order.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	doc, err := marshalOrderDocs(o)
	if err != nil {
		return err
	}

	now := time.Now()
	o.CreatedAt = now
	o.UpdatedAt = now

	_, err = r.pool.Exec(ctx, createOrderSQL,
		o.ID, o.Number, o.UserID, doc.items, o.Subtotal, o.ShippingCharge,
		o.Discount, o.Total, doc.coupon, string(o.Status), doc.history, doc.payment, nullable(o.WaybillID),
		o.Cancelled, o.CancelReason, o.CancelledAt, o.Returned, o.ReturnReason, o.ReturnedAt, string(o.ReturnStatus),
		o.DeliveredAt, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating order %q: %w", o.ID, err)
	}
	return nil
}

// Get returns a single order by its identifier.
func (r *OrderRepository) Get(ctx context.Context, id string) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, getOrderSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}
	return collectOrder(rows, id)
}

// Update rewrites an existing order row.
func (r *OrderRepository) Update(ctx context.Context, o *order.Order) error {
	doc, err := marshalOrderDocs(o)
	if err != nil {
		return err
	}

	o.UpdatedAt = time.Now()

	tag, err := r.pool.Exec(ctx, updateOrderSQL,
		o.ID, doc.items, o.Subtotal, o.ShippingCharge,
		o.Discount, o.Total, doc.coupon, string(o.Status), doc.history, doc.payment,
		nullable(o.WaybillID), o.Cancelled, o.CancelReason, o.CancelledAt,
		o.Returned, o.ReturnReason, o.ReturnedAt, string(o.ReturnStatus),
		o.DeliveredAt, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("updating order %q: %w", o.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

// FindByWaybill maps an external shipment identifier back to its order.
func (r *OrderRepository) FindByWaybill(ctx context.Context, waybillID string) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, getOrderByWaybillSQL, waybillID)
	if err != nil {
		return nil, fmt.Errorf("finding order by waybill %q: %w", waybillID, err)
	}
	return collectOrder(rows, waybillID)
}

// NextSequence atomically increments and returns the order counter for the
// given calendar day. The upsert makes concurrent checkouts on the same day
// receive distinct values.
func (r *OrderRepository) NextSequence(ctx context.Context, day time.Time) (int64, error) {
	var value int64
	err := r.pool.QueryRow(ctx, nextOrderSequenceSQL, day.UTC().Truncate(24*time.Hour)).Scan(&value)
	if err != nil {
		return 0, fmt.Errorf("next order sequence: %w", err)
	}
	return value, nil
}

type orderDocs struct {
	items   []byte
	coupon  []byte // nil when no coupon is applied
	history []byte
	payment []byte
}

func marshalOrderDocs(o *order.Order) (orderDocs, error) {
	var (
		doc orderDocs
		err error
	)
	if doc.items, err = json.Marshal(o.Items); err != nil {
		return doc, fmt.Errorf("marshaling order items: %w", err)
	}
	if o.Coupon != nil {
		if doc.coupon, err = json.Marshal(o.Coupon); err != nil {
			return doc, fmt.Errorf("marshaling order coupon: %w", err)
		}
	}
	if doc.history, err = json.Marshal(o.History); err != nil {
		return doc, fmt.Errorf("marshaling order history: %w", err)
	}
	if doc.payment, err = json.Marshal(o.Payment); err != nil {
		return doc, fmt.Errorf("marshaling order payment: %w", err)
	}
	return doc, nil
}

func collectOrder(rows pgx.Rows, ref string) (*order.Order, error) {
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %q: %w", ref, err)
	}
	return o, nil
}

func scanOrder(row pgx.CollectableRow) (*order.Order, error) {
	var (
		o            order.Order
		items        []byte
		couponDoc    []byte
		history      []byte
		payment      []byte
		status       string
		waybillID    *string
		returnStatus string
	)
	err := row.Scan(
		&o.ID, &o.Number, &o.UserID, &items, &o.Subtotal, &o.ShippingCharge, &o.Discount, &o.Total,
		&couponDoc, &status, &history, &payment, &waybillID,
		&o.Cancelled, &o.CancelReason, &o.CancelledAt, &o.Returned, &o.ReturnReason, &o.ReturnedAt, &returnStatus,
		&o.DeliveredAt, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	o.Status = order.Status(status)
	o.ReturnStatus = order.ReturnStatus(returnStatus)
	if waybillID != nil {
		o.WaybillID = *waybillID
	}

	if err := json.Unmarshal(items, &o.Items); err != nil {
		return nil, fmt.Errorf("unmarshaling order items: %w", err)
	}
	if len(couponDoc) > 0 {
		o.Coupon = &order.CouponSnapshot{}
		if err := json.Unmarshal(couponDoc, o.Coupon); err != nil {
			return nil, fmt.Errorf("unmarshaling order coupon: %w", err)
		}
	}
	if len(history) > 0 {
		if err := json.Unmarshal(history, &o.History); err != nil {
			return nil, fmt.Errorf("unmarshaling order history: %w", err)
		}
	}
	if err := json.Unmarshal(payment, &o.Payment); err != nil {
		return nil, fmt.Errorf("unmarshaling order payment: %w", err)
	}
	return &o, nil
}

// nullable maps the empty string to SQL NULL so partial unique indexes on
// optional references behave.
func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
