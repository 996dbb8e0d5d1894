package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/vendora/commerce-core/internal/domain/coupon"
)

// Status is the overall fulfillment state of an order.
type Status string

const (
	StatusPending    Status = "pending"
	StatusConfirmed  Status = "confirmed"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
)

// statusRank orders statuses by how far along the lifecycle they are.
// Terminal states share the top rank so a late "cancelled" webhook cannot
// regress a delivered order and vice versa.
var statusRank = map[Status]int{
	StatusPending:    0,
	StatusConfirmed:  1,
	StatusProcessing: 2,
	StatusShipped:    3,
	StatusDelivered:  4,
	StatusCancelled:  4,
}

// transitions is the legal move table for the overall order status.
var transitions = map[Status][]Status{
	StatusPending:    {StatusConfirmed, StatusCancelled},
	StatusConfirmed:  {StatusProcessing, StatusShipped, StatusDelivered, StatusCancelled},
	StatusProcessing: {StatusShipped, StatusDelivered, StatusCancelled},
	StatusShipped:    {StatusDelivered, StatusCancelled},
	StatusDelivered:  {},
	StatusCancelled:  {},
}

// CanTransition reports whether moving the overall status from one state to
// another is legal.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// ReturnStatus tracks the return sub-flow attached to a delivered order.
// It never changes the order's main status.
type ReturnStatus string

const (
	ReturnNone      ReturnStatus = ""
	ReturnRequested ReturnStatus = "requested"
	ReturnApproved  ReturnStatus = "approved"
	ReturnRejected  ReturnStatus = "rejected"
	ReturnCompleted ReturnStatus = "completed"
)

// PaymentMethod enumerates how an order is paid.
type PaymentMethod string

const (
	PaymentGateway        PaymentMethod = "gateway"
	PaymentCashOnDelivery PaymentMethod = "cod"
)

// PaymentStatus tracks the payment leg independently of fulfillment.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
)

// Payment holds the payment state and external gateway references.
type Payment struct {
	Method           PaymentMethod `json:"method"`
	Status           PaymentStatus `json:"status"`
	GatewayOrderID   string        `json:"gatewayOrderId,omitempty"`
	GatewayPaymentID string        `json:"gatewayPaymentId,omitempty"`
	GatewaySignature string        `json:"gatewaySignature,omitempty"`
	CompletedAt      *time.Time    `json:"completedAt,omitempty"`
}

// ProductSnapshot is a point-in-time copy of product display data, embedded
// in a line item so later catalog edits never change historical orders.
type ProductSnapshot struct {
	Name  string `json:"name"`
	Image string `json:"image,omitempty"`
	SKU   string `json:"sku,omitempty"`
}

// LineItem is one product/variant/quantity entry within an order.
type LineItem struct {
	ProductID      string          `json:"productId"`
	VariantSKU     string          `json:"variantSku,omitempty"`
	Category       string          `json:"category,omitempty"`
	UnitPrice      decimal.Decimal `json:"unitPrice"`
	Quantity       int             `json:"quantity"`
	LineTotal      decimal.Decimal `json:"lineTotal"`
	ShippingCharge decimal.Decimal `json:"shippingCharge"`
	Status         Status          `json:"status"`
	Snapshot       ProductSnapshot `json:"snapshot"`
}

// CouponSnapshot is the coupon state denormalized onto an order at apply
// time. Coupon edits after application never retroactively change it.
type CouponSnapshot struct {
	CouponID     string              `json:"couponId"`
	Code         string              `json:"code"`
	DiscountType coupon.DiscountType `json:"discountType"`
	Discount     decimal.Decimal     `json:"discount"`
	FreeShipping bool                `json:"freeShipping"`
	AppliedAt    time.Time           `json:"appliedAt"`
}

// StatusChange is one entry in an order's status history log.
type StatusChange struct {
	Status    Status    `json:"status"`
	Note      string    `json:"note,omitempty"`
	ChangedAt time.Time `json:"changedAt"`
}

// Order is a customer order: line items, financials, the applied coupon
// snapshot, and the full lifecycle state.
type Order struct {
	ID     string
	Number string
	UserID string

	Items []LineItem

	Subtotal       decimal.Decimal
	ShippingCharge decimal.Decimal
	Discount       decimal.Decimal
	Total          decimal.Decimal

	Coupon *CouponSnapshot

	Status  Status
	History []StatusChange

	Payment Payment

	WaybillID string

	Cancelled    bool
	CancelReason string
	CancelledAt  *time.Time

	Returned     bool
	ReturnReason string
	ReturnedAt   *time.Time
	ReturnStatus ReturnStatus

	DeliveredAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// appendHistory records an overall-status change with an optional note.
func (o *Order) appendHistory(status Status, note string, at time.Time) {
	o.History = append(o.History, StatusChange{Status: status, Note: note, ChangedAt: at})
}

// ErrNotFound is returned when an order does not exist.
var ErrNotFound = errors.New("order not found")

// Repository defines persistence operations for orders.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	Get(ctx context.Context, id string) (*Order, error)
	Update(ctx context.Context, o *Order) error
	// FindByWaybill maps an external shipment identifier back to its order.
	FindByWaybill(ctx context.Context, waybillID string) (*Order, error)
	// NextSequence atomically increments and returns the order counter for
	// the given calendar day.
	NextSequence(ctx context.Context, day time.Time) (int64, error)
}
