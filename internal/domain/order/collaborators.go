package order

import (
	"context"

	"github.com/go-faster/errors"
)

var (
	// ErrInsufficientStock is returned by a stock decrement when the product
	// does not have enough remaining units.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrStockConflict is returned when a stock adjustment loses a race and
	// should be retried with fresh data.
	ErrStockConflict = errors.New("stock update conflict")
)

// Inventory adjusts product stock on order transitions. Decrements are
// atomic and conditional: they succeed only if sufficient stock remains.
type Inventory interface {
	DecreaseStock(ctx context.Context, productID string, qty int, variantSKU string) error
	IncreaseStock(ctx context.Context, productID string, qty int, variantSKU string) error
	IncrementSold(ctx context.Context, productID string, qty int) error
}

// Notifier receives fire-and-forget order notifications. Failures are logged
// by the caller and never block a transition.
type Notifier interface {
	OrderConfirmed(ctx context.Context, o *Order) error
	OrderStatusUpdated(ctx context.Context, o *Order, previous Status) error
}

// NopNotifier discards all notifications.
type NopNotifier struct{}

func (NopNotifier) OrderConfirmed(context.Context, *Order) error             { return nil }
func (NopNotifier) OrderStatusUpdated(context.Context, *Order, Status) error { return nil }
