package order

import (
	"fmt"
	"time"

	"github.com/go-faster/errors"
)

// Sentinel errors for order validation and amendment.
var (
	ErrEmptyItems           = errors.New("items required")
	ErrCouponAlreadyApplied = errors.New("order already has a coupon applied")
	// ErrOrderNotAmendable is returned when coupon changes are attempted
	// after the order has left the pending state.
	ErrOrderNotAmendable = errors.New("order can no longer be amended")
)

// InvalidTransitionError reports an illegal lifecycle move, naming the
// current status so the rejection is self-explanatory.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot move order from %s to %s", e.From, e.To)
}

// ReturnWindowExpiredError reports a return request made after the allowed
// window since delivery.
type ReturnWindowExpiredError struct {
	DeliveredAt time.Time
	Window      time.Duration
}

func (e *ReturnWindowExpiredError) Error() string {
	days := int(e.Window.Hours() / 24)
	return fmt.Sprintf("return window of %d days has expired", days)
}

// InvalidQuantityError indicates a line item with a non-positive quantity.
type InvalidQuantityError struct {
	ProductID string
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for product %s", e.ProductID)
}

// ProductNotFoundError indicates a requested product does not exist.
type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %s not found", e.ProductID)
}
