package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vendora/commerce-core/internal/domain/catalog"
	"github.com/vendora/commerce-core/internal/domain/coupon"
)

// Config holds the tunable knobs of the order lifecycle.
type Config struct {
	// NumberPrefix is prepended to generated order numbers.
	NumberPrefix string
	// ReturnWindow is how long after delivery a return may be requested.
	ReturnWindow time.Duration
}

// Service is the order lifecycle state machine. It owns order creation,
// status transitions and their side effects (inventory adjustment, coupon
// ledger commits, notifications), and is the only writer of order records.
type Service struct {
	orders    Repository
	products  catalog.Repository
	coupons   coupon.Repository
	ledger    *coupon.Ledger
	inventory Inventory
	notifier  Notifier
	cfg       Config
	now       func() time.Time
}

// NewService creates an order Service with the required collaborators.
func NewService(
	orders Repository,
	products catalog.Repository,
	coupons coupon.Repository,
	ledger *coupon.Ledger,
	inventory Inventory,
	notifier Notifier,
	cfg Config,
) *Service {
	if cfg.NumberPrefix == "" {
		cfg.NumberPrefix = "ORD"
	}
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &Service{
		orders:    orders,
		products:  products,
		coupons:   coupons,
		ledger:    ledger,
		inventory: inventory,
		notifier:  notifier,
		cfg:       cfg,
		now:       time.Now,
	}
}

// ItemRequest is one requested line at checkout.
type ItemRequest struct {
	ProductID  string
	VariantSKU string
	Quantity   int
}

// CreateOrderRequest holds the input for checkout.
type CreateOrderRequest struct {
	UserID        string
	Items         []ItemRequest
	PaymentMethod PaymentMethod
	CouponCode    string
}

// CreateOrder assembles an order from the catalog, reserves stock, applies
// an optional coupon, and persists the order in pending state.
//
// The coupon ledger commit happens before the order write: a crash between
// the two leaves a consumed use without a binding order, never a discounted
// order without a ledger entry.
func (s *Service) CreateOrder(ctx context.Context, req CreateOrderRequest) (*Order, error) {
	if len(req.Items) == 0 {
		return nil, ErrEmptyItems
	}
	now := s.now()

	items, err := s.buildLineItems(ctx, req.Items)
	if err != nil {
		return nil, err
	}

	o := &Order{
		ID:      uuid.New().String(),
		UserID:  req.UserID,
		Items:   items,
		Status:  StatusPending,
		Payment: Payment{Method: req.PaymentMethod, Status: PaymentPending},
	}
	o.applyTotals(ComputeTotals(items, nil))

	seq, err := s.orders.NextSequence(ctx, now)
	if err != nil {
		return nil, errors.Wrap(err, "next order sequence")
	}
	o.Number = FormatNumber(s.cfg.NumberPrefix, now, seq)

	if err := s.reserveStock(ctx, items); err != nil {
		return nil, err
	}

	if req.CouponCode != "" {
		if err := s.attachCoupon(ctx, o, req.CouponCode, now); err != nil {
			s.restoreStock(ctx, o, items)
			return nil, err
		}
	}

	o.appendHistory(StatusPending, "order created", now)
	if err := s.orders.Create(ctx, o); err != nil {
		// Compensate: the order never became binding.
		s.restoreStock(ctx, o, items)
		if o.Coupon != nil {
			s.releaseCoupon(ctx, o)
		}
		return nil, errors.Wrap(err, "create order")
	}

	return o, nil
}

// buildLineItems fetches all products in one batch and captures unit price,
// shipping charge, and a display snapshot per line.
func (s *Service) buildLineItems(ctx context.Context, reqs []ItemRequest) ([]LineItem, error) {
	ids := make([]string, len(reqs))
	for i, r := range reqs {
		if r.Quantity <= 0 {
			return nil, &InvalidQuantityError{ProductID: r.ProductID}
		}
		ids[i] = r.ProductID
	}

	fetched, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get products")
	}
	byID := make(map[string]catalog.Product, len(fetched))
	for _, p := range fetched {
		byID[p.ID] = p
	}

	items := make([]LineItem, len(reqs))
	for i, r := range reqs {
		p, ok := byID[r.ProductID]
		if !ok {
			return nil, &ProductNotFoundError{ProductID: r.ProductID}
		}
		price := p.Price
		sku := p.SKU
		if r.VariantSKU != "" {
			v, ok := p.VariantBySKU(r.VariantSKU)
			if !ok {
				return nil, &ProductNotFoundError{ProductID: r.ProductID}
			}
			price = v.Price
			sku = v.SKU
		}
		items[i] = LineItem{
			ProductID:      r.ProductID,
			VariantSKU:     r.VariantSKU,
			Category:       p.Category,
			UnitPrice:      price,
			Quantity:       r.Quantity,
			LineTotal:      price.Mul(decimal.NewFromInt(int64(r.Quantity))).Round(2),
			ShippingCharge: p.ShippingCharge,
			Status:         StatusPending,
			Snapshot:       ProductSnapshot{Name: p.Name, Image: p.Image, SKU: sku},
		}
	}
	return items, nil
}

// reserveStock decrements stock per line. A conflicted decrement is retried
// once with fresh stock data before surfacing.
func (s *Service) reserveStock(ctx context.Context, items []LineItem) error {
	for i, item := range items {
		err := s.inventory.DecreaseStock(ctx, item.ProductID, item.Quantity, item.VariantSKU)
		if errors.Is(err, ErrStockConflict) {
			err = s.inventory.DecreaseStock(ctx, item.ProductID, item.Quantity, item.VariantSKU)
		}
		if err != nil {
			// Put back what was already taken.
			s.restoreStock(ctx, nil, items[:i])
			if errors.Is(err, ErrInsufficientStock) {
				return errors.Wrapf(ErrInsufficientStock, "product %s", item.ProductID)
			}
			return errors.Wrap(err, "decrease stock")
		}
	}
	return nil
}

// restoreStock returns stock for the given lines, logging failures for
// reconciliation instead of propagating them.
func (s *Service) restoreStock(ctx context.Context, o *Order, items []LineItem) {
	lg := zctx.From(ctx)
	for _, item := range items {
		if err := s.inventory.IncreaseStock(ctx, item.ProductID, item.Quantity, item.VariantSKU); err != nil {
			fields := []zap.Field{
				zap.String("product_id", item.ProductID),
				zap.Int("quantity", item.Quantity),
				zap.Error(err),
			}
			if o != nil {
				fields = append(fields, zap.String("order_id", o.ID))
			}
			lg.Error("restore stock failed", fields...)
		}
	}
}

// Get returns an order by its identifier.
func (s *Service) Get(ctx context.Context, orderID string) (*Order, error) {
	return s.orders.Get(ctx, orderID)
}

// ConfirmPayment records a successful payment-gateway capture and moves the
// order from pending to confirmed. Repeated confirmations are no-ops.
func (s *Service) ConfirmPayment(ctx context.Context, orderID, gatewayPaymentID, signature string) (*Order, error) {
	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.Payment.Status == PaymentCompleted {
		return o, nil
	}
	if !CanTransition(o.Status, StatusConfirmed) {
		return nil, &InvalidTransitionError{From: o.Status, To: StatusConfirmed}
	}

	now := s.now()
	o.Payment.Status = PaymentCompleted
	o.Payment.GatewayPaymentID = gatewayPaymentID
	o.Payment.GatewaySignature = signature
	o.Payment.CompletedAt = &now
	o.Status = StatusConfirmed
	o.appendHistory(StatusConfirmed, "payment completed", now)

	if err := s.orders.Update(ctx, o); err != nil {
		return nil, errors.Wrap(err, "save order")
	}
	s.notify(ctx, func() error { return s.notifier.OrderConfirmed(ctx, o) }, o.ID, "order confirmed")
	return o, nil
}

// FailPayment records a failed gateway capture. The order stays pending so
// the customer can retry.
func (s *Service) FailPayment(ctx context.Context, orderID, reason string) (*Order, error) {
	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	o.Payment.Status = PaymentFailed
	o.appendHistory(o.Status, "payment failed: "+reason, s.now())
	if err := s.orders.Update(ctx, o); err != nil {
		return nil, errors.Wrap(err, "save order")
	}
	return o, nil
}

// UpdateFulfillment moves the order to the given fulfillment status,
// appending a history entry with the optional note. On entering delivered it
// stamps the delivery time and bumps each product's total-sold counter;
// counter failures are logged for reconciliation, never rolled back.
func (s *Service) UpdateFulfillment(ctx context.Context, orderID string, to Status, note string) (*Order, error) {
	switch to {
	case StatusConfirmed, StatusProcessing, StatusShipped, StatusDelivered:
	default:
		return nil, &InvalidTransitionError{From: "", To: to}
	}

	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !CanTransition(o.Status, to) {
		return nil, &InvalidTransitionError{From: o.Status, To: to}
	}

	now := s.now()
	prev := o.Status
	o.Status = to
	for i := range o.Items {
		o.Items[i].Status = to
	}
	if to == StatusDelivered {
		o.DeliveredAt = &now
	}
	o.appendHistory(to, note, now)

	if err := s.orders.Update(ctx, o); err != nil {
		return nil, errors.Wrap(err, "save order")
	}

	if to == StatusDelivered {
		s.recordSold(ctx, o)
	}
	s.notify(ctx, func() error { return s.notifier.OrderStatusUpdated(ctx, o, prev) }, o.ID, "status updated")
	return o, nil
}

// recordSold bumps total-sold counters after delivery. Fire-and-forget: the
// delivered status is already committed.
func (s *Service) recordSold(ctx context.Context, o *Order) {
	lg := zctx.From(ctx)
	for _, item := range o.Items {
		if err := s.inventory.IncrementSold(ctx, item.ProductID, item.Quantity); err != nil {
			lg.Error("increment sold failed",
				zap.String("order_id", o.ID),
				zap.String("product_id", item.ProductID),
				zap.Error(err),
			)
		}
	}
}

// Cancel cancels a not-yet-delivered order and restores stock for every
// line item.
func (s *Service) Cancel(ctx context.Context, orderID, reason string) (*Order, error) {
	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.Status == StatusDelivered || o.Status == StatusCancelled {
		return nil, &InvalidTransitionError{From: o.Status, To: StatusCancelled}
	}

	now := s.now()
	prev := o.Status
	o.Status = StatusCancelled
	o.Cancelled = true
	o.CancelReason = reason
	o.CancelledAt = &now
	for i := range o.Items {
		o.Items[i].Status = StatusCancelled
	}
	o.appendHistory(StatusCancelled, reason, now)

	if err := s.orders.Update(ctx, o); err != nil {
		return nil, errors.Wrap(err, "save order")
	}

	s.restoreStock(ctx, o, o.Items)
	s.notify(ctx, func() error { return s.notifier.OrderStatusUpdated(ctx, o, prev) }, o.ID, "order cancelled")
	return o, nil
}

// RequestReturn opens the return sub-flow on a delivered order. Only valid
// within the configured window measured from the delivery timestamp.
func (s *Service) RequestReturn(ctx context.Context, orderID, reason string) (*Order, error) {
	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.Status != StatusDelivered || o.DeliveredAt == nil {
		return nil, &InvalidTransitionError{From: o.Status, To: StatusDelivered}
	}
	now := s.now()
	if now.Sub(*o.DeliveredAt) > s.cfg.ReturnWindow {
		return nil, &ReturnWindowExpiredError{DeliveredAt: *o.DeliveredAt, Window: s.cfg.ReturnWindow}
	}

	o.Returned = true
	o.ReturnReason = reason
	o.ReturnedAt = &now
	o.ReturnStatus = ReturnRequested
	o.appendHistory(o.Status, "return requested: "+reason, now)

	if err := s.orders.Update(ctx, o); err != nil {
		return nil, errors.Wrap(err, "save order")
	}
	return o, nil
}

// ResolveReturn approves or rejects a requested return.
func (s *Service) ResolveReturn(ctx context.Context, orderID string, approve bool, note string) (*Order, error) {
	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.ReturnStatus != ReturnRequested {
		return nil, &InvalidTransitionError{From: o.Status, To: o.Status}
	}
	if approve {
		o.ReturnStatus = ReturnApproved
	} else {
		o.ReturnStatus = ReturnRejected
	}
	o.appendHistory(o.Status, "return "+string(o.ReturnStatus)+": "+note, s.now())
	if err := s.orders.Update(ctx, o); err != nil {
		return nil, errors.Wrap(err, "save order")
	}
	return o, nil
}

// ApplyCoupon evaluates the coupon against the order, commits ledger usage,
// and only then saves the snapshot and recomputed totals onto the order.
// If the save fails the commit is released, so no half-applied state
// survives.
func (s *Service) ApplyCoupon(ctx context.Context, orderID, code string) (*Order, error) {
	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.Status != StatusPending {
		return nil, ErrOrderNotAmendable
	}
	if o.Coupon != nil {
		return nil, ErrCouponAlreadyApplied
	}

	if err := s.attachCoupon(ctx, o, code, s.now()); err != nil {
		return nil, err
	}

	if err := s.orders.Update(ctx, o); err != nil {
		s.releaseCoupon(ctx, o)
		return nil, errors.Wrap(err, "save order")
	}
	return o, nil
}

// attachCoupon runs evaluation, commits the ledger entry, and writes the
// snapshot and recomputed totals onto the in-memory order. The caller is
// responsible for persisting the order and for releasing the commit if that
// persist fails.
func (s *Service) attachCoupon(ctx context.Context, o *Order, code string, now time.Time) error {
	c, err := s.coupons.FindByCode(ctx, coupon.NormalizeCode(code))
	if err != nil {
		return err
	}
	usage, err := s.coupons.UserUsage(ctx, c.Code, o.UserID)
	if err != nil {
		return errors.Wrap(err, "load coupon usage")
	}

	items := make([]coupon.Item, len(o.Items))
	for i, li := range o.Items {
		items[i] = coupon.Item{
			ProductID:  li.ProductID,
			VariantSKU: li.VariantSKU,
			Category:   li.Category,
			Price:      li.UnitPrice,
			Quantity:   li.Quantity,
		}
	}

	eval, err := coupon.Evaluate(c, o.UserID, o.Subtotal, items, usage, now)
	if err != nil {
		return err
	}

	// Ledger first: the financially binding order write must never precede
	// the usage commit.
	if err := s.ledger.Commit(ctx, c, o.UserID, o.ID, eval.Discount); err != nil {
		return err
	}

	o.Coupon = &CouponSnapshot{
		CouponID:     c.ID,
		Code:         c.Code,
		DiscountType: c.DiscountType,
		Discount:     eval.Discount,
		FreeShipping: eval.FreeShipping,
		AppliedAt:    now,
	}
	o.applyTotals(ComputeTotals(o.Items, o.Coupon))
	return nil
}

// RemoveCoupon detaches the applied coupon, recomputes totals, and releases
// the user's ledger entry so the allowance is restored.
func (s *Service) RemoveCoupon(ctx context.Context, orderID string) (*Order, error) {
	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.Coupon == nil {
		return o, nil
	}
	if o.Status != StatusPending {
		return nil, ErrOrderNotAmendable
	}

	removed := *o.Coupon
	o.Coupon = nil
	o.applyTotals(ComputeTotals(o.Items, nil))

	if err := s.orders.Update(ctx, o); err != nil {
		return nil, errors.Wrap(err, "save order")
	}

	if err := s.coupons.ReleaseUsage(ctx, removed.Code, o.UserID, o.ID); err != nil {
		// The order write already landed; release failures are reconciled,
		// not rolled back.
		zctx.From(ctx).Error("release coupon usage failed",
			zap.String("order_id", o.ID),
			zap.String("coupon", removed.Code),
			zap.Error(err),
		)
	}
	return o, nil
}

// AttachShipment links an external waybill to the order so later tracking
// webhooks can be mapped back to it.
func (s *Service) AttachShipment(ctx context.Context, orderID, waybillID string) (*Order, error) {
	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	o.WaybillID = waybillID
	o.appendHistory(o.Status, "shipment created: "+waybillID, s.now())
	if err := s.orders.Update(ctx, o); err != nil {
		return nil, errors.Wrap(err, "save order")
	}
	return o, nil
}

// ApplyTrackingEvent feeds a logistics webhook into the state machine.
// Out-of-order events keep the terminal-most status: stale updates are
// logged and dropped, never rejected.
func (s *Service) ApplyTrackingEvent(ctx context.Context, waybillID string, event TrackingStatus, note string) (*Order, error) {
	o, err := s.orders.FindByWaybill(ctx, waybillID)
	if err != nil {
		return nil, err
	}
	lg := zctx.From(ctx)
	now := s.now()

	switch event {
	case TrackingReturned:
		return s.completeReturn(ctx, o, note, now)
	case TrackingDeliveryFailed:
		o.appendHistory(o.Status, "delivery attempt failed: "+note, now)
		if err := s.orders.Update(ctx, o); err != nil {
			return nil, errors.Wrap(err, "save order")
		}
		return o, nil
	}

	to, ok := event.OrderStatus()
	if !ok {
		lg.Warn("unknown tracking event",
			zap.String("waybill_id", waybillID),
			zap.String("event", string(event)),
		)
		return o, nil
	}
	if isStale(o.Status, to) {
		lg.Info("stale tracking event dropped",
			zap.String("order_id", o.ID),
			zap.String("current", string(o.Status)),
			zap.String("event", string(event)),
		)
		return o, nil
	}

	if to == StatusCancelled {
		return s.Cancel(ctx, o.ID, "shipment cancelled: "+note)
	}
	return s.UpdateFulfillment(ctx, o.ID, to, note)
}

// completeReturn closes an approved return once the carrier reports the
// package back, restoring stock for every line.
func (s *Service) completeReturn(ctx context.Context, o *Order, note string, now time.Time) (*Order, error) {
	if o.ReturnStatus != ReturnApproved {
		zctx.From(ctx).Warn("return event without approved return",
			zap.String("order_id", o.ID),
			zap.String("return_status", string(o.ReturnStatus)),
		)
		return o, nil
	}
	o.ReturnStatus = ReturnCompleted
	o.appendHistory(o.Status, "return completed: "+note, now)
	if err := s.orders.Update(ctx, o); err != nil {
		return nil, errors.Wrap(err, "save order")
	}
	s.restoreStock(ctx, o, o.Items)
	return o, nil
}

// releaseCoupon undoes a ledger commit during compensation, logging failures.
func (s *Service) releaseCoupon(ctx context.Context, o *Order) {
	if o.Coupon == nil {
		return
	}
	if err := s.coupons.ReleaseUsage(ctx, o.Coupon.Code, o.UserID, o.ID); err != nil {
		zctx.From(ctx).Error("release coupon usage failed",
			zap.String("order_id", o.ID),
			zap.String("coupon", o.Coupon.Code),
			zap.Error(err),
		)
	}
}

// notify runs a notification call and logs the failure. Notifications never
// block or roll back a transition.
func (s *Service) notify(ctx context.Context, fn func() error, orderID, what string) {
	if err := fn(); err != nil {
		zctx.From(ctx).Warn("notification failed",
			zap.String("order_id", orderID),
			zap.String("event", what),
			zap.Error(err),
		)
	}
}
