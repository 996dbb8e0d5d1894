package order

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vendora/commerce-core/internal/domain/catalog"
	"github.com/vendora/commerce-core/internal/domain/coupon"
)

// --- Mock implementations ---

type mockOrderRepo struct {
	byID      map[string]*Order
	byWaybill map[string]*Order
	seq       int64
	createErr error
	updateErr error
	updates   int
}

func newMockOrderRepo(orders ...*Order) *mockOrderRepo {
	m := &mockOrderRepo{
		byID:      make(map[string]*Order),
		byWaybill: make(map[string]*Order),
	}
	for _, o := range orders {
		m.byID[o.ID] = o
		if o.WaybillID != "" {
			m.byWaybill[o.WaybillID] = o
		}
	}
	return m
}

func (m *mockOrderRepo) Create(_ context.Context, o *Order) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.byID[o.ID] = o
	return nil
}

func (m *mockOrderRepo) Get(_ context.Context, id string) (*Order, error) {
	o, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return o, nil
}

func (m *mockOrderRepo) Update(_ context.Context, o *Order) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	m.updates++
	m.byID[o.ID] = o
	return nil
}

func (m *mockOrderRepo) FindByWaybill(_ context.Context, waybillID string) (*Order, error) {
	o, ok := m.byWaybill[waybillID]
	if !ok {
		return nil, ErrNotFound
	}
	return o, nil
}

func (m *mockOrderRepo) NextSequence(_ context.Context, _ time.Time) (int64, error) {
	m.seq++
	return m.seq, nil
}

type mockCatalogRepo struct {
	byID map[string]catalog.Product
}

func newMockCatalog(products ...catalog.Product) *mockCatalogRepo {
	byID := make(map[string]catalog.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}
	return &mockCatalogRepo{byID: byID}
}

func (m *mockCatalogRepo) List(_ context.Context) ([]catalog.Product, error) { return nil, nil }

func (m *mockCatalogRepo) GetByID(_ context.Context, id string) (*catalog.Product, error) {
	p, ok := m.byID[id]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	return &p, nil
}

func (m *mockCatalogRepo) GetByIDs(_ context.Context, ids []string) ([]catalog.Product, error) {
	var out []catalog.Product
	for _, id := range ids {
		if p, ok := m.byID[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

type stockCall struct {
	productID string
	qty       int
	sku       string
}

type mockInventory struct {
	decreased    []stockCall
	increased    []stockCall
	sold         []stockCall
	decreaseErrs []error // consumed per call
	soldErr      error
}

func (m *mockInventory) DecreaseStock(_ context.Context, productID string, qty int, sku string) error {
	if len(m.decreaseErrs) > 0 {
		err := m.decreaseErrs[0]
		m.decreaseErrs = m.decreaseErrs[1:]
		if err != nil {
			return err
		}
	}
	m.decreased = append(m.decreased, stockCall{productID, qty, sku})
	return nil
}

func (m *mockInventory) IncreaseStock(_ context.Context, productID string, qty int, sku string) error {
	m.increased = append(m.increased, stockCall{productID, qty, sku})
	return nil
}

func (m *mockInventory) IncrementSold(_ context.Context, productID string, qty int) error {
	if m.soldErr != nil {
		return m.soldErr
	}
	m.sold = append(m.sold, stockCall{productID: productID, qty: qty})
	return nil
}

type mockCouponRepo struct {
	coupon.Repository

	byCode    map[string]*coupon.Coupon
	usage     *coupon.UserUsage
	committed []string
	released  []string
	commitErr error
}

func (m *mockCouponRepo) FindByCode(_ context.Context, code string) (*coupon.Coupon, error) {
	c, ok := m.byCode[code]
	if !ok {
		return nil, coupon.ErrNotFound
	}
	return c, nil
}

func (m *mockCouponRepo) UserUsage(_ context.Context, _, _ string) (*coupon.UserUsage, error) {
	return m.usage, nil
}

func (m *mockCouponRepo) CommitUsage(_ context.Context, c *coupon.Coupon, userID, orderRef string, _ decimal.Decimal, _ time.Time) error {
	if m.commitErr != nil {
		return m.commitErr
	}
	m.committed = append(m.committed, c.Code+"/"+userID)
	return nil
}

func (m *mockCouponRepo) ReleaseUsage(_ context.Context, code, userID, _ string) error {
	m.released = append(m.released, code+"/"+userID)
	return nil
}

type mockNotifier struct {
	confirmed int
	updated   int
	err       error
}

func (m *mockNotifier) OrderConfirmed(_ context.Context, _ *Order) error {
	m.confirmed++
	return m.err
}

func (m *mockNotifier) OrderStatusUpdated(_ context.Context, _ *Order, _ Status) error {
	m.updated++
	return m.err
}

// --- Helpers ---

var fixedNow = time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)

type fixture struct {
	svc       *Service
	orders    *mockOrderRepo
	catalog   *mockCatalogRepo
	coupons   *mockCouponRepo
	inventory *mockInventory
	notifier  *mockNotifier
}

func newFixture(t *testing.T, orders ...*Order) *fixture {
	t.Helper()
	f := &fixture{
		orders: newMockOrderRepo(orders...),
		catalog: newMockCatalog(
			catalog.Product{
				ID: "p1", Name: "Hardcover Notebook", Category: "stationery", SKU: "NB-01",
				Price: money("400.00"), ShippingCharge: money("40.00"), Stock: 100,
			},
			catalog.Product{
				ID: "p2", Name: "Fountain Pen", Category: "stationery", SKU: "FP-01",
				Price: money("200.00"), Stock: 100,
				Variants: []catalog.Variant{{SKU: "FP-01-BLUE", Price: money("220.00"), Stock: 10}},
			},
		),
		coupons:   &mockCouponRepo{byCode: map[string]*coupon.Coupon{}},
		inventory: &mockInventory{},
		notifier:  &mockNotifier{},
	}
	f.svc = NewService(
		f.orders, f.catalog, f.coupons, coupon.NewLedger(f.coupons),
		f.inventory, f.notifier,
		Config{NumberPrefix: "ORD", ReturnWindow: 7 * 24 * time.Hour},
	)
	f.svc.now = func() time.Time { return fixedNow }
	return f
}

func (f *fixture) addCoupon(c *coupon.Coupon) {
	f.coupons.byCode[c.Code] = c
}

func save20() *coupon.Coupon {
	return &coupon.Coupon{
		ID:             "c-1",
		Code:           "SAVE20",
		DiscountType:   coupon.DiscountPercentage,
		Value:          decimal.NewFromInt(20),
		MaxDiscount:    money("200.00"),
		MinOrderValue:  money("500.00"),
		MaxUsesPerUser: 1,
		ValidFrom:      fixedNow.Add(-24 * time.Hour),
		ValidUntil:     fixedNow.Add(24 * time.Hour),
		Active:         true,
	}
}

func pendingOrder(id string) *Order {
	items := []LineItem{
		{ProductID: "p1", UnitPrice: money("400.00"), Quantity: 2, ShippingCharge: money("40.00"), Status: StatusPending},
		{ProductID: "p2", UnitPrice: money("200.00"), Quantity: 1, Status: StatusPending},
	}
	o := &Order{
		ID:      id,
		Number:  "ORD-20260828-0001",
		UserID:  "u1",
		Items:   items,
		Status:  StatusPending,
		Payment: Payment{Method: PaymentGateway, Status: PaymentPending},
	}
	o.applyTotals(ComputeTotals(items, nil))
	return o
}

// --- Create ---

func TestCreateOrder(t *testing.T) {
	f := newFixture(t)

	o, err := f.svc.CreateOrder(context.Background(), CreateOrderRequest{
		UserID:        "u1",
		PaymentMethod: PaymentGateway,
		Items: []ItemRequest{
			{ProductID: "p1", Quantity: 2},
			{ProductID: "p2", VariantSKU: "FP-01-BLUE", Quantity: 1},
		},
	})

	require.NoError(t, err)
	assert.Equal(t, StatusPending, o.Status)
	assert.Equal(t, PaymentPending, o.Payment.Status)
	assert.Equal(t, "ORD-20260828-0001", o.Number)

	// Variant price captured, not the base product price.
	assert.True(t, money("220.00").Equal(o.Items[1].UnitPrice))
	assert.Equal(t, "FP-01-BLUE", o.Items[1].Snapshot.SKU)
	assert.Equal(t, "Hardcover Notebook", o.Items[0].Snapshot.Name)

	assert.True(t, money("1020.00").Equal(o.Subtotal))
	assert.True(t, money("1060.00").Equal(o.Total))

	require.Len(t, f.inventory.decreased, 2)
	assert.Equal(t, stockCall{"p1", 2, ""}, f.inventory.decreased[0])
	assert.Equal(t, stockCall{"p2", 1, "FP-01-BLUE"}, f.inventory.decreased[1])

	require.Len(t, o.History, 1)
	assert.Equal(t, StatusPending, o.History[0].Status)
}

func TestCreateOrder_EmptyItems(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.CreateOrder(context.Background(), CreateOrderRequest{UserID: "u1"})
	require.ErrorIs(t, err, ErrEmptyItems)
}

func TestCreateOrder_InvalidQuantity(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.CreateOrder(context.Background(), CreateOrderRequest{
		UserID: "u1",
		Items:  []ItemRequest{{ProductID: "p1", Quantity: 0}},
	})
	var iqErr *InvalidQuantityError
	require.ErrorAs(t, err, &iqErr)
	assert.Equal(t, "p1", iqErr.ProductID)
}

func TestCreateOrder_ProductNotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.CreateOrder(context.Background(), CreateOrderRequest{
		UserID: "u1",
		Items:  []ItemRequest{{ProductID: "missing", Quantity: 1}},
	})
	var pnfErr *ProductNotFoundError
	require.ErrorAs(t, err, &pnfErr)
	assert.Equal(t, "missing", pnfErr.ProductID)
}

func TestCreateOrder_InsufficientStock(t *testing.T) {
	f := newFixture(t)
	f.inventory.decreaseErrs = []error{nil, ErrInsufficientStock}

	_, err := f.svc.CreateOrder(context.Background(), CreateOrderRequest{
		UserID: "u1",
		Items: []ItemRequest{
			{ProductID: "p1", Quantity: 2},
			{ProductID: "p2", Quantity: 1},
		},
	})

	require.ErrorIs(t, err, ErrInsufficientStock)
	// The first line's reservation is returned.
	require.Len(t, f.inventory.increased, 1)
	assert.Equal(t, stockCall{"p1", 2, ""}, f.inventory.increased[0])
}

func TestCreateOrder_StockConflictRetriedOnce(t *testing.T) {
	f := newFixture(t)
	f.inventory.decreaseErrs = []error{ErrStockConflict, nil}

	o, err := f.svc.CreateOrder(context.Background(), CreateOrderRequest{
		UserID: "u1",
		Items:  []ItemRequest{{ProductID: "p1", Quantity: 1}},
	})

	require.NoError(t, err)
	assert.Equal(t, StatusPending, o.Status)
	require.Len(t, f.inventory.decreased, 1)
}

func TestCreateOrder_WithCoupon(t *testing.T) {
	f := newFixture(t)
	f.addCoupon(save20())

	o, err := f.svc.CreateOrder(context.Background(), CreateOrderRequest{
		UserID:     "u1",
		CouponCode: "save20",
		Items: []ItemRequest{
			{ProductID: "p1", Quantity: 2},
			{ProductID: "p2", Quantity: 1},
		},
	})

	require.NoError(t, err)
	require.NotNil(t, o.Coupon)
	assert.Equal(t, "SAVE20", o.Coupon.Code)
	assert.True(t, money("200.00").Equal(o.Discount))
	assert.True(t, money("840.00").Equal(o.Total)) // 1000 - 200 + 40 shipping
	assert.Equal(t, []string{"SAVE20/u1"}, f.coupons.committed)
}

func TestCreateOrder_CouponRejectedRestoresStock(t *testing.T) {
	f := newFixture(t)
	f.addCoupon(save20())

	_, err := f.svc.CreateOrder(context.Background(), CreateOrderRequest{
		UserID:     "u1",
		CouponCode: "SAVE20",
		Items:      []ItemRequest{{ProductID: "p2", Quantity: 1}}, // subtotal 200 < min 500
	})

	var eligErr *coupon.EligibilityError
	require.ErrorAs(t, err, &eligErr)
	assert.Equal(t, coupon.ReasonBelowMinimumOrderValue, eligErr.Reason)
	assert.Empty(t, f.coupons.committed)
	require.Len(t, f.inventory.increased, 1)
}

// --- Payment ---

func TestConfirmPayment(t *testing.T) {
	o := pendingOrder("o1")
	f := newFixture(t, o)

	got, err := f.svc.ConfirmPayment(context.Background(), "o1", "pay_123", "sig_abc")

	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, got.Status)
	assert.Equal(t, PaymentCompleted, got.Payment.Status)
	assert.Equal(t, "pay_123", got.Payment.GatewayPaymentID)
	require.NotNil(t, got.Payment.CompletedAt)
	assert.Equal(t, 1, f.notifier.confirmed)
}

func TestConfirmPayment_Idempotent(t *testing.T) {
	o := pendingOrder("o1")
	f := newFixture(t, o)

	_, err := f.svc.ConfirmPayment(context.Background(), "o1", "pay_123", "")
	require.NoError(t, err)
	updatesAfterFirst := f.orders.updates

	got, err := f.svc.ConfirmPayment(context.Background(), "o1", "pay_123", "")
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, got.Status)
	assert.Equal(t, updatesAfterFirst, f.orders.updates, "second confirmation must not rewrite the order")
}

func TestFailPayment(t *testing.T) {
	o := pendingOrder("o1")
	f := newFixture(t, o)

	got, err := f.svc.FailPayment(context.Background(), "o1", "card declined")

	require.NoError(t, err)
	assert.Equal(t, PaymentFailed, got.Payment.Status)
	assert.Equal(t, StatusPending, got.Status, "failed payment keeps the order pending for retry")
}

// --- Fulfillment ---

func TestUpdateFulfillment_Delivered(t *testing.T) {
	o := pendingOrder("o1")
	o.Status = StatusShipped
	f := newFixture(t, o)

	got, err := f.svc.UpdateFulfillment(context.Background(), "o1", StatusDelivered, "left at door")

	require.NoError(t, err)
	assert.Equal(t, StatusDelivered, got.Status)
	require.NotNil(t, got.DeliveredAt)
	assert.True(t, got.DeliveredAt.Equal(fixedNow))

	// Total-sold bumped per line quantity.
	require.Len(t, f.inventory.sold, 2)
	assert.Equal(t, 2, f.inventory.sold[0].qty)
	assert.Equal(t, 1, f.inventory.sold[1].qty)

	last := got.History[len(got.History)-1]
	assert.Equal(t, StatusDelivered, last.Status)
	assert.Equal(t, "left at door", last.Note)
}

func TestUpdateFulfillment_SoldCounterFailureDoesNotRollBack(t *testing.T) {
	o := pendingOrder("o1")
	o.Status = StatusShipped
	f := newFixture(t, o)
	f.inventory.soldErr = errors.New("catalog unavailable")

	got, err := f.svc.UpdateFulfillment(context.Background(), "o1", StatusDelivered, "")

	require.NoError(t, err)
	assert.Equal(t, StatusDelivered, got.Status)
}

func TestUpdateFulfillment_IllegalMove(t *testing.T) {
	o := pendingOrder("o1")
	f := newFixture(t, o)

	_, err := f.svc.UpdateFulfillment(context.Background(), "o1", StatusShipped, "")

	var itErr *InvalidTransitionError
	require.ErrorAs(t, err, &itErr)
	assert.Equal(t, StatusPending, itErr.From)
	assert.Equal(t, StatusShipped, itErr.To)
	assert.Equal(t, StatusPending, o.Status, "order status unchanged")
}

// --- Cancel ---

func TestCancel_ProcessingOrderRestoresStock(t *testing.T) {
	o := pendingOrder("o1")
	o.Status = StatusProcessing
	o.Items[0].Quantity = 3
	o.Items[1].Quantity = 1
	f := newFixture(t, o)

	got, err := f.svc.Cancel(context.Background(), "o1", "changed my mind")

	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, got.Status)
	assert.True(t, got.Cancelled)
	assert.Equal(t, "changed my mind", got.CancelReason)
	require.NotNil(t, got.CancelledAt)

	require.Len(t, f.inventory.increased, 2)
	assert.Equal(t, stockCall{"p1", 3, ""}, f.inventory.increased[0])
	assert.Equal(t, stockCall{"p2", 1, ""}, f.inventory.increased[1])
}

func TestCancel_DeliveredOrderRejected(t *testing.T) {
	o := pendingOrder("o1")
	o.Status = StatusDelivered
	f := newFixture(t, o)

	_, err := f.svc.Cancel(context.Background(), "o1", "too late")

	var itErr *InvalidTransitionError
	require.ErrorAs(t, err, &itErr)
	assert.Equal(t, StatusDelivered, itErr.From)
	assert.Equal(t, StatusDelivered, o.Status, "order status unchanged")
	assert.Empty(t, f.inventory.increased)
}

// --- Returns ---

func TestRequestReturn_WithinWindow(t *testing.T) {
	o := pendingOrder("o1")
	o.Status = StatusDelivered
	delivered := fixedNow.Add(-3 * 24 * time.Hour)
	o.DeliveredAt = &delivered
	f := newFixture(t, o)

	got, err := f.svc.RequestReturn(context.Background(), "o1", "wrong size")

	require.NoError(t, err)
	assert.True(t, got.Returned)
	assert.Equal(t, ReturnRequested, got.ReturnStatus)
	assert.Equal(t, StatusDelivered, got.Status, "main status untouched by return flow")
}

func TestRequestReturn_WindowExpired(t *testing.T) {
	o := pendingOrder("o1")
	o.Status = StatusDelivered
	delivered := fixedNow.Add(-8 * 24 * time.Hour) // window is 7 days
	o.DeliveredAt = &delivered
	f := newFixture(t, o)

	_, err := f.svc.RequestReturn(context.Background(), "o1", "wrong size")

	var rwErr *ReturnWindowExpiredError
	require.ErrorAs(t, err, &rwErr)
	assert.False(t, o.Returned)
}

func TestRequestReturn_NotDelivered(t *testing.T) {
	o := pendingOrder("o1")
	o.Status = StatusShipped
	f := newFixture(t, o)

	_, err := f.svc.RequestReturn(context.Background(), "o1", "early")

	var itErr *InvalidTransitionError
	require.ErrorAs(t, err, &itErr)
}

func TestResolveReturn(t *testing.T) {
	o := pendingOrder("o1")
	o.Status = StatusDelivered
	o.ReturnStatus = ReturnRequested
	f := newFixture(t, o)

	got, err := f.svc.ResolveReturn(context.Background(), "o1", true, "verified photos")
	require.NoError(t, err)
	assert.Equal(t, ReturnApproved, got.ReturnStatus)
}

// --- Coupons on existing orders ---

func TestApplyCoupon(t *testing.T) {
	o := pendingOrder("o1")
	f := newFixture(t, o)
	f.addCoupon(save20())
	before := o.Total

	got, err := f.svc.ApplyCoupon(context.Background(), "o1", "SAVE20")

	require.NoError(t, err)
	require.NotNil(t, got.Coupon)
	assert.True(t, money("200.00").Equal(got.Discount))
	assert.True(t, before.Sub(money("200.00")).Equal(got.Total))
	assert.Equal(t, []string{"SAVE20/u1"}, f.coupons.committed)
}

func TestApplyCoupon_SecondCouponRejected(t *testing.T) {
	o := pendingOrder("o1")
	o.Coupon = &CouponSnapshot{Code: "OTHER", Discount: money("50.00"), AppliedAt: fixedNow}
	f := newFixture(t, o)
	f.addCoupon(save20())

	_, err := f.svc.ApplyCoupon(context.Background(), "o1", "SAVE20")
	require.ErrorIs(t, err, ErrCouponAlreadyApplied)
	assert.Empty(t, f.coupons.committed)
}

func TestApplyCoupon_AfterPendingRejected(t *testing.T) {
	o := pendingOrder("o1")
	o.Status = StatusConfirmed
	f := newFixture(t, o)
	f.addCoupon(save20())

	_, err := f.svc.ApplyCoupon(context.Background(), "o1", "SAVE20")
	require.ErrorIs(t, err, ErrOrderNotAmendable)
}

func TestApplyCoupon_SaveFailureReleasesUsage(t *testing.T) {
	o := pendingOrder("o1")
	f := newFixture(t, o)
	f.addCoupon(save20())
	f.orders.updateErr = errors.New("db write failed")

	_, err := f.svc.ApplyCoupon(context.Background(), "o1", "SAVE20")

	require.Error(t, err)
	assert.Equal(t, []string{"SAVE20/u1"}, f.coupons.committed)
	assert.Equal(t, []string{"SAVE20/u1"}, f.coupons.released, "commit must be compensated when the save fails")
}

func TestRemoveCoupon_RestoresTotalsAndReleasesUsage(t *testing.T) {
	o := pendingOrder("o1")
	f := newFixture(t, o)
	f.addCoupon(save20())
	before := o.Total

	_, err := f.svc.ApplyCoupon(context.Background(), "o1", "SAVE20")
	require.NoError(t, err)

	got, err := f.svc.RemoveCoupon(context.Background(), "o1")
	require.NoError(t, err)

	assert.Nil(t, got.Coupon)
	assert.True(t, decimal.Zero.Equal(got.Discount))
	assert.True(t, before.Equal(got.Total), "removing the coupon restores the pre-application total")
	assert.Equal(t, []string{"SAVE20/u1"}, f.coupons.released)
}

func TestRemoveCoupon_NoCouponIsNoOp(t *testing.T) {
	o := pendingOrder("o1")
	f := newFixture(t, o)

	got, err := f.svc.RemoveCoupon(context.Background(), "o1")
	require.NoError(t, err)
	assert.Nil(t, got.Coupon)
	assert.Empty(t, f.coupons.released)
}

// --- Shipment tracking ---

func TestApplyTrackingEvent_Progression(t *testing.T) {
	o := pendingOrder("o1")
	o.Status = StatusConfirmed
	o.WaybillID = "WB123"
	f := newFixture(t, o)

	got, err := f.svc.ApplyTrackingEvent(context.Background(), "WB123", TrackingPicked, "picked up")
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, got.Status)

	got, err = f.svc.ApplyTrackingEvent(context.Background(), "WB123", TrackingInTransit, "")
	require.NoError(t, err)
	assert.Equal(t, StatusShipped, got.Status)

	got, err = f.svc.ApplyTrackingEvent(context.Background(), "WB123", TrackingDelivered, "")
	require.NoError(t, err)
	assert.Equal(t, StatusDelivered, got.Status)
	require.NotNil(t, got.DeliveredAt)
}

func TestApplyTrackingEvent_OutOfOrderKeepsTerminalMost(t *testing.T) {
	o := pendingOrder("o1")
	o.Status = StatusConfirmed
	o.WaybillID = "WB123"
	f := newFixture(t, o)

	// "delivered" arrives before "picked".
	got, err := f.svc.ApplyTrackingEvent(context.Background(), "WB123", TrackingDelivered, "")
	require.NoError(t, err)
	assert.Equal(t, StatusDelivered, got.Status)

	got, err = f.svc.ApplyTrackingEvent(context.Background(), "WB123", TrackingPicked, "late event")
	require.NoError(t, err)
	assert.Equal(t, StatusDelivered, got.Status, "stale event must not regress the status")
}

func TestApplyTrackingEvent_DeliveryFailedKeepsStatus(t *testing.T) {
	o := pendingOrder("o1")
	o.Status = StatusShipped
	o.WaybillID = "WB123"
	f := newFixture(t, o)

	got, err := f.svc.ApplyTrackingEvent(context.Background(), "WB123", TrackingDeliveryFailed, "nobody home")
	require.NoError(t, err)
	assert.Equal(t, StatusShipped, got.Status)
	last := got.History[len(got.History)-1]
	assert.Contains(t, last.Note, "nobody home")
}

func TestApplyTrackingEvent_ReturnedCompletesApprovedReturn(t *testing.T) {
	o := pendingOrder("o1")
	o.Status = StatusDelivered
	o.WaybillID = "WB123"
	o.ReturnStatus = ReturnApproved
	f := newFixture(t, o)

	got, err := f.svc.ApplyTrackingEvent(context.Background(), "WB123", TrackingReturned, "received at warehouse")
	require.NoError(t, err)
	assert.Equal(t, ReturnCompleted, got.ReturnStatus)
	require.Len(t, f.inventory.increased, 2, "completed return restores stock")
}

func TestApplyTrackingEvent_UnknownWaybill(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.ApplyTrackingEvent(context.Background(), "NOPE", TrackingPicked, "")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(StatusPending, StatusConfirmed))
	assert.True(t, CanTransition(StatusPending, StatusCancelled))
	assert.True(t, CanTransition(StatusShipped, StatusDelivered))
	assert.False(t, CanTransition(StatusDelivered, StatusCancelled))
	assert.False(t, CanTransition(StatusCancelled, StatusConfirmed))
	assert.False(t, CanTransition(StatusShipped, StatusPending))
}
