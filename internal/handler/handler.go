// Package handler exposes the HTTP API: the storefront surface for catalog,
// checkout and orders, the admin surface for coupon management and
// fulfillment, and the webhook endpoints for payment and shipment events.
package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/vendora/commerce-core/internal/domain/auth"
	"github.com/vendora/commerce-core/internal/domain/catalog"
	"github.com/vendora/commerce-core/internal/domain/coupon"
	"github.com/vendora/commerce-core/internal/domain/order"
)

// Config holds non-dependency configuration for the Handler.
type Config struct {
	// ImageBaseURL is prepended to relative image paths in product responses.
	// When empty, image paths are returned as stored.
	ImageBaseURL string
	// APIKeyPepper is the HMAC pepper for admin and webhook authentication.
	APIKeyPepper []byte
}

// Handler wires the HTTP routes to the domain services.
type Handler struct {
	products     catalog.Repository
	coupons      coupon.Repository
	ledger       *coupon.Ledger
	orderService *order.Service
	apikeys      auth.Repository
	cfg          Config
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(
	cfg Config,
	products catalog.Repository,
	coupons coupon.Repository,
	ledger *coupon.Ledger,
	orderService *order.Service,
	apikeys auth.Repository,
) *Handler {
	return &Handler{
		products:     products,
		coupons:      coupons,
		ledger:       ledger,
		orderService: orderService,
		apikeys:      apikeys,
		cfg:          cfg,
	}
}

// Routes builds the router. Admin routes require the "admin" scope, webhook
// routes the "webhook" scope.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/products", h.listProducts)
	r.Get("/products/{productID}", h.getProduct)

	r.Get("/coupons", h.listUsableCoupons)

	r.Route("/orders", func(r chi.Router) {
		r.Post("/", h.createOrder)
		r.Get("/{orderID}", h.getOrder)
		r.Post("/{orderID}/cancel", h.cancelOrder)
		r.Post("/{orderID}/return", h.requestReturn)
		r.Put("/{orderID}/coupon", h.applyCoupon)
		r.Delete("/{orderID}/coupon", h.removeCoupon)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(APIKeyAuth(h.apikeys, h.cfg.APIKeyPepper, auth.ScopeAdmin))
		r.Post("/coupons", h.createCoupon)
		r.Put("/coupons/{code}", h.updateCoupon)
		r.Delete("/coupons/{code}", h.deactivateCoupon)
		r.Get("/coupons/{code}/usage", h.couponUsage)
		r.Post("/orders/{orderID}/fulfillment", h.updateFulfillment)
		r.Post("/orders/{orderID}/shipment", h.attachShipment)
		r.Post("/orders/{orderID}/return/resolve", h.resolveReturn)
	})

	r.Route("/webhooks", func(r chi.Router) {
		r.Use(APIKeyAuth(h.apikeys, h.cfg.APIKeyPepper, auth.ScopeWebhook))
		r.Post("/payment", h.paymentWebhook)
		r.Post("/shipment", h.shipmentWebhook)
	})

	return r
}

type errorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Reason  string `json:"reason,omitempty"`
	Field   string `json:"field,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, errorResponse{Code: code, Message: message})
}

// writeDomainError maps domain errors onto HTTP statuses. Anything unmapped
// is logged and reported as a plain 500.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		eligErr   *coupon.EligibilityError
		valErr    *coupon.ValidationError
		transErr  *order.InvalidTransitionError
		windowErr *order.ReturnWindowExpiredError
		qtyErr    *order.InvalidQuantityError
		pnfErr    *order.ProductNotFoundError
	)

	switch {
	case errors.As(err, &eligErr):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{
			Code:    http.StatusUnprocessableEntity,
			Message: eligErr.Message,
			Reason:  string(eligErr.Reason),
		})
	case errors.As(err, &valErr):
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Code:    http.StatusBadRequest,
			Message: valErr.Message,
			Field:   valErr.Field,
		})
	case errors.As(err, &transErr):
		writeError(w, http.StatusConflict, transErr.Error())
	case errors.As(err, &windowErr):
		writeError(w, http.StatusUnprocessableEntity, windowErr.Error())
	case errors.As(err, &qtyErr), errors.As(err, &pnfErr):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, order.ErrEmptyItems):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, order.ErrCouponAlreadyApplied),
		errors.Is(err, order.ErrOrderNotAmendable),
		errors.Is(err, order.ErrInsufficientStock),
		errors.Is(err, coupon.ErrGlobalLimitReached),
		errors.Is(err, coupon.ErrUserLimitReached):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, order.ErrNotFound),
		errors.Is(err, coupon.ErrNotFound),
		errors.Is(err, catalog.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		zctx.From(r.Context()).Error("request failed",
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func decodeBody(r *http.Request, v any) error {
	defer r.Body.Close() //nolint:errcheck
	return json.NewDecoder(r.Body).Decode(v)
}
