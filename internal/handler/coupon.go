package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/vendora/commerce-core/internal/domain/coupon"
)

type couponRequest struct {
	Code                 string    `json:"code"`
	Description          string    `json:"description,omitempty"`
	DiscountType         string    `json:"discountType"`
	Value                float64   `json:"value"`
	MaxDiscount          float64   `json:"maxDiscount,omitempty"`
	MinOrderValue        float64   `json:"minOrderValue,omitempty"`
	MaxUses              int       `json:"maxUses,omitempty"`
	MaxUsesPerUser       *int      `json:"maxUsesPerUser,omitempty"`
	ValidFrom            time.Time `json:"validFrom"`
	ValidUntil           time.Time `json:"validUntil"`
	ApplicableProducts   []string  `json:"applicableProducts,omitempty"`
	ApplicableCategories []string  `json:"applicableCategories,omitempty"`
	ApplicableUsers      []string  `json:"applicableUsers,omitempty"`
	ExcludedProducts     []string  `json:"excludedProducts,omitempty"`
	FreeShipping         bool      `json:"freeShipping,omitempty"`
	Combinable           bool      `json:"combinable,omitempty"`
}

func (req *couponRequest) toDomain(now time.Time) *coupon.Coupon {
	c := &coupon.Coupon{
		Code:                 coupon.NormalizeCode(req.Code),
		Description:          req.Description,
		DiscountType:         coupon.DiscountType(req.DiscountType),
		Value:                decimal.NewFromFloat(req.Value),
		MaxDiscount:          decimal.NewFromFloat(req.MaxDiscount),
		MinOrderValue:        decimal.NewFromFloat(req.MinOrderValue),
		MaxUses:              req.MaxUses,
		MaxUsesPerUser:       coupon.DefaultPerUserCap,
		ValidFrom:            req.ValidFrom,
		ValidUntil:           req.ValidUntil,
		Active:               true,
		ApplicableProducts:   req.ApplicableProducts,
		ApplicableCategories: req.ApplicableCategories,
		ApplicableUsers:      req.ApplicableUsers,
		ExcludedProducts:     req.ExcludedProducts,
		FreeShipping:         req.FreeShipping,
		Combinable:           req.Combinable,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if req.MaxUsesPerUser != nil {
		c.MaxUsesPerUser = *req.MaxUsesPerUser
	}
	return c
}

type couponSummary struct {
	Code          string    `json:"code"`
	Description   string    `json:"description,omitempty"`
	DiscountType  string    `json:"discountType"`
	Value         float64   `json:"value"`
	MaxDiscount   float64   `json:"maxDiscount,omitempty"`
	MinOrderValue float64   `json:"minOrderValue,omitempty"`
	FreeShipping  bool      `json:"freeShipping,omitempty"`
	ValidUntil    time.Time `json:"validUntil"`
	Status        string    `json:"status"`
}

func toCouponSummary(c coupon.Coupon, now time.Time) couponSummary {
	return couponSummary{
		Code:          c.Code,
		Description:   c.Description,
		DiscountType:  string(c.DiscountType),
		Value:         c.Value.InexactFloat64(),
		MaxDiscount:   c.MaxDiscount.InexactFloat64(),
		MinOrderValue: c.MinOrderValue.InexactFloat64(),
		FreeShipping:  c.FreeShipping,
		ValidUntil:    c.ValidUntil,
		Status:        string(c.StatusAt(now)),
	}
}

// listUsableCoupons is the public discovery endpoint: only coupons a customer
// could currently apply are returned.
func (h *Handler) listUsableCoupons(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	coupons, err := h.coupons.ListUsable(r.Context(), now)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	resp := make([]couponSummary, len(coupons))
	for i, c := range coupons {
		resp[i] = toCouponSummary(c, now)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) createCoupon(w http.ResponseWriter, r *http.Request) {
	var req couponRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	now := time.Now()
	c := req.toDomain(now)
	c.ID = uuid.New().String()
	if err := c.Validate(now); err != nil {
		writeDomainError(w, r, err)
		return
	}

	if err := h.coupons.Create(r.Context(), c); err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCouponSummary(*c, now))
}

func (h *Handler) updateCoupon(w http.ResponseWriter, r *http.Request) {
	var req couponRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	now := time.Now()
	c := req.toDomain(now)
	c.Code = coupon.NormalizeCode(chi.URLParam(r, "code"))
	if err := c.Validate(now); err != nil {
		writeDomainError(w, r, err)
		return
	}

	if err := h.coupons.Update(r.Context(), c); err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCouponSummary(*c, now))
}

func (h *Handler) deactivateCoupon(w http.ResponseWriter, r *http.Request) {
	code := coupon.NormalizeCode(chi.URLParam(r, "code"))
	if err := h.coupons.Deactivate(r.Context(), code); err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type usageRecordResponse struct {
	OrderRef string    `json:"orderRef"`
	Discount float64   `json:"discount"`
	UsedAt   time.Time `json:"usedAt"`
	Released bool      `json:"released,omitempty"`
}

type usageResponse struct {
	Code       string                `json:"code"`
	UserID     string                `json:"userId"`
	Used       int                   `json:"used"`
	Remaining  int                   `json:"remaining"`
	Unlimited  bool                  `json:"unlimited,omitempty"`
	LastUsedAt *time.Time            `json:"lastUsedAt,omitempty"`
	History    []usageRecordResponse `json:"history,omitempty"`
}

// couponUsage reports a single user's ledger slice for a coupon.
func (h *Handler) couponUsage(w http.ResponseWriter, r *http.Request) {
	code := coupon.NormalizeCode(chi.URLParam(r, "code"))
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "userId query parameter is required")
		return
	}

	c, err := h.coupons.FindByCode(r.Context(), code)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	usage, err := h.ledger.Query(r.Context(), c, userID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	resp := usageResponse{
		Code:       c.Code,
		UserID:     userID,
		Used:       usage.Used,
		Remaining:  usage.Remaining,
		Unlimited:  usage.Unlimited,
		LastUsedAt: usage.LastUsedAt,
	}
	for _, rec := range usage.History {
		resp.History = append(resp.History, usageRecordResponse{
			OrderRef: rec.OrderRef,
			Discount: rec.Discount.InexactFloat64(),
			UsedAt:   rec.UsedAt,
			Released: rec.Released,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}
