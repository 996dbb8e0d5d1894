package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/vendora/commerce-core/internal/domain/order"
)

type orderItemRequest struct {
	ProductID  string `json:"productId"`
	VariantSKU string `json:"variantSku,omitempty"`
	Quantity   int    `json:"quantity"`
}

type createOrderRequest struct {
	UserID        string             `json:"userId"`
	Items         []orderItemRequest `json:"items"`
	PaymentMethod string             `json:"paymentMethod"`
	CouponCode    string             `json:"couponCode,omitempty"`
}

type orderItemResponse struct {
	ProductID  string  `json:"productId"`
	VariantSKU string  `json:"variantSku,omitempty"`
	Name       string  `json:"name"`
	UnitPrice  float64 `json:"unitPrice"`
	Quantity   int     `json:"quantity"`
	LineTotal  float64 `json:"lineTotal"`
	Status     string  `json:"status"`
}

type couponResponse struct {
	Code         string  `json:"code"`
	Discount     float64 `json:"discount"`
	FreeShipping bool    `json:"freeShipping"`
}

type statusChangeResponse struct {
	Status    string    `json:"status"`
	Note      string    `json:"note,omitempty"`
	ChangedAt time.Time `json:"changedAt"`
}

type orderResponse struct {
	ID             string                 `json:"id"`
	Number         string                 `json:"number"`
	Status         string                 `json:"status"`
	PaymentStatus  string                 `json:"paymentStatus"`
	Items          []orderItemResponse    `json:"items"`
	Subtotal       float64                `json:"subtotal"`
	ShippingCharge float64                `json:"shippingCharge"`
	Discount       float64                `json:"discount"`
	Total          float64                `json:"total"`
	Coupon         *couponResponse        `json:"coupon,omitempty"`
	ReturnStatus   string                 `json:"returnStatus,omitempty"`
	DeliveredAt    *time.Time             `json:"deliveredAt,omitempty"`
	History        []statusChangeResponse `json:"history"`
}

func toOrderResponse(o *order.Order) orderResponse {
	resp := orderResponse{
		ID:             o.ID,
		Number:         o.Number,
		Status:         string(o.Status),
		PaymentStatus:  string(o.Payment.Status),
		Subtotal:       o.Subtotal.InexactFloat64(),
		ShippingCharge: o.ShippingCharge.InexactFloat64(),
		Discount:       o.Discount.InexactFloat64(),
		Total:          o.Total.InexactFloat64(),
		ReturnStatus:   string(o.ReturnStatus),
		DeliveredAt:    o.DeliveredAt,
	}
	for _, item := range o.Items {
		resp.Items = append(resp.Items, orderItemResponse{
			ProductID:  item.ProductID,
			VariantSKU: item.VariantSKU,
			Name:       item.Snapshot.Name,
			UnitPrice:  item.UnitPrice.InexactFloat64(),
			Quantity:   item.Quantity,
			LineTotal:  item.LineTotal.InexactFloat64(),
			Status:     string(item.Status),
		})
	}
	if o.Coupon != nil {
		resp.Coupon = &couponResponse{
			Code:         o.Coupon.Code,
			Discount:     o.Coupon.Discount.InexactFloat64(),
			FreeShipping: o.Coupon.FreeShipping,
		}
	}
	for _, ch := range o.History {
		resp.History = append(resp.History, statusChangeResponse{
			Status:    string(ch.Status),
			Note:      ch.Note,
			ChangedAt: ch.ChangedAt,
		})
	}
	return resp
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}

	method := order.PaymentMethod(req.PaymentMethod)
	switch method {
	case order.PaymentGateway, order.PaymentCashOnDelivery:
	case "":
		method = order.PaymentGateway
	default:
		writeError(w, http.StatusBadRequest, "unknown payment method")
		return
	}

	items := make([]order.ItemRequest, len(req.Items))
	for i, item := range req.Items {
		items[i] = order.ItemRequest{
			ProductID:  item.ProductID,
			VariantSKU: item.VariantSKU,
			Quantity:   item.Quantity,
		}
	}

	o, err := h.orderService.CreateOrder(r.Context(), order.CreateOrderRequest{
		UserID:        req.UserID,
		Items:         items,
		PaymentMethod: method,
		CouponCode:    req.CouponCode,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toOrderResponse(o))
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orderService.Get(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

type cancelOrderRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	var req cancelOrderRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	o, err := h.orderService.Cancel(r.Context(), chi.URLParam(r, "orderID"), req.Reason)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

type returnOrderRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) requestReturn(w http.ResponseWriter, r *http.Request) {
	var req returnOrderRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	o, err := h.orderService.RequestReturn(r.Context(), chi.URLParam(r, "orderID"), req.Reason)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

type resolveReturnRequest struct {
	Approve bool   `json:"approve"`
	Note    string `json:"note,omitempty"`
}

func (h *Handler) resolveReturn(w http.ResponseWriter, r *http.Request) {
	var req resolveReturnRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	o, err := h.orderService.ResolveReturn(r.Context(), chi.URLParam(r, "orderID"), req.Approve, req.Note)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

type applyCouponRequest struct {
	Code string `json:"code"`
}

func (h *Handler) applyCoupon(w http.ResponseWriter, r *http.Request) {
	var req applyCouponRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Code == "" {
		writeError(w, http.StatusBadRequest, "code is required")
		return
	}

	o, err := h.orderService.ApplyCoupon(r.Context(), chi.URLParam(r, "orderID"), req.Code)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

func (h *Handler) removeCoupon(w http.ResponseWriter, r *http.Request) {
	o, err := h.orderService.RemoveCoupon(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

type fulfillmentRequest struct {
	Status string `json:"status"`
	Note   string `json:"note,omitempty"`
}

func (h *Handler) updateFulfillment(w http.ResponseWriter, r *http.Request) {
	var req fulfillmentRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	o, err := h.orderService.UpdateFulfillment(r.Context(), chi.URLParam(r, "orderID"), order.Status(req.Status), req.Note)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

type attachShipmentRequest struct {
	WaybillID string `json:"waybillId"`
}

func (h *Handler) attachShipment(w http.ResponseWriter, r *http.Request) {
	var req attachShipmentRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.WaybillID == "" {
		writeError(w, http.StatusBadRequest, "waybillId is required")
		return
	}

	o, err := h.orderService.AttachShipment(r.Context(), chi.URLParam(r, "orderID"), req.WaybillID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}
