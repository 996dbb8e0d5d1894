package handler

import (
	"io"
	"net/http"

	"github.com/go-faster/jx"

	"github.com/vendora/commerce-core/internal/domain/order"
)

// Webhook payloads come from external gateways whose schemas drift and carry
// fields we do not care about, so they are decoded field by field instead of
// into rigid structs.

type paymentEvent struct {
	Event     string
	OrderID   string
	PaymentID string
	Signature string
	Reason    string
}

func decodePaymentEvent(data []byte) (paymentEvent, error) {
	var ev paymentEvent
	d := jx.DecodeBytes(data)
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "event":
			ev.Event, err = d.Str()
		case "orderId":
			ev.OrderID, err = d.Str()
		case "paymentId":
			ev.PaymentID, err = d.Str()
		case "signature":
			ev.Signature, err = d.Str()
		case "reason":
			ev.Reason, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	})
	return ev, err
}

const (
	paymentCaptured = "payment.captured"
	paymentFailed   = "payment.failed"
)

func (h *Handler) paymentWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "reading body")
		return
	}
	ev, err := decodePaymentEvent(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if ev.OrderID == "" {
		writeError(w, http.StatusBadRequest, "orderId is required")
		return
	}

	switch ev.Event {
	case paymentCaptured:
		_, err = h.orderService.ConfirmPayment(r.Context(), ev.OrderID, ev.PaymentID, ev.Signature)
	case paymentFailed:
		_, err = h.orderService.FailPayment(r.Context(), ev.OrderID, ev.Reason)
	default:
		writeError(w, http.StatusBadRequest, "unknown event")
		return
	}
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "processed"})
}

type shipmentEvent struct {
	WaybillID string
	Status    string
	Remark    string
}

func decodeShipmentEvent(data []byte) (shipmentEvent, error) {
	var ev shipmentEvent
	d := jx.DecodeBytes(data)
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "waybillId":
			ev.WaybillID, err = d.Str()
		case "status":
			ev.Status, err = d.Str()
		case "remark":
			ev.Remark, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	})
	return ev, err
}

func (h *Handler) shipmentWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "reading body")
		return
	}
	ev, err := decodeShipmentEvent(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if ev.WaybillID == "" || ev.Status == "" {
		writeError(w, http.StatusBadRequest, "waybillId and status are required")
		return
	}

	if _, err := h.orderService.ApplyTrackingEvent(r.Context(), ev.WaybillID, order.TrackingStatus(ev.Status), ev.Remark); err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "processed"})
}
