package order

// TrackingStatus enumerates the shipment events delivered by the logistics
// aggregator, keyed by waybill.
type TrackingStatus string

const (
	TrackingPicked         TrackingStatus = "picked"
	TrackingInTransit      TrackingStatus = "in_transit"
	TrackingOutForDelivery TrackingStatus = "out_for_delivery"
	TrackingDelivered      TrackingStatus = "delivered"
	TrackingCancelled      TrackingStatus = "cancelled"
	TrackingReturned       TrackingStatus = "returned"
	TrackingDeliveryFailed TrackingStatus = "delivery_failed"
)

// trackingToStatus maps shipment events onto order statuses. Events absent
// from the map (returned, delivery_failed) carry no main-status change and
// are handled separately by the service.
var trackingToStatus = map[TrackingStatus]Status{
	TrackingPicked:         StatusProcessing,
	TrackingInTransit:      StatusShipped,
	TrackingOutForDelivery: StatusShipped,
	TrackingDelivered:      StatusDelivered,
	TrackingCancelled:      StatusCancelled,
}

// OrderStatus returns the order status a tracking event maps to, and whether
// such a mapping exists.
func (t TrackingStatus) OrderStatus() (Status, bool) {
	s, ok := trackingToStatus[t]
	return s, ok
}

// isStale reports whether applying next on top of current would move the
// order backwards. Webhooks can arrive out of order; the policy is to keep
// the terminal-most status seen so far and drop stale intermediates.
func isStale(current, next Status) bool {
	return statusRank[next] <= statusRank[current]
}
