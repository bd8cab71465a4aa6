package webhook

import (
	"strings"

	"github.com/parcelpoint/fulfillment/internal/order"
)

// statusRule maps a family of courier status keywords to a local order
// status. Courier feeds are free text ("Out For Delivery", "RTO
// Initiated", "Shipment Picked Up"), so matching is case-insensitive
// substring search.
type statusRule struct {
	keywords []string
	status   order.Status
}

// statusRules is evaluated in order and the first hit wins. Longer,
// more specific phrases sit before the generic ones: "out for delivery"
// contains "deliver", and "rto delivered" must resolve to a return, not
// a delivery.
var statusRules = []statusRule{
	{[]string{"out for delivery"}, order.StatusOutForDelivery},
	{[]string{"rto", "return"}, order.StatusReturned},
	{[]string{"deliver"}, order.StatusDelivered},
	{[]string{"cancel"}, order.StatusCancelled},
	{[]string{"pick"}, order.StatusInTransit},
	{[]string{"transit", "ship"}, order.StatusInTransit},
}

// MapCourierStatus resolves a raw courier status phrase to an order
// status. The second return is false when no rule matches.
func MapCourierStatus(raw string) (order.Status, bool) {
	needle := strings.ToLower(strings.TrimSpace(raw))
	if needle == "" {
		return "", false
	}
	for _, rule := range statusRules {
		for _, kw := range rule.keywords {
			if strings.Contains(needle, kw) {
				return rule.status, true
			}
		}
	}
	return "", false
}
