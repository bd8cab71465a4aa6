package shiprocket

import (
	"net/mail"
	"time"
)

// ShipmentInput is the order snapshot needed to book a shipment. Callers
// map their order record into this shape; the client owns the provider
// payload contract.
type ShipmentInput struct {
	OrderID   string
	OrderDate time.Time
	Recipient RecipientInput
	Items     []ItemInput
	COD       bool
	Subtotal  float64
	Comment   string
}

// RecipientInput is the recipient address for a shipment.
type RecipientInput struct {
	Name       string
	Line1      string
	Line2      string
	City       string
	State      string
	PostalCode string
	Country    string
	Phone      string
	Email      string
}

// ItemInput is one flattened line item. SKU and SellingPrice must already
// reflect the purchased variant when one exists.
type ItemInput struct {
	Name         string
	SKU          string
	Units        int
	SellingPrice float64
}

// buildCreateOrder is the single payload builder for adhoc orders.
// Billing comes from static configuration, shipping from the order's
// recipient. A recipient email is included only when it parses as a valid
// address; a malformed one is omitted rather than sent.
func (c *Client) buildCreateOrder(in *ShipmentInput) *CreateOrderRequest {
	billing := c.config.Billing

	req := &CreateOrderRequest{
		OrderID:        in.OrderID,
		OrderDate:      in.OrderDate.Format("2006-01-02 15:04"),
		PickupLocation: c.config.PickupLocation,
		Comment:        in.Comment,

		BillingCustomerName: billing.CustomerName,
		BillingLastName:     billing.LastName,
		BillingAddress:      billing.Address,
		BillingAddress2:     billing.Address2,
		BillingCity:         billing.City,
		BillingPincode:      billing.Pincode,
		BillingState:        billing.State,
		BillingCountry:      billing.Country,
		BillingEmail:        validEmail(billing.Email),
		BillingPhone:        billing.Phone,

		ShippingIsBilling:    false,
		ShippingCustomerName: in.Recipient.Name,
		ShippingAddress:      in.Recipient.Line1,
		ShippingAddress2:     in.Recipient.Line2,
		ShippingCity:         in.Recipient.City,
		ShippingPincode:      in.Recipient.PostalCode,
		ShippingState:        in.Recipient.State,
		ShippingCountry:      in.Recipient.Country,
		ShippingEmail:        validEmail(in.Recipient.Email),
		ShippingPhone:        in.Recipient.Phone,

		PaymentMethod: "Prepaid",
		SubTotal:      in.Subtotal,

		Length:  c.config.Parcel.LengthCM,
		Breadth: c.config.Parcel.BreadthCM,
		Height:  c.config.Parcel.HeightCM,
		Weight:  c.config.Parcel.WeightKG,
	}
	if in.COD {
		req.PaymentMethod = "COD"
	}

	req.OrderItems = make([]OrderItem, 0, len(in.Items))
	for _, item := range in.Items {
		req.OrderItems = append(req.OrderItems, OrderItem{
			Name:         item.Name,
			SKU:          item.SKU,
			Units:        item.Units,
			SellingPrice: item.SellingPrice,
		})
	}
	return req
}

// validEmail returns the address when it is syntactically valid, empty
// otherwise. Never send a malformed address to the provider.
func validEmail(addr string) string {
	if addr == "" {
		return ""
	}
	if _, err := mail.ParseAddress(addr); err != nil {
		return ""
	}
	return addr
}
