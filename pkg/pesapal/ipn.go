package pesapal

import "net/url"

// Notification is an IPN delivery, sent either as query params (GET) or a
// JSON body (POST).
type Notification struct {
	OrderTrackingID        string `json:"OrderTrackingId"`
	OrderMerchantReference string `json:"OrderMerchantReference"`
	OrderNotificationType  string `json:"OrderNotificationType"`
}

// NotificationFromQuery reads an IPN from GET query params.
func NotificationFromQuery(values url.Values) Notification {
	return Notification{
		OrderTrackingID:        values.Get("OrderTrackingId"),
		OrderMerchantReference: values.Get("OrderMerchantReference"),
		OrderNotificationType:  values.Get("OrderNotificationType"),
	}
}

// Acknowledgement is the body Pesapal expects back from the IPN URL.
type Acknowledgement struct {
	OrderNotificationType  string `json:"orderNotificationType"`
	OrderTrackingID        string `json:"orderTrackingId"`
	OrderMerchantReference string `json:"orderMerchantReference"`
	Status                 int    `json:"status"`
}

// Ack builds the acknowledgement; status 200 means processed, 500 asks
// Pesapal to retry.
func (n Notification) Ack(status int) Acknowledgement {
	return Acknowledgement{
		OrderNotificationType:  n.OrderNotificationType,
		OrderTrackingID:        n.OrderTrackingID,
		OrderMerchantReference: n.OrderMerchantReference,
		Status:                 status,
	}
}
