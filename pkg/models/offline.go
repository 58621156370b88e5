package models

import "time"

const OfflineTypeVNPaySuccess = "vnpay_success"

type OfflineStatus string

const (
	OfflinePendingBackend OfflineStatus = "pending_backend"
	OfflineCompleted      OfflineStatus = "completed"
	OfflineExpired        OfflineStatus = "expired"
)

// OfflineOrder is a gateway-confirmed payment whose backend order creation
// has not been confirmed yet.
type OfflineOrder struct {
	ID                 string            `json:"id"`
	Type               string            `json:"type"`
	Timestamp          time.Time         `json:"timestamp"`
	CallbackParameters map[string]string `json:"callbackParameters"`
	OrderDetails       *OrderDetails     `json:"orderDetails,omitempty"`
	Status             OfflineStatus     `json:"status"`
	Attempts           int               `json:"attempts"`
	LastAttempt        *time.Time        `json:"lastAttempt,omitempty"`
	LastError          string            `json:"lastError,omitempty"`
	CompletedAt        *time.Time        `json:"completedAt,omitempty"`
	OrderID            string            `json:"orderId,omitempty"`
}

// OrderDetails is the client-side snapshot kept alongside an offline order.
type OrderDetails struct {
	TxnRef         string       `json:"txnRef"`
	Items          []CartItem   `json:"items"`
	Customer       CustomerInfo `json:"shippingInfo"`
	ShippingMethod string       `json:"shippingMethod"`
	Total          int64        `json:"totalAmount"`
}

func (o OfflineOrder) Terminal() bool {
	return o.Status == OfflineCompleted || o.Status == OfflineExpired
}
