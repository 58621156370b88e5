package models

import "time"

const (
	PaymentCOD   = "cod"
	PaymentVNPay = "vnpay"
)

type Product struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Price    int64    `json:"price"`
	Stock    int      `json:"stock"`
	Hidden   bool     `json:"hidden"`
	Visible  bool     `json:"visible"`
	Images   []string `json:"images,omitempty"`
	Category string   `json:"category,omitempty"`
}

// Available reports whether the product may be sold in the given quantity.
func (p Product) Available(quantity int) bool {
	return p.Visible && !p.Hidden && p.Stock >= quantity && p.Stock > 0
}

type CartItem struct {
	ProductID string `json:"productId"`
	Name      string `json:"name"`
	Price     int64  `json:"price"`
	Quantity  int    `json:"quantity"`
	Image     string `json:"image,omitempty"`
}

type CustomerInfo struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
	Email   string `json:"email,omitempty"`
}

// CheckoutDraft is the transient form state of a single checkout session.
type CheckoutDraft struct {
	Customer       CustomerInfo
	Note           string
	PaymentMethod  string
	ShippingMethod string
}

type PrepareOrderRequest struct {
	Items          []CartItem   `json:"items"`
	Customer       CustomerInfo `json:"shippingInfo"`
	ShippingMethod string       `json:"shippingMethod"`
	ShippingFee    int64        `json:"shippingFee"`
	Note           string       `json:"note,omitempty"`
	Subtotal       int64        `json:"subtotal"`
	Total          int64        `json:"totalAmount"`
}

// PendingOrder is the backend's temporary order awaiting payment.
type PendingOrder struct {
	TxnRef    string       `json:"txnRef"`
	OrderID   string       `json:"tempOrderId,omitempty"`
	Items     []CartItem   `json:"items"`
	Customer  CustomerInfo `json:"shippingInfo"`
	Total     int64        `json:"totalAmount"`
	ExpiresAt time.Time    `json:"expiresAt"`
}

type PaymentURLRequest struct {
	TxnRef    string `json:"txnRef"`
	OrderID   string `json:"orderId,omitempty"`
	Amount    int64  `json:"amount"`
	OrderInfo string `json:"orderInfo"`
	ReturnURL string `json:"returnUrl,omitempty"`
}

type PlaceOrderRequest struct {
	Items          []CartItem   `json:"items"`
	Customer       CustomerInfo `json:"shippingInfo"`
	ShippingMethod string       `json:"shippingMethod"`
	ShippingFee    int64        `json:"shippingFee"`
	PaymentMethod  string       `json:"paymentMethod"`
	Note           string       `json:"note,omitempty"`
	Total          int64        `json:"totalAmount"`
}

type Order struct {
	ID            string       `json:"id"`
	UserID        string       `json:"userId"`
	Items         []CartItem   `json:"items"`
	Customer      CustomerInfo `json:"shippingInfo"`
	PaymentMethod string       `json:"paymentMethod"`
	Status        string       `json:"status"`
	Total         int64        `json:"totalAmount"`
	TxnRef        string       `json:"txnRef,omitempty"`
	CreatedAt     time.Time    `json:"createdAt"`
}

type User struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone,omitempty"`
	Address string `json:"address,omitempty"`
}

type AuthResult struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

// Envelope is the backend's response wrapper.
type Envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}
