package api

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"storefront-checkout/pkg/models"
)

// The backend is loose about field names and types. The DTOs and to*
// functions below are the only place that looseness is tolerated.

type flexInt struct {
	v     int64
	valid bool
}

func (f *flexInt) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		return nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		f.v, f.valid = n, true
		return nil
	}
	fl, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	f.v, f.valid = int64(fl), true
	return nil
}

type productDTO struct {
	MongoID      string          `json:"_id"`
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Price        flexInt         `json:"price"`
	Stock        *flexInt        `json:"stock"`
	CountInStock *flexInt        `json:"countInStock"`
	IsHidden     *bool           `json:"isHidden"`
	IsVisible    *bool           `json:"isVisible"`
	Images       []string        `json:"images"`
	Image        string          `json:"image"`
	Category     json.RawMessage `json:"category"`
}

func toProduct(d productDTO) models.Product {
	p := models.Product{
		ID:      firstNonEmpty(d.MongoID, d.ID),
		Name:    d.Name,
		Price:   d.Price.v,
		Visible: true,
		Images:  d.Images,
	}
	switch {
	case d.Stock != nil && d.Stock.valid:
		p.Stock = int(d.Stock.v)
	case d.CountInStock != nil && d.CountInStock.valid:
		p.Stock = int(d.CountInStock.v)
	}
	if d.IsHidden != nil {
		p.Hidden = *d.IsHidden
	}
	if d.IsVisible != nil {
		p.Visible = *d.IsVisible
	}
	if len(p.Images) == 0 && d.Image != "" {
		p.Images = []string{d.Image}
	}
	p.Category = nameOrString(d.Category)
	return p
}

// cartItemDTO accepts productId either as an id string or a populated product.
type cartItemDTO struct {
	ProductID json.RawMessage `json:"productId"`
	Product   *productDTO     `json:"product"`
	Name      string          `json:"name"`
	Price     flexInt         `json:"price"`
	Quantity  flexInt         `json:"quantity"`
	Image     string          `json:"image"`
}

func toCartItem(d cartItemDTO) models.CartItem {
	item := models.CartItem{
		Name:     d.Name,
		Price:    d.Price.v,
		Quantity: int(d.Quantity.v),
		Image:    d.Image,
	}

	var prod *productDTO
	var id string
	if err := json.Unmarshal(d.ProductID, &id); err != nil && hasData(d.ProductID) {
		var embedded productDTO
		if json.Unmarshal(d.ProductID, &embedded) == nil {
			prod = &embedded
		}
	}
	if prod == nil {
		prod = d.Product
	}
	if prod != nil {
		p := toProduct(*prod)
		id = firstNonEmpty(id, p.ID)
		item.Name = firstNonEmpty(item.Name, p.Name)
		if !d.Price.valid {
			item.Price = p.Price
		}
		if item.Image == "" && len(p.Images) > 0 {
			item.Image = p.Images[0]
		}
	}
	item.ProductID = id
	if item.Quantity < 1 {
		item.Quantity = 1
	}
	return item
}

type customerDTO struct {
	Name     string `json:"name"`
	FullName string `json:"fullName"`
	Phone    string `json:"phone"`
	Address  string `json:"address"`
	Email    string `json:"email"`
}

func toCustomer(d customerDTO) models.CustomerInfo {
	return models.CustomerInfo{
		Name:    firstNonEmpty(d.Name, d.FullName),
		Phone:   d.Phone,
		Address: d.Address,
		Email:   d.Email,
	}
}

type orderDTO struct {
	MongoID       string          `json:"_id"`
	ID            string          `json:"id"`
	OrderID       string          `json:"orderId"`
	UserID        json.RawMessage `json:"userId"`
	Items         []cartItemDTO   `json:"items"`
	Products      []cartItemDTO   `json:"products"`
	ShippingInfo  customerDTO     `json:"shippingInfo"`
	PaymentMethod string          `json:"paymentMethod"`
	Status        string          `json:"status"`
	OrderStatus   string          `json:"orderStatus"`
	TotalAmount   flexInt         `json:"totalAmount"`
	Total         flexInt         `json:"total"`
	TxnRef        string          `json:"txnRef"`
	VnpTxnRef     string          `json:"vnp_TxnRef"`
	CreatedAt     string          `json:"createdAt"`
}

func toOrder(d orderDTO) models.Order {
	o := models.Order{
		ID:            firstNonEmpty(d.MongoID, d.ID, d.OrderID),
		UserID:        idOrString(d.UserID),
		Customer:      toCustomer(d.ShippingInfo),
		PaymentMethod: strings.ToLower(d.PaymentMethod),
		Status:        firstNonEmpty(d.Status, d.OrderStatus, "pending"),
		TxnRef:        firstNonEmpty(d.TxnRef, d.VnpTxnRef),
	}
	if d.TotalAmount.valid {
		o.Total = d.TotalAmount.v
	} else {
		o.Total = d.Total.v
	}
	items := d.Items
	if len(items) == 0 {
		items = d.Products
	}
	for _, it := range items {
		o.Items = append(o.Items, toCartItem(it))
	}
	if t, err := time.Parse(time.RFC3339, d.CreatedAt); err == nil {
		o.CreatedAt = t
	}
	return o
}

type pendingDTO struct {
	TxnRef      string  `json:"txnRef"`
	VnpTxnRef   string  `json:"vnp_TxnRef"`
	OrderID     string  `json:"orderId"`
	TempOrderID string  `json:"tempOrderId"`
	TotalAmount flexInt `json:"totalAmount"`
	Amount      flexInt `json:"amount"`
	ExpiresAt   string  `json:"expiresAt"`
}

func toPendingOrder(d pendingDTO, req models.PrepareOrderRequest) models.PendingOrder {
	p := models.PendingOrder{
		TxnRef:   firstNonEmpty(d.TxnRef, d.VnpTxnRef, d.TempOrderID, d.OrderID),
		OrderID:  firstNonEmpty(d.TempOrderID, d.OrderID),
		Items:    req.Items,
		Customer: req.Customer,
		Total:    req.Total,
	}
	switch {
	case d.TotalAmount.valid:
		p.Total = d.TotalAmount.v
	case d.Amount.valid:
		p.Total = d.Amount.v
	}
	if t, err := time.Parse(time.RFC3339, d.ExpiresAt); err == nil {
		p.ExpiresAt = t
	}
	return p
}

type userDTO struct {
	MongoID string `json:"_id"`
	ID      string `json:"id"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
}

func toUser(d userDTO) models.User {
	return models.User{
		ID:      firstNonEmpty(d.MongoID, d.ID),
		Name:    d.Name,
		Email:   d.Email,
		Phone:   d.Phone,
		Address: d.Address,
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// idOrString reads a reference that is either an id string or an embedded
// document with _id/id.
func idOrString(raw json.RawMessage) string {
	if !hasData(raw) {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	var doc struct {
		MongoID string `json:"_id"`
		ID      string `json:"id"`
	}
	if json.Unmarshal(raw, &doc) == nil {
		return firstNonEmpty(doc.MongoID, doc.ID)
	}
	return ""
}

func nameOrString(raw json.RawMessage) string {
	if !hasData(raw) {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	var doc struct {
		Name string `json:"name"`
	}
	if json.Unmarshal(raw, &doc) == nil {
		return doc.Name
	}
	return ""
}
