package checkout

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"storefront-checkout/pkg/api"
	"storefront-checkout/pkg/cart"
	"storefront-checkout/pkg/models"
)

type Catalog interface {
	GetProduct(ctx context.Context, id string) (models.Product, error)
}

type OrderBackend interface {
	PrepareVNPayOrder(ctx context.Context, req models.PrepareOrderRequest) (models.PendingOrder, error)
	CreatePaymentURL(ctx context.Context, req models.PaymentURLRequest) (string, error)
}

// Preparer creates the server-side pending order and obtains the gateway
// URL for it. It never mutates the cart.
type Preparer struct {
	catalog       Catalog
	backend       OrderBackend
	returnURL     string
	allowInsecure bool
}

type PreparerOptions struct {
	ReturnURL string
	// AllowInsecure accepts plain http payment URLs, for local simulators.
	AllowInsecure bool
}

func NewPreparer(catalog Catalog, backend OrderBackend, opts PreparerOptions) *Preparer {
	return &Preparer{
		catalog:       catalog,
		backend:       backend,
		returnURL:     opts.ReturnURL,
		allowInsecure: opts.AllowInsecure,
	}
}

// ValidateAvailability checks every line against the catalog. Any unavailable
// line rejects the whole cart; the error lists every offending line.
func (p *Preparer) ValidateAvailability(ctx context.Context, items []models.CartItem) error {
	var issues []ItemIssue

	for _, item := range items {
		product, err := p.catalog.GetProduct(ctx, item.ProductID)
		if err != nil {
			if api.IsNotFound(err) {
				issues = append(issues, ItemIssue{ProductID: item.ProductID, Name: item.Name, Reason: "Sản phẩm không tồn tại"})
				continue
			}
			return classify(err, "Không thể kiểm tra sản phẩm")
		}

		name := product.Name
		if name == "" {
			name = item.Name
		}
		switch {
		case product.Hidden || !product.Visible:
			issues = append(issues, ItemIssue{ProductID: item.ProductID, Name: name, Reason: "Sản phẩm đã ngừng kinh doanh"})
		case product.Stock <= 0:
			issues = append(issues, ItemIssue{ProductID: item.ProductID, Name: name, Reason: "Sản phẩm đã hết hàng"})
		case product.Stock < item.Quantity:
			issues = append(issues, ItemIssue{ProductID: item.ProductID, Name: name, Reason: fmt.Sprintf("Chỉ còn %d sản phẩm", product.Stock)})
		}
	}

	if len(issues) == 0 {
		return nil
	}

	names := make([]string, 0, len(issues))
	for _, is := range issues {
		names = append(names, fmt.Sprintf("%q (%s)", is.Name, is.Reason))
	}
	return &Error{
		Kind:    KindAvailability,
		Message: "Một số sản phẩm không thể đặt: " + strings.Join(names, ", "),
		Items:   issues,
	}
}

func validateCustomer(c models.CustomerInfo) error {
	var missing []string
	if strings.TrimSpace(c.Name) == "" {
		missing = append(missing, "họ tên")
	}
	if strings.TrimSpace(c.Phone) == "" {
		missing = append(missing, "số điện thoại")
	}
	if strings.TrimSpace(c.Address) == "" {
		missing = append(missing, "địa chỉ")
	}
	if len(missing) > 0 {
		return newError(KindValidation, "Vui lòng nhập "+strings.Join(missing, ", "), nil)
	}
	return nil
}

func validateCart(items []models.CartItem, shippingMethod string) (cart.Totals, error) {
	if len(items) == 0 {
		return cart.Totals{}, newError(KindValidation, "Giỏ hàng trống", nil)
	}
	totals, err := cart.Compute(items, shippingMethod)
	if err != nil {
		return cart.Totals{}, newError(KindValidation, "Vui lòng chọn phương thức vận chuyển", err)
	}
	return totals, nil
}

// PrepareOrder validates the cart and customer, then asks the backend for a
// pending order. No order is created when any line fails the availability
// check.
func (p *Preparer) PrepareOrder(ctx context.Context, items []models.CartItem, customer models.CustomerInfo, shippingMethod, note string) (models.PendingOrder, error) {
	totals, err := validateCart(items, shippingMethod)
	if err != nil {
		return models.PendingOrder{}, err
	}
	if err := validateCustomer(customer); err != nil {
		return models.PendingOrder{}, err
	}
	if err := p.ValidateAvailability(ctx, items); err != nil {
		return models.PendingOrder{}, err
	}

	req := models.PrepareOrderRequest{
		Items:          items,
		Customer:       customer,
		ShippingMethod: shippingMethod,
		ShippingFee:    totals.ShippingFee,
		Note:           note,
		Subtotal:       totals.Subtotal,
		Total:          totals.Total,
	}
	pending, err := p.backend.PrepareVNPayOrder(ctx, req)
	if err != nil {
		return models.PendingOrder{}, classify(err, "Không thể tạo đơn hàng")
	}
	slog.Info("Pending order prepared", "txn_ref", pending.TxnRef, "total", pending.Total)
	return pending, nil
}

// RequestPaymentURL fetches the gateway URL for pending and accepts it only
// when it is absolute and secure.
func (p *Preparer) RequestPaymentURL(ctx context.Context, pending models.PendingOrder) (string, error) {
	raw, err := p.backend.CreatePaymentURL(ctx, models.PaymentURLRequest{
		TxnRef:    pending.TxnRef,
		OrderID:   pending.OrderID,
		Amount:    pending.Total,
		OrderInfo: "Thanh toan don hang " + pending.TxnRef,
		ReturnURL: p.returnURL,
	})
	if err != nil {
		return "", classify(err, "Không thể tạo liên kết thanh toán")
	}
	if err := p.checkPaymentURL(raw); err != nil {
		slog.Error("Rejected payment URL", "txn_ref", pending.TxnRef, "url", raw, "error", err)
		return "", newError(KindFatal, "Liên kết thanh toán không hợp lệ", err)
	}
	return raw, nil
}

func (p *Preparer) checkPaymentURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("empty payment url")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("payment url is not absolute")
	}
	switch strings.ToLower(u.Scheme) {
	case "https":
		return nil
	case "http":
		if p.allowInsecure {
			return nil
		}
	}
	return fmt.Errorf("insecure payment url scheme %q", u.Scheme)
}
