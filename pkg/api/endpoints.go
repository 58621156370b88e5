package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"storefront-checkout/pkg/models"
	"storefront-checkout/pkg/vnpay"
)

type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Phone    string `json:"phone,omitempty"`
}

type authDTO struct {
	Token string  `json:"token"`
	User  userDTO `json:"user"`
}

func (c *Client) Login(ctx context.Context, email, password string) (models.AuthResult, error) {
	var d authDTO
	if _, err := c.call(ctx, http.MethodPost, "auth/login", nil, map[string]string{"email": email, "password": password}, &d); err != nil {
		return models.AuthResult{}, err
	}
	return models.AuthResult{Token: d.Token, User: toUser(d.User)}, nil
}

func (c *Client) Register(ctx context.Context, req RegisterRequest) (models.AuthResult, error) {
	var d authDTO
	if _, err := c.call(ctx, http.MethodPost, "auth/register", nil, req, &d); err != nil {
		return models.AuthResult{}, err
	}
	return models.AuthResult{Token: d.Token, User: toUser(d.User)}, nil
}

func (c *Client) ChangePassword(ctx context.Context, oldPassword, newPassword string) error {
	_, err := c.call(ctx, http.MethodPut, "auth/change-password", nil, map[string]string{
		"oldPassword": oldPassword,
		"newPassword": newPassword,
	}, nil)
	return err
}

func (c *Client) ForgotPassword(ctx context.Context, email string) error {
	_, err := c.call(ctx, http.MethodPost, "auth/forgot-password", nil, map[string]string{"email": email}, nil)
	return err
}

func (c *Client) VerifyResetCode(ctx context.Context, email, code string) error {
	_, err := c.call(ctx, http.MethodPost, "auth/verify-reset-code", nil, map[string]string{"email": email, "code": code}, nil)
	return err
}

func (c *Client) ResetPassword(ctx context.Context, email, code, newPassword string) error {
	_, err := c.call(ctx, http.MethodPost, "auth/reset-password", nil, map[string]string{
		"email":       email,
		"code":        code,
		"newPassword": newPassword,
	}, nil)
	return err
}

func (c *Client) GetProfile(ctx context.Context, userID string) (models.User, error) {
	var d userDTO
	if _, err := c.call(ctx, http.MethodGet, "profile/"+url.PathEscape(userID), nil, nil, &d); err != nil {
		return models.User{}, err
	}
	return toUser(d), nil
}

func (c *Client) UpdateProfile(ctx context.Context, userID string, u models.User) (models.User, error) {
	var d userDTO
	if _, err := c.call(ctx, http.MethodPut, "profile/"+url.PathEscape(userID), nil, u, &d); err != nil {
		return models.User{}, err
	}
	return toUser(d), nil
}

type ProductQuery struct {
	Search   string
	Category string
	Page     int
	Limit    int
}

func (q ProductQuery) values() url.Values {
	v := url.Values{}
	if q.Search != "" {
		v.Set("search", q.Search)
	}
	if q.Category != "" {
		v.Set("category", q.Category)
	}
	if q.Page > 0 {
		v.Set("page", strconv.Itoa(q.Page))
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	return v
}

func (c *Client) ListProducts(ctx context.Context, q ProductQuery) ([]models.Product, error) {
	var ds []productDTO
	if _, err := c.call(ctx, http.MethodGet, "products", q.values(), nil, &ds); err != nil {
		return nil, err
	}
	out := make([]models.Product, 0, len(ds))
	for _, d := range ds {
		out = append(out, toProduct(d))
	}
	return out, nil
}

func (c *Client) GetProduct(ctx context.Context, id string) (models.Product, error) {
	var d productDTO
	if _, err := c.call(ctx, http.MethodGet, "products/"+url.PathEscape(id), nil, nil, &d); err != nil {
		return models.Product{}, err
	}
	p := toProduct(d)
	if p.ID == "" {
		p.ID = id
	}
	return p, nil
}

func (c *Client) FindProductsByImage(ctx context.Context, fileName string, image []byte) ([]models.Product, error) {
	var env struct {
		Success *bool        `json:"success"`
		Message string       `json:"message"`
		Data    []productDTO `json:"data"`
	}
	if err := c.http.PostMultipart(ctx, "products/find-by-image", "image", fileName, image, &env); err != nil {
		return nil, err
	}
	if env.Success != nil && !*env.Success {
		return nil, &RejectedError{Message: env.Message}
	}
	out := make([]models.Product, 0, len(env.Data))
	for _, d := range env.Data {
		out = append(out, toProduct(d))
	}
	return out, nil
}

type cartDTO struct {
	Items []cartItemDTO `json:"items"`
}

func (c *Client) GetCart(ctx context.Context) ([]models.CartItem, error) {
	var d cartDTO
	if _, err := c.call(ctx, http.MethodGet, "cart", nil, nil, &d); err != nil {
		return nil, err
	}
	out := make([]models.CartItem, 0, len(d.Items))
	for _, it := range d.Items {
		out = append(out, toCartItem(it))
	}
	return out, nil
}

func (c *Client) AddToCart(ctx context.Context, productID string, quantity int) error {
	_, err := c.call(ctx, http.MethodPost, "cart/add", nil, map[string]any{"productId": productID, "quantity": quantity}, nil)
	return err
}

func (c *Client) UpdateCartItem(ctx context.Context, productID string, quantity int) error {
	_, err := c.call(ctx, http.MethodPut, "cart/item/"+url.PathEscape(productID), nil, map[string]any{"quantity": quantity}, nil)
	return err
}

func (c *Client) RemoveCartItem(ctx context.Context, productID string) error {
	_, err := c.call(ctx, http.MethodDelete, "cart/item/"+url.PathEscape(productID), nil, nil, nil)
	return err
}

func (c *Client) ClearCart(ctx context.Context) error {
	_, err := c.call(ctx, http.MethodDelete, "cart/clear", nil, nil, nil)
	return err
}

func (c *Client) PrepareVNPayOrder(ctx context.Context, req models.PrepareOrderRequest) (models.PendingOrder, error) {
	var d pendingDTO
	if _, err := c.call(ctx, http.MethodPost, "order/prepare-vnpay", nil, req, &d); err != nil {
		return models.PendingOrder{}, err
	}
	p := toPendingOrder(d, req)
	if p.TxnRef == "" {
		return models.PendingOrder{}, fmt.Errorf("prepare-vnpay returned no transaction reference")
	}
	return p, nil
}

func (c *Client) CreatePaymentURL(ctx context.Context, req models.PaymentURLRequest) (string, error) {
	var d struct {
		PaymentURL string `json:"paymentUrl"`
		URL        string `json:"url"`
	}
	env, err := c.call(ctx, http.MethodPost, "payment/vnpay/createPaymentUrl", nil, req, &d)
	if err != nil {
		return "", err
	}
	return firstNonEmpty(d.PaymentURL, d.URL, env.PaymentURL), nil
}

type ConfirmResult struct {
	OrderID string
	Message string
}

// ConfirmVNPayReturn forwards intercepted gateway parameters to the
// backend's return handler, which creates the order if it does not exist.
func (c *Client) ConfirmVNPayReturn(ctx context.Context, params vnpay.Params) (ConfirmResult, error) {
	var env envelope
	if err := c.http.DoRawQuery(ctx, "payment/vnpay/return", params.Encode(), &env); err != nil {
		return ConfirmResult{}, err
	}
	if env.Success != nil && !*env.Success {
		return ConfirmResult{}, &RejectedError{Message: env.Message}
	}
	var d orderDTO
	if hasData(env.Data) {
		if err := json.Unmarshal(env.Data, &d); err != nil {
			slog.Warn("Unreadable order in payment confirmation", "txn_ref", params.TxnRef(), "error", err)
		}
	}
	return ConfirmResult{OrderID: toOrder(d).ID, Message: env.Message}, nil
}

func (c *Client) PlaceOrder(ctx context.Context, req models.PlaceOrderRequest) (models.Order, error) {
	var d orderDTO
	if _, err := c.call(ctx, http.MethodPost, "order/place", nil, req, &d); err != nil {
		return models.Order{}, err
	}
	return toOrder(d), nil
}

func (c *Client) OrdersByUser(ctx context.Context, userID string) ([]models.Order, error) {
	var ds []orderDTO
	if _, err := c.call(ctx, http.MethodGet, "order/by-user/"+url.PathEscape(userID), nil, nil, &ds); err != nil {
		return nil, err
	}
	out := make([]models.Order, 0, len(ds))
	for _, d := range ds {
		out = append(out, toOrder(d))
	}
	return out, nil
}

func (c *Client) OrderByID(ctx context.Context, orderID string) (models.Order, error) {
	var d orderDTO
	if _, err := c.call(ctx, http.MethodGet, "order/by-order/"+url.PathEscape(orderID), nil, nil, &d); err != nil {
		return models.Order{}, err
	}
	return toOrder(d), nil
}

func (c *Client) CancelOrder(ctx context.Context, orderID string) error {
	_, err := c.call(ctx, http.MethodPut, "order/cancel/"+url.PathEscape(orderID), nil, nil, nil)
	return err
}
