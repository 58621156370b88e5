package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"storefront-checkout/pkg/cart"
	"storefront-checkout/pkg/models"
	"storefront-checkout/pkg/utils"
	"storefront-checkout/pkg/vnpay"
)

type settings struct {
	IdempotencyCheck bool
	// ReturnFailureRate is the percentage of return calls answered with 503.
	ReturnFailureRate int
	ReturnLatency     time.Duration
	TempOrderTTL      time.Duration

	TmnCode    string
	HashSecret string
	GatewayURL string
	ReturnURL  string
}

// productJSON is the backend's wire shape, deliberately not models.Product.
type productJSON struct {
	ID           string   `json:"_id"`
	Name         string   `json:"name"`
	Price        int64    `json:"price"`
	CountInStock int      `json:"countInStock"`
	IsHidden     bool     `json:"isHidden"`
	IsVisible    bool     `json:"isVisible"`
	Images       []string `json:"images"`
	Category     string   `json:"category"`
}

type account struct {
	user     models.User
	password string
}

type tempOrder struct {
	TxnRef         string
	UserID         string
	Items          []models.CartItem
	Customer       models.CustomerInfo
	ShippingMethod string
	Total          int64
	ExpiresAt      time.Time
}

type server struct {
	cfg settings
	rng *rand.Rand

	mu       sync.Mutex
	products map[string]productJSON
	accounts map[string]*account // by email
	tokens   map[string]string   // token -> user id
	carts    map[string][]models.CartItem
	temps    map[string]tempOrder
	orders   map[string]models.Order
	byTxn    map[string][]string
	resets   map[string]string // email -> reset code
}

func newServer(cfg settings) *server {
	if cfg.TempOrderTTL <= 0 {
		cfg.TempOrderTTL = 15 * time.Minute
	}
	s := &server{
		cfg:      cfg,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		products: map[string]productJSON{},
		accounts: map[string]*account{},
		tokens:   map[string]string{},
		carts:    map[string][]models.CartItem{},
		temps:    map[string]tempOrder{},
		orders:   map[string]models.Order{},
		byTxn:    map[string][]string{},
		resets:   map[string]string{},
	}
	s.seedCatalog()
	return s
}

func (s *server) seedCatalog() {
	for _, p := range []productJSON{
		{ID: "p1", Name: "Áo thun basic", Price: 100000, CountInStock: 100, IsVisible: true, Category: "ao"},
		{ID: "p2", Name: "Quần jean slim", Price: 350000, CountInStock: 50, IsVisible: true, Category: "quan"},
		{ID: "p3", Name: "Mũ lưỡi trai", Price: 80000, CountInStock: 30, IsVisible: true, Category: "phu-kien"},
		{ID: "p4", Name: "Áo khoác gió", Price: 450000, CountInStock: 0, IsVisible: true, Category: "ao"},
		{ID: "p5", Name: "Giày sneaker cũ", Price: 600000, CountInStock: 10, IsVisible: true, IsHidden: true, Category: "giay"},
	} {
		s.products[p.ID] = p
	}
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", healthCheck)

	r.Post("/auth/login", s.login)
	r.Post("/auth/register", s.register)
	r.Post("/auth/forgot-password", s.forgotPassword)
	r.Post("/auth/verify-reset-code", s.verifyResetCode)
	r.Post("/auth/reset-password", s.resetPassword)

	r.Get("/products", s.listProducts)
	r.Get("/products/{id}", s.getProduct)
	r.Post("/products/find-by-image", s.findByImage)

	r.Get("/payment/vnpay/return", s.vnpayReturn)
	r.Get("/payment/vnpay/ipn", s.vnpayIPN)
	r.Get("/debug/duplicates", s.duplicateOrders)

	r.Group(func(r chi.Router) {
		r.Use(s.requireAuth)

		r.Put("/auth/change-password", s.changePassword)
		r.Get("/profile/{userID}", s.getProfile)
		r.Put("/profile/{userID}", s.updateProfile)

		r.Get("/cart", s.getCart)
		r.Post("/cart/add", s.addToCart)
		r.Put("/cart/item/{id}", s.updateCartItem)
		r.Delete("/cart/item/{id}", s.removeCartItem)
		r.Delete("/cart/clear", s.clearCart)

		r.Post("/order/prepare-vnpay", s.prepareVNPay)
		r.Post("/payment/vnpay/createPaymentUrl", s.createPaymentURL)
		r.Post("/order/place", s.placeOrder)
		r.Get("/order/by-user/{userID}", s.ordersByUser)
		r.Get("/order/by-order/{id}", s.orderByID)
		r.Put("/order/cancel/{id}", s.cancelOrder)
	})

	return r
}

type ctxKey struct{}

func userID(r *http.Request) string {
	id, _ := r.Context().Value(ctxKey{}).(string)
	return id
}

func (s *server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		s.mu.Lock()
		id, valid := s.tokens[token]
		s.mu.Unlock()
		if token == "" || !valid {
			writeJSON(w, http.StatusUnauthorized, models.Envelope{Message: "Unauthorized"})
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, id)))
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func ok(w http.ResponseWriter, message string, data any) {
	writeJSON(w, http.StatusOK, models.Envelope{Success: true, Message: message, Data: data})
}

func fail(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, models.Envelope{Success: false, Message: message})
}

func healthCheck(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *server) login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		fail(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	acc, found := s.accounts[strings.ToLower(req.Email)]
	if !found || acc.password != req.Password {
		writeJSON(w, http.StatusOK, models.Envelope{Success: false, Message: "Email hoặc mật khẩu không đúng"})
		return
	}
	ok(w, "Login successful", s.issueToken(acc.user))
}

func (s *server) register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
		Phone    string `json:"phone"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" || req.Password == "" {
		fail(w, http.StatusBadRequest, "Email and password are required")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	email := strings.ToLower(req.Email)
	if _, exists := s.accounts[email]; exists {
		fail(w, http.StatusConflict, "Email đã được sử dụng")
		return
	}
	u := models.User{ID: utils.GenerateUUID7(), Name: req.Name, Email: email, Phone: req.Phone}
	s.accounts[email] = &account{user: u, password: req.Password}
	slog.Info("User registered", "user_id", u.ID, "email", email)
	ok(w, "Registered", s.issueToken(u))
}

// issueToken must be called with s.mu held.
func (s *server) issueToken(u models.User) models.AuthResult {
	token := utils.GenerateUUID7()
	s.tokens[token] = u.ID
	return models.AuthResult{Token: token, User: u}
}

func (s *server) getProfile(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "userID")
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, acc := range s.accounts {
		if acc.user.ID == id {
			ok(w, "", acc.user)
			return
		}
	}
	fail(w, http.StatusNotFound, "User not found")
}

func (s *server) updateProfile(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "userID")
	if id != userID(r) {
		fail(w, http.StatusForbidden, "Forbidden")
		return
	}
	var req models.User
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		fail(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, acc := range s.accounts {
		if acc.user.ID == id {
			if req.Name != "" {
				acc.user.Name = req.Name
			}
			acc.user.Phone = req.Phone
			acc.user.Address = req.Address
			ok(w, "Profile updated", acc.user)
			return
		}
	}
	fail(w, http.StatusNotFound, "User not found")
}

// accountByID must be called with s.mu held.
func (s *server) accountByID(id string) *account {
	for _, acc := range s.accounts {
		if acc.user.ID == id {
			return acc
		}
	}
	return nil
}

func (s *server) changePassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OldPassword string `json:"oldPassword"`
		NewPassword string `json:"newPassword"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.NewPassword == "" {
		fail(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	acc := s.accountByID(userID(r))
	if acc == nil || acc.password != req.OldPassword {
		writeJSON(w, http.StatusOK, models.Envelope{Success: false, Message: "Mật khẩu cũ không đúng"})
		return
	}
	acc.password = req.NewPassword
	ok(w, "Password changed", nil)
}

func (s *server) forgotPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		fail(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	email := strings.ToLower(req.Email)
	if _, found := s.accounts[email]; !found {
		fail(w, http.StatusNotFound, "Email không tồn tại")
		return
	}
	code := fmt.Sprintf("%06d", s.rng.Intn(1000000))
	s.resets[email] = code
	// no mail server here, the code goes to the log
	slog.Info("Password reset code issued", "email", email, "code", code)
	ok(w, "Reset code sent", nil)
}

func (s *server) verifyResetCode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
		Code  string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		fail(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if code, found := s.resets[strings.ToLower(req.Email)]; !found || code != req.Code {
		writeJSON(w, http.StatusOK, models.Envelope{Success: false, Message: "Mã xác nhận không đúng"})
		return
	}
	ok(w, "Code verified", nil)
}

func (s *server) resetPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email       string `json:"email"`
		Code        string `json:"code"`
		NewPassword string `json:"newPassword"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.NewPassword == "" {
		fail(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	email := strings.ToLower(req.Email)
	code, found := s.resets[email]
	acc := s.accounts[email]
	if !found || code != req.Code || acc == nil {
		writeJSON(w, http.StatusOK, models.Envelope{Success: false, Message: "Mã xác nhận không đúng"})
		return
	}
	acc.password = req.NewPassword
	delete(s.resets, email)
	ok(w, "Password reset", nil)
}

func (s *server) listProducts(w http.ResponseWriter, r *http.Request) {
	search := strings.ToLower(r.URL.Query().Get("search"))
	category := r.URL.Query().Get("category")

	s.mu.Lock()
	out := make([]productJSON, 0, len(s.products))
	for _, p := range s.products {
		if p.IsHidden || !p.IsVisible {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(p.Name), search) {
			continue
		}
		if category != "" && p.Category != category {
			continue
		}
		out = append(out, p)
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	ok(w, "", out)
}

func (s *server) getProduct(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	p, found := s.products[chi.URLParam(r, "id")]
	s.mu.Unlock()
	if !found {
		fail(w, http.StatusNotFound, "Product not found")
		return
	}
	ok(w, "", p)
}

// findByImage stands in for visual search: products whose category appears
// in the uploaded file name match.
func (s *server) findByImage(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		fail(w, http.StatusBadRequest, "Invalid multipart body")
		return
	}
	_, header, err := r.FormFile("image")
	if err != nil {
		fail(w, http.StatusBadRequest, "Missing image")
		return
	}
	name := strings.ToLower(header.Filename)

	s.mu.Lock()
	out := make([]productJSON, 0)
	for _, p := range s.products {
		if p.IsHidden || !p.IsVisible || p.Category == "" {
			continue
		}
		if strings.Contains(name, p.Category) {
			out = append(out, p)
		}
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	ok(w, "", out)
}

func (s *server) getCart(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	items := append([]models.CartItem(nil), s.carts[userID(r)]...)
	s.mu.Unlock()
	ok(w, "", map[string]any{"items": items})
}

func (s *server) addToCart(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProductID string `json:"productId"`
		Quantity  int    `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Quantity < 1 {
		fail(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	p, found := s.products[req.ProductID]
	if !found {
		fail(w, http.StatusNotFound, "Product not found")
		return
	}
	c := cart.New(s.carts[userID(r)]...)
	c.Add(models.CartItem{ProductID: p.ID, Name: p.Name, Price: p.Price, Quantity: req.Quantity})
	s.carts[userID(r)] = c.Snapshot()
	ok(w, "Added to cart", nil)
}

func (s *server) updateCartItem(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Quantity int `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		fail(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	c := cart.New(s.carts[userID(r)]...)
	if !c.SetQuantity(chi.URLParam(r, "id"), req.Quantity) {
		fail(w, http.StatusNotFound, "Item not in cart")
		return
	}
	s.carts[userID(r)] = c.Snapshot()
	ok(w, "Cart updated", nil)
}

func (s *server) removeCartItem(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := cart.New(s.carts[userID(r)]...)
	c.Remove(chi.URLParam(r, "id"))
	s.carts[userID(r)] = c.Snapshot()
	ok(w, "Item removed", nil)
}

func (s *server) clearCart(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	delete(s.carts, userID(r))
	s.mu.Unlock()
	ok(w, "Cart cleared", nil)
}

// checkItems verifies stock and price; it must be called with s.mu held.
func (s *server) checkItems(items []models.CartItem) string {
	for _, it := range items {
		p, found := s.products[it.ProductID]
		if !found {
			return fmt.Sprintf("Sản phẩm %s không tồn tại", it.ProductID)
		}
		if p.IsHidden || !p.IsVisible || p.CountInStock < it.Quantity {
			return fmt.Sprintf("Sản phẩm %q không đủ hàng", p.Name)
		}
		if p.Price != it.Price {
			return fmt.Sprintf("Giá sản phẩm %q đã thay đổi", p.Name)
		}
	}
	return ""
}

func (s *server) prepareVNPay(w http.ResponseWriter, r *http.Request) {
	var req models.PrepareOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Items) == 0 {
		fail(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if msg := s.checkItems(req.Items); msg != "" {
		writeJSON(w, http.StatusOK, models.Envelope{Success: false, Message: msg})
		return
	}
	totals, err := cart.Compute(req.Items, req.ShippingMethod)
	if err != nil || totals.Total != req.Total {
		writeJSON(w, http.StatusOK, models.Envelope{Success: false, Message: "Tổng tiền không khớp"})
		return
	}

	t := tempOrder{
		TxnRef:         utils.GenerateTxnRef(time.Now()),
		UserID:         userID(r),
		Items:          req.Items,
		Customer:       req.Customer,
		ShippingMethod: req.ShippingMethod,
		Total:          totals.Total,
		ExpiresAt:      time.Now().Add(s.cfg.TempOrderTTL),
	}
	s.temps[t.TxnRef] = t
	slog.Info("Temporary order created", "txn_ref", t.TxnRef, "total", t.Total, "user_id", t.UserID)

	ok(w, "", map[string]any{
		"vnp_TxnRef":  t.TxnRef,
		"tempOrderId": t.TxnRef,
		"totalAmount": t.Total,
		"expiresAt":   t.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

func (s *server) createPaymentURL(w http.ResponseWriter, r *http.Request) {
	var req models.PaymentURLRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		fail(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	s.mu.Lock()
	t, found := s.temps[req.TxnRef]
	s.mu.Unlock()
	if !found || time.Now().After(t.ExpiresAt) {
		fail(w, http.StatusNotFound, "Đơn hàng tạm không tồn tại hoặc đã hết hạn")
		return
	}

	now := time.Now()
	params := vnpay.Params{
		"vnp_Version":        "2.1.0",
		"vnp_Command":        "pay",
		"vnp_TmnCode":        s.cfg.TmnCode,
		vnpay.ParamAmount:    strconv.FormatInt(t.Total*100, 10),
		"vnp_CurrCode":       "VND",
		vnpay.ParamTxnRef:    t.TxnRef,
		vnpay.ParamOrderInfo: req.OrderInfo,
		"vnp_OrderType":      "other",
		"vnp_Locale":         "vn",
		"vnp_ReturnUrl":      s.cfg.ReturnURL,
		"vnp_IpAddr":         "127.0.0.1",
		"vnp_CreateDate":     now.Format("20060102150405"),
		"vnp_ExpireDate":     t.ExpiresAt.Format("20060102150405"),
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"paymentUrl": vnpay.BuildPaymentURL(s.cfg.GatewayURL, params, s.cfg.HashSecret),
	})
}

var errTempOrderMissing = errors.New("temporary order not found or expired")

// confirmPayment turns a successful gateway callback into an order. The
// second result reports whether an existing order was returned instead.
func (s *server) confirmPayment(logPrefix string, params vnpay.Params) (models.Order, bool, error) {
	txnRef := params.TxnRef()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cfg.IdempotencyCheck {
		if ids := s.byTxn[txnRef]; len(ids) > 0 {
			slog.Info(logPrefix+"Order already exists for transaction", "txn_ref", txnRef, "order_id", ids[0])
			return s.orders[ids[0]], true, nil
		}
	} else {
		slog.Warn(logPrefix + "Idempotency check is disabled, release the kraken!!")
	}

	t, found := s.temps[txnRef]
	if !found || time.Now().After(t.ExpiresAt) {
		return models.Order{}, false, errTempOrderMissing
	}

	order := models.Order{
		ID:            utils.GenerateUUID7(),
		UserID:        t.UserID,
		Items:         t.Items,
		Customer:      t.Customer,
		PaymentMethod: models.PaymentVNPay,
		Status:        "confirmed",
		Total:         t.Total,
		TxnRef:        txnRef,
		CreatedAt:     time.Now().UTC(),
	}
	s.orders[order.ID] = order
	s.byTxn[txnRef] = append(s.byTxn[txnRef], order.ID)
	s.takeStock(order.Items)
	delete(s.carts, t.UserID)

	if n := len(s.byTxn[txnRef]); n > 1 {
		slog.Error(logPrefix+"Duplicate order created for transaction", "txn_ref", txnRef, "orders", n)
	}
	slog.Info(logPrefix+"Order created from payment", "txn_ref", txnRef, "order_id", order.ID, "total", order.Total)
	return order, false, nil
}

// takeStock must be called with s.mu held.
func (s *server) takeStock(items []models.CartItem) {
	for _, it := range items {
		if p, found := s.products[it.ProductID]; found {
			p.CountInStock -= it.Quantity
			s.products[it.ProductID] = p
		}
	}
}

func (s *server) verify(params vnpay.Params) bool {
	return s.cfg.HashSecret == "" || vnpay.Verify(params, s.cfg.HashSecret) == nil
}

func (s *server) vnpayReturn(w http.ResponseWriter, r *http.Request) {
	correlationID := utils.GenerateCorrelationID()
	logPrefix := utils.LogPrefix(correlationID)
	params := vnpay.ParseQuery(r.URL.RawQuery)

	slog.Info(logPrefix+"Payment return received", "txn_ref", params.TxnRef(), "response_code", params.ResponseCode())

	time.Sleep(s.cfg.ReturnLatency)
	s.mu.Lock()
	chance := s.rng.Intn(100)
	s.mu.Unlock()
	if chance < s.cfg.ReturnFailureRate {
		slog.Info(logPrefix+"Random failure generated", "txn_ref", params.TxnRef())
		fail(w, http.StatusServiceUnavailable, "Service temporarily unavailable")
		return
	}

	if !s.verify(params) {
		fail(w, http.StatusBadRequest, "Chữ ký không hợp lệ")
		return
	}
	if !vnpay.IsSuccess(params.ResponseCode()) {
		writeJSON(w, http.StatusOK, models.Envelope{Success: false, Message: vnpay.DeclineMessage(params.ResponseCode())})
		return
	}

	order, existed, err := s.confirmPayment(logPrefix, params)
	if err != nil {
		fail(w, http.StatusNotFound, "Đơn hàng tạm không tồn tại hoặc đã hết hạn")
		return
	}
	msg := "Order created"
	if existed {
		msg = "Order already exists"
	}
	ok(w, msg, order)
}

// vnpayIPN is the gateway's server-to-server notification, answered in the
// gateway's own RspCode format.
func (s *server) vnpayIPN(w http.ResponseWriter, r *http.Request) {
	logPrefix := utils.LogPrefix(utils.GenerateCorrelationID())
	params := vnpay.ParseQuery(r.URL.RawQuery)

	slog.Info(logPrefix+"Payment IPN received", "txn_ref", params.TxnRef(), "response_code", params.ResponseCode())

	switch {
	case !s.verify(params):
		writeJSON(w, http.StatusOK, map[string]string{"RspCode": "97", "Message": "Invalid signature"})
		return
	case !vnpay.IsSuccess(params.ResponseCode()):
		writeJSON(w, http.StatusOK, map[string]string{"RspCode": "00", "Message": "Confirm Success"})
		return
	}

	_, existed, err := s.confirmPayment(logPrefix, params)
	switch {
	case err != nil:
		writeJSON(w, http.StatusOK, map[string]string{"RspCode": "01", "Message": "Order not found"})
	case existed:
		writeJSON(w, http.StatusOK, map[string]string{"RspCode": "02", "Message": "Order already confirmed"})
	default:
		writeJSON(w, http.StatusOK, map[string]string{"RspCode": "00", "Message": "Confirm Success"})
	}
}

func (s *server) placeOrder(w http.ResponseWriter, r *http.Request) {
	var req models.PlaceOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Items) == 0 {
		fail(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if msg := s.checkItems(req.Items); msg != "" {
		writeJSON(w, http.StatusOK, models.Envelope{Success: false, Message: msg})
		return
	}

	order := models.Order{
		ID:            utils.GenerateUUID7(),
		UserID:        userID(r),
		Items:         req.Items,
		Customer:      req.Customer,
		PaymentMethod: strings.ToUpper(req.PaymentMethod),
		Status:        "pending",
		Total:         req.Total,
		CreatedAt:     time.Now().UTC(),
	}
	s.orders[order.ID] = order
	s.takeStock(order.Items)
	delete(s.carts, order.UserID)

	slog.Info("COD order placed", "order_id", order.ID, "total", order.Total)
	ok(w, "Order placed", order)
}

func (s *server) ordersByUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "userID")
	s.mu.Lock()
	out := make([]models.Order, 0)
	for _, o := range s.orders {
		if o.UserID == id {
			out = append(out, o)
		}
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	ok(w, "", out)
}

func (s *server) orderByID(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	o, found := s.orders[chi.URLParam(r, "id")]
	s.mu.Unlock()
	if !found {
		fail(w, http.StatusNotFound, "Order not found")
		return
	}
	ok(w, "", o)
}

func (s *server) cancelOrder(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := chi.URLParam(r, "id")
	o, found := s.orders[id]
	if !found || o.UserID != userID(r) {
		fail(w, http.StatusNotFound, "Order not found")
		return
	}
	o.Status = "cancelled"
	s.orders[id] = o
	ok(w, "Order cancelled", o)
}

// duplicateOrders lists transactions that produced more than one order.
func (s *server) duplicateOrders(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	out := map[string]int{}
	for txn, ids := range s.byTxn {
		if len(ids) > 1 {
			out[txn] = len(ids)
		}
	}
	s.mu.Unlock()
	ok(w, "", out)
}
