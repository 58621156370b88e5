package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront-checkout/pkg/httpclient"
	"storefront-checkout/pkg/models"
	"storefront-checkout/pkg/vnpay"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(httpclient.NewClient(srv.URL, time.Second))
}

func TestGetProductTransformsLooseShape(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/products/p1", r.URL.Path)
		w.Write([]byte(`{"success":true,"data":{"_id":"p1","name":"Áo thun","price":"100000","countInStock":3,"isHidden":false,"image":"a.jpg","category":{"name":"Shirts"}}}`))
	})

	p, err := c.GetProduct(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, models.Product{
		ID:       "p1",
		Name:     "Áo thun",
		Price:    100000,
		Stock:    3,
		Visible:  true,
		Images:   []string{"a.jpg"},
		Category: "Shirts",
	}, p)
	assert.True(t, p.Available(3))
	assert.False(t, p.Available(4))
}

func TestGetProductMissingStockIsUnavailable(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":true,"data":{"id":"p2","name":"Mũ","price":5000}}`))
	})

	p, err := c.GetProduct(context.Background(), "p2")
	require.NoError(t, err)
	assert.Equal(t, 0, p.Stock)
	assert.False(t, p.Available(1))
}

func TestGetProductNotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"success":false,"message":"Product not found"}`))
	})

	_, err := c.GetProduct(context.Background(), "zz")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.True(t, IsRejected(err))
	assert.Equal(t, "Product not found", Message(err))
}

func TestRejectedEnvelope(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":false,"message":"Giá sản phẩm đã thay đổi"}`))
	})

	_, err := c.PrepareVNPayOrder(context.Background(), models.PrepareOrderRequest{})
	var re *RejectedError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "Giá sản phẩm đã thay đổi", Message(err))
}

func TestGetCartAcceptsPopulatedProducts(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":true,"data":{"items":[
			{"productId":{"_id":"p1","name":"Áo","price":100000,"images":["a.jpg"]},"quantity":2},
			{"productId":"p2","name":"Mũ","price":5000,"quantity":"0"}
		]}}`))
	})

	items, err := c.GetCart(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []models.CartItem{
		{ProductID: "p1", Name: "Áo", Price: 100000, Quantity: 2, Image: "a.jpg"},
		{ProductID: "p2", Name: "Mũ", Price: 5000, Quantity: 1},
	}, items)
}

func TestPrepareAndCreatePaymentURL(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/order/prepare-vnpay":
			var req models.PrepareOrderRequest
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, int64(230000), req.Total)
			w.Write([]byte(`{"success":true,"data":{"vnp_TxnRef":"T1","tempOrderId":"tmp1","totalAmount":230000,"expiresAt":"2024-05-01T10:45:00Z"}}`))
		case "/payment/vnpay/createPaymentUrl":
			w.Write([]byte(`{"success":true,"paymentUrl":"https://gateway.test/pay?vnp_TxnRef=T1"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	pending, err := c.PrepareVNPayOrder(context.Background(), models.PrepareOrderRequest{Total: 230000})
	require.NoError(t, err)
	assert.Equal(t, "T1", pending.TxnRef)
	assert.Equal(t, "tmp1", pending.OrderID)
	assert.Equal(t, time.Date(2024, 5, 1, 10, 45, 0, 0, time.UTC), pending.ExpiresAt)

	u, err := c.CreatePaymentURL(context.Background(), models.PaymentURLRequest{TxnRef: pending.TxnRef, Amount: pending.Total})
	require.NoError(t, err)
	assert.Equal(t, "https://gateway.test/pay?vnp_TxnRef=T1", u)
}

func TestConfirmVNPayReturnForwardsParams(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/payment/vnpay/return", r.URL.Path)
		assert.Equal(t, "00", r.URL.Query().Get("vnp_ResponseCode"))
		assert.Equal(t, "Thanh toan", r.URL.Query().Get("vnp_OrderInfo"))
		w.Write([]byte(`{"success":true,"message":"Order created","data":{"_id":"o1"}}`))
	})

	res, err := c.ConfirmVNPayReturn(context.Background(), vnpay.Params{
		"vnp_ResponseCode": "00",
		"vnp_TxnRef":       "T1",
		"vnp_OrderInfo":    "Thanh toan",
	})
	require.NoError(t, err)
	assert.Equal(t, "o1", res.OrderID)
}

func TestConfirmVNPayReturnToleratesUnreadableOrder(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":true,"message":"Order created","data":"o1"}`))
	})

	res, err := c.ConfirmVNPayReturn(context.Background(), vnpay.Params{
		"vnp_ResponseCode": "00",
		"vnp_TxnRef":       "T1",
	})
	require.NoError(t, err)
	assert.Empty(t, res.OrderID)
	assert.Equal(t, "Order created", res.Message)
}

func TestOrdersByUser(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/order/by-user/u1", r.URL.Path)
		w.Write([]byte(`{"success":true,"data":[{"_id":"o1","userId":{"_id":"u1"},"products":[{"productId":"p1","price":1,"quantity":2}],"orderStatus":"shipping","total":"30002","paymentMethod":"COD","createdAt":"2024-05-01T10:00:00Z"}]}`))
	})

	orders, err := c.OrdersByUser(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, orders, 1)
	o := orders[0]
	assert.Equal(t, "o1", o.ID)
	assert.Equal(t, "u1", o.UserID)
	assert.Equal(t, "shipping", o.Status)
	assert.Equal(t, "cod", o.PaymentMethod)
	assert.Equal(t, int64(30002), o.Total)
	require.Len(t, o.Items, 1)
	assert.Equal(t, 2, o.Items[0].Quantity)
}

func TestLoginAndProfile(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/login":
			w.Write([]byte(`{"success":true,"data":{"token":"tok","user":{"_id":"u1","name":"An","email":"an@example.com"}}}`))
		case "/profile/u1":
			assert.Equal(t, http.MethodPut, r.Method)
			var u models.User
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&u))
			w.Write([]byte(`{"success":true,"data":{"id":"u1","name":"` + u.Name + `"}}`))
		}
	})

	auth, err := c.Login(context.Background(), "an@example.com", "pw")
	require.NoError(t, err)
	assert.Equal(t, "tok", auth.Token)
	assert.Equal(t, "u1", auth.User.ID)

	u, err := c.UpdateProfile(context.Background(), "u1", models.User{Name: "Bình"})
	require.NoError(t, err)
	assert.Equal(t, "Bình", u.Name)
}

func TestProductQueryValues(t *testing.T) {
	v := ProductQuery{Search: "áo", Page: 2, Limit: 20}.values()
	assert.Equal(t, "áo", v.Get("search"))
	assert.Equal(t, "2", v.Get("page"))
	assert.Equal(t, "20", v.Get("limit"))
	assert.Empty(t, v.Get("category"))
}
