package httpclient

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticToken string

func (s staticToken) Token() string { return string(s) }

func TestDoJSONSendsPayloadAndToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/cart/add", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "p1", body["productId"])

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"success":true,"message":"ok"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", time.Second).WithTokenSource(staticToken("tok"))

	var out struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}
	err := c.DoJSON(context.Background(), http.MethodPost, "cart/add", nil, map[string]string{"productId": "p1"}, &out)
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Equal(t, "ok", out.Message)
}

func TestDoJSONNoTokenWhenEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second).WithTokenSource(staticToken(""))
	require.NoError(t, c.DoJSON(context.Background(), http.MethodDelete, "/cart/clear", nil, nil, nil))
}

func TestDoJSONStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"success":false,"message":"order expired"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	err := c.DoJSON(context.Background(), http.MethodGet, "order/by-order/1", nil, nil, nil)

	require.Error(t, err)
	assert.True(t, IsStatus(err, http.StatusNotFound))
	assert.False(t, IsTransport(err))
	assert.Contains(t, err.Error(), "order expired")
}

func TestDoRawQueryKeepsEncoding(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "vnp_OrderInfo=Thanh+toan&vnp_ResponseCode=00", r.URL.RawQuery)
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	var out map[string]any
	require.NoError(t, c.DoRawQuery(context.Background(), "payment/vnpay/return", "vnp_OrderInfo=Thanh+toan&vnp_ResponseCode=00", &out))
}

func TestPostMultipart(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f, hdr, err := r.FormFile("image")
		if !assert.NoError(t, err) {
			return
		}
		defer f.Close()
		data, _ := io.ReadAll(f)
		assert.Equal(t, "shoe.jpg", hdr.Filename)
		assert.Equal(t, []byte("jpegdata"), data)
		w.Write([]byte(`{"success":true}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	var out map[string]any
	require.NoError(t, c.PostMultipart(context.Background(), "products/find-by-image", "image", "shoe.jpg", []byte("jpegdata"), &out))
	assert.Equal(t, true, out["success"])
}

func TestIsTimeoutError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 20*time.Millisecond)
	err := c.DoJSON(context.Background(), http.MethodGet, "slow", nil, nil, nil)

	require.Error(t, err)
	assert.True(t, IsTimeoutError(err))
	assert.True(t, IsTransport(err))
	assert.False(t, IsTimeoutError(nil))
}
