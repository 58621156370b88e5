package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"storefront-checkout/pkg/httpclient"
)

// Client talks to the storefront REST backend. Every method returns an
// explicit result type; transport failures come back as errors from
// pkg/httpclient, 2xx replies with success=false as *RejectedError.
type Client struct {
	http *httpclient.Client
}

func New(hc *httpclient.Client) *Client {
	return &Client{http: hc}
}

// RejectedError is a well-formed reply in which the backend refused the
// request (stock or price mismatch, bad credentials, ...).
type RejectedError struct {
	Message string
}

func (e *RejectedError) Error() string {
	if e.Message == "" {
		return "request rejected by backend"
	}
	return "request rejected by backend: " + e.Message
}

func IsNotFound(err error) bool {
	return httpclient.IsStatus(err, http.StatusNotFound)
}

func IsRejected(err error) bool {
	var re *RejectedError
	if errors.As(err, &re) {
		return true
	}
	var se *httpclient.StatusError
	return errors.As(err, &se) && se.StatusCode >= 400 && se.StatusCode < 500
}

// Message extracts the backend's human readable message, if any.
func Message(err error) string {
	var re *RejectedError
	if errors.As(err, &re) {
		return re.Message
	}
	var se *httpclient.StatusError
	if errors.As(err, &se) {
		return se.Message
	}
	return ""
}

type envelope struct {
	Success    *bool           `json:"success"`
	Message    string          `json:"message"`
	Data       json.RawMessage `json:"data"`
	PaymentURL string          `json:"paymentUrl"`
}

func (c *Client) call(ctx context.Context, method, path string, query url.Values, payload, out any) (*envelope, error) {
	var env envelope
	if err := c.http.DoJSON(ctx, method, path, query, payload, &env); err != nil {
		return nil, err
	}
	if env.Success != nil && !*env.Success {
		return &env, &RejectedError{Message: env.Message}
	}
	if out != nil && hasData(env.Data) {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return &env, fmt.Errorf("failed to decode %s data: %w", path, err)
		}
	}
	return &env, nil
}

func hasData(raw json.RawMessage) bool {
	return len(raw) > 0 && string(raw) != "null"
}
