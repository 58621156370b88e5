package nats

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

const (
	SubjectOrderConfirmed        = "checkout.order.confirmed"
	SubjectOrderConfirmedLocally = "checkout.order.confirmed_locally"
	SubjectPaymentDeclined       = "checkout.payment.declined"
	SubjectOfflineCompleted      = "offline.order.completed"
	SubjectOfflineExpired        = "offline.order.expired"
)

// Event is the payload published for checkout and offline-queue outcomes.
type Event struct {
	TxnRef        string    `json:"txn_ref,omitempty"`
	OrderID       string    `json:"order_id,omitempty"`
	ResponseCode  string    `json:"response_code,omitempty"`
	Message       string    `json:"message,omitempty"`
	Amount        int64     `json:"amount,omitempty"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	At            time.Time `json:"at"`
}

// Publisher publishes JSON events. A Publisher without a connection drops
// events, which is the mode used when NATS_URL is not set.
type Publisher struct {
	conn *nats.Conn
}

func Connect(url string) (*Publisher, error) {
	if url == "" {
		slog.Info("NATS_URL not set, events are not published")
		return &Publisher{}, nil
	}
	conn, err := nats.Connect(url, nats.Name("storefront-checkout"), nats.MaxReconnects(-1))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}
	return &Publisher{conn: conn}, nil
}

// NewPublisher wraps an existing connection.
func NewPublisher(conn *nats.Conn) *Publisher {
	return &Publisher{conn: conn}
}

func (p *Publisher) Close() {
	if p != nil && p.conn != nil {
		p.conn.Drain()
	}
}

func (p *Publisher) Publish(subject string, ev Event) error {
	if p == nil || p.conn == nil {
		return nil
	}
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	return p.conn.Publish(subject, data)
}

func (p *Publisher) Subscribe(subject string, handler func(Event)) (*nats.Subscription, error) {
	if p == nil || p.conn == nil {
		return nil, nats.ErrConnectionClosed
	}
	return p.conn.Subscribe(subject, func(msg *nats.Msg) {
		var ev Event
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			slog.Error("Failed to unmarshal event", "subject", msg.Subject, "error", err)
			return
		}
		handler(ev)
	})
}
