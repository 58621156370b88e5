package offlinequeue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"storefront-checkout/pkg/api"
	"storefront-checkout/pkg/database"
	"storefront-checkout/pkg/models"
	events "storefront-checkout/pkg/nats"
	"storefront-checkout/pkg/retry"
	"storefront-checkout/pkg/utils"
	"storefront-checkout/pkg/vnpay"
)

type Store interface {
	GetState(ctx context.Context, key string) (string, bool, error)
	SetState(ctx context.Context, key, value string) error
	SaveOfflineOrder(ctx context.Context, rec models.OfflineOrder) error
	GetOfflineOrder(ctx context.Context, id string) (models.OfflineOrder, bool, error)
	ListOfflineOrders(ctx context.Context) ([]models.OfflineOrder, error)
	DeleteOfflineOrders(ctx context.Context, ids ...string) (int, error)
}

type Confirmer interface {
	ConfirmVNPayReturn(ctx context.Context, params vnpay.Params) (api.ConfirmResult, error)
}

type Publisher interface {
	Publish(subject string, ev events.Event) error
}

type Options struct {
	MaxAttempts   int
	MaxAge        time.Duration
	RetentionDays int
	// Attempt is the policy for one processing attempt of one record.
	Attempt retry.Policy
	Now     func() time.Time
}

func (o *Options) defaults() {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 5
	}
	if o.MaxAge <= 0 {
		o.MaxAge = 24 * time.Hour
	}
	if o.RetentionDays <= 0 {
		o.RetentionDays = 7
	}
	if o.Attempt.MaxAttempts <= 0 {
		o.Attempt.MaxAttempts = 1
	}
	if o.Attempt.PerAttemptTimeout <= 0 {
		o.Attempt.PerAttemptTimeout = 15 * time.Second
	}
	if o.Attempt.Name == "" {
		o.Attempt.Name = "offline.confirm"
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

type Summary struct {
	Processed int `json:"processed"`
	Failed    int `json:"failed"`
	Total     int `json:"total"`
}

type Stats struct {
	Total           int        `json:"total"`
	Pending         int        `json:"pending"`
	Completed       int        `json:"completed"`
	Expired         int        `json:"expired"`
	LastProcessedAt *time.Time `json:"lastProcessedAt,omitempty"`
}

// Queue holds gateway-confirmed payments whose order creation the backend
// has not acknowledged. It may be driven from several screens at once:
// concurrent ProcessPending calls share one pass.
type Queue struct {
	store     Store
	confirmer Confirmer
	publisher Publisher
	opts      Options
	group     singleflight.Group
	enqueueMu sync.Mutex
}

func New(store Store, confirmer Confirmer, publisher Publisher, opts Options) *Queue {
	opts.defaults()
	return &Queue{store: store, confirmer: confirmer, publisher: publisher, opts: opts}
}

// Enqueue stores a pending record. A second enqueue for a transaction that
// is already pending returns the existing record id.
func (q *Queue) Enqueue(ctx context.Context, params vnpay.Params, details *models.OrderDetails) (string, error) {
	q.enqueueMu.Lock()
	defer q.enqueueMu.Unlock()

	txnRef := params.TxnRef()
	existing, err := q.store.ListOfflineOrders(ctx)
	if err != nil {
		return "", err
	}
	for _, rec := range existing {
		if rec.Status == models.OfflinePendingBackend && rec.CallbackParameters[vnpay.ParamTxnRef] == txnRef {
			return rec.ID, nil
		}
	}

	rec := models.OfflineOrder{
		ID:                 utils.GenerateUUID7(),
		Type:               models.OfflineTypeVNPaySuccess,
		Timestamp:          q.opts.Now(),
		CallbackParameters: params.Clone(),
		OrderDetails:       details,
		Status:             models.OfflinePendingBackend,
	}
	if err := q.store.SaveOfflineOrder(ctx, rec); err != nil {
		return "", fmt.Errorf("failed to enqueue offline order: %w", err)
	}
	slog.Info("Offline order queued", "id", rec.ID, "txn_ref", txnRef)
	return rec.ID, nil
}

func (q *Queue) ProcessPending(ctx context.Context) (Summary, error) {
	v, err, shared := q.group.Do("process", func() (any, error) {
		return q.processPending(ctx)
	})
	if shared {
		slog.Debug("Joined running offline queue pass")
	}
	s, _ := v.(Summary)
	return s, err
}

func (q *Queue) processPending(ctx context.Context) (Summary, error) {
	logPrefix := utils.LogPrefix(utils.GenerateCorrelationID())

	all, err := q.store.ListOfflineOrders(ctx)
	if err != nil {
		return Summary{}, err
	}

	var summary Summary
	for _, rec := range all {
		if rec.Status == models.OfflinePendingBackend {
			summary.Total++
		}
	}
	if summary.Total == 0 {
		q.markRun(ctx)
		return summary, nil
	}

	slog.Info(logPrefix+"Processing offline orders", "pending", summary.Total)

	for _, rec := range all {
		if rec.Status != models.OfflinePendingBackend {
			continue
		}
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		// re-read so a record finished elsewhere is not attempted again
		cur, ok, err := q.store.GetOfflineOrder(ctx, rec.ID)
		if err != nil {
			return summary, err
		}
		if !ok || cur.Status != models.OfflinePendingBackend {
			continue
		}

		completed := q.attempt(ctx, logPrefix, &cur)
		if err := q.store.SaveOfflineOrder(ctx, cur); err != nil {
			return summary, fmt.Errorf("failed to persist offline order %s: %w", cur.ID, err)
		}
		if completed {
			summary.Processed++
		} else {
			summary.Failed++
		}
		q.publishResult(cur)
	}

	q.markRun(ctx)
	slog.Info(logPrefix+"Offline orders processed", "processed", summary.Processed, "failed", summary.Failed, "total", summary.Total)
	return summary, nil
}

// attempt updates rec in place and reports whether it completed.
func (q *Queue) attempt(ctx context.Context, logPrefix string, rec *models.OfflineOrder) bool {
	now := q.opts.Now()

	if q.exhausted(rec, now) {
		rec.Status = models.OfflineExpired
		if rec.LastError == "" {
			rec.LastError = "expired before confirmation"
		}
		slog.Warn(logPrefix+"Offline order expired", "id", rec.ID, "attempts", rec.Attempts, "age", now.Sub(rec.Timestamp))
		return false
	}

	var result api.ConfirmResult
	_, err := retry.Do(ctx, q.opts.Attempt, func(ctx context.Context) error {
		var err error
		result, err = q.confirmer.ConfirmVNPayReturn(ctx, vnpay.Params(rec.CallbackParameters))
		return err
	})

	rec.Attempts++
	rec.LastAttempt = &now

	if err == nil {
		done := q.opts.Now()
		rec.Status = models.OfflineCompleted
		rec.CompletedAt = &done
		rec.OrderID = result.OrderID
		rec.LastError = ""
		slog.Info(logPrefix+"Offline order confirmed by backend", "id", rec.ID, "order_id", result.OrderID, "attempts", rec.Attempts)
		return true
	}

	rec.LastError = err.Error()
	if q.exhausted(rec, now) {
		rec.Status = models.OfflineExpired
		slog.Warn(logPrefix+"Offline order expired", "id", rec.ID, "attempts", rec.Attempts, "error", err)
	} else {
		slog.Warn(logPrefix+"Offline order confirmation failed", "id", rec.ID, "attempts", rec.Attempts, "error", err)
	}
	return false
}

func (q *Queue) exhausted(rec *models.OfflineOrder, now time.Time) bool {
	return rec.Attempts >= q.opts.MaxAttempts || now.Sub(rec.Timestamp) > q.opts.MaxAge
}

func (q *Queue) publishResult(rec models.OfflineOrder) {
	if q.publisher == nil || rec.Status == models.OfflinePendingBackend {
		return
	}
	subject := events.SubjectOfflineCompleted
	if rec.Status == models.OfflineExpired {
		subject = events.SubjectOfflineExpired
	}
	ev := events.Event{
		TxnRef:  rec.CallbackParameters[vnpay.ParamTxnRef],
		OrderID: rec.OrderID,
		Message: rec.LastError,
	}
	if err := q.publisher.Publish(subject, ev); err != nil {
		slog.Error("Failed to publish offline order event", "subject", subject, "error", err)
	}
}

func (q *Queue) markRun(ctx context.Context) {
	if err := q.store.SetState(ctx, database.KeyOfflineLastRun, q.opts.Now().UTC().Format(time.RFC3339Nano)); err != nil {
		slog.Error("Failed to record offline queue run", "error", err)
	}
}

func (q *Queue) Stats(ctx context.Context) (Stats, error) {
	all, err := q.store.ListOfflineOrders(ctx)
	if err != nil {
		return Stats{}, err
	}
	s := Stats{Total: len(all)}
	for _, rec := range all {
		switch rec.Status {
		case models.OfflinePendingBackend:
			s.Pending++
		case models.OfflineCompleted:
			s.Completed++
		case models.OfflineExpired:
			s.Expired++
		}
	}
	raw, ok, err := q.store.GetState(ctx, database.KeyOfflineLastRun)
	if err != nil {
		return s, err
	}
	if ok {
		if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			s.LastProcessedAt = &t
		}
	}
	return s, nil
}

// Pending lists records still waiting for the backend, for display.
func (q *Queue) Pending(ctx context.Context) ([]models.OfflineOrder, error) {
	all, err := q.store.ListOfflineOrders(ctx)
	if err != nil {
		return nil, err
	}
	var out []models.OfflineOrder
	for _, rec := range all {
		if rec.Status == models.OfflinePendingBackend {
			out = append(out, rec)
		}
	}
	return out, nil
}

// Remove deletes one record on the user's explicit request, whatever its
// status.
func (q *Queue) Remove(ctx context.Context, id string) error {
	n, err := q.store.DeleteOfflineOrders(ctx, id)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("offline order %s not found", id)
	}
	return nil
}

func (q *Queue) ClearAll(ctx context.Context) (int, error) {
	all, err := q.store.ListOfflineOrders(ctx)
	if err != nil {
		return 0, err
	}
	ids := make([]string, 0, len(all))
	for _, rec := range all {
		ids = append(ids, rec.ID)
	}
	return q.store.DeleteOfflineOrders(ctx, ids...)
}

// CleanupOld removes completed and expired records older than the retention
// window. Pending records are kept regardless of age.
func (q *Queue) CleanupOld(ctx context.Context, retentionDays int) (int, error) {
	if retentionDays <= 0 {
		retentionDays = q.opts.RetentionDays
	}
	cutoff := q.opts.Now().Add(-time.Duration(retentionDays) * 24 * time.Hour)

	all, err := q.store.ListOfflineOrders(ctx)
	if err != nil {
		return 0, err
	}
	var ids []string
	for _, rec := range all {
		if rec.Terminal() && rec.Timestamp.Before(cutoff) {
			ids = append(ids, rec.ID)
		}
	}
	if len(ids) == 0 {
		return 0, nil
	}
	n, err := q.store.DeleteOfflineOrders(ctx, ids...)
	if err == nil {
		slog.Info("Old offline orders removed", "count", n, "retention_days", retentionDays)
	}
	return n, err
}
