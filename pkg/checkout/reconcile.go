package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"storefront-checkout/pkg/api"
	"storefront-checkout/pkg/cart"
	"storefront-checkout/pkg/database"
	"storefront-checkout/pkg/models"
	events "storefront-checkout/pkg/nats"
	"storefront-checkout/pkg/retry"
	"storefront-checkout/pkg/utils"
	"storefront-checkout/pkg/vnpay"
)

type Confirmer interface {
	ConfirmVNPayReturn(ctx context.Context, params vnpay.Params) (api.ConfirmResult, error)
}

type Enqueuer interface {
	Enqueue(ctx context.Context, params vnpay.Params, details *models.OrderDetails) (string, error)
}

type RemoteCart interface {
	ClearCart(ctx context.Context) error
	GetCart(ctx context.Context) ([]models.CartItem, error)
}

type StateStore interface {
	GetState(ctx context.Context, key string) (string, bool, error)
	SetState(ctx context.Context, key, value string) error
	DeleteState(ctx context.Context, keys ...string) error
}

type Publisher interface {
	Publish(subject string, ev events.Event) error
}

type OutcomeKind string

const (
	OutcomeConfirmed        OutcomeKind = "confirmed"
	OutcomeConfirmedLocally OutcomeKind = "confirmed_locally"
	OutcomeDeclined         OutcomeKind = "declined"
)

type Outcome struct {
	Kind         OutcomeKind
	TxnRef       string
	OrderID      string
	ResponseCode string
	Message      string
	// OfflineID is set when the payment was handed to the offline queue.
	OfflineID string
	// Duplicate marks a repeated delivery answered from the first result.
	Duplicate bool
}

func (o Outcome) Success() bool {
	return o.Kind == OutcomeConfirmed || o.Kind == OutcomeConfirmedLocally
}

type ReconcilerDeps struct {
	Confirmer  Confirmer
	Queue      Enqueuer
	Cart       *cart.Cart
	RemoteCart RemoteCart
	State      StateStore
	Publisher  Publisher
}

type ReconcilerOptions struct {
	Retry retry.Policy
	// HashSecret enables secure hash verification of callback parameters.
	HashSecret string
	// Remember bounds how many finished transaction references are kept
	// for duplicate detection. The oldest finished ones are forgotten first.
	Remember int
}

// pendingCallback is persisted under database.KeyPendingCallback while a
// successful payment is being confirmed with the backend.
type pendingCallback struct {
	Params  vnpay.Params         `json:"params"`
	Details *models.OrderDetails `json:"orderDetails,omitempty"`
	SavedAt time.Time            `json:"savedAt"`
}

type reconcileCall struct {
	done    chan struct{}
	outcome Outcome
	err     error
}

// Reconciler turns gateway callback parameters into an outcome. Each
// transaction reference is reconciled at most once per Reconciler while it is
// remembered; repeated deliveries wait for and share the first result.
type Reconciler struct {
	deps ReconcilerDeps
	opts ReconcilerOptions

	mu       sync.Mutex
	calls    map[string]*reconcileCall
	finished []string
}

func NewReconciler(deps ReconcilerDeps, opts ReconcilerOptions) *Reconciler {
	if opts.Retry.MaxAttempts <= 0 {
		opts.Retry.MaxAttempts = 3
	}
	if opts.Retry.BaseDelay <= 0 {
		opts.Retry.BaseDelay = time.Second
	}
	if opts.Retry.PerAttemptTimeout <= 0 {
		opts.Retry.PerAttemptTimeout = 15 * time.Second
	}
	if opts.Remember <= 0 {
		opts.Remember = 256
	}
	if opts.Retry.Name == "" {
		opts.Retry.Name = "vnpay.confirm"
	}
	return &Reconciler{deps: deps, opts: opts, calls: make(map[string]*reconcileCall)}
}

// Reconcile decides the outcome for params. details is the client-side order
// snapshot kept with an offline record and may be nil.
func (r *Reconciler) Reconcile(ctx context.Context, params vnpay.Params, details *models.OrderDetails) (Outcome, error) {
	if !params.Valid() {
		return Outcome{}, newError(KindFatal, msgFatal, fmt.Errorf("callback parameters without response code or transaction reference"))
	}
	if r.opts.HashSecret != "" {
		if err := vnpay.Verify(params, r.opts.HashSecret); err != nil {
			slog.Error("Callback signature rejected", "txn_ref", params.TxnRef(), "error", err)
			return Outcome{}, newError(KindFatal, msgFatal, err)
		}
	}

	txnRef := params.TxnRef()

	r.mu.Lock()
	if call, ok := r.calls[txnRef]; ok {
		r.mu.Unlock()
		select {
		case <-call.done:
		case <-ctx.Done():
			return Outcome{}, ctx.Err()
		}
		slog.Info("Duplicate callback ignored", "txn_ref", txnRef)
		out := call.outcome
		out.Duplicate = true
		return out, call.err
	}
	call := &reconcileCall{done: make(chan struct{})}
	r.calls[txnRef] = call
	r.mu.Unlock()

	call.outcome, call.err = r.reconcile(ctx, params.Clone(), details)
	close(call.done)
	r.forget(txnRef)
	return call.outcome, call.err
}

// forget records txnRef as finished and drops the oldest finished
// references beyond opts.Remember.
func (r *Reconciler) forget(txnRef string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished = append(r.finished, txnRef)
	for len(r.finished) > r.opts.Remember {
		delete(r.calls, r.finished[0])
		r.finished = r.finished[1:]
	}
}

func (r *Reconciler) reconcile(ctx context.Context, params vnpay.Params, details *models.OrderDetails) (Outcome, error) {
	correlationID := utils.GenerateCorrelationID()
	logPrefix := utils.LogPrefix(correlationID)
	txnRef := params.TxnRef()
	code := params.ResponseCode()

	if !vnpay.IsSuccess(code) {
		msg := vnpay.DeclineMessage(code)
		slog.Info(logPrefix+"Payment declined by gateway", "txn_ref", txnRef, "response_code", code)
		r.publish(events.SubjectPaymentDeclined, events.Event{TxnRef: txnRef, ResponseCode: code, Message: msg, CorrelationID: correlationID})
		return Outcome{Kind: OutcomeDeclined, TxnRef: txnRef, ResponseCode: code, Message: msg}, nil
	}

	// persistence below must survive the caller giving up on the wait
	persistCtx := context.WithoutCancel(ctx)

	r.saveSnapshot(persistCtx, logPrefix, params, details)

	var result api.ConfirmResult
	attempts, err := retry.Do(ctx, r.opts.Retry, func(ctx context.Context) error {
		var err error
		result, err = r.deps.Confirmer.ConfirmVNPayReturn(ctx, params)
		if err != nil && api.IsRejected(err) {
			return retry.Permanent(err)
		}
		return err
	})

	out := Outcome{TxnRef: txnRef, ResponseCode: code}
	snapshotDone := true

	if err == nil {
		out.Kind = OutcomeConfirmed
		out.OrderID = result.OrderID
		out.Message = "Thanh toán thành công"
		slog.Info(logPrefix+"Order confirmed by backend", "txn_ref", txnRef, "order_id", result.OrderID, "attempts", attempts)
	} else {
		out.Kind = OutcomeConfirmedLocally
		out.Message = "Thanh toán thành công, đơn hàng đang được xử lý"
		slog.Warn(logPrefix+"Backend confirmation failed, confirming locally", "txn_ref", txnRef, "attempts", attempts, "error", err)

		if r.deps.Queue != nil {
			id, qerr := r.deps.Queue.Enqueue(persistCtx, params, details)
			if qerr != nil {
				// the snapshot stays for Recover
				snapshotDone = false
				slog.Error(logPrefix+"Failed to queue offline order", "txn_ref", txnRef, "error", qerr)
			} else {
				out.OfflineID = id
			}
		}
	}

	clearCarts(persistCtx, logPrefix, r.deps.Cart, r.deps.RemoteCart)

	subject := events.SubjectOrderConfirmed
	if out.Kind == OutcomeConfirmedLocally {
		subject = events.SubjectOrderConfirmedLocally
	}
	ev := events.Event{TxnRef: txnRef, OrderID: out.OrderID, ResponseCode: code, CorrelationID: correlationID}
	if details != nil {
		ev.Amount = details.Total
	}
	r.publish(subject, ev)

	if snapshotDone {
		r.deleteSnapshot(persistCtx, logPrefix)
	}
	return out, nil
}

// clearCarts empties the local cart, then tries to bring the backend cart in
// line. Backend failures are logged only.
func clearCarts(ctx context.Context, logPrefix string, local *cart.Cart, remote RemoteCart) {
	if local != nil {
		local.Clear()
	}
	if remote == nil {
		return
	}
	if err := remote.ClearCart(ctx); err != nil {
		slog.Warn(logPrefix+"Failed to clear backend cart", "error", err)
		return
	}
	items, err := remote.GetCart(ctx)
	if err != nil {
		slog.Warn(logPrefix+"Failed to resync cart", "error", err)
		return
	}
	if len(items) > 0 {
		slog.Warn(logPrefix+"Backend cart not empty after clear", "items", len(items))
	}
}

func (r *Reconciler) publish(subject string, ev events.Event) {
	if r.deps.Publisher == nil {
		return
	}
	ev.At = time.Now()
	if err := r.deps.Publisher.Publish(subject, ev); err != nil {
		slog.Error("Failed to publish checkout event", "subject", subject, "error", err)
	}
}

func (r *Reconciler) saveSnapshot(ctx context.Context, logPrefix string, params vnpay.Params, details *models.OrderDetails) {
	if r.deps.State == nil {
		return
	}
	raw, err := json.Marshal(pendingCallback{Params: params, Details: details, SavedAt: time.Now()})
	if err != nil {
		slog.Error(logPrefix+"Failed to encode callback snapshot", "error", err)
		return
	}
	if err := r.deps.State.SetState(ctx, database.KeyPendingCallback, string(raw)); err != nil {
		slog.Error(logPrefix+"Failed to save callback snapshot", "error", err)
	}
}

func (r *Reconciler) deleteSnapshot(ctx context.Context, logPrefix string) {
	if r.deps.State == nil {
		return
	}
	if err := r.deps.State.DeleteState(ctx, database.KeyPendingCallback); err != nil {
		slog.Warn(logPrefix+"Failed to delete callback snapshot", "error", err)
	}
}

// Recover reconciles a callback snapshot left behind by an interrupted run.
// It reports false when there is nothing to recover.
func (r *Reconciler) Recover(ctx context.Context) (Outcome, bool, error) {
	if r.deps.State == nil {
		return Outcome{}, false, nil
	}
	raw, ok, err := r.deps.State.GetState(ctx, database.KeyPendingCallback)
	if err != nil {
		return Outcome{}, false, err
	}
	if !ok || raw == "" {
		return Outcome{}, false, nil
	}

	var snap pendingCallback
	if err := json.Unmarshal([]byte(raw), &snap); err != nil || !snap.Params.Valid() {
		slog.Warn("Discarding unreadable callback snapshot", "error", err)
		if derr := r.deps.State.DeleteState(ctx, database.KeyPendingCallback); derr != nil {
			return Outcome{}, false, derr
		}
		return Outcome{}, false, nil
	}

	slog.Info("Recovering interrupted payment callback", "txn_ref", snap.Params.TxnRef(), "saved_at", snap.SavedAt)
	out, err := r.Reconcile(ctx, snap.Params, snap.Details)
	var ce *Error
	if errors.As(err, &ce) && ce.Kind == KindFatal {
		r.deleteSnapshot(ctx, "")
	}
	return out, true, err
}
