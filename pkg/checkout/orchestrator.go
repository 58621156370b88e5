package checkout

import (
	"context"
	"errors"
	"log/slog"

	"storefront-checkout/pkg/cart"
	"storefront-checkout/pkg/models"
	"storefront-checkout/pkg/paychannel"
	"storefront-checkout/pkg/utils"
)

type OrderPlacer interface {
	PlaceOrder(ctx context.Context, req models.PlaceOrderRequest) (models.Order, error)
}

type OrchestratorDeps struct {
	Preparer   *Preparer
	Placer     OrderPlacer
	Reconciler *Reconciler
	Cart       *cart.Cart
	RemoteCart RemoteCart
	Browser    paychannel.Browser
	Channel    paychannel.Config
}

// Orchestrator runs one checkout session at a time over the local cart.
type Orchestrator struct {
	deps OrchestratorDeps
}

func NewOrchestrator(deps OrchestratorDeps) *Orchestrator {
	return &Orchestrator{deps: deps}
}

// Checkout validates the cart and draft, then places a cash-on-delivery
// order or runs the gateway payment. The cart is cleared only on a
// successful outcome.
func (o *Orchestrator) Checkout(ctx context.Context, draft models.CheckoutDraft) Result {
	logPrefix := utils.LogPrefix(utils.GenerateCorrelationID())
	items := o.deps.Cart.Snapshot()

	slog.Info(logPrefix+"Checkout started", "payment_method", draft.PaymentMethod, "shipping_method", draft.ShippingMethod, "lines", len(items))

	totals, err := validateCart(items, draft.ShippingMethod)
	if err != nil {
		return o.fail(logPrefix, err)
	}
	if err := validateCustomer(draft.Customer); err != nil {
		return o.fail(logPrefix, err)
	}

	var res Result
	switch draft.PaymentMethod {
	case models.PaymentCOD:
		res = o.placeCOD(ctx, logPrefix, items, draft, totals)
	case models.PaymentVNPay:
		res = o.payVNPay(ctx, logPrefix, items, draft, totals)
	default:
		return o.fail(logPrefix, newError(KindValidation, "Vui lòng chọn phương thức thanh toán", nil))
	}
	res.Totals = totals
	return res
}

func (o *Orchestrator) fail(logPrefix string, err error) Result {
	res := failure(err)
	slog.Warn(logPrefix+"Checkout failed", "kind", res.Kind, "message", res.Message, "error", err)
	return res
}

func (o *Orchestrator) placeCOD(ctx context.Context, logPrefix string, items []models.CartItem, draft models.CheckoutDraft, totals cart.Totals) Result {
	if err := o.deps.Preparer.ValidateAvailability(ctx, items); err != nil {
		return o.fail(logPrefix, err)
	}

	order, err := o.deps.Placer.PlaceOrder(ctx, models.PlaceOrderRequest{
		Items:          items,
		Customer:       draft.Customer,
		ShippingMethod: draft.ShippingMethod,
		ShippingFee:    totals.ShippingFee,
		PaymentMethod:  models.PaymentCOD,
		Note:           draft.Note,
		Total:          totals.Total,
	})
	if err != nil {
		return o.fail(logPrefix, classify(err, "Không thể đặt hàng"))
	}

	clearCarts(context.WithoutCancel(ctx), logPrefix, o.deps.Cart, o.deps.RemoteCart)
	slog.Info(logPrefix+"COD order placed", "order_id", order.ID, "total", totals.Total)

	return Result{
		Success:  true,
		Message:  "Đặt hàng thành công",
		NextStep: NextViewOrder,
		OrderID:  order.ID,
		Outcome:  OutcomeConfirmed,
	}
}

func (o *Orchestrator) payVNPay(ctx context.Context, logPrefix string, items []models.CartItem, draft models.CheckoutDraft, totals cart.Totals) Result {
	pending, err := o.deps.Preparer.PrepareOrder(ctx, items, draft.Customer, draft.ShippingMethod, draft.Note)
	if err != nil {
		return o.fail(logPrefix, err)
	}
	paymentURL, err := o.deps.Preparer.RequestPaymentURL(ctx, pending)
	if err != nil {
		return o.fail(logPrefix, err)
	}

	browserCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	ch := paychannel.Open(ctx, o.deps.Channel, paymentURL)
	slog.Info(logPrefix+"Payment channel opened", "txn_ref", pending.TxnRef, "session", ch.ID())

	go func() {
		if err := o.deps.Browser.Present(browserCtx, ch); err != nil && !errors.Is(err, context.Canceled) {
			slog.Warn(logPrefix+"Payment page failed", "txn_ref", pending.TxnRef, "error", err)
		}
	}()

	// the channel ends itself when ctx is done and still hands over a
	// result detected before that, so the wait must outlive ctx
	ev, err := ch.Wait(context.WithoutCancel(ctx))
	if err != nil {
		ev = paychannel.Event{Kind: paychannel.EventCancelled, Message: "Đã hủy thanh toán"}
	}

	switch ev.Kind {
	case paychannel.EventCancelled:
		slog.Info(logPrefix+"Payment cancelled", "txn_ref", pending.TxnRef)
		return Result{Message: ev.Message, Kind: KindCancelled, Retryable: true, NextStep: NextRetry, TxnRef: pending.TxnRef}
	case paychannel.EventTimedOut:
		slog.Warn(logPrefix+"Payment timed out", "txn_ref", pending.TxnRef)
		return Result{Message: ev.Message, Kind: KindTimeout, Retryable: true, NextStep: NextRetry, TxnRef: pending.TxnRef}
	}

	txnRef := ev.Params.TxnRef()
	if txnRef != pending.TxnRef {
		slog.Warn(logPrefix+"Callback transaction reference differs from pending order", "expected", pending.TxnRef, "got", txnRef)
	}

	details := &models.OrderDetails{
		TxnRef:         txnRef,
		Items:          items,
		Customer:       draft.Customer,
		ShippingMethod: draft.ShippingMethod,
		Total:          totals.Total,
	}
	// a gateway result is reconciled to the end even if the session is gone
	out, err := o.deps.Reconciler.Reconcile(context.WithoutCancel(ctx), ev.Params, details)
	if err != nil {
		return o.fail(logPrefix, err)
	}

	if out.Kind == OutcomeDeclined {
		return o.fail(logPrefix, &Error{Kind: KindDeclined, Message: out.Message, Code: out.ResponseCode})
	}

	next := NextViewOrder
	if out.OrderID == "" {
		next = NextGoHome
	}
	return Result{
		Success:  true,
		Message:  out.Message,
		NextStep: next,
		OrderID:  out.OrderID,
		TxnRef:   out.TxnRef,
		Outcome:  out.Kind,
	}
}
