package checkout

import (
	"context"
	"errors"

	"storefront-checkout/pkg/api"
	"storefront-checkout/pkg/cart"
)

type Kind string

const (
	KindValidation   Kind = "validation"
	KindAvailability Kind = "availability"
	KindNetwork      Kind = "network"
	KindRejected     Kind = "rejected"
	KindDeclined     Kind = "declined"
	KindFatal        Kind = "fatal"
	KindCancelled    Kind = "cancelled"
	KindTimeout      Kind = "timeout"
)

// NextStep is the action offered to the user next to a result message.
type NextStep string

const (
	NextGoHome         NextStep = "go_home"
	NextRetry          NextStep = "retry"
	NextRemoveItem     NextStep = "remove_item"
	NextFixForm        NextStep = "fix_form"
	NextContactSupport NextStep = "contact_support"
	NextViewOrder      NextStep = "view_order"
)

// ItemIssue names one cart line that failed the availability check.
type ItemIssue struct {
	ProductID string `json:"productId"`
	Name      string `json:"name"`
	Reason    string `json:"reason"`
}

type Error struct {
	Kind    Kind
	Message string
	// Code is the gateway response code of a declined payment.
	Code  string
	Items []ItemIssue
	Err   error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return string(e.Kind) + ": " + e.Message + ": " + e.Err.Error()
	}
	return string(e.Kind) + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Retryable() bool {
	return e.Kind == KindNetwork || e.Kind == KindTimeout
}

func (e *Error) NextStep() NextStep {
	switch e.Kind {
	case KindValidation:
		return NextFixForm
	case KindAvailability:
		return NextRemoveItem
	case KindNetwork, KindTimeout, KindDeclined, KindCancelled:
		return NextRetry
	case KindRejected:
		return NextGoHome
	default:
		return NextContactSupport
	}
}

const (
	msgNetwork = "Không thể kết nối tới máy chủ, vui lòng thử lại"
	msgFatal   = "Đã có lỗi xảy ra, vui lòng thử lại sau"
)

func newError(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// classify converts a backend call failure into a checkout error.
// Non-2xx client errors and success=false replies are rejections; everything
// else at the transport boundary is a retryable network error.
func classify(err error, rejectedFallback string) *Error {
	var ce *Error
	if errors.As(err, &ce) {
		return ce
	}
	if errors.Is(err, context.Canceled) {
		return newError(KindCancelled, "Đã hủy thanh toán", err)
	}
	if api.IsRejected(err) {
		msg := api.Message(err)
		if msg == "" {
			msg = rejectedFallback
		}
		return newError(KindRejected, msg, err)
	}
	return newError(KindNetwork, msgNetwork, err)
}

// Result is the {success, message} shape every checkout entry point returns.
// Raw errors never cross it.
type Result struct {
	Success   bool        `json:"success"`
	Message   string      `json:"message"`
	Kind      Kind        `json:"kind,omitempty"`
	Retryable bool        `json:"retryable"`
	NextStep  NextStep    `json:"nextStep"`
	OrderID   string      `json:"orderId,omitempty"`
	TxnRef    string      `json:"txnRef,omitempty"`
	Totals    cart.Totals `json:"totals"`
	Outcome   OutcomeKind `json:"outcome,omitempty"`
	Items     []ItemIssue `json:"items,omitempty"`
}

func failure(err error) Result {
	var ce *Error
	if !errors.As(err, &ce) {
		ce = newError(KindFatal, msgFatal, err)
	}
	return Result{
		Success:   false,
		Message:   ce.Message,
		Kind:      ce.Kind,
		Retryable: ce.Retryable(),
		NextStep:  ce.NextStep(),
		Items:     ce.Items,
	}
}
