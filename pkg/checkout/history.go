package checkout

import (
	"context"
	"log/slog"
	"sort"

	"storefront-checkout/pkg/models"
	"storefront-checkout/pkg/offlinequeue"
)

type OrderReader interface {
	OrdersByUser(ctx context.Context, userID string) ([]models.Order, error)
	OrderByID(ctx context.Context, orderID string) (models.Order, error)
	CancelOrder(ctx context.Context, orderID string) error
}

type PendingProcessor interface {
	ProcessPending(ctx context.Context) (offlinequeue.Summary, error)
	Pending(ctx context.Context) ([]models.OfflineOrder, error)
}

type UserSource interface {
	UserID() string
}

// History backs the order history screen. Listing first pushes queued
// offline orders to the backend so they show up as real orders.
type History struct {
	orders OrderReader
	queue  PendingProcessor
	user   UserSource
}

func NewHistory(orders OrderReader, queue PendingProcessor, user UserSource) *History {
	return &History{orders: orders, queue: queue, user: user}
}

type HistoryView struct {
	Orders []models.Order
	// Pending are payments still waiting for backend confirmation.
	Pending []models.OfflineOrder
	Sync    offlinequeue.Summary
}

var cancellable = map[string]bool{
	"pending":    true,
	"processing": true,
	"confirmed":  true,
}

func (h *History) List(ctx context.Context) (HistoryView, error) {
	userID := h.user.UserID()
	if userID == "" {
		return HistoryView{}, newError(KindValidation, "Vui lòng đăng nhập để xem đơn hàng", nil)
	}

	var view HistoryView
	if h.queue != nil {
		summary, err := h.queue.ProcessPending(ctx)
		if err != nil {
			slog.Warn("Offline order sync failed", "error", err)
		}
		view.Sync = summary
		if view.Pending, err = h.queue.Pending(ctx); err != nil {
			slog.Warn("Failed to list pending offline orders", "error", err)
		}
	}

	orders, err := h.orders.OrdersByUser(ctx, userID)
	if err != nil {
		return view, classify(err, "Không thể tải danh sách đơn hàng")
	}
	sort.SliceStable(orders, func(i, j int) bool {
		return orders[i].CreatedAt.After(orders[j].CreatedAt)
	})
	view.Orders = orders
	return view, nil
}

func (h *History) Detail(ctx context.Context, orderID string) (models.Order, error) {
	order, err := h.orders.OrderByID(ctx, orderID)
	if err != nil {
		return models.Order{}, classify(err, "Không tìm thấy đơn hàng")
	}
	return order, nil
}

// Cancel cancels an order that has not shipped yet.
func (h *History) Cancel(ctx context.Context, orderID string) Result {
	order, err := h.Detail(ctx, orderID)
	if err != nil {
		return failure(err)
	}
	if !cancellable[order.Status] {
		return failure(newError(KindRejected, "Không thể hủy đơn hàng ở trạng thái hiện tại", nil))
	}
	if err := h.orders.CancelOrder(ctx, orderID); err != nil {
		return failure(classify(err, "Không thể hủy đơn hàng"))
	}
	slog.Info("Order cancelled", "order_id", orderID)
	return Result{Success: true, Message: "Đã hủy đơn hàng", NextStep: NextViewOrder, OrderID: orderID}
}
