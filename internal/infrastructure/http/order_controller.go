package http

import (
	"context"
	"net/http"

	"marketplace-settlement/internal/application/command"
	"marketplace-settlement/internal/application/query"
	"marketplace-settlement/internal/application/services"
	"marketplace-settlement/pkg/response"
)

// OrderAPI applies order lifecycle events
type OrderAPI interface {
	Captured(ctx context.Context, cmd *command.ComputeAndRecordCommission) ([]*query.CommissionLineReadModel, error)
	Canceled(ctx context.Context, evt *services.OrderCanceled) ([]*query.PayoutReadModel, error)
}

// OrderController accepts order events from internal services over HTTP.
// Payloads are the same as on the order topic.
type OrderController struct {
	orders OrderAPI
}

// NewOrderController creates a new order controller
func NewOrderController(orders OrderAPI) *OrderController {
	return &OrderController{orders: orders}
}

// Captured handles POST /internal/orders/captured
func (c *OrderController) Captured(w http.ResponseWriter, r *http.Request) {
	var cmd command.ComputeAndRecordCommission
	if err := decodeBody(w, r, &cmd); err != nil {
		response.SendAppError(w, r, err)
		return
	}

	lines, err := c.orders.Captured(r.Context(), &cmd)
	if err != nil {
		response.SendAppError(w, r, err)
		return
	}
	response.SendSuccess(w, r, lines)
}

// Canceled handles POST /internal/orders/canceled
func (c *OrderController) Canceled(w http.ResponseWriter, r *http.Request) {
	var evt services.OrderCanceled
	if err := decodeBody(w, r, &evt); err != nil {
		response.SendAppError(w, r, err)
		return
	}

	payouts, err := c.orders.Canceled(r.Context(), &evt)
	if err != nil {
		response.SendAppError(w, r, err)
		return
	}
	response.SendSuccess(w, r, payouts)
}
