package httpapi

import (
	"net/http"
	"strconv"

	"github.com/safar/go-sql-shop/internal/apperr"
	"github.com/safar/go-sql-shop/internal/models"
	"go.uber.org/zap"
)

const headerIdempotencyKey = "Idempotency-Key"

// Checkout honours Idempotency-Key: a key already used by this user within
// the guard's TTL is rejected with 409 and checkout does not run. A failed
// checkout releases its key so the client can retry.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := callerFrom(ctx).userID

	key := r.Header.Get(headerIdempotencyKey)
	scope := "checkout:" + strconv.FormatInt(userID, 10)
	if key != "" && h.idempotency != nil {
		claimed, err := h.idempotency.Claim(ctx, scope, key)
		if err != nil {
			h.respondError(w, r, err)
			return
		}
		if !claimed {
			h.respondError(w, r, apperr.Conflict("idempotency key %q has already been used", key))
			return
		}
	}

	order, err := h.checkout.Checkout(ctx, userID)
	if err != nil {
		if key != "" && h.idempotency != nil {
			if releaseErr := h.idempotency.Release(ctx, scope, key); releaseErr != nil {
				h.logger.Warn("release idempotency key failed", zap.String("key", key), zap.Error(releaseErr))
			}
		}
		h.respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, newOrderView(order, nil))
}

func (h *Handler) ListMyOrders(w http.ResponseWriter, r *http.Request) {
	page, err := h.orders.ListOrdersByUser(r.Context(), callerFrom(r.Context()).userID, r.URL.Query().Get("cursor"), queryInt(r, "limit"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, cursorView[orderView]{
		Items:      mapItems(page.Items, func(o *models.Order) orderView { return newOrderView(o, nil) }),
		NextCursor: page.NextCursor,
		HasMore:    page.HasMore,
	})
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	order, ok := h.accessibleOrder(w, r)
	if !ok {
		return
	}

	lines, err := h.orders.GetOrderLines(r.Context(), order.ID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, newOrderView(order, lines))
}

func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	order, ok := h.accessibleOrder(w, r)
	if !ok {
		return
	}

	cancelled, err := h.orders.CancelOrder(r.Context(), order.ID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, newOrderView(cancelled, nil))
}

func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	result, err := h.orders.ListOrders(r.Context(), queryInt(r, "page"), queryInt(r, "page_size"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, pageView[orderView]{
		Items:      mapItems(result.Items, func(o *models.Order) orderView { return newOrderView(o, nil) }),
		Total:      result.Total,
		Page:       result.Page,
		PageSize:   result.PageSize,
		TotalPages: result.TotalPages,
	})
}

func (h *Handler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	var req struct {
		Status models.OrderStatus `json:"status"`
	}
	if err := decodeJSON(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}

	order, err := h.orders.UpdateStatus(r.Context(), id, req.Status)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, newOrderView(order, nil))
}

func (h *Handler) SetPaymentReference(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	var req struct {
		ExternalPaymentRef string `json:"external_payment_ref"`
	}
	if err := decodeJSON(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}

	order, err := h.orders.SetPaymentReference(r.Context(), id, req.ExternalPaymentRef)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, newOrderView(order, nil))
}

func (h *Handler) DeleteOrder(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	if err := h.orders.DeleteOrder(r.Context(), id); err != nil {
		h.respondError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// accessibleOrder loads the order named in the path for its owner or an admin.
func (h *Handler) accessibleOrder(w http.ResponseWriter, r *http.Request) (*models.Order, bool) {
	id, err := idParam(r)
	if err != nil {
		h.respondError(w, r, err)
		return nil, false
	}

	order, err := h.orders.GetOrder(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return nil, false
	}

	if !callerFrom(r.Context()).canAccess(order.UserID) {
		h.respondError(w, r, apperr.Forbidden("order %d belongs to another user", id))
		return nil, false
	}
	return order, true
}
