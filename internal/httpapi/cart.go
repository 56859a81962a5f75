package httpapi

import (
	"net/http"

	"github.com/safar/go-sql-shop/internal/apperr"
	"github.com/safar/go-sql-shop/internal/models"
)

func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	lines, err := h.cart.GetCartByUserID(r.Context(), callerFrom(r.Context()).userID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string][]models.CartLine{"items": lines})
}

func (h *Handler) AddToCart(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProductID int64 `json:"product_id"`
		Quantity  int   `json:"quantity"`
	}
	if err := decodeJSON(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}

	line, err := h.cart.AddToCart(r.Context(), callerFrom(r.Context()).userID, req.ProductID, req.Quantity)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, line)
}

func (h *Handler) UpdateCartItem(w http.ResponseWriter, r *http.Request) {
	line, ok := h.ownedCartLine(w, r)
	if !ok {
		return
	}

	var req struct {
		Quantity int `json:"quantity"`
	}
	if err := decodeJSON(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}

	updated, err := h.cart.UpdateQuantity(r.Context(), line.ID, req.Quantity)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, updated)
}

func (h *Handler) RemoveCartItem(w http.ResponseWriter, r *http.Request) {
	line, ok := h.ownedCartLine(w, r)
	if !ok {
		return
	}

	if err := h.cart.RemoveFromCart(r.Context(), line.ID); err != nil {
		h.respondError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ClearCart(w http.ResponseWriter, r *http.Request) {
	if err := h.cart.ClearCart(r.Context(), callerFrom(r.Context()).userID); err != nil {
		h.respondError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ownedCartLine loads the line named in the path and writes the error response
// itself when the line is missing or belongs to someone else.
func (h *Handler) ownedCartLine(w http.ResponseWriter, r *http.Request) (*models.CartLine, bool) {
	id, err := idParam(r)
	if err != nil {
		h.respondError(w, r, err)
		return nil, false
	}

	line, err := h.cart.GetCartItem(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return nil, false
	}

	if line.UserID != callerFrom(r.Context()).userID {
		h.respondError(w, r, apperr.Forbidden("cart line %d belongs to another user", id))
		return nil, false
	}
	return line, true
}
