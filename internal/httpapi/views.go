package httpapi

import (
	"github.com/safar/go-sql-shop/internal/models"
	"github.com/shopspring/decimal"
)

// Money stays in integer minor units on the wire; the *_display fields are
// the same amounts rendered with two decimals for people.
func displayMoney(minor int64) string {
	return decimal.New(minor, -2).StringFixed(2)
}

type productView struct {
	models.Product
	PriceDisplay string `json:"price_display"`
}

func newProductView(p *models.Product) productView {
	return productView{Product: *p, PriceDisplay: displayMoney(p.Price)}
}

type orderLineView struct {
	models.OrderLine
	PriceDisplay    string `json:"price_display"`
	Subtotal        int64  `json:"subtotal"`
	SubtotalDisplay string `json:"subtotal_display"`
}

type orderView struct {
	models.Order
	TotalDisplay string          `json:"total_display"`
	Lines        []orderLineView `json:"lines,omitempty"`
}

func newOrderView(o *models.Order, lines []models.OrderLine) orderView {
	view := orderView{Order: *o, TotalDisplay: displayMoney(o.Total)}
	for _, line := range lines {
		view.Lines = append(view.Lines, orderLineView{
			OrderLine:       line,
			PriceDisplay:    displayMoney(line.Price),
			Subtotal:        line.Subtotal(),
			SubtotalDisplay: displayMoney(line.Subtotal()),
		})
	}
	return view
}

type statsView struct {
	models.Stats
	TotalRevenueDisplay string `json:"total_revenue_display"`
}

type pageView[T any] struct {
	Items      []T   `json:"items"`
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	TotalPages int   `json:"total_pages"`
}

type cursorView[T any] struct {
	Items      []T    `json:"items"`
	NextCursor string `json:"next_cursor,omitempty"`
	HasMore    bool   `json:"has_more"`
}

func mapItems[S, T any](items []S, fn func(*S) T) []T {
	out := make([]T, 0, len(items))
	for i := range items {
		out = append(out, fn(&items[i]))
	}
	return out
}
