package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	custommiddleware "github.com/encontrao/pos-system/internal/middleware"
)

// SetupRouter wires the HTTP routes and middleware of the card service.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware.Middleware)

			r.Post("/sales", h.CreateSale)
			r.Get("/sales", h.ListSales)

			r.Post("/cards", h.CreateCard)
			r.Get("/cards", h.ListCards)
			r.Get("/cards/me", h.GetOwnCard)
			r.Post("/cards/associate", h.AssociateCard)
			r.Get("/cards/number/{number}", h.GetCardByNumber)
			r.Get("/cards/{cardID}/ledger", h.ListLedgerEntries)

			r.Post("/balance", h.ApplyBalanceDelta)

			r.Post("/products", h.CreateProduct)
			r.Get("/products", h.ListProducts)
			r.Put("/products/{productID}", h.UpdateProduct)
			r.Delete("/products/{productID}", h.DeleteProduct)

			r.Get("/orders", h.ListOpenOrders)
			r.Post("/orders/{orderID}/deliver", h.MarkOrderDelivered)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
