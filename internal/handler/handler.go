// Package handler contains the HTTP transport of the card service. It
// is a thin adapter: request shapes are translated into service inputs
// and error codes into HTTP statuses, with no business logic of its own.
package handler

import (
	"context"
	"math"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/encontrao/pos-system/internal/middleware"
	"github.com/encontrao/pos-system/internal/model"
	"github.com/encontrao/pos-system/internal/service"
)

// Service defines the business logic contract used by the HTTP handlers.
type Service interface {
	CreateSale(ctx context.Context, actor model.Actor, in service.SaleInput) (*service.SaleReceipt, error)
	ListSales(ctx context.Context, actor model.Actor, category model.Category) ([]model.Sale, error)
	ApplyBalanceDelta(ctx context.Context, actor model.Actor, in service.BalanceInput) (int64, error)
	CreateCard(ctx context.Context, actor model.Actor, in service.CardInput) (*model.Card, error)
	ListCards(ctx context.Context, actor model.Actor) ([]model.Card, error)
	GetCardByNumber(ctx context.Context, actor model.Actor, number string) (*model.Card, error)
	GetOwnCard(ctx context.Context, actor model.Actor) (*model.Card, error)
	AssociateCard(ctx context.Context, actor model.Actor, cardNumber, cardCode string) (*model.Card, error)
	ListLedgerEntries(ctx context.Context, actor model.Actor, cardID string) ([]model.LedgerEntry, error)
	CreateProduct(ctx context.Context, actor model.Actor, in service.ProductInput) (*model.Product, error)
	UpdateProduct(ctx context.Context, actor model.Actor, productID string, in service.ProductInput) (*model.Product, error)
	DeleteProduct(ctx context.Context, actor model.Actor, productID string) error
	ListProducts(ctx context.Context, actor model.Actor, category model.Category) ([]model.Product, error)
	ListOpenOrders(ctx context.Context, actor model.Actor) ([]model.Order, error)
	MarkOrderDelivered(ctx context.Context, actor model.Actor, orderID string) (*model.Order, error)
}

// Handler implements the HTTP handlers of the card service API.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
}

// NewHandler creates a new HTTP handler set.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
	}
}

func toCents(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

func fromCents(cents int64) float64 {
	return float64(cents) / 100
}

func (h *Handler) actor(w http.ResponseWriter, r *http.Request) (model.Actor, bool) {
	actor, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		h.writeErrorCode(w, http.StatusUnauthorized, "UNAUTHENTICATED", "authentication required")
		return model.Actor{}, false
	}
	return actor, true
}

type saleItemRequest struct {
	ProductID string `json:"productId" validate:"required,uuid"`
	Quantity  int    `json:"quantity" validate:"required,gt=0"`
}

type createSaleRequest struct {
	CardNumber string            `json:"cardNumber" validate:"required"`
	Category   string            `json:"category" validate:"required,oneof=store snackbar giftshop"`
	Items      []saleItemRequest `json:"items" validate:"required,min=1,dive"`
}

// CreateSale handles POST /api/sales.
func (h *Handler) CreateSale(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	var req createSaleRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	items := make([]service.SaleItemInput, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, service.SaleItemInput{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
		})
	}

	receipt, err := h.service.CreateSale(r.Context(), actor, service.SaleInput{
		CardNumber: req.CardNumber,
		Category:   model.Category(req.Category),
		Items:      items,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, map[string]any{
		"success":    true,
		"saleId":     receipt.SaleID,
		"orderId":    receipt.OrderID,
		"total":      fromCents(receipt.TotalCents),
		"newBalance": fromCents(receipt.NewBalanceCents),
		"message":    receipt.Message,
	})
}

type saleItemResponse struct {
	ProductID   string  `json:"productId"`
	ProductName string  `json:"productName"`
	Quantity    int     `json:"quantity"`
	UnitPrice   float64 `json:"unitPrice"`
}

type saleResponse struct {
	ID        string             `json:"id"`
	SellerID  string             `json:"sellerId"`
	CardID    string             `json:"cardId"`
	Category  string             `json:"category"`
	Total     float64            `json:"total"`
	Status    string             `json:"status"`
	Items     []saleItemResponse `json:"items"`
	CreatedAt string             `json:"createdAt"`
}

// ListSales handles GET /api/sales?category=...
func (h *Handler) ListSales(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	category := model.Category(r.URL.Query().Get("category"))

	sales, err := h.service.ListSales(r.Context(), actor, category)
	if err != nil {
		h.writeError(w, err)
		return
	}

	resp := make([]saleResponse, 0, len(sales))
	for _, s := range sales {
		items := make([]saleItemResponse, 0, len(s.Items))
		for _, item := range s.Items {
			items = append(items, saleItemResponse{
				ProductID:   item.ProductID,
				ProductName: item.ProductName,
				Quantity:    item.Quantity,
				UnitPrice:   fromCents(item.UnitPriceCents),
			})
		}
		resp = append(resp, saleResponse{
			ID:        s.ID,
			SellerID:  s.SellerID,
			CardID:    s.CardID,
			Category:  string(s.Category),
			Total:     fromCents(s.TotalCents),
			Status:    string(s.Status),
			Items:     items,
			CreatedAt: s.CreatedAt.Format(time.RFC3339),
		})
	}

	h.writeJSON(w, http.StatusOK, resp)
}

type balanceRequest struct {
	CardID      string  `json:"cardId" validate:"required,uuid"`
	Amount      float64 `json:"amount" validate:"required,gt=0"`
	Type        string  `json:"type" validate:"required,oneof=credit debit"`
	Description string  `json:"description"`
}

// ApplyBalanceDelta handles POST /api/balance.
func (h *Handler) ApplyBalanceDelta(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	var req balanceRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	newBalance, err := h.service.ApplyBalanceDelta(r.Context(), actor, service.BalanceInput{
		CardID:      req.CardID,
		AmountCents: toCents(req.Amount),
		Type:        model.LedgerEntryType(req.Type),
		Description: req.Description,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"newBalance": fromCents(newBalance),
		"message":    "balance updated",
	})
}

type cardResponse struct {
	ID         string  `json:"id"`
	Number     string  `json:"number"`
	HolderName string  `json:"holderName"`
	Phone      string  `json:"phone"`
	Balance    float64 `json:"balance"`
	Associated bool    `json:"associated"`
	OwnerID    *string `json:"ownerId"`
	CreatedAt  string  `json:"createdAt"`
}

// The card code is a shared secret and never serialized.
func toCardResponse(c *model.Card) cardResponse {
	return cardResponse{
		ID:         c.ID,
		Number:     c.Number,
		HolderName: c.HolderName,
		Phone:      c.Phone,
		Balance:    fromCents(c.BalanceCents),
		Associated: c.Associated,
		OwnerID:    c.OwnerID,
		CreatedAt:  c.CreatedAt.Format(time.RFC3339),
	}
}

type createCardRequest struct {
	Number         string  `json:"number" validate:"required"`
	Code           string  `json:"code" validate:"required"`
	HolderName     string  `json:"holderName"`
	Phone          string  `json:"phone"`
	InitialBalance float64 `json:"initialBalance" validate:"gte=0"`
}

// CreateCard handles POST /api/cards.
func (h *Handler) CreateCard(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	var req createCardRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	card, err := h.service.CreateCard(r.Context(), actor, service.CardInput{
		Number:              req.Number,
		Code:                req.Code,
		HolderName:          req.HolderName,
		Phone:               req.Phone,
		InitialBalanceCents: toCents(req.InitialBalance),
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, toCardResponse(card))
}

// ListCards handles GET /api/cards.
func (h *Handler) ListCards(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	cards, err := h.service.ListCards(r.Context(), actor)
	if err != nil {
		h.writeError(w, err)
		return
	}

	resp := make([]cardResponse, 0, len(cards))
	for i := range cards {
		resp = append(resp, toCardResponse(&cards[i]))
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// GetOwnCard handles GET /api/cards/me.
func (h *Handler) GetOwnCard(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	card, err := h.service.GetOwnCard(r.Context(), actor)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, toCardResponse(card))
}

// GetCardByNumber handles GET /api/cards/number/{number}.
func (h *Handler) GetCardByNumber(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	card, err := h.service.GetCardByNumber(r.Context(), actor, chi.URLParam(r, "number"))
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, toCardResponse(card))
}

type associateCardRequest struct {
	CardNumber string `json:"cardNumber" validate:"required"`
	CardCode   string `json:"cardCode" validate:"required"`
}

// AssociateCard handles POST /api/cards/associate.
func (h *Handler) AssociateCard(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	var req associateCardRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	card, err := h.service.AssociateCard(r.Context(), actor, req.CardNumber, req.CardCode)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, toCardResponse(card))
}

type ledgerEntryResponse struct {
	ID          string  `json:"id"`
	CardID      string  `json:"cardId"`
	Amount      float64 `json:"amount"`
	Type        string  `json:"type"`
	Description string  `json:"description"`
	CreatedBy   string  `json:"createdBy"`
	CreatedAt   string  `json:"createdAt"`
}

// ListLedgerEntries handles GET /api/cards/{cardID}/ledger.
func (h *Handler) ListLedgerEntries(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	entries, err := h.service.ListLedgerEntries(r.Context(), actor, chi.URLParam(r, "cardID"))
	if err != nil {
		h.writeError(w, err)
		return
	}

	resp := make([]ledgerEntryResponse, 0, len(entries))
	for _, e := range entries {
		resp = append(resp, ledgerEntryResponse{
			ID:          e.ID,
			CardID:      e.CardID,
			Amount:      fromCents(e.AmountCents),
			Type:        string(e.Type),
			Description: e.Description,
			CreatedBy:   e.CreatedBy,
			CreatedAt:   e.CreatedAt.Format(time.RFC3339),
		})
	}

	h.writeJSON(w, http.StatusOK, resp)
}

type productRequest struct {
	Category    string  `json:"category" validate:"omitempty,oneof=store snackbar giftshop"`
	Name        string  `json:"name" validate:"required"`
	Price       float64 `json:"price" validate:"required,gt=0"`
	Description string  `json:"description"`
	Stock       int     `json:"stock" validate:"gte=0"`
}

type productResponse struct {
	ID          string  `json:"id"`
	Category    string  `json:"category"`
	Name        string  `json:"name"`
	Price       float64 `json:"price"`
	Description string  `json:"description"`
	Stock       int     `json:"stock"`
	Active      bool    `json:"active"`
	CreatedAt   string  `json:"createdAt"`
	UpdatedAt   string  `json:"updatedAt"`
}

func toProductResponse(p *model.Product) productResponse {
	return productResponse{
		ID:          p.ID,
		Category:    string(p.Category),
		Name:        p.Name,
		Price:       fromCents(p.PriceCents),
		Description: p.Description,
		Stock:       p.Stock,
		Active:      p.Active,
		CreatedAt:   p.CreatedAt.Format(time.RFC3339),
		UpdatedAt:   p.UpdatedAt.Format(time.RFC3339),
	}
}

// CreateProduct handles POST /api/products.
func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	var req productRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	product, err := h.service.CreateProduct(r.Context(), actor, service.ProductInput{
		Category:    model.Category(req.Category),
		Name:        req.Name,
		PriceCents:  toCents(req.Price),
		Description: req.Description,
		Stock:       req.Stock,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, toProductResponse(product))
}

// UpdateProduct handles PUT /api/products/{productID}.
func (h *Handler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	var req productRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	product, err := h.service.UpdateProduct(r.Context(), actor, chi.URLParam(r, "productID"), service.ProductInput{
		Name:        req.Name,
		PriceCents:  toCents(req.Price),
		Description: req.Description,
		Stock:       req.Stock,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, toProductResponse(product))
}

// DeleteProduct handles DELETE /api/products/{productID}.
func (h *Handler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	if err := h.service.DeleteProduct(r.Context(), actor, chi.URLParam(r, "productID")); err != nil {
		h.writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListProducts handles GET /api/products?category=...
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	category := model.Category(r.URL.Query().Get("category"))

	products, err := h.service.ListProducts(r.Context(), actor, category)
	if err != nil {
		h.writeError(w, err)
		return
	}

	resp := make([]productResponse, 0, len(products))
	for i := range products {
		resp = append(resp, toProductResponse(&products[i]))
	}

	h.writeJSON(w, http.StatusOK, resp)
}

type orderResponse struct {
	ID           string  `json:"id"`
	SaleID       string  `json:"saleId"`
	CardID       string  `json:"cardId"`
	CustomerName string  `json:"customerName"`
	Total        float64 `json:"total"`
	Status       string  `json:"status"`
	CreatedAt    string  `json:"createdAt"`
	DeliveredAt  *string `json:"deliveredAt,omitempty"`
}

func toOrderResponse(o *model.Order) orderResponse {
	resp := orderResponse{
		ID:           o.ID,
		SaleID:       o.SaleID,
		CardID:       o.CardID,
		CustomerName: o.CustomerName,
		Total:        fromCents(o.TotalCents),
		Status:       string(o.Status),
		CreatedAt:    o.CreatedAt.Format(time.RFC3339),
	}
	if o.DeliveredAt != nil {
		s := o.DeliveredAt.Format(time.RFC3339)
		resp.DeliveredAt = &s
	}
	return resp
}

// ListOpenOrders handles GET /api/orders.
func (h *Handler) ListOpenOrders(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	orders, err := h.service.ListOpenOrders(r.Context(), actor)
	if err != nil {
		h.writeError(w, err)
		return
	}

	resp := make([]orderResponse, 0, len(orders))
	for i := range orders {
		resp = append(resp, toOrderResponse(&orders[i]))
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// MarkOrderDelivered handles POST /api/orders/{orderID}/deliver.
func (h *Handler) MarkOrderDelivered(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	order, err := h.service.MarkOrderDelivered(r.Context(), actor, chi.URLParam(r, "orderID"))
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, toOrderResponse(order))
}
