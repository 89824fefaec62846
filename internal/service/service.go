// Package service implements the business logic of the card service:
// the sale engine, the balance ledger, card management and the order
// fulfillment tracker.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/encontrao/pos-system/internal/apperrors"
	"github.com/encontrao/pos-system/internal/cache"
	"github.com/encontrao/pos-system/internal/model"
	"github.com/encontrao/pos-system/internal/permissions"
	"github.com/encontrao/pos-system/internal/repository"
	"github.com/encontrao/pos-system/internal/validation"
)

// Repository describes the data access contract used by the service.
type Repository interface {
	Close() error
	CreateCard(ctx context.Context, card model.Card, createdBy string) (string, error)
	GetCardByNumber(ctx context.Context, number string) (*model.Card, error)
	GetCardByID(ctx context.Context, id string) (*model.Card, error)
	GetCardByOwner(ctx context.Context, ownerID string) (*model.Card, error)
	ListCards(ctx context.Context) ([]model.Card, error)
	AssociateCard(ctx context.Context, cardID, ownerID, holderName string) error
	CreateProduct(ctx context.Context, p model.Product) (string, error)
	UpdateProduct(ctx context.Context, p model.Product) error
	DeactivateProduct(ctx context.Context, id string) error
	GetProductByID(ctx context.Context, id string) (*model.Product, error)
	ListActiveProducts(ctx context.Context, category model.Category) ([]model.Product, error)
	GetActiveProductsByIDs(ctx context.Context, category model.Category, ids []string) ([]model.Product, error)
	ApplyLedgerDelta(ctx context.Context, cardID string, amountCents int64, entryType model.LedgerEntryType, description, createdBy string) (int64, error)
	ListLedgerEntries(ctx context.Context, cardID string) ([]model.LedgerEntry, error)
	CreateSale(ctx context.Context, p repository.SaleParams) (*repository.SaleResult, error)
	ListSalesByCategory(ctx context.Context, category model.Category) ([]model.Sale, error)
	ListOpenOrders(ctx context.Context) ([]model.Order, error)
	MarkOrderDelivered(ctx context.Context, orderID string) (*model.Order, error)
}

// Service contains the business logic of the card service.
type Service struct {
	repo    Repository
	catalog *cache.CatalogCache
	logger  *zap.Logger
}

// NewService creates the service. catalog may be nil when no cache is
// configured.
func NewService(repo Repository, catalog *cache.CatalogCache, logger *zap.Logger) *Service {
	return &Service{
		repo:    repo,
		catalog: catalog,
		logger:  logger,
	}
}

// Close releases the service resources.
func (s *Service) Close() error {
	if s.catalog != nil {
		_ = s.catalog.Close()
	}
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

func formatCents(cents int64) string {
	return fmt.Sprintf("%.2f", float64(cents)/100)
}

// denyForbidden logs a permission denial and returns the FORBIDDEN error.
// Every denial is logged with the actor and the attempted action before
// the error leaves the service.
func (s *Service) denyForbidden(actor model.Actor, action string) error {
	s.logger.Warn("permission denied",
		zap.String("actor_id", actor.ID),
		zap.String("role", actor.Role),
		zap.String("action", action),
	)
	return apperrors.New(apperrors.CodeForbidden, "role "+actor.Role+" may not "+action)
}

func requireActor(actor model.Actor) error {
	if actor.ID == "" {
		return apperrors.New(apperrors.CodeUnauthenticated, "authentication required")
	}
	return nil
}

// SaleItemInput is one requested line item. Quantities come from the
// client; prices never do.
type SaleItemInput struct {
	ProductID string
	Quantity  int
}

// SaleInput is the transport-agnostic sale intent.
type SaleInput struct {
	CardNumber string
	Category   model.Category
	Items      []SaleItemInput
}

// SaleReceipt is the result of a committed sale.
type SaleReceipt struct {
	SaleID          string
	OrderID         *string
	TotalCents      int64
	NewBalanceCents int64
	Message         string
}

// CreateSale runs the checkout sequence: validate, authorize, resolve
// the card, re-price the cart from the catalog, then hand the write
// fan-out to the repository as one transaction. Checks run in order and
// the first failure wins.
func (s *Service) CreateSale(ctx context.Context, actor model.Actor, in SaleInput) (*SaleReceipt, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}

	var badFields []string
	if !validation.IsValidCardNumber(in.CardNumber) {
		badFields = append(badFields, "cardNumber")
	}
	if !in.Category.Valid() {
		badFields = append(badFields, "category")
	}
	if len(in.Items) == 0 {
		badFields = append(badFields, "items")
	}
	for i, item := range in.Items {
		if uuid.Validate(item.ProductID) != nil {
			badFields = append(badFields, fmt.Sprintf("items[%d].productId", i))
		}
		if item.Quantity <= 0 {
			badFields = append(badFields, fmt.Sprintf("items[%d].quantity", i))
		}
	}
	if len(badFields) > 0 {
		return nil, apperrors.New(apperrors.CodeValidation, "invalid fields: "+strings.Join(badFields, ", "))
	}

	if !permissions.CanSellCategory(actor.Role, in.Category) {
		return nil, s.denyForbidden(actor, "sell in "+string(in.Category))
	}

	card, err := s.repo.GetCardByNumber(ctx, in.CardNumber)
	if err != nil {
		if errors.Is(err, repository.ErrCardNotFound) {
			return nil, apperrors.New(apperrors.CodeNotFound, "card "+in.CardNumber+" not found")
		}
		return nil, apperrors.Internal(err)
	}

	ids := make([]string, 0, len(in.Items))
	for _, item := range in.Items {
		ids = append(ids, item.ProductID)
	}

	products, err := s.repo.GetActiveProductsByIDs(ctx, in.Category, ids)
	if err != nil {
		return nil, apperrors.Internal(err)
	}

	// An inactive product, a foreign-category product or a duplicated id
	// all surface as a count mismatch, without naming the offender.
	if len(products) != len(in.Items) {
		return nil, apperrors.New(apperrors.CodeValidation,
			"one or more products are not available in category "+string(in.Category))
	}

	productByID := make(map[string]model.Product, len(products))
	for _, p := range products {
		productByID[p.ID] = p
	}

	var totalCents int64
	items := make([]repository.SaleItemParams, 0, len(in.Items))
	for _, item := range in.Items {
		p := productByID[item.ProductID]
		totalCents += p.PriceCents * int64(item.Quantity)
		items = append(items, repository.SaleItemParams{
			ProductID:      p.ID,
			ProductName:    p.Name,
			Quantity:       item.Quantity,
			UnitPriceCents: p.PriceCents,
		})
	}

	if card.BalanceCents < totalCents {
		return nil, apperrors.Newf(apperrors.CodeInsufficientFunds,
			"insufficient funds: required %s, available %s",
			formatCents(totalCents), formatCents(card.BalanceCents))
	}

	result, err := s.repo.CreateSale(ctx, repository.SaleParams{
		SellerID:          actor.ID,
		CardID:            card.ID,
		Category:          in.Category,
		Items:             items,
		TotalCents:        totalCents,
		LedgerDescription: "purchase in " + string(in.Category),
		CreateOrder:       in.Category == model.CategoryStore,
		CustomerName:      card.HolderName,
	})
	if err != nil {
		// The repository re-checks sufficiency under the row lock; a
		// concurrent debit can still win the race after our pre-check.
		var insufficient *repository.InsufficientFundsError
		if errors.As(err, &insufficient) {
			return nil, apperrors.Newf(apperrors.CodeInsufficientFunds,
				"insufficient funds: required %s, available %s",
				formatCents(insufficient.RequiredCents), formatCents(insufficient.AvailableCents))
		}
		if errors.Is(err, repository.ErrCardNotFound) {
			return nil, apperrors.New(apperrors.CodeNotFound, "card "+in.CardNumber+" not found")
		}
		return nil, apperrors.Internal(err)
	}

	s.logger.Info("sale completed",
		zap.String("sale_id", result.SaleID),
		zap.String("actor_id", actor.ID),
		zap.String("role", actor.Role),
		zap.String("category", string(in.Category)),
		zap.String("card_number", card.Number),
		zap.Int("item_count", len(items)),
		zap.Int64("total_cents", totalCents),
	)

	return &SaleReceipt{
		SaleID:          result.SaleID,
		OrderID:         result.OrderID,
		TotalCents:      totalCents,
		NewBalanceCents: result.NewBalanceCents,
		Message:         fmt.Sprintf("sale completed, total %s, new balance %s", formatCents(totalCents), formatCents(result.NewBalanceCents)),
	}, nil
}

// ListSales returns the sales history of one category.
func (s *Service) ListSales(ctx context.Context, actor model.Actor, category model.Category) ([]model.Sale, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if !category.Valid() {
		return nil, apperrors.New(apperrors.CodeValidation, "invalid fields: category")
	}
	if !permissions.IsAllowed(actor.Role, permissions.ViewSalesCapability(category)) {
		return nil, s.denyForbidden(actor, "view sales in "+string(category))
	}

	sales, err := s.repo.ListSalesByCategory(ctx, category)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	return sales, nil
}

// BalanceInput is a manual credit or debit request.
type BalanceInput struct {
	CardID      string
	AmountCents int64
	Type        model.LedgerEntryType
	Description string
}

// ApplyBalanceDelta performs a manual balance mutation through the
// ledger. Credits require the add-balance capability; debits require
// the debit-balance capability or ownership of the card.
func (s *Service) ApplyBalanceDelta(ctx context.Context, actor model.Actor, in BalanceInput) (int64, error) {
	if err := requireActor(actor); err != nil {
		return 0, err
	}

	var badFields []string
	if uuid.Validate(in.CardID) != nil {
		badFields = append(badFields, "cardId")
	}
	if in.AmountCents <= 0 {
		badFields = append(badFields, "amount")
	}
	if in.Type != model.LedgerCredit && in.Type != model.LedgerDebit {
		badFields = append(badFields, "type")
	}
	if len(badFields) > 0 {
		return 0, apperrors.New(apperrors.CodeValidation, "invalid fields: "+strings.Join(badFields, ", "))
	}

	switch in.Type {
	case model.LedgerCredit:
		if !permissions.IsAllowed(actor.Role, permissions.CapAddBalance) {
			return 0, s.denyForbidden(actor, "credit balance")
		}
	case model.LedgerDebit:
		if !permissions.IsAllowed(actor.Role, permissions.CapDebitBalance) {
			card, err := s.repo.GetCardByID(ctx, in.CardID)
			if err != nil {
				if errors.Is(err, repository.ErrCardNotFound) {
					return 0, apperrors.New(apperrors.CodeNotFound, "card not found")
				}
				return 0, apperrors.Internal(err)
			}
			if card.OwnerID == nil || *card.OwnerID != actor.ID {
				return 0, s.denyForbidden(actor, "debit a card owned by someone else")
			}
		}
	}

	description := in.Description
	if description == "" {
		description = "manual " + string(in.Type)
	}

	delta := in.AmountCents
	if in.Type == model.LedgerDebit {
		delta = -delta
	}

	newBalance, err := s.repo.ApplyLedgerDelta(ctx, in.CardID, delta, in.Type, description, actor.ID)
	if err != nil {
		var insufficient *repository.InsufficientFundsError
		if errors.As(err, &insufficient) {
			return 0, apperrors.Newf(apperrors.CodeInsufficientFunds,
				"insufficient funds: required %s, available %s",
				formatCents(insufficient.RequiredCents), formatCents(insufficient.AvailableCents))
		}
		if errors.Is(err, repository.ErrCardNotFound) {
			return 0, apperrors.New(apperrors.CodeNotFound, "card not found")
		}
		return 0, apperrors.Internal(err)
	}

	s.logger.Info("balance mutated",
		zap.String("actor_id", actor.ID),
		zap.String("role", actor.Role),
		zap.String("card_id", in.CardID),
		zap.String("type", string(in.Type)),
		zap.Int64("amount_cents", in.AmountCents),
	)

	return newBalance, nil
}

// CardInput describes a card to create. A positive initial balance is
// seeded through the ledger so the ledger-sum invariant holds from the
// first entry.
type CardInput struct {
	Number              string
	Code                string
	HolderName          string
	Phone               string
	InitialBalanceCents int64
}

// CreateCard registers a new card.
func (s *Service) CreateCard(ctx context.Context, actor model.Actor, in CardInput) (*model.Card, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if !permissions.IsAllowed(actor.Role, permissions.CapCreateCard) {
		return nil, s.denyForbidden(actor, "create card")
	}

	var badFields []string
	if !validation.IsValidCardNumber(in.Number) {
		badFields = append(badFields, "number")
	}
	if in.Code == "" {
		badFields = append(badFields, "code")
	}
	if in.InitialBalanceCents < 0 {
		badFields = append(badFields, "initialBalance")
	}
	if len(badFields) > 0 {
		return nil, apperrors.New(apperrors.CodeValidation, "invalid fields: "+strings.Join(badFields, ", "))
	}

	// The repository writes the card and the seeding ledger credit in one
	// transaction, so the ledger-sum invariant holds from the first entry.
	id, err := s.repo.CreateCard(ctx, model.Card{
		Number:       in.Number,
		Code:         in.Code,
		HolderName:   in.HolderName,
		Phone:        in.Phone,
		BalanceCents: in.InitialBalanceCents,
	}, actor.ID)
	if err != nil {
		if errors.Is(err, repository.ErrCardExists) {
			return nil, apperrors.New(apperrors.CodeConflict, "card number "+in.Number+" already exists")
		}
		return nil, apperrors.Internal(err)
	}

	card, err := s.repo.GetCardByID(ctx, id)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	return card, nil
}

// ListCards returns every card.
func (s *Service) ListCards(ctx context.Context, actor model.Actor) ([]model.Card, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if !permissions.IsAllowed(actor.Role, permissions.CapViewAllCards) {
		return nil, s.denyForbidden(actor, "view all cards")
	}

	cards, err := s.repo.ListCards(ctx)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	return cards, nil
}

// GetCardByNumber returns one card by its printed number.
func (s *Service) GetCardByNumber(ctx context.Context, actor model.Actor, number string) (*model.Card, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if !permissions.IsAllowed(actor.Role, permissions.CapViewAllCards) {
		return nil, s.denyForbidden(actor, "view card by number")
	}

	card, err := s.repo.GetCardByNumber(ctx, number)
	if err != nil {
		if errors.Is(err, repository.ErrCardNotFound) {
			return nil, apperrors.New(apperrors.CodeNotFound, "card "+number+" not found")
		}
		return nil, apperrors.Internal(err)
	}
	return card, nil
}

// GetOwnCard returns the card associated to the calling actor.
func (s *Service) GetOwnCard(ctx context.Context, actor model.Actor) (*model.Card, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}

	card, err := s.repo.GetCardByOwner(ctx, actor.ID)
	if err != nil {
		if errors.Is(err, repository.ErrCardNotFound) {
			return nil, apperrors.New(apperrors.CodeNotFound, "no card associated to this account")
		}
		return nil, apperrors.Internal(err)
	}
	return card, nil
}

// AssociateCard claims a card for the calling actor. The underlying
// update is a compare-and-swap on the associated flag, so two
// simultaneous claims resolve to exactly one winner.
func (s *Service) AssociateCard(ctx context.Context, actor model.Actor, cardNumber, cardCode string) (*model.Card, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}

	var badFields []string
	if !validation.IsValidCardNumber(cardNumber) {
		badFields = append(badFields, "cardNumber")
	}
	if cardCode == "" {
		badFields = append(badFields, "cardCode")
	}
	if len(badFields) > 0 {
		return nil, apperrors.New(apperrors.CodeValidation, "invalid fields: "+strings.Join(badFields, ", "))
	}

	card, err := s.repo.GetCardByNumber(ctx, cardNumber)
	if err != nil {
		if errors.Is(err, repository.ErrCardNotFound) {
			return nil, apperrors.New(apperrors.CodeNotFound, "card "+cardNumber+" not found")
		}
		return nil, apperrors.Internal(err)
	}

	if card.Code != cardCode {
		return nil, apperrors.New(apperrors.CodeValidation, "card code does not match")
	}

	if card.Associated {
		return nil, apperrors.New(apperrors.CodeConflict,
			"card is already associated to an account; contact the event staff")
	}

	holderName := card.HolderName
	if holderName == "" {
		holderName = actor.Email
	}

	if err := s.repo.AssociateCard(ctx, card.ID, actor.ID, holderName); err != nil {
		if errors.Is(err, repository.ErrCardAlreadyAssociated) {
			return nil, apperrors.New(apperrors.CodeConflict,
				"card is already associated to an account; contact the event staff")
		}
		if errors.Is(err, repository.ErrOwnerHasCard) {
			return nil, apperrors.New(apperrors.CodeConflict,
				"this account already has an associated card")
		}
		if errors.Is(err, repository.ErrCardNotFound) {
			return nil, apperrors.New(apperrors.CodeNotFound, "card "+cardNumber+" not found")
		}
		return nil, apperrors.Internal(err)
	}

	updated, err := s.repo.GetCardByID(ctx, card.ID)
	if err != nil {
		return nil, apperrors.Internal(err)
	}

	s.logger.Info("card associated",
		zap.String("actor_id", actor.ID),
		zap.String("card_number", cardNumber),
	)

	return updated, nil
}

// ListLedgerEntries returns the balance history of a card. Staff with
// view-all-cards see any card; everyone else only their own.
func (s *Service) ListLedgerEntries(ctx context.Context, actor model.Actor, cardID string) ([]model.LedgerEntry, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if uuid.Validate(cardID) != nil {
		return nil, apperrors.New(apperrors.CodeValidation, "invalid fields: cardId")
	}

	if !permissions.IsAllowed(actor.Role, permissions.CapViewAllCards) {
		card, err := s.repo.GetCardByID(ctx, cardID)
		if err != nil {
			if errors.Is(err, repository.ErrCardNotFound) {
				return nil, apperrors.New(apperrors.CodeNotFound, "card not found")
			}
			return nil, apperrors.Internal(err)
		}
		if card.OwnerID == nil || *card.OwnerID != actor.ID {
			return nil, s.denyForbidden(actor, "view statement of a card owned by someone else")
		}
	}

	entries, err := s.repo.ListLedgerEntries(ctx, cardID)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	return entries, nil
}

// ProductInput describes a catalog item to create or update.
type ProductInput struct {
	Category    model.Category
	Name        string
	PriceCents  int64
	Description string
	Stock       int
}

func (s *Service) canManageCatalog(actor model.Actor, category model.Category) bool {
	if permissions.IsSuperRole(actor.Role) {
		return true
	}
	return permissions.IsAllowed(actor.Role, permissions.CreateProductCapability(category))
}

func validateProductInput(in ProductInput) error {
	var badFields []string
	if !in.Category.Valid() {
		badFields = append(badFields, "category")
	}
	if in.Name == "" {
		badFields = append(badFields, "name")
	}
	if in.PriceCents <= 0 {
		badFields = append(badFields, "price")
	}
	if in.Stock < 0 {
		badFields = append(badFields, "stock")
	}
	if len(badFields) > 0 {
		return apperrors.New(apperrors.CodeValidation, "invalid fields: "+strings.Join(badFields, ", "))
	}
	return nil
}

// CreateProduct adds a catalog item to a category.
func (s *Service) CreateProduct(ctx context.Context, actor model.Actor, in ProductInput) (*model.Product, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if err := validateProductInput(in); err != nil {
		return nil, err
	}
	if !s.canManageCatalog(actor, in.Category) {
		return nil, s.denyForbidden(actor, "manage catalog of "+string(in.Category))
	}

	id, err := s.repo.CreateProduct(ctx, model.Product{
		Category:    in.Category,
		Name:        in.Name,
		PriceCents:  in.PriceCents,
		Description: in.Description,
		Stock:       in.Stock,
	})
	if err != nil {
		if errors.Is(err, repository.ErrProductExists) {
			return nil, apperrors.New(apperrors.CodeConflict,
				"an active product named "+in.Name+" already exists in "+string(in.Category))
		}
		return nil, apperrors.Internal(err)
	}

	s.catalog.Invalidate(ctx, in.Category)

	product, err := s.repo.GetProductByID(ctx, id)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	return product, nil
}

// UpdateProduct changes the mutable fields of a product. The category
// is taken from the stored product, never from the request.
func (s *Service) UpdateProduct(ctx context.Context, actor model.Actor, productID string, in ProductInput) (*model.Product, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if uuid.Validate(productID) != nil {
		return nil, apperrors.New(apperrors.CodeValidation, "invalid fields: productId")
	}

	existing, err := s.repo.GetProductByID(ctx, productID)
	if err != nil {
		if errors.Is(err, repository.ErrProductNotFound) {
			return nil, apperrors.New(apperrors.CodeNotFound, "product not found")
		}
		return nil, apperrors.Internal(err)
	}

	if !s.canManageCatalog(actor, existing.Category) {
		return nil, s.denyForbidden(actor, "manage catalog of "+string(existing.Category))
	}

	in.Category = existing.Category
	if err := validateProductInput(in); err != nil {
		return nil, err
	}

	err = s.repo.UpdateProduct(ctx, model.Product{
		ID:          productID,
		Name:        in.Name,
		PriceCents:  in.PriceCents,
		Description: in.Description,
		Stock:       in.Stock,
	})
	if err != nil {
		if errors.Is(err, repository.ErrProductExists) {
			return nil, apperrors.New(apperrors.CodeConflict,
				"an active product named "+in.Name+" already exists in "+string(existing.Category))
		}
		if errors.Is(err, repository.ErrProductNotFound) {
			return nil, apperrors.New(apperrors.CodeNotFound, "product not found")
		}
		return nil, apperrors.Internal(err)
	}

	s.catalog.Invalidate(ctx, existing.Category)

	product, err := s.repo.GetProductByID(ctx, productID)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	return product, nil
}

// DeleteProduct soft-deletes a product, removing it from the catalog
// and from future sales.
func (s *Service) DeleteProduct(ctx context.Context, actor model.Actor, productID string) error {
	if err := requireActor(actor); err != nil {
		return err
	}
	if uuid.Validate(productID) != nil {
		return apperrors.New(apperrors.CodeValidation, "invalid fields: productId")
	}

	existing, err := s.repo.GetProductByID(ctx, productID)
	if err != nil {
		if errors.Is(err, repository.ErrProductNotFound) {
			return apperrors.New(apperrors.CodeNotFound, "product not found")
		}
		return apperrors.Internal(err)
	}

	if !s.canManageCatalog(actor, existing.Category) {
		return s.denyForbidden(actor, "manage catalog of "+string(existing.Category))
	}

	if err := s.repo.DeactivateProduct(ctx, productID); err != nil {
		if errors.Is(err, repository.ErrProductNotFound) {
			return apperrors.New(apperrors.CodeNotFound, "product not found")
		}
		return apperrors.Internal(err)
	}

	s.catalog.Invalidate(ctx, existing.Category)
	return nil
}

// ListProducts returns the active catalog of a category, read through
// the cache when one is configured.
func (s *Service) ListProducts(ctx context.Context, actor model.Actor, category model.Category) ([]model.Product, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if !category.Valid() {
		return nil, apperrors.New(apperrors.CodeValidation, "invalid fields: category")
	}

	if products, ok := s.catalog.GetProducts(ctx, category); ok {
		return products, nil
	}

	products, err := s.repo.ListActiveProducts(ctx, category)
	if err != nil {
		return nil, apperrors.Internal(err)
	}

	s.catalog.SetProducts(ctx, category, products)
	return products, nil
}

// ListOpenOrders returns the orders awaiting physical delivery.
func (s *Service) ListOpenOrders(ctx context.Context, actor model.Actor) ([]model.Order, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if !permissions.IsAllowed(actor.Role, permissions.CapMarkOrderDelivered) {
		return nil, s.denyForbidden(actor, "view open orders")
	}

	orders, err := s.repo.ListOpenOrders(ctx)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	return orders, nil
}

// MarkOrderDelivered flips an order to delivered, exactly once.
func (s *Service) MarkOrderDelivered(ctx context.Context, actor model.Actor, orderID string) (*model.Order, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if uuid.Validate(orderID) != nil {
		return nil, apperrors.New(apperrors.CodeValidation, "invalid fields: orderId")
	}
	if !permissions.IsAllowed(actor.Role, permissions.CapMarkOrderDelivered) {
		return nil, s.denyForbidden(actor, "mark order delivered")
	}

	order, err := s.repo.MarkOrderDelivered(ctx, orderID)
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			return nil, apperrors.New(apperrors.CodeNotFound, "order not found")
		}
		if errors.Is(err, repository.ErrOrderNotDeliverable) {
			return nil, apperrors.New(apperrors.CodeConflict, "order is not awaiting delivery")
		}
		return nil, apperrors.Internal(err)
	}

	s.logger.Info("order delivered",
		zap.String("actor_id", actor.ID),
		zap.String("order_id", orderID),
	)

	return order, nil
}
