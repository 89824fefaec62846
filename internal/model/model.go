// Package model contains the domain entities of the event card service.
package model

import "time"

// Category identifies which shop a product or sale belongs to.
type Category string

const (
	CategoryStore    Category = "store"
	CategorySnackbar Category = "snackbar"
	CategoryGiftshop Category = "giftshop"
)

// Valid reports whether c is one of the known shop categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryStore, CategorySnackbar, CategoryGiftshop:
		return true
	}
	return false
}

// Card represents one attendee's prepaid spending account.
// Balance is stored in cents and never goes below zero.
type Card struct {
	ID           string
	Number       string
	Code         string
	HolderName   string
	Phone        string
	BalanceCents int64
	Associated   bool
	OwnerID      *string
	CreatedAt    time.Time
}

// Product is a sellable catalog item in one of the shop categories.
type Product struct {
	ID          string
	Category    Category
	Name        string
	PriceCents  int64
	Description string
	Stock       int
	Active      bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// SaleStatus describes the lifecycle state of a sale record.
type SaleStatus string

// SaleStatusFinalized is the only status a sale is ever written with;
// delivery progress is tracked on the order, not the sale.
const SaleStatusFinalized SaleStatus = "finalized"

// Sale is an immutable record of one checkout transaction.
type Sale struct {
	ID         string
	SellerID   string
	CardID     string
	Category   Category
	TotalCents int64
	Status     SaleStatus
	Items      []SaleItem
	CreatedAt  time.Time
}

// SaleItem snapshots a product's name and price at sale time so later
// catalog edits do not alter historical receipts.
type SaleItem struct {
	ID             string
	SaleID         string
	ProductID      string
	ProductName    string
	Quantity       int
	UnitPriceCents int64
}

// LedgerEntryType tags a ledger entry as a credit or a debit.
type LedgerEntryType string

const (
	LedgerCredit LedgerEntryType = "credit"
	LedgerDebit  LedgerEntryType = "debit"
)

// LedgerEntry is an append-only audit record of one balance mutation.
// AmountCents is signed: positive for credits, negative for debits.
type LedgerEntry struct {
	ID          string
	CardID      string
	AmountCents int64
	Type        LedgerEntryType
	Description string
	CreatedBy   string
	CreatedAt   time.Time
}

// OrderStatus describes the delivery state of a fulfillment order.
type OrderStatus string

const (
	// OrderStatusPending is reserved; the sale flow creates orders
	// directly in awaiting_delivery.
	OrderStatusPending          OrderStatus = "pending"
	OrderStatusAwaitingDelivery OrderStatus = "awaiting_delivery"
	OrderStatusDelivered        OrderStatus = "delivered"
)

// Order tracks the physical hand-off of a store-category sale.
type Order struct {
	ID           string
	SaleID       string
	CardID       string
	CustomerName string
	TotalCents   int64
	Status       OrderStatus
	CreatedAt    time.Time
	DeliveredAt  *time.Time
}

// Actor is the resolved identity behind a bearer credential.
type Actor struct {
	ID    string
	Email string
	Role  string
}
