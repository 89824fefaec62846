// Package permissions holds the fixed role-to-capability matrix.
//
// The matrix is the single source of truth for authorization decisions:
// every transport and every service method consults it through the
// functions below. Roles absent from the table resolve to zero
// capabilities.
package permissions

import "github.com/encontrao/pos-system/internal/model"

// Capability is a granted action token.
type Capability string

const (
	CapViewAllCards       Capability = "view-all-cards"
	CapCreateCard         Capability = "create-card"
	CapAddBalance         Capability = "add-balance"
	CapDebitBalance       Capability = "debit-balance"
	CapManageUsers        Capability = "manage-users"
	CapMarkOrderDelivered Capability = "mark-order-delivered"

	capSellStore    Capability = "sell:store"
	capSellSnackbar Capability = "sell:snackbar"
	capSellGiftshop Capability = "sell:giftshop"

	capCreateProductStore    Capability = "create-product:store"
	capCreateProductSnackbar Capability = "create-product:snackbar"
	capCreateProductGiftshop Capability = "create-product:giftshop"

	capViewSalesStore    Capability = "view-sales:store"
	capViewSalesSnackbar Capability = "view-sales:snackbar"
	capViewSalesGiftshop Capability = "view-sales:giftshop"
)

// Named roles. RoleAdmin and RoleCardOps are both full-access; they are
// kept as distinct names on purpose and share one capability set.
const (
	RoleAdmin       = "admin"
	RoleCardOps     = "cardops"
	RoleTreasurer   = "treasurer"
	RoleCoordinator = "coordinator"
	RoleStorekeeper = "storekeeper"
	RoleSnackbar    = "snackbar"
	RoleGiftshop    = "giftshop"
	RoleDelivery    = "delivery"
	RoleAttendee    = "attendee"
	RoleGuest       = "guest"
)

// SellCapability returns the sell token for a category.
func SellCapability(c model.Category) Capability {
	switch c {
	case model.CategoryStore:
		return capSellStore
	case model.CategorySnackbar:
		return capSellSnackbar
	case model.CategoryGiftshop:
		return capSellGiftshop
	}
	return Capability("sell:" + string(c))
}

// CreateProductCapability returns the catalog-management token for a category.
func CreateProductCapability(c model.Category) Capability {
	switch c {
	case model.CategoryStore:
		return capCreateProductStore
	case model.CategorySnackbar:
		return capCreateProductSnackbar
	case model.CategoryGiftshop:
		return capCreateProductGiftshop
	}
	return Capability("create-product:" + string(c))
}

// ViewSalesCapability returns the sales-history token for a category.
func ViewSalesCapability(c model.Category) Capability {
	switch c {
	case model.CategoryStore:
		return capViewSalesStore
	case model.CategorySnackbar:
		return capViewSalesSnackbar
	case model.CategoryGiftshop:
		return capViewSalesGiftshop
	}
	return Capability("view-sales:" + string(c))
}

var allCapabilities = map[Capability]struct{}{
	CapViewAllCards:          {},
	CapCreateCard:            {},
	CapAddBalance:            {},
	CapDebitBalance:          {},
	CapManageUsers:           {},
	CapMarkOrderDelivered:    {},
	capSellStore:             {},
	capSellSnackbar:          {},
	capSellGiftshop:          {},
	capCreateProductStore:    {},
	capCreateProductSnackbar: {},
	capCreateProductGiftshop: {},
	capViewSalesStore:        {},
	capViewSalesSnackbar:     {},
	capViewSalesGiftshop:     {},
}

var matrix = map[string]map[Capability]struct{}{
	RoleAdmin:   allCapabilities,
	RoleCardOps: allCapabilities,
	RoleTreasurer: {
		CapViewAllCards: {},
		CapCreateCard:   {},
		CapAddBalance:   {},
		CapDebitBalance: {},
	},
	RoleCoordinator: {
		CapViewAllCards:      {},
		CapManageUsers:       {},
		capViewSalesStore:    {},
		capViewSalesSnackbar: {},
		capViewSalesGiftshop: {},
	},
	RoleStorekeeper: {
		capSellStore:          {},
		capCreateProductStore: {},
		capViewSalesStore:     {},
		CapMarkOrderDelivered: {},
	},
	RoleSnackbar: {
		capSellSnackbar:          {},
		capCreateProductSnackbar: {},
		capViewSalesSnackbar:     {},
	},
	RoleGiftshop: {
		capSellGiftshop:          {},
		capCreateProductGiftshop: {},
		capViewSalesGiftshop:     {},
	},
	RoleDelivery: {
		CapMarkOrderDelivered: {},
	},
	RoleAttendee: {},
	RoleGuest:    {},
}

// IsSuperRole reports whether the role carries every capability.
func IsSuperRole(role string) bool {
	return role == RoleAdmin || role == RoleCardOps
}

// IsAllowed reports whether role grants cap. Unknown roles are denied.
func IsAllowed(role string, cap Capability) bool {
	grants, ok := matrix[role]
	if !ok {
		return false
	}
	_, ok = grants[cap]
	return ok
}

// IsAllowedAny reports whether role grants at least one of caps.
func IsAllowedAny(role string, caps ...Capability) bool {
	for _, c := range caps {
		if IsAllowed(role, c) {
			return true
		}
	}
	return false
}

// IsAllowedAll reports whether role grants every one of caps.
func IsAllowedAll(role string, caps ...Capability) bool {
	for _, c := range caps {
		if !IsAllowed(role, c) {
			return false
		}
	}
	return true
}

// CanSellCategory reports whether role may sell in the given category.
// Super-roles pass unconditionally.
func CanSellCategory(role string, category model.Category) bool {
	if IsSuperRole(role) {
		return true
	}
	return IsAllowed(role, SellCapability(category))
}
