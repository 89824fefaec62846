// Package repository contains the PostgreSQL data access layer.
package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/encontrao/pos-system/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrCardExists is returned when a card number is already registered.
var (
	ErrCardExists = errors.New("card already exists")
	// ErrCardNotFound is returned when a card cannot be located.
	ErrCardNotFound = errors.New("card not found")
	// ErrCardAlreadyAssociated is returned when a claim loses the compare-and-swap.
	ErrCardAlreadyAssociated = errors.New("card already associated")
	// ErrOwnerHasCard is returned when the claiming account already holds a card.
	ErrOwnerHasCard = errors.New("owner already has an associated card")
	// ErrProductExists is returned on a duplicate active product name in a category.
	ErrProductExists = errors.New("product already exists")
	// ErrProductNotFound is returned when a product cannot be located.
	ErrProductNotFound = errors.New("product not found")
	// ErrOrderNotFound is returned when an order cannot be located.
	ErrOrderNotFound = errors.New("order not found")
	// ErrOrderNotDeliverable is returned when an order is not awaiting delivery.
	ErrOrderNotDeliverable = errors.New("order not awaiting delivery")
	// ErrInsufficientBalance is returned when a debit exceeds the card balance.
	ErrInsufficientBalance = errors.New("insufficient balance")
)

// InsufficientFundsError reports a rejected debit together with the
// amounts involved, so callers can surface both to the user.
type InsufficientFundsError struct {
	RequiredCents  int64
	AvailableCents int64
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient balance: required %d, available %d", e.RequiredCents, e.AvailableCents)
}

// Is makes the typed error match the ErrInsufficientBalance sentinel.
func (e *InsufficientFundsError) Is(target error) bool {
	return target == ErrInsufficientBalance
}

// PostgresRepository provides access to the PostgreSQL data store.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a repository and initializes the schema
// through embedded migrations.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	var err error
	delays := []time.Duration{1 * time.Second, 3 * time.Second, 5 * time.Second}

	for i := 0; i <= len(delays); i++ {
		err = fn()
		if err == nil {
			return nil
		}

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		// Serialization failures and deadlocks are worth retrying;
		// pgxpool handles reconnects on its own.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			if pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected {
				if i < len(delays) {
					time.Sleep(delays[i])
					continue
				}
			}
		}

		if isConnectionError(err) {
			if i < len(delays) {
				time.Sleep(delays[i])
				continue
			}
		}

		break
	}
	return err
}

func isConnectionError(err error) bool {
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

// Close closes the connection pool.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// CreateCard inserts a new card and returns its id. A positive starting
// balance writes the seeding ledger credit in the same transaction, so a
// card never exists without its opening entry.
func (r *PostgresRepository) CreateCard(ctx context.Context, card model.Card, createdBy string) (string, error) {
	id := uuid.NewString()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO cards (id, number, code, holder_name, phone, balance)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		id, card.Number, card.Code, card.HolderName, card.Phone, card.BalanceCents,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return "", fmt.Errorf("%w: %s", ErrCardExists, card.Number)
		}
		return "", fmt.Errorf("create card: %w", err)
	}

	if card.BalanceCents > 0 {
		_, err = tx.Exec(ctx,
			`INSERT INTO ledger_entries (id, card_id, amount, type, description, created_by)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			uuid.NewString(), id, card.BalanceCents, string(model.LedgerCredit), "initial balance", createdBy,
		)
		if err != nil {
			return "", fmt.Errorf("insert ledger entry: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("commit tx: %w", err)
	}

	return id, nil
}

const cardColumns = `id, number, code, holder_name, phone, balance, associated, owner_id, created_at`

func scanCard(row pgx.Row) (*model.Card, error) {
	var c model.Card
	err := row.Scan(&c.ID, &c.Number, &c.Code, &c.HolderName, &c.Phone,
		&c.BalanceCents, &c.Associated, &c.OwnerID, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCardNotFound
		}
		return nil, fmt.Errorf("scan card: %w", err)
	}
	return &c, nil
}

// GetCardByNumber returns the card with the given printed number.
func (r *PostgresRepository) GetCardByNumber(ctx context.Context, number string) (*model.Card, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+cardColumns+` FROM cards WHERE number = $1`, number)
	return scanCard(row)
}

// GetCardByID returns the card with the given id.
func (r *PostgresRepository) GetCardByID(ctx context.Context, id string) (*model.Card, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+cardColumns+` FROM cards WHERE id = $1`, id)
	return scanCard(row)
}

// GetCardByOwner returns the card associated to the given actor.
func (r *PostgresRepository) GetCardByOwner(ctx context.Context, ownerID string) (*model.Card, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+cardColumns+` FROM cards WHERE owner_id = $1`, ownerID)
	return scanCard(row)
}

// ListCards returns all cards ordered by number.
func (r *PostgresRepository) ListCards(ctx context.Context) ([]model.Card, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+cardColumns+` FROM cards ORDER BY number`)
	if err != nil {
		return nil, fmt.Errorf("select cards: %w", err)
	}
	defer rows.Close()

	var cards []model.Card
	for rows.Next() {
		var c model.Card
		if err := rows.Scan(&c.ID, &c.Number, &c.Code, &c.HolderName, &c.Phone,
			&c.BalanceCents, &c.Associated, &c.OwnerID, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan card: %w", err)
		}
		cards = append(cards, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return cards, nil
}

// AssociateCard claims a card for an actor. The update is guarded by
// "associated is still false" so concurrent claims resolve to one winner.
func (r *PostgresRepository) AssociateCard(ctx context.Context, cardID, ownerID, holderName string) error {
	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE cards SET owner_id = $2, holder_name = $3, associated = TRUE
		 WHERE id = $1 AND associated = FALSE`,
		cardID, ownerID, holderName,
	)
	if err != nil {
		// The partial unique index on owner_id caps each account at one
		// associated card.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return ErrOwnerHasCard
		}
		return fmt.Errorf("associate card: %w", err)
	}

	if cmdTag.RowsAffected() == 1 {
		return nil
	}

	// Zero rows: either the card vanished or someone claimed it first.
	var associated bool
	err = r.pool.QueryRow(ctx, `SELECT associated FROM cards WHERE id = $1`, cardID).Scan(&associated)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrCardNotFound
		}
		return fmt.Errorf("check card association: %w", err)
	}
	if associated {
		return ErrCardAlreadyAssociated
	}
	return fmt.Errorf("associate card: update affected no rows")
}

// CreateProduct inserts a new catalog item and returns its id.
func (r *PostgresRepository) CreateProduct(ctx context.Context, p model.Product) (string, error) {
	id := uuid.NewString()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO products (id, category, name, price, description, stock)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		id, string(p.Category), p.Name, p.PriceCents, p.Description, p.Stock,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return "", fmt.Errorf("%w: %s", ErrProductExists, p.Name)
		}
		return "", fmt.Errorf("create product: %w", err)
	}
	return id, nil
}

// UpdateProduct updates the mutable fields of an active product.
func (r *PostgresRepository) UpdateProduct(ctx context.Context, p model.Product) error {
	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE products SET name = $2, price = $3, description = $4, stock = $5, updated_at = now()
		 WHERE id = $1 AND active`,
		p.ID, p.Name, p.PriceCents, p.Description, p.Stock,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return fmt.Errorf("%w: %s", ErrProductExists, p.Name)
		}
		return fmt.Errorf("update product: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrProductNotFound
	}
	return nil
}

// DeactivateProduct soft-deletes a product.
func (r *PostgresRepository) DeactivateProduct(ctx context.Context, id string) error {
	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE products SET active = FALSE, updated_at = now() WHERE id = $1 AND active`,
		id,
	)
	if err != nil {
		return fmt.Errorf("deactivate product: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrProductNotFound
	}
	return nil
}

const productColumns = `id, category, name, price, description, stock, active, created_at, updated_at`

func scanProducts(rows pgx.Rows) ([]model.Product, error) {
	defer rows.Close()

	var products []model.Product
	for rows.Next() {
		var p model.Product
		var category string
		if err := rows.Scan(&p.ID, &category, &p.Name, &p.PriceCents, &p.Description,
			&p.Stock, &p.Active, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		p.Category = model.Category(category)
		products = append(products, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return products, nil
}

// GetProductByID returns a product regardless of its active flag.
func (r *PostgresRepository) GetProductByID(ctx context.Context, id string) (*model.Product, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = $1`, id)

	var p model.Product
	var category string
	err := row.Scan(&p.ID, &category, &p.Name, &p.PriceCents, &p.Description,
		&p.Stock, &p.Active, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("get product: %w", err)
	}
	p.Category = model.Category(category)
	return &p, nil
}

// ListActiveProducts returns the active catalog of one category.
func (r *PostgresRepository) ListActiveProducts(ctx context.Context, category model.Category) ([]model.Product, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+productColumns+` FROM products
		 WHERE category = $1 AND active
		 ORDER BY name`,
		string(category),
	)
	if err != nil {
		return nil, fmt.Errorf("select products: %w", err)
	}
	return scanProducts(rows)
}

// GetActiveProductsByIDs resolves the requested ids inside one category.
// Ids that are inactive or belong to another category are simply absent
// from the result.
func (r *PostgresRepository) GetActiveProductsByIDs(ctx context.Context, category model.Category, ids []string) ([]model.Product, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+productColumns+` FROM products
		 WHERE category = $1 AND active AND id = ANY($2)`,
		string(category), ids,
	)
	if err != nil {
		return nil, fmt.Errorf("select products by ids: %w", err)
	}
	return scanProducts(rows)
}

// ApplyLedgerDelta mutates a card balance and appends the audit entry in
// one transaction. The card row is locked for update so concurrent
// mutations of the same card serialize; a debit below zero is rejected.
func (r *PostgresRepository) ApplyLedgerDelta(ctx context.Context, cardID string, amountCents int64, entryType model.LedgerEntryType, description, createdBy string) (int64, error) {
	var newBalance int64

	err := r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		var balance int64
		err = tx.QueryRow(ctx, `SELECT balance FROM cards WHERE id = $1 FOR UPDATE`, cardID).Scan(&balance)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrCardNotFound
			}
			return fmt.Errorf("lock card for update: %w", err)
		}

		candidate := balance + amountCents
		if candidate < 0 {
			return &InsufficientFundsError{RequiredCents: -amountCents, AvailableCents: balance}
		}

		_, err = tx.Exec(ctx, `UPDATE cards SET balance = $2 WHERE id = $1`, cardID, candidate)
		if err != nil {
			return fmt.Errorf("update balance: %w", err)
		}

		_, err = tx.Exec(ctx,
			`INSERT INTO ledger_entries (id, card_id, amount, type, description, created_by)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			uuid.NewString(), cardID, amountCents, string(entryType), description, createdBy,
		)
		if err != nil {
			return fmt.Errorf("insert ledger entry: %w", err)
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}

		newBalance = candidate
		return nil
	})
	if err != nil {
		return 0, err
	}

	return newBalance, nil
}

// ListLedgerEntries returns the balance history of a card, newest first.
func (r *PostgresRepository) ListLedgerEntries(ctx context.Context, cardID string) ([]model.LedgerEntry, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, card_id, amount, type, description, created_by, created_at
		 FROM ledger_entries
		 WHERE card_id = $1
		 ORDER BY created_at DESC`,
		cardID,
	)
	if err != nil {
		return nil, fmt.Errorf("select ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []model.LedgerEntry
	for rows.Next() {
		var e model.LedgerEntry
		var entryType string
		if err := rows.Scan(&e.ID, &e.CardID, &e.AmountCents, &entryType,
			&e.Description, &e.CreatedBy, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		e.Type = model.LedgerEntryType(entryType)
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return entries, nil
}

// SaleItemParams describes one resolved line item of a sale.
type SaleItemParams struct {
	ProductID      string
	ProductName    string
	Quantity       int
	UnitPriceCents int64
}

// SaleParams describes the full write fan-out of one sale.
type SaleParams struct {
	SellerID          string
	CardID            string
	Category          model.Category
	Items             []SaleItemParams
	TotalCents        int64
	LedgerDescription string
	CreateOrder       bool
	CustomerName      string
}

// SaleResult reports the records produced by a committed sale.
type SaleResult struct {
	SaleID          string
	OrderID         *string
	NewBalanceCents int64
}

// CreateSale performs the checkout write fan-out in one transaction:
// the card row is locked, the balance sufficiency check and debit happen
// under that lock, and the sale, its items, the ledger entry and the
// optional fulfillment order commit or roll back together.
func (r *PostgresRepository) CreateSale(ctx context.Context, p SaleParams) (*SaleResult, error) {
	var res SaleResult

	err := r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		var balance int64
		err = tx.QueryRow(ctx, `SELECT balance FROM cards WHERE id = $1 FOR UPDATE`, p.CardID).Scan(&balance)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrCardNotFound
			}
			return fmt.Errorf("lock card for update: %w", err)
		}

		if balance < p.TotalCents {
			return &InsufficientFundsError{RequiredCents: p.TotalCents, AvailableCents: balance}
		}

		newBalance := balance - p.TotalCents
		_, err = tx.Exec(ctx, `UPDATE cards SET balance = $2 WHERE id = $1`, p.CardID, newBalance)
		if err != nil {
			return fmt.Errorf("update balance: %w", err)
		}

		saleID := uuid.NewString()
		_, err = tx.Exec(ctx,
			`INSERT INTO sales (id, seller_id, card_id, category, total, status)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			saleID, p.SellerID, p.CardID, string(p.Category), p.TotalCents, string(model.SaleStatusFinalized),
		)
		if err != nil {
			return fmt.Errorf("insert sale: %w", err)
		}

		for _, item := range p.Items {
			_, err = tx.Exec(ctx,
				`INSERT INTO sale_items (id, sale_id, product_id, product_name, quantity, unit_price)
				 VALUES ($1, $2, $3, $4, $5, $6)`,
				uuid.NewString(), saleID, item.ProductID, item.ProductName, item.Quantity, item.UnitPriceCents,
			)
			if err != nil {
				return fmt.Errorf("insert sale item: %w", err)
			}
		}

		_, err = tx.Exec(ctx,
			`INSERT INTO ledger_entries (id, card_id, amount, type, description, created_by)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			uuid.NewString(), p.CardID, -p.TotalCents, string(model.LedgerDebit), p.LedgerDescription, p.SellerID,
		)
		if err != nil {
			return fmt.Errorf("insert ledger entry: %w", err)
		}

		var orderID *string
		if p.CreateOrder {
			id := uuid.NewString()
			_, err = tx.Exec(ctx,
				`INSERT INTO orders (id, sale_id, card_id, customer_name, total, status)
				 VALUES ($1, $2, $3, $4, $5, $6)`,
				id, saleID, p.CardID, p.CustomerName, p.TotalCents, string(model.OrderStatusAwaitingDelivery),
			)
			if err != nil {
				return fmt.Errorf("insert order: %w", err)
			}
			orderID = &id
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}

		res = SaleResult{SaleID: saleID, OrderID: orderID, NewBalanceCents: newBalance}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &res, nil
}

// ListSalesByCategory returns the sales of one category with their line
// items, newest first.
func (r *PostgresRepository) ListSalesByCategory(ctx context.Context, category model.Category) ([]model.Sale, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, seller_id, card_id, category, total, status, created_at
		 FROM sales
		 WHERE category = $1
		 ORDER BY created_at DESC`,
		string(category),
	)
	if err != nil {
		return nil, fmt.Errorf("select sales: %w", err)
	}
	defer rows.Close()

	var sales []model.Sale
	var saleIDs []string
	for rows.Next() {
		var s model.Sale
		var cat, status string
		if err := rows.Scan(&s.ID, &s.SellerID, &s.CardID, &cat, &s.TotalCents, &status, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan sale: %w", err)
		}
		s.Category = model.Category(cat)
		s.Status = model.SaleStatus(status)
		sales = append(sales, s)
		saleIDs = append(saleIDs, s.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	if len(sales) == 0 {
		return sales, nil
	}

	itemRows, err := r.pool.Query(ctx,
		`SELECT id, sale_id, product_id, product_name, quantity, unit_price
		 FROM sale_items
		 WHERE sale_id = ANY($1)`,
		saleIDs,
	)
	if err != nil {
		return nil, fmt.Errorf("select sale items: %w", err)
	}
	defer itemRows.Close()

	itemsBySale := make(map[string][]model.SaleItem)
	for itemRows.Next() {
		var item model.SaleItem
		if err := itemRows.Scan(&item.ID, &item.SaleID, &item.ProductID,
			&item.ProductName, &item.Quantity, &item.UnitPriceCents); err != nil {
			return nil, fmt.Errorf("scan sale item: %w", err)
		}
		itemsBySale[item.SaleID] = append(itemsBySale[item.SaleID], item)
	}
	if err := itemRows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	for i := range sales {
		sales[i].Items = itemsBySale[sales[i].ID]
	}

	return sales, nil
}

const orderColumns = `id, sale_id, card_id, customer_name, total, status, created_at, delivered_at`

// ListOpenOrders returns the orders awaiting delivery, oldest first.
func (r *PostgresRepository) ListOpenOrders(ctx context.Context) ([]model.Order, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+orderColumns+` FROM orders
		 WHERE status = $1
		 ORDER BY created_at`,
		string(model.OrderStatusAwaitingDelivery),
	)
	if err != nil {
		return nil, fmt.Errorf("select open orders: %w", err)
	}
	defer rows.Close()

	var orders []model.Order
	for rows.Next() {
		var o model.Order
		var status string
		if err := rows.Scan(&o.ID, &o.SaleID, &o.CardID, &o.CustomerName,
			&o.TotalCents, &status, &o.CreatedAt, &o.DeliveredAt); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		o.Status = model.OrderStatus(status)
		orders = append(orders, o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return orders, nil
}

// MarkOrderDelivered transitions an order from awaiting_delivery to
// delivered. The status guard in the UPDATE makes the transition one-way
// under concurrency.
func (r *PostgresRepository) MarkOrderDelivered(ctx context.Context, orderID string) (*model.Order, error) {
	row := r.pool.QueryRow(ctx,
		`UPDATE orders SET status = $2, delivered_at = now()
		 WHERE id = $1 AND status = $3
		 RETURNING `+orderColumns,
		orderID, string(model.OrderStatusDelivered), string(model.OrderStatusAwaitingDelivery),
	)

	var o model.Order
	var status string
	err := row.Scan(&o.ID, &o.SaleID, &o.CardID, &o.CustomerName,
		&o.TotalCents, &status, &o.CreatedAt, &o.DeliveredAt)
	if err == nil {
		o.Status = model.OrderStatus(status)
		return &o, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("mark order delivered: %w", err)
	}

	// No rows updated: distinguish a missing order from a wrong status.
	var dummy int
	err = r.pool.QueryRow(ctx, `SELECT 1 FROM orders WHERE id = $1`, orderID).Scan(&dummy)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("check order: %w", err)
	}
	return nil, ErrOrderNotDeliverable
}
