package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"storefront/internal/models"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

//go:embed schema/*.sql
var schemaFS embed.FS

// Supported database drivers
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

func init() {
	sqlx.BindDriver(DriverSQLite, sqlx.QUESTION)
}

type Store struct {
	db     *sqlx.DB
	driver string
	now    func() time.Time

	// beforeDecrement runs inside PlaceOrder between line validation and the stock updates
	beforeDecrement func(ctx context.Context, tx *sqlx.Tx) error
}

// NewStore creates a new database store
func NewStore(driver, databaseURL string) (*Store, error) {
	if driver != DriverPostgres && driver != DriverSQLite {
		return nil, fmt.Errorf("unsupported database driver: %s", driver)
	}

	if driver == DriverSQLite {
		databaseURL = sqliteDSN(databaseURL)
	}

	db, err := sqlx.Connect(driver, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if driver == DriverSQLite {
		// One connection keeps in-memory databases alive and serializes writers.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{
		db:     db,
		driver: driver,
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

// sqliteDSN turns on foreign key enforcement for every connection the pool opens;
// SQLite leaves it off unless asked.
func sqliteDSN(dsn string) string {
	if strings.Contains(dsn, "foreign_keys") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_pragma=foreign_keys(1)"
}

// Migrate applies the embedded schema for the configured driver
func (s *Store) Migrate(ctx context.Context) error {
	ddl, err := schemaFS.ReadFile("schema/" + s.driver + ".sql")
	if err != nil {
		return fmt.Errorf("failed to read schema: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, string(ddl)); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks database connectivity
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// withTx runs fn inside a transaction, committing only when fn returns nil
func (s *Store) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

const productColumns = "id, title, description, price, stock, active, created_at, updated_at"

// GetProductByID retrieves a product by ID
func (s *Store) GetProductByID(ctx context.Context, id int64) (*models.Product, error) {
	return getProduct(ctx, s.db, id)
}

func getProduct(ctx context.Context, q sqlx.ExtContext, id int64) (*models.Product, error) {
	var product models.Product
	err := sqlx.GetContext(ctx, q, &product,
		q.Rebind("SELECT "+productColumns+" FROM products WHERE id = ?"), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("product %d: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// GetProducts retrieves all products, or only active ones
func (s *Store) GetProducts(ctx context.Context, activeOnly bool) ([]models.Product, error) {
	products := []models.Product{}
	if activeOnly {
		err := s.db.SelectContext(ctx, &products, s.db.Rebind(
			"SELECT "+productColumns+" FROM products WHERE active = ? ORDER BY id"), true)
		return products, err
	}
	err := s.db.SelectContext(ctx, &products, "SELECT "+productColumns+" FROM products ORDER BY id")
	return products, err
}

// GetProductsByIDs retrieves multiple products by IDs
func (s *Store) GetProductsByIDs(ctx context.Context, ids []int64) ([]models.Product, error) {
	if len(ids) == 0 {
		return []models.Product{}, nil
	}

	query, args, err := sqlx.In("SELECT "+productColumns+" FROM products WHERE id IN (?)", ids)
	if err != nil {
		return nil, err
	}
	query = s.db.Rebind(query)

	var products []models.Product
	err = s.db.SelectContext(ctx, &products, query, args...)
	return products, err
}

// CreateProduct inserts a catalog product
func (s *Store) CreateProduct(ctx context.Context, p *models.Product) error {
	now := s.now()
	p.CreatedAt, p.UpdatedAt = now, now

	query := s.db.Rebind(`
		INSERT INTO products (title, description, price, stock, active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING id`)

	return s.db.GetContext(ctx, &p.ID, query,
		p.Title, p.Description, p.Price, p.Stock, p.Active, p.CreatedAt, p.UpdatedAt)
}

// UpdateProduct overwrites the editable fields of a product
func (s *Store) UpdateProduct(ctx context.Context, p *models.Product) error {
	p.UpdatedAt = s.now()

	res, err := s.db.ExecContext(ctx, s.db.Rebind(`
		UPDATE products
		SET title = ?, description = ?, price = ?, stock = ?, active = ?, updated_at = ?
		WHERE id = ?`),
		p.Title, p.Description, p.Price, p.Stock, p.Active, p.UpdatedAt, p.ID)
	if err != nil {
		return fmt.Errorf("failed to update product: %w", err)
	}
	return expectOneRow(res, fmt.Errorf("product %d: %w", p.ID, models.ErrNotFound))
}

// DeleteProduct hard-deletes a product that no order line or cart line references.
// Products still in a cart must be deactivated instead, so checkout reports them unavailable.
func (s *Store) DeleteProduct(ctx context.Context, id int64) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		var referenced bool
		err := tx.GetContext(ctx, &referenced, tx.Rebind(`
			SELECT EXISTS(SELECT 1 FROM order_lines WHERE product_id = ?)
				OR EXISTS(SELECT 1 FROM cart_lines WHERE product_id = ?)`), id, id)
		if err != nil {
			return fmt.Errorf("failed to check product references: %w", err)
		}
		if referenced {
			return fmt.Errorf("product %d: %w", id, models.ErrProductInUse)
		}

		res, err := tx.ExecContext(ctx, tx.Rebind("DELETE FROM products WHERE id = ?"), id)
		if err != nil {
			return fmt.Errorf("failed to delete product: %w", err)
		}
		return expectOneRow(res, fmt.Errorf("product %d: %w", id, models.ErrNotFound))
	})
}

// DecrementStock removes quantity units from stock if enough remain
func (s *Store) DecrementStock(ctx context.Context, productID int64, quantity int) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		return decrementStock(ctx, tx, productID, quantity, s.now())
	})
}

// decrementStock is a compare-and-swap on the stock column: the WHERE clause
// re-checks availability against the row version the update locks.
func decrementStock(ctx context.Context, q sqlx.ExtContext, productID int64, quantity int, now time.Time) error {
	res, err := q.ExecContext(ctx, q.Rebind(`
		UPDATE products
		SET stock = stock - ?, updated_at = ?
		WHERE id = ? AND active = ? AND stock >= ?`),
		quantity, now, productID, true, quantity)
	if err != nil {
		return fmt.Errorf("failed to decrement stock: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}

	product, err := getProduct(ctx, q, productID)
	if errors.Is(err, models.ErrNotFound) {
		return models.Unavailable(productID, "")
	}
	if err != nil {
		return err
	}
	if !product.Purchasable() {
		return models.Unavailable(productID, product.Title)
	}
	return models.Insufficient(productID, product.Title, product.Stock)
}

func expectOneRow(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}
