package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sahaalaf/sashop/internal/domain"
)

const productColumns = `
	id, name, brand, description, image, price_minor, quantity, specs,
	is_new_arrival, is_top_selling, created_at, updated_at, archived_at`

type productRepository struct {
	db *sql.DB
}

// NewProductRepository создаёт PostgreSQL-реализацию каталога.
func NewProductRepository(store *Store) domain.ProductRepository {
	return &productRepository{db: store.DB()}
}

func (r *productRepository) Create(ctx context.Context, product domain.Product) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if product.ID == "" {
		product.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if product.CreatedAt.IsZero() {
		product.CreatedAt = now
	}
	product.UpdatedAt = now

	specs := product.Specs
	if specs == nil {
		specs = map[string]string{}
	}
	specsJSON, err := json.Marshal(specs)
	if err != nil {
		return fmt.Errorf("marshal product specs: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO products (`+productColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,NULL)
	`,
		product.ID, product.Name, product.Brand, product.Description, product.Image,
		product.PriceMinor, product.Quantity, specsJSON,
		product.IsNewArrival, product.IsTopSelling, product.CreatedAt, product.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrProductAlreadyExists
		}
		return fmt.Errorf("insert product: %w", err)
	}

	return nil
}

func (r *productRepository) Get(ctx context.Context, id string) (domain.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	product, err := getProduct(ctx, r.db, id, false)
	if err != nil {
		return domain.Product{}, err
	}
	if product.Archived() {
		return domain.Product{}, &domain.ProductNotFoundError{ProductID: id}
	}
	return product, nil
}

// Update не трогает quantity: остаток меняется только внутри Tx.
func (r *productRepository) Update(ctx context.Context, product domain.Product) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	specs := product.Specs
	if specs == nil {
		specs = map[string]string{}
	}
	specsJSON, err := json.Marshal(specs)
	if err != nil {
		return fmt.Errorf("marshal product specs: %w", err)
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE products
		SET name = $2, brand = $3, description = $4, image = $5, price_minor = $6,
		    specs = $7, is_new_arrival = $8, is_top_selling = $9, updated_at = $10
		WHERE id = $1 AND archived_at IS NULL
	`,
		product.ID, product.Name, product.Brand, product.Description, product.Image,
		product.PriceMinor, specsJSON, product.IsNewArrival, product.IsTopSelling, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("update product: %w", err)
	}
	return expectOneProduct(res, product.ID)
}

func (r *productRepository) Archive(ctx context.Context, id string, at time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE products
		SET archived_at = $2, updated_at = $2
		WHERE id = $1 AND archived_at IS NULL
	`, id, at.UTC())
	if err != nil {
		return fmt.Errorf("archive product: %w", err)
	}
	return expectOneProduct(res, id)
}

func expectOneProduct(res sql.Result, id string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("product rows affected: %w", err)
	}
	if affected == 0 {
		return &domain.ProductNotFoundError{ProductID: id}
	}
	return nil
}

func (r *productRepository) List(ctx context.Context, limit int) ([]domain.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	query := `SELECT ` + productColumns + ` FROM products WHERE archived_at IS NULL ORDER BY created_at DESC, id DESC`

	var (
		rows *sql.Rows
		err  error
	)
	if limit > 0 {
		rows, err = r.db.QueryContext(ctx, query+` LIMIT $1`, limit)
	} else {
		rows, err = r.db.QueryContext(ctx, query)
	}
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	products := make([]domain.Product, 0)
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product row: %w", err)
		}
		products = append(products, product)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate product rows: %w", err)
	}

	return products, nil
}

func scanProduct(row rowScanner) (domain.Product, error) {
	var (
		product    domain.Product
		specs      []byte
		archivedAt sql.NullTime
	)
	if err := row.Scan(
		&product.ID, &product.Name, &product.Brand, &product.Description, &product.Image,
		&product.PriceMinor, &product.Quantity, &specs,
		&product.IsNewArrival, &product.IsTopSelling, &product.CreatedAt, &product.UpdatedAt,
		&archivedAt,
	); err != nil {
		return domain.Product{}, err
	}
	if archivedAt.Valid {
		at := archivedAt.Time.UTC()
		product.ArchivedAt = &at
	}

	if len(specs) > 0 {
		if err := json.Unmarshal(specs, &product.Specs); err != nil {
			return domain.Product{}, fmt.Errorf("decode specs of product %s: %w", product.ID, err)
		}
	}
	product.CreatedAt = product.CreatedAt.UTC()
	product.UpdatedAt = product.UpdatedAt.UTC()
	return product, nil
}

// getProduct читает товар; forUpdate блокирует строку до конца транзакции.
func getProduct(ctx context.Context, q queryer, id string, forUpdate bool) (domain.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	product, err := scanProduct(q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Product{}, &domain.ProductNotFoundError{ProductID: id}
		}
		return domain.Product{}, fmt.Errorf("select product: %w", err)
	}
	return product, nil
}

var _ domain.ProductRepository = (*productRepository)(nil)
