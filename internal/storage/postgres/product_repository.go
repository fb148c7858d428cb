package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/shopflow/internal/domain"
)

type productRepository struct {
	db *sql.DB
}

// NewProductRepository создаёт PostgreSQL-реализацию ProductRepository.
func NewProductRepository(store *Store) domain.ProductRepository {
	return &productRepository{db: store.DB()}
}

func (r *productRepository) Create(product domain.Product) (domain.Product, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if product.ID == "" {
		product.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if product.CreatedAt.IsZero() {
		product.CreatedAt = now
	}
	product.UpdatedAt = now

	if errs := product.ValidateInvariants(); len(errs) > 0 {
		return domain.Product{}, fmt.Errorf("invalid product: %v", errs)
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO products (
			id, name, description, category, price, stock, reserved, sold, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`,
		product.ID, product.Name, product.Description, product.Category, product.Price,
		product.Stock, product.Reserved, product.Sold, product.CreatedAt, product.UpdatedAt,
	)
	if err != nil {
		return domain.Product{}, fmt.Errorf("insert product: %w", err)
	}

	return product, nil
}

func (r *productRepository) Get(id string) (domain.Product, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	product, err := scanProduct(r.db.QueryRowContext(ctx, `
		SELECT id, name, description, category, price, stock, reserved, sold, created_at, updated_at
		FROM products
		WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Product{}, domain.ErrProductNotFound
		}
		return domain.Product{}, fmt.Errorf("get product: %w", err)
	}

	return product, nil
}

func (r *productRepository) List(category string, limit int) ([]domain.Product, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, name, description, category, price, stock, reserved, sold, created_at, updated_at
		FROM products
	`
	args := []any{}
	if category != "" {
		query += ` WHERE category = $1 ORDER BY name LIMIT $2`
		args = append(args, category, limit)
	} else {
		query += ` ORDER BY name LIMIT $1`
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	products := make([]domain.Product, 0, limit)
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, product)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate products: %w", err)
	}

	return products, nil
}

func (r *productRepository) AdjustStock(id string, op domain.StockOperation, qty int64, events func(domain.Product) []domain.OutboxEvent) (domain.Product, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if !op.Valid() {
		return domain.Product{}, fmt.Errorf("unsupported stock operation %q", op)
	}
	if qty < 0 {
		return domain.Product{}, domain.ErrStockInvariantViolated
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Product{}, fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	// Условие в UPDATE не даёт опустить stock ниже reserved: корректировка,
	// нарушающая инвариант, просто не затрагивает строку.
	var set string
	switch op {
	case domain.StockOperationSet:
		set = `stock = $2`
	case domain.StockOperationAdd:
		set = `stock = stock + $2`
	case domain.StockOperationSubtract:
		set = `stock = stock - $2`
	}

	var res sql.Result
	res, err = tx.ExecContext(ctx, fmt.Sprintf(`
		UPDATE products
		SET %s, updated_at = NOW()
		WHERE id = $1 AND %s
	`, set, stockGuard(op)), id, qty)
	if err != nil {
		return domain.Product{}, fmt.Errorf("adjust stock: %w", err)
	}

	var affected int64
	affected, err = res.RowsAffected()
	if err != nil {
		return domain.Product{}, fmt.Errorf("adjust stock rows affected: %w", err)
	}

	if affected == 0 {
		var exists bool
		if err = tx.QueryRowContext(ctx, `
			SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)
		`, id).Scan(&exists); err != nil {
			return domain.Product{}, fmt.Errorf("check product existence: %w", err)
		}
		if !exists {
			err = domain.ErrProductNotFound
		} else {
			err = domain.ErrStockInvariantViolated
		}
		return domain.Product{}, err
	}

	var product domain.Product
	product, err = scanProduct(tx.QueryRowContext(ctx, `
		SELECT id, name, description, category, price, stock, reserved, sold, created_at, updated_at
		FROM products
		WHERE id = $1
	`, id))
	if err != nil {
		return domain.Product{}, fmt.Errorf("reread adjusted product: %w", err)
	}

	if events != nil {
		if err = insertOutboxTx(ctx, tx, events(product)); err != nil {
			return domain.Product{}, err
		}
	}

	if err = tx.Commit(); err != nil {
		return domain.Product{}, fmt.Errorf("commit stock adjust: %w", err)
	}

	return product, nil
}

// stockGuard возвращает предикат, сохраняющий stock >= reserved >= 0
// для конкретной операции корректировки.
func stockGuard(op domain.StockOperation) string {
	switch op {
	case domain.StockOperationSet:
		return `$2 >= reserved`
	case domain.StockOperationSubtract:
		return `stock - $2 >= reserved`
	default:
		return `TRUE`
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (domain.Product, error) {
	var p domain.Product
	err := row.Scan(
		&p.ID, &p.Name, &p.Description, &p.Category, &p.Price,
		&p.Stock, &p.Reserved, &p.Sold, &p.CreatedAt, &p.UpdatedAt,
	)
	return p, err
}

var _ domain.ProductRepository = (*productRepository)(nil)
