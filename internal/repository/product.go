package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vendora/commerce-core/internal/domain/catalog"
	"github.com/vendora/commerce-core/internal/domain/order"
)

const (
	productColumns = `id, name, category, sku, image, price, shipping_charge, stock, total_sold`

	listProductsSQL = `SELECT ` + productColumns + ` FROM products ORDER BY id`

	getProductByIDSQL = `SELECT ` + productColumns + ` FROM products WHERE id = $1`

	getProductsByIDsSQL = `SELECT ` + productColumns + ` FROM products WHERE id = ANY($1)`

	getVariantsSQL = `SELECT product_id, sku, price, stock FROM product_variants
		WHERE product_id = ANY($1) ORDER BY sku`

	// Stock decrements are conditional: they only land while enough units
	// remain, so two concurrent checkouts cannot both take the last unit.
	decreaseStockSQL = `UPDATE products SET stock = stock - $2
		WHERE id = $1 AND stock >= $2`

	decreaseVariantStockSQL = `UPDATE product_variants SET stock = stock - $3
		WHERE product_id = $1 AND sku = $2 AND stock >= $3`

	increaseStockSQL = `UPDATE products SET stock = stock + $2 WHERE id = $1`

	increaseVariantStockSQL = `UPDATE product_variants SET stock = stock + $3
		WHERE product_id = $1 AND sku = $2`

	incrementSoldSQL = `UPDATE products SET total_sold = total_sold + $2 WHERE id = $1`

	productExistsSQL = `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`

	variantExistsSQL = `SELECT EXISTS (SELECT 1 FROM product_variants WHERE product_id = $1 AND sku = $2)`
)

var (
	_ catalog.Repository = (*ProductRepository)(nil)
	_ order.Inventory    = (*ProductRepository)(nil)
)

// ProductRepository implements catalog.Repository and order.Inventory backed
// by PostgreSQL.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// List returns all products with their variants, ordered by ID.
func (r *ProductRepository) List(ctx context.Context) ([]catalog.Product, error) {
	rows, err := r.pool.Query(ctx, listProductsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}
	products, err := pgx.CollectRows(rows, scanProduct)
	if err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}
	return r.attachVariants(ctx, products)
}

// GetByID returns a single product with its variants.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*catalog.Product, error) {
	rows, err := r.pool.Query(ctx, getProductByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting product %q: %w", id, err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, catalog.ErrNotFound
		}
		return nil, fmt.Errorf("getting product %q: %w", id, err)
	}

	stitched, err := r.attachVariants(ctx, []catalog.Product{p})
	if err != nil {
		return nil, err
	}
	return &stitched[0], nil
}

// GetByIDs returns products matching any of the given IDs, variants included.
func (r *ProductRepository) GetByIDs(ctx context.Context, ids []string) ([]catalog.Product, error) {
	rows, err := r.pool.Query(ctx, getProductsByIDsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("getting products by ids: %w", err)
	}
	products, err := pgx.CollectRows(rows, scanProduct)
	if err != nil {
		return nil, fmt.Errorf("getting products by ids: %w", err)
	}
	return r.attachVariants(ctx, products)
}

// DecreaseStock takes qty units off the product (or variant) stock. Returns
// order.ErrInsufficientStock when not enough units remain and
// catalog.ErrNotFound when the product or variant does not exist.
func (r *ProductRepository) DecreaseStock(ctx context.Context, productID string, qty int, variantSKU string) error {
	var (
		tag pgconn.CommandTag
		err error
	)
	if variantSKU != "" {
		tag, err = r.pool.Exec(ctx, decreaseVariantStockSQL, productID, variantSKU, qty)
	} else {
		tag, err = r.pool.Exec(ctx, decreaseStockSQL, productID, qty)
	}
	if err != nil {
		return fmt.Errorf("decreasing stock for product %q: %w", productID, err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	exists, err := r.exists(ctx, productID, variantSKU)
	if err != nil {
		return err
	}
	if !exists {
		return catalog.ErrNotFound
	}
	return order.ErrInsufficientStock
}

// IncreaseStock returns qty units to the product (or variant) stock.
func (r *ProductRepository) IncreaseStock(ctx context.Context, productID string, qty int, variantSKU string) error {
	var err error
	if variantSKU != "" {
		_, err = r.pool.Exec(ctx, increaseVariantStockSQL, productID, variantSKU, qty)
	} else {
		_, err = r.pool.Exec(ctx, increaseStockSQL, productID, qty)
	}
	if err != nil {
		return fmt.Errorf("increasing stock for product %q: %w", productID, err)
	}
	return nil
}

// IncrementSold bumps the product's lifetime sold counter.
func (r *ProductRepository) IncrementSold(ctx context.Context, productID string, qty int) error {
	if _, err := r.pool.Exec(ctx, incrementSoldSQL, productID, qty); err != nil {
		return fmt.Errorf("incrementing sold for product %q: %w", productID, err)
	}
	return nil
}

func (r *ProductRepository) exists(ctx context.Context, productID, variantSKU string) (bool, error) {
	var exists bool
	var err error
	if variantSKU != "" {
		err = r.pool.QueryRow(ctx, variantExistsSQL, productID, variantSKU).Scan(&exists)
	} else {
		err = r.pool.QueryRow(ctx, productExistsSQL, productID).Scan(&exists)
	}
	if err != nil {
		return false, fmt.Errorf("checking product %q: %w", productID, err)
	}
	return exists, nil
}

// attachVariants loads all variants for the given products in one query and
// stitches them onto their parents.
func (r *ProductRepository) attachVariants(ctx context.Context, products []catalog.Product) ([]catalog.Product, error) {
	if len(products) == 0 {
		return products, nil
	}
	ids := make([]string, len(products))
	index := make(map[string]int, len(products))
	for i, p := range products {
		ids[i] = p.ID
		index[p.ID] = i
	}

	rows, err := r.pool.Query(ctx, getVariantsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("getting product variants: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			productID string
			v         catalog.Variant
		)
		if err := rows.Scan(&productID, &v.SKU, &v.Price, &v.Stock); err != nil {
			return nil, fmt.Errorf("scanning product variant: %w", err)
		}
		if i, ok := index[productID]; ok {
			products[i].Variants = append(products[i].Variants, v)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("getting product variants: %w", err)
	}
	return products, nil
}

func scanProduct(row pgx.CollectableRow) (catalog.Product, error) {
	var p catalog.Product
	err := row.Scan(
		&p.ID, &p.Name, &p.Category, &p.SKU, &p.Image,
		&p.Price, &p.ShippingCharge, &p.Stock, &p.TotalSold,
	)
	return p, err
}
