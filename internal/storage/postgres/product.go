package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/threadline/storefront/internal/domain/product"
)

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository implements product.Repository backed by PostgreSQL.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

const productColumns = `id, name, slug, description, price, sale_price, inventory,
	category, cloth_type, sizes, colors, tags, images,
	is_active, home_page_featured, times_sold, created_at`

func scanProduct(row pgx.Row) (*product.Product, error) {
	var (
		p         product.Product
		salePrice decimal.NullDecimal
	)
	err := row.Scan(
		&p.ID, &p.Name, &p.Slug, &p.Description, &p.Price, &salePrice, &p.Inventory,
		&p.Category, &p.ClothType, &p.Sizes, &p.Colors, &p.Tags, &p.Images,
		&p.IsActive, &p.HomePageFeatured, &p.TimesSold, &p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.SalePrice = nullDecimal(salePrice)
	return &p, nil
}

// Find returns one page of the catalog. Filters compose as AND; the WHERE
// clause is built incrementally with positional parameters.
func (r *ProductRepository) Find(ctx context.Context, filter product.Filter, sort product.Sort, page product.PageRequest) (*product.Page, error) {
	where, args := buildProductWhere(filter)

	var total int
	countQuery := "SELECT count(*) FROM products" + where
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, errors.Wrap(err, "count products")
	}

	query := fmt.Sprintf(
		"SELECT %s FROM products%s ORDER BY %s LIMIT $%d OFFSET $%d",
		productColumns, where, orderClause(sort), len(args)+1, len(args)+2,
	)
	args = append(args, page.Take, page.Skip)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "list products")
	}
	defer rows.Close()

	var items []product.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan product")
		}
		items = append(items, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate products")
	}

	return &product.Page{
		Items:   items,
		Total:   total,
		HasMore: page.Skip+len(items) < total,
	}, nil
}

func buildProductWhere(filter product.Filter) (string, []any) {
	var (
		conds []string
		args  []any
	)

	if filter.ActiveOnly {
		conds = append(conds, "is_active")
	}
	if filter.FeaturedOnly {
		conds = append(conds, "home_page_featured")
	}
	if len(filter.Categories) > 0 {
		args = append(args, filter.Categories)
		conds = append(conds, fmt.Sprintf("category = ANY($%d)", len(args)))
	}
	if len(filter.ClothTypes) > 0 {
		args = append(args, filter.ClothTypes)
		conds = append(conds, fmt.Sprintf("cloth_type = ANY($%d)", len(args)))
	}
	if filter.Search != "" {
		args = append(args, "%"+escapeLike(filter.Search)+"%")
		n := len(args)
		conds = append(conds, fmt.Sprintf("(name ILIKE $%d OR description ILIKE $%d)", n, n))
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func orderClause(sort product.Sort) string {
	switch sort {
	case product.SortPriceAsc:
		return "COALESCE(sale_price, price) ASC, id"
	case product.SortPriceDesc:
		return "COALESCE(sale_price, price) DESC, id"
	case product.SortPopularity:
		return "times_sold DESC, id"
	default:
		return "created_at DESC, id"
	}
}

// escapeLike escapes LIKE metacharacters in user-supplied search text.
func escapeLike(s string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(s)
}

// GetByID returns a single product by its identifier.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*product.Product, error) {
	row := r.pool.QueryRow(ctx, "SELECT "+productColumns+" FROM products WHERE id = $1", id)
	p, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get product %q", id)
	}
	return p, nil
}

// GetBySlug returns a single product by its unique slug.
func (r *ProductRepository) GetBySlug(ctx context.Context, slug string) (*product.Product, error) {
	row := r.pool.QueryRow(ctx, "SELECT "+productColumns+" FROM products WHERE slug = $1", slug)
	p, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get product by slug %q", slug)
	}
	return p, nil
}

// GetByIDs fetches all products matching the given IDs in a single query.
func (r *ProductRepository) GetByIDs(ctx context.Context, ids []string) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, "SELECT "+productColumns+" FROM products WHERE id = ANY($1)", ids)
	if err != nil {
		return nil, errors.Wrap(err, "get products by ids")
	}
	defer rows.Close()

	var products []product.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan product")
		}
		products = append(products, *p)
	}
	return products, rows.Err()
}

// Create inserts a new product.
func (r *ProductRepository) Create(ctx context.Context, p *product.Product) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO products (id, name, slug, description, price, sale_price, inventory,
			category, cloth_type, sizes, colors, tags, images,
			is_active, home_page_featured)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		p.ID, p.Name, p.Slug, p.Description, p.Price, toNullDecimal(p.SalePrice), p.Inventory,
		p.Category, p.ClothType, p.Sizes, p.Colors, p.Tags, p.Images,
		p.IsActive, p.HomePageFeatured,
	)
	if err != nil {
		return errors.Wrapf(err, "create product %q", p.Slug)
	}
	return nil
}

// Update rewrites all mutable product fields.
func (r *ProductRepository) Update(ctx context.Context, p *product.Product) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE products SET
			name = $2, slug = $3, description = $4, price = $5, sale_price = $6,
			inventory = $7, category = $8, cloth_type = $9, sizes = $10,
			colors = $11, tags = $12, images = $13, is_active = $14,
			home_page_featured = $15
		WHERE id = $1`,
		p.ID, p.Name, p.Slug, p.Description, p.Price, toNullDecimal(p.SalePrice),
		p.Inventory, p.Category, p.ClothType, p.Sizes,
		p.Colors, p.Tags, p.Images, p.IsActive,
		p.HomePageFeatured,
	)
	if err != nil {
		return errors.Wrapf(err, "update product %q", p.ID)
	}
	if tag.RowsAffected() == 0 {
		return product.ErrNotFound
	}
	return nil
}

// Delete removes a product.
func (r *ProductRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, "DELETE FROM products WHERE id = $1", id)
	if err != nil {
		return errors.Wrapf(err, "delete product %q", id)
	}
	if tag.RowsAffected() == 0 {
		return product.ErrNotFound
	}
	return nil
}

// RecordSale decrements inventory and bumps times_sold for each sold product
// inside one transaction. Inventory never goes below zero; an oversold line
// clamps instead of violating the CHECK constraint.
func (r *ProductRepository) RecordSale(ctx context.Context, quantities map[string]int) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "begin record sale")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	for id, qty := range quantities {
		_, err := tx.Exec(ctx, `
			UPDATE products SET
				inventory = GREATEST(inventory - $2, 0),
				times_sold = times_sold + $2
			WHERE id = $1`,
			id, qty,
		)
		if err != nil {
			return errors.Wrapf(err, "record sale for product %q", id)
		}
	}

	return tx.Commit(ctx)
}
