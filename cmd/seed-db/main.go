// Command seed-db loads demo catalog data, coupons, and an admin account
// with its API key into the database. Intended for development and staging.
package main

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/threadline/storefront/internal/domain/coupon"
	"github.com/threadline/storefront/internal/domain/user"
	"github.com/threadline/storefront/internal/storage/postgres"
)

type productJSON struct {
	ID               string   `json:"id"`
	Name             string   `json:"name"`
	Slug             string   `json:"slug"`
	Description      string   `json:"description"`
	Price            float64  `json:"price"`
	SalePrice        *float64 `json:"salePrice"`
	Inventory        int      `json:"inventory"`
	Category         string   `json:"category"`
	ClothType        string   `json:"clothType"`
	Sizes            []string `json:"sizes"`
	Colors           []string `json:"colors"`
	Tags             []string `json:"tags"`
	Images           []string `json:"images"`
	HomePageFeatured bool     `json:"homePageFeatured"`
}

func main() {
	var (
		databaseURL  string
		productsFile string
		adminEmail   string
		apiKey       string
		apiKeyPepper string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&productsFile, "products-file", "db/seed/products.json", "path to products JSON file")
	flag.StringVar(&adminEmail, "admin-email", "admin@threadline.local", "email for the seeded admin user")
	flag.StringVar(&apiKey, "api-key", "", "admin API key to seed (or THREADLINE_SEED_API_KEY env)")
	flag.StringVar(&apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or THREADLINE_API_KEY_PEPPER env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if apiKey == "" {
		apiKey = os.Getenv("THREADLINE_SEED_API_KEY")
	}
	if apiKey == "" {
		slog.Error("API key is required: set --api-key or THREADLINE_SEED_API_KEY")
		os.Exit(1)
	}
	if apiKeyPepper == "" {
		apiKeyPepper = os.Getenv("THREADLINE_API_KEY_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, productsFile, adminEmail, apiKey, apiKeyPepper); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, productsFile, adminEmail, apiKey, pepper string) error {
	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedAdmin(ctx, pool, adminEmail, apiKey, pepper); err != nil {
		return errors.Wrap(err, "seed admin")
	}

	// Products and coupons are independent; seed them concurrently.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return errors.Wrap(seedProducts(gctx, pool, productsFile), "seed products")
	})
	g.Go(func() error {
		return errors.Wrap(seedCoupons(gctx, pool), "seed coupons")
	})
	return g.Wait()
}

func seedProducts(ctx context.Context, pool *pgxpool.Pool, productsFile string) error {
	slog.Info("reading products file", slog.String("path", productsFile))

	data, err := os.ReadFile(productsFile)
	if err != nil {
		return errors.Wrap(err, "read products file")
	}

	var products []productJSON
	if err := json.Unmarshal(data, &products); err != nil {
		return errors.Wrap(err, "parse products JSON")
	}

	slog.Info("upserting products", slog.Int("count", len(products)))

	for _, p := range products {
		id := p.ID
		if id == "" {
			id = uuid.New().String()
		}
		var salePrice *decimal.Decimal
		if p.SalePrice != nil {
			d := decimal.NewFromFloat(*p.SalePrice)
			salePrice = &d
		}

		_, err := pool.Exec(ctx, `
			INSERT INTO products (id, name, slug, description, price, sale_price, inventory,
				category, cloth_type, sizes, colors, tags, images, is_active, home_page_featured)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, TRUE, $14)
			ON CONFLICT (slug) DO UPDATE SET
				name = EXCLUDED.name, description = EXCLUDED.description,
				price = EXCLUDED.price, sale_price = EXCLUDED.sale_price,
				inventory = EXCLUDED.inventory, category = EXCLUDED.category,
				cloth_type = EXCLUDED.cloth_type, sizes = EXCLUDED.sizes,
				colors = EXCLUDED.colors, tags = EXCLUDED.tags,
				images = EXCLUDED.images, home_page_featured = EXCLUDED.home_page_featured`,
			id, p.Name, p.Slug, p.Description, decimal.NewFromFloat(p.Price), salePrice, p.Inventory,
			p.Category, p.ClothType, p.Sizes, p.Colors, p.Tags, p.Images, p.HomePageFeatured,
		)
		if err != nil {
			return errors.Wrapf(err, "upsert product %s", p.Slug)
		}

		slog.Info("upserted product", slog.String("slug", p.Slug), slog.String("name", p.Name))
	}

	return nil
}

func seedCoupons(ctx context.Context, pool *pgxpool.Pool) error {
	slog.Info("seeding demo coupons")

	ten := decimal.NewFromInt(10)
	coupons := []coupon.Coupon{
		{
			ID:              uuid.New().String(),
			Code:            "WELCOME10",
			Description:     "10% off your first order",
			DiscountType:    coupon.DiscountPercentage,
			DiscountValue:   ten,
			IsActive:        true,
			IsFirstTimeOnly: true,
		},
		{
			ID:              uuid.New().String(),
			Code:            "FLAT200",
			Description:     "Flat 200 off orders over 999",
			DiscountType:    coupon.DiscountFixedAmount,
			DiscountValue:   decimal.NewFromInt(200),
			MinimumPurchase: decimalPtr(decimal.NewFromInt(999)),
			IsActive:        true,
		},
		{
			ID:                uuid.New().String(),
			Code:              "SUMMER25",
			Description:       "25% off summer wear, up to 500",
			DiscountType:      coupon.DiscountPercentage,
			DiscountValue:     decimal.NewFromInt(25),
			MaximumDiscount:   decimalPtr(decimal.NewFromInt(500)),
			IsActive:          true,
			ProductCategories: []string{"MEN", "WOMEN"},
		},
	}

	for _, c := range coupons {
		_, err := pool.Exec(ctx, `
			INSERT INTO coupons (id, code, description, discount_type, discount_value,
				minimum_purchase, maximum_discount, is_active, is_first_time_only, product_categories)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT (code) DO UPDATE SET
				description = EXCLUDED.description,
				discount_type = EXCLUDED.discount_type,
				discount_value = EXCLUDED.discount_value,
				minimum_purchase = EXCLUDED.minimum_purchase,
				maximum_discount = EXCLUDED.maximum_discount,
				is_active = EXCLUDED.is_active,
				is_first_time_only = EXCLUDED.is_first_time_only,
				product_categories = EXCLUDED.product_categories`,
			c.ID, c.Code, c.Description, c.DiscountType, c.DiscountValue,
			c.MinimumPurchase, c.MaximumDiscount, c.IsActive, c.IsFirstTimeOnly, c.ProductCategories,
		)
		if err != nil {
			return errors.Wrapf(err, "upsert coupon %s", c.Code)
		}

		slog.Info("upserted coupon", slog.String("code", c.Code))
	}

	return nil
}

// seedAdmin creates the admin user and binds the API key to it.
func seedAdmin(ctx context.Context, pool *pgxpool.Pool, email, apiKey, pepper string) error {
	slog.Info("seeding admin user", slog.String("email", email))

	adminID := uuid.New().String()
	err := pool.QueryRow(ctx, `
		INSERT INTO users (id, email, name, role)
		VALUES ($1, $2, 'Administrator', $3)
		ON CONFLICT (email) DO UPDATE SET role = EXCLUDED.role
		RETURNING id`,
		adminID, email, user.RoleAdmin,
	).Scan(&adminID)
	if err != nil {
		return errors.Wrap(err, "upsert admin user")
	}

	mac := hmac.New(sha256.New, []byte(pepper))
	mac.Write([]byte(apiKey))
	keyHash := hex.EncodeToString(mac.Sum(nil))

	_, err = pool.Exec(ctx, `
		INSERT INTO api_keys (id, key_hash, user_id, name, is_active)
		VALUES ('admin-default', $1, $2, 'Default admin key', TRUE)
		ON CONFLICT (key_hash) DO UPDATE SET user_id = EXCLUDED.user_id, is_active = TRUE`,
		keyHash, adminID,
	)
	if err != nil {
		return errors.Wrap(err, "upsert admin API key")
	}

	slog.Info("seeded admin API key", slog.String("user_id", adminID))
	return nil
}

func decimalPtr(d decimal.Decimal) *decimal.Decimal {
	return &d
}
