// Command seed-db loads the schema and seeds the catalog, a couple of demo
// coupons, and an API key for the admin and webhook surfaces.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/vendora/commerce-core/internal/domain/auth"
	"github.com/vendora/commerce-core/internal/domain/coupon"
	"github.com/vendora/commerce-core/internal/repository"
)

type variantJSON struct {
	SKU   string          `json:"sku"`
	Price decimal.Decimal `json:"price"`
	Stock int             `json:"stock"`
}

type productJSON struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Category       string          `json:"category"`
	SKU            string          `json:"sku"`
	Image          string          `json:"image"`
	Price          decimal.Decimal `json:"price"`
	ShippingCharge decimal.Decimal `json:"shippingCharge"`
	Stock          int             `json:"stock"`
	Variants       []variantJSON   `json:"variants"`
}

func main() {
	var (
		databaseURL  string
		productsFile string
		apiKey       string
		apiKeyPepper string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&productsFile, "products-file", "db/seed/products.json", "path to products JSON file")
	flag.StringVar(&apiKey, "api-key", "", "API key to seed (or COMMERCE_SEED_API_KEY env)")
	flag.StringVar(&apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or COMMERCE_API_KEY_PEPPER env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if apiKey == "" {
		apiKey = os.Getenv("COMMERCE_SEED_API_KEY")
	}
	if apiKey == "" {
		slog.Error("API key is required: set --api-key or COMMERCE_SEED_API_KEY")
		os.Exit(1)
	}
	if apiKeyPepper == "" {
		apiKeyPepper = os.Getenv("COMMERCE_API_KEY_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, productsFile, apiKey, apiKeyPepper); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, productsFile, apiKey, pepper string) error {
	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")
	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedProducts(ctx, pool, productsFile); err != nil {
		return errors.Wrap(err, "seed products")
	}
	if err := seedCoupons(ctx, pool); err != nil {
		return errors.Wrap(err, "seed coupons")
	}
	if err := seedAPIKey(ctx, pool, apiKey, pepper); err != nil {
		return errors.Wrap(err, "seed api key")
	}
	return nil
}

const (
	upsertProductSQL = `INSERT INTO products (id, name, category, sku, image, price, shipping_charge, stock)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET name = $2, category = $3, sku = $4, image = $5,
		price = $6, shipping_charge = $7, stock = $8`

	upsertVariantSQL = `INSERT INTO product_variants (product_id, sku, price, stock)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (product_id, sku) DO UPDATE SET price = $3, stock = $4`
)

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

	for _, p := range products {
		_, err := pool.Exec(ctx, upsertProductSQL,
			p.ID, p.Name, p.Category, p.SKU, p.Image, p.Price, p.ShippingCharge, p.Stock,
		)
		if err != nil {
			return errors.Wrapf(err, "upsert product %s", p.ID)
		}
		for _, v := range p.Variants {
			if _, err := pool.Exec(ctx, upsertVariantSQL, p.ID, v.SKU, v.Price, v.Stock); err != nil {
				return errors.Wrapf(err, "upsert variant %s/%s", p.ID, v.SKU)
			}
		}
	}

	slog.Info("products seeded", slog.Int("count", len(products)))
	return nil
}

func seedCoupons(ctx context.Context, pool *pgxpool.Pool) error {
	repo := repository.NewCouponRepository(pool)
	now := time.Now()

	demo := []*coupon.Coupon{
		{
			ID:             uuid.New().String(),
			Code:           "WELCOME10",
			Description:    "10% off your first order",
			DiscountType:   coupon.DiscountPercentage,
			Value:          decimal.NewFromInt(10),
			MaxDiscount:    decimal.NewFromInt(100),
			MaxUsesPerUser: 1,
			ValidFrom:      now,
			ValidUntil:     now.AddDate(1, 0, 0),
			Active:         true,
			CreatedAt:      now,
			UpdatedAt:      now,
		},
		{
			ID:             uuid.New().String(),
			Code:           "FREESHIP",
			Description:    "Free shipping on orders over 500",
			DiscountType:   coupon.DiscountFixed,
			Value:          decimal.NewFromInt(1),
			MinOrderValue:  decimal.NewFromInt(500),
			MaxUsesPerUser: 3,
			FreeShipping:   true,
			ValidFrom:      now,
			ValidUntil:     now.AddDate(0, 6, 0),
			Active:         true,
			CreatedAt:      now,
			UpdatedAt:      now,
		},
	}

	for _, c := range demo {
		if err := repo.Create(ctx, c); err != nil {
			// Existing demo coupons are fine on a re-run.
			slog.Warn("seed coupon skipped", slog.String("code", c.Code), slog.String("error", err.Error()))
			continue
		}
		slog.Info("coupon seeded", slog.String("code", c.Code))
	}
	return nil
}

const upsertAPIKeySQL = `INSERT INTO api_keys (id, key_hash, name, scopes, active)
	VALUES ($1, $2, $3, $4, TRUE)
	ON CONFLICT (key_hash) DO UPDATE SET scopes = $4, active = TRUE`

func seedAPIKey(ctx context.Context, pool *pgxpool.Pool, apiKey, pepper string) error {
	hash := auth.HashKey([]byte(pepper), apiKey)
	scopes := []string{auth.ScopeAdmin, auth.ScopeWebhook}

	if _, err := pool.Exec(ctx, upsertAPIKeySQL, uuid.New().String(), hash, "seed", scopes); err != nil {
		return errors.Wrap(err, "upsert api key")
	}

	slog.Info("api key seeded", slog.String("scopes", "admin,webhook"))
	return nil
}
