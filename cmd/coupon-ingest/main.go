// Command coupon-ingest bulk-imports campaign code files into the coupons
// table. Marketing exports arrive as gzip-compressed files with one code per
// line; files are streamed concurrently and deduplicated against codes
// already in the database before insertion.
package main

import (
	"bufio"
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/vendora/commerce-core/internal/domain/coupon"
	"github.com/vendora/commerce-core/internal/repository"
)

const (
	bloomCapacity = 10_000_000
	bloomFPR      = 0.001
	progressEvery = 1_000_000
	minCodeLen    = 4
	maxCodeLen    = 32
	insertBatch   = 1000
)

func main() {
	var (
		databaseURL string
		description string
		value       float64
		maxDiscount float64
		validDays   int
		perUserCap  int
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&description, "description", "Campaign promo code", "description for imported coupons")
	flag.Float64Var(&value, "value", 10, "percentage discount for imported coupons")
	flag.Float64Var(&maxDiscount, "max-discount", 100, "discount cap for imported coupons")
	flag.IntVar(&validDays, "valid-days", 30, "validity window in days from now")
	flag.IntVar(&perUserCap, "per-user-cap", 1, "per-user usage cap for imported coupons")
	flag.Parse()

	files := flag.Args()
	if len(files) == 0 {
		slog.Error("at least one code file (.gz) is required")
		os.Exit(1)
	}
	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	template := coupon.Coupon{
		Description:    description,
		DiscountType:   coupon.DiscountPercentage,
		Value:          decimal.NewFromFloat(value),
		MaxDiscount:    decimal.NewFromFloat(maxDiscount),
		MaxUsesPerUser: perUserCap,
		ValidFrom:      time.Now(),
		ValidUntil:     time.Now().AddDate(0, 0, validDays),
		Active:         true,
	}

	if err := run(ctx, databaseURL, files, template); err != nil {
		slog.Error("coupon ingest failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("coupon ingest completed successfully")
}

func run(ctx context.Context, databaseURL string, files []string, template coupon.Coupon) error {
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			return errors.Wrapf(err, "check file %s", f)
		}
	}

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	// Seed the filter with codes already in the table so re-running an
	// import is cheap. False positives only cost a redundant ON CONFLICT.
	slog.Info("loading existing codes")
	existing, err := loadExistingCodes(ctx, pool)
	if err != nil {
		return errors.Wrap(err, "load existing codes")
	}

	slog.Info("streaming code files", slog.Int("files", len(files)))
	codes, err := collectNewCodes(ctx, files, existing)
	if err != nil {
		return errors.Wrap(err, "collect codes")
	}

	slog.Info("new codes found", slog.Int("count", len(codes)))
	if len(codes) == 0 {
		return nil
	}

	return writeCoupons(ctx, pool, codes, template)
}

type codePool interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func loadExistingCodes(ctx context.Context, pool codePool) (*bloom.BloomFilter, error) {
	filter := bloom.NewWithEstimates(bloomCapacity, bloomFPR)

	rows, err := pool.Query(ctx, `SELECT code FROM coupons`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var count int
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, err
		}
		filter.AddString(code)
		count++
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	slog.Info("existing codes loaded", slog.Int("count", count))
	return filter, nil
}

// collectNewCodes streams all files concurrently, normalizes each line, and
// keeps codes not already present. The shared filter doubles as in-batch
// dedup across files.
func collectNewCodes(ctx context.Context, files []string, filter *bloom.BloomFilter) ([]string, error) {
	var (
		mu    sync.Mutex
		codes []string
	)

	g, ctx := errgroup.WithContext(ctx)
	for _, path := range files {
		g.Go(func() error {
			var count uint64
			return streamGzFile(ctx, path, func(line string) {
				code := coupon.NormalizeCode(line)
				if len(code) < minCodeLen || len(code) > maxCodeLen {
					return
				}
				count++
				if count%progressEvery == 0 {
					slog.Info("progress", slog.String("file", path), slog.Uint64("lines", count))
				}

				mu.Lock()
				if !filter.TestString(code) {
					filter.AddString(code)
					codes = append(codes, code)
				}
				mu.Unlock()
			})
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return codes, nil
}

// streamGzFile opens a gzip-compressed file and calls fn for each line.
func streamGzFile(ctx context.Context, path string, fn func(line string)) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		fn(scanner.Text())
	}
	return errors.Wrapf(scanner.Err(), "scan %s", path)
}

const insertCouponSQL = `INSERT INTO coupons (id, code, description, discount_type, value, max_discount,
	min_order_value, max_uses, max_uses_per_user, valid_from, valid_until, active, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, 0, 0, $7, $8, $9, TRUE, NOW(), NOW())
	ON CONFLICT (code) DO NOTHING`

type batchPool interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// writeCoupons inserts codes with the campaign template in batches.
func writeCoupons(ctx context.Context, pool batchPool, codes []string, template coupon.Coupon) error {
	slog.Info("writing coupons", slog.Int("count", len(codes)))

	for start := 0; start < len(codes); start += insertBatch {
		end := min(start+insertBatch, len(codes))

		batch := &pgx.Batch{}
		for _, code := range codes[start:end] {
			batch.Queue(insertCouponSQL,
				uuid.New().String(), code, template.Description,
				string(template.DiscountType), template.Value, template.MaxDiscount,
				template.MaxUsesPerUser, template.ValidFrom, template.ValidUntil,
			)
		}
		if err := pool.SendBatch(ctx, batch).Close(); err != nil {
			return errors.Wrapf(err, "insert batch at %d", start)
		}

		slog.Info("write progress", slog.Int("written", end), slog.Int("total", len(codes)))
	}
	return nil
}
