// Command coupon-ingest loads promo codes from gzip-compressed code dumps.
// A code is accepted when it appears in at least two of the dumps.
package main

import (
	"context"
	"flag"
	"os"
	"path/filepath"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"go.uber.org/zap"

	"github.com/xenking/kart-checkout/internal/storage/postgres"
)

func main() {
	var (
		pattern     string
		databaseURL string
		workers     int
	)
	flag.StringVar(&pattern, "files", "data/couponbase*.gz", "glob matching the gzip code dumps")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.IntVar(&workers, "workers", 8, "concurrent database writers")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}

	app.Run(func(ctx context.Context, lg *zap.Logger, _ *app.Telemetry) error {
		if databaseURL == "" {
			return errors.New("database URL is required: set --database-url or DATABASE_URL")
		}
		files, err := filepath.Glob(pattern)
		if err != nil {
			return errors.Wrap(err, "match files")
		}
		return run(ctx, lg, files, databaseURL, workers)
	})
}

func run(ctx context.Context, lg *zap.Logger, files []string, databaseURL string, workers int) error {
	codes, err := findValidCodes(ctx, lg, files, bloomCapacity)
	if err != nil {
		return err
	}
	lg.Info("Valid codes found", zap.Int("count", len(codes)))
	if len(codes) == 0 {
		return nil
	}

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	return writeCoupons(ctx, lg, postgres.NewCouponRepository(pool), codes, workers)
}
