// Command seed-db creates the schema and loads a coupon catalogue.
package main

import (
	"context"
	"flag"
	"os"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"go.uber.org/zap"

	"github.com/xenking/kart-checkout/internal/storage/postgres"
)

func main() {
	var (
		databaseURL string
		couponsFile string
	)
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&couponsFile, "coupons-file", "", "JSON coupon catalogue; the built-in catalogue is used when empty")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}

	app.Run(func(ctx context.Context, lg *zap.Logger, _ *app.Telemetry) error {
		if databaseURL == "" {
			return errors.New("database URL is required: set --database-url or DATABASE_URL")
		}
		return run(ctx, lg, databaseURL, couponsFile)
	})
}

func run(ctx context.Context, lg *zap.Logger, databaseURL, couponsFile string) error {
	catalogue := defaultCatalogue
	if couponsFile != "" {
		data, err := os.ReadFile(couponsFile)
		if err != nil {
			return errors.Wrap(err, "read coupons file")
		}
		if catalogue, err = parseCatalogue(data); err != nil {
			return errors.Wrapf(err, "parse %s", couponsFile)
		}
	}

	lg.Info("Connecting to database")
	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	repo := postgres.NewCouponRepository(pool)
	for _, e := range catalogue {
		id, err := repo.UpsertCoupon(ctx, e.Coupon)
		if err != nil {
			return errors.Wrapf(err, "upsert coupon %s", e.Code)
		}
		if err := repo.SetCouponItems(ctx, id, e.ItemIDs); err != nil {
			return errors.Wrapf(err, "scope coupon %s", e.Code)
		}
		lg.Info("Upserted coupon",
			zap.Int64("id", id),
			zap.String("code", e.Code),
			zap.Int64s("item_ids", e.ItemIDs),
		)
	}

	lg.Info("Seed completed", zap.Int("coupons", len(catalogue)))
	return nil
}
