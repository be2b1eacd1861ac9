package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"

	"github.com/burgershop/order-service/internal/seed"
	"github.com/burgershop/order-service/internal/storage/postgres"
)

func main() {
	var (
		databaseURL  string
		adminKey     string
		customerKey  string
		customerID   string
		apiKeyPepper string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&adminKey, "admin-key", "", "admin API key to seed (or SHOP_SEED_ADMIN_KEY env)")
	flag.StringVar(&customerKey, "customer-key", "", "customer API key to seed (or SHOP_SEED_CUSTOMER_KEY env)")
	flag.StringVar(&customerID, "customer-id", "customer-1", "user id owning the customer key and demo coupons")
	flag.StringVar(&apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or SHOP_API_KEY_PEPPER env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if adminKey == "" {
		adminKey = os.Getenv("SHOP_SEED_ADMIN_KEY")
	}
	if customerKey == "" {
		customerKey = os.Getenv("SHOP_SEED_CUSTOMER_KEY")
	}
	if adminKey == "" && customerKey == "" {
		slog.Error("at least one API key is required: set --admin-key or --customer-key")
		os.Exit(1)
	}
	if apiKeyPepper == "" {
		apiKeyPepper = os.Getenv("SHOP_API_KEY_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	keys := seed.Keys(adminKey, customerKey, customerID)
	if err := run(ctx, databaseURL, keys, customerID, []byte(apiKeyPepper)); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL string, keys []seed.Key, customerID string, pepper []byte) error {
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

	if err := seedCoupons(ctx, postgres.NewCouponStore(pool), customerID); err != nil {
		return errors.Wrap(err, "seed coupons")
	}

	if err := seedAPIKeys(ctx, postgres.NewAPIKeyRepository(pool), keys, pepper); err != nil {
		return errors.Wrap(err, "seed api keys")
	}

	return nil
}

func seedCoupons(ctx context.Context, store *postgres.CouponStore, customerID string) error {
	slog.Info("seeding demo coupons", slog.String("customer_id", customerID))

	for _, c := range seed.Coupons(customerID, time.Now()) {
		inserted, err := store.Insert(ctx, c)
		if err != nil {
			return errors.Wrapf(err, "insert coupon %s", c.Code)
		}
		if !inserted {
			slog.Info("coupon already present", slog.String("code", c.Code))
			continue
		}

		slog.Info("inserted coupon", slog.String("code", c.Code), slog.String("prize", c.PrizeName))
	}

	return nil
}

func seedAPIKeys(ctx context.Context, repo *postgres.APIKeyRepository, keys []seed.Key, pepper []byte) error {
	for _, k := range keys {
		info := k.Info(pepper)
		if err := repo.Upsert(ctx, info); err != nil {
			return err
		}

		slog.Info("upserted API key",
			slog.String("id", info.ID),
			slog.String("user_id", info.UserID),
			slog.String("role", string(info.Role)),
		)
	}

	return nil
}
