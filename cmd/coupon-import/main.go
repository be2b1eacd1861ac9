package main

import (
	"bufio"
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"golang.org/x/sync/errgroup"

	"github.com/burgershop/order-service/internal/domain/coupon"
	"github.com/burgershop/order-service/internal/storage/postgres"
)

const (
	bloomCapacity = 10_000_000
	bloomFPR      = 0.001
	progressEvery = 100_000
	maxLineSize   = 64 * 1024
)

// couponWriter is the slice of the coupon store the import needs.
type couponWriter interface {
	FindByCode(ctx context.Context, code string) (*coupon.Coupon, error)
	Insert(ctx context.Context, c coupon.Coupon) (bool, error)
}

type stats struct {
	read       atomic.Int64
	inserted   atomic.Int64
	duplicates atomic.Int64
	invalid    atomic.Int64
}

func main() {
	var (
		databaseURL string
		workers     int
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.IntVar(&workers, "workers", 4, "concurrent database writers")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	files := flag.Args()
	if len(files) == 0 {
		slog.Error("usage: coupon-import [flags] coupons.jsonl.gz...")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, files, workers); err != nil {
		slog.Error("coupon import failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("coupon import completed successfully")
}

func run(ctx context.Context, databaseURL string, files []string, workers int) error {
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			return errors.Wrapf(err, "check file %s", f)
		}
	}

	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	st, err := importFiles(ctx, postgres.NewCouponStore(pool), files, workers)
	if err != nil {
		return err
	}

	slog.Info("import summary",
		slog.Int64("read", st.read.Load()),
		slog.Int64("inserted", st.inserted.Load()),
		slog.Int64("duplicates", st.duplicates.Load()),
		slog.Int64("invalid", st.invalid.Load()),
	)
	return nil
}

// importFiles streams every file through a reader, a single dedup stage and
// a pool of writers. The bloom filter lets first occurrences of a code go
// straight to Insert; only suspected repeats pay for a lookup. Insert itself
// is idempotent, so a false negative from a racing writer is still safe.
func importFiles(ctx context.Context, store couponWriter, files []string, workers int) (*stats, error) {
	if workers <= 0 {
		workers = 1
	}
	st := &stats{}
	records := make(chan coupon.Coupon, 1024)
	unique := make(chan coupon.Coupon, 1024)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(records)
		for _, f := range files {
			if err := streamGzFile(ctx, f, func(n int, line []byte) error {
				c, err := parseRecord(line)
				if err != nil {
					st.invalid.Add(1)
					slog.Warn("skipping invalid record",
						slog.String("file", f),
						slog.Int("line", n),
						slog.String("error", err.Error()),
					)
					return nil
				}
				if read := st.read.Add(1); read%progressEvery == 0 {
					slog.Info("read progress", slog.Int64("records", read))
				}
				select {
				case records <- c:
					return nil
				case <-ctx.Done():
					return ctx.Err()
				}
			}); err != nil {
				return err
			}
		}
		return nil
	})

	g.Go(func() error {
		defer close(unique)
		filter := bloom.NewWithEstimates(bloomCapacity, bloomFPR)
		for c := range records {
			if filter.TestAndAddString(c.Code) {
				existing, err := store.FindByCode(ctx, c.Code)
				switch {
				case err == nil:
					st.duplicates.Add(1)
					if existing.AssignedTo != c.AssignedTo {
						slog.Warn("code already assigned to another user",
							slog.String("code", c.Code),
							slog.String("user_id", c.AssignedTo),
						)
					}
					continue
				case !errors.Is(err, coupon.ErrNotFound):
					return errors.Wrapf(err, "check code %s", c.Code)
				}
			}
			select {
			case unique <- c:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})

	for range workers {
		g.Go(func() error {
			for c := range unique {
				inserted, err := store.Insert(ctx, c)
				if err != nil {
					return err
				}
				if inserted {
					st.inserted.Add(1)
				} else {
					st.duplicates.Add(1)
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return st, errors.Wrap(err, "import")
	}
	return st, nil
}

// streamGzFile opens a gzip-compressed file and calls fn for each non-empty
// line with its 1-based line number.
func streamGzFile(ctx context.Context, path string, fn func(n int, line []byte) error) error {
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
	scanner.Buffer(make([]byte, 0, 4096), maxLineSize)
	n := 0
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		n++
		if len(scanner.Bytes()) == 0 {
			continue
		}
		if err := fn(n, scanner.Bytes()); err != nil {
			return err
		}
	}

	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}

	return nil
}
