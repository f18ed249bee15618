// Package volume computes a customer's rolling daily cash volume.
package volume

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"cashkiosk/pkg/requestcontext"
)

// Window is the trailing period daily volume covers.
const Window = 24 * time.Hour

const (
	// BucketSize is the granularity of cached partial sums.
	BucketSize = time.Hour
	// SettleDelay is how long after its end a bucket is still read live, so
	// transactions stamped slightly in the past are not missed.
	SettleDelay = 5 * time.Minute

	missParallelism = 4
)

// TransactionSummer sums fiat amounts of a customer's transactions. The
// Since variants count created_at >= since; the Between variants count
// from <= created_at < to. No transactions sum to zero.
type TransactionSummer interface {
	SumCashInSince(ctx context.Context, customerID uuid.UUID, since time.Time) (decimal.Decimal, error)
	SumCashOutSince(ctx context.Context, customerID uuid.UUID, since time.Time) (decimal.Decimal, error)
	SumCashInBetween(ctx context.Context, customerID uuid.UUID, from, to time.Time) (decimal.Decimal, error)
	SumCashOutBetween(ctx context.Context, customerID uuid.UUID, from, to time.Time) (decimal.Decimal, error)
}

// Cache holds cash-in plus cash-out sums of settled buckets, keyed by bucket
// start. Missing buckets are simply absent from the returned map.
type Cache interface {
	GetBuckets(ctx context.Context, customerID uuid.UUID, starts []time.Time) (map[time.Time]decimal.Decimal, error)
	SetBuckets(ctx context.Context, customerID uuid.UUID, sums map[time.Time]decimal.Decimal) error
}

// Aggregator sums cash-in and cash-out volume over the trailing Window.
type Aggregator struct {
	summer TransactionSummer
	cache  Cache
	logger *slog.Logger
}

type Option func(*Aggregator)

// WithCache reuses sums of settled buckets across lookups. The open head and
// tail of the window are always read from the store. Cache errors are
// logged and never fail a lookup.
func WithCache(cache Cache) Option {
	return func(a *Aggregator) {
		a.cache = cache
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(a *Aggregator) {
		a.logger = logger
	}
}

func NewAggregator(summer TransactionSummer, opts ...Option) (*Aggregator, error) {
	if summer == nil {
		return nil, fmt.Errorf("transaction summer is required")
	}
	a := &Aggregator{summer: summer, logger: slog.Default()}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Daily returns cash-in plus cash-out fiat volume for the customer since
// requestcontext.Now(ctx) minus Window.
func (a *Aggregator) Daily(ctx context.Context, customerID uuid.UUID) (decimal.Decimal, error) {
	now := requestcontext.Now(ctx)
	since := now.Add(-Window)
	if a.cache == nil {
		return a.sumSince(ctx, customerID, since)
	}

	buckets := settledBuckets(since, now)
	if len(buckets) == 0 {
		return a.sumSince(ctx, customerID, since)
	}
	first := buckets[0]
	settledEnd := buckets[len(buckets)-1].Add(BucketSize)

	var head, settled, tail decimal.Decimal
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		sum, err := a.sumBetween(gctx, customerID, since, first)
		head = sum
		return err
	})
	g.Go(func() error {
		sum, err := a.sumSince(gctx, customerID, settledEnd)
		tail = sum
		return err
	})
	g.Go(func() error {
		sum, err := a.sumSettled(gctx, customerID, buckets)
		settled = sum
		return err
	})
	if err := g.Wait(); err != nil {
		return decimal.Zero, err
	}
	return head.Add(settled).Add(tail), nil
}

// settledBuckets lists the whole buckets inside [since, now) that ended at
// least SettleDelay before now.
func settledBuckets(since, now time.Time) []time.Time {
	first := since.Truncate(BucketSize)
	if first.Before(since) {
		first = first.Add(BucketSize)
	}
	limit := now.Add(-SettleDelay)
	var out []time.Time
	for b := first; !b.Add(BucketSize).After(limit); b = b.Add(BucketSize) {
		out = append(out, b)
	}
	return out
}

func (a *Aggregator) sumSettled(ctx context.Context, customerID uuid.UUID, buckets []time.Time) (decimal.Decimal, error) {
	cached, err := a.cache.GetBuckets(ctx, customerID, buckets)
	if err != nil {
		a.logger.WarnContext(ctx, "volume cache read failed", "customer_id", customerID, "error", err)
		cached = nil
	}

	total := decimal.Zero
	var missing []time.Time
	for _, b := range buckets {
		if v, ok := cached[b]; ok {
			total = total.Add(v)
			continue
		}
		missing = append(missing, b)
	}
	if len(missing) == 0 {
		return total, nil
	}

	sums := make([]decimal.Decimal, len(missing))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(missParallelism)
	for i, b := range missing {
		g.Go(func() error {
			sum, err := a.sumBetween(gctx, customerID, b, b.Add(BucketSize))
			sums[i] = sum
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return decimal.Zero, err
	}

	fill := make(map[time.Time]decimal.Decimal, len(missing))
	for i, b := range missing {
		fill[b] = sums[i]
		total = total.Add(sums[i])
	}
	if err := a.cache.SetBuckets(ctx, customerID, fill); err != nil {
		a.logger.WarnContext(ctx, "volume cache write failed", "customer_id", customerID, "error", err)
	}
	return total, nil
}

// sumSince reads both directions concurrently from since onwards.
func (a *Aggregator) sumSince(ctx context.Context, customerID uuid.UUID, since time.Time) (decimal.Decimal, error) {
	return a.pair(ctx,
		func(ctx context.Context) (decimal.Decimal, error) {
			return a.summer.SumCashInSince(ctx, customerID, since)
		},
		func(ctx context.Context) (decimal.Decimal, error) {
			return a.summer.SumCashOutSince(ctx, customerID, since)
		},
	)
}

func (a *Aggregator) sumBetween(ctx context.Context, customerID uuid.UUID, from, to time.Time) (decimal.Decimal, error) {
	if !from.Before(to) {
		return decimal.Zero, nil
	}
	return a.pair(ctx,
		func(ctx context.Context) (decimal.Decimal, error) {
			return a.summer.SumCashInBetween(ctx, customerID, from, to)
		},
		func(ctx context.Context) (decimal.Decimal, error) {
			return a.summer.SumCashOutBetween(ctx, customerID, from, to)
		},
	)
}

type sumFunc func(ctx context.Context) (decimal.Decimal, error)

func (a *Aggregator) pair(ctx context.Context, cashIn, cashOut sumFunc) (decimal.Decimal, error) {
	var in, out decimal.Decimal
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		sum, err := cashIn(gctx)
		if err != nil {
			return fmt.Errorf("sum cash-in volume: %w", err)
		}
		in = sum
		return nil
	})
	g.Go(func() error {
		sum, err := cashOut(gctx)
		if err != nil {
			return fmt.Errorf("sum cash-out volume: %w", err)
		}
		out = sum
		return nil
	})
	if err := g.Wait(); err != nil {
		return decimal.Zero, err
	}
	return in.Add(out), nil
}
