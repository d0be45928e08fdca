package pms

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	defaultPageConcurrency = 5
)

// PagerConfig bounds how hard a paged export is fetched.
type PagerConfig struct {
	Concurrency int
	BatchDelay  time.Duration
}

func (c PagerConfig) withDefaults() PagerConfig {
	if c.Concurrency <= 0 {
		c.Concurrency = defaultPageConcurrency
	}
	if c.BatchDelay < 0 {
		c.BatchDelay = 0
	}
	return c
}

// FetchPages fetches pages first..last inclusive, at most Concurrency at a
// time, sleeping BatchDelay between batches. Results keep page order. The
// first page error cancels the batch and is returned.
func FetchPages[T any](ctx context.Context, first, last int, cfg PagerConfig, fetch func(ctx context.Context, page int) ([]T, error)) ([]T, error) {
	if last < first {
		return nil, nil
	}
	cfg = cfg.withDefaults()

	results := make([][]T, last-first+1)
	for start := first; start <= last; start += cfg.Concurrency {
		if start > first && cfg.BatchDelay > 0 {
			timer := time.NewTimer(cfg.BatchDelay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-timer.C:
			}
		}

		end := start + cfg.Concurrency - 1
		if end > last {
			end = last
		}

		g, gctx := errgroup.WithContext(ctx)
		for page := start; page <= end; page++ {
			page := page
			g.Go(func() error {
				items, err := fetch(gctx, page)
				if err != nil {
					return err
				}
				results[page-first] = items
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}

	var out []T
	for _, items := range results {
		out = append(out, items...)
	}
	return out, nil
}
