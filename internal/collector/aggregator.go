package collector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/LJTian/NewsCurator/internal/models"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Aggregator 并发运行所有数据源，单个数据源失败只记录错误，不影响整批结果
type Aggregator struct {
	fetchers    []Fetcher
	concurrency int
	timeout     time.Duration
	log         zerolog.Logger
}

func NewAggregator(fetchers []Fetcher, concurrency int, timeout time.Duration, log zerolog.Logger) *Aggregator {
	if concurrency <= 0 {
		concurrency = 4
	}
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Aggregator{
		fetchers:    fetchers,
		concurrency: concurrency,
		timeout:     timeout,
		log:         log.With().Str("component", "aggregator").Logger(),
	}
}

type fetchOutcome struct {
	items []models.RawItem
	err   error
}

// Run 返回所有成功数据源的条目（按注册顺序拼接，保留各数据源内部顺序）及失败列表
func (a *Aggregator) Run(ctx context.Context) ([]models.RawItem, []*models.AdapterFetchError) {
	outcomes := make([]fetchOutcome, len(a.fetchers))

	var g errgroup.Group
	g.SetLimit(a.concurrency)
	for i, f := range a.fetchers {
		g.Go(func() error {
			outcomes[i] = a.fetchOne(ctx, f)
			return nil
		})
	}
	_ = g.Wait()

	var (
		items []models.RawItem
		errs  []*models.AdapterFetchError
	)
	for i, o := range outcomes {
		name := a.fetchers[i].Name()
		if o.err != nil {
			a.log.Warn().Err(o.err).Str("source", name).Msg("source fetch failed, excluded from batch")
			errs = append(errs, &models.AdapterFetchError{Source: name, Err: o.err})
			continue
		}
		for _, it := range o.items {
			if it.SourceName == "" {
				it.SourceName = name
			}
			items = append(items, it)
		}
		a.log.Info().Str("source", name).Int("items", len(o.items)).Msg("source fetched")
	}
	return items, errs
}

// fetchOne 超时后直接放弃该数据源，不等待卡住的 goroutine
func (a *Aggregator) fetchOne(ctx context.Context, f Fetcher) fetchOutcome {
	fctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	done := make(chan fetchOutcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fetchOutcome{err: fmt.Errorf("panic: %v", r)}
			}
		}()
		items, err := f.Fetch(fctx)
		done <- fetchOutcome{items: items, err: err}
	}()

	select {
	case o := <-done:
		return o
	case <-fctx.Done():
		err := fctx.Err()
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("timed out after %s: %w", a.timeout, err)
		}
		return fetchOutcome{err: err}
	}
}
