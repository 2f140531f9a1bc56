// Package pipeline 串起一轮完整的采集：采集 → 规范化 → 去重 → 入库 → （可选）AI 打分
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/LJTian/NewsCurator/internal/collector"
	"github.com/LJTian/NewsCurator/internal/dedup"
	"github.com/LJTian/NewsCurator/internal/models"
	"github.com/LJTian/NewsCurator/internal/processor"
	"github.com/LJTian/NewsCurator/internal/scoring"
	"github.com/LJTian/NewsCurator/internal/storage"
	"github.com/rs/zerolog"
)

// Source 采集入口，collector.Aggregator 实现了它
type Source interface {
	Run(ctx context.Context) ([]models.RawItem, []*models.AdapterFetchError)
}

var _ Source = (*collector.Aggregator)(nil)

// ScoreError 入库后自动打分失败的文章，不影响入库结果
type ScoreError struct {
	ArticleID string `json:"article_id"`
	Error     string `json:"error"`
}

// AdapterError 便于序列化的采集失败记录
type AdapterError struct {
	Source string `json:"source"`
	Error  string `json:"error"`
}

// Result 一轮采集的汇总
type Result struct {
	StartedAt   time.Time      `json:"started_at"`
	Duration    string         `json:"duration"`
	Fetched     int            `json:"fetched"`
	Normalized  int            `json:"normalized"`
	Inserted    int            `json:"inserted"`
	InsertedIDs []string       `json:"inserted_ids"`
	Skips       []models.Skip  `json:"skips"`
	Adapter     []AdapterError `json:"adapter_errors"`
	Scoring     []ScoreError   `json:"scoring_errors"`
}

// Options 可选协作方；Scorer 为 nil 时不自动打分
type Options struct {
	AutoScore bool
	Scorer    *scoring.Engine
}

type Pipeline struct {
	source     Source
	normalizer *processor.Normalizer
	dedup      *dedup.Deduplicator
	store      storage.ArticleStore
	locker     storage.Locker
	opts       Options
	log        zerolog.Logger
}

func New(source Source, normalizer *processor.Normalizer, d *dedup.Deduplicator, store storage.ArticleStore, locker storage.Locker, opts Options, log zerolog.Logger) *Pipeline {
	return &Pipeline{
		source:     source,
		normalizer: normalizer,
		dedup:      d,
		store:      store,
		locker:     locker,
		opts:       opts,
		log:        log.With().Str("component", "pipeline").Logger(),
	}
}

// RunIngestionCycle 执行一轮采集。单个数据源失败只记录，不会让整轮失败；
// 去重检查与插入在同一把锁内完成，并发的两轮采集不会同时放进近似重复的文章。
func (p *Pipeline) RunIngestionCycle(ctx context.Context) (*Result, error) {
	start := time.Now()
	res := &Result{StartedAt: start.UTC()}
	p.log.Info().Msg("start ingestion cycle...")

	items, fetchErrs := p.source.Run(ctx)
	res.Fetched = len(items)
	for _, fe := range fetchErrs {
		res.Adapter = append(res.Adapter, AdapterError{Source: fe.Source, Error: fe.Err.Error()})
	}
	if err := ctx.Err(); err != nil {
		return res, err
	}

	articles, skips := p.normalizer.Process(items)
	res.Normalized = len(articles)
	res.Skips = append(res.Skips, skips...)

	inserted, err := p.dedupAndInsert(ctx, articles, res)
	if err != nil {
		return res, err
	}

	if p.opts.AutoScore && p.opts.Scorer != nil {
		for _, id := range inserted {
			if _, err := p.opts.Scorer.AutoScore(ctx, id); err != nil {
				res.Scoring = append(res.Scoring, ScoreError{ArticleID: id, Error: err.Error()})
			}
		}
	}

	res.Duration = time.Since(start).String()
	p.log.Info().
		Int("fetched", res.Fetched).
		Int("inserted", res.Inserted).
		Int("skipped", len(res.Skips)).
		Int("adapter_errors", len(res.Adapter)).
		Str("duration", res.Duration).
		Msg("ingestion cycle done")
	return res, nil
}

func (p *Pipeline) dedupAndInsert(ctx context.Context, articles []models.Article, res *Result) ([]string, error) {
	if len(articles) == 0 {
		return nil, nil
	}

	unlock, err := p.locker.Lock(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire ingest lock: %w", err)
	}
	defer unlock()

	filtered, err := p.dedup.Filter(ctx, articles)
	if err != nil {
		return nil, fmt.Errorf("dedup: %w", err)
	}
	res.Skips = append(res.Skips, filtered.Skips...)

	ids := make([]string, 0, len(filtered.Accepted))
	for _, a := range filtered.Accepted {
		if err := p.store.Insert(ctx, a); err != nil {
			if errors.Is(err, models.ErrDuplicateID) {
				res.Skips = append(res.Skips, models.Skip{
					CandidateID: a.ID,
					Title:       a.Title,
					Link:        a.CanonicalLink,
					SourceName:  a.SourceName,
					Reason:      "duplicate id",
				})
				continue
			}
			res.Inserted, res.InsertedIDs = len(ids), ids
			return ids, fmt.Errorf("insert %s: %w", a.ID, err)
		}
		ids = append(ids, a.ID)
	}
	res.Inserted, res.InsertedIDs = len(ids), ids
	return ids, nil
}
