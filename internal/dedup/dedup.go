// Package dedup 对一批候选文章做模糊去重：先按分桶键从存储中取回窗口内的历史文章，
// 再与历史文章及本批次已接受的文章逐一比较标题相似度。
package dedup

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/LJTian/NewsCurator/internal/models"
	"github.com/rs/zerolog"
)

// CandidateSource 分桶查询，由 ArticleStore 实现
type CandidateSource interface {
	ListFingerprintCandidates(ctx context.Context, since time.Time, keys []string) ([]models.Article, error)
}

type Options struct {
	Threshold      int
	Lookback       time.Duration
	SourcePriority []string
}

type Deduplicator struct {
	src       CandidateSource
	threshold int
	lookback  time.Duration
	priority  map[string]int
	now       func() time.Time
	log       zerolog.Logger
}

// Result Accepted 保持到达顺序，可直接插入存储
type Result struct {
	Accepted []models.Article
	Skips    []models.Skip
}

func New(src CandidateSource, opts Options, log zerolog.Logger) *Deduplicator {
	priority := make(map[string]int, len(opts.SourcePriority))
	for i, name := range opts.SourcePriority {
		if _, ok := priority[name]; !ok {
			priority[name] = i
		}
	}
	return &Deduplicator{
		src:       src,
		threshold: opts.Threshold,
		lookback:  opts.Lookback,
		priority:  priority,
		now:       time.Now,
		log:       log.With().Str("component", "dedup").Logger(),
	}
}

// WithClock 替换时钟，便于测试回看窗口
func (d *Deduplicator) WithClock(now func() time.Time) *Deduplicator {
	d.now = now
	return d
}

// Filter 按到达顺序处理候选。调用方需保证同一时刻只有一个 Filter+Insert 在执行。
func (d *Deduplicator) Filter(ctx context.Context, candidates []models.Article) (Result, error) {
	var res Result
	if len(candidates) == 0 {
		return res, nil
	}

	keys := unionKeys(candidates)
	var stored []models.Article
	if len(keys) > 0 {
		var err error
		stored, err = d.src.ListFingerprintCandidates(ctx, d.now().Add(-d.lookback), keys)
		if err != nil {
			return res, fmt.Errorf("load dedup candidates: %w", err)
		}
	}
	storedKeys := make([]map[string]struct{}, len(stored))
	for i, s := range stored {
		storedKeys[i] = keySet(models.BlockingKeys(s.DedupFingerprint))
	}

	for _, cand := range candidates {
		candKeys := models.BlockingKeys(cand.DedupFingerprint)

		// 已入库文章优先，保证重复采集时的稳定性
		if match, sim, ok := d.bestStored(cand, candKeys, stored, storedKeys); ok {
			d.log.Debug().
				Str("title", cand.Title).
				Str("source", cand.SourceName).
				Str("duplicate_of", match.ID).
				Int("similarity", sim).
				Msg("duplicate of stored article")
			res.Skips = append(res.Skips, skipFor(cand, match.ID))
			continue
		}

		idx, sim := d.bestAccepted(cand, res.Accepted)
		if idx < 0 {
			res.Accepted = append(res.Accepted, cand)
			continue
		}

		existing := res.Accepted[idx]
		if d.prefer(cand, existing) {
			res.Accepted[idx] = cand
			// 之前指向被替换者的跳过记录改为指向新的胜出者
			replaced := models.DuplicateOf(existing.ID)
			for i := range res.Skips {
				if res.Skips[i].Reason == replaced {
					res.Skips[i].Reason = models.DuplicateOf(cand.ID)
				}
			}
			res.Skips = append(res.Skips, skipFor(existing, cand.ID))
			d.log.Debug().
				Str("kept", cand.SourceName).
				Str("dropped", existing.SourceName).
				Int("similarity", sim).
				Msg("batch duplicate replaced by better candidate")
			continue
		}
		res.Skips = append(res.Skips, skipFor(cand, existing.ID))
		d.log.Debug().
			Str("title", cand.Title).
			Str("duplicate_of", existing.ID).
			Int("similarity", sim).
			Msg("duplicate within batch")
	}
	return res, nil
}

func (d *Deduplicator) bestStored(cand models.Article, candKeys []string, stored []models.Article, storedKeys []map[string]struct{}) (models.Article, int, bool) {
	bestIdx, bestSim := -1, -1
	for i := range stored {
		if stored[i].ID == cand.ID || !sharesKey(candKeys, storedKeys[i]) {
			continue
		}
		sim := TokenSetRatio(cand.DedupFingerprint, stored[i].DedupFingerprint)
		if sim >= d.threshold && sim > bestSim {
			bestIdx, bestSim = i, sim
		}
	}
	if bestIdx < 0 {
		return models.Article{}, 0, false
	}
	return stored[bestIdx], bestSim, true
}

func (d *Deduplicator) bestAccepted(cand models.Article, accepted []models.Article) (int, int) {
	bestIdx, bestSim := -1, -1
	for i := range accepted {
		sim := TokenSetRatio(cand.DedupFingerprint, accepted[i].DedupFingerprint)
		if sim >= d.threshold && sim > bestSim {
			bestIdx, bestSim = i, sim
		}
	}
	return bestIdx, bestSim
}

// prefer 判断后到的 cand 是否应替换本批次已接受的 existing：
// 同一数据源先到先得；不同数据源正文更长者胜，再按数据源优先级。
func (d *Deduplicator) prefer(cand, existing models.Article) bool {
	if cand.SourceName == existing.SourceName {
		return false
	}
	lc, le := utf8.RuneCountInString(cand.Body), utf8.RuneCountInString(existing.Body)
	if lc != le {
		return lc > le
	}
	return d.rank(cand.SourceName) < d.rank(existing.SourceName)
}

func (d *Deduplicator) rank(source string) int {
	if r, ok := d.priority[source]; ok {
		return r
	}
	return len(d.priority)
}

func skipFor(a models.Article, duplicateOf string) models.Skip {
	return models.Skip{
		CandidateID: a.ID,
		Title:       a.Title,
		Link:        a.CanonicalLink,
		SourceName:  a.SourceName,
		Reason:      models.DuplicateOf(duplicateOf),
	}
}

func unionKeys(list []models.Article) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, a := range list {
		for _, k := range models.BlockingKeys(a.DedupFingerprint) {
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, k)
		}
	}
	return out
}

func keySet(keys []string) map[string]struct{} {
	m := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		m[k] = struct{}{}
	}
	return m
}

func sharesKey(keys []string, set map[string]struct{}) bool {
	for _, k := range keys {
		if _, ok := set[k]; ok {
			return true
		}
	}
	return false
}
