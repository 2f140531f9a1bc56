// Package scoring AI 打分与人工打分。两条路径共用同一套校验与写入，
// 写入分数的同一次原子更新中重新计算分发推荐。
package scoring

import (
	"context"

	"github.com/LJTian/NewsCurator/internal/distribution"
	"github.com/LJTian/NewsCurator/internal/models"
	"github.com/LJTian/NewsCurator/internal/retry"
	"github.com/LJTian/NewsCurator/internal/storage"
	"github.com/rs/zerolog"
)

type Scorer interface {
	Score(ctx context.Context, title, body, source string) (models.ScoreSet, error)
}

// ManualScores 部分更新，nil 表示不修改
type ManualScores struct {
	Relevance *int `json:"relevance,omitempty"`
	Vibe      *int `json:"vibe,omitempty"`
	Viral     *int `json:"viral,omitempty"`
}

func (m ManualScores) empty() bool {
	return m.Relevance == nil && m.Vibe == nil && m.Viral == nil
}

type Engine struct {
	store  storage.ArticleStore
	scorer Scorer
	policy retry.Policy
	log    zerolog.Logger
}

func New(store storage.ArticleStore, scorer Scorer, policy retry.Policy, log zerolog.Logger) *Engine {
	return &Engine{
		store:  store,
		scorer: scorer,
		policy: policy,
		log:    log.With().Str("component", "scoring").Logger(),
	}
}

// Evaluate 调用 AI 打分服务，返回值已通过范围校验
func (e *Engine) Evaluate(ctx context.Context, a models.Article) (models.ScoreSet, error) {
	var s models.ScoreSet
	err := retry.Do(ctx, e.policy, "ai-score", e.log, func(ctx context.Context) error {
		out, err := e.scorer.Score(ctx, a.DisplayTitle(), a.Body, a.SourceName)
		if err != nil {
			return err
		}
		s = out
		return nil
	})
	if err != nil {
		return models.ScoreSet{}, err
	}

	for _, f := range []struct {
		name string
		v    int
	}{
		{"relevance", s.Relevance},
		{"vibe", s.Vibe},
		{"viral", s.Viral},
	} {
		if err := models.ValidateScore(f.name, f.v); err != nil {
			return models.ScoreSet{}, err
		}
	}
	return s, nil
}

// AutoScore 对文章做 AI 打分并写回；任一分数越界则整体拒绝
func (e *Engine) AutoScore(ctx context.Context, id string) (models.Article, error) {
	a, err := e.store.Get(ctx, id)
	if err != nil {
		return models.Article{}, err
	}

	s, err := e.Evaluate(ctx, a)
	if err != nil {
		e.log.Warn().Err(err).Str("id", id).Msg("auto score failed, article unchanged")
		return models.Article{}, err
	}

	out, err := e.store.Update(ctx, id, models.Patch{
		Action:    "autoscore",
		Relevance: &s.Relevance,
		Vibe:      &s.Vibe,
		Viral:     &s.Viral,
		Derive:    distribution.Apply,
	})
	if err != nil {
		return models.Article{}, err
	}
	e.log.Info().
		Str("id", id).
		Int("relevance", s.Relevance).
		Int("vibe", s.Vibe).
		Int("viral", s.Viral).
		Str("priority", string(out.Priority)).
		Msg("article scored")
	return out, nil
}

// ApplyManualScores 每个字段独立校验，任一越界则不修改任何字段
func (e *Engine) ApplyManualScores(ctx context.Context, id string, m ManualScores) (models.Article, error) {
	if m.empty() {
		return models.Article{}, &models.ScoreError{Msg: "no score fields provided"}
	}
	out, err := e.store.Update(ctx, id, models.Patch{
		Action:    "score",
		Relevance: m.Relevance,
		Vibe:      m.Vibe,
		Viral:     m.Viral,
		Derive:    distribution.Apply,
	})
	if err != nil {
		return models.Article{}, err
	}
	e.log.Info().Str("id", id).Msg("manual scores applied")
	return out, nil
}
