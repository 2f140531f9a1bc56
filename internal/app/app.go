// Package app 根据配置组装各组件，供 cmd/api 与 cmd/collect 共用
package app

import (
	"time"

	"github.com/LJTian/NewsCurator/internal/ai"
	"github.com/LJTian/NewsCurator/internal/collector"
	"github.com/LJTian/NewsCurator/internal/config"
	"github.com/LJTian/NewsCurator/internal/dedup"
	"github.com/LJTian/NewsCurator/internal/pipeline"
	"github.com/LJTian/NewsCurator/internal/processor"
	"github.com/LJTian/NewsCurator/internal/publish"
	"github.com/LJTian/NewsCurator/internal/retry"
	"github.com/LJTian/NewsCurator/internal/scoring"
	"github.com/LJTian/NewsCurator/internal/storage"
	"github.com/LJTian/NewsCurator/internal/workflow"
	"github.com/rs/zerolog"
)

const (
	ingestLockKey = "news-curator:ingest-lock"
	ingestLockTTL = 10 * time.Minute
)

type App struct {
	Store    storage.ArticleStore
	Pipeline *pipeline.Pipeline
	Workflow *workflow.Engine
	Scoring  *scoring.Engine
}

// New 按 STORE_DRIVER 选择存储；postgres 且 Redis 可用时额外使用跨进程锁
func New(cfg *config.Config, log zerolog.Logger) (*App, error) {
	var (
		store  storage.ArticleStore
		locker storage.Locker = storage.NewLocalLocker()
	)
	switch cfg.StoreDriver {
	case "memory":
		store = storage.NewMemoryStore()
		log.Warn().Msg("using in-memory store, data is lost on restart")
	default:
		gs, err := storage.NewStore(cfg.PostgresDSN, cfg.RedisAddr, log)
		if err != nil {
			return nil, err
		}
		store = gs
		if gs.Redis != nil {
			locker = storage.ChainLocker{locker, storage.NewRedisLocker(gs.Redis, ingestLockKey, ingestLockTTL, log)}
		}
	}

	fetchers, err := collector.Build(cfg.Sources, cfg.NewsDataAPIKey, log)
	if err != nil {
		return nil, err
	}
	log.Info().Int("sources", len(fetchers)).Msg("source adapters registered")

	policy := retry.Policy{MaxRetries: cfg.Retry.MaxRetries, InitialInterval: cfg.Retry.InitialInterval}
	aiClient := ai.NewClient(cfg.OpenAI)
	if cfg.OpenAI.APIKey == "" {
		log.Warn().Msg("OPENAI_API_KEY not set, rewrite and scoring will fail")
	}

	sc := scoring.New(store, aiClient, policy, log)
	wf := workflow.New(store, workflow.Deps{
		Rewriter:  aiClient,
		Remixer:   aiClient,
		Publisher: publish.NewWebhookPublisher(cfg.Webhooks),
		Formatter: publish.BlockFormatter{},
	}, policy, log)

	d := dedup.New(store, dedup.Options{
		Threshold:      cfg.Dedup.Threshold,
		Lookback:       cfg.Dedup.Lookback,
		SourcePriority: cfg.Dedup.SourcePriority,
	}, log)
	agg := collector.NewAggregator(fetchers, cfg.Ingest.Concurrency, cfg.Ingest.FetchTimeout, log)
	p := pipeline.New(agg, processor.NewNormalizer(log), d, store, locker, pipeline.Options{
		AutoScore: cfg.AutoScoreOnIngest,
		Scorer:    sc,
	}, log)

	return &App{Store: store, Pipeline: p, Workflow: wf, Scoring: sc}, nil
}
