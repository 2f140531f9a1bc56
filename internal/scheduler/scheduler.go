package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/LJTian/NewsCurator/internal/models"
	"github.com/LJTian/NewsCurator/internal/pipeline"
	"github.com/LJTian/NewsCurator/internal/storage"
	"github.com/LJTian/NewsCurator/internal/workflow"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

type Ingestor interface {
	RunIngestionCycle(ctx context.Context) (*pipeline.Result, error)
}

type Poster interface {
	Post(ctx context.Context, id string, channels ...models.Channel) (*workflow.PostReport, error)
}

// 单次任务的最长执行时间
const jobTimeout = 10 * time.Minute

type Scheduler struct {
	cron     *cron.Cron
	ingestor Ingestor
	store    storage.ArticleStore
	poster   Poster
	log      zerolog.Logger

	// StartupDelay 启动后首轮采集的延迟，0 表示不在启动时采集
	StartupDelay time.Duration
}

// New 注册采集任务；autoPostSpec 非空时额外注册自动发布任务。
// 同一任务上一轮未结束时跳过本轮。
func New(spec, autoPostSpec string, ingestor Ingestor, store storage.ArticleStore, poster Poster, log zerolog.Logger) (*Scheduler, error) {
	log = log.With().Str("component", "scheduler").Logger()
	cl := cronLogger{log: log}
	c := cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)))

	s := &Scheduler{
		cron:         c,
		ingestor:     ingestor,
		store:        store,
		poster:       poster,
		log:          log,
		StartupDelay: 15 * time.Second,
	}

	if _, err := c.AddFunc(spec, s.runIngest); err != nil {
		return nil, fmt.Errorf("add ingest job %q: %w", spec, err)
	}
	if autoPostSpec != "" {
		if poster == nil {
			return nil, fmt.Errorf("auto post cron %q configured without a poster", autoPostSpec)
		}
		if _, err := c.AddFunc(autoPostSpec, s.runAutoPost); err != nil {
			return nil, fmt.Errorf("add auto post job %q: %w", autoPostSpec, err)
		}
	}
	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	if s.StartupDelay > 0 {
		// 延迟执行首轮采集，避免与服务启动争抢资源
		time.AfterFunc(s.StartupDelay, s.runIngest)
	}
}

// Stop 等待正在执行的任务结束
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
		s.log.Warn().Msg("scheduler stop timed out, running jobs abandoned")
	}
}

// RunOnce 对外暴露的单次执行入口，方便手动触发采集
func (s *Scheduler) RunOnce(ctx context.Context) (*pipeline.Result, error) {
	return s.ingestor.RunIngestionCycle(ctx)
}

// AutoPostOnce 发布所有已编辑且推荐自动发布的文章，返回成功发布的数量
func (s *Scheduler) AutoPostOnce(ctx context.Context) (int, error) {
	if s.poster == nil {
		return 0, nil
	}
	edited, err := s.store.ListByStatus(ctx, models.StatusEdited)
	if err != nil {
		return 0, fmt.Errorf("list edited articles: %w", err)
	}

	posted := 0
	for _, a := range edited {
		if !a.AutoPost {
			continue
		}
		report, err := s.poster.Post(ctx, a.ID)
		if err != nil {
			s.log.Warn().Err(err).Str("id", a.ID).Msg("auto post failed")
			continue
		}
		if report.Posted {
			posted++
		}
	}
	return posted, nil
}

func (s *Scheduler) runIngest() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	if _, err := s.RunOnce(ctx); err != nil {
		s.log.Error().Err(err).Msg("ingestion cycle failed")
	}
}

func (s *Scheduler) runAutoPost() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	n, err := s.AutoPostOnce(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("auto post job failed")
		return
	}
	s.log.Info().Int("posted", n).Msg("auto post job done")
}

// cronLogger 将 cron 内部日志转到 zerolog
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
