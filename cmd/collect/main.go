package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"time"

	"github.com/LJTian/NewsCurator/internal/app"
	"github.com/LJTian/NewsCurator/internal/config"
	"github.com/LJTian/NewsCurator/internal/scheduler"
	"github.com/LJTian/NewsCurator/pkg/logger"
	"github.com/rs/zerolog/log"
)

// 一个仅执行一次采集任务的命令行入口：适合手动触发采集或由外部定时器调用
func main() {
	autoPost := flag.Bool("autopost", false, "post edited articles recommended for auto-post after ingestion")
	timeout := flag.Duration("timeout", 10*time.Minute, "overall timeout")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("load config failed")
	}
	lg := logger.New(cfg.LogLevel, cfg.Env)

	a, err := app.New(cfg, lg)
	if err != nil {
		lg.Fatal().Err(err).Msg("init app failed")
	}

	s, err := scheduler.New(cfg.CronSpec, "", a.Pipeline, a.Store, a.Workflow, lg)
	if err != nil {
		lg.Fatal().Err(err).Msg("init scheduler failed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	// 只执行一轮采集任务后退出
	res, err := s.RunOnce(ctx)
	if err != nil {
		lg.Error().Err(err).Msg("ingestion cycle failed")
	}
	if res != nil {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(res)
	}

	if *autoPost {
		n, err := s.AutoPostOnce(ctx)
		if err != nil {
			lg.Error().Err(err).Msg("auto post failed")
		}
		lg.Info().Int("posted", n).Msg("auto post done")
	}

	if err != nil {
		os.Exit(1)
	}
}
