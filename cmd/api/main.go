package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/LJTian/NewsCurator/internal/api"
	"github.com/LJTian/NewsCurator/internal/app"
	"github.com/LJTian/NewsCurator/internal/config"
	"github.com/LJTian/NewsCurator/internal/scheduler"
	"github.com/LJTian/NewsCurator/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("load config failed")
	}

	lg := logger.New(cfg.LogLevel, cfg.Env)
	if cfg.Env != "development" {
		gin.SetMode(gin.ReleaseMode)
	}

	a, err := app.New(cfg, lg)
	if err != nil {
		lg.Fatal().Err(err).Msg("init app failed")
	}

	s, err := scheduler.New(cfg.CronSpec, cfg.AutoPostCronSpec, a.Pipeline, a.Store, a.Workflow, lg)
	if err != nil {
		lg.Fatal().Err(err).Msg("init scheduler failed")
	}
	s.Start()

	srv := api.NewServer(a.Store, a.Workflow, a.Scoring, a.Pipeline, lg)
	router := api.NewRouter(srv, api.Options{
		BasicAuthUser: cfg.BasicAuthUser,
		BasicAuthPass: cfg.BasicAuthPass,
	})

	httpServer := &http.Server{
		Addr:              ":" + cfg.AppPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		lg.Info().Str("addr", httpServer.Addr).Msg("starting api server...")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Fatal().Err(err).Msg("server exit")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	lg.Info().Msg("shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		lg.Error().Err(err).Msg("http shutdown failed")
	}
	s.Stop(ctx)
	lg.Info().Msg("bye")
}
