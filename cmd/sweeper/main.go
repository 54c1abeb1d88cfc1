package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"tg-download-bot/internal/app"
	"tg-download-bot/internal/infra/config"
	httpinfra "tg-download-bot/internal/infra/http"
	"tg-download-bot/internal/infra/log"
	"tg-download-bot/internal/infra/metrics"
	"tg-download-bot/internal/usecase/download"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger := log.NewLogger(cfg.AppEnv, "sweeper")
	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("sweeper: не удалось запуститься")
	}
	defer a.Close()

	// отдаём только /metrics
	srv := httpinfra.NewServer(logger)
	go func() {
		if err := srv.Start(fmt.Sprintf(":%d", cfg.Port)); err != nil {
			logger.Error().Err(err).Msg("HTTP сервер метрик остановлен")
		}
	}()
	defer func() { _ = srv.Shutdown(context.Background()) }()

	logger.Info().
		Dur("interval", cfg.Sweeper.Interval).
		Dur("abandon_after", cfg.Sweeper.AbandonAfter).
		Msg("уборщик брошенных запросов запущен")
	download.NewSweeper(a.Download, cfg.Sweeper.AbandonAfter).Run(ctx, cfg.Sweeper.Interval)
	logger.Info().Msg("уборщик остановлен")
}
