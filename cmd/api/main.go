package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"tg-download-bot/internal/adapters/httpapi"
	"tg-download-bot/internal/app"
	"tg-download-bot/internal/infra/config"
	httpinfra "tg-download-bot/internal/infra/http"
	"tg-download-bot/internal/infra/log"
	"tg-download-bot/internal/infra/metrics"
)

// api обслуживает мини-приложение, колбэки сервиса загрузки и сводки без вебхука бота.
func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger := log.NewLogger(cfg.AppEnv, "api")
	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: не удалось запуститься")
	}
	defer a.Close()

	srv := httpinfra.NewServer(logger)
	httpapi.Mount(srv.Router, a.Routes(nil))

	go func() {
		if err := srv.Start(fmt.Sprintf(":%d", cfg.Port)); err != nil {
			logger.Error().Err(err).Msg("api: HTTP сервер остановлен")
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("api: остановка с ошибкой")
	}
}
