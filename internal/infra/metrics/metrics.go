package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	BotSendErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bot_send_errors_total",
		Help: "Ошибки отправки сообщений ботом",
	})

	NetworkRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "network_request_duration_seconds",
		Help:    "Длительность сетевых запросов",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 15, 20, 30, 60},
	}, []string{"component", "operation", "target", "status"})

	NetworkRequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "network_request_total",
		Help: "Количество сетевых запросов",
	}, []string{"component", "operation", "target", "status"})

	DownloadsSubmitted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "downloads_submitted_total",
		Help: "Задачи, отправленные в сервис загрузки",
	}, []string{"mode", "status"})

	DownloadResults = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "download_results_total",
		Help: "Результаты задач по статусам",
	}, []string{"status"})

	DuplicateResults = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "download_results_duplicate_total",
		Help: "Повторно доставленные результаты задач",
	})

	AbandonedRequests = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "inline_requests_abandoned_total",
		Help: "Удалённые брошенные запросы настройки",
	})
)

// MustRegister регистрирует метрики.
func MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		BotSendErrors,
		NetworkRequestDuration,
		NetworkRequestTotal,
		DownloadsSubmitted,
		DownloadResults,
		DuplicateResults,
		AbandonedRequests,
	)
}

// ObserveNetworkRequest записывает длительность и статус сетевого запроса.
func ObserveNetworkRequest(component, operation, target string, start time.Time, err error) {
	if component == "" {
		component = "unknown"
	}
	if operation == "" {
		operation = "unknown"
	}
	if target == "" {
		target = "unknown"
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	duration := time.Since(start).Seconds()
	NetworkRequestDuration.WithLabelValues(component, operation, target, status).Observe(duration)
	NetworkRequestTotal.WithLabelValues(component, operation, target, status).Inc()
}

// ObserveSubmit считает попытки постановки задачи.
func ObserveSubmit(mode string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	DownloadsSubmitted.WithLabelValues(mode, status).Inc()
}

// ObserveResult считает результаты задач.
func ObserveResult(status string, duplicate bool) {
	if duplicate {
		DuplicateResults.Inc()
		return
	}
	DownloadResults.WithLabelValues(status).Inc()
}
