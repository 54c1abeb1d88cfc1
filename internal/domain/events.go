package domain

import (
	"context"
	"time"
)

const (
	// EventDownloadSubmitted фиксирует постановку задачи в очередь.
	EventDownloadSubmitted = "download.submitted"
	// EventDownloadResult фиксирует завершение задачи.
	EventDownloadResult = "download.result"
	// EventRequestAbandoned фиксирует удаление брошенного запроса.
	EventRequestAbandoned = "download.abandoned"
)

// LifecycleEvent описывает событие жизненного цикла загрузки для внешних потребителей.
type LifecycleEvent struct {
	Event      string         `json:"event"`
	TaskID     TaskID         `json:"task_id,omitempty"`
	UserID     int64          `json:"user_id"`
	Site       string         `json:"site,omitempty"`
	Status     string         `json:"status,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// EventPublisher публикует события жизненного цикла.
type EventPublisher interface {
	Publish(ctx context.Context, event LifecycleEvent) error
}

// NopPublisher ничего не публикует.
type NopPublisher struct{}

// Publish реализует EventPublisher.
func (NopPublisher) Publish(context.Context, LifecycleEvent) error { return nil }
