package queueclient

import (
	"context"

	"github.com/goccy/go-json"
)

// AdminOp — административная команда сервиса загрузки.
type AdminOp string

const (
	QueueStart   AdminOp = "queue/start"
	QueueStop    AdminOp = "queue/stop"
	TasksStart   AdminOp = "queue/tasks/start"
	TasksStop    AdminOp = "queue/tasks/stop"
	ResultsStart AdminOp = "queue/results/start"
	ResultsStop  AdminOp = "queue/results/stop"
	ReloadConfig AdminOp = "update_config"
)

const (
	keyUsage = "queue:usage"
	keyStats = "queue:stats"
)

// Admin выполняет административную команду с повторами. Тело ответа не разбирается.
func (c *Client) Admin(ctx context.Context, op AdminOp) error {
	return c.retry(ctx, func() error {
		_, err := c.do(ctx, "admin", "GET", string(op), nil)
		return err
	})
}

// GetUsage возвращает снимок очереди. bypass пропускает кэш.
func (c *Client) GetUsage(ctx context.Context, bypass bool) json.RawMessage {
	return c.snapshot(ctx, keyUsage, "export/queue", bypass)
}

// GetStats возвращает статистику сервиса. bypass пропускает кэш.
func (c *Client) GetStats(ctx context.Context, bypass bool) json.RawMessage {
	return c.snapshot(ctx, keyStats, "export/stats", bypass)
}

// snapshot делает одну попытку без повторов.
func (c *Client) snapshot(ctx context.Context, key, endpoint string, bypass bool) json.RawMessage {
	if !bypass {
		if data, err := c.cache.Get(ctx, key); err == nil {
			return data
		}
	}
	data, err := c.do(ctx, endpoint, "GET", endpoint, nil)
	if err != nil || !json.Valid(data) {
		c.log.Warn().Err(err).Str("endpoint", endpoint).Msg("не удалось получить снимок")
		return json.RawMessage("{}")
	}
	if err := c.cache.Set(ctx, key, data, c.snapshotTTL); err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("не удалось записать в кэш")
	}
	return data
}
