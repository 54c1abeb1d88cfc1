package download

import (
	"context"
	"time"

	"tg-download-bot/internal/domain"
	"tg-download-bot/internal/infra/metrics"
)

// Sweeper удаляет запросы настройки, которые так и не были отправлены.
type Sweeper struct {
	d         *Deps
	olderThan time.Duration
}

// NewSweeper создаёт уборщика. Запросы старше olderThan считаются брошенными.
func NewSweeper(d *Deps, olderThan time.Duration) *Sweeper {
	return &Sweeper{d: d, olderThan: olderThan}
}

// Sweep выполняет один проход и возвращает число удалённых запросов.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	rows, err := s.d.Requests.ListAbandoned(ctx, s.olderThan)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, row := range rows {
		if err := s.d.Requests.Delete(ctx, row.Identity()); err != nil {
			s.d.Log.Error().Err(err).Int64("request", row.ID).Msg("не удалось удалить брошенный запрос")
			continue
		}
		removed++
		metrics.AbandonedRequests.Inc()
		if err := s.d.edit(ctx, row.ChatID, row.MessageID, ErrRequestExpired.Error(), nil); err != nil {
			s.d.Log.Warn().Err(err).Int64("chat", row.ChatID).Msg("не удалось уведомить о брошенном запросе")
		}
		_ = s.d.events().Publish(ctx, domain.LifecycleEvent{
			Event:      domain.EventRequestAbandoned,
			UserID:     row.UserID,
			Site:       row.Site,
			OccurredAt: s.d.now().UTC(),
		})
	}
	if removed > 0 {
		s.d.Log.Info().Int("removed", removed).Msg("брошенные запросы удалены")
	}
	return removed, nil
}

// Run повторяет Sweep с интервалом до отмены ctx.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if _, err := s.Sweep(ctx); err != nil {
			s.d.Log.Error().Err(err).Msg("проход уборщика завершился ошибкой")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
