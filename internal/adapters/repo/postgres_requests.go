package repo

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"tg-download-bot/internal/domain"
	"tg-download-bot/internal/infra/metrics"
)

// InlineRequests хранит запросы настройки загрузки в режиме чата.
type InlineRequests struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewInlineRequests создаёт хранилище.
func NewInlineRequests(pool *pgxpool.Pool) *InlineRequests {
	return &InlineRequests{pool: pool, now: time.Now}
}

const inlineColumns = `id, user_id, chat_id, message_id, link, site,
    use_paging, use_auth, use_images, use_cover, force_images, force_auth,
    auth, start, "end", format, images, cover, thumb, proxy, hashtags, filename, setup_mode, created`

// Save вставляет строку при req.ID == 0 и заполняет ID, иначе обновляет её.
func (s *InlineRequests) Save(ctx context.Context, req *domain.InlineDownloadRequest) error {
	ctx, cancel := connCtxWithParent(ctx)
	defer cancel()

	if req.Created.IsZero() {
		req.Created = s.now().UTC()
	}
	start := time.Now()
	err := withRetry(ctx, func() error {
		if req.ID == 0 {
			return s.pool.QueryRow(ctx, `
INSERT INTO inline_download_requests (user_id, chat_id, message_id, link, site,
    use_paging, use_auth, use_images, use_cover, force_images, force_auth,
    auth, start, "end", format, images, cover, thumb, proxy, hashtags, filename, setup_mode, created)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23)
RETURNING id
`, req.UserID, req.ChatID, req.MessageID, req.Link, req.Site,
				req.UsePaging, req.UseAuth, req.UseImages, req.UseCover, req.ForceImages, req.ForceAuth,
				req.Auth, req.Start, req.End, req.Format, req.Images, req.Cover, req.Thumb, req.Proxy, req.Hashtags, req.Filename,
				req.SetupMode, req.Created).Scan(&req.ID)
		}
		_, err := s.pool.Exec(ctx, `
UPDATE inline_download_requests SET
    auth=$2, start=$3, "end"=$4, format=$5, images=$6, cover=$7, thumb=$8,
    proxy=$9, hashtags=$10, filename=$11, setup_mode=$12
WHERE id=$1
`, req.ID, req.Auth, req.Start, req.End, req.Format, req.Images, req.Cover, req.Thumb,
			req.Proxy, req.Hashtags, req.Filename, req.SetupMode)
		return err
	})
	metrics.ObserveNetworkRequest("postgres", "inline_requests_save", "inline_download_requests", start, err)
	return err
}

// GetByIdentity возвращает последнюю строку для сообщения настройки.
func (s *InlineRequests) GetByIdentity(ctx context.Context, id domain.RequestIdentity) (domain.InlineDownloadRequest, error) {
	ctx, cancel := connCtxWithParent(ctx)
	defer cancel()

	var req domain.InlineDownloadRequest
	start := time.Now()
	err := withRetry(ctx, func() error {
		rows, err := s.pool.Query(ctx, `
SELECT `+inlineColumns+`
FROM inline_download_requests
WHERE user_id=$1 AND chat_id=$2 AND message_id=$3
ORDER BY id DESC LIMIT 1
`, id.UserID, id.ChatID, id.MessageID)
		if err != nil {
			return err
		}
		req, err = pgx.CollectExactlyOneRow(rows, scanInline)
		return err
	})
	metrics.ObserveNetworkRequest("postgres", "inline_requests_get", "inline_download_requests", start, err)
	if err != nil {
		return domain.InlineDownloadRequest{}, notFound(err)
	}
	return req, nil
}

// Delete удаляет все строки сообщения настройки.
func (s *InlineRequests) Delete(ctx context.Context, id domain.RequestIdentity) error {
	ctx, cancel := connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	err := withRetry(ctx, func() error {
		_, err := s.pool.Exec(ctx, `
DELETE FROM inline_download_requests WHERE user_id=$1 AND chat_id=$2 AND message_id=$3
`, id.UserID, id.ChatID, id.MessageID)
		return err
	})
	metrics.ObserveNetworkRequest("postgres", "inline_requests_delete", "inline_download_requests", start, err)
	return err
}

// ListAbandoned возвращает запросы, созданные раньше now-olderThan.
func (s *InlineRequests) ListAbandoned(ctx context.Context, olderThan time.Duration) ([]domain.InlineDownloadRequest, error) {
	ctx, cancel := connCtxWithParent(ctx)
	defer cancel()

	before := domain.AbandonedBefore(s.now().UTC(), olderThan)
	var out []domain.InlineDownloadRequest
	start := time.Now()
	err := withRetry(ctx, func() error {
		rows, err := s.pool.Query(ctx, `
SELECT `+inlineColumns+`
FROM inline_download_requests WHERE created < $1 ORDER BY id LIMIT 500
`, before)
		if err != nil {
			return err
		}
		out, err = pgx.CollectRows(rows, scanInline)
		return err
	})
	metrics.ObserveNetworkRequest("postgres", "inline_requests_abandoned", "inline_download_requests", start, err)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func scanInline(row pgx.CollectableRow) (domain.InlineDownloadRequest, error) {
	var r domain.InlineDownloadRequest
	err := row.Scan(&r.ID, &r.UserID, &r.ChatID, &r.MessageID, &r.Link, &r.Site,
		&r.UsePaging, &r.UseAuth, &r.UseImages, &r.UseCover, &r.ForceImages, &r.ForceAuth,
		&r.Auth, &r.Start, &r.End, &r.Format, &r.Images, &r.Cover, &r.Thumb, &r.Proxy, &r.Hashtags, &r.Filename,
		&r.SetupMode, &r.Created)
	return r, err
}

var _ domain.InlineRequestRepo = (*InlineRequests)(nil)
