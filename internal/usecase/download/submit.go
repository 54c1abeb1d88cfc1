package download

import (
	"context"
	"errors"
	"strconv"

	"tg-download-bot/internal/domain"
	"tg-download-bot/internal/infra/metrics"
)

// Auth-значения, не ссылающиеся на сохранённый доступ.
const (
	AuthNone = "none"
	AuthAnon = "anon"
)

// Params — параметры загрузки, собранные в чате или в мини-приложении.
type Params struct {
	UserID    int64
	ChatID    int64
	MessageID int
	Link      string
	Site      string
	Auth      string
	Start     int
	End       int
	Format    string
	Images    bool
	Cover     bool
	Thumb     bool
	Proxy     string
	Hashtags  string
	Filename  string
}

// loadUser возвращает пользователя или ErrUserNotFound.
func (d *Deps) loadUser(ctx context.Context, userID int64) (domain.User, error) {
	user, err := d.Users.GetUser(ctx, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.User{}, ErrUserNotFound
	}
	if err != nil {
		return domain.User{}, storageErr(err)
	}
	return user, nil
}

// siteData возвращает возможности сайта или ошибку для пользователя.
func (d *Deps) siteData(ctx context.Context, link, site string) (domain.SiteData, error) {
	sd, ok := d.Queue.GetSiteData(ctx, site)
	if !ok {
		return domain.SiteData{}, ErrQueueUnavailable
	}
	if !sd.Allowed || !d.Queue.IsLinkAllowed(ctx, link, site) {
		return domain.SiteData{}, ErrSiteNotSupported
	}
	return sd, nil
}

// defaults сливает настройки пользователя и сайта.
func (d *Deps) defaults(ctx context.Context, user domain.User, site string) (domain.Defaults, error) {
	cfg, err := d.Sites.GetSiteConfig(ctx, user.ID, site)
	if err != nil {
		return domain.Defaults{}, storageErr(err)
	}
	return domain.Resolve(user, cfg), nil
}

// buildRequest собирает задачу для сервиса загрузки.
func (d *Deps) buildRequest(ctx context.Context, p Params) (domain.DownloadRequest, error) {
	req := domain.DownloadRequest{
		UserID:    p.UserID,
		ChatID:    p.ChatID,
		MessageID: p.MessageID,
		Site:      p.Site,
		URL:       p.Link,
		Start:     p.Start,
		End:       p.End,
		Format:    p.Format,
		Images:    p.Images,
		Cover:     p.Cover,
		Thumb:     p.Thumb,
		Hashtags:  p.Hashtags,
		Filename:  SanitizeFilename(p.Filename),
	}
	if req.Hashtags == "" {
		req.Hashtags = domain.HashtagsNo
	}
	if p.Proxy != "" {
		proxy, err := ValidateProxy(p.Proxy)
		if err != nil {
			return domain.DownloadRequest{}, err
		}
		req.Proxy = proxy
	}
	switch p.Auth {
	case "", AuthNone:
	case AuthAnon:
		if !d.Catalog.IsDemo(p.Site) {
			return domain.DownloadRequest{}, ErrAuthNotFound
		}
		req.Login = AuthAnon
	default:
		id, err := strconv.ParseInt(p.Auth, 10, 64)
		if err != nil {
			return domain.DownloadRequest{}, ErrAuthNotFound
		}
		auth, err := d.Auths.GetUserAuth(ctx, p.UserID, id)
		if errors.Is(err, domain.ErrNotFound) || (err == nil && auth.Site != p.Site) {
			return domain.DownloadRequest{}, ErrAuthNotFound
		}
		if err != nil {
			return domain.DownloadRequest{}, storageErr(err)
		}
		req.Login, req.Password = auth.Login, auth.Password
	}
	return req, nil
}

// checkQuota сравнивает успешные загрузки за сегодня с лимитом пользователя.
func (d *Deps) checkQuota(ctx context.Context, userID int64) error {
	now := d.now()
	acl, err := d.Usage.GetACL(ctx, userID)
	if err != nil {
		return storageErr(err)
	}
	used, err := d.Usage.DailyUsage(ctx, userID, now)
	if err != nil {
		return storageErr(err)
	}
	q := domain.ResolveQuota(acl, d.FreeLimit, used, now)
	if q.Limit <= 0 {
		return ErrBanned
	}
	if !q.Allowed() {
		return &QuotaError{Limit: q.Limit}
	}
	return nil
}

// submit проверяет лимит и ставит задачу в очередь один раз, без повторов.
func (d *Deps) submit(ctx context.Context, mode string, p Params) (domain.TaskID, error) {
	req, err := d.buildRequest(ctx, p)
	if err != nil {
		return "", err
	}
	if err := d.checkQuota(ctx, p.UserID); err != nil {
		return "", err
	}
	id, err := d.Queue.InitDownload(ctx, req)
	metrics.ObserveSubmit(mode, err)
	if err != nil {
		d.Log.Warn().Err(err).Int64("user", p.UserID).Str("site", p.Site).Msg("сервис загрузки отклонил задачу")
		return "", err
	}
	d.Log.Info().Str("task", string(id)).Int64("user", p.UserID).Str("site", p.Site).Str("mode", mode).Msg("задача поставлена в очередь")
	d.rememberOwner(ctx, id, taskOwner{UserID: p.UserID, ChatID: p.ChatID})
	_ = d.events().Publish(ctx, domain.LifecycleEvent{
		Event:      domain.EventDownloadSubmitted,
		TaskID:     id,
		UserID:     p.UserID,
		Site:       p.Site,
		Metadata:   map[string]any{"mode": mode, "format": req.Format},
		OccurredAt: d.now().UTC(),
	})
	return id, nil
}

// checkPaging проверяет диапазон глав: end=0 — до конца, -1:-1 — последняя глава.
func checkPaging(start, end int) error {
	switch {
	case start == -1 && end == -1:
		return nil
	case start < 0 || end < 0, end > 0 && end < start:
		return ErrInvalidNumber
	}
	return nil
}

// queuedText — текст статусного сообщения после постановки в очередь.
func queuedText(id domain.TaskID) string {
	return "Задача #" + string(id) + " поставлена в очередь"
}
