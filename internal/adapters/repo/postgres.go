package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"tg-download-bot/internal/domain"
	"tg-download-bot/internal/infra/metrics"
)

// Cipher шифрует пароли перед записью в БД.
type Cipher interface {
	EncryptString(plain string) (string, error)
	DecryptString(token string) (string, error)
}

// Postgres реализует репозитории на основе pgxpool.
type Postgres struct {
	pool   *pgxpool.Pool
	cipher Cipher
}

// NewPostgres создаёт адаптер БД.
func NewPostgres(pool *pgxpool.Pool, cipher Cipher) *Postgres {
	return &Postgres{pool: pool, cipher: cipher}
}

func connCtxWithParent(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, 5*time.Second)
}

// withRetry повторяет fn при обрывах соединения, пока не истёк контекст.
func withRetry(ctx context.Context, fn func() error) error {
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(200*time.Millisecond), 2),
		ctx,
	)
	return backoff.Retry(func() error {
		err := fn()
		if err == nil || isTransient(err) {
			return err
		}
		return backoff.Permanent(err)
	}, policy)
}

func isTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return false
	}
	return pgconn.SafeToRetry(err) || pgconn.Timeout(err)
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrNotFound
	}
	return err
}

// GetUser реализует domain.UserRepo.
func (p *Postgres) GetUser(ctx context.Context, userID int64) (domain.User, error) {
	ctx, cancel := connCtxWithParent(ctx)
	defer cancel()

	var u domain.User
	start := time.Now()
	err := withRetry(ctx, func() error {
		return p.pool.QueryRow(ctx, `
SELECT id, username, setuped, interact_mode, format, cover, thumb, images, hashtags, filename, created_at
FROM users WHERE id=$1
`, userID).Scan(&u.ID, &u.Username, &u.Setuped, &u.InteractMode, &u.Format, &u.Cover, &u.Thumb, &u.Images, &u.Hashtags, &u.Filename, &u.CreatedAt)
	})
	metrics.ObserveNetworkRequest("postgres", "users_get", "users", start, err)
	if err != nil {
		return domain.User{}, notFound(err)
	}
	return u, nil
}

// SaveUser создаёт пользователя или обновляет его настройки.
func (p *Postgres) SaveUser(ctx context.Context, u domain.User) error {
	ctx, cancel := connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	err := withRetry(ctx, func() error {
		_, err := p.pool.Exec(ctx, `
INSERT INTO users (id, username, setuped, interact_mode, format, cover, thumb, images, hashtags, filename)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
ON CONFLICT (id) DO UPDATE SET
    username=EXCLUDED.username, setuped=EXCLUDED.setuped, interact_mode=EXCLUDED.interact_mode,
    format=EXCLUDED.format, cover=EXCLUDED.cover, thumb=EXCLUDED.thumb, images=EXCLUDED.images,
    hashtags=EXCLUDED.hashtags, filename=EXCLUDED.filename
`, u.ID, u.Username, u.Setuped, u.InteractMode, u.Format, u.Cover, u.Thumb, u.Images, u.Hashtags, u.Filename)
		return err
	})
	metrics.ObserveNetworkRequest("postgres", "users_upsert", "users", start, err)
	return err
}

// ListUserAuthsForSite возвращает доступы пользователя к сайту.
func (p *Postgres) ListUserAuthsForSite(ctx context.Context, userID int64, site string) ([]domain.UserAuth, error) {
	ctx, cancel := connCtxWithParent(ctx)
	defer cancel()

	var auths []domain.UserAuth
	start := time.Now()
	err := withRetry(ctx, func() error {
		rows, err := p.pool.Query(ctx, `
SELECT id, user_id, site, login, password, created_on
FROM users_auths WHERE user_id=$1 AND site=$2 ORDER BY id
`, userID, site)
		if err != nil {
			return err
		}
		auths, err = pgx.CollectRows(rows, p.scanAuth)
		return err
	})
	metrics.ObserveNetworkRequest("postgres", "users_auths_list", "users_auths", start, err)
	if err != nil {
		return nil, err
	}
	return auths, nil
}

// GetUserAuth возвращает доступ пользователя по id.
func (p *Postgres) GetUserAuth(ctx context.Context, userID, authID int64) (domain.UserAuth, error) {
	ctx, cancel := connCtxWithParent(ctx)
	defer cancel()

	var auth domain.UserAuth
	start := time.Now()
	err := withRetry(ctx, func() error {
		rows, err := p.pool.Query(ctx, `
SELECT id, user_id, site, login, password, created_on
FROM users_auths WHERE user_id=$1 AND id=$2
`, userID, authID)
		if err != nil {
			return err
		}
		auth, err = pgx.CollectExactlyOneRow(rows, p.scanAuth)
		return err
	})
	metrics.ObserveNetworkRequest("postgres", "users_auths_get", "users_auths", start, err)
	if err != nil {
		return domain.UserAuth{}, notFound(err)
	}
	return auth, nil
}

func (p *Postgres) scanAuth(row pgx.CollectableRow) (domain.UserAuth, error) {
	var a domain.UserAuth
	var sealed string
	if err := row.Scan(&a.ID, &a.UserID, &a.Site, &a.Login, &sealed, &a.CreatedOn); err != nil {
		return domain.UserAuth{}, err
	}
	plain, err := p.cipher.DecryptString(sealed)
	if err != nil {
		return domain.UserAuth{}, backoff.Permanent(fmt.Errorf("расшифровка доступа %d: %w", a.ID, err))
	}
	a.Password = plain
	return a, nil
}

// SaveUserAuth сохраняет новый доступ, пароль шифруется.
func (p *Postgres) SaveUserAuth(ctx context.Context, auth domain.UserAuth) (domain.UserAuth, error) {
	sealed, err := p.cipher.EncryptString(auth.Password)
	if err != nil {
		return domain.UserAuth{}, fmt.Errorf("шифрование пароля: %w", err)
	}
	ctx, cancel := connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	err = withRetry(ctx, func() error {
		return p.pool.QueryRow(ctx, `
INSERT INTO users_auths (user_id, site, login, password)
VALUES ($1,$2,$3,$4)
RETURNING id, created_on
`, auth.UserID, auth.Site, auth.Login, sealed).Scan(&auth.ID, &auth.CreatedOn)
	})
	metrics.ObserveNetworkRequest("postgres", "users_auths_insert", "users_auths", start, err)
	if err != nil {
		return domain.UserAuth{}, err
	}
	return auth, nil
}

// DeleteUserAuth удаляет доступ пользователя.
func (p *Postgres) DeleteUserAuth(ctx context.Context, userID, authID int64) error {
	ctx, cancel := connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	err := withRetry(ctx, func() error {
		_, err := p.pool.Exec(ctx, `DELETE FROM users_auths WHERE user_id=$1 AND id=$2`, userID, authID)
		return err
	})
	metrics.ObserveNetworkRequest("postgres", "users_auths_delete", "users_auths", start, err)
	return err
}

// GetSiteConfig возвращает настройки сайта или nil.
func (p *Postgres) GetSiteConfig(ctx context.Context, userID int64, site string) (*domain.SiteConfig, error) {
	ctx, cancel := connCtxWithParent(ctx)
	defer cancel()

	cfg := domain.SiteConfig{UserID: userID, Site: site}
	start := time.Now()
	err := withRetry(ctx, func() error {
		return p.pool.QueryRow(ctx, `
SELECT format, cover, thumb, images, hashtags, filename, proxy, auth
FROM sites_configs WHERE user_id=$1 AND site=$2
`, userID, site).Scan(&cfg.Format, &cfg.Cover, &cfg.Thumb, &cfg.Images, &cfg.Hashtags, &cfg.Filename, &cfg.Proxy, &cfg.Auth)
	})
	metrics.ObserveNetworkRequest("postgres", "sites_configs_get", "sites_configs", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SaveSiteConfig создаёт или перезаписывает настройки сайта.
func (p *Postgres) SaveSiteConfig(ctx context.Context, cfg domain.SiteConfig) error {
	ctx, cancel := connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	err := withRetry(ctx, func() error {
		_, err := p.pool.Exec(ctx, `
INSERT INTO sites_configs (user_id, site, format, cover, thumb, images, hashtags, filename, proxy, auth)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
ON CONFLICT (user_id, site) DO UPDATE SET
    format=EXCLUDED.format, cover=EXCLUDED.cover, thumb=EXCLUDED.thumb, images=EXCLUDED.images,
    hashtags=EXCLUDED.hashtags, filename=EXCLUDED.filename, proxy=EXCLUDED.proxy, auth=EXCLUDED.auth
`, cfg.UserID, cfg.Site, cfg.Format, cfg.Cover, cfg.Thumb, cfg.Images, cfg.Hashtags, cfg.Filename, cfg.Proxy, cfg.Auth)
		return err
	})
	metrics.ObserveNetworkRequest("postgres", "sites_configs_upsert", "sites_configs", start, err)
	return err
}

// DeleteSiteConfig удаляет все переопределения пользователя для сайта.
func (p *Postgres) DeleteSiteConfig(ctx context.Context, userID int64, site string) error {
	ctx, cancel := connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	err := withRetry(ctx, func() error {
		_, err := p.pool.Exec(ctx, `DELETE FROM sites_configs WHERE user_id=$1 AND site=$2`, userID, site)
		return err
	})
	metrics.ObserveNetworkRequest("postgres", "sites_configs_delete", "sites_configs", start, err)
	return err
}

var (
	_ domain.UserRepo       = (*Postgres)(nil)
	_ domain.AuthRepo       = (*Postgres)(nil)
	_ domain.SiteConfigRepo = (*Postgres)(nil)
	_ domain.UsageRepo      = (*Postgres)(nil)
)
