package repo

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"tg-download-bot/internal/domain"
	"tg-download-bot/internal/infra/metrics"
)

// resultEventKind — вид отметки об учтённом результате задачи.
const resultEventKind = "result"

// GetACL возвращает переопределения лимита пользователя или nil.
func (p *Postgres) GetACL(ctx context.Context, userID int64) (*domain.ACL, error) {
	ctx, cancel := connCtxWithParent(ctx)
	defer cancel()

	acl := domain.ACL{UserID: userID}
	start := time.Now()
	err := withRetry(ctx, func() error {
		return p.pool.QueryRow(ctx, `
SELECT premium, premium_type, p_limit, premium_reason, premium_until,
       banned, ban_type, b_limit, ban_reason, ban_until
FROM acl WHERE user_id=$1
`, userID).Scan(&acl.Premium, &acl.PremiumType, &acl.PremiumLimit, &acl.PremiumReason, &acl.PremiumUntil,
			&acl.Banned, &acl.BanType, &acl.BanLimit, &acl.BanReason, &acl.BanUntil)
	})
	metrics.ObserveNetworkRequest("postgres", "acl_get", "acl", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &acl, nil
}

// DailyUsage возвращает число успешных загрузок пользователя за день по всем сайтам.
func (p *Postgres) DailyUsage(ctx context.Context, userID int64, day time.Time) (int, error) {
	ctx, cancel := connCtxWithParent(ctx)
	defer cancel()

	var used int64
	start := time.Now()
	err := withRetry(ctx, func() error {
		return p.pool.QueryRow(ctx, `
SELECT COALESCE(SUM(success), 0) FROM users_stats WHERE user_id=$1 AND day=$2
`, userID, dayOf(day)).Scan(&used)
	})
	metrics.ObserveNetworkRequest("postgres", "users_stats_usage", "users_stats", start, err)
	if err != nil {
		return 0, err
	}
	return int(used), nil
}

// RecordResult учитывает результат задачи в users_stats один раз на task_id.
// Отметка в download_events и инкремент выполняются в одной транзакции.
func (p *Postgres) RecordResult(ctx context.Context, result domain.DownloadResult, day time.Time) (bool, error) {
	var success, failure, origSize, operSize int64
	switch result.Status {
	case domain.StatusDone:
		success, origSize, operSize = 1, result.OrigSize, result.OperSize
	case domain.StatusError:
		failure = 1
	default:
		return false, nil
	}

	ctx, cancel := connCtxWithParent(ctx)
	defer cancel()

	applied := false
	start := time.Now()
	err := withRetry(ctx, func() error {
		tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{})
		if err != nil {
			return err
		}
		defer tx.Rollback(ctx)

		tag, err := tx.Exec(ctx, `
INSERT INTO download_events (task_id, kind) VALUES ($1, $2)
ON CONFLICT (task_id, kind) DO NOTHING
`, string(result.TaskID), resultEventKind)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			applied = false
			return nil
		}
		_, err = tx.Exec(ctx, `
INSERT INTO users_stats (user_id, site, day, success, failure, orig_size, oper_size)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (user_id, site, day) DO UPDATE SET
    success=users_stats.success+EXCLUDED.success,
    failure=users_stats.failure+EXCLUDED.failure,
    orig_size=users_stats.orig_size+EXCLUDED.orig_size,
    oper_size=users_stats.oper_size+EXCLUDED.oper_size
`, result.UserID, result.Site, dayOf(day), success, failure, origSize, operSize)
		if err != nil {
			return err
		}
		if err := tx.Commit(ctx); err != nil {
			return err
		}
		applied = true
		return nil
	})
	metrics.ObserveNetworkRequest("postgres", "users_stats_record", "users_stats", start, err)
	if err != nil {
		return false, err
	}
	return applied, nil
}

// GetUserStat возвращает статистику пользователя за день по сайту.
func (p *Postgres) GetUserStat(ctx context.Context, userID int64, site string, day time.Time) (domain.UserStat, error) {
	ctx, cancel := connCtxWithParent(ctx)
	defer cancel()

	st := domain.UserStat{UserID: userID, Site: site, Day: dayOf(day)}
	start := time.Now()
	err := withRetry(ctx, func() error {
		return p.pool.QueryRow(ctx, `
SELECT success, failure, orig_size, oper_size FROM users_stats WHERE user_id=$1 AND site=$2 AND day=$3
`, userID, site, dayOf(day)).Scan(&st.Success, &st.Failure, &st.OrigSize, &st.OperSize)
	})
	metrics.ObserveNetworkRequest("postgres", "users_stats_get", "users_stats", start, err)
	if err != nil {
		return domain.UserStat{}, notFound(err)
	}
	return st, nil
}

func dayOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
