package download

import (
	"context"
	"errors"
	"time"

	"github.com/goccy/go-json"

	"tg-download-bot/internal/domain"
)

// ownerTTL — сколько помним владельца задачи для проверки отмены.
const ownerTTL = 7 * 24 * time.Hour

type taskOwner struct {
	UserID int64 `json:"user_id"`
	ChatID int64 `json:"chat_id"`
}

func ownerKey(id domain.TaskID) string {
	return "task_owner:" + string(id)
}

// rememberOwner запоминает, кто поставил задачу. Сбой кэша только логируется.
func (d *Deps) rememberOwner(ctx context.Context, id domain.TaskID, owner taskOwner) {
	if d.Cache == nil {
		return
	}
	raw, err := json.Marshal(owner)
	if err == nil {
		err = d.Cache.Set(ctx, ownerKey(id), raw, ownerTTL)
	}
	if err != nil {
		d.Log.Warn().Err(err).Str("task", string(id)).Msg("не удалось запомнить владельца задачи")
	}
}

// lookupOwner возвращает владельца задачи, ok=false если он неизвестен.
func (d *Deps) lookupOwner(ctx context.Context, id domain.TaskID) (taskOwner, bool) {
	if d.Cache == nil {
		return taskOwner{}, false
	}
	raw, err := d.Cache.Get(ctx, ownerKey(id))
	if err != nil {
		if !errors.Is(err, domain.ErrCacheMiss) {
			d.Log.Warn().Err(err).Str("task", string(id)).Msg("не удалось прочитать владельца задачи")
		}
		return taskOwner{}, false
	}
	var owner taskOwner
	if err := json.Unmarshal(raw, &owner); err != nil {
		return taskOwner{}, false
	}
	return owner, true
}
