package download

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"tg-download-bot/internal/domain"
)

// Catalog — справочные настройки из global.json.
type Catalog interface {
	FormatCodes() []string
	FormatName(code string) string
	IsDemo(site string) bool
}

// Deps — общие зависимости контроллеров загрузки.
type Deps struct {
	Users     domain.UserRepo
	Auths     domain.AuthRepo
	Sites     domain.SiteConfigRepo
	Requests  domain.InlineRequestRepo
	Usage     domain.UsageRepo
	Queue     domain.DownloadQueue
	Messenger domain.Messenger
	States    domain.StateStore
	// Cache хранит использованные nonce форм и владельцев задач.
	Cache     domain.Cache
	Events    domain.EventPublisher
	Catalog   Catalog
	FreeLimit int
	Log       zerolog.Logger
	Now       func() time.Time
}

func (d *Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

func (d *Deps) events() domain.EventPublisher {
	if d.Events == nil {
		return domain.NopPublisher{}
	}
	return d.Events
}

// notify отправляет текст ошибки в чат.
func (d *Deps) notify(ctx context.Context, chatID int64, cause error) error {
	if errors.Is(cause, ErrStorage) {
		d.Log.Error().Err(cause).Int64("chat", chatID).Msg("ошибка хранилища")
	}
	_, err := d.Messenger.Send(ctx, chatID, UserMessage(cause), nil)
	return err
}

// edit меняет сообщение. Неизменённое или удалённое сообщение не считается ошибкой.
func (d *Deps) edit(ctx context.Context, chatID int64, msgID int, text string, kb domain.Keyboard) error {
	err := d.Messenger.Edit(ctx, chatID, msgID, text, kb)
	if errors.Is(err, domain.ErrMessageNotModified) || errors.Is(err, domain.ErrMessageGone) {
		return nil
	}
	return err
}

func (d *Deps) remove(ctx context.Context, chatID int64, msgID int) error {
	err := d.Messenger.Delete(ctx, chatID, msgID)
	if errors.Is(err, domain.ErrMessageGone) {
		return nil
	}
	return err
}
