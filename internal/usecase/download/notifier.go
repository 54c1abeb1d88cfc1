package download

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"

	"tg-download-bot/internal/domain"
	"tg-download-bot/internal/infra/metrics"
)

// Notifier доставляет статусы и результаты задач в чат.
type Notifier struct {
	d *Deps
}

// NewNotifier создаёт доставщик.
func NewNotifier(d *Deps) *Notifier {
	return &Notifier{d: d}
}

// OnStatus обновляет статусное сообщение. Удалённое или не изменившееся
// сообщение считается успешной доставкой.
func (n *Notifier) OnStatus(ctx context.Context, st domain.DownloadStatus) error {
	var kb domain.Keyboard
	if !st.Status.Terminal() {
		kb = CancelTaskKeyboard(st.TaskID)
	}
	err := n.d.edit(ctx, st.ChatID, st.MessageID, st.Text, kb)
	if err != nil {
		n.d.Log.Warn().Err(err).Str("task", string(st.TaskID)).Str("status", st.Status.String()).Msg("не удалось обновить статус")
	}
	return err
}

// OnResult учитывает и доставляет итог задачи. Повторная доставка того же
// результата не меняет статистику и не дублирует файлы.
func (n *Notifier) OnResult(ctx context.Context, res domain.DownloadResult) error {
	log := n.d.Log.With().Str("task", string(res.TaskID)).Int64("user", res.UserID).Str("status", res.Status.String()).Logger()

	if res.Status == domain.StatusCancelled {
		metrics.ObserveResult(res.Status.String(), false)
		_ = n.d.remove(ctx, res.ChatID, res.MessageID)
		n.d.Queue.ClearDownloadFiles(ctx, res.TaskID)
		return nil
	}
	if res.Status != domain.StatusDone && res.Status != domain.StatusError {
		log.Warn().Msg("результат с незавершённым статусом")
		return nil
	}

	applied, err := n.d.Usage.RecordResult(ctx, res, n.d.now())
	if err != nil {
		log.Error().Err(err).Msg("не удалось учесть результат")
		return storageErr(err)
	}
	metrics.ObserveResult(res.Status.String(), !applied)
	if !applied {
		log.Info().Msg("результат уже был доставлен")
		return nil
	}

	if res.Status == domain.StatusDone {
		err = n.deliver(ctx, res)
	} else {
		err = n.fail(ctx, res)
	}
	n.d.Queue.ClearDownloadFiles(ctx, res.TaskID)
	if err != nil {
		log.Error().Err(err).Msg("не удалось доставить результат")
	}
	_ = n.d.events().Publish(ctx, domain.LifecycleEvent{
		Event:  domain.EventDownloadResult,
		TaskID: res.TaskID,
		UserID: res.UserID,
		Site:   res.Site,
		Status: res.Status.String(),
		Metadata: map[string]any{
			"files":     len(res.Files),
			"orig_size": res.OrigSize,
			"oper_size": res.OperSize,
		},
		OccurredAt: n.d.now().UTC(),
	})
	return nil
}

func (n *Notifier) deliver(ctx context.Context, res domain.DownloadResult) error {
	caption := resultCaption(res)
	if res.Cover != "" {
		if err := n.d.Messenger.SendPhoto(ctx, res.ChatID, res.Cover, caption); err != nil {
			n.d.Log.Warn().Err(err).Str("task", string(res.TaskID)).Msg("не удалось отправить обложку")
			if _, err := n.d.Messenger.Send(ctx, res.ChatID, caption, nil); err != nil {
				return err
			}
		}
	} else if _, err := n.d.Messenger.Send(ctx, res.ChatID, caption, nil); err != nil {
		return err
	}
	if len(res.Files) > 0 {
		if err := n.d.Messenger.SendDocuments(ctx, res.ChatID, res.Files); err != nil {
			return err
		}
	}
	return n.d.remove(ctx, res.ChatID, res.MessageID)
}

func (n *Notifier) fail(ctx context.Context, res domain.DownloadResult) error {
	text := res.Text
	if text == "" {
		text = "Не удалось скачать"
	}
	err := n.d.Messenger.Edit(ctx, res.ChatID, res.MessageID, text, nil)
	if errors.Is(err, domain.ErrMessageGone) {
		_, err = n.d.Messenger.Send(ctx, res.ChatID, text, nil)
	}
	if errors.Is(err, domain.ErrMessageNotModified) {
		return nil
	}
	return err
}

// resultCaption — подпись к готовой загрузке с размерами до и после обработки.
func resultCaption(res domain.DownloadResult) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(res.Text))
	if res.OrigSize > 0 {
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "Размер: %s", humanize.IBytes(uint64(res.OrigSize)))
		if res.OperSize > 0 && res.OperSize != res.OrigSize {
			fmt.Fprintf(&b, " → %s", humanize.IBytes(uint64(res.OperSize)))
		}
	}
	if b.Len() == 0 {
		return "Готово"
	}
	return b.String()
}

// CancelBy описывает, кто отменяет задачу.
type CancelBy struct {
	ChatID int64
	UserID int64
	// Admin снимает проверку владельца.
	Admin bool
}

func (b CancelBy) owns(owner taskOwner) bool {
	return b.Admin || (owner.UserID == b.UserID && owner.ChatID == b.ChatID)
}

// Cancel отменяет задачу по кнопке или команде администратора. Отказ сервиса
// загрузки отправляется в чат, из которого пришла отмена, и даёт cancelled=false
// без ошибки. Чужую задачу отменить нельзя: ErrNotTaskOwner.
func (n *Notifier) Cancel(ctx context.Context, taskID domain.TaskID, by CancelBy) (cancelled bool, err error) {
	log := n.d.Log.With().Str("task", string(taskID)).Int64("requester", by.UserID).Logger()
	if owner, ok := n.d.lookupOwner(ctx, taskID); ok && !by.owns(owner) {
		log.Warn().Int64("owner", owner.UserID).Msg("попытка отменить чужую задачу")
		return false, ErrNotTaskOwner
	}

	res, err := n.d.Queue.CancelDownload(ctx, taskID)
	if err != nil {
		log.Warn().Err(err).Msg("отмена отклонена")
		return false, n.d.notify(ctx, by.ChatID, err)
	}
	if !by.owns(taskOwner{UserID: res.UserID, ChatID: res.ChatID}) {
		// владелец не был известен заранее; его сообщение уберёт результат CANCELLED
		log.Warn().Int64("owner", res.UserID).Msg("отменена чужая задача")
		return false, ErrNotTaskOwner
	}
	log.Info().Int64("user", res.UserID).Msg("задача отменена")
	return true, n.d.remove(ctx, res.ChatID, res.MessageID)
}
