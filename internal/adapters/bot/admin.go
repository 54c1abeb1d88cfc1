package bot

import (
	"context"
	"strings"

	"tg-download-bot/internal/adapters/queueclient"
	"tg-download-bot/internal/domain"
	"tg-download-bot/internal/usecase/download"
)

// adminSwitches — команды, включающие и выключающие части сервиса загрузки.
var adminSwitches = map[string][2]queueclient.AdminOp{
	"/admin_queue":   {queueclient.QueueStart, queueclient.QueueStop},
	"/admin_tasks":   {queueclient.TasksStart, queueclient.TasksStop},
	"/admin_results": {queueclient.ResultsStart, queueclient.ResultsStop},
}

func (h *Handler) handleAdmin(ctx context.Context, chatID, userID int64, cmd, arg string) {
	if !h.Global.IsAdmin(userID) {
		h.reply(ctx, chatID, "Неизвестная команда. Используйте /help")
		return
	}
	log := h.Log.With().Int64("admin", userID).Str("cmd", cmd).Logger()

	switch cmd {
	case "/admin_cancel":
		id, err := domain.ParseTaskID(arg)
		if err != nil {
			h.reply(ctx, chatID, "Используйте /admin_cancel <id задачи>")
			return
		}
		log.Info().Str("task", string(id)).Msg("отмена задачи администратором")
		cancelled, err := h.Notifier.Cancel(ctx, id, download.CancelBy{ChatID: chatID, UserID: userID, Admin: true})
		if err != nil {
			log.Error().Err(err).Msg("не удалось отменить задачу")
			return
		}
		if cancelled {
			h.reply(ctx, chatID, "Задача #"+string(id)+" отменена")
		}
		return
	case "/admin_reload":
		h.adminOp(ctx, chatID, queueclient.ReloadConfig)
		return
	}

	ops, ok := adminSwitches[cmd]
	if !ok {
		h.reply(ctx, chatID, "Неизвестная команда администратора")
		return
	}
	switch strings.ToLower(arg) {
	case "start":
		h.adminOp(ctx, chatID, ops[0])
	case "stop":
		h.adminOp(ctx, chatID, ops[1])
	default:
		h.reply(ctx, chatID, "Используйте "+cmd+" start|stop")
	}
}

func (h *Handler) adminOp(ctx context.Context, chatID int64, op queueclient.AdminOp) {
	if err := h.Queue.Admin(ctx, op); err != nil {
		h.Log.Error().Err(err).Str("op", string(op)).Msg("команда сервису загрузки не выполнена")
		h.reply(ctx, chatID, "Сервис загрузки не принял команду: "+download.UserMessage(err))
		return
	}
	h.reply(ctx, chatID, "Выполнено: "+string(op))
}
