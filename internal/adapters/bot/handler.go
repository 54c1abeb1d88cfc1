package bot

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"tg-download-bot/internal/adapters/queueclient"
	"tg-download-bot/internal/domain"
	"tg-download-bot/internal/infra/config"
	"tg-download-bot/internal/usecase/download"
)

// Queue — операции сервиса загрузки, которые вызываются командами.
type Queue interface {
	GetActiveSitesGrouped(ctx context.Context) map[string][]string
	Admin(ctx context.Context, op queueclient.AdminOp) error
}

// Deps — зависимости обработчика.
type Deps struct {
	Log       zerolog.Logger
	Messenger domain.Messenger
	Users     domain.UserRepo
	States    domain.StateStore
	Queue     Queue
	Global    config.Global
	Inline    *download.Inline
	Window    *download.Window
	Auth      *download.AuthDialog
	Settings  *download.Settings
	Notifier  *download.Notifier
}

type callbackFunc func(ctx context.Context, q *tgbotapi.CallbackQuery, cb download.Callback) error

// Handler обслуживает вебхук бота. Апдейты одного пользователя в одном чате
// обрабатываются последовательно.
type Handler struct {
	Deps
	locks  *keyedMutex
	routes map[download.Action]callbackFunc
}

// NewHandler создаёт обработчик.
func NewHandler(d Deps) *Handler {
	h := &Handler{Deps: d, locks: newKeyedMutex()}
	h.routes = h.callbackRoutes()
	return h
}

// HandleUpdate обрабатывает входящий апдейт.
func (h *Handler) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	switch {
	case upd.Message != nil && upd.Message.From != nil:
		msg := upd.Message
		unlock := h.locks.Lock(msg.Chat.ID, msg.From.ID)
		defer unlock()
		h.handleMessage(ctx, msg)
	case upd.CallbackQuery != nil && upd.CallbackQuery.Message != nil:
		q := upd.CallbackQuery
		unlock := h.locks.Lock(q.Message.Chat.ID, q.From.ID)
		defer unlock()
		h.handleCallback(ctx, q)
	}
}

// commandOf выделяет команду без упоминания бота и её аргумент.
func commandOf(text string) (cmd, arg string) {
	head, rest, _ := strings.Cut(strings.TrimSpace(text), " ")
	head, _, _ = strings.Cut(head, "@")
	return strings.ToLower(head), strings.TrimSpace(rest)
}

func (h *Handler) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	text := strings.TrimSpace(msg.Text)
	chatID, userID := msg.Chat.ID, msg.From.ID

	if !strings.HasPrefix(text, "/") {
		if h.handleInput(ctx, msg, text) {
			return
		}
		h.handleLink(ctx, chatID, userID, text)
		return
	}

	cmd, arg := commandOf(text)
	switch cmd {
	case "/start":
		h.handleStart(ctx, chatID, msg.From)
	case "/help":
		h.reply(ctx, chatID, helpText)
	case "/mode":
		h.handleMode(ctx, chatID, userID, arg)
	case "/setup":
		h.logErr(h.Settings.Open(ctx, chatID, userID, strings.ToLower(arg)), "setup")
	case "/sites":
		h.handleSites(ctx, chatID)
	case "/uid":
		h.reply(ctx, chatID, fmt.Sprintf("Ваш ID: %d", userID))
	case "/reset":
		h.handleReset(ctx, chatID, userID)
	case "/auth":
		h.logErr(h.Auth.Begin(ctx, chatID, userID, strings.ToLower(arg)), "auth")
	default:
		if strings.HasPrefix(cmd, "/admin_") {
			h.handleAdmin(ctx, chatID, userID, cmd, arg)
			return
		}
		h.reply(ctx, chatID, "Неизвестная команда. Используйте /help")
	}
}

// handleInput передаёт текст активному шагу диалога. false — шага нет.
func (h *Handler) handleInput(ctx context.Context, msg *tgbotapi.Message, text string) bool {
	chatID, userID := msg.Chat.ID, msg.From.ID
	st, err := h.States.Get(ctx, chatID, userID)
	if err != nil {
		h.Log.Warn().Err(err).Int64("chat", chatID).Msg("не удалось получить состояние диалога")
		return false
	}
	if st.Step == domain.StepNone {
		return false
	}
	switch st.Flow {
	case domain.FlowDownloadSetup:
		h.logErr(h.Inline.Input(ctx, chatID, userID, msg.MessageID, text, st), "inline input")
	case domain.FlowAuth:
		h.logErr(h.Auth.Input(ctx, chatID, userID, msg.MessageID, text, st), "auth input")
	case domain.FlowAccountSetup, domain.FlowSiteSetup:
		h.logErr(h.Settings.Input(ctx, chatID, userID, msg.MessageID, text, st), "settings input")
	case domain.FlowNone:
		return false
	}
	return true
}

func (h *Handler) handleLink(ctx context.Context, chatID, userID int64, text string) {
	link, site, ok := download.ParseLink(text)
	if !ok {
		h.reply(ctx, chatID, "Отправьте ссылку на книгу")
		return
	}
	user, err := h.Users.GetUser(ctx, userID)
	if errors.Is(err, domain.ErrNotFound) {
		h.reply(ctx, chatID, download.ErrUserNotFound.Error())
		return
	}
	if err != nil {
		h.Log.Error().Err(err).Int64("user", userID).Msg("не удалось получить пользователя")
		h.reply(ctx, chatID, download.ErrStorage.Error())
		return
	}
	if user.InteractMode == domain.InteractWindowed && h.Window.Enabled() {
		h.logErr(h.Window.Start(ctx, chatID, userID, link, site), "window start")
		return
	}
	h.logErr(h.Inline.Start(ctx, chatID, userID, link, site), "inline start")
}

func (h *Handler) handleStart(ctx context.Context, chatID int64, from *tgbotapi.User) {
	_, err := h.Users.GetUser(ctx, from.ID)
	if errors.Is(err, domain.ErrNotFound) {
		err = h.Users.SaveUser(ctx, domain.NewUser(from.ID, from.UserName))
		if err == nil {
			h.Log.Info().Int64("user", from.ID).Msg("новый пользователь")
		}
	}
	if err != nil {
		h.Log.Error().Err(err).Int64("user", from.ID).Msg("не удалось сохранить пользователя")
		h.reply(ctx, chatID, download.ErrStorage.Error())
		return
	}
	h.reply(ctx, chatID, startText)
}

func (h *Handler) handleMode(ctx context.Context, chatID, userID int64, arg string) {
	user, err := h.Users.GetUser(ctx, userID)
	if err != nil {
		h.replyErr(ctx, chatID, userErr(err))
		return
	}
	switch arg {
	case "inline":
		user.InteractMode = domain.InteractInline
	case "windowed", "window":
		user.InteractMode = domain.InteractWindowed
	case "":
		if user.InteractMode == domain.InteractWindowed {
			user.InteractMode = domain.InteractInline
		} else {
			user.InteractMode = domain.InteractWindowed
		}
	default:
		h.reply(ctx, chatID, "Используйте /mode inline или /mode windowed")
		return
	}
	if user.InteractMode == domain.InteractWindowed && !h.Window.Enabled() {
		h.replyErr(ctx, chatID, download.ErrWebAppDisabled)
		return
	}
	if err := h.Users.SaveUser(ctx, user); err != nil {
		h.replyErr(ctx, chatID, userErr(err))
		return
	}
	h.reply(ctx, chatID, "Режим взаимодействия: "+user.InteractMode.String())
}

func (h *Handler) handleSites(ctx context.Context, chatID int64) {
	grouped := h.Queue.GetActiveSitesGrouped(ctx)
	if len(grouped) == 0 {
		h.replyErr(ctx, chatID, download.ErrQueueUnavailable)
		return
	}
	h.reply(ctx, chatID, sitesText(grouped, h.Global))
}

// sitesText — список сайтов по группам с названиями в Unicode.
func sitesText(grouped map[string][]string, g config.Global) string {
	groups := make([]string, 0, len(grouped))
	for group := range grouped {
		groups = append(groups, group)
	}
	sort.Strings(groups)
	var b strings.Builder
	b.WriteString("Поддерживаемые сайты:\n")
	for _, group := range groups {
		sites := append([]string(nil), grouped[group]...)
		if len(sites) == 0 {
			continue
		}
		sort.Strings(sites)
		fmt.Fprintf(&b, "\n%s:\n", g.GroupName(group))
		for _, site := range sites {
			b.WriteString("  " + download.SiteDisplayName(site) + "\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func (h *Handler) handleReset(ctx context.Context, chatID, userID int64) {
	st, err := h.States.Get(ctx, chatID, userID)
	if err != nil {
		h.Log.Warn().Err(err).Msg("не удалось получить состояние диалога")
	}
	for _, id := range st.PromptMessageIDs {
		_ = h.Messenger.Delete(ctx, chatID, id)
	}
	if err := h.States.Clear(ctx, chatID, userID); err != nil {
		h.Log.Warn().Err(err).Msg("не удалось сбросить состояние")
	}
	h.reply(ctx, chatID, resetText(st.Flow))
}

func resetText(flow domain.Flow) string {
	switch flow {
	case domain.FlowNone:
		return "Нет активных диалогов"
	case domain.FlowAuth:
		return "Добавление доступа отменено"
	case domain.FlowAccountSetup:
		return "Изменение настроек аккаунта отменено"
	case domain.FlowSiteSetup:
		return "Изменение настроек сайта отменено"
	case domain.FlowDownloadSetup:
		return "Ввод параметров загрузки отменён"
	}
	return "Состояние сброшено"
}

func (h *Handler) callbackRoutes() map[download.Action]callbackFunc {
	inline := func(ctx context.Context, q *tgbotapi.CallbackQuery, cb download.Callback) error {
		return h.Inline.Callback(ctx, q.Message.Chat.ID, q.From.ID, q.Message.MessageID, cb)
	}
	settings := func(ctx context.Context, q *tgbotapi.CallbackQuery, cb download.Callback) error {
		return h.Settings.Callback(ctx, q.Message.Chat.ID, q.From.ID, q.Message.MessageID, cb)
	}
	routes := map[download.Action]callbackFunc{
		download.ActionCancelTask: func(ctx context.Context, q *tgbotapi.CallbackQuery, cb download.Callback) error {
			id, err := domain.ParseTaskID(cb.Arg)
			if err != nil {
				return download.ErrUnknownCallback
			}
			_, err = h.Notifier.Cancel(ctx, id, download.CancelBy{ChatID: q.Message.Chat.ID, UserID: q.From.ID})
			return err
		},
		download.ActionWindowCancel: func(ctx context.Context, q *tgbotapi.CallbackQuery, _ download.Callback) error {
			return h.Window.Cancel(ctx, q.Message.Chat.ID, q.Message.MessageID)
		},
		download.ActionAuthSite: func(ctx context.Context, q *tgbotapi.CallbackQuery, cb download.Callback) error {
			return h.Auth.SelectSite(ctx, q.Message.Chat.ID, q.From.ID, q.Message.MessageID, cb.Arg)
		},
		download.ActionAuthCancel: func(ctx context.Context, q *tgbotapi.CallbackQuery, _ download.Callback) error {
			return h.Auth.Cancel(ctx, q.Message.Chat.ID, q.From.ID, q.Message.MessageID)
		},
	}
	for _, a := range []download.Action{
		download.ActionDownload, download.ActionDownloadLast, download.ActionCancel,
		download.ActionCover, download.ActionThumb, download.ActionImages, download.ActionHashtags,
		download.ActionFormatMenu, download.ActionFormat, download.ActionAuthMenu, download.ActionAuth,
		download.ActionPaging, download.ActionProxy, download.ActionProxyClear,
		download.ActionAdvanced, download.ActionBase, download.ActionBack, download.ActionInputCancel,
	} {
		routes[a] = inline
	}
	for _, a := range []download.Action{
		download.ActionSetFormatMenu, download.ActionSetFormat, download.ActionSetCover,
		download.ActionSetImages, download.ActionSetThumb, download.ActionSetHashtags,
		download.ActionSetFilename, download.ActionSetProxy, download.ActionSetMode,
		download.ActionSetReset, download.ActionSetBack, download.ActionSetClose,
	} {
		routes[a] = settings
	}
	return routes
}

func (h *Handler) handleCallback(ctx context.Context, q *tgbotapi.CallbackQuery) {
	answer := ""
	cb, err := download.ParseCallback(q.Data)
	route, ok := h.routes[cb.Action]
	switch {
	case err != nil || !ok:
		h.Log.Debug().Str("data", q.Data).Msg("неизвестная кнопка")
		answer = "Кнопка устарела"
	default:
		if err := route(ctx, q, cb); err != nil {
			if errors.Is(err, download.ErrStorage) {
				h.Log.Error().Err(err).Str("data", q.Data).Msg("ошибка обработки кнопки")
			}
			answer = download.UserMessage(err)
		}
	}
	if err := h.Messenger.AnswerCallback(ctx, q.ID, answer); err != nil {
		h.Log.Error().Err(err).Msg("не удалось ответить на callback")
	}
}

func (h *Handler) reply(ctx context.Context, chatID int64, text string) {
	if _, err := h.Messenger.Send(ctx, chatID, text, nil); err != nil {
		h.Log.Error().Err(err).Int64("chat", chatID).Msg("не удалось отправить сообщение")
	}
}

func (h *Handler) replyErr(ctx context.Context, chatID int64, err error) {
	h.reply(ctx, chatID, download.UserMessage(err))
}

func (h *Handler) logErr(err error, op string) {
	if err != nil {
		h.Log.Error().Err(err).Str("op", op).Msg("ошибка обработки сообщения")
	}
}

// userErr переводит ошибку репозитория в ошибку для пользователя.
func userErr(err error) error {
	if errors.Is(err, domain.ErrNotFound) {
		return download.ErrUserNotFound
	}
	return download.ErrStorage
}

const startText = `👋 Бот скачивает книги, мангу и ранобэ с поддерживаемых сайтов.

Отправьте ссылку на произведение, выберите параметры и нажмите «Скачать».
Список сайтов: /sites
Помощь: /help`

const helpText = `📖 Команды:
• /sites — поддерживаемые сайты
• /setup — настройки по умолчанию
• /setup author.today — настройки для сайта
• /auth — добавить доступ к сайту
• /mode — переключить режим: кнопки в чате или отдельное окно
• /reset — прервать текущий диалог
• /uid — ваш ID`
