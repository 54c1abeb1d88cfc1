package telegram

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"tg-download-bot/internal/domain"
	"tg-download-bot/internal/infra/metrics"
)

const (
	captionLimit   = 1024
	mediaGroupSize = 10
)

// Messenger реализует domain.Messenger через Bot API.
type Messenger struct {
	bot *tgbotapi.BotAPI
	log zerolog.Logger
}

// NewMessenger создаёт адаптер.
func NewMessenger(bot *tgbotapi.BotAPI, logger zerolog.Logger) *Messenger {
	return &Messenger{bot: bot, log: logger.With().Str("component", "messenger").Logger()}
}

// Send отправляет текст, разбивая его на части. Возвращает id первого сообщения, к нему крепится клавиатура.
func (m *Messenger) Send(_ context.Context, chatID int64, text string, kb domain.Keyboard) (int, error) {
	parts := SplitMessage(text)
	if len(parts) == 0 {
		parts = []string{"…"}
	}
	firstID := 0
	for i, part := range parts {
		msg := tgbotapi.NewMessage(chatID, part)
		if i == 0 {
			if markup := toMarkup(kb); markup != nil {
				msg.ReplyMarkup = markup
			}
		}
		start := time.Now()
		sent, err := m.bot.Send(msg)
		metrics.ObserveNetworkRequest("telegram_bot", "send_message", strconv.FormatInt(chatID, 10), start, err)
		if err != nil {
			metrics.BotSendErrors.Inc()
			return firstID, classify(err)
		}
		if i == 0 {
			firstID = sent.MessageID
		}
	}
	return firstID, nil
}

// Edit заменяет текст и клавиатуру сообщения. Пустая клавиатура убирает кнопки.
// Запрос собирается вручную: типизированная разметка tgbotapi не знает кнопок web_app.
func (m *Messenger) Edit(_ context.Context, chatID int64, messageID int, text string, kb domain.Keyboard) error {
	params := tgbotapi.Params{}
	params.AddNonZero64("chat_id", chatID)
	params.AddNonZero("message_id", messageID)
	params.AddNonEmpty("text", truncate(text, messageLimit))
	if markup := toMarkup(kb); markup != nil {
		if err := params.AddInterface("reply_markup", markup); err != nil {
			return err
		}
	}
	start := time.Now()
	_, err := m.bot.MakeRequest("editMessageText", params)
	metrics.ObserveNetworkRequest("telegram_bot", "edit_message", strconv.FormatInt(chatID, 10), start, err)
	return classify(err)
}

// Delete удаляет сообщение.
func (m *Messenger) Delete(_ context.Context, chatID int64, messageID int) error {
	start := time.Now()
	_, err := m.bot.Request(tgbotapi.NewDeleteMessage(chatID, messageID))
	metrics.ObserveNetworkRequest("telegram_bot", "delete_message", strconv.FormatInt(chatID, 10), start, err)
	return classify(err)
}

// SendPhoto отправляет обложку с подписью. Не поместившийся в подпись текст
// уходит следующими сообщениями.
func (m *Messenger) SendPhoto(ctx context.Context, chatID int64, path, caption string) error {
	caption, rest := splitCaption(caption)
	photo := tgbotapi.NewPhoto(chatID, tgbotapi.FilePath(path))
	photo.Caption = caption
	start := time.Now()
	_, err := m.bot.Send(photo)
	metrics.ObserveNetworkRequest("telegram_bot", "send_photo", strconv.FormatInt(chatID, 10), start, err)
	if err != nil {
		metrics.BotSendErrors.Inc()
		return classify(err)
	}
	for _, part := range rest {
		if _, err := m.Send(ctx, chatID, part, nil); err != nil {
			return err
		}
	}
	return nil
}

// SendDocuments отправляет файлы группами по 10.
func (m *Messenger) SendDocuments(_ context.Context, chatID int64, paths []string) error {
	for _, chunk := range chunkPaths(paths, mediaGroupSize) {
		start := time.Now()
		var err error
		if len(chunk) == 1 {
			_, err = m.bot.Send(tgbotapi.NewDocument(chatID, tgbotapi.FilePath(chunk[0])))
		} else {
			media := make([]interface{}, 0, len(chunk))
			for _, p := range chunk {
				media = append(media, tgbotapi.NewInputMediaDocument(tgbotapi.FilePath(p)))
			}
			_, err = m.bot.SendMediaGroup(tgbotapi.NewMediaGroup(chatID, media))
		}
		metrics.ObserveNetworkRequest("telegram_bot", "send_documents", strconv.FormatInt(chatID, 10), start, err)
		if err != nil {
			metrics.BotSendErrors.Inc()
			return classify(err)
		}
	}
	return nil
}

// AnswerCallback отвечает на нажатие кнопки.
func (m *Messenger) AnswerCallback(_ context.Context, callbackID, text string) error {
	start := time.Now()
	_, err := m.bot.Request(tgbotapi.NewCallback(callbackID, text))
	metrics.ObserveNetworkRequest("telegram_bot", "answer_callback", "", start, err)
	return classify(err)
}

// classify приводит ошибки Bot API к ошибкам domain.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) {
		msg := strings.ToLower(apiErr.Message)
		switch {
		case strings.Contains(msg, "message is not modified"):
			return domain.ErrMessageNotModified
		case strings.Contains(msg, "message to edit not found"),
			strings.Contains(msg, "message to delete not found"),
			strings.Contains(msg, "message can't be edited"),
			strings.Contains(msg, "message can't be deleted"):
			return domain.ErrMessageGone
		}
	}
	return err
}

// inlineMarkup повторяет InlineKeyboardMarkup Bot API вместе с кнопками web_app.
type inlineMarkup struct {
	InlineKeyboard [][]inlineButton `json:"inline_keyboard"`
}

type inlineButton struct {
	Text         string      `json:"text"`
	CallbackData *string     `json:"callback_data,omitempty"`
	URL          *string     `json:"url,omitempty"`
	WebApp       *webAppInfo `json:"web_app,omitempty"`
}

type webAppInfo struct {
	URL string `json:"url"`
}

func toMarkup(kb domain.Keyboard) *inlineMarkup {
	if len(kb) == 0 {
		return nil
	}
	rows := make([][]inlineButton, 0, len(kb))
	for _, row := range kb {
		buttons := make([]inlineButton, 0, len(row))
		for _, b := range row {
			btn := inlineButton{Text: b.Text}
			switch {
			case b.WebApp != "":
				btn.WebApp = &webAppInfo{URL: b.WebApp}
			case b.URL != "":
				btn.URL = &b.URL
			default:
				btn.CallbackData = &b.Data
			}
			buttons = append(buttons, btn)
		}
		if len(buttons) > 0 {
			rows = append(rows, buttons)
		}
	}
	return &inlineMarkup{InlineKeyboard: rows}
}

func chunkPaths(paths []string, size int) [][]string {
	var out [][]string
	for len(paths) > size {
		out = append(out, paths[:size])
		paths = paths[size:]
	}
	if len(paths) > 0 {
		out = append(out, paths)
	}
	return out
}

func truncate(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit-1]) + "…"
}

var _ domain.Messenger = (*Messenger)(nil)
