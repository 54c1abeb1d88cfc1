package httpapi

import (
	"context"
	"errors"
	"net/http"

	chi "github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"tg-download-bot/internal/domain"
	httpinfra "tg-download-bot/internal/infra/http"
	"tg-download-bot/internal/usecase/download"
)

// UpdateHandler обрабатывает апдейты Telegram.
type UpdateHandler interface {
	HandleUpdate(ctx context.Context, upd tgbotapi.Update)
}

// Lifecycle принимает статусы и результаты задач.
type Lifecycle interface {
	OnStatus(ctx context.Context, st domain.DownloadStatus) error
	OnResult(ctx context.Context, res domain.DownloadResult) error
}

// MiniApp обслуживает формы мини-приложения.
type MiniApp interface {
	Form(token string) download.FormModel
	Submit(ctx context.Context, form download.SetupForm) (domain.TaskID, error)
	AuthForm(token string) download.AuthFormModel
	SaveAuth(ctx context.Context, form download.AuthForm) error
}

// Snapshots отдаёт сводки сервиса загрузки.
type Snapshots interface {
	GetUsage(ctx context.Context, bypass bool) json.RawMessage
	GetStats(ctx context.Context, bypass bool) json.RawMessage
}

// Routes — обработчики HTTP бота.
type Routes struct {
	Log         zerolog.Logger
	Updates     UpdateHandler
	Lifecycle   Lifecycle
	MiniApp     MiniApp
	Snapshots   Snapshots
	WebhookPath string
	// BotToken задаётся, если POST мини-приложения должны проверять init_data.
	BotToken string
}

// Mount регистрирует маршруты на роутере. Без Updates вебхук не регистрируется.
func Mount(r chi.Router, rt Routes) {
	if rt.Updates != nil {
		r.Post(rt.WebhookPath, rt.webhook)
	}

	r.Post("/download/status", rt.downloadStatus)
	r.Post("/download/done", rt.downloadDone)

	r.Get("/download/setup", func(w http.ResponseWriter, r *http.Request) {
		httpinfra.WriteJSON(w, http.StatusOK, rt.MiniApp.Form(r.URL.Query().Get("payload")))
	})
	r.Get("/auth/setup", func(w http.ResponseWriter, r *http.Request) {
		httpinfra.WriteJSON(w, http.StatusOK, rt.MiniApp.AuthForm(r.URL.Query().Get("payload")))
	})
	r.Group(func(forms chi.Router) {
		if rt.BotToken != "" {
			forms.Use(httpinfra.WebAppAuthMiddleware(rt.BotToken))
		}
		forms.Post("/download/setup", rt.submitDownload)
		forms.Post("/auth/setup", rt.submitAuth)
	})

	r.Get("/usage", func(w http.ResponseWriter, r *http.Request) {
		writeRaw(w, rt.Snapshots.GetUsage(r.Context(), fresh(r)))
	})
	r.Get("/stats", func(w http.ResponseWriter, r *http.Request) {
		writeRaw(w, rt.Snapshots.GetStats(r.Context(), fresh(r)))
	})
}

func (rt Routes) webhook(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var update tgbotapi.Update
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		httpinfra.WriteError(w, http.StatusBadRequest, err)
		return
	}
	// переход диалога не должен обрываться, если Telegram закрыл соединение
	rt.Updates.HandleUpdate(context.WithoutCancel(r.Context()), update)
	w.WriteHeader(http.StatusOK)
}

func (rt Routes) downloadStatus(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var st domain.DownloadStatus
	if err := json.NewDecoder(r.Body).Decode(&st); err != nil {
		httpinfra.WriteError(w, http.StatusBadRequest, err)
		return
	}
	writeBool(w, rt.Lifecycle.OnStatus(context.WithoutCancel(r.Context()), st) == nil)
}

func (rt Routes) downloadDone(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var res domain.DownloadResult
	if err := json.NewDecoder(r.Body).Decode(&res); err != nil {
		httpinfra.WriteError(w, http.StatusBadRequest, err)
		return
	}
	writeBool(w, rt.Lifecycle.OnResult(context.WithoutCancel(r.Context()), res) == nil)
}

func (rt Routes) submitDownload(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var form download.SetupForm
	if err := json.NewDecoder(r.Body).Decode(&form); err != nil {
		httpinfra.WriteError(w, http.StatusBadRequest, err)
		return
	}
	var ok bool
	if form.ViewerID, ok = rt.viewer(w, r); !ok {
		return
	}
	id, err := rt.MiniApp.Submit(context.WithoutCancel(r.Context()), form)
	if err != nil {
		rt.formError(w, r, err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, map[string]any{"ok": true, "task_id": id})
}

func (rt Routes) submitAuth(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var form download.AuthForm
	if err := json.NewDecoder(r.Body).Decode(&form); err != nil {
		httpinfra.WriteError(w, http.StatusBadRequest, err)
		return
	}
	var ok bool
	if form.ViewerID, ok = rt.viewer(w, r); !ok {
		return
	}
	if err := rt.MiniApp.SaveAuth(context.WithoutCancel(r.Context()), form); err != nil {
		rt.formError(w, r, err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// viewer возвращает пользователя из init_data. При включённой проверке
// init_data без пользователя отклоняется.
func (rt Routes) viewer(w http.ResponseWriter, r *http.Request) (int64, bool) {
	if rt.BotToken == "" {
		return 0, true
	}
	id, ok := httpinfra.InitDataUserID(r)
	if !ok {
		httpinfra.WriteError(w, http.StatusUnauthorized, httpinfra.ErrInitDataInvalid)
		return 0, false
	}
	return id, true
}

// formError отвечает мини-приложению: подделанные данные — 400, сбои БД — 500,
// остальные ошибки уже показаны в чате и возвращаются текстом.
func (rt Routes) formError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusUnprocessableEntity
	switch {
	case errors.Is(err, download.ErrInvalidPayload):
		status = http.StatusBadRequest
	case errors.Is(err, download.ErrWebAppDisabled):
		status = http.StatusNotFound
	case errors.Is(err, download.ErrStorage):
		status = http.StatusInternalServerError
		rt.Log.Error().Err(err).Str("request_id", httpinfra.RequestID(r)).Msg("ошибка формы мини-приложения")
	}
	httpinfra.WriteError(w, status, errors.New(download.UserMessage(err)))
}

func fresh(r *http.Request) bool {
	return r.URL.Query().Get("fresh") == "1"
}

func writeBool(w http.ResponseWriter, ok bool) {
	status := http.StatusOK
	if !ok {
		status = http.StatusInternalServerError
	}
	httpinfra.WriteJSON(w, status, ok)
}

func writeRaw(w http.ResponseWriter, raw json.RawMessage) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(raw)
}
