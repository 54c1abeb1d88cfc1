package download

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"testing"

	"github.com/fernet/fernet-go"

	"tg-download-bot/internal/domain"
	"tg-download-bot/internal/infra/crypto"
)

func newTestWindow(t *testing.T, e *env) *Window {
	t.Helper()
	var key fernet.Key
	if err := key.Generate(); err != nil {
		t.Fatal(err)
	}
	sealer, err := crypto.NewSealer(key.Encode())
	if err != nil {
		t.Fatal(err)
	}
	return NewWindow(e.deps, sealer, "https://bot.example/app")
}

// payloadFrom достаёт токен из кнопки мини-приложения.
func payloadFrom(t *testing.T, kb domain.Keyboard) string {
	t.Helper()
	for _, row := range kb {
		for _, b := range row {
			if b.WebApp == "" {
				continue
			}
			u, err := url.Parse(b.WebApp)
			if err != nil {
				t.Fatal(err)
			}
			return u.Query().Get("payload")
		}
	}
	t.Fatal("нет кнопки мини-приложения")
	return ""
}

func TestWindowStartAndForm(t *testing.T) {
	e := newEnv()
	w := newTestWindow(t, e)
	if err := w.Start(context.Background(), testChat, testUser, testLink, testSite); err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	edit := e.msgr.lastEdit(t)
	if !strings.HasPrefix(edit.KB[0][0].WebApp, "https://bot.example/app/download/setup?payload=") {
		t.Fatalf("неожиданная ссылка: %q", edit.KB[0][0].WebApp)
	}
	if len(e.requests.rows) != 0 {
		t.Fatal("режим окна не создаёт строк")
	}

	form := w.Form(payloadFrom(t, edit.KB))
	if !form.Valid || form.Payload.MessageID != edit.ID || form.Payload.UserID != testUser {
		t.Fatalf("неожиданная модель формы: %+v", form)
	}
	if form.NamedFormats["epub"] != "EPUB" {
		t.Fatalf("ожидали названия форматов, получили %v", form.NamedFormats)
	}
	if w.Form("garbage").Valid {
		t.Fatal("поддельный payload должен давать valid=false")
	}
}

func TestWindowSubmit(t *testing.T) {
	e := newEnv()
	w := newTestWindow(t, e)
	ctx := context.Background()
	_ = w.Start(ctx, testChat, testUser, testLink, testSite)
	prompt := e.msgr.lastEdit(t)
	token := payloadFrom(t, prompt.KB)

	id, err := w.Submit(ctx, SetupForm{Payload: token, Format: "epub", Auth: AuthNone, Start: 2, End: 4, Cover: true})
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if id != "42" {
		t.Fatalf("ожидали задачу 42, получили %q", id)
	}
	req := e.queue.inits[0]
	status := e.msgr.lastSent(t)
	if req.MessageID != status.ID || req.Format != "epub" || req.Start != 2 || req.End != 4 || req.UserID != testUser {
		t.Fatalf("неожиданная задача: %+v", req)
	}
	if !e.msgr.wasDeleted(prompt.ID) {
		t.Fatal("сообщение с кнопкой должно удаляться")
	}
	if edit := e.msgr.lastEdit(t); edit.ID != status.ID || !hasButton(edit.KB, "cancel_task:42") {
		t.Fatalf("ожидали подтверждение в статусном сообщении, получили %+v", edit)
	}
}

func TestWindowSubmitRejectsForgedPayload(t *testing.T) {
	e := newEnv()
	w := newTestWindow(t, e)
	_, err := w.Submit(context.Background(), SetupForm{Payload: "forged", Format: "fb2"})
	if !errors.Is(err, ErrInvalidPayload) {
		t.Fatalf("ожидали ErrInvalidPayload, получили %v", err)
	}
	if len(e.queue.inits) != 0 || len(e.msgr.sent) != 0 {
		t.Fatal("поддельный payload не должен приводить к действиям")
	}
}

func TestWindowSubmitShowsRemoteError(t *testing.T) {
	e := newEnv()
	w := newTestWindow(t, e)
	ctx := context.Background()
	_ = w.Start(ctx, testChat, testUser, testLink, testSite)
	token := payloadFrom(t, e.msgr.lastEdit(t).KB)
	e.queue.initErr = errRemote

	if _, err := w.Submit(ctx, SetupForm{Payload: token, Format: "fb2", Auth: AuthNone}); !errors.Is(err, errRemote) {
		t.Fatalf("ожидали ошибку сервиса, получили %v", err)
	}
	if got := e.msgr.lastEdit(t).Text; got != errRemote.Error() {
		t.Fatalf("ожидали текст ошибки в чате, получили %q", got)
	}
}

func TestWindowDisabled(t *testing.T) {
	e := newEnv()
	w := NewWindow(e.deps, nil, "")
	_ = w.Start(context.Background(), testChat, testUser, testLink, testSite)
	if got := e.msgr.lastSent(t).Text; got != ErrWebAppDisabled.Error() {
		t.Fatalf("ожидали ErrWebAppDisabled, получили %q", got)
	}
}

func TestWindowSaveAuth(t *testing.T) {
	e := newEnv()
	w := newTestWindow(t, e)
	ctx := context.Background()
	if err := w.StartAuth(ctx, testChat, testUser, 33, testSite); err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	token := payloadFrom(t, e.msgr.lastEdit(t).KB)
	if m := w.AuthForm(token); !m.Valid || m.Payload.Site != testSite {
		t.Fatalf("неожиданная модель формы: %+v", m)
	}
	if err := w.SaveAuth(ctx, AuthForm{Payload: token, Login: " me ", Password: "pw"}); err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if len(e.auths.auths) != 1 || e.auths.auths[0].Login != "me" || e.auths.auths[0].UserID != testUser {
		t.Fatalf("доступ не сохранён: %+v", e.auths.auths)
	}
	if !e.msgr.wasDeleted(33) {
		t.Fatal("сообщение с формой должно удаляться")
	}
	if err := w.SaveAuth(ctx, AuthForm{Payload: "forged", Login: "x", Password: "y"}); !errors.Is(err, ErrInvalidPayload) {
		t.Fatalf("ожидали ErrInvalidPayload, получили %v", err)
	}
}

func TestWindowSubmitOnce(t *testing.T) {
	e := newEnv()
	w := newTestWindow(t, e)
	ctx := context.Background()
	_ = w.Start(ctx, testChat, testUser, testLink, testSite)
	token := payloadFrom(t, e.msgr.lastEdit(t).KB)
	form := SetupForm{Payload: token, Format: "fb2", Auth: AuthNone}

	if _, err := w.Submit(ctx, form); err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	sent := len(e.msgr.sent)
	if _, err := w.Submit(ctx, form); !errors.Is(err, ErrInvalidPayload) {
		t.Fatalf("повторная отправка должна отклоняться, получили %v", err)
	}
	if len(e.queue.inits) != 1 || len(e.msgr.sent) != sent {
		t.Fatalf("повторная отправка не должна ставить задачу: inits=%d", len(e.queue.inits))
	}
}

func TestWindowSubmitChecksViewer(t *testing.T) {
	e := newEnv()
	w := newTestWindow(t, e)
	ctx := context.Background()
	_ = w.Start(ctx, testChat, testUser, testLink, testSite)
	token := payloadFrom(t, e.msgr.lastEdit(t).KB)

	form := SetupForm{Payload: token, Format: "fb2", Auth: AuthNone, ViewerID: testUser + 1}
	if _, err := w.Submit(ctx, form); !errors.Is(err, ErrInvalidPayload) {
		t.Fatalf("чужой пользователь не должен отправлять форму, получили %v", err)
	}
	form.ViewerID = testUser
	if _, err := w.Submit(ctx, form); err != nil {
		t.Fatalf("владелец формы должен пройти проверку: %v", err)
	}
}

func TestWindowSubmitValidatesPaging(t *testing.T) {
	cases := []struct {
		start, end int
		ok         bool
	}{
		{start: 2, end: 4, ok: true},
		{start: 3, end: 0, ok: true},
		{start: -1, end: -1, ok: true},
		{start: -5, end: 2},
		{start: 5, end: 2},
		{start: 1, end: -3},
	}
	for _, tc := range cases {
		e := newEnv()
		w := newTestWindow(t, e)
		ctx := context.Background()
		_ = w.Start(ctx, testChat, testUser, testLink, testSite)
		token := payloadFrom(t, e.msgr.lastEdit(t).KB)

		_, err := w.Submit(ctx, SetupForm{Payload: token, Format: "fb2", Auth: AuthNone, Start: tc.start, End: tc.end})
		if tc.ok && err != nil {
			t.Fatalf("%d:%d: неожиданная ошибка %v", tc.start, tc.end, err)
		}
		if !tc.ok {
			if !errors.Is(err, ErrInvalidNumber) {
				t.Fatalf("%d:%d: ожидали ErrInvalidNumber, получили %v", tc.start, tc.end, err)
			}
			if len(e.queue.inits) != 0 {
				t.Fatalf("%d:%d: задача не должна ставиться", tc.start, tc.end)
			}
			// неверный диапазон можно исправить и отправить ту же форму
			if _, err := w.Submit(ctx, SetupForm{Payload: token, Format: "fb2", Auth: AuthNone}); err != nil {
				t.Fatalf("%d:%d: исправленная форма должна пройти: %v", tc.start, tc.end, err)
			}
		}
	}
}

func TestWindowSaveAuthOnce(t *testing.T) {
	e := newEnv()
	w := newTestWindow(t, e)
	ctx := context.Background()
	_ = w.StartAuth(ctx, testChat, testUser, 33, testSite)
	token := payloadFrom(t, e.msgr.lastEdit(t).KB)

	if err := w.SaveAuth(ctx, AuthForm{Payload: token, Login: "me", Password: "pw", ViewerID: 99}); !errors.Is(err, ErrInvalidPayload) {
		t.Fatalf("чужой пользователь не должен сохранять доступ, получили %v", err)
	}
	if err := w.SaveAuth(ctx, AuthForm{Payload: token, Login: "me", Password: "pw"}); err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if err := w.SaveAuth(ctx, AuthForm{Payload: token, Login: "me", Password: "pw"}); !errors.Is(err, ErrInvalidPayload) {
		t.Fatalf("повторная отправка должна отклоняться, получили %v", err)
	}
	if len(e.auths.auths) != 1 {
		t.Fatalf("ожидали один доступ, получили %d", len(e.auths.auths))
	}
}
