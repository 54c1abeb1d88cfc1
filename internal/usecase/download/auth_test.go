package download

import (
	"context"
	"testing"

	"tg-download-bot/internal/domain"
)

type staticAuthSites []string

func (s staticAuthSites) GetSitesWithAuth(context.Context) []string { return s }

func TestAuthDialogInline(t *testing.T) {
	e := newEnv()
	a := NewAuthDialog(e.deps, staticAuthSites{testSite}, nil)
	ctx := context.Background()

	if err := a.Begin(ctx, testChat, testUser, ""); err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	menu := e.msgr.lastSent(t)
	if !hasButton(menu.KB, "auth:"+testSite) {
		t.Fatalf("ожидали кнопку сайта: %+v", menu.KB)
	}
	if err := a.SelectSite(ctx, testChat, testUser, menu.ID, testSite); err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	st, _ := e.states.Get(ctx, testChat, testUser)
	if st.Flow != domain.FlowAuth || st.Step != domain.StepAuthLogin || st.Site != testSite {
		t.Fatalf("неожиданное состояние: %+v", st)
	}

	_ = a.Input(ctx, testChat, testUser, 900, "reader@example.com", st)
	st, _ = e.states.Get(ctx, testChat, testUser)
	if st.Step != domain.StepAuthPass || st.Login != "reader@example.com" {
		t.Fatalf("ожидали шаг пароля, получили %+v", st)
	}
	_ = a.Input(ctx, testChat, testUser, 901, "pa ss", st)

	if len(e.auths.auths) != 1 || e.auths.auths[0].Password != "pa ss" {
		t.Fatalf("доступ не сохранён: %+v", e.auths.auths)
	}
	for _, id := range []int{900, 901, menu.ID} {
		if !e.msgr.wasDeleted(id) {
			t.Fatalf("ожидали удаление сообщения %d", id)
		}
	}
	if st, _ := e.states.Get(ctx, testChat, testUser); st.Active() {
		t.Fatal("состояние должно сброситься")
	}
}

func TestAuthDialogNoSites(t *testing.T) {
	e := newEnv()
	_ = NewAuthDialog(e.deps, staticAuthSites{}, nil).Begin(context.Background(), testChat, testUser, "")
	if got := e.msgr.lastSent(t).Text; got != ErrNoAuthSites.Error() {
		t.Fatalf("ожидали %q, получили %q", ErrNoAuthSites.Error(), got)
	}
}

func TestAuthDialogWindowMode(t *testing.T) {
	e := newEnv()
	u := e.users.users[testUser]
	u.InteractMode = domain.InteractWindowed
	e.users.users[testUser] = u
	a := NewAuthDialog(e.deps, staticAuthSites{testSite}, newTestWindow(t, e))

	if err := a.SelectSite(context.Background(), testChat, testUser, 40, testSite); err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	edit := e.msgr.lastEdit(t)
	if edit.ID != 40 || edit.KB[0][0].WebApp == "" {
		t.Fatalf("ожидали кнопку формы доступа, получили %+v", edit)
	}
}
