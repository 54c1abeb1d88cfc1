package download

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"tg-download-bot/internal/domain"
)

// AuthSites возвращает сайты, на которые можно добавить доступ.
type AuthSites interface {
	GetSitesWithAuth(ctx context.Context) []string
}

// AuthDialog добавляет доступы к сайтам: в чате или через мини-приложение.
type AuthDialog struct {
	d      *Deps
	sites  AuthSites
	window *Window
}

// NewAuthDialog создаёт диалог. window может быть nil.
func NewAuthDialog(d *Deps, sites AuthSites, window *Window) *AuthDialog {
	return &AuthDialog{d: d, sites: sites, window: window}
}

// Begin показывает список сайтов или сразу переходит к вводу для site.
func (a *AuthDialog) Begin(ctx context.Context, chatID, userID int64, site string) error {
	if _, err := a.d.loadUser(ctx, userID); err != nil {
		return a.d.notify(ctx, chatID, err)
	}
	if st, err := a.d.States.Get(ctx, chatID, userID); err == nil && st.Flow == domain.FlowAuth {
		a.cleanup(ctx, chatID, userID, st)
	}
	sites := a.sites.GetSitesWithAuth(ctx)
	if len(sites) == 0 {
		return a.d.notify(ctx, chatID, ErrNoAuthSites)
	}
	if site != "" {
		if !lo.Contains(sites, site) {
			return a.d.notify(ctx, chatID, ErrSiteNotSupported)
		}
		msgID, err := a.d.Messenger.Send(ctx, chatID, "Выбран сайт "+SiteDisplayName(site), nil)
		if err != nil {
			return err
		}
		return a.SelectSite(ctx, chatID, userID, msgID, site)
	}

	kb := make(domain.Keyboard, 0, len(sites)+1)
	for _, s := range sites {
		kb = append(kb, []domain.Button{button(SiteDisplayName(s), ActionAuthSite, s)})
	}
	kb = append(kb, []domain.Button{button("Отмена", ActionAuthCancel)})
	msgID, err := a.d.Messenger.Send(ctx, chatID, "Выберите сайт", kb)
	if err != nil {
		return err
	}
	return a.d.States.Set(ctx, chatID, userID, domain.ChatState{Flow: domain.FlowAuth, SetupMessageID: msgID})
}

// SelectSite начинает ввод логина или отдаёт кнопку мини-приложения.
func (a *AuthDialog) SelectSite(ctx context.Context, chatID, userID int64, msgID int, site string) error {
	user, err := a.d.loadUser(ctx, userID)
	if err != nil {
		return err
	}
	if !lo.Contains(a.sites.GetSitesWithAuth(ctx), site) {
		return ErrSiteNotSupported
	}
	if user.InteractMode == domain.InteractWindowed && a.window.Enabled() {
		if err := a.d.States.Clear(ctx, chatID, userID); err != nil {
			a.d.Log.Warn().Err(err).Msg("не удалось сбросить состояние")
		}
		return a.window.StartAuth(ctx, chatID, userID, msgID, site)
	}

	kb := domain.Keyboard{{button("Отмена", ActionAuthCancel)}}
	text := "Выбран сайт " + SiteDisplayName(site) + "\n\nВход через соцсети невозможен"
	if err := a.d.edit(ctx, chatID, msgID, text, kb); err != nil {
		return err
	}
	promptID, err := a.d.Messenger.Send(ctx, chatID, "Отправьте сообщением логин", nil)
	if err != nil {
		return err
	}
	return a.d.States.Set(ctx, chatID, userID, domain.ChatState{
		Flow:             domain.FlowAuth,
		Step:             domain.StepAuthLogin,
		SetupMessageID:   msgID,
		PromptMessageIDs: []int{promptID},
		Site:             site,
	})
}

// Input принимает логин и пароль. Сообщения с учётными данными удаляются сразу.
func (a *AuthDialog) Input(ctx context.Context, chatID, userID int64, msgID int, text string, st domain.ChatState) error {
	_ = a.d.remove(ctx, chatID, msgID)
	if st.Site == "" {
		return nil
	}
	if text == "" || strings.HasPrefix(text, "/") || strings.HasPrefix(text, "http:") || strings.HasPrefix(text, "https:") {
		return nil
	}
	for _, id := range st.PromptMessageIDs {
		_ = a.d.remove(ctx, chatID, id)
	}
	st.PromptMessageIDs = nil

	switch st.Step {
	case domain.StepAuthLogin:
		promptID, err := a.d.Messenger.Send(ctx, chatID, "Отправьте сообщением пароль", nil)
		if err != nil {
			return err
		}
		st.Login = strings.TrimSpace(text)
		st.Step = domain.StepAuthPass
		st.PromptMessageIDs = []int{promptID}
		return a.d.States.Set(ctx, chatID, userID, st)
	case domain.StepAuthPass:
		a.cleanup(ctx, chatID, userID, st)
		return a.save(ctx, chatID, userID, st.Site, st.Login, text)
	}
	return nil
}

// Cancel прерывает добавление доступа.
func (a *AuthDialog) Cancel(ctx context.Context, chatID, userID int64, msgID int) error {
	st, err := a.d.States.Get(ctx, chatID, userID)
	if err != nil {
		return err
	}
	if st.Flow == domain.FlowAuth {
		a.cleanup(ctx, chatID, userID, st)
	}
	return a.d.remove(ctx, chatID, msgID)
}

func (a *AuthDialog) cleanup(ctx context.Context, chatID, userID int64, st domain.ChatState) {
	for _, id := range append(st.PromptMessageIDs, st.SetupMessageID) {
		if id != 0 {
			_ = a.d.remove(ctx, chatID, id)
		}
	}
	if err := a.d.States.Clear(ctx, chatID, userID); err != nil {
		a.d.Log.Warn().Err(err).Msg("не удалось сбросить состояние")
	}
}

func (a *AuthDialog) save(ctx context.Context, chatID, userID int64, site, login, password string) error {
	return saveAuth(ctx, a.d, chatID, domain.UserAuth{UserID: userID, Site: site, Login: login, Password: password})
}

func saveAuth(ctx context.Context, d *Deps, chatID int64, auth domain.UserAuth) error {
	auth.CreatedOn = d.now().UTC()
	saved, err := d.Auths.SaveUserAuth(ctx, auth)
	if err != nil {
		_ = d.notify(ctx, chatID, storageErr(err))
		return storageErr(err)
	}
	d.Log.Info().Int64("user", auth.UserID).Str("site", auth.Site).Int64("auth", saved.ID).Msg("доступ сохранён")
	_, err = d.Messenger.Send(ctx, chatID, "Авторизация для сайта "+SiteDisplayName(auth.Site)+" сохранена", nil)
	return err
}

// AuthPayload передаётся в форму добавления доступа.
type AuthPayload struct {
	Nonce     string `json:"nonce"`
	UserID    int64  `json:"user_id"`
	ChatID    int64  `json:"chat_id"`
	MessageID int    `json:"message_id"`
	Site      string `json:"site"`
}

// AuthFormModel — содержимое формы доступа. Valid=false, если payload не расшифрован.
type AuthFormModel struct {
	Valid   bool         `json:"valid"`
	Payload *AuthPayload `json:"payload,omitempty"`
}

// AuthForm — ответ формы добавления доступа.
type AuthForm struct {
	Payload  string `json:"payload"`
	Login    string `json:"login"`
	Password string `json:"password"`
	// ViewerID — пользователь из проверенного init_data, 0 если проверка выключена.
	ViewerID int64  `json:"-"`
}

// StartAuth заменяет сообщение кнопкой формы доступа.
func (w *Window) StartAuth(ctx context.Context, chatID, userID int64, msgID int, site string) error {
	token, err := w.sealer.Seal(AuthPayload{
		Nonce:     uuid.NewString(),
		UserID:    userID,
		ChatID:    chatID,
		MessageID: msgID,
		Site:      site,
	})
	if err != nil {
		return err
	}
	kb := domain.Keyboard{
		{{Text: "Добавить", WebApp: w.link("auth/setup", token)}},
		{button("Отмена", ActionAuthCancel)},
	}
	return w.d.edit(ctx, chatID, msgID, "Добавление авторизации для сайта "+SiteDisplayName(site), kb)
}

// AuthForm расшифровывает payload формы доступа.
func (w *Window) AuthForm(token string) AuthFormModel {
	if !w.Enabled() {
		return AuthFormModel{}
	}
	var p AuthPayload
	if err := w.sealer.Open(token, &p); err != nil {
		return AuthFormModel{}
	}
	return AuthFormModel{Valid: true, Payload: &p}
}

// ErrEmptyCredentials — в форме не заполнен логин или пароль.
var ErrEmptyCredentials = errors.New("Укажите логин и пароль")

// SaveAuth сохраняет доступ из формы и убирает кнопку из чата.
func (w *Window) SaveAuth(ctx context.Context, form AuthForm) error {
	if !w.Enabled() {
		return ErrWebAppDisabled
	}
	var p AuthPayload
	if err := w.sealer.Open(form.Payload, &p); err != nil {
		return ErrInvalidPayload
	}
	if form.ViewerID != 0 && form.ViewerID != p.UserID {
		return ErrInvalidPayload
	}
	if strings.TrimSpace(form.Login) == "" || form.Password == "" {
		return ErrEmptyCredentials
	}
	if err := w.claim(ctx, p.Nonce); err != nil {
		return err
	}
	if err := saveAuth(ctx, w.d, p.ChatID, domain.UserAuth{
		UserID:   p.UserID,
		Site:     p.Site,
		Login:    strings.TrimSpace(form.Login),
		Password: form.Password,
	}); err != nil {
		return err
	}
	return w.d.remove(ctx, p.ChatID, p.MessageID)
}
