package download

import (
	"context"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"tg-download-bot/internal/domain"
)

// Sealer шифрует данные для мини-приложения.
type Sealer interface {
	Seal(v any) (string, error)
	Open(token string, v any) error
}

// AuthOption — доступ, который можно выбрать в форме.
type AuthOption struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// SetupPayload передаётся в мини-приложение в зашифрованном виде.
type SetupPayload struct {
	Nonce     string       `json:"nonce"`
	UserID    int64        `json:"user_id"`
	ChatID    int64        `json:"chat_id"`
	MessageID int          `json:"message_id"`
	Link      string       `json:"link"`
	Site      string       `json:"site"`
	Formats   []string     `json:"formats"`
	Auths     []AuthOption `json:"auths,omitempty"`
	UsePaging bool         `json:"use_paging"`
	UseAuth   bool         `json:"use_auth"`
	UseImages bool         `json:"use_images"`
	UseCover  bool         `json:"use_cover"`
	ForceAuth bool         `json:"force_auth"`
	Format    string       `json:"format"`
	Auth      string       `json:"auth"`
	Cover     bool         `json:"cover"`
	Images    bool         `json:"images"`
	Thumb     bool         `json:"thumb"`
	Hashtags  string       `json:"hashtags"`
	Proxy     string       `json:"proxy,omitempty"`
	Filename  string       `json:"filename,omitempty"`
}

// FormModel — содержимое формы загрузки. Valid=false, если payload не расшифрован.
type FormModel struct {
	Valid        bool              `json:"valid"`
	Payload      *SetupPayload     `json:"payload,omitempty"`
	NamedFormats map[string]string `json:"named_formats,omitempty"`
}

// SetupForm — ответ мини-приложения. Кому и куда отправлять, берётся только из Payload.
type SetupForm struct {
	Payload  string `json:"payload"`
	Format   string `json:"format"`
	Auth     string `json:"auth"`
	Start    int    `json:"start"`
	End      int    `json:"end"`
	Cover    bool   `json:"cover"`
	Images   bool   `json:"images"`
	Thumb    bool   `json:"thumb"`
	Hashtags string `json:"hashtags"`
	Proxy    string `json:"proxy"`
	Filename string `json:"filename"`
	// ViewerID — пользователь из проверенного init_data, 0 если проверка выключена.
	ViewerID int64  `json:"-"`
}

// Window ведёт настройку загрузки в мини-приложении. Строк в БД не создаёт.
type Window struct {
	d      *Deps
	sealer Sealer
	appURL string
}

// NewWindow создаёт контроллер. appURL — базовый адрес мини-приложения.
func NewWindow(d *Deps, sealer Sealer, appURL string) *Window {
	if appURL != "" && !strings.HasSuffix(appURL, "/") {
		appURL += "/"
	}
	return &Window{d: d, sealer: sealer, appURL: appURL}
}

// Enabled сообщает, настроено ли мини-приложение.
func (w *Window) Enabled() bool {
	return w != nil && w.sealer != nil && w.appURL != ""
}

func (w *Window) link(path, token string) string {
	return w.appURL + path + "?payload=" + url.QueryEscape(token)
}

// Start отправляет кнопку мини-приложения для ссылки.
func (w *Window) Start(ctx context.Context, chatID, userID int64, link, site string) error {
	if !w.Enabled() {
		return w.d.notify(ctx, chatID, ErrWebAppDisabled)
	}
	user, err := w.d.loadUser(ctx, userID)
	if err != nil {
		return w.d.notify(ctx, chatID, err)
	}
	sd, err := w.d.siteData(ctx, link, site)
	if err != nil {
		return w.d.notify(ctx, chatID, err)
	}
	defaults, err := w.d.defaults(ctx, user, site)
	if err != nil {
		return w.d.notify(ctx, chatID, err)
	}
	var auths []domain.UserAuth
	if sd.Has(domain.ParamAuth) {
		if auths, err = w.d.Auths.ListUserAuthsForSite(ctx, userID, site); err != nil {
			return w.d.notify(ctx, chatID, storageErr(err))
		}
	}

	msgID, err := w.d.Messenger.Send(ctx, chatID, "Подготовка запроса...", nil)
	if err != nil {
		return err
	}
	row := newRow(chatID, msgID, link, site, sd, defaults, auths, w.d.Catalog.IsDemo(site))
	payload := SetupPayload{
		Nonce:     uuid.NewString(),
		UserID:    userID,
		ChatID:    chatID,
		MessageID: msgID,
		Link:      link,
		Site:      site,
		Formats:   siteFormats(sd),
		Auths:     authOptions(auths, w.d.Catalog.IsDemo(site), row.ForceAuth),
		UsePaging: row.UsePaging,
		UseAuth:   row.UseAuth,
		UseImages: row.UseImages,
		UseCover:  row.UseCover,
		ForceAuth: row.ForceAuth,
		Format:    row.Format,
		Auth:      row.Auth,
		Cover:     row.Cover,
		Images:    row.Images,
		Thumb:     row.Thumb,
		Hashtags:  row.Hashtags,
		Proxy:     row.Proxy,
		Filename:  row.Filename,
	}
	token, err := w.sealer.Seal(payload)
	if err != nil {
		return err
	}
	kb := domain.Keyboard{
		{{Text: "Настроить и скачать", WebApp: w.link("download/setup", token)}},
		{button("Отмена", ActionWindowCancel)},
	}
	text := "Сайт: " + SiteDisplayName(site) + "\nСсылка: " + link
	return w.d.edit(ctx, chatID, msgID, text, kb)
}

func authOptions(auths []domain.UserAuth, demo, force bool) []AuthOption {
	var out []AuthOption
	if !force {
		out = append(out, AuthOption{ID: AuthNone, Name: "Без авторизации"})
	}
	if demo {
		out = append(out, AuthOption{ID: AuthAnon, Name: "Демо-доступ"})
	}
	for _, a := range auths {
		out = append(out, AuthOption{ID: strconv.FormatInt(a.ID, 10), Name: a.DisplayName()})
	}
	return out
}

// Form расшифровывает payload для страницы загрузки.
func (w *Window) Form(token string) FormModel {
	if !w.Enabled() {
		return FormModel{}
	}
	var p SetupPayload
	if err := w.sealer.Open(token, &p); err != nil {
		return FormModel{}
	}
	named := make(map[string]string, len(p.Formats))
	for _, f := range p.Formats {
		named[f] = w.d.Catalog.FormatName(f)
	}
	return FormModel{Valid: true, Payload: &p, NamedFormats: named}
}

// Submit ставит задачу из формы. Статус задачи ведётся в новом сообщении,
// сообщение с кнопкой мини-приложения удаляется.
func (w *Window) Submit(ctx context.Context, form SetupForm) (domain.TaskID, error) {
	if !w.Enabled() {
		return "", ErrWebAppDisabled
	}
	var p SetupPayload
	if err := w.sealer.Open(form.Payload, &p); err != nil {
		return "", ErrInvalidPayload
	}
	if form.ViewerID != 0 && form.ViewerID != p.UserID {
		return "", ErrInvalidPayload
	}
	if !lo.Contains(p.Formats, form.Format) {
		return "", ErrFormatNotAllowed
	}
	auth := form.Auth
	if !p.UseAuth {
		auth = AuthNone
	} else if !lo.ContainsBy(p.Auths, func(o AuthOption) bool { return o.ID == auth }) {
		return "", ErrAuthNotFound
	}

	if form.Proxy != "" {
		if _, err := ValidateProxy(form.Proxy); err != nil {
			return "", err
		}
	}
	if p.UsePaging {
		if err := checkPaging(form.Start, form.End); err != nil {
			return "", err
		}
	}
	if err := w.claim(ctx, p.Nonce); err != nil {
		return "", err
	}

	statusID, err := w.d.Messenger.Send(ctx, p.ChatID, "Отправка задачи...", nil)
	if err != nil {
		return "", err
	}
	params := Params{
		UserID:    p.UserID,
		ChatID:    p.ChatID,
		MessageID: statusID,
		Link:      p.Link,
		Site:      p.Site,
		Auth:      auth,
		Format:    form.Format,
		Images:    form.Images && p.UseImages,
		Cover:     form.Cover && p.UseCover,
		Thumb:     form.Thumb,
		Hashtags:  form.Hashtags,
		Proxy:     form.Proxy,
		Filename:  form.Filename,
	}
	if p.UsePaging {
		params.Start, params.End = form.Start, form.End
	}
	taskID, err := w.d.submit(ctx, "window", params)
	_ = w.d.remove(ctx, p.ChatID, p.MessageID)
	if err != nil {
		if editErr := w.d.edit(ctx, p.ChatID, statusID, UserMessage(err), nil); editErr != nil {
			w.d.Log.Warn().Err(editErr).Msg("не удалось показать ошибку")
		}
		return "", err
	}
	return taskID, w.d.edit(ctx, p.ChatID, statusID, queuedText(taskID), CancelTaskKeyboard(taskID))
}

// nonceTTL не меньше срока жизни payload.
const nonceTTL = 24 * time.Hour

// claim отмечает payload использованным. Повторная отправка той же формы
// отклоняется как недействительный payload.
func (w *Window) claim(ctx context.Context, nonce string) error {
	if nonce == "" {
		return ErrInvalidPayload
	}
	ok, err := w.d.Cache.SetNX(ctx, "webapp_nonce:"+nonce, []byte{1}, nonceTTL)
	if err != nil {
		return storageErr(err)
	}
	if !ok {
		w.d.Log.Warn().Str("nonce", nonce).Msg("повторная отправка формы")
		return ErrInvalidPayload
	}
	return nil
}

// Cancel убирает сообщение с кнопкой мини-приложения.
func (w *Window) Cancel(ctx context.Context, chatID int64, msgID int) error {
	return w.d.remove(ctx, chatID, msgID)
}
