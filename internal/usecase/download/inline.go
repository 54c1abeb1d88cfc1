package download

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/samber/lo"

	"tg-download-bot/internal/domain"
)

// Inline ведёт настройку загрузки кнопками в чате. Каждому сообщению настройки
// соответствует ровно одна строка InlineDownloadRequest.
type Inline struct {
	d *Deps
}

// NewInline создаёт контроллер.
func NewInline(d *Deps) *Inline {
	return &Inline{d: d}
}

// Start создаёт сообщение настройки для ссылки. Ошибки для пользователя
// отправляются в чат, наружу возвращаются только сбои отправки.
func (c *Inline) Start(ctx context.Context, chatID, userID int64, link, site string) error {
	user, err := c.d.loadUser(ctx, userID)
	if err != nil {
		return c.d.notify(ctx, chatID, err)
	}
	sd, err := c.d.siteData(ctx, link, site)
	if err != nil {
		return c.d.notify(ctx, chatID, err)
	}
	defaults, err := c.d.defaults(ctx, user, site)
	if err != nil {
		return c.d.notify(ctx, chatID, err)
	}
	auths, err := c.auths(ctx, userID, site, sd)
	if err != nil {
		return c.d.notify(ctx, chatID, err)
	}

	msgID, err := c.d.Messenger.Send(ctx, chatID, "Подготовка запроса...", nil)
	if err != nil {
		return err
	}
	row := newRow(chatID, msgID, link, site, sd, defaults, auths, c.d.Catalog.IsDemo(site))
	row.UserID = userID
	row.Created = c.d.now().UTC()
	if err := c.d.Requests.Save(ctx, &row); err != nil {
		c.d.Log.Error().Err(err).Int64("user", userID).Msg("не удалось сохранить запрос")
		return c.d.edit(ctx, chatID, msgID, ErrStorage.Error(), nil)
	}
	return c.render(ctx, setupView{Row: row, Auths: auths, Catalog: c.d.Catalog})
}

// newRow собирает строку по возможностям сайта и итоговым настройкам.
func newRow(chatID int64, msgID int, link, site string, sd domain.SiteData, d domain.Defaults, auths []domain.UserAuth, demo bool) domain.InlineDownloadRequest {
	row := domain.InlineDownloadRequest{
		ChatID:      chatID,
		MessageID:   msgID,
		Link:        link,
		Site:        site,
		UsePaging:   sd.Has(domain.ParamPaging),
		UseAuth:     sd.Has(domain.ParamAuth),
		UseImages:   sd.Has(domain.ParamImages),
		UseCover:    sd.Has(domain.ParamCover),
		ForceImages: sd.Has(domain.ParamForceImages),
		ForceAuth:   sd.Has(domain.ParamForceAuth),
		Format:      d.Format,
		Images:      d.Images,
		Cover:       d.Cover,
		Thumb:       d.Thumb,
		Proxy:       d.Proxy,
		Hashtags:    d.Hashtags,
		Filename:    d.Filename,
		Auth:        AuthNone,
	}
	if formats := siteFormats(sd); len(formats) > 0 && !lo.Contains(formats, row.Format) {
		row.Format = formats[0]
	}
	if row.ForceImages {
		row.Images = true
	}
	if row.Hashtags == "" {
		row.Hashtags = domain.HashtagsNo
	}
	if row.UseAuth {
		row.Auth = pickAuth(d.Auth, auths, demo, row.ForceAuth)
	}
	return row
}

// pickAuth выбирает доступ по умолчанию: сохранённый в настройках, иначе первый доступный.
func pickAuth(preferred string, auths []domain.UserAuth, demo, force bool) string {
	ids := lo.Map(auths, func(a domain.UserAuth, _ int) string { return strconv.FormatInt(a.ID, 10) })
	switch {
	case preferred == AuthAnon && demo, lo.Contains(ids, preferred):
		return preferred
	case preferred == AuthNone && !force:
		return AuthNone
	case len(ids) > 0 && force:
		return ids[0]
	case demo && force:
		return AuthAnon
	}
	return AuthNone
}

func (c *Inline) auths(ctx context.Context, userID int64, site string, sd domain.SiteData) ([]domain.UserAuth, error) {
	if !sd.Has(domain.ParamAuth) {
		return nil, nil
	}
	auths, err := c.d.Auths.ListUserAuthsForSite(ctx, userID, site)
	if err != nil {
		return nil, storageErr(err)
	}
	return auths, nil
}

// Callback обрабатывает кнопку под сообщением настройки. Ошибка предназначена
// для всплывающего ответа на нажатие.
func (c *Inline) Callback(ctx context.Context, chatID, userID int64, msgID int, cb Callback) error {
	if cb.Action == ActionInputCancel {
		return c.cancelInput(ctx, chatID, userID)
	}
	id := domain.RequestIdentity{UserID: userID, ChatID: chatID, MessageID: msgID}
	row, err := c.d.Requests.GetByIdentity(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		// запрос устарел или сообщение настраивает другой участник чата
		return ErrRequestExpired
	}
	if err != nil {
		return storageErr(err)
	}

	switch cb.Action {
	case ActionCancel:
		if err := c.d.Requests.Delete(ctx, id); err != nil {
			return storageErr(err)
		}
		return c.d.remove(ctx, chatID, msgID)
	case ActionDownload:
		return c.submit(ctx, row)
	case ActionDownloadLast:
		row.Start, row.End = -1, -1
		return c.submit(ctx, row)
	case ActionFormatMenu:
		sd, ok := c.d.Queue.GetSiteData(ctx, row.Site)
		if !ok {
			return ErrQueueUnavailable
		}
		return c.d.edit(ctx, chatID, msgID, "Выберите формат", formatKeyboard(row, siteFormats(sd), c.d.Catalog))
	case ActionAuthMenu:
		auths, err := c.d.Auths.ListUserAuthsForSite(ctx, userID, row.Site)
		if err != nil {
			return storageErr(err)
		}
		return c.d.edit(ctx, chatID, msgID, "Выберите доступ", authKeyboard(row, auths, c.d.Catalog.IsDemo(row.Site)))
	case ActionPaging:
		return c.prompt(ctx, row, domain.StepPagingStart, "Отправьте номер первой главы (0, чтобы начать с первой)")
	case ActionProxy:
		return c.prompt(ctx, row, domain.StepProxy, "Отправьте прокси в формате socks5://host:port/")
	case ActionBack:
		return c.renderRow(ctx, row, "")
	}

	if err := c.mutate(ctx, &row, cb); err != nil {
		return err
	}
	if err := c.d.Requests.Save(ctx, &row); err != nil {
		return storageErr(err)
	}
	return c.renderRow(ctx, row, "")
}

// mutate применяет одношаговое изменение к строке.
func (c *Inline) mutate(ctx context.Context, row *domain.InlineDownloadRequest, cb Callback) error {
	switch cb.Action {
	case ActionCover:
		row.Cover = !row.Cover
	case ActionThumb:
		row.Thumb = !row.Thumb
	case ActionImages:
		row.Images = !row.Images || row.ForceImages
	case ActionHashtags:
		row.Hashtags = domain.NextHashtags(row.Hashtags)
	case ActionProxyClear:
		row.Proxy = ""
	case ActionAdvanced:
		row.SetupMode = domain.SetupAdvanced
	case ActionBase:
		row.SetupMode = domain.SetupBase
	case ActionFormat:
		sd, ok := c.d.Queue.GetSiteData(ctx, row.Site)
		if !ok {
			return ErrQueueUnavailable
		}
		if !lo.Contains(siteFormats(sd), cb.Arg) {
			return ErrFormatNotAllowed
		}
		row.Format = cb.Arg
	case ActionAuth:
		if err := c.checkAuth(ctx, *row, cb.Arg); err != nil {
			return err
		}
		row.Auth = cb.Arg
	default:
		return ErrUnknownCallback
	}
	return nil
}

func (c *Inline) checkAuth(ctx context.Context, row domain.InlineDownloadRequest, auth string) error {
	switch auth {
	case AuthNone:
		if row.ForceAuth {
			return ErrAuthRequired
		}
		return nil
	case AuthAnon:
		if !c.d.Catalog.IsDemo(row.Site) {
			return ErrAuthNotFound
		}
		return nil
	}
	id, err := strconv.ParseInt(auth, 10, 64)
	if err != nil {
		return ErrAuthNotFound
	}
	a, err := c.d.Auths.GetUserAuth(ctx, row.UserID, id)
	if errors.Is(err, domain.ErrNotFound) || (err == nil && a.Site != row.Site) {
		return ErrAuthNotFound
	}
	if err != nil {
		return storageErr(err)
	}
	return nil
}

// submit отправляет задачу. При ошибке строка не меняется, а текст ошибки
// показывается над клавиатурой настройки.
func (c *Inline) submit(ctx context.Context, row domain.InlineDownloadRequest) error {
	if row.ForceAuth && (row.Auth == AuthNone || row.Auth == "") {
		return c.renderRow(ctx, row, ErrAuthRequired.Error())
	}
	taskID, err := c.d.submit(ctx, "inline", paramsFromRow(row))
	if err != nil {
		return c.renderRow(ctx, row, UserMessage(err))
	}
	if err := c.d.Requests.Delete(ctx, row.Identity()); err != nil {
		c.d.Log.Error().Err(err).Str("task", string(taskID)).Msg("не удалось удалить отправленный запрос")
	}
	return c.d.edit(ctx, row.ChatID, row.MessageID, queuedText(taskID), CancelTaskKeyboard(taskID))
}

func paramsFromRow(row domain.InlineDownloadRequest) Params {
	p := Params{
		UserID:    row.UserID,
		ChatID:    row.ChatID,
		MessageID: row.MessageID,
		Link:      row.Link,
		Site:      row.Site,
		Auth:      row.Auth,
		Start:     row.Start,
		End:       row.End,
		Format:    row.Format,
		Images:    row.Images || row.ForceImages,
		Cover:     row.Cover,
		Thumb:     row.Thumb,
		Proxy:     row.Proxy,
		Hashtags:  row.Hashtags,
		Filename:  row.Filename,
	}
	if !row.UseAuth {
		p.Auth = AuthNone
	}
	return p
}

func (c *Inline) renderRow(ctx context.Context, row domain.InlineDownloadRequest, notice string) error {
	var auths []domain.UserAuth
	if row.UseAuth {
		var err error
		if auths, err = c.d.Auths.ListUserAuthsForSite(ctx, row.UserID, row.Site); err != nil {
			c.d.Log.Warn().Err(err).Msg("не удалось получить доступы")
		}
	}
	return c.render(ctx, setupView{Row: row, Auths: auths, Catalog: c.d.Catalog, Notice: notice})
}

func (c *Inline) render(ctx context.Context, v setupView) error {
	return c.d.edit(ctx, v.Row.ChatID, v.Row.MessageID, v.text(), v.keyboard())
}

// prompt просит ввести значение текстом и запоминает шаг диалога.
func (c *Inline) prompt(ctx context.Context, row domain.InlineDownloadRequest, step domain.Step, text string) error {
	msgID, err := c.d.Messenger.Send(ctx, row.ChatID, text, inputCancelKeyboard())
	if err != nil {
		return err
	}
	return c.d.States.Set(ctx, row.ChatID, row.UserID, domain.ChatState{
		Flow:             domain.FlowDownloadSetup,
		Step:             step,
		SetupMessageID:   row.MessageID,
		PromptMessageIDs: []int{msgID},
	})
}

// Input обрабатывает текст на шаге ввода глав или прокси.
func (c *Inline) Input(ctx context.Context, chatID, userID int64, msgID int, text string, st domain.ChatState) error {
	st.PromptMessageIDs = append(st.PromptMessageIDs, msgID)
	id := domain.RequestIdentity{UserID: userID, ChatID: chatID, MessageID: st.SetupMessageID}
	row, err := c.d.Requests.GetByIdentity(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		c.finishInput(ctx, chatID, userID, st)
		return c.d.notify(ctx, chatID, ErrRequestExpired)
	}
	if err != nil {
		return c.d.notify(ctx, chatID, storageErr(err))
	}
	text = strings.TrimSpace(text)

	switch st.Step {
	case domain.StepPagingStart:
		n, err := strconv.Atoi(text)
		if err != nil || n < 0 {
			return c.reprompt(ctx, chatID, userID, st, ErrInvalidNumber)
		}
		st.Start = n
		st.Step = domain.StepPagingEnd
		return c.reprompt(ctx, chatID, userID, st, nil)
	case domain.StepPagingEnd:
		n, err := strconv.Atoi(text)
		if err != nil || checkPaging(st.Start, n) != nil {
			return c.reprompt(ctx, chatID, userID, st, ErrInvalidNumber)
		}
		row.Start, row.End = st.Start, n
	case domain.StepProxy:
		proxy, err := ValidateProxy(text)
		if err != nil {
			return c.reprompt(ctx, chatID, userID, st, err)
		}
		row.Proxy = proxy
	default:
		c.finishInput(ctx, chatID, userID, st)
		return nil
	}

	if err := c.d.Requests.Save(ctx, &row); err != nil {
		return c.d.notify(ctx, chatID, storageErr(err))
	}
	c.finishInput(ctx, chatID, userID, st)
	return c.renderRow(ctx, row, "")
}

// reprompt повторяет вопрос текущего шага, сохраняя состояние.
func (c *Inline) reprompt(ctx context.Context, chatID, userID int64, st domain.ChatState, cause error) error {
	text := "Отправьте номер последней главы (0, чтобы скачать до конца)"
	switch st.Step {
	case domain.StepPagingStart:
		text = "Отправьте номер первой главы (0, чтобы начать с первой)"
	case domain.StepProxy:
		text = "Отправьте прокси в формате socks5://host:port/"
	}
	if cause != nil {
		text = UserMessage(cause) + "\n" + text
	}
	msgID, err := c.d.Messenger.Send(ctx, chatID, text, inputCancelKeyboard())
	if err != nil {
		return err
	}
	st.PromptMessageIDs = append(st.PromptMessageIDs, msgID)
	return c.d.States.Set(ctx, chatID, userID, st)
}

func (c *Inline) cancelInput(ctx context.Context, chatID, userID int64) error {
	st, err := c.d.States.Get(ctx, chatID, userID)
	if err != nil {
		return err
	}
	c.finishInput(ctx, chatID, userID, st)
	return nil
}

// finishInput убирает служебные сообщения и сбрасывает шаг ввода.
func (c *Inline) finishInput(ctx context.Context, chatID, userID int64, st domain.ChatState) {
	for _, id := range st.PromptMessageIDs {
		_ = c.d.remove(ctx, chatID, id)
	}
	if err := c.d.States.Clear(ctx, chatID, userID); err != nil {
		c.d.Log.Warn().Err(err).Int64("chat", chatID).Msg("не удалось сбросить состояние")
	}
}
