package download

import (
	"context"
	"fmt"
	"strings"

	"github.com/samber/lo"

	"tg-download-bot/internal/domain"
)

// Settings редактирует настройки по умолчанию: аккаунта целиком или отдельного сайта.
type Settings struct {
	d *Deps
}

// NewSettings создаёт редактор настроек.
func NewSettings(d *Deps) *Settings {
	return &Settings{d: d}
}

// scopeState хранит загруженные настройки в нужной области.
type scopeState struct {
	user domain.User
	site string
	cfg  *domain.SiteConfig
}

func (s scopeState) resolved() domain.Defaults {
	return domain.Resolve(s.user, s.cfg)
}

func (s scopeState) flow() domain.Flow {
	if s.site == "" {
		return domain.FlowAccountSetup
	}
	return domain.FlowSiteSetup
}

func (s *Settings) load(ctx context.Context, userID int64, site string) (scopeState, error) {
	user, err := s.d.loadUser(ctx, userID)
	if err != nil {
		return scopeState{}, err
	}
	st := scopeState{user: user, site: site}
	if site == "" {
		return st, nil
	}
	cfg, err := s.d.Sites.GetSiteConfig(ctx, userID, site)
	if err != nil {
		return scopeState{}, storageErr(err)
	}
	if cfg == nil {
		cfg = &domain.SiteConfig{UserID: userID, Site: site}
	}
	st.cfg = cfg
	return st, nil
}

func (s *Settings) save(ctx context.Context, st scopeState) error {
	var err error
	if st.site == "" {
		err = s.d.Users.SaveUser(ctx, st.user)
	} else {
		err = s.d.Sites.SaveSiteConfig(ctx, *st.cfg)
	}
	if err != nil {
		return storageErr(err)
	}
	return nil
}

// Open показывает настройки аккаунта или сайта (site != "").
func (s *Settings) Open(ctx context.Context, chatID, userID int64, site string) error {
	st, err := s.load(ctx, userID, site)
	if err != nil {
		return s.d.notify(ctx, chatID, err)
	}
	if site != "" {
		if _, ok := s.d.Queue.GetSiteData(ctx, site); !ok {
			return s.d.notify(ctx, chatID, ErrQueueUnavailable)
		}
	}
	_, err = s.d.Messenger.Send(ctx, chatID, settingsText(st, s.d.Catalog), settingsKeyboard(st, s.d.Catalog))
	return err
}

// Callback обрабатывает кнопку меню настроек.
func (s *Settings) Callback(ctx context.Context, chatID, userID int64, msgID int, cb Callback) error {
	if cb.Action == ActionSetClose {
		return s.d.remove(ctx, chatID, msgID)
	}
	st, err := s.load(ctx, userID, cb.Site)
	if err != nil {
		return err
	}
	d := st.resolved()

	switch cb.Action {
	case ActionSetBack:
		return s.render(ctx, chatID, msgID, st)
	case ActionSetFormatMenu:
		formats, err := s.formats(ctx, st.site)
		if err != nil {
			return err
		}
		kb := make(domain.Keyboard, 0, len(formats)+1)
		for _, f := range formats {
			kb = append(kb, []domain.Button{settingsButton(check(f == d.Format)+" "+s.d.Catalog.FormatName(f), ActionSetFormat, st.site, f)})
		}
		kb = append(kb, []domain.Button{settingsButton("Назад", ActionSetBack, st.site)})
		return s.d.edit(ctx, chatID, msgID, "Выберите формат по умолчанию", kb)
	case ActionSetFilename:
		return s.prompt(ctx, chatID, userID, msgID, st, domain.StepFilename,
			"Отправьте шаблон имени файла или «-», чтобы использовать имя по умолчанию")
	case ActionSetProxy:
		if st.site == "" {
			return ErrUnknownCallback
		}
		return s.prompt(ctx, chatID, userID, msgID, st, domain.StepProxy,
			"Отправьте прокси в формате socks5://host:port/ или «-», чтобы убрать его")
	case ActionSetReset:
		if st.site == "" {
			return ErrUnknownCallback
		}
		if err := s.d.Sites.DeleteSiteConfig(ctx, userID, st.site); err != nil {
			return storageErr(err)
		}
		st.cfg = &domain.SiteConfig{UserID: userID, Site: st.site}
		return s.render(ctx, chatID, msgID, st)
	}

	if err := s.apply(ctx, &st, d, cb); err != nil {
		return err
	}
	if err := s.save(ctx, st); err != nil {
		return err
	}
	return s.render(ctx, chatID, msgID, st)
}

// apply меняет одно значение в выбранной области.
func (s *Settings) apply(ctx context.Context, st *scopeState, d domain.Defaults, cb Callback) error {
	switch cb.Action {
	case ActionSetFormat:
		formats, err := s.formats(ctx, st.site)
		if err != nil {
			return err
		}
		if !lo.Contains(formats, cb.Arg) {
			return ErrFormatNotAllowed
		}
		st.setFormat(cb.Arg)
	case ActionSetCover:
		st.setBool(func(u *domain.User) *bool { return &u.Cover }, func(c *domain.SiteConfig) **bool { return &c.Cover }, !d.Cover)
	case ActionSetImages:
		st.setBool(func(u *domain.User) *bool { return &u.Images }, func(c *domain.SiteConfig) **bool { return &c.Images }, !d.Images)
	case ActionSetThumb:
		st.setBool(func(u *domain.User) *bool { return &u.Thumb }, func(c *domain.SiteConfig) **bool { return &c.Thumb }, !d.Thumb)
	case ActionSetHashtags:
		next := domain.NextHashtags(d.Hashtags)
		if st.site == "" {
			st.user.Hashtags = next
		} else {
			st.cfg.Hashtags = &next
		}
	case ActionSetMode:
		if st.site != "" {
			return ErrUnknownCallback
		}
		if st.user.InteractMode == domain.InteractWindowed {
			st.user.InteractMode = domain.InteractInline
		} else {
			st.user.InteractMode = domain.InteractWindowed
		}
	default:
		return ErrUnknownCallback
	}
	return nil
}

func (s *scopeState) setFormat(f string) {
	if s.site == "" {
		s.user.Format = f
		return
	}
	s.cfg.Format = &f
}

func (s *scopeState) setBool(user func(*domain.User) *bool, site func(*domain.SiteConfig) **bool, v bool) {
	if s.site == "" {
		*user(&s.user) = v
		return
	}
	*site(s.cfg) = &v
}

// formats — форматы для выбора: все известные для аккаунта, поддерживаемые сайтом для сайта.
func (s *Settings) formats(ctx context.Context, site string) ([]string, error) {
	if site == "" {
		return s.d.Catalog.FormatCodes(), nil
	}
	sd, ok := s.d.Queue.GetSiteData(ctx, site)
	if !ok {
		return nil, ErrQueueUnavailable
	}
	return siteFormats(sd), nil
}

func (s *Settings) prompt(ctx context.Context, chatID, userID int64, msgID int, st scopeState, step domain.Step, text string) error {
	promptID, err := s.d.Messenger.Send(ctx, chatID, text, inputCancelKeyboard())
	if err != nil {
		return err
	}
	return s.d.States.Set(ctx, chatID, userID, domain.ChatState{
		Flow:             st.flow(),
		Step:             step,
		SetupMessageID:   msgID,
		PromptMessageIDs: []int{promptID},
		Site:             st.site,
	})
}

// Input принимает шаблон имени файла или прокси сайта.
func (s *Settings) Input(ctx context.Context, chatID, userID int64, msgID int, text string, cs domain.ChatState) error {
	cs.PromptMessageIDs = append(cs.PromptMessageIDs, msgID)
	st, err := s.load(ctx, userID, cs.Site)
	if err != nil {
		return s.d.notify(ctx, chatID, err)
	}
	text = strings.TrimSpace(text)
	reset := text == "-"

	switch cs.Step {
	case domain.StepFilename:
		name := SanitizeFilename(text)
		if reset {
			name = ""
		}
		if st.site == "" {
			st.user.Filename = name
		} else {
			st.cfg.Filename = &name
		}
	case domain.StepProxy:
		proxy := ""
		if !reset {
			if proxy, err = ValidateProxy(text); err != nil {
				promptID, sendErr := s.d.Messenger.Send(ctx, chatID, UserMessage(err)+"\nОтправьте прокси ещё раз", inputCancelKeyboard())
				if sendErr != nil {
					return sendErr
				}
				cs.PromptMessageIDs = append(cs.PromptMessageIDs, promptID)
				return s.d.States.Set(ctx, chatID, userID, cs)
			}
		}
		if st.site == "" {
			return nil
		}
		st.cfg.Proxy = &proxy
	default:
		return nil
	}

	if err := s.save(ctx, st); err != nil {
		return s.d.notify(ctx, chatID, err)
	}
	for _, id := range cs.PromptMessageIDs {
		_ = s.d.remove(ctx, chatID, id)
	}
	if err := s.d.States.Clear(ctx, chatID, userID); err != nil {
		s.d.Log.Warn().Err(err).Msg("не удалось сбросить состояние")
	}
	return s.render(ctx, chatID, cs.SetupMessageID, st)
}

func (s *Settings) render(ctx context.Context, chatID int64, msgID int, st scopeState) error {
	return s.d.edit(ctx, chatID, msgID, settingsText(st, s.d.Catalog), settingsKeyboard(st, s.d.Catalog))
}

func settingsButton(text string, a Action, site string, arg ...string) domain.Button {
	cb := Callback{Action: a, Site: site}
	if len(arg) > 0 {
		cb.Arg = arg[0]
	}
	return domain.Button{Text: text, Data: cb.Data()}
}

func settingsText(st scopeState, catalog Catalog) string {
	d := st.resolved()
	var b strings.Builder
	if st.site == "" {
		b.WriteString("Настройки аккаунта\n\n")
		fmt.Fprintf(&b, "Режим: %s\n", st.user.InteractMode)
	} else {
		fmt.Fprintf(&b, "Настройки сайта %s\n\n", SiteDisplayName(st.site))
	}
	fmt.Fprintf(&b, "Формат: %s\n", catalog.FormatName(d.Format))
	fmt.Fprintf(&b, "Хэштеги: %s\n", hashtagsName(d.Hashtags))
	if d.Filename != "" {
		fmt.Fprintf(&b, "Имя файла: %s\n", d.Filename)
	}
	if st.site != "" && d.Proxy != "" {
		fmt.Fprintf(&b, "Прокси: %s\n", d.Proxy)
	}
	return strings.TrimRight(b.String(), "\n")
}

func settingsKeyboard(st scopeState, catalog Catalog) domain.Keyboard {
	d := st.resolved()
	site := st.site
	kb := domain.Keyboard{
		{settingsButton("Формат: "+catalog.FormatName(d.Format), ActionSetFormatMenu, site)},
		{
			settingsButton(check(d.Cover)+" Обложка", ActionSetCover, site),
			settingsButton(check(d.Images)+" Картинки", ActionSetImages, site),
			settingsButton(check(d.Thumb)+" Миниатюра", ActionSetThumb, site),
		},
		{settingsButton("Хэштеги: "+hashtagsName(d.Hashtags), ActionSetHashtags, site)},
		{settingsButton("Имя файла", ActionSetFilename, site)},
	}
	if site == "" {
		kb = append(kb, []domain.Button{settingsButton("Режим: "+st.user.InteractMode.String(), ActionSetMode, site)})
	} else {
		kb = append(kb,
			[]domain.Button{settingsButton("Прокси", ActionSetProxy, site)},
			[]domain.Button{settingsButton("Сбросить настройки сайта", ActionSetReset, site)},
		)
	}
	return append(kb, []domain.Button{settingsButton("Закрыть", ActionSetClose, site)})
}
