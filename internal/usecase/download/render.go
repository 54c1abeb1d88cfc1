package download

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/samber/lo"

	"tg-download-bot/internal/domain"
)

const (
	checked   = "🗹"
	unchecked = "☐"
)

func check(v bool) string {
	if v {
		return checked
	}
	return unchecked
}

// siteFormats возвращает коды форматов сайта в стабильном порядке.
func siteFormats(sd domain.SiteData) []string {
	codes := lo.Keys(sd.Formats)
	sort.Strings(codes)
	return codes
}

func hashtagsName(mode string) string {
	switch mode {
	case domain.HashtagsTop:
		return "в начале"
	case domain.HashtagsBottom:
		return "в конце"
	default:
		return "нет"
	}
}

func pagingText(start, end int) string {
	switch {
	case start == 0 && end == 0:
		return "все"
	case start == -1 && end == -1:
		return "последняя"
	case end == 0:
		return fmt.Sprintf("с %d до конца", start)
	default:
		return fmt.Sprintf("с %d по %d", start, end)
	}
}

// authName — подпись выбранного доступа.
func authName(auth string, auths []domain.UserAuth) string {
	switch auth {
	case "", AuthNone:
		return "без авторизации"
	case AuthAnon:
		return "демо-доступ"
	}
	id, _ := strconv.ParseInt(auth, 10, 64)
	if a, ok := lo.Find(auths, func(a domain.UserAuth) bool { return a.ID == id }); ok {
		return a.DisplayName()
	}
	return "#" + auth
}

// setupView — всё, что нужно для отрисовки сообщения настройки.
type setupView struct {
	Row     domain.InlineDownloadRequest
	Auths   []domain.UserAuth
	Catalog Catalog
	Notice  string
}

func (v setupView) text() string {
	r := v.Row
	var b strings.Builder
	if v.Notice != "" {
		b.WriteString("❗ " + v.Notice + "\n\n")
	}
	fmt.Fprintf(&b, "Сайт: %s\n", SiteDisplayName(r.Site))
	fmt.Fprintf(&b, "Ссылка: %s\n", r.Link)
	fmt.Fprintf(&b, "Формат: %s\n", v.Catalog.FormatName(r.Format))
	if r.UsePaging {
		fmt.Fprintf(&b, "Главы: %s\n", pagingText(r.Start, r.End))
	}
	if r.UseAuth {
		fmt.Fprintf(&b, "Доступ: %s\n", authName(r.Auth, v.Auths))
	}
	if r.SetupMode == domain.SetupAdvanced {
		fmt.Fprintf(&b, "Хэштеги: %s\n", hashtagsName(r.Hashtags))
		if r.Proxy != "" {
			fmt.Fprintf(&b, "Прокси: %s\n", r.Proxy)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func (v setupView) keyboard() domain.Keyboard {
	r := v.Row
	var kb domain.Keyboard
	var toggles []domain.Button
	if r.UseCover {
		toggles = append(toggles, button(check(r.Cover)+" Обложка", ActionCover))
	}
	if r.UseImages {
		toggles = append(toggles, button(check(r.Images)+" Картинки", ActionImages))
	}
	if len(toggles) > 0 {
		kb = append(kb, toggles)
	}
	kb = append(kb, []domain.Button{button("Формат: "+v.Catalog.FormatName(r.Format), ActionFormatMenu)})
	if r.UseAuth {
		kb = append(kb, []domain.Button{button("Доступ", ActionAuthMenu)})
	}
	if r.UsePaging {
		kb = append(kb, []domain.Button{button("Главы", ActionPaging)})
	}
	if r.SetupMode == domain.SetupAdvanced {
		kb = append(kb,
			[]domain.Button{
				button(check(r.Thumb)+" Миниатюра", ActionThumb),
				button("Хэштеги: "+hashtagsName(r.Hashtags), ActionHashtags),
			},
		)
		proxy := []domain.Button{button("Прокси", ActionProxy)}
		if r.Proxy != "" {
			proxy = append(proxy, button("Убрать прокси", ActionProxyClear))
		}
		kb = append(kb, proxy, []domain.Button{button("Основные настройки", ActionBase)})
	} else {
		kb = append(kb, []domain.Button{button("Дополнительно", ActionAdvanced)})
	}
	submit := []domain.Button{button("Скачать", ActionDownload)}
	if r.UsePaging {
		submit = append(submit, button("Последнюю главу", ActionDownloadLast))
	}
	kb = append(kb, submit, []domain.Button{button("Отмена", ActionCancel)})
	return kb
}

func formatKeyboard(row domain.InlineDownloadRequest, formats []string, catalog Catalog) domain.Keyboard {
	kb := make(domain.Keyboard, 0, len(formats)+1)
	for _, f := range formats {
		kb = append(kb, []domain.Button{button(check(f == row.Format)+" "+catalog.FormatName(f), ActionFormat, f)})
	}
	return append(kb, []domain.Button{button("Назад", ActionBack)})
}

func authKeyboard(row domain.InlineDownloadRequest, auths []domain.UserAuth, demo bool) domain.Keyboard {
	var kb domain.Keyboard
	if !row.ForceAuth {
		kb = append(kb, []domain.Button{button(check(row.Auth == AuthNone || row.Auth == "")+" Без авторизации", ActionAuth, AuthNone)})
	}
	if demo {
		kb = append(kb, []domain.Button{button(check(row.Auth == AuthAnon)+" Демо-доступ", ActionAuth, AuthAnon)})
	}
	for _, a := range auths {
		id := strconv.FormatInt(a.ID, 10)
		kb = append(kb, []domain.Button{button(check(row.Auth == id)+" "+a.DisplayName(), ActionAuth, id)})
	}
	return append(kb, []domain.Button{button("Назад", ActionBack)})
}

func inputCancelKeyboard() domain.Keyboard {
	return domain.Keyboard{{button("Отмена", ActionInputCancel)}}
}
