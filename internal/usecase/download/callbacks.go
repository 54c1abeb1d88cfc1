package download

import (
	"errors"
	"strings"

	"tg-download-bot/internal/domain"
)

// Action — действие кнопки под сообщением.
type Action int

const (
	ActionUnknown Action = iota
	ActionDownload
	ActionDownloadLast
	ActionCancel
	ActionCover
	ActionThumb
	ActionImages
	ActionHashtags
	ActionFormatMenu
	ActionFormat
	ActionAuthMenu
	ActionAuth
	ActionPaging
	ActionProxy
	ActionProxyClear
	ActionAdvanced
	ActionBase
	ActionBack
	ActionInputCancel
	ActionCancelTask
	ActionWindowCancel
	ActionAuthSite
	ActionAuthCancel
	ActionSetFormatMenu
	ActionSetFormat
	ActionSetCover
	ActionSetImages
	ActionSetThumb
	ActionSetHashtags
	ActionSetFilename
	ActionSetProxy
	ActionSetMode
	ActionSetReset
	ActionSetBack
	ActionSetClose
)

const (
	inlinePrefix     = "idc"
	cancelTaskPrefix = "cancel_task"
	windowPrefix     = "wdc"
	authPrefix       = "auth"
	settingsPrefix   = "set"
	// accountScope — настройки аккаунта вместо настроек сайта.
	accountScope = "-"
)

var inlineActions = map[string]Action{
	"download":      ActionDownload,
	"download_last": ActionDownloadLast,
	"cancel":        ActionCancel,
	"cover":         ActionCover,
	"thumb":         ActionThumb,
	"images":        ActionImages,
	"hashtags":      ActionHashtags,
	"formats":       ActionFormatMenu,
	"format":        ActionFormat,
	"auths":         ActionAuthMenu,
	"auth":          ActionAuth,
	"paging":        ActionPaging,
	"proxy":         ActionProxy,
	"proxy_clear":   ActionProxyClear,
	"advanced":      ActionAdvanced,
	"base":          ActionBase,
	"back":          ActionBack,
	"input_cancel":  ActionInputCancel,
}

var settingsActions = map[string]Action{
	"formats":  ActionSetFormatMenu,
	"format":   ActionSetFormat,
	"cover":    ActionSetCover,
	"images":   ActionSetImages,
	"thumb":    ActionSetThumb,
	"hashtags": ActionSetHashtags,
	"filename": ActionSetFilename,
	"proxy":    ActionSetProxy,
	"mode":     ActionSetMode,
	"reset":    ActionSetReset,
	"back":     ActionSetBack,
	"close":    ActionSetClose,
}

var inlineNames, settingsNames = invert(inlineActions), invert(settingsActions)

func invert(in map[string]Action) map[Action]string {
	out := make(map[Action]string, len(in))
	for name, a := range in {
		out[a] = name
	}
	return out
}

// ErrUnknownCallback — данные кнопки не распознаны.
var ErrUnknownCallback = errors.New("неизвестная кнопка")

// Callback — разобранные данные кнопки. Site заполняется только для
// кнопок настроек сайта.
type Callback struct {
	Action Action
	Site   string
	Arg    string
}

// ParseCallback разбирает callback data.
func ParseCallback(data string) (Callback, error) {
	prefix, rest, _ := strings.Cut(data, ":")
	switch prefix {
	case inlinePrefix:
		name, arg, _ := strings.Cut(rest, ":")
		a, ok := inlineActions[name]
		if !ok {
			return Callback{}, ErrUnknownCallback
		}
		if (a == ActionFormat || a == ActionAuth) && arg == "" {
			return Callback{}, ErrUnknownCallback
		}
		return Callback{Action: a, Arg: arg}, nil
	case cancelTaskPrefix:
		if _, err := domain.ParseTaskID(rest); err != nil {
			return Callback{}, ErrUnknownCallback
		}
		return Callback{Action: ActionCancelTask, Arg: rest}, nil
	case windowPrefix:
		if rest == "cancel" {
			return Callback{Action: ActionWindowCancel}, nil
		}
	case settingsPrefix:
		parts := strings.SplitN(rest, ":", 3)
		if len(parts) < 2 || parts[0] == "" {
			return Callback{}, ErrUnknownCallback
		}
		a, ok := settingsActions[parts[1]]
		if !ok {
			return Callback{}, ErrUnknownCallback
		}
		cb := Callback{Action: a}
		if parts[0] != accountScope {
			cb.Site = parts[0]
		}
		if len(parts) == 3 {
			cb.Arg = parts[2]
		}
		if a == ActionSetFormat && cb.Arg == "" {
			return Callback{}, ErrUnknownCallback
		}
		return cb, nil
	case authPrefix:
		switch rest {
		case "":
		case "cancel":
			return Callback{Action: ActionAuthCancel}, nil
		default:
			return Callback{Action: ActionAuthSite, Arg: rest}, nil
		}
	}
	return Callback{}, ErrUnknownCallback
}

// Data кодирует кнопку обратно в callback data.
func (c Callback) Data() string {
	switch c.Action {
	case ActionCancelTask:
		return cancelTaskPrefix + ":" + c.Arg
	case ActionWindowCancel:
		return windowPrefix + ":cancel"
	case ActionAuthSite:
		return authPrefix + ":" + c.Arg
	case ActionAuthCancel:
		return authPrefix + ":cancel"
	}
	if name, ok := settingsNames[c.Action]; ok {
		scope := c.Site
		if scope == "" {
			scope = accountScope
		}
		data := settingsPrefix + ":" + scope + ":" + name
		if c.Arg != "" {
			data += ":" + c.Arg
		}
		return data
	}
	name, ok := inlineNames[c.Action]
	if !ok {
		return ""
	}
	if c.Arg != "" {
		return inlinePrefix + ":" + name + ":" + c.Arg
	}
	return inlinePrefix + ":" + name
}

func button(text string, a Action, arg ...string) domain.Button {
	cb := Callback{Action: a}
	if len(arg) > 0 {
		cb.Arg = arg[0]
	}
	return domain.Button{Text: text, Data: cb.Data()}
}

// CancelTaskKeyboard — кнопка отмены поставленной задачи.
func CancelTaskKeyboard(id domain.TaskID) domain.Keyboard {
	return domain.Keyboard{{button("Отмена", ActionCancelTask, string(id))}}
}
