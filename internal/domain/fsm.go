package domain

import "context"

// Flow — активный диалог в чате.
type Flow int

const (
	FlowNone Flow = iota
	FlowAuth
	FlowAccountSetup
	FlowSiteSetup
	FlowDownloadSetup
)

// Step — шаг внутри диалога, на котором бот ждёт текст от пользователя.
type Step string

const (
	StepNone        Step = ""
	StepPagingStart Step = "paging_start"
	StepPagingEnd   Step = "paging_end"
	StepProxy       Step = "proxy"
	StepAuthLogin   Step = "auth_login"
	StepAuthPass    Step = "auth_password"
	StepFilename    Step = "filename"
)

// ChatState хранит состояние диалога для пары (чат, пользователь).
type ChatState struct {
	Flow Flow `json:"flow"`
	Step Step `json:"step,omitempty"`
	// SetupMessageID — сообщение настройки, к которому относится ввод.
	SetupMessageID int `json:"setup_message_id,omitempty"`
	// PromptMessageIDs — служебные сообщения, которые нужно убрать после ввода.
	PromptMessageIDs []int `json:"prompt_message_ids,omitempty"`
	// Start — введённая первая глава, пока ждём последнюю.
	Start int `json:"start,omitempty"`
	// Site и Login заполняются при добавлении доступа. Пароль в состоянии не хранится.
	Site  string `json:"site,omitempty"`
	Login string `json:"login,omitempty"`
}

// Active сообщает, что в чате идёт диалог.
func (s ChatState) Active() bool {
	return s.Flow != FlowNone
}

// StateStore хранит состояние диалогов по чатам.
type StateStore interface {
	Get(ctx context.Context, chatID, userID int64) (ChatState, error)
	Set(ctx context.Context, chatID, userID int64, state ChatState) error
	Clear(ctx context.Context, chatID, userID int64) error
}
