package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"
)

// TaskStatus — код состояния задачи в сервисе загрузки.
type TaskStatus int

const (
	StatusIdle       TaskStatus = 0
	StatusWait       TaskStatus = 1
	StatusInit       TaskStatus = 2
	StatusRunning    TaskStatus = 3
	StatusProcessing TaskStatus = 4
	StatusDone       TaskStatus = 5
	StatusError      TaskStatus = 98
	StatusCancelled  TaskStatus = 99
)

// Terminal сообщает, что задача завершена.
func (s TaskStatus) Terminal() bool {
	return s == StatusDone || s == StatusError || s == StatusCancelled
}

// String возвращает метку для логов и метрик.
func (s TaskStatus) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusWait:
		return "wait"
	case StatusInit:
		return "init"
	case StatusRunning:
		return "running"
	case StatusProcessing:
		return "processing"
	case StatusDone:
		return "done"
	case StatusError:
		return "error"
	case StatusCancelled:
		return "cancelled"
	default:
		return "status_" + strconv.Itoa(int(s))
	}
}

// TaskID — непрозрачный идентификатор задачи. В JSON принимается и число, и строка;
// числовые идентификаторы отправляются обратно числом.
type TaskID string

var errEmptyTaskID = errors.New("пустой идентификатор задачи")

// UnmarshalJSON реализует json.Unmarshaler.
func (t *TaskID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*t = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = TaskID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*t = TaskID(n.String())
	return nil
}

// MarshalJSON реализует json.Marshaler.
func (t TaskID) MarshalJSON() ([]byte, error) {
	if t == "" {
		return []byte("null"), nil
	}
	if _, err := strconv.ParseInt(string(t), 10, 64); err == nil {
		return []byte(t), nil
	}
	return json.Marshal(string(t))
}

// ParseTaskID разбирает идентификатор из текста команды или callback.
func ParseTaskID(raw string) (TaskID, error) {
	if raw == "" {
		return "", errEmptyTaskID
	}
	return TaskID(raw), nil
}

// DownloadRequest — задача, отправляемая в сервис загрузки.
type DownloadRequest struct {
	TaskID    TaskID `json:"task_id,omitempty"`
	UserID    int64  `json:"user_id"`
	WebID     string `json:"web_id,omitempty"`
	ChatID    int64  `json:"chat_id"`
	MessageID int    `json:"message_id"`
	Site      string `json:"site"`
	URL       string `json:"url"`
	Start     int    `json:"start"`
	End       int    `json:"end"`
	Format    string `json:"format"`
	Login     string `json:"login"`
	Password  string `json:"password"`
	Images    bool   `json:"images"`
	Cover     bool   `json:"cover"`
	Thumb     bool   `json:"thumb"`
	Proxy     string `json:"proxy"`
	Hashtags  string `json:"hashtags"`
	Filename  string `json:"filename,omitempty"`
}

// CancelResult указывает, какое сообщение относится к отменённой задаче.
type CancelResult struct {
	UserID    int64  `json:"user_id"`
	WebID     string `json:"web_id,omitempty"`
	ChatID    int64  `json:"chat_id"`
	MessageID int    `json:"message_id"`
}

// DownloadStatus — промежуточный статус задачи от сервиса загрузки.
type DownloadStatus struct {
	TaskID    TaskID     `json:"task_id"`
	UserID    int64      `json:"user_id"`
	ChatID    int64      `json:"chat_id"`
	MessageID int        `json:"message_id"`
	BotID     string     `json:"bot_id,omitempty"`
	WebID     string     `json:"web_id,omitempty"`
	Text      string     `json:"text"`
	Status    TaskStatus `json:"status"`
}

// DownloadResult — итог задачи от сервиса загрузки.
type DownloadResult struct {
	TaskID    TaskID     `json:"task_id"`
	UserID    int64      `json:"user_id"`
	ChatID    int64      `json:"chat_id"`
	MessageID int        `json:"message_id"`
	BotID     string     `json:"bot_id,omitempty"`
	WebID     string     `json:"web_id,omitempty"`
	Status    TaskStatus `json:"status"`
	Site      string     `json:"site"`
	Text      string     `json:"text"`
	Cover     string     `json:"cover"`
	Files     []string   `json:"files"`
	OrigSize  int64      `json:"orig_size"`
	OperSize  int64      `json:"oper_size"`
}

// SiteData описывает возможности сайта, объявленные сервисом загрузки.
type SiteData struct {
	Allowed    bool                `json:"allowed"`
	Parameters []string            `json:"parameters"`
	Formats    map[string][]string `json:"formats"`
}

// Параметры сайта из SiteData.Parameters.
const (
	ParamAuth        = "auth"
	ParamPaging      = "paging"
	ParamImages      = "images"
	ParamCover       = "cover"
	ParamForceImages = "force_images"
	ParamForceAuth   = "force_auth"
)

// Has сообщает, поддерживает ли сайт параметр.
func (d SiteData) Has(param string) bool {
	for _, p := range d.Parameters {
		if p == param {
			return true
		}
	}
	return false
}
