package domain

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound возвращается репозиториями, когда запись отсутствует.
	ErrNotFound = errors.New("запись не найдена")
	// ErrCacheMiss возвращается кэшем, когда ключа нет.
	ErrCacheMiss = errors.New("ключ отсутствует в кэше")
	// ErrMessageGone — сообщение уже удалено или не найдено.
	ErrMessageGone = errors.New("сообщение не найдено")
	// ErrMessageNotModified — текст и клавиатура не изменились.
	ErrMessageNotModified = errors.New("сообщение не изменилось")
)

// UserRepo управляет пользователями.
type UserRepo interface {
	GetUser(ctx context.Context, userID int64) (User, error)
	SaveUser(ctx context.Context, user User) error
}

// AuthRepo управляет сохранёнными доступами к сайтам.
type AuthRepo interface {
	ListUserAuthsForSite(ctx context.Context, userID int64, site string) ([]UserAuth, error)
	GetUserAuth(ctx context.Context, userID, authID int64) (UserAuth, error)
	SaveUserAuth(ctx context.Context, auth UserAuth) (UserAuth, error)
	DeleteUserAuth(ctx context.Context, userID, authID int64) error
}

// SiteConfigRepo управляет настройками пользователя для сайтов.
type SiteConfigRepo interface {
	// GetSiteConfig возвращает nil без ошибки, если настроек нет.
	GetSiteConfig(ctx context.Context, userID int64, site string) (*SiteConfig, error)
	SaveSiteConfig(ctx context.Context, cfg SiteConfig) error
	DeleteSiteConfig(ctx context.Context, userID int64, site string) error
}

// InlineRequestRepo хранит запросы, которые настраиваются в чате.
type InlineRequestRepo interface {
	// Save вставляет строку при ID == 0, иначе обновляет её по ID.
	Save(ctx context.Context, req *InlineDownloadRequest) error
	GetByIdentity(ctx context.Context, id RequestIdentity) (InlineDownloadRequest, error)
	Delete(ctx context.Context, id RequestIdentity) error
	ListAbandoned(ctx context.Context, olderThan time.Duration) ([]InlineDownloadRequest, error)
}

// UsageRepo отвечает за квоты и статистику.
type UsageRepo interface {
	// GetACL возвращает nil без ошибки, если переопределений нет.
	GetACL(ctx context.Context, userID int64) (*ACL, error)
	DailyUsage(ctx context.Context, userID int64, day time.Time) (int, error)
	// RecordResult учитывает результат задачи один раз на task_id.
	// applied=false означает, что результат уже был учтён ранее.
	RecordResult(ctx context.Context, result DownloadResult, day time.Time) (applied bool, err error)
}

// Cache используется для простых TTL-хранилищ.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// SetNX задаёт значение, только если ключа нет. ok=false — ключ уже занят.
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (ok bool, err error)
	Delete(ctx context.Context, key string) error
}

// Button — кнопка под сообщением. Заполняется ровно одно из Data, URL и WebApp.
// WebApp открывает мини-приложение внутри Telegram.
type Button struct {
	Text   string
	Data   string
	URL    string
	WebApp string
}

// Keyboard — inline-клавиатура сообщения.
type Keyboard [][]Button

// Messenger отправляет и редактирует сообщения в чате.
type Messenger interface {
	Send(ctx context.Context, chatID int64, text string, kb Keyboard) (int, error)
	Edit(ctx context.Context, chatID int64, messageID int, text string, kb Keyboard) error
	Delete(ctx context.Context, chatID int64, messageID int) error
	SendPhoto(ctx context.Context, chatID int64, path, caption string) error
	SendDocuments(ctx context.Context, chatID int64, paths []string) error
	AnswerCallback(ctx context.Context, callbackID, text string) error
}

// DownloadQueue — операции сервиса загрузки, нужные диалогам.
type DownloadQueue interface {
	// GetSiteData возвращает ok=false, если сервис недоступен.
	GetSiteData(ctx context.Context, site string) (SiteData, bool)
	IsLinkAllowed(ctx context.Context, link, site string) bool
	InitDownload(ctx context.Context, req DownloadRequest) (TaskID, error)
	CancelDownload(ctx context.Context, taskID TaskID) (CancelResult, error)
	ClearDownloadFiles(ctx context.Context, taskID TaskID)
}
