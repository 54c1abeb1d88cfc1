package download

import (
	"errors"
	"fmt"
)

var (
	ErrUserNotFound     = errors.New("Сначала нажмите /start")
	ErrStorage          = errors.New("Ошибка соединения с БД. Попробуйте позднее")
	ErrQueueUnavailable = errors.New("Сервер загрузки недоступен. Попробуйте позднее")
	ErrSiteNotSupported = errors.New("Сайт не поддерживается")
	ErrRequestExpired   = errors.New("Запрос устарел, отправьте ссылку заново")
	ErrInvalidPayload   = errors.New("Данные формы повреждены или устарели")
	ErrWebAppDisabled   = errors.New("Мини-приложение не настроено")
	ErrInvalidNumber    = errors.New("Введите целое число")
	ErrBanned           = errors.New("Загрузки для вас недоступны")
	ErrAuthNotFound     = errors.New("Доступ не найден")
	ErrFormatNotAllowed = errors.New("Формат не поддерживается сайтом")
	ErrAuthRequired     = errors.New("Для этого сайта нужна авторизация, добавьте её командой /auth")
	ErrNoAuthSites      = errors.New("Нет сайтов доступных для авторизации")
	ErrNotTaskOwner     = errors.New("Это не ваша задача")
)

// QuotaError — дневной лимит исчерпан.
type QuotaError struct {
	Limit int
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("Достигнут дневной лимит загрузок (%d). Попробуйте завтра", e.Limit)
}

var userErrors = []error{
	ErrUserNotFound, ErrStorage, ErrQueueUnavailable, ErrSiteNotSupported, ErrRequestExpired,
	ErrInvalidPayload, ErrWebAppDisabled, ErrInvalidNumber, ErrBanned, ErrAuthNotFound,
	ErrFormatNotAllowed, ErrAuthRequired, ErrNoAuthSites, ErrEmptyCredentials, ErrInvalidProxy,
	ErrNotTaskOwner,
}

// UserMessage возвращает текст ошибки для чата. Ошибки сервиса загрузки показываются как есть.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	for _, known := range userErrors {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	var quota *QuotaError
	if errors.As(err, &quota) {
		return quota.Error()
	}
	return err.Error()
}

// storageErr помечает сбой БД, сохраняя причину для логов.
func storageErr(err error) error {
	return fmt.Errorf("%w: %v", ErrStorage, err)
}
