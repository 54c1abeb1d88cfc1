package domain

import (
	"fmt"
	"time"
)

// InteractMode определяет, как бот собирает параметры загрузки.
type InteractMode int

const (
	// InteractInline — параметры собираются кнопками в чате.
	InteractInline InteractMode = 0
	// InteractWindowed — параметры собираются в мини-приложении.
	InteractWindowed InteractMode = 1
)

// String возвращает человекочитаемое название режима.
func (m InteractMode) String() string {
	if m == InteractWindowed {
		return "Отдельные окна"
	}
	return "В чате"
}

// Hashtag-режимы, которые понимает сервис загрузки.
const (
	HashtagsNo     = "no"
	HashtagsTop    = "top"
	HashtagsBottom = "bottom"
)

// NextHashtags возвращает следующий режим хэштегов по кругу.
func NextHashtags(current string) string {
	switch current {
	case HashtagsNo, "":
		return HashtagsTop
	case HashtagsTop:
		return HashtagsBottom
	default:
		return HashtagsNo
	}
}

// User описывает пользователя Telegram в системе.
type User struct {
	ID           int64
	Username     string
	Setuped      bool
	InteractMode InteractMode
	Format       string
	Cover        bool
	Thumb        bool
	Images       bool
	Hashtags     string
	Filename     string
	CreatedAt    time.Time
}

// NewUser создаёт пользователя с настройками по умолчанию.
func NewUser(id int64, username string) User {
	return User{
		ID:           id,
		Username:     username,
		Setuped:      true,
		InteractMode: InteractInline,
		Format:       "fb2",
		Cover:        true,
		Images:       true,
		Hashtags:     HashtagsNo,
	}
}

// UserAuth хранит доступы пользователя к сайту. Password хранится расшифрованным только в памяти.
type UserAuth struct {
	ID        int64
	UserID    int64
	Site      string
	Login     string
	Password  string
	CreatedOn time.Time
}

// DisplayName возвращает название доступа без пароля.
func (a UserAuth) DisplayName() string {
	if a.CreatedOn.IsZero() {
		return a.Login
	}
	return fmt.Sprintf("%s [от %s]", a.Login, a.CreatedOn.Format("02.01.2006"))
}

// SiteConfig содержит переопределения настроек пользователя для конкретного сайта.
// nil означает «как в настройках пользователя».
type SiteConfig struct {
	UserID   int64
	Site     string
	Format   *string
	Cover    *bool
	Thumb    *bool
	Images   *bool
	Hashtags *string
	Filename *string
	Proxy    *string
	Auth     *string
}

// Defaults описывает итоговые параметры загрузки после слияния настроек.
type Defaults struct {
	Format   string
	Cover    bool
	Thumb    bool
	Images   bool
	Hashtags string
	Filename string
	Proxy    string
	Auth     string
}

// Resolve сливает настройки пользователя и сайта. cfg может быть nil.
func Resolve(user User, cfg *SiteConfig) Defaults {
	d := Defaults{
		Format:   user.Format,
		Cover:    user.Cover,
		Thumb:    user.Thumb,
		Images:   user.Images,
		Hashtags: user.Hashtags,
		Filename: user.Filename,
	}
	if cfg == nil {
		return d
	}
	if cfg.Format != nil {
		d.Format = *cfg.Format
	}
	if cfg.Cover != nil {
		d.Cover = *cfg.Cover
	}
	if cfg.Thumb != nil {
		d.Thumb = *cfg.Thumb
	}
	if cfg.Images != nil {
		d.Images = *cfg.Images
	}
	if cfg.Hashtags != nil {
		d.Hashtags = *cfg.Hashtags
	}
	if cfg.Filename != nil {
		d.Filename = *cfg.Filename
	}
	if cfg.Proxy != nil {
		d.Proxy = *cfg.Proxy
	}
	if cfg.Auth != nil {
		d.Auth = *cfg.Auth
	}
	return d
}

// SetupMode определяет, сколько кнопок показывает сообщение настройки.
type SetupMode int

const (
	SetupBase     SetupMode = 0
	SetupAdvanced SetupMode = 1
)

// InlineDownloadRequest — незавершённый запрос на загрузку в режиме чата.
// Одна строка соответствует одному сообщению настройки.
type InlineDownloadRequest struct {
	ID        int64
	UserID    int64
	ChatID    int64
	MessageID int

	Link string
	Site string

	UsePaging   bool
	UseAuth     bool
	UseImages   bool
	UseCover    bool
	ForceImages bool
	ForceAuth   bool

	Auth     string
	Start    int
	End      int
	Format   string
	Images   bool
	Cover    bool
	Thumb    bool
	Proxy    string
	Hashtags string
	Filename string

	SetupMode SetupMode
	Created   time.Time
}

// Identity возвращает ключ строки.
func (r InlineDownloadRequest) Identity() RequestIdentity {
	return RequestIdentity{UserID: r.UserID, ChatID: r.ChatID, MessageID: r.MessageID}
}

// RequestIdentity однозначно определяет сообщение настройки.
type RequestIdentity struct {
	UserID    int64
	ChatID    int64
	MessageID int
}

// AbandonedBefore возвращает границу, раньше которой запрос считается брошенным.
func AbandonedBefore(now time.Time, olderThan time.Duration) time.Time {
	return now.Add(-olderThan)
}

// IsAbandoned сообщает, что запрос не был отправлен дольше olderThan.
func (r InlineDownloadRequest) IsAbandoned(now time.Time, olderThan time.Duration) bool {
	return r.Created.Before(AbandonedBefore(now, olderThan))
}

// UserStat — дневная статистика пользователя по сайту.
type UserStat struct {
	UserID   int64
	Site     string
	Day      time.Time
	Success  int64
	Failure  int64
	OrigSize int64
	OperSize int64
}
