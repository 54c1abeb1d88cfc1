package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/goccy/go-json"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/samber/lo"
)

// AppConfig описывает конфигурацию сервисов.
type AppConfig struct {
	AppEnv string `envconfig:"APP_ENV" default:"dev"`
	Port   int    `envconfig:"PORT" default:"8080"`

	Telegram struct {
		Token          string `envconfig:"TG_BOT_TOKEN"`
		WebhookURL     string `envconfig:"TG_WEBHOOK_URL"`
		WebhookPath    string `envconfig:"TG_WEBHOOK_PATH" default:"/bot/webhook"`
		APIEndpoint    string `envconfig:"TG_API_ENDPOINT"`
		MaxConnections int    `envconfig:"TG_MAX_CONNECTIONS" default:"40"`
	} `envconfig:""`

	WebApp struct {
		URL            string `envconfig:"WEBAPP_URL"`
		EncryptKey     string `envconfig:"ENCRYPT_KEY"`
		VerifyInitData bool   `envconfig:"WEBAPP_VERIFY_INIT_DATA" default:"false"`
	} `envconfig:""`

	Queue struct {
		BaseURL string        `envconfig:"QUEUE_HOST" default:"http://queue:8010/"`
		Timeout time.Duration `envconfig:"QUEUE_TIMEOUT" default:"30s"`
	} `envconfig:""`

	PGDSN string `envconfig:"PG_DSN"`

	RedisAddr string `envconfig:"REDIS_ADDR"`

	AMQP struct {
		URL      string `envconfig:"AMQP_URL"`
		Exchange string `envconfig:"AMQP_EXCHANGE" default:"downloads"`
	} `envconfig:""`

	Sweeper struct {
		Interval     time.Duration `envconfig:"SWEEP_INTERVAL" default:"1h"`
		AbandonAfter time.Duration `envconfig:"SWEEP_ABANDON_AFTER" default:"24h"`
	} `envconfig:""`

	GlobalConfigPath string `envconfig:"GLOBAL_CONFIG_PATH" default:"configs/global.json"`
}

// ErrEncryptKeyRequired возвращается без ключа шифрования: им закрываются пароли и payload мини-приложения.
var ErrEncryptKeyRequired = errors.New("задайте ENCRYPT_KEY: ключ нужен для паролей и мини-приложения")

// Load загружает конфиг из .env (если есть) и окружения.
func Load() (AppConfig, error) {
	_ = godotenv.Load()
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return AppConfig{}, fmt.Errorf("не удалось загрузить конфиг: %w", err)
	}
	if cfg.WebApp.EncryptKey == "" {
		return AppConfig{}, ErrEncryptKeyRequired
	}
	return cfg, nil
}

// Global — настройки из global.json.
type Global struct {
	Formats   map[string]string `json:"formats"`
	Groups    map[string]string `json:"groups"`
	Demo      map[string]string `json:"demo"`
	Admins    []int64           `json:"admins"`
	FreeLimit int               `json:"free_limit"`
}

// DefaultGlobal возвращает настройки по умолчанию. Каждый вызов создаёт новые карты.
func DefaultGlobal() Global {
	return Global{
		Formats: map[string]string{
			"fb2":  "Fb2 - для книг",
			"mp3":  "mp3 - для аудиокниг",
			"epub": "Epub - для книг",
			"cbz":  "CBZ - для манги",
		},
		Groups:    map[string]string{},
		Demo:      map[string]string{},
		Admins:    []int64{},
		FreeLimit: 100,
	}
}

// LoadGlobal читает global.json. Отсутствующий файл даёт настройки по умолчанию,
// отсутствующие поля заполняются значениями по умолчанию.
func LoadGlobal(path string) (Global, error) {
	g := DefaultGlobal()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return g, nil
		}
		return Global{}, fmt.Errorf("чтение %s: %w", path, err)
	}
	var raw struct {
		Formats   map[string]string `json:"formats"`
		Groups    map[string]string `json:"groups"`
		Demo      map[string]string `json:"demo"`
		Admins    []int64           `json:"admins"`
		FreeLimit *int              `json:"free_limit"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return Global{}, fmt.Errorf("разбор %s: %w", path, err)
	}
	if raw.Formats != nil {
		g.Formats = raw.Formats
	}
	if raw.Groups != nil {
		g.Groups = raw.Groups
	}
	if raw.Demo != nil {
		g.Demo = raw.Demo
	}
	if raw.Admins != nil {
		g.Admins = raw.Admins
	}
	if raw.FreeLimit != nil {
		g.FreeLimit = *raw.FreeLimit
	}
	return g, nil
}

// IsAdmin сообщает, является ли пользователь администратором.
func (g Global) IsAdmin(userID int64) bool {
	return lo.Contains(g.Admins, userID)
}

// IsDemo сообщает, есть ли у сайта анонимные доступы.
func (g Global) IsDemo(site string) bool {
	_, ok := g.Demo[site]
	return ok
}

// FormatName возвращает отображаемое название формата.
func (g Global) FormatName(code string) string {
	if name, ok := g.Formats[code]; ok {
		return name
	}
	return code
}

// GroupName возвращает отображаемое название группы сайтов.
func (g Global) GroupName(group string) string {
	if name, ok := g.Groups[group]; ok {
		return name
	}
	return group
}

// FormatCodes возвращает коды известных форматов по алфавиту.
func (g Global) FormatCodes() []string {
	codes := lo.Keys(g.Formats)
	sort.Strings(codes)
	return codes
}
