package app

import (
	"context"
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"tg-download-bot/internal/adapters/bot"
	"tg-download-bot/internal/adapters/fsm"
	"tg-download-bot/internal/adapters/httpapi"
	"tg-download-bot/internal/adapters/queueclient"
	"tg-download-bot/internal/adapters/repo"
	"tg-download-bot/internal/adapters/telegram"
	"tg-download-bot/internal/domain"
	"tg-download-bot/internal/infra/cache"
	"tg-download-bot/internal/infra/config"
	"tg-download-bot/internal/infra/crypto"
	"tg-download-bot/internal/infra/db"
	"tg-download-bot/internal/infra/events"
	"tg-download-bot/internal/infra/metrics"
	"tg-download-bot/internal/usecase/download"
)

const (
	// stateTTL — сколько живёт незавершённый диалог.
	stateTTL = 24 * time.Hour
	// memoryCacheSize — размер кэша процесса, если Redis не задан.
	memoryCacheSize = 10_000
)

// App — собранные зависимости одного процесса.
type App struct {
	Config config.AppConfig
	Global config.Global
	Log    zerolog.Logger

	Pool     *pgxpool.Pool
	Cache    domain.Cache
	BotAPI   *tgbotapi.BotAPI
	Queue    *queueclient.Client
	Sealer   *crypto.Sealer
	Download *download.Deps

	Inline   *download.Inline
	Window   *download.Window
	Auth     *download.AuthDialog
	Settings *download.Settings
	Notifier *download.Notifier

	closers []func()
}

// New подключается к БД, кэшу, Telegram и сервису загрузки и собирает контроллеры.
func New(ctx context.Context, cfg config.AppConfig, logger zerolog.Logger) (*App, error) {
	a := &App{Config: cfg, Log: logger}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	global, err := config.LoadGlobal(cfg.GlobalConfigPath)
	if err != nil {
		return nil, err
	}
	a.Global = global

	a.Sealer, err = crypto.NewSealer(cfg.WebApp.EncryptKey)
	if err != nil {
		return nil, err
	}

	a.Pool, err = db.Connect(ctx, cfg.PGDSN)
	if err != nil {
		return nil, fmt.Errorf("подключение к БД: %w", err)
	}
	a.closers = append(a.closers, a.Pool.Close)

	a.Cache, err = a.newCache(ctx)
	if err != nil {
		return nil, err
	}

	a.BotAPI, err = newBotAPI(cfg)
	if err != nil {
		return nil, fmt.Errorf("создание бота: %w", err)
	}

	a.Queue, err = queueclient.New(cfg.Queue.BaseURL, a.Cache,
		queueclient.WithTimeout(cfg.Queue.Timeout),
		queueclient.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("клиент сервиса загрузки: %w", err)
	}

	publisher, err := a.newPublisher()
	if err != nil {
		return nil, err
	}

	store := repo.NewPostgres(a.Pool, a.Sealer)
	a.Download = &download.Deps{
		Users:     store,
		Auths:     store,
		Sites:     store,
		Requests:  repo.NewInlineRequests(a.Pool),
		Usage:     store,
		Queue:     a.Queue,
		Messenger: telegram.NewMessenger(a.BotAPI, logger),
		States:    fsm.NewStore(a.Cache, stateTTL),
		Cache:     a.Cache,
		Events:    publisher,
		Catalog:   global,
		FreeLimit: global.FreeLimit,
		Log:       logger.With().Str("component", "download").Logger(),
	}
	a.Inline = download.NewInline(a.Download)
	a.Window = download.NewWindow(a.Download, a.Sealer, cfg.WebApp.URL)
	a.Auth = download.NewAuthDialog(a.Download, a.Queue, a.Window)
	a.Settings = download.NewSettings(a.Download)
	a.Notifier = download.NewNotifier(a.Download)

	ok = true
	return a, nil
}

func (a *App) newCache(ctx context.Context) (domain.Cache, error) {
	if a.Config.RedisAddr == "" {
		a.Log.Warn().Msg("REDIS_ADDR не задан, кэш и состояния диалогов живут в памяти процесса")
		mem := cache.NewMemory(memoryCacheSize)
		a.closers = append(a.closers, mem.Stop)
		return mem, nil
	}
	client := redis.NewClient(&redis.Options{Addr: a.Config.RedisAddr})
	start := time.Now()
	err := client.Ping(ctx).Err()
	metrics.ObserveNetworkRequest("redis", "ping", a.Config.RedisAddr, start, err)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("подключение к Redis: %w", err)
	}
	a.closers = append(a.closers, func() { _ = client.Close() })
	return cache.NewRedis(client, "dlbot"), nil
}

func (a *App) newPublisher() (domain.EventPublisher, error) {
	if a.Config.AMQP.URL == "" {
		return domain.NopPublisher{}, nil
	}
	rabbit, err := events.NewRabbitPublisher(a.Config.AMQP.URL, a.Config.AMQP.Exchange, a.Log)
	if err != nil {
		return nil, fmt.Errorf("подключение к RabbitMQ: %w", err)
	}
	a.closers = append(a.closers, func() { _ = rabbit.Close() })
	return events.NewAsync(rabbit, a.Log), nil
}

func newBotAPI(cfg config.AppConfig) (*tgbotapi.BotAPI, error) {
	if cfg.Telegram.APIEndpoint != "" {
		return tgbotapi.NewBotAPIWithAPIEndpoint(cfg.Telegram.Token, cfg.Telegram.APIEndpoint)
	}
	return tgbotapi.NewBotAPI(cfg.Telegram.Token)
}

// Handler собирает обработчик апдейтов бота.
func (a *App) Handler() *bot.Handler {
	return bot.NewHandler(bot.Deps{
		Log:       a.Log.With().Str("component", "bot").Logger(),
		Messenger: a.Download.Messenger,
		Users:     a.Download.Users,
		States:    a.Download.States,
		Queue:     a.Queue,
		Global:    a.Global,
		Inline:    a.Inline,
		Window:    a.Window,
		Auth:      a.Auth,
		Settings:  a.Settings,
		Notifier:  a.Notifier,
	})
}

// Routes собирает HTTP обработчики бота.
func (a *App) Routes(updates httpapi.UpdateHandler) httpapi.Routes {
	rt := httpapi.Routes{
		Log:         a.Log.With().Str("component", "http").Logger(),
		Updates:     updates,
		Lifecycle:   a.Notifier,
		MiniApp:     a.Window,
		Snapshots:   a.Queue,
		WebhookPath: a.Config.Telegram.WebhookPath,
	}
	if a.Config.WebApp.VerifyInitData {
		rt.BotToken = a.Config.Telegram.Token
	}
	return rt
}

// SetWebhook регистрирует вебхук в Telegram. Пустой TG_WEBHOOK_URL оставляет текущий.
func (a *App) SetWebhook() error {
	if a.Config.Telegram.WebhookURL == "" {
		return nil
	}
	wh, err := tgbotapi.NewWebhook(a.Config.Telegram.WebhookURL)
	if err != nil {
		return fmt.Errorf("адрес вебхука: %w", err)
	}
	wh.MaxConnections = a.Config.Telegram.MaxConnections
	wh.AllowedUpdates = []string{"message", "callback_query"}
	if _, err := a.BotAPI.Request(wh); err != nil {
		return fmt.Errorf("установка вебхука: %w", err)
	}
	a.Log.Info().Str("url", a.Config.Telegram.WebhookURL).Int("max_connections", wh.MaxConnections).Msg("вебхук установлен")
	return nil
}

// Close освобождает ресурсы в обратном порядке.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
