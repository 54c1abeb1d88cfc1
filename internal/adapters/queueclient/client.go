package queueclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
	"golang.org/x/sync/singleflight"

	"tg-download-bot/internal/domain"
	"tg-download-bot/internal/infra/metrics"
)

// ErrConnection — текст для пользователя при сбое связи с сервисом загрузки.
var ErrConnection = errors.New("Ошибка соединения с сервером загрузки")

// RemoteError — отказ сервиса загрузки. Message показывается пользователю как есть.
type RemoteError struct {
	Status  int
	Message string
}

func (e *RemoteError) Error() string {
	return e.Message
}

// Client обращается к сервису загрузки по HTTP+JSON.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	cache      domain.Cache
	log        zerolog.Logger
	group      singleflight.Group

	attempts uint64
	delay    time.Duration

	sitesTTL    time.Duration
	snapshotTTL time.Duration
	linkTTL     time.Duration
}

type Option func(*Client)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if c.httpClient == nil {
			c.httpClient = &http.Client{}
		}
		c.httpClient.Timeout = timeout
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) {
		c.log = logger.With().Str("component", "queue_client").Logger()
	}
}

// WithRetry задаёт число попыток и паузу между ними для повторяемых вызовов.
func WithRetry(attempts int, delay time.Duration) Option {
	return func(c *Client) {
		if attempts > 0 {
			c.attempts = uint64(attempts)
		}
		c.delay = delay
	}
}

// WithCacheTTL задаёт время жизни списков сайтов и снимков статистики.
func WithCacheTTL(sites, snapshots, links time.Duration) Option {
	return func(c *Client) {
		c.sitesTTL = sites
		c.snapshotTTL = snapshots
		c.linkTTL = links
	}
}

// New создаёт клиент.
func New(baseURL string, cache domain.Cache, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("baseURL is required")
	}
	if cache == nil {
		return nil, fmt.Errorf("cache is required")
	}
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if parsed.Scheme == "" {
		parsed.Scheme = "http"
	}
	client := &Client{
		baseURL:     parsed,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		cache:       cache,
		log:         zerolog.Nop(),
		attempts:    5,
		delay:       5 * time.Second,
		sitesTTL:    60 * time.Second,
		snapshotTTL: 5 * time.Second,
		linkTTL:     24 * time.Hour,
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// retry выполняет op с ограниченным числом попыток и постоянной паузой.
func (c *Client) retry(ctx context.Context, op func() error) error {
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(c.delay), c.attempts-1),
		ctx,
	)
	return backoff.Retry(op, policy)
}

// cached читает ключ из кэша, а при промахе один раз на ключ вызывает fetch с повторами.
// Общий запрос не отменяется вместе с контекстом первого вызывающего: его ждут другие.
func (c *Client) cached(ctx context.Context, key string, ttl time.Duration, fetch func(context.Context) ([]byte, error)) ([]byte, bool) {
	if data, err := c.cache.Get(ctx, key); err == nil {
		return data, true
	} else if !errors.Is(err, domain.ErrCacheMiss) {
		c.log.Warn().Err(err).Str("key", key).Msg("кэш недоступен")
	}
	v, err, _ := c.group.Do(key, func() (any, error) {
		ctx := context.WithoutCancel(ctx)
		var data []byte
		err := c.retry(ctx, func() error {
			var err error
			data, err = fetch(ctx)
			return err
		})
		if err != nil {
			return nil, err
		}
		if err := c.cache.Set(ctx, key, data, ttl); err != nil {
			c.log.Warn().Err(err).Str("key", key).Msg("не удалось записать в кэш")
		}
		return data, nil
	})
	if err != nil {
		c.log.Error().Err(err).Str("key", key).Msg("сервис загрузки не ответил")
		return nil, false
	}
	return v.([]byte), true
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, body any) (*http.Request, error) {
	resolved := *c.baseURL
	resolved.Path = path.Join("/", strings.TrimSuffix(c.baseURL.Path, "/"), endpoint)
	var buf io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		buf = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, resolved.String(), buf)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Request-ID", uuid.NewString())
	return req, nil
}

// do выполняет запрос и возвращает тело ответа со статусом 2xx.
// Ответы 4xx помечаются как неповторяемые.
func (c *Client) do(ctx context.Context, op, method, endpoint string, body any) ([]byte, error) {
	req, err := c.newRequest(ctx, method, endpoint, body)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.ObserveNetworkRequest("queue", op, c.baseURL.Host, start, err)
		return nil, fmt.Errorf("queue api request failed: %w", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err == nil && resp.StatusCode >= 300 {
		err = &RemoteError{Status: resp.StatusCode, Message: errorText(data, resp.StatusCode)}
	}
	metrics.ObserveNetworkRequest("queue", op, c.baseURL.Host, start, err)
	if err != nil {
		var remote *RemoteError
		if errors.As(err, &remote) && remote.Status < 500 {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}
	return data, nil
}

// errorText достаёт сообщение об ошибке из тела ответа.
func errorText(data []byte, status int) string {
	if gjson.ValidBytes(data) {
		res := gjson.ParseBytes(data)
		if res.Type == gjson.String && res.Str != "" {
			return res.Str
		}
		for _, field := range []string{"detail", "error", "message"} {
			if v := res.Get(field); v.Exists() && v.String() != "" {
				return v.String()
			}
		}
	}
	if text := strings.TrimSpace(string(data)); text != "" {
		return text
	}
	return fmt.Sprintf("Сервер загрузки вернул ошибку %d", status)
}

var _ domain.DownloadQueue = (*Client)(nil)
