package http

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
	"github.com/tidwall/gjson"
)

// InitDataHeader — заголовок, в котором мини-приложение передаёт initData.
const InitDataHeader = "X-Telegram-Init-Data"

var (
	ErrInitDataMissing = errors.New("init_data отсутствует")
	ErrInitDataInvalid = errors.New("подпись недействительна")
)

// WebAppAuthMiddleware проверяет initData по токену бота.
func WebAppAuthMiddleware(botToken string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			initData := r.Header.Get(InitDataHeader)
			if initData == "" {
				initData = r.URL.Query().Get("init_data")
			}
			if err := ValidateInitData(initData, botToken); err != nil {
				WriteError(w, http.StatusUnauthorized, err)
				return
			}
			ctx := r.Context()
			if id := initDataUserID(initData); id != 0 {
				ctx = context.WithValue(ctx, initDataUserKey{}, id)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

type initDataUserKey struct{}

// InitDataUserID возвращает id пользователя из проверенного initData.
func InitDataUserID(r *http.Request) (int64, bool) {
	id, ok := r.Context().Value(initDataUserKey{}).(int64)
	return id, ok
}

func initDataUserID(initData string) int64 {
	values, err := url.ParseQuery(initData)
	if err != nil {
		return 0
	}
	return gjson.Get(values.Get("user"), "id").Int()
}

// ValidateInitData проверяет подпись initData Telegram WebApp.
func ValidateInitData(initData, botToken string) error {
	if initData == "" {
		return ErrInitDataMissing
	}
	values, err := url.ParseQuery(initData)
	if err != nil {
		return ErrInitDataInvalid
	}
	hash := values.Get("hash")
	if hash == "" {
		return ErrInitDataInvalid
	}
	pairs := make([]string, 0, len(values))
	for k := range values {
		if k == "hash" {
			continue
		}
		pairs = append(pairs, k+"="+values.Get(k))
	}
	sort.Strings(pairs)

	secret := hmac.New(sha256.New, []byte("WebAppData"))
	secret.Write([]byte(botToken))
	h := hmac.New(sha256.New, secret.Sum(nil))
	h.Write([]byte(strings.Join(pairs, "\n")))

	expected, err := hex.DecodeString(hash)
	if err != nil {
		return ErrInitDataInvalid
	}
	if !hmac.Equal(h.Sum(nil), expected) {
		return ErrInitDataInvalid
	}
	return nil
}

// RequestID возвращает request ID из контекста chi.
func RequestID(r *http.Request) string {
	return middleware.GetReqID(r.Context())
}

// ErrorResponse описывает ошибку.
type ErrorResponse struct {
	Error string `json:"error"`
}

// WriteError отправляет JSON с ошибкой.
func WriteError(w http.ResponseWriter, status int, err error) {
	WriteJSON(w, status, ErrorResponse{Error: err.Error()})
}

// WriteJSON отправляет значение в JSON.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
