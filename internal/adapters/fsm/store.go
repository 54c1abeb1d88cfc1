package fsm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"tg-download-bot/internal/domain"
)

// Store хранит состояние диалогов в кэше (Redis или память процесса).
type Store struct {
	cache domain.Cache
	ttl   time.Duration
}

// NewStore создаёт хранилище. Незавершённые диалоги забываются через ttl.
func NewStore(cache domain.Cache, ttl time.Duration) *Store {
	return &Store{cache: cache, ttl: ttl}
}

func key(chatID, userID int64) string {
	return fmt.Sprintf("fsm:%d:%d", chatID, userID)
}

// Get возвращает состояние. Отсутствие состояния — FlowNone без ошибки.
func (s *Store) Get(ctx context.Context, chatID, userID int64) (domain.ChatState, error) {
	data, err := s.cache.Get(ctx, key(chatID, userID))
	if errors.Is(err, domain.ErrCacheMiss) {
		return domain.ChatState{}, nil
	}
	if err != nil {
		return domain.ChatState{}, err
	}
	var st domain.ChatState
	if err := json.Unmarshal(data, &st); err != nil {
		return domain.ChatState{}, fmt.Errorf("decode fsm state: %w", err)
	}
	return st, nil
}

// Set сохраняет состояние.
func (s *Store) Set(ctx context.Context, chatID, userID int64, state domain.ChatState) error {
	if !state.Active() {
		return s.Clear(ctx, chatID, userID)
	}
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode fsm state: %w", err)
	}
	return s.cache.Set(ctx, key(chatID, userID), data, s.ttl)
}

// Clear завершает диалог.
func (s *Store) Clear(ctx context.Context, chatID, userID int64) error {
	return s.cache.Delete(ctx, key(chatID, userID))
}

var _ domain.StateStore = (*Store)(nil)
