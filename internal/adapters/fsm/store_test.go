package fsm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"tg-download-bot/internal/domain"
	"tg-download-bot/internal/infra/cache"
)

func TestStoreRoundTrip(t *testing.T) {
	mem := cache.NewMemory(16)
	defer mem.Stop()
	s := NewStore(mem, time.Minute)
	ctx := context.Background()

	st, err := s.Get(ctx, 1, 2)
	require.NoError(t, err)
	require.False(t, st.Active())

	want := domain.ChatState{Flow: domain.FlowDownloadSetup, Step: domain.StepPagingEnd, SetupMessageID: 5, PromptMessageIDs: []int{6, 7}, Start: 3}
	require.NoError(t, s.Set(ctx, 1, 2, want))
	got, err := s.Get(ctx, 1, 2)
	require.NoError(t, err)
	require.Equal(t, want, got)

	other, err := s.Get(ctx, 1, 3)
	require.NoError(t, err)
	require.False(t, other.Active())

	require.NoError(t, s.Set(ctx, 1, 2, domain.ChatState{}))
	got, err = s.Get(ctx, 1, 2)
	require.NoError(t, err)
	require.False(t, got.Active())
}
