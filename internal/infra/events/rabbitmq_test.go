package events

import (
	"context"
	"testing"
	"time"

	"github.com/goccy/go-json"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"tg-download-bot/internal/domain"
)

func TestBuildPublishing(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	msg, err := buildPublishing(domain.LifecycleEvent{
		Event:  domain.EventDownloadResult,
		TaskID: "42",
		UserID: 7,
		Status: "done",
	}, now)
	require.NoError(t, err)
	require.Equal(t, "application/json", msg.ContentType)
	require.Equal(t, amqp.Persistent, msg.DeliveryMode)
	require.Equal(t, now, msg.Timestamp)
	require.NotEmpty(t, msg.MessageId)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(msg.Body, &decoded))
	require.Equal(t, float64(42), decoded["task_id"])
	require.Equal(t, "download.result", decoded["event"])
}

func TestBuildPublishingRequiresName(t *testing.T) {
	_, err := buildPublishing(domain.LifecycleEvent{}, time.Now())
	require.Error(t, err)
}

type chanPublisher chan domain.LifecycleEvent

func (c chanPublisher) Publish(_ context.Context, e domain.LifecycleEvent) error {
	c <- e
	return nil
}

func TestAsyncPublishes(t *testing.T) {
	ch := make(chanPublisher, 1)
	a := NewAsync(ch, zerolog.Nop())
	require.NoError(t, a.Publish(context.Background(), domain.LifecycleEvent{Event: domain.EventDownloadSubmitted}))
	select {
	case e := <-ch:
		require.Equal(t, domain.EventDownloadSubmitted, e.Event)
	case <-time.After(time.Second):
		t.Fatal("событие не опубликовано")
	}
}
