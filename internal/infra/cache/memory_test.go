package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"tg-download-bot/internal/domain"
)

func TestMemoryCacheTTL(t *testing.T) {
	c := NewMemory(16)
	defer c.Stop()
	ctx := context.Background()

	if _, err := c.Get(ctx, "k"); !errors.Is(err, domain.ErrCacheMiss) {
		t.Fatalf("ожидали промах, получили %v", err)
	}
	if err := c.Set(ctx, "k", []byte("v"), 30*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	got, err := c.Get(ctx, "k")
	if err != nil || string(got) != "v" {
		t.Fatalf("ожидали v, получили %q %v", got, err)
	}
	time.Sleep(60 * time.Millisecond)
	if _, err := c.Get(ctx, "k"); !errors.Is(err, domain.ErrCacheMiss) {
		t.Fatalf("ожидали истечение ключа, получили %v", err)
	}
}

func TestMemoryCacheDelete(t *testing.T) {
	c := NewMemory(16)
	defer c.Stop()
	ctx := context.Background()
	_ = c.Set(ctx, "k", []byte("v"), time.Minute)
	_ = c.Delete(ctx, "k")
	if _, err := c.Get(ctx, "k"); !errors.Is(err, domain.ErrCacheMiss) {
		t.Fatalf("ожидали промах после удаления, получили %v", err)
	}
}

func TestMemoryCacheSetNX(t *testing.T) {
	c := NewMemory(16)
	defer c.Stop()
	ctx := context.Background()

	ok, err := c.SetNX(ctx, "nonce", []byte("1"), 30*time.Millisecond)
	if err != nil || !ok {
		t.Fatalf("первая запись должна пройти: ok=%v err=%v", ok, err)
	}
	if ok, _ := c.SetNX(ctx, "nonce", []byte("2"), time.Minute); ok {
		t.Fatal("повторная запись должна отклоняться")
	}
	time.Sleep(60 * time.Millisecond)
	if ok, _ := c.SetNX(ctx, "nonce", []byte("3"), time.Minute); !ok {
		t.Fatal("после истечения ключ можно занять снова")
	}
}
