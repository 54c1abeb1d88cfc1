package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadGlobalMissingFileUsesDefaults(t *testing.T) {
	g, err := LoadGlobal(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("ожидали отсутствие ошибки, получили %v", err)
	}
	if g.FreeLimit != 100 {
		t.Fatalf("ожидали лимит 100, получили %d", g.FreeLimit)
	}
	if g.FormatName("fb2") != "Fb2 - для книг" {
		t.Fatalf("неожиданное название формата: %q", g.FormatName("fb2"))
	}
}

func TestLoadGlobalOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "global.json")
	body := `{"admins":[7],"free_limit":5,"demo":{"example.org":"anon"},"groups":{"books":"Книги"}}`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	g, err := LoadGlobal(path)
	if err != nil {
		t.Fatalf("ожидали отсутствие ошибки, получили %v", err)
	}
	if !g.IsAdmin(7) || g.IsAdmin(8) {
		t.Fatalf("неверный список админов: %v", g.Admins)
	}
	if g.FreeLimit != 5 {
		t.Fatalf("ожидали лимит 5, получили %d", g.FreeLimit)
	}
	if !g.IsDemo("example.org") {
		t.Fatal("ожидали демо-сайт")
	}
	if g.GroupName("books") != "Книги" || g.GroupName("manga") != "manga" {
		t.Fatal("неверные названия групп")
	}
	if g.FormatName("epub") == "epub" {
		t.Fatal("форматы по умолчанию должны сохраниться")
	}
}

func TestDefaultGlobalIsNotShared(t *testing.T) {
	a := DefaultGlobal()
	a.Formats["x"] = "y"
	b := DefaultGlobal()
	if _, ok := b.Formats["x"]; ok {
		t.Fatal("настройки по умолчанию не должны разделяться между экземплярами")
	}
}

func TestLoadRequiresEncryptKey(t *testing.T) {
	t.Setenv("ENCRYPT_KEY", "")
	if _, err := Load(); err != ErrEncryptKeyRequired {
		t.Fatalf("ожидали ErrEncryptKeyRequired, получили %v", err)
	}

	t.Setenv("ENCRYPT_KEY", "cw_0x689RpI-jtRR7oE8h_eQsKImvJapLeSbXpwF4e4=")
	t.Setenv("TG_MAX_CONNECTIONS", "10")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("ожидали отсутствие ошибки, получили %v", err)
	}
	if cfg.Telegram.MaxConnections != 10 || cfg.Telegram.WebhookPath != "/bot/webhook" {
		t.Fatalf("неожиданный конфиг telegram: %+v", cfg.Telegram)
	}
}

func TestFormatCodesSorted(t *testing.T) {
	codes := DefaultGlobal().FormatCodes()
	want := []string{"cbz", "epub", "fb2", "mp3"}
	if len(codes) != len(want) {
		t.Fatalf("ожидали %v, получили %v", want, codes)
	}
	for i := range want {
		if codes[i] != want[i] {
			t.Fatalf("ожидали %v, получили %v", want, codes)
		}
	}
}
