package log

import (
	"bytes"
	"strings"
	"testing"
)

func TestNewLoggerProdLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "prod", "bot")
	logger.Debug().Msg("скрыто")
	logger.Info().Msg("видно")
	out := buf.String()
	if strings.Contains(out, "скрыто") {
		t.Fatalf("debug не должен попадать в prod: %s", out)
	}
	if !strings.Contains(out, `"service":"bot"`) {
		t.Fatalf("ожидали поле service: %s", out)
	}
}
