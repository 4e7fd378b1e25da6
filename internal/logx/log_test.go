package logx_test

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"

	"github.com/gaspardpetit/gmbridge/internal/logx"
)

func TestConfigureLogLevel(t *testing.T) {
	defer logx.Configure("info")

	logx.Configure("all")
	if zerolog.GlobalLevel() != zerolog.TraceLevel {
		t.Fatalf("expected trace level, got %s", zerolog.GlobalLevel())
	}

	logx.Configure("WARNING")
	if zerolog.GlobalLevel() != zerolog.WarnLevel {
		t.Fatalf("expected warn level, got %s", zerolog.GlobalLevel())
	}

	logx.Configure("none")
	if zerolog.GlobalLevel() != zerolog.Disabled {
		t.Fatalf("expected disabled level, got %s", zerolog.GlobalLevel())
	}

	logx.Configure("bogus")
	if zerolog.GlobalLevel() != zerolog.InfoLevel {
		t.Fatalf("expected info level, got %s", zerolog.GlobalLevel())
	}
}

func TestComponentJSON(t *testing.T) {
	defer logx.Configure("info")

	var buf bytes.Buffer
	logx.ConfigureJSON("debug", &buf)
	l := logx.Component("bridge")
	l.Info().Str("op", "ping").Msg("hello")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode %q: %v", buf.String(), err)
	}
	if line["component"] != "bridge" || line["op"] != "ping" || line["message"] != "hello" {
		t.Fatalf("unexpected log line: %v", line)
	}
}
