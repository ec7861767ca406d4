package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"
)

func jsonLogger(t *testing.T, level string) (*Logger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	cfg := &Config{Level: level, Format: "json"}
	return NewWithWriter(cfg, &buf, "rowflow"), &buf
}

func lastLine(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	var m map[string]interface{}
	if err := json.Unmarshal([]byte(lines[len(lines)-1]), &m); err != nil {
		t.Fatalf("invalid json log line %q: %v", lines[len(lines)-1], err)
	}
	return m
}

func TestNewDefault(t *testing.T) {
	l := NewDefault("test-svc")
	if l == nil {
		t.Fatal("expected non-nil logger")
	}
	if l.service != "test-svc" {
		t.Errorf("expected service 'test-svc', got %q", l.service)
	}
}

func TestNewInvalidLevel(t *testing.T) {
	l, buf := jsonLogger(t, "invalid-level")
	l.Debug("hidden")
	l.Info("visible")
	if strings.Contains(buf.String(), "hidden") {
		t.Error("invalid level should fall back to info")
	}
	if !strings.Contains(buf.String(), "visible") {
		t.Error("expected info line to be written")
	}
}

func TestLevelIsPerLogger(t *testing.T) {
	quiet, qbuf := jsonLogger(t, "error")
	loud, lbuf := jsonLogger(t, "debug")

	quiet.Info("q")
	loud.Debug("l")

	if qbuf.Len() != 0 {
		t.Errorf("error-level logger wrote info line: %s", qbuf.String())
	}
	if lbuf.Len() == 0 {
		t.Error("debug-level logger should write debug lines")
	}
}

func TestNewFromEnv(t *testing.T) {
	os.Setenv("LOG_LEVEL", "debug")
	os.Setenv("LOG_FORMAT", "json")
	defer os.Unsetenv("LOG_LEVEL")
	defer os.Unsetenv("LOG_FORMAT")

	l := NewFromEnv("env-svc")
	if l == nil {
		t.Fatal("expected non-nil logger")
	}
}

func TestWithProcess(t *testing.T) {
	l, buf := jsonLogger(t, "info")
	l.WithProcess("orders", "run-1").Info("started")

	m := lastLine(t, buf)
	if m[FieldProcess] != "orders" {
		t.Errorf("expected process=orders, got %v", m[FieldProcess])
	}
	if m[FieldRunID] != "run-1" {
		t.Errorf("expected run_id=run-1, got %v", m[FieldRunID])
	}
	if m[FieldService] != "rowflow" {
		t.Errorf("expected service=rowflow, got %v", m[FieldService])
	}
}

func TestWithComponent(t *testing.T) {
	l, buf := jsonLogger(t, "info")
	l.WithComponent("worker").Info("took row")

	if m := lastLine(t, buf); m[FieldComponent] != "worker" {
		t.Errorf("expected component=worker, got %v", m[FieldComponent])
	}
}

func TestWithContext_RunID(t *testing.T) {
	l, buf := jsonLogger(t, "info")
	ctx := ContextWithRunID(context.Background(), "abc123")
	l.WithContext(ctx).Info("tick")

	if m := lastLine(t, buf); m[FieldRunID] != "abc123" {
		t.Errorf("expected run_id=abc123, got %v", m[FieldRunID])
	}

	if l.WithContext(context.Background()) != l {
		t.Error("context without run id should return the same logger")
	}
}

func TestWithFieldsAndFieldsHelper(t *testing.T) {
	l, buf := jsonLogger(t, "info")
	l.WithFields(map[string]interface{}{FieldOperation: "dedup"}).
		Info("flushed", Fields(FieldCount, 3, FieldOperationIndex, 2, "dangling"))

	m := lastLine(t, buf)
	if m[FieldOperation] != "dedup" {
		t.Errorf("expected operation=dedup, got %v", m[FieldOperation])
	}
	if m[FieldCount] != float64(3) || m[FieldOperationIndex] != float64(2) {
		t.Errorf("unexpected fields %v", m)
	}
	if _, ok := m["dangling"]; ok {
		t.Error("odd trailing key should be ignored")
	}
}

func TestWithError(t *testing.T) {
	l, buf := jsonLogger(t, "info")
	l.WithError(fmt.Errorf("boom")).Error("failed")

	if m := lastLine(t, buf); m[FieldError] != "boom" {
		t.Errorf("expected error=boom, got %v", m[FieldError])
	}
}

func TestErrorAndDurationFields(t *testing.T) {
	ef := ErrorFields("insert", fmt.Errorf("locked"))
	if ef[FieldOperation] != "insert" || ef[FieldError] != "locked" {
		t.Errorf("unexpected error fields %v", ef)
	}
	df := DurationFields("drain", 1500*time.Millisecond)
	if df[FieldPhase] != "drain" || df[FieldDuration] != int64(1500) {
		t.Errorf("unexpected duration fields %v", df)
	}
}

func TestNewNop(t *testing.T) {
	l := NewNop()
	l.Info("nothing", Fields("k", "v"))
	l.WithComponent("x").Error("still nothing")
}

func TestInit(t *testing.T) {
	prev := globalLogger
	defer func() { globalLogger = prev }()

	cfg := Config{Format: "json", ServiceName: "init-svc"}
	Init(&cfg)
	if cfg.Level != "info" {
		t.Errorf("Init should apply defaults, got level %q", cfg.Level)
	}
	if gl := GetGlobalLogger(); gl.service != "init-svc" {
		t.Errorf("expected global service init-svc, got %q", gl.service)
	}
}

func TestGetGlobalLoggerDefault(t *testing.T) {
	prev := globalLogger
	defer func() { globalLogger = prev }()

	globalLogger = nil
	if GetGlobalLogger() == nil {
		t.Fatal("expected default global logger to be created")
	}
}

func TestRegistry(t *testing.T) {
	l, buf := jsonLogger(t, "info")
	Register("registry-test", l)

	Get("registry-test").Info("hello")
	if buf.Len() == 0 {
		t.Error("registered logger should be returned by Get")
	}

	if OrGet(nil, "registry-test") != l {
		t.Error("OrGet(nil) should fall back to the registry")
	}
	other := NewNop()
	if OrGet(other, "registry-test") != other {
		t.Error("OrGet should prefer the explicit logger")
	}
	if Get("unregistered-component") == nil {
		t.Error("unregistered name should still return a logger")
	}
}

func TestConfig_ApplyDefaultsAndValidate(t *testing.T) {
	var cfg Config
	cfg.ApplyDefaults()
	if cfg.Level != "info" || cfg.Format != FormatConsole || cfg.Output != "stdout" {
		t.Errorf("unexpected defaults %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}

	tests := []struct {
		name string
		cfg  Config
	}{
		{"bad level", Config{Level: "loud", Format: "json"}},
		{"bad format", Config{Level: "info", Format: "xml"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
