package log

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"info":    slog.LevelInfo,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestLoggerStampsComponent(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: slog.LevelDebug, Output: &buf, Component: ComponentLedger})
	l.Info("fetch applied", FieldPage, 2)
	l.WithComponent(ComponentQuery).Debug("fetch issued")

	out := buf.String()
	if !strings.Contains(out, "component=ledger") || !strings.Contains(out, "page=2") {
		t.Fatalf("missing fields in %q", out)
	}
	if !strings.Contains(out, "component=query") {
		t.Fatalf("WithComponent not applied: %q", out)
	}
}

func TestNewContextAndFromContext(t *testing.T) {
	if FromContext(context.Background()).Component() != "unknown" {
		t.Fatalf("expected fallback logger")
	}
	l := Discard().WithComponent(ComponentHTTP).With(FieldRequestID, "req_1")
	seen := FromContext(NewContext(context.Background(), l))
	if seen != l || seen.Component() != ComponentHTTP {
		t.Fatalf("logger not propagated: %+v", seen)
	}
}

func TestFieldsBuilder(t *testing.T) {
	f := NewFields().WithFilter(3, 2, "Dining").WithAttempt("a1", "upload", "").WithError(nil)
	if f[FieldUserID] != int64(3) || f[FieldCategory] != "Dining" || f[FieldStage] != "upload" {
		t.Fatalf("unexpected fields: %v", f)
	}
	if _, ok := f[FieldFileName]; ok {
		t.Fatalf("empty file name should be omitted")
	}
	if _, ok := f[FieldError]; ok {
		t.Fatalf("nil error should be omitted")
	}
	if len(f.ToSlice()) != 2*len(f) {
		t.Fatalf("ToSlice length mismatch")
	}
}
