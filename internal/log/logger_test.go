package log

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestNew_JSONIncludesComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: slog.LevelInfo, Format: "json", Component: ComponentWorker, Output: &buf})

	logger.Info("tick complete", FieldCreated, 3)

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("output is not JSON: %v (%q)", err, buf.String())
	}
	if rec[FieldComponent] != ComponentWorker {
		t.Errorf("component = %v, want %s", rec[FieldComponent], ComponentWorker)
	}
	if rec[FieldCreated] != float64(3) {
		t.Errorf("processed = %v, want 3", rec[FieldCreated])
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: ParseLevel("warn"), Output: &buf})

	logger.Info("hidden")
	logger.Warn("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, "shown") {
		t.Errorf("unexpected output %q", out)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestContextRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Output: &buf, Component: ComponentRecurrence})
	ctx := NewContext(context.Background(), logger.With(FieldTickID, "t-1"))

	FromContext(ctx).Info("hello")
	if !strings.Contains(buf.String(), "tick_id=t-1") || !strings.Contains(buf.String(), "component=recurrence") {
		t.Errorf("context logger lost attributes: %q", buf.String())
	}

	if got := FromContext(context.Background()).Component(); got != ComponentApp {
		t.Errorf("fallback component = %q, want %q", got, ComponentApp)
	}
}

func TestLogFields(t *testing.T) {
	f := NewFields().WithOperation(OpTick).WithError(errors.New("boom")).WithRule("r", "u", "weekly")
	if f[FieldOperation] != OpTick || f[FieldError] != "boom" || f[FieldFrequency] != "weekly" {
		t.Errorf("fields = %v", f)
	}
	if n := len(f.ToSlice()); n != 2*len(f) {
		t.Errorf("ToSlice() len = %d, want %d", n, 2*len(f))
	}
	if _, ok := NewFields().WithError(nil)[FieldError]; ok {
		t.Error("nil error should not be recorded")
	}
}
