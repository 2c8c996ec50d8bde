package log

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestLevelFromString(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{" error ", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := LevelFromString(tt.in); got != tt.want {
			t.Errorf("LevelFromString(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestJSONLoggerAddsComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: slog.LevelInfo, Format: "json", Component: ComponentSync, Output: &buf})

	logger.Info("job finished", FieldJobID, "abc")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("output is not JSON: %v (%s)", err, buf.String())
	}
	if rec[FieldComponent] != ComponentSync {
		t.Errorf("component = %v, want %s", rec[FieldComponent], ComponentSync)
	}
	if rec[FieldJobID] != "abc" {
		t.Errorf("job_id = %v, want abc", rec[FieldJobID])
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: slog.LevelWarn, Format: "json", Output: &buf})

	logger.Info("hidden")
	if buf.Len() != 0 {
		t.Fatalf("info should be filtered at warn level, got %s", buf.String())
	}
	logger.Warn("shown")
	if buf.Len() == 0 {
		t.Fatal("warn should be written")
	}
}

func TestMiddlewareStoresLoggerWithRequestID(t *testing.T) {
	var buf bytes.Buffer
	base := New(Config{Level: slog.LevelInfo, Format: "json", Component: ComponentHTTP, Output: &buf})
	extract := func(context.Context) string { return "req_1" }

	handler := Middleware(base, extract)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		FromContext(r.Context()).InfoContext(r.Context(), "inside")
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if rec[FieldRequestID] != "req_1" {
		t.Errorf("request_id = %v, want req_1", rec[FieldRequestID])
	}
}

func TestFromContextFallsBackToDefault(t *testing.T) {
	l := FromContext(context.Background())
	if l == nil || l.Logger == nil {
		t.Fatal("expected default logger")
	}
	if l.Component() != ComponentApp {
		t.Errorf("component = %s, want %s", l.Component(), ComponentApp)
	}
}

func TestFieldsBuilder(t *testing.T) {
	f := NewFields().WithJob("j1", 7).WithHTTPResponse(503, 12)
	if f[FieldSuccess] != false || f[FieldUserID] != int64(7) {
		t.Errorf("unexpected fields: %v", f)
	}
	if len(f.ToSlice()) != 2*len(f) {
		t.Errorf("ToSlice length mismatch")
	}
}
