package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLoggerWithLevel(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		level      zapcore.Level
	}{
		{name: "2xx success", statusCode: http.StatusOK, level: zapcore.DebugLevel},
		{name: "4xx client error", statusCode: http.StatusBadRequest, level: zapcore.WarnLevel},
		{name: "5xx server error", statusCode: http.StatusInternalServerError, level: zapcore.ErrorLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, logs := observer.New(zapcore.DebugLevel)
			handler := chimiddleware.RequestID(LoggerWithLevel(zap.New(core))(
				http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					w.WriteHeader(tt.statusCode)
				})))

			w := httptest.NewRecorder()
			handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))

			if w.Code != tt.statusCode {
				t.Errorf("expected status %d, got %d", tt.statusCode, w.Code)
			}
			entries := logs.All()
			if len(entries) != 1 {
				t.Fatalf("expected 1 log entry, got %d", len(entries))
			}
			if entries[0].Level != tt.level {
				t.Errorf("expected level %s, got %s", tt.level, entries[0].Level)
			}
			fields := entries[0].ContextMap()
			if fields["status"] != int64(tt.statusCode) {
				t.Errorf("expected status field %d, got %v", tt.statusCode, fields["status"])
			}
			if fields["request_id"] == "" || fields["request_id"] == nil {
				t.Error("expected request_id field")
			}
		})
	}
}

func TestLoggerDefaultStatus(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	handler := LoggerWithLevel(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("body"))
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if got := logs.All()[0].ContextMap()["status"]; got != int64(http.StatusOK) {
		t.Errorf("expected implicit 200, got %v", got)
	}
}

func TestResponseWriterHijackUnsupported(t *testing.T) {
	rw := wrapResponseWriter(httptest.NewRecorder())
	if _, _, err := rw.Hijack(); err == nil {
		t.Error("expected error from recorder without Hijacker")
	}
}
