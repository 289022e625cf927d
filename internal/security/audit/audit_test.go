package audit

import (
	"context"
	"log/slog"
	"sync"
	"testing"
)

// captureHandler collects slog records so tests can assert on audit output.
type captureHandler struct {
	mu      sync.Mutex
	records []slog.Record
}

func (h *captureHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *captureHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, r.Clone())
	return nil
}

func (h *captureHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *captureHandler) WithGroup(string) slog.Handler      { return h }

func (h *captureHandler) attrs(t *testing.T, i int) map[string]string {
	t.Helper()
	h.mu.Lock()
	defer h.mu.Unlock()
	if i >= len(h.records) {
		t.Fatalf("expected at least %d records, got %d", i+1, len(h.records))
	}
	out := map[string]string{}
	h.records[i].Attrs(func(a slog.Attr) bool {
		out[a.Key] = a.Value.String()
		return true
	})
	return out
}

func TestLogLoginCarriesOutcome(t *testing.T) {
	h := &captureHandler{}
	al := NewLogger(slog.New(h))

	al.LogLogin(context.Background(), "t-1", "u-1", "success")

	attrs := h.attrs(t, 0)
	if attrs["action"] != "login" || attrs["status"] != "success" || attrs["user_id"] != "u-1" {
		t.Fatalf("unexpected audit attrs: %v", attrs)
	}
}

func TestLogLicenseCarriesKeyAndOutcome(t *testing.T) {
	h := &captureHandler{}
	al := NewLogger(slog.New(h))

	al.LogLicense(context.Background(), "t-1", "u-1", "revoke", "ABC123", "not_found")

	attrs := h.attrs(t, 0)
	if attrs["action"] != "revoke" || attrs["resource_id"] != "ABC123" || attrs["status"] != "not_found" {
		t.Fatalf("unexpected audit attrs: %v", attrs)
	}
}

func TestLogDenied(t *testing.T) {
	h := &captureHandler{}
	al := NewLogger(slog.New(h))

	al.LogDenied(context.Background(), "t-1", "u-1", "operator secret mismatch")

	attrs := h.attrs(t, 0)
	if attrs["action"] != "access_denied" || attrs["status"] != "denied" || attrs["details"] != "operator secret mismatch" {
		t.Fatalf("unexpected audit attrs: %v", attrs)
	}
}
