package security

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"

	"github.com/Inovico-app/inovy-sub002/internal/pii"
)

func newTestLogger(r *Redactor) (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	inner := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	return slog.New(NewRedactingHandler(inner, r)), &buf
}

func TestRedactingHandler(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		log    func(l *slog.Logger)
		secret string
		want   string
	}{
		{
			name:   "message",
			log:    func(l *slog.Logger) { l.Info("key is sk-abcdefghijklmnopqrstuvwxyz") },
			secret: "sk-abcdefghijklmnopqrstuvwxyz",
			want:   RedactPlaceholder,
		},
		{
			name:   "literal attribute",
			log:    func(l *slog.Logger) { l.Info("upstream", "api_key", "super-secret-value", "provider", "openai") },
			secret: "super-secret-value",
			want:   "provider=openai",
		},
		{
			name:   "with attrs",
			log:    func(l *slog.Logger) { l.With("api_key", "super-secret-value").Info("client built") },
			secret: "super-secret-value",
			want:   "client built",
		},
		{
			name:   "with group",
			log:    func(l *slog.Logger) { l.WithGroup("auth").Info("attempt", "key", "sk-abcdefghijklmnopqrstuvwxyz") },
			secret: "sk-abcdefghijklmnopqrstuvwxyz",
			want:   "auth.key",
		},
		{
			name: "group attribute",
			log: func(l *slog.Logger) {
				l.Info("request", slog.Group("upstream",
					slog.String("token", "super-secret-value"),
					slog.String("path", "/v1/messages"),
				))
			},
			secret: "super-secret-value",
			want:   "/v1/messages",
		},
		{
			name: "error value",
			log: func(l *slog.Logger) {
				l.Error("call failed", "error", fmt.Errorf("auth: %w", errors.New("bad key super-secret-value")))
			},
			secret: "super-secret-value",
			want:   "call failed",
		},
		{
			name:   "personal data",
			log:    func(l *slog.Logger) { l.Warn("summary failed", "detail", "owner piet@example.com") },
			secret: "piet@example.com",
			want:   "[EMAIL]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := NewRedactor()
			r.AddLiteral("super-secret-value")
			r.AddScrubber(pii.NewDetector())
			logger, buf := newTestLogger(r)

			tt.log(logger)

			out := buf.String()
			if strings.Contains(out, tt.secret) {
				t.Errorf("secret leaked: %s", out)
			}
			if !strings.Contains(out, tt.want) {
				t.Errorf("output lacks %q: %s", tt.want, out)
			}
		})
	}
}

func TestRedactingHandler_Enabled(t *testing.T) {
	t.Parallel()

	inner := slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelWarn})
	handler := NewRedactingHandler(inner, NewRedactor())

	if handler.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("expected debug to be disabled with warn level")
	}
	if !handler.Enabled(context.Background(), slog.LevelError) {
		t.Error("expected error to be enabled with warn level")
	}
}

func TestRedactingHandler_NoSecrets(t *testing.T) {
	t.Parallel()

	logger, buf := newTestLogger(NewRedactor())
	logger.Info("pool health sweep", "recovered", 2)

	out := buf.String()
	if strings.Contains(out, RedactPlaceholder) {
		t.Errorf("unexpected redaction: %s", out)
	}
	if !strings.Contains(out, "recovered=2") {
		t.Errorf("attribute missing: %s", out)
	}
}
