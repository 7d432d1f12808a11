package app

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/Inovico-app/inovy-sub002/internal/audit"
	"github.com/Inovico-app/inovy-sub002/internal/config"
	"github.com/Inovico-app/inovy-sub002/internal/security"
	"github.com/Inovico-app/inovy-sub002/internal/security/securitytest"
)

func TestResolveConfigPath_XDGConfigHome(t *testing.T) {
	dir := t.TempDir()
	cfgDir := filepath.Join(dir, "inovy")
	if err := os.MkdirAll(cfgDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	cfgPath := filepath.Join(cfgDir, "inovy.yaml")
	if err := os.WriteFile(cfgPath, []byte("version: \"1\""), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	t.Setenv("XDG_CONFIG_HOME", dir)

	got, err := ResolveConfigPath()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != cfgPath {
		t.Errorf("got %q, want %q", got, cfgPath)
	}
}

func TestResolveConfigPath_NotFound(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/nonexistent/path")
	t.Chdir(t.TempDir())

	if _, err := ResolveConfigPath(); err == nil {
		t.Error("expected error when no config file found")
	}
}

func TestRun_InvalidConfigPath(t *testing.T) {
	if err := Run(RunParams{ConfigPath: "/nonexistent/config.yaml"}); err == nil {
		t.Error("expected error for invalid config path")
	}
}

func TestRun_InvalidConfigContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("not: valid: yaml: ["), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := Run(RunParams{ConfigPath: path}); err == nil {
		t.Error("expected error for invalid YAML")
	}
}

func TestRun_ValidationFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "noversion.yaml")
	if err := os.WriteFile(path, []byte("storage:\n  driver: memory\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := Run(RunParams{ConfigPath: path}); err == nil {
		t.Error("expected validation error")
	}
}

func TestLoadConfig_Overrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "inovy.yaml")
	body := "version: \"1\"\nproviders:\n  openai:\n    api_key: sk-test\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, _, err := LoadConfig(RunParams{ConfigPath: path, DataDir: "/tmp/inovy-data", LogLevel: "debug"})
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.DataDir != "/tmp/inovy-data" || cfg.Log.Level != "debug" {
		t.Errorf("overrides not applied: data_dir %q, level %q", cfg.DataDir, cfg.Log.Level)
	}

	if _, _, err := LoadConfig(RunParams{ConfigPath: path, LogLevel: "chatty"}); err == nil {
		t.Error("expected validation error for bad log level override")
	}
}

func TestNewLogger_RedactsCredentials(t *testing.T) {
	t.Parallel()

	redactor := securitytest.NewTestRedactor()
	redactor.SyncCredentials(securitytest.NewTestCredentialStore("openai_api_key", "key-live-0042"))

	var buf bytes.Buffer
	logger := NewLogger(config.LogConfig{Level: "info", Format: "json"}, &buf, redactor)
	logger.Info("upstream call", "authorization", "Bearer key-live-0042")
	logger.Debug("hidden")

	if strings.Contains(buf.String(), "key-live-0042") {
		t.Errorf("credential leaked: %s", buf.String())
	}
	if !strings.Contains(buf.String(), security.RedactPlaceholder) {
		t.Errorf("expected placeholder: %s", buf.String())
	}
	if strings.Contains(buf.String(), "hidden") {
		t.Error("debug record written at info level")
	}
}

// fakeOpenAI answers chat completions and records the messages sent.
type fakeOpenAI struct {
	mu       sync.Mutex
	requests [][]map[string]any
}

func (f *fakeOpenAI) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Messages []map[string]any `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode upstream request: %v", err)
		}
		f.mu.Lock()
		f.requests = append(f.requests, body.Messages)
		f.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1700000000,
			"model": "gpt-4o",
			"choices": [{"index": 0, "finish_reason": "stop", "message": {"role": "assistant", "content": "We chose option B."}}],
			"usage": {"prompt_tokens": 12, "completion_tokens": 5, "total_tokens": 17}
		}`)
	})
	return mux
}

func (f *fakeOpenAI) sent() [][]map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests
}

func buildTestApp(t *testing.T, yaml string) (*App, *bytes.Buffer) {
	t.Helper()
	cfg, err := config.Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if err := config.Validate(cfg); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	var logs bytes.Buffer
	a, err := Build(context.Background(), cfg, BuildParams{Version: "test", LogOutput: &logs})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return a, &logs
}

func TestApp_EndToEnd(t *testing.T) {
	upstream := &fakeOpenAI{}
	srv := httptest.NewServer(upstream.handler(t))
	defer srv.Close()

	dir := t.TempDir()
	auditPath := filepath.Join(dir, "audit.jsonl")
	a, logs := buildTestApp(t, `
version: "1"
data_dir: `+dir+`
server:
  bind: 127.0.0.1:0
pool:
  size: 1
providers:
  openai:
    api_key: sk-test-app-credential-000000
    base_url: `+srv.URL+`/v1
storage:
  driver: memory
audit:
  sink: jsonl
  path: `+auditPath+`
`)

	ctx := context.Background()
	if err := a.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	base := "http://" + a.Gateway.Addr().String()
	generate := func(prompt string) map[string]any {
		t.Helper()
		body, _ := json.Marshal(map[string]any{
			"prompt": prompt,
			"config": map[string]any{"organizationId": "org-1", "userId": "u-1", "conversationId": "c-1"},
		})
		resp, err := http.Post(base+"/v1/generate", "application/json", bytes.NewReader(body))
		if err != nil {
			t.Fatalf("POST /v1/generate: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			raw, _ := io.ReadAll(resp.Body)
			t.Fatalf("status = %d, body %s", resp.StatusCode, raw)
		}
		var out map[string]any
		_ = json.NewDecoder(resp.Body).Decode(&out)
		return out
	}

	first := generate("Mail the decision to anna@example.com please")
	if first["text"] != "We chose option B." {
		t.Errorf("first result = %v", first)
	}
	generate("And what was the budget?")

	sent := upstream.sent()
	if len(sent) != 2 {
		t.Fatalf("upstream calls = %d, want 2", len(sent))
	}
	if got := sent[0][len(sent[0])-1]["content"]; got != "Mail the decision to [EMAIL] please" {
		t.Errorf("first upstream prompt = %v", got)
	}
	// The second turn carries the stored first exchange.
	if len(sent[1]) != 3 {
		t.Errorf("second upstream call has %d messages, want 3", len(sent[1]))
	}

	resp, err := http.Get(base + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	metrics, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	for _, want := range []string{`inovy_pool_clients_healthy{provider="openai"} 1`, `inovy_gateway_requests_total{endpoint="generate",outcome="ok"} 2`} {
		if !strings.Contains(string(metrics), want) {
			t.Errorf("metrics missing %s", want)
		}
	}

	if err := a.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	f, err := os.Open(auditPath)
	if err != nil {
		t.Fatalf("open audit log: %v", err)
	}
	defer f.Close()
	var entries []audit.Entry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var e audit.Entry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			t.Fatalf("audit line: %v", err)
		}
		entries = append(entries, e)
	}
	if len(entries) != 2 {
		t.Fatalf("audit entries = %d, want 2", len(entries))
	}
	if entries[0].Outcome != audit.OutcomeCompleted || strings.Contains(entries[0].InputPreview, "anna@example.com") {
		t.Errorf("audit entry = %+v", entries[0])
	}

	if strings.Contains(logs.String(), "sk-test-app-credential-000000") {
		t.Error("API key written to logs")
	}
}

func TestApp_SQLiteStorage(t *testing.T) {
	dir := t.TempDir()
	a, _ := buildTestApp(t, `
version: "1"
data_dir: `+dir+`
server:
  bind: 127.0.0.1:0
providers:
  anthropic:
    api_key: test-key
audit:
  retention: 720h
`)

	ctx := context.Background()
	if err := a.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if a.Notes == nil {
		t.Fatal("note store not wired")
	}
	if err := a.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "inovy.db")); err != nil {
		t.Errorf("database file: %v", err)
	}
}

func TestBuild_ModerationRequiresCredentials(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")

	cfg, err := config.Parse([]byte("version: \"1\"\nproviders:\n  openai: {}\nguard:\n  moderation: true\nstorage:\n  driver: memory\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	_, err = Build(context.Background(), cfg, BuildParams{LogOutput: io.Discard})
	if err == nil {
		t.Fatal("expected error when moderation has no API key")
	}
}
