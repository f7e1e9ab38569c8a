package main

import (
	"context"
	"encoding/json"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/AbhaySingh31/ai-discharge-instructions/internal/config"
	"github.com/AbhaySingh31/ai-discharge-instructions/internal/platform/llm"
	"github.com/AbhaySingh31/ai-discharge-instructions/internal/platform/middleware"
)

func TestMigrationSource_Embedded(t *testing.T) {
	entries, err := fs.Glob(migrationSource(""), "*.sql")
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	if len(entries) < 2 {
		t.Errorf("expected embedded migrations, got %v", entries)
	}
}

func TestMigrationSource_Directory(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "001_init.sql"), []byte("SELECT 1;"), 0o600); err != nil {
		t.Fatal(err)
	}
	entries, _ := fs.Glob(migrationSource(dir), "*.sql")
	if len(entries) != 1 || entries[0] != "001_init.sql" {
		t.Errorf("expected directory migrations, got %v", entries)
	}
}

func TestNewCompleter_NoKey(t *testing.T) {
	c, err := newCompleter(&config.Config{LLMTimeout: time.Second})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c != nil {
		t.Errorf("expected nil completer without an API key, got %T", c)
	}
}

func TestNewCompleter_WithKey(t *testing.T) {
	c, err := newCompleter(&config.Config{OpenRouterAPIKey: "sk-test", LLMTimeout: time.Second})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c == nil {
		t.Fatal("expected completer")
	}
}

func TestNewCompleter_AttributionHeaders(t *testing.T) {
	var headers http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers = r.Header.Clone()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"ok"},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	c, err := newCompleter(&config.Config{
		AppName:           "Discharge",
		OpenRouterAPIKey:  "sk-test",
		OpenRouterBaseURL: srv.URL,
		OpenRouterReferer: "https://discharge.example.org",
		LLMTimeout:        5 * time.Second,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := c.Complete(context.Background(), llm.Request{User: "hi"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := headers.Get("HTTP-Referer"); got != "https://discharge.example.org" {
		t.Errorf("expected referer header, got %q", got)
	}
	if got := headers.Get("X-Title"); got != "Discharge" {
		t.Errorf("expected X-Title header, got %q", got)
	}
}

func TestRateLimitStore_MemoryWithoutRedis(t *testing.T) {
	store, closeFn, err := rateLimitStore(context.Background(), &config.Config{RateLimitRPS: 5, RateLimitBurst: 5}, zerolog.Nop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer func() { _ = closeFn() }()
	if _, ok := store.(*middleware.MemoryStore); !ok {
		t.Errorf("expected *MemoryStore, got %T", store)
	}
}

func TestRateLimitStore_BadRedisURL(t *testing.T) {
	_, _, err := rateLimitStore(context.Background(), &config.Config{RedisURL: "not-a-url://"}, zerolog.Nop())
	if err == nil {
		t.Fatal("expected error for malformed REDIS_URL")
	}
}

func TestAppStatusHandler(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/api/v1/app-status", nil), rec)

	cfg := &config.Config{AppName: "AI Discharge Instructions", AppVersion: "1.0.0"}
	if err := appStatusHandler(cfg)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var body map[string]string
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	if body["status"] != "running" || body["version"] != "1.0.0" || body["service"] != "AI Discharge Instructions" {
		t.Errorf("unexpected body %v", body)
	}
}

func TestHealthHandler(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/health", nil), rec)
	if err := healthHandler("svc")(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}
