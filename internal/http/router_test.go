package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/elementalclinic/go-clinic-backend/internal/config"
	"github.com/elementalclinic/go-clinic-backend/internal/llm"
	"github.com/elementalclinic/go-clinic-backend/internal/repo"
)

type stubGenerator struct{}

func (stubGenerator) GenerateReply(_ context.Context, _ string, _ *llm.Context) string {
	return "stub reply"
}

func (stubGenerator) ExtractAppointment(_ context.Context, _, _ string, _ *llm.Context) *llm.AppointmentCandidate {
	return nil
}

type stubSender struct{}

func (stubSender) SendMessage(_ context.Context, _, _ string) error { return nil }

func newRouterDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), fmt.Sprintf("router_test_%d.db", time.Now().UnixNano()))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func testConfig() config.Config {
	return config.Config{
		APIBasePath: "/api/v1",
		RateRPS:     100,
		RateBurst:   100,
		Instagram: config.InstagramConfig{
			WebhookEnabled: true,
			VerifyToken:    "verify-secret",
		},
		ContextWindow:   15,
		MaxMessageRunes: 2000,
	}
}

func newTestEngine(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterRoutes(r, Dependencies{
		DB:        newRouterDB(t),
		Generator: stubGenerator{},
		Sender:    stubSender{},
	}, testConfig())
	return r
}

func TestRouter_HealthAndMetrics(t *testing.T) {
	r := newTestEngine(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"status":"ok"`) {
		t.Fatalf("health: %d %s", w.Code, w.Body.String())
	}

	w2 := httptest.NewRecorder()
	r.ServeHTTP(w2, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w2.Code != http.StatusOK {
		t.Fatalf("metrics: %d", w2.Code)
	}
}

func TestRouter_NotFoundEnvelope(t *testing.T) {
	r := newTestEngine(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nope", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d", w.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if body["code"] != "not_found" {
		t.Fatalf("unexpected envelope: %v", body)
	}
}

func TestRouter_ChatEndpointWired(t *testing.T) {
	r := newTestEngine(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat/message",
		strings.NewReader(`{"message":"hello"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "stub reply") {
		t.Fatalf("reply not returned: %s", w.Body.String())
	}
}

func TestRouter_WebhookVerifyWired(t *testing.T) {
	r := newTestEngine(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet,
		"/webhook/instagram?hub.mode=subscribe&hub.verify_token=verify-secret&hub.challenge=777", nil))
	if w.Code != http.StatusOK || w.Body.String() != "777" {
		t.Fatalf("verify: %d %q", w.Code, w.Body.String())
	}
}

func TestRouter_WebhookDisabledNotMounted(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	cfg := testConfig()
	cfg.Instagram.WebhookEnabled = false
	RegisterRoutes(r, Dependencies{
		DB:        newRouterDB(t),
		Generator: stubGenerator{},
	}, cfg)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/webhook/instagram", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected webhook routes absent, got %d", w.Code)
	}
}
