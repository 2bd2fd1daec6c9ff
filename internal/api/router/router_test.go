package router

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"academic-portal/backend/config"
	"academic-portal/backend/internal/api/handler"
	"academic-portal/backend/internal/service"
	"academic-portal/backend/pkg/jwt"
)

func newTestEngine(t *testing.T) (http.Handler, *jwt.Manager) {
	t.Helper()
	cfg := &config.Config{
		Auth:      config.AuthConfig{JWTSecret: "test-secret-key-for-unit-testing-2026", Issuer: "academic-portal"},
		RateLimit: config.RateLimitConfig{WriteLimit: 30, WriteWindow: time.Minute},
	}
	jwtMgr := jwt.NewManager(&cfg.Auth)
	h := handler.NewHandler(&service.Service{})
	return Setup(cfg, h, jwtMgr, nil, nil, zap.NewNop()), jwtMgr
}

func TestRouter_Health(t *testing.T) {
	engine, _ := newTestEngine(t)

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("响应缺少 X-Request-ID")
	}
}

func TestRouter_Authentication(t *testing.T) {
	engine, jwtMgr := newTestEngine(t)

	tests := []struct {
		name   string
		role   string
		path   string
		status int
	}{
		{"未认证", "", "/api/v1/timetable/my-schedule", http.StatusUnauthorized},
		{"教师不能查看管理员列表", "teacher", "/api/v1/timetable", http.StatusForbidden},
		{"教师不能导出", "teacher", "/api/v1/timetable/semester/a3d5f7b9-2c4e-4f6a-8b1d-3e5f7a9c1b20/export", http.StatusForbidden},
		{"非法 ID", "admin", "/api/v1/timetable/not-a-uuid", http.StatusBadRequest},
		{"日志需管理员", "hod", "/api/v1/timetable/a3d5f7b9-2c4e-4f6a-8b1d-3e5f7a9c1b20/change-logs", http.StatusForbidden},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", tc.path, nil)
			if tc.role != "" {
				token, err := jwtMgr.GenerateAccessToken("user-1", tc.role, time.Minute)
				if err != nil {
					t.Fatalf("签发 Token 失败: %v", err)
				}
				req.Header.Set("Authorization", "Bearer "+token)
			}
			w := httptest.NewRecorder()
			engine.ServeHTTP(w, req)
			if w.Code != tc.status {
				t.Errorf("expected %d, got %d", tc.status, w.Code)
			}
		})
	}
}
