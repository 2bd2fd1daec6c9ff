package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func validConfig() *Config {
	return &Config{
		Server: ServerConfig{Port: 8080},
		Auth:   AuthConfig{JWTSecret: "test-secret-key-for-unit-testing"},
		Redis:  RedisConfig{Enabled: true},
		Scheduling: SchedulingConfig{
			LockBackend:   "memory",
			WriteAttempts: 3,
		},
	}
}

func TestValidate_OK(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("期望校验通过，实际: %v", err)
	}
}

func TestValidate_ShortSecret(t *testing.T) {
	cfg := validConfig()
	cfg.Auth.JWTSecret = "short"
	if err := cfg.Validate(); err == nil {
		t.Error("jwt_secret 过短应校验失败")
	}
}

func TestValidate_BadPort(t *testing.T) {
	cfg := validConfig()
	cfg.Server.Port = 70000
	if err := cfg.Validate(); err == nil {
		t.Error("端口越界应校验失败")
	}
}

func TestValidate_RedisLockWithoutRedis(t *testing.T) {
	cfg := validConfig()
	cfg.Scheduling.LockBackend = "redis"
	cfg.Redis.Enabled = false
	if err := cfg.Validate(); err == nil {
		t.Error("redis 锁后端需要启用 redis")
	}
}

func TestValidate_UnknownLockBackend(t *testing.T) {
	cfg := validConfig()
	cfg.Scheduling.LockBackend = "etcd"
	if err := cfg.Validate(); err == nil {
		t.Error("未知锁后端应校验失败")
	}
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte(`
server:
  port: 9090
auth:
  jwt_secret: file-secret-at-least-16
scheduling:
  lock_wait: 5s
`)
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("写入配置文件失败: %v", err)
	}

	t.Setenv("TIMETABLE_LOG_LEVEL", "debug")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load 失败: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("期望 port=9090，实际=%d", cfg.Server.Port)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("环境变量应覆盖默认值，实际 level=%s", cfg.Log.Level)
	}
	if cfg.Scheduling.LockWait != 5*time.Second {
		t.Errorf("期望 lock_wait=5s，实际=%v", cfg.Scheduling.LockWait)
	}
	if cfg.Scheduling.WriteAttempts != 3 {
		t.Errorf("期望默认 write_attempts=3，实际=%d", cfg.Scheduling.WriteAttempts)
	}
}
