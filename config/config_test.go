package config

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.AppAddr)
	assert.Equal(t, "tuition.db", cfg.DBPath)
	assert.Equal(t, 8, cfg.PayrollWorkers)
	assert.Equal(t, 5*time.Minute, cfg.CacheTTL)
	assert.Empty(t, cfg.RedisAddr)
	assert.False(t, cfg.IsProduction())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("DB_PATH", ":memory:")
	t.Setenv("REDIS_ADDR", "127.0.0.1:6379")
	t.Setenv("PAYROLL_WORKERS", "3")
	t.Setenv("CORS_ORIGINS", "https://a.example,https://b.example")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.IsProduction())
	assert.Equal(t, ":memory:", cfg.DBPath)
	assert.Equal(t, "127.0.0.1:6379", cfg.RedisAddr)
	assert.Equal(t, 3, cfg.PayrollWorkers)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
}

func TestLoad_RejectsZeroWorkers(t *testing.T) {
	t.Setenv("PAYROLL_WORKERS", "0")

	_, err := Load()
	assert.Error(t, err)
}

func TestNewLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&Config{LogFormat: "json"}, &buf)

	logger.Info("salary computed", "teacher_id", "t1")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "salary computed", line["msg"])
	assert.Equal(t, "t1", line["teacher_id"])
}

func TestNewLogger_TextByDefault(t *testing.T) {
	var buf bytes.Buffer
	newLogger(nil, &buf).Info("hello")

	assert.Contains(t, buf.String(), "msg=hello")
}
