package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ROOT", "/tmp/chat")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 3001, cfg.Port)
	assert.Equal(t, KVBackendDB, cfg.KVBackend)
	assert.Equal(t, "sciphi-alpha", cfg.GptVersion)
	assert.Equal(t, "openai", cfg.LLMClient)
	assert.Equal(t, []string{"*"}, cfg.AllowedOrigins)
	assert.Equal(t, 120*time.Second, cfg.RequestTimeout)
	assert.False(t, cfg.RecordCompletions)
	assert.Equal(t, filepath.Join("/tmp/chat", "db", "chat.db"), cfg.SQLitePath())
	assert.Equal(t, filepath.Join("/tmp/chat", "logs", "server.log"), cfg.LogPath())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "8080")
	t.Setenv("KV_BACKEND", "S3")
	t.Setenv("S3_BUCKET", "chats")
	t.Setenv("ALLOWED_ORIGINS", "https://chat.sciphi.ai,http://localhost:5173")
	t.Setenv("REQUEST_TIMEOUT", "45s")
	t.Setenv("RECORD_COMPLETIONS", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, KVBackendS3, cfg.KVBackend)
	assert.Equal(t, "chats", cfg.S3Bucket)
	assert.Equal(t, []string{"https://chat.sciphi.ai", "http://localhost:5173"}, cfg.AllowedOrigins)
	assert.Equal(t, 45*time.Second, cfg.RequestTimeout)
	assert.True(t, cfg.RecordCompletions)
}

func TestLoadInvalid(t *testing.T) {
	t.Run("kv backend", func(t *testing.T) {
		t.Setenv("KV_BACKEND", "redis")
		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("cache size", func(t *testing.T) {
		t.Setenv("WORKSPACE_CACHE_SIZE", "0")
		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("port", func(t *testing.T) {
		t.Setenv("PORT", "not-a-port")
		_, err := Load()
		assert.Error(t, err)
	})
}
