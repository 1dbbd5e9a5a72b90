package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"tixledger/internal/config"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func memoryConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Setenv("STORAGE_DRIVER", config.StorageMemory)
	t.Setenv("NATS_ENABLED", "false")
	t.Setenv("GIN_MODE", gin.TestMode)
	t.Setenv("JWT_SECRET", "jwt-secret")
	t.Setenv("WEBHOOK_SECRET", "webhook-secret")
	return config.Load()
}

func TestNewServer_MemoryStorage(t *testing.T) {
	server, err := NewServer(memoryConfig(t))
	require.NoError(t, err)
	defer server.Cleanup()

	tests := []struct {
		path string
		want int
	}{
		{"/health", http.StatusOK},
		{"/metrics", http.StatusOK},
		{"/api/purchases/some-id", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			server.GetRouter().ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.path, nil))
			assert.Equal(t, tt.want, w.Code)
			assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
		})
	}
}

func TestNewServer_RequiresSecrets(t *testing.T) {
	cfg := memoryConfig(t)
	cfg.Security.WebhookSecret = ""

	_, err := NewServer(cfg)
	assert.Error(t, err)
}

func TestNewServer_UnknownStorage(t *testing.T) {
	cfg := memoryConfig(t)
	cfg.StorageDriver = "sqlite"

	_, err := NewServer(cfg)
	assert.Error(t, err)
}
