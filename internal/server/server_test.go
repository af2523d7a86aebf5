package server

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/daisho-wakazashi/keybook/internal/config"
	"github.com/daisho-wakazashi/keybook/internal/lock"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Environment:   "test",
		HTTPBind:      "127.0.0.1",
		HTTPPort:      0,
		DBBackend:     config.DatabaseSQLite,
		DBDSN:         filepath.Join(t.TempDir(), "server.db") + "?_busy_timeout=5000&_foreign_keys=on",
		JWTSigningKey: "server-test-secret",
		TokenTTL:      time.Hour,
		Timezone:      "UTC",
		LockBackend:   config.LockMemory,
		EventBus:      config.EventBusMemory,
	}
}

func TestOpenServicesUsesKeyedMutexOnSQLite(t *testing.T) {
	services, err := OpenServices(testConfig(t), zerolog.Nop())
	if err != nil {
		t.Fatalf("open services: %v", err)
	}
	defer services.Close()

	if _, ok := services.Locker.(*lock.KeyedMutex); !ok {
		t.Fatalf("expected keyed mutex for sqlite, got %T", services.Locker)
	}
	if services.Availability == nil || services.Booking == nil || services.Users == nil {
		t.Fatal("expected engines to be wired")
	}
}

func TestServerRoutes(t *testing.T) {
	srv, err := New(testConfig(t), zerolog.Nop())
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	defer srv.Close()

	if srv.MetricsServer() != nil {
		t.Fatal("metrics server should be disabled without a bind address")
	}

	tests := []struct {
		path   string
		status int
	}{
		{"/healthz", http.StatusOK},
		{"/api/v1/health", http.StatusOK},
		{"/metrics", http.StatusOK},
		{"/api/v1/blocks", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
		if rec.Code != tt.status {
			t.Fatalf("%s: expected %d, got %d", tt.path, tt.status, rec.Code)
		}
	}
}
