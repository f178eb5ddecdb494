package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/comitanigiacomo/glow-sync-engine/internal/config"
	"github.com/comitanigiacomo/glow-sync-engine/internal/core/services"
	"github.com/comitanigiacomo/glow-sync-engine/internal/core/workers"
)

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func testConfig(store string) *config.Config {
	return &config.Config{
		Env:   "test",
		Port:  "0",
		Store: store,
		DB: config.DB{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnv("DB_PORT", "5432"),
			User:            getEnv("DB_USER", "glow_user"),
			Password:        getEnv("DB_PASSWORD", "secret"),
			Name:            getEnv("DB_NAME", "glow_db"),
			MaxOpenConns:    5,
			ConnMaxLifetime: time.Minute,
		},
		Redis: config.Redis{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", "secret_redis_pass_local"),
			DB:       1,
		},
		JWT:       config.JWT{Secret: "e2e-secret", Issuer: "e2e"},
		History:   config.History{Days: 30, Concurrency: 10},
		RateLimit: config.RateLimit{Requests: 1000, Window: time.Minute},
	}
}

func runLifecycle(t *testing.T, cfg *config.Config, be *backend) {
	gin.SetMode(gin.TestMode)
	logger := zap.NewNop()

	calendar := workers.NewDateBoundary(logger, workers.WithClock(func() time.Time {
		return time.Date(2024, 6, 15, 9, 0, 0, 0, time.Local)
	}))
	router := newRouter(cfg, logger, be, calendar, time.Now())

	token, err := services.NewTokenService(cfg.JWT.Secret, cfg.JWT.Issuer, time.Hour).GenerateToken("e2e-tester-1")
	require.NoError(t, err)

	send := func(method, path, body string) *httptest.ResponseRecorder {
		req, _ := http.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	t.Run("1. Sign In", func(t *testing.T) {
		w := send(http.MethodPost, "/api/v1/session", "")
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("2. Save Routines", func(t *testing.T) {
		w := send(http.MethodPut, "/api/v1/routines/AM", `{"steps": [{"step": 1, "name": "Cleanser"}, {"step": 2, "name": "SPF"}]}`)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		w = send(http.MethodPut, "/api/v1/routines/PM", `{"steps": [{"step": 1, "name": "Oil"}, {"step": 2, "name": "Serum"}, {"step": 3, "name": "Cream"}]}`)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	})

	t.Run("3. Cache Receives Routines", func(t *testing.T) {
		assert.Eventually(t, func() bool {
			w := send(http.MethodGet, "/api/v1/routines", "")
			return bytes.Contains(w.Body.Bytes(), []byte(`"stepCount":"3 steps"`)) &&
				bytes.Contains(w.Body.Bytes(), []byte(`"stepCount":"2 steps"`))
		}, 2*time.Second, 20*time.Millisecond)
	})

	t.Run("4. Toggle Steps", func(t *testing.T) {
		for _, step := range []string{"AM_1", "PM_1"} {
			w := send(http.MethodPut, "/api/v1/progress/today/steps/"+step, `{"completed": true}`)
			require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())
		}
	})

	t.Run("5. Read Stats", func(t *testing.T) {
		w := send(http.MethodGet, "/api/v1/progress/2024-06-15", "")

		assert.Equal(t, http.StatusOK, w.Code)
		// AM 1/2 = 50, PM 1/3 = 33, overall (50+33)/2 rounds up to 42.
		assert.Contains(t, w.Body.String(), `"stats":{"am":50,"pm":33,"overall":42}`)
	})

	t.Run("6. Sign Out", func(t *testing.T) {
		w := send(http.MethodDelete, "/api/v1/session", "")
		assert.Equal(t, http.StatusNoContent, w.Code)
	})
}

func TestEndToEnd_MemoryStore(t *testing.T) {
	cfg := testConfig(config.StoreMemory)

	be, err := newBackend(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer be.Close()

	runLifecycle(t, cfg, be)
}

func TestEndToEnd_Postgres(t *testing.T) {
	_ = godotenv.Load("../../.env")
	cfg := testConfig(config.StorePostgres)

	be, err := newBackend(context.Background(), cfg, zap.NewNop())
	if err != nil {
		t.Skipf("Skipping E2E test (Postgres or Redis down): %v", err)
	}
	defer be.Close()

	schema, err := os.ReadFile("../../migrations/001_init.sql")
	require.NoError(t, err)
	_, err = be.db.Exec(string(schema))
	require.NoError(t, err)

	ctx := context.Background()
	_, err = be.db.ExecContext(ctx, "DELETE FROM daily_progress WHERE user_id = $1", "e2e-tester-1")
	require.NoError(t, err)
	_, err = be.db.ExecContext(ctx, "DELETE FROM skincare_routines WHERE user_id = $1", "e2e-tester-1")
	require.NoError(t, err)
	require.NoError(t, be.redis.FlushDB(ctx).Err())

	runLifecycle(t, cfg, be)
}
