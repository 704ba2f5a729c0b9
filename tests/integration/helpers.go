package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/aidar/groupmap/internal/app"
	"github.com/aidar/groupmap/internal/config"
)

const (
	testPort   = "18080"
	testSecret = "test-jwt-secret-key-for-integration-tests"
)

// TestEnvironment содержит ресурсы интеграционного теста: контейнеры, запущенное приложение и пул для прямых запросов
type TestEnvironment struct {
	App     *app.App
	BaseURL string
	DB      *pgxpool.Pool

	ctx        context.Context
	containers []testcontainers.Container
	http       *http.Client
}

// SetupTestEnvironment поднимает PostgreSQL и Redis в контейнерах и запускает приложение поверх них
func SetupTestEnvironment(t *testing.T) *TestEnvironment {
	t.Helper()
	ctx := context.Background()
	env := &TestEnvironment{
		ctx:  ctx,
		http: &http.Client{Timeout: 10 * time.Second},
	}

	dbCfg, connStr := env.startPostgres(t)
	redisAddr := env.startRedis(t)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	env.DB = pool

	applyMigrations(t, pool)

	cfg := &config.Config{
		Server:   config.ServerConfig{Host: "127.0.0.1", Port: testPort},
		Database: dbCfg,
		JWT:      config.JWTConfig{Secret: testSecret, ExpirationHours: 1},
		Redis:    config.RedisConfig{Addr: redisAddr, Timeout: 5 * time.Second},
		Presence: config.PresenceConfig{DedupTTL: 10 * time.Second, RosterConcurrency: 4},
	}

	env.App, err = app.New(cfg)
	require.NoError(t, err, "Failed to create application")
	require.NoError(t, env.App.Initialize(ctx), "Failed to initialize application")

	go func() {
		if err := env.App.Run(); err != nil && err != http.ErrServerClosed {
			t.Logf("Server error: %v", err)
		}
	}()

	env.BaseURL = fmt.Sprintf("http://%s:%s", cfg.Server.Host, cfg.Server.Port)
	return env
}

func (te *TestEnvironment) startPostgres(t *testing.T) (config.DatabaseConfig, string) {
	t.Helper()

	container, err := postgres.Run(te.ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("groupmap_test"),
		postgres.WithUsername("test_user"),
		postgres.WithPassword("test_password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err, "Failed to start PostgreSQL container")
	te.containers = append(te.containers, container)

	connStr, err := container.ConnectionString(te.ctx, "sslmode=disable")
	require.NoError(t, err)

	host, err := container.Host(te.ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(te.ctx, "5432")
	require.NoError(t, err)

	return config.DatabaseConfig{
		Host:     host,
		Port:     port.Port(),
		User:     "test_user",
		Password: "test_password",
		Name:     "groupmap_test",
		SSLMode:  "disable",
		MaxConns: 10,
		MinConns: 1,
	}, connStr
}

func (te *TestEnvironment) startRedis(t *testing.T) string {
	t.Helper()

	container, err := testcontainers.GenericContainer(te.ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err, "Failed to start Redis container")
	te.containers = append(te.containers, container)

	addr, err := container.Endpoint(te.ctx, "")
	require.NoError(t, err)
	return addr
}

// Cleanup останавливает приложение и контейнеры
func (te *TestEnvironment) Cleanup(t *testing.T) {
	t.Helper()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if te.App != nil {
		_ = te.App.Shutdown(shutdownCtx)
	}
	if te.DB != nil {
		te.DB.Close()
	}
	for _, c := range te.containers {
		_ = c.Terminate(te.ctx)
	}
}

// applyMigrations выполняет up-миграцию одним запросом (простой протокол pgx допускает несколько выражений)
func applyMigrations(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()

	path := filepath.Join(projectRoot(t), "migrations", "000001_init_schema.up.sql")
	migration, err := os.ReadFile(path)
	require.NoError(t, err, "Failed to read migration file")

	_, err = pool.Exec(context.Background(), string(migration))
	require.NoError(t, err, "Failed to apply migration")
}

// projectRoot поднимается по директориям до go.mod
func projectRoot(t *testing.T) string {
	t.Helper()

	dir, err := os.Getwd()
	require.NoError(t, err)

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatal("go.mod not found")
		}
		dir = parent
	}
}

// WaitForHealthCheck ждет, пока /health начнет отвечать 200
func (te *TestEnvironment) WaitForHealthCheck(t *testing.T) {
	t.Helper()

	require.Eventually(t, func() bool {
		resp, err := te.http.Get(te.BaseURL + "/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 50*time.Millisecond, "Application did not become healthy in time")
}

// Login получает JWT токен для пользователя
func (te *TestEnvironment) Login(t *testing.T, userID string) string {
	t.Helper()

	var resp struct {
		Token string `json:"token"`
	}
	status := te.DoJSON(t, http.MethodPost, "/auth/login", map[string]string{"user_id": userID}, "", &resp)
	require.Equal(t, http.StatusOK, status, "Login should succeed")
	require.NotEmpty(t, resp.Token)

	return resp.Token
}

// DoJSON выполняет запрос с JSON телом и декодирует успешный ответ в out (если out != nil)
func (te *TestEnvironment) DoJSON(t *testing.T, method, path string, in any, token string, out any) int {
	t.Helper()

	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		require.NoError(t, err)
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(te.ctx, method, te.BaseURL+path, body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := te.http.Do(req)
	require.NoError(t, err, "Failed to make request")
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < http.StatusBadRequest && resp.StatusCode != http.StatusNoContent {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}

	return resp.StatusCode
}
