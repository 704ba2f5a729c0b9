package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"

	"github.com/aidar/groupmap/internal/config"
	"github.com/aidar/groupmap/internal/handler"
	"github.com/aidar/groupmap/internal/middleware"
	"github.com/aidar/groupmap/internal/repository/postgres"
	"github.com/aidar/groupmap/internal/repository/redis"
	"github.com/aidar/groupmap/internal/service"
)

// App представляет приложение со всеми зависимостями
type App struct {
	config *config.Config
	db     *pgxpool.Pool
	redis  *goredis.Client
	server *http.Server
	logger *slog.Logger
}

// New создает новый экземпляр приложения
func New(cfg *config.Config) (*App, error) {
	// Инициализируем структурированный логгер (JSON формат)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	app := &App{
		config: cfg,
		logger: logger,
	}

	return app, nil
}

// Initialize инициализирует все компоненты приложения
func (a *App) Initialize(ctx context.Context) error {
	// Подключаемся к базе данных
	if err := a.connectDB(ctx); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	// Redis нужен только для дедупликации позиций
	if a.config.Redis.Enabled() {
		if err := a.connectRedis(ctx); err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
	}

	// Настраиваем HTTP сервер и роутинг
	a.setupServer()

	a.logger.Info("Application initialized successfully")
	return nil
}

// connectDB устанавливает подключение к PostgreSQL с connection pool
func (a *App) connectDB(ctx context.Context) error {
	poolConfig, err := pgxpool.ParseConfig(a.config.Database.DSN())
	if err != nil {
		return fmt.Errorf("failed to parse database config: %w", err)
	}

	// Настраиваем размеры connection pool
	poolConfig.MaxConns = a.config.Database.MaxConns
	poolConfig.MinConns = a.config.Database.MinConns

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Проверяем подключение к БД
	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	a.db = pool
	a.logger.Info("Connected to database")
	return nil
}

// connectRedis подключается к Redis
func (a *App) connectRedis(ctx context.Context) error {
	client, err := redis.Connect(ctx, redis.Config{
		Addr:     a.config.Redis.Addr,
		Password: a.config.Redis.Password,
		DB:       a.config.Redis.DB,
		Timeout:  a.config.Redis.Timeout,
	})
	if err != nil {
		return err
	}

	a.redis = client
	a.logger.Info("Connected to redis", "addr", a.config.Redis.Addr)
	return nil
}

// setupServer инициализирует HTTP роутер и обработчики
func (a *App) setupServer() {
	// Инициализируем слой репозиториев (работа с БД)
	userRepo := postgres.NewUserRepository(a.db)
	groupRepo := postgres.NewGroupRepository(a.db)
	membershipRepo := postgres.NewMembershipRepository(a.db)
	statsRepo := postgres.NewStatsRepository(a.db)

	var dedup service.PresenceDedup
	if a.redis != nil {
		dedup = redis.NewPresenceDedup(a.redis, a.config.Presence.DedupTTL)
	}

	// Инициализируем слой сервисов (бизнес-логика)
	presenceService := service.NewPresenceService(userRepo, dedup, a.logger)
	visibilityService := service.NewVisibilityService(
		userRepo,
		groupRepo,
		membershipRepo,
		a.config.Presence.RosterConcurrency,
	)
	groupService := service.NewGroupService(
		groupRepo,
		membershipRepo,
		service.NewLeaderSuccession(),
		nil,
		a.logger,
	)
	authService := service.NewAuthService(
		a.config.JWT.Secret,
		a.config.JWT.GetExpiration(),
	)
	statsService := service.NewStatsService(statsRepo, membershipRepo)

	// Инициализируем HTTP обработчики
	authHandler := handler.NewAuthHandler(authService)
	userHandler := handler.NewUserHandler(presenceService, visibilityService)
	rosterHandler := handler.NewRosterHandler(visibilityService)
	groupHandler := handler.NewGroupHandler(groupService)
	statsHandler := handler.NewStatsHandler(statsService)

	// Инициализируем middleware для JWT авторизации
	authMiddleware := middleware.AuthMiddleware(authService)

	// Настраиваем роутер
	r := chi.NewRouter()

	// Глобальные middleware (применяются ко всем запросам)
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.Metrics)
	r.Use(chimiddleware.Timeout(60 * time.Second))

	// Публичные эндпоинты (без авторизации)
	r.Route("/auth", func(r chi.Router) {
		r.Post("/login", authHandler.Login)
	})

	// Health check для мониторинга
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte(`{"status":"ok"}`)); err != nil {
			a.logger.Error("Failed to write health check response", "error", err)
		}
	})

	// Метрики Prometheus
	r.Handle("/metrics", promhttp.Handler())

	// Превью приглашения доступно до входа в группу
	r.Get("/invites/{token}", groupHandler.InvitePreview)

	// Защищенные эндпоинты (требуют JWT токен в заголовке Authorization)
	r.Group(func(r chi.Router) {
		r.Use(authMiddleware)

		// Присутствие и видимость
		r.Post("/users", userHandler.Upsert)
		r.Get("/users/{id}", userHandler.Get)
		r.Get("/roster", rosterHandler.Get)

		// Эндпоинты групп
		r.Post("/groups", groupHandler.Create)
		r.Post("/groups/join", groupHandler.Join)
		r.Delete("/groups/{id}", groupHandler.Delete)
		r.Post("/groups/{id}/leave", groupHandler.Leave)
		r.Get("/groups/{id}/members", groupHandler.Members)
		r.Get("/groups/{id}/invite", groupHandler.InviteToken)

		// Эндпоинты статистики
		r.Get("/stats", statsHandler.GetStats)
		r.Get("/stats/user", statsHandler.GetUserStats)
	})

	// Создаем HTTP сервер с настройками таймаутов
	addr := fmt.Sprintf("%s:%s", a.config.Server.Host, a.config.Server.Port)
	a.server = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	a.logger.Info("HTTP server configured", "addr", addr)
}

// Run запускает HTTP сервер
func (a *App) Run() error {
	a.logger.Info("Starting HTTP server", "addr", a.server.Addr)
	return a.server.ListenAndServe()
}

// Shutdown корректно останавливает приложение
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("Shutting down application")

	// Останавливаем HTTP сервер (ждем завершения текущих запросов)
	if err := a.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	// Закрываем подключения к базе данных
	if a.db != nil {
		a.db.Close()
	}

	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("Failed to close redis client", "error", err)
		}
	}

	a.logger.Info("Application stopped gracefully")
	return nil
}
