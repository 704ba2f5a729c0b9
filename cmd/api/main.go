package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aidar/groupmap/internal/app"
	"github.com/aidar/groupmap/internal/config"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	// Загружаем конфигурацию из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		logger.Error("Не удалось загрузить конфигурацию", "error", err)
		os.Exit(1)
	}

	application, err := app.New(cfg)
	if err != nil {
		logger.Error("Не удалось создать приложение", "error", err)
		os.Exit(1)
	}

	// Останавливаемся по Ctrl+C или SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Подключение к PostgreSQL и Redis, настройка роутинга
	if err := application.Initialize(ctx); err != nil {
		logger.Error("Не удалось инициализировать приложение", "error", err)
		os.Exit(1)
	}

	serverErr := make(chan error, 1)
	go func() {
		if err := application.Run(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("Получен сигнал остановки")
	case err := <-serverErr:
		if err != nil {
			logger.Error("Ошибка сервера", "error", err)
		}
	}

	// Даем текущим запросам завершиться
	timeout := cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := application.Shutdown(shutdownCtx); err != nil {
		logger.Error("Не удалось корректно остановить сервер", "error", err)
		os.Exit(1)
	}
}
