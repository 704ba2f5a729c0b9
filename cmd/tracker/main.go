package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/aidar/groupmap/internal/client"
	"github.com/aidar/groupmap/internal/config"
	"github.com/aidar/groupmap/internal/domain"
	"github.com/aidar/groupmap/internal/geo"
	"github.com/aidar/groupmap/internal/mapview"
	"github.com/aidar/groupmap/internal/tracker"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	// Загружаем конфигурацию из переменных окружения
	cfg, err := config.LoadTracker()
	if err != nil {
		logger.Error("Не удалось загрузить конфигурацию", "error", err)
		os.Exit(1)
	}

	// Останавливаемся по Ctrl+C или SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	api := client.New(cfg.APIURL, nil)
	if _, err := api.Login(ctx, cfg.UserID); err != nil {
		logger.Error("Не удалось получить токен", "user_id", cfg.UserID, "error", err)
		os.Exit(1)
	}

	// Вступаем в группу по приглашению, если оно задано
	if cfg.InviteToken != "" {
		group, err := api.JoinGroup(ctx, cfg.InviteToken)
		switch {
		case errors.Is(err, domain.ErrAlreadyMember):
			logger.Info("Уже состоим в группе")
		case err != nil:
			logger.Error("Не удалось вступить в группу", "error", err)
			os.Exit(1)
		default:
			logger.Info("Вступили в группу", "group_id", group.ID, "name", group.Name)
		}
	}

	device := geo.NewSimulatedDevice(
		domain.Location{Longitude: cfg.StartLongitude, Latitude: cfg.StartLatitude},
		cfg.StepDegrees,
		cfg.Seed,
	)

	opts := geo.DefaultOptions()
	opts.Timeout = cfg.ReadTimeout
	source := geo.NewSource(device, cfg.PollInterval, opts, logger)

	reconciler := mapview.NewReconciler(mapview.NewLogRenderer(logger), cfg.UserID)

	t := tracker.New(source, api, reconciler,
		tracker.Profile{DisplayName: cfg.DisplayName, AvatarURL: cfg.AvatarURL},
		tracker.Config{RefreshInterval: cfg.RefreshInterval, GroupID: cfg.GroupID},
		logger,
	)

	logger.Info("Трекер запущен", "user_id", cfg.UserID, "api", cfg.APIURL, "group_id", cfg.GroupID)

	if err := t.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Трекер остановлен с ошибкой", "error", err)
		os.Exit(1)
	}

	logger.Info("Трекер остановлен")
}
