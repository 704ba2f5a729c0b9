package config

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kelseyhightower/envconfig"
)

// Config содержит всю конфигурацию API сервера
type Config struct {
	Server   ServerConfig   // Настройки HTTP сервера
	Database DatabaseConfig // Настройки подключения к БД
	JWT      JWTConfig      // Настройки JWT авторизации
	Redis    RedisConfig    // Настройки Redis (необязательно)
	Presence PresenceConfig // Настройки приема позиций
}

// ServerConfig содержит настройки HTTP сервера
type ServerConfig struct {
	Port            string        `envconfig:"SERVER_PORT" default:"8080"`
	Host            string        `envconfig:"SERVER_HOST" default:"0.0.0.0"`
	ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`
}

// DatabaseConfig содержит настройки подключения к PostgreSQL
type DatabaseConfig struct {
	Host     string `envconfig:"DB_HOST" default:"localhost"`
	Port     string `envconfig:"DB_PORT" default:"5432"`
	User     string `envconfig:"DB_USER" default:"groupmap"`
	Password string `envconfig:"DB_PASSWORD" default:"groupmap_pass"`
	Name     string `envconfig:"DB_NAME" default:"groupmap"`
	SSLMode  string `envconfig:"DB_SSLMODE" default:"disable"`
	MaxConns int32  `envconfig:"DB_MAX_CONNS" default:"25"`
	MinConns int32  `envconfig:"DB_MIN_CONNS" default:"5"`
}

// JWTConfig содержит настройки JWT авторизации
type JWTConfig struct {
	Secret          string `envconfig:"JWT_SECRET" required:"true"`
	ExpirationHours int    `envconfig:"JWT_EXPIRATION_HOURS" default:"24"`
}

// RedisConfig содержит настройки Redis. Пустой адрес отключает Redis
type RedisConfig struct {
	Addr     string        `envconfig:"REDIS_ADDR"`
	Password string        `envconfig:"REDIS_PASSWORD"`
	DB       int           `envconfig:"REDIS_DB" default:"0"`
	Timeout  time.Duration `envconfig:"REDIS_TIMEOUT" default:"5s"`
}

// Enabled сообщает, настроен ли Redis
func (r RedisConfig) Enabled() bool {
	return r.Addr != ""
}

// PresenceConfig содержит настройки приема позиций и выдачи состава
type PresenceConfig struct {
	DedupTTL          time.Duration `envconfig:"PRESENCE_DEDUP_TTL" default:"10s"`
	RosterConcurrency int           `envconfig:"ROSTER_CONCURRENCY" default:"4"`
}

// GetExpiration возвращает срок действия токена как time.Duration
func (j JWTConfig) GetExpiration() time.Duration {
	return time.Duration(j.ExpirationHours) * time.Hour
}

// DSN возвращает строку подключения к PostgreSQL
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode,
	)
}

// Load читает конфигурацию из переменных окружения
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// TrackerConfig содержит настройки клиентского цикла присутствия
type TrackerConfig struct {
	APIURL          string        `envconfig:"TRACKER_API_URL" default:"http://localhost:8080"`
	UserID          string        `envconfig:"TRACKER_USER_ID" required:"true"`
	DisplayName     string        `envconfig:"TRACKER_DISPLAY_NAME"`
	AvatarURL       string        `envconfig:"TRACKER_AVATAR_URL"`
	InviteToken     string        `envconfig:"TRACKER_INVITE_TOKEN"`
	GroupID         uuid.UUID     `envconfig:"TRACKER_GROUP_ID"` // Пусто - все группы
	PollInterval    time.Duration `envconfig:"TRACKER_POLL_INTERVAL" default:"5s"`
	RefreshInterval time.Duration `envconfig:"TRACKER_REFRESH_INTERVAL" default:"10s"`
	ReadTimeout     time.Duration `envconfig:"TRACKER_READ_TIMEOUT" default:"5s"`
	StartLongitude  float64       `envconfig:"TRACKER_START_LONGITUDE" default:"-122.4241"`
	StartLatitude   float64       `envconfig:"TRACKER_START_LATITUDE" default:"37.7762"`
	StepDegrees     float64       `envconfig:"TRACKER_STEP_DEGREES" default:"0.0005"`
	Seed            uint64        `envconfig:"TRACKER_SEED" default:"1"`
}

// LoadTracker читает конфигурацию трекера из переменных окружения
func LoadTracker() (*TrackerConfig, error) {
	var cfg TrackerConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load tracker config: %w", err)
	}
	return &cfg, nil
}
