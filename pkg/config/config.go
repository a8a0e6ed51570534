package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Realtime drivers.
const (
	RealtimeDriverMemory = "memory"
	RealtimeDriverRedis  = "redis"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	CORS     CORSConfig
	Log      LogConfig
	Markers  MarkersConfig
	Realtime RealtimeConfig
	Chat     ChatConfig
	Feeds    FeedsConfig
	Live     LiveConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int

	// ChangeChannel is the NOTIFY channel emitted by the calendar triggers.
	ChangeChannel       string
	ListenerMinBackoff  time.Duration
	ListenerMaxBackoff  time.Duration
	ListenerPingTimeout time.Duration
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret string
	Issuer string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// MarkersConfig tunes the celestial marker cycle.
type MarkersConfig struct {
	Enabled     bool
	Epoch       time.Time
	CycleDays   float64
	PaletteFile string
}

// RealtimeConfig selects the presence/broadcast transport.
type RealtimeConfig struct {
	Driver      string
	PresenceTTL time.Duration
	ResyncSpec  string
	ReceiveOwn  bool
}

// ChatConfig governs room chat limits and the optional history log.
type ChatConfig struct {
	HistoryEnabled bool
	HistoryLimit   int
	MaxBodyLength  int
	RatePerSecond  float64
	Burst          int
}

// FeedsConfig controls signed calendar feed links.
type FeedsConfig struct {
	Enabled         bool
	SigningSecret   string
	TokenTTL        time.Duration
	CacheTTL        time.Duration
	CacheEnabled    bool
	LookbackWindow  time.Duration
	LookaheadWindow time.Duration
	PublicBaseURL   string
}

// LiveConfig sizes the reload worker pool used by live timeline views.
type LiveConfig struct {
	ReloadWorkers int
	ReloadBuffer  int
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !isMissingFile(err) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:                v.GetString("DB_HOST"),
		Port:                v.GetInt("DB_PORT"),
		User:                v.GetString("DB_USER"),
		Password:            v.GetString("DB_PASSWORD"),
		Name:                v.GetString("DB_NAME"),
		SSLMode:             v.GetString("DB_SSL_MODE"),
		MaxOpenConns:        v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns:        v.GetInt("DB_MAX_IDLE_CONNS"),
		ChangeChannel:       v.GetString("DB_CHANGE_CHANNEL"),
		ListenerMinBackoff:  parseDuration(v.GetString("DB_LISTENER_MIN_BACKOFF"), 10*time.Second),
		ListenerMaxBackoff:  parseDuration(v.GetString("DB_LISTENER_MAX_BACKOFF"), time.Minute),
		ListenerPingTimeout: parseDuration(v.GetString("DB_LISTENER_PING_INTERVAL"), 90*time.Second),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret: v.GetString("JWT_SECRET"),
		Issuer: v.GetString("JWT_ISSUER"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cycle := v.GetFloat64("MARKER_CYCLE_DAYS")
	if cycle <= 0 {
		cycle = DefaultMarkerCycleDays
	}
	cfg.Markers = MarkersConfig{
		Enabled:     v.GetBool("MARKERS_ENABLED"),
		Epoch:       parseTime(v.GetString("MARKER_EPOCH"), DefaultMarkerEpoch),
		CycleDays:   cycle,
		PaletteFile: v.GetString("PALETTE_FILE"),
	}

	cfg.Realtime = RealtimeConfig{
		Driver:      strings.ToLower(v.GetString("REALTIME_DRIVER")),
		PresenceTTL: parseDuration(v.GetString("PRESENCE_TTL"), 2*time.Minute),
		ResyncSpec:  v.GetString("PRESENCE_RESYNC_SPEC"),
		ReceiveOwn:  v.GetBool("BROADCAST_RECEIVE_OWN"),
	}

	cfg.Chat = ChatConfig{
		HistoryEnabled: v.GetBool("CHAT_HISTORY_ENABLED"),
		HistoryLimit:   v.GetInt("CHAT_HISTORY_LIMIT"),
		MaxBodyLength:  v.GetInt("CHAT_MAX_BODY"),
		RatePerSecond:  v.GetFloat64("CHAT_RATE_PER_SEC"),
		Burst:          v.GetInt("CHAT_BURST"),
	}

	cfg.Feeds = FeedsConfig{
		Enabled:         v.GetBool("ENABLE_FEEDS"),
		SigningSecret:   v.GetString("FEED_SIGNING_SECRET"),
		TokenTTL:        parseDuration(v.GetString("FEED_TOKEN_TTL"), 90*24*time.Hour),
		CacheTTL:        parseDuration(v.GetString("FEED_CACHE_TTL"), 10*time.Minute),
		CacheEnabled:    v.GetBool("FEED_CACHE_ENABLED"),
		LookbackWindow:  parseDuration(v.GetString("FEED_LOOKBACK"), 30*24*time.Hour),
		LookaheadWindow: parseDuration(v.GetString("FEED_LOOKAHEAD"), 180*24*time.Hour),
		PublicBaseURL:   strings.TrimRight(v.GetString("PUBLIC_BASE_URL"), "/"),
	}

	cfg.Live = LiveConfig{
		ReloadWorkers: v.GetInt("LIVE_RELOAD_WORKERS"),
		ReloadBuffer:  v.GetInt("LIVE_RELOAD_BUFFER"),
	}

	return cfg, nil
}

// DefaultMarkerEpoch is a reference new moon.
var DefaultMarkerEpoch = time.Date(2000, time.January, 6, 18, 14, 0, 0, time.UTC)

// DefaultMarkerCycleDays is the mean synodic month.
const DefaultMarkerCycleDays = 29.530588853

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "circle_calendar")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_CHANGE_CHANNEL", "calendar_changes")
	v.SetDefault("DB_LISTENER_MIN_BACKOFF", "10s")
	v.SetDefault("DB_LISTENER_MAX_BACKOFF", "1m")
	v.SetDefault("DB_LISTENER_PING_INTERVAL", "90s")

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_ISSUER", "")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("MARKERS_ENABLED", true)
	v.SetDefault("MARKER_EPOCH", DefaultMarkerEpoch.Format(time.RFC3339))
	v.SetDefault("MARKER_CYCLE_DAYS", DefaultMarkerCycleDays)
	v.SetDefault("PALETTE_FILE", "")

	v.SetDefault("REALTIME_DRIVER", RealtimeDriverMemory)
	v.SetDefault("PRESENCE_TTL", "2m")
	v.SetDefault("PRESENCE_RESYNC_SPEC", "@every 30s")
	v.SetDefault("BROADCAST_RECEIVE_OWN", true)

	v.SetDefault("CHAT_HISTORY_ENABLED", false)
	v.SetDefault("CHAT_HISTORY_LIMIT", 50)
	v.SetDefault("CHAT_MAX_BODY", 2000)
	v.SetDefault("CHAT_RATE_PER_SEC", 2.0)
	v.SetDefault("CHAT_BURST", 5)

	v.SetDefault("ENABLE_FEEDS", false)
	v.SetDefault("FEED_SIGNING_SECRET", "dev_feed_secret")
	v.SetDefault("FEED_TOKEN_TTL", "2160h")
	v.SetDefault("FEED_CACHE_TTL", "10m")
	v.SetDefault("FEED_CACHE_ENABLED", false)
	v.SetDefault("FEED_LOOKBACK", "720h")
	v.SetDefault("FEED_LOOKAHEAD", "4320h")
	v.SetDefault("PUBLIC_BASE_URL", "http://localhost:8080")

	v.SetDefault("LIVE_RELOAD_WORKERS", 4)
	v.SetDefault("LIVE_RELOAD_BUFFER", 256)
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func parseTime(raw string, fallback time.Time) time.Time {
	if raw == "" {
		return fallback
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return fallback
	}
	return t.UTC()
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}

func isMissingFile(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
