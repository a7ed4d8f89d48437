package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App       AppConfig
	DB        DBConfig
	Redis     RedisConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Cache     CacheConfig
	Queue     QueueConfig
	Analytics AnalyticsConfig
}

type AppConfig struct {
	Port    string
	BaseURL string // пусто => вычисляется из заголовков запроса
}

type DBConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
}

// URL собирает DSN для pgx и миграций
func (c DBConfig) URL() string {
	return "postgres://" + c.User + ":" + c.Password + "@" + c.Host + ":" + c.Port + "/" + c.Name + "?sslmode=disable"
}

type RedisConfig struct {
	Host string
	Port string
}

// Enabled сообщает, настроен ли Redis (он опционален и нужен только для гео-кэша)
func (c RedisConfig) Enabled() bool {
	return c.Host != ""
}

type AuthConfig struct {
	APIKeys map[string]string // API key -> name/description
}

type RateLimitConfig struct {
	RequestsPerSecond float64
	BurstSize         int
}

// CacheConfig настройки in-process TTL кэша
type CacheConfig struct {
	DefaultTTL    time.Duration
	SweepInterval time.Duration
	ResolverTTL   time.Duration // TTL записей code -> destination
}

// QueueConfig настройки фоновой очереди задач
type QueueConfig struct {
	MaxAttempts     int
	BaseDelay       time.Duration
	Capacity        int
	JobTimeout      time.Duration
	DrainOnShutdown bool
}

// AnalyticsConfig настройки сбора кликов и внешних сервисов
type AnalyticsConfig struct {
	IPHashSalt        string
	GeoAPIURL         string
	GeoAPIToken       string // пусто => геолокация отключена
	GeoTimeout        time.Duration
	GeoCacheTTL       time.Duration
	TitleFetchEnabled bool
	TitleFetchTimeout time.Duration
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_PORT", "8080")
	v.SetDefault("RATE_LIMIT_RPS", 10)
	v.SetDefault("RATE_LIMIT_BURST", 20)

	v.SetDefault("CACHE_DEFAULT_TTL", time.Minute)
	v.SetDefault("CACHE_SWEEP_INTERVAL", 5*time.Minute)
	v.SetDefault("RESOLVER_CACHE_TTL", 5*time.Minute)

	v.SetDefault("QUEUE_MAX_ATTEMPTS", 3)
	v.SetDefault("QUEUE_BASE_DELAY", time.Second)
	v.SetDefault("QUEUE_CAPACITY", 1000)
	v.SetDefault("QUEUE_JOB_TIMEOUT", 15*time.Second)
	v.SetDefault("QUEUE_DRAIN_ON_SHUTDOWN", true)

	v.SetDefault("IP_HASH_SALT", "url-shortener-salt")
	v.SetDefault("GEO_API_URL", "https://ipinfo.io")
	v.SetDefault("GEO_TIMEOUT", 5*time.Second)
	v.SetDefault("GEO_CACHE_TTL", 24*time.Hour)
	v.SetDefault("TITLE_FETCH_ENABLED", true)
	v.SetDefault("TITLE_FETCH_TIMEOUT", 5*time.Second)
}

// Load читает .env (если есть) и переменные окружения
func Load() (*Config, error) {
	return LoadFile(".env")
}

// LoadFile то же, что Load, но с явным путём к файлу конфигурации
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(path)
	v.SetConfigType("env")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// Без .env работаем только на переменных окружения
		var pathErr *fs.PathError
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &pathErr) && !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var cfg Config
	cfg.App.Port = v.GetString("APP_PORT")
	cfg.App.BaseURL = strings.TrimRight(v.GetString("APP_BASE_URL"), "/")
	cfg.DB.Host = v.GetString("DB_HOST")
	cfg.DB.Port = v.GetString("DB_PORT")
	cfg.DB.User = v.GetString("DB_USER")
	cfg.DB.Password = v.GetString("DB_PASSWORD")
	cfg.DB.Name = v.GetString("DB_NAME")
	cfg.Redis.Host = v.GetString("REDIS_HOST")
	cfg.Redis.Port = v.GetString("REDIS_PORT")

	// Auth config - parse API keys from comma-separated string
	// Format: key1:name1,key2:name2
	cfg.Auth.APIKeys = parseAPIKeys(v.GetString("API_KEYS"))

	cfg.RateLimit.RequestsPerSecond = v.GetFloat64("RATE_LIMIT_RPS")
	cfg.RateLimit.BurstSize = v.GetInt("RATE_LIMIT_BURST")

	cfg.Cache.DefaultTTL = v.GetDuration("CACHE_DEFAULT_TTL")
	cfg.Cache.SweepInterval = v.GetDuration("CACHE_SWEEP_INTERVAL")
	cfg.Cache.ResolverTTL = v.GetDuration("RESOLVER_CACHE_TTL")

	cfg.Queue.MaxAttempts = v.GetInt("QUEUE_MAX_ATTEMPTS")
	cfg.Queue.BaseDelay = v.GetDuration("QUEUE_BASE_DELAY")
	cfg.Queue.Capacity = v.GetInt("QUEUE_CAPACITY")
	cfg.Queue.JobTimeout = v.GetDuration("QUEUE_JOB_TIMEOUT")
	cfg.Queue.DrainOnShutdown = v.GetBool("QUEUE_DRAIN_ON_SHUTDOWN")

	cfg.Analytics.IPHashSalt = v.GetString("IP_HASH_SALT")
	cfg.Analytics.GeoAPIURL = strings.TrimRight(v.GetString("GEO_API_URL"), "/")
	cfg.Analytics.GeoAPIToken = v.GetString("GEO_API_TOKEN")
	cfg.Analytics.GeoTimeout = v.GetDuration("GEO_TIMEOUT")
	cfg.Analytics.GeoCacheTTL = v.GetDuration("GEO_CACHE_TTL")
	cfg.Analytics.TitleFetchEnabled = v.GetBool("TITLE_FETCH_ENABLED")
	cfg.Analytics.TitleFetchTimeout = v.GetDuration("TITLE_FETCH_TIMEOUT")

	return &cfg, nil
}

// parseAPIKeys parses comma-separated API keys in format "key1:name1,key2:name2"
func parseAPIKeys(raw string) map[string]string {
	keys := make(map[string]string)
	if raw == "" {
		return keys
	}

	pairs := strings.Split(raw, ",")
	for _, pair := range pairs {
		parts := strings.SplitN(strings.TrimSpace(pair), ":", 2)
		if len(parts) == 2 {
			keys[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
		}
	}

	return keys
}
