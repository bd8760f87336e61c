package config

import (
	"net"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/duisenbekovayan/xivprofit/internal/catalog"
	"github.com/duisenbekovayan/xivprofit/internal/market"
	"github.com/duisenbekovayan/xivprofit/internal/storage"
	"github.com/duisenbekovayan/xivprofit/internal/universalis"
)

type Config struct {
	HTTPHost string
	HTTPPort int
	WebDir   string

	UniversalisAPI     string
	UniversalisRPS     float64
	UniversalisTimeout time.Duration

	ListingsTTL        time.Duration
	CheapestTTL        time.Duration
	CacheSweepInterval time.Duration
	CacheBackend       string // memory | redis
	RedisAddr          string
	RedisPassword      string
	RedisDB            int

	PGHost     string
	PGPort     int
	PGUser     string
	PGPassword string
	PGDB       string

	DataminingURL string

	KafkaBroker string
	KafkaTopic  string
	KafkaGroup  string
	KafkaDLQ    string

	LogLevel string
}

// Load reads .env when present, then the environment.
func Load() Config {
	_ = godotenv.Load()
	return FromEnv()
}

func FromEnv() Config {
	return Config{
		HTTPHost: getenv("XIVP_HTTP_HOST", ""),
		HTTPPort: getint("XIVP_HTTP_PORT", 8080),
		WebDir:   getenv("XIVP_WEB_DIR", ""),

		UniversalisAPI:     getenv("XIVP_UNIVERSALIS_API", universalis.DefaultBaseURL),
		UniversalisRPS:     getfloat("XIVP_UNIVERSALIS_RPS", 20),
		UniversalisTimeout: getduration("XIVP_UNIVERSALIS_TIMEOUT", 10*time.Second),

		ListingsTTL:        getseconds("XIVP_CACHE_TIMEOUT", market.DefaultListingsTTL),
		CheapestTTL:        getduration("XIVP_CHEAPEST_TTL", market.DefaultCheapestTTL),
		CacheSweepInterval: getduration("XIVP_CACHE_SWEEP_INTERVAL", 0),
		CacheBackend:       getenv("XIVP_CACHE_BACKEND", "memory"),
		RedisAddr:          getenv("XIVP_REDIS_ADDR", "localhost:6379"),
		RedisPassword:      getenv("XIVP_REDIS_PASSWORD", ""),
		RedisDB:            getint("XIVP_REDIS_DB", 0),

		PGHost:     getenv("XIVP_PG_HOST", ""),
		PGPort:     getint("XIVP_PG_PORT", 5432),
		PGUser:     getenv("XIVP_PG_USER", "xivp"),
		PGPassword: getenv("XIVP_PG_PASSWORD", "xivp"),
		PGDB:       getenv("XIVP_PG_DB", "xivp"),

		DataminingURL: getenv("XIVP_DATAMINING_URL", catalog.DefaultDataminingURL),

		KafkaBroker: getenv("XIVP_KAFKA_BROKER", ""),
		KafkaTopic:  getenv("XIVP_KAFKA_TOPIC", "listings"),
		KafkaGroup:  getenv("XIVP_KAFKA_GROUP", "xivp-listings"),
		KafkaDLQ:    getenv("XIVP_KAFKA_DLQ", "listings_dlq"),

		LogLevel: getenv("XIVP_LOG_LEVEL", "info"),
	}
}

func (c Config) HTTPAddr() string {
	return net.JoinHostPort(c.HTTPHost, strconv.Itoa(c.HTTPPort))
}

// PGDSN is empty when no Postgres host is configured.
func (c Config) PGDSN() string {
	if c.PGHost == "" {
		return ""
	}
	return storage.DSN(c.PGHost, c.PGPort, c.PGUser, c.PGPassword, c.PGDB)
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	if v, err := strconv.Atoi(os.Getenv(k)); err == nil {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, err := strconv.ParseFloat(os.Getenv(k), 64); err == nil && v >= 0 {
		return v
	}
	return def
}

// getduration accepts Go durations ("90s") or bare seconds ("90").
func getduration(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil && d >= 0 {
		return d
	}
	if n, err := strconv.ParseUint(v, 10, 32); err == nil {
		return time.Duration(n) * time.Second
	}
	return def
}

// getseconds reads a whole number of seconds; anything else falls back to def.
func getseconds(k string, def time.Duration) time.Duration {
	n, err := strconv.ParseUint(os.Getenv(k), 10, 32)
	if err != nil {
		return def
	}
	return time.Duration(n) * time.Second
}
