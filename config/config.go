package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

const (
	DefaultEnv                   = "development"
	DefaultPort                  = "8080"
	DefaultAccessTokenExpiryMin  = 15
	DefaultRefreshTokenExpiryMin = 10080
	DefaultLoginMaxAttempts      = 5
	DefaultLockDurationMin       = 15
	DefaultBcryptCost            = 12
	DefaultCORSOrigin            = "*"
	DefaultLogLevel              = "info"
	DefaultLoginRateLimit        = 20
)

type Config struct {
	Env                string
	Port               string
	DBURL              string
	AccessTokenSecret  string
	RefreshTokenSecret string
	AccessExpiryMin    int
	RefreshExpiryMin   int
	LoginMaxAttempts   int
	LockDurationMin    int
	BcryptCost         int
	CookieDomain       string
	CookieSecure       bool
	CORSOrigin         string
	LogLevel           string
	RedisURL           string
	LoginRateLimit     int
}

// fileValues holds the contents of the .env file for the active environment.
// The process environment always wins over it.
var fileValues map[string]string

func Load() *Config {
	env := os.Getenv("ENV")
	if env == "" {
		env = DefaultEnv
	}
	fileValues = readEnvFile(env)

	env = getEnv("ENV", DefaultEnv)

	return &Config{
		Env:                env,
		Port:               getEnv("PORT", DefaultPort),
		DBURL:              mustGetEnv("DB_URL"),
		AccessTokenSecret:  mustGetEnv("ACCESS_TOKEN_SECRET"),
		RefreshTokenSecret: mustGetEnv("REFRESH_TOKEN_SECRET"),
		AccessExpiryMin:    getEnvAsInt("ACCESS_TOKEN_EXPIRY", DefaultAccessTokenExpiryMin),
		RefreshExpiryMin:   getEnvAsInt("REFRESH_TOKEN_EXPIRY", DefaultRefreshTokenExpiryMin),
		LoginMaxAttempts:   getEnvAsInt("LOGIN_MAX_ATTEMPTS", DefaultLoginMaxAttempts),
		LockDurationMin:    getEnvAsInt("LOCK_DURATION", DefaultLockDurationMin),
		BcryptCost:         getEnvAsInt("BCRYPT_COST", DefaultBcryptCost),
		CookieDomain:       getEnv("COOKIE_DOMAIN", ""),
		CookieSecure:       getEnvAsBool("COOKIE_SECURE", env == "production"),
		CORSOrigin:         getEnv("CORS_ORIGIN", DefaultCORSOrigin),
		LogLevel:           getEnv("LOG_LEVEL", DefaultLogLevel),
		RedisURL:           getEnv("REDIS_URL", ""),
		LoginRateLimit:     getEnvAsInt("LOGIN_RATE_LIMIT", DefaultLoginRateLimit),
	}
}

// AccessTokenTTL returns the access token lifetime, falling back to the default when unset.
func (c *Config) AccessTokenTTL() time.Duration {
	return minutesOrDefault(c.AccessExpiryMin, DefaultAccessTokenExpiryMin)
}

// RefreshTokenTTL returns the refresh token lifetime, falling back to the default when unset.
func (c *Config) RefreshTokenTTL() time.Duration {
	return minutesOrDefault(c.RefreshExpiryMin, DefaultRefreshTokenExpiryMin)
}

// LockDuration returns the lockout window, falling back to the default when unset.
func (c *Config) LockDuration() time.Duration {
	return minutesOrDefault(c.LockDurationMin, DefaultLockDurationMin)
}

func minutesOrDefault(v, def int) time.Duration {
	if v <= 0 {
		v = def
	}
	return time.Duration(v) * time.Minute
}

func readEnvFile(env string) map[string]string {
	name := ".env.dev"
	if env == "production" {
		name = ".env.prod"
	}

	values, err := godotenv.Read(filepath.Join("config", name))
	if err != nil {
		return map[string]string{}
	}
	return values
}

func lookup(key string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return strings.TrimSpace(fileValues[key])
}

func getEnv(key string, defaultVal string) string {
	if value := lookup(key); value != "" {
		return value
	}
	return defaultVal
}

func mustGetEnv(key string) string {
	if value := lookup(key); value != "" {
		return value
	}
	logrus.Fatalf("Missing required config: %s", key)
	return ""
}

func getEnvAsInt(key string, defaultVal int) int {
	valStr := lookup(key)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(valStr)
	if err != nil {
		logrus.Warnf("Invalid value for %s, using default %d", key, defaultVal)
		return defaultVal
	}
	return val
}

func getEnvAsBool(key string, defaultVal bool) bool {
	valStr := lookup(key)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.ParseBool(valStr)
	if err != nil {
		logrus.Warnf("Invalid value for %s, using default %t", key, defaultVal)
		return defaultVal
	}
	return val
}
