package config

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// AppConfig holds environment driven configuration values.
// Sensitive data should never have defaults inside code and must be provided via env files or the environment.
type AppConfig struct {
	AppPort            string
	JWTSecret          string
	SiteName           string
	RateLimitPerMinute int
	AllowedOrigins     []string
	// Roles accepted on admin routes; tokens are issued by the identity provider.
	AdminRoles []string
	// Gin framework configuration
	GinMode string
	GinPath string
	// Database
	DatabaseURI string
	DBHost      string
	DBPort      string
	DBUser      string
	DBPassword  string
	DBName      string
	// Redis for caching and pending counters
	RedisHost     string
	RedisPort     int
	RedisDB       int
	RedisPassword string
	// Logging configuration
	LogLevel      string
	LogPath       string
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int
	LogCompress   bool
	// Content cache
	CacheDriver            string // redis | memory
	CachePrefix            string
	CacheTTLSeconds        int
	CacheMemorySize        int
	InvalidationMode       string // sync | async
	InvalidationTimeoutSec int
	// View/download counter batching
	CounterStore              string // redis | memory
	CounterTTLSeconds         int
	CounterSweepIntervalSec   int
	CounterViewsThreshold     int
	CounterDownloadsThreshold int
	// Contact form
	ContactCooldownSec    int
	ContactMaxPerIPPerDay int
	ContactNotifyEmail    string
	// SMTP for contact notifications
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
	SMTPFromName string
	SMTPTLS      bool
}

var cfg AppConfig
var loaded bool

// Load loads the application configuration. It should be called once during boot.
func Load() AppConfig {
	if loaded {
		return cfg
	}

	// Precedence: config/config.json -> defaults -> environment variable overrides
	if err := loadJSONConfig(filepath.Join("config", "config.json"), &cfg); err != nil {
		log.Printf("config/config.json ignored: %v", err)
	}
	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)
	enforceCounterTTL(&cfg)

	if cfg.JWTSecret == "" {
		log.Fatal("JWT_SECRET must be set in environment variables")
	}

	loaded = true
	return cfg
}

// Get returns the cached configuration, loading it if necessary.
func Get() AppConfig {
	if !loaded {
		return Load()
	}
	return cfg
}

// Set replaces the active configuration after applying defaults. Used by tests and tools.
func Set(c AppConfig) {
	applyDefaults(&c)
	enforceCounterTTL(&c)
	cfg = c
	loaded = true
}

// loadJSONConfig reads the grouped JSON file into out. A missing file is not an error.
func loadJSONConfig(path string, out *AppConfig) error {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	var raw map[string]map[string]any
	if err := json.NewDecoder(f).Decode(&raw); err != nil {
		return err
	}

	getString := func(m map[string]any, key string) string {
		if s, ok := m[key].(string); ok {
			return s
		}
		return ""
	}
	getInt := func(m map[string]any, key string) int {
		switch t := m[key].(type) {
		case float64:
			return int(t)
		case string:
			i, _ := strconv.Atoi(t)
			return i
		}
		return 0
	}
	getBool := func(m map[string]any, key string) bool {
		b, _ := m[key].(bool)
		return b
	}
	getStringSlice := func(m map[string]any, key string) []string {
		arr, ok := m[key].([]any)
		if !ok {
			return nil
		}
		res := make([]string, 0, len(arr))
		for _, it := range arr {
			if s, ok := it.(string); ok {
				res = append(res, s)
			}
		}
		return res
	}

	if app, ok := raw["app"]; ok {
		out.AppPort = getString(app, "AppPort")
		out.JWTSecret = getString(app, "JWTSecret")
		out.SiteName = getString(app, "SiteName")
		out.RateLimitPerMinute = getInt(app, "RateLimitPerMinute")
		out.AllowedOrigins = getStringSlice(app, "AllowedOrigins")
		out.AdminRoles = getStringSlice(app, "AdminRoles")
	}
	if g, ok := raw["gin"]; ok {
		out.GinMode = getString(g, "Mode")
		out.GinPath = getString(g, "LogPath")
	}
	if dbs, ok := raw["database"]; ok {
		out.DatabaseURI = getString(dbs, "DatabaseURI")
		out.DBHost = getString(dbs, "DBHost")
		out.DBPort = getString(dbs, "DBPort")
		out.DBUser = getString(dbs, "DBUser")
		out.DBPassword = getString(dbs, "DBPassword")
		out.DBName = getString(dbs, "DBName")
	}
	if rds, ok := raw["redis"]; ok {
		out.RedisHost = getString(rds, "RedisHost")
		out.RedisPort = getInt(rds, "RedisPort")
		out.RedisDB = getInt(rds, "RedisDB")
		out.RedisPassword = getString(rds, "RedisPassword")
	}
	if lg, ok := raw["log"]; ok {
		out.LogLevel = getString(lg, "Level")
		out.LogPath = getString(lg, "Path")
		out.LogMaxSizeMB = getInt(lg, "MaxSizeMB")
		out.LogMaxBackups = getInt(lg, "MaxBackups")
		out.LogMaxAgeDays = getInt(lg, "MaxAgeDays")
		out.LogCompress = getBool(lg, "Compress")
	}
	if c, ok := raw["cache"]; ok {
		out.CacheDriver = getString(c, "Driver")
		out.CachePrefix = getString(c, "Prefix")
		out.CacheTTLSeconds = getInt(c, "TTLSeconds")
		out.CacheMemorySize = getInt(c, "MemorySize")
		out.InvalidationMode = getString(c, "InvalidationMode")
		out.InvalidationTimeoutSec = getInt(c, "InvalidationTimeoutSec")
	}
	if c, ok := raw["counter"]; ok {
		out.CounterStore = getString(c, "Store")
		out.CounterTTLSeconds = getInt(c, "TTLSeconds")
		out.CounterSweepIntervalSec = getInt(c, "SweepIntervalSec")
		out.CounterViewsThreshold = getInt(c, "ViewsThreshold")
		out.CounterDownloadsThreshold = getInt(c, "DownloadsThreshold")
	}
	if c, ok := raw["contact"]; ok {
		out.ContactCooldownSec = getInt(c, "CooldownSec")
		out.ContactMaxPerIPPerDay = getInt(c, "MaxPerIPPerDay")
		out.ContactNotifyEmail = getString(c, "NotifyEmail")
	}
	if s, ok := raw["smtp"]; ok {
		out.SMTPHost = getString(s, "Host")
		out.SMTPPort = getInt(s, "Port")
		out.SMTPUsername = getString(s, "Username")
		out.SMTPPassword = getString(s, "Password")
		out.SMTPFrom = getString(s, "From")
		out.SMTPFromName = getString(s, "FromName")
		out.SMTPTLS = getBool(s, "TLS")
	}
	return nil
}

func applyDefaults(c *AppConfig) {
	orString(&c.AppPort, "8080")
	orString(&c.SiteName, "Institute")
	orInt(&c.RateLimitPerMinute, 60)
	if len(c.AllowedOrigins) == 0 {
		c.AllowedOrigins = []string{"*"}
	}
	if len(c.AdminRoles) == 0 {
		c.AdminRoles = []string{"admin", "editor"}
	}
	orString(&c.GinMode, "release")
	orString(&c.GinPath, "logs/gin.log")
	orString(&c.DBHost, "127.0.0.1")
	orString(&c.DBPort, "3306")
	orString(&c.RedisHost, "127.0.0.1")
	orInt(&c.RedisPort, 6379)
	orString(&c.LogLevel, "info")
	orString(&c.LogPath, "logs/app.log")

	orString(&c.CacheDriver, "redis")
	orString(&c.CachePrefix, "cache:")
	orInt(&c.CacheTTLSeconds, 3600)
	orInt(&c.CacheMemorySize, 10000)
	orString(&c.InvalidationMode, "sync")
	orInt(&c.InvalidationTimeoutSec, 5)

	// Pending counters live 5 minutes; the sweep runs often enough to catch them.
	orString(&c.CounterStore, "redis")
	orInt(&c.CounterTTLSeconds, 300)
	orInt(&c.CounterSweepIntervalSec, 240)
	orInt(&c.CounterViewsThreshold, 5)
	orInt(&c.CounterDownloadsThreshold, 3)

	orInt(&c.ContactCooldownSec, 60)
	orInt(&c.ContactMaxPerIPPerDay, 10)
	orInt(&c.SMTPPort, 587)
}

// counterTTLMarginSec is the least time a pending counter outlives one sweep interval.
const counterTTLMarginSec = 60

// enforceCounterTTL raises the pending counter TTL so a count recorded right
// after a sweep is still present at the next one.
func enforceCounterTTL(c *AppConfig) {
	if c.CounterSweepIntervalSec <= 0 {
		return
	}
	if floor := c.CounterSweepIntervalSec + counterTTLMarginSec; c.CounterTTLSeconds < floor {
		log.Printf("counter ttl %ds is shorter than sweep interval %ds plus %ds, using %ds",
			c.CounterTTLSeconds, c.CounterSweepIntervalSec, counterTTLMarginSec, floor)
		c.CounterTTLSeconds = floor
	}
}

func orString(dst *string, def string) {
	if *dst == "" {
		*dst = def
	}
}

func orInt(dst *int, def int) {
	if *dst == 0 {
		*dst = def
	}
}

// applyEnvOverrides lets the environment win over the file and the defaults.
func applyEnvOverrides(c *AppConfig) {
	envString(&c.AppPort, "APP_PORT")
	envString(&c.JWTSecret, "JWT_SECRET")
	envString(&c.SiteName, "SITE_NAME")
	envInt(&c.RateLimitPerMinute, "RATE_LIMIT_PER_MINUTE")
	c.AllowedOrigins = readListEnv("CORS_ALLOWED_ORIGINS", c.AllowedOrigins)
	c.AdminRoles = readListEnv("ADMIN_ROLES", c.AdminRoles)
	envString(&c.GinMode, "GIN_MODE")
	envString(&c.GinPath, "GIN_PATH")

	envString(&c.DatabaseURI, "DATABASE_URI")
	envString(&c.DBHost, "DB_HOST")
	envString(&c.DBPort, "DB_PORT")
	envString(&c.DBUser, "DB_USER")
	envString(&c.DBPassword, "DB_PASSWORD")
	envString(&c.DBName, "DB_NAME")

	envString(&c.RedisHost, "REDIS_HOST")
	envInt(&c.RedisPort, "REDIS_PORT")
	envInt(&c.RedisDB, "REDIS_DB")
	envString(&c.RedisPassword, "REDIS_PASSWORD")

	envString(&c.LogLevel, "LOG_LEVEL")
	envString(&c.LogPath, "LOG_PATH")
	envInt(&c.LogMaxSizeMB, "LOG_MAX_SIZE_MB")
	envInt(&c.LogMaxBackups, "LOG_MAX_BACKUPS")
	envInt(&c.LogMaxAgeDays, "LOG_MAX_AGE_DAYS")
	envBool(&c.LogCompress, "LOG_COMPRESS")

	envLower(&c.CacheDriver, "CACHE_DRIVER")
	envString(&c.CachePrefix, "CACHE_PREFIX")
	envInt(&c.CacheTTLSeconds, "CACHE_TTL_SECONDS")
	envInt(&c.CacheMemorySize, "CACHE_MEMORY_SIZE")
	envLower(&c.InvalidationMode, "INVALIDATION_MODE")
	envInt(&c.InvalidationTimeoutSec, "INVALIDATION_TIMEOUT_SEC")

	envLower(&c.CounterStore, "COUNTER_STORE")
	envInt(&c.CounterTTLSeconds, "COUNTER_TTL_SECONDS")
	envInt(&c.CounterSweepIntervalSec, "COUNTER_SWEEP_INTERVAL_SEC")
	envInt(&c.CounterViewsThreshold, "COUNTER_VIEWS_THRESHOLD")
	envInt(&c.CounterDownloadsThreshold, "COUNTER_DOWNLOADS_THRESHOLD")

	envInt(&c.ContactCooldownSec, "CONTACT_COOLDOWN_SEC")
	envInt(&c.ContactMaxPerIPPerDay, "CONTACT_MAX_PER_IP_PER_DAY")
	envString(&c.ContactNotifyEmail, "CONTACT_NOTIFY_EMAIL")

	envString(&c.SMTPHost, "SMTP_HOST")
	envInt(&c.SMTPPort, "SMTP_PORT")
	envString(&c.SMTPUsername, "SMTP_USERNAME")
	envString(&c.SMTPPassword, "SMTP_PASSWORD")
	envString(&c.SMTPFrom, "SMTP_FROM")
	envString(&c.SMTPFromName, "SMTP_FROM_NAME")
	envBool(&c.SMTPTLS, "SMTP_TLS")
}

func envString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envLower(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = strings.ToLower(strings.TrimSpace(v))
	}
}

// envInt aborts startup on a malformed number rather than run with a zero.
func envInt(dst *int, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	i, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		log.Fatalf("%s: invalid integer %q: %v", key, v, err)
	}
	*dst = i
}

func envBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			log.Fatalf("%s: invalid boolean %q: %v", key, v, err)
		}
		*dst = b
	}
}

func readListEnv(key string, defaults []string) []string {
	if raw := os.Getenv(key); raw != "" {
		return splitAndTrim(raw)
	}
	return defaults
}

func splitAndTrim(raw string) []string {
	items := []string{}
	for _, item := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}
