package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

// AppConfig holds file and environment driven configuration values.
// Secrets should never have defaults inside code and must be provided via the config file or the environment.
type AppConfig struct {
	// Network
	ServerAddress  string
	TCPPort        int
	HTTPPort       string
	JWTSecret      string
	AllowedOrigins []string

	// Signup protection on the HTTP API
	RateLimitPerMinute int

	// Reward broadcast group
	MulticastAddress string
	MulticastPort    int
	MulticastTTL     int

	// Worker pool
	PoolCoreWorkers    int
	PoolMaxWorkers     int
	PoolKeepAliveMs    int
	PoolQueueSize      int
	RepeatPolicyTimes  int
	RepeatPolicyWaitMs int
	WriteTimeoutMs     int
	ShutdownTimeoutSec int

	// Rewards
	RewardRateMs           int
	AuthorRewardPercentage float64

	// Persistence
	PersistencePath string
	AutoSaveRateMs  int

	// Optional reward ledger (MySQL via gorm)
	DatabaseURI string
	DBHost      string
	DBPort      string
	DBUser      string
	DBPassword  string
	DBName      string

	// Redis for the exchange-rate cache; empty host disables it
	RedisHost     string
	RedisPort     int
	RedisDB       int
	RedisPassword string

	// Exchange rate source for WALLET_BTC
	ExchangeRateURL     string
	ExchangeCacheTTLSec int
	ExchangeTimeoutMs   int

	// Logging configuration
	LogLevel      string
	LogPath       string
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int
	LogCompress   bool

	// Gin framework configuration
	GinMode string
}

// Error reports every invalid configuration key at once.
type Error struct {
	Path     string
	Problems []string
}

func (e *Error) Error() string {
	src := e.Path
	if src == "" {
		src = "environment"
	}
	return fmt.Sprintf("invalid configuration (%s): %s", src, strings.Join(e.Problems, "; "))
}

func (e *Error) add(format string, args ...any) {
	e.Problems = append(e.Problems, fmt.Sprintf(format, args...))
}

var (
	cfg    AppConfig
	loaded bool
	mu     sync.Mutex
)

// DefaultPath is where Load looks when no explicit path is given.
var DefaultPath = filepath.Join("config", "config.json")

// Load loads the configuration from path (or DefaultPath), applies defaults and environment overrides and validates it.
// It should be called once during boot.
func Load(path string) (AppConfig, error) {
	mu.Lock()
	defer mu.Unlock()

	if path == "" {
		path = DefaultPath
	}

	var c AppConfig
	// Precedence: config file -> defaults -> environment variable overrides
	if err := loadJSONConfig(path, &c); err != nil {
		return AppConfig{}, &Error{Path: path, Problems: []string{err.Error()}}
	}
	applyDefaults(&c)

	verr := &Error{Path: path}
	applyEnvOverrides(&c, verr)
	validate(&c, verr)
	if len(verr.Problems) > 0 {
		return AppConfig{}, verr
	}

	cfg = c
	loaded = true
	return cfg, nil
}

// Get returns the cached configuration. It returns defaults when Load was never called.
func Get() AppConfig {
	mu.Lock()
	defer mu.Unlock()
	if !loaded {
		var c AppConfig
		applyDefaults(&c)
		return c
	}
	return cfg
}

// Defaults returns a configuration populated only with defaults.
func Defaults() AppConfig {
	var c AppConfig
	applyDefaults(&c)
	return c
}

// Duration helpers keep millisecond keys readable at call sites.
func (c AppConfig) PoolKeepAlive() time.Duration    { return ms(c.PoolKeepAliveMs) }
func (c AppConfig) RepeatPolicyWait() time.Duration { return ms(c.RepeatPolicyWaitMs) }
func (c AppConfig) RewardRate() time.Duration       { return ms(c.RewardRateMs) }
func (c AppConfig) AutoSaveRate() time.Duration     { return ms(c.AutoSaveRateMs) }
func (c AppConfig) WriteTimeout() time.Duration     { return ms(c.WriteTimeoutMs) }
func (c AppConfig) ExchangeTimeout() time.Duration  { return ms(c.ExchangeTimeoutMs) }
func (c AppConfig) ExchangeCacheTTL() time.Duration {
	return time.Duration(c.ExchangeCacheTTLSec) * time.Second
}
func (c AppConfig) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutSec) * time.Second
}

// TCPAddr is the listen address of the request stream.
func (c AppConfig) TCPAddr() string {
	return c.ServerAddress + ":" + strconv.Itoa(c.TCPPort)
}

func ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }

// loadJSONConfig reads a JSON file into cfg if present. Returns error only for invalid JSON.
func loadJSONConfig(path string, out *AppConfig) error {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil // silently ignore missing file
		}
		return err
	}
	defer f.Close()

	var raw map[string]any
	if err := json.NewDecoder(f).Decode(&raw); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}

	getString := func(m map[string]any, key string) string {
		if v, ok := m[key]; ok {
			switch t := v.(type) {
			case string:
				return t
			case float64:
				return strconv.FormatFloat(t, 'f', -1, 64)
			}
		}
		return ""
	}
	getInt := func(m map[string]any, key string) int {
		if v, ok := m[key]; ok {
			switch t := v.(type) {
			case float64:
				return int(t)
			case string:
				i, _ := strconv.Atoi(t)
				return i
			}
		}
		return 0
	}
	getFloat := func(m map[string]any, key string) float64 {
		if v, ok := m[key]; ok {
			if f, ok := v.(float64); ok {
				return f
			}
		}
		return 0
	}
	getBool := func(m map[string]any, key string) bool {
		if v, ok := m[key]; ok {
			if b, ok := v.(bool); ok {
				return b
			}
		}
		return false
	}
	getStringSlice := func(m map[string]any, key string) []string {
		if v, ok := m[key]; ok {
			if arr, ok := v.([]any); ok {
				res := make([]string, 0, len(arr))
				for _, it := range arr {
					if s, ok := it.(string); ok {
						res = append(res, s)
					}
				}
				return res
			}
		}
		return nil
	}

	if app, ok := raw["app"].(map[string]any); ok {
		out.ServerAddress = getString(app, "ServerAddress")
		out.TCPPort = getInt(app, "TCPPort")
		out.HTTPPort = getString(app, "HTTPPort")
		out.JWTSecret = getString(app, "JWTSecret")
		out.RateLimitPerMinute = getInt(app, "RateLimitPerMinute")
		out.WriteTimeoutMs = getInt(app, "WriteTimeoutMs")
		out.ShutdownTimeoutSec = getInt(app, "ShutdownTimeoutSec")
		if list := getStringSlice(app, "AllowedOrigins"); len(list) > 0 {
			out.AllowedOrigins = list
		}
	}

	if mc, ok := raw["multicast"].(map[string]any); ok {
		out.MulticastAddress = getString(mc, "Address")
		out.MulticastPort = getInt(mc, "Port")
		out.MulticastTTL = getInt(mc, "TTL")
	}

	if pool, ok := raw["pool"].(map[string]any); ok {
		out.PoolCoreWorkers = getInt(pool, "CoreWorkers")
		out.PoolMaxWorkers = getInt(pool, "MaxWorkers")
		out.PoolKeepAliveMs = getInt(pool, "KeepAliveMs")
		out.PoolQueueSize = getInt(pool, "QueueSize")
		out.RepeatPolicyTimes = getInt(pool, "RepeatPolicyTimes")
		out.RepeatPolicyWaitMs = getInt(pool, "RepeatPolicyWaitMs")
	}

	if rw, ok := raw["rewards"].(map[string]any); ok {
		out.RewardRateMs = getInt(rw, "RateMs")
		out.AuthorRewardPercentage = getFloat(rw, "AuthorPercentage")
	}

	if ps, ok := raw["persistence"].(map[string]any); ok {
		out.PersistencePath = getString(ps, "Path")
		out.AutoSaveRateMs = getInt(ps, "AutoSaveMs")
	}

	if dbs, ok := raw["database"].(map[string]any); ok {
		out.DatabaseURI = getString(dbs, "DatabaseURI")
		out.DBHost = getString(dbs, "DBHost")
		out.DBPort = getString(dbs, "DBPort")
		out.DBUser = getString(dbs, "DBUser")
		out.DBPassword = getString(dbs, "DBPassword")
		out.DBName = getString(dbs, "DBName")
	}

	if rds, ok := raw["redis"].(map[string]any); ok {
		out.RedisHost = getString(rds, "RedisHost")
		out.RedisPort = getInt(rds, "RedisPort")
		out.RedisDB = getInt(rds, "RedisDB")
		out.RedisPassword = getString(rds, "RedisPassword")
	}

	if ex, ok := raw["exchange"].(map[string]any); ok {
		out.ExchangeRateURL = getString(ex, "URL")
		out.ExchangeCacheTTLSec = getInt(ex, "CacheTTLSec")
		out.ExchangeTimeoutMs = getInt(ex, "TimeoutMs")
	}

	if lg, ok := raw["log"].(map[string]any); ok {
		out.LogLevel = getString(lg, "Level")
		out.LogPath = getString(lg, "Path")
		out.GinMode = getString(lg, "GinMode")
		out.LogMaxSizeMB = getInt(lg, "MaxSizeMB")
		out.LogMaxBackups = getInt(lg, "MaxBackups")
		out.LogMaxAgeDays = getInt(lg, "MaxAgeDays")
		out.LogCompress = getBool(lg, "Compress")
	}

	return nil
}

// applyDefaults sets sane defaults for zero-value fields.
func applyDefaults(c *AppConfig) {
	if c.ServerAddress == "" {
		c.ServerAddress = "0.0.0.0"
	}
	if c.TCPPort == 0 {
		c.TCPPort = 6666
	}
	if c.HTTPPort == "" {
		c.HTTPPort = "8080"
	}
	if len(c.AllowedOrigins) == 0 {
		c.AllowedOrigins = []string{"*"}
	}
	if c.RateLimitPerMinute == 0 {
		c.RateLimitPerMinute = 30
	}
	if c.MulticastAddress == "" {
		c.MulticastAddress = "239.255.32.32"
	}
	if c.MulticastPort == 0 {
		c.MulticastPort = 44444
	}
	if c.MulticastTTL == 0 {
		c.MulticastTTL = 1
	}
	if c.PoolCoreWorkers == 0 {
		c.PoolCoreWorkers = 5
	}
	if c.PoolMaxWorkers == 0 {
		c.PoolMaxWorkers = 20
	}
	if c.PoolKeepAliveMs == 0 {
		c.PoolKeepAliveMs = 1000
	}
	if c.PoolQueueSize == 0 {
		c.PoolQueueSize = 256
	}
	if c.RepeatPolicyTimes == 0 {
		c.RepeatPolicyTimes = 5
	}
	if c.RepeatPolicyWaitMs == 0 {
		c.RepeatPolicyWaitMs = 50
	}
	if c.WriteTimeoutMs == 0 {
		c.WriteTimeoutMs = 2000
	}
	if c.ShutdownTimeoutSec == 0 {
		c.ShutdownTimeoutSec = 60
	}
	if c.RewardRateMs == 0 {
		c.RewardRateMs = 60000
	}
	if c.AuthorRewardPercentage == 0 {
		c.AuthorRewardPercentage = 70
	}
	if c.PersistencePath == "" {
		c.PersistencePath = "data.json"
	}
	if c.AutoSaveRateMs == 0 {
		c.AutoSaveRateMs = 5000
	}
	if c.DBHost != "" {
		if c.DBPort == "" {
			c.DBPort = "3306"
		}
		if c.DBUser == "" {
			c.DBUser = "root"
		}
		if c.DBName == "" {
			c.DBName = "winsome"
		}
	}
	if c.RedisHost != "" && c.RedisPort == 0 {
		c.RedisPort = 6379
	}
	if c.ExchangeRateURL == "" {
		c.ExchangeRateURL = "https://www.random.org/decimal-fractions/?num=1&dec=10&col=1&format=plain&rnd=new"
	}
	if c.ExchangeCacheTTLSec == 0 {
		c.ExchangeCacheTTLSec = 60
	}
	if c.ExchangeTimeoutMs == 0 {
		c.ExchangeTimeoutMs = 3000
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogMaxSizeMB == 0 {
		c.LogMaxSizeMB = 100
	}
	if c.LogMaxBackups == 0 {
		c.LogMaxBackups = 3
	}
	if c.LogMaxAgeDays == 0 {
		c.LogMaxAgeDays = 7
	}
	if c.GinMode == "" {
		c.GinMode = "release"
	}
}

// applyEnvOverrides maps known environment variables onto config values when present.
func applyEnvOverrides(c *AppConfig, verr *Error) {
	str := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			i, err := strconv.Atoi(v)
			if err != nil {
				verr.add("%s: invalid integer %q", key, v)
				return
			}
			*dst = i
		}
	}

	str("SERVER_ADDRESS", &c.ServerAddress)
	num("TCP_PORT", &c.TCPPort)
	str("HTTP_PORT", &c.HTTPPort)
	str("JWT_SECRET", &c.JWTSecret)
	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		c.AllowedOrigins = splitAndTrim(v)
	}
	num("RATE_LIMIT_PER_MINUTE", &c.RateLimitPerMinute)
	str("MULTICAST_ADDRESS", &c.MulticastAddress)
	num("UDP_PORT", &c.MulticastPort)
	num("THREAD_POOL_CORE", &c.PoolCoreWorkers)
	num("THREAD_POOL_MAX", &c.PoolMaxWorkers)
	num("THREAD_POOL_KEEPALIVE_MS", &c.PoolKeepAliveMs)
	num("THREAD_POOL_QUEUE", &c.PoolQueueSize)
	num("REPEAT_POLICY_TIMES", &c.RepeatPolicyTimes)
	num("REPEAT_POLICY_WAIT_MS", &c.RepeatPolicyWaitMs)
	num("REWARD_RATE_MS", &c.RewardRateMs)
	if v := os.Getenv("REWARD_PERCENTAGE"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			verr.add("REWARD_PERCENTAGE: invalid number %q", v)
		} else {
			c.AuthorRewardPercentage = f
		}
	}
	str("PERSISTENCE_PATH", &c.PersistencePath)
	num("AUTOSAVE_RATE_MS", &c.AutoSaveRateMs)
	str("DATABASE_URI", &c.DatabaseURI)
	str("DB_HOST", &c.DBHost)
	str("DB_PORT", &c.DBPort)
	str("DB_USER", &c.DBUser)
	str("DB_PASSWORD", &c.DBPassword)
	str("DB_NAME", &c.DBName)
	str("REDIS_HOST", &c.RedisHost)
	num("REDIS_PORT", &c.RedisPort)
	num("REDIS_DB", &c.RedisDB)
	str("REDIS_PASSWORD", &c.RedisPassword)
	str("EXCHANGE_RATE_URL", &c.ExchangeRateURL)
	str("LOG_LEVEL", &c.LogLevel)
	str("LOG_PATH", &c.LogPath)
	str("GIN_MODE", &c.GinMode)
	if v := os.Getenv("LOG_COMPRESS"); v != "" {
		c.LogCompress = v == "true"
	}
}

func validate(c *AppConfig, verr *Error) {
	if c.JWTSecret == "" {
		verr.add("JWTSecret must be set (app.JWTSecret or JWT_SECRET)")
	}
	if c.TCPPort < 0 || c.TCPPort > 65535 {
		verr.add("TCPPort %d out of range", c.TCPPort)
	}
	if c.MulticastPort <= 0 || c.MulticastPort > 65535 {
		verr.add("multicast Port %d out of range", c.MulticastPort)
	}
	if c.PoolCoreWorkers < 0 {
		verr.add("pool CoreWorkers must not be negative")
	}
	if c.PoolMaxWorkers < 1 || c.PoolMaxWorkers < c.PoolCoreWorkers {
		verr.add("pool MaxWorkers %d must be >= 1 and >= CoreWorkers %d", c.PoolMaxWorkers, c.PoolCoreWorkers)
	}
	if c.PoolQueueSize < 0 {
		verr.add("pool QueueSize must not be negative")
	}
	if c.RepeatPolicyTimes < 0 || c.RepeatPolicyWaitMs < 0 {
		verr.add("repeat policy values must not be negative")
	}
	if c.RewardRateMs <= 0 {
		verr.add("rewards RateMs must be positive")
	}
	if c.AuthorRewardPercentage < 0 || c.AuthorRewardPercentage > 100 {
		verr.add("rewards AuthorPercentage %.2f must be within 0..100", c.AuthorRewardPercentage)
	}
	if c.AutoSaveRateMs <= 0 {
		verr.add("persistence AutoSaveMs must be positive")
	}
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
