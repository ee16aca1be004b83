package engine

import "time"

// Config holds all process configuration, injected from main.
type Config struct {
	MCPPort        string
	APIPort        string // empty = REST API disabled
	StoreBackend   string // sqlite | postgres | redis
	SQLitePath     string
	DatabaseURL    string
	RedisURL       string
	RedisPrefix    string
	DefaultUserID  string // used when a tool call carries no user_id
	ConnectTimeout time.Duration
	APIRateLimit   float64 // requests/second per user
	APIRateBurst   int
	AllowedOrigins []string
}

var cfg Config

// Cfg exposes the configuration to the server packages.
// Always points to the current cfg value.
var Cfg = &cfg

// Init installs the configuration.
func Init(c Config) {
	cfg = c
	Cfg = &cfg
}
