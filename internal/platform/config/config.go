package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port string
	Env  string

	// Store selection: "memory" or "mongo"
	StoreType string

	// MongoDB settings (when StoreType = "mongo")
	MongoURI string
	MongoDB  string

	// Upstream base URLs
	IdentityBaseURL  string
	ProfileBaseURL   string
	ReferenceBaseURL string
	ProposalBaseURL  string
	CaseDeskBaseURL  string
	CheckoutBaseURL  string

	// Agency identity passed to the session bridge on login
	AgentID string
	Channel string

	// Polling engine bounds
	PollInterval     time.Duration
	PollHardTimeout  time.Duration
	PollSettleWindow time.Duration

	// Timeouts
	HTTPReadTimeoutSec     int
	HTTPWriteTimeoutSec    int
	HTTPIdleTimeoutSec     int
	HTTPRequestTimeoutSec  int
	UpstreamTimeoutSec     int
	MongoConnectTimeoutSec int
	MongoOpTimeoutMs       int

	// Security settings
	AllowedOrigins []string
	RateLimitRPM   int
}

func Load() (*Config, error) {
	_ = godotenv.Load(".env")
	cfg := &Config{}

	cfg.Port = getEnv("PORT", "8080")
	cfg.Env = getEnv("ENV", "dev")
	cfg.StoreType = getEnv("STORE_TYPE", "memory")

	cfg.MongoURI = getEnv("MONGODB_URI", getEnv("MONGO_URI", ""))
	cfg.MongoDB = getEnv("MONGO_DB", "quotefunnel")

	cfg.IdentityBaseURL = getEnv("IDENTITY_BASE_URL", "http://localhost:9001")
	cfg.ProfileBaseURL = getEnv("PROFILE_BASE_URL", "http://localhost:9002")
	cfg.ReferenceBaseURL = getEnv("REFERENCE_BASE_URL", "http://localhost:9002")
	cfg.ProposalBaseURL = getEnv("PROPOSAL_BASE_URL", "http://localhost:9003")
	cfg.CaseDeskBaseURL = getEnv("CASEDESK_BASE_URL", "http://localhost:9004")
	cfg.CheckoutBaseURL = getEnv("CHECKOUT_BASE_URL", "http://localhost:9005")

	cfg.AgentID = getEnv("AGENT_ID", "")
	cfg.Channel = getEnv("CHANNEL", "web")

	cfg.PollInterval = getEnvAsDuration("POLL_INTERVAL", 3*time.Second)
	cfg.PollHardTimeout = getEnvAsDuration("POLL_HARD_TIMEOUT", 90*time.Second)
	cfg.PollSettleWindow = getEnvAsDuration("POLL_SETTLE_WINDOW", 15*time.Second)

	cfg.HTTPReadTimeoutSec = getEnvAsInt("HTTP_READ_TIMEOUT_SEC", 10)
	cfg.HTTPWriteTimeoutSec = getEnvAsInt("HTTP_WRITE_TIMEOUT_SEC", 10)
	cfg.HTTPIdleTimeoutSec = getEnvAsInt("HTTP_IDLE_TIMEOUT_SEC", 120)
	cfg.HTTPRequestTimeoutSec = getEnvAsInt("HTTP_REQUEST_TIMEOUT_SEC", 30)
	cfg.UpstreamTimeoutSec = getEnvAsInt("UPSTREAM_TIMEOUT_SEC", 15)
	cfg.MongoConnectTimeoutSec = getEnvAsInt("MONGO_CONNECT_TIMEOUT_SEC", 5)
	cfg.MongoOpTimeoutMs = getEnvAsInt("MONGO_OP_TIMEOUT_MS", 500)

	cfg.AllowedOrigins = getEnvAsSlice("ALLOWED_ORIGINS", []string{"http://localhost:3000", "http://localhost:8080"})
	cfg.RateLimitRPM = getEnvAsInt("RATE_LIMIT_RPM", 100)

	if cfg.StoreType == "mongo" && cfg.MongoURI == "" {
		return nil, fmt.Errorf("MONGO_URI is required when STORE_TYPE=mongo")
	}
	if cfg.PollInterval <= 0 || cfg.PollHardTimeout <= 0 {
		return nil, fmt.Errorf("poll interval and hard timeout must be positive")
	}

	return cfg, nil
}

func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	return cfg
}

func getEnv(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func getEnvAsInt(key string, defaultVal int) int {
	valStr := os.Getenv(key)
	if val, err := strconv.Atoi(valStr); err == nil {
		return val
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	valStr := os.Getenv(key)
	if val, err := time.ParseDuration(valStr); err == nil {
		return val
	}
	return defaultVal
}

func getEnvAsSlice(key string, defaultVal []string) []string {
	valStr := os.Getenv(key)
	if valStr == "" {
		return defaultVal
	}
	var result []string
	for _, s := range strings.Split(valStr, ",") {
		s = strings.TrimSpace(s)
		if s != "" {
			result = append(result, s)
		}
	}
	if len(result) == 0 {
		return defaultVal
	}
	return result
}
