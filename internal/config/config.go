package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Mode string

const (
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"
)

type Config struct {
	Mode     Mode
	HTTPAddr string
	SiteID   string

	DBDriver string
	DBDSN    string

	AuthHMACSecret string
	AuthTokenTTL   time.Duration
	// AuthTimeout bounds the identity lookup done for every authenticated request.
	AuthTimeout           time.Duration
	AutoProvisionProfiles bool
	EnableRegistration    bool

	CORSOrigins []string

	ScoringDriver  string // sql|http
	ScoringURL     string
	ScoringTimeout time.Duration

	EventsAMQPURL  string
	EventsExchange string
}

// Load reads an optional .env file and then the process environment.
func Load(files ...string) Config {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			log.Printf("config: load %s: %v", f, err)
		}
	}
	return FromEnv()
}

func FromEnv() Config {
	mode := Mode(os.Getenv("MODE"))
	if mode == "" {
		mode = ModeOffline
	}
	defOrigins := "http://localhost:3000"
	if mode == ModeOnline {
		defOrigins = "https://quiz.mindengage.ai"
	}
	return Config{
		Mode:     mode,
		HTTPAddr: envOr("HTTP_ADDR", ":8080"),
		SiteID:   envOr("SITE_ID", "local"),

		DBDriver: envOr("DB_DRIVER", "sqlite"),
		DBDSN:    envOr("DB_DSN", ""),

		AuthHMACSecret:        envOr("AUTH_HMAC_SECRET", "supersecret-dev-key"),
		AuthTokenTTL:          envDuration("AUTH_TOKEN_TTL", 8*time.Hour),
		AuthTimeout:           envDuration("AUTH_TIMEOUT", 5*time.Second),
		AutoProvisionProfiles: envBool("AUTO_PROVISION_PROFILES", mode == ModeOffline),
		EnableRegistration:    envBool("ENABLE_REGISTRATION", true),

		CORSOrigins: csvOr("CORS_ORIGINS", defOrigins),

		ScoringDriver:  envOr("SCORING_DRIVER", "sql"),
		ScoringURL:     os.Getenv("SCORING_URL"),
		ScoringTimeout: envDuration("SCORING_TIMEOUT", 10*time.Second),

		EventsAMQPURL:  os.Getenv("EVENTS_AMQP_URL"),
		EventsExchange: envOr("EVENTS_EXCHANGE", "attempt.events"),
	}
}

func envOr(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}

func envBool(k string, def bool) bool {
	switch os.Getenv(k) {
	case "1", "true", "TRUE", "yes", "YES":
		return true
	case "0", "false", "FALSE", "no", "NO":
		return false
	default:
		return def
	}
}

// envDuration accepts Go durations ("90s") or a bare number of seconds.
func envDuration(k string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil && n >= 0 {
		return time.Duration(n) * time.Second
	}
	return def
}

func csvOr(k, def string) []string {
	v := envOr(k, def)
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
