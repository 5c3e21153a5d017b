package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"portal/internal/ratelimiter"
	"portal/internal/tokens"
)

type config struct {
	addr         string
	env          string
	apiURL       string
	frontendURL  string
	cookieDomain string

	// trustProxy enables X-Forwarded-For/X-Real-IP handling. Only set it
	// when a reverse proxy in front of the API overwrites those headers.
	trustProxy     bool
	requestTimeout time.Duration

	db          dbConfig
	mail        mailConfig
	auth        authConfig
	rateLimiter ratelimiter.Config
	share       shareConfig
}

type dbConfig struct {
	driver       string
	addr         string
	maxOpenConns int
	maxIdleTime  string
	autoMigrate  bool
}

type mailConfig struct {
	fromEmail     string
	otpExp        time.Duration
	accessCodeExp time.Duration
	smtp          smtpConfig
}

type smtpConfig struct {
	host     string
	port     int
	username string
	password string
}

type authConfig struct {
	basic basicConfig
	token tokenConfig
}

type tokenConfig struct {
	refreshSecret   string
	secret          string
	accessTokenExp  time.Duration
	refreshTokenExp time.Duration
	iss             string
}

type basicConfig struct {
	user string
	pass string
}

type shareConfig struct {
	salt string
}

const (
	driverPostgres = "postgres"
	driverMemory   = "memory"
)

func loadConfig() (config, error) {
	cfg := config{
		addr:        getString("ADDR", ":8080"),
		env:         getString("ENV", "development"),
		apiURL:      getString("EXTERNAL_URL", "localhost:8080"),
		frontendURL: getString("FRONTEND_URL", "http://localhost:3000"),

		// empty means host-only cookies
		cookieDomain: os.Getenv("COOKIE_DOMAIN"),

		trustProxy:     getBool("TRUST_PROXY", false),
		requestTimeout: getDuration("REQUEST_TIMEOUT", 60*time.Second),

		db: dbConfig{
			driver:       getString("DB_DRIVER", driverPostgres),
			addr:         os.Getenv("DB_ADDR"),
			maxOpenConns: getInt("DB_MAX_OPEN_CONNS", 30),
			maxIdleTime:  getString("DB_MAX_IDLE_TIME", "15m"),
			autoMigrate:  getBool("DB_AUTO_MIGRATE", true),
		},
		mail: mailConfig{
			fromEmail:     getString("MAIL_FROM_EMAIL", "no-reply@portal.local"),
			otpExp:        getDuration("OTP_TTL", tokens.OTPTTL),
			accessCodeExp: getDuration("ACCESS_CODE_TTL", tokens.AccessCodeTTL),
			smtp: smtpConfig{
				host:     os.Getenv("SMTP_HOST"),
				port:     getInt("SMTP_PORT", 587),
				username: os.Getenv("SMTP_USERNAME"),
				password: os.Getenv("SMTP_PASSWORD"),
			},
		},
		auth: authConfig{
			basic: basicConfig{
				user: os.Getenv("AUTH_BASIC_USER"),
				pass: os.Getenv("AUTH_BASIC_PASS"),
			},
			token: tokenConfig{
				refreshSecret:   getString("AUTH_TOKEN_REFRESH_SECRET", "portal-dev-refresh-secret"),
				secret:          getString("AUTH_TOKEN_SECRET", "portal-dev-secret"),
				accessTokenExp:  time.Hour * 24,     // 1 day
				refreshTokenExp: time.Hour * 24 * 7, // 7 days
				iss:             "Portal",
			},
		},
		rateLimiter: LoadRateLimiterConfig(),
		share: shareConfig{
			salt: getString("SHARE_ID_SALT", "portal-share-links"),
		},
	}

	if err := cfg.validate(); err != nil {
		return config{}, err
	}
	return cfg, nil
}

func (cfg config) validate() error {
	switch cfg.db.driver {
	case driverPostgres:
		if cfg.db.addr == "" {
			return errors.New("DB_ADDR is required when DB_DRIVER=postgres")
		}
	case driverMemory:
	default:
		return fmt.Errorf("unknown DB_DRIVER %q", cfg.db.driver)
	}

	if cfg.env != "production" {
		return nil
	}
	for name, v := range map[string]string{
		"AUTH_TOKEN_SECRET":         os.Getenv("AUTH_TOKEN_SECRET"),
		"AUTH_TOKEN_REFRESH_SECRET": os.Getenv("AUTH_TOKEN_REFRESH_SECRET"),
		"AUTH_BASIC_USER":           cfg.auth.basic.user,
		"AUTH_BASIC_PASS":           cfg.auth.basic.pass,
		"SHARE_ID_SALT":             os.Getenv("SHARE_ID_SALT"),
	} {
		if v == "" {
			return fmt.Errorf("%s must be set in production", name)
		}
	}
	return nil
}

// LoadRateLimiterConfig retrieves rate limiter settings from environment variables
func LoadRateLimiterConfig() ratelimiter.Config {
	return ratelimiter.Config{
		RequestsPerTimeFrame: getInt("RATELIMITER_REQUESTS_COUNT", 200),
		TimeFrame:            5 * time.Second,
		Enabled:              getBool("RATE_LIMITER_ENABLED", false),
	}
}

func getString(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		return val
	}
	return fallback
}

func getInt(key string, fallback int) int {
	val, ok := os.LookupEnv(key)
	if !ok || val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		fmt.Printf("Invalid %s, defaulting to %d\n", key, fallback)
		return fallback
	}
	return parsed
}

func getBool(key string, fallback bool) bool {
	val, ok := os.LookupEnv(key)
	if !ok || val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		fmt.Printf("Invalid %s, defaulting to %t\n", key, fallback)
		return fallback
	}
	return parsed
}

func getDuration(key string, fallback time.Duration) time.Duration {
	val, ok := os.LookupEnv(key)
	if !ok || val == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(val)
	if err != nil || parsed <= 0 {
		fmt.Printf("Invalid %s, defaulting to %s\n", key, fallback)
		return fallback
	}
	return parsed
}
