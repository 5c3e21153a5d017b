package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"os"
	"runtime"
	"time"

	"portal/internal/auth"
	"portal/internal/db"
	"portal/internal/domain/sharing"
	"portal/internal/domain/storage"
	"portal/internal/mailer"
	"portal/internal/ratelimiter"
	"portal/internal/tokens"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger creates a new zap logger with color.
func NewLogger() (*zap.SugaredLogger, error) {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder

	consoleEncoder := zapcore.NewConsoleEncoder(encoderCfg)
	core := zapcore.NewCore(consoleEncoder, zapcore.AddSync(os.Stdout), zapcore.InfoLevel)

	return zap.New(core).Sugar(), nil
}

var version = "0.1.0"

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file loaded: %v", err)
	}

	logger, err := NewLogger()
	if err != nil {
		fmt.Println("Error creating logger:", err)
		return
	}
	defer logger.Sync()

	cfg, err := loadConfig()
	if err != nil {
		logger.Fatal(err)
	}

	store, closeStore, err := openStorage(cfg.db, logger)
	if err != nil {
		logger.Fatal(err)
	}
	defer closeStore()

	var mail mailer.Client
	if cfg.mail.smtp.host != "" {
		mail = mailer.NewSMTPMailer(
			cfg.mail.smtp.host,
			cfg.mail.smtp.port,
			cfg.mail.smtp.username,
			cfg.mail.smtp.password,
			cfg.mail.fromEmail,
		)
	} else {
		logger.Warn("SMTP_HOST not set, emails will be written to the log")
		mail = mailer.NewLogMailer(logger)
	}

	rateLimiter := ratelimiter.NewFixedWindowLimiter(
		cfg.rateLimiter.RequestsPerTimeFrame,
		cfg.rateLimiter.TimeFrame,
	)

	jwtAuthenticator := auth.NewJWTAuthenticator(
		cfg.auth.token.secret,
		cfg.auth.token.refreshSecret,
		cfg.auth.token.iss,
		cfg.auth.token.iss,
		cfg.auth.token.accessTokenExp,
		cfg.auth.token.refreshTokenExp,
	)

	shareIDs, err := sharing.NewIDCodec(cfg.share.salt)
	if err != nil {
		logger.Fatal(err)
	}

	app := &application{
		config:        cfg,
		logger:        logger,
		store:         store,
		mailer:        mail,
		authenticator: jwtAuthenticator,
		rateLimiter:   rateLimiter,
		tokens:        tokens.Default,
		shareIDs:      shareIDs,
	}

	// Metrics collected http://localhost:8080/v1/debug/vars
	expvar.NewString("version").Set(version)
	expvar.Publish("goroutines", expvar.Func(func() any {
		return runtime.NumGoroutine()
	}))

	ctx, cancel := context.WithCancel(context.Background())
	app.sweepExpiredEvery30Mins(ctx)

	mux := app.mount()

	err = app.run(mux)
	cancel()
	if err != nil {
		logger.Fatal(err)
	}
}

// openStorage builds the store container for the configured driver. The
// returned func releases its resources.
func openStorage(cfg dbConfig, logger *zap.SugaredLogger) (*storage.Container, func(), error) {
	if cfg.driver == driverMemory {
		logger.Warn("using in-memory storage, data is lost on restart")
		return storage.NewMemoryContainer(), func() {}, nil
	}

	if cfg.autoMigrate {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if err := db.Migrate(ctx, cfg.addr); err != nil {
			return nil, nil, err
		}
		logger.Info("database migrations applied")
	}

	pool, err := db.New(cfg.addr, int32(cfg.maxOpenConns), cfg.maxIdleTime)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("database connection pool established")

	expvar.Publish("database", expvar.Func(func() any {
		s := pool.Stat()
		return map[string]any{
			"total_conns":    s.TotalConns(),
			"idle_conns":     s.IdleConns(),
			"acquired_conns": s.AcquiredConns(),
			"max_conns":      s.MaxConns(),
		}
	}))

	return storage.NewContainer(pool), pool.Close, nil
}
