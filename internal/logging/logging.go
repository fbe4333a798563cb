// Package logging provides structured logging configuration.
package logging

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds logging configuration options.
type Config struct {
	Level  string // debug|info|warn|error
	Format string // json|console
}

// New creates a new configured zap logger.
func New(cfg Config) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if cfg.Level != "" {
		if err := level.Set(strings.ToLower(cfg.Level)); err != nil {
			return nil, err
		}
	}

	format := strings.ToLower(cfg.Format)
	if format == "" {
		format = "json"
	}

	var zcfg zap.Config
	if format == "console" {
		zcfg = zap.NewDevelopmentConfig()
	} else {
		zcfg = zap.NewProductionConfig()
	}

	zcfg.Level = zap.NewAtomicLevelAt(level)
	zcfg.EncoderConfig.TimeKey = "ts"
	zcfg.EncoderConfig.LevelKey = "level"
	zcfg.EncoderConfig.MessageKey = "msg"
	zcfg.EncoderConfig.CallerKey = "caller"
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := zcfg.Build(zap.AddCaller(), zap.AddCallerSkip(0))
	if err != nil {
		return nil, err
	}

	logger = logger.With(zap.String("service", "dataway"))

	return logger, nil
}

// Sync flushes any buffered log entries.
func Sync(logger *zap.Logger) {
	_ = logger.Sync()
}

// FromEnv creates a Config from environment variables.
func FromEnv() Config {
	return Config{
		Level:  getenv("DATAWAY_LOG_LEVEL", "info"),
		Format: getenv("DATAWAY_LOG_FORMAT", "json"),
	}
}

func getenv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

// Component returns a zap field for the component name.
func Component(name string) zap.Field { return zap.String("component", name) }

// Route returns a zap field for a logical route name.
func Route(name string) zap.Field { return zap.String("route", name) }

// Protocol returns a zap field for a protocol id.
func Protocol(proto string) zap.Field { return zap.String("protocol", proto) }

// Endpoint returns a zap field for an RPC endpoint id.
func Endpoint(endpoint string) zap.Field { return zap.String("endpoint", endpoint) }

// URL returns a zap field for a URL.
func URL(url string) zap.Field { return zap.String("url", url) }

// Method returns a zap field for an HTTP method.
func Method(method string) zap.Field { return zap.String("method", method) }

// Status returns a zap field for an HTTP status code.
func Status(status int) zap.Field { return zap.Int("status", status) }

// Realm returns a zap field for a WAMP realm.
func Realm(realm string) zap.Field { return zap.String("realm", realm) }

// Principal returns a zap field for an authentication principal.
func Principal(principal string) zap.Field { return zap.String("principal", principal) }

// AuthMethod returns a zap field for an authentication method.
func AuthMethod(method string) zap.Field { return zap.String("auth_method", method) }

// Attempt returns a zap field for a reconnect attempt counter.
func Attempt(attempt int) zap.Field { return zap.Int("attempt", attempt) }

// Channel returns a zap field for a notification bus channel.
func Channel(channel string) zap.Field { return zap.String("channel", channel) }

// Event returns a zap field for a notification event type.
func Event(event string) zap.Field { return zap.String("event", event) }

// Shape returns a zap field for a declared return shape.
func Shape(shape string) zap.Field { return zap.String("shape", shape) }

// Database returns a zap field for a database name.
func Database(name string) zap.Field { return zap.String("database", name) }

// State returns a zap field for a state machine state.
func State(state string) zap.Field { return zap.String("state", state) }
