package waproto

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

const defaultResource = "S40-2.4.7-443"

// Config carries the session credentials and engine knobs.
type Config struct {
	// Phone is the account phone number, digits only.
	Phone string
	// Password is the stored credential, base64 of the 20-byte secret.
	Password string
	// Nickname is sent with presence updates.
	Nickname string
	// Resource identifies the client build in the stream open.
	Resource string
	// LogLevel is a zerolog level name; empty means info.
	LogLevel string
}

// ConfigFromEnv loads a Config from the environment, reading a local
// .env file first when one exists.
func ConfigFromEnv() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Phone:    os.Getenv("WA_PHONE"),
		Password: os.Getenv("WA_PASSWORD"),
		Nickname: getEnv("WA_NICKNAME", "waproto"),
		Resource: getEnv("WA_RESOURCE", defaultResource),
		LogLevel: getEnv("WA_LOG_LEVEL", "info"),
	}
	if cfg.Phone == "" || cfg.Password == "" {
		return Config{}, fmt.Errorf("%w: set WA_PHONE and WA_PASSWORD", ErrMissingCredentials)
	}
	return cfg, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// NewLogger returns a zerolog logger at the named level, defaulting to
// info when the level is unknown.
func NewLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(os.Stderr).Level(lvl).With().Timestamp().Logger()
}
