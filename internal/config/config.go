package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultMaxConnsPerOrigin = 16
	defaultTurnDelay         = 500 * time.Millisecond
)

type Config struct {
	ServerAddr        string
	DatabaseDSN       string
	SigningKey        []byte
	AllowedOrigins    []string
	MaxConnsPerOrigin int
	// GenerationURL is the endpoint of the external generation service.
	GenerationURL string
	WorldInfoURL  string
	// TurnDelay is the pause between scheduled agent turns.
	TurnDelay time.Duration
}

func decodeSigningSecret(base64Secret string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(base64Secret)
}

func NewConfig(serverAddr, databaseDSN, base64Secret string, allowedOrigins []string) (*Config, error) {
	// .env values fill in anything the caller left empty
	_ = godotenv.Load()

	if serverAddr == "" {
		serverAddr = os.Getenv("RELAY_ADDR")
	}
	if databaseDSN == "" {
		databaseDSN = os.Getenv("RELAY_DSN")
	}
	if base64Secret == "" {
		base64Secret = os.Getenv("RELAY_SIGNING_KEY")
	}

	if serverAddr == "" {
		return nil, fmt.Errorf("server address cannot be empty")
	}
	if databaseDSN == "" {
		return nil, fmt.Errorf("database DSN cannot be empty")
	}
	if base64Secret == "" {
		return nil, fmt.Errorf("signing secret cannot be empty")
	}

	signingKey, err := decodeSigningSecret(base64Secret)
	if err != nil {
		return nil, fmt.Errorf("decode signing secret: %w", err)
	}

	maxConns := defaultMaxConnsPerOrigin
	if v := os.Getenv("RELAY_MAX_CONNS_PER_ORIGIN"); v != "" {
		maxConns, err = strconv.Atoi(v)
		if err != nil || maxConns < 1 {
			return nil, fmt.Errorf("invalid RELAY_MAX_CONNS_PER_ORIGIN %q", v)
		}
	}

	turnDelay := defaultTurnDelay
	if v := os.Getenv("RELAY_TURN_DELAY_MS"); v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil || ms < 0 {
			return nil, fmt.Errorf("invalid RELAY_TURN_DELAY_MS %q", v)
		}
		turnDelay = time.Duration(ms) * time.Millisecond
	}

	return &Config{
		ServerAddr:        serverAddr,
		DatabaseDSN:       databaseDSN,
		SigningKey:        signingKey,
		AllowedOrigins:    allowedOrigins,
		MaxConnsPerOrigin: maxConns,
		GenerationURL:     os.Getenv("RELAY_GENERATION_URL"),
		WorldInfoURL:      os.Getenv("RELAY_WORLDINFO_URL"),
		TurnDelay:         turnDelay,
	}, nil
}
