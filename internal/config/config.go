package config

import (
	"encoding/base64"
	"fmt"
	"time"
)

// defaultPresenceGrace absorbs rapid reconnects (tab refresh) before an
// offline status is broadcast to a chat room.
const defaultPresenceGrace = 500 * time.Millisecond

type Config struct {
	DatabaseDSN    string
	ServerAddr     string
	SigningKey     []byte
	AllowedOrigins []string
	PresenceGrace  time.Duration
}

func decodeSigningSecret(base64Secret string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(base64Secret)
}

func NewConfig(serverAddr, databaseDSN, base64Secret string, allowedOrigins []string, presenceGrace time.Duration) (*Config, error) {
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

	if presenceGrace < 0 {
		return nil, fmt.Errorf("presence grace delay cannot be negative")
	}
	if presenceGrace == 0 {
		presenceGrace = defaultPresenceGrace
	}

	return &Config{
		DatabaseDSN:    databaseDSN,
		ServerAddr:     serverAddr,
		SigningKey:     signingKey,
		AllowedOrigins: allowedOrigins,
		PresenceGrace:  presenceGrace,
	}, nil
}
