package config

import (
	"encoding/base64"
	"fmt"
)

const DefaultMaxUploadSize = 100 << 20 // 100 MB

type Config struct {
	ServerAddr     string
	DatabasePath   string
	UploadDir      string
	MaxUploadSize  int64
	SigningKey     []byte
	AllowedOrigins []string
}

func decodeSigningSecret(base64Secret string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(base64Secret)
}

func NewConfig(serverAddr, databasePath, uploadDir string, maxUploadSize int64, base64Secret string, allowedOrigins []string) (*Config, error) {
	if serverAddr == "" {
		return nil, fmt.Errorf("server address cannot be empty")
	}
	if databasePath == "" {
		return nil, fmt.Errorf("database path cannot be empty")
	}
	if uploadDir == "" {
		return nil, fmt.Errorf("upload directory cannot be empty")
	}
	if base64Secret == "" {
		return nil, fmt.Errorf("signing secret cannot be empty")
	}
	if maxUploadSize <= 0 {
		maxUploadSize = DefaultMaxUploadSize
	}

	signingKey, err := decodeSigningSecret(base64Secret)
	if err != nil {
		return nil, fmt.Errorf("decode signing secret: %w", err)
	}

	return &Config{
		ServerAddr:     serverAddr,
		DatabasePath:   databasePath,
		UploadDir:      uploadDir,
		MaxUploadSize:  maxUploadSize,
		SigningKey:     signingKey,
		AllowedOrigins: allowedOrigins,
	}, nil
}
