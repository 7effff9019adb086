package config

import (
	"fmt"
	"os"

	"github.com/google/uuid"
)

const tokenKey = "api.token"

// APIToken returns the bearer token the local HTTP API requires.
// SKINMATCH_API_TOKEN overrides; otherwise the token lives in the
// config backend and is generated on first use, so the CLI and the
// server agree without any setup step.
func APIToken() (string, error) {
	if env := os.Getenv("SKINMATCH_API_TOKEN"); env != "" {
		return env, nil
	}

	b := newPlatformBackend()
	tok, ok, err := b.GetString(tokenKey)
	if err != nil {
		return "", fmt.Errorf("reading API token: %w", err)
	}
	if ok && tok != "" {
		return tok, nil
	}

	tok = uuid.New().String()
	if err := b.SetString(tokenKey, tok); err != nil {
		return "", fmt.Errorf("storing API token: %w", err)
	}
	return tok, nil
}
