// Package qbclient provides the main entry point for creating Quickbase API clients
package qbclient

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/fivetwenty-io/qbclient/internal/client"
	"github.com/fivetwenty-io/qbclient/internal/config"
	"github.com/fivetwenty-io/qbclient/internal/logging"
	"github.com/fivetwenty-io/qbclient/pkg/quickbase"
)

// New creates a new Quickbase API client.
func New(ctx context.Context, cfg *quickbase.Config) (quickbase.Client, error) {
	if cfg == nil {
		return nil, quickbase.ErrConfigRequired
	}

	normalized := *cfg
	normalized.RealmHostname = normalizeRealm(cfg.RealmHostname)

	qb, err := client.New(ctx, &normalized)
	if err != nil {
		return nil, fmt.Errorf("failed to create new client: %w", err)
	}

	return qb, nil
}

// NewWithToken creates a client for realm authenticated by a user token.
// apps maps app names to app IDs.
func NewWithToken(ctx context.Context, realm, token string, apps map[string]string) (quickbase.Client, error) {
	return New(ctx, &quickbase.Config{
		RealmHostname: realm,
		UserToken:     token,
		AppIDs:        apps,
	})
}

// NewFromEnv creates a client from QB_* environment variables, a .env file
// in the working directory and ~/.qb/config.yml, in that order of
// precedence. Logs go to stderr at the configured level.
func NewFromEnv(ctx context.Context) (quickbase.Client, error) {
	cfg, err := config.Load(config.Options{
		ConfigFile: config.DefaultPath(),
		EnvFile:    ".env",
	})
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}

	err = cfg.Validate()
	if err != nil {
		return nil, err
	}

	logger := logging.New(logging.Config{Level: cfg.LogLevel, Output: os.Stderr})

	return New(ctx, cfg.Quickbase(logger, nil))
}

// normalizeRealm accepts a realm given as a URL.
func normalizeRealm(realm string) string {
	realm = strings.TrimSpace(realm)
	realm = strings.TrimPrefix(realm, "https://")
	realm = strings.TrimPrefix(realm, "http://")

	return strings.TrimSuffix(realm, "/")
}
