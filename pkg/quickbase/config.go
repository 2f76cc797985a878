package quickbase

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Logger interface for logging.
type Logger interface {
	Debug(msg string, fields map[string]interface{})
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
}

// Config represents client configuration for building a quickbase.Client.
//
// # Credentials
//
// RealmHostname and UserToken are required. The token is sent as
// "Authorization: QB-USER-TOKEN <token>"; the prefix is added when missing.
// Neither value is ever logged.
//
// # Apps
//
// AppIDs seeds the app descriptors by name so that no network round trip is
// needed to find an app. Apps may also be addressed by raw ID.
//
// # Retries
//
// RetryMaxAttempts counts every attempt including the first. Delays grow as
// RetryBaseDelay * 2^attempt, scaled by a random factor in
// [1-RetryJitter, 1+RetryJitter] and capped at RetryMaxDelay. A 429 with a
// Retry-After header waits for the advertised delay instead. Zero values use
// the defaults (5 attempts, 1s, 64s, 0.5).
//
// # Cache invalidation
//
// When NATSURL is set, cache invalidations are broadcast on
// InvalidationSubject and invalidations from other processes are applied to
// this client's cache.
type Config struct {
	// RealmHostname: the realm, e.g. "example.quickbase.com".
	RealmHostname string
	// UserToken: a Quickbase user token.
	UserToken string
	// AppIDs: app name to app ID.
	AppIDs map[string]string

	// BaseURL: overrides https://api.quickbase.com/v1.
	BaseURL string
	// HTTPTimeout: per-attempt timeout of the underlying HTTP client.
	HTTPTimeout time.Duration
	// UserAgent: overrides the default User-Agent header.
	UserAgent string

	RetryMaxAttempts int
	RetryBaseDelay   time.Duration
	RetryMaxDelay    time.Duration
	RetryJitter      float64

	// MaxConcurrency bounds parallel page fetches in QueryAll.
	MaxConcurrency int

	// Debug: enables HTTP request/response logging when a Logger is provided.
	Debug bool
	// Logger: optional structured logger used by the transport and cache.
	Logger Logger
	// MetricsRegisterer: when set, transport and cache metrics are registered on it.
	MetricsRegisterer prometheus.Registerer

	// NATSURL: optional NATS server for cache invalidation broadcast.
	NATSURL string
	// InvalidationSubject: NATS subject, defaults to "qbclient.metadata.invalidate".
	InvalidationSubject string
}
