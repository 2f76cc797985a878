package constants

import "time"

// File and directory permissions.
const (
	// ConfigDirPerm is the permission for configuration directories.
	ConfigDirPerm = 0750

	// ConfigFilePerm is the permission for configuration files.
	ConfigFilePerm = 0600

	// DownloadDirPerm is the permission for attachment download directories.
	DownloadDirPerm = 0755

	// DownloadFilePerm is the permission for downloaded attachments.
	DownloadFilePerm = 0644
)

// Quickbase endpoint and headers.
const (
	// DefaultBaseURL is the Quickbase REST API root.
	DefaultBaseURL = "https://api.quickbase.com/v1"

	// DefaultUserAgent is sent when the config does not override it.
	DefaultUserAgent = "qbclient/1.0"

	// RealmHeader carries the realm hostname on every request.
	RealmHeader = "QB-Realm-Hostname"

	// UserTokenPrefix is the Authorization scheme for user tokens.
	UserTokenPrefix = "QB-USER-TOKEN "

	// RetryAfterHeader is the rate-limit hint header.
	RetryAfterHeader = "Retry-After"
)

// HTTP and network timeouts.
const (
	// DefaultHTTPTimeout is the default timeout for a single HTTP attempt.
	DefaultHTTPTimeout = 30 * time.Second

	// ShortHTTPTimeout bounds quick round trips such as a bus flush.
	ShortHTTPTimeout = 10 * time.Second
)

// Retry defaults.
const (
	// DefaultRetryMaxAttempts is the total number of attempts, first try included.
	DefaultRetryMaxAttempts = 5

	// DefaultRetryBaseDelay is the delay before the first retry.
	DefaultRetryBaseDelay = 1 * time.Second

	// DefaultRetryMaxDelay caps the computed backoff.
	DefaultRetryMaxDelay = 64 * time.Second

	// DefaultRetryJitter spreads each delay over [1-j, 1+j] of its nominal value.
	DefaultRetryJitter = 0.5

	// ExponentialBackoffBase is the base for exponential backoff.
	ExponentialBackoffBase = 2
)

// Concurrency and paging limits.
const (
	// DefaultConcurrencyLimit bounds concurrent page fetches.
	DefaultConcurrencyLimit = 8

	// DefaultPageSize is the number of records requested per page.
	DefaultPageSize = 1000

	// MaxPageSize is the largest page Quickbase returns.
	MaxPageSize = 1000
)

// Built-in fields and field types.
const (
	// RecordIDFieldID is the Record ID# field every table has.
	RecordIDFieldID = 3

	// FileFieldType is the field type of file attachment fields.
	FileFieldType = "file"
)

// HTTP status codes Quickbase uses with special meaning.
const (
	// HTTPStatusMultiStatus signals a partially successful upsert.
	HTTPStatusMultiStatus = 207
)

// Invalidation bus defaults.
const (
	// DefaultInvalidationSubject is the NATS subject for cache invalidations.
	DefaultInvalidationSubject = "qbclient.metadata.invalidate"
)

// UI and display constants.
const (
	// NotAvailable is shown for unset settings.
	NotAvailable = "N/A"

	// MaskedSecret is used to hide sensitive information.
	MaskedSecret = "***"
)

// Format constants.
const (
	// FormatJSON for JSON output format.
	FormatJSON = "json"

	// FormatYAML for YAML output format.
	FormatYAML = "yaml"

	// FormatTable for table output format.
	FormatTable = "table"
)
