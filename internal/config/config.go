// Package config loads client settings from the environment, a YAML config
// file and an optional dotenv file.
//
// Precedence, highest first: process environment, dotenv file, config file,
// defaults. Environment variables use the QB_ prefix; the user token is read
// from QB_REALM_API_KEY or QB_USER_TOKEN and the app map from QB_APP_IDS, a
// JSON object of app name to app ID.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/fivetwenty-io/qbclient/internal/constants"
	"github.com/fivetwenty-io/qbclient/pkg/quickbase"
)

// Viper keys.
const (
	KeyRealmHostname       = "realm_hostname"
	KeyUserToken           = "user_token"
	KeyAppIDs              = "app_ids"
	KeyApps                = "apps"
	KeyBaseURL             = "base_url"
	KeyHTTPTimeout         = "http_timeout"
	KeyRetryMaxAttempts    = "retry_max_attempts"
	KeyRetryBaseDelay      = "retry_base_delay"
	KeyRetryMaxDelay       = "retry_max_delay"
	KeyRetryJitter         = "retry_jitter"
	KeyMaxConcurrency      = "max_concurrency"
	KeyLogLevel            = "log_level"
	KeyDebug               = "debug"
	KeyNATSURL             = "nats_url"
	KeyInvalidationSubject = "invalidation_subject"
)

// App is one configured application.
type App struct {
	Name string `json:"name" mapstructure:"name" yaml:"name"`
	ID   string `json:"id"   mapstructure:"id"   yaml:"id"`
}

// Config is the persisted and resolved client configuration.
type Config struct {
	RealmHostname       string        `json:"realm_hostname"                 yaml:"realm_hostname"`
	UserToken           string        `json:"user_token,omitempty"           yaml:"user_token,omitempty"`
	Apps                []App         `json:"apps,omitempty"                 yaml:"apps,omitempty"`
	BaseURL             string        `json:"base_url,omitempty"             yaml:"base_url,omitempty"`
	HTTPTimeout         time.Duration `json:"http_timeout,omitempty"         yaml:"http_timeout,omitempty"`
	RetryMaxAttempts    int           `json:"retry_max_attempts,omitempty"   yaml:"retry_max_attempts,omitempty"`
	RetryBaseDelay      time.Duration `json:"retry_base_delay,omitempty"     yaml:"retry_base_delay,omitempty"`
	RetryMaxDelay       time.Duration `json:"retry_max_delay,omitempty"      yaml:"retry_max_delay,omitempty"`
	RetryJitter         float64       `json:"retry_jitter,omitempty"         yaml:"retry_jitter,omitempty"`
	MaxConcurrency      int           `json:"max_concurrency,omitempty"      yaml:"max_concurrency,omitempty"`
	LogLevel            string        `json:"log_level,omitempty"            yaml:"log_level,omitempty"`
	Debug               bool          `json:"debug,omitempty"                yaml:"debug,omitempty"`
	NATSURL             string        `json:"nats_url,omitempty"             yaml:"nats_url,omitempty"`
	InvalidationSubject string        `json:"invalidation_subject,omitempty" yaml:"invalidation_subject,omitempty"`
}

// Options selects the files Load reads. Empty paths disable the file.
type Options struct {
	ConfigFile string
	EnvFile    string
}

// envNames maps viper keys to the environment variables that set them.
var envNames = map[string][]string{
	KeyRealmHostname:       {"QB_REALM_HOSTNAME"},
	KeyUserToken:           {"QB_REALM_API_KEY", "QB_USER_TOKEN"},
	KeyAppIDs:              {"QB_APP_IDS"},
	KeyBaseURL:             {"QB_BASE_URL"},
	KeyHTTPTimeout:         {"QB_HTTP_TIMEOUT"},
	KeyRetryMaxAttempts:    {"QB_RETRY_MAX_ATTEMPTS"},
	KeyRetryBaseDelay:      {"QB_RETRY_BASE_DELAY"},
	KeyRetryMaxDelay:       {"QB_RETRY_MAX_DELAY"},
	KeyRetryJitter:         {"QB_RETRY_JITTER"},
	KeyMaxConcurrency:      {"QB_MAX_CONCURRENCY"},
	KeyLogLevel:            {"QB_LOG_LEVEL"},
	KeyDebug:               {"QB_DEBUG"},
	KeyNATSURL:             {"QB_NATS_URL"},
	KeyInvalidationSubject: {"QB_INVALIDATION_SUBJECT"},
}

// DefaultPath returns ~/.qb/config.yml.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".qb", "config.yml")
	}

	return filepath.Join(home, ".qb", "config.yml")
}

// NewViper creates a viper instance with defaults and environment bindings.
func NewViper() *viper.Viper {
	v := viper.New()

	v.SetDefault(KeyRetryMaxAttempts, constants.DefaultRetryMaxAttempts)
	v.SetDefault(KeyRetryBaseDelay, constants.DefaultRetryBaseDelay)
	v.SetDefault(KeyRetryMaxDelay, constants.DefaultRetryMaxDelay)
	v.SetDefault(KeyRetryJitter, constants.DefaultRetryJitter)
	v.SetDefault(KeyHTTPTimeout, constants.DefaultHTTPTimeout)
	v.SetDefault(KeyMaxConcurrency, constants.DefaultConcurrencyLimit)
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyInvalidationSubject, constants.DefaultInvalidationSubject)

	for key, names := range envNames {
		_ = v.BindEnv(append([]string{key}, names...)...)
	}

	return v
}

// Load reads the configuration into a fresh viper instance.
func Load(opts Options) (*Config, error) {
	return LoadInto(NewViper(), opts)
}

// LoadInto reads the configuration files into v and resolves the result.
func LoadInto(v *viper.Viper, opts Options) (*Config, error) {
	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		v.SetConfigType("yaml")

		err := v.ReadInConfig()
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("reading config file %s: %w", opts.ConfigFile, err)
		}
	}

	if opts.EnvFile != "" {
		err := mergeEnvFile(v, opts.EnvFile)
		if err != nil {
			return nil, err
		}
	}

	return resolve(v)
}

// mergeEnvFile applies QB_ variables from a dotenv file for every key the
// process environment leaves unset.
func mergeEnvFile(v *viper.Viper, path string) error {
	dotenv := viper.New()
	dotenv.SetConfigFile(path)
	dotenv.SetConfigType("dotenv")

	err := dotenv.ReadInConfig()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}

		return fmt.Errorf("reading env file %s: %w", path, err)
	}

	for key, names := range envNames {
		if inEnvironment(names) {
			continue
		}

		for _, name := range names {
			if value := dotenv.GetString(strings.ToLower(name)); value != "" {
				v.Set(key, value)

				break
			}
		}
	}

	return nil
}

func inEnvironment(names []string) bool {
	for _, name := range names {
		if _, ok := os.LookupEnv(name); ok {
			return true
		}
	}

	return false
}

func resolve(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		RealmHostname:       v.GetString(KeyRealmHostname),
		UserToken:           v.GetString(KeyUserToken),
		BaseURL:             v.GetString(KeyBaseURL),
		HTTPTimeout:         v.GetDuration(KeyHTTPTimeout),
		RetryMaxAttempts:    v.GetInt(KeyRetryMaxAttempts),
		RetryBaseDelay:      v.GetDuration(KeyRetryBaseDelay),
		RetryMaxDelay:       v.GetDuration(KeyRetryMaxDelay),
		RetryJitter:         v.GetFloat64(KeyRetryJitter),
		MaxConcurrency:      v.GetInt(KeyMaxConcurrency),
		LogLevel:            v.GetString(KeyLogLevel),
		Debug:               v.GetBool(KeyDebug),
		NATSURL:             v.GetString(KeyNATSURL),
		InvalidationSubject: v.GetString(KeyInvalidationSubject),
	}

	err := v.UnmarshalKey(KeyApps, &cfg.Apps)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", constants.ErrInvalidAppIDs, err)
	}

	if raw := strings.TrimSpace(v.GetString(KeyAppIDs)); raw != "" {
		apps, err := ParseAppIDs(raw)
		if err != nil {
			return nil, err
		}

		cfg.Apps = mergeApps(cfg.Apps, apps)
	}

	return cfg, nil
}

// ParseAppIDs parses a JSON object of app name to app ID.
func ParseAppIDs(raw string) ([]App, error) {
	var ids map[string]string

	err := json.Unmarshal([]byte(raw), &ids)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", constants.ErrInvalidAppIDs, err)
	}

	apps := make([]App, 0, len(ids))
	for name, id := range ids {
		apps = append(apps, App{Name: name, ID: id})
	}

	sort.Slice(apps, func(i, j int) bool { return apps[i].Name < apps[j].Name })

	return apps, nil
}

// mergeApps overlays override onto base by name.
func mergeApps(base, override []App) []App {
	index := make(map[string]int, len(base))
	out := append([]App(nil), base...)

	for i, app := range out {
		index[app.Name] = i
	}

	for _, app := range override {
		if i, ok := index[app.Name]; ok {
			out[i] = app

			continue
		}

		out = append(out, app)
	}

	return out
}

// Validate checks that the credentials are present.
func (c *Config) Validate() error {
	if c.RealmHostname == "" {
		return constants.ErrRealmHostnameRequired
	}

	if strings.TrimSpace(c.UserToken) == "" {
		return constants.ErrUserTokenRequired
	}

	return nil
}

// AppIDs returns the app map keyed by name.
func (c *Config) AppIDs() map[string]string {
	ids := make(map[string]string, len(c.Apps))
	for _, app := range c.Apps {
		ids[app.Name] = app.ID
	}

	return ids
}

// Quickbase converts the configuration into client settings.
func (c *Config) Quickbase(logger quickbase.Logger, registerer prometheus.Registerer) *quickbase.Config {
	return &quickbase.Config{
		RealmHostname:       c.RealmHostname,
		UserToken:           c.UserToken,
		AppIDs:              c.AppIDs(),
		BaseURL:             c.BaseURL,
		HTTPTimeout:         c.HTTPTimeout,
		RetryMaxAttempts:    c.RetryMaxAttempts,
		RetryBaseDelay:      c.RetryBaseDelay,
		RetryMaxDelay:       c.RetryMaxDelay,
		RetryJitter:         c.RetryJitter,
		MaxConcurrency:      c.MaxConcurrency,
		Debug:               c.Debug,
		Logger:              logger,
		MetricsRegisterer:   registerer,
		NATSURL:             c.NATSURL,
		InvalidationSubject: c.InvalidationSubject,
	}
}

// Save writes cfg as YAML to path with owner-only permissions.
func Save(path string, cfg *Config) error {
	err := os.MkdirAll(filepath.Dir(path), constants.ConfigDirPerm)
	if err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	err = os.WriteFile(path, data, constants.ConfigFilePerm)
	if err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// ReadFile reads the YAML config file at path. A missing file yields an
// empty config.
func ReadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path is chosen by the user
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}

		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := &Config{}

	err = yaml.Unmarshal(data, cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	return cfg, nil
}
