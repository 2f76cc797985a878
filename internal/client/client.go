package client

import (
	"context"
	"fmt"

	"github.com/fivetwenty-io/qbclient/internal/auth"
	"github.com/fivetwenty-io/qbclient/internal/constants"
	"github.com/fivetwenty-io/qbclient/internal/http"
	"github.com/fivetwenty-io/qbclient/internal/invalidation"
	"github.com/fivetwenty-io/qbclient/internal/metadata"
	"github.com/fivetwenty-io/qbclient/internal/metrics"
	"github.com/fivetwenty-io/qbclient/pkg/quickbase"
)

// Client implements the quickbase.Client interface.
type Client struct {
	httpClient  *http.Client
	cache       *metadata.Cache
	bus         *invalidation.Bus
	logger      quickbase.Logger
	concurrency int
}

// createHTTPClientOptions builds HTTP client options from config.
func createHTTPClientOptions(config *quickbase.Config, recorder *metrics.Metrics) []http.Option {
	httpOpts := []http.Option{http.WithRealm(config.RealmHostname)}

	if config.Logger != nil {
		httpOpts = append(httpOpts, http.WithLogger(config.Logger))
	}

	if config.Debug {
		httpOpts = append(httpOpts, http.WithDebug(true))
	}

	if config.UserAgent != "" {
		httpOpts = append(httpOpts, http.WithUserAgent(config.UserAgent))
	}

	if config.HTTPTimeout > 0 {
		httpOpts = append(httpOpts, http.WithTimeout(config.HTTPTimeout))
	}

	if config.RetryMaxAttempts != 0 || config.RetryBaseDelay > 0 || config.RetryMaxDelay > 0 {
		maxAttempts := constants.DefaultRetryMaxAttempts
		baseDelay := constants.DefaultRetryBaseDelay
		maxDelay := constants.DefaultRetryMaxDelay

		if config.RetryMaxAttempts != 0 {
			maxAttempts = config.RetryMaxAttempts
		}

		if config.RetryBaseDelay > 0 {
			baseDelay = config.RetryBaseDelay
		}

		if config.RetryMaxDelay > 0 {
			maxDelay = config.RetryMaxDelay
		}

		httpOpts = append(httpOpts, http.WithRetryConfig(maxAttempts, baseDelay, maxDelay))
	}

	if config.RetryJitter > 0 {
		httpOpts = append(httpOpts, http.WithJitter(config.RetryJitter))
	}

	if recorder != nil {
		httpOpts = append(httpOpts, http.WithMetrics(recorder))
	}

	return httpOpts
}

// New creates a Quickbase client from config. When config.NATSURL is set the
// client joins the invalidation bus before returning.
func New(ctx context.Context, config *quickbase.Config) (*Client, error) {
	err := validate(config)
	if err != nil {
		return nil, err
	}

	var recorder *metrics.Metrics
	if config.MetricsRegisterer != nil {
		recorder = metrics.New(config.MetricsRegisterer)
	}

	tokenManager := auth.NewUserTokenManager(config.UserToken)
	httpClient := http.NewClient(config.BaseURL, tokenManager, createHTTPClientOptions(config, recorder)...)

	cacheOpts := []metadata.Option{}
	if config.Logger != nil {
		cacheOpts = append(cacheOpts, metadata.WithLogger(config.Logger))
	}

	if recorder != nil {
		cacheOpts = append(cacheOpts, metadata.WithMetrics(recorder))
	}

	var bus *invalidation.Bus

	if config.NATSURL != "" {
		err = ctx.Err()
		if err != nil {
			return nil, fmt.Errorf("creating client: %w", err)
		}

		bus, err = invalidation.Connect(config.NATSURL, config.InvalidationSubject, config.Logger)
		if err != nil {
			return nil, err
		}

		cacheOpts = append(cacheOpts, metadata.WithPublisher(bus))
	}

	cache := metadata.New(metadata.NewAPIFetcher(httpClient), config.AppIDs, cacheOpts...)

	if bus != nil {
		err = bus.Subscribe(cache.ApplyRemote)
		if err != nil {
			_ = bus.Close()

			return nil, err
		}
	}

	client := newClient(httpClient, cache, config.Logger, config.MaxConcurrency)
	client.bus = bus

	return client, nil
}

func newClient(httpClient *http.Client, cache *metadata.Cache, logger quickbase.Logger, concurrency int) *Client {
	if concurrency <= 0 {
		concurrency = constants.DefaultConcurrencyLimit
	}

	return &Client{
		httpClient:  httpClient,
		cache:       cache,
		logger:      logger,
		concurrency: concurrency,
	}
}

func validate(config *quickbase.Config) error {
	switch {
	case config == nil:
		return quickbase.ErrConfigRequired
	case config.RealmHostname == "":
		return quickbase.ErrRealmHostnameRequired
	case auth.Normalize(config.UserToken) == "":
		return quickbase.ErrUserTokenRequired
	default:
		return nil
	}
}

// Apps implements quickbase.MetadataClient.Apps.
func (c *Client) Apps() []quickbase.AppDescriptor {
	return c.cache.Apps()
}

// Tables implements quickbase.MetadataClient.Tables.
func (c *Client) Tables(ctx context.Context, app string) ([]quickbase.TableDescriptor, error) {
	return c.cache.Tables(ctx, app)
}

// Fields implements quickbase.MetadataClient.Fields.
func (c *Client) Fields(ctx context.Context, app, table string) ([]quickbase.FieldDescriptor, error) {
	descriptor, err := c.cache.ResolveTable(ctx, app, table)
	if err != nil {
		return nil, err
	}

	return c.cache.Fields(ctx, descriptor)
}

// ResolveTable implements quickbase.MetadataClient.ResolveTable.
func (c *Client) ResolveTable(ctx context.Context, app, table string) (quickbase.TableDescriptor, error) {
	return c.cache.ResolveTable(ctx, app, table)
}

// ResolveField implements quickbase.MetadataClient.ResolveField.
func (c *Client) ResolveField(ctx context.Context, app, table, label string) (quickbase.FieldDescriptor, error) {
	descriptor, err := c.cache.ResolveTable(ctx, app, table)
	if err != nil {
		return quickbase.FieldDescriptor{}, err
	}

	return c.cache.ResolveField(ctx, descriptor, label)
}

// Invalidate implements quickbase.MetadataClient.Invalidate.
func (c *Client) Invalidate(scope quickbase.Scope) {
	c.cache.Invalidate(scope)
}

// CacheStats implements quickbase.MetadataClient.CacheStats.
func (c *Client) CacheStats() quickbase.CacheStats {
	return c.cache.Stats()
}

// Close implements quickbase.Client.Close.
func (c *Client) Close() error {
	if c.bus == nil {
		return nil
	}

	return c.bus.Close()
}
