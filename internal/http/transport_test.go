package http

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopMetrics struct{}

func (nopMetrics) ObserveAttempt(string, string, int, time.Duration) {}
func (nopMetrics) ObserveRetry(string, string)                       {}

func TestNewClient_Transport(t *testing.T) {
	t.Parallel()

	t.Run("pooled transport", func(t *testing.T) {
		t.Parallel()

		client := NewClient("https://api.quickbase.com/v1", nil, WithTimeout(7*time.Second))

		transport, ok := client.retry.HTTPClient.Transport.(*http.Transport)
		require.True(t, ok)
		assert.Greater(t, transport.MaxIdleConnsPerHost, 1)
		assert.Equal(t, 7*time.Second, client.retry.HTTPClient.Timeout)
	})

	t.Run("instrumented transport wraps the pool", func(t *testing.T) {
		t.Parallel()

		client := NewClient("https://api.quickbase.com/v1", nil, WithMetrics(nopMetrics{}))

		instrumented, ok := client.retry.HTTPClient.Transport.(*instrumentedTransport)
		require.True(t, ok)
		assert.IsType(t, &http.Transport{}, instrumented.base)
		assert.Equal(t, "/v1", instrumented.basePath)
	})
}

func TestClient_RelativePath(t *testing.T) {
	t.Parallel()

	client := NewClient("https://api.quickbase.com/v1", nil)

	tests := []struct {
		name string
		link string
		want string
	}{
		{name: "relative", link: "/files/bqorders1/1/9/2", want: "/files/bqorders1/1/9/2"},
		{name: "absolute", link: "https://api.quickbase.com/v1/files/bqorders1/1/9/2", want: "/files/bqorders1/1/9/2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, client.RelativePath(tt.link))
		})
	}
}
