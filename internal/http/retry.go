package http

import (
	"context"
	"math"
	"math/rand/v2"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/fivetwenty-io/qbclient/internal/constants"
	"github.com/hashicorp/go-retryablehttp"
)

// RetryPolicy holds the retry tunables of a Client. MaxAttempts counts every
// attempt, the first one included.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      float64

	random func() float64
}

// DefaultRetryPolicy returns the policy used when no option overrides it.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: constants.DefaultRetryMaxAttempts,
		BaseDelay:   constants.DefaultRetryBaseDelay,
		MaxDelay:    constants.DefaultRetryMaxDelay,
		Jitter:      constants.DefaultRetryJitter,
	}
}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}

	if p.BaseDelay < 0 {
		p.BaseDelay = 0
	}

	if p.MaxDelay < p.BaseDelay {
		p.MaxDelay = p.BaseDelay
	}

	p.Jitter = math.Max(0, math.Min(1, p.Jitter))

	if p.random == nil {
		p.random = rand.Float64
	}

	return p
}

// Delay returns the wait before retry number attempt (0 based): the base
// delay doubled per attempt, scaled by a uniform factor in [1-j, 1+j] and
// capped at MaxDelay.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	nominal := float64(p.BaseDelay) * math.Pow(constants.ExponentialBackoffBase, float64(attempt))

	factor := 1.0
	if p.Jitter > 0 && p.random != nil {
		factor = 1 - p.Jitter + 2*p.Jitter*p.random()
	}

	delay := nominal * factor
	if delay > float64(p.MaxDelay) {
		return p.MaxDelay
	}

	return time.Duration(delay)
}

// RetryAfter parses a Retry-After header given either as delay seconds or as
// an HTTP date.
func RetryAfter(value string, now time.Time) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}

	seconds, err := strconv.ParseFloat(value, 64)
	if err == nil {
		if seconds < 0 || math.IsNaN(seconds) || math.IsInf(seconds, 0) {
			return 0, false
		}

		return time.Duration(seconds * float64(time.Second)), true
	}

	at, err := http.ParseTime(value)
	if err != nil {
		return 0, false
	}

	wait := at.Sub(now)
	if wait < 0 {
		wait = 0
	}

	return wait, true
}

// checkRetry retries network failures, 429 and 5xx other than 501, and
// stops as soon as the request context is done.
func checkRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	//nolint:wrapcheck // the library contract expects the context error as is
	return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
}

// retryable reports whether a final failure was of a transient kind.
func retryable(status int, cause error) bool {
	if cause != nil {
		retry, _ := retryablehttp.DefaultRetryPolicy(context.Background(), nil, cause)

		return retry
	}

	return status == http.StatusTooManyRequests ||
		(status >= http.StatusInternalServerError && status != http.StatusNotImplemented)
}

// backoff implements retryablehttp.Backoff. A 429 carrying Retry-After waits
// exactly as long as the server asked, regardless of MaxDelay.
func (c *Client) backoff(_, _ time.Duration, attemptNum int, resp *http.Response) time.Duration {
	if resp != nil && resp.StatusCode == http.StatusTooManyRequests {
		if wait, ok := RetryAfter(resp.Header.Get(constants.RetryAfterHeader), time.Now()); ok {
			return wait
		}
	}

	return c.policy.Delay(attemptNum)
}
