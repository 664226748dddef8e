package telegram

import (
	"net"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/m3rciful/stateful/core/telegram/netutil"
)

const (
	defaultDialTimeout       = 5 * time.Second
	defaultTLSHandshake      = 5 * time.Second
	defaultIdleConnTimeout   = 30 * time.Second
	defaultClientTimeout     = 30 * time.Second
	defaultKeepAliveInterval = 30 * time.Second
	defaultDialRetries       = 3
	defaultDialBackoff       = 500 * time.Millisecond
)

// BuildHTTPClient returns an HTTP client tuned for Telegram API calls.
// Requests are repeated only when the connection could not be established.
func BuildHTTPClient() *http.Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: defaultDialTimeout, KeepAlive: defaultKeepAliveInterval}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       defaultIdleConnTimeout,
		TLSHandshakeTimeout:   defaultTLSHandshake,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &http.Client{
		Timeout: defaultClientTimeout,
		Transport: &retryTransport{
			base:       transport,
			maxRetries: defaultDialRetries,
			backoff:    defaultDialBackoff,
		},
	}
}

type retryTransport struct {
	base       http.RoundTripper
	maxRetries int
	backoff    time.Duration
}

func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = t.backoff
	policy.MaxElapsedTime = 0

	var (
		resp    *http.Response
		lastErr error
		attempt int
	)
	op := func() error {
		attempt++
		curr := req
		if attempt > 1 {
			curr = req.Clone(req.Context())
			if req.Body != nil {
				if req.GetBody == nil {
					return backoff.Permanent(lastErr)
				}
				body, err := req.GetBody()
				if err != nil {
					return backoff.Permanent(err)
				}
				curr.Body = body
			}
		}
		r, err := base.RoundTrip(curr)
		if err != nil {
			lastErr = err
			if !netutil.NotSent(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		resp = r
		return nil
	}

	b := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(t.maxRetries)), req.Context())
	if err := backoff.Retry(op, b); err != nil {
		return nil, err
	}
	return resp, nil
}
