package telegram

import (
	"net"
	"net/http"
	"time"

	"github.com/m3rciful/cowinbot/core/telegram/netutil"
)

const (
	dialTimeout       = 5 * time.Second
	tlsHandshakeLimit = 5 * time.Second
	idleConnTimeout   = 30 * time.Second
	respHeaderTimeout = 5 * time.Second
	keepAliveInterval = 30 * time.Second
	transportRetries  = 3
	transportBackoff  = 2 * time.Second

	// clientTimeout must stay above the long poll timeout or getUpdates
	// calls would be cut short.
	clientTimeout = 30 * time.Second
)

// BuildHTTPClient returns the HTTP client used for Bot API calls: a tuned
// transport wrapped with retries for transient network failures.
func BuildHTTPClient() *http.Client {
	dialer := &net.Dialer{Timeout: dialTimeout, KeepAlive: keepAliveInterval}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       idleConnTimeout,
		TLSHandshakeTimeout:   tlsHandshakeLimit,
		ResponseHeaderTimeout: respHeaderTimeout,
		ExpectContinueTimeout: time.Second,
	}

	return &http.Client{
		Timeout: clientTimeout,
		Transport: &retryTransport{
			base:       transport,
			maxRetries: transportRetries,
			backoff:    transportBackoff,
		},
	}
}

// retryTransport retries transient transport failures with linear backoff.
// Requests with a non-replayable body are never retried.
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

	resp, err := base.RoundTrip(req)
	for attempt := 1; err != nil && attempt <= t.maxRetries && netutil.ShouldRetry(err); attempt++ {
		if waitErr := t.wait(req, attempt); waitErr != nil {
			return nil, waitErr
		}
		retryReq, ok := replayableClone(req)
		if !ok {
			return nil, err
		}
		resp, err = base.RoundTrip(retryReq)
	}
	return resp, err
}

// wait sleeps for the attempt's backoff unless the request context expires.
func (t *retryTransport) wait(req *http.Request, attempt int) error {
	delay := t.backoff * time.Duration(attempt)
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-req.Context().Done():
		return req.Context().Err()
	case <-timer.C:
		return nil
	}
}

// replayableClone produces a fresh copy of req with a rewound body.
// Requests whose body cannot be re-read report ok=false.
func replayableClone(req *http.Request) (*http.Request, bool) {
	if req.Body != nil && req.GetBody == nil {
		return nil, false
	}
	clone := req.Clone(req.Context())
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, false
		}
		clone.Body = body
	}
	return clone, true
}
