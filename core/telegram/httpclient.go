package telegram

import (
	"net"
	"net/http"
	"time"

	"github.com/m3rciful/deliabot/core/telegram/netutil"
)

// HTTPClientOptions tunes BuildHTTPClient. Zero values select defaults.
type HTTPClientOptions struct {
	DialTimeout time.Duration
	// ResponseTimeout bounds the wait for response headers. Zero disables it;
	// getUpdates holds the response open for the whole long-poll interval.
	ResponseTimeout time.Duration
	// Timeout must exceed the long-poll timeout.
	Timeout time.Duration
	Retries         int
	Backoff         time.Duration
}

func (o HTTPClientOptions) withDefaults() HTTPClientOptions {
	if o.DialTimeout <= 0 {
		o.DialTimeout = 5 * time.Second
	}
	if o.Timeout <= 0 {
		o.Timeout = 30 * time.Second
	}
	if o.Retries <= 0 {
		o.Retries = 3
	}
	if o.Backoff <= 0 {
		o.Backoff = 2 * time.Second
	}
	return o
}

// BuildHTTPClient returns the Bot API client with default tuning.
func BuildHTTPClient() *http.Client {
	return NewHTTPClient(HTTPClientOptions{})
}

// NewHTTPClient returns a client that retries transient transport errors.
func NewHTTPClient(opts HTTPClientOptions) *http.Client {
	opts = opts.withDefaults()
	base := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   opts.DialTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       30 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ResponseHeaderTimeout: opts.ResponseTimeout,
		ExpectContinueTimeout: time.Second,
	}
	return &http.Client{
		Timeout:   opts.Timeout,
		Transport: &retryTransport{next: base, retries: opts.Retries, backoff: opts.Backoff},
	}
}

// retryTransport replays a request when the round trip failed before a
// response arrived. Requests whose body cannot be rewound are sent once.
type retryTransport struct {
	next    http.RoundTripper
	retries int
	backoff time.Duration
}

func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.next.RoundTrip(req)
	for attempt := 1; err != nil && attempt <= t.retries; attempt++ {
		if !netutil.ShouldRetry(err) || (req.Body != nil && req.GetBody == nil) {
			return nil, err
		}
		if waitErr := sleepCtx(req, t.backoff*time.Duration(attempt)); waitErr != nil {
			return nil, waitErr
		}
		retry := req.Clone(req.Context())
		if req.GetBody != nil {
			if retry.Body, err = req.GetBody(); err != nil {
				return nil, err
			}
		}
		resp, err = t.next.RoundTrip(retry)
	}
	return resp, err
}

func sleepCtx(req *http.Request, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-req.Context().Done():
		return req.Context().Err()
	case <-timer.C:
		return nil
	}
}
