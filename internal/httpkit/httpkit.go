// Package httpkit builds the HTTP clients used for every outbound call:
// model providers, search backends, page fetches, the questions API, and
// task attachment downloads. All of them share one transport shape and
// identify themselves with the Smarty User-Agent.
package httpkit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"syscall"
	"time"

	"github.com/nugget/smarty/internal/buildinfo"
)

// Transport defaults. Provider calls can stream for minutes, so there
// is no body deadline here; callers bound those with a context.
const (
	DefaultDialTimeout         = 10 * time.Second
	DefaultKeepAlive           = 30 * time.Second
	DefaultTLSHandshakeTimeout = 10 * time.Second
	DefaultResponseHeader      = 15 * time.Second
	DefaultIdleConnTimeout     = 90 * time.Second
	DefaultMaxIdleConns        = 20
	DefaultMaxIdleConnsPerHost = 5

	// DefaultClientTimeout bounds a whole request for clients that do
	// not override it.
	DefaultClientTimeout = 30 * time.Second
)

// ClientOption adjusts a client built by NewClient.
type ClientOption func(*settings)

type settings struct {
	timeout    time.Duration
	userAgent  string // empty disables injection
	transport  *http.Transport
	retries    int
	retryDelay time.Duration
	logger     *slog.Logger
}

// WithTimeout sets http.Client.Timeout. Zero means no client-side limit.
func WithTimeout(d time.Duration) ClientOption {
	return func(s *settings) { s.timeout = d }
}

// WithUserAgent replaces the Smarty User-Agent.
func WithUserAgent(ua string) ClientOption {
	return func(s *settings) { s.userAgent = ua }
}

// WithoutUserAgent leaves the User-Agent header to the caller.
func WithoutUserAgent() ClientOption {
	return func(s *settings) { s.userAgent = "" }
}

// WithTransport supplies the base transport instead of NewTransport.
func WithTransport(t *http.Transport) ClientOption {
	return func(s *settings) { s.transport = t }
}

// WithRetry retries up to count times when the connection could not be
// established at all. The request never reached the server in that
// case, so a POST is safe to resend as long as its body can be rewound.
func WithRetry(count int, delay time.Duration) ClientOption {
	return func(s *settings) {
		s.retries = count
		s.retryDelay = delay
	}
}

// WithLogger reports retries at debug level.
func WithLogger(l *slog.Logger) ClientOption {
	return func(s *settings) { s.logger = l }
}

// NewTransport returns a fresh transport with the package defaults.
func NewTransport() *http.Transport {
	dialer := &net.Dialer{
		Timeout:   DefaultDialTimeout,
		KeepAlive: DefaultKeepAlive,
	}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		TLSHandshakeTimeout:   DefaultTLSHandshakeTimeout,
		ResponseHeaderTimeout: DefaultResponseHeader,
		IdleConnTimeout:       DefaultIdleConnTimeout,
		MaxIdleConns:          DefaultMaxIdleConns,
		MaxIdleConnsPerHost:   DefaultMaxIdleConnsPerHost,
	}
}

// NewClient assembles a client from opts. Round trippers are layered
// as retry -> user agent -> transport.
func NewClient(opts ...ClientOption) *http.Client {
	s := settings{
		timeout:   DefaultClientTimeout,
		userAgent: buildinfo.UserAgent(),
	}
	for _, opt := range opts {
		opt(&s)
	}

	var rt http.RoundTripper
	if s.transport != nil {
		rt = s.transport
	} else {
		rt = NewTransport()
	}
	if s.userAgent != "" {
		rt = &userAgentTransport{base: rt, ua: s.userAgent}
	}
	if s.retries > 0 {
		rt = &retryTransport{base: rt, count: s.retries, delay: s.retryDelay, logger: s.logger}
	}

	return &http.Client{Timeout: s.timeout, Transport: rt}
}

type userAgentTransport struct {
	base http.RoundTripper
	ua   string
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") != "" {
		return t.base.RoundTrip(req)
	}
	out := req.Clone(req.Context())
	out.Header.Set("User-Agent", t.ua)
	return t.base.RoundTrip(out)
}

type retryTransport struct {
	base   http.RoundTripper
	count  int
	delay  time.Duration
	logger *slog.Logger
}

func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	hasBody := req.Body != nil && req.Body != http.NoBody
	ctx := req.Context()

	attemptReq := req
	for attempt := 0; ; attempt++ {
		resp, err := t.base.RoundTrip(attemptReq)
		if err == nil || !isRetryableError(err) || attempt >= t.count {
			return resp, err
		}
		if hasBody && req.GetBody == nil {
			return resp, err
		}

		if t.logger != nil {
			t.logger.Debug("connection failed, retrying",
				"method", req.Method,
				"host", req.URL.Host,
				"attempt", attempt+1,
				"of", t.count,
				"error", err,
			)
		}

		if err := sleepCtx(ctx, t.delay); err != nil {
			return nil, err
		}

		attemptReq = req.Clone(ctx)
		if hasBody {
			body, err := req.GetBody()
			if err != nil {
				return nil, fmt.Errorf("rewind request body: %w", err)
			}
			attemptReq.Body = body
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// isRetryableError reports whether err means no connection was made.
// A reset is not included: the server may have acted on the request.
func isRetryableError(err error) bool {
	for _, errno := range []syscall.Errno{syscall.ECONNREFUSED, syscall.EHOSTUNREACH, syscall.ENETUNREACH} {
		if errors.Is(err, errno) {
			return true
		}
	}
	return false
}

// DrainAndClose discards at most limit bytes of rc and closes it, which
// lets the transport reuse the connection.
func DrainAndClose(rc io.ReadCloser, limit int64) {
	if rc == nil {
		return
	}
	io.Copy(io.Discard, io.LimitReader(rc, limit)) //nolint:errcheck
	rc.Close()
}

// ReadErrorBody returns up to limit bytes of an error response for use
// in error messages and closes rc. A nil rc yields "".
func ReadErrorBody(rc io.ReadCloser, limit int64) string {
	if rc == nil {
		return ""
	}
	defer DrainAndClose(rc, 1024)
	body, err := io.ReadAll(io.LimitReader(rc, limit))
	if err != nil {
		return fmt.Sprintf("(unreadable error body: %v)", err)
	}
	return string(body)
}
