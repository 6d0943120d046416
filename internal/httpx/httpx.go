package httpx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// HTTPError carries status/body for non-2xx responses.
// It lets callers decide if/when to retry.
type HTTPError struct {
	Method     string
	URL        string
	StatusCode int
	Header     http.Header
	Body       []byte
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http error: %s %s status=%d body=%s", e.Method, e.URL, e.StatusCode, Snippet(e.Body, 900))
}

// RetryError is returned once the policy has given up on a retryable status.
// Last is the response of the final attempt.
type RetryError struct {
	Attempts int
	Last     *HTTPError
}

func (e *RetryError) Error() string {
	return fmt.Sprintf("max retries exceeded after %d attempts: last status=%d", e.Attempts, e.Last.StatusCode)
}

func (e *RetryError) Unwrap() error { return e.Last }

// Snippet trims b for inclusion in error messages.
func Snippet(b []byte, max int) string {
	s := strings.TrimSpace(string(b))
	if len(s) <= max {
		return s
	}
	return s[:max] + "…"
}

// Sleeper waits between attempts. Tests swap in a fake to avoid real delays.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// TimerSleeper sleeps on a real timer and wakes early when ctx is done.
type TimerSleeper struct{}

func (TimerSleeper) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Attempt describes one finished round-trip, passed to RetryPolicy.OnAttempt.
type Attempt struct {
	N          int // 1-based
	StatusCode int // 0 when no response was received
	Err        error
	Retry      bool
	Delay      time.Duration
}

// RetryPolicy controls retry behavior.
type RetryPolicy struct {
	// MaxRetries is the number of attempts allowed after the first one.
	MaxRetries int

	// The n-th retry waits BackoffFactor * 2^(n-1), capped at MaxBackoff.
	BackoffFactor time.Duration
	MaxBackoff    time.Duration

	// Statuses that trigger a retry (e.g. 429, 503).
	RetryStatuses map[int]bool

	// Methods eligible for retry. Nil means every method.
	Methods map[string]bool

	// If true, timeouts and transient I/O errors are retried too.
	RetryNetErrors bool

	// If true, a Retry-After header on a retryable response replaces the
	// computed backoff.
	RespectRetryAfter bool

	Sleeper   Sleeper
	OnAttempt func(Attempt)
}

// DefaultRetryPolicy retries POST requests up to 3 times on 429 and
// 500/502/503/504 with 1s, 2s, 4s delays. Network errors are not retried.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:    3,
		BackoffFactor: time.Second,
		MaxBackoff:    2 * time.Minute,
		RetryStatuses: map[int]bool{
			http.StatusTooManyRequests:     true, // 429
			http.StatusInternalServerError: true, // 500
			http.StatusBadGateway:          true, // 502
			http.StatusServiceUnavailable:  true, // 503
			http.StatusGatewayTimeout:      true, // 504
		},
		Methods:           map[string]bool{http.MethodPost: true},
		RespectRetryAfter: true,
		Sleeper:           TimerSleeper{},
	}
}

// Backoff is the delay before retry number n (1-based).
func (p RetryPolicy) Backoff(n int) time.Duration {
	if n < 1 || p.BackoffFactor <= 0 {
		return 0
	}
	d := p.BackoffFactor
	for i := 1; i < n; i++ {
		d *= 2
		if p.MaxBackoff > 0 && d >= p.MaxBackoff {
			return p.MaxBackoff
		}
	}
	if p.MaxBackoff > 0 && d > p.MaxBackoff {
		return p.MaxBackoff
	}
	return d
}

func (p RetryPolicy) methodAllowed(method string) bool {
	return p.Methods == nil || p.Methods[method]
}

func (p RetryPolicy) notify(a Attempt) {
	if p.OnAttempt != nil {
		p.OnAttempt(a)
	}
}

// DoWithRetry executes a request (built by buildReq) under policy p.
// It always reads the full body (even on error) so the underlying TCP connection
// can be reused by http.Transport.
//
// Errors: *HTTPError for a non-retryable non-2xx status, *RetryError once
// retries are exhausted, and the client's own error for transport failures.
func DoWithRetry(
	ctx context.Context,
	client *http.Client,
	buildReq func(context.Context) (*http.Request, error),
	p RetryPolicy,
) (*http.Response, []byte, error) {
	if p.Sleeper == nil {
		p.Sleeper = TimerSleeper{}
	}
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}

	for attempt := 1; ; attempt++ {
		req, err := buildReq(ctx)
		if err != nil {
			return nil, nil, err
		}
		canRetry := attempt <= p.MaxRetries && p.methodAllowed(req.Method)

		resp, err := client.Do(req)
		if err != nil {
			if canRetry && p.RetryNetErrors && isRetryableNetErr(err) {
				delay := p.Backoff(attempt)
				p.notify(Attempt{N: attempt, Err: err, Retry: true, Delay: delay})
				if err := p.Sleeper.Sleep(ctx, delay); err != nil {
					return nil, nil, err
				}
				continue
			}
			p.notify(Attempt{N: attempt, Err: err})
			return nil, nil, err
		}

		body, readErr := readAndClose(resp.Body)
		if readErr != nil {
			if canRetry && p.RetryNetErrors && isRetryableNetErr(readErr) {
				delay := p.Backoff(attempt)
				p.notify(Attempt{N: attempt, StatusCode: resp.StatusCode, Err: readErr, Retry: true, Delay: delay})
				if err := p.Sleeper.Sleep(ctx, delay); err != nil {
					return nil, nil, err
				}
				continue
			}
			p.notify(Attempt{N: attempt, StatusCode: resp.StatusCode, Err: readErr})
			return resp, body, readErr
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			p.notify(Attempt{N: attempt, StatusCode: resp.StatusCode})
			return resp, body, nil
		}

		herr := &HTTPError{
			Method:     req.Method,
			URL:        req.URL.String(),
			StatusCode: resp.StatusCode,
			Header:     resp.Header.Clone(),
			Body:       body,
		}

		if !p.RetryStatuses[resp.StatusCode] || !p.methodAllowed(req.Method) {
			p.notify(Attempt{N: attempt, StatusCode: resp.StatusCode, Err: herr})
			return resp, body, herr
		}
		if !canRetry {
			p.notify(Attempt{N: attempt, StatusCode: resp.StatusCode, Err: herr})
			return resp, body, &RetryError{Attempts: attempt, Last: herr}
		}

		delay := p.Backoff(attempt)
		if p.RespectRetryAfter {
			if ra := ParseRetryAfter(resp); ra > 0 {
				delay = ra
			}
		}
		p.notify(Attempt{N: attempt, StatusCode: resp.StatusCode, Err: herr, Retry: true, Delay: delay})
		if err := p.Sleeper.Sleep(ctx, delay); err != nil {
			return nil, nil, err
		}
	}
}

func readAndClose(rc io.ReadCloser) ([]byte, error) {
	defer rc.Close()
	return io.ReadAll(rc)
}

func isRetryableNetErr(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return true
	}

	// common transient I/O errors
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "connection reset") || strings.Contains(msg, "broken pipe") || strings.Contains(msg, "eof") {
		return true
	}
	return false
}

// ParseRetryAfter parses Retry-After header (seconds or HTTP date).
// Returns 0 when header is missing/invalid.
func ParseRetryAfter(resp *http.Response) time.Duration {
	v := strings.TrimSpace(resp.Header.Get("Retry-After"))
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		d := time.Until(t)
		if d < 0 {
			return 0
		}
		return d
	}
	return 0
}
