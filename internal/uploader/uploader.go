// Package uploader delivers a canonical course document to the import
// endpoint of the LMS.
//
// One Upload call is a single POST that the retry policy may repeat on
// 429/500/502/503/504. Every failure comes back as *UploadError; use
// errors.Is with ErrRetryExhausted, ErrConnection, ErrRejected, ErrTimeout
// or ErrUnexpected to branch on it.
package uploader

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"course-import/internal/domain"
	"course-import/internal/httpx"
	"course-import/internal/metrics"
)

const (
	ImportPath        = "/api/v1/courses/import"
	DefaultTimeout    = 120 * time.Second
	DefaultMaxRetries = 3
	DefaultUserAgent  = "course-import/1.0"

	contentTypeJSON = "application/json"
	bodyExcerptMax  = 2000
)

// Config configures an Uploader. Only BaseURL and Token are required.
type Config struct {
	BaseURL string
	Token   string

	// Timeout bounds each HTTP attempt (default 120s).
	Timeout time.Duration
	// MaxRetries is the number of attempts after the first; nil means
	// DefaultMaxRetries and 0 disables retries. Ignored when Retry is set.
	MaxRetries *int
	UserAgent  string

	// Retry replaces the default policy entirely.
	Retry *httpx.RetryPolicy
	// Sleeper overrides the policy's sleeper, e.g. with a fake clock.
	Sleeper httpx.Sleeper

	Transport    http.RoundTripper
	Logger       zerolog.Logger
	Metrics      *metrics.Collector
	NewRequestID func() string
}

// Uploader holds the connection context reused across Upload calls: one
// pooled http.Client and a fixed header set. It is meant for sequential use.
type Uploader struct {
	endpoint string
	timeout  time.Duration
	client   *http.Client
	header   http.Header
	policy   httpx.RetryPolicy

	logger  zerolog.Logger
	metrics *metrics.Collector
	newID   func() string
}

// New builds an Uploader from cfg, applying defaults.
func New(cfg Config) *Uploader {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.NewRequestID == nil {
		cfg.NewRequestID = uuid.NewString
	}

	policy := httpx.DefaultRetryPolicy()
	if cfg.MaxRetries != nil {
		policy.MaxRetries = max(*cfg.MaxRetries, 0)
	}
	if cfg.Retry != nil {
		policy = *cfg.Retry
	}
	if cfg.Sleeper != nil {
		policy.Sleeper = cfg.Sleeper
	}

	tr := cfg.Transport
	if tr == nil {
		tr = &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:        10,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		}
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+cfg.Token)
	header.Set("Content-Type", contentTypeJSON)
	header.Set("Accept", contentTypeJSON)
	header.Set("User-Agent", cfg.UserAgent)

	return &Uploader{
		endpoint: strings.TrimRight(cfg.BaseURL, "/") + ImportPath,
		timeout:  cfg.Timeout,
		client:   &http.Client{Timeout: cfg.Timeout, Transport: tr},
		header:   header,
		policy:   policy,
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
		newID:    cfg.NewRequestID,
	}
}

// Upload sends course with the default settings.
func Upload(ctx context.Context, baseURL, token string, course domain.Course) error {
	return New(Config{BaseURL: baseURL, Token: token}).Upload(ctx, course)
}

// Endpoint is the full import URL.
func (u *Uploader) Endpoint() string { return u.endpoint }

// Upload POSTs course to the import endpoint. The document is only read.
func (u *Uploader) Upload(ctx context.Context, course domain.Course) error {
	start := time.Now()
	err := u.upload(ctx, course)

	kind := ""
	var uerr *UploadError
	if errors.As(err, &uerr) {
		kind = uerr.Kind.String()
	}
	u.metrics.UploadDone(time.Since(start), kind)
	return err
}

func (u *Uploader) upload(ctx context.Context, course domain.Course) error {
	body, err := json.Marshal(course)
	if err != nil {
		return &UploadError{Kind: KindUnexpected, Endpoint: u.endpoint, Err: err}
	}

	reqID := u.newID()
	log := u.logger.With().Str("endpoint", u.endpoint).Str("request_id", reqID).Logger()
	log.Info().
		Str("course", course.CourseName).
		Float64("payload_mb", float64(len(body))/1024/1024).
		Dur("timeout", u.timeout).
		Msg("uploading course")

	policy := u.policy
	observe := policy.OnAttempt
	policy.OnAttempt = func(a httpx.Attempt) {
		u.metrics.Attempt(a.StatusCode)
		if a.Retry {
			u.metrics.Retry()
			log.Warn().Int("attempt", a.N).Int("status", a.StatusCode).Dur("backoff", a.Delay).Msg("retrying upload")
		}
		if observe != nil {
			observe(a)
		}
	}

	resp, _, err := httpx.DoWithRetry(ctx, u.client, func(ctx context.Context) (*http.Request, error) {
		r, err := http.NewRequestWithContext(ctx, http.MethodPost, u.endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		r.Header = u.header.Clone()
		r.Header.Set("X-Request-ID", reqID)
		return r, nil
	}, policy)
	if err != nil {
		uerr := u.classify(ctx, err)
		log.Error().Err(uerr).Str("kind", uerr.Kind.String()).Msg("upload failed")
		return uerr
	}

	log.Info().Int("status", resp.StatusCode).Msg("course uploaded")
	return nil
}

// classify maps a transport or policy error onto the upload taxonomy.
// Dial failures, dial timeouts included, count as connection errors; only
// the client timeout or the caller's deadline is a timeout.
func (u *Uploader) classify(ctx context.Context, err error) *UploadError {
	e := &UploadError{Endpoint: u.endpoint, Timeout: u.timeout, Err: err}

	var rerr *httpx.RetryError
	var herr *httpx.HTTPError
	switch {
	case errors.As(err, &rerr):
		e.Kind = KindRetryExhausted
		e.StatusCode = rerr.Last.StatusCode
	case errors.As(err, &herr):
		e.Kind = KindRejected
		e.StatusCode = herr.StatusCode
		e.Body = httpx.Snippet(herr.Body, bodyExcerptMax)
	case errors.Is(err, context.Canceled):
		e.Kind = KindUnexpected
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		e.Kind = KindTimeout
	case isDialErr(err):
		e.Kind = KindConnection
	case isTimeout(err):
		e.Kind = KindTimeout
	case isConnectionErr(err):
		e.Kind = KindConnection
	default:
		e.Kind = KindUnexpected
	}
	return e
}

func isDialErr(err error) bool {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var nerr net.Error
	return errors.As(err, &nerr) && nerr.Timeout()
}

func isConnectionErr(err error) bool {
	var (
		opErr     *net.OpError
		dnsErr    *net.DNSError
		certErr   *tls.CertificateVerificationError
		unknownCA x509.UnknownAuthorityError
		hostErr   x509.HostnameError
		recordErr tls.RecordHeaderError
	)
	switch {
	case errors.As(err, &opErr), errors.As(err, &dnsErr):
		return true
	case errors.As(err, &certErr), errors.As(err, &unknownCA), errors.As(err, &hostErr), errors.As(err, &recordErr):
		return true
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		// server closed the connection without answering
		return true
	}
	return false
}
