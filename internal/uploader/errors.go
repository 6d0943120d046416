package uploader

import (
	"errors"
	"fmt"
	"time"
)

// Kind classifies why an upload failed.
type Kind int

const (
	KindUnexpected Kind = iota
	KindRetryExhausted
	KindConnection
	KindRejected
	KindTimeout
)

func (k Kind) String() string {
	switch k {
	case KindRetryExhausted:
		return "retry_exhausted"
	case KindConnection:
		return "connection"
	case KindRejected:
		return "rejected"
	case KindTimeout:
		return "timeout"
	default:
		return "unexpected"
	}
}

// Sentinels for errors.Is; every *UploadError matches exactly one of them.
var (
	ErrRetryExhausted = errors.New("upload retries exhausted")
	ErrConnection     = errors.New("upload endpoint unreachable")
	ErrRejected       = errors.New("upload rejected by server")
	ErrTimeout        = errors.New("upload timed out")
	ErrUnexpected     = errors.New("unexpected upload error")
)

// UploadError is the only error type returned by Upload.
type UploadError struct {
	Kind     Kind
	Endpoint string

	// StatusCode is the last HTTP status seen, 0 if none.
	StatusCode int
	// Body is a trimmed excerpt of the rejecting response.
	Body string

	Timeout time.Duration
	Err     error
}

func (e *UploadError) Error() string {
	switch e.Kind {
	case KindRetryExhausted:
		msg := "failed to upload after maximum retries to " + e.Endpoint
		if e.StatusCode > 0 {
			msg += fmt.Sprintf(": last status %d", e.StatusCode)
		}
		return msg
	case KindConnection:
		return fmt.Sprintf("connection failed (check internet or URL): %s: %v", e.Endpoint, e.Err)
	case KindRejected:
		body := e.Body
		if body == "" {
			body = "<no body>"
		}
		return fmt.Sprintf("server refused data (status %d): %s", e.StatusCode, body)
	case KindTimeout:
		return fmt.Sprintf("request to %s timed out after %s", e.Endpoint, e.Timeout)
	default:
		return fmt.Sprintf("unexpected upload error: %v", e.Err)
	}
}

func (e *UploadError) Unwrap() error { return e.Err }

func (e *UploadError) Is(target error) bool {
	switch target {
	case ErrRetryExhausted:
		return e.Kind == KindRetryExhausted
	case ErrConnection:
		return e.Kind == KindConnection
	case ErrRejected:
		return e.Kind == KindRejected
	case ErrTimeout:
		return e.Kind == KindTimeout
	case ErrUnexpected:
		return e.Kind == KindUnexpected
	}
	return false
}
