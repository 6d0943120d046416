package httpx

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"
)

const exampleURL = "https://example.com/api/v1/courses/import"

// Mock HTTP RoundTripper for testing
type mockRoundTripper struct {
	responses []*http.Response
	errors    []error
	index     int
	mux       sync.Mutex
}

func (m *mockRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	m.mux.Lock()
	defer m.mux.Unlock()

	if m.index >= len(m.responses) {
		return nil, errors.New("no more responses")
	}

	resp := m.responses[m.index]
	err := m.errors[m.index]
	m.index++

	return resp, err
}

func (m *mockRoundTripper) calls() int {
	m.mux.Lock()
	defer m.mux.Unlock()
	return m.index
}

// Create a mock client using our custom RoundTripper
func newMockClient(responses []*http.Response, errs []error) (*http.Client, *mockRoundTripper) {
	// Ensure errors slice is same length as responses
	for len(errs) < len(responses) {
		errs = append(errs, nil)
	}

	rt := &mockRoundTripper{responses: responses, errors: errs}
	return &http.Client{Transport: rt}, rt
}

func newMockResponse(statusCode int, body string, headers map[string]string) *http.Response {
	header := http.Header{}
	for k, v := range headers {
		header.Set(k, v)
	}

	return &http.Response{
		StatusCode: statusCode,
		Body:       io.NopCloser(bytes.NewBufferString(body)),
		Header:     header,
	}
}

// fakeSleeper records requested delays instead of sleeping.
type fakeSleeper struct {
	mu     sync.Mutex
	delays []time.Duration
	err    error
}

func (f *fakeSleeper) Sleep(ctx context.Context, d time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delays = append(f.delays, d)
	return f.err
}

func postBuilder(ctx context.Context) (*http.Request, error) {
	return http.NewRequestWithContext(ctx, http.MethodPost, exampleURL, strings.NewReader(`{}`))
}

func testPolicy(s Sleeper) RetryPolicy {
	p := DefaultRetryPolicy()
	p.Sleeper = s
	return p
}

func TestDoWithRetrySuccess(t *testing.T) {
	client, rt := newMockClient([]*http.Response{newMockResponse(201, `{"id": 1}`, nil)}, nil)

	resp, body, err := DoWithRetry(context.Background(), client, postBuilder, testPolicy(&fakeSleeper{}))
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if resp.StatusCode != 201 {
		t.Errorf("Expected status code 201, got %d", resp.StatusCode)
	}
	if string(body) != `{"id": 1}` {
		t.Errorf("Expected body %q, got %q", `{"id": 1}`, string(body))
	}
	if rt.calls() != 1 {
		t.Errorf("Expected 1 call, got %d", rt.calls())
	}
}

func TestDoWithRetryBuildReqError(t *testing.T) {
	client, _ := newMockClient(nil, nil)

	buildReq := func(ctx context.Context) (*http.Request, error) {
		return nil, errors.New("request build error")
	}

	_, _, err := DoWithRetry(context.Background(), client, buildReq, testPolicy(&fakeSleeper{}))
	if err == nil || !strings.Contains(err.Error(), "request build error") {
		t.Errorf("Expected request build error, got %v", err)
	}
}

func TestDoWithRetryRecoversAfterRetryableStatuses(t *testing.T) {
	client, rt := newMockClient([]*http.Response{
		newMockResponse(503, "busy", nil),
		newMockResponse(503, "busy", nil),
		newMockResponse(503, "busy", nil),
		newMockResponse(200, "ok", nil),
	}, nil)
	sleeper := &fakeSleeper{}

	var attempts []Attempt
	p := testPolicy(sleeper)
	p.OnAttempt = func(a Attempt) { attempts = append(attempts, a) }

	resp, _, err := DoWithRetry(context.Background(), client, postBuilder, p)
	if err != nil {
		t.Fatalf("Expected no error after retries, got %v", err)
	}
	if resp.StatusCode != 200 {
		t.Errorf("Expected status code 200, got %d", resp.StatusCode)
	}
	if rt.calls() != 4 {
		t.Errorf("Expected 4 calls, got %d", rt.calls())
	}

	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}
	if len(sleeper.delays) != len(want) {
		t.Fatalf("Expected delays %v, got %v", want, sleeper.delays)
	}
	for i := range want {
		if sleeper.delays[i] != want[i] {
			t.Errorf("delay %d: expected %v, got %v", i, want[i], sleeper.delays[i])
		}
	}

	if len(attempts) != 4 || !attempts[0].Retry || attempts[3].Retry || attempts[3].StatusCode != 200 {
		t.Errorf("Unexpected attempt log %+v", attempts)
	}
}

func TestDoWithRetryExhausted(t *testing.T) {
	client, rt := newMockClient([]*http.Response{
		newMockResponse(503, "busy", nil),
		newMockResponse(503, "busy", nil),
		newMockResponse(503, "busy", nil),
		newMockResponse(503, "still busy", nil),
	}, nil)

	_, _, err := DoWithRetry(context.Background(), client, postBuilder, testPolicy(&fakeSleeper{}))

	var rerr *RetryError
	if !errors.As(err, &rerr) {
		t.Fatalf("Expected RetryError, got %T (%v)", err, err)
	}
	if rerr.Attempts != 4 {
		t.Errorf("Expected 4 attempts, got %d", rerr.Attempts)
	}
	if rerr.Last.StatusCode != 503 || string(rerr.Last.Body) != "still busy" {
		t.Errorf("Expected last 503 response, got %+v", rerr.Last)
	}
	if rt.calls() != 4 {
		t.Errorf("Expected 4 calls, got %d", rt.calls())
	}
}

func TestDoWithRetryNonRetryableStatus(t *testing.T) {
	client, rt := newMockClient([]*http.Response{
		newMockResponse(400, `{"error": "bad course"}`, nil),
	}, nil)

	_, body, err := DoWithRetry(context.Background(), client, postBuilder, testPolicy(&fakeSleeper{}))

	var herr *HTTPError
	if !errors.As(err, &herr) {
		t.Fatalf("Expected HTTPError, got %T", err)
	}
	var rerr *RetryError
	if errors.As(err, &rerr) {
		t.Error("Expected a plain HTTPError, not a RetryError")
	}
	if herr.StatusCode != 400 || string(body) != `{"error": "bad course"}` {
		t.Errorf("Unexpected error %v", herr)
	}
	if rt.calls() != 1 {
		t.Errorf("Expected 1 call, got %d", rt.calls())
	}
}

func TestDoWithRetryOnlyRetriesAllowedMethods(t *testing.T) {
	client, rt := newMockClient([]*http.Response{
		newMockResponse(503, "busy", nil),
		newMockResponse(200, "ok", nil),
	}, nil)

	getBuilder := func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, exampleURL, nil)
	}

	_, _, err := DoWithRetry(context.Background(), client, getBuilder, testPolicy(&fakeSleeper{}))

	var herr *HTTPError
	if !errors.As(err, &herr) || herr.StatusCode != 503 {
		t.Errorf("Expected 503 HTTPError for GET, got %v", err)
	}
	if rt.calls() != 1 {
		t.Errorf("Expected 1 call, got %d", rt.calls())
	}
}

func TestDoWithRetryNetworkErrorNotRetried(t *testing.T) {
	client, rt := newMockClient(
		[]*http.Response{nil, newMockResponse(200, "ok", nil)},
		[]error{errors.New("dial tcp: connection refused"), nil},
	)
	sleeper := &fakeSleeper{}

	_, _, err := DoWithRetry(context.Background(), client, postBuilder, testPolicy(sleeper))
	if err == nil || !strings.Contains(err.Error(), "connection refused") {
		t.Errorf("Expected connection error, got %v", err)
	}
	if rt.calls() != 1 {
		t.Errorf("Expected 1 call, got %d", rt.calls())
	}
	if len(sleeper.delays) != 0 {
		t.Errorf("Expected no backoff, got %v", sleeper.delays)
	}
}

func TestDoWithRetryNetworkErrorRetriedWhenEnabled(t *testing.T) {
	client, rt := newMockClient(
		[]*http.Response{nil, newMockResponse(200, "ok", nil)},
		[]error{errors.New("read: connection reset by peer"), nil},
	)

	p := testPolicy(&fakeSleeper{})
	p.RetryNetErrors = true

	_, _, err := DoWithRetry(context.Background(), client, postBuilder, p)
	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if rt.calls() != 2 {
		t.Errorf("Expected 2 calls, got %d", rt.calls())
	}
}

func TestDoWithRetryRespectsRetryAfter(t *testing.T) {
	client, _ := newMockClient([]*http.Response{
		newMockResponse(429, `{"error": "rate limited"}`, map[string]string{"Retry-After": "2"}),
		newMockResponse(429, `{"error": "rate limited"}`, nil),
		newMockResponse(200, "ok", nil),
	}, nil)
	sleeper := &fakeSleeper{}

	_, _, err := DoWithRetry(context.Background(), client, postBuilder, testPolicy(sleeper))
	if err != nil {
		t.Fatalf("Expected no error after retry, got %v", err)
	}

	want := []time.Duration{2 * time.Second, 2 * time.Second}
	if len(sleeper.delays) != 2 || sleeper.delays[0] != want[0] || sleeper.delays[1] != want[1] {
		t.Errorf("Expected delays %v, got %v", want, sleeper.delays)
	}
}

func TestDoWithRetryZeroRetries(t *testing.T) {
	client, rt := newMockClient([]*http.Response{
		newMockResponse(500, "boom", nil),
		newMockResponse(200, "ok", nil),
	}, nil)

	p := testPolicy(&fakeSleeper{})
	p.MaxRetries = 0

	_, _, err := DoWithRetry(context.Background(), client, postBuilder, p)

	var rerr *RetryError
	if !errors.As(err, &rerr) || rerr.Attempts != 1 {
		t.Errorf("Expected RetryError after 1 attempt, got %v", err)
	}
	if rt.calls() != 1 {
		t.Errorf("Expected 1 call, got %d", rt.calls())
	}
}

func TestDoWithRetrySleepCancelled(t *testing.T) {
	client, rt := newMockClient([]*http.Response{
		newMockResponse(503, "busy", nil),
		newMockResponse(200, "ok", nil),
	}, nil)

	sleeper := &fakeSleeper{err: context.Canceled}

	_, _, err := DoWithRetry(context.Background(), client, postBuilder, testPolicy(sleeper))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if rt.calls() != 1 {
		t.Errorf("Expected 1 call, got %d", rt.calls())
	}
}

// Test helper for readAndClose
func TestReadAndClose(t *testing.T) {
	testData := "test data"
	r := io.NopCloser(strings.NewReader(testData))

	data, err := readAndClose(r)
	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if string(data) != testData {
		t.Errorf("Expected %q, got %q", testData, string(data))
	}
}
