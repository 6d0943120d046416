package main

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"course-import/internal/config"
	"course-import/internal/domain"
	"course-import/internal/export"
	"course-import/internal/metrics"
	"course-import/internal/uploader"
)

const manifest = `{
  "title": "Go 101",
  "allowedUsers": ["ana@example.com"],
  "modules": [
    {"title": "Basics", "content": [
      {"type": "task", "title": "Hello", "difficulty": "Easy", "contentUrl": "tasks/hello.md"},
      {"type": "quiz", "title": "Dropped"},
      {"type": "submodule", "title": "Reading", "contentUrl": "missing.md"}
    ]}
  ]
}`

func courseDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "tasks"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "course.json"), []byte(manifest), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "tasks", "hello.md"), []byte("Print hello.\r\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	return dir
}

func testApp(t *testing.T, lms config.LMSConfig) (*app, *bytes.Buffer) {
	t.Helper()
	t.Setenv("LMS_API_URL", "")
	t.Setenv("LMS_API_TOKEN", "")
	t.Setenv("LMS_MAX_RETRIES", "")

	cfg, err := config.Load("")
	if err != nil {
		t.Fatal(err)
	}
	if lms.URL != "" {
		cfg.LMS.URL = lms.URL
	}
	if lms.Token != "" {
		cfg.LMS.Token = lms.Token
	}

	var logs bytes.Buffer
	return newApp(cfg, zerolog.New(&logs), metrics.New()), &logs
}

func decode(t *testing.T, b []byte) domain.Course {
	t.Helper()
	c, err := domain.DecodeCourse(b)
	if err != nil {
		t.Fatalf("Expected a valid document, got %v\n%s", err, b)
	}
	return c
}

func TestRunParsePrintsDocument(t *testing.T) {
	a, _ := testApp(t, config.LMSConfig{})
	var out bytes.Buffer

	if err := a.runParse(context.Background(), &out, courseDir(t), parseOptions{}); err != nil {
		t.Fatalf("runParse() error: %v", err)
	}

	c := decode(t, out.Bytes())
	if c.CourseName != "Go 101" || len(c.Modules) != 1 {
		t.Fatalf("Unexpected course %+v", c)
	}
	items := c.Modules[0].Content
	if len(items) != 2 {
		t.Fatalf("Expected the quiz item to be dropped, got %d items", len(items))
	}
	if items[0].Description != "Print hello.\n" || items[0].Difficulty != "easy" {
		t.Errorf("Unexpected first item %+v", items[0])
	}
	if items[1].Description != "Content missing at: missing.md" {
		t.Errorf("Expected placeholder, got %q", items[1].Description)
	}

	if got := testutil.ToFloat64(a.metrics.ParseSkippedItems); got != 1 {
		t.Errorf("Expected 1 skipped item, got %v", got)
	}
}

func TestRunParseExports(t *testing.T) {
	a, _ := testApp(t, config.LMSConfig{})
	tmp := t.TempDir()
	opts := parseOptions{
		out:     filepath.Join(tmp, "go-101.json.br"),
		outline: filepath.Join(tmp, "go-101.csv"),
	}

	var out bytes.Buffer
	if err := a.runParse(context.Background(), &out, courseDir(t), opts); err != nil {
		t.Fatalf("runParse() error: %v", err)
	}
	if out.Len() != 0 {
		t.Errorf("Expected nothing on stdout when exporting, got %q", out.String())
	}

	c, err := export.ReadDocument(opts.out)
	if err != nil {
		t.Fatalf("ReadDocument() error: %v", err)
	}
	if c.CourseName != "Go 101" {
		t.Errorf("Unexpected exported course %q", c.CourseName)
	}

	f, err := os.Open(opts.outline)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 3 || records[2][7] != "true" {
		t.Errorf("Unexpected outline %v", records)
	}
}

func TestRunParseErrors(t *testing.T) {
	a, _ := testApp(t, config.LMSConfig{})

	err := a.runParse(context.Background(), io.Discard, t.TempDir(), parseOptions{})
	var serr *domain.StructureError
	if !errors.As(err, &serr) {
		t.Errorf("Expected StructureError for a directory without manifest, got %v", err)
	}

	err = a.runParse(context.Background(), io.Discard, courseDir(t), parseOptions{sftp: true})
	if !errors.Is(err, errSFTPNeedsOut) {
		t.Errorf("Expected errSFTPNeedsOut, got %v", err)
	}
}

func TestRunUploadFallsBackToDryRun(t *testing.T) {
	a, logs := testApp(t, config.LMSConfig{})
	var out bytes.Buffer

	if err := a.runUpload(context.Background(), &out, courseDir(t), uploadOptions{}); err != nil {
		t.Fatalf("runUpload() error: %v", err)
	}

	if decode(t, out.Bytes()).CourseName != "Go 101" {
		t.Errorf("Expected the document on stdout, got %q", out.String())
	}
	if !strings.Contains(logs.String(), "falling back to dry run") {
		t.Errorf("Expected a dry run warning, got %q", logs.String())
	}
}

type importServer struct {
	mu      sync.Mutex
	status  int
	auth    []string
	payload []byte
}

func (s *importServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.auth = append(s.auth, r.Header.Get("Authorization"))
	s.payload = body

	if r.URL.Path != uploader.ImportPath {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.WriteHeader(s.status)
	_, _ = io.WriteString(w, `{"detail":"nope"}`)
}

func TestRunUploadPostsDocument(t *testing.T) {
	srv := &importServer{status: http.StatusCreated}
	ts := httptest.NewServer(srv)
	defer ts.Close()

	a, _ := testApp(t, config.LMSConfig{URL: ts.URL + "/", Token: "tok"})
	var out bytes.Buffer

	if err := a.runUpload(context.Background(), &out, courseDir(t), uploadOptions{}); err != nil {
		t.Fatalf("runUpload() error: %v", err)
	}
	if out.Len() != 0 {
		t.Errorf("Expected no stdout output, got %q", out.String())
	}

	if len(srv.auth) != 1 || srv.auth[0] != "Bearer tok" {
		t.Errorf("Unexpected auth headers %v", srv.auth)
	}
	var doc map[string]any
	if err := json.Unmarshal(srv.payload, &doc); err != nil {
		t.Fatal(err)
	}
	if doc["course_name"] != "Go 101" {
		t.Errorf("Unexpected payload %s", srv.payload)
	}
	if got := testutil.ToFloat64(a.metrics.UploadAttempts.WithLabelValues("201")); got != 1 {
		t.Errorf("Expected one 201 attempt, got %v", got)
	}
}

func TestRunUploadFlagsOverrideConfig(t *testing.T) {
	srv := &importServer{status: http.StatusOK}
	ts := httptest.NewServer(srv)
	defer ts.Close()

	a, _ := testApp(t, config.LMSConfig{URL: "https://unused.example.com", Token: "cfg-token"})
	opts := uploadOptions{url: ts.URL, token: "flag-token"}

	if err := a.runUpload(context.Background(), io.Discard, courseDir(t), opts); err != nil {
		t.Fatalf("runUpload() error: %v", err)
	}
	if len(srv.auth) != 1 || srv.auth[0] != "Bearer flag-token" {
		t.Errorf("Expected flag token to win, got %v", srv.auth)
	}
}

func TestRunUploadFromDocument(t *testing.T) {
	srv := &importServer{status: http.StatusOK}
	ts := httptest.NewServer(srv)
	defer ts.Close()

	a, _ := testApp(t, config.LMSConfig{URL: ts.URL, Token: "tok"})

	doc := filepath.Join(t.TempDir(), "course.json")
	if err := a.runParse(context.Background(), io.Discard, courseDir(t), parseOptions{out: doc}); err != nil {
		t.Fatal(err)
	}

	if err := a.runUpload(context.Background(), io.Discard, "", uploadOptions{document: doc}); err != nil {
		t.Fatalf("runUpload() error: %v", err)
	}
	if decode(t, srv.payload).CourseName != "Go 101" {
		t.Errorf("Unexpected payload %s", srv.payload)
	}
}

func TestRunUploadRejected(t *testing.T) {
	srv := &importServer{status: http.StatusBadRequest}
	ts := httptest.NewServer(srv)
	defer ts.Close()

	a, _ := testApp(t, config.LMSConfig{URL: ts.URL, Token: "tok"})

	err := a.runUpload(context.Background(), io.Discard, courseDir(t), uploadOptions{})
	if !errors.Is(err, uploader.ErrRejected) {
		t.Fatalf("Expected ErrRejected, got %v", err)
	}
	if !strings.Contains(err.Error(), `import "Go 101"`) || !strings.Contains(err.Error(), "nope") {
		t.Errorf("Unexpected message %q", err.Error())
	}
}

func TestRunUploadZeroRetries(t *testing.T) {
	zero := 0
	testCases := []struct {
		name       string
		cfgRetries *int
		optRetries *int
	}{
		{"flag", nil, &zero},
		{"config", &zero, nil},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			srv := &importServer{status: http.StatusServiceUnavailable}
			ts := httptest.NewServer(srv)
			defer ts.Close()

			a, _ := testApp(t, config.LMSConfig{URL: ts.URL, Token: "tok"})
			if tc.cfgRetries != nil {
				a.cfg.LMS.MaxRetries = tc.cfgRetries
			}

			err := a.runUpload(context.Background(), io.Discard, courseDir(t), uploadOptions{maxRetries: tc.optRetries})
			if !errors.Is(err, uploader.ErrRetryExhausted) {
				t.Fatalf("Expected ErrRetryExhausted, got %v", err)
			}
			if len(srv.auth) != 1 {
				t.Errorf("Expected exactly 1 request, got %d", len(srv.auth))
			}
		})
	}
}

func TestLoadCourseArguments(t *testing.T) {
	a, _ := testApp(t, config.LMSConfig{})

	if _, err := a.loadCourse("", ""); !errors.Is(err, errNoSource) {
		t.Errorf("Expected errNoSource, got %v", err)
	}
	if _, err := a.loadCourse("dir", "doc.json"); err == nil {
		t.Error("Expected an error when both sources are given")
	}
}

func TestRunWatchRequiresCredentialsForUpload(t *testing.T) {
	a, _ := testApp(t, config.LMSConfig{})

	err := a.runWatch(context.Background(), courseDir(t), watchOptions{upload: true})
	if !errors.Is(err, errUploadNotConfigured) {
		t.Errorf("Expected errUploadNotConfigured, got %v", err)
	}
}

func TestRunWatchWritesInitialDocument(t *testing.T) {
	a, _ := testApp(t, config.LMSConfig{})
	out := filepath.Join(t.TempDir(), "course.json")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := a.runWatch(ctx, courseDir(t), watchOptions{out: out}); err != nil {
		t.Fatalf("runWatch() error: %v", err)
	}
	if _, err := export.ReadDocument(out); err != nil {
		t.Errorf("Expected the initial parse to be exported, got %v", err)
	}
}

func TestFlushMetrics(t *testing.T) {
	a, _ := testApp(t, config.LMSConfig{})
	a.cfg.Metrics.Textfile = filepath.Join(t.TempDir(), "courseimport.prom")
	a.metrics.ItemParsed("task")

	a.flushMetrics()

	b, err := os.ReadFile(a.cfg.Metrics.Textfile)
	if err != nil {
		t.Fatalf("Expected metrics textfile, got %v", err)
	}
	if !strings.Contains(string(b), `courseimport_parse_items_total{type="task"} 1`) {
		t.Errorf("Unexpected textfile content:\n%s", b)
	}
}

func TestFirstNonEmpty(t *testing.T) {
	testCases := []struct {
		input    []string
		expected string
	}{
		{[]string{"a", "b"}, "a"},
		{[]string{"", "b"}, "b"},
		{[]string{"", ""}, ""},
		{nil, ""},
	}

	for _, tc := range testCases {
		if got := firstNonEmpty(tc.input...); got != tc.expected {
			t.Errorf("firstNonEmpty(%q) = %q, want %q", tc.input, got, tc.expected)
		}
	}
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"version"})
	defer rootCmd.SetArgs(nil)

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("version error: %v", err)
	}
	if !strings.HasPrefix(out.String(), "coursectl dev") {
		t.Errorf("Unexpected version output %q", out.String())
	}
}
