package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"course-import/internal/config"
	"course-import/internal/domain"
	"course-import/internal/export"
)

type uploadOptions struct {
	url        string
	token      string
	document   string
	dryRun     bool
	timeout    time.Duration
	maxRetries *int // nil falls back to the config
}

var (
	uploadOpts    uploadOptions
	uploadRetries int
)

var uploadCmd = &cobra.Command{
	Use:   "upload [dir]",
	Short: "Parse a course directory and import it into the LMS",
	Long: `Parse a course directory (or load an exported document) and POST it to
<url>/api/v1/courses/import.

--url and --token default to LMS_API_URL and LMS_API_TOKEN. When either is
missing the command falls back to a dry run and prints the document instead.

Examples:
  coursectl upload ./go-101
  coursectl upload ./go-101 --dry-run
  coursectl upload --document go-101.json.br --url https://lms.example.com`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := ""
		if len(args) == 1 {
			dir = args[0]
		}
		o := uploadOpts
		if cmd.Flags().Changed("max-retries") {
			n := uploadRetries
			o.maxRetries = &n
		}
		return current.runUpload(cmd.Context(), cmd.OutOrStdout(), dir, o)
	},
}

func init() {
	rootCmd.AddCommand(uploadCmd)

	uploadCmd.Flags().StringVar(&uploadOpts.url, "url", "", "LMS base URL (default $LMS_API_URL)")
	uploadCmd.Flags().StringVar(&uploadOpts.token, "token", "", "LMS API token (default $LMS_API_TOKEN)")
	uploadCmd.Flags().StringVar(&uploadOpts.document, "document", "", "upload an exported document instead of parsing a directory")
	uploadCmd.Flags().BoolVar(&uploadOpts.dryRun, "dry-run", false, "print the document instead of uploading it")
	uploadCmd.Flags().DurationVar(&uploadOpts.timeout, "timeout", 0, "per-request timeout (default 120s)")
	uploadCmd.Flags().IntVar(&uploadRetries, "max-retries", config.DefaultMaxRetries, "retries on 429/5xx responses, 0 disables them")
}

var errNoSource = errors.New("either a course directory or --document is required")

func (a *app) loadCourse(dir, document string) (domain.Course, error) {
	switch {
	case dir != "" && document != "":
		return domain.Course{}, errors.New("a course directory and --document are mutually exclusive")
	case document != "":
		return export.ReadDocument(document)
	case dir != "":
		return a.parser().Parse(dir)
	}
	return domain.Course{}, errNoSource
}

func (a *app) runUpload(ctx context.Context, w io.Writer, dir string, o uploadOptions) error {
	course, err := a.loadCourse(dir, o.document)
	if err != nil {
		return err
	}

	url := firstNonEmpty(o.url, a.cfg.LMS.URL)
	token := firstNonEmpty(o.token, a.cfg.LMS.Token)

	if !o.dryRun && (url == "" || token == "") {
		a.log.Warn().
			Bool("url_set", url != "").
			Bool("token_set", token != "").
			Msg("LMS_API_URL or LMS_API_TOKEN not set, falling back to dry run")
		o.dryRun = true
	}
	if o.dryRun {
		a.log.Info().Str("course", course.CourseName).Msg("dry run, printing document")
		return printDocument(w, course)
	}

	if err := a.uploader(url, token, o).Upload(ctx, course); err != nil {
		return fmt.Errorf("import %q: %w", course.CourseName, err)
	}
	return nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
