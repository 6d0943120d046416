package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"course-import/internal/export"
	"course-import/internal/watch"
)

type watchOptions struct {
	upload bool
	out    string
}

var watchOpts watchOptions

var watchCmd = &cobra.Command{
	Use:   "watch <dir>",
	Short: "Re-parse a course directory whenever it changes",
	Long: `Watch a course directory and re-parse it after every change.

Parse errors are logged and the watch continues. With --upload each good
parse is imported; with --out the exported document is rewritten.

Examples:
  coursectl watch ./go-101
  coursectl watch ./go-101 --upload`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return current.runWatch(cmd.Context(), args[0], watchOpts)
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().BoolVar(&watchOpts.upload, "upload", false, "upload the course after every successful parse")
	watchCmd.Flags().StringVarP(&watchOpts.out, "out", "o", "", "rewrite the document to this file after every successful parse")
}

var errUploadNotConfigured = errors.New("--upload requires LMS_API_URL and LMS_API_TOKEN")

func (a *app) runWatch(ctx context.Context, dir string, o watchOptions) error {
	if o.upload && !a.cfg.LMS.Configured() {
		return errUploadNotConfigured
	}

	refresh := func() {
		course, err := a.parser().Parse(dir)
		if err != nil {
			a.log.Error().Err(err).Msg("parse failed, waiting for the next change")
			return
		}
		if o.out != "" {
			if err := export.WriteDocument(o.out, course); err != nil {
				a.log.Error().Err(err).Msg("cannot write document")
			}
		}
		if o.upload {
			up := a.uploader(a.cfg.LMS.URL, a.cfg.LMS.Token, uploadOptions{})
			if err := up.Upload(ctx, course); err != nil {
				a.log.Error().Err(err).Msg("upload failed, waiting for the next change")
			}
		}
	}

	refresh()
	return watch.Run(ctx, dir, watch.Options{Debounce: a.cfg.Watch.Debounce, Logger: a.log}, refresh)
}
