package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"course-import/internal/domain"
	"course-import/internal/export"
	"course-import/internal/sftpclient"
)

type parseOptions struct {
	out     string
	outline string
	sftp    bool
}

var parseOpts parseOptions

var parseCmd = &cobra.Command{
	Use:   "parse <dir>",
	Short: "Parse a course directory and print or export the document",
	Long: `Parse a course directory into the canonical course document.

Without --out or --outline the document is printed to stdout.

Examples:
  coursectl parse ./go-101
  coursectl parse ./go-101 --out go-101.json --outline go-101.csv
  coursectl parse ./go-101 --out go-101.json.br --sftp`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return current.runParse(cmd.Context(), cmd.OutOrStdout(), args[0], parseOpts)
	},
}

func init() {
	rootCmd.AddCommand(parseCmd)

	parseCmd.Flags().StringVarP(&parseOpts.out, "out", "o", "", "write the document to this file (.br compresses)")
	parseCmd.Flags().StringVar(&parseOpts.outline, "outline", "", "write a per-item CSV outline to this file")
	parseCmd.Flags().BoolVar(&parseOpts.sftp, "sftp", false, "deliver the --out file to the configured SFTP drop directory")
}

var errSFTPNeedsOut = errors.New("--sftp requires --out")

func (a *app) runParse(ctx context.Context, w io.Writer, dir string, o parseOptions) error {
	if o.sftp && o.out == "" {
		return errSFTPNeedsOut
	}

	course, err := a.parser().Parse(dir)
	if err != nil {
		return err
	}

	if o.out == "" && o.outline == "" {
		return printDocument(w, course)
	}

	if o.out != "" {
		if err := export.WriteDocument(o.out, course); err != nil {
			return err
		}
		a.log.Info().Str("path", o.out).Msg("document written")
	}

	if o.outline != "" {
		if err := writeOutline(o.outline, course); err != nil {
			return err
		}
		a.log.Info().Str("path", o.outline).Msg("outline written")
	}

	if o.sftp {
		name := filepath.Base(o.out)
		if err := sftpclient.UploadFile(ctx, a.sftpConfig(), o.out, name); err != nil {
			return err
		}
		a.log.Info().Str("host", a.cfg.SFTP.Host).Str("remote_dir", a.cfg.SFTP.RemoteDir).Str("file", name).Msg("document delivered over sftp")
	}
	return nil
}

func printDocument(w io.Writer, course domain.Course) error {
	b, err := export.EncodeDocument(course)
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}

func writeOutline(path string, course domain.Course) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := export.WriteOutlineCSV(f, course); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}
