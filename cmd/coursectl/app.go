package main

import (
	"github.com/rs/zerolog"

	"course-import/internal/config"
	"course-import/internal/metrics"
	"course-import/internal/parser"
	"course-import/internal/sftpclient"
	"course-import/internal/uploader"
)

// app bundles what every subcommand needs.
type app struct {
	cfg     *config.Config
	log     zerolog.Logger
	metrics *metrics.Collector
}

func newApp(cfg *config.Config, log zerolog.Logger, m *metrics.Collector) *app {
	return &app{cfg: cfg, log: log, metrics: m}
}

func (a *app) parser() *parser.Parser {
	return parser.New(a.log, a.metrics)
}

func (a *app) uploader(url, token string, o uploadOptions) *uploader.Uploader {
	timeout := o.timeout
	if timeout <= 0 {
		timeout = a.cfg.LMS.Timeout
	}
	retries := o.maxRetries
	if retries == nil {
		retries = a.cfg.LMS.MaxRetries
	}

	return uploader.New(uploader.Config{
		BaseURL:    url,
		Token:      token,
		Timeout:    timeout,
		MaxRetries: retries,
		UserAgent:  a.cfg.LMS.UserAgent,
		Logger:     a.log,
		Metrics:    a.metrics,
	})
}

func (a *app) sftpConfig() sftpclient.Config {
	s := a.cfg.SFTP
	return sftpclient.Config{
		Host:                  s.Host,
		Port:                  s.Port,
		User:                  s.User,
		Pass:                  s.Pass,
		RemoteDir:             s.RemoteDir,
		KnownHostsFile:        s.KnownHostsFile,
		InsecureIgnoreHostKey: s.InsecureIgnoreHostKey,
	}
}

func (a *app) flushMetrics() {
	path := a.cfg.Metrics.Textfile
	if path == "" {
		return
	}
	if err := a.metrics.WriteTextfile(path); err != nil {
		a.log.Error().Err(err).Str("path", path).Msg("cannot write metrics textfile")
		return
	}
	a.log.Debug().Str("path", path).Msg("metrics written")
}
