// Package watch re-runs a callback when files in a course directory change.
package watch

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

const DefaultDebounce = 500 * time.Millisecond

type Options struct {
	// Debounce collapses bursts of events into one callback.
	Debounce time.Duration
	Logger   zerolog.Logger
}

// Watcher observes a course directory tree. Content may live under any
// subdirectory of the manifest's directory, which itself may sit one level
// down, so every non-hidden directory below dir is watched.
type Watcher struct {
	dir     string
	opts    Options
	watcher *fsnotify.Watcher
}

// New starts watching dir. Events are only delivered once Run is called.
func New(dir string, opts Options) (*Watcher, error) {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	w := &Watcher{dir: dir, opts: opts, watcher: fw}
	if err := w.addTree(); err != nil {
		fw.Close()
		return nil, err
	}
	return w, nil
}

func (w *Watcher) addTree() error {
	if err := w.watcher.Add(w.dir); err != nil {
		return fmt.Errorf("watch directory: %w", err)
	}
	if _, err := os.ReadDir(w.dir); err != nil {
		return fmt.Errorf("read directory: %w", err)
	}
	w.addSubtree(w.dir)
	return nil
}

// addSubtree watches every directory below root, skipping hidden ones and
// archive metadata such as __MACOSX.
func (w *Watcher) addSubtree(root string) {
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			w.opts.Logger.Warn().Err(err).Str("dir", path).Msg("cannot read subdirectory")
			return nil
		}
		if !d.IsDir() || (path == root && root == w.dir) {
			return nil
		}
		if skipDir(d.Name()) {
			return filepath.SkipDir
		}
		w.addSubdir(path)
		return nil
	})
	if err != nil {
		w.opts.Logger.Warn().Err(err).Str("dir", root).Msg("cannot walk directory")
	}
}

func skipDir(name string) bool {
	return strings.HasPrefix(name, ".") || name == "__MACOSX"
}

func (w *Watcher) addSubdir(path string) {
	if err := w.watcher.Add(path); err != nil {
		w.opts.Logger.Warn().Err(err).Str("dir", path).Msg("cannot watch subdirectory")
		return
	}
	w.opts.Logger.Debug().Str("dir", path).Msg("watching subdirectory")
}

// Close stops the underlying watcher.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}

// Run delivers debounced change notifications to onChange until ctx is done.
// onChange runs on the caller's goroutine, never concurrently with itself.
func (w *Watcher) Run(ctx context.Context, onChange func()) error {
	w.opts.Logger.Info().Str("dir", w.dir).Dur("debounce", w.opts.Debounce).Msg("watching course directory")

	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if event.Op == fsnotify.Chmod {
				continue
			}

			// new directory anywhere in the tree, e.g. an extracted archive
			if event.Op&fsnotify.Create != 0 {
				if fi, err := os.Stat(event.Name); err == nil && fi.IsDir() && !skipDir(fi.Name()) {
					w.addSubtree(event.Name)
				}
			}

			w.opts.Logger.Debug().
				Str("event", event.Op.String()).
				Str("file", event.Name).
				Msg("course file changed")

			if timer == nil {
				timer = time.NewTimer(w.opts.Debounce)
			} else {
				timer.Reset(w.opts.Debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			onChange()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.opts.Logger.Error().Err(err).Msg("file watcher error")
		}
	}
}

// Run watches dir until ctx is done.
func Run(ctx context.Context, dir string, opts Options, onChange func()) error {
	w, err := New(dir, opts)
	if err != nil {
		return err
	}
	defer w.Close()
	return w.Run(ctx, onChange)
}
