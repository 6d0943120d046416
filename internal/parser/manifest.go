package parser

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"course-import/internal/domain"
)

// ManifestNames are tried in this order inside a course root.
var ManifestNames = []string{"course.json", "course.yaml", "course.yml"}

// ResolveRoot finds the directory holding the course manifest. The manifest
// is looked up in dir itself and, failing that, in the first entry of dir
// (archives that unpack into a single top-level folder). The search never
// goes deeper than one level.
func ResolveRoot(dir string) (root, manifest string, err error) {
	return resolveRoot(dir, zerolog.Nop())
}

// resolveRoot logs which entry it tried one level down. The entry is the
// first in name order, so a stray __MACOSX or dotfile can shadow the course.
func resolveRoot(dir string, log zerolog.Logger) (root, manifest string, err error) {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return "", "", &domain.StructureError{Path: dir, Msg: "invalid course path", Err: err}
	}

	if m, ok := findManifest(dir); ok {
		return dir, m, nil
	}

	entries, err := os.ReadDir(dir)
	if err == nil && len(entries) > 0 {
		child := filepath.Join(dir, entries[0].Name())
		if m, ok := findManifest(child); ok {
			log.Debug().Str("dir", dir).Str("entry", entries[0].Name()).Msg("using manifest from first entry")
			return child, m, nil
		}
		log.Debug().Str("dir", dir).Str("entry", entries[0].Name()).Int("entries", len(entries)).
			Msg("no manifest in first entry")
	}

	return "", "", &domain.StructureError{Path: dir, Msg: "course.json not found"}
}

func findManifest(root string) (string, bool) {
	for _, name := range ManifestNames {
		p := filepath.Join(root, name)
		if fi, err := os.Stat(p); err == nil && fi.Mode().IsRegular() {
			return p, true
		}
	}
	return "", false
}

// decodeManifest reads the manifest into a loosely typed tree. JSON numbers
// are kept as json.Number so scores are coerced without float rounding.
func decodeManifest(path string) (any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var raw any
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, err
		}
	default:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		if err := dec.Decode(&raw); err != nil {
			return nil, err
		}
		if _, err := dec.Token(); !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("unexpected data after top-level value")
		}
	}
	return raw, nil
}
