package parser

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

const missingContentPrefix = "Content missing at: "

// MissingFileError is returned when a content reference points at a file
// that does not exist. The parser recovers from it with a placeholder.
type MissingFileError struct {
	Ref  string
	Root string
}

func (e *MissingFileError) Error() string {
	return fmt.Sprintf("%s not found in %s", e.Ref, e.Root)
}

// MissingContentPlaceholder is the description given to an item whose
// content could not be read.
func MissingContentPlaceholder(ref string) string {
	return missingContentPrefix + ref
}

// IsMissingContent reports whether description is a missing-content
// placeholder.
func IsMissingContent(description string) bool {
	return strings.HasPrefix(description, missingContentPrefix)
}

// readContent loads the body referenced by ref, relative to root.
// Line endings are normalized to "\n".
func readContent(root, ref string) (string, error) {
	path := ref
	if !filepath.IsAbs(path) {
		path = filepath.Join(root, filepath.FromSlash(ref))
	}

	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", &MissingFileError{Ref: ref, Root: root}
		}
		return "", fmt.Errorf("read content %s: %w", ref, err)
	}
	if !utf8.Valid(b) {
		return "", fmt.Errorf("read content %s: not valid UTF-8", ref)
	}

	s := strings.ReplaceAll(string(b), "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n"), nil
}
