package export

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/andybalholm/brotli"

	"course-import/internal/domain"
)

// BrotliSuffix selects compressed output in WriteDocument and ReadDocument.
const BrotliSuffix = ".br"

// EncodeDocument renders course as indented canonical JSON.
func EncodeDocument(course domain.Course) ([]byte, error) {
	b, err := json.MarshalIndent(course, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return append(b, '\n'), nil
}

// WriteDocument writes course to path. Paths ending in ".br" are brotli
// compressed.
func WriteDocument(path string, course domain.Course) error {
	b, err := EncodeDocument(course)
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}

	if err := writeMaybeCompressed(f, path, b); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

func writeMaybeCompressed(w io.Writer, path string, b []byte) error {
	if !strings.HasSuffix(path, BrotliSuffix) {
		_, err := w.Write(b)
		return err
	}

	bw := brotli.NewWriterLevel(w, brotli.BestCompression)
	if _, err := bw.Write(b); err != nil {
		_ = bw.Close()
		return err
	}
	return bw.Close()
}

// ReadDocument loads a document written by WriteDocument and validates it
// strictly.
func ReadDocument(path string) (domain.Course, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return domain.Course{}, fmt.Errorf("read %s: %w", path, err)
	}
	if strings.HasSuffix(path, BrotliSuffix) {
		b, err = io.ReadAll(brotli.NewReader(bytes.NewReader(b)))
		if err != nil {
			return domain.Course{}, fmt.Errorf("decompress %s: %w", path, err)
		}
	}
	return domain.DecodeCourse(b)
}
