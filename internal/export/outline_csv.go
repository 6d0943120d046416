package export

import (
	"encoding/csv"
	"io"
	"strconv"
	"strings"

	"course-import/internal/domain"
	"course-import/internal/parser"
)

// Keep header order EXACT.
var outlineHeader = []string{
	"MODULE",
	"POSITION",
	"TYPE",
	"TITLE",
	"DIFFICULTY",
	"MAX_SCORE",
	"CONTENT_URL",
	"CONTENT_MISSING",
}

// WriteOutlineCSV writes one row per content item, in document order.
// POSITION is 1-based within the module.
func WriteOutlineCSV(w io.Writer, course domain.Course) error {
	cw := csv.NewWriter(w)
	// match typical spreadsheet imports
	cw.UseCRLF = true

	if err := cw.Write(outlineHeader); err != nil {
		return err
	}

	for _, m := range course.Modules {
		for i, item := range m.Content {
			if err := cw.Write(toOutlineRow(m.ModuleName, i+1, item)); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

func toOutlineRow(module string, pos int, item domain.ContentItem) []string {
	contentURL := ""
	if item.ContentURL != nil {
		contentURL = *item.ContentURL
	}

	missing := parser.IsMissingContent(item.Description)

	return []string{
		cleanCell(module),           // MODULE
		strconv.Itoa(pos),           // POSITION
		string(item.Type),           // TYPE
		cleanCell(item.Title),       // TITLE
		item.Difficulty,             // DIFFICULTY
		strconv.Itoa(item.MaxScore), // MAX_SCORE
		contentURL,                  // CONTENT_URL
		strconv.FormatBool(missing), // CONTENT_MISSING
	}
}

// cleanCell flattens newlines so one item stays on one row.
func cleanCell(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, "\r", " ")
	return strings.ReplaceAll(s, "\n", " ")
}
