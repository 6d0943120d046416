package domain

import (
	"fmt"
	"strconv"
)

// StructureError reports a course document that cannot be built: a missing
// manifest, an undecodable file, or a field with an incompatible shape.
// Path is a filesystem path or a field path such as "modules[0].title".
type StructureError struct {
	Path string
	Msg  string
	Err  error
}

func (e *StructureError) Error() string {
	s := e.Msg
	if e.Path != "" {
		s = e.Path + ": " + s
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *StructureError) Unwrap() error { return e.Err }

func itemPath(module, item int) string {
	return fmt.Sprintf("modules[%d].submodules[%d]", module, item)
}

func quote(s string) string { return strconv.Quote(s) }
