package store

import (
	"fmt"
	"regexp"
	"strings"
)

// Filter expressions are a single equality over one scalar field:
//
//	relative_path == "src/auth/login.ts"
//
// Backslashes inside the quoted value are doubled by callers for
// portability and undoubled here.
type filterExpr struct {
	field string
	value string
}

var filterRe = regexp.MustCompile(`^\s*(\w+)\s*==\s*"((?:[^"\\]|\\.)*)"\s*$`)

// parseFilter parses an expression; an empty expression matches
// everything and parses to nil.
func parseFilter(expr string) (*filterExpr, error) {
	if strings.TrimSpace(expr) == "" {
		return nil, nil
	}
	m := filterRe.FindStringSubmatch(expr)
	if m == nil {
		return nil, fmt.Errorf("store: unsupported filter expression %q", expr)
	}
	value := strings.ReplaceAll(m[2], `\\`, `\`)
	value = strings.ReplaceAll(value, `\"`, `"`)
	return &filterExpr{field: m[1], value: value}, nil
}

// matches evaluates the expression against a document.
func (f *filterExpr) matches(doc *VectorDocument) bool {
	if f == nil {
		return true
	}
	switch f.field {
	case "id":
		return doc.ID == f.value
	case "relative_path", "relativePath":
		return doc.RelativePath == f.value
	case "file_extension", "fileExtension":
		return doc.FileExtension == f.value
	default:
		return doc.Metadata[f.field] == f.value
	}
}

// column maps the filter field to a chunks-table column, or "" when the
// field lives in metadata.
func (f *filterExpr) column() string {
	switch f.field {
	case "id":
		return "id"
	case "relative_path", "relativePath":
		return "relative_path"
	case "file_extension", "fileExtension":
		return "file_extension"
	default:
		return ""
	}
}

// EscapeFilterValue doubles backslashes for embedding a path in a
// filter expression.
func EscapeFilterValue(v string) string {
	return strings.ReplaceAll(v, `\`, `\\`)
}

// PathFilter builds the canonical per-file filter expression.
func PathFilter(relativePath string) string {
	return fmt.Sprintf(`relative_path == "%s"`, EscapeFilterValue(relativePath))
}
