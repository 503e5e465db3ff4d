// Package diag defines the structured warning side channel shared by the
// merge and assembly pipeline. Warnings never affect archive bytes; they are
// collected per generation run and handed to the caller next to the stream.
package diag

import "fmt"

// Warning codes, stable identifiers callers can switch on.
const (
	CodeMissingSource      = "missing_source"
	CodeSchemaFragment     = "schema_fragment_missing"
	CodeSchemaDuplicate    = "schema_duplicate"
	CodeDependencyConflict = "dependency_conflict"
	CodeDuplicateDest      = "duplicate_destination"
	CodeReservedPath       = "reserved_path"
	CodeMissingRequirement = "missing_requirement"
	CodeBundleExprRejected = "bundle_expr_rejected"
	CodePreviewBestEffort  = "preview_best_effort"
)

// Warning is a non-fatal finding raised while resolving, merging, or
// assembling an order. Path is the logical path or slug the finding is
// about, when one exists.
type Warning struct {
	Code   string `json:"code"`
	Path   string `json:"path,omitempty"`
	Detail string `json:"detail"`
}

func (w Warning) String() string {
	if w.Path == "" {
		return fmt.Sprintf("%s: %s", w.Code, w.Detail)
	}
	return fmt.Sprintf("%s (%s): %s", w.Code, w.Path, w.Detail)
}

// Warningf builds a Warning with a formatted detail message.
func Warningf(code, path, format string, args ...any) Warning {
	return Warning{Code: code, Path: path, Detail: fmt.Sprintf(format, args...)}
}
