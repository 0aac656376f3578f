package export

import (
	"context"
	"fmt"
	"io"
	"strings"

	"requestbin-hq/sieve/pkg/bin"
)

// Exporter writes captured requests in one encoding.
type Exporter interface {
	Export(ctx context.Context, requests []*bin.CapturedRequest, w io.Writer) error
	ContentType() string
	Extension() string
}

// Options tune the exporters returned by ForFormat.
type Options struct {
	// JSONPretty indents JSON output.
	JSONPretty bool

	// CSVHeader writes a header row.
	CSVHeader bool
}

// DefaultOptions returns compact JSON and CSV with a header row.
func DefaultOptions() Options {
	return Options{CSVHeader: true}
}

// ForFormat returns the exporter for "json" or "csv". Unknown formats fail
// with a bin.KindValidation error.
func ForFormat(format string, opts Options) (Exporter, error) {
	switch strings.ToLower(format) {
	case "json":
		return NewJSONExporter(opts.JSONPretty), nil
	case "csv":
		return NewCSVExporter(opts.CSVHeader), nil
	default:
		return nil, bin.Validation(bin.FieldError{
			Field:   "format",
			Message: fmt.Sprintf("unsupported export format %q, expected json or csv", format),
		})
	}
}

// Filename returns the attachment name for a bin export.
func Filename(code string, e Exporter) string {
	return "bin-" + code + "." + e.Extension()
}

// ExportError represents an error during export.
type ExportError struct {
	Format      string // "json", "csv"
	RecordCount int    // number of records being exported
	Cause       error
}

// Error implements the error interface.
func (e *ExportError) Error() string {
	return fmt.Sprintf("export error [format=%s, record_count=%d]: %v", e.Format, e.RecordCount, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *ExportError) Unwrap() error {
	return e.Cause
}

// NewExportError creates a new ExportError.
func NewExportError(format string, recordCount int, cause error) *ExportError {
	return &ExportError{
		Format:      format,
		RecordCount: recordCount,
		Cause:       cause,
	}
}
