package export

import (
	"context"
	"encoding/json"
	"io"

	"requestbin-hq/sieve/pkg/bin"
)

// JSONExporter exports captured requests as a JSON array.
type JSONExporter struct {
	// Pretty enables pretty-printing with indentation.
	Pretty bool
}

// NewJSONExporter creates a new JSON exporter.
func NewJSONExporter(pretty bool) *JSONExporter {
	return &JSONExporter{
		Pretty: pretty,
	}
}

// ContentType implements Exporter.
func (e *JSONExporter) ContentType() string { return "application/json" }

// Extension implements Exporter.
func (e *JSONExporter) Extension() string { return "json" }

// Export writes requests to w. An empty slice is written as "[]".
func (e *JSONExporter) Export(ctx context.Context, requests []*bin.CapturedRequest, w io.Writer) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if len(requests) == 0 {
		if _, err := w.Write([]byte("[]")); err != nil {
			return NewExportError("json", 0, err)
		}
		return nil
	}

	var (
		data []byte
		err  error
	)
	if e.Pretty {
		data, err = json.MarshalIndent(requests, "", "  ")
	} else {
		data, err = json.Marshal(requests)
	}
	if err != nil {
		return NewExportError("json", len(requests), err)
	}

	if _, err := w.Write(data); err != nil {
		return NewExportError("json", len(requests), err)
	}
	return nil
}
