package export

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"io"
	"time"

	"requestbin-hq/sieve/pkg/bin"
)

// csvHeader is the fixed column order.
var csvHeader = []string{
	"id", "method", "path", "ip_address", "timestamp",
	"headers", "query_params", "body",
}

// CSVExporter exports captured requests as CSV. Header and query maps are
// written as JSON objects in a single column.
type CSVExporter struct {
	// IncludeHeader includes a header row with column names.
	IncludeHeader bool
}

// NewCSVExporter creates a new CSV exporter.
func NewCSVExporter(includeHeader bool) *CSVExporter {
	return &CSVExporter{
		IncludeHeader: includeHeader,
	}
}

// ContentType implements Exporter.
func (e *CSVExporter) ContentType() string { return "text/csv" }

// Extension implements Exporter.
func (e *CSVExporter) Extension() string { return "csv" }

// Export writes requests to w in the order given.
func (e *CSVExporter) Export(ctx context.Context, requests []*bin.CapturedRequest, w io.Writer) error {
	writer := csv.NewWriter(w)

	if e.IncludeHeader {
		if err := writer.Write(csvHeader); err != nil {
			return NewExportError("csv", len(requests), err)
		}
	}

	for i, req := range requests {
		if i%100 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		row, err := requestToRow(req)
		if err != nil {
			return NewExportError("csv", len(requests), err)
		}
		if err := writer.Write(row); err != nil {
			return NewExportError("csv", len(requests), err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return NewExportError("csv", len(requests), err)
	}
	return nil
}

func requestToRow(req *bin.CapturedRequest) ([]string, error) {
	headers, err := formatMap(req.Headers)
	if err != nil {
		return nil, err
	}
	query, err := formatMap(req.QueryParams)
	if err != nil {
		return nil, err
	}

	return []string{
		req.ID,
		req.Method,
		req.Path,
		req.IPAddress,
		formatTime(req.Timestamp),
		headers,
		query,
		req.Body,
	}, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func formatMap(m map[string]string) (string, error) {
	if m == nil {
		return "{}", nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
