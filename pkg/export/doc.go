// Package export encodes a bin's captured requests for download.
//
// Two encodings are provided:
//
//   - JSON: an array of request objects, optionally indented
//   - CSV: one row per request with a fixed header
//
// ForFormat selects the exporter from the format path segment:
//
//	exporter, err := export.ForFormat("csv", export.DefaultOptions())
//	if err != nil {
//	    return err // bin.KindValidation
//	}
//	w.Header().Set("Content-Type", exporter.ContentType())
//	err = exporter.Export(ctx, requests, w)
//
// Write failures are returned as *ExportError.
package export
