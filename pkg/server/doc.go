// Package server exposes bins, capture, export and replay over HTTP.
//
// Routes are served by a chi router:
//
//	POST   /bins
//	GET    /bins/{code}
//	GET    /bins/{code}/details
//	DELETE /bins/{code}
//	GET    /bins/{code}/export/{format}
//	POST   /bins/{code}/requests/{requestID}/replay
//	*      /capture/{code}
//	*      /capture/{code}/*
//	GET    /health, /ready, /version, /metrics
//
// Management responses use the envelope {timestamp, status, message, data}.
// Failures use {timestamp, status, error, reason, message, path,
// fieldErrors}, where reason is the stable name of the bin.Kind. The mapping
// from kind to status code lives in errors.go and nowhere else.
package server
