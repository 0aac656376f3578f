package logging

import (
	"context"
	"log/slog"
)

// Context keys for common log fields.
type contextKey string

const (
	// RequestIDKey is the context key for request IDs.
	RequestIDKey contextKey = "request_id"

	// BinCodeKey is the context key for the public code of the bin involved.
	BinCodeKey contextKey = "bin_code"

	// ClientIPKey is the context key for the resolved client address.
	ClientIPKey contextKey = "client_ip"
)

// WithRequestID adds a request ID to the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetRequestID retrieves the request ID from the context.
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// WithBinCode adds a bin public code to the context.
func WithBinCode(ctx context.Context, code string) context.Context {
	return context.WithValue(ctx, BinCodeKey, code)
}

// GetBinCode retrieves the bin public code from the context.
func GetBinCode(ctx context.Context) string {
	if code, ok := ctx.Value(BinCodeKey).(string); ok {
		return code
	}
	return ""
}

// WithClientIP adds the client address to the context.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, ClientIPKey, ip)
}

// GetClientIP retrieves the client address from the context.
func GetClientIP(ctx context.Context) string {
	if ip, ok := ctx.Value(ClientIPKey).(string); ok {
		return ip
	}
	return ""
}

func contextAttrs(ctx context.Context) []slog.Attr {
	var attrs []slog.Attr
	if v := GetRequestID(ctx); v != "" {
		attrs = append(attrs, slog.String(string(RequestIDKey), v))
	}
	if v := GetBinCode(ctx); v != "" {
		attrs = append(attrs, slog.String(string(BinCodeKey), v))
	}
	if v := GetClientIP(ctx); v != "" {
		attrs = append(attrs, slog.String(string(ClientIPKey), v))
	}
	return attrs
}
