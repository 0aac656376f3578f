package logging

import (
	"regexp"
	"strings"
)

const redacted = "[REDACTED]"

var (
	bearerPattern = regexp.MustCompile(`(?i)(bearer|basic)\s+[a-zA-Z0-9\-._~+/]+=*`)
	apiKeyPattern = regexp.MustCompile(`(sk-[a-zA-Z0-9]{8,}|api[-_]?key[-_:=]\s*[a-zA-Z0-9]+)`)
)

// sensitiveKeys are substrings of header or field names whose values are
// never written to logs.
var sensitiveKeys = []string{
	"authorization", "cookie", "token", "secret",
	"password", "passwd", "api-key", "api_key", "apikey",
	"session", "signature", "private",
}

// IsSensitiveKey reports whether a header or field name carries credentials.
func IsSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, s := range sensitiveKeys {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}

// RedactString masks bearer credentials and API keys inside free text.
func RedactString(value string) string {
	if value == "" {
		return value
	}
	value = bearerPattern.ReplaceAllString(value, "$1 "+redacted)
	return apiKeyPattern.ReplaceAllString(value, redacted)
}

// RedactHeaders returns a copy of headers safe to log: values of sensitive
// headers are replaced and the remaining values have embedded credentials
// masked. The input map is not modified.
func RedactHeaders(headers map[string]string) map[string]string {
	out := make(map[string]string, len(headers))
	for k, v := range headers {
		if IsSensitiveKey(k) {
			out[k] = redacted
			continue
		}
		out[k] = RedactString(v)
	}
	return out
}
