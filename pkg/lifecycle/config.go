package lifecycle

// Config bounds the parameters accepted by Create.
type Config struct {
	DefaultExpiryHours int
	MinExpiryHours     int
	MaxExpiryHours     int

	DefaultMaxRequests int
	MinMaxRequests     int
	MaxMaxRequests     int

	// PublicBaseURL prefixes capture URLs, e.g. "https://bins.example.com".
	PublicBaseURL string
}

// DefaultConfig returns the standard bounds: 1 to 168 hours (default 24)
// and 10 to 10000 requests (default 1000).
func DefaultConfig() Config {
	return Config{
		DefaultExpiryHours: 24,
		MinExpiryHours:     1,
		MaxExpiryHours:     168,
		DefaultMaxRequests: 1000,
		MinMaxRequests:     10,
		MaxMaxRequests:     10000,
		PublicBaseURL:      "http://localhost:8080",
	}
}
