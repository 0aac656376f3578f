package capture

import (
	"fmt"
	"io"
	"net"
	"net/http"
	"net/netip"
	"strings"

	"requestbin-hq/sieve/pkg/bin"
)

// DefaultMaxBodyBytes caps how much of a request body is stored.
const DefaultMaxBodyBytes int64 = 1 << 20

// Proxy headers consulted by ClientIP, in priority order.
var clientIPHeaders = []string{
	"X-Forwarded-For",
	"Proxy-Client-IP",
	"WL-Proxy-Client-IP",
}

// ReadBody reads the request body as text. A missing body yields "".
// At most maxBytes are kept; the rest is discarded. maxBytes <= 0 means
// no cap. On a read error the bytes read so far are returned with it.
func ReadBody(r *http.Request, maxBytes int64) (string, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return "", nil
	}

	var src io.Reader = r.Body
	if maxBytes > 0 {
		src = io.LimitReader(r.Body, maxBytes)
	}

	data, err := io.ReadAll(src)
	if err != nil {
		return string(data), fmt.Errorf("failed to read request body: %w", err)
	}
	if maxBytes > 0 {
		// Drain so keep-alive connections stay reusable.
		_, _ = io.Copy(io.Discard, r.Body)
	}
	return string(data), nil
}

// Normalize converts an inbound request into a CapturedRequest. Only the
// request-derived fields are set; identity, bin and timestamp are left to
// the caller.
//
// Repeated headers keep their last value and repeated query parameters keep
// their first value. The Host header, which net/http moves out of
// r.Header, is restored from r.Host.
func Normalize(r *http.Request, body string) *bin.CapturedRequest {
	headers := make(map[string]string, len(r.Header)+1)
	for name, values := range r.Header {
		if len(values) == 0 {
			continue
		}
		headers[name] = values[len(values)-1]
	}
	if r.Host != "" {
		if _, ok := headers["Host"]; !ok {
			headers["Host"] = r.Host
		}
	}

	query := make(map[string]string)
	if r.URL != nil {
		for name, values := range r.URL.Query() {
			if len(values) == 0 {
				continue
			}
			query[name] = values[0]
		}
	}

	path := ""
	if r.URL != nil {
		path = r.URL.Path
	}

	return &bin.CapturedRequest{
		Method:      r.Method,
		Path:        path,
		Headers:     headers,
		QueryParams: query,
		Body:        body,
		IPAddress:   ClientIP(r),
	}
}

// TrustedProxies lists the peer networks whose proxy headers are believed.
type TrustedProxies []netip.Prefix

// ParseTrustedProxies parses IP addresses and CIDR ranges.
func ParseTrustedProxies(entries []string) (TrustedProxies, error) {
	proxies := make(TrustedProxies, 0, len(entries))
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if strings.Contains(entry, "/") {
			prefix, err := netip.ParsePrefix(entry)
			if err != nil {
				return nil, fmt.Errorf("invalid trusted proxy %q: %w", entry, err)
			}
			proxies = append(proxies, prefix.Masked())
			continue
		}
		addr, err := netip.ParseAddr(entry)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q: %w", entry, err)
		}
		addr = addr.Unmap()
		proxies = append(proxies, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return proxies, nil
}

// Contains reports whether ip falls in one of the trusted networks.
func (t TrustedProxies) Contains(ip string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, prefix := range t {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

// ClientIP returns the address rate limits are keyed on. Proxy headers
// count only when the transport peer is trusted: X-Forwarded-For is then
// walked from the right and the first hop outside the trusted networks
// wins. Untrusted peers are identified by their own address.
func (t TrustedProxies) ClientIP(r *http.Request) string {
	peer := PeerIP(r)
	if !t.Contains(peer) {
		return peer
	}

	hops := strings.Split(r.Header.Get("X-Forwarded-For"), ",")
	for i := len(hops) - 1; i >= 0; i-- {
		hop := strings.TrimSpace(hops[i])
		if !usable(hop) {
			continue
		}
		if !t.Contains(hop) {
			return hop
		}
		peer = hop
	}
	return peer
}

// PeerIP returns the host part of RemoteAddr.
func PeerIP(r *http.Request) string {
	addr := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}

// ClientIP resolves the originating address of a request as reported by
// the request itself. It is recorded on captures and must not be used to
// key limits; see TrustedProxies.ClientIP.
//
// X-Forwarded-For (first entry), Proxy-Client-IP and WL-Proxy-Client-IP
// are consulted in that order before falling back to the host part of
// RemoteAddr. Empty values and "unknown" are skipped.
func ClientIP(r *http.Request) string {
	for _, name := range clientIPHeaders {
		value := r.Header.Get(name)
		if name == "X-Forwarded-For" {
			value, _, _ = strings.Cut(value, ",")
		}
		value = strings.TrimSpace(value)
		if usable(value) {
			return value
		}
	}

	return PeerIP(r)
}

func usable(v string) bool {
	return v != "" && !strings.EqualFold(v, "unknown")
}
