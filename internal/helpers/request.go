package helpers

import (
	"net"
	"net/http"
)

// ClientIP returns the remote address without its port. Forwarded headers are
// not read here; when the API runs behind a trusted proxy, chi's RealIP
// middleware has already rewritten RemoteAddr.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func UserAgent(r *http.Request) string {
	return r.Header.Get("User-Agent")
}
