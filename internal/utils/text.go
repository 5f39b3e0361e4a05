package utils

import (
	"net"
	"net/http"
	"strings"
	"unicode"
)

const ellipsis = "..."

// Truncate shortens s to at most n characters (runes), appending "..."
// when anything was cut.
func Truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + ellipsis
}

// WordCount counts whitespace-separated words, with every Han character
// counted as a word of its own.
func WordCount(content string) int {
	han := 0
	var rest strings.Builder
	for _, r := range content {
		if unicode.Is(unicode.Han, r) {
			han++
			rest.WriteRune(' ')
			continue
		}
		rest.WriteRune(r)
	}
	return han + len(strings.Fields(rest.String()))
}

// ReadTimeMinutes estimates reading time at wordsPerMinute, never less than
// one minute for non-empty content.
func ReadTimeMinutes(content string, wordsPerMinute int) int {
	words := WordCount(content)
	if words == 0 {
		return 0
	}
	return max(1, words/wordsPerMinute)
}

// ClientIP returns the first X-Forwarded-For entry, falling back to the
// host part of RemoteAddr.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if first := strings.TrimSpace(strings.Split(fwd, ",")[0]); first != "" {
			return first
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// BrowserFamily buckets a User-Agent into a coarse browser name.
func BrowserFamily(userAgent string) string {
	switch {
	case strings.Contains(userAgent, "Edg"):
		return "Edge"
	case strings.Contains(userAgent, "Chrome"):
		return "Chrome"
	case strings.Contains(userAgent, "Firefox"):
		return "Firefox"
	case strings.Contains(userAgent, "Safari"):
		return "Safari"
	default:
		return "Other"
	}
}
