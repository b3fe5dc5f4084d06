// Package browser implements the Shared Browser Connector (C1): endpoint
// discovery, probing, CDP websocket URL rewriting, and the warmup
// contract that lets multiple workers and live-view viewers share one
// Chromium process. Grounded on cloudrouter/cmd/worker/browser.go's
// ensureConnected/getWSURL/findPageTarget for the probe/connect shape,
// and on original_source/agent/utils/shared_browser.py for the exact
// websocket-rewrite and candidate-normalization semantics this spec
// requires.
package browser

import (
	"net/url"
	"strings"
)

var localHostnames = map[string]bool{
	"127.0.0.1": true,
	"localhost": true,
	"::1":       true,
	"0.0.0.0":   true,
}

// NormalizeCandidate turns a bare "host:port", "//host:port", or full URL
// into "scheme://host:port" form (spec §4.1): bare host:port → http://,
// "//..." → http://, ws(s):// kept as-is.
func NormalizeCandidate(candidate string) string {
	c := strings.TrimSpace(candidate)
	if c == "" {
		return ""
	}
	switch {
	case strings.HasPrefix(c, "ws://"), strings.HasPrefix(c, "wss://"),
		strings.HasPrefix(c, "http://"), strings.HasPrefix(c, "https://"):
		return c
	case strings.HasPrefix(c, "//"):
		return "http:" + c
	default:
		return "http://" + c
	}
}

// candidateHost extracts the host:port portion of a normalized candidate,
// mirroring shared_browser.py's _candidate_host.
func candidateHost(candidate string) string {
	c := strings.TrimSpace(candidate)
	if c == "" {
		return ""
	}
	toParse := c
	if !strings.Contains(c, "://") {
		toParse = "http://" + c
	}
	u, err := url.Parse(toParse)
	if err != nil {
		return ""
	}
	if u.Host != "" {
		return u.Host
	}
	return u.Path
}

// NormalizeCDPWebsocket rewrites websocketURL's host to candidate's host
// when the websocket URL is a loopback address, preserving scheme
// (http→ws, https→wss), port, path, query, and fragment. This is the Go
// port of original_source/agent/utils/shared_browser.py's
// normalise_cdp_websocket, which spec §4.1 and the CDP-rewrite-idempotence
// testable property (§8) both depend on verbatim.
func NormalizeCDPWebsocket(candidate, websocketURL string) string {
	base := strings.TrimSpace(candidate)
	ws := strings.TrimSpace(websocketURL)
	if ws == "" {
		return base
	}

	parsed, err := url.Parse(ws)
	if err != nil {
		if base != "" {
			return base
		}
		return ws
	}

	scheme := strings.ToLower(parsed.Scheme)
	switch scheme {
	case "":
		scheme = "ws"
	case "http":
		scheme = "ws"
	case "https":
		scheme = "wss"
	case "ws", "wss":
		// keep
	default:
		if base != "" {
			return base
		}
		return ws
	}

	host := parsed.Host
	hostname := parsed.Hostname()
	if host == "" || localHostnames[hostname] {
		if replacement := candidateHost(base); replacement != "" {
			host = replacement
		}
	}
	if host == "" {
		host = parsed.Host
	}
	if host == "" {
		if base != "" {
			return base
		}
		return ws
	}

	out := url.URL{
		Scheme:   scheme,
		Host:     host,
		Path:     parsed.Path,
		RawQuery: parsed.RawQuery,
		Fragment: parsed.Fragment,
	}
	return out.String()
}

// IsLoopbackHostname reports whether host is one of the recognized local
// addresses that trigger a rewrite.
func IsLoopbackHostname(host string) bool {
	return localHostnames[host]
}
