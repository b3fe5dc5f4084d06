package browser

import "testing"

func TestNormalizeCandidate(t *testing.T) {
	cases := map[string]string{
		"127.0.0.1:9222":      "http://127.0.0.1:9222",
		"//vnc:9222":          "http://vnc:9222",
		"http://vnc:9222":     "http://vnc:9222",
		"ws://vnc:9222/devtools": "ws://vnc:9222/devtools",
	}
	for in, want := range cases {
		if got := NormalizeCandidate(in); got != want {
			t.Errorf("NormalizeCandidate(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNormalizeCDPWebsocketRewritesLoopback(t *testing.T) {
	got := NormalizeCDPWebsocket("http://vnc:9222", "ws://127.0.0.1:9222/devtools/browser/abc")
	want := "ws://vnc:9222/devtools/browser/abc"
	if got != want {
		t.Fatalf("NormalizeCDPWebsocket = %q, want %q", got, want)
	}
}

func TestNormalizeCDPWebsocketIdempotent(t *testing.T) {
	first := NormalizeCDPWebsocket("http://vnc:9222", "ws://127.0.0.1:9222/devtools/browser/abc")
	second := NormalizeCDPWebsocket("http://vnc:9222", first)
	if first != second {
		t.Fatalf("rewrite not idempotent: first=%q second=%q", first, second)
	}
}

func TestNormalizeCDPWebsocketPreservesNonLoopbackHost(t *testing.T) {
	got := NormalizeCDPWebsocket("http://vnc:9222", "ws://chrome-host:9222/devtools/browser/xyz")
	want := "ws://chrome-host:9222/devtools/browser/xyz"
	if got != want {
		t.Fatalf("NormalizeCDPWebsocket = %q, want %q", got, want)
	}
}

func TestNormalizeCDPWebsocketHTTPScheme(t *testing.T) {
	got := NormalizeCDPWebsocket("https://vnc:9222", "http://127.0.0.1:9222/devtools/browser/abc")
	want := "ws://vnc:9222/devtools/browser/abc"
	if got != want {
		t.Fatalf("NormalizeCDPWebsocket = %q, want %q", got, want)
	}
}

func TestFormatUnavailableHintIncludesCandidates(t *testing.T) {
	msg := FormatUnavailableHint("接続がタイムアウトしました", []string{"http://127.0.0.1:9222", "http://vnc:9222"})
	if msg == "" {
		t.Fatal("expected non-empty hint")
	}
	for _, want := range []string{"http://127.0.0.1:9222", "http://vnc:9222", "BROWSER_USE_CDP_URL"} {
		if !contains(msg, want) {
			t.Errorf("hint missing %q: %s", want, msg)
		}
	}
}

func contains(haystack, needle string) bool {
	return len(haystack) >= len(needle) && indexOf(haystack, needle) >= 0
}

func indexOf(haystack, needle string) int {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return i
		}
	}
	return -1
}
