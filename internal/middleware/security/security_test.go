package security

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestExtractClientIP(t *testing.T) {
	d := NewDetector()
	tests := []struct {
		name   string
		remote string
		xff    string
		xri    string
		want   string
	}{
		{name: "direct peer", remote: "203.0.113.5:4000", want: "203.0.113.5"},
		{name: "untrusted peer ignores forwarded", remote: "203.0.113.5:4000", xff: "1.2.3.4", want: "203.0.113.5"},
		{name: "trusted proxy first forwarded", remote: "10.0.0.2:80", xff: "198.51.100.7, 10.0.0.3", want: "198.51.100.7"},
		{name: "trusted proxy real ip", remote: "127.0.0.1:80", xri: "198.51.100.8", want: "198.51.100.8"},
		{name: "trusted proxy garbage header", remote: "192.168.1.1:80", xff: "not-an-ip", want: "192.168.1.1"},
		{name: "unparseable remote", remote: "pipe", want: "pipe"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remote
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xri != "" {
				r.Header.Set("X-Real-IP", tt.xri)
			}
			if got := d.ExtractClientIP(r); got != tt.want {
				t.Fatalf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDetectSuspiciousRequest(t *testing.T) {
	d := NewDetector()
	tests := []struct {
		name   string
		method string
		target string
		agent  string
		want   bool
	}{
		{name: "home", method: http.MethodGet, target: "/home", want: false},
		{name: "ledger partial", method: http.MethodPost, target: "/ui/ledger/page?page=2", want: false},
		{name: "dotenv probe", method: http.MethodGet, target: "/.env", want: true},
		{name: "traversal in query", method: http.MethodGet, target: "/?f=../../etc/passwd", want: true},
		{name: "scanner agent", method: http.MethodGet, target: "/", agent: "sqlmap/1.7", want: true},
		{name: "trace method", method: "TRACE", target: "/", want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(tt.method, tt.target, nil)
			if tt.agent != "" {
				r.Header.Set("User-Agent", tt.agent)
			}
			if got := d.DetectSuspiciousRequest(r); got != tt.want {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
		})
	}
	if d.SuspiciousRequests() != 4 {
		t.Fatalf("SuspiciousRequests = %d, want 4", d.SuspiciousRequests())
	}
}

func TestHeadersMiddleware(t *testing.T) {
	h := NewHeadersMiddleware(DefaultHeadersConfig()).Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Header().Get("X-Frame-Options") != "DENY" {
		t.Fatal("X-Frame-Options missing")
	}
	if csp := rr.Header().Get("Content-Security-Policy"); !strings.Contains(csp, "https://unpkg.com") {
		t.Fatalf("unexpected CSP %q", csp)
	}
	if rr.Header().Get("Strict-Transport-Security") != "" {
		t.Fatal("HSTS must not be sent over plain http")
	}

	rr = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.TLS = &tls.ConnectionState{}
	h.ServeHTTP(rr, req)
	if got := rr.Header().Get("Strict-Transport-Security"); got != "max-age=31536000; includeSubDomains" {
		t.Fatalf("HSTS = %q", got)
	}
}

func TestHeadersMiddleware_SkipsEmpty(t *testing.T) {
	h := NewHeadersMiddleware(HeadersConfig{XFrameOptions: "SAMEORIGIN"}).Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if _, ok := rr.Header()["Content-Security-Policy"]; ok {
		t.Fatal("empty CSP should not be sent")
	}
	if rr.Header().Get("X-Frame-Options") != "SAMEORIGIN" {
		t.Fatal("configured header missing")
	}
}
