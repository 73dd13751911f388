package origin

import (
	"net/http/httptest"
	"testing"
)

func TestNormalizeHeader(t *testing.T) {
	cases := []struct {
		name     string
		header   string
		want     string
		wantHost string
		wantOK   bool
	}{
		{"drops default port", "HTTPS://Example.COM:443", "https://example.com", "example.com", true},
		{"keeps explicit port", "http://localhost:5173/", "http://localhost:5173", "localhost:5173", true},
		{"ipv6 literal", "http://[::1]:8080", "http://[::1]:8080", "[::1]:8080", true},
		{"null origin", "null", "null", "", true},
		{"empty", "  ", "", "", false},
		{"ftp scheme", "ftp://example.com", "", "", false},
		{"path", "https://example.com/path", "", "", false},
		{"query", "https://example.com/?q=1", "", "", false},
		{"credentials", "https://user@example.com", "", "", false},
		{"fragment", "https://example.com/#frag", "", "", false},
		{"zero port", "http://example.com:0", "", "", false},
		{"unbracketed ipv6", "http://::1", "", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, host, ok := NormalizeHeader(tc.header)
			if ok != tc.wantOK || got != tc.want || host != tc.wantHost {
				t.Fatalf("NormalizeHeader(%q)=(%q,%q,%v), want (%q,%q,%v)", tc.header, got, host, ok, tc.want, tc.wantHost, tc.wantOK)
			}
		})
	}
}

func TestIsAllowed(t *testing.T) {
	normalized, host, ok := NormalizeHeader("https://app.example.com")
	if !ok {
		t.Fatalf("NormalizeHeader ok=false")
	}

	t.Run("default is same host:port only", func(t *testing.T) {
		if !IsAllowed(normalized, host, "app.example.com", nil) {
			t.Fatalf("expected same-host to be allowed")
		}
		if !IsAllowed(normalized, host, "APP.example.com:443", nil) {
			t.Fatalf("expected default port to be equivalent")
		}
		if IsAllowed(normalized, host, "app.example.com:8443", nil) {
			t.Fatalf("expected different port to be rejected")
		}
	})

	t.Run("allows star", func(t *testing.T) {
		if !IsAllowed(normalized, host, "whatever:1234", []string{"*"}) {
			t.Fatalf("expected * to allow any origin")
		}
	})

	t.Run("explicit list", func(t *testing.T) {
		if !IsAllowed(normalized, host, "api.example.com", []string{"https://app.example.com"}) {
			t.Fatalf("expected explicit origin to be allowed")
		}
		if IsAllowed(normalized, host, "api.example.com", []string{"https://other.example.com"}) {
			t.Fatalf("expected non-matching origin to be rejected")
		}
	})

	t.Run("null origin only when configured", func(t *testing.T) {
		if IsAllowed("null", "", "api.example.com", nil) {
			t.Fatalf("expected null origin to be rejected by default")
		}
		if !IsAllowed("null", "", "api.example.com", []string{"null"}) {
			t.Fatalf("expected null origin to be allowed when configured")
		}
	})
}

func TestPolicy_Check(t *testing.T) {
	p := NewPolicy(nil)

	r := httptest.NewRequest("GET", "http://api.example.com/api/debates", nil)
	if _, present, allowed := p.Check(r); present || !allowed {
		t.Fatalf("present=%v allowed=%v, want false/true without Origin", present, allowed)
	}

	r.Header.Set("Origin", "http://api.example.com")
	normalized, present, allowed := p.Check(r)
	if !present || !allowed || normalized != "http://api.example.com" {
		t.Fatalf("Check=(%q,%v,%v), want same-host allowed", normalized, present, allowed)
	}

	r.Header.Set("Origin", "http://evil.example.com")
	if p.CheckOrigin(r) {
		t.Fatalf("expected cross-origin request to be rejected")
	}

	r.Header.Set("Origin", "not a url")
	if _, present, allowed := p.Check(r); !present || allowed {
		t.Fatalf("present=%v allowed=%v, want malformed origin rejected", present, allowed)
	}
}
