package cache

import (
	"testing"
)

func TestHashIP(t *testing.T) {
	t.Parallel()

	if hashIP("192.0.2.10") != hashIP("192.0.2.10") {
		t.Fatal("hash is not deterministic")
	}

	seen := map[string]string{}
	for _, ip := range []string{"192.0.2.10", "192.0.2.11", "::1", "2001:db8::1", ""} {
		h := hashIP(ip)
		if len(h) != 16 {
			t.Errorf("hashIP(%q) length = %d, want 16", ip, len(h))
		}
		if prev, ok := seen[h]; ok {
			t.Errorf("hashIP(%q) collides with %q", ip, prev)
		}
		seen[h] = ip
	}
}

func TestBucketTTL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		rate  float64
		burst int
		want  int
	}{
		{"explain endpoint", 1, 5, 6},
		{"per user per minute", 60.0 / 60, 20, 21},
		{"slow refill", 0.5, 3, 7},
		{"fractional rounds up", 2, 3, 3},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := bucketTTL(tt.rate, tt.burst); got != tt.want {
				t.Errorf("bucketTTL(%v, %d) = %d, want %d", tt.rate, tt.burst, got, tt.want)
			}
		})
	}
}

func TestKeyNamespace(t *testing.T) {
	t.Parallel()

	tests := []struct {
		prefix string
		want   string
	}{
		{"", "errmate:webhook:event:evt_1"},
		{"staging", "staging:webhook:event:evt_1"},
		{"staging:", "staging:webhook:event:evt_1"},
	}

	for _, tt := range tests {
		c := newCache(nil, tt.prefix)
		if got := c.key("webhook", "event", "evt_1"); got != tt.want {
			t.Errorf("prefix %q: key = %q, want %q", tt.prefix, got, tt.want)
		}
	}
}
