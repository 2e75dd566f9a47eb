package model_test

import (
	"encoding/json"
	"testing"

	"github.com/streampanel/resolvd/internal/model"
)

func TestNewIDLength(t *testing.T) {
	id := model.NewID()
	if len(id) != 26 {
		t.Errorf("ULID length = %d, want 26", len(id))
	}
}

func TestNewIDUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := model.NewID()
		if seen[id] {
			t.Fatalf("duplicate ID generated: %s", id)
		}
		seen[id] = true
	}
}

func TestFingerprintDeterministic(t *testing.T) {
	a := model.ResolveRequest{
		URL:     "http://example.com/stream",
		Headers: map[string]string{"User-Agent": "VLC", "Referer": "http://example.com"},
	}
	b := model.ResolveRequest{
		URL:     "http://example.com/stream",
		Headers: map[string]string{"Referer": "http://example.com", "User-Agent": "VLC"},
	}

	if a.Fingerprint() != b.Fingerprint() {
		t.Error("identical URL and headers produced different fingerprints")
	}
}

func TestFingerprintIgnoresDisplayNameAndProxy(t *testing.T) {
	a := model.ResolveRequest{URL: "http://example.com/stream", DisplayName: "Channel1"}
	b := model.ResolveRequest{
		URL:         "http://example.com/stream",
		DisplayName: "Channel2",
		ProxyConfig: json.RawMessage(`{"host":"proxy.local"}`),
	}

	if a.Fingerprint() != b.Fingerprint() {
		t.Error("display name or proxy config changed the fingerprint")
	}
}

func TestFingerprintDistinguishesInputs(t *testing.T) {
	base := model.ResolveRequest{URL: "http://example.com/stream"}

	cases := []model.ResolveRequest{
		{URL: "http://example.com/stream2"},
		{URL: "http://example.com/stream", Headers: map[string]string{"X-Token": "a"}},
	}
	for _, c := range cases {
		if base.Fingerprint() == c.Fingerprint() {
			t.Errorf("request %+v collided with base fingerprint", c)
		}
	}
}

func TestFingerprintNilAndEmptyHeadersEqual(t *testing.T) {
	a := model.ResolveRequest{URL: "http://example.com/stream"}
	b := model.ResolveRequest{URL: "http://example.com/stream", Headers: map[string]string{}}

	if a.Fingerprint() != b.Fingerprint() {
		t.Error("nil and empty header maps should fingerprint identically")
	}
}
