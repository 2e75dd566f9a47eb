package model

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// ResolveRequest is the input to one resolution. It is immutable once
// constructed; ProxyConfig is forwarded verbatim to the resolver program
// and never inspected by this service.
type ResolveRequest struct {
	URL         string            `json:"url"`
	Headers     map[string]string `json:"headers"`
	DisplayName string            `json:"channel_name"`
	ProxyConfig json.RawMessage   `json:"proxy_config,omitempty"`
}

// ResolveResult is the output of one resolution. The shape beyond "JSON
// object with these two fields" is a contract between the resolver program
// and downstream players; this service treats it as opaque.
type ResolveResult struct {
	ResolvedURL string            `json:"resolved_url"`
	Headers     map[string]string `json:"headers"`
}

// Fingerprint derives the cache key for the request from its URL and the
// canonical JSON form of its headers. encoding/json marshals map keys in
// sorted order, so identical header sets always produce identical keys.
// DisplayName and ProxyConfig do not participate: they never affect what
// the program resolves a URL to.
func (r ResolveRequest) Fingerprint() string {
	headers := r.Headers
	if headers == nil {
		headers = map[string]string{}
	}
	canonical, err := json.Marshal(headers)
	if err != nil {
		// A map[string]string cannot fail to marshal; keep the key total anyway.
		canonical = []byte("{}")
	}

	h := sha256.New()
	h.Write([]byte(r.URL))
	h.Write([]byte{'\n'})
	h.Write(canonical)
	return hex.EncodeToString(h.Sum(nil))
}
