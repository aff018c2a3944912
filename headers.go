package wsloop

import (
	"strings"

	"github.com/cloudwego/hertz/pkg/protocol"
)

// canonicalSingleValue returns the "canonical form" of a single-valued
// header (spec §3): the header's value is split on commas, without
// trimming individual elements, since Sec-WebSocket-Key and
// Sec-WebSocket-Version are themselves single tokens, not padded list
// elements. Exactly one resulting element is required; an absent header,
// an empty value, or an embedded comma all fail.
func canonicalSingleValue(h *protocol.RequestHeader, key string) (string, bool) {
	raw := h.Get(key)
	if raw == "" {
		return "", false
	}
	parts := strings.Split(raw, ",")
	if len(parts) != 1 {
		return "", false
	}
	return parts[0], true
}

// tokenListContainsValue reports whether key's value, treated as a
// comma-separated token list per RFC 7230 §7 (as Connection and Upgrade
// both are, unlike the single-valued Sec-WebSocket-* headers above),
// contains want as one of its tokens, case-insensitively. Grounded on the
// teacher's own tokenListContainsValue call sites (server.go's
// `!tokenListContainsValue(protocolReqHeaderValueByKey(&r.Header,
// "Connection"), "upgrade")` check); that helper's own byte-scanning body
// lives in a util.go not present in the retrieval pack, so this is a
// fresh implementation of the same comma-separated, case-insensitive
// token-list contract.
func tokenListContainsValue(h *protocol.RequestHeader, key, want string) bool {
	raw := h.Get(key)
	if raw == "" {
		return false
	}
	for _, tok := range strings.Split(raw, ",") {
		if strings.EqualFold(strings.TrimSpace(tok), want) {
			return true
		}
	}
	return false
}
