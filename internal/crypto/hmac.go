// Package crypto provides the HMAC primitives used for exchange
// request signing and session token minting.
package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// SignQuery returns the lowercase hex HMAC-SHA256 signature of a
// request query string, as required by Binance-style signed endpoints
// (the signature is appended as the "signature" query parameter).
func SignQuery(secret, query string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(query))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether sig is the valid HMAC-SHA256 hex signature of
// message under secret, in constant time.
func Verify(secret, message, sig string) bool {
	want := SignQuery(secret, message)
	return hmac.Equal([]byte(want), []byte(sig))
}
