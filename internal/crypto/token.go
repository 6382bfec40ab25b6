package crypto

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TokenAuth mints and verifies stateless session tokens. A token is
// "base64url(userID.expiryUnix).hexsig" where the signature is
// HMAC-SHA256 over the encoded payload. No server-side session store is
// needed; revocation happens by rotating the secret.
type TokenAuth struct {
	secret string
	ttl    time.Duration
}

// NewTokenAuth creates a TokenAuth with the given signing secret and
// token lifetime.
func NewTokenAuth(secret string, ttl time.Duration) *TokenAuth {
	return &TokenAuth{secret: secret, ttl: ttl}
}

// Mint issues a signed token for the given user, expiring after the
// configured TTL.
func (t *TokenAuth) Mint(userID int64) string {
	return t.mintAt(userID, time.Now().Add(t.ttl))
}

func (t *TokenAuth) mintAt(userID int64, expiry time.Time) string {
	payload := base64.RawURLEncoding.EncodeToString(
		[]byte(fmt.Sprintf("%d.%d", userID, expiry.Unix())))
	return payload + "." + SignQuery(t.secret, payload)
}

// Parse validates a token's signature and expiry and returns the user
// ID it was minted for.
func (t *TokenAuth) Parse(token string) (int64, error) {
	payload, sig, ok := strings.Cut(token, ".")
	if !ok {
		return 0, fmt.Errorf("token: malformed")
	}
	if !Verify(t.secret, payload, sig) {
		return 0, fmt.Errorf("token: bad signature")
	}

	raw, err := base64.RawURLEncoding.DecodeString(payload)
	if err != nil {
		return 0, fmt.Errorf("token: decode payload: %w", err)
	}
	idStr, expStr, ok := strings.Cut(string(raw), ".")
	if !ok {
		return 0, fmt.Errorf("token: malformed payload")
	}

	exp, err := strconv.ParseInt(expStr, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("token: parse expiry: %w", err)
	}
	if time.Now().Unix() > exp {
		return 0, fmt.Errorf("token: expired")
	}

	userID, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("token: parse user id: %w", err)
	}
	return userID, nil
}
