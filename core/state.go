package core

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// LegacyStateCodec produces the historical "<prefix>-<userId>-<millis>"
// state format. Decoding splits on the LAST hyphen, so user ids containing
// hyphens survive while a trailing "-<number>" segment in a user id would
// be swallowed as the timestamp. That quirk is load-bearing: existing
// callbacks in flight depend on it.
type LegacyStateCodec struct {
	Prefix string
}

func (c LegacyStateCodec) Encode(claims StateClaims) (string, error) {
	if strings.TrimSpace(claims.UserID) == "" {
		return "", fmt.Errorf("core: state user id is required")
	}
	issuedAt := claims.IssuedAt
	if issuedAt.IsZero() {
		issuedAt = time.Now().UTC()
	}
	return fmt.Sprintf("%s-%s-%d", c.Prefix, claims.UserID, issuedAt.UnixMilli()), nil
}

func (c LegacyStateCodec) Decode(state string) (StateClaims, error) {
	prefix := c.Prefix + "-"
	if !strings.HasPrefix(state, prefix) {
		return StateClaims{}, fmt.Errorf("core: callback state does not match prefix %q", c.Prefix)
	}
	remainder := strings.TrimPrefix(state, prefix)
	idx := strings.LastIndex(remainder, "-")
	if idx <= 0 {
		return StateClaims{}, fmt.Errorf("core: malformed callback state")
	}
	userID := remainder[:idx]
	millis, err := strconv.ParseInt(remainder[idx+1:], 10, 64)
	if err != nil {
		return StateClaims{}, fmt.Errorf("core: malformed callback state timestamp: %w", err)
	}
	return StateClaims{
		Provider: c.Prefix,
		UserID:   userID,
		IssuedAt: time.UnixMilli(millis).UTC(),
	}, nil
}

// SignedStateCodec is the tamper-evident replacement for the legacy format:
// a base64url JSON payload plus an HMAC-SHA256 signature, joined by a dot.
type SignedStateCodec struct {
	Secret []byte
	MaxAge time.Duration
	Now    func() time.Time
}

type signedStatePayload struct {
	Provider string `json:"provider"`
	UserID   string `json:"user_id"`
	Nonce    string `json:"nonce"`
	IssuedAt int64  `json:"issued_at"`
}

func (c SignedStateCodec) Encode(claims StateClaims) (string, error) {
	if len(c.Secret) == 0 {
		return "", fmt.Errorf("core: state signing secret is required")
	}
	if strings.TrimSpace(claims.UserID) == "" {
		return "", fmt.Errorf("core: state user id is required")
	}
	nonce := claims.Nonce
	if nonce == "" {
		generated, err := generateStateNonce()
		if err != nil {
			return "", err
		}
		nonce = generated
	}
	issuedAt := claims.IssuedAt
	if issuedAt.IsZero() {
		issuedAt = c.now()
	}
	raw, err := json.Marshal(signedStatePayload{
		Provider: claims.Provider,
		UserID:   claims.UserID,
		Nonce:    nonce,
		IssuedAt: issuedAt.Unix(),
	})
	if err != nil {
		return "", fmt.Errorf("core: encode state payload: %w", err)
	}
	encoded := base64.RawURLEncoding.EncodeToString(raw)
	return encoded + "." + c.sign(encoded), nil
}

func (c SignedStateCodec) Decode(state string) (StateClaims, error) {
	if len(c.Secret) == 0 {
		return StateClaims{}, fmt.Errorf("core: state signing secret is required")
	}
	encoded, sig, found := strings.Cut(state, ".")
	if !found || encoded == "" || sig == "" {
		return StateClaims{}, fmt.Errorf("core: malformed signed callback state")
	}
	if !hmac.Equal([]byte(sig), []byte(c.sign(encoded))) {
		return StateClaims{}, fmt.Errorf("core: callback state signature mismatch")
	}
	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return StateClaims{}, fmt.Errorf("core: decode state payload: %w", err)
	}
	var payload signedStatePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return StateClaims{}, fmt.Errorf("core: decode state payload: %w", err)
	}
	issuedAt := time.Unix(payload.IssuedAt, 0).UTC()
	if c.MaxAge > 0 && c.now().Sub(issuedAt) > c.MaxAge {
		return StateClaims{}, fmt.Errorf("core: callback state expired")
	}
	return StateClaims{
		Provider: payload.Provider,
		UserID:   payload.UserID,
		Nonce:    payload.Nonce,
		IssuedAt: issuedAt,
	}, nil
}

func (c SignedStateCodec) sign(encoded string) string {
	mac := hmac.New(sha256.New, c.Secret)
	mac.Write([]byte(encoded))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

func (c SignedStateCodec) now() time.Time {
	if c.Now != nil {
		return c.Now().UTC()
	}
	return time.Now().UTC()
}

func generateStateNonce() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("core: generate state nonce: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

var (
	_ StateCodec = LegacyStateCodec{}
	_ StateCodec = SignedStateCodec{}
)
