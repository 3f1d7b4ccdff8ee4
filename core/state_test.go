package core

import (
	"strings"
	"testing"
	"time"
)

func TestLegacyStateCodec_RoundTrip(t *testing.T) {
	codec := LegacyStateCodec{Prefix: "spotify"}
	issuedAt := time.Date(2026, 2, 10, 8, 30, 0, 0, time.UTC)

	state, err := codec.Encode(StateClaims{UserID: "user_42", IssuedAt: issuedAt})
	if err != nil {
		t.Fatalf("encode state: %v", err)
	}
	if state != "spotify-user_42-"+formatMillis(issuedAt) {
		t.Fatalf("unexpected state: %s", state)
	}

	claims, err := codec.Decode(state)
	if err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if claims.UserID != "user_42" {
		t.Fatalf("unexpected user id: %s", claims.UserID)
	}
	if !claims.IssuedAt.Equal(issuedAt) {
		t.Fatalf("unexpected issued at: %v", claims.IssuedAt)
	}
}

func TestLegacyStateCodec_SplitsOnLastHyphen(t *testing.T) {
	codec := LegacyStateCodec{Prefix: "apple-music"}

	claims, err := codec.Decode("apple-music-user-with-hyphens-1700000000000")
	if err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if claims.UserID != "user-with-hyphens" {
		t.Fatalf("expected hyphenated user id preserved, got %q", claims.UserID)
	}

	// A user id ending in "-<digits>" loses its tail to the timestamp
	// segment. Existing callers rely on exactly this split.
	claims, err = codec.Decode("apple-music-user-99-1700000000000")
	if err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if claims.UserID != "user-99" {
		t.Fatalf("unexpected user id: %q", claims.UserID)
	}
}

func TestLegacyStateCodec_RejectsForeignPrefix(t *testing.T) {
	codec := LegacyStateCodec{Prefix: "spotify"}
	if _, err := codec.Decode("strava-user_1-1700000000000"); err == nil {
		t.Fatalf("expected foreign prefix to be rejected")
	}
	if _, err := codec.Decode("spotify-user_1-notanumber"); err == nil {
		t.Fatalf("expected non-numeric timestamp to be rejected")
	}
}

func TestSignedStateCodec_RoundTrip(t *testing.T) {
	codec := SignedStateCodec{Secret: []byte("test-secret"), MaxAge: 10 * time.Minute}

	state, err := codec.Encode(StateClaims{Provider: "strava", UserID: "user_7"})
	if err != nil {
		t.Fatalf("encode state: %v", err)
	}
	claims, err := codec.Decode(state)
	if err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if claims.Provider != "strava" || claims.UserID != "user_7" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if claims.Nonce == "" {
		t.Fatalf("expected generated nonce")
	}
}

func TestSignedStateCodec_RejectsTampering(t *testing.T) {
	codec := SignedStateCodec{Secret: []byte("test-secret")}
	state, err := codec.Encode(StateClaims{Provider: "strava", UserID: "user_7"})
	if err != nil {
		t.Fatalf("encode state: %v", err)
	}

	payload, sig, _ := strings.Cut(state, ".")
	if _, err := codec.Decode(payload + "x." + sig); err == nil {
		t.Fatalf("expected tampered payload to be rejected")
	}

	other := SignedStateCodec{Secret: []byte("other-secret")}
	if _, err := other.Decode(state); err == nil {
		t.Fatalf("expected foreign secret to be rejected")
	}
}

func TestSignedStateCodec_Expiry(t *testing.T) {
	issued := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	codec := SignedStateCodec{
		Secret: []byte("test-secret"),
		MaxAge: 5 * time.Minute,
		Now:    func() time.Time { return issued },
	}
	state, err := codec.Encode(StateClaims{Provider: "plaid", UserID: "user_1", IssuedAt: issued})
	if err != nil {
		t.Fatalf("encode state: %v", err)
	}

	codec.Now = func() time.Time { return issued.Add(10 * time.Minute) }
	if _, err := codec.Decode(state); err == nil {
		t.Fatalf("expected expired state to be rejected")
	}

	codec.Now = func() time.Time { return issued.Add(time.Minute) }
	if _, err := codec.Decode(state); err != nil {
		t.Fatalf("decode within max age: %v", err)
	}
}

func formatMillis(at time.Time) string {
	state, _ := LegacyStateCodec{Prefix: "x"}.Encode(StateClaims{UserID: "u", IssuedAt: at})
	return state[len("x-u-"):]
}
