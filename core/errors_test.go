package core

import (
	"errors"
	"net/http"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

func TestErrorConstructorsCarryCodes(t *testing.T) {
	cases := []struct {
		name     string
		err      *goerrors.Error
		textCode string
		httpCode int
	}{
		{"configuration", NewConfigurationError("spotify", "missing client id"), IntegrationErrorConfiguration, http.StatusInternalServerError},
		{"invalid callback", NewInvalidCallbackError("spotify", "state mismatch"), IntegrationErrorInvalidCallback, http.StatusBadRequest},
		{"oauth denied", NewOAuthDeniedError("spotify", "access_denied"), IntegrationErrorOAuthDenied, http.StatusUnauthorized},
		{"invalid token", NewInvalidTokenError("spotify", "user_1"), IntegrationErrorInvalidToken, http.StatusUnauthorized},
		{"refresh rejected", NewRefreshRejectedError("spotify", "invalid_grant"), IntegrationErrorRefreshRejected, http.StatusUnauthorized},
		{"rate limited", NewRateLimitedError("spotify", 30*time.Second), IntegrationErrorRateLimited, http.StatusTooManyRequests},
		{"provider api", NewProviderAPIError("spotify", "upstream 503", 503), IntegrationErrorProviderAPI, http.StatusBadGateway},
		{"provider not found", NewProviderNotFoundError("nope"), IntegrationErrorProviderNotFound, http.StatusNotFound},
		{"not connected", NewNotConnectedError("spotify", "user_1"), IntegrationErrorNotConnected, http.StatusBadRequest},
		{"user data not found", NewUserDataNotFoundError("user_1"), IntegrationErrorUserDataNotFound, http.StatusNotFound},
		{"data validation", NewDataValidationError("title is required"), IntegrationErrorDataValidation, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if tc.err.TextCode != tc.textCode {
				t.Fatalf("expected text code %s, got %s", tc.textCode, tc.err.TextCode)
			}
			if tc.err.Code != tc.httpCode {
				t.Fatalf("expected http code %d, got %d", tc.httpCode, tc.err.Code)
			}
		})
	}
}

func TestRetryAfter(t *testing.T) {
	err := NewRateLimitedError("spotify", 45*time.Second)
	delay, ok := RetryAfter(err)
	if !ok {
		t.Fatalf("expected retry hint")
	}
	if delay != 45*time.Second {
		t.Fatalf("expected 45s, got %v", delay)
	}

	if _, ok := RetryAfter(NewRateLimitedError("spotify", 0)); ok {
		t.Fatalf("expected no retry hint without header")
	}
	if _, ok := RetryAfter(errors.New("plain")); ok {
		t.Fatalf("expected no retry hint on plain error")
	}
}

func TestIsSystemic(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		systemic bool
	}{
		{"invalid token", NewInvalidTokenError("spotify", "user_1"), true},
		{"refresh rejected", NewRefreshRejectedError("spotify", "invalid_grant"), true},
		{"rate limited", NewRateLimitedError("spotify", time.Minute), true},
		{"provider api outage", NewProviderAPIError("spotify", "upstream 502", 502), true},
		{"provider api missing resource", NewProviderAPIError("spotify", "unexpected status 404", 404), false},
		{"provider api transport failure", NewProviderAPIError("spotify", "request failed", 0), false},
		{"data sync", NewDataSyncError("spotify", "recently_played", errors.New("constraint")), false},
		{"data validation", NewDataValidationError("bad title"), false},
		{"nil", nil, false},
		{"plain rate limit text", errors.New("provider rate limit hit"), true},
		{"plain other", errors.New("boom"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsSystemic(tc.err); got != tc.systemic {
				t.Fatalf("expected systemic=%v, got %v", tc.systemic, got)
			}
		})
	}
}

func TestIntegrationErrorMapperEnvelopesPlainErrors(t *testing.T) {
	mapped := integrationErrorMapper(errors.New("provider \"x\" not registered"))
	if mapped.TextCode != IntegrationErrorProviderNotFound {
		t.Fatalf("expected provider not found, got %s", mapped.TextCode)
	}

	mapped = integrationErrorMapper(errors.New("callback state signature mismatch"))
	if mapped.TextCode != IntegrationErrorInvalidCallback {
		t.Fatalf("expected invalid callback, got %s", mapped.TextCode)
	}

	mapped = integrationErrorMapper(errors.New("request throttled upstream"))
	if mapped.TextCode != IntegrationErrorRateLimited {
		t.Fatalf("expected rate limited, got %s", mapped.TextCode)
	}

	rich := NewInvalidTokenError("spotify", "user_1")
	if got := integrationErrorMapper(rich); got.TextCode != IntegrationErrorInvalidToken {
		t.Fatalf("expected rich error preserved, got %s", got.TextCode)
	}
}

func TestPredicates(t *testing.T) {
	if !IsRateLimited(NewRateLimitedError("spotify", 0)) {
		t.Fatalf("expected rate limited predicate to match")
	}
	if !IsInvalidToken(NewInvalidTokenError("spotify", "u")) {
		t.Fatalf("expected invalid token predicate to match")
	}
	if !IsRefreshRejected(NewRefreshRejectedError("spotify", "invalid_grant")) {
		t.Fatalf("expected refresh rejected predicate to match")
	}
	if !IsNotConnected(NewNotConnectedError("spotify", "u")) {
		t.Fatalf("expected not connected predicate to match")
	}
	if IsRateLimited(NewInvalidTokenError("spotify", "u")) {
		t.Fatalf("predicates must not cross-match")
	}
}
