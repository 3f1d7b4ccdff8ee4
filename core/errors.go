package core

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

const (
	IntegrationErrorConfiguration    = "INTEGRATION_CONFIGURATION"
	IntegrationErrorInvalidCallback  = "INTEGRATION_INVALID_CALLBACK"
	IntegrationErrorOAuthDenied      = "INTEGRATION_OAUTH_DENIED"
	IntegrationErrorInvalidToken     = "INTEGRATION_INVALID_TOKEN"
	IntegrationErrorRefreshRejected  = "INTEGRATION_REFRESH_REJECTED"
	IntegrationErrorRateLimited      = "INTEGRATION_RATE_LIMITED"
	IntegrationErrorProviderAPI      = "INTEGRATION_PROVIDER_API"
	IntegrationErrorDataSync         = "INTEGRATION_DATA_SYNC"
	IntegrationErrorProviderNotFound = "INTEGRATION_PROVIDER_NOT_FOUND"
	IntegrationErrorNotConnected     = "INTEGRATION_NOT_CONNECTED"
	IntegrationErrorUserDataNotFound = "INTEGRATION_USER_DATA_NOT_FOUND"
	IntegrationErrorDataValidation   = "INTEGRATION_DATA_VALIDATION"
	IntegrationErrorInternal         = "INTEGRATION_INTERNAL_ERROR"
)

const (
	metadataRetryAfterSeconds = "retry_after_seconds"
	metadataUpstreamStatus    = "upstream_status"
)

// NewConfigurationError reports a missing or malformed provider setup. It is
// never caused by user input.
func NewConfigurationError(provider, message string) *goerrors.Error {
	return newIntegrationError(message, goerrors.CategoryInternal, IntegrationErrorConfiguration).
		WithMetadata(map[string]any{"provider": provider})
}

func NewInvalidCallbackError(provider, message string) *goerrors.Error {
	return newIntegrationError(message, goerrors.CategoryBadInput, IntegrationErrorInvalidCallback).
		WithMetadata(map[string]any{"provider": provider})
}

func NewOAuthDeniedError(provider, message string) *goerrors.Error {
	return newIntegrationError(message, goerrors.CategoryAuth, IntegrationErrorOAuthDenied).
		WithMetadata(map[string]any{"provider": provider})
}

func NewInvalidTokenError(provider, userID string) *goerrors.Error {
	return newIntegrationError("no usable credential for user", goerrors.CategoryAuth, IntegrationErrorInvalidToken).
		WithMetadata(map[string]any{"provider": provider, "user_id": userID})
}

func NewRefreshRejectedError(provider, message string) *goerrors.Error {
	return newIntegrationError(message, goerrors.CategoryAuth, IntegrationErrorRefreshRejected).
		WithMetadata(map[string]any{"provider": provider})
}

// NewRateLimitedError carries the provider's retry-after hint, when present,
// as retry_after_seconds metadata.
func NewRateLimitedError(provider string, retryAfter time.Duration) *goerrors.Error {
	metadata := map[string]any{"provider": provider}
	if retryAfter > 0 {
		metadata[metadataRetryAfterSeconds] = int64(retryAfter / time.Second)
	}
	return newIntegrationError("provider rate limit exceeded", goerrors.CategoryRateLimit, IntegrationErrorRateLimited).
		WithMetadata(metadata)
}

func NewProviderAPIError(provider, message string, statusCode int) *goerrors.Error {
	return newIntegrationError(message, goerrors.CategoryExternal, IntegrationErrorProviderAPI).
		WithMetadata(map[string]any{"provider": provider, metadataUpstreamStatus: statusCode})
}

func NewDataSyncError(provider, resource string, cause error) *goerrors.Error {
	return ensureIntegrationErrorEnvelope(
		goerrors.Wrap(cause, goerrors.CategoryInternal, "persisting synced data failed").
			WithTextCode(IntegrationErrorDataSync).
			WithMetadata(map[string]any{"provider": provider, "resource": resource}),
	)
}

func NewProviderNotFoundError(provider string) *goerrors.Error {
	return newIntegrationError("provider not registered", goerrors.CategoryNotFound, IntegrationErrorProviderNotFound).
		WithMetadata(map[string]any{"provider": provider})
}

func NewNotConnectedError(provider, userID string) *goerrors.Error {
	return newIntegrationError("user is not connected to provider", goerrors.CategoryBadInput, IntegrationErrorNotConnected).
		WithMetadata(map[string]any{"provider": provider, "user_id": userID})
}

func NewUserDataNotFoundError(userID string) *goerrors.Error {
	return newIntegrationError("user data not found", goerrors.CategoryNotFound, IntegrationErrorUserDataNotFound).
		WithMetadata(map[string]any{"user_id": userID})
}

func NewDataValidationError(message string) *goerrors.Error {
	return newIntegrationError(message, goerrors.CategoryValidation, IntegrationErrorDataValidation)
}

// IsRateLimited reports whether err belongs to the rate limit class.
func IsRateLimited(err error) bool {
	return hasTextCode(err, IntegrationErrorRateLimited)
}

func IsInvalidToken(err error) bool {
	return hasTextCode(err, IntegrationErrorInvalidToken)
}

func IsRefreshRejected(err error) bool {
	return hasTextCode(err, IntegrationErrorRefreshRejected)
}

func IsNotConnected(err error) bool {
	return hasTextCode(err, IntegrationErrorNotConnected)
}

func IsProviderNotFound(err error) bool {
	return hasTextCode(err, IntegrationErrorProviderNotFound)
}

// IsSystemic reports whether err should abort an entire sync run instead of
// being isolated to a single resource: credential failures, rate limits, and
// provider-side outages. Upstream API errors count only when the recorded
// status is a 5xx; a 404 on one resource says nothing about the rest.
func IsSystemic(err error) bool {
	if err == nil {
		return false
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		switch richErr.Category {
		case goerrors.CategoryAuth, goerrors.CategoryAuthz, goerrors.CategoryRateLimit:
			return true
		}
		switch richErr.TextCode {
		case IntegrationErrorInvalidToken,
			IntegrationErrorRefreshRejected,
			IntegrationErrorRateLimited:
			return true
		case IntegrationErrorProviderAPI:
			return upstreamStatus(richErr) >= http.StatusInternalServerError
		}
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "rate limit") || strings.Contains(msg, "unauthorized")
}

// RetryAfter extracts the retry hint from a rate limit error, when one was
// recorded.
func RetryAfter(err error) (time.Duration, bool) {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return 0, false
	}
	raw, ok := richErr.Metadata[metadataRetryAfterSeconds]
	if !ok {
		return 0, false
	}
	switch v := raw.(type) {
	case int64:
		return time.Duration(v) * time.Second, true
	case int:
		return time.Duration(v) * time.Second, true
	case float64:
		return time.Duration(v) * time.Second, true
	case string:
		secs, parseErr := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if parseErr != nil {
			return 0, false
		}
		return time.Duration(secs) * time.Second, true
	default:
		return 0, false
	}
}

func upstreamStatus(err *goerrors.Error) int {
	if err == nil {
		return 0
	}
	switch v := err.Metadata[metadataUpstreamStatus].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case string:
		status, parseErr := strconv.Atoi(strings.TrimSpace(v))
		if parseErr != nil {
			return 0
		}
		return status
	default:
		return 0
	}
}

func hasTextCode(err error, textCode string) bool {
	if err == nil {
		return false
	}
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return false
	}
	return richErr.TextCode == textCode
}

func integrationErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureIntegrationErrorEnvelope(richErr)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "provider") && strings.Contains(msg, "not registered"):
		return newIntegrationError(err.Error(), goerrors.CategoryNotFound, IntegrationErrorProviderNotFound)
	case strings.Contains(msg, "callback state"), strings.Contains(msg, "oauth state"):
		return newIntegrationError(err.Error(), goerrors.CategoryBadInput, IntegrationErrorInvalidCallback)
	case strings.Contains(msg, "access_denied"), strings.Contains(msg, "consent"):
		return newIntegrationError(err.Error(), goerrors.CategoryAuth, IntegrationErrorOAuthDenied)
	case strings.Contains(msg, "rate limit"), strings.Contains(msg, "throttl"):
		return newIntegrationError(err.Error(), goerrors.CategoryRateLimit, IntegrationErrorRateLimited)
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"), strings.Contains(msg, "mismatch"):
		return newIntegrationError(err.Error(), goerrors.CategoryBadInput, IntegrationErrorInvalidCallback)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureIntegrationErrorEnvelope(mapped)
}

func newIntegrationError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureIntegrationErrorEnvelope(
		goerrors.New(message, category).
			WithTextCode(textCode),
	)
}

func ensureIntegrationErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = integrationHTTPStatus(err.Category, err.TextCode)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultIntegrationTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultIntegrationTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput:
		return IntegrationErrorInvalidCallback
	case goerrors.CategoryValidation:
		return IntegrationErrorDataValidation
	case goerrors.CategoryNotFound:
		return IntegrationErrorProviderNotFound
	case goerrors.CategoryAuth, goerrors.CategoryAuthz:
		return IntegrationErrorInvalidToken
	case goerrors.CategoryRateLimit:
		return IntegrationErrorRateLimited
	case goerrors.CategoryExternal:
		return IntegrationErrorProviderAPI
	default:
		return IntegrationErrorInternal
	}
}

func integrationHTTPStatus(category goerrors.Category, textCode string) int {
	if textCode == IntegrationErrorProviderAPI {
		return http.StatusBadGateway
	}
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	case goerrors.CategoryExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
