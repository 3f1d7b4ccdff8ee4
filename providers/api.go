package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-integrations/core"
)

const (
	defaultAPIRequestTimeout = 30 * time.Second

	maxAPIResponseBodyBytes = 4 << 20 // 4 MiB
)

var defaultAPIClient = &http.Client{Timeout: defaultAPIRequestTimeout}

// APIRequest is one authenticated call against a provider's API. Header
// values override the default bearer authorization when set.
type APIRequest struct {
	Method      string
	URL         string
	AccessToken string
	Header      map[string]string
	Body        any
}

// DoJSON executes the request and decodes the JSON response into out,
// mapping upstream failures onto the integration error classes: 401 and
// 403 are credential faults, 429 is a rate limit with the Retry-After
// hint, and anything else non-2xx is an upstream fault. Every call runs
// under a deadline so an unresponsive provider cannot stall a sync run.
func DoJSON(ctx context.Context, doer HTTPDoer, provider string, req APIRequest, out any) error {
	if doer == nil {
		doer = defaultAPIClient
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultAPIRequestTimeout)
		defer cancel()
	}
	method := strings.ToUpper(strings.TrimSpace(req.Method))
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if req.Body != nil {
		encoded, err := json.Marshal(req.Body)
		if err != nil {
			return fmt.Errorf("providers: encode request body: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, body)
	if err != nil {
		return err
	}
	httpReq.Header.Set("Accept", "application/json")
	if req.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if strings.TrimSpace(req.AccessToken) != "" {
		httpReq.Header.Set("Authorization", "Bearer "+strings.TrimSpace(req.AccessToken))
	}
	for key, value := range req.Header {
		if strings.TrimSpace(key) != "" {
			httpReq.Header.Set(key, value)
		}
	}

	response, err := doer.Do(httpReq)
	if err != nil {
		return core.NewProviderAPIError(provider, fmt.Sprintf("request failed: %v", err), 0)
	}
	defer response.Body.Close()

	payload, readErr := io.ReadAll(io.LimitReader(response.Body, maxAPIResponseBodyBytes+1))
	if readErr != nil {
		return core.NewProviderAPIError(provider, fmt.Sprintf("read response: %v", readErr), response.StatusCode)
	}
	if int64(len(payload)) > maxAPIResponseBodyBytes {
		return core.NewProviderAPIError(provider, fmt.Sprintf("response exceeds %d bytes", maxAPIResponseBodyBytes), response.StatusCode)
	}

	switch {
	case response.StatusCode == http.StatusUnauthorized || response.StatusCode == http.StatusForbidden:
		return core.NewInvalidTokenError(provider, "")
	case response.StatusCode == http.StatusTooManyRequests:
		return core.NewRateLimitedError(provider, RetryAfterHeader(response.Header))
	case response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices:
		return core.NewProviderAPIError(provider, fmt.Sprintf("unexpected status %d", response.StatusCode), response.StatusCode)
	}

	if out == nil || len(strings.TrimSpace(string(payload))) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("providers: decode response: %w", err)
	}
	return nil
}
