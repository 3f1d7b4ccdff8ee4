package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-integrations/core"
)

const (
	defaultTokenRequestTimeout = 30 * time.Second
	maxTokenResponseBodyBytes  = 1 << 20 // 1 MiB
)

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

type OAuth2Config struct {
	Provider            string
	AuthURL             string
	TokenURL            string
	ClientID            string
	ClientSecret        string
	ClientSecretInBody  bool
	RedirectURL         string
	Scopes              []string
	ExtraAuthParams     map[string]string
	TokenTTL            time.Duration
	TokenRequestTimeout time.Duration
	Now                 func() time.Time
	HTTPClient          HTTPDoer
}

// OAuth2Client drives the authorization-code flow for one provider and maps
// token endpoint failures onto the integration error classes.
type OAuth2Client struct {
	cfg        OAuth2Config
	httpClient HTTPDoer
}

type tokenEndpointPayload struct {
	AccessToken      string
	TokenType        string
	RefreshToken     string
	Scope            string
	ExpiresIn        int64
	ErrorCode        string
	ErrorDescription string
}

func NewOAuth2Client(cfg OAuth2Config) (*OAuth2Client, error) {
	cfg.Provider = strings.TrimSpace(strings.ToLower(cfg.Provider))
	if cfg.Provider == "" {
		return nil, core.NewConfigurationError("", "provider id is required")
	}
	if strings.TrimSpace(cfg.AuthURL) == "" {
		return nil, core.NewConfigurationError(cfg.Provider, "auth url is required")
	}
	if strings.TrimSpace(cfg.TokenURL) == "" {
		return nil, core.NewConfigurationError(cfg.Provider, "token url is required")
	}
	if strings.TrimSpace(cfg.ClientID) == "" {
		return nil, core.NewConfigurationError(cfg.Provider, "client id is required")
	}
	if strings.TrimSpace(cfg.ClientSecret) == "" {
		return nil, core.NewConfigurationError(cfg.Provider, "client secret is required")
	}

	cfg.AuthURL = strings.TrimSpace(cfg.AuthURL)
	cfg.TokenURL = strings.TrimSpace(cfg.TokenURL)
	cfg.ClientID = strings.TrimSpace(cfg.ClientID)
	cfg.ClientSecret = strings.TrimSpace(cfg.ClientSecret)
	cfg.RedirectURL = strings.TrimSpace(cfg.RedirectURL)
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = time.Hour
	}
	if cfg.TokenRequestTimeout <= 0 {
		cfg.TokenRequestTimeout = defaultTokenRequestTimeout
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time {
			return time.Now().UTC()
		}
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.TokenRequestTimeout}
	}

	return &OAuth2Client{
		cfg:        cfg,
		httpClient: httpClient,
	}, nil
}

func (c *OAuth2Client) Provider() string {
	if c == nil {
		return ""
	}
	return c.cfg.Provider
}

// AuthorizeURL builds the consent redirect for the given state.
func (c *OAuth2Client) AuthorizeURL(state string) string {
	if c == nil {
		return ""
	}
	values := url.Values{}
	values.Set("response_type", "code")
	values.Set("client_id", c.cfg.ClientID)
	if c.cfg.RedirectURL != "" {
		values.Set("redirect_uri", c.cfg.RedirectURL)
	}
	if len(c.cfg.Scopes) > 0 {
		values.Set("scope", strings.Join(c.cfg.Scopes, " "))
	}
	values.Set("state", state)
	for key, value := range c.cfg.ExtraAuthParams {
		if strings.TrimSpace(key) != "" {
			values.Set(key, value)
		}
	}

	authURL := c.cfg.AuthURL
	if strings.Contains(authURL, "?") {
		return authURL + "&" + values.Encode()
	}
	return authURL + "?" + values.Encode()
}

// Exchange trades an authorization code for a stored token.
func (c *OAuth2Client) Exchange(ctx context.Context, code string) (core.StoredToken, error) {
	if c == nil {
		return core.StoredToken{}, fmt.Errorf("providers: oauth2 client is nil")
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return core.StoredToken{}, core.NewInvalidCallbackError(c.cfg.Provider, "authorization code is required")
	}

	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	if c.cfg.RedirectURL != "" {
		form.Set("redirect_uri", c.cfg.RedirectURL)
	}

	payload, err := c.fetchToken(ctx, form, false)
	if err != nil {
		return core.StoredToken{}, err
	}
	return c.tokenFromPayload(payload), nil
}

// Refresh implements core.TokenRefresher. The caller owns refresh-token
// carry-over and persistence.
func (c *OAuth2Client) Refresh(ctx context.Context, token core.StoredToken) (core.StoredToken, error) {
	if c == nil {
		return core.StoredToken{}, fmt.Errorf("providers: oauth2 client is nil")
	}
	refreshToken := strings.TrimSpace(token.RefreshToken)
	if refreshToken == "" {
		return core.StoredToken{}, core.NewInvalidTokenError(c.cfg.Provider, token.UserID)
	}

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)

	payload, err := c.fetchToken(ctx, form, true)
	if err != nil {
		return core.StoredToken{}, err
	}
	refreshed := c.tokenFromPayload(payload)
	refreshed.UserID = token.UserID
	refreshed.ProviderUserID = token.ProviderUserID
	return refreshed, nil
}

func (c *OAuth2Client) tokenFromPayload(payload tokenEndpointPayload) core.StoredToken {
	now := c.cfg.Now().UTC()
	ttl := c.cfg.TokenTTL
	if payload.ExpiresIn > 0 {
		ttl = time.Duration(payload.ExpiresIn) * time.Second
	}
	return core.StoredToken{
		Provider:     c.cfg.Provider,
		AccessToken:  strings.TrimSpace(payload.AccessToken),
		RefreshToken: strings.TrimSpace(payload.RefreshToken),
		ExpiresAt:    now.Add(ttl).Unix(),
		Scope:        strings.Join(parseScopeList(payload.Scope), " "),
		UpdatedAt:    now,
	}
}

func (c *OAuth2Client) fetchToken(ctx context.Context, form url.Values, refreshing bool) (tokenEndpointPayload, error) {
	if c.httpClient == nil {
		return tokenEndpointPayload{}, fmt.Errorf("providers: oauth2 http client is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	values := url.Values{}
	for key, items := range form {
		if strings.TrimSpace(key) == "" {
			continue
		}
		for _, item := range items {
			values.Add(key, strings.TrimSpace(item))
		}
	}
	values.Set("client_id", c.cfg.ClientID)
	if c.cfg.ClientSecretInBody && c.cfg.ClientSecret != "" {
		values.Set("client_secret", c.cfg.ClientSecret)
	}

	requestCtx, cancel := context.WithTimeout(ctx, c.cfg.TokenRequestTimeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(
		requestCtx,
		http.MethodPost,
		c.cfg.TokenURL,
		strings.NewReader(values.Encode()),
	)
	if err != nil {
		return tokenEndpointPayload{}, err
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("Accept", "application/json")
	if !c.cfg.ClientSecretInBody && c.cfg.ClientSecret != "" {
		httpReq.SetBasicAuth(c.cfg.ClientID, c.cfg.ClientSecret)
	}

	response, err := c.httpClient.Do(httpReq)
	if err != nil {
		return tokenEndpointPayload{}, core.NewProviderAPIError(c.cfg.Provider, fmt.Sprintf("token request failed: %v", err), 0)
	}
	defer response.Body.Close()

	body, readErr := io.ReadAll(io.LimitReader(response.Body, maxTokenResponseBodyBytes+1))
	if readErr != nil {
		return tokenEndpointPayload{}, core.NewProviderAPIError(c.cfg.Provider, fmt.Sprintf("read token response: %v", readErr), response.StatusCode)
	}
	if int64(len(body)) > maxTokenResponseBodyBytes {
		return tokenEndpointPayload{}, core.NewProviderAPIError(c.cfg.Provider, fmt.Sprintf("token response exceeds %d bytes", maxTokenResponseBodyBytes), response.StatusCode)
	}

	payload, parseErr := parseTokenPayload(body, response.Header.Get("Content-Type"))
	if parseErr != nil && response.StatusCode >= http.StatusOK && response.StatusCode < http.StatusMultipleChoices {
		return tokenEndpointPayload{}, core.NewProviderAPIError(c.cfg.Provider, fmt.Sprintf("decode token response: %v", parseErr), response.StatusCode)
	}

	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		return tokenEndpointPayload{}, c.classifyTokenFailure(response, payload, refreshing)
	}
	if payload.ErrorCode != "" {
		message := describeTokenError(payload)
		if refreshing {
			return tokenEndpointPayload{}, core.NewRefreshRejectedError(c.cfg.Provider, message)
		}
		return tokenEndpointPayload{}, core.NewOAuthDeniedError(c.cfg.Provider, message)
	}
	if strings.TrimSpace(payload.AccessToken) == "" {
		return tokenEndpointPayload{}, core.NewProviderAPIError(c.cfg.Provider, "token endpoint response missing access token", response.StatusCode)
	}
	return payload, nil
}

// classifyTokenFailure maps token endpoint rejections onto the error
// taxonomy: 400 and 401 mean the grant itself is bad, 429 is a rate limit
// with an optional Retry-After hint, everything else is an upstream fault.
func (c *OAuth2Client) classifyTokenFailure(response *http.Response, payload tokenEndpointPayload, refreshing bool) error {
	message := fmt.Sprintf("token endpoint error (%d): %s", response.StatusCode, describeTokenError(payload))
	switch response.StatusCode {
	case http.StatusBadRequest, http.StatusUnauthorized:
		if refreshing {
			return core.NewRefreshRejectedError(c.cfg.Provider, message)
		}
		return core.NewOAuthDeniedError(c.cfg.Provider, message)
	case http.StatusTooManyRequests:
		return core.NewRateLimitedError(c.cfg.Provider, RetryAfterHeader(response.Header))
	default:
		return core.NewProviderAPIError(c.cfg.Provider, message, response.StatusCode)
	}
}

// RetryAfterHeader parses a Retry-After value in seconds; zero when absent
// or unparseable.
func RetryAfterHeader(header http.Header) time.Duration {
	raw := strings.TrimSpace(header.Get("Retry-After"))
	if raw == "" {
		return 0
	}
	seconds, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || seconds <= 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}

func describeTokenError(payload tokenEndpointPayload) string {
	if strings.TrimSpace(payload.ErrorDescription) != "" {
		return strings.TrimSpace(payload.ErrorDescription)
	}
	if strings.TrimSpace(payload.ErrorCode) != "" {
		return strings.TrimSpace(payload.ErrorCode)
	}
	return "unknown error"
}

func parseTokenPayload(body []byte, contentType string) (tokenEndpointPayload, error) {
	contentType = strings.ToLower(strings.TrimSpace(contentType))
	if strings.Contains(contentType, "json") {
		return parseTokenPayloadJSON(body)
	}
	if strings.Contains(contentType, "x-www-form-urlencoded") || strings.Contains(contentType, "text/plain") {
		return parseTokenPayloadForm(body)
	}
	if payload, err := parseTokenPayloadJSON(body); err == nil {
		return payload, nil
	}
	return parseTokenPayloadForm(body)
}

func parseTokenPayloadJSON(body []byte) (tokenEndpointPayload, error) {
	if len(strings.TrimSpace(string(body))) == 0 {
		return tokenEndpointPayload{}, fmt.Errorf("empty payload")
	}
	var decoded map[string]any
	if err := json.Unmarshal(body, &decoded); err != nil {
		return tokenEndpointPayload{}, err
	}
	return tokenEndpointPayload{
		AccessToken:      readAnyString(decoded["access_token"]),
		TokenType:        readAnyString(decoded["token_type"]),
		RefreshToken:     readAnyString(decoded["refresh_token"]),
		Scope:            readAnyString(decoded["scope"]),
		ExpiresIn:        readAnyInt64(decoded["expires_in"]),
		ErrorCode:        readAnyString(decoded["error"]),
		ErrorDescription: readAnyString(decoded["error_description"]),
	}, nil
}

func parseTokenPayloadForm(body []byte) (tokenEndpointPayload, error) {
	if len(strings.TrimSpace(string(body))) == 0 {
		return tokenEndpointPayload{}, fmt.Errorf("empty payload")
	}
	values, err := url.ParseQuery(string(body))
	if err != nil {
		return tokenEndpointPayload{}, err
	}
	expiresIn, _ := strconv.ParseInt(strings.TrimSpace(values.Get("expires_in")), 10, 64)
	return tokenEndpointPayload{
		AccessToken:      strings.TrimSpace(values.Get("access_token")),
		TokenType:        strings.TrimSpace(values.Get("token_type")),
		RefreshToken:     strings.TrimSpace(values.Get("refresh_token")),
		Scope:            strings.TrimSpace(values.Get("scope")),
		ExpiresIn:        expiresIn,
		ErrorCode:        strings.TrimSpace(values.Get("error")),
		ErrorDescription: strings.TrimSpace(values.Get("error_description")),
	}, nil
}

func parseScopeList(value string) []string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return []string{}
	}
	return strings.Fields(strings.ReplaceAll(trimmed, ",", " "))
}

func readAnyString(value any) string {
	switch typed := value.(type) {
	case string:
		return strings.TrimSpace(typed)
	case json.Number:
		return strings.TrimSpace(typed.String())
	case fmt.Stringer:
		return strings.TrimSpace(typed.String())
	default:
		if value == nil {
			return ""
		}
		return strings.TrimSpace(fmt.Sprint(value))
	}
}

func readAnyInt64(value any) int64 {
	switch typed := value.(type) {
	case int:
		return int64(typed)
	case int64:
		return typed
	case float64:
		return int64(typed)
	case json.Number:
		parsed, err := typed.Int64()
		if err == nil {
			return parsed
		}
		floatParsed, floatErr := typed.Float64()
		if floatErr == nil {
			return int64(floatParsed)
		}
	case string:
		parsed, err := strconv.ParseInt(strings.TrimSpace(typed), 10, 64)
		if err == nil {
			return parsed
		}
	}
	return 0
}

var _ core.TokenRefresher = (*OAuth2Client)(nil)
