package providers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-integrations/core"
)

type stubDoer struct {
	requests  []*http.Request
	bodies    []url.Values
	responses []stubResponse
	err       error
}

type stubResponse struct {
	status      int
	contentType string
	body        string
	header      http.Header
}

func (d *stubDoer) Do(req *http.Request) (*http.Response, error) {
	d.requests = append(d.requests, req)
	if req.Body != nil {
		raw, _ := io.ReadAll(req.Body)
		values, _ := url.ParseQuery(string(raw))
		d.bodies = append(d.bodies, values)
	} else {
		d.bodies = append(d.bodies, url.Values{})
	}
	if d.err != nil {
		return nil, d.err
	}

	next := d.responses[0]
	if len(d.responses) > 1 {
		d.responses = d.responses[1:]
	}
	header := http.Header{}
	if next.header != nil {
		header = next.header.Clone()
	}
	if next.contentType != "" {
		header.Set("Content-Type", next.contentType)
	}
	return &http.Response{
		StatusCode: next.status,
		Header:     header,
		Body:       io.NopCloser(strings.NewReader(next.body)),
	}, nil
}

func newTestClient(t *testing.T, doer HTTPDoer, mutate func(*OAuth2Config)) *OAuth2Client {
	t.Helper()
	cfg := OAuth2Config{
		Provider:     "spotify",
		AuthURL:      "https://auth.example.com/authorize",
		TokenURL:     "https://auth.example.com/token",
		ClientID:     "client_1",
		ClientSecret: "secret_1",
		RedirectURL:  "https://app.example.com/callback",
		Scopes:       []string{"read", "history"},
		Now:          func() time.Time { return time.Unix(1_700_000_000, 0).UTC() },
		HTTPClient:   doer,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	client, err := NewOAuth2Client(cfg)
	if err != nil {
		t.Fatalf("build client: %v", err)
	}
	return client
}

func textCodeOf(t *testing.T, err error) string {
	t.Helper()
	var rich *goerrors.Error
	if !errors.As(err, &rich) {
		t.Fatalf("expected rich error, got %T: %v", err, err)
	}
	return rich.TextCode
}

func TestNewOAuth2ClientValidation(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*OAuth2Config)
	}{
		{"missing provider", func(c *OAuth2Config) { c.Provider = "" }},
		{"missing auth url", func(c *OAuth2Config) { c.AuthURL = "" }},
		{"missing token url", func(c *OAuth2Config) { c.TokenURL = "" }},
		{"missing client id", func(c *OAuth2Config) { c.ClientID = "" }},
		{"missing client secret", func(c *OAuth2Config) { c.ClientSecret = "" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := OAuth2Config{
				Provider:     "spotify",
				AuthURL:      "https://auth.example.com/authorize",
				TokenURL:     "https://auth.example.com/token",
				ClientID:     "client_1",
				ClientSecret: "secret_1",
			}
			tc.mutate(&cfg)
			_, err := NewOAuth2Client(cfg)
			if err == nil {
				t.Fatalf("expected validation error")
			}
			if code := textCodeOf(t, err); code != core.IntegrationErrorConfiguration {
				t.Fatalf("expected configuration error class, got %s", code)
			}
		})
	}
}

func TestAuthorizeURL(t *testing.T) {
	client := newTestClient(t, &stubDoer{}, func(c *OAuth2Config) {
		c.ExtraAuthParams = map[string]string{"access_type": "offline"}
	})

	raw := client.AuthorizeURL("spotify-user_1-1700000000000")
	parsed, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse authorize url: %v", err)
	}
	query := parsed.Query()
	if query.Get("response_type") != "code" {
		t.Fatalf("expected code response type, got %q", query.Get("response_type"))
	}
	if query.Get("client_id") != "client_1" {
		t.Fatalf("expected client id, got %q", query.Get("client_id"))
	}
	if query.Get("state") != "spotify-user_1-1700000000000" {
		t.Fatalf("expected state round trip, got %q", query.Get("state"))
	}
	if query.Get("scope") != "read history" {
		t.Fatalf("expected joined scopes, got %q", query.Get("scope"))
	}
	if query.Get("access_type") != "offline" {
		t.Fatalf("expected extra auth param, got %q", query.Get("access_type"))
	}
}

func TestExchangeSuccess(t *testing.T) {
	doer := &stubDoer{responses: []stubResponse{{
		status:      http.StatusOK,
		contentType: "application/json",
		body:        `{"access_token":"at_1","refresh_token":"rt_1","expires_in":3600,"scope":"read history"}`,
	}}}
	client := newTestClient(t, doer, nil)

	token, err := client.Exchange(context.Background(), "code_1")
	if err != nil {
		t.Fatalf("exchange code: %v", err)
	}
	if token.AccessToken != "at_1" || token.RefreshToken != "rt_1" {
		t.Fatalf("unexpected token %+v", token)
	}
	if token.ExpiresAt != 1_700_000_000+3600 {
		t.Fatalf("expected expiry from expires_in, got %d", token.ExpiresAt)
	}
	if token.Provider != "spotify" {
		t.Fatalf("expected provider stamp, got %q", token.Provider)
	}

	request := doer.requests[0]
	if request.Method != http.MethodPost {
		t.Fatalf("expected POST, got %s", request.Method)
	}
	if user, pass, ok := request.BasicAuth(); !ok || user != "client_1" || pass != "secret_1" {
		t.Fatalf("expected basic auth credentials")
	}
	form := doer.bodies[0]
	if form.Get("grant_type") != "authorization_code" || form.Get("code") != "code_1" {
		t.Fatalf("unexpected form %v", form)
	}
	if form.Get("client_secret") != "" {
		t.Fatalf("secret must not leak into the body with basic auth")
	}
}

func TestExchangeSecretInBody(t *testing.T) {
	doer := &stubDoer{responses: []stubResponse{{
		status:      http.StatusOK,
		contentType: "application/json",
		body:        `{"access_token":"at_1"}`,
	}}}
	client := newTestClient(t, doer, func(c *OAuth2Config) {
		c.ClientSecretInBody = true
	})

	if _, err := client.Exchange(context.Background(), "code_1"); err != nil {
		t.Fatalf("exchange code: %v", err)
	}
	if _, _, ok := doer.requests[0].BasicAuth(); ok {
		t.Fatalf("expected no basic auth header")
	}
	if doer.bodies[0].Get("client_secret") != "secret_1" {
		t.Fatalf("expected secret in form body")
	}
}

func TestExchangeRequiresCode(t *testing.T) {
	client := newTestClient(t, &stubDoer{}, nil)
	_, err := client.Exchange(context.Background(), "  ")
	if err == nil {
		t.Fatalf("expected error")
	}
	if code := textCodeOf(t, err); code != core.IntegrationErrorInvalidCallback {
		t.Fatalf("expected invalid callback, got %s", code)
	}
}

func TestExchangeDeniedClassification(t *testing.T) {
	doer := &stubDoer{responses: []stubResponse{{
		status:      http.StatusBadRequest,
		contentType: "application/json",
		body:        `{"error":"invalid_grant","error_description":"code expired"}`,
	}}}
	client := newTestClient(t, doer, nil)

	_, err := client.Exchange(context.Background(), "code_1")
	if code := textCodeOf(t, err); code != core.IntegrationErrorOAuthDenied {
		t.Fatalf("expected oauth denied, got %s", code)
	}
	if !strings.Contains(err.Error(), "code expired") {
		t.Fatalf("expected upstream description, got %v", err)
	}
}

func TestExchangeInBandError(t *testing.T) {
	doer := &stubDoer{responses: []stubResponse{{
		status:      http.StatusOK,
		contentType: "application/json",
		body:        `{"error":"access_denied"}`,
	}}}
	client := newTestClient(t, doer, nil)

	_, err := client.Exchange(context.Background(), "code_1")
	if code := textCodeOf(t, err); code != core.IntegrationErrorOAuthDenied {
		t.Fatalf("expected oauth denied, got %s", code)
	}
}

func TestExchangeRateLimited(t *testing.T) {
	header := http.Header{}
	header.Set("Retry-After", "120")
	doer := &stubDoer{responses: []stubResponse{{
		status:      http.StatusTooManyRequests,
		contentType: "application/json",
		body:        `{}`,
		header:      header,
	}}}
	client := newTestClient(t, doer, nil)

	_, err := client.Exchange(context.Background(), "code_1")
	if !core.IsRateLimited(err) {
		t.Fatalf("expected rate limited, got %v", err)
	}
	delay, ok := core.RetryAfter(err)
	if !ok || delay != 2*time.Minute {
		t.Fatalf("expected 2m retry hint, got %v %v", delay, ok)
	}
}

func TestExchangeUpstreamFault(t *testing.T) {
	doer := &stubDoer{responses: []stubResponse{{
		status:      http.StatusBadGateway,
		contentType: "text/html",
		body:        "<html>bad gateway</html>",
	}}}
	client := newTestClient(t, doer, nil)

	_, err := client.Exchange(context.Background(), "code_1")
	if code := textCodeOf(t, err); code != core.IntegrationErrorProviderAPI {
		t.Fatalf("expected provider api, got %s", code)
	}
}

func TestExchangeMissingAccessToken(t *testing.T) {
	doer := &stubDoer{responses: []stubResponse{{
		status:      http.StatusOK,
		contentType: "application/json",
		body:        `{"token_type":"bearer"}`,
	}}}
	client := newTestClient(t, doer, nil)

	_, err := client.Exchange(context.Background(), "code_1")
	if code := textCodeOf(t, err); code != core.IntegrationErrorProviderAPI {
		t.Fatalf("expected provider api, got %s", code)
	}
}

func TestExchangeParsesFormPayload(t *testing.T) {
	doer := &stubDoer{responses: []stubResponse{{
		status:      http.StatusOK,
		contentType: "application/x-www-form-urlencoded",
		body:        "access_token=at_form&expires_in=7200",
	}}}
	client := newTestClient(t, doer, nil)

	token, err := client.Exchange(context.Background(), "code_1")
	if err != nil {
		t.Fatalf("exchange code: %v", err)
	}
	if token.AccessToken != "at_form" {
		t.Fatalf("expected form-decoded token, got %+v", token)
	}
	if token.ExpiresAt != 1_700_000_000+7200 {
		t.Fatalf("expected expiry from form payload, got %d", token.ExpiresAt)
	}
}

func TestRefreshSuccessPreservesIdentity(t *testing.T) {
	doer := &stubDoer{responses: []stubResponse{{
		status:      http.StatusOK,
		contentType: "application/json",
		body:        `{"access_token":"at_2","expires_in":3600}`,
	}}}
	client := newTestClient(t, doer, nil)

	refreshed, err := client.Refresh(context.Background(), core.StoredToken{
		UserID:         "user_1",
		ProviderUserID: "spotify_user_1",
		RefreshToken:   "rt_1",
	})
	if err != nil {
		t.Fatalf("refresh token: %v", err)
	}
	if refreshed.AccessToken != "at_2" {
		t.Fatalf("expected refreshed access token, got %+v", refreshed)
	}
	if refreshed.UserID != "user_1" || refreshed.ProviderUserID != "spotify_user_1" {
		t.Fatalf("expected identity carry-over, got %+v", refreshed)
	}
	form := doer.bodies[0]
	if form.Get("grant_type") != "refresh_token" || form.Get("refresh_token") != "rt_1" {
		t.Fatalf("unexpected form %v", form)
	}
}

func TestRefreshWithoutRefreshToken(t *testing.T) {
	client := newTestClient(t, &stubDoer{}, nil)
	_, err := client.Refresh(context.Background(), core.StoredToken{UserID: "user_1"})
	if !core.IsInvalidToken(err) {
		t.Fatalf("expected invalid token, got %v", err)
	}
}

func TestRefreshRejectedClassification(t *testing.T) {
	doer := &stubDoer{responses: []stubResponse{{
		status:      http.StatusUnauthorized,
		contentType: "application/json",
		body:        `{"error":"invalid_grant"}`,
	}}}
	client := newTestClient(t, doer, nil)

	_, err := client.Refresh(context.Background(), core.StoredToken{RefreshToken: "rt_1"})
	if !core.IsRefreshRejected(err) {
		t.Fatalf("expected refresh rejected, got %v", err)
	}
}

func TestFetchTokenTransportFailure(t *testing.T) {
	doer := &stubDoer{err: errors.New("connection reset")}
	client := newTestClient(t, doer, nil)

	_, err := client.Exchange(context.Background(), "code_1")
	if code := textCodeOf(t, err); code != core.IntegrationErrorProviderAPI {
		t.Fatalf("expected provider api, got %s", code)
	}
}

func TestRetryAfterHeader(t *testing.T) {
	header := http.Header{}
	if RetryAfterHeader(header) != 0 {
		t.Fatalf("expected zero without header")
	}
	header.Set("Retry-After", "30")
	if RetryAfterHeader(header) != 30*time.Second {
		t.Fatalf("expected 30s")
	}
	header.Set("Retry-After", "soon")
	if RetryAfterHeader(header) != 0 {
		t.Fatalf("expected zero for unparseable value")
	}
}
