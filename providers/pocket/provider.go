package pocket

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-integrations/core"
	"github.com/goliatone/go-integrations/providers"
	"github.com/goliatone/go-integrations/sync"
)

const (
	ProviderID = "pocket"
	APIBaseURL = "https://getpocket.com"

	// Pocket access tokens do not expire.
	accessTokenTTL = 10 * 365 * 24 * time.Hour
)

// Config carries the Pocket consumer key. Pocket does not implement standard
// OAuth2: the callback hands us a request token that we trade for the
// access token with a signed consumer-key POST.
type Config struct {
	ConsumerKey string
	BaseURL     string
	HTTPClient  providers.HTTPDoer
	Now         func() time.Time
}

func DefaultConfig() Config {
	return Config{BaseURL: APIBaseURL}
}

func New(cfg Config, deps providers.Deps) (core.Provider, error) {
	if strings.TrimSpace(cfg.ConsumerKey) == "" {
		return nil, fmt.Errorf("pocket: consumer key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = APIBaseURL
	}
	now := cfg.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}

	api := apiClient{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		consumerKey: cfg.ConsumerKey,
		doer:        cfg.HTTPClient,
	}
	return providers.New(providers.Spec{
		ID:       ProviderID,
		ListName: "Pocket",
		TokenFromCallback: func(ctx context.Context, payload core.CallbackPayload) (core.StoredToken, error) {
			requestToken := strings.TrimSpace(payload.Code)
			if requestToken == "" {
				return core.StoredToken{}, core.NewInvalidCallbackError(ProviderID, "callback carries no request token")
			}
			token, err := api.authorize(ctx, requestToken)
			if err != nil {
				return core.StoredToken{}, err
			}
			token.ExpiresAt = now().Add(accessTokenTTL).Unix()
			return token, nil
		},
		Resources: []sync.Resource{
			{
				Name:         "articles",
				ListName:     "Pocket",
				CategoryName: "Reading List",
				Fetch:        api.articles,
			},
		},
	}, deps)
}

type apiClient struct {
	baseURL     string
	consumerKey string
	doer        providers.HTTPDoer
}

func (c apiClient) authorize(ctx context.Context, requestToken string) (core.StoredToken, error) {
	var decoded struct {
		AccessToken string `json:"access_token"`
		Username    string `json:"username"`
	}
	err := providers.DoJSON(ctx, c.doer, ProviderID, providers.APIRequest{
		Method: http.MethodPost,
		URL:    c.baseURL + "/v3/oauth/authorize",
		Body: map[string]any{
			"consumer_key": c.consumerKey,
			"code":         requestToken,
		},
	}, &decoded)
	if err != nil {
		return core.StoredToken{}, err
	}
	if decoded.AccessToken == "" {
		return core.StoredToken{}, core.NewProviderAPIError(ProviderID, "authorize returned no access token", 0)
	}
	return core.StoredToken{
		AccessToken:    decoded.AccessToken,
		ProviderUserID: decoded.Username,
	}, nil
}

type retrieveResponse struct {
	List map[string]struct {
		ItemID        string `json:"item_id"`
		ResolvedTitle string `json:"resolved_title"`
		GivenTitle    string `json:"given_title"`
		ResolvedURL   string `json:"resolved_url"`
		Excerpt       string `json:"excerpt"`
		WordCount     string `json:"word_count"`
		TimeAdded     string `json:"time_added"`
		Favorite      string `json:"favorite"`
	} `json:"list"`
}

func (c apiClient) articles(ctx context.Context, token core.StoredToken, window sync.Window) ([]core.ItemCandidate, error) {
	var decoded retrieveResponse
	err := providers.DoJSON(ctx, c.doer, ProviderID, providers.APIRequest{
		Method: http.MethodPost,
		URL:    c.baseURL + "/v3/get",
		Body: map[string]any{
			"consumer_key": c.consumerKey,
			"access_token": token.AccessToken,
			"since":        window.Since.Unix(),
			"detailType":   "simple",
			"state":        "all",
		},
	}, &decoded)
	if err != nil {
		return nil, err
	}

	candidates := make([]core.ItemCandidate, 0, len(decoded.List))
	for _, item := range decoded.List {
		if item.ItemID == "" {
			continue
		}
		title := item.ResolvedTitle
		if title == "" {
			title = item.GivenTitle
		}
		if title == "" {
			title = item.ResolvedURL
		}
		wordCount, _ := strconv.Atoi(item.WordCount)
		addedAt := ""
		if secs, err := strconv.ParseInt(item.TimeAdded, 10, 64); err == nil {
			addedAt = time.Unix(secs, 0).UTC().Format(time.RFC3339)
		}
		candidates = append(candidates, core.ItemCandidate{
			CategoryName: "Reading List",
			Title:        title,
			Attributes: map[string]any{
				"url":        item.ResolvedURL,
				"excerpt":    item.Excerpt,
				"word_count": wordCount,
				"added_at":   addedAt,
				"favorite":   item.Favorite == "1",
			},
			External: core.ExternalRef{
				Provider: ProviderID,
				ID:       item.ItemID,
				Type:     "article",
			},
		})
	}
	return candidates, nil
}
