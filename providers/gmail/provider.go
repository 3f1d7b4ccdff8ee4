package gmail

import (
	"context"
	"fmt"
	"net/url"

	"github.com/goliatone/go-integrations/core"
	"github.com/goliatone/go-integrations/providers"
	"github.com/goliatone/go-integrations/sync"
)

const (
	ProviderID  = "gmail"
	StatePrefix = "email"
	AuthURL     = "https://accounts.google.com/o/oauth2/v2/auth"
	TokenURL    = "https://oauth2.googleapis.com/token"
	APIBaseURL  = "https://gmail.googleapis.com/gmail/v1"

	messagePageSize = 50
)

type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	AuthURL      string
	TokenURL     string
	APIBaseURL   string
	Scopes       []string
	HTTPClient   providers.HTTPDoer
}

func DefaultConfig() Config {
	return Config{
		AuthURL:    AuthURL,
		TokenURL:   TokenURL,
		APIBaseURL: APIBaseURL,
		Scopes:     []string{"https://www.googleapis.com/auth/gmail.readonly"},
	}
}

func New(cfg Config, deps providers.Deps) (core.Provider, error) {
	defaults := DefaultConfig()
	if cfg.AuthURL == "" {
		cfg.AuthURL = defaults.AuthURL
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = defaults.TokenURL
	}
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = defaults.APIBaseURL
	}
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = defaults.Scopes
	}

	api := apiClient{baseURL: cfg.APIBaseURL, doer: cfg.HTTPClient}
	return providers.New(providers.Spec{
		ID:          ProviderID,
		StatePrefix: StatePrefix,
		ListName:    "Gmail",
		OAuth: providers.OAuth2Config{
			AuthURL:      cfg.AuthURL,
			TokenURL:     cfg.TokenURL,
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       cfg.Scopes,
			ExtraAuthParams: map[string]string{
				// Google only issues a refresh token with offline access
				// and an explicit consent prompt.
				"access_type": "offline",
				"prompt":      "consent",
			},
			HTTPClient: cfg.HTTPClient,
		},
		Resources: []sync.Resource{
			{
				Name:         "messages",
				ListName:     "Gmail",
				CategoryName: "Messages",
				Fetch:        api.messages,
			},
		},
	}, deps)
}

type apiClient struct {
	baseURL string
	doer    providers.HTTPDoer
}

type messageListResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

type messageResponse struct {
	ID           string `json:"id"`
	ThreadID     string `json:"threadId"`
	Snippet      string `json:"snippet"`
	InternalDate string `json:"internalDate"`
	Payload      struct {
		Headers []struct {
			Name  string `json:"name"`
			Value string `json:"value"`
		} `json:"headers"`
	} `json:"payload"`
}

func (c apiClient) messages(ctx context.Context, token core.StoredToken, window sync.Window) ([]core.ItemCandidate, error) {
	query := url.Values{}
	query.Set("maxResults", fmt.Sprintf("%d", messagePageSize))
	query.Set("q", fmt.Sprintf("after:%d before:%d", window.Since.Unix(), window.Until.Unix()))

	var listing messageListResponse
	err := providers.DoJSON(ctx, c.doer, ProviderID, providers.APIRequest{
		URL:         c.baseURL + "/users/me/messages?" + query.Encode(),
		AccessToken: token.AccessToken,
	}, &listing)
	if err != nil {
		return nil, err
	}

	candidates := make([]core.ItemCandidate, 0, len(listing.Messages))
	for _, ref := range listing.Messages {
		if ref.ID == "" {
			continue
		}
		var message messageResponse
		err := providers.DoJSON(ctx, c.doer, ProviderID, providers.APIRequest{
			URL:         c.baseURL + "/users/me/messages/" + ref.ID + "?format=metadata&metadataHeaders=Subject&metadataHeaders=From",
			AccessToken: token.AccessToken,
		}, &message)
		if err != nil {
			if core.IsSystemic(err) {
				return nil, err
			}
			continue
		}

		subject, from := "", ""
		for _, header := range message.Payload.Headers {
			switch header.Name {
			case "Subject":
				subject = header.Value
			case "From":
				from = header.Value
			}
		}
		if subject == "" {
			subject = "(no subject)"
		}
		candidates = append(candidates, core.ItemCandidate{
			CategoryName: "Messages",
			Title:        subject,
			Attributes: map[string]any{
				"from":          from,
				"snippet":       message.Snippet,
				"thread_id":     message.ThreadID,
				"internal_date": message.InternalDate,
			},
			External: core.ExternalRef{
				Provider: ProviderID,
				ID:       message.ID,
				Type:     "message",
			},
		})
	}
	return candidates, nil
}
