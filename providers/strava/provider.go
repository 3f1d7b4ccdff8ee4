package strava

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/goliatone/go-integrations/core"
	"github.com/goliatone/go-integrations/providers"
	"github.com/goliatone/go-integrations/sync"
)

const (
	ProviderID = "strava"
	AuthURL    = "https://www.strava.com/oauth/authorize"
	TokenURL   = "https://www.strava.com/oauth/token"
	APIBaseURL = "https://www.strava.com/api/v3"
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
		Scopes:     []string{"read", "activity:read_all"},
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
		ID:       ProviderID,
		ListName: "Strava",
		OAuth: providers.OAuth2Config{
			AuthURL:      cfg.AuthURL,
			TokenURL:     cfg.TokenURL,
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			// Strava rejects basic-auth token requests.
			ClientSecretInBody: true,
			RedirectURL:        cfg.RedirectURL,
			Scopes:             cfg.Scopes,
			HTTPClient:         cfg.HTTPClient,
		},
		Resources: []sync.Resource{
			{
				Name:         "activities",
				ListName:     "Strava",
				CategoryName: "Workouts",
				Fetch:        api.activities,
			},
		},
	}, deps)
}

type apiClient struct {
	baseURL string
	doer    providers.HTTPDoer
}

type activity struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Type        string    `json:"type"`
	Distance    float64   `json:"distance"`
	MovingTime  int       `json:"moving_time"`
	ElapsedTime int       `json:"elapsed_time"`
	StartDate   time.Time `json:"start_date"`
}

func (c apiClient) activities(ctx context.Context, token core.StoredToken, window sync.Window) ([]core.ItemCandidate, error) {
	query := url.Values{}
	query.Set("after", fmt.Sprintf("%d", window.Since.Unix()))
	query.Set("before", fmt.Sprintf("%d", window.Until.Unix()))
	query.Set("per_page", "100")

	var decoded []activity
	err := providers.DoJSON(ctx, c.doer, ProviderID, providers.APIRequest{
		URL:         c.baseURL + "/athlete/activities?" + query.Encode(),
		AccessToken: token.AccessToken,
	}, &decoded)
	if err != nil {
		return nil, err
	}

	candidates := make([]core.ItemCandidate, 0, len(decoded))
	for _, act := range decoded {
		if act.ID == 0 {
			continue
		}
		candidates = append(candidates, core.ItemCandidate{
			CategoryName: "Workouts",
			Title:        act.Name,
			Attributes: map[string]any{
				"type":         act.Type,
				"distance_m":   act.Distance,
				"moving_time":  act.MovingTime,
				"elapsed_time": act.ElapsedTime,
				"start_date":   act.StartDate.UTC().Format(time.RFC3339),
			},
			External: core.ExternalRef{
				Provider: ProviderID,
				ID:       fmt.Sprintf("%d", act.ID),
				Type:     "activity",
			},
		})
	}
	return candidates, nil
}
