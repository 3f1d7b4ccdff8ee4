package foursquare

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
	ProviderID  = "foursquare"
	StatePrefix = "location"
	AuthURL     = "https://foursquare.com/oauth2/authenticate"
	TokenURL    = "https://foursquare.com/oauth2/access_token"
	APIBaseURL  = "https://api.foursquare.com/v2"

	// Every v2 request pins the API version date.
	apiVersion = "20230801"
)

type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	AuthURL      string
	TokenURL     string
	APIBaseURL   string
	HTTPClient   providers.HTTPDoer
}

func DefaultConfig() Config {
	return Config{
		AuthURL:    AuthURL,
		TokenURL:   TokenURL,
		APIBaseURL: APIBaseURL,
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

	api := apiClient{baseURL: cfg.APIBaseURL, doer: cfg.HTTPClient}
	return providers.New(providers.Spec{
		ID:          ProviderID,
		StatePrefix: StatePrefix,
		ListName:    "Foursquare",
		OAuth: providers.OAuth2Config{
			AuthURL:      cfg.AuthURL,
			TokenURL:     cfg.TokenURL,
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			// Foursquare access tokens never expire and cannot be refreshed.
			TokenTTL:    10 * 365 * 24 * time.Hour,
			RedirectURL: cfg.RedirectURL,
			HTTPClient:  cfg.HTTPClient,
		},
		Resources: []sync.Resource{
			{
				Name:         "checkins",
				ListName:     "Foursquare",
				CategoryName: "Places",
				Fetch:        api.checkins,
			},
		},
	}, deps)
}

type apiClient struct {
	baseURL string
	doer    providers.HTTPDoer
}

type checkinsResponse struct {
	Response struct {
		Checkins struct {
			Items []struct {
				ID        string `json:"id"`
				CreatedAt int64  `json:"createdAt"`
				Shout     string `json:"shout"`
				Venue     struct {
					Name     string `json:"name"`
					Location struct {
						City    string  `json:"city"`
						Country string  `json:"country"`
						Lat     float64 `json:"lat"`
						Lng     float64 `json:"lng"`
					} `json:"location"`
					Categories []struct {
						Name string `json:"name"`
					} `json:"categories"`
				} `json:"venue"`
			} `json:"items"`
		} `json:"checkins"`
	} `json:"response"`
}

func (c apiClient) checkins(ctx context.Context, token core.StoredToken, window sync.Window) ([]core.ItemCandidate, error) {
	query := url.Values{}
	query.Set("oauth_token", token.AccessToken)
	query.Set("v", apiVersion)
	query.Set("afterTimestamp", fmt.Sprintf("%d", window.Since.Unix()))
	query.Set("limit", "100")

	var decoded checkinsResponse
	err := providers.DoJSON(ctx, c.doer, ProviderID, providers.APIRequest{
		URL: c.baseURL + "/users/self/checkins?" + query.Encode(),
	}, &decoded)
	if err != nil {
		return nil, err
	}

	items := decoded.Response.Checkins.Items
	candidates := make([]core.ItemCandidate, 0, len(items))
	for _, checkin := range items {
		if checkin.ID == "" {
			continue
		}
		title := checkin.Venue.Name
		if title == "" {
			title = checkin.Shout
		}
		if title == "" {
			title = "Check-in"
		}
		venueCategory := ""
		if len(checkin.Venue.Categories) > 0 {
			venueCategory = checkin.Venue.Categories[0].Name
		}
		candidates = append(candidates, core.ItemCandidate{
			CategoryName: "Places",
			Title:        title,
			Attributes: map[string]any{
				"city":           checkin.Venue.Location.City,
				"country":        checkin.Venue.Location.Country,
				"lat":            checkin.Venue.Location.Lat,
				"lng":            checkin.Venue.Location.Lng,
				"venue_category": venueCategory,
				"checked_in_at":  time.Unix(checkin.CreatedAt, 0).UTC().Format(time.RFC3339),
			},
			External: core.ExternalRef{
				Provider: ProviderID,
				ID:       checkin.ID,
				Type:     "checkin",
			},
		})
	}
	return candidates, nil
}
