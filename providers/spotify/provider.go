package spotify

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
	ProviderID  = "spotify"
	StatePrefix = "spotify"
	AuthURL     = "https://accounts.spotify.com/authorize"
	TokenURL    = "https://accounts.spotify.com/api/token"
	APIBaseURL  = "https://api.spotify.com/v1"
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
		Scopes:     []string{"user-read-recently-played", "user-top-read"},
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
		ListName:    "Spotify",
		OAuth: providers.OAuth2Config{
			AuthURL:      cfg.AuthURL,
			TokenURL:     cfg.TokenURL,
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       cfg.Scopes,
			HTTPClient:   cfg.HTTPClient,
		},
		Resources: []sync.Resource{
			{
				Name:         "recently_played",
				ListName:     "Spotify",
				CategoryName: "Recently Played",
				Fetch:        api.recentlyPlayed,
			},
			{
				Name:         "top_artists",
				ListName:     "Spotify",
				CategoryName: "Top Artists",
				Fetch:        api.topArtists,
			},
		},
	}, deps)
}

type apiClient struct {
	baseURL string
	doer    providers.HTTPDoer
}

type recentlyPlayedResponse struct {
	Items []struct {
		PlayedAt time.Time `json:"played_at"`
		Track    struct {
			ID      string `json:"id"`
			Name    string `json:"name"`
			URI     string `json:"uri"`
			Album   struct{ Name string `json:"name"` } `json:"album"`
			Artists []struct {
				Name string `json:"name"`
			} `json:"artists"`
			DurationMS int `json:"duration_ms"`
		} `json:"track"`
	} `json:"items"`
}

func (c apiClient) recentlyPlayed(ctx context.Context, token core.StoredToken, window sync.Window) ([]core.ItemCandidate, error) {
	query := url.Values{}
	query.Set("limit", "50")
	query.Set("after", fmt.Sprintf("%d", window.Since.UnixMilli()))

	var decoded recentlyPlayedResponse
	err := providers.DoJSON(ctx, c.doer, ProviderID, providers.APIRequest{
		URL:         c.baseURL + "/me/player/recently-played?" + query.Encode(),
		AccessToken: token.AccessToken,
	}, &decoded)
	if err != nil {
		return nil, err
	}

	candidates := make([]core.ItemCandidate, 0, len(decoded.Items))
	for _, item := range decoded.Items {
		if item.Track.ID == "" {
			continue
		}
		artists := make([]string, 0, len(item.Track.Artists))
		for _, artist := range item.Track.Artists {
			artists = append(artists, artist.Name)
		}
		candidates = append(candidates, core.ItemCandidate{
			CategoryName: "Recently Played",
			Title:        item.Track.Name,
			Attributes: map[string]any{
				"artists":     artists,
				"album":       item.Track.Album.Name,
				"played_at":   item.PlayedAt.UTC().Format(time.RFC3339),
				"duration_ms": item.Track.DurationMS,
				"uri":         item.Track.URI,
			},
			External: core.ExternalRef{
				Provider: ProviderID,
				ID:       item.Track.ID,
				Type:     "track",
			},
		})
	}
	return candidates, nil
}

type topArtistsResponse struct {
	Items []struct {
		ID         string   `json:"id"`
		Name       string   `json:"name"`
		Genres     []string `json:"genres"`
		Popularity int      `json:"popularity"`
		URI        string   `json:"uri"`
	} `json:"items"`
}

func (c apiClient) topArtists(ctx context.Context, token core.StoredToken, _ sync.Window) ([]core.ItemCandidate, error) {
	var decoded topArtistsResponse
	err := providers.DoJSON(ctx, c.doer, ProviderID, providers.APIRequest{
		URL:         c.baseURL + "/me/top/artists?limit=20&time_range=medium_term",
		AccessToken: token.AccessToken,
	}, &decoded)
	if err != nil {
		return nil, err
	}

	candidates := make([]core.ItemCandidate, 0, len(decoded.Items))
	for _, artist := range decoded.Items {
		if artist.ID == "" {
			continue
		}
		candidates = append(candidates, core.ItemCandidate{
			CategoryName: "Top Artists",
			Title:        artist.Name,
			Attributes: map[string]any{
				"genres":     artist.Genres,
				"popularity": artist.Popularity,
				"uri":        artist.URI,
			},
			External: core.ExternalRef{
				Provider: ProviderID,
				ID:       artist.ID,
				Type:     "artist",
			},
		})
	}
	return candidates, nil
}
