package applemusic

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-integrations/core"
	"github.com/goliatone/go-integrations/providers"
	"github.com/goliatone/go-integrations/sync"
)

const (
	ProviderID  = "applemusic"
	StatePrefix = "apple-music"
	APIBaseURL  = "https://api.music.apple.com/v1"

	// MusicKit user tokens are valid for six months.
	userTokenTTL = 180 * 24 * time.Hour
)

// Config carries the MusicKit credentials. There is no code exchange: the
// browser hands us a user token directly in the callback.
type Config struct {
	DeveloperToken string
	APIBaseURL     string
	HTTPClient     providers.HTTPDoer
	Now            func() time.Time
}

func DefaultConfig() Config {
	return Config{APIBaseURL: APIBaseURL}
}

func New(cfg Config, deps providers.Deps) (core.Provider, error) {
	if strings.TrimSpace(cfg.DeveloperToken) == "" {
		return nil, fmt.Errorf("applemusic: developer token is required")
	}
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = APIBaseURL
	}
	now := cfg.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}

	api := apiClient{
		baseURL:        cfg.APIBaseURL,
		developerToken: cfg.DeveloperToken,
		doer:           cfg.HTTPClient,
	}
	return providers.New(providers.Spec{
		ID:          ProviderID,
		StatePrefix: StatePrefix,
		ListName:    "Apple Music",
		TokenFromCallback: func(_ context.Context, payload core.CallbackPayload) (core.StoredToken, error) {
			userToken := strings.TrimSpace(payload.UserToken)
			if userToken == "" {
				return core.StoredToken{}, core.NewInvalidCallbackError(ProviderID, "callback carries no music user token")
			}
			return core.StoredToken{
				AccessToken: userToken,
				ExpiresAt:   now().Add(userTokenTTL).Unix(),
			}, nil
		},
		Resources: []sync.Resource{
			{
				Name:         "recently_played",
				ListName:     "Apple Music",
				CategoryName: "Recently Played",
				Fetch:        api.recentlyPlayed,
			},
		},
	}, deps)
}

type apiClient struct {
	baseURL        string
	developerToken string
	doer           providers.HTTPDoer
}

type recentTracksResponse struct {
	Data []struct {
		ID         string `json:"id"`
		Type       string `json:"type"`
		Attributes struct {
			Name             string `json:"name"`
			ArtistName       string `json:"artistName"`
			AlbumName        string `json:"albumName"`
			DurationInMillis int    `json:"durationInMillis"`
			URL              string `json:"url"`
		} `json:"attributes"`
	} `json:"data"`
}

func (c apiClient) recentlyPlayed(ctx context.Context, token core.StoredToken, _ sync.Window) ([]core.ItemCandidate, error) {
	var decoded recentTracksResponse
	err := providers.DoJSON(ctx, c.doer, ProviderID, providers.APIRequest{
		URL:         c.baseURL + "/me/recent/played/tracks?limit=30",
		AccessToken: c.developerToken,
		Header:      map[string]string{"Music-User-Token": token.AccessToken},
	}, &decoded)
	if err != nil {
		return nil, err
	}

	candidates := make([]core.ItemCandidate, 0, len(decoded.Data))
	for _, track := range decoded.Data {
		if track.ID == "" {
			continue
		}
		candidates = append(candidates, core.ItemCandidate{
			CategoryName: "Recently Played",
			Title:        track.Attributes.Name,
			Attributes: map[string]any{
				"artist":      track.Attributes.ArtistName,
				"album":       track.Attributes.AlbumName,
				"duration_ms": track.Attributes.DurationInMillis,
				"url":         track.Attributes.URL,
			},
			External: core.ExternalRef{
				Provider: ProviderID,
				ID:       track.ID,
				Type:     "track",
			},
		})
	}
	return candidates, nil
}
