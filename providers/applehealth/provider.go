package applehealth

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/goliatone/go-integrations/core"
	"github.com/goliatone/go-integrations/providers"
	"github.com/goliatone/go-integrations/sync"
)

const (
	ProviderID  = "applehealth"
	StatePrefix = "apple-health"

	// HealthKit has no server API; the companion app pushes samples to our
	// ingest service and sync reads them back from there.
	deviceTokenTTL = 365 * 24 * time.Hour
)

// Config points at the ingest service that receives HealthKit exports from
// the device. The callback carries a device token minted by the app.
type Config struct {
	IngestBaseURL string
	HTTPClient    providers.HTTPDoer
	Now           func() time.Time
}

func DefaultConfig() Config {
	return Config{}
}

func New(cfg Config, deps providers.Deps) (core.Provider, error) {
	if strings.TrimSpace(cfg.IngestBaseURL) == "" {
		return nil, fmt.Errorf("applehealth: ingest base url is required")
	}
	now := cfg.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}

	api := apiClient{baseURL: strings.TrimRight(cfg.IngestBaseURL, "/"), doer: cfg.HTTPClient}
	return providers.New(providers.Spec{
		ID:          ProviderID,
		StatePrefix: StatePrefix,
		ListName:    "Apple Health",
		TokenFromCallback: func(_ context.Context, payload core.CallbackPayload) (core.StoredToken, error) {
			deviceToken := strings.TrimSpace(payload.UserToken)
			if deviceToken == "" {
				return core.StoredToken{}, core.NewInvalidCallbackError(ProviderID, "callback carries no device token")
			}
			return core.StoredToken{
				AccessToken: deviceToken,
				ExpiresAt:   now().Add(deviceTokenTTL).Unix(),
			}, nil
		},
		Resources: []sync.Resource{
			{
				Name:         "workouts",
				ListName:     "Apple Health",
				CategoryName: "Workouts",
				Fetch:        api.workouts,
			},
		},
	}, deps)
}

type apiClient struct {
	baseURL string
	doer    providers.HTTPDoer
}

type workoutsResponse struct {
	Workouts []struct {
		ID            string  `json:"id"`
		ActivityType  string  `json:"activity_type"`
		StartedAt     string  `json:"started_at"`
		DurationSec   float64 `json:"duration_seconds"`
		EnergyBurned  float64 `json:"energy_burned_kcal"`
		DistanceMeter float64 `json:"distance_meters"`
	} `json:"workouts"`
}

func (c apiClient) workouts(ctx context.Context, token core.StoredToken, window sync.Window) ([]core.ItemCandidate, error) {
	query := url.Values{}
	query.Set("since", window.Since.UTC().Format(time.RFC3339))
	query.Set("until", window.Until.UTC().Format(time.RFC3339))

	var decoded workoutsResponse
	err := providers.DoJSON(ctx, c.doer, ProviderID, providers.APIRequest{
		URL:         c.baseURL + "/v1/workouts?" + query.Encode(),
		AccessToken: token.AccessToken,
	}, &decoded)
	if err != nil {
		return nil, err
	}

	candidates := make([]core.ItemCandidate, 0, len(decoded.Workouts))
	for _, workout := range decoded.Workouts {
		if workout.ID == "" {
			continue
		}
		title := workout.ActivityType
		if title == "" {
			title = "Workout"
		}
		candidates = append(candidates, core.ItemCandidate{
			CategoryName: "Workouts",
			Title:        title,
			Attributes: map[string]any{
				"started_at":       workout.StartedAt,
				"duration_seconds": workout.DurationSec,
				"energy_kcal":      workout.EnergyBurned,
				"distance_meters":  workout.DistanceMeter,
			},
			External: core.ExternalRef{
				Provider: ProviderID,
				ID:       workout.ID,
				Type:     "workout",
			},
		})
	}
	return candidates, nil
}
