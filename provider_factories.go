package integrations

import (
	"time"

	"github.com/goliatone/go-integrations/core"
	"github.com/goliatone/go-integrations/providers"
	"github.com/goliatone/go-integrations/providers/applehealth"
	"github.com/goliatone/go-integrations/providers/applemusic"
	"github.com/goliatone/go-integrations/providers/foursquare"
	"github.com/goliatone/go-integrations/providers/gmail"
	"github.com/goliatone/go-integrations/providers/googlecontacts"
	"github.com/goliatone/go-integrations/providers/plaid"
	"github.com/goliatone/go-integrations/providers/pocket"
	"github.com/goliatone/go-integrations/providers/spotify"
	"github.com/goliatone/go-integrations/providers/strava"
)

// ProviderDeps assembles the provider dependency set from a built service so
// factory-made providers share its stores, locker, and clock settings.
func ProviderDeps(service *core.Service) providers.Deps {
	if service == nil {
		return providers.Deps{}
	}
	deps := service.Dependencies()
	cfg := service.Config()
	return providers.Deps{
		Tokens:       deps.TokenStore,
		Integrations: deps.IntegrationStore,
		Links:        deps.LinkStore,
		Catalog:      deps.CatalogStore,
		Locker:       deps.RefreshLocker,
		Logger:       deps.Logger,
		StateCodec:   deps.StateCodec,
		WindowDays:   cfg.Sync.WindowDays,
		ExpirySkew:   time.Duration(cfg.Token.ExpirySkewSeconds) * time.Second,
	}
}

func SpotifyProvider(cfg spotify.Config, deps providers.Deps) (core.Provider, error) {
	return spotify.New(cfg, deps)
}

func StravaProvider(cfg strava.Config, deps providers.Deps) (core.Provider, error) {
	return strava.New(cfg, deps)
}

func AppleMusicProvider(cfg applemusic.Config, deps providers.Deps) (core.Provider, error) {
	return applemusic.New(cfg, deps)
}

func AppleHealthProvider(cfg applehealth.Config, deps providers.Deps) (core.Provider, error) {
	return applehealth.New(cfg, deps)
}

func GmailProvider(cfg gmail.Config, deps providers.Deps) (core.Provider, error) {
	return gmail.New(cfg, deps)
}

func GoogleContactsProvider(cfg googlecontacts.Config, deps providers.Deps) (core.Provider, error) {
	return googlecontacts.New(cfg, deps)
}

func FoursquareProvider(cfg foursquare.Config, deps providers.Deps) (core.Provider, error) {
	return foursquare.New(cfg, deps)
}

func PlaidProvider(cfg plaid.Config, deps providers.Deps) (core.Provider, error) {
	return plaid.New(cfg, deps)
}

func PocketProvider(cfg pocket.Config, deps providers.Deps) (core.Provider, error) {
	return pocket.New(cfg, deps)
}
