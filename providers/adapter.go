package providers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-integrations/core"
	"github.com/goliatone/go-integrations/sync"
)

// Spec is the per-provider description an Adapter runs: identity, OAuth
// endpoints, and the resources its sync pipeline fetches.
type Spec struct {
	ID          string
	StatePrefix string
	ListName    string
	OAuth       OAuth2Config
	Resources   []sync.Resource
	// StateCodec overrides the legacy prefix format, e.g. with the signed
	// codec. Providers with live legacy callbacks keep the prefix format.
	StateCodec core.StateCodec
	// TokenFromCallback overrides the authorization-code exchange for
	// providers that deliver a user token directly in the callback.
	TokenFromCallback func(ctx context.Context, payload core.CallbackPayload) (core.StoredToken, error)
	// LinkToken mints the client session token during connect, for
	// providers whose consent UI boots from a server-issued token rather
	// than a redirect URL (Plaid Link).
	LinkToken func(ctx context.Context, userID, state string) (string, error)
	// Revoke performs the provider-side teardown. Optional; failures are
	// best effort.
	Revoke func(ctx context.Context, token core.StoredToken) error
}

// Deps carries the shared infrastructure an Adapter operates against.
type Deps struct {
	Tokens       core.TokenStore
	Integrations core.IntegrationStore
	Links        core.LinkStore
	Catalog      core.CatalogStore
	Locker       core.RefreshLocker
	Logger       core.Logger
	// StateCodec backs providers whose Spec does not pin one.
	StateCodec core.StateCodec
	WindowDays int
	ExpirySkew time.Duration
	Now        func() time.Time
}

// Adapter implements core.Provider for any OAuth2-shaped integration. One
// Adapter instance serves one provider; behavior differences live in the
// Spec, not in subclasses.
type Adapter struct {
	spec   Spec
	deps   Deps
	oauth  *OAuth2Client
	tokens *core.TokenManager
	now    func() time.Time
}

func New(spec Spec, deps Deps) (*Adapter, error) {
	spec.ID = strings.TrimSpace(strings.ToLower(spec.ID))
	if spec.ID == "" {
		return nil, fmt.Errorf("providers: provider id is required")
	}
	if deps.Tokens == nil {
		return nil, fmt.Errorf("providers: token store is required for provider %q", spec.ID)
	}
	if deps.Integrations == nil {
		return nil, fmt.Errorf("providers: integration store is required for provider %q", spec.ID)
	}
	if deps.Links == nil {
		return nil, fmt.Errorf("providers: link store is required for provider %q", spec.ID)
	}
	if deps.Catalog == nil {
		return nil, fmt.Errorf("providers: catalog store is required for provider %q", spec.ID)
	}
	if spec.ListName == "" {
		spec.ListName = spec.ID
	}
	if deps.Now == nil {
		deps.Now = func() time.Time { return time.Now().UTC() }
	}
	if deps.WindowDays <= 0 {
		deps.WindowDays = sync.DefaultWindowDays
	}
	if spec.StateCodec == nil {
		spec.StateCodec = deps.StateCodec
	}

	var oauth *OAuth2Client
	if strings.TrimSpace(spec.OAuth.TokenURL) != "" {
		spec.OAuth.Provider = spec.ID
		client, err := NewOAuth2Client(spec.OAuth)
		if err != nil {
			return nil, err
		}
		oauth = client
	} else if spec.TokenFromCallback == nil {
		return nil, core.NewConfigurationError(spec.ID, "provider needs either oauth endpoints or a callback token source")
	}

	managerOpts := []core.TokenManagerOption{core.WithTokenClock(deps.Now)}
	if deps.ExpirySkew > 0 {
		managerOpts = append(managerOpts, core.WithTokenExpirySkew(deps.ExpirySkew))
	}
	if deps.Logger != nil {
		managerOpts = append(managerOpts, core.WithTokenLogger(deps.Logger))
	}
	var refresher core.TokenRefresher
	if oauth != nil {
		refresher = oauth
	}
	tokens, err := core.NewTokenManager(deps.Tokens, refresher, deps.Locker, managerOpts...)
	if err != nil {
		return nil, err
	}

	return &Adapter{
		spec:   spec,
		deps:   deps,
		oauth:  oauth,
		tokens: tokens,
		now:    deps.Now,
	}, nil
}

func (a *Adapter) ID() string {
	if a == nil {
		return ""
	}
	return a.spec.ID
}

func (a *Adapter) StatePrefix() string {
	if a == nil {
		return ""
	}
	return a.spec.StatePrefix
}

// Connect ensures the catalog row and a pending link exist, then hands back
// the consent redirect.
func (a *Adapter) Connect(ctx context.Context, userID string) (core.ConnectResult, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return core.ConnectResult{}, fmt.Errorf("providers: user id is required")
	}

	integration, err := a.deps.Integrations.Ensure(ctx, a.spec.ID)
	if err != nil {
		return core.ConnectResult{}, err
	}
	if err := a.ensurePendingLink(ctx, userID, integration.ID); err != nil {
		return core.ConnectResult{}, err
	}

	state, err := a.encodeState(userID)
	if err != nil {
		return core.ConnectResult{}, err
	}
	result := core.ConnectResult{
		Provider: a.spec.ID,
		State:    state,
	}
	if a.oauth != nil {
		result.RedirectURL = a.oauth.AuthorizeURL(state)
	}
	if a.spec.LinkToken != nil {
		linkToken, tokenErr := a.spec.LinkToken(ctx, userID, state)
		if tokenErr != nil {
			return core.ConnectResult{}, tokenErr
		}
		result.LinkToken = linkToken
	}
	return result, nil
}

func (a *Adapter) ensurePendingLink(ctx context.Context, userID, integrationID string) error {
	link, found, err := a.deps.Links.Find(ctx, userID, integrationID)
	if err != nil {
		return err
	}
	if !found {
		_, err = a.deps.Links.Create(ctx, core.UserIntegration{
			UserID:        userID,
			IntegrationID: integrationID,
			Status:        core.LinkStatusPending,
		})
		return err
	}
	if link.Status == core.LinkStatusDisconnected {
		return a.deps.Links.UpdateStatus(ctx, link.ID, core.LinkStatusPending, "")
	}
	return nil
}

// HandleCallback finishes the connection: recover the user from the state,
// obtain and persist the credential, then mark the link connected. The
// popularity counter only moves when the user was not already connected.
func (a *Adapter) HandleCallback(ctx context.Context, payload core.CallbackPayload) error {
	if strings.TrimSpace(payload.Error) != "" {
		return core.NewOAuthDeniedError(a.spec.ID, strings.TrimSpace(payload.Error))
	}
	claims, err := a.decodeState(payload.State)
	if err != nil {
		return core.NewInvalidCallbackError(a.spec.ID, err.Error())
	}
	userID := strings.TrimSpace(claims.UserID)
	if userID == "" {
		return core.NewInvalidCallbackError(a.spec.ID, "callback state carries no user")
	}

	var token core.StoredToken
	if a.spec.TokenFromCallback != nil {
		token, err = a.spec.TokenFromCallback(ctx, payload)
	} else {
		token, err = a.oauth.Exchange(ctx, payload.Code)
	}
	if err != nil {
		return err
	}
	token.Provider = a.spec.ID
	token.UserID = userID
	token.UpdatedAt = a.now()
	if err := a.deps.Tokens.Save(ctx, token); err != nil {
		return err
	}

	integration, err := a.deps.Integrations.Ensure(ctx, a.spec.ID)
	if err != nil {
		return err
	}
	link, found, err := a.deps.Links.Find(ctx, userID, integration.ID)
	if err != nil {
		return err
	}
	if !found {
		link, err = a.deps.Links.Create(ctx, core.UserIntegration{
			UserID:        userID,
			IntegrationID: integration.ID,
			Status:        core.LinkStatusPending,
		})
		if err != nil {
			return err
		}
	}

	newlyConnected := link.Status != core.LinkStatusConnected
	if err := a.deps.Links.UpdateStatus(ctx, link.ID, core.LinkStatusConnected, ""); err != nil {
		return err
	}
	if err := a.deps.Links.MarkConnected(ctx, link.ID, a.now()); err != nil {
		return err
	}
	if newlyConnected {
		if err := a.deps.Integrations.IncrementPopularity(ctx, a.spec.ID); err != nil {
			return err
		}
	}
	return nil
}

// Sync fetches every resource inside the computed window and upserts the
// results. The caller must be connected.
func (a *Adapter) Sync(ctx context.Context, userID string) (core.SyncResult, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return core.SyncResult{}, fmt.Errorf("providers: user id is required")
	}

	link, _, err := a.connectedLink(ctx, userID)
	if err != nil {
		return core.SyncResult{}, err
	}

	token, err := a.tokens.EnsureValidAccessToken(ctx, a.spec.ID, userID)
	if err != nil {
		return core.SyncResult{}, err
	}

	var lastSyncedAt *time.Time
	history, found, err := a.deps.Links.History(ctx, link.ID)
	if err != nil {
		return core.SyncResult{}, err
	}
	if found {
		lastSyncedAt = history.LastSyncedAt
	}

	runner := sync.Runner{
		Catalog: a.deps.Catalog,
		Links:   a.deps.Links,
		Logger:  a.deps.Logger,
		Now:     a.now,
	}
	return runner.Run(ctx, sync.RunInput{
		Provider:  a.spec.ID,
		UserID:    userID,
		LinkID:    link.ID,
		Token:     token,
		Resources: a.spec.Resources,
		Window:    sync.ComputeWindow(lastSyncedAt, a.now(), a.deps.WindowDays),
	})
}

// Status is always answerable: an unknown or never-connected user reports a
// disconnected status, never an error.
func (a *Adapter) Status(ctx context.Context, userID string) (core.StatusResult, error) {
	status := core.StatusResult{
		Provider:  a.spec.ID,
		UserID:    userID,
		Connected: false,
		Status:    core.LinkStatusDisconnected,
	}

	integration, found, err := a.deps.Integrations.Get(ctx, a.spec.ID)
	if err != nil {
		return core.StatusResult{}, err
	}
	if !found {
		return status, nil
	}
	status.Popularity = integration.Popularity

	link, found, err := a.deps.Links.Find(ctx, userID, integration.ID)
	if err != nil {
		return core.StatusResult{}, err
	}
	if !found {
		return status, nil
	}
	status.Status = link.Status
	status.Connected = link.Status == core.LinkStatusConnected
	status.Error = link.LastError

	if history, ok, err := a.deps.Links.History(ctx, link.ID); err != nil {
		return core.StatusResult{}, err
	} else if ok {
		status.FirstConnectedAt = history.FirstConnectedAt
		status.LastConnectedAt = history.LastConnectedAt
		status.LastSyncedAt = history.LastSyncedAt
	}

	if _, hasToken, err := a.deps.Tokens.Get(ctx, a.spec.ID, userID); err != nil {
		return core.StatusResult{}, err
	} else {
		status.HasToken = hasToken
	}
	return status, nil
}

// Disconnect performs the provider-side revoke when the spec defines one.
// Local bookkeeping belongs to the orchestrator.
func (a *Adapter) Disconnect(ctx context.Context, userID string) error {
	if a.spec.Revoke == nil {
		return nil
	}
	token, found, err := a.deps.Tokens.Get(ctx, a.spec.ID, strings.TrimSpace(userID))
	if err != nil {
		return err
	}
	if !found {
		return nil
	}
	return a.spec.Revoke(ctx, token)
}

func (a *Adapter) connectedLink(ctx context.Context, userID string) (core.UserIntegration, core.Integration, error) {
	integration, found, err := a.deps.Integrations.Get(ctx, a.spec.ID)
	if err != nil {
		return core.UserIntegration{}, core.Integration{}, err
	}
	if !found {
		return core.UserIntegration{}, core.Integration{}, core.NewNotConnectedError(a.spec.ID, userID)
	}
	link, found, err := a.deps.Links.Find(ctx, userID, integration.ID)
	if err != nil {
		return core.UserIntegration{}, core.Integration{}, err
	}
	if !found || link.Status != core.LinkStatusConnected {
		return core.UserIntegration{}, core.Integration{}, core.NewNotConnectedError(a.spec.ID, userID)
	}
	return link, integration, nil
}

func (a *Adapter) encodeState(userID string) (string, error) {
	claims := core.StateClaims{
		Provider: a.spec.ID,
		UserID:   userID,
		IssuedAt: a.now(),
	}
	if prefix := strings.TrimSpace(a.spec.StatePrefix); prefix != "" {
		return core.LegacyStateCodec{Prefix: prefix}.Encode(claims)
	}
	if a.spec.StateCodec != nil {
		return a.spec.StateCodec.Encode(claims)
	}
	return "", fmt.Errorf("providers: provider %q has no state codec", a.spec.ID)
}

func (a *Adapter) decodeState(state string) (core.StateClaims, error) {
	if prefix := strings.TrimSpace(a.spec.StatePrefix); prefix != "" {
		return core.LegacyStateCodec{Prefix: prefix}.Decode(state)
	}
	if a.spec.StateCodec != nil {
		return a.spec.StateCodec.Decode(state)
	}
	return core.StateClaims{}, fmt.Errorf("providers: provider %q has no state codec", a.spec.ID)
}

var _ core.Provider = (*Adapter)(nil)
