package core

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
)

const (
	disconnectStatusOK           = "disconnected"
	disconnectStatusNotConnected = "not_connected"
)

// Service is the integration orchestrator. It owns provider resolution,
// status fan-out, and the disconnect sequence; everything provider-specific
// is delegated through the registry.
type Service struct {
	config            Config
	logger            Logger
	loggerProvider    LoggerProvider
	metricsRecorder   MetricsRecorder
	errorFactory      ErrorFactory
	errorMapper       ErrorMapper
	persistenceClient any
	repositoryFactory any
	configProvider    ConfigProvider
	optionsResolver   OptionsResolver
	registry          Registry
	tokenStore        TokenStore
	integrationStore  IntegrationStore
	linkStore         LinkStore
	catalogStore      CatalogStore
	profileReader     UserProfileReader
	refreshLocker     RefreshLocker
	stateCodec        StateCodec
	enqueuer          JobEnqueuer
}

type ServiceDependencies struct {
	Logger            Logger
	LoggerProvider    LoggerProvider
	MetricsRecorder   MetricsRecorder
	ErrorFactory      ErrorFactory
	ErrorMapper       ErrorMapper
	PersistenceClient any
	RepositoryFactory any
	ConfigProvider    ConfigProvider
	OptionsResolver   OptionsResolver
	Registry          Registry
	TokenStore        TokenStore
	IntegrationStore  IntegrationStore
	LinkStore         LinkStore
	CatalogStore      CatalogStore
	ProfileReader     UserProfileReader
	RefreshLocker     RefreshLocker
	StateCodec        StateCodec
	JobEnqueuer       JobEnqueuer
}

func NewService(cfg Config, options ...Option) (*Service, error) {
	builder := defaultServiceBuilder(cfg)
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("integrations", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("integrations"); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.errorFactory == nil {
		builder.errorFactory = goerrors.New
	}
	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = defaultErrorMapper
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}
	if builder.registry == nil {
		builder.registry = NewProviderRegistry()
	}
	if builder.refreshLocker == nil {
		builder.refreshLocker = NewMemoryRefreshLocker()
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	if builder.repositoryFactory != nil {
		var storeProvider StoreProvider
		if storeFactory, ok := builder.repositoryFactory.(RepositoryStoreFactory); ok {
			built, buildErr := storeFactory.BuildStores(builder.persistenceClient)
			if buildErr != nil {
				return nil, mapBuildError(builder.errorMapper, buildErr)
			}
			storeProvider = built
		} else if direct, ok := builder.repositoryFactory.(StoreProvider); ok {
			storeProvider = direct
		}
		if storeProvider != nil {
			if builder.tokenStore == nil {
				builder.tokenStore = storeProvider.TokenStore()
			}
			if builder.integrationStore == nil {
				builder.integrationStore = storeProvider.IntegrationStore()
			}
			if builder.linkStore == nil {
				builder.linkStore = storeProvider.LinkStore()
			}
			if builder.catalogStore == nil {
				builder.catalogStore = storeProvider.CatalogStore()
			}
		}
		if builder.profileReader == nil {
			if reader, ok := builder.repositoryFactory.(interface{ ProfileReader() UserProfileReader }); ok {
				builder.profileReader = reader.ProfileReader()
			}
		}
	}

	if builder.stateCodec == nil && strings.TrimSpace(finalConfig.State.SigningSecret) != "" {
		builder.stateCodec = SignedStateCodec{
			Secret: []byte(finalConfig.State.SigningSecret),
			MaxAge: time.Duration(finalConfig.State.MaxAgeSeconds) * time.Second,
		}
	}

	return &Service{
		config:            finalConfig,
		logger:            logger,
		loggerProvider:    provider,
		metricsRecorder:   builder.metricsRecorder,
		errorFactory:      builder.errorFactory,
		errorMapper:       builder.errorMapper,
		persistenceClient: builder.persistenceClient,
		repositoryFactory: builder.repositoryFactory,
		configProvider:    builder.configProvider,
		optionsResolver:   builder.optionsResolver,
		registry:          builder.registry,
		tokenStore:        builder.tokenStore,
		integrationStore:  builder.integrationStore,
		linkStore:         builder.linkStore,
		catalogStore:      builder.catalogStore,
		profileReader:     builder.profileReader,
		refreshLocker:     builder.refreshLocker,
		stateCodec:        builder.stateCodec,
		enqueuer:          builder.enqueuer,
	}, nil
}

func Setup(cfg Config, opts ...Option) (*Service, error) {
	return NewService(cfg, opts...)
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return err
	}
	mapped := mapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func (s *Service) Config() Config {
	if s == nil {
		return Config{}
	}
	return s.config
}

func (s *Service) Dependencies() ServiceDependencies {
	if s == nil {
		return ServiceDependencies{}
	}
	return ServiceDependencies{
		Logger:            s.logger,
		LoggerProvider:    s.loggerProvider,
		MetricsRecorder:   s.metricsRecorder,
		ErrorFactory:      s.errorFactory,
		ErrorMapper:       s.errorMapper,
		PersistenceClient: s.persistenceClient,
		RepositoryFactory: s.repositoryFactory,
		ConfigProvider:    s.configProvider,
		OptionsResolver:   s.optionsResolver,
		Registry:          s.registry,
		TokenStore:        s.tokenStore,
		IntegrationStore:  s.integrationStore,
		LinkStore:         s.linkStore,
		CatalogStore:      s.catalogStore,
		ProfileReader:     s.profileReader,
		RefreshLocker:     s.refreshLocker,
		StateCodec:        s.stateCodec,
		JobEnqueuer:       s.enqueuer,
	}
}

func (s *Service) RegisterProvider(provider Provider) error {
	if s == nil || s.registry == nil {
		return fmt.Errorf("core: registry unavailable")
	}
	return s.registry.Register(provider)
}

// Connect starts the provider's connection flow for a user. The provider is
// resolved before any side effect so an unknown provider never leaves
// partial state behind.
func (s *Service) Connect(ctx context.Context, providerID, userID string) (result ConnectResult, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"provider": providerID,
		"user_id":  userID,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "connect", err, fields)
	}()

	provider, err := s.resolveProvider(providerID)
	if err != nil {
		return ConnectResult{}, err
	}
	if strings.TrimSpace(userID) == "" {
		err = s.mapError(fmt.Errorf("core: user id is required"))
		return ConnectResult{}, err
	}

	result, err = provider.Connect(ctx, userID)
	if err != nil {
		err = s.mapError(err)
		return ConnectResult{}, err
	}
	if strings.TrimSpace(result.Provider) == "" {
		result.Provider = provider.ID()
	}
	return result, nil
}

// HandleCallback completes a connection flow and returns the resulting
// status for the user.
func (s *Service) HandleCallback(ctx context.Context, payload CallbackPayload) (status StatusResult, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"provider": payload.Provider,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "handle_callback", err, fields)
	}()

	provider, err := s.resolveProvider(payload.Provider)
	if err != nil {
		return StatusResult{}, err
	}
	if strings.TrimSpace(payload.Error) != "" {
		err = s.mapError(NewOAuthDeniedError(provider.ID(), callbackDenialMessage(payload)))
		return StatusResult{}, err
	}

	if err = provider.HandleCallback(ctx, payload); err != nil {
		err = s.mapError(err)
		return StatusResult{}, err
	}

	claims, claimsErr := s.decodeState(provider, payload.State)
	if claimsErr == nil {
		fields["user_id"] = claims.UserID
		s.syncAfterCallback(ctx, provider, claims.UserID, true)
		status, err = s.statusFor(ctx, provider, claims.UserID)
		if err != nil {
			err = s.mapError(err)
			return StatusResult{}, err
		}
	}
	return status, nil
}

// HandleCallbackWithUserData completes the flow, then assembles the
// enriched response: the user id recovered from the callback state, the
// stored profile, the resulting status, and the user's synced data grouped
// into display buckets.
func (s *Service) HandleCallbackWithUserData(ctx context.Context, payload CallbackPayload) (outcome CallbackOutcome, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"provider": payload.Provider,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "handle_callback_with_user_data", err, fields)
	}()

	if strings.TrimSpace(payload.Provider) == "" {
		derived, deriveErr := s.providerFromState(payload.State)
		if deriveErr != nil {
			err = s.mapError(deriveErr)
			return CallbackOutcome{}, err
		}
		payload.Provider = derived
		fields["provider"] = derived
	}
	provider, err := s.resolveProvider(payload.Provider)
	if err != nil {
		return CallbackOutcome{}, err
	}

	claims, err := s.decodeState(provider, payload.State)
	if err != nil {
		err = s.mapError(NewInvalidCallbackError(provider.ID(), err.Error()))
		return CallbackOutcome{}, err
	}
	fields["user_id"] = claims.UserID

	if strings.TrimSpace(payload.Error) != "" {
		err = s.mapError(NewOAuthDeniedError(provider.ID(), callbackDenialMessage(payload)))
		return CallbackOutcome{}, err
	}
	if err = provider.HandleCallback(ctx, payload); err != nil {
		err = s.mapError(err)
		return CallbackOutcome{}, err
	}

	// The enriched response reports the user's synced data, so the first
	// sync runs inline here; its outcome never fails the connect.
	s.syncAfterCallback(ctx, provider, claims.UserID, false)

	status, err := s.statusFor(ctx, provider, claims.UserID)
	if err != nil {
		err = s.mapError(err)
		return CallbackOutcome{}, err
	}

	outcome = CallbackOutcome{
		Provider: provider.ID(),
		UserID:   claims.UserID,
		Status:   status,
		Profile:  map[string]any{},
		Data:     AggregatedData{},
	}
	if s.profileReader != nil {
		profile, found, profileErr := s.profileReader.Profile(ctx, claims.UserID)
		if profileErr != nil {
			err = s.mapError(profileErr)
			return CallbackOutcome{}, err
		}
		if found {
			outcome.Profile = profile
		}
	}
	if s.catalogStore != nil {
		items, itemsErr := s.catalogStore.ListByUser(ctx, claims.UserID)
		if itemsErr != nil {
			err = s.mapError(itemsErr)
			return CallbackOutcome{}, err
		}
		outcome.Data = AggregateItems(items)
	}
	return outcome, nil
}

// syncAfterCallback kicks off the first sync for a freshly connected link.
// Completing the connection never fails because of it: failures are logged
// and swallowed. When a job enqueuer is wired and the caller does not need
// the data inline, the run is handed to the queue instead.
func (s *Service) syncAfterCallback(ctx context.Context, provider Provider, userID string, allowEnqueue bool) {
	if s == nil || provider == nil || strings.TrimSpace(userID) == "" {
		return
	}
	if allowEnqueue && s.enqueuer != nil {
		err := s.enqueuer.Enqueue(ctx, &JobExecutionMessage{
			JobID:    SyncJobID,
			Provider: provider.ID(),
			UserID:   userID,
		})
		if err == nil {
			return
		}
		s.logError(ctx, "post-callback sync enqueue failed", map[string]any{
			"provider": provider.ID(),
			"user_id":  userID,
			"error":    err.Error(),
		})
		return
	}
	if _, err := provider.Sync(ctx, userID); err != nil {
		s.logError(ctx, "post-callback sync failed", map[string]any{
			"provider": provider.ID(),
			"user_id":  userID,
			"error":    err.Error(),
		})
	}
}

// Sync runs the provider's pipeline for one user.
func (s *Service) Sync(ctx context.Context, providerID, userID string) (result SyncResult, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"provider": providerID,
		"user_id":  userID,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "sync", err, fields)
	}()

	provider, err := s.resolveProvider(providerID)
	if err != nil {
		return SyncResult{}, err
	}
	result, err = provider.Sync(ctx, userID)
	if err != nil {
		err = s.mapError(err)
		return SyncResult{}, err
	}
	fields["total_items"] = result.TotalItems
	return result, nil
}

// SyncAll runs every registered provider's pipeline for the user. Provider
// failures are isolated: each failed provider reports a zeroed result and
// the rest keep running.
func (s *Service) SyncAll(ctx context.Context, userID string) (results []SyncResult, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"user_id": userID,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "sync_all", err, fields)
	}()

	if s == nil || s.registry == nil {
		err = s.mapError(fmt.Errorf("core: registry unavailable"))
		return nil, err
	}
	for _, provider := range s.registry.List() {
		result, syncErr := provider.Sync(ctx, userID)
		if syncErr != nil {
			s.logError(ctx, "provider sync failed", map[string]any{
				"provider": provider.ID(),
				"user_id":  userID,
				"error":    syncErr.Error(),
			})
			results = append(results, SyncResult{
				Provider: provider.ID(),
				UserID:   userID,
				OK:       false,
			})
			continue
		}
		results = append(results, result)
	}
	return results, nil
}

// Status reports one provider's connection state for a user. It never
// returns an error for a user who simply is not connected.
func (s *Service) Status(ctx context.Context, providerID, userID string) (status StatusResult, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"provider": providerID,
		"user_id":  userID,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "status", err, fields)
	}()

	provider, err := s.resolveProvider(providerID)
	if err != nil {
		return StatusResult{}, err
	}
	status, err = s.statusFor(ctx, provider, userID)
	if err != nil {
		err = s.mapError(err)
		return StatusResult{}, err
	}
	return status, nil
}

// AllStatuses fans out across every registered provider. A provider whose
// status lookup fails contributes a disconnected entry carrying the error
// instead of failing the whole overview.
func (s *Service) AllStatuses(ctx context.Context, userID string) (overview StatusOverview, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"user_id": userID,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "all_statuses", err, fields)
	}()

	if s == nil || s.registry == nil {
		err = s.mapError(fmt.Errorf("core: registry unavailable"))
		return StatusOverview{}, err
	}
	statuses := make([]StatusResult, 0)
	for _, provider := range s.registry.List() {
		status, statusErr := s.statusFor(ctx, provider, userID)
		if statusErr != nil {
			s.logError(ctx, "provider status failed", map[string]any{
				"provider": provider.ID(),
				"user_id":  userID,
				"error":    statusErr.Error(),
			})
			statuses = append(statuses, StatusResult{
				Provider:  provider.ID(),
				UserID:    userID,
				Connected: false,
				Status:    LinkStatusDisconnected,
				Error:     statusErr.Error(),
			})
			continue
		}
		statuses = append(statuses, status)
	}
	return BuildStatusOverview(statuses), nil
}

// Disconnect runs the teardown sequence: verify the connection, attempt the
// provider-side revoke and the token delete without letting either abort
// the flow, then flip the link status. Only the final status write can fail
// the operation. A user who was never connected gets a 400 result, not an
// error.
func (s *Service) Disconnect(ctx context.Context, providerID, userID string) (result DisconnectResult, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"provider": providerID,
		"user_id":  userID,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "disconnect", err, fields)
	}()

	provider, err := s.resolveProvider(providerID)
	if err != nil {
		return DisconnectResult{}, err
	}
	if s.integrationStore == nil || s.linkStore == nil {
		err = s.mapError(fmt.Errorf("core: integration and link stores are required for disconnect"))
		return DisconnectResult{}, err
	}

	integration, found, err := s.integrationStore.Get(ctx, provider.ID())
	if err != nil {
		err = s.mapError(err)
		return DisconnectResult{}, err
	}
	var link UserIntegration
	linkFound := false
	if found {
		link, linkFound, err = s.linkStore.Find(ctx, userID, integration.ID)
		if err != nil {
			err = s.mapError(err)
			return DisconnectResult{}, err
		}
	}
	if !linkFound || link.Status != LinkStatusConnected {
		fields["connection_status"] = disconnectStatusNotConnected
		return DisconnectResult{
			Provider:         provider.ID(),
			StatusCode:       http.StatusBadRequest,
			ConnectionStatus: disconnectStatusNotConnected,
		}, nil
	}

	if revokeErr := provider.Disconnect(ctx, userID); revokeErr != nil {
		s.logError(ctx, "provider revoke failed", map[string]any{
			"provider": provider.ID(),
			"user_id":  userID,
			"error":    revokeErr.Error(),
		})
	}
	if s.tokenStore != nil {
		if deleteErr := s.tokenStore.Delete(ctx, provider.ID(), userID); deleteErr != nil {
			s.logError(ctx, "stored token delete failed", map[string]any{
				"provider": provider.ID(),
				"user_id":  userID,
				"error":    deleteErr.Error(),
			})
		}
	}

	if err = s.linkStore.UpdateStatus(ctx, link.ID, LinkStatusDisconnected, ""); err != nil {
		err = s.mapError(err)
		return DisconnectResult{}, err
	}
	fields["connection_status"] = disconnectStatusOK
	return DisconnectResult{
		Provider:         provider.ID(),
		StatusCode:       http.StatusOK,
		ConnectionStatus: disconnectStatusOK,
	}, nil
}

func (s *Service) statusFor(ctx context.Context, provider Provider, userID string) (StatusResult, error) {
	return provider.Status(ctx, userID)
}

// providerFromState matches the legacy prefix of a registered provider,
// falling back to the signed codec when configured.
func (s *Service) providerFromState(state string) (string, error) {
	state = strings.TrimSpace(state)
	if state == "" {
		return "", fmt.Errorf("core: callback state is required")
	}
	if s.registry != nil {
		for _, provider := range s.registry.List() {
			prefix := strings.TrimSpace(provider.StatePrefix())
			if prefix != "" && strings.HasPrefix(state, prefix+"-") {
				return provider.ID(), nil
			}
		}
	}
	if s.stateCodec != nil {
		claims, err := s.stateCodec.Decode(state)
		if err != nil {
			return "", err
		}
		if strings.TrimSpace(claims.Provider) != "" {
			return claims.Provider, nil
		}
	}
	return "", fmt.Errorf("core: callback state matches no registered provider")
}

func (s *Service) decodeState(provider Provider, state string) (StateClaims, error) {
	prefix := strings.TrimSpace(provider.StatePrefix())
	if prefix != "" && strings.HasPrefix(state, prefix+"-") {
		return LegacyStateCodec{Prefix: prefix}.Decode(state)
	}
	if s.stateCodec != nil {
		return s.stateCodec.Decode(state)
	}
	return StateClaims{}, fmt.Errorf("core: callback state is not decodable")
}

func callbackDenialMessage(payload CallbackPayload) string {
	message := strings.TrimSpace(payload.Error)
	if description := strings.TrimSpace(payload.ErrorDescription); description != "" {
		message = message + ": " + description
	}
	if message == "" {
		message = "authorization denied"
	}
	return message
}

func (s *Service) resolveProvider(providerID string) (Provider, error) {
	if s == nil || s.registry == nil {
		return nil, s.mapError(fmt.Errorf("core: registry unavailable"))
	}
	providerID = strings.TrimSpace(providerID)
	provider, ok := s.registry.Get(providerID)
	if ok {
		return provider, nil
	}
	wrapped := s.errorFactory(
		fmt.Sprintf("provider %q is not registered", providerID),
		goerrors.CategoryNotFound,
	).WithTextCode(IntegrationErrorProviderNotFound)
	return nil, wrapped.WithMetadata(map[string]any{"provider": providerID})
}

func (s *Service) mapError(err error) error {
	if err == nil {
		return nil
	}
	if s == nil || s.errorMapper == nil {
		return err
	}
	mapped := s.errorMapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}
