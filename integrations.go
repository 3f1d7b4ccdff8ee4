package integrations

import (
	"github.com/goliatone/go-integrations/core"
)

// Config configures the integration service. The zero value is not usable,
// start from DefaultConfig.
type Config = core.Config

// Option customizes service construction.
type Option = core.Option

// Service orchestrates provider connections, token refresh, and sync runs.
type Service = core.Service

// ServiceDependencies exposes the resolved collaborators of a built service.
type ServiceDependencies = core.ServiceDependencies

type (
	Provider         = core.Provider
	Registry         = core.Registry
	ConnectResult    = core.ConnectResult
	CallbackPayload  = core.CallbackPayload
	CallbackOutcome  = core.CallbackOutcome
	SyncResult       = core.SyncResult
	StatusResult     = core.StatusResult
	StatusOverview   = core.StatusOverview
	DisconnectResult = core.DisconnectResult
	AggregatedData   = core.AggregatedData
	Integration      = core.Integration
	UserIntegration  = core.UserIntegration
	StoredToken      = core.StoredToken
	CatalogItem      = core.CatalogItem
)

var (
	WithLogger            = core.WithLogger
	WithLoggerProvider    = core.WithLoggerProvider
	WithMetricsRecorder   = core.WithMetricsRecorder
	WithErrorFactory      = core.WithErrorFactory
	WithErrorMapper       = core.WithErrorMapper
	WithPersistenceClient = core.WithPersistenceClient
	WithRepositoryFactory = core.WithRepositoryFactory
	WithConfigProvider    = core.WithConfigProvider
	WithOptionsResolver   = core.WithOptionsResolver
	WithRegistry          = core.WithRegistry
	WithTokenStore        = core.WithTokenStore
	WithIntegrationStore  = core.WithIntegrationStore
	WithLinkStore         = core.WithLinkStore
	WithCatalogStore      = core.WithCatalogStore
	WithUserProfileReader = core.WithUserProfileReader
	WithRefreshLocker     = core.WithRefreshLocker
	WithStateCodec        = core.WithStateCodec
	WithJobEnqueuer       = core.WithJobEnqueuer
)

// DefaultConfig returns the baseline configuration: a 30 day sync window,
// a 60 second token expiry skew, and a 10 minute state max age.
func DefaultConfig() Config {
	return core.DefaultConfig()
}

// NewService builds a service from the given configuration and options.
func NewService(cfg Config, options ...Option) (*Service, error) {
	return core.NewService(cfg, options...)
}

// Setup builds a service and runs its post-construction wiring. Most callers
// want this over NewService.
func Setup(cfg Config, options ...Option) (*Service, error) {
	return core.Setup(cfg, options...)
}
