package integrations

import (
	"fmt"

	integrationscommand "github.com/goliatone/go-integrations/command"
	"github.com/goliatone/go-integrations/core"
	integrationsquery "github.com/goliatone/go-integrations/query"
)

// CommandQueryService is the orchestrator surface the facade binds commands
// and queries to. *core.Service satisfies it.
type CommandQueryService interface {
	integrationscommand.MutatingService
	integrationsquery.StatusReader
}

type Commands struct {
	Connect          *integrationscommand.ConnectCommand
	CompleteCallback *integrationscommand.CompleteCallbackCommand
	Sync             *integrationscommand.SyncCommand
	SyncAll          *integrationscommand.SyncAllCommand
	Disconnect       *integrationscommand.DisconnectCommand
}

type Queries struct {
	GetStatus        *integrationsquery.GetStatusQuery
	ListStatuses     *integrationsquery.ListStatusesQuery
	ListIntegrations *integrationsquery.ListIntegrationsQuery
	GetUserData      *integrationsquery.GetUserDataQuery
}

// Facade bundles the full command and query set for one service so callers
// can register them against a dispatcher in one pass.
type Facade struct {
	service  CommandQueryService
	commands Commands
	queries  Queries
}

type FacadeOption func(*facadeOptions)

type facadeOptions struct {
	catalogReader  integrationsquery.CatalogReader
	userDataReader integrationsquery.UserDataReader
}

// WithCatalogReader overrides the integration catalog source for the list
// integrations query.
func WithCatalogReader(reader integrationsquery.CatalogReader) FacadeOption {
	return func(options *facadeOptions) {
		options.catalogReader = reader
	}
}

// WithUserDataReader overrides the synced item source for the user data
// query.
func WithUserDataReader(reader integrationsquery.UserDataReader) FacadeOption {
	return func(options *facadeOptions) {
		options.userDataReader = reader
	}
}

func NewFacade(service CommandQueryService, opts ...FacadeOption) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("integrations: command/query service is required")
	}
	cfg := facadeOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}

	catalogReader := cfg.catalogReader
	if catalogReader == nil {
		catalogReader = resolveCatalogReader(service)
	}
	userDataReader := cfg.userDataReader
	if userDataReader == nil {
		userDataReader = resolveUserDataReader(service)
	}

	facade := &Facade{service: service}
	facade.commands = Commands{
		Connect:          integrationscommand.NewConnectCommand(service),
		CompleteCallback: integrationscommand.NewCompleteCallbackCommand(service),
		Sync:             integrationscommand.NewSyncCommand(service),
		SyncAll:          integrationscommand.NewSyncAllCommand(service),
		Disconnect:       integrationscommand.NewDisconnectCommand(service),
	}
	facade.queries = Queries{
		GetStatus:        integrationsquery.NewGetStatusQuery(service),
		ListStatuses:     integrationsquery.NewListStatusesQuery(service),
		ListIntegrations: integrationsquery.NewListIntegrationsQuery(catalogReader),
		GetUserData:      integrationsquery.NewGetUserDataQuery(userDataReader),
	}

	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Service() CommandQueryService {
	if f == nil {
		return nil
	}
	return f.service
}

// resolveCatalogReader falls back to the service's integration store, which
// already exposes the catalog listing the query needs. A nil result is fine,
// the query surfaces a dependency error at execution time.
func resolveCatalogReader(service CommandQueryService) integrationsquery.CatalogReader {
	if reader, ok := service.(integrationsquery.CatalogReader); ok {
		return reader
	}
	deps, ok := dependenciesOf(service)
	if !ok || deps.IntegrationStore == nil {
		return nil
	}
	return deps.IntegrationStore
}

func resolveUserDataReader(service CommandQueryService) integrationsquery.UserDataReader {
	if reader, ok := service.(integrationsquery.UserDataReader); ok {
		return reader
	}
	deps, ok := dependenciesOf(service)
	if !ok || deps.CatalogStore == nil {
		return nil
	}
	return deps.CatalogStore
}

func dependenciesOf(service CommandQueryService) (core.ServiceDependencies, bool) {
	provider, ok := service.(interface {
		Dependencies() core.ServiceDependencies
	})
	if !ok {
		return core.ServiceDependencies{}, false
	}
	return provider.Dependencies(), true
}
