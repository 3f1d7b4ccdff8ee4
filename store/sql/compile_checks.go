package sqlstore

import "github.com/goliatone/go-integrations/core"

var (
	_ core.TokenStore             = (*TokenStore)(nil)
	_ core.IntegrationStore       = (*IntegrationStore)(nil)
	_ core.LinkStore              = (*LinkStore)(nil)
	_ core.CatalogStore           = (*CatalogStore)(nil)
	_ core.StoreProvider          = (*RepositoryFactory)(nil)
	_ core.RepositoryStoreFactory = (*RepositoryFactory)(nil)
)
