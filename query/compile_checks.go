package query

import (
	gocmd "github.com/goliatone/go-command"

	"github.com/goliatone/go-integrations/core"
)

var (
	_ gocmd.Querier[GetStatusMessage, core.StatusResult]          = (*GetStatusQuery)(nil)
	_ gocmd.Querier[ListStatusesMessage, core.StatusOverview]     = (*ListStatusesQuery)(nil)
	_ gocmd.Querier[ListIntegrationsMessage, []core.Integration]  = (*ListIntegrationsQuery)(nil)
	_ gocmd.Querier[GetUserDataMessage, core.AggregatedData]      = (*GetUserDataQuery)(nil)
)
