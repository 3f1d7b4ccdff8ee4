package query

import (
	"context"

	"github.com/goliatone/go-integrations/core"
)

type StatusReader interface {
	Status(ctx context.Context, providerID, userID string) (core.StatusResult, error)
	AllStatuses(ctx context.Context, userID string) (core.StatusOverview, error)
}

type CatalogReader interface {
	List(ctx context.Context) ([]core.Integration, error)
}

type UserDataReader interface {
	ListByUser(ctx context.Context, userID string) ([]core.CatalogItem, error)
}

type GetStatusQuery struct {
	reader StatusReader
}

func NewGetStatusQuery(reader StatusReader) *GetStatusQuery {
	return &GetStatusQuery{reader: reader}
}

func (q *GetStatusQuery) Query(ctx context.Context, msg GetStatusMessage) (core.StatusResult, error) {
	if q == nil || q.reader == nil {
		return core.StatusResult{}, queryDependencyError("query: status reader is required")
	}
	return q.reader.Status(ctx, msg.Provider, msg.UserID)
}

type ListStatusesQuery struct {
	reader StatusReader
}

func NewListStatusesQuery(reader StatusReader) *ListStatusesQuery {
	return &ListStatusesQuery{reader: reader}
}

func (q *ListStatusesQuery) Query(ctx context.Context, msg ListStatusesMessage) (core.StatusOverview, error) {
	if q == nil || q.reader == nil {
		return core.StatusOverview{}, queryDependencyError("query: status reader is required")
	}
	return q.reader.AllStatuses(ctx, msg.UserID)
}

type ListIntegrationsQuery struct {
	reader CatalogReader
}

func NewListIntegrationsQuery(reader CatalogReader) *ListIntegrationsQuery {
	return &ListIntegrationsQuery{reader: reader}
}

func (q *ListIntegrationsQuery) Query(ctx context.Context, _ ListIntegrationsMessage) ([]core.Integration, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: catalog reader is required")
	}
	return q.reader.List(ctx)
}

type GetUserDataQuery struct {
	reader UserDataReader
}

func NewGetUserDataQuery(reader UserDataReader) *GetUserDataQuery {
	return &GetUserDataQuery{reader: reader}
}

func (q *GetUserDataQuery) Query(ctx context.Context, msg GetUserDataMessage) (core.AggregatedData, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: user data reader is required")
	}
	items, err := q.reader.ListByUser(ctx, msg.UserID)
	if err != nil {
		return nil, err
	}
	return core.AggregateItems(items), nil
}
