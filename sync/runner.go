package sync

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-integrations/core"
)

// Resource is one fetchable slice of a provider's data, e.g. "recently
// played" or "activities". Fetch returns already-transformed candidates for
// the dedup upsert.
type Resource struct {
	Name         string
	ListName     string
	CategoryName string
	Fetch        func(ctx context.Context, token core.StoredToken, window Window) ([]core.ItemCandidate, error)
}

type RunInput struct {
	Provider  string
	UserID    string
	LinkID    string
	Token     core.StoredToken
	Resources []Resource
	Window    Window
}

// Runner executes a provider's resource pipeline. Resource failures are
// isolated; systemic failures (credential, rate limit, upstream outage)
// abort the run and leave the last-synced watermark untouched.
type Runner struct {
	Catalog core.CatalogStore
	Links   core.LinkStore
	Logger  core.Logger
	Now     func() time.Time
}

func (r Runner) Run(ctx context.Context, in RunInput) (core.SyncResult, error) {
	if r.Catalog == nil {
		return core.SyncResult{}, fmt.Errorf("sync: catalog store is required")
	}
	if strings.TrimSpace(in.Provider) == "" || strings.TrimSpace(in.UserID) == "" {
		return core.SyncResult{}, fmt.Errorf("sync: provider and user id are required")
	}

	result := core.SyncResult{
		Provider: in.Provider,
		UserID:   in.UserID,
		OK:       true,
	}

	for _, resource := range in.Resources {
		outcome, err := r.runResource(ctx, in, resource)
		result.Resources = append(result.Resources, outcome)
		result.TotalItems += outcome.Created + outcome.Updated + outcome.Unchanged
		result.Created += outcome.Created
		result.Updated += outcome.Updated
		result.Unchanged += outcome.Unchanged
		if err != nil {
			// A systemic failure poisons the whole run: stop here and do
			// not advance the watermark.
			result.OK = false
			return result, err
		}
	}

	syncedAt := r.now()
	if r.Links != nil && strings.TrimSpace(in.LinkID) != "" {
		if err := r.Links.MarkSynced(ctx, in.LinkID, syncedAt); err != nil {
			return result, err
		}
	}
	result.SyncedAt = &syncedAt
	return result, nil
}

func (r Runner) runResource(ctx context.Context, in RunInput, resource Resource) (core.ResourceOutcome, error) {
	outcome := core.ResourceOutcome{Resource: resource.Name}
	if resource.Fetch == nil {
		outcome.Failed = true
		outcome.Error = "resource has no fetcher"
		return outcome, nil
	}

	candidates, err := resource.Fetch(ctx, in.Token, in.Window)
	if err != nil {
		if core.IsSystemic(err) {
			outcome.Failed = true
			outcome.Error = err.Error()
			return outcome, err
		}
		r.logWarn(ctx, "resource fetch failed", in.Provider, in.UserID, resource.Name, err)
		outcome.Failed = true
		outcome.Error = err.Error()
		return outcome, nil
	}
	outcome.Fetched = len(candidates)

	for _, candidate := range candidates {
		listName := candidate.ListName
		if listName == "" {
			listName = resource.ListName
		}
		categoryName := candidate.CategoryName
		if categoryName == "" {
			categoryName = resource.CategoryName
		}
		_, upsertOutcome, upsertErr := r.Catalog.UpsertItem(ctx, core.UpsertItemInput{
			UserID:       in.UserID,
			Provider:     in.Provider,
			ListName:     listName,
			CategoryName: categoryName,
			Title:        candidate.Title,
			Attributes:   candidate.Attributes,
			External:     candidate.External,
		})
		if upsertErr != nil {
			wrapped := core.NewDataSyncError(in.Provider, resource.Name, upsertErr)
			r.logWarn(ctx, "item upsert failed", in.Provider, in.UserID, resource.Name, wrapped)
			outcome.Failed = true
			outcome.Error = wrapped.Error()
			continue
		}
		switch upsertOutcome {
		case core.UpsertOutcomeCreated:
			outcome.Created++
		case core.UpsertOutcomeUpdated:
			outcome.Updated++
		default:
			outcome.Unchanged++
		}
	}
	return outcome, nil
}

func (r Runner) logWarn(ctx context.Context, message, provider, userID, resource string, err error) {
	if r.Logger == nil {
		return
	}
	logger := r.Logger
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	logger.Warn(message,
		"provider", provider,
		"user_id", userID,
		"resource", resource,
		"error", err.Error(),
	)
}

func (r Runner) now() time.Time {
	if r.Now != nil {
		return r.Now().UTC()
	}
	return time.Now().UTC()
}
