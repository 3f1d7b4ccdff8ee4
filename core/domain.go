package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalidLinkStatusTransition = errors.New("core: invalid link status transition")
	ErrLinkNotFound                = errors.New("core: user integration not found")
	ErrTokenNotFound               = errors.New("core: stored token not found")
)

type LinkStatus string

const (
	LinkStatusPending      LinkStatus = "pending"
	LinkStatusConnected    LinkStatus = "connected"
	LinkStatusDisconnected LinkStatus = "disconnected"
)

// Integration is the catalog row for a provider. It is created lazily the
// first time any user starts a connection, and its popularity counter
// increments each time a user newly connects.
type Integration struct {
	ID         string
	Name       string
	Popularity int
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// UserIntegration links one user to one integration. At most one
// non-disconnected row exists per (user, integration).
type UserIntegration struct {
	ID            string
	UserID        string
	IntegrationID string
	Status        LinkStatus
	LastError     string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (l *UserIntegration) TransitionTo(status LinkStatus, reason string, now time.Time) error {
	if l == nil {
		return nil
	}
	if l.Status == status {
		l.UpdatedAt = now
		if strings.TrimSpace(reason) != "" {
			l.LastError = strings.TrimSpace(reason)
		}
		return nil
	}
	if !linkTransitionAllowed(l.Status, status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidLinkStatusTransition, l.Status, status)
	}
	l.Status = status
	l.UpdatedAt = now
	if strings.TrimSpace(reason) != "" {
		l.LastError = strings.TrimSpace(reason)
	}
	if status == LinkStatusConnected {
		l.LastError = ""
	}
	return nil
}

func linkTransitionAllowed(current, next LinkStatus) bool {
	allowed := map[LinkStatus]map[LinkStatus]struct{}{
		LinkStatusPending: {
			LinkStatusConnected:    {},
			LinkStatusDisconnected: {},
		},
		LinkStatusConnected: {
			LinkStatusDisconnected: {},
		},
		LinkStatusDisconnected: {
			LinkStatusPending:   {},
			LinkStatusConnected: {},
		},
	}
	_, ok := allowed[current][next]
	return ok
}

// UserIntegrationHistory carries the connection and sync timestamps for one
// link. One row per link, updated in place.
type UserIntegrationHistory struct {
	LinkID           string
	FirstConnectedAt *time.Time
	LastConnectedAt  *time.Time
	LastSyncedAt     *time.Time
	UpdatedAt        time.Time
}

// StoredToken is the per-(user, provider) OAuth credential. It is owned by
// the token store: overwritten wholesale on refresh, deleted on disconnect.
// ExpiresAt is epoch seconds.
type StoredToken struct {
	UserID         string
	Provider       string
	AccessToken    string
	RefreshToken   string
	ExpiresAt      int64
	Scope          string
	ProviderUserID string
	UpdatedAt      time.Time
}

func (t StoredToken) Expiry() time.Time {
	return time.Unix(t.ExpiresAt, 0).UTC()
}

// FreshFor reports whether the access token is still usable at now with the
// given expiry skew.
func (t StoredToken) FreshFor(now time.Time, skew time.Duration) bool {
	if strings.TrimSpace(t.AccessToken) == "" {
		return false
	}
	if t.ExpiresAt <= 0 {
		return false
	}
	return t.Expiry().Sub(now) > skew
}

func (t StoredToken) Refreshable() bool {
	return strings.TrimSpace(t.RefreshToken) != ""
}

// ExternalRef is the dedup identity of a synced item: at most one live item
// exists per (list, user list, provider, external id).
type ExternalRef struct {
	Provider string
	ID       string
	Type     string
}

func (r ExternalRef) Validate() error {
	if strings.TrimSpace(r.Provider) == "" {
		return fmt.Errorf("core: external ref provider is required")
	}
	if strings.TrimSpace(r.ID) == "" {
		return fmt.Errorf("core: external ref id is required")
	}
	return nil
}

// ItemCandidate is one fetched-and-transformed provider item before the
// dedup upsert.
type ItemCandidate struct {
	ListName     string
	CategoryName string
	Title        string
	Attributes   map[string]any
	External     ExternalRef
}

// CatalogItem is a persisted, deduplicated item.
type CatalogItem struct {
	ID           string
	ListID       string
	UserListID   string
	CategoryID   string
	ListName     string
	CategoryName string
	Title        string
	Attributes   map[string]any
	External     ExternalRef
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type UpsertOutcome string

const (
	UpsertOutcomeCreated   UpsertOutcome = "created"
	UpsertOutcomeUpdated   UpsertOutcome = "updated"
	UpsertOutcomeUnchanged UpsertOutcome = "unchanged"
)
