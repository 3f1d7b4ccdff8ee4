package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

// Provider is the adapter contract every integration implements. The
// orchestrator never talks to a provider's API directly; it resolves the
// provider from the registry and delegates.
type Provider interface {
	// ID is the canonical provider key, e.g. "spotify".
	ID() string
	// StatePrefix is the legacy callback state prefix for this provider,
	// empty when the provider only accepts signed states.
	StatePrefix() string
	Connect(ctx context.Context, userID string) (ConnectResult, error)
	HandleCallback(ctx context.Context, payload CallbackPayload) error
	Sync(ctx context.Context, userID string) (SyncResult, error)
	Status(ctx context.Context, userID string) (StatusResult, error)
	// Disconnect performs the provider-side revoke only. Local token
	// deletion and status bookkeeping belong to the orchestrator.
	Disconnect(ctx context.Context, userID string) error
}

type ConnectResult struct {
	Provider    string
	RedirectURL string
	LinkToken   string
	State       string
	Metadata    map[string]any
}

type CallbackPayload struct {
	Provider         string
	State            string
	Code             string
	UserToken        string
	Error            string
	ErrorDescription string
	Metadata         map[string]any
}

type SyncResult struct {
	Provider   string
	UserID     string
	OK         bool
	SyncedAt   *time.Time
	TotalItems int
	Created    int
	Updated    int
	Unchanged  int
	Resources  []ResourceOutcome
}

// ResourceOutcome is the per-resource breakdown of one sync run. Failed
// resources record their error and do not abort sibling resources.
type ResourceOutcome struct {
	Resource  string
	Fetched   int
	Created   int
	Updated   int
	Unchanged int
	Failed    bool
	Error     string
}

type StatusResult struct {
	Provider         string
	UserID           string
	Connected        bool
	Status           LinkStatus
	Popularity       int
	HasToken         bool
	FirstConnectedAt *time.Time
	LastConnectedAt  *time.Time
	LastSyncedAt     *time.Time
	Error            string
}

// DisconnectResult is always returned without an error for the
// not-connected case: callers receive a 400 payload, not a failure.
type DisconnectResult struct {
	Provider         string
	StatusCode       int
	ConnectionStatus string
}

// CallbackOutcome is the enriched callback response: the user profile, the
// resulting connection status, and the user's synced data grouped into
// display buckets.
type CallbackOutcome struct {
	Provider string
	UserID   string
	Status   StatusResult
	Profile  map[string]any
	Data     AggregatedData
}

type Registry interface {
	Register(provider Provider) error
	Get(id string) (Provider, bool)
	List() []Provider
}

type TokenStore interface {
	Get(ctx context.Context, provider, userID string) (StoredToken, bool, error)
	Save(ctx context.Context, token StoredToken) error
	Delete(ctx context.Context, provider, userID string) error
}

type IntegrationStore interface {
	// Ensure returns the catalog row for name, creating it when absent.
	Ensure(ctx context.Context, name string) (Integration, error)
	Get(ctx context.Context, name string) (Integration, bool, error)
	IncrementPopularity(ctx context.Context, name string) error
	List(ctx context.Context) ([]Integration, error)
}

type LinkStore interface {
	Find(ctx context.Context, userID, integrationID string) (UserIntegration, bool, error)
	Create(ctx context.Context, link UserIntegration) (UserIntegration, error)
	UpdateStatus(ctx context.Context, linkID string, status LinkStatus, reason string) error
	History(ctx context.Context, linkID string) (UserIntegrationHistory, bool, error)
	MarkConnected(ctx context.Context, linkID string, at time.Time) error
	MarkSynced(ctx context.Context, linkID string, at time.Time) error
	ListByUser(ctx context.Context, userID string) ([]UserIntegration, error)
}

type UpsertItemInput struct {
	UserID       string
	Provider     string
	ListName     string
	CategoryName string
	Title        string
	Attributes   map[string]any
	External     ExternalRef
}

type CatalogStore interface {
	// UpsertItem deduplicates by (list, user list, provider, external id)
	// and only writes when the incoming attributes differ.
	UpsertItem(ctx context.Context, in UpsertItemInput) (CatalogItem, UpsertOutcome, error)
	ListByUser(ctx context.Context, userID string) ([]CatalogItem, error)
}

// UserProfileReader is optional; when absent, callback outcomes carry an
// empty profile.
type UserProfileReader interface {
	Profile(ctx context.Context, userID string) (map[string]any, bool, error)
}

type StoreProvider interface {
	TokenStore() TokenStore
	IntegrationStore() IntegrationStore
	LinkStore() LinkStore
	CatalogStore() CatalogStore
}

type RepositoryStoreFactory interface {
	BuildStores(persistenceClient any) (StoreProvider, error)
}

// TokenRefresher exchanges a refresh token for a new credential. The token
// manager owns persistence and carry-over of the refresh token.
type TokenRefresher interface {
	Refresh(ctx context.Context, token StoredToken) (StoredToken, error)
}

type LockHandle interface {
	Unlock(ctx context.Context) error
}

// RefreshLocker serializes token refreshes per (provider, user). Acquire
// blocks until the lock is available or ctx is done.
type RefreshLocker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (LockHandle, error)
}

// StateCodec encodes and validates the opaque OAuth callback state.
type StateCodec interface {
	Encode(claims StateClaims) (string, error)
	Decode(state string) (StateClaims, error)
}

type StateClaims struct {
	Provider string
	UserID   string
	Nonce    string
	IssuedAt time.Time
}

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

// SyncJobID is the queue job id for one (provider, user) sync run.
const SyncJobID = "integrations.sync"

type JobExecutionMessage struct {
	JobID          string
	Provider       string
	UserID         string
	Parameters     map[string]any
	IdempotencyKey string
	DedupPolicy    string
}

type JobNackOptions struct {
	Delay      time.Duration
	Requeue    bool
	DeadLetter bool
	Reason     string
}

type JobEnqueuer interface {
	Enqueue(ctx context.Context, msg *JobExecutionMessage) error
}

type JobDelivery interface {
	Message() *JobExecutionMessage
	Ack(ctx context.Context) error
	Nack(ctx context.Context, opts JobNackOptions) error
}

type JobDequeuer interface {
	Dequeue(ctx context.Context) (JobDelivery, error)
}

type JobWorkerHook interface {
	OnStart(ctx context.Context, event JobWorkerEvent)
	OnSuccess(ctx context.Context, event JobWorkerEvent)
	OnFailure(ctx context.Context, event JobWorkerEvent)
	OnRetry(ctx context.Context, event JobWorkerEvent)
}

type JobWorkerEvent struct {
	Message   *JobExecutionMessage
	Attempt   int
	Delay     time.Duration
	Err       error
	StartedAt time.Time
	Duration  time.Duration
}
