package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

type testProvider struct {
	id          string
	statePrefix string

	connectFn    func(ctx context.Context, userID string) (ConnectResult, error)
	callbackFn   func(ctx context.Context, payload CallbackPayload) error
	syncFn       func(ctx context.Context, userID string) (SyncResult, error)
	statusFn     func(ctx context.Context, userID string) (StatusResult, error)
	disconnectFn func(ctx context.Context, userID string) error
}

func (p testProvider) ID() string { return p.id }

func (p testProvider) StatePrefix() string { return p.statePrefix }

func (p testProvider) Connect(ctx context.Context, userID string) (ConnectResult, error) {
	if p.connectFn != nil {
		return p.connectFn(ctx, userID)
	}
	return ConnectResult{
		Provider:    p.id,
		RedirectURL: "https://example.com/authorize",
		State:       p.statePrefix + "-" + userID + "-1700000000000",
	}, nil
}

func (p testProvider) HandleCallback(ctx context.Context, payload CallbackPayload) error {
	if p.callbackFn != nil {
		return p.callbackFn(ctx, payload)
	}
	return nil
}

func (p testProvider) Sync(ctx context.Context, userID string) (SyncResult, error) {
	if p.syncFn != nil {
		return p.syncFn(ctx, userID)
	}
	return SyncResult{Provider: p.id, UserID: userID, OK: true}, nil
}

func (p testProvider) Status(ctx context.Context, userID string) (StatusResult, error) {
	if p.statusFn != nil {
		return p.statusFn(ctx, userID)
	}
	return StatusResult{Provider: p.id, UserID: userID, Connected: false, Status: LinkStatusDisconnected}, nil
}

func (p testProvider) Disconnect(ctx context.Context, userID string) error {
	if p.disconnectFn != nil {
		return p.disconnectFn(ctx, userID)
	}
	return nil
}

type captureJobEnqueuer struct {
	mu       sync.Mutex
	messages []*JobExecutionMessage
	err      error
}

func (e *captureJobEnqueuer) Enqueue(_ context.Context, msg *JobExecutionMessage) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return e.err
	}
	e.messages = append(e.messages, msg)
	return nil
}

type memoryTokenStore struct {
	mu     sync.Mutex
	tokens map[string]StoredToken

	getCalls    int
	saveCalls   int
	deleteCalls int
	deleteErr   error
}

func newMemoryTokenStore() *memoryTokenStore {
	return &memoryTokenStore{tokens: map[string]StoredToken{}}
}

func tokenKey(provider, userID string) string {
	return provider + "::" + userID
}

func (s *memoryTokenStore) Get(_ context.Context, provider, userID string) (StoredToken, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getCalls++
	token, ok := s.tokens[tokenKey(provider, userID)]
	return token, ok, nil
}

func (s *memoryTokenStore) Save(_ context.Context, token StoredToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveCalls++
	if strings.TrimSpace(token.Provider) == "" || strings.TrimSpace(token.UserID) == "" {
		return fmt.Errorf("token provider and user id are required")
	}
	s.tokens[tokenKey(token.Provider, token.UserID)] = token
	return nil
}

func (s *memoryTokenStore) Delete(_ context.Context, provider, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleteCalls++
	if s.deleteErr != nil {
		return s.deleteErr
	}
	delete(s.tokens, tokenKey(provider, userID))
	return nil
}

type memoryIntegrationStore struct {
	mu   sync.Mutex
	next int
	rows map[string]Integration
}

func newMemoryIntegrationStore() *memoryIntegrationStore {
	return &memoryIntegrationStore{rows: map[string]Integration{}}
}

func (s *memoryIntegrationStore) Ensure(_ context.Context, name string) (Integration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	name = strings.TrimSpace(name)
	if name == "" {
		return Integration{}, fmt.Errorf("integration name is required")
	}
	if row, ok := s.rows[name]; ok {
		return row, nil
	}
	s.next++
	now := time.Now().UTC()
	row := Integration{
		ID:        fmt.Sprintf("int_%d", s.next),
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.rows[name] = row
	return row, nil
}

func (s *memoryIntegrationStore) Get(_ context.Context, name string) (Integration, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[strings.TrimSpace(name)]
	return row, ok, nil
}

func (s *memoryIntegrationStore) IncrementPopularity(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[strings.TrimSpace(name)]
	if !ok {
		return fmt.Errorf("integration %q not found", name)
	}
	row.Popularity++
	row.UpdatedAt = time.Now().UTC()
	s.rows[row.Name] = row
	return nil
}

func (s *memoryIntegrationStore) List(_ context.Context) ([]Integration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Integration, 0, len(s.rows))
	for _, row := range s.rows {
		out = append(out, row)
	}
	return out, nil
}

type memoryLinkStore struct {
	mu        sync.Mutex
	next      int
	links     map[string]UserIntegration
	histories map[string]UserIntegrationHistory

	updateStatusErr error
}

func newMemoryLinkStore() *memoryLinkStore {
	return &memoryLinkStore{
		links:     map[string]UserIntegration{},
		histories: map[string]UserIntegrationHistory{},
	}
}

func (s *memoryLinkStore) Find(_ context.Context, userID, integrationID string) (UserIntegration, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, link := range s.links {
		if link.UserID == userID && link.IntegrationID == integrationID {
			return link, true, nil
		}
	}
	return UserIntegration{}, false, nil
}

func (s *memoryLinkStore) Create(_ context.Context, link UserIntegration) (UserIntegration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	link.ID = fmt.Sprintf("link_%d", s.next)
	now := time.Now().UTC()
	link.CreatedAt = now
	link.UpdatedAt = now
	if link.Status == "" {
		link.Status = LinkStatusPending
	}
	s.links[link.ID] = link
	return link, nil
}

func (s *memoryLinkStore) UpdateStatus(_ context.Context, linkID string, status LinkStatus, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateStatusErr != nil {
		return s.updateStatusErr
	}
	link, ok := s.links[linkID]
	if !ok {
		return ErrLinkNotFound
	}
	if err := link.TransitionTo(status, reason, time.Now().UTC()); err != nil {
		return err
	}
	s.links[linkID] = link
	return nil
}

func (s *memoryLinkStore) History(_ context.Context, linkID string) (UserIntegrationHistory, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	history, ok := s.histories[linkID]
	return history, ok, nil
}

func (s *memoryLinkStore) MarkConnected(_ context.Context, linkID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	history := s.histories[linkID]
	history.LinkID = linkID
	if history.FirstConnectedAt == nil {
		first := at
		history.FirstConnectedAt = &first
	}
	last := at
	history.LastConnectedAt = &last
	history.UpdatedAt = at
	s.histories[linkID] = history
	return nil
}

func (s *memoryLinkStore) MarkSynced(_ context.Context, linkID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	history := s.histories[linkID]
	history.LinkID = linkID
	synced := at
	history.LastSyncedAt = &synced
	history.UpdatedAt = at
	s.histories[linkID] = history
	return nil
}

func (s *memoryLinkStore) ListByUser(_ context.Context, userID string) ([]UserIntegration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]UserIntegration, 0)
	for _, link := range s.links {
		if link.UserID == userID {
			out = append(out, link)
		}
	}
	return out, nil
}

type memoryCatalogStore struct {
	mu    sync.Mutex
	next  int
	items map[string]CatalogItem
}

func newMemoryCatalogStore() *memoryCatalogStore {
	return &memoryCatalogStore{items: map[string]CatalogItem{}}
}

func catalogKey(in UpsertItemInput) string {
	return strings.Join([]string{in.UserID, in.ListName, in.External.Provider, in.External.ID}, "::")
}

func (s *memoryCatalogStore) UpsertItem(_ context.Context, in UpsertItemInput) (CatalogItem, UpsertOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := in.External.Validate(); err != nil {
		return CatalogItem{}, "", err
	}
	key := catalogKey(in)
	now := time.Now().UTC()
	if existing, ok := s.items[key]; ok {
		if fmt.Sprint(existing.Attributes) == fmt.Sprint(in.Attributes) && existing.Title == in.Title {
			return existing, UpsertOutcomeUnchanged, nil
		}
		existing.Title = in.Title
		existing.Attributes = in.Attributes
		existing.UpdatedAt = now
		s.items[key] = existing
		return existing, UpsertOutcomeUpdated, nil
	}
	s.next++
	item := CatalogItem{
		ID:           fmt.Sprintf("item_%d", s.next),
		ListName:     in.ListName,
		CategoryName: in.CategoryName,
		Title:        in.Title,
		Attributes:   in.Attributes,
		External:     in.External,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.items[key] = item
	return item, UpsertOutcomeCreated, nil
}

func (s *memoryCatalogStore) ListByUser(_ context.Context, userID string) ([]CatalogItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]CatalogItem, 0)
	for key, item := range s.items {
		if strings.HasPrefix(key, userID+"::") {
			out = append(out, item)
		}
	}
	return out, nil
}

type staticProfileReader struct {
	profiles map[string]map[string]any
}

func (r staticProfileReader) Profile(_ context.Context, userID string) (map[string]any, bool, error) {
	profile, ok := r.profiles[userID]
	return profile, ok, nil
}

type stubRefresher struct {
	mu      sync.Mutex
	calls   int
	refresh func(ctx context.Context, token StoredToken) (StoredToken, error)
}

func (r *stubRefresher) Refresh(ctx context.Context, token StoredToken) (StoredToken, error) {
	r.mu.Lock()
	r.calls++
	r.mu.Unlock()
	if r.refresh != nil {
		return r.refresh(ctx, token)
	}
	return StoredToken{
		UserID:      token.UserID,
		Provider:    token.Provider,
		AccessToken: "refreshed-access",
		ExpiresAt:   time.Now().UTC().Add(time.Hour).Unix(),
	}, nil
}

func (r *stubRefresher) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}
