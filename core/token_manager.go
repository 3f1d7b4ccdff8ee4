package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// DefaultExpirySkew is how early a token is treated as expired so requests
// in flight do not race the real expiry.
const DefaultExpirySkew = 60 * time.Second

const defaultRefreshLockTTL = 30 * time.Second

// TokenManager guarantees a usable access token per (provider, user). A
// refresh runs at most once per key at a time; concurrent callers block on
// the same lock and re-read the stored token once the winner persisted it.
type TokenManager struct {
	store     TokenStore
	refresher TokenRefresher
	locker    RefreshLocker
	skew      time.Duration
	lockTTL   time.Duration
	now       func() time.Time
	logger    Logger
}

type TokenManagerOption func(*TokenManager)

func WithTokenExpirySkew(skew time.Duration) TokenManagerOption {
	return func(m *TokenManager) {
		if skew > 0 {
			m.skew = skew
		}
	}
}

func WithRefreshLockTTL(ttl time.Duration) TokenManagerOption {
	return func(m *TokenManager) {
		if ttl > 0 {
			m.lockTTL = ttl
		}
	}
}

func WithTokenClock(now func() time.Time) TokenManagerOption {
	return func(m *TokenManager) {
		if now != nil {
			m.now = now
		}
	}
}

func WithTokenLogger(logger Logger) TokenManagerOption {
	return func(m *TokenManager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

func NewTokenManager(store TokenStore, refresher TokenRefresher, locker RefreshLocker, opts ...TokenManagerOption) (*TokenManager, error) {
	if store == nil {
		return nil, fmt.Errorf("core: token store is required")
	}
	if locker == nil {
		locker = NewMemoryRefreshLocker()
	}
	manager := &TokenManager{
		store:     store,
		refresher: refresher,
		locker:    locker,
		skew:      DefaultExpirySkew,
		lockTTL:   defaultRefreshLockTTL,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(manager)
	}
	return manager, nil
}

// EnsureValidAccessToken returns a token whose access token is usable at
// call time, refreshing and persisting it when needed.
func (m *TokenManager) EnsureValidAccessToken(ctx context.Context, provider, userID string) (StoredToken, error) {
	token, found, err := m.store.Get(ctx, provider, userID)
	if err != nil {
		return StoredToken{}, err
	}
	if !found {
		return StoredToken{}, NewInvalidTokenError(provider, userID)
	}
	if token.FreshFor(m.now(), m.skew) {
		return token, nil
	}
	return m.refreshSerialized(ctx, provider, userID)
}

func (m *TokenManager) refreshSerialized(ctx context.Context, provider, userID string) (StoredToken, error) {
	key := refreshLockKey(provider, userID)
	handle, err := m.locker.Acquire(ctx, key, m.lockTTL)
	if err != nil {
		return StoredToken{}, err
	}
	defer func() {
		if unlockErr := handle.Unlock(context.WithoutCancel(ctx)); unlockErr != nil && m.logger != nil {
			m.logger.Warn("refresh lock release failed", "provider", provider, "error", unlockErr.Error())
		}
	}()

	// Another caller may have refreshed while we waited on the lock.
	current, found, err := m.store.Get(ctx, provider, userID)
	if err != nil {
		return StoredToken{}, err
	}
	if !found {
		return StoredToken{}, NewInvalidTokenError(provider, userID)
	}
	if current.FreshFor(m.now(), m.skew) {
		return current, nil
	}
	if !current.Refreshable() {
		return StoredToken{}, NewInvalidTokenError(provider, userID)
	}
	if m.refresher == nil {
		return StoredToken{}, NewConfigurationError(provider, "no token refresher configured")
	}

	refreshed, err := m.refresher.Refresh(ctx, current)
	if err != nil {
		return StoredToken{}, err
	}
	refreshed.UserID = current.UserID
	refreshed.Provider = current.Provider
	if strings.TrimSpace(refreshed.RefreshToken) == "" {
		refreshed.RefreshToken = current.RefreshToken
	}
	if strings.TrimSpace(refreshed.ProviderUserID) == "" {
		refreshed.ProviderUserID = current.ProviderUserID
	}
	refreshed.UpdatedAt = m.now()
	if err := m.store.Save(ctx, refreshed); err != nil {
		return StoredToken{}, err
	}
	return refreshed, nil
}

func refreshLockKey(provider, userID string) string {
	return provider + "::" + userID
}

const refreshLockPollInterval = 10 * time.Millisecond

// MemoryRefreshLocker serializes refreshes within one process. Acquire
// blocks until the holder releases or ctx is done; a hold that is never
// released expires after its ttl and the key becomes acquirable again.
type MemoryRefreshLocker struct {
	mu    sync.Mutex
	holds map[string]memoryRefreshHold
}

type memoryRefreshHold struct {
	gen       uint64
	expiresAt time.Time
}

func NewMemoryRefreshLocker() *MemoryRefreshLocker {
	return &MemoryRefreshLocker{holds: map[string]memoryRefreshHold{}}
}

func (l *MemoryRefreshLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (LockHandle, error) {
	if strings.TrimSpace(key) == "" {
		return nil, fmt.Errorf("core: refresh lock key is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if ttl <= 0 {
		ttl = defaultRefreshLockTTL
	}
	for {
		if handle, ok := l.tryAcquire(key, ttl); ok {
			return handle, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(refreshLockPollInterval):
		}
	}
}

func (l *MemoryRefreshLocker) tryAcquire(key string, ttl time.Duration) (LockHandle, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := time.Now()
	hold, held := l.holds[key]
	if held && now.Before(hold.expiresAt) {
		return nil, false
	}
	// Either the key is free or the previous holder abandoned its hold
	// past the ttl; bumping the generation makes the stale handle's
	// Unlock a no-op.
	next := memoryRefreshHold{gen: hold.gen + 1, expiresAt: now.Add(ttl)}
	l.holds[key] = next
	return &memoryRefreshLockHandle{locker: l, key: key, gen: next.gen}, true
}

func (l *MemoryRefreshLocker) release(key string, gen uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if hold, ok := l.holds[key]; ok && hold.gen == gen {
		delete(l.holds, key)
	}
}

type memoryRefreshLockHandle struct {
	locker *MemoryRefreshLocker
	key    string
	gen    uint64
	once   sync.Once
}

func (h *memoryRefreshLockHandle) Unlock(context.Context) error {
	h.once.Do(func() { h.locker.release(h.key, h.gen) })
	return nil
}

var _ RefreshLocker = (*MemoryRefreshLocker)(nil)
