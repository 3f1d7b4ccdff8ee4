package core

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestTokenManager_ReturnsFreshTokenWithoutRefresh(t *testing.T) {
	store := newMemoryTokenStore()
	refresher := &stubRefresher{}
	now := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)

	token := StoredToken{
		UserID:      "user_1",
		Provider:    "spotify",
		AccessToken: "access",
		ExpiresAt:   now.Add(time.Hour).Unix(),
	}
	if err := store.Save(context.Background(), token); err != nil {
		t.Fatalf("seed token: %v", err)
	}

	manager, err := NewTokenManager(store, refresher, nil, WithTokenClock(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("new token manager: %v", err)
	}

	got, err := manager.EnsureValidAccessToken(context.Background(), "spotify", "user_1")
	if err != nil {
		t.Fatalf("ensure valid token: %v", err)
	}
	if got.AccessToken != "access" {
		t.Fatalf("expected stored token returned, got %q", got.AccessToken)
	}
	if refresher.callCount() != 0 {
		t.Fatalf("expected no refresh, got %d", refresher.callCount())
	}
}

func TestTokenManager_RefreshesInsideSkewWindow(t *testing.T) {
	store := newMemoryTokenStore()
	refresher := &stubRefresher{}
	now := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)

	seed := StoredToken{
		UserID:       "user_1",
		Provider:     "spotify",
		AccessToken:  "stale-access",
		RefreshToken: "refresh-1",
		ExpiresAt:    now.Add(30 * time.Second).Unix(),
	}
	if err := store.Save(context.Background(), seed); err != nil {
		t.Fatalf("seed token: %v", err)
	}

	manager, err := NewTokenManager(store, refresher, nil, WithTokenClock(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("new token manager: %v", err)
	}

	got, err := manager.EnsureValidAccessToken(context.Background(), "spotify", "user_1")
	if err != nil {
		t.Fatalf("ensure valid token: %v", err)
	}
	if got.AccessToken != "refreshed-access" {
		t.Fatalf("expected refreshed token, got %q", got.AccessToken)
	}
	if refresher.callCount() != 1 {
		t.Fatalf("expected one refresh, got %d", refresher.callCount())
	}

	// The refresher returned no refresh token, so the previous one must
	// survive the overwrite.
	persisted, found, err := store.Get(context.Background(), "spotify", "user_1")
	if err != nil || !found {
		t.Fatalf("read persisted token: found=%v err=%v", found, err)
	}
	if persisted.RefreshToken != "refresh-1" {
		t.Fatalf("expected refresh token carried over, got %q", persisted.RefreshToken)
	}
}

func TestTokenManager_MissingTokenIsInvalidToken(t *testing.T) {
	manager, err := NewTokenManager(newMemoryTokenStore(), &stubRefresher{}, nil)
	if err != nil {
		t.Fatalf("new token manager: %v", err)
	}
	_, err = manager.EnsureValidAccessToken(context.Background(), "spotify", "user_1")
	if !IsInvalidToken(err) {
		t.Fatalf("expected invalid token error, got %v", err)
	}
}

func TestTokenManager_ExpiredWithoutRefreshTokenIsInvalidToken(t *testing.T) {
	store := newMemoryTokenStore()
	now := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	seed := StoredToken{
		UserID:      "user_1",
		Provider:    "spotify",
		AccessToken: "stale",
		ExpiresAt:   now.Add(-time.Minute).Unix(),
	}
	if err := store.Save(context.Background(), seed); err != nil {
		t.Fatalf("seed token: %v", err)
	}

	manager, err := NewTokenManager(store, &stubRefresher{}, nil, WithTokenClock(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("new token manager: %v", err)
	}
	_, err = manager.EnsureValidAccessToken(context.Background(), "spotify", "user_1")
	if !IsInvalidToken(err) {
		t.Fatalf("expected invalid token error, got %v", err)
	}
}

func TestTokenManager_SerializesConcurrentRefreshes(t *testing.T) {
	store := newMemoryTokenStore()
	now := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	seed := StoredToken{
		UserID:       "user_1",
		Provider:     "spotify",
		AccessToken:  "stale",
		RefreshToken: "refresh-1",
		ExpiresAt:    now.Add(-time.Minute).Unix(),
	}
	if err := store.Save(context.Background(), seed); err != nil {
		t.Fatalf("seed token: %v", err)
	}

	refresher := &stubRefresher{
		refresh: func(_ context.Context, token StoredToken) (StoredToken, error) {
			time.Sleep(10 * time.Millisecond)
			return StoredToken{
				UserID:      token.UserID,
				Provider:    token.Provider,
				AccessToken: "refreshed-access",
				ExpiresAt:   now.Add(time.Hour).Unix(),
			}, nil
		},
	}
	manager, err := NewTokenManager(store, refresher, nil, WithTokenClock(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("new token manager: %v", err)
	}

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ensureErr := manager.EnsureValidAccessToken(context.Background(), "spotify", "user_1")
			errs <- ensureErr
		}()
	}
	wg.Wait()
	close(errs)
	for ensureErr := range errs {
		if ensureErr != nil {
			t.Fatalf("concurrent ensure: %v", ensureErr)
		}
	}

	if refresher.callCount() != 1 {
		t.Fatalf("expected exactly one refresh across %d callers, got %d", workers, refresher.callCount())
	}
}

func TestMemoryRefreshLocker_BlocksUntilReleased(t *testing.T) {
	locker := NewMemoryRefreshLocker()
	handle, err := locker.Acquire(context.Background(), "spotify::user_1", time.Second)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	acquired := make(chan struct{})
	go func() {
		second, acquireErr := locker.Acquire(context.Background(), "spotify::user_1", time.Second)
		if acquireErr != nil {
			t.Errorf("second acquire: %v", acquireErr)
			close(acquired)
			return
		}
		close(acquired)
		_ = second.Unlock(context.Background())
	}()

	select {
	case <-acquired:
		t.Fatalf("second acquire should block while lock is held")
	case <-time.After(20 * time.Millisecond):
	}

	if err := handle.Unlock(context.Background()); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatalf("second acquire should proceed after unlock")
	}
}

func TestMemoryRefreshLocker_ContextCancellation(t *testing.T) {
	locker := NewMemoryRefreshLocker()
	if _, err := locker.Acquire(context.Background(), "k", time.Second); err != nil {
		t.Fatalf("acquire: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := locker.Acquire(ctx, "k", time.Second); err == nil {
		t.Fatalf("expected cancelled acquire to fail")
	}

	// Independent keys never contend.
	if _, err := locker.Acquire(context.Background(), "other", time.Second); err != nil {
		t.Fatalf("acquire independent key: %v", err)
	}
}

func TestMemoryRefreshLocker_ReclaimsAbandonedHold(t *testing.T) {
	locker := NewMemoryRefreshLocker()
	abandoned, err := locker.Acquire(context.Background(), "spotify::user_1", 30*time.Millisecond)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	handle, err := locker.Acquire(ctx, "spotify::user_1", time.Second)
	if err != nil {
		t.Fatalf("acquire after abandoned hold expired: %v", err)
	}

	// The stale handle's unlock must not free the new holder's slot.
	if err := abandoned.Unlock(context.Background()); err != nil {
		t.Fatalf("unlock stale handle: %v", err)
	}
	blockedCtx, blockedCancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer blockedCancel()
	if _, err := locker.Acquire(blockedCtx, "spotify::user_1", time.Second); err == nil {
		t.Fatalf("expected key still held by the live handle")
	}

	if err := handle.Unlock(context.Background()); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	if _, err := locker.Acquire(context.Background(), "spotify::user_1", time.Second); err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
}
