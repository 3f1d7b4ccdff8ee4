package core

import "testing"

func TestProviderRegistry_ListDeterministicOrder(t *testing.T) {
	registry := NewProviderRegistry()
	for _, provider := range []Provider{
		testProvider{id: "strava"},
		testProvider{id: "applemusic"},
		testProvider{id: "plaid"},
	} {
		if err := registry.Register(provider); err != nil {
			t.Fatalf("register provider: %v", err)
		}
	}

	listed := registry.List()
	if len(listed) != 3 {
		t.Fatalf("expected 3 providers, got %d", len(listed))
	}

	got := []string{listed[0].ID(), listed[1].ID(), listed[2].ID()}
	want := []string{"applemusic", "plaid", "strava"}
	for idx := range want {
		if got[idx] != want[idx] {
			t.Fatalf("unexpected ordering at index %d: got %v want %v", idx, got, want)
		}
	}
}

func TestProviderRegistry_DuplicateIDRejected(t *testing.T) {
	registry := NewProviderRegistry()
	if err := registry.Register(testProvider{id: "spotify"}); err != nil {
		t.Fatalf("register provider: %v", err)
	}
	if err := registry.Register(testProvider{id: "spotify"}); err == nil {
		t.Fatalf("expected duplicate registration to fail")
	}
}

func TestProviderRegistry_RejectsBlankID(t *testing.T) {
	registry := NewProviderRegistry()
	if err := registry.Register(testProvider{id: "  "}); err == nil {
		t.Fatalf("expected blank id to be rejected")
	}
	if err := registry.Register(nil); err == nil {
		t.Fatalf("expected nil provider to be rejected")
	}
	if _, ok := registry.Get(""); ok {
		t.Fatalf("expected blank lookup to miss")
	}
}
