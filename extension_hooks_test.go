package integrations

import (
	"context"
	"fmt"
	"testing"

	"github.com/goliatone/go-integrations/core"
)

type packProvider struct {
	id string
}

func (p packProvider) ID() string          { return p.id }
func (p packProvider) StatePrefix() string { return p.id + "-" }

func (p packProvider) Connect(ctx context.Context, userID string) (core.ConnectResult, error) {
	return core.ConnectResult{Provider: p.id}, nil
}

func (p packProvider) HandleCallback(ctx context.Context, payload core.CallbackPayload) error {
	return nil
}

func (p packProvider) Sync(ctx context.Context, userID string) (core.SyncResult, error) {
	return core.SyncResult{Provider: p.id, UserID: userID}, nil
}

func (p packProvider) Status(ctx context.Context, userID string) (core.StatusResult, error) {
	return core.StatusResult{Provider: p.id, UserID: userID}, nil
}

func (p packProvider) Disconnect(ctx context.Context, userID string) error { return nil }

func TestExtensionHooks_RegisterProviderPackValidation(t *testing.T) {
	hooks := NewExtensionHooks()

	if err := hooks.RegisterProviderPack(ProviderPack{Name: " ", Providers: []core.Provider{packProvider{id: "spotify"}}}); err == nil {
		t.Fatal("expected error for blank pack name")
	}
	if err := hooks.RegisterProviderPack(ProviderPack{Name: "music"}); err == nil {
		t.Fatal("expected error for pack without providers")
	}

	pack := ProviderPack{Name: "music", Providers: []core.Provider{packProvider{id: "spotify"}}}
	if err := hooks.RegisterProviderPack(pack); err != nil {
		t.Fatalf("register pack: %v", err)
	}
	if err := hooks.RegisterProviderPack(pack); err == nil {
		t.Fatal("expected error for duplicate pack name")
	}
}

func TestExtensionHooks_ApplyProviderPacksRegistersInNameOrder(t *testing.T) {
	hooks := NewExtensionHooks()

	if err := hooks.RegisterProviderPack(ProviderPack{
		Name:      "wellness",
		Providers: []core.Provider{packProvider{id: "strava"}},
	}); err != nil {
		t.Fatalf("register wellness pack: %v", err)
	}
	if err := hooks.RegisterProviderPack(ProviderPack{
		Name:      "music",
		Providers: []core.Provider{packProvider{id: "spotify"}, packProvider{id: "applemusic"}},
	}); err != nil {
		t.Fatalf("register music pack: %v", err)
	}

	registry := core.NewProviderRegistry()
	if err := hooks.ApplyProviderPacks(registry); err != nil {
		t.Fatalf("apply packs: %v", err)
	}

	for _, id := range []string{"spotify", "applemusic", "strava"} {
		if _, ok := registry.Get(id); !ok {
			t.Fatalf("expected provider %q in registry", id)
		}
	}

	packs := hooks.ProviderPacks()
	if len(packs) != 2 || packs[0].Name != "music" || packs[1].Name != "wellness" {
		t.Fatalf("expected packs sorted by name, got %+v", packs)
	}
}

func TestExtensionHooks_ApplyProviderPacksRejectsNilProvider(t *testing.T) {
	hooks := NewExtensionHooks()
	if err := hooks.RegisterProviderPack(ProviderPack{
		Name:      "broken",
		Providers: []core.Provider{nil},
	}); err != nil {
		t.Fatalf("register pack: %v", err)
	}

	if err := hooks.ApplyProviderPacks(core.NewProviderRegistry()); err == nil {
		t.Fatal("expected error for nil provider in pack")
	}
}

func TestExtensionHooks_BuildCommandQueryBundles(t *testing.T) {
	hooks := NewExtensionHooks()

	if err := hooks.RegisterCommandQueryBundle("", func(service CommandQueryService) (any, error) {
		return nil, nil
	}); err == nil {
		t.Fatal("expected error for blank bundle name")
	}
	if err := hooks.RegisterCommandQueryBundle("reporting", nil); err == nil {
		t.Fatal("expected error for nil factory")
	}

	if err := hooks.RegisterCommandQueryBundle("reporting", func(service CommandQueryService) (any, error) {
		facade, err := NewFacade(service)
		if err != nil {
			return nil, err
		}
		return facade, nil
	}); err != nil {
		t.Fatalf("register bundle: %v", err)
	}
	if err := hooks.RegisterCommandQueryBundle("audit", func(service CommandQueryService) (any, error) {
		return "audit-bundle", nil
	}); err != nil {
		t.Fatalf("register audit bundle: %v", err)
	}

	names := hooks.BundleNames()
	if len(names) != 2 || names[0] != "audit" || names[1] != "reporting" {
		t.Fatalf("expected sorted bundle names, got %v", names)
	}

	bundles, err := hooks.BuildCommandQueryBundles(&stubOrchestrator{})
	if err != nil {
		t.Fatalf("build bundles: %v", err)
	}
	if len(bundles) != 2 {
		t.Fatalf("expected two bundles, got %d", len(bundles))
	}
	if _, ok := bundles["reporting"].(*Facade); !ok {
		t.Fatalf("expected reporting bundle to be a facade, got %T", bundles["reporting"])
	}
}

func TestExtensionHooks_BuildBundlesPropagatesFactoryError(t *testing.T) {
	hooks := NewExtensionHooks()
	if err := hooks.RegisterCommandQueryBundle("broken", func(service CommandQueryService) (any, error) {
		return nil, fmt.Errorf("bundle exploded")
	}); err != nil {
		t.Fatalf("register bundle: %v", err)
	}

	if _, err := hooks.BuildCommandQueryBundles(&stubOrchestrator{}); err == nil {
		t.Fatal("expected factory error to propagate")
	}
}

func TestExtensionHooks_NilReceiverIsSafe(t *testing.T) {
	var hooks *ExtensionHooks

	if err := hooks.ApplyProviderPacks(core.NewProviderRegistry()); err != nil {
		t.Fatalf("nil hooks apply: %v", err)
	}
	if packs := hooks.ProviderPacks(); packs != nil {
		t.Fatalf("expected nil packs, got %+v", packs)
	}
	bundles, err := hooks.BuildCommandQueryBundles(&stubOrchestrator{})
	if err != nil {
		t.Fatalf("nil hooks build: %v", err)
	}
	if len(bundles) != 0 {
		t.Fatalf("expected empty bundles, got %+v", bundles)
	}
	if err := hooks.RegisterProviderPack(ProviderPack{Name: "music"}); err == nil {
		t.Fatal("expected error registering on nil hooks")
	}
}
