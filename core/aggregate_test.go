package core

import "testing"

func TestBuildStatusOverview_OrdersByPopularity(t *testing.T) {
	statuses := []StatusResult{
		{Provider: "pocket", Popularity: 1},
		{Provider: "spotify", Popularity: 50},
		{Provider: "broken", Error: "status lookup failed"},
		{Provider: "strava", Popularity: 20},
		{Provider: "plaid", Popularity: 8},
		{Provider: "gmail", Popularity: 3},
	}

	overview := BuildStatusOverview(statuses)

	wantOrder := []string{"spotify", "strava", "plaid", "gmail", "pocket", "broken"}
	if len(overview.Statuses) != len(wantOrder) {
		t.Fatalf("expected %d statuses, got %d", len(wantOrder), len(overview.Statuses))
	}
	for idx, want := range wantOrder {
		if overview.Statuses[idx].Provider != want {
			t.Fatalf("unexpected order at %d: got %s want %s", idx, overview.Statuses[idx].Provider, want)
		}
	}

	if len(overview.TopIntegrations) != 3 {
		t.Fatalf("expected 3 top integrations, got %d", len(overview.TopIntegrations))
	}
	if overview.TopIntegrations[0].Provider != "spotify" {
		t.Fatalf("expected spotify on top, got %s", overview.TopIntegrations[0].Provider)
	}

	grouped := 0
	for _, members := range overview.Groups {
		grouped += len(members)
	}
	if grouped != 3 {
		t.Fatalf("expected 3 grouped statuses, got %d", grouped)
	}
	if len(overview.Groups[GroupProductivity]) != 1 || overview.Groups[GroupProductivity][0].Provider != "gmail" {
		t.Fatalf("expected gmail in productivity group, got %+v", overview.Groups[GroupProductivity])
	}
	if len(overview.Groups[GroupReading]) != 1 || overview.Groups[GroupReading][0].Provider != "pocket" {
		t.Fatalf("expected pocket in reading group, got %+v", overview.Groups[GroupReading])
	}
	if len(overview.Groups[GroupOther]) != 1 || overview.Groups[GroupOther][0].Provider != "broken" {
		t.Fatalf("expected unknown provider in other group, got %+v", overview.Groups[GroupOther])
	}
}

func TestBuildStatusOverview_FewerThanThree(t *testing.T) {
	overview := BuildStatusOverview([]StatusResult{
		{Provider: "spotify", Popularity: 2},
		{Provider: "strava", Popularity: 9},
	})
	if len(overview.TopIntegrations) != 2 {
		t.Fatalf("expected both statuses on top, got %d", len(overview.TopIntegrations))
	}
	if overview.TopIntegrations[0].Provider != "strava" {
		t.Fatalf("expected strava first, got %s", overview.TopIntegrations[0].Provider)
	}
	if len(overview.Groups) != 0 {
		t.Fatalf("expected no grouped remainder, got %+v", overview.Groups)
	}
}

func TestProviderGroup(t *testing.T) {
	cases := map[string]string{
		"spotify":        GroupMusic,
		"APPLEMUSIC":     GroupMusic,
		"strava":         GroupFitness,
		"applehealth":    GroupFitness,
		"plaid":          GroupFinance,
		"gmail":          GroupProductivity,
		"googlecontacts": GroupProductivity,
		"foursquare":     GroupPlaces,
		"pocket":         GroupReading,
		"mystery":        GroupOther,
	}
	for provider, want := range cases {
		if got := ProviderGroup(provider); got != want {
			t.Fatalf("group for %s: got %s want %s", provider, got, want)
		}
	}
}

func TestClassifyCategory(t *testing.T) {
	cases := map[string]string{
		"Recently Played":   BucketRecentlyPlayed,
		"Top Artists":       BucketArtists,
		"Workouts":          BucketWorkouts,
		"Daily Activities":  BucketWorkouts,
		"Transactions":      BucketTransactions,
		"Email Messages":    BucketMessages,
		"Contacts":          BucketContacts,
		"Visited Places":    BucketPlaces,
		"Saved Articles":    BucketReading,
		"Something Unknown": BucketOther,
		"":                  BucketOther,
	}
	for category, want := range cases {
		if got := classifyCategory(category); got != want {
			t.Fatalf("bucket for %q: got %s want %s", category, got, want)
		}
	}
}

func TestAggregateItems(t *testing.T) {
	items := []CatalogItem{
		{CategoryName: "Recently Played", Title: "Track A"},
		{CategoryName: "Recently Played", Title: "Track B"},
		{CategoryName: "Workouts", Title: "Morning Run"},
		{CategoryName: "Mystery", Title: "???"},
	}
	data := AggregateItems(items)
	if len(data[BucketRecentlyPlayed]) != 2 {
		t.Fatalf("expected 2 recently played, got %d", len(data[BucketRecentlyPlayed]))
	}
	if len(data[BucketWorkouts]) != 1 {
		t.Fatalf("expected 1 workout, got %d", len(data[BucketWorkouts]))
	}
	if len(data[BucketOther]) != 1 {
		t.Fatalf("expected 1 other, got %d", len(data[BucketOther]))
	}
}
