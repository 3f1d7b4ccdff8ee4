package core

import (
	"sort"
	"strings"
)

// Provider group labels used by the statuses overview. Providers without an
// entry fall into GroupOther.
const (
	GroupMusic        = "music"
	GroupFitness      = "fitness"
	GroupFinance      = "finance"
	GroupProductivity = "productivity"
	GroupPlaces       = "places"
	GroupReading      = "reading"
	GroupOther        = "other"
)

var providerGroups = map[string]string{
	"spotify":        GroupMusic,
	"applemusic":     GroupMusic,
	"strava":         GroupFitness,
	"applehealth":    GroupFitness,
	"plaid":          GroupFinance,
	"gmail":          GroupProductivity,
	"googlecontacts": GroupProductivity,
	"foursquare":     GroupPlaces,
	"pocket":         GroupReading,
}

func ProviderGroup(providerID string) string {
	if group, ok := providerGroups[strings.ToLower(strings.TrimSpace(providerID))]; ok {
		return group
	}
	return GroupOther
}

// StatusOverview is the fan-out result across all registered providers: the
// three most popular connections surface on top, the rest are grouped.
type StatusOverview struct {
	Statuses        []StatusResult
	TopIntegrations []StatusResult
	Groups          map[string][]StatusResult
}

const topIntegrationCount = 3

// BuildStatusOverview orders statuses by popularity, highest first, with
// unresolved entries last, then splits the top three from the grouped rest.
func BuildStatusOverview(statuses []StatusResult) StatusOverview {
	ordered := make([]StatusResult, len(statuses))
	copy(ordered, statuses)
	sort.SliceStable(ordered, func(i, j int) bool {
		left, right := ordered[i], ordered[j]
		if (left.Error == "") != (right.Error == "") {
			return left.Error == ""
		}
		if left.Popularity != right.Popularity {
			return left.Popularity > right.Popularity
		}
		return left.Provider < right.Provider
	})

	top := topIntegrationCount
	if top > len(ordered) {
		top = len(ordered)
	}
	overview := StatusOverview{
		Statuses:        ordered,
		TopIntegrations: append([]StatusResult(nil), ordered[:top]...),
		Groups:          map[string][]StatusResult{},
	}
	for _, status := range ordered[top:] {
		group := ProviderGroup(status.Provider)
		overview.Groups[group] = append(overview.Groups[group], status)
	}
	return overview
}

// Data bucket names for the callback response payload.
const (
	BucketRecentlyPlayed = "recentlyPlayed"
	BucketArtists        = "artists"
	BucketWorkouts       = "workouts"
	BucketTransactions   = "transactions"
	BucketMessages       = "messages"
	BucketContacts       = "contacts"
	BucketPlaces         = "places"
	BucketReading        = "reading"
	BucketOther          = "other"
)

type AggregatedData map[string][]CatalogItem

// classifyCategory maps a stored category name to a display bucket by
// substring, case-insensitive. Unmatched categories land in "other" rather
// than failing.
func classifyCategory(categoryName string) string {
	name := strings.ToLower(strings.TrimSpace(categoryName))
	switch {
	case strings.Contains(name, "recently played"):
		return BucketRecentlyPlayed
	case strings.Contains(name, "artist"):
		return BucketArtists
	case strings.Contains(name, "workout"), strings.Contains(name, "activit"):
		return BucketWorkouts
	case strings.Contains(name, "transaction"):
		return BucketTransactions
	case strings.Contains(name, "message"), strings.Contains(name, "email"):
		return BucketMessages
	case strings.Contains(name, "contact"):
		return BucketContacts
	case strings.Contains(name, "place"), strings.Contains(name, "check-in"), strings.Contains(name, "checkin"):
		return BucketPlaces
	case strings.Contains(name, "read"), strings.Contains(name, "article"):
		return BucketReading
	default:
		return BucketOther
	}
}

// AggregateItems groups a user's synced items into display buckets.
func AggregateItems(items []CatalogItem) AggregatedData {
	data := AggregatedData{}
	for _, item := range items {
		bucket := classifyCategory(item.CategoryName)
		data[bucket] = append(data[bucket], item)
	}
	return data
}
