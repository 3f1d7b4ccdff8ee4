package sqlstore

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/goliatone/go-integrations/core"
)

func cloneTimePointer(input *time.Time) *time.Time {
	if input == nil {
		return nil
	}
	value := input.UTC()
	return &value
}

func (r *integrationRecord) toDomain() core.Integration {
	if r == nil {
		return core.Integration{}
	}
	return core.Integration{
		ID:         r.ID,
		Name:       r.Name,
		Popularity: r.Popularity,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
}

func (r *userIntegrationRecord) toDomain() core.UserIntegration {
	if r == nil {
		return core.UserIntegration{}
	}
	return core.UserIntegration{
		ID:            r.ID,
		UserID:        r.UserID,
		IntegrationID: r.IntegrationID,
		Status:        core.LinkStatus(r.Status),
		LastError:     r.LastError,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}

func (r *linkHistoryRecord) toDomain() core.UserIntegrationHistory {
	if r == nil {
		return core.UserIntegrationHistory{}
	}
	return core.UserIntegrationHistory{
		LinkID:           r.LinkID,
		FirstConnectedAt: cloneTimePointer(r.FirstConnectedAt),
		LastConnectedAt:  cloneTimePointer(r.LastConnectedAt),
		LastSyncedAt:     cloneTimePointer(r.LastSyncedAt),
		UpdatedAt:        r.UpdatedAt,
	}
}

func (r *tokenRecord) toDomain() core.StoredToken {
	if r == nil {
		return core.StoredToken{}
	}
	return core.StoredToken{
		UserID:         r.UserID,
		Provider:       r.Provider,
		AccessToken:    r.AccessToken,
		RefreshToken:   r.RefreshToken,
		ExpiresAt:      r.ExpiresAt,
		Scope:          r.Scope,
		ProviderUserID: r.ProviderUserID,
		UpdatedAt:      r.UpdatedAt,
	}
}

func copyAnyMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}

// attributesEqual compares attribute maps by canonical JSON so that synced
// items only count as updated when their payload actually changed.
func attributesEqual(left, right map[string]any) bool {
	leftJSON, leftErr := json.Marshal(left)
	rightJSON, rightErr := json.Marshal(right)
	if leftErr != nil || rightErr != nil {
		return false
	}
	return string(leftJSON) == string(rightJSON)
}

func isUniqueViolation(err error) bool {
	message := strings.ToLower(strings.TrimSpace(err.Error()))
	return strings.Contains(message, "unique constraint failed") ||
		strings.Contains(message, "duplicate key value violates unique constraint")
}
