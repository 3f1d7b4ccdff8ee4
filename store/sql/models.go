package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

type integrationRecord struct {
	bun.BaseModel `bun:"table:integrations,alias:i"`

	ID         string    `bun:"id,pk"`
	Name       string    `bun:"name,notnull"`
	Popularity int       `bun:"popularity,notnull"`
	CreatedAt  time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt  time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type userIntegrationRecord struct {
	bun.BaseModel `bun:"table:user_integrations,alias:ui"`

	ID            string    `bun:"id,pk"`
	UserID        string    `bun:"user_id,notnull"`
	IntegrationID string    `bun:"integration_id,notnull"`
	Status        string    `bun:"status,notnull"`
	LastError     string    `bun:"last_error"`
	CreatedAt     time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt     time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type linkHistoryRecord struct {
	bun.BaseModel `bun:"table:user_integration_history,alias:uih"`

	LinkID           string     `bun:"link_id,pk"`
	FirstConnectedAt *time.Time `bun:"first_connected_at,nullzero"`
	LastConnectedAt  *time.Time `bun:"last_connected_at,nullzero"`
	LastSyncedAt     *time.Time `bun:"last_synced_at,nullzero"`
	UpdatedAt        time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type tokenRecord struct {
	bun.BaseModel `bun:"table:stored_tokens,alias:st"`

	ID             string    `bun:"id,pk"`
	UserID         string    `bun:"user_id,notnull"`
	Provider       string    `bun:"provider,notnull"`
	AccessToken    string    `bun:"access_token,notnull"`
	RefreshToken   string    `bun:"refresh_token"`
	ExpiresAt      int64     `bun:"expires_at,notnull"`
	Scope          string    `bun:"scope"`
	ProviderUserID string    `bun:"provider_user_id"`
	UpdatedAt      time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type listRecord struct {
	bun.BaseModel `bun:"table:lists,alias:l"`

	ID        string    `bun:"id,pk"`
	Name      string    `bun:"name,notnull"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

type userListRecord struct {
	bun.BaseModel `bun:"table:user_lists,alias:ul"`

	ID        string    `bun:"id,pk"`
	UserID    string    `bun:"user_id,notnull"`
	ListID    string    `bun:"list_id,notnull"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

type categoryRecord struct {
	bun.BaseModel `bun:"table:categories,alias:c"`

	ID        string    `bun:"id,pk"`
	ListID    string    `bun:"list_id,notnull"`
	Name      string    `bun:"name,notnull"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

type listItemRecord struct {
	bun.BaseModel `bun:"table:list_items,alias:li"`

	ID           string         `bun:"id,pk"`
	UserListID   string         `bun:"user_list_id,notnull"`
	CategoryID   string         `bun:"category_id,notnull"`
	Title        string         `bun:"title,notnull"`
	Attributes   map[string]any `bun:"attributes,type:jsonb,notnull"`
	Provider     string         `bun:"provider,notnull"`
	ExternalID   string         `bun:"external_id,notnull"`
	ExternalType string         `bun:"external_type"`
	CreatedAt    time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt    time.Time      `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}
