package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-integrations/core"
)

type TokenStore struct {
	db   *bun.DB
	repo repository.Repository[*tokenRecord]
}

func NewTokenStore(db *bun.DB) (*TokenStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*tokenRecord](db, tokenHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid token repository wiring: %w", err)
		}
	}
	return &TokenStore{db: db, repo: repo}, nil
}

func (s *TokenStore) Get(ctx context.Context, provider, userID string) (core.StoredToken, bool, error) {
	if s == nil || s.db == nil {
		return core.StoredToken{}, false, fmt.Errorf("sqlstore: token store is not configured")
	}
	provider = strings.TrimSpace(strings.ToLower(provider))
	userID = strings.TrimSpace(userID)
	if provider == "" || userID == "" {
		return core.StoredToken{}, false, fmt.Errorf("sqlstore: provider and user id are required")
	}

	record := &tokenRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.provider = ?", provider).
		Where("?TableAlias.user_id = ?", userID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return core.StoredToken{}, false, nil
		}
		return core.StoredToken{}, false, err
	}
	return record.toDomain(), true, nil
}

// Save overwrites the credential wholesale. One row per (provider, user).
func (s *TokenStore) Save(ctx context.Context, token core.StoredToken) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: token store is not configured")
	}
	token.Provider = strings.TrimSpace(strings.ToLower(token.Provider))
	token.UserID = strings.TrimSpace(token.UserID)
	if token.Provider == "" || token.UserID == "" {
		return fmt.Errorf("sqlstore: provider and user id are required")
	}
	if strings.TrimSpace(token.AccessToken) == "" {
		return fmt.Errorf("sqlstore: access token is required")
	}
	if token.UpdatedAt.IsZero() {
		token.UpdatedAt = time.Now().UTC()
	}

	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record := &tokenRecord{}
		err := tx.NewSelect().
			Model(record).
			Where("?TableAlias.provider = ?", token.Provider).
			Where("?TableAlias.user_id = ?", token.UserID).
			Limit(1).
			Scan(ctx)
		if err != nil && err != sql.ErrNoRows {
			return err
		}

		if err == sql.ErrNoRows {
			record = &tokenRecord{ID: uuid.NewString()}
		}
		record.UserID = token.UserID
		record.Provider = token.Provider
		record.AccessToken = token.AccessToken
		record.RefreshToken = token.RefreshToken
		record.ExpiresAt = token.ExpiresAt
		record.Scope = token.Scope
		record.ProviderUserID = token.ProviderUserID
		record.UpdatedAt = token.UpdatedAt.UTC()

		if err == sql.ErrNoRows {
			_, insertErr := tx.NewInsert().Model(record).Exec(ctx)
			return insertErr
		}
		_, updateErr := tx.NewUpdate().
			Model(record).
			Where("id = ?", record.ID).
			Exec(ctx)
		return updateErr
	})
}

func (s *TokenStore) Delete(ctx context.Context, provider, userID string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: token store is not configured")
	}
	provider = strings.TrimSpace(strings.ToLower(provider))
	userID = strings.TrimSpace(userID)
	if provider == "" || userID == "" {
		return fmt.Errorf("sqlstore: provider and user id are required")
	}

	_, err := s.db.NewDelete().
		Model((*tokenRecord)(nil)).
		Where("provider = ?", provider).
		Where("user_id = ?", userID).
		Exec(ctx)
	return err
}
