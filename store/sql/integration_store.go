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

type IntegrationStore struct {
	db   *bun.DB
	repo repository.Repository[*integrationRecord]
}

func NewIntegrationStore(db *bun.DB) (*IntegrationStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*integrationRecord](db, integrationHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid integration repository wiring: %w", err)
		}
	}
	return &IntegrationStore{db: db, repo: repo}, nil
}

// Ensure returns the catalog row for name, creating it on first use.
// Concurrent first connects race on the unique name index; the loser
// re-reads the winner's row.
func (s *IntegrationStore) Ensure(ctx context.Context, name string) (core.Integration, error) {
	if s == nil || s.db == nil {
		return core.Integration{}, fmt.Errorf("sqlstore: integration store is not configured")
	}
	name = strings.TrimSpace(strings.ToLower(name))
	if name == "" {
		return core.Integration{}, fmt.Errorf("sqlstore: integration name is required")
	}

	var out core.Integration
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record, err := findIntegrationTx(ctx, tx, name)
		if err != nil {
			return err
		}
		if record != nil {
			out = record.toDomain()
			return nil
		}

		now := time.Now().UTC()
		record = &integrationRecord{
			ID:        uuid.NewString(),
			Name:      name,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if _, insertErr := tx.NewInsert().Model(record).Exec(ctx); insertErr != nil {
			if isUniqueViolation(insertErr) {
				record, err = findIntegrationTx(ctx, tx, name)
				if err != nil {
					return err
				}
				if record == nil {
					return insertErr
				}
			} else {
				return insertErr
			}
		}
		out = record.toDomain()
		return nil
	})
	if err != nil {
		return core.Integration{}, err
	}
	return out, nil
}

func (s *IntegrationStore) Get(ctx context.Context, name string) (core.Integration, bool, error) {
	if s == nil || s.db == nil {
		return core.Integration{}, false, fmt.Errorf("sqlstore: integration store is not configured")
	}
	name = strings.TrimSpace(strings.ToLower(name))
	if name == "" {
		return core.Integration{}, false, fmt.Errorf("sqlstore: integration name is required")
	}

	record := &integrationRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.name = ?", name).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return core.Integration{}, false, nil
		}
		return core.Integration{}, false, err
	}
	return record.toDomain(), true, nil
}

func (s *IntegrationStore) IncrementPopularity(ctx context.Context, name string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: integration store is not configured")
	}
	name = strings.TrimSpace(strings.ToLower(name))
	if name == "" {
		return fmt.Errorf("sqlstore: integration name is required")
	}

	result, err := s.db.NewUpdate().
		Model((*integrationRecord)(nil)).
		Set("popularity = popularity + 1").
		Set("updated_at = ?", time.Now().UTC()).
		Where("name = ?", name).
		Exec(ctx)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err == nil && affected == 0 {
		return fmt.Errorf("sqlstore: integration %q not found", name)
	}
	return nil
}

func (s *IntegrationStore) List(ctx context.Context) ([]core.Integration, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: integration store is not configured")
	}
	var records []*integrationRecord
	err := s.db.NewSelect().
		Model(&records).
		OrderExpr("?TableAlias.popularity DESC, ?TableAlias.name ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]core.Integration, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}

func findIntegrationTx(ctx context.Context, tx bun.Tx, name string) (*integrationRecord, error) {
	record := &integrationRecord{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.name = ?", name).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return record, nil
}
