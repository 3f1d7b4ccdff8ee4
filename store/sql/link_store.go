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

type LinkStore struct {
	db   *bun.DB
	repo repository.Repository[*userIntegrationRecord]
}

func NewLinkStore(db *bun.DB) (*LinkStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*userIntegrationRecord](db, userIntegrationHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid link repository wiring: %w", err)
		}
	}
	return &LinkStore{db: db, repo: repo}, nil
}

func (s *LinkStore) Find(ctx context.Context, userID, integrationID string) (core.UserIntegration, bool, error) {
	if s == nil || s.db == nil {
		return core.UserIntegration{}, false, fmt.Errorf("sqlstore: link store is not configured")
	}
	userID = strings.TrimSpace(userID)
	integrationID = strings.TrimSpace(integrationID)
	if userID == "" || integrationID == "" {
		return core.UserIntegration{}, false, fmt.Errorf("sqlstore: user id and integration id are required")
	}

	record := &userIntegrationRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.user_id = ?", userID).
		Where("?TableAlias.integration_id = ?", integrationID).
		OrderExpr("?TableAlias.created_at DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return core.UserIntegration{}, false, nil
		}
		return core.UserIntegration{}, false, err
	}
	return record.toDomain(), true, nil
}

func (s *LinkStore) Create(ctx context.Context, link core.UserIntegration) (core.UserIntegration, error) {
	if s == nil || s.db == nil {
		return core.UserIntegration{}, fmt.Errorf("sqlstore: link store is not configured")
	}
	link.UserID = strings.TrimSpace(link.UserID)
	link.IntegrationID = strings.TrimSpace(link.IntegrationID)
	if link.UserID == "" || link.IntegrationID == "" {
		return core.UserIntegration{}, fmt.Errorf("sqlstore: user id and integration id are required")
	}
	if strings.TrimSpace(string(link.Status)) == "" {
		link.Status = core.LinkStatusPending
	}

	now := time.Now().UTC()
	record := &userIntegrationRecord{
		ID:            uuid.NewString(),
		UserID:        link.UserID,
		IntegrationID: link.IntegrationID,
		Status:        string(link.Status),
		LastError:     link.LastError,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	created, err := s.repo.Create(ctx, record)
	if err != nil {
		return core.UserIntegration{}, err
	}
	return created.toDomain(), nil
}

// UpdateStatus enforces the link lifecycle: the current row is loaded and
// the transition validated before the write.
func (s *LinkStore) UpdateStatus(ctx context.Context, linkID string, status core.LinkStatus, reason string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: link store is not configured")
	}
	linkID = strings.TrimSpace(linkID)
	if linkID == "" {
		return fmt.Errorf("sqlstore: link id is required")
	}

	record := &userIntegrationRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", linkID).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return core.ErrLinkNotFound
		}
		return err
	}

	now := time.Now().UTC()
	link := record.toDomain()
	if err := link.TransitionTo(status, reason, now); err != nil {
		return err
	}

	record.Status = string(link.Status)
	record.LastError = link.LastError
	record.UpdatedAt = now
	_, err = s.repo.Update(ctx, record, repository.UpdateByID(linkID))
	return err
}

func (s *LinkStore) History(ctx context.Context, linkID string) (core.UserIntegrationHistory, bool, error) {
	if s == nil || s.db == nil {
		return core.UserIntegrationHistory{}, false, fmt.Errorf("sqlstore: link store is not configured")
	}
	linkID = strings.TrimSpace(linkID)
	if linkID == "" {
		return core.UserIntegrationHistory{}, false, fmt.Errorf("sqlstore: link id is required")
	}

	record := &linkHistoryRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.link_id = ?", linkID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return core.UserIntegrationHistory{}, false, nil
		}
		return core.UserIntegrationHistory{}, false, err
	}
	return record.toDomain(), true, nil
}

func (s *LinkStore) MarkConnected(ctx context.Context, linkID string, at time.Time) error {
	return s.touchHistory(ctx, linkID, func(record *linkHistoryRecord) {
		stamp := at.UTC()
		if record.FirstConnectedAt == nil {
			first := stamp
			record.FirstConnectedAt = &first
		}
		last := stamp
		record.LastConnectedAt = &last
	})
}

func (s *LinkStore) MarkSynced(ctx context.Context, linkID string, at time.Time) error {
	return s.touchHistory(ctx, linkID, func(record *linkHistoryRecord) {
		synced := at.UTC()
		record.LastSyncedAt = &synced
	})
}

func (s *LinkStore) ListByUser(ctx context.Context, userID string) ([]core.UserIntegration, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: link store is not configured")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("sqlstore: user id is required")
	}

	var records []*userIntegrationRecord
	err := s.db.NewSelect().
		Model(&records).
		Where("?TableAlias.user_id = ?", userID).
		OrderExpr("?TableAlias.created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]core.UserIntegration, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}

func (s *LinkStore) touchHistory(ctx context.Context, linkID string, mutate func(*linkHistoryRecord)) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: link store is not configured")
	}
	linkID = strings.TrimSpace(linkID)
	if linkID == "" {
		return fmt.Errorf("sqlstore: link id is required")
	}

	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record := &linkHistoryRecord{}
		err := tx.NewSelect().
			Model(record).
			Where("?TableAlias.link_id = ?", linkID).
			Limit(1).
			Scan(ctx)
		if err != nil && err != sql.ErrNoRows {
			return err
		}

		now := time.Now().UTC()
		if err == sql.ErrNoRows {
			record = &linkHistoryRecord{LinkID: linkID}
			mutate(record)
			record.UpdatedAt = now
			if _, insertErr := tx.NewInsert().Model(record).Exec(ctx); insertErr != nil {
				if !isUniqueViolation(insertErr) {
					return insertErr
				}
				// Lost the insert race; fall through to update the winner.
				if scanErr := tx.NewSelect().
					Model(record).
					Where("?TableAlias.link_id = ?", linkID).
					Limit(1).
					Scan(ctx); scanErr != nil {
					return scanErr
				}
			} else {
				return nil
			}
		}

		mutate(record)
		record.UpdatedAt = now
		_, updateErr := tx.NewUpdate().
			Model(record).
			Where("link_id = ?", linkID).
			Exec(ctx)
		return updateErr
	})
}
