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

// CatalogStore persists synced items into the list/category hierarchy with
// one row per (user list, provider, external id).
type CatalogStore struct {
	db   *bun.DB
	repo repository.Repository[*listItemRecord]
}

func NewCatalogStore(db *bun.DB) (*CatalogStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*listItemRecord](db, listItemHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid list item repository wiring: %w", err)
		}
	}
	return &CatalogStore{db: db, repo: repo}, nil
}

// UpsertItem deduplicates on the external reference and writes only when
// the payload changed, so repeated syncs of the same data are no-ops.
func (s *CatalogStore) UpsertItem(ctx context.Context, in core.UpsertItemInput) (core.CatalogItem, core.UpsertOutcome, error) {
	if s == nil || s.db == nil {
		return core.CatalogItem{}, "", fmt.Errorf("sqlstore: catalog store is not configured")
	}
	in.UserID = strings.TrimSpace(in.UserID)
	in.Provider = strings.TrimSpace(strings.ToLower(in.Provider))
	in.ListName = strings.TrimSpace(in.ListName)
	in.CategoryName = strings.TrimSpace(in.CategoryName)
	in.Title = strings.TrimSpace(in.Title)
	if in.UserID == "" || in.Provider == "" {
		return core.CatalogItem{}, "", fmt.Errorf("sqlstore: user id and provider are required")
	}
	if in.ListName == "" {
		in.ListName = in.Provider
	}
	if in.CategoryName == "" {
		in.CategoryName = "Other"
	}
	if in.Title == "" {
		return core.CatalogItem{}, "", core.NewDataValidationError("item title is required")
	}
	if err := in.External.Validate(); err != nil {
		return core.CatalogItem{}, "", err
	}

	var item core.CatalogItem
	var outcome core.UpsertOutcome
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		now := time.Now().UTC()

		list, err := ensureListTx(ctx, tx, in.ListName, now)
		if err != nil {
			return err
		}
		userList, err := ensureUserListTx(ctx, tx, in.UserID, list.ID, now)
		if err != nil {
			return err
		}
		category, err := ensureCategoryTx(ctx, tx, list.ID, in.CategoryName, now)
		if err != nil {
			return err
		}

		record := &listItemRecord{}
		findErr := tx.NewSelect().
			Model(record).
			Where("?TableAlias.user_list_id = ?", userList.ID).
			Where("?TableAlias.provider = ?", in.Provider).
			Where("?TableAlias.external_id = ?", in.External.ID).
			Limit(1).
			Scan(ctx)
		if findErr != nil && findErr != sql.ErrNoRows {
			return findErr
		}

		if findErr == sql.ErrNoRows {
			record = &listItemRecord{
				ID:           uuid.NewString(),
				UserListID:   userList.ID,
				CategoryID:   category.ID,
				Title:        in.Title,
				Attributes:   copyAnyMap(in.Attributes),
				Provider:     in.Provider,
				ExternalID:   in.External.ID,
				ExternalType: in.External.Type,
				CreatedAt:    now,
				UpdatedAt:    now,
			}
			if _, insertErr := tx.NewInsert().Model(record).Exec(ctx); insertErr != nil {
				return insertErr
			}
			outcome = core.UpsertOutcomeCreated
		} else if record.Title == in.Title &&
			record.CategoryID == category.ID &&
			attributesEqual(record.Attributes, in.Attributes) {
			outcome = core.UpsertOutcomeUnchanged
		} else {
			record.Title = in.Title
			record.CategoryID = category.ID
			record.Attributes = copyAnyMap(in.Attributes)
			record.ExternalType = in.External.Type
			record.UpdatedAt = now
			if _, updateErr := tx.NewUpdate().
				Model(record).
				Where("id = ?", record.ID).
				Exec(ctx); updateErr != nil {
				return updateErr
			}
			outcome = core.UpsertOutcomeUpdated
		}

		item = core.CatalogItem{
			ID:           record.ID,
			ListID:       list.ID,
			UserListID:   userList.ID,
			CategoryID:   record.CategoryID,
			ListName:     list.Name,
			CategoryName: category.Name,
			Title:        record.Title,
			Attributes:   copyAnyMap(record.Attributes),
			External: core.ExternalRef{
				Provider: record.Provider,
				ID:       record.ExternalID,
				Type:     record.ExternalType,
			},
			CreatedAt: record.CreatedAt,
			UpdatedAt: record.UpdatedAt,
		}
		return nil
	})
	if err != nil {
		return core.CatalogItem{}, "", err
	}
	return item, outcome, nil
}

type listItemRow struct {
	ID           string         `bun:"id"`
	ListID       string         `bun:"list_id"`
	UserListID   string         `bun:"user_list_id"`
	CategoryID   string         `bun:"category_id"`
	ListName     string         `bun:"list_name"`
	CategoryName string         `bun:"category_name"`
	Title        string         `bun:"title"`
	Attributes   map[string]any `bun:"attributes,type:jsonb"`
	Provider     string         `bun:"provider"`
	ExternalID   string         `bun:"external_id"`
	ExternalType string         `bun:"external_type"`
	CreatedAt    time.Time      `bun:"created_at"`
	UpdatedAt    time.Time      `bun:"updated_at"`
}

func (s *CatalogStore) ListByUser(ctx context.Context, userID string) ([]core.CatalogItem, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: catalog store is not configured")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("sqlstore: user id is required")
	}

	var rows []listItemRow
	err := s.db.NewSelect().
		Model((*listItemRecord)(nil)).
		ColumnExpr("li.id, li.user_list_id, li.category_id, li.title, li.attributes").
		ColumnExpr("li.provider, li.external_id, li.external_type, li.created_at, li.updated_at").
		ColumnExpr("l.id AS list_id, l.name AS list_name, c.name AS category_name").
		Join("JOIN user_lists AS ul ON ul.id = li.user_list_id").
		Join("JOIN lists AS l ON l.id = ul.list_id").
		Join("JOIN categories AS c ON c.id = li.category_id").
		Where("ul.user_id = ?", userID).
		OrderExpr("l.name ASC, c.name ASC, li.created_at ASC").
		Scan(ctx, &rows)
	if err != nil {
		return nil, err
	}

	out := make([]core.CatalogItem, 0, len(rows))
	for _, row := range rows {
		out = append(out, core.CatalogItem{
			ID:           row.ID,
			ListID:       row.ListID,
			UserListID:   row.UserListID,
			CategoryID:   row.CategoryID,
			ListName:     row.ListName,
			CategoryName: row.CategoryName,
			Title:        row.Title,
			Attributes:   copyAnyMap(row.Attributes),
			External: core.ExternalRef{
				Provider: row.Provider,
				ID:       row.ExternalID,
				Type:     row.ExternalType,
			},
			CreatedAt: row.CreatedAt,
			UpdatedAt: row.UpdatedAt,
		})
	}
	return out, nil
}

func ensureListTx(ctx context.Context, tx bun.Tx, name string, now time.Time) (*listRecord, error) {
	record := &listRecord{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.name = ?", name).
		Limit(1).
		Scan(ctx)
	if err == nil {
		return record, nil
	}
	if err != sql.ErrNoRows {
		return nil, err
	}

	record = &listRecord{ID: uuid.NewString(), Name: name, CreatedAt: now}
	if _, insertErr := tx.NewInsert().Model(record).Exec(ctx); insertErr != nil {
		if !isUniqueViolation(insertErr) {
			return nil, insertErr
		}
		if scanErr := tx.NewSelect().
			Model(record).
			Where("?TableAlias.name = ?", name).
			Limit(1).
			Scan(ctx); scanErr != nil {
			return nil, scanErr
		}
	}
	return record, nil
}

func ensureUserListTx(ctx context.Context, tx bun.Tx, userID, listID string, now time.Time) (*userListRecord, error) {
	record := &userListRecord{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.user_id = ?", userID).
		Where("?TableAlias.list_id = ?", listID).
		Limit(1).
		Scan(ctx)
	if err == nil {
		return record, nil
	}
	if err != sql.ErrNoRows {
		return nil, err
	}

	record = &userListRecord{ID: uuid.NewString(), UserID: userID, ListID: listID, CreatedAt: now}
	if _, insertErr := tx.NewInsert().Model(record).Exec(ctx); insertErr != nil {
		if !isUniqueViolation(insertErr) {
			return nil, insertErr
		}
		if scanErr := tx.NewSelect().
			Model(record).
			Where("?TableAlias.user_id = ?", userID).
			Where("?TableAlias.list_id = ?", listID).
			Limit(1).
			Scan(ctx); scanErr != nil {
			return nil, scanErr
		}
	}
	return record, nil
}

func ensureCategoryTx(ctx context.Context, tx bun.Tx, listID, name string, now time.Time) (*categoryRecord, error) {
	record := &categoryRecord{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.list_id = ?", listID).
		Where("?TableAlias.name = ?", name).
		Limit(1).
		Scan(ctx)
	if err == nil {
		return record, nil
	}
	if err != sql.ErrNoRows {
		return nil, err
	}

	record = &categoryRecord{ID: uuid.NewString(), ListID: listID, Name: name, CreatedAt: now}
	if _, insertErr := tx.NewInsert().Model(record).Exec(ctx); insertErr != nil {
		if !isUniqueViolation(insertErr) {
			return nil, insertErr
		}
		if scanErr := tx.NewSelect().
			Model(record).
			Where("?TableAlias.list_id = ?", listID).
			Where("?TableAlias.name = ?", name).
			Limit(1).
			Scan(ctx); scanErr != nil {
			return nil, scanErr
		}
	}
	return record, nil
}
