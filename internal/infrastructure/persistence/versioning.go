package persistence

import (
	"errors"

	"github.com/google/uuid"
	"github.com/marketrelay/backend/internal/domain/shared"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// translateError maps driver level errors onto domain errors. The database is
// opened with TranslateError so unique violations arrive as gorm.ErrDuplicatedKey.
func translateError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return shared.ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return shared.ErrAlreadyExists
	default:
		return err
	}
}

// saveVersioned writes every column of model when the stored row still carries
// the expected version. model must already hold expected+1 as its version.
// Associations and the immutable tenant columns are never rewritten.
func saveVersioned(tx *gorm.DB, model any, id uuid.UUID, expected int) error {
	result := tx.Model(model).
		Where("id = ? AND version = ?", id, expected).
		Select("*").
		Omit(clause.Associations, "id", "tenant_id", "created_by", "created_at").
		Updates(model)
	if result.Error != nil {
		return translateError(result.Error)
	}
	if result.RowsAffected == 0 {
		return shared.ErrConcurrencyConflict
	}
	return nil
}

// paginate applies offset and limit for a page
func paginate(query *gorm.DB, page, pageSize int) *gorm.DB {
	f := shared.Filter{Page: page, PageSize: pageSize}
	return query.Offset(f.Offset()).Limit(f.Limit())
}
