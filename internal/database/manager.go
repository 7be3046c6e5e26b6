package database

import (
	"fmt"
	"log/slog"

	"gorm.io/gorm"

	"github.com/vkotov/planhub/internal/model"
)

type DatabaseManager struct {
	db     *gorm.DB
	logger *slog.Logger
}

func New(db *gorm.DB) *DatabaseManager {
	return &DatabaseManager{
		db:     db,
		logger: slog.With("logger", "dbm"),
	}
}

func (mm *DatabaseManager) Migrate() error {
	if mm == nil || mm.db == nil {
		return fmt.Errorf("no database")
	}

	return mm.db.AutoMigrate(
		&model.Project{},
		&model.Member{},
		&model.Invitation{},
	)
}

func (mm *DatabaseManager) Create(s any) error {
	if mm == nil || mm.db == nil {
		return nil
	}

	err := mm.db.Create(s).Error

	if err != nil {
		mm.logger.Error("error create object", slog.Any("error", err))
	}

	return err
}

func (mm *DatabaseManager) Save(s any) error {
	if mm == nil || mm.db == nil {
		return nil
	}

	err := mm.db.Save(s).Error

	if err != nil {
		mm.logger.Error("error saving object", slog.Any("error", err))
	}

	return err
}

// Transaction runs f atomically. The passed manager wraps the transaction
// handle, so query builders obtained from it see uncommitted writes.
func (mm *DatabaseManager) Transaction(f func(tx *DatabaseManager) error) error {
	return mm.db.Transaction(func(tx *gorm.DB) error {
		return f(&DatabaseManager{db: tx, logger: mm.logger})
	})
}

func (mm *DatabaseManager) InvitationQuery() *InvitationQuery {
	return NewInvitationQuery(mm.db)
}

func (mm *DatabaseManager) MemberQuery() *MemberQuery {
	return NewMemberQuery(mm.db)
}

func (mm *DatabaseManager) ProjectQuery() *ProjectQuery {
	return NewProjectQuery(mm.db)
}
