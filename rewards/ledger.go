package rewards

import (
	"context"

	"gorm.io/gorm"

	"github.com/cppla/winsome/models"
)

const ledgerBatchSize = 200

// GormLedger appends reward transactions to a SQL table.
type GormLedger struct {
	db *gorm.DB
}

func NewGormLedger(db *gorm.DB) *GormLedger {
	return &GormLedger{db: db}
}

// Migrate creates the ledger table when it does not exist yet.
func (l *GormLedger) Migrate() error {
	if l.db.Migrator().HasTable(&models.LedgerEntry{}) {
		return nil
	}
	return l.db.AutoMigrate(&models.LedgerEntry{})
}

func (l *GormLedger) Record(ctx context.Context, entries []models.LedgerEntry) error {
	if len(entries) == 0 {
		return nil
	}
	return l.db.WithContext(ctx).CreateInBatches(&entries, ledgerBatchSize).Error
}
