package ledger

import (
	"context"
	"strconv"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/jkivela/packwatch/internal/errors"
)

// entryRow is the GORM model for one ledger entry.
type entryRow struct {
	Key       string `gorm:"primaryKey;column:key"`
	Status    string `gorm:"column:status"`
	ItemID    string `gorm:"column:item_id"`
	UpdatedAt time.Time
}

func (entryRow) TableName() string { return "ledger_entries" }

// revisionRow is a single-row table tracking the document revision used as
// the optimistic concurrency token.
type revisionRow struct {
	ID       uint  `gorm:"primaryKey"`
	Revision int64 `gorm:"column:revision"`
}

func (revisionRow) TableName() string { return "ledger_revision" }

// GormStore persists the ledger in a SQLite database through GORM. The whole
// document is replaced per save inside one transaction, guarded by the
// revision counter.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens (or creates) the SQLite database at path and migrates
// the ledger schema.
func NewGormStore(path string) (*GormStore, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, errors.New(err).
			Component("ledger").
			Category(errors.CategoryDatabase).
			Context("path", path).
			Build()
	}
	if err := db.AutoMigrate(&entryRow{}, &revisionRow{}); err != nil {
		return nil, errors.New(err).
			Component("ledger").
			Category(errors.CategoryDatabase).
			Build()
	}
	return &GormStore{db: db}, nil
}

// Load reads every entry plus the current revision.
func (gs *GormStore) Load(ctx context.Context) (Document, Version, error) {
	var rows []entryRow
	if err := gs.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, "", errors.New(err).
			Component("ledger").
			Category(errors.CategoryDatabase).
			Build()
	}

	doc := make(Document, len(rows))
	for i := range rows {
		doc[rows[i].Key] = Entry{Status: Status(rows[i].Status), ItemID: rows[i].ItemID}
	}

	rev, err := gs.currentRevision(ctx)
	if err != nil {
		return nil, "", err
	}
	if rev == 0 {
		return doc, "", nil
	}
	return doc, Version(strconv.FormatInt(rev, 10)), nil
}

// Save replaces the stored document if the revision still matches expected.
func (gs *GormStore) Save(ctx context.Context, doc Document, expected Version) (Version, error) {
	var next int64
	err := gs.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rev revisionRow
		found := true
		err := tx.First(&rev, 1).Error
		switch {
		case err == nil:
		case errors.Is(err, gorm.ErrRecordNotFound):
			rev = revisionRow{ID: 1}
			found = false
		default:
			return err
		}

		var current Version
		if rev.Revision > 0 {
			current = Version(strconv.FormatInt(rev.Revision, 10))
		}
		if current != expected {
			return ErrVersionConflict
		}

		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&entryRow{}).Error; err != nil {
			return err
		}

		now := time.Now()
		rows := make([]entryRow, 0, len(doc))
		for key, entry := range doc {
			rows = append(rows, entryRow{
				Key:       key,
				Status:    string(entry.Status),
				ItemID:    entry.ItemID,
				UpdatedAt: now,
			})
		}
		if len(rows) > 0 {
			if err := tx.Create(&rows).Error; err != nil {
				return err
			}
		}

		rev.Revision++
		next = rev.Revision
		// Save on a never-persisted row with a preset primary key would
		// issue an update that matches nothing.
		if !found {
			return tx.Create(&rev).Error
		}
		return tx.Save(&rev).Error
	})
	if err != nil {
		if errors.Is(err, ErrVersionConflict) {
			return "", ErrVersionConflict
		}
		return "", errors.New(err).
			Component("ledger").
			Category(errors.CategoryDatabase).
			Build()
	}
	return Version(strconv.FormatInt(next, 10)), nil
}

func (gs *GormStore) currentRevision(ctx context.Context) (int64, error) {
	var rev revisionRow
	err := gs.db.WithContext(ctx).First(&rev, 1).Error
	switch {
	case err == nil:
		return rev.Revision, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return 0, nil
	default:
		return 0, errors.New(err).
			Component("ledger").
			Category(errors.CategoryDatabase).
			Build()
	}
}
