package database

import (
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	migrationTrimClientOriginWhitespace = "2026-03-18_trim_client_origin_whitespace"
	migrationBackfillNormalizedColumns  = "2026-04-07_backfill_normalized_columns"
)

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationTrimClientOriginWhitespace, apply: trimClientOriginWhitespace},
		{name: migrationBackfillNormalizedColumns, apply: backfillNormalizedColumns},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := migration.apply(db); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// Origin rows imported from earlier deployments occasionally carried stray
// whitespace, which breaks exact allow-list matching.
func trimClientOriginWhitespace(db *gorm.DB) error {
	return db.Exec("UPDATE client_cors_origins SET origin = TRIM(origin) WHERE origin <> TRIM(origin);").Error
}

func backfillNormalizedColumns(db *gorm.DB) error {
	if err := db.Exec("UPDATE users SET normalized_user_name = UPPER(user_name) WHERE normalized_user_name = '' AND user_name <> '';").Error; err != nil {
		return err
	}
	if err := db.Exec("UPDATE users SET normalized_email = UPPER(email) WHERE normalized_email = '' AND email <> '';").Error; err != nil {
		return err
	}
	return db.Exec("UPDATE roles SET normalized_name = UPPER(name) WHERE normalized_name = '' AND name <> '';").Error
}
