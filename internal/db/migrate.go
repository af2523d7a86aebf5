/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package db

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/daisho-wakazashi/keybook/internal/models"
)

// Migrate applies database schema migrations using GORM auto-migrate.
func Migrate(database *gorm.DB) error {
	if err := database.AutoMigrate(
		&models.User{},
		&models.TimeBlock{},
		&models.Claim{},
	); err != nil {
		return err
	}

	if err := applyPostgresTimeBlockGuard(database); err != nil {
		return err
	}

	return nil
}

// applyPostgresTimeBlockGuard mirrors the ordering and no-overlap validations
// as a trigger so that writers bypassing the ingestion engine cannot break them.
func applyPostgresTimeBlockGuard(database *gorm.DB) error {
	if database.Dialector.Name() != "postgres" {
		return nil
	}

	stmt := `
CREATE OR REPLACE FUNCTION prevent_time_block_overlap()
RETURNS trigger
LANGUAGE plpgsql
AS $$
BEGIN
  IF NEW.end_time <= NEW.start_time THEN
    RAISE EXCEPTION 'time block end must be after start'
      USING ERRCODE = '23514';
  END IF;

  IF EXISTS (
    SELECT 1
    FROM time_blocks tb
    WHERE tb.owner_id = NEW.owner_id
      AND tb.id <> NEW.id
      AND tstzrange(tb.start_time, tb.end_time, '[)') && tstzrange(NEW.start_time, NEW.end_time, '[)')
  ) THEN
    RAISE EXCEPTION 'overlapping availability is not allowed for owner %', NEW.owner_id
      USING ERRCODE = '23514';
  END IF;

  RETURN NEW;
END;
$$;

DROP TRIGGER IF EXISTS trg_prevent_time_block_overlap ON time_blocks;

CREATE TRIGGER trg_prevent_time_block_overlap
BEFORE INSERT OR UPDATE OF owner_id, start_time, end_time
ON time_blocks
FOR EACH ROW
EXECUTE FUNCTION prevent_time_block_overlap();
`
	if err := database.Exec(stmt).Error; err != nil {
		return fmt.Errorf("apply postgres time block guard: %w", err)
	}

	return nil
}
