package store

import (
	"context"
	"embed"
	"fmt"
	"log/slog"

	"github.com/pkg/errors"

	"github.com/hrygo/tiercache/internal/version"
)

// Migration System Overview:
//
// Schema version is stored in system_setting under "schema_version".
//
// Migration Flow:
// 1. If the entry table does not exist, apply LATEST.sql for the driver.
// 2. Otherwise compare the stored schema version with the current one; a
//    stored version newer than the binary is rejected.
// 3. Record the current schema version.
//
// Migration Files:
// - Location: store/migration/{driver}/LATEST.sql
// - LATEST.sql holds the full schema for new installations.

//go:embed migration
var migrationFS embed.FS

// LatestSchemaFileName is the name of the latest schema file.
const LatestSchemaFileName = "LATEST.sql"

// Migrate initializes or verifies the database schema.
func (s *Store) Migrate(ctx context.Context) error {
	initialized, err := s.driver.IsInitialized(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to check if database is initialized")
	}

	currentSchemaVersion := version.GetSchemaVersion(s.profile.Version)

	if !initialized {
		filePath := fmt.Sprintf("migration/%s/%s", s.profile.Driver, LatestSchemaFileName)
		buf, err := migrationFS.ReadFile(filePath)
		if err != nil {
			return errors.Wrapf(err, "failed to read latest schema file %q", filePath)
		}
		if _, err := s.driver.GetDB().ExecContext(ctx, string(buf)); err != nil {
			return errors.Wrap(err, "failed to apply latest schema")
		}
		if _, err := s.driver.UpsertSystemSetting(ctx, &SystemSetting{
			Name:  SystemSettingSchemaVersion,
			Value: currentSchemaVersion,
		}); err != nil {
			return errors.Wrap(err, "failed to record schema version")
		}
		slog.Info("database initialized", "driver", s.profile.Driver, "schemaVersion", currentSchemaVersion)
		return nil
	}

	setting, err := s.driver.GetSystemSetting(ctx, SystemSettingSchemaVersion)
	if err != nil {
		return errors.Wrap(err, "failed to read schema version")
	}
	storedVersion := ""
	if setting != nil {
		storedVersion = setting.Value
	}
	if storedVersion != "" && version.IsVersionGreaterThan(storedVersion, currentSchemaVersion) {
		return errors.Errorf("stored schema version %s is newer than binary schema version %s", storedVersion, currentSchemaVersion)
	}
	if storedVersion != currentSchemaVersion {
		if _, err := s.driver.UpsertSystemSetting(ctx, &SystemSetting{
			Name:  SystemSettingSchemaVersion,
			Value: currentSchemaVersion,
		}); err != nil {
			return errors.Wrap(err, "failed to update schema version")
		}
	}
	return nil
}
