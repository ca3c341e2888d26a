package usecase

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"transaction-certification-service/internal/domain"
	"transaction-certification-service/internal/repository"
)

// setupTestMigrationsDir はテスト用のmigrationsディレクトリを作成する。
func setupTestMigrationsDir(t *testing.T, files map[string]string) string {
	t.Helper()
	migrationsDir := filepath.Join(t.TempDir(), "migrations")
	if err := os.MkdirAll(migrationsDir, 0o755); err != nil {
		t.Fatalf("failed to create migrations dir: %v", err)
	}
	for filename, content := range files {
		if err := os.WriteFile(filepath.Join(migrationsDir, filename), []byte(content), 0o644); err != nil {
			t.Fatalf("failed to create test migration file: %v", err)
		}
	}
	return migrationsDir
}

func setupMigrationDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	if err := db.Exec("CREATE TABLE schema_migrations (version VARCHAR(14) PRIMARY KEY, applied_at DATETIME DEFAULT CURRENT_TIMESTAMP)").Error; err != nil {
		t.Fatalf("failed to create schema_migrations table: %v", err)
	}
	return db
}

func TestMigrationService_ApplyMigrations(t *testing.T) {
	ctx := context.Background()
	db := setupMigrationDB(t)
	dir := setupTestMigrationsDir(t, map[string]string{
		"001_create_widgets.sql": "CREATE TABLE widgets (id INT);",
		"002_create_gadgets.sql": "CREATE TABLE gadgets (id INT);",
	})
	service := NewMigrationService(repository.NewMigrationRepository(db), db, dir)

	applied, err := service.ApplyMigrations(ctx)
	if err != nil {
		t.Fatalf("ApplyMigrations failed: %v", err)
	}
	if applied != 2 {
		t.Errorf("want 2 applied, got %d", applied)
	}

	// 冪等: 再実行では何も適用されない
	applied, err = service.ApplyMigrations(ctx)
	if err != nil {
		t.Fatalf("second ApplyMigrations failed: %v", err)
	}
	if applied != 0 {
		t.Errorf("want 0 applied on rerun, got %d", applied)
	}

	if err := db.Exec("INSERT INTO widgets (id) VALUES (1)").Error; err != nil {
		t.Errorf("migrated table not usable: %v", err)
	}
}

func TestMigrationService_ApplyMigrations_StopsOnFailure(t *testing.T) {
	ctx := context.Background()
	db := setupMigrationDB(t)
	dir := setupTestMigrationsDir(t, map[string]string{
		"001_create_widgets.sql": "CREATE TABLE widgets (id INT);",
		"002_broken.sql":         "THIS IS NOT SQL;",
		"003_create_gadgets.sql": "CREATE TABLE gadgets (id INT);",
	})
	service := NewMigrationService(repository.NewMigrationRepository(db), db, dir)

	applied, err := service.ApplyMigrations(ctx)
	if !errors.Is(err, domain.ErrMigrationFailed) {
		t.Fatalf("want ErrMigrationFailed, got %v", err)
	}
	if applied != 1 {
		t.Errorf("want 1 applied before failure, got %d", applied)
	}

	// 失敗したバージョン以降は記録されない
	status, err := service.GetMigrationStatus(ctx)
	if err != nil {
		t.Fatalf("GetMigrationStatus failed: %v", err)
	}
	for _, migration := range status {
		wantApplied := migration.Version == "001"
		gotApplied := migration.Status == domain.MigrationStatusApplied
		if wantApplied != gotApplied {
			t.Errorf("version %s: applied=%v", migration.Version, gotApplied)
		}
	}
}

func TestMigrationService_GetMigrationStatus(t *testing.T) {
	ctx := context.Background()
	db := setupMigrationDB(t)
	dir := setupTestMigrationsDir(t, map[string]string{
		"001_create_widgets.sql": "CREATE TABLE widgets (id INT);",
		"002_create_gadgets.sql": "CREATE TABLE gadgets (id INT);",
	})
	service := NewMigrationService(repository.NewMigrationRepository(db), db, dir)

	if err := db.Exec("INSERT INTO schema_migrations (version) VALUES ('001')").Error; err != nil {
		t.Fatalf("seeding schema_migrations failed: %v", err)
	}

	status, err := service.GetMigrationStatus(ctx)
	if err != nil {
		t.Fatalf("GetMigrationStatus failed: %v", err)
	}
	if len(status) != 2 {
		t.Fatalf("want 2 migrations, got %d", len(status))
	}
	if status[0].Version != "001" || status[0].Status != domain.MigrationStatusApplied {
		t.Errorf("unexpected first migration: %+v", status[0])
	}
	if status[1].Version != "002" || status[1].Status != domain.MigrationStatusPending {
		t.Errorf("unexpected second migration: %+v", status[1])
	}
}

func TestMigrationService_RejectsMalformedFileName(t *testing.T) {
	db := setupMigrationDB(t)
	dir := setupTestMigrationsDir(t, map[string]string{
		"nounderscore.sql": "CREATE TABLE widgets (id INT);",
	})
	service := NewMigrationService(repository.NewMigrationRepository(db), db, dir)

	if _, err := service.ApplyMigrations(context.Background()); !errors.Is(err, domain.ErrInvalidMigrationFile) {
		t.Errorf("want ErrInvalidMigrationFile, got %v", err)
	}
}
