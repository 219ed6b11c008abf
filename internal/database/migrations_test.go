package database

import (
	"path/filepath"
	"testing"

	"github.com/MarcoPoloResearchLab/linkdeck/internal/users"
	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func TestApplyMigrationsNormalizesIdentityProviders(testContext *testing.T) {
	tempDir := testContext.TempDir()
	databasePath := filepath.Join(tempDir, "migration.db")

	database, err := gorm.Open(sqlite.Open(databasePath), &gorm.Config{})
	if err != nil {
		testContext.Fatalf("failed to open sqlite: %v", err)
	}

	if err := database.AutoMigrate(&users.User{}, &users.LinkedIdentity{}, &migrationRecord{}); err != nil {
		testContext.Fatalf("failed to migrate schema: %v", err)
	}

	identity := users.LinkedIdentity{
		UserID:   "user-1",
		Provider: users.Provider(" GitHub "),
		UID:      "42",
	}
	if err := database.Create(&identity).Error; err != nil {
		testContext.Fatalf("failed to insert identity: %v", err)
	}

	if err := applyMigrations(database, zap.NewNop()); err != nil {
		testContext.Fatalf("failed to apply migrations: %v", err)
	}

	var stored users.LinkedIdentity
	if err := database.Where("user_id = ?", identity.UserID).Take(&stored).Error; err != nil {
		testContext.Fatalf("failed to reload identity: %v", err)
	}
	if stored.Provider != users.ProviderGitHub {
		testContext.Fatalf("expected provider to be normalized, got %q", stored.Provider)
	}

	var record migrationRecord
	if err := database.Where("name = ?", migrationNormalizeIdentityProviders).Take(&record).Error; err != nil {
		testContext.Fatalf("expected migration record to be created: %v", err)
	}
	if record.AppliedAtSeconds == 0 {
		testContext.Fatalf("expected migration timestamp to be set")
	}
}

func TestOpenSQLiteIsIdempotent(testContext *testing.T) {
	databasePath := filepath.Join(testContext.TempDir(), "reopen.db")

	first, err := OpenSQLite(databasePath, zap.NewNop())
	if err != nil {
		testContext.Fatalf("first open failed: %v", err)
	}
	firstSQL, err := first.DB()
	if err != nil {
		testContext.Fatalf("failed to access sql db: %v", err)
	}
	if err := firstSQL.Close(); err != nil {
		testContext.Fatalf("failed to close sql db: %v", err)
	}

	second, err := OpenSQLite(databasePath, zap.NewNop())
	if err != nil {
		testContext.Fatalf("second open failed: %v", err)
	}
	var count int64
	if err := second.Model(&migrationRecord{}).Count(&count).Error; err != nil {
		testContext.Fatalf("failed to count migrations: %v", err)
	}
	if count != 1 {
		testContext.Fatalf("expected a single migration record, got %d", count)
	}
}

func TestOpenSQLiteRequiresPath(testContext *testing.T) {
	if _, err := OpenSQLite("", nil); err == nil {
		testContext.Fatalf("expected error for empty path")
	}
}
