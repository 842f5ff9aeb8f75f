package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/playpasshq/playpass-backend/pkg/migrate"
)

func TestShiftsMigrationEnforcesSingleOpenShift(t *testing.T) {
	matches, err := filepath.Glob(filepath.Join("migrations", "*_create_shifts.sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no shifts migration file found")
	}

	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	content := string(data)

	checks := []string{
		"CREATE TABLE IF NOT EXISTS shifts",
		"ux_shifts_device_open",
		"WHERE status = 'open'",
		"DROP TABLE IF EXISTS shifts",
	}

	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestMigrationsDirValidates(t *testing.T) {
	if err := migrate.ValidateDir("migrations"); err != nil {
		t.Fatalf("migrations dir invalid: %v", err)
	}
}
