package migration

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func TestSourcesArePairedAndOrdered(t *testing.T) {
	ups, err := Sources()
	if err != nil {
		t.Fatalf("sources: %v", err)
	}
	if len(ups) != 3 {
		t.Fatalf("expected 3 migrations, got %v", ups)
	}
	for i, up := range ups {
		if i > 0 && ups[i-1] >= up {
			t.Fatalf("migrations out of order: %v", ups)
		}
		down := strings.TrimSuffix(up, ".up.sql") + ".down.sql"
		if _, err := fs.Stat(embeddedMigrations, down); err != nil {
			t.Fatalf("missing down migration for %s", up)
		}
	}
}

func TestManagedOnlyForPostgres(t *testing.T) {
	if Managed(nil) {
		t.Fatalf("nil db must not be managed")
	}
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if Managed(db) {
		t.Fatalf("sqlite must fall back to auto migrate")
	}
}
