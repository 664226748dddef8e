package database

import (
	"reflect"
	"testing"

	coreconfig "github.com/m3rciful/stateful/core/config"
	"github.com/m3rciful/stateful/migrations"
)

func TestDSNEscapesCredentials(t *testing.T) {
	got := DSN(coreconfig.DatabaseConfig{
		Host: "db", Port: "5432", User: "bot", Password: "p@ss/word", Name: "stateful", SSLMode: "disable",
	})
	want := "postgres://bot:p%40ss%2Fword@db:5432/stateful?sslmode=disable"
	if got != want {
		t.Fatalf("dsn = %q, want %q", got, want)
	}
}

func TestEmbeddedMigrationsListed(t *testing.T) {
	files := listMigrationFiles(migrations.FS)
	if len(files) == 0 || files[0] != "000001_conversation_states.up.sql" {
		t.Fatalf("files = %v", files)
	}
}

func TestSelectApplied(t *testing.T) {
	files := []string{"000001_a.up.sql", "000002_b.up.sql", "000003_c.up.sql"}
	if got := selectApplied(files, 1, 3); !reflect.DeepEqual(got, files[1:]) {
		t.Fatalf("applied = %v", got)
	}
	if got := selectApplied(files, 3, 3); len(got) != 0 {
		t.Fatalf("nothing should be applied, got %v", got)
	}
	if parseVersion("bogus.up.sql") != 0 {
		t.Fatal("unparsable version must be 0")
	}
}
