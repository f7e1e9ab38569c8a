package migrations

import (
	"io/fs"
	"strings"
	"testing"
)

func TestEmbeddedMigrations(t *testing.T) {
	entries, err := fs.ReadDir(FS, ".")
	if err != nil {
		t.Fatalf("read embedded migrations: %v", err)
	}
	if len(entries) < 2 {
		t.Fatalf("expected at least 2 migrations, got %d", len(entries))
	}

	schema, err := fs.ReadFile(FS, "001_discharge_schema.sql")
	if err != nil {
		t.Fatalf("read 001: %v", err)
	}
	for _, table := range []string{"patients", "medical_records", "discharge_notes"} {
		if !strings.Contains(string(schema), "CREATE TABLE IF NOT EXISTS "+table) {
			t.Errorf("expected table %s in 001", table)
		}
	}
	if !strings.Contains(string(schema), "REFERENCES patients (patient_id)") {
		t.Error("expected foreign key to patients in 001")
	}
}
