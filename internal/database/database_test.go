package database

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/openlg/lg-gateway/internal/config"
)

// SetupTestDB initializes a test database.
func SetupTestDB(t *testing.T) func() {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "lg-gateway-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}

	config.Cfg.DatabasePath = filepath.Join(tmpDir, "test.db")

	if err := Init(); err != nil {
		os.RemoveAll(tmpDir)
		t.Fatalf("Failed to init database: %v", err)
	}

	return func() {
		Close()
		DB = nil
		os.RemoveAll(tmpDir)
	}
}

func TestDatabaseInit(t *testing.T) {
	cleanup := SetupTestDB(t)
	defer cleanup()

	var count int64
	if err := DB.Model(&QueryRecord{}).Count(&count).Error; err != nil {
		t.Fatalf("query_records table missing: %v", err)
	}
	if count != 0 {
		t.Errorf("fresh database has %d records", count)
	}
}

func TestRecordQuery(t *testing.T) {
	cleanup := SetupTestDB(t)
	defer cleanup()

	RecordQuery(&QueryRecord{
		ServerName:    "route-views",
		Command:       "show ip bgp 8.8.8.8",
		Status:        "ok",
		ResponseBytes: 412,
		DurationMs:    120,
	})
	RecordQuery(&QueryRecord{
		ServerName: "route-views",
		Command:    "show ip bgp 1.1.1.1",
		Status:     "error",
		Error:      "command failed after 2 attempts",
	})

	var records []QueryRecord
	if err := DB.Where("server_name = ?", "route-views").Order("id").Find(&records).Error; err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	if records[0].Status != "ok" || records[0].ResponseBytes != 412 {
		t.Errorf("first record = %+v", records[0])
	}
	if records[1].Status != "error" || records[1].Error == "" {
		t.Errorf("second record = %+v", records[1])
	}
	if records[0].CreatedAt.IsZero() {
		t.Error("CreatedAt not populated")
	}
}

func TestRecordQueryWithoutDatabase(t *testing.T) {
	saved := DB
	DB = nil
	defer func() { DB = saved }()

	// Must not panic when auditing is unconfigured.
	RecordQuery(&QueryRecord{ServerName: "route-views", Command: "show route 8.8.8.8"})
}
