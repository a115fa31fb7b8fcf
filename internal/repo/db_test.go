package repo

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/aroraks/milkman-backend/internal/domain"
)

// newRepoDB opens a unique in-memory database per test and migrates the full
// schema, so cross-file helpers can seed any entity.
func newRepoDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func seedPair(t *testing.T, db *gorm.DB) (*domain.Milkman, *domain.Customer) {
	t.Helper()
	m := &domain.Milkman{
		ID:            uuid.NewString(),
		Name:          "Ram Dairy",
		PricePerLitre: decimal.NewFromInt(40),
		ReferralCode:  "MILK-" + uuid.NewString()[:8],
	}
	if err := db.Create(m).Error; err != nil {
		t.Fatalf("seed milkman: %v", err)
	}
	c := &domain.Customer{
		ID:        uuid.NewString(),
		Name:      "Sita",
		MilkmanID: m.ID,
	}
	if err := db.Create(c).Error; err != nil {
		t.Fatalf("seed customer: %v", err)
	}
	return m, c
}

func seedPurchase(t *testing.T, db *gorm.DB, m *domain.Milkman, c *domain.Customer, date time.Time) *domain.Purchase {
	t.Helper()
	p := &domain.Purchase{
		ID:            uuid.NewString(),
		CustomerID:    c.ID,
		MilkmanID:     m.ID,
		Litres:        decimal.NewFromInt(2),
		PricePerLitre: m.PricePerLitre,
		TotalAmount:   m.PricePerLitre.Mul(decimal.NewFromInt(2)),
		Date:          date,
		FrequencyDays: 30,
		DueDate:       date.AddDate(0, 0, 30),
	}
	if err := db.Create(p).Error; err != nil {
		t.Fatalf("seed purchase: %v", err)
	}
	return p
}

func TestOpenSQLite_CreatesFileAndRejectsMissingDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
	}
	defer sqlDB.Close()
	if err := sqlDB.Ping(); err != nil {
		t.Fatalf("ping: %v", err)
	}

	if _, err := OpenSQLite(filepath.Join(t.TempDir(), "missing", "test.db")); err == nil {
		t.Fatal("expected error for missing parent directory")
	}
}
