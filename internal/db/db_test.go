package db

import (
	"testing"
	"time"

	"github.com/ProfessorAbraham/chereka-customer-support/internal/models"
)

func TestConnect_UnknownDriver(t *testing.T) {
	if _, err := Connect("mysql", "x"); err == nil {
		t.Fatal("Connect() should reject unknown drivers")
	}
}

func TestMigrate_SQLite(t *testing.T) {
	gdb, err := Connect("sqlite", "file::memory:")
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if err := Migrate(gdb); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	for _, table := range []interface{}{&models.User{}, &models.Room{}, &models.Message{}} {
		if !gdb.Migrator().HasTable(table) {
			t.Errorf("table for %T not created", table)
		}
	}
}

func TestMigrate_OneOpenRoomPerCustomer(t *testing.T) {
	gdb, err := Connect("sqlite", "file::memory:")
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if err := Migrate(gdb); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	u := models.User{FirstName: "Jane", LastName: "Doe", Email: "doe@example.com", Role: models.RoleCustomer, IsActive: true, PasswordHash: "x"}
	if err := gdb.Create(&u).Error; err != nil {
		t.Fatal(err)
	}
	if err := gdb.Create(&models.Room{CustomerID: u.ID, Status: models.RoomWaiting}).Error; err != nil {
		t.Fatal(err)
	}
	if err := gdb.Create(&models.Room{CustomerID: u.ID, Status: models.RoomActive}).Error; err == nil {
		t.Error("second open room for the same customer should violate the partial unique index")
	}
	now := time.Now()
	if err := gdb.Create(&models.Room{CustomerID: u.ID, Status: models.RoomClosed, ClosedAt: &now}).Error; err != nil {
		t.Errorf("closed rooms are not limited: %v", err)
	}
}
