// Package testutil holds fixtures shared by package tests.
package testutil

import (
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/ProfessorAbraham/chereka-customer-support/internal/db"
	"github.com/ProfessorAbraham/chereka-customer-support/internal/models"

	"gorm.io/gorm"
)

var dbSeq atomic.Int64

// NewDB returns a migrated, private in-memory SQLite database.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:chattest%d?mode=memory&cache=shared", dbSeq.Add(1))
	gdb, err := db.Connect("sqlite", dsn)
	if err != nil {
		t.Fatalf("connect sqlite: %v", err)
	}
	if err := db.Migrate(gdb); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return gdb
}

// CreateUser inserts an active user with the given role.
func CreateUser(t testing.TB, gdb *gorm.DB, first, last string, role models.Role) models.User {
	t.Helper()
	u := models.User{
		FirstName:    first,
		LastName:     last,
		Email:        strings.ToLower(first+"."+last) + "@example.com",
		Role:         role,
		IsActive:     true,
		PasswordHash: "x",
	}
	if err := gdb.Create(&u).Error; err != nil {
		t.Fatalf("create user %s: %v", first, err)
	}
	return u
}
