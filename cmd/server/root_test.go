package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ProfessorAbraham/chereka-customer-support/internal/auth"
	"github.com/ProfessorAbraham/chereka-customer-support/internal/testutil"
)

func TestRootCommand(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr bool
	}{
		{"version flag", []string{"--version"}, false},
		{"help flag", []string{"--help"}, false},
		{"unknown command", []string{"bogus"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rootCmd.SetArgs(tt.args)
			var stdout, stderr bytes.Buffer
			rootCmd.SetOut(&stdout)
			rootCmd.SetErr(&stderr)
			if err := rootCmd.Execute(); (err != nil) != tt.wantErr {
				t.Errorf("Execute() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSeedUsers_Idempotent(t *testing.T) {
	gdb := testutil.NewDB(t)
	first, err := seedUsers(gdb, "s3cret")
	if err != nil {
		t.Fatalf("seedUsers() error = %v", err)
	}
	second, err := seedUsers(gdb, "other")
	if err != nil {
		t.Fatalf("second seedUsers() error = %v", err)
	}
	if len(first) != len(demoUsers) || len(second) != len(demoUsers) {
		t.Fatalf("seeded %d then %d users, want %d", len(first), len(second), len(demoUsers))
	}
	for i := range first {
		if first[i].ID != second[i].ID {
			t.Errorf("user %s changed id %d -> %d", first[i].Email, first[i].ID, second[i].ID)
		}
		if !auth.VerifyPassword(second[i].PasswordHash, "other") {
			t.Errorf("user %s kept the old password", second[i].Email)
		}
	}
}

func TestSeedCommand_PrintsTokens(t *testing.T) {
	dsn := "file:" + filepath.Join(t.TempDir(), "seed.db")
	t.Setenv("APP_ENV", "dev")
	t.Setenv("JWT_SECRET", "seed-secret")

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"seed", "--db-driver", "sqlite", "--db-dsn", dsn})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("seed error = %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != len(demoUsers) {
		t.Fatalf("printed %d lines, want %d:\n%s", len(lines), len(demoUsers), out.String())
	}
	fields := strings.Fields(lines[0])
	claims, err := auth.ParseAccessToken(fields[len(fields)-1], "seed-secret")
	if err != nil || claims.UserID == 0 {
		t.Errorf("printed token does not parse: %v", err)
	}
}
