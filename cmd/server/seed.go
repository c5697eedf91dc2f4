package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/ProfessorAbraham/chereka-customer-support/internal/auth"
	"github.com/ProfessorAbraham/chereka-customer-support/internal/db"
	"github.com/ProfessorAbraham/chereka-customer-support/internal/models"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	seedPassword string
	seedTokenTTL time.Duration
)

var demoUsers = []models.User{
	{FirstName: "Jane", LastName: "Doe", Email: "jane.doe@example.com", Role: models.RoleCustomer},
	{FirstName: "John", LastName: "Smith", Email: "john.smith@example.com", Role: models.RoleAgent},
	{FirstName: "Ada", LastName: "Admin", Email: "ada.admin@example.com", Role: models.RoleAdmin},
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Insert demo users and print access tokens for them",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		gdb, err := db.Connect(cfg.DatabaseDriver, cfg.DatabaseDSN)
		if err != nil {
			return err
		}
		if err := db.Migrate(gdb); err != nil {
			return err
		}
		users, err := seedUsers(gdb, seedPassword)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, u := range users {
			tok, err := auth.GenerateAccessToken(u.ID, cfg.JWTSecret, seedTokenTTL)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%-8s %-24s %s\n", u.Role, u.Email, tok)
		}
		return nil
	},
}

func init() {
	seedCmd.Flags().StringVar(&seedPassword, "password", "password", "password for every demo user")
	seedCmd.Flags().DurationVar(&seedTokenTTL, "token-ttl", 24*time.Hour, "lifetime of the printed access tokens")
}

// seedUsers upserts the demo users by email and returns them with ids.
func seedUsers(gdb *gorm.DB, password string) ([]models.User, error) {
	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}
	out := make([]models.User, 0, len(demoUsers))
	for _, d := range demoUsers {
		u := d
		u.IsActive = true
		u.PasswordHash = hash
		u.Email = strings.ToLower(u.Email)
		err := gdb.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "email"}},
			DoUpdates: clause.AssignmentColumns([]string{"first_name", "last_name", "role", "password_hash", "is_active", "updated_at"}),
		}).Create(&u).Error
		if err != nil {
			return nil, fmt.Errorf("seed %s: %w", u.Email, err)
		}
		if err := gdb.Where("email = ?", u.Email).First(&u).Error; err != nil {
			return nil, err
		}
		log.Debug().Uint("user_id", u.ID).Str("role", string(u.Role)).Msg("seeded user")
		out = append(out, u)
	}
	return out, nil
}
