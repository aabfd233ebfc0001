package cmd

import (
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/tverlabs/timekeep/pkg/database"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the database with sample data",
	Long:  `Seed the database with a demo tenant, demo users and the default compliance rules.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(".")
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}

		db, err := database.Open(database.Options{DSN: cfg.Database.Source})
		if err != nil {
			log.Fatalf("failed to init db: %v", err)
		}

		tenantID := seedTenant(db)
		seedUsers(db, tenantID, cfg.Security.BCryptCost)
		seedRules(db, tenantID)
	},
}

func seedTenant(db *gorm.DB) string {
	const name = "Demo Industries"

	var id string
	row := db.Raw("SELECT id FROM tenants WHERE name = ?", name).Row()
	if err := row.Scan(&id); err == nil {
		fmt.Println("demo tenant already exists:", id)
		return id
	}

	id = uuid.NewString()
	if err := db.Exec(
		"INSERT INTO tenants (id, name, timezone, created_at) VALUES (?, ?, ?, now())",
		id, name, "Europe/Oslo").Error; err != nil {
		log.Fatalf("failed to insert demo tenant: %v", err)
	}
	fmt.Println("Seeded demo tenant:", id)
	return id
}

func seedUsers(db *gorm.DB, tenantID string, bcryptCost int) {
	if bcryptCost == 0 {
		bcryptCost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte("password"), bcryptCost)
	if err != nil {
		log.Fatalf("failed to hash demo password: %v", err)
	}

	users := []struct {
		email       string
		name        string
		permissions string
	}{
		{"worker@demo.test", "Demo Worker", `[]`},
		{"manager@demo.test", "Demo Manager", `["approve_timesheets", "manage_payroll"]`},
	}

	for _, u := range users {
		var exists int
		row := db.Raw("SELECT 1 FROM users WHERE email = ?", u.email).Row()
		if err := row.Scan(&exists); err == nil {
			fmt.Println("user already exists:", u.email)
			continue
		}

		if err := db.Exec(
			"INSERT INTO users (id, tenant_id, email, name, password_hash, permissions, is_active, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, true, now(), now())",
			uuid.NewString(), tenantID, u.email, u.name, string(hash), u.permissions).Error; err != nil {
			log.Fatalf("failed to insert user %s: %v", u.email, err)
		}
		fmt.Println("Seeded user:", u.email)
	}
}

func seedRules(db *gorm.DB, tenantID string) {
	rules := []struct {
		code     string
		title    string
		severity string
		action   string
		params   string
	}{
		{"MAX_DAILY_HOURS", "Maximum daily working hours", "warn", "log", `{"max_minutes": 600}`},
		{"MAX_WEEKLY_HOURS", "Maximum weekly working hours", "block", "log", `{"max_minutes": 2400}`},
		{"MIN_REST_PERIOD", "Minimum rest between work periods", "critical", "auto_nc", `{"min_rest_minutes": 660}`},
	}

	for _, r := range rules {
		var exists int
		row := db.Raw(
			"SELECT 1 FROM compliance_rules WHERE tenant_id = ? AND rule_code = ? AND is_deleted = false",
			tenantID, r.code).Row()
		if err := row.Scan(&exists); err == nil {
			fmt.Println("rule already exists:", r.code)
			continue
		}

		if err := db.Exec(
			"INSERT INTO compliance_rules (id, tenant_id, rule_code, title, severity, action, parameters_json, is_active, is_deleted, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, true, false, now(), now())",
			uuid.NewString(), tenantID, r.code, r.title, r.severity, r.action, r.params).Error; err != nil {
			log.Fatalf("failed to insert rule %s: %v", r.code, err)
		}
		fmt.Println("Seeded rule:", r.code)
	}
}
