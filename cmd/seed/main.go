package main

import (
	"fmt"
	"os"

	"github.com/ecocycle/rvm-loyalty/internal/config"
	"github.com/ecocycle/rvm-loyalty/internal/logger"
	"github.com/ecocycle/rvm-loyalty/internal/model"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Seeds the material catalog, a starter machine fleet and an admin user.
// Safe to run repeatedly; existing rows are left untouched.
func main() {
	_ = godotenv.Load()
	cfg, err := config.Load("internal/config/config.yaml")
	if err != nil {
		panic(fmt.Errorf("load config: %w", err))
	}

	log, err := logger.NewLogger()
	if err != nil {
		panic(fmt.Errorf("init logger: %w", err))
	}
	defer log.Sync()

	gdb, err := gorm.Open(postgres.Open(cfg.Postgres.DSN), &gorm.Config{})
	if err != nil {
		log.Fatalf("open postgres: %v", err)
	}
	if err := gdb.AutoMigrate(
		&model.User{}, &model.Material{}, &model.Machine{},
		&model.Wallet{}, &model.Transaction{}, &model.Activity{},
		&model.OutboxEvent{},
	); err != nil {
		log.Fatalf("auto-migrate: %v", err)
	}

	materials := []model.Material{
		{Name: "Plastic", PointsPerKG: decimal.RequireFromString("1.00")},
		{Name: "Metal", PointsPerKG: decimal.RequireFromString("3.00")},
		{Name: "Glass", PointsPerKG: decimal.RequireFromString("2.00")},
		{Name: "Paper", PointsPerKG: decimal.RequireFromString("0.50")},
		{Name: "Cardboard", PointsPerKG: decimal.RequireFromString("0.75")},
	}
	for _, m := range materials {
		m.IsActive = true
		res := gdb.Where(model.Material{Name: m.Name}).FirstOrCreate(&m)
		if res.Error != nil {
			log.Fatalf("seed material %s: %v", m.Name, res.Error)
		}
		if res.RowsAffected > 0 {
			log.Infof("created material %s (%s pts/kg)", m.Name, m.PointsPerKG)
		}
	}

	machines := []model.Machine{
		{Name: "Maadi Station", Location: "Maadi Corniche, Cairo"},
		{Name: "Zamalek Location", Location: "Zamalek, Gezira Island, Cairo"},
		{Name: "Heliopolis Campus", Location: "Heliopolis, Cairo"},
		{Name: "Nasr City Park", Location: "Nasr City, Cairo"},
		{Name: "Downtown Cairo", Location: "Tahrir Square, Downtown Cairo"},
		{Name: "Garden City", Location: "Garden City, Cairo"},
		{Name: "Mohandessin", Location: "Mohandessin, Giza"},
		{Name: "6th of October", Location: "6th of October City, Giza"},
	}
	for _, m := range machines {
		m.Status = model.MachineActive
		res := gdb.Where(model.Machine{Name: m.Name}).FirstOrCreate(&m)
		if res.Error != nil {
			log.Fatalf("seed machine %s: %v", m.Name, res.Error)
		}
		if res.RowsAffected > 0 {
			log.Infof("created machine %s at %s", m.Name, m.Location)
		}
	}

	var admins int64
	if err := gdb.Model(&model.User{}).Where("role = ?", model.RoleAdmin).Count(&admins).Error; err != nil {
		log.Fatalf("count admins: %v", err)
	}
	if admins == 0 {
		password := os.Getenv("ADMIN_PASSWORD")
		if password == "" {
			password = "admin123"
			log.Warn("ADMIN_PASSWORD not set, using default")
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("hash admin password: %v", err)
		}
		admin := model.User{
			Email:        "admin@rvm.com",
			PasswordHash: string(hash),
			FirstName:    "Ahmed",
			LastName:     "Mahmoud",
			Role:         model.RoleAdmin,
		}
		if err := gdb.Create(&admin).Error; err != nil {
			log.Fatalf("create admin: %v", err)
		}
		log.Infof("created admin user %s", admin.Email)
	}

	log.Info("seed complete")
}
