package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/campus-canteen/api/internal/config"
	"github.com/campus-canteen/api/internal/database"
	"github.com/campus-canteen/api/internal/logger"
	"github.com/campus-canteen/api/internal/service"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

type seedItem struct {
	name, category, description, price string
}

var sampleMenu = []seedItem{
	{"Veg Thali", "Meals", "Rice, dal, two sabzis, roti and salad", "60.00"},
	{"Chicken Biryani", "Meals", "Hyderabadi style with raita", "110.00"},
	{"Masala Dosa", "South Indian", "Served with sambar and chutney", "45.00"},
	{"Idli Vada", "South Indian", "Two idlis and one vada", "35.00"},
	{"Samosa", "Snacks", "Two pieces with green chutney", "20.00"},
	{"Veg Puff", "Snacks", "", "18.00"},
	{"Masala Chai", "Beverages", "", "12.00"},
	{"Cold Coffee", "Beverages", "", "40.00"},
}

func main() {
	adminPassword := flag.String("admin-password", os.Getenv("SEED_ADMIN_PASSWORD"), "Password for the admin user")
	kitchenPassword := flag.String("kitchen-password", os.Getenv("SEED_KITCHEN_PASSWORD"), "Password for the kitchen user")
	withMenu := flag.Bool("menu", true, "Insert the sample menu when the menu is empty")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "seed: %v\n", err)
		os.Exit(1)
	}
	if err := logger.Initialize(cfg.LogLevel, "development"); err != nil {
		fmt.Fprintf(os.Stderr, "seed: init logger: %v\n", err)
		os.Exit(1)
	}
	log := logger.Log

	if *adminPassword == "" {
		*adminPassword = "admin123"
		log.Warn("using default admin password, change it in production")
	}
	if *kitchenPassword == "" {
		*kitchenPassword = "kitchen123"
		log.Warn("using default kitchen password, change it in production")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal("unable to connect to database", zap.Error(err))
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		log.Fatal("unable to ping database", zap.Error(err))
	}

	if cfg.MigrateOnStart {
		if _, err := database.RunMigrations(cfg.DatabaseURL); err != nil {
			log.Fatal("run migrations", zap.Error(err))
		}
	}

	// Seed in a transaction: users, settings and menu land together or not at all.
	tx, err := pool.Begin(ctx)
	if err != nil {
		log.Fatal("failed to begin transaction", zap.Error(err))
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	q := database.New(pool).WithTx(tx)

	users := []struct {
		username, password string
		role               database.UserRole
	}{
		{"admin", *adminPassword, database.UserRoleAdmin},
		{"kitchen", *kitchenPassword, database.UserRoleKitchen},
	}
	for _, u := range users {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatal("hash password", zap.Error(err))
		}
		user, err := q.UpsertUser(ctx, database.UpsertUserParams{
			Username:     u.username,
			PasswordHash: string(hash),
			Role:         u.role,
		})
		if err != nil {
			log.Fatal("seed user", zap.String("username", u.username), zap.Error(err))
		}
		log.Info("user ready", zap.String("username", user.Username), zap.String("role", string(user.Role)))
	}

	if _, err := q.UpsertSettings(ctx, database.UpsertSettingsParams{
		UpiID: pgtype.Text{String: cfg.DefaultUpiID, Valid: true},
	}); err != nil {
		log.Fatal("seed settings", zap.Error(err))
	}

	if *withMenu {
		existing, err := q.ListMenuItems(ctx, database.ListMenuItemsParams{})
		if err != nil {
			log.Fatal("list menu", zap.Error(err))
		}
		if len(existing) == 0 {
			for _, it := range sampleMenu {
				if _, err := q.CreateMenuItem(ctx, database.CreateMenuItemParams{
					Name:        it.name,
					Category:    it.category,
					Description: it.description,
					Price:       service.DecimalToNumeric(decimal.RequireFromString(it.price)),
					IsAvailable: true,
				}); err != nil {
					log.Fatal("seed menu item", zap.String("name", it.name), zap.Error(err))
				}
			}
			log.Info("sample menu inserted", zap.Int("items", len(sampleMenu)))
		} else {
			log.Info("menu already has items, skipping sample menu", zap.Int("items", len(existing)))
		}
	}

	if err := tx.Commit(ctx); err != nil {
		log.Fatal("failed to commit transaction", zap.Error(err))
	}
	log.Info("seed complete")
}
