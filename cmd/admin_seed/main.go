package main

import (
	"context"
	"errors"
	"log"
	"os"

	"bundlepay/internal/config"
	"bundlepay/internal/models"
	"bundlepay/internal/repositories"

	"golang.org/x/crypto/bcrypt"
)

func main() {
	config.LoadEnv()
	cfg := config.Load()

	adminEmail := os.Getenv("ADMIN_EMAIL")
	adminPassword := os.Getenv("ADMIN_PASSWORD")
	adminPhone := os.Getenv("ADMIN_PHONE")
	adminName := config.GetEnv("ADMIN_NAME", "Administrator")

	if adminEmail == "" || adminPassword == "" || adminPhone == "" {
		log.Fatal("ADMIN_EMAIL, ADMIN_PASSWORD, and ADMIN_PHONE must be set in environment")
	}

	db, err := repositories.InitDB(cfg.Database)
	if err != nil {
		log.Fatal("Failed to open database:", err)
	}
	defer func() {
		sqlDB, err := db.DB()
		if err != nil {
			log.Printf("failed to get SQL DB instance: %v", err)
			return
		}
		if err := sqlDB.Close(); err != nil {
			log.Printf("failed to close database connection: %v", err)
		}
	}()

	ctx := context.Background()
	users := repositories.NewUserRepository(db)

	if _, err := users.GetByEmail(ctx, adminEmail); err == nil {
		log.Println("Admin user already exists")
		return
	} else if !errors.Is(err, repositories.ErrUserNotFound) {
		log.Fatal("Failed to look up admin user:", err)
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(adminPassword), bcrypt.DefaultCost)
	if err != nil {
		log.Fatal("Failed to hash password:", err)
	}

	admin := &models.User{
		Email:        adminEmail,
		Name:         adminName,
		Phone:        adminPhone,
		PasswordHash: string(hashedPassword),
		Role:         "admin",
		Status:       models.UserStatusActive,
		Approved:     true,
	}
	if err := users.Create(ctx, admin); err != nil {
		log.Fatal("Failed to create admin user:", err)
	}

	wallets := repositories.NewWalletRepository(db)
	if err := wallets.EnsureWallet(ctx, &models.Wallet{UserID: admin.ID, Currency: cfg.Wallet.Currency}); err != nil {
		log.Fatal("Failed to create admin wallet:", err)
	}

	log.Printf("Admin account %s created with wallet", adminEmail)
}
