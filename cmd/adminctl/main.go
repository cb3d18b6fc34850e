// Command adminctl creates a user directly in the database, typically the
// first SUPER_ADMIN:
//
//	DATABASE_URL=postgres://... adminctl -email root@example.com -name Root
//
// The password is read from the terminal.
package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/dmitrijs2005/dealerdesk/internal/adminctl"
	"github.com/dmitrijs2005/dealerdesk/internal/server/auth"
	"github.com/dmitrijs2005/dealerdesk/internal/server/config"
	"github.com/dmitrijs2005/dealerdesk/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/dealerdesk/internal/server/services"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("adminctl: %v", err)
	}
}

func run() error {
	ctx := context.Background()

	opts, err := adminctl.ParseOptions(os.Args[1:])
	if err != nil {
		return err
	}

	cfg := config.LoadConfig()
	if cfg.DatabaseDSN == "" {
		return fmt.Errorf("database dsn is not set (DATABASE_URL)")
	}

	db, err := repomanager.Open(ctx, cfg.DatabaseDSN)
	if err != nil {
		return err
	}
	defer db.Close()

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}

	// Create issues no tokens, so the signing secret is not required here.
	us := services.NewUserService(db, rm, auth.NewPasswordHasher(cfg.BcryptCost),
		auth.NewTokenIssuer([]byte(cfg.JWTSecret), cfg.TokenValidityDuration), "")

	_, err = adminctl.New(us, os.Stdin, os.Stdout).Run(ctx, opts)
	return err
}
