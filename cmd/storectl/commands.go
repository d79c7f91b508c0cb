package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"storefront/internal/bootstrap"
	"storefront/internal/database"
	"storefront/internal/model"
	"storefront/internal/service"
	"storefront/pkg/config"
	"storefront/pkg/logger"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	adminName     string
	adminEmail    string
	adminPassword string

	rootCmd = &cobra.Command{
		Use:           "storectl",
		Short:         "Operate the storefront back office database",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	migrateCmd = &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the schema, including the pending approval lock index",
		RunE:  runMigrate,
	}

	reconcileCmd = &cobra.Command{
		Use:   "reconcile",
		Short: "Compare every product's stock with its ledger and store drift reports",
		RunE:  runReconcile,
	}

	createAdminCmd = &cobra.Command{
		Use:   "create-admin",
		Short: "Create an admin account",
		RunE:  runCreateAdmin,
	}
)

func init() {
	createAdminCmd.Flags().StringVar(&adminName, "name", "Administrator", "display name")
	createAdminCmd.Flags().StringVar(&adminEmail, "email", "", "login email")
	createAdminCmd.Flags().StringVar(&adminPassword, "password", "", "login password (min 6 characters)")
	_ = createAdminCmd.MarkFlagRequired("email")
	_ = createAdminCmd.MarkFlagRequired("password")

	rootCmd.AddCommand(migrateCmd, reconcileCmd, createAdminCmd)
}

// withContainer loads config, builds the container and runs fn with a
// signal-aware context.
func withContainer(fn func(ctx context.Context, app *bootstrap.Container) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	zl, err := logger.New(cfg)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer func() { _ = zl.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, zl)
	if err != nil {
		return err
	}
	defer app.Close()

	return fn(ctx, app)
}

func runMigrate(_ *cobra.Command, _ []string) error {
	return withContainer(func(_ context.Context, app *bootstrap.Container) error {
		return database.Migrate(app.DB, app.Logger)
	})
}

func runReconcile(_ *cobra.Command, _ []string) error {
	return withContainer(func(ctx context.Context, app *bootstrap.Container) error {
		result, err := app.Ledger.Reconcile(ctx, nil)
		if err != nil {
			return err
		}
		if len(result.Drifted) > 0 {
			app.Logger.Warn("stock ledger drift detected",
				zap.String("correlation_id", result.CorrelationID),
				zap.Int("drifted", len(result.Drifted)),
			)
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	})
}

func runCreateAdmin(_ *cobra.Command, _ []string) error {
	return withContainer(func(ctx context.Context, app *bootstrap.Container) error {
		user, err := app.Users.CreateUser(ctx, service.CreateUserRequest{
			Name:     adminName,
			Email:    adminEmail,
			Password: adminPassword,
			Role:     model.RoleAdmin,
		})
		if err != nil {
			return err
		}
		fmt.Printf("created admin %s (%s)\n", user.Email, user.ID)
		return nil
	})
}
