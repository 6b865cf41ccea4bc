package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pharmacy-inventory/internal/config"
	"pharmacy-inventory/internal/database"
	"pharmacy-inventory/internal/handlers"
	"pharmacy-inventory/internal/logger"
	"pharmacy-inventory/internal/services"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	cfg *config.Config
	log *zap.Logger
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := &cobra.Command{
		Use:               "pharmacy",
		Short:             "Pharmacy inventory and alert server",
		SilenceUsage:      true,
		PersistentPreRunE: initGlobal,
		Run: func(cmd *cobra.Command, _ []string) {
			_ = cmd.Help()
		},
		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			if log != nil {
				_ = log.Sync()
			}
		},
	}
	root.SetContext(ctx)
	root.AddCommand(newServeCmd(), newMigrateCmd(), newCreateAdminCmd(), newSweepAlertsCmd(), newBackupCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func initGlobal(_ *cobra.Command, _ []string) error {
	if err := config.LoadDotEnv(); err != nil {
		return err
	}

	var err error
	if cfg, err = config.Load(); err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	log, err = logger.New(logger.Options{
		Level:     cfg.Log.Level,
		Format:    cfg.Log.Format,
		Path:      cfg.Log.Path,
		MaxSizeMB: cfg.Log.MaxSizeMB,
	})
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	return nil
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run migrations and start the HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context())
		},
	}
}

func serve(ctx context.Context) error {
	a, err := openApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go a.sweeper.Run(ctx)

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           newRouter(a),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
		// Requests inherit ctx so open alert streams end on shutdown
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("Server starting",
			zap.String("addr", srv.Addr),
			zap.String("environment", cfg.Server.Environment),
			zap.Bool("live_alerts", a.broadcaster != nil),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}

	log.Info("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	return srv.Shutdown(shutdownCtx)
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := openDatabase(cfg.Database.Path)
			if err != nil {
				return err
			}
			defer db.Close()

			applied, err := db.RunMigrations()
			if err != nil {
				return err
			}
			log.Info("Migrations complete", zap.Strings("applied", applied))
			return nil
		},
	}
}

func newCreateAdminCmd() *cobra.Command {
	var username, fullName, password string

	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Create an admin account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if password == "" {
				password = os.Getenv("ADMIN_PASSWORD")
			}
			if password == "" {
				return errors.New("password is required (--password or ADMIN_PASSWORD)")
			}

			a, err := openApp(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer a.Close()

			user, err := a.users.BootstrapAdmin(cmd.Context(), username, fullName, password)
			if err != nil {
				return err
			}
			log.Info("Admin created", zap.Int64("user_id", user.ID), zap.String("username", user.Username))
			return nil
		},
	}
	cmd.Flags().StringVar(&username, "username", "admin", "login name")
	cmd.Flags().StringVar(&fullName, "full-name", "Administrator", "display name")
	cmd.Flags().StringVar(&password, "password", "", "password (defaults to $ADMIN_PASSWORD)")
	return cmd
}

func newSweepAlertsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep-alerts",
		Short: "Delete alerts past their retention window",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer a.Close()

			deleted := a.sweeper.SweepOnce(cmd.Context())
			log.Info("Sweep complete", zap.Int64("deleted", deleted))
			return nil
		},
	}
}

func newBackupCmd() *cobra.Command {
	var scheduled bool

	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Write a database snapshot to the backup directory",
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := openDatabase(cfg.Database.Path)
			if err != nil {
				return err
			}
			defer db.Close()

			var info *database.BackupInfo
			if scheduled {
				info, err = services.NewBackupRotation(db, cfg.Backup.Dir, cfg.Backup.Keep, log).Rotate(cmd.Context())
			} else {
				info, err = db.Backup(cmd.Context(), cfg.Backup.Dir, handlers.ManualBackupPrefix, time.Now())
			}
			if err != nil {
				return err
			}
			log.Info("Backup created", zap.String("path", info.Path), zap.String("size", info.SizeHuman))
			return nil
		},
	}
	cmd.Flags().BoolVar(&scheduled, "scheduled", false, "name the backup as scheduled and prune old scheduled backups")
	return cmd
}
