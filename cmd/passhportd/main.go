package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/passhport/passhportd/internal/config"
	"github.com/passhport/passhportd/internal/database"
	"github.com/passhport/passhportd/internal/handler"
	"github.com/passhport/passhportd/internal/middleware"
	"github.com/passhport/passhportd/internal/repository"
	"github.com/passhport/passhportd/internal/scheduler"
	"github.com/passhport/passhportd/internal/service"
	"github.com/passhport/passhportd/internal/utils/email"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:          "passhportd",
		Short:        "passhportd manages the SSH keys of passhport administrators",
		Version:      version,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), cfgFile, cmd.ErrOrStderr())
		},
	}
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "yaml config file (environment variables take precedence)")

	cmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), cfgFile, cmd.ErrOrStderr())
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Create the database schema and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, logger, db, err := bootstrap(cmd.Context(), cfgFile, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer db.Close()
			logger.Info("Schema is up to date")
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "maintain",
		Short: "Run one database maintenance pass and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, db, err := bootstrap(cmd.Context(), cfgFile, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer db.Close()
			svc := service.NewService(repository.NewRepository(db), logger, cfg, nil)
			return svc.Maintain(cmd.Context())
		},
	})
	cmd.AddCommand(newTokenCmd(&cfgFile))

	return cmd
}

func newTokenCmd(cfgFile *string) *cobra.Command {
	var subject string
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for the API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.NewConfig(*cfgFile)
			if err != nil {
				return err
			}
			token, err := middleware.IssueToken(cfg.JWTSecret, subject, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "admin", "token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}

func newLogger(level string, out io.Writer) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(out)
	logger.SetFormatter(&logrus.JSONFormatter{})
	logLevel, err := logrus.ParseLevel(level)
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)
	return logger
}

// bootstrap loads the configuration, opens the database and migrates it
func bootstrap(ctx context.Context, cfgFile string, logOut io.Writer) (*config.Config, *logrus.Logger, *bun.DB, error) {
	cfg, err := config.NewConfig(cfgFile)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger := newLogger(cfg.LogLevel, logOut)

	db, err := database.Open(ctx, cfg.DBType, cfg.DBConn, logger)
	if err != nil {
		logger.Errorf("Failed to connect to database: %v", err)
		return nil, nil, nil, err
	}
	if err := repository.NewRepository(db).Migrate(ctx); err != nil {
		db.Close()
		logger.Errorf("Failed to migrate database: %v", err)
		return nil, nil, nil, err
	}
	return cfg, logger, db, nil
}

// newHTTPHandler wraps the whole router in the request logger so that 404 and
// 405 answers, which never reach route middleware, are logged too.
func newHTTPHandler(h *handler.Handler, cfg *config.Config, logger *logrus.Logger) http.Handler {
	r := handler.NewRouter(h, middleware.AuthMiddleware(cfg))
	return middleware.LoggingMiddleware(logger)(r)
}

func runServe(ctx context.Context, cfgFile string, logOut io.Writer) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, logger, db, err := bootstrap(ctx, cfgFile, logOut)
	if err != nil {
		return err
	}
	defer db.Close()

	// Initialize layers
	repo := repository.NewRepository(db)
	var notifier service.Notifier
	if cfg.NotificationsEnabled() {
		notifier = email.NewSender(cfg, logger)
	}
	svc := service.NewService(repo, logger, cfg, notifier)
	h := handler.NewHandler(svc, logger)

	if cfg.MaintenanceSchedule != "" {
		sched, err := scheduler.NewScheduler(cfg.MaintenanceSchedule, svc, logger)
		if err != nil {
			return err
		}
		sched.Start()
		defer sched.Stop()
	}

	if !cfg.AuthEnabled() {
		logger.Warn("JWT_SECRET is empty, the API is not authenticated")
	}

	addr := fmt.Sprintf(":%s", cfg.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      newHTTPHandler(h, cfg, logger),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("Starting server on %s", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Errorf("Server failed: %v", err)
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	return nil
}
