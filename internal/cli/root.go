package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/setupdesk/setup-desk/internal/app"
	"github.com/setupdesk/setup-desk/internal/config"
	"github.com/setupdesk/setup-desk/internal/permissions"
)

const version = "0.1.0"

func NewRoot(logger *slog.Logger) *cobra.Command {
	root := &cobra.Command{
		Use:   "setup-desk",
		Short: "Setup Desk installs Python packages on request, gated by role",
	}

	root.AddCommand(newServeCommand(logger))
	root.AddCommand(newInitCommand(logger))
	root.AddCommand(newRequestCommand(logger))
	root.AddCommand(newGrantCommand(logger))
	root.AddCommand(newVersionCommand())

	return root
}

func newServeCommand(logger *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and background workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.FromEnv()
			runtime, err := app.New(cfg, logger)
			if err != nil {
				return err
			}
			defer runtime.Close()

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return runtime.Run(ctx)
		},
	}
}

func newInitCommand(logger *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the database, default permission table and demo accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.FromEnv()
			runtime, err := app.New(cfg, logger)
			if err != nil {
				return err
			}
			defer runtime.Close()

			if err := runtime.Store().SeedTestUsers(cmd.Context()); err != nil {
				return err
			}
			logger.Info("setup-desk initialized", "db_path", cfg.DBPath, "permissions_path", cfg.PermissionsPath)
			cmd.Println("initialized")
			return nil
		},
	}
}

func newRequestCommand(logger *slog.Logger) *cobra.Command {
	var employeeID string
	var password string

	command := &cobra.Command{
		Use:   "request [text]",
		Short: "Process a single installation request and print the outcome",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.FromEnv()
			runtime, err := app.New(cfg, logger)
			if err != nil {
				return err
			}
			defer runtime.Close()

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			outcome, err := runtime.ProcessOnce(ctx, employeeID, password, strings.Join(args, " "))
			if err != nil {
				return err
			}
			encoded, err := json.MarshalIndent(outcome, "", "  ")
			if err != nil {
				return err
			}
			cmd.Println(string(encoded))
			return nil
		},
	}
	command.Flags().StringVar(&employeeID, "employee-id", "", "employee id to authenticate as")
	command.Flags().StringVar(&password, "password", "", "password for the employee")
	_ = command.MarkFlagRequired("employee-id")
	_ = command.MarkFlagRequired("password")
	return command
}

func newGrantCommand(logger *slog.Logger) *cobra.Command {
	var role string
	var packageName string

	command := &cobra.Command{
		Use:   "grant",
		Short: "Grant a package to a role in the permission table",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.FromEnv()
			source := permissions.NewFileSource(cfg.PermissionsPath)
			resolver, err := permissions.NewResolver(source, logger)
			if err != nil {
				return err
			}
			if !permissions.IsKnownRole(role) {
				return fmt.Errorf("unknown role %q, known roles: %v", role, permissions.Roles())
			}
			if err := resolver.GrantPackage(role, packageName); err != nil {
				return err
			}
			cmd.Printf("granted %s to %s\n", packageName, role)
			return nil
		},
	}
	command.Flags().StringVar(&role, "role", "", "role receiving the grant")
	command.Flags().StringVar(&packageName, "package", "", "package name to grant")
	_ = command.MarkFlagRequired("role")
	_ = command.MarkFlagRequired("package")
	return command
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print CLI version",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Println(version)
		},
	}
}
