package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/opentrusty/tenancy/internal/app"
	"github.com/opentrusty/tenancy/internal/config"
	"github.com/opentrusty/tenancy/internal/observability/logger"
	"github.com/opentrusty/tenancy/internal/provisioning"
	"github.com/opentrusty/tenancy/internal/store/postgres"
	"github.com/opentrusty/tenancy/internal/tenant"
	"github.com/spf13/cobra"
)

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger.InitLogger(logger.Config{
		Level:       cfg.Observability.LogLevel,
		Format:      "text",
		ServiceName: "tenantctl",
	})
	return cfg, nil
}

// withApp wires the control plane for the duration of fn
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close(context.Background())
	return fn(ctx, a)
}

func parseTenantID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid tenant id %q", arg)
	}
	return id, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply control-plane migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			db, err := postgres.New(cmd.Context(), app.DatabaseConfig(cfg))
			if err != nil {
				return err
			}
			defer db.Close()

			applied, err := db.Migrate(cmd.Context())
			if err != nil {
				return err
			}
			if len(applied) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Control plane is up to date.")
				return nil
			}
			for _, name := range applied {
				fmt.Fprintf(cmd.OutOrStdout(), "Applied %s\n", name)
			}
			return nil
		},
	}
}

func createCmd() *cobra.Command {
	var req tenant.CreateRequest

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register a tenant and optionally provision its database",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				result, err := a.TenantSvc.CreateTenant(ctx, req)
				if result != nil {
					if perr := printJSON(cmd.OutOrStdout(), result); perr != nil {
						return perr
					}
				}
				return err
			})
		},
	}

	f := cmd.Flags()
	f.StringVar(&req.Name, "name", "", "display name")
	f.StringVar(&req.Slug, "slug", "", "unique url-safe identifier")
	f.StringVar(&req.DatabaseName, "database-name", "", "explicit database name (derived from the slug when empty)")
	f.StringVar(&req.ConnectionString, "connection-string", "", "use an existing database instead of creating one")
	f.StringVar(&req.PrimaryContactEmail, "email", "", "primary contact and initial administrator email")
	f.StringVar(&req.PrimaryContactName, "contact-name", "", "primary contact name")
	f.StringVar(&req.Region, "region", "", "hosting region")
	f.BoolVar(&req.IsDemo, "demo", false, "mark as a demo tenant")
	f.BoolVar(&req.ProvisionDatabase, "provision", true, "provision the tenant database right away")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("slug")

	return cmd
}

func provisionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "provision <tenant-id>",
		Short: "Run or retry provisioning for a tenant",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseTenantID(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				t, report, err := a.TenantSvc.ProvisionTenant(ctx, id)
				if err != nil {
					var perr *provisioning.Error
					if errors.As(err, &perr) {
						return fmt.Errorf("provisioning failed at step %q (retryable): %w", perr.Step, perr.Err)
					}
					return err
				}
				return printJSON(cmd.OutOrStdout(), map[string]any{"tenant": t, "provisioning": report})
			})
		},
	}
}

func migrateTenantsCmd() *cobra.Command {
	var concurrency int

	cmd := &cobra.Command{
		Use:   "migrate-tenants",
		Short: "Bring every provisioned tenant database to the latest schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				results, err := provisioning.UpgradeAll(ctx, a.Tenants, a.Migrator, concurrency)
				if err != nil {
					return err
				}

				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "TENANT\tSLUG\tAPPLIED\tRESULT")
				failed := 0
				for _, r := range results {
					result := "ok"
					if r.Err != nil {
						result = r.Err.Error()
						failed++
					}
					fmt.Fprintf(w, "%d\t%s\t%d\t%s\n", r.TenantID, r.Slug, len(r.Applied), result)
				}
				if err := w.Flush(); err != nil {
					return err
				}
				if failed > 0 {
					return fmt.Errorf("%d of %d tenant databases failed to migrate", failed, len(results))
				}
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&concurrency, "concurrency", 4, "tenant databases migrated in parallel")
	return cmd
}

func historyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history <tenant-id>",
		Short: "Show the migration history of a tenant database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseTenantID(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				t, err := a.TenantSvc.GetTenant(ctx, id)
				if err != nil {
					return err
				}
				if !t.HasDatabase() {
					return fmt.Errorf("tenant %d has no database yet", id)
				}

				records, err := a.Migrator.History(ctx, t.ConnectionString)
				if err != nil {
					return err
				}
				if len(records) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No migrations have been applied yet.")
					return nil
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "%-16s  %-30s  %-24s\n", "Version", "Name", "Applied At")
				for _, record := range records {
					fmt.Fprintf(out, "%-16s  %-30s  %-24s\n", record.Version, record.Name, record.AppliedAt.Format(time.RFC3339))
				}

				pending, err := a.Migrator.Pending(ctx, t.ConnectionString)
				if err != nil {
					return err
				}
				if len(pending) > 0 {
					fmt.Fprintf(out, "\n%d pending, latest %s (run migrate-tenants)\n", len(pending), a.Migrator.Latest())
				}
				return nil
			})
		},
	}
}
