package main

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-sla-engine/internal/auth"
	"github.com/spec-kit/ticket-sla-engine/internal/bootstrap"
	"github.com/spec-kit/ticket-sla-engine/internal/config"
	"github.com/spec-kit/ticket-sla-engine/internal/domain"
	"github.com/spec-kit/ticket-sla-engine/internal/observability"
	"github.com/spec-kit/ticket-sla-engine/internal/persistence"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "ticketctl",
		Short:         "Operator tasks for the ticket SLA engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newMigrateCmd(), newPurgeCmd(), newPoliciesCmd(), newTokenCmd())
	return root
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply SQL migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			pg, err := persistence.NewPostgres(cmd.Context(), cfg.Postgres, logger)
			if err != nil {
				return err
			}
			defer pg.Close()
			if err := persistence.RunMigrations(cmd.Context(), pg.Pool(), cfg.Postgres.MigrationsDir, logger); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
}

func newPurgeCmd() *cobra.Command {
	var windowDays int
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Run one retention pass over archived tickets",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck
			if windowDays > 0 {
				cfg.Retention.WindowDays = windowDays
			}

			components, err := bootstrap.Build(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer components.Close()

			report, err := components.Retention.Purge(cmd.Context())
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		},
	}
	cmd.Flags().IntVar(&windowDays, "window-days", 0, "override RETENTION_WINDOW_DAYS")
	return cmd
}

func newPoliciesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "policies",
		Short: "Print the SLA policy table",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck
			cfg.Postgres.RunMigrations = false

			components, err := bootstrap.Build(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer components.Close()

			policies, err := components.Policies.List(cmd.Context())
			if err != nil {
				return err
			}
			return printPolicies(cmd, policies)
		},
	}
}

func printPolicies(cmd *cobra.Command, policies []domain.SLAPolicy) error {
	sort.Slice(policies, func(i, j int) bool { return policies[i].Priority < policies[j].Priority })
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PRIORITY\tRESPONSE (min)\tRESOLUTION (min)\tID")
	for _, p := range policies {
		fmt.Fprintf(w, "%s\t%d\t%d\t%s\n", p.Priority, p.ResponseMinutes, p.ResolutionMinutes, p.ID)
	}
	return w.Flush()
}

func newTokenCmd() *cobra.Command {
	var (
		userID string
		role   string
		secret string
		ttl    int
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for a user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			actor := domain.Actor{ID: strings.TrimSpace(userID), Role: domain.Role(strings.ToUpper(role))}
			if actor.ID == "" || !actor.Role.Valid() {
				return fmt.Errorf("--user and a valid --role are required")
			}
			if secret == "" {
				cfg, err := config.Load()
				if err != nil {
					return err
				}
				secret = cfg.Auth.JWTSecret
			}
			token, expires, err := auth.NewTokenManager(secret, ttl).GenerateToken(actor)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\nexpires %s\n", token, expires.UTC().Format("2006-01-02T15:04:05Z"))
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id (token subject)")
	cmd.Flags().StringVar(&role, "role", "AGENT", "REQUESTER, AGENT, TEAM_LEAD or ADMIN")
	cmd.Flags().StringVar(&secret, "secret", "", "signing secret (defaults to AUTH_JWT_SECRET)")
	cmd.Flags().IntVar(&ttl, "ttl-minutes", 60, "token lifetime")
	return cmd
}

func setup() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}
