package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"enhancer/internal/domain"
	"enhancer/internal/imagegen"
)

const (
	commandTimeout = 10 * time.Second
	migrateTimeout = 2 * time.Minute
)

type tokenSetter interface {
	SetKieAPIKey(ctx context.Context, key string) error
}

// backend is what the commands operate on; tests swap in fakes.
type backend struct {
	quota        domain.QuotaRepository
	tokens       tokenSetter
	defaultLimit int
	close        func()
}

type openFunc func(ctx context.Context) (*backend, error)

// migrateFunc applies pending schema migrations and returns their names.
type migrateFunc func(ctx context.Context) ([]string, error)

func newRootCmd(open openFunc, migrate migrateFunc) *cobra.Command {
	root := &cobra.Command{
		Use:           "enhancectl",
		Short:         "Operator tooling for the enhancement service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newQuotaCmd(open), newProviderKeyCmd(open), newMigrateCmd(migrate))
	return root
}

// withBackend opens the backend for one command run and closes it afterwards.
func withBackend(cmd *cobra.Command, open openFunc, fn func(ctx context.Context, b *backend) error) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
	defer cancel()
	b, err := open(ctx)
	if err != nil {
		return err
	}
	if b.close != nil {
		defer b.close()
	}
	return fn(ctx, b)
}

func requiredEmail(cmd *cobra.Command) (string, error) {
	raw, _ := cmd.Flags().GetString("email")
	email := imagegen.NormalizeEmail(raw)
	if email == "" {
		return "", errors.New("--email is required")
	}
	return email, nil
}

// --- quota ---

func newQuotaCmd(open openFunc) *cobra.Command {
	quotaCmd := &cobra.Command{
		Use:   "quota",
		Short: "Inspect and manage monthly generation quotas",
	}

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Show usage and limit for the current month",
		RunE: func(cmd *cobra.Command, args []string) error {
			email, err := requiredEmail(cmd)
			if err != nil {
				return err
			}
			return withBackend(cmd, open, func(ctx context.Context, b *backend) error {
				status, err := imagegen.NewQuotaGuard(b.quota, b.defaultLimit).Status(ctx, email)
				if err != nil {
					return fmt.Errorf("load quota: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "email:     %s\nperiod:    %s\nused:      %d\nlimit:     %d\nremaining: %d\n",
					email, status.Period, status.Used, status.Limit, status.Remaining())
				return nil
			})
		},
	}

	setLimitCmd := &cobra.Command{
		Use:   "set-limit",
		Short: "Set the monthly limit for an account",
		Long: `Set the monthly limit for an account.

Examples:
  enhancectl quota set-limit --email shop@example.com --limit 50
  enhancectl quota set-limit --email shop@example.com --limit 0   # block generations`,
		RunE: func(cmd *cobra.Command, args []string) error {
			email, err := requiredEmail(cmd)
			if err != nil {
				return err
			}
			limit, _ := cmd.Flags().GetInt("limit")
			if limit < 0 {
				return errors.New("--limit must be zero or positive")
			}
			return withBackend(cmd, open, func(ctx context.Context, b *backend) error {
				if err := b.quota.SetLimit(ctx, email, limit); err != nil {
					return fmt.Errorf("set limit: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "monthly limit for %s set to %d\n", email, limit)
				return nil
			})
		},
	}

	resetCmd := &cobra.Command{
		Use:   "reset",
		Short: "Reset usage for a month (defaults to the current one)",
		RunE: func(cmd *cobra.Command, args []string) error {
			email, err := requiredEmail(cmd)
			if err != nil {
				return err
			}
			period, _ := cmd.Flags().GetString("period")
			period = strings.TrimSpace(period)
			if period == "" {
				period = domain.QuotaPeriod(time.Now())
			} else if _, err := time.Parse("2006-01", period); err != nil {
				return fmt.Errorf("--period must look like YYYY-MM: %q", period)
			}
			return withBackend(cmd, open, func(ctx context.Context, b *backend) error {
				if err := b.quota.Reset(ctx, email, period); err != nil {
					return fmt.Errorf("reset usage: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "usage for %s in %s reset\n", email, period)
				return nil
			})
		},
	}

	for _, c := range []*cobra.Command{showCmd, setLimitCmd, resetCmd} {
		c.Flags().String("email", "", "account email")
	}
	setLimitCmd.Flags().Int("limit", -1, "generations allowed per month")
	resetCmd.Flags().String("period", "", "month to reset, YYYY-MM")

	quotaCmd.AddCommand(showCmd, setLimitCmd, resetCmd)
	return quotaCmd
}

// --- provider-key ---

func newProviderKeyCmd(open openFunc) *cobra.Command {
	keyCmd := &cobra.Command{
		Use:   "provider-key",
		Short: "Manage the image provider API key",
	}
	setCmd := &cobra.Command{
		Use:   "set",
		Short: "Store the provider API key (falls back to KIE_API_KEY)",
		RunE: func(cmd *cobra.Command, args []string) error {
			key, _ := cmd.Flags().GetString("key")
			key = strings.TrimSpace(key)
			if key == "" {
				key = strings.TrimSpace(os.Getenv("KIE_API_KEY"))
			}
			if key == "" {
				return errors.New("API key is required via --key or KIE_API_KEY")
			}
			return withBackend(cmd, open, func(ctx context.Context, b *backend) error {
				if err := b.tokens.SetKieAPIKey(ctx, key); err != nil {
					return fmt.Errorf("failed to persist api key: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "provider API key stored successfully")
				return nil
			})
		},
	}
	setCmd.Flags().String("key", "", "provider API key")
	keyCmd.AddCommand(setCmd)
	return keyCmd
}

// --- migrate ---

func newMigrateCmd(migrate migrateFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), migrateTimeout)
			defer cancel()
			applied, err := migrate(ctx)
			if err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			if len(applied) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "schema is up to date")
				return nil
			}
			for _, name := range applied {
				fmt.Fprintf(cmd.OutOrStdout(), "applied %s\n", name)
			}
			return nil
		},
	}
}
