// ABOUTME: Offline maintenance commands that work directly on the push database
// ABOUTME: list, prune, days and token

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/2389/debugkit/internal/auth"
	"github.com/2389/debugkit/internal/retention"
)

// withRetention loads config, opens the store and hands fn a retention store.
func withRetention(opts *cliOptions, fn func(*retention.Store) error) error {
	cfg, _, err := loadConfig(opts)
	if err != nil {
		return err
	}
	// Maintenance commands stay quiet unless the config asks for a level.
	logCfg := cfg.Logging
	if logCfg.Level == "" {
		logCfg.Level = "warn"
	}
	logger := setupLogger(logCfg, nil)

	st, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	return fn(retention.New(st, nil, logger))
}

func newListCmd(opts *cliOptions) *cobra.Command {
	var limit int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored pushes, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit < 0 {
				return fmt.Errorf("--limit must not be negative")
			}
			return withRetention(opts, func(rs *retention.Store) error {
				return printPushes(cmd.Context(), cmd.OutOrStdout(), rs, limit, asJSON)
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum pushes to show (0 for all)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print one JSON object per push")
	return cmd
}

type listedPush struct {
	ID         string          `json:"id"`
	Alert      *string         `json:"alert,omitempty"`
	Payload    json.RawMessage `json:"payload"`
	ReceivedAt time.Time       `json:"received_at"`
}

func printPushes(ctx context.Context, out io.Writer, rs *retention.Store, limit int, asJSON bool) error {
	pushes := rs.List(ctx, limit)

	if asJSON {
		enc := json.NewEncoder(out)
		for _, p := range pushes {
			if err := enc.Encode(listedPush{ID: p.ID, Alert: p.Alert, Payload: p.Payload, ReceivedAt: p.ReceivedAt}); err != nil {
				return err
			}
		}
		return nil
	}

	if len(pushes) == 0 {
		fmt.Fprintln(out, "no pushes stored")
		return nil
	}

	gray := color.New(color.FgHiBlack)
	cyan := color.New(color.FgCyan)
	for _, p := range pushes {
		gray.Fprint(out, p.ReceivedAt.Local().Format("2006-01-02 15:04:05"), "  ")
		cyan.Fprint(out, p.ID)
		if p.Alert != nil {
			fmt.Fprintf(out, "  %s", *p.Alert)
		}
		fmt.Fprintln(out)
	}
	return nil
}

func newPruneCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "prune",
		Short: "Delete pushes older than the storage window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRetention(opts, func(rs *retention.Store) error {
				now := time.Now()
				policy := rs.Policy(cmd.Context())
				n := rs.Prune(cmd.Context(), now)

				out := cmd.OutOrStdout()
				color.New(color.FgGreen).Fprint(out, "✓ ")
				fmt.Fprintf(out, "pruned %d pushes received before %s (%d day window)\n",
					n, policy.Cutoff(now).Format("2006-01-02 15:04 MST"), policy.WindowDays)
				return nil
			})
		},
	}
}

func newDaysCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "days [N]",
		Short: "Show or set how many days pushes are kept",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var requested *int
			if len(args) == 1 {
				n, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("days must be an integer: %w", err)
				}
				requested = &n
			}

			return withRetention(opts, func(rs *retention.Store) error {
				out := cmd.OutOrStdout()
				if requested == nil {
					fmt.Fprintf(out, "%d\n", rs.StorageDays(cmd.Context()))
					return nil
				}

				effective, saved := rs.SetStorageDays(cmd.Context(), *requested)
				if !saved {
					return fmt.Errorf("saving storage days failed, still keeping %d days", effective)
				}
				if effective != *requested {
					color.New(color.FgYellow).Fprint(out, "! ")
					fmt.Fprintf(out, "%d is below the minimum, keeping %d days\n", *requested, effective)
					return nil
				}
				color.New(color.FgGreen).Fprint(out, "✓ ")
				fmt.Fprintf(out, "keeping %d days\n", effective)
				return nil
			})
		},
	}
}

func newTokenCmd(opts *cliOptions) *cobra.Command {
	var subject string
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an API bearer token signed with auth.jwt_secret",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig(opts)
			if err != nil {
				return err
			}
			if cfg.Auth.JWTSecret == "" {
				return fmt.Errorf("auth.jwt_secret is not configured")
			}

			verifier, err := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
			if err != nil {
				return err
			}
			token, err := verifier.Generate(subject, ttl)
			if err != nil {
				return fmt.Errorf("generating token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "token subject (sub claim)")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime (0 for no expiry)")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}
