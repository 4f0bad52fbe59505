package main

import (
	"fmt"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/dharsanguruparan/codegate/internal/access"
	"github.com/dharsanguruparan/codegate/internal/app"
	"github.com/dharsanguruparan/codegate/internal/config"
	"github.com/dharsanguruparan/codegate/internal/database"
	"github.com/dharsanguruparan/codegate/internal/logger"
	"github.com/dharsanguruparan/codegate/internal/scheduler"
	"github.com/dharsanguruparan/codegate/internal/telegram"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			return withStores(ctx, true, func(s *app.Stores) error {
				version, err := database.MigrationVersion(ctx, s.DB)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "schema at version %d\n", version)
				return nil
			})
		},
	}
}

func parseID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("user id must be a positive number, got %q", arg)
	}
	return id, nil
}

func newGrantCmd() *cobra.Command {
	var grantor int64
	cmd := &cobra.Command{
		Use:   "grant <user-id>",
		Short: "Allow a user to upload files",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			return withStores(ctx, false, func(s *app.Stores) error {
				granted, err := access.NewRegistry(0, s.Uploaders, logger.L).Grant(ctx, id, grantor)
				if err != nil {
					return err
				}
				if granted {
					fmt.Fprintf(cmd.OutOrStdout(), "user %d can now upload\n", id)
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "user %d was already authorized\n", id)
				}
				return nil
			})
		},
	}
	cmd.Flags().Int64Var(&grantor, "by", 0, "User id recorded as the grantor")
	return cmd
}

func newRevokeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <user-id>",
		Short: "Withdraw a user's upload grant",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			return withStores(ctx, false, func(s *app.Stores) error {
				existed, err := access.NewRegistry(0, s.Uploaders, logger.L).Revoke(ctx, id)
				if err != nil {
					return err
				}
				if existed {
					fmt.Fprintf(cmd.OutOrStdout(), "user %d can no longer upload\n", id)
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "user %d had no grant\n", id)
				}
				return nil
			})
		},
	}
}

func newUploadersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "uploaders",
		Short: "List authorized uploaders",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			return withStores(ctx, false, func(s *app.Stores) error {
				grants, err := s.Uploaders.List(ctx)
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "USER\tGRANTED BY\tGRANTED AT")
				for _, g := range grants {
					fmt.Fprintf(w, "%d\t%d\t%s\n", g.UserID, g.GrantedBy, g.GrantedAt.Format(time.RFC3339))
				}
				return w.Flush()
			})
		},
	}
}

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print table sizes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			return withStores(ctx, false, func(s *app.Stores) error {
				st, err := s.Stats(ctx)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "users:                %d\n", st.Users)
				fmt.Fprintf(out, "authorized uploaders: %d\n", st.Uploaders)
				fmt.Fprintf(out, "files:                %d\n", st.Artifacts)
				fmt.Fprintf(out, "pending deletions:    %d\n", st.Pending)
				return nil
			})
		},
	}
}

// withScheduler builds a scheduler that deletes through Telegram and arms no
// timers; commands using it only fire what is already due.
func withScheduler(cmd *cobra.Command, fn func(*scheduler.Scheduler) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	tg, err := telegram.New(cfg.BotToken, logger.L)
	if err != nil {
		return err
	}
	return withStores(cmd.Context(), false, func(s *app.Stores) error {
		return fn(scheduler.New(s.Obligations, tg, nil, logger.L, scheduler.WithDelay(cfg.DeleteAfter)))
	})
}

func newSweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Delete every message whose deletion time has passed",
		Long: `sweep fires due deletion obligations once and exits. It needs BOT_TOKEN and the
other bot settings because it deletes messages through Telegram.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withScheduler(cmd, func(sched *scheduler.Scheduler) error {
				fired, err := sched.Sweep(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "fired %d obligations\n", fired)
				return nil
			})
		},
	}
}

func newRecoverCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "recover",
		Short: "Fire deletions that fell due while no bot was running",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withScheduler(cmd, func(sched *scheduler.Scheduler) error {
				fired, _, err := sched.Recover(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "fired %d overdue obligations\n", fired)
				return nil
			})
		},
	}
}
