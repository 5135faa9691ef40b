package cmd

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/example/seat-scheduler/internal/prefs"
)

func newPrefCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pref",
		Short: "Manage booking preferences",
	}
	cmd.AddCommand(newPrefAddCmd())
	cmd.AddCommand(newPrefListCmd())
	cmd.AddCommand(newPrefToggleCmd("enable", true))
	cmd.AddCommand(newPrefToggleCmd("disable", false))
	return cmd
}

func newPrefAddCmd() *cobra.Command {
	var p prefs.Preference
	c := &cobra.Command{
		Use:   "add",
		Short: "Add or replace a user's preference and schedule its daily booking",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			rt, err := openRuntime(ctx, true)
			if err != nil {
				return err
			}
			defer rt.Close()

			if err := p.Validate(rt.Catalog); err != nil {
				return err
			}
			if p.ID, err = rt.PrefRepo.Save(ctx, p); err != nil {
				return err
			}
			if err := rt.SyncPreference(ctx, p); err != nil {
				return fmt.Errorf("preference %d saved but not scheduled: %w", p.ID, err)
			}
			fmt.Fprintf(os.Stdout, "saved preference id=%d user=%s\n", p.ID, p.UserID)
			return nil
		},
	}

	f := c.Flags()
	f.StringVar(&p.UserID, "user", "", "user id, one preference per user")
	f.StringVar(&p.AccountID, "account", "", "platform account id")
	f.StringVar(&p.AccountSecret, "secret", "", "platform account password")
	f.IntVar(&p.RoomID, "room", 0, "room id")
	f.IntVar(&p.StartHour, "start", 8, "start hour")
	f.IntVar(&p.DurationHours, "duration", 4, "duration in hours")
	f.IntVar(&p.StartToleranceHours, "start-tolerance", 0, "hours the start may move")
	f.IntVar(&p.DurationToleranceHours, "duration-tolerance", 0, "hours the duration may shrink")
	f.IntVar(&p.PreferredSeat, "seat", 0, "preferred seat number, 0 for any")
	f.StringVar(&p.NotifyTo, "notify", "", "notification recipient")
	f.StringVar(&p.TriggerCron, "cron", "", "booking trigger (cron); empty uses DAILY_CRON")
	f.BoolVar(&p.Enabled, "enabled", true, "run the daily booking")
	for _, name := range []string{"user", "account", "secret", "room"} {
		_ = c.MarkFlagRequired(name)
	}
	return c
}

func newPrefListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List preferences",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			rt, err := openRuntime(ctx, false)
			if err != nil {
				return err
			}
			defer rt.Close()

			all, err := rt.Prefs.List(ctx)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tUSER\tACCOUNT\tROOM\tWINDOW\tSEAT\tCRON\tENABLED")
			for _, p := range all {
				cron := p.TriggerCron
				if cron == "" {
					cron = "default"
				}
				fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%d:00+%dh (±%d/-%d)\t%d\t%s\t%v\n",
					p.ID, p.UserID, p.AccountID, p.RoomID, p.StartHour, p.DurationHours,
					p.StartToleranceHours, p.DurationToleranceHours, p.PreferredSeat, cron, p.Enabled)
			}
			return tw.Flush()
		},
	}
}

func newPrefToggleCmd(use string, enabled bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <pref-id>",
		Short: use + " a preference's daily booking",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid preference id %q", args[0])
			}
			ctx := context.Background()
			rt, err := openRuntime(ctx, false)
			if err != nil {
				return err
			}
			defer rt.Close()

			if err := rt.PrefRepo.SetEnabled(ctx, id, enabled); err != nil {
				return err
			}
			p, err := rt.Prefs.Get(ctx, id)
			if err != nil {
				return err
			}
			return rt.SyncPreference(ctx, p)
		},
	}
}
