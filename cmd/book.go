package cmd

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/example/seat-scheduler/internal/app"
	"github.com/example/seat-scheduler/internal/prefs"
	"github.com/example/seat-scheduler/internal/status"
)

// withPreference opens the runtime and loads the preference named by the
// first argument.
func withPreference(args []string, fn func(context.Context, *app.Runtime, prefs.Preference) error) error {
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

	p, err := rt.Prefs.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("preference %d: %w", id, err)
	}
	return fn(ctx, rt, p)
}

func newBookCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "book <pref-id>",
		Short: "Run the booking workflow for a preference now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPreference(args, func(ctx context.Context, rt *app.Runtime, p prefs.Preference) error {
				code := rt.Engine.AutoBook(ctx, p)
				fmt.Fprintf(os.Stdout, "%s: %s\n", code, code.Describe())
				if code != status.Success && code != status.AlreadyBooked {
					return fmt.Errorf("booking failed: %s", code)
				}
				return nil
			})
		},
	}
}

func newHistoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history <pref-id>",
		Short: "Show the account's recent bookings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPreference(args, func(ctx context.Context, rt *app.Runtime, p prefs.Preference) error {
				recs, err := rt.Engine.Histories(ctx, p)
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tROOM\tSEAT\tWINDOW\tSTATUS")
				for _, r := range recs {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.ID, r.RoomName, r.SeatNum, r.Window(rt.Location), r.StatusLabel())
				}
				return tw.Flush()
			})
		},
	}
}
