package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/example/seat-scheduler/internal/app"
)

func newJobCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "job",
		Short: "Inspect and control scheduled jobs",
	}
	cmd.AddCommand(newJobListCmd())
	cmd.AddCommand(newJobActionCmd("pause", "Pause a job", func(ctx context.Context, rt *app.Runtime, id string) error {
		return rt.Scheduler.Pause(ctx, id)
	}))
	cmd.AddCommand(newJobActionCmd("resume", "Resume a paused job", func(ctx context.Context, rt *app.Runtime, id string) error {
		return rt.Scheduler.Resume(ctx, id)
	}))
	cmd.AddCommand(newJobActionCmd("remove", "Remove a job", func(ctx context.Context, rt *app.Runtime, id string) error {
		return rt.Scheduler.Remove(ctx, id)
	}))
	return cmd
}

func newJobListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List jobs by next run time",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			rt, err := openRuntime(ctx, false)
			if err != nil {
				return err
			}
			defer rt.Close()

			all, err := rt.Scheduler.List(ctx)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tKIND\tTRIGGER\tNEXT RUN\tPAUSED")
			for _, t := range all {
				trigger := t.Cron
				if trigger == "" {
					trigger = "once"
				}
				next := "-"
				if !t.RunAt.IsZero() {
					next = t.RunAt.In(rt.Location).Format(time.DateTime)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%v\n", t.ID, t.Kind, trigger, next, t.Paused)
			}
			return tw.Flush()
		},
	}
}

func newJobActionCmd(use, short string, fn func(context.Context, *app.Runtime, string) error) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <job-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			rt, err := openRuntime(ctx, false)
			if err != nil {
				return err
			}
			defer rt.Close()

			if err := fn(ctx, rt, args[0]); err != nil {
				return fmt.Errorf("%s %s: %w", use, args[0], err)
			}
			fmt.Fprintf(os.Stdout, "%s: %s\n", use, args[0])
			return nil
		},
	}
}
