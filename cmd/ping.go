package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/example/seat-scheduler/internal/app"
	"github.com/example/seat-scheduler/internal/prefs"
)

func newPingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ping <pref-id>",
		Short: "Log in with a preference's account and report the platform uid",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPreference(args, func(ctx context.Context, rt *app.Runtime, p prefs.Preference) error {
				ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
				defer cancel()
				sess, err := rt.Sessions.EnsureSession(ctx, p)
				if err != nil {
					return err
				}
				fmt.Fprintf(os.Stdout, "%s: ok (uid=%s)\n", p.AccountID, sess.UID())
				return nil
			})
		},
	}
}
