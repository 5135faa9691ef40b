package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/example/seat-scheduler/internal/web"
)

func newServerCmd() *cobra.Command {
	var migrateUp bool

	cmd := &cobra.Command{
		Use:   "server",
		Short: "Run the scheduler and the ops endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			rt, err := openRuntime(ctx, migrateUp)
			if err != nil {
				return err
			}
			defer rt.Close()

			if err := rt.SyncDailyJobs(ctx); err != nil {
				log.Error().Err(err).Msg("daily job sync incomplete")
			}

			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				err := rt.Scheduler.Run(ctx)
				if errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			})
			g.Go(func() error {
				ws := &web.Server{Jobs: rt.Scheduler, Token: rt.Config.OpsToken}
				if ws.Token == "" && !web.Loopback(rt.Config.ListenAddr) {
					log.Warn().Str("addr", rt.Config.ListenAddr).Msg("ops endpoint reachable off-host without OPS_TOKEN")
				}
				return web.Start(ctx, rt.Config.ListenAddr, ws.Routes())
			})
			err = g.Wait()
			log.Info().Msg("server stopped")
			return err
		},
	}

	cmd.Flags().BoolVar(&migrateUp, "migrate", true, "run database migrations on startup")

	cmd.Flags().Lookup("migrate").NoOptDefVal = "true"
	return cmd
}
