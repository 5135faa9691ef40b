package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newSeatMapCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seatmap",
		Short: "Manage the seat number to seat id map",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "refresh",
		Short: "Rebuild the seat map from live searches",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			rt, err := openRuntime(ctx, false)
			if err != nil {
				return err
			}
			defer rt.Close()

			if err := rt.Refresher.Refresh(ctx); err != nil {
				return err
			}
			for _, room := range rt.Catalog.RoomIDs() {
				fmt.Fprintf(os.Stdout, "room %d: %d seats\n", room, len(rt.SeatMap.Room(room)))
			}
			return nil
		},
	})
	return cmd
}
