package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/vango-dev/arena/pkg/loadbalancing"
)

func lobbyCmd(a *app) *cobra.Command {
	var flags clientFlags

	cmd := &cobra.Command{
		Use:   "lobby",
		Short: "List the rooms in the lobby",
		Long: `Authenticate on the master server, join the lobby and print the
room list.

With --stay the lobby stays open and room list updates and
application statistics are printed as they arrive.

Examples:
  arena lobby
  arena lobby --master=localhost:9090 --app-id=my-game
  arena lobby --stay`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClient(cmd, a, &flags, func(ctx context.Context, c *loadbalancing.Client, w *watcher) error {
				if err := w.await(ctx, flags.timeout, "room list", func(w *watcher) bool { return w.listed }); err != nil {
					return err
				}
				printRooms(cmd, c.AvailableRooms())
				stats := c.AppStats()
				info(cmd.OutOrStdout(), "%d peers, %d games", stats.PeerCount, stats.GameCount)
				return nil
			})
		},
	}

	flags.register(cmd)
	return cmd
}

func printRooms(cmd *cobra.Command, rooms []loadbalancing.RoomInfo) {
	out := cmd.OutOrStdout()
	if len(rooms) == 0 {
		info(out, "No rooms")
		return
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tPLAYERS\tMAX\tOPEN\tPROPERTIES")
	for _, r := range rooms {
		limit := "-"
		if r.MaxPlayers > 0 {
			limit = fmt.Sprint(r.MaxPlayers)
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%t\t%v\n", r.Name, r.PlayerCount, limit, r.IsOpen, r.Properties)
	}
	tw.Flush()
}
