package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/vango-dev/arena/pkg/lite"
	"github.com/vango-dev/arena/pkg/loadbalancing"
)

// roomFlags are shared by the commands that enter a room.
type roomFlags struct {
	clientFlags

	eventCode int
	eventData string
	all       bool
}

func (f *roomFlags) register(cmd *cobra.Command) {
	f.clientFlags.register(cmd)
	cmd.Flags().IntVar(&f.eventCode, "event", 0, "Raise this event code once joined")
	cmd.Flags().StringVar(&f.eventData, "data", "", "Event payload")
	cmd.Flags().BoolVar(&f.all, "all", false, "Deliver the event to every actor, the sender included")
}

func createCmd(a *app) *cobra.Command {
	var (
		flags      roomFlags
		maxPlayers int
		hidden     bool
		closed     bool
		props      map[string]string
		listed     []string
	)

	cmd := &cobra.Command{
		Use:   "create [room]",
		Short: "Create a room and join it",
		Long: `Create a room on the master server and join it on the game server.

Without a name the master assigns one.

Examples:
  arena create
  arena create duel --max-players=2
  arena create duel --prop map=forest --lobby-props=map`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var name string
			if len(args) > 0 {
				name = args[0]
			}
			opts := &loadbalancing.RoomOptions{
				MaxPlayers:         maxPlayers,
				Hidden:             hidden,
				Closed:             closed,
				Properties:         stringProps(props),
				PropsListedInLobby: listed,
			}
			return runRoom(cmd, a, &flags, func(c *loadbalancing.Client) error {
				return c.CreateRoom(name, opts)
			})
		},
	}

	flags.register(cmd)
	cmd.Flags().IntVar(&maxPlayers, "max-players", 0, "Maximum number of players (0 for no limit)")
	cmd.Flags().BoolVar(&hidden, "hidden", false, "Hide the room from the lobby")
	cmd.Flags().BoolVar(&closed, "closed", false, "Create the room closed to new players")
	cmd.Flags().StringToStringVar(&props, "prop", nil, "Custom room property key=value")
	cmd.Flags().StringSliceVar(&listed, "lobby-props", nil, "Custom properties listed in the lobby")

	return cmd
}

func joinCmd(a *app) *cobra.Command {
	var flags roomFlags

	cmd := &cobra.Command{
		Use:   "join <room>",
		Short: "Join an existing room",
		Long: `Join a room by name.

Examples:
  arena join duel
  arena join duel --stay --name=ann`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRoom(cmd, a, &flags, func(c *loadbalancing.Client) error {
				return c.JoinRoom(args[0])
			})
		},
	}

	flags.register(cmd)
	return cmd
}

func randomCmd(a *app) *cobra.Command {
	var (
		flags      roomFlags
		maxPlayers int
		props      map[string]string
	)

	cmd := &cobra.Command{
		Use:   "random",
		Short: "Join a random open room",
		Long: `Join a random open, visible room that is not full.

--prop narrows the match to rooms whose lobby-listed properties
carry the given values.

Examples:
  arena random
  arena random --prop map=forest --max-players=2`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRoom(cmd, a, &flags, func(c *loadbalancing.Client) error {
				return c.JoinRandomRoom(stringProps(props), maxPlayers)
			})
		},
	}

	flags.register(cmd)
	cmd.Flags().IntVar(&maxPlayers, "max-players", 0, "Only match rooms with this player limit")
	cmd.Flags().StringToStringVar(&props, "prop", nil, "Expected room property key=value")

	return cmd
}

// runRoom sends a room request from the lobby, waits for the join and
// optionally raises an event.
func runRoom(cmd *cobra.Command, a *app, f *roomFlags, request func(c *loadbalancing.Client) error) error {
	return runClient(cmd, a, &f.clientFlags, func(ctx context.Context, c *loadbalancing.Client, w *watcher) error {
		if err := request(c); err != nil {
			return err
		}
		if err := w.awaitState(ctx, f.timeout, loadbalancing.StateJoined); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		room := c.MyRoom()
		success(out, "Joined room %s as actor %d", room.Name(), c.MyActor().Nr())
		for _, actor := range c.MyRoomActors() {
			suffix := ""
			if actor.IsLocal() {
				suffix = " (you)"
			}
			info(out, "actor %d %s%s", actor.Nr(), actor.Name(), suffix)
		}

		if f.eventCode != 0 {
			var opts []lite.EventOption
			if f.all {
				opts = append(opts, lite.WithReceivers(lite.ReceiverAll))
			}
			if err := c.RaiseEvent(f.eventCode, f.eventData, opts...); err != nil {
				return err
			}
			info(out, "raised event %d", f.eventCode)
		}
		return nil
	})
}

func stringProps(props map[string]string) map[string]any {
	if len(props) == 0 {
		return nil
	}
	out := make(map[string]any, len(props))
	for k, v := range props {
		out[k] = v
	}
	return out
}
