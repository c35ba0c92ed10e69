package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/vango-dev/arena/internal/errors"
	"github.com/vango-dev/arena/pkg/lite"
	"github.com/vango-dev/arena/pkg/loadbalancing"
	"github.com/vango-dev/arena/pkg/peer"
)

// clientFlags are shared by the commands that run a client.
type clientFlags struct {
	master  string
	appID   string
	name    string
	userID  string
	timeout time.Duration
	stay    bool
}

func (f *clientFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.master, "master", "m", "", "Master server address (default from config)")
	cmd.Flags().StringVar(&f.appID, "app-id", "", "Application id (default from config)")
	cmd.Flags().StringVarP(&f.name, "name", "n", "", "Player name")
	cmd.Flags().StringVar(&f.userID, "user-id", "", "User id (default: random)")
	cmd.Flags().DurationVar(&f.timeout, "timeout", 10*time.Second, "Time allowed for each workflow step")
	cmd.Flags().BoolVar(&f.stay, "stay", false, "Stay connected and print activity until interrupted")
}

// watcher mirrors the client state for the command goroutine.
type watcher struct {
	out io.Writer

	mu     sync.Mutex
	state  loadbalancing.State
	err    error
	listed bool
	notify chan struct{}
}

func newWatcher(out io.Writer) *watcher {
	return &watcher{out: out, notify: make(chan struct{}, 1)}
}

func (w *watcher) update(fn func()) {
	w.mu.Lock()
	fn()
	w.mu.Unlock()
	select {
	case w.notify <- struct{}{}:
	default:
	}
}

// await blocks until cond holds, an error is reported, ctx is done or the
// timeout runs out.
func (w *watcher) await(ctx context.Context, timeout time.Duration, step string, cond func(w *watcher) bool) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		w.mu.Lock()
		ok := cond(w)
		err := w.err
		w.err = nil
		w.mu.Unlock()

		// The client reports the cause of every move into the error state.
		switch {
		case ok:
			return nil
		case err != nil:
			return err
		}

		select {
		case <-w.notify:
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return errors.New("A050").WithDetail("Timed out waiting for " + step)
		}
	}
}

func (w *watcher) awaitState(ctx context.Context, timeout time.Duration, want loadbalancing.State) error {
	return w.await(ctx, timeout, want.String(), func(w *watcher) bool { return w.state == want })
}

func (w *watcher) callbacks(verbose bool) loadbalancing.Callbacks {
	cb := loadbalancing.Callbacks{
		OnStateChange: func(from, to loadbalancing.State) {
			w.update(func() { w.state = to })
		},
		OnError: func(err error) {
			w.update(func() { w.err = err })
		},
		OnRoomList: func(rooms []loadbalancing.RoomInfo) {
			w.update(func() { w.listed = true })
		},
	}
	if !verbose {
		return cb
	}

	cb.OnError = func(err error) {
		warn(w.out, "%s", errors.Classify(err).FormatCompact())
		w.update(func() { w.err = err })
	}
	cb.OnRoomListUpdate = func(rooms, updated, added, removed []loadbalancing.RoomInfo) {
		for _, r := range added {
			info(w.out, "+ %s", formatRoom(r))
		}
		for _, r := range updated {
			info(w.out, "~ %s", formatRoom(r))
		}
		for _, r := range removed {
			info(w.out, "- %s", r.Name)
		}
	}
	cb.OnAppStats = func(stats loadbalancing.AppStats) {
		info(w.out, "peers=%d games=%d master=%d", stats.PeerCount, stats.GameCount, stats.MasterPeerCount)
	}
	cb.OnActorJoin = func(a *lite.Actor) {
		info(w.out, "actor %d (%s) joined", a.Nr(), a.Name())
	}
	cb.OnActorLeave = func(a *lite.Actor) {
		info(w.out, "actor %d (%s) left", a.Nr(), a.Name())
	}
	cb.OnActorPropertiesChange = func(a *lite.Actor) {
		info(w.out, "actor %d properties: %v", a.Nr(), a.Properties())
	}
	cb.OnRoomPropertiesChange = func(room *loadbalancing.Room) {
		info(w.out, "room properties: %v", room.Info().Properties)
	}
	cb.OnEvent = func(code int, sender int, data any) {
		info(w.out, "event %d from actor %d: %v", code, sender, data)
	}
	cb.OnLeaveRoom = func() {
		info(w.out, "left room")
	}
	return cb
}

// runClient connects a client, waits for the lobby and runs action.
func runClient(cmd *cobra.Command, a *app, f *clientFlags, action func(ctx context.Context, c *loadbalancing.Client, w *watcher) error) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	cfg := a.cfg
	if f.master != "" {
		cfg.Client.MasterAddress = f.master
	}
	if f.appID != "" {
		cfg.Client.AppID = f.appID
	}
	if f.name != "" {
		cfg.Client.PlayerName = f.name
	}
	if f.userID != "" {
		cfg.Client.UserID = f.userID
	}
	cfg.EnsureUserID()

	reg := newMetricsRegistry()
	lbConfig := cfg.ClientConfig()
	lbConfig.Logger = a.logger
	lbConfig.Metrics = peer.NewMetrics(peer.WithRegistry(reg))

	client := loadbalancing.New(lbConfig)
	defer client.Close()

	w := newWatcher(cmd.OutOrStdout())
	client.SetCallbacks(w.callbacks(f.stay))

	g, gctx := errgroup.WithContext(ctx)
	serveMetrics(gctx, g, cfg.Metrics.Addr, reg, a.logger)
	g.Go(func() error {
		defer cancel()
		if err := client.Connect(gctx); err != nil {
			return err
		}
		if err := w.awaitState(gctx, f.timeout, loadbalancing.StateJoinedLobby); err != nil {
			return err
		}
		a.logger.Debug("joined lobby", "user", client.UserID())
		if err := action(gctx, client, w); err != nil {
			return err
		}
		if f.stay {
			<-gctx.Done()
		}
		return client.Disconnect()
	})
	return g.Wait()
}

// formatRoom renders a lobby entry on one line.
func formatRoom(r loadbalancing.RoomInfo) string {
	limit := "-"
	if r.MaxPlayers > 0 {
		limit = fmt.Sprint(r.MaxPlayers)
	}
	state := "open"
	if !r.IsOpen {
		state = "closed"
	}
	return fmt.Sprintf("%s players=%d/%s %s %v", r.Name, r.PlayerCount, limit, state, r.Properties)
}
