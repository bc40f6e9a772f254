package main

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/DoyleJ11/party-client/internal/engine"
	"github.com/DoyleJ11/party-client/internal/hub"
	"github.com/DoyleJ11/party-client/internal/lobby"
)

type watchOptions struct {
	ready     bool // mark ready once the lobby is up
	autoStart bool // host starts the match when every human is ready
	play      bool // answer every round once the game begins
}

func (o *watchOptions) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&o.ready, "ready", false, "mark this player ready after joining the lobby")
	cmd.Flags().BoolVar(&o.autoStart, "auto-start", false, "as host, start the match once every human is ready")
	cmd.Flags().BoolVar(&o.play, "play", false, "submit placeholder answers for every round once the game starts")
}

func newWatchCmd(a *app) *cobra.Command {
	var opts watchOptions
	cmd := &cobra.Command{
		Use:   "watch SESSION_ID...",
		Short: "Follow one or more party lobbies until they start or end.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.combine(a.watch(cmd.Context(), cmd.OutOrStdout(), args, opts))
		},
	}
	opts.register(cmd)
	return cmd
}

func newJoinCmd(a *app) *cobra.Command {
	var opts watchOptions
	cmd := &cobra.Command{
		Use:   "join PARTY_CODE",
		Short: "Join a party by code and follow its lobby.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.api.JoinSession(cmd.Context(), args[0])
			if err != nil {
				return a.combine(err)
			}
			a.remember(res)
			fmt.Fprintf(cmd.OutOrStdout(), "joined party %s (session %s)\n", res.PartyCode, res.SessionID)
			return a.combine(a.watch(cmd.Context(), cmd.OutOrStdout(), []string{res.SessionID}, opts))
		},
	}
	opts.register(cmd)
	return cmd
}

// watch runs one lobby per session on a shared hub and reports view changes.
func (a *app) watch(ctx context.Context, out io.Writer, sessionIDs []string, opts watchOptions) error {
	h := hub.NewHub(ctx, a.newSession, a.log.Named("hub"))
	g, gctx := errgroup.WithContext(ctx)
	pr := &printer{w: out}

	for _, id := range sessionIDs {
		lb, err := h.Ensure(gctx, id)
		if err != nil {
			_ = h.Shutdown(context.Background())
			_ = g.Wait()
			return fmt.Errorf("open lobby %s: %w", id, err)
		}
		g.Go(func() error {
			if err := a.follow(gctx, lb, pr, opts); err != nil {
				return err
			}
			if !opts.play {
				return nil
			}
			return a.play(gctx, a.session(lb.SessionID()), pr)
		})
	}

	err := g.Wait()
	if serr := h.Shutdown(context.Background()); serr != nil && err == nil {
		err = serr
	}
	return err
}

// follow streams lobby views to the printer until the lobby stops.
func (a *app) follow(ctx context.Context, lb *lobby.Controller, pr *printer, opts watchOptions) error {
	out := make(chan lobby.View, 32)
	select {
	case lb.Inbox() <- lobby.Watch{ID: "cli", Outbox: out}:
	case <-lb.Done():
	case <-ctx.Done():
		return ctx.Err()
	}

	g, gctx := errgroup.WithContext(ctx)
	if opts.ready {
		g.Go(func() error {
			if err := lb.MarkReady(gctx); err != nil {
				a.log.Warn("mark ready", zap.String("session", lb.SessionID()), zap.Error(err))
			}
			return nil
		})
	}

	started := false
	var last lobby.View
	for v := range out {
		pr.view(lb.SessionID(), last, v)
		last = v
		if opts.autoStart && !started && v.IsHost && v.Fill.AllHumansReady && v.Fill.CanStart() {
			started = true
			g.Go(func() error {
				if err := lb.StartMatch(gctx); err != nil {
					a.log.Warn("start match", zap.String("session", lb.SessionID()), zap.Error(err))
				}
				return nil
			})
		}
	}
	// out is also closed when this watcher falls behind; wait for the real stop
	select {
	case <-lb.Done():
	case <-ctx.Done():
	}
	if err := g.Wait(); err != nil {
		return err
	}

	final, err := lb.View(ctx)
	if err != nil {
		return nil
	}
	pr.final(lb.SessionID(), final)
	if s := a.session(lb.SessionID()); s != nil {
		pr.line(lb.SessionID(), "now at %s", s.nav.Current())
	}
	return nil
}

// printer serializes output from concurrent lobbies.
type printer struct {
	mu sync.Mutex
	w  io.Writer
}

func (p *printer) line(sessionID, format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, "[%s] %s\n", shortID(sessionID), fmt.Sprintf(format, args...))
}

func (p *printer) view(sessionID string, prev, v lobby.View) {
	if v.Snapshot != nil && (prev.Snapshot == nil || prev.Fill != v.Fill || prev.Snapshot.Phase != v.Snapshot.Phase) {
		p.line(sessionID, "%s: %d/%d humans ready, %d AI, need %d-%d",
			v.Snapshot.Phase, v.Fill.HumansReady, v.Fill.HumansTotal, v.Fill.AITotal, v.Fill.MinPlayers, v.Fill.MaxPlayers)
	}
	if v.Err != "" && v.Err != prev.Err {
		p.line(sessionID, "error: %s", v.Err)
	}
	if v.PushNotice != prev.PushNotice && v.PushNotice != "" {
		p.line(sessionID, "%s", v.PushNotice)
	}
	if v.LastNotice != prev.LastNotice && v.LastNotice != "" {
		p.line(sessionID, "notice: %s", v.LastNotice)
	}
	if v.LastPing != nil && v.LastPing != prev.LastPing {
		p.line(sessionID, "host %s is calling everyone in: %s", v.LastPing.HostPlayerID, v.LastPing.JoinURL)
	}
}

func (p *printer) final(sessionID string, v lobby.View) {
	switch {
	case v.Terminal != "":
		p.line(sessionID, "lobby closed: %s", v.Terminal)
	case v.Redirect == engine.Results:
		p.line(sessionID, "game already finished")
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
