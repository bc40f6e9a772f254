package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/DoyleJ11/party-client/internal/api"
	"github.com/DoyleJ11/party-client/internal/config"
	"github.com/DoyleJ11/party-client/internal/lobby"
	"github.com/DoyleJ11/party-client/internal/party"
	"github.com/DoyleJ11/party-client/internal/push"
	"github.com/DoyleJ11/party-client/internal/round"
	"github.com/DoyleJ11/party-client/internal/route"
	"github.com/DoyleJ11/party-client/internal/transition"
	"github.com/DoyleJ11/party-client/pkg/types"
)

const releaseVersion = "0.1.0"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "partywatch:", err)
		os.Exit(1)
	}
}

// app is shared by every subcommand once flags are resolved.
type app struct {
	cfg     config.Config
	envFile string
	log     *zap.Logger
	api     *api.Client

	mu       sync.Mutex
	sessions map[string]*session
	joined   map[string]*types.SessionConfig // config from join or create, by session
}

// session is the client-side state for one party.
type session struct {
	id      string
	party   *party.Controller
	rounds  *round.Store
	nav     *route.History
	starter *round.Starter
	coord   *transition.Coordinator
	lobby   *lobby.Controller
}

func newRootCmd() *cobra.Command {
	a := &app{sessions: make(map[string]*session), joined: make(map[string]*types.SessionConfig)}

	cmd := &cobra.Command{
		Use:           "partywatch",
		Short:         "Headless party-mode client: join, watch and play party sessions.",
		Version:       releaseVersion,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.FromEnv(cmd.Flags(), a.envFile); err != nil {
				return err
			}
			if err := a.cfg.Validate(); err != nil {
				return err
			}
			log, err := newLogger(a.cfg.Verbose)
			if err != nil {
				return err
			}
			a.log = log
			a.api = api.New(a.cfg.APIBaseURL,
				api.WithToken(a.cfg.Token),
				api.WithTimeout(a.cfg.RequestTimeout),
				api.WithLogger(log.Named("api")),
			)
			return nil
		},
	}

	fs := cmd.PersistentFlags()
	config.Register(fs, &a.cfg)
	fs.StringVar(&a.envFile, "env-file", ".env", "dotenv file loaded before reading PARTYWATCH_* variables")

	cmd.AddCommand(
		newWatchCmd(a),
		newJoinCmd(a),
		newCreateCmd(a),
		newDevServerCmd(a),
	)
	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetVersionTemplate("partywatch v{{.Version}}\n")
	return cmd
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func (a *app) syncLog() error {
	if a.log == nil {
		return nil
	}
	err := a.log.Sync()
	// stderr cannot be synced when it is a terminal or a pipe
	if errors.Is(err, syscall.EINVAL) || errors.Is(err, syscall.ENOTTY) {
		return nil
	}
	return err
}

// newSession wires the per-party controllers. It is the hub's lobby factory.
func (a *app) newSession(sessionID string) (*lobby.Controller, error) {
	log := a.log.With(zap.String("session", sessionID))
	s := &session{
		id:     sessionID,
		party:  party.NewController(log.Named("party")),
		rounds: round.NewStore(),
		nav:    route.NewHistory(log.Named("nav")),
	}
	s.starter = round.NewStarter(a.api, s.party, s.rounds, s.nav, log.Named("round"))
	s.coord = transition.New(s.party, s.starter, log.Named("transition"))

	ch := push.New(push.Config{
		BaseURL:   a.cfg.PushURL(),
		SessionID: sessionID,
		Token:     a.cfg.Token,
		Context:   push.ContextLobby,
	}, log.Named("push"))

	a.mu.Lock()
	cfg := a.joined[sessionID]
	a.mu.Unlock()

	s.lobby = lobby.New(lobby.Config{
		SessionID: sessionID,
		PlayerID:  a.cfg.PlayerID,
		Interval:  a.cfg.LobbyPoll,
		Party:     cfg,
	}, lobby.Deps{
		API:     a.api,
		Push:    ch,
		Party:   s.party,
		Nav:     s.nav,
		Resumer: s.starter,
		Log:     log.Named("lobby"),
	})
	s.nav.Navigate(route.Lobby(sessionID), false)

	a.mu.Lock()
	a.sessions[sessionID] = s
	a.mu.Unlock()
	return s.lobby, nil
}

// remember keeps the session config a join or create returned for the lobby
// that is about to open.
func (a *app) remember(res types.JoinResult) {
	a.mu.Lock()
	a.joined[res.SessionID] = res.Config
	a.mu.Unlock()
}

func (a *app) session(id string) *session {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sessions[id]
}

// combine folds the log flush into a command's error.
func (a *app) combine(err error) error {
	return multierr.Append(err, a.syncLog())
}
