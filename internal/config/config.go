package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/multierr"

	"github.com/DoyleJ11/party-client/internal/poll"
)

const EnvPrefix = "PARTYWATCH"

type Config struct {
	APIBaseURL     string
	PushBaseURL    string // derived from APIBaseURL when empty
	Token          string
	PlayerID       string
	LobbyPoll      time.Duration
	GamePoll       time.Duration
	RequestTimeout time.Duration
	Verbose        bool
}

// Register adds the shared flags to flags.
func Register(flags *pflag.FlagSet, cfg *Config) {
	flags.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	flags.StringVar(&cfg.APIBaseURL, "api-url", "http://localhost:8000", "party API base URL (env: PARTYWATCH_API_URL)")
	flags.StringVar(&cfg.PushBaseURL, "push-url", "", "push channel base URL, defaults to the API URL (env: PARTYWATCH_PUSH_URL)")
	flags.StringVar(&cfg.Token, "token", "", "bearer token; live updates are off without one (env: PARTYWATCH_TOKEN)")
	flags.StringVar(&cfg.PlayerID, "player-id", "", "your player id, used to detect host status (env: PARTYWATCH_PLAYER_ID)")
	flags.DurationVar(&cfg.LobbyPoll, "lobby-poll", poll.LobbyInterval, "lobby status poll interval (env: PARTYWATCH_LOBBY_POLL)")
	flags.DurationVar(&cfg.GamePoll, "game-poll", poll.GameInterval, "in-game status poll interval (env: PARTYWATCH_GAME_POLL)")
	flags.DurationVar(&cfg.RequestTimeout, "request-timeout", 10*time.Second, "per-request timeout (env: PARTYWATCH_REQUEST_TIMEOUT)")
	flags.BoolVarP(&cfg.Verbose, "verbose", "v", false, "development logging (env: PARTYWATCH_VERBOSE)")
}

// FromEnv loads envFile (a missing file is fine) and copies PARTYWATCH_*
// values into every flag the command line did not set.
func FromEnv(flags *pflag.FlagSet, envFile string) error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	var errs error
	flags.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			if err := flags.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name))); err != nil {
				errs = multierr.Append(errs, fmt.Errorf("%s_%s: %w", EnvPrefix, strings.ToUpper(strings.ReplaceAll(f.Name, "-", "_")), err))
			}
		}
	})
	return errs
}

func (c *Config) Validate() error {
	u, err := url.Parse(c.APIBaseURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("invalid --api-url %q: want http(s)://host", c.APIBaseURL)
	}
	if c.PushBaseURL != "" {
		p, err := url.Parse(c.PushBaseURL)
		if err != nil || p.Host == "" {
			return fmt.Errorf("invalid --push-url %q", c.PushBaseURL)
		}
	}
	if c.LobbyPoll <= 0 || c.GamePoll <= 0 {
		return errors.New("poll intervals must be positive")
	}
	if c.RequestTimeout <= 0 {
		return errors.New("--request-timeout must be positive")
	}
	return nil
}

// PushURL is the websocket base: PushBaseURL, or the API URL with a ws scheme.
func (c *Config) PushURL() string {
	if c.PushBaseURL != "" {
		return strings.TrimRight(c.PushBaseURL, "/")
	}
	base := strings.TrimRight(c.APIBaseURL, "/")
	if rest, ok := strings.CutPrefix(base, "https://"); ok {
		return "wss://" + rest
	}
	if rest, ok := strings.CutPrefix(base, "http://"); ok {
		return "ws://" + rest
	}
	return base
}
