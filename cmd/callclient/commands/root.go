package commands

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/dkeye/voicecall/internal/config"
)

var (
	cfg *config.ClientConfig
	v   *viper.Viper
)

// RootCmd is the root command of the call client.
var RootCmd = &cobra.Command{
	Use:               "callclient",
	Short:             "Headless voice/video call client",
	PersistentPreRunE: loadConfig,
}

// flagKeys maps flag names to config keys.
var flagKeys = map[string]string{
	"server":          "server_url",
	"user":            "user_id",
	"name":            "display_name",
	"avatar":          "avatar_ref",
	"log":             "log_level",
	"sources":         "sources",
	"ice":             "ice_servers",
	"ring-timeout":    "ring_timeout",
	"connect-timeout": "connect_timeout",
	"release-timeout": "release_timeout",
	"reconnect-max":   "reconnect_max_elapsed",
}

func init() {
	f := RootCmd.PersistentFlags()
	f.String("config", "", "Client config file (yaml)")
	f.String("server", "ws://localhost:8080/api/ws/signal", "Signaling websocket URL")
	f.String("user", "", "Local user id")
	f.String("name", "", "Display name shown to callees")
	f.String("avatar", "", "Avatar reference shown to callees")
	f.String("log", "info", "debug, info, warn, error")
	f.StringSlice("sources", []string{"microphone"}, "Capture sources: microphone, camera, display")
	f.StringSlice("ice", []string{"stun:stun.l.google.com:19302"}, "ICE server URLs")
	f.Duration("ring-timeout", 30*time.Second, "Give up ringing after")
	f.Duration("connect-timeout", 20*time.Second, "Give up connecting after")
	f.Duration("release-timeout", 2*time.Second, "Bound on releasing devices at hang up")
	f.Duration("reconnect-max", time.Minute, "Give up redialing the server after")
	f.Bool("devices", false, "Capture from real devices (needs the mediadevices build tag)")

	RootCmd.AddCommand(callCmd, listenCmd)
}

func loadConfig(cmd *cobra.Command, _ []string) error {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	file, _ := cmd.Flags().GetString("config")
	var err error
	v, err = config.NewClientViper(file)
	if err != nil {
		return err
	}
	var bindErr error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if key, ok := flagKeys[f.Name]; ok && bindErr == nil {
			bindErr = v.BindPFlag(key, f)
		}
	})
	if bindErr != nil {
		return bindErr
	}

	cfg, err = config.LoadClient(v)
	if err != nil {
		return err
	}
	if err := config.ApplyLogLevel(cfg.LogLevel); err != nil {
		return err
	}

	log.Debug().Str("module", "callclient").
		Str("user", cfg.UserID).
		Str("server", cfg.ServerURL).
		Strs("sources", cfg.Sources).
		Msg("RUN")
	return nil
}
