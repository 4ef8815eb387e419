// Command recapbot watches chat for episode recaps ("S01E05: synopsis"),
// records each one in the episode ledger, announces the latest code in the
// canonical channel's topic, reposts recaps there under the poster's alias,
// and answers "replay" and "season" mentions from the ledger.
//
// Subcommands:
//   - serve (default): run the chat bot and the HTTP health/data server.
//   - migrate [up|down|version]: manage the datastore schema.
//   - replay <code>, season <n>: query the ledger from a terminal.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

const serviceName = "recapbot"

var version = "dev"

func newRootCmd() *cobra.Command {
	var envFile string
	root := &cobra.Command{
		Use:   serviceName,
		Short: "Episode recap bot for Slack and Twitch chat",
		Long: `recapbot records episode recaps posted in chat, keeps the canonical
channel's topic pointing at the latest one, and answers replay/season queries.

Examples:
  recapbot                    # same as "recapbot serve"
  recapbot migrate up         # apply schema migrations
  recapbot replay S01E05      # print the best recap for a code
  recapbot season 1           # print a season in episode order`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			// .env is a local convenience; production relies on the real environment
			_ = godotenv.Load(envFile)
			setupLogging()
		},
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading configuration")

	serve := newServeCmd()
	root.RunE = serve.RunE
	root.Flags().AddFlagSet(serve.Flags())
	root.AddCommand(serve, newMigrateCmd(), newReplayCmd(), newSeasonCmd())
	return root
}

// parseLevel maps LOG_LEVEL to a slog level. ok is false for unknown values.
func parseLevel(v string) (lvl slog.Level, ok bool) {
	switch strings.ToLower(v) {
	case "debug":
		return slog.LevelDebug, true
	case "warn":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	case "info", "":
		return slog.LevelInfo, true
	default:
		return slog.LevelInfo, false
	}
}

// setupLogging installs the default logger from LOG_LEVEL and LOG_FORMAT
// (text|json). Defaults: info, text.
func setupLogging() {
	lvl, ok := parseLevel(os.Getenv("LOG_LEVEL"))
	format := strings.ToLower(os.Getenv("LOG_FORMAT"))
	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	} else {
		format = "text"
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
	if !ok {
		slog.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	slog.Debug("logger initialized", slog.String("level", lvl.String()), slog.String("format", format))
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error: "+err.Error())
		os.Exit(1)
	}
}
