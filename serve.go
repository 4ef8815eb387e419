package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"github.com/d3vgru/easy-peasy-bot/chat"
	"github.com/d3vgru/easy-peasy-bot/config"
	"github.com/d3vgru/easy-peasy-bot/db"
	"github.com/d3vgru/easy-peasy-bot/ledger"
	"github.com/d3vgru/easy-peasy-bot/reconnect"
	"github.com/d3vgru/easy-peasy-bot/server"
	"github.com/d3vgru/easy-peasy-bot/slackapi"
	"github.com/d3vgru/easy-peasy-bot/telemetry"
	"github.com/d3vgru/easy-peasy-bot/twitchapi"
)

// chatTransport is what serve needs from a chat adapter.
type chatTransport interface {
	chat.Transport
	reconnect.Connector
	SetHandler(chat.Handler)
	OnOpen(func())
}

func newServeCmd() *cobra.Command {
	var slackDebug bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the chat bot and the HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), slackDebug)
		},
	}
	cmd.Flags().BoolVar(&slackDebug, "slack-debug", false, "log raw Socket Mode traffic")
	return cmd
}

func runServe(parent context.Context, slackDebug bool) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	telemetry.Init()
	shutdown, err := telemetry.InitTracing(serviceName, version, telemetry.TransportAttr(cfg.Transport))
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer shutdown()

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	transport, err := newTransport(cfg, slackDebug)
	if err != nil {
		return err
	}
	return serve(ctx, cfg, transport)
}

// serve runs the bot over transport until ctx ends. The datastore being down or
// rejecting the secret is not fatal: recaps are still announced and reposted.
func serve(ctx context.Context, cfg *config.Config, transport chatTransport) error {
	led, ready, err := openLedger(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := led.DB().Close(); err != nil {
			slog.Error("failed to close database", slog.Any("err", err))
		}
	}()

	bot := chat.NewBot(transport, led, chat.Options{
		Canonical:     cfg.CanonicalChannel,
		Aliases:       cfg.Aliases,
		RepoURL:       cfg.TopicRepoURL,
		DataURL:       cfg.TopicDataURL,
		Greeting:      cfg.Greeting,
		NotFoundReply: cfg.ReplyNotFound,
	})
	transport.SetHandler(bot)
	sup := reconnect.New(transport)
	transport.OnOpen(sup.Opened)

	slog.Info("starting recap bot",
		slog.String("transport", cfg.Transport),
		slog.String("canonical", cfg.CanonicalChannel),
		slog.Int("aliases", len(cfg.Aliases)),
		slog.String("http_addr", cfg.HTTPAddr),
		slog.Bool("datastore_ready", ready),
		slog.Bool("tracing", telemetry.IsTracingEnabled()))

	g, gctx := errgroup.WithContext(ctx)
	if !ready {
		g.Go(func() error {
			awaitDatastore(gctx, led)
			return nil
		})
	}
	g.Go(func() error { return sup.Run(gctx) })
	g.Go(func() error {
		return server.Start(gctx, server.Deps{Ledger: led, Connected: sup.Connected}, cfg.HTTPAddr)
	})
	err = g.Wait()
	slog.Info("shutting down")
	return err
}

// openLedger connects with retry and brings the schema up to date. Only a
// malformed DSN or a cancelled ctx is an error. A store that stays unreachable
// still yields a ledger over a lazy handle, with ready false; a rejected secret
// is latched in the ledger.
func openLedger(ctx context.Context, cfg *config.Config) (led *ledger.Ledger, ready bool, err error) {
	database, dialect, err := db.ConnectWithRetry(ctx, cfg.DBDsn, cfg.DatastoreSecret, cfg.DBConnectWait)
	if err == nil {
		led = ledger.New(database, dialect)
		if err = db.Prepare(ctx, database, dialect); err == nil {
			if aerr := led.Authenticate(ctx); aerr != nil {
				slog.Warn("datastore authentication check failed", slog.Any("err", aerr), slog.String("component", "ledger"))
			}
			return led, true, nil
		}
	} else {
		if ctx.Err() != nil {
			return nil, false, ctx.Err()
		}
		// ConnectWithRetry closes its handle on failure
		lazy, lazyDialect, cerr := db.Connect(cfg.DBDsn, cfg.DatastoreSecret)
		if cerr != nil {
			return nil, false, fmt.Errorf("open datastore: %w", cerr)
		}
		led = ledger.New(lazy, lazyDialect)
	}

	if db.IsAuthError(err) {
		_ = led.Reject(err)
		return led, false, nil
	}
	slog.Error("datastore unavailable; recaps are not recorded until it answers",
		slog.Any("err", err), slog.String("component", "ledger"))
	return led, false, nil
}

// awaitDatastore prepares the schema once the store answers.
func awaitDatastore(ctx context.Context, led *ledger.Ledger) {
	if led.AuthFailed() != nil {
		return
	}
	err := db.PrepareWithRetry(ctx, led.DB(), led.Dialect())
	switch {
	case err == nil:
		slog.Info("datastore available; recording recaps", slog.String("component", "ledger"))
	case db.IsAuthError(err):
		_ = led.Reject(err)
	}
}

func newTransport(cfg *config.Config, slackDebug bool) (chatTransport, error) {
	switch cfg.Transport {
	case config.TransportSlack:
		return slackapi.New(cfg.SlackBotToken, cfg.SlackAppToken, slackDebug)
	case config.TransportTwitch:
		return twitchapi.NewIRCTransport(cfg.TwitchBotUsername, cfg.TwitchOAuthToken, cfg.TwitchChannels, newHelix(cfg)), nil
	default:
		return nil, fmt.Errorf("unknown chat transport %q", cfg.Transport)
	}
}

// newHelix returns nil without a client id; the IRC transport then keeps
// names from chat history and cannot set titles.
func newHelix(cfg *config.Config) *twitchapi.HelixClient {
	if cfg.TwitchClientID == "" {
		return nil
	}
	hc := &http.Client{
		Timeout:   10 * time.Second,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
	return &twitchapi.HelixClient{
		AppTokenSource: twitchapi.NewAppTokenSource(cfg.TwitchClientID, cfg.TwitchClientSecret, hc),
		ClientID:       cfg.TwitchClientID,
		UserToken:      cfg.TwitchOAuthToken,
		HTTPClient:     hc,
	}
}
