// Package main runs the subscription watcher: it polls the submission feed,
// checks every new submission against the stored subscriptions and delivers
// matches to Gotify and WebSocket clients.
package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/sirupsen/logrus"

	"subscription_watcher/auth"
	"subscription_watcher/config"
	"subscription_watcher/events"
	"subscription_watcher/feed"
	"subscription_watcher/handlers"
	"subscription_watcher/monitor"
	"subscription_watcher/notifiers"
	"subscription_watcher/notifiers/gotify"
	"subscription_watcher/server"
	"subscription_watcher/store"
	"subscription_watcher/subscriptions"
	"subscription_watcher/websocket"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "config.json", "Path to the configuration file")
	testGotify := flag.Bool("test-gotify", false, "Send a test notification to Gotify and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}
	setupLogging(cfg.GetLogLevel())

	if *testGotify {
		n := gotify.New(cfg.Gotify)
		if n == nil {
			logrus.Fatal("Gotify is not configured")
		}
		if err := n.SendTest(); err != nil {
			logrus.WithError(err).Fatal("Failed to send test notification")
		}
		logrus.Info("Test notification sent")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logrus.WithError(err).Fatal("Watcher stopped with an error")
	}
}

// setupLogging applies the configured level, falling back to info.
func setupLogging(level string) {
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		logrus.WithField("level", level).Warn("Unknown log level, using info")
		lvl = logrus.InfoLevel
	}
	logrus.SetLevel(lvl)
}

// run wires the watcher together and blocks until ctx is cancelled or the
// HTTP server fails.
func run(ctx context.Context, cfg *config.Config) error {
	st, err := store.Open(ctx, cfg.GetDatabasePath())
	if err != nil {
		return err
	}
	defer st.Close()

	registry, err := restoreRegistry(ctx, st)
	if err != nil {
		return err
	}
	seed(ctx, registry, cfg)

	cursor, err := st.LoadCursor(ctx)
	if err != nil {
		return err
	}

	bus := events.NewBus(true)

	manager := notifiers.NewManager(bus)
	if n := gotify.New(cfg.Gotify); n != nil {
		manager.Register(n, cfg.Gotify.Destinations...)
		logrus.WithField("notifier", n.Name()).WithField("destinations", cfg.Gotify.Destinations).Info("Notifier registered")
	}
	defer manager.Close()

	hub := websocket.NewHub(bus)
	hub.Start()
	defer hub.Stop()

	mon := monitor.New(feed.NewClient(&cfg.Feed), registry, bus,
		monitor.WithPollInterval(cfg.Feed.GetPollInterval()),
		monitor.WithLastSeen(cursor),
		monitor.WithCheckpointer(st),
	)
	mon.Start()
	defer mon.Stop()

	docs, err := getDocsFS()
	if err != nil {
		return err
	}

	authenticator, err := auth.New(ctx, cfg)
	if err != nil {
		return err
	}

	srv := server.New(&server.Config{
		Addr:         cfg.GetListen(),
		API:          handlers.New(registry, docs, mon),
		WebSocketHub: hub,
		Auth:         authenticator,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	if _, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		logrus.WithError(err).Debug("Failed to notify systemd")
	}

	select {
	case <-ctx.Done():
		logrus.Info("Shutting down")
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// restoreRegistry builds a registry backed by st and loads the saved state.
// Entries that no longer compile are logged and skipped.
func restoreRegistry(ctx context.Context, st *store.Store) (*subscriptions.Registry, error) {
	snap, err := st.Load(ctx)
	if err != nil {
		return nil, err
	}

	registry := subscriptions.NewRegistry(subscriptions.WithStore(st))
	for _, err := range registry.Restore(snap) {
		logrus.WithError(err).Warn("Skipping saved entry")
	}
	return registry, nil
}

// seed adds the subscriptions and blocklists named in the configuration.
// Entries that already exist are left as they are, so runtime changes such
// as pausing survive a restart.
func seed(ctx context.Context, registry *subscriptions.Registry, cfg *config.Config) {
	for _, sc := range cfg.Subscriptions {
		add := registry.Add
		if sc.Paused {
			add = registry.AddPaused
		}
		if _, err := add(ctx, sc.Destination, sc.Query); err != nil {
			if !errors.Is(err, subscriptions.ErrDuplicate) {
				logrus.WithError(err).WithField("destination", sc.Destination).Warn("Failed to seed subscription")
			}
			continue
		}
		logrus.WithField("destination", sc.Destination).WithField("query", sc.Query).WithField("paused", sc.Paused).Info("Seeded subscription")
	}

	for dest, queries := range cfg.Blocklists {
		for _, text := range queries {
			if err := registry.AddBlock(ctx, dest, text); err != nil && !errors.Is(err, subscriptions.ErrDuplicate) {
				logrus.WithError(err).WithField("destination", dest).Warn("Failed to seed blocklist entry")
			}
		}
	}
}
