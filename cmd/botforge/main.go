package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/HerbHall/botforge/internal/config"
	"github.com/HerbHall/botforge/internal/dispatch"
	"github.com/HerbHall/botforge/internal/metrics"
	"github.com/HerbHall/botforge/internal/notify"
	"github.com/HerbHall/botforge/internal/plugins/about"
	"github.com/HerbHall/botforge/internal/plugins/admin"
	"github.com/HerbHall/botforge/internal/plugins/feedback"
	"github.com/HerbHall/botforge/internal/plugins/usage"
	"github.com/HerbHall/botforge/internal/registry"
	"github.com/HerbHall/botforge/internal/runtime"
	"github.com/HerbHall/botforge/internal/sched"
	"github.com/HerbHall/botforge/internal/server"
	"github.com/HerbHall/botforge/internal/storage"
	"github.com/HerbHall/botforge/internal/transport/mqttbridge"
	"github.com/HerbHall/botforge/internal/transport/ws"
	"github.com/HerbHall/botforge/pkg/plugin"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "config/config.json", "path to global configuration file")
	dev := flag.Bool("dev", false, "use development logging")
	flag.Parse()

	logger, err := newLogger(*dev)
	if err != nil {
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("botforge starting")

	global, err := config.Global(*configPath)
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	pluginsDir := pathOr(global, "plugins.dir", "plugins")
	resourcesDir := pathOr(global, "resources.dir", "resources")
	dataDir := pathOr(global, "data.dir", "data")

	m := metrics.New()

	// The notifier is needed by the dispatcher and the transport needs
	// the dispatcher, so the transport is attached to the notifier last.
	notifier := notify.New(global, nil, m, logger.Named("notify"))
	dispatcher := dispatch.New(notifier, m, logger.Named("dispatch"))

	messenger, closeTransport, err := buildTransport(global, dispatcher, logger)
	if err != nil {
		logger.Fatal("failed to start transport", zap.Error(err))
	}
	defer closeTransport()
	notifier.SetMessenger(messenger)

	scheduler := sched.New(notifier, m, logger.Named("sched"))
	store := storage.New(pluginsDir, dataDir, resourcesDir, global, notifier, m, logger.Named("storage"))

	svc := &runtime.Services{
		Global:       global,
		Storage:      store,
		Dispatcher:   dispatcher,
		Scheduler:    scheduler,
		Notifier:     notifier,
		Messenger:    messenger,
		Metrics:      m,
		Logger:       logger,
		PluginsDir:   pluginsDir,
		ResourcesDir: resourcesDir,
	}

	reg := registry.New(svc, logger.Named("registry"))

	addr := fmt.Sprintf("0.0.0.0:%d", portOr(global, 8080))
	srv, err := server.New(addr, reg, m,
		global.GetString("web", "password"),
		global.GetString("web", "jwt_secret"),
		logger.Named("server"),
	)
	if err != nil {
		logger.Fatal("failed to create server", zap.Error(err))
	}
	svc.Web = srv

	// Built-in plugins load in a fixed order; each further plugin can
	// rely on the ones before it being active.
	builtins := []plugin.Plugin{
		about.New(),
		feedback.New(),
		usage.New(),
		admin.New(),
	}
	if err := reg.Load(context.Background(), builtins...); err != nil {
		logger.Fatal("failed to load plugins", zap.Error(err))
	}

	if global.GetBool("web", "use_web") {
		go func() {
			if err := srv.Start(); err != nil {
				logger.Fatal("server error", zap.Error(err))
			}
		}()
		logger.Info("botforge ready", zap.String("addr", addr))
	} else {
		logger.Info("botforge ready, web interface disabled")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh

	logger.Info("received shutdown signal", zap.String("signal", sig.String()))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	reg.Shutdown()
	scheduler.Stop()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}

	logger.Info("botforge stopped")
}

func newLogger(dev bool) (*zap.Logger, error) {
	if dev {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// buildTransport constructs the transport selected by transport.kind and
// returns it together with a shutdown function. The websocket transport
// listens on its own address so it works with the web interface disabled.
func buildTransport(global *config.Scope, sink *dispatch.Dispatcher, logger *zap.Logger) (plugin.Messenger, func(), error) {
	kind := global.GetString("transport", "kind")
	switch kind {
	case "", "websocket":
		gw := ws.New(sink, logger.Named("ws"))

		addr := global.GetString("transport", "addr")
		if addr == "" {
			addr = "0.0.0.0:8443"
		}
		httpServer := &http.Server{
			Addr:        addr,
			Handler:     gw,
			ReadTimeout: 15 * time.Second,
			IdleTimeout: 60 * time.Second,
		}
		go func() {
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Fatal("transport listener error", zap.Error(err))
			}
		}()
		logger.Info("websocket transport listening", zap.String("addr", addr))

		stop := func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = httpServer.Shutdown(ctx)
		}
		return gw, stop, nil

	case "mqtt":
		bridge := mqttbridge.New(mqttbridge.Options{
			Broker:   global.GetString("transport", "mqtt", "broker"),
			Inbound:  global.GetString("transport", "mqtt", "inbound"),
			Outbound: global.GetString("transport", "mqtt", "outbound"),
		}, sink, logger.Named("mqtt"))
		if err := bridge.Connect(); err != nil {
			return nil, nil, err
		}
		return bridge, bridge.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown transport kind %q", kind)
	}
}

func pathOr(global *config.Scope, key, fallback string) string {
	if v := global.GetString(key); v != "" {
		return v
	}
	return fallback
}

func portOr(global *config.Scope, fallback int) int {
	if p := global.GetInt("web", "port"); p != 0 {
		return p
	}
	return fallback
}
