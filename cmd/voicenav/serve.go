package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/roelfdiedericks/voicenav/internal/bus"
	"github.com/roelfdiedericks/voicenav/internal/config"
	vhttp "github.com/roelfdiedericks/voicenav/internal/http"
	"github.com/roelfdiedericks/voicenav/internal/metrics"
	"github.com/roelfdiedericks/voicenav/internal/realtime"
	"github.com/roelfdiedericks/voicenav/internal/webhook"

	. "github.com/roelfdiedericks/voicenav/internal/logging"
)

type ServeCmd struct {
	Listen string `help:"Listen address (overrides server.listen)"`
	Watch  bool   `help:"Reload logging and webhook settings when the config file changes"`
	APIKey string `name:"api-key" help:"Webhook and realtime API key (overrides server.apiKey)" env:"VOICENAV_API_KEY"`
}

func (c *ServeCmd) Run(g *Globals) error {
	cfg, cfgPath, err := g.load()
	if err != nil {
		return err
	}
	if c.Listen != "" {
		cfg.Server.Listen = c.Listen
	}
	if c.APIKey != "" {
		cfg.Server.APIKey = c.APIKey
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.GetInstance()
	b := bus.New("server")
	defer b.Close()

	hub := realtime.NewHub(b)
	hub.SetSendQueue(cfg.Transport.SendQueue)
	hub.SetPingInterval(cfg.Transport.PingInterval.D())
	defer hub.Close()

	correlator := webhook.NewCorrelator(b, correlatorConfig(cfg))
	correlator.SetMetrics(m)

	if c.Watch && cfgPath == "" {
		L_warn("serve: --watch ignored, running on built-in defaults")
	} else if c.Watch {
		w, err := config.NewWatcher(cfgPath, 0, func(next *config.Config) {
			SetLevel(g.logLevel(next))
			correlator.Reconfigure(correlatorConfig(next))
		})
		if err != nil {
			return err
		}
		w.Start()
		defer w.Stop()
	}

	srv, err := vhttp.NewServer(&vhttp.ServerConfig{
		Listen:         cfg.Server.Listen,
		APIKey:         cfg.Server.APIKey,
		WebhookPath:    cfg.Server.WebhookPath,
		RealtimePath:   cfg.Server.RealtimePath,
		Version:        version,
		TrustedProxies: cfg.Server.TrustedProxies,
	}, vhttp.Deps{
		Webhook:  webhook.NewHandler(correlator),
		Realtime: hub,
		Topics:   b.Topics,
		Peers:    hub.Peers,
		Metrics:  m,
	})
	if err != nil {
		return err
	}
	if err := srv.Start(); err != nil {
		return err
	}
	if cfg.Server.APIKey == "" {
		L_warn("serve: no API key configured, webhook and realtime are open")
	}
	L_info("serve: ready",
		"addr", srv.Addr(),
		"webhook", cfg.Server.WebhookPath,
		"realtime", cfg.Server.RealtimePath,
		"version", version,
	)

	<-ctx.Done()
	L_info("serve: shutting down")
	hub.Close()
	return srv.Stop()
}

func correlatorConfig(cfg *config.Config) webhook.Config {
	return webhook.Config{
		ResponseTimeout:    cfg.Webhook.ResponseTimeout.D(),
		MaxConcurrentCalls: cfg.Webhook.MaxConcurrentCalls,
		SkipGlobal:         cfg.Webhook.SkipGlobal,
	}
}
