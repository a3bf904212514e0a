package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/roelfdiedericks/voicenav/internal/actions"
	"github.com/roelfdiedericks/voicenav/internal/browser"
	"github.com/roelfdiedericks/voicenav/internal/config"
	"github.com/roelfdiedericks/voicenav/internal/metrics"
	"github.com/roelfdiedericks/voicenav/internal/pagecontext"
	"github.com/roelfdiedericks/voicenav/internal/paths"
	"github.com/roelfdiedericks/voicenav/internal/realtime"
	"github.com/roelfdiedericks/voicenav/internal/runtime"
	"github.com/roelfdiedericks/voicenav/internal/session"

	. "github.com/roelfdiedericks/voicenav/internal/logging"
)

const (
	minRedial = time.Second
	maxRedial = 30 * time.Second
)

type AgentCmd struct {
	URL     string `required:"" help:"Page to open"`
	Session string `help:"Session id to answer to (default: mint one)"`
	Hub     string `help:"Realtime hub URL (overrides transport.hubUrl)"`
	Headful bool   `help:"Show the browser window"`
	CDP     string `name:"cdp" help:"Attach to a running Chrome at this DevTools endpoint"`
}

func (c *AgentCmd) Run(g *Globals) error {
	cfg, _, err := g.load()
	if err != nil {
		return err
	}
	if c.Session != "" && !session.Valid(c.Session) {
		return fmt.Errorf("invalid session id %q", c.Session)
	}
	if c.Hub != "" {
		cfg.Transport.HubURL = c.Hub
	}
	if c.Headful {
		cfg.Browser.Headful = true
	}
	if c.CDP != "" {
		cfg.Browser.CDPEndpoint = c.CDP
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bc, err := browserConfig(cfg)
	if err != nil {
		return err
	}
	mgr, err := browser.NewManager(bc)
	if err != nil {
		return err
	}
	defer mgr.Close()

	page, err := mgr.Open(ctx, c.URL)
	if err != nil {
		return fmt.Errorf("open %s: %w", c.URL, err)
	}
	defer page.Close()

	header := http.Header{}
	if cfg.Server.APIKey != "" {
		header.Set("X-Vapi-Secret", cfg.Server.APIKey)
	}
	hubURL, err := realtime.WebSocketURL(cfg.Transport.HubURL, cfg.Server.RealtimePath)
	if err != nil {
		return fmt.Errorf("hub url: %w", err)
	}
	client := realtime.NewClient(hubURL, header)
	client.SetDialTimeout(cfg.Transport.DialTimeout.D())
	defer client.Close()

	identity := session.NewIdentity(c.Session)
	opts := []actions.Option{
		actions.WithSettleDelay(cfg.Runtime.SettleDelay.D()),
		actions.WithExtractor(&pagecontext.Extractor{Article: true}),
		actions.WithNotifier(runtime.NewStatusNotifier(client, identity.ID())),
	}
	if cfg.Browser.ClientRouting {
		opts = append(opts, actions.WithNavigator(page))
	}
	exec := actions.NewExecutor(page, opts...)

	rt := runtime.New(client, exec, identity, runtime.Config{
		Concurrent: cfg.Runtime.Concurrent,
		QueueSize:  cfg.Runtime.QueueSize,
		DedupeSize: cfg.Runtime.DedupeSize,
	})
	rt.SetMetrics(metrics.GetInstance())

	// subscribe first so the first Connect carries the session topics
	if err := rt.Start(ctx); err != nil {
		return err
	}
	defer rt.Stop()

	if err := client.Connect(ctx); err != nil {
		return err
	}
	L_info("agent: ready", "session", identity.ID(), "url", page.URL(), "hub", hubURL)
	fmt.Println(identity.ID())

	keepConnected(ctx, client)
	L_info("agent: shutting down", "session", identity.ID())
	return nil
}

// keepConnected redials the hub with backoff until ctx ends
func keepConnected(ctx context.Context, client *realtime.Client) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-client.Done():
		}

		delay := minRedial
		for {
			L_warn("agent: hub connection lost, redialing", "in", delay)
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			if err := client.Connect(ctx); err == nil {
				metrics.MetricInc("realtime", "redials")
				break
			}
			delay = min(delay*2, maxRedial)
		}
	}
}

func browserConfig(cfg *config.Config) (browser.Config, error) {
	bc := browser.DefaultConfig()
	var err error
	if bc.Binary, err = paths.ExpandTilde(cfg.Browser.Binary); err != nil {
		return bc, err
	}
	if bc.UserDataDir, err = paths.ExpandTilde(cfg.Browser.UserDataDir); err != nil {
		return bc, err
	}
	bc.Headless = !cfg.Browser.Headful
	bc.NoSandbox = !cfg.Browser.Sandbox
	bc.Stealth = !cfg.Browser.DisableStealth
	bc.CDPEndpoint = cfg.Browser.CDPEndpoint
	bc.ClientRouting = cfg.Browser.ClientRouting
	bc.BlockPrivate = cfg.Browser.BlockPrivate
	if cfg.Browser.Device != "" {
		bc.Device = cfg.Browser.Device
	}
	if cfg.Browser.Timeout > 0 {
		bc.Timeout = cfg.Browser.Timeout.D()
	}
	if cfg.Browser.StableWait > 0 {
		bc.StableWait = cfg.Browser.StableWait.D()
	}
	return bc, nil
}
