// Command voicenav runs the voice-agent webhook server, the page agent that
// drives a browser tab, and offline inspection of saved pages.
package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"

	"github.com/roelfdiedericks/voicenav/internal/config"
	. "github.com/roelfdiedericks/voicenav/internal/logging"
)

var version = "0.1.0"

// Globals are flags shared by every command
type Globals struct {
	Config   string `short:"c" help:"Config file (json, toml or yaml)" type:"path"`
	LogLevel string `help:"Override the log level (trace, debug, info, warn, error)"`
	Debug    bool   `short:"d" help:"Shorthand for --log-level=debug"`
}

// load reads the config and initializes logging from it. The returned path
// is "" when running on defaults.
func (g *Globals) load() (*config.Config, string, error) {
	cfg, path, err := config.Load(g.Config)
	if err != nil {
		return nil, "", err
	}
	opts := cfg.LogOptions()
	opts.Level = g.logLevel(cfg)
	Init(opts)
	if path != "" {
		L_debug("voicenav: config loaded", "path", path)
	}
	return cfg, path, nil
}

// logLevel is the level from cfg unless the command line pinned one
func (g *Globals) logLevel(cfg *config.Config) int {
	switch {
	case g.LogLevel != "":
		return ParseLevel(g.LogLevel)
	case g.Debug:
		return LevelDebug
	}
	return ParseLevel(cfg.Logging.Level)
}

type CLI struct {
	Globals

	Serve   ServeCmd   `cmd:"" help:"Run the webhook server and realtime hub"`
	Agent   AgentCmd   `cmd:"" help:"Open a page in Chromium and execute commands for a session"`
	Inspect InspectCmd `cmd:"" help:"Describe a saved HTML page, optionally running a command on it"`
	Session SessionCmd `cmd:"" help:"Session id helpers"`
	Version VersionCmd `cmd:"" help:"Print the version"`
}

type VersionCmd struct{}

func (VersionCmd) Run() error {
	fmt.Printf("voicenav %s\n", version)
	return nil
}

type SessionCmd struct {
	New SessionNewCmd `cmd:"" help:"Mint a new session id"`
}

func main() {
	Init(DefaultOptions())

	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("voicenav"),
		kong.Description("Voice-agent command routing to live web pages."),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{Compact: true}),
	)
	if err := ctx.Run(&cli.Globals); err != nil {
		L_error("voicenav: command failed", "command", ctx.Command(), "error", err)
		os.Exit(1)
	}
}
