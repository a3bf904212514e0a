// Package config loads voicenav configuration from JSON, TOML or YAML files.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"dario.cat/mergo"
	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/roelfdiedericks/voicenav/internal/paths"

	. "github.com/roelfdiedericks/voicenav/internal/logging"
)

// Config represents the complete voicenav configuration
type Config struct {
	Server    ServerConfig    `json:"server" toml:"server" yaml:"server"`
	Webhook   WebhookConfig   `json:"webhook" toml:"webhook" yaml:"webhook"`
	Transport TransportConfig `json:"transport" toml:"transport" yaml:"transport"`
	Runtime   RuntimeConfig   `json:"runtime" toml:"runtime" yaml:"runtime"`
	Browser   BrowserConfig   `json:"browser" toml:"browser" yaml:"browser"`
	Logging   LoggingConfig   `json:"logging" toml:"logging" yaml:"logging"`
}

// ServerConfig configures the HTTP listener
type ServerConfig struct {
	Listen       string `json:"listen" toml:"listen" yaml:"listen"`
	APIKey       string `json:"apiKey" toml:"apiKey" yaml:"apiKey"` // empty disables the check
	WebhookPath  string `json:"webhookPath" toml:"webhookPath" yaml:"webhookPath"`
	RealtimePath string `json:"realtimePath" toml:"realtimePath" yaml:"realtimePath"`

	// TrustedProxies lists proxy addresses or CIDRs whose X-Forwarded-For is honored
	TrustedProxies []string `json:"trustedProxies" toml:"trustedProxies" yaml:"trustedProxies"`
}

// WebhookConfig configures the tool-call correlator
type WebhookConfig struct {
	ResponseTimeout    Duration `json:"responseTimeout" toml:"responseTimeout" yaml:"responseTimeout"`
	MaxConcurrentCalls int      `json:"maxConcurrentCalls" toml:"maxConcurrentCalls" yaml:"maxConcurrentCalls"`
	SkipGlobal         bool     `json:"skipGlobal" toml:"skipGlobal" yaml:"skipGlobal"` // don't mirror calls on commands/global
}

// TransportConfig configures the websocket transport
type TransportConfig struct {
	HubURL       string   `json:"hubUrl" toml:"hubUrl" yaml:"hubUrl"`
	DialTimeout  Duration `json:"dialTimeout" toml:"dialTimeout" yaml:"dialTimeout"`
	PingInterval Duration `json:"pingInterval" toml:"pingInterval" yaml:"pingInterval"`
	SendQueue    int      `json:"sendQueue" toml:"sendQueue" yaml:"sendQueue"`
}

// RuntimeConfig configures the page runtime
type RuntimeConfig struct {
	SettleDelay Duration `json:"settleDelay" toml:"settleDelay" yaml:"settleDelay"`
	Concurrent  bool     `json:"concurrent" toml:"concurrent" yaml:"concurrent"` // disable per-session FIFO
	QueueSize   int      `json:"queueSize" toml:"queueSize" yaml:"queueSize"`
	DedupeSize  int      `json:"dedupeSize" toml:"dedupeSize" yaml:"dedupeSize"`
}

// BrowserConfig configures the Chromium instance driven by the agent
type BrowserConfig struct {
	Binary         string   `json:"binary" toml:"binary" yaml:"binary"`
	Headful        bool     `json:"headful" toml:"headful" yaml:"headful"`
	Sandbox        bool     `json:"sandbox" toml:"sandbox" yaml:"sandbox"`
	DisableStealth bool     `json:"disableStealth" toml:"disableStealth" yaml:"disableStealth"`
	UserDataDir    string   `json:"userDataDir" toml:"userDataDir" yaml:"userDataDir"`
	CDPEndpoint    string   `json:"cdpEndpoint" toml:"cdpEndpoint" yaml:"cdpEndpoint"` // connect instead of launching
	Timeout        Duration `json:"timeout" toml:"timeout" yaml:"timeout"`
	StableWait     Duration `json:"stableWait" toml:"stableWait" yaml:"stableWait"`
	Device         string   `json:"device" toml:"device" yaml:"device"`                      // "clear", "laptop", "iphone-x", ...
	ClientRouting  bool     `json:"clientRouting" toml:"clientRouting" yaml:"clientRouting"` // navigate with history.pushState
	BlockPrivate   bool     `json:"blockPrivate" toml:"blockPrivate" yaml:"blockPrivate"`    // refuse loopback/private hosts
}

// LoggingConfig configures the global logger
type LoggingConfig struct {
	Level      string `json:"level" toml:"level" yaml:"level"`
	Format     string `json:"format" toml:"format" yaml:"format"`
	ShowCaller bool   `json:"showCaller" toml:"showCaller" yaml:"showCaller"`
}

// Duration is a time.Duration that reads and writes as "300ms", "5s", ...
type Duration time.Duration

// D returns the value as a time.Duration
func (d Duration) D() time.Duration { return time.Duration(d) }

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	*d = Duration(v)
	return nil
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Listen:       "127.0.0.1:8787",
			WebhookPath:  "/vapi-webhook",
			RealtimePath: "/realtime",
		},
		Webhook: WebhookConfig{
			ResponseTimeout:    Duration(5 * time.Second),
			MaxConcurrentCalls: 8,
		},
		Transport: TransportConfig{
			HubURL:       "ws://127.0.0.1:8787/realtime",
			DialTimeout:  Duration(10 * time.Second),
			PingInterval: Duration(30 * time.Second),
			SendQueue:    64,
		},
		Runtime: RuntimeConfig{
			SettleDelay: Duration(300 * time.Millisecond),
			QueueSize:   100,
			DedupeSize:  256,
		},
		Browser: BrowserConfig{
			Timeout:    Duration(30 * time.Second),
			StableWait: Duration(500 * time.Millisecond),
			Device:     "clear",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// SearchPaths returns the locations checked when no explicit path is given
func SearchPaths() []string {
	return paths.ConfigCandidates()
}

// Load reads configuration from path (or the first existing search path when
// path is empty), fills unset values from Default, then applies environment
// overrides. Returns the path actually read ("" when none was found).
func Load(path string) (*Config, string, error) {
	path, err := paths.ExpandTilde(path)
	if err != nil {
		return nil, "", err
	}
	if path == "" {
		for _, p := range SearchPaths() {
			if _, err := os.Stat(p); err == nil {
				path = p
				break
			}
		}
	}

	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, "", fmt.Errorf("failed to read config: %w", err)
		}
		if err := Decode(path, data, cfg); err != nil {
			return nil, "", err
		}
		L_debug("config: loaded", "path", path)
	} else {
		L_debug("config: no config file found, using defaults")
	}

	if err := mergo.Merge(cfg, Default()); err != nil {
		return nil, "", fmt.Errorf("failed to apply defaults: %w", err)
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

// Decode parses data into cfg, choosing the format by the file extension
func Decode(path string, data []byte, cfg *Config) error {
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		_, err = toml.Decode(string(data), cfg)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	case ".json", "":
		err = json.Unmarshal(data, cfg)
	default:
		return fmt.Errorf("unsupported config format %q", filepath.Ext(path))
	}
	if err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("VOICENAV_API_KEY"); v != "" {
		c.Server.APIKey = v
	}
	if v := os.Getenv("VOICENAV_LISTEN"); v != "" {
		c.Server.Listen = v
	}
	if v := os.Getenv("VOICENAV_HUB_URL"); v != "" {
		c.Transport.HubURL = v
	}
	if v := os.Getenv("VOICENAV_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Validate reports the first invalid setting
func (c *Config) Validate() error {
	if !strings.HasPrefix(c.Server.WebhookPath, "/") {
		return fmt.Errorf("server.webhookPath must start with /: %q", c.Server.WebhookPath)
	}
	if !strings.HasPrefix(c.Server.RealtimePath, "/") {
		return fmt.Errorf("server.realtimePath must start with /: %q", c.Server.RealtimePath)
	}
	if c.Webhook.ResponseTimeout <= 0 {
		return fmt.Errorf("webhook.responseTimeout must be positive")
	}
	if c.Webhook.MaxConcurrentCalls < 1 {
		return fmt.Errorf("webhook.maxConcurrentCalls must be at least 1")
	}
	if c.Runtime.SettleDelay < 0 {
		return fmt.Errorf("runtime.settleDelay must not be negative")
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json", "logfmt":
	default:
		return fmt.Errorf("logging.format must be text, json or logfmt: %q", c.Logging.Format)
	}
	return nil
}

// LogOptions converts the logging section for logging.Init
func (c *Config) LogOptions() *Options {
	return &Options{
		Level:      ParseLevel(c.Logging.Level),
		Format:     c.Logging.Format,
		TimeFormat: "15:04:05",
		ShowCaller: c.Logging.ShowCaller,
	}
}
