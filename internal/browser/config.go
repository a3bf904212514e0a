package browser

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/go-rod/rod/lib/devices"
)

// Config holds browser driver configuration
type Config struct {
	Binary        string        // Chromium binary (empty = download into Dir)
	Dir           string        // Browser data directory (empty = ~/.voicenav/browser)
	Headless      bool          // Run in headless mode
	NoSandbox     bool          // Disable sandbox (needed for Docker/root)
	Stealth       bool          // Enable stealth mode
	UserDataDir   string        // Chrome profile directory (empty = Dir/profile)
	CDPEndpoint   string        // Connect to a running Chrome instead of launching
	Device        string        // Device emulation: "clear", "laptop", "iphone-x", etc.
	Timeout       time.Duration // Per-operation timeout
	StableWait    time.Duration // DOM quiet period after loads
	ClientRouting bool          // Navigate in-page with history.pushState
	BlockPrivate  bool          // Refuse loads of loopback/private/metadata hosts
}

// DefaultConfig returns the default browser configuration
func DefaultConfig() Config {
	return Config{
		Headless:   true,
		Stealth:    true,
		Device:     "clear", // No viewport emulation, fills window
		Timeout:    30 * time.Second,
		StableWait: 500 * time.Millisecond,
	}
}

// ResolveDir returns the browser directory, defaulting to ~/.voicenav/browser
func (c *Config) ResolveDir(homeDir string) string {
	if c.Dir != "" {
		return c.Dir
	}
	return filepath.Join(homeDir, ".voicenav", "browser")
}

// ResolveBinDir returns the chromium download directory
func (c *Config) ResolveBinDir(homeDir string) string {
	return filepath.Join(c.ResolveDir(homeDir), "bin")
}

// ResolveUserDataDir returns the Chrome profile directory
func (c *Config) ResolveUserDataDir(homeDir string) string {
	if c.UserDataDir != "" {
		return c.UserDataDir
	}
	return filepath.Join(c.ResolveDir(homeDir), "profile")
}

// ResolveTimeout returns the per-operation timeout
func (c *Config) ResolveTimeout() time.Duration {
	if c.Timeout <= 0 {
		return 30 * time.Second
	}
	return c.Timeout
}

// ResolveDevice returns the devices.Device for the configured device name.
// Unknown names fall back to "clear" (no emulation).
func (c *Config) ResolveDevice() devices.Device {
	switch strings.ToLower(c.Device) {
	case "", "clear":
		return devices.Clear
	case "laptop", "laptop-mdpi":
		return devices.LaptopWithMDPIScreen
	case "laptop-hidpi":
		return devices.LaptopWithHiDPIScreen
	case "laptop-touch":
		return devices.LaptopWithTouch
	case "iphone-x":
		return devices.IPhoneX
	case "iphone-se":
		return devices.IPhone5orSE
	case "ipad":
		return devices.IPad
	case "ipad-pro":
		return devices.IPadPro
	case "pixel-2":
		return devices.Pixel2
	case "galaxy-s5":
		return devices.GalaxyS5
	default:
		return devices.Clear
	}
}
