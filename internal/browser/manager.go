// Package browser drives Chromium through go-rod and exposes its pages as
// dom.Page, so the page runtime can act on real sites.
package browser

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	. "github.com/roelfdiedericks/voicenav/internal/logging"
)

// cleanupStaleLocks removes Chrome lock files left behind by crashed sessions
// Chrome refuses to start if SingletonLock or other lock files exist
func cleanupStaleLocks(profileDir string) {
	for _, lockFile := range []string{"SingletonLock", "SingletonCookie", "SingletonSocket"} {
		lockPath := filepath.Join(profileDir, lockFile)
		if _, err := os.Lstat(lockPath); err != nil {
			continue
		}
		if err := os.Remove(lockPath); err != nil {
			L_warn("browser: failed to remove stale lock file", "file", lockPath, "error", err)
		} else {
			L_info("browser: removed stale lock file", "file", lockPath)
		}
	}
}

// Manager owns one browser, launched on demand or attached over CDP.
type Manager struct {
	config     Config
	homeDir    string
	downloader *Downloader

	mu       sync.Mutex
	browser  *rod.Browser
	external bool // attached to a browser we did not launch
}

// NewManager creates a manager. Nothing is launched until a page is opened.
func NewManager(cfg Config) (*Manager, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}
	m := &Manager{
		config:     cfg,
		homeDir:    homeDir,
		downloader: NewDownloader(cfg.ResolveBinDir(homeDir)),
	}
	L_debug("browser: manager initialized",
		"headless", cfg.Headless,
		"stealth", cfg.Stealth,
		"cdp", cfg.CDPEndpoint,
	)
	return m, nil
}

// Config returns the current configuration
func (m *Manager) Config() Config {
	return m.config
}

// connected probes the CDP connection; a dead client can panic inside rod
func connected(b *rod.Browser) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			L_debug("browser: connection check panicked, browser is dead", "panic", r)
			ok = false
		}
	}()
	_, err := b.Call(context.Background(), "", "Browser.getVersion", nil)
	return err == nil
}

// Browser returns the live browser, launching or attaching if needed.
func (m *Manager) Browser() (*rod.Browser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.browser != nil {
		if connected(m.browser) {
			return m.browser, nil
		}
		L_debug("browser: existing browser disconnected, recreating")
		m.browser = nil
	}

	if m.config.CDPEndpoint != "" {
		b, err := m.attach(m.config.CDPEndpoint)
		if err != nil {
			return nil, err
		}
		m.browser, m.external = b, true
		return b, nil
	}

	b, err := m.launch()
	if err != nil {
		return nil, err
	}
	m.browser, m.external = b, false
	return b, nil
}

func (m *Manager) launch() (*rod.Browser, error) {
	binPath := m.config.Binary
	if binPath == "" {
		var err error
		if binPath, err = m.downloader.EnsureBrowser(); err != nil {
			return nil, fmt.Errorf("failed to ensure browser: %w", err)
		}
	}

	profileDir := m.config.ResolveUserDataDir(m.homeDir)
	if err := os.MkdirAll(profileDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create profile directory: %w", err)
	}
	cleanupStaleLocks(profileDir)

	L_debug("browser: launching browser", "bin", binPath, "profileDir", profileDir, "headless", m.config.Headless)

	l := launcher.New().
		Bin(binPath).
		UserDataDir(profileDir).
		Headless(m.config.Headless).
		Set("disable-dev-shm-usage") // For Docker/limited memory

	// Use 1920x1080 so sites show the full desktop layout
	if !m.config.Headless {
		l = l.Set("window-size", "1920,1080").
			Set("start-maximized")
	}
	if m.config.Stealth {
		l = l.Set("disable-blink-features", "AutomationControlled")
	}
	if m.config.NoSandbox {
		l = l.Set("no-sandbox")
	}

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}
	// Rod defaults to LaptopWithMDPIScreen which constrains the viewport
	b.DefaultDevice(m.config.ResolveDevice())

	L_info("browser: launched", "controlURL", controlURL)
	return b, nil
}

func (m *Manager) attach(endpoint string) (*rod.Browser, error) {
	L_info("browser: connecting to Chrome", "endpoint", endpoint)

	controlURL := endpoint
	if u, err := launcher.ResolveURL(endpoint); err == nil {
		controlURL = u
	}
	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to Chrome at %s: %w", endpoint, err)
	}
	L_info("browser: connected to Chrome", "endpoint", endpoint)
	return b, nil
}

// Open creates a tab, loads url and wraps it as a Page.
func (m *Manager) Open(ctx context.Context, url string) (*Page, error) {
	policy := URLPolicy{BlockPrivate: m.config.BlockPrivate}
	if err := policy.Validate(url); err != nil {
		return nil, err
	}

	b, err := m.Browser()
	if err != nil {
		return nil, err
	}

	var rp *rod.Page
	if m.config.Stealth {
		rp, err = stealth.Page(b)
	} else {
		rp, err = b.Page(proto.TargetCreateTarget{})
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create page: %w", err)
	}

	p := newPage(rp, m.config, policy)
	if err := p.Load(ctx, url); err != nil {
		_ = rp.Close()
		return nil, err
	}
	return p, nil
}

// Close shuts the browser down. Attached browsers are left running.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.browser == nil {
		return
	}
	if m.external {
		L_debug("browser: leaving external browser running")
	} else if err := m.browser.Close(); err != nil {
		L_warn("browser: close failed", "error", err)
	} else {
		L_debug("browser: closed")
	}
	m.browser = nil
}
