package browser

import (
	"fmt"
	"os"
	"sync"

	"github.com/go-rod/rod/lib/launcher"

	. "github.com/roelfdiedericks/voicenav/internal/logging"
)

// Downloader handles Chromium binary management
type Downloader struct {
	binDir  string
	mu      sync.Mutex
	binPath string // Cached path to binary once downloaded
}

// NewDownloader creates a new Chromium downloader
func NewDownloader(binDir string) *Downloader {
	return &Downloader{binDir: binDir}
}

// EnsureBrowser ensures Chromium is downloaded and returns the path to the binary.
// This is safe to call concurrently.
func (d *Downloader) EnsureBrowser() (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.binPath != "" {
		if _, err := os.Stat(d.binPath); err == nil {
			return d.binPath, nil
		}
		// Binary was removed, need to re-download
		d.binPath = ""
	}

	if err := os.MkdirAll(d.binDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create browser bin directory: %w", err)
	}

	L_debug("browser: ensuring browser is available", "binDir", d.binDir)

	b := launcher.NewBrowser()
	b.RootDir = d.binDir

	// Download if needed (this is a no-op if already downloaded)
	binPath, err := b.Get()
	if err != nil {
		return "", fmt.Errorf("failed to download browser: %w", err)
	}

	d.binPath = binPath
	L_info("browser: ready", "path", binPath)
	return binPath, nil
}
