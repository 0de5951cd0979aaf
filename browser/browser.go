package browser

import (
	"errors"
	"fmt"
	"io"

	"corsserve/logger"

	pkgbrowser "github.com/pkg/browser"
)

// Opener opens a URL in the user's browser
type Opener func(url string) error

// System opens URLs with the platform handler (xdg-open, open, rundll32)
func System(url string) error {
	return pkgbrowser.OpenURL(url)
}

func init() {
	// xdg-open chatter would interleave with the startup banner
	pkgbrowser.Stdout = io.Discard
	pkgbrowser.Stderr = io.Discard
}

// Launch tries to open url. Failure is logged as a warning and reported to
// the caller, never treated as fatal.
func Launch(log *logger.Logger, open Opener, url string) error {
	if open == nil {
		return errors.New("no browser opener configured")
	}

	if err := open(url); err != nil {
		log.Warn("Failed to open browser", map[string]interface{}{
			"error": err.Error(),
			"url":   url,
		})
		return fmt.Errorf("failed to open %s: %w", url, err)
	}

	log.Info("Opened browser", map[string]interface{}{
		"url": url,
	})
	return nil
}
