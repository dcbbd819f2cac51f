//go:build linux

package platform

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (service *platformService) EnableAutostart(execPath string, args ...string) error {
	if execPath == "" {
		return fmt.Errorf("enable autostart: exec path is empty")
	}

	configDir, err := service.ConfigDir()
	if err != nil {
		return fmt.Errorf("enable autostart: %w", err)
	}

	autostartDir := filepath.Join(configDir, "autostart")
	if err := os.MkdirAll(autostartDir, 0o755); err != nil {
		return fmt.Errorf("enable autostart: create autostart dir: %w", err)
	}

	path := filepath.Join(autostartDir, appName+".desktop")
	if err := os.WriteFile(path, []byte(buildDesktopEntry(execPath, args)), 0o644); err != nil {
		return fmt.Errorf("enable autostart: write desktop entry: %w", err)
	}

	return nil
}

func (service *platformService) DisableAutostart() error {
	configDir, err := service.ConfigDir()
	if err != nil {
		return fmt.Errorf("disable autostart: %w", err)
	}

	path := filepath.Join(configDir, "autostart", appName+".desktop")
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("disable autostart: remove desktop entry: %w", err)
	}

	return nil
}

func fallbackConfigDir(homeDir string) string {
	return filepath.Join(homeDir, ".config")
}

func buildDesktopEntry(execPath string, args []string) string {
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, quoteIfNeeded(execPath))
	for _, a := range args {
		parts = append(parts, quoteIfNeeded(a))
	}

	return fmt.Sprintf(
		`[Desktop Entry]
Type=Application
Name=%s
Exec=%s
X-GNOME-Autostart-enabled=true
Terminal=false
`,
		appName,
		strings.Join(parts, " "),
	)
}

func quoteIfNeeded(s string) string {
	if strings.Contains(s, " ") && !strings.HasPrefix(s, `"`) {
		return `"` + s + `"`
	}
	return s
}
