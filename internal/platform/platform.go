// Package platform holds the OS-specific glue punchd needs outside the
// power monitors: the standard config directory and login-item registration.
package platform

import (
	"fmt"
	"os"
)

const appName = "punchd"

// Service defines the OS-specific helpers used by the CLI.
type Service interface {
	ConfigDir() (string, error)
	EnableAutostart(execPath string, args ...string) error
	DisableAutostart() error
}

type platformService struct{}

// NewService returns the implementation for the current OS.
func NewService() Service {
	return &platformService{}
}

// ConfigDir returns the OS-standard configuration directory.
func (service *platformService) ConfigDir() (string, error) {
	configDir, err := os.UserConfigDir()
	if err == nil && configDir != "" {
		return configDir, nil
	}

	homeDir, homeErr := os.UserHomeDir()
	if homeErr != nil {
		if err != nil {
			return "", fmt.Errorf("get config dir: %w", err)
		}
		return "", fmt.Errorf("get config dir: %w", homeErr)
	}

	return fallbackConfigDir(homeDir), nil
}
