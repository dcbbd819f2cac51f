//go:build linux

package power

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

type inputProbe struct {
	xprintidlePath string
}

type unsupportedProbe struct{}

func newProbe() Probe {
	path, err := exec.LookPath("xprintidle")
	if err != nil {
		return unsupportedProbe{}
	}
	return &inputProbe{xprintidlePath: path}
}

func (p *inputProbe) IdleDuration() (time.Duration, error) {
	sessionType := strings.ToLower(os.Getenv("XDG_SESSION_TYPE"))
	if sessionType == "wayland" && p.xprintidlePath == "" {
		return 0, ErrProbeUnsupported
	}
	output, err := exec.Command(p.xprintidlePath).Output()
	if err != nil {
		return 0, fmt.Errorf("xprintidle: %w", err)
	}
	value := strings.TrimSpace(string(output))
	idleMillis, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse idle milliseconds: %w", err)
	}
	if idleMillis < 0 {
		idleMillis = 0
	}
	return time.Duration(idleMillis) * time.Millisecond, nil
}

func (unsupportedProbe) IdleDuration() (time.Duration, error) {
	return 0, ErrProbeUnsupported
}
