//go:build !linux && !windows

package power

import "time"

type inputProbe struct{}

func newProbe() Probe {
	return &inputProbe{}
}

func (p *inputProbe) IdleDuration() (time.Duration, error) {
	return 0, ErrProbeUnsupported
}
