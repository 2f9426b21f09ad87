package dap

import (
	"github.com/OpenTraceLab/OpenTraceFault/pkg/mmio"
)

// SimProbe is a Probe over any mmio.Bus, used for the simulated target and
// in tests.
type SimProbe struct {
	mmio.Bus
	InfoData ProbeInfo

	// OnReset replaces the AIRCR reset request when set.
	OnReset func() error

	resets int
	closed bool
}

// NewSimProbe wraps bus.
func NewSimProbe(bus mmio.Bus) *SimProbe {
	return &SimProbe{
		Bus: bus,
		InfoData: ProbeInfo{
			Name:  "Simulator",
			DPIDR: DefaultDPIDR,
			APIDR: DefaultAPIDR,
		},
	}
}

func (s *SimProbe) Info() ProbeInfo {
	return s.InfoData
}

func (s *SimProbe) ResetTarget() error {
	s.resets++
	if s.OnReset != nil {
		return s.OnReset()
	}
	return requestSystemReset(s.Bus)
}

func (s *SimProbe) Close() error {
	s.closed = true
	return nil
}

// Resets reports how many resets have been requested.
func (s *SimProbe) Resets() int {
	return s.resets
}

// Closed reports whether Close was called.
func (s *SimProbe) Closed() bool {
	return s.closed
}
