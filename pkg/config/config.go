// Package config holds the project settings shared by the otf commands: where
// the core dump lives, how to decode and act on faults, and which probe to
// use.
package config

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/OpenTraceLab/OpenTraceFault/pkg/coredump"
	"github.com/OpenTraceLab/OpenTraceFault/pkg/dap"
	"github.com/OpenTraceLab/OpenTraceFault/pkg/fault"
	"github.com/OpenTraceLab/OpenTraceFault/pkg/mmio"
	"github.com/OpenTraceLab/OpenTraceFault/pkg/policy"
	"github.com/OpenTraceLab/OpenTraceFault/pkg/target"
)

// FileName is the project config looked up in the working directory.
const FileName = "otf.json"

// ErrInvalid is returned by Validate.
var ErrInvalid = errors.New("config: invalid")

// Word is a 32-bit value that reads from JSON as a number or as a "0x..."
// string and is written back as hex.
type Word uint32

func (w Word) MarshalJSON() ([]byte, error) {
	return json.Marshal(fmt.Sprintf("0x%08X", uint32(w)))
}

func (w *Word) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		s = string(b)
	}
	v, err := strconv.ParseUint(strings.TrimSpace(s), 0, 32)
	if err != nil {
		return fmt.Errorf("config: bad value %s: %w", b, err)
	}
	*w = Word(v)
	return nil
}

// Region is an address range.
type Region struct {
	Name   string `json:"name,omitempty"`
	Origin Word   `json:"origin"`
	Length Word   `json:"length"`
}

func (r Region) region() mmio.Region {
	return mmio.Region{Name: r.Name, Origin: uint32(r.Origin), Length: uint32(r.Length)}
}

func fromMMIO(r mmio.Region) Region {
	return Region{Name: r.Name, Origin: Word(r.Origin), Length: Word(r.Length)}
}

// ProbeConfig selects the debug probe.
type ProbeConfig struct {
	VID     Word   `json:"vid"`
	PID     Word   `json:"pid"`
	Serial  string `json:"serial,omitempty"`
	SpeedHz int    `json:"speed_hz"`
}

// Selector names the USB probe to open.
func (p ProbeConfig) Selector() dap.USBSelector {
	return dap.USBSelector{VID: uint16(p.VID), PID: uint16(p.PID), Serial: p.Serial}
}

// Config is the project configuration.
type Config struct {
	Dump              Region      `json:"dump_region"`
	Order             string      `json:"byte_order"`
	Policy            string      `json:"policy"`
	Priority          []string    `json:"priority,omitempty"`
	SeparateAlignment bool        `json:"separate_alignment"`
	ClearAfterReport  bool        `json:"clear_after_report"`
	RAM               []Region    `json:"ram,omitempty"`
	Probe             ProbeConfig `json:"probe"`

	// LinkerScript and DumpSection, when set, let "otf linker check" run
	// without arguments.
	LinkerScript string `json:"linker_script,omitempty"`
	DumpSection  string `json:"dump_section,omitempty"`

	// Path is the file the config was loaded from, empty for defaults.
	Path string `json:"-"`
}

// Default returns the configuration for the reference STM32L4 layout.
func Default() *Config {
	var ram []Region
	for _, r := range target.RAM() {
		ram = append(ram, fromMMIO(r))
	}
	return &Config{
		Dump:        fromMMIO(target.DefaultLayout().NoInit),
		Order:       "little",
		Policy:      "default",
		RAM:         ram,
		DumpSection: ".CoreDump",
		Probe: ProbeConfig{
			VID:     dap.VendorIDRaspberryPi,
			PID:     dap.ProductIDCMSISDAP,
			SpeedHz: dap.DefaultSpeedHz,
		},
	}
}

// UserPath returns the per-user config file location.
func UserPath() (string, error) {
	// Windows: %APPDATA%\OpenTraceFault
	if dir := os.Getenv("APPDATA"); dir != "" {
		return filepath.Join(dir, "OpenTraceFault", "config.json"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "opentracefault", "config.json"), nil
}

// Locate returns the config file Load("") would read: otf.json in the working
// directory, then the per-user file. It returns "" when neither exists.
func Locate() string {
	candidates := []string{FileName}
	if p, err := UserPath(); err == nil {
		candidates = append(candidates, p)
	}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// Load reads the config at path over the defaults. An empty path searches the
// usual locations and falls back to Default.
func Load(path string) (*Config, error) {
	if path == "" {
		path = Locate()
		if path == "" {
			return Default(), nil
		}
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	defer f.Close()

	cfg := Default()
	dec := json.NewDecoder(f)
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	cfg.Path = path

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the config as indented JSON, creating the directory.
func (c *Config) Save(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0644)
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if _, err := c.byteOrder(); err != nil {
		return err
	}
	if _, err := policy.New(c.Policy, policy.StaticProbe(false), policy.Options{}); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if _, err := c.DecoderConfig(); err != nil {
		return err
	}

	dump := c.DumpRegion()
	if err := mmio.CheckAligned(dump.Origin); err != nil {
		return fmt.Errorf("%w: dump_region: %v", ErrInvalid, err)
	}
	if dump.Length < coredump.RecordSize {
		return fmt.Errorf("%w: dump_region is %d bytes, a record needs %d", ErrInvalid, dump.Length, coredump.RecordSize)
	}
	if dump.End() > 1<<32 {
		return fmt.Errorf("%w: dump_region exceeds the 32-bit address space", ErrInvalid)
	}
	if len(c.RAM) > 0 && !c.inRAM(dump) {
		return fmt.Errorf("%w: dump_region %s is not inside any ram region", ErrInvalid, dump)
	}

	if c.Probe.VID > 0xFFFF || c.Probe.PID > 0xFFFF {
		return fmt.Errorf("%w: probe vid/pid must be 16-bit", ErrInvalid)
	}
	if c.Probe.SpeedHz != 0 && (c.Probe.SpeedHz < dap.MinSpeedHz || c.Probe.SpeedHz > dap.MaxSpeedHz) {
		return fmt.Errorf("%w: probe speed_hz %d out of range [%d, %d]", ErrInvalid, c.Probe.SpeedHz, dap.MinSpeedHz, dap.MaxSpeedHz)
	}
	return nil
}

func (c *Config) inRAM(r mmio.Region) bool {
	for _, ram := range c.RAM {
		m := ram.region()
		if r.Origin >= m.Origin && r.End() <= m.End() {
			return true
		}
	}
	return false
}

// DecoderConfig returns the fault decoder settings.
func (c *Config) DecoderConfig() (fault.Config, error) {
	cfg := fault.Config{SeparateAlignment: c.SeparateAlignment}
	for _, name := range c.Priority {
		cat, err := fault.ParseCategory(name)
		if err != nil {
			return fault.Config{}, fmt.Errorf("%w: priority: %v", ErrInvalid, err)
		}
		cfg.Priority = append(cfg.Priority, cat)
	}
	if len(cfg.Priority) == 0 {
		cfg.Priority = fault.DefaultPriority()
	}
	if err := cfg.Validate(); err != nil {
		return fault.Config{}, fmt.Errorf("%w: priority: %v", ErrInvalid, err)
	}
	return cfg, nil
}

// RAMRegions returns the RAM a stacked frame may be read from.
func (c *Config) RAMRegions() []mmio.Region {
	out := make([]mmio.Region, 0, len(c.RAM))
	for _, r := range c.RAM {
		out = append(out, r.region())
	}
	return out
}

// DumpRegion returns the core dump region.
func (c *Config) DumpRegion() mmio.Region {
	r := c.Dump.region()
	if r.Name == "" {
		r.Name = c.DumpSection
	}
	return r
}

// ByteOrder returns the target's byte order; invalid names fall back to
// little endian, which Validate rejects.
func (c *Config) ByteOrder() binary.ByteOrder {
	order, err := c.byteOrder()
	if err != nil {
		return binary.LittleEndian
	}
	return order
}

func (c *Config) byteOrder() (binary.ByteOrder, error) {
	switch strings.ToLower(c.Order) {
	case "", "little", "le":
		return binary.LittleEndian, nil
	case "big", "be":
		return binary.BigEndian, nil
	}
	return nil, fmt.Errorf("%w: byte_order %q (want little or big)", ErrInvalid, c.Order)
}
