package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"twi-go/drivers/eeprom24"
	"twi-go/drivers/twi"
)

// ---------- Configuration ----------

type busConfig struct {
	Speed     twi.Speed
	Retries   uint8
	TimeoutMs uint16
	CPUHz     uint32
}

type deviceKind string

const (
	kindMemory   deviceKind = "memory"
	kindEEPROM24 deviceKind = "eeprom24"
)

type deviceConfig struct {
	Name     string
	Address  uint8
	RegWidth twi.RegWidth
	Size     int
	PageSize int
	Kind     deviceKind
}

type config struct {
	Bus     busConfig
	Devices []deviceConfig
}

// defaultConfig is the rig used when no file is given: a register file and
// a 24C02.
func defaultConfig() config {
	return config{
		Bus: busConfig{
			Speed:     twi.SpeedStandard,
			Retries:   twi.DefaultRetries,
			TimeoutMs: twi.DefaultTimeoutMs,
			CPUHz:     twi.DefaultCPUHz,
		},
		Devices: []deviceConfig{
			{Name: "regs", Address: 0x20, RegWidth: twi.Reg8, Size: 256, Kind: kindMemory},
			{Name: "eeprom", Address: 0x50, RegWidth: twi.Reg8, Size: 256, PageSize: 8, Kind: kindEEPROM24},
		},
	}
}

func (c config) device(name string) (deviceConfig, bool) {
	for _, d := range c.Devices {
		if d.Name == name {
			return d, true
		}
	}
	return deviceConfig{}, false
}

// eeprom returns the part description for an eeprom24 entry.
func (d deviceConfig) eeprom() eeprom24.Config {
	return eeprom24.Config{
		Size:       d.Size,
		PageSize:   d.PageSize,
		WriteCycle: 5 * time.Millisecond,
		Wide:       d.RegWidth == twi.Reg16,
	}
}

type fileBus struct {
	SpeedKHz  uint16 `toml:"speed_khz"`
	Retries   int    `toml:"retries"`
	TimeoutMs int    `toml:"timeout_ms"`
	CPUHz     uint32 `toml:"cpu_hz"`
}

type fileDevice struct {
	Name     string `toml:"name"`
	Address  int    `toml:"address"`
	RegWidth int    `toml:"reg_width"`
	Size     int    `toml:"size"`
	PageSize int    `toml:"page_size"`
	Kind     string `toml:"kind"`
}

type fileConfig struct {
	Bus     fileBus      `toml:"bus"`
	Devices []fileDevice `toml:"device"`
}

func loadConfig(path string) (config, error) {
	cfg := defaultConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return config{}, fmt.Errorf("load twisim config: %w", err)
	}
	if undec := meta.Undecoded(); len(undec) > 0 {
		return config{}, fmt.Errorf("unknown config key %q", undec[0].String())
	}

	if meta.IsDefined("bus", "speed_khz") {
		cfg.Bus.Speed = twi.Speed(raw.Bus.SpeedKHz)
	}
	if meta.IsDefined("bus", "retries") {
		if raw.Bus.Retries < 0 || raw.Bus.Retries > twi.MaxRetries {
			return config{}, fmt.Errorf("bus.retries %d out of range 0..%d", raw.Bus.Retries, twi.MaxRetries)
		}
		cfg.Bus.Retries = uint8(raw.Bus.Retries)
	}
	if meta.IsDefined("bus", "timeout_ms") {
		if raw.Bus.TimeoutMs < 0 || raw.Bus.TimeoutMs > twi.MaxTimeoutMs {
			return config{}, fmt.Errorf("bus.timeout_ms %d out of range 0..%d", raw.Bus.TimeoutMs, twi.MaxTimeoutMs)
		}
		cfg.Bus.TimeoutMs = uint16(raw.Bus.TimeoutMs)
	}
	if meta.IsDefined("bus", "cpu_hz") {
		cfg.Bus.CPUHz = raw.Bus.CPUHz
	}

	if meta.IsDefined("device") {
		devs, err := normalizeDevices(raw.Devices)
		if err != nil {
			return config{}, err
		}
		cfg.Devices = devs
	}
	return cfg, nil
}

func normalizeDevices(in []fileDevice) ([]deviceConfig, error) {
	out := make([]deviceConfig, 0, len(in))
	seen := map[string]bool{}
	for i, fd := range in {
		d := deviceConfig{
			Name:     strings.TrimSpace(fd.Name),
			Size:     fd.Size,
			PageSize: fd.PageSize,
			Kind:     deviceKind(strings.ToLower(strings.TrimSpace(fd.Kind))),
		}
		if d.Name == "" {
			return nil, fmt.Errorf("device[%d]: name is required", i)
		}
		if seen[d.Name] {
			return nil, fmt.Errorf("device %q: duplicate name", d.Name)
		}
		seen[d.Name] = true

		if fd.Address < 0 || fd.Address > twi.MaxAddr {
			return nil, fmt.Errorf("device %q: address %#x is not a 7-bit address", d.Name, fd.Address)
		}
		d.Address = uint8(fd.Address)

		switch fd.RegWidth {
		case 0:
			d.RegWidth = twi.RegNone
		case 8:
			d.RegWidth = twi.Reg8
		case 16:
			d.RegWidth = twi.Reg16
		default:
			return nil, fmt.Errorf("device %q: reg_width must be 0, 8 or 16", d.Name)
		}

		if d.Kind == "" {
			d.Kind = kindMemory
		}
		if d.Size < 0 || d.PageSize < 0 {
			return nil, fmt.Errorf("device %q: size and page_size must not be negative", d.Name)
		}
		if d.Size == 0 {
			d.Size = 256
		}
		switch d.Kind {
		case kindMemory:
		case kindEEPROM24:
			if d.RegWidth == twi.RegNone {
				return nil, fmt.Errorf("device %q: eeprom24 needs reg_width 8 or 16", d.Name)
			}
			if d.PageSize == 0 {
				d.PageSize = 8
			}
			if _, err := eeprom24.New(nil, d.Address, d.eeprom()); err != nil {
				return nil, fmt.Errorf("device %q: %w", d.Name, err)
			}
		default:
			return nil, fmt.Errorf("device %q: unknown kind %q", d.Name, d.Kind)
		}
		out = append(out, d)
	}
	return out, nil
}
