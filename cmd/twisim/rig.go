package main

import (
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"twi-go/drivers/eeprom24"
	"twi-go/drivers/twi"
	"twi-go/drivers/twi/twisim"
)

// ---------- Simulated bus ----------

// rig is one simulated peripheral with the configured devices attached and a
// Master driving it.
type rig struct {
	cfg  config
	log  zerolog.Logger
	p    *twisim.Peripheral
	m    *twi.Master
	mems map[string][]*twisim.Memory
}

func newRig(cfg config, log zerolog.Logger) *rig {
	r := &rig{
		cfg:  cfg,
		log:  log,
		p:    twisim.New(),
		mems: map[string][]*twisim.Memory{},
	}
	for _, d := range cfg.Devices {
		for _, mem := range memoriesFor(d) {
			r.p.Attach(mem)
			r.mems[d.Name] = append(r.mems[d.Name], mem)
		}
		log.Debug().Str("device", d.Name).Str("kind", string(d.Kind)).
			Uint8("addr", d.Address).Stringer("reg_width", d.RegWidth).Msg("attached")
	}

	busLog := log.With().Str("component", "twi").Logger()
	r.m = twi.New(r.p, twi.Config{
		Speed:     cfg.Bus.Speed,
		Retries:   cfg.Bus.Retries,
		TimeoutMs: cfg.Bus.TimeoutMs,
		CPUHz:     cfg.Bus.CPUHz,
		Logger:    &busLog,
	})
	speed := r.m.Init(cfg.Bus.Speed)
	log.Info().Uint16("khz", uint16(speed)).Uint8("bitrate", r.p.BitRate()).
		Uint8("retries", r.m.Retries()).Uint16("timeout_ms", r.m.Timeout()).Msg("bus up")
	r.p.ClearLog()
	return r
}

// memoriesFor models a configured device as one or more simulated memories.
// Narrow EEPROMs larger than 256 bytes answer on consecutive addresses.
func memoriesFor(d deviceConfig) []*twisim.Memory {
	ptr := int(d.RegWidth)
	if d.Kind != kindEEPROM24 {
		return []*twisim.Memory{twisim.NewMemory(d.Address, ptr, d.Size, 0)}
	}
	var out []*twisim.Memory
	blocks, size := 1, d.Size
	if d.RegWidth == twi.Reg8 && d.Size > 256 {
		blocks, size = d.Size/256, 256
	}
	for i := 0; i < blocks; i++ {
		mem := twisim.NewMemory(d.Address+uint8(i), ptr, size, 0xFF)
		mem.PageSize = d.PageSize
		out = append(out, mem)
	}
	return out
}

// hang makes every further command stall so the watchdog fires.
func (r *rig) hang() {
	r.log.Warn().Msg("peripheral will hang")
	r.p.Hang = true
}

func (r *rig) slave(name string) (*twi.Slave, error) {
	d, ok := r.cfg.device(name)
	if !ok {
		return nil, fmt.Errorf("no device %q", name)
	}
	return twi.NewSlave(d.Address, d.RegWidth)
}

func (r *rig) eeprom(name string) (*eeprom24.Device, error) {
	d, ok := r.cfg.device(name)
	if !ok {
		return nil, fmt.Errorf("no device %q", name)
	}
	if d.Kind != kindEEPROM24 {
		return nil, fmt.Errorf("device %q is a %s, not an eeprom24", name, d.Kind)
	}
	return eeprom24.New(r.m, d.Address, d.eeprom())
}

// firstOf returns the name of the first device of kind.
func (r *rig) firstOf(kind deviceKind) (string, bool) {
	for _, d := range r.cfg.Devices {
		if d.Kind == kind {
			return d.Name, true
		}
	}
	return "", false
}

func (r *rig) dumpTrace(w io.Writer) {
	for _, e := range r.p.Events() {
		fmt.Fprintln(w, "  "+e.String())
	}
}
