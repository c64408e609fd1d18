package main

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"twi-go/drivers/twi"
	"twi-go/drivers/twi/twisim"
	"twi-go/errcode"
)

// ---------- Commands ----------

func (e *env) finish(cmd *cobra.Command, r *rig) {
	if e.opts.trace {
		fmt.Fprintln(cmd.OutOrStdout(), "bus trace:")
		r.dumpTrace(cmd.OutOrStdout())
	}
	st := r.m.Stats()
	e.log.Debug().Uint32("attempts", st.Attempts).Uint32("failures", st.Failures).
		Uint32("resets", st.Resets).Msg("bus stats")
}

func newScanCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "Probe every non-reserved address",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r := e.rig()
			defer e.finish(cmd, r)

			found := r.m.Scan()
			for _, a := range found {
				fmt.Fprintf(cmd.OutOrStdout(), "%#02x\n", a)
			}
			e.log.Info().Int("found", len(found)).Msg("scan done")
			return nil
		},
	}
}

func newWriteCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "write <device> <reg> <hex>...",
		Short: "Write bytes to a device register",
		Args:  cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := parseReg(args[1])
			if err != nil {
				return err
			}
			data, err := parseHex(args[2:])
			if err != nil {
				return err
			}

			r := e.rig()
			defer e.finish(cmd, r)
			s, err := r.slave(args[0])
			if err != nil {
				return err
			}
			if st := r.m.Write(s, reg, data); st != twi.StatusOK {
				return fmt.Errorf("write %s@%#x: %v (%v)", args[0], reg, st, s.Err())
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d byte(s) to %s@%#x\n", len(data), args[0], reg)
			return nil
		},
	}
}

func newReadCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "read <device> <reg> <n>",
		Short: "Read n bytes from a device register",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := parseReg(args[1])
			if err != nil {
				return err
			}
			n, err := strconv.Atoi(args[2])
			if err != nil || n <= 0 {
				return fmt.Errorf("bad length %q", args[2])
			}

			r := e.rig()
			defer e.finish(cmd, r)
			s, err := r.slave(args[0])
			if err != nil {
				return err
			}
			buf := make([]byte, n)
			if st := r.m.Read(s, reg, buf); st != twi.StatusOK {
				return fmt.Errorf("read %s@%#x: %v (%v)", args[0], reg, st, s.Err())
			}
			fmt.Fprintf(cmd.OutOrStdout(), "% x\n", buf)
			return nil
		},
	}
}

func newEEPROMCmd(e *env) *cobra.Command {
	var (
		device string
		offset int64
	)
	cmd := &cobra.Command{
		Use:   "eeprom <text>",
		Short: "Store text in an EEPROM and read it back",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r := e.rig()
			defer e.finish(cmd, r)

			name := device
			if name == "" {
				var ok bool
				if name, ok = r.firstOf(kindEEPROM24); !ok {
					return fmt.Errorf("no eeprom24 device configured")
				}
			}
			d, err := r.eeprom(name)
			if err != nil {
				return err
			}

			text := []byte(args[0])
			if _, err := d.WriteAt(text, offset); err != nil {
				return fmt.Errorf("eeprom write: %w", err)
			}
			got := make([]byte, len(text))
			if _, err := d.ReadAt(got, offset); err != nil {
				return fmt.Errorf("eeprom read: %w", err)
			}
			if !bytes.Equal(got, text) {
				return fmt.Errorf("eeprom read back %q, wrote %q", got, text)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s@%#x: %q\n", name, offset, got)
			return nil
		},
	}
	cmd.Flags().StringVarP(&device, "device", "d", "", "eeprom24 device name (default: first configured)")
	cmd.Flags().Int64VarP(&offset, "offset", "o", 0, "byte offset")
	return cmd
}

func newSelftestCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "selftest",
		Short: "Round-trip every register device and exercise fault recovery",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r := e.rig()
			defer e.finish(cmd, r)
			if failed := selftest(r, cmd.OutOrStdout()); failed > 0 {
				return fmt.Errorf("%d check(s) failed", failed)
			}
			return nil
		},
	}
}

// selftest runs the checks and reports one line per check. It returns the
// number of failures.
func selftest(r *rig, w io.Writer) int {
	failed := 0
	check := func(name string, err error) {
		if err != nil {
			failed++
			fmt.Fprintf(w, "FAIL %-28s %v\n", name, err)
			r.log.Error().Str("check", name).Err(err).Msg("selftest")
			return
		}
		fmt.Fprintf(w, "ok   %s\n", name)
	}

	for _, d := range r.cfg.Devices {
		if d.Kind != kindMemory || d.RegWidth == twi.RegNone {
			continue
		}
		s, err := r.slave(d.Name)
		if err != nil {
			check(d.Name+" descriptor", err)
			continue
		}
		check(d.Name+" round trip", roundTrip(r.m, s))
		check(d.Name+" contiguous read", contiguousRead(r, s))
	}

	if name, ok := r.firstOf(kindEEPROM24); ok {
		check(name+" page write", eepromPages(r, name))
	}

	check("absent device nacks", absentDevice(r))
	check("watchdog recovers bus", watchdog(r))
	return failed
}

var pattern = []byte{0xA5, 0x5A, 0x0F, 0xF0}

func roundTrip(m *twi.Master, s *twi.Slave) error {
	if st := m.Write(s, 0x10, pattern); st != twi.StatusOK {
		return fmt.Errorf("write: %v (%v)", st, s.Err())
	}
	got := make([]byte, len(pattern))
	if st := m.Read(s, 0x10, got); st != twi.StatusOK {
		return fmt.Errorf("read: %v (%v)", st, s.Err())
	}
	if !bytes.Equal(got, pattern) {
		return fmt.Errorf("read back % x", got)
	}
	return nil
}

// contiguousRead reads two halves back to back and checks that the second
// read went out without a register address.
func contiguousRead(r *rig, s *twi.Slave) error {
	half := make([]byte, 2)
	if st := r.m.Read(s, 0x10, half); st != twi.StatusOK {
		return fmt.Errorf("first half: %v", st)
	}
	r.p.ClearLog()
	if st := r.m.ReadNext(s, half); st != twi.StatusOK {
		return fmt.Errorf("second half: %v", st)
	}
	if !bytes.Equal(half, pattern[2:]) {
		return fmt.Errorf("second half % x", half)
	}
	if n := r.p.Count(twisim.EvWrite); n != 0 {
		return fmt.Errorf("%d address byte(s) re-sent", n)
	}
	return nil
}

func eepromPages(r *rig, name string) error {
	d, err := r.eeprom(name)
	if err != nil {
		return err
	}
	// Straddles a page boundary on every preset.
	msg := []byte("two-wire interface")
	if _, err := d.WriteAt(msg, 4); err != nil {
		return err
	}
	got := make([]byte, len(msg))
	if _, err := d.ReadAt(got, 4); err != nil {
		return err
	}
	if !bytes.Equal(got, msg) {
		return fmt.Errorf("read back %q", got)
	}
	return nil
}

func absentDevice(r *rig) error {
	var free uint16 = 0x08
	for ; free <= 0x77; free++ {
		used := false
		for _, d := range r.cfg.Devices {
			if uint16(d.Address) <= free && free < uint16(d.Address)+8 {
				used = true
			}
		}
		if !used {
			break
		}
	}
	err := r.m.Tx(free, []byte{0x00}, nil)
	if errcode.Of(err) != errcode.NoAck {
		return fmt.Errorf("Tx(%#x) = %v, want no_ack", free, err)
	}
	return nil
}

func watchdog(r *rig) error {
	if len(r.cfg.Devices) == 0 {
		return nil
	}
	d := r.cfg.Devices[0]
	s, err := r.slave(d.Name)
	if err != nil {
		return err
	}
	wasHung, retries := r.p.Hang, r.m.Retries()
	r.m.SetRetries(0)
	defer r.m.SetRetries(retries)

	r.p.Hang = true
	st := r.m.Write(s, 0, []byte{0})
	r.p.Hang = wasHung
	if st != twi.StatusNoAck || errcode.Of(s.Err()) != errcode.Timeout {
		return fmt.Errorf("hung write: %v (%v), want timeout", st, s.Err())
	}
	if wasHung {
		return nil
	}
	if st := r.m.Write(s, 0, []byte{0}); st != twi.StatusOK {
		return fmt.Errorf("after reset: %v (%v)", st, s.Err())
	}
	return nil
}

func parseReg(s string) (uint16, error) {
	v, err := strconv.ParseUint(s, 0, 16)
	if err != nil {
		return 0, fmt.Errorf("bad register %q", s)
	}
	return uint16(v), nil
}

// parseHex accepts bytes as separate or joined hex words, with or without 0x.
// An odd-length word is read as if it had a leading zero.
func parseHex(args []string) ([]byte, error) {
	var data []byte
	for _, a := range args {
		w := strings.ReplaceAll(strings.TrimPrefix(strings.ToLower(a), "0x"), ":", "")
		if len(w)%2 == 1 {
			w = "0" + w
		}
		b, err := hex.DecodeString(w)
		if err != nil || len(b) == 0 {
			return nil, fmt.Errorf("bad hex data %q", a)
		}
		data = append(data, b...)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("no hex data")
	}
	return data, nil
}
