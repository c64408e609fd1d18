// Package twi is a blocking master-mode driver for a two-wire (I2C/TWI) bus
// peripheral. It frames register-addressed reads and writes to 7-bit slaves,
// polls the peripheral under a millisecond watchdog, recovers the bus after
// NACKs, timeouts and arbitration loss, and retries whole transactions.
//
// A Master owns one peripheral. It is not a lock: a second Communicate while
// one is running gets StatusBusy without touching the bus. Use an Owner to
// share a Master between goroutines.
package twi

import (
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"tinygo.org/x/drivers"

	"twi-go/errcode"
	"twi-go/x/mathx"
	"twi-go/x/timex"
)

// Status is the collapsed outcome of a transaction.
type Status uint8

const (
	StatusOK    Status = iota // every step acknowledged
	StatusBusy                // another transaction was in flight, nothing sent
	StatusNoAck               // retries exhausted
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusBusy:
		return "busy"
	case StatusNoAck:
		return "no_ack"
	}
	return "invalid"
}

// Err maps the status onto errcode, nil for StatusOK.
func (s Status) Err() error {
	switch s {
	case StatusOK:
		return nil
	case StatusBusy:
		return errcode.Busy
	default:
		return errcode.NoAck
	}
}

// RetryDelay separates attempts of a failed transaction.
const RetryDelay = 5 * time.Millisecond

// Probe range used by Scan (reserved addresses excluded).
const (
	scanFirst = 0x08
	scanLast  = 0x77
)

// Compile-time check: stock TinyGo device drivers can sit on a Master.
var _ drivers.I2C = (*Master)(nil)

// Master drives one TWI peripheral.
type Master struct {
	regs Regs
	dec  Decoder
	clk  timex.Clock
	log  zerolog.Logger

	speed     Speed
	maxSpeed  Speed
	retries   uint8
	timeoutMs uint16
	cpuHz     uint32

	busy atomic.Bool

	// counters, read through Stats from any goroutine
	attempts atomic.Uint32
	failures atomic.Uint32
	resets   atomic.Uint32
}

// Stats are running counters since New.
type Stats struct {
	Attempts uint32 // transaction attempts, retries included
	Failures uint32 // failed attempts
	Resets   uint32 // bus resets
}

// New binds a Master to regs. The peripheral is not touched until Init.
func New(regs Regs, cfg Config) *Master {
	m := &Master{
		regs:     regs,
		dec:      cfg.Decoder,
		clk:      cfg.Clock,
		cpuHz:    cfg.CPUHz,
		maxSpeed: cfg.MaxSpeed,
	}
	if m.dec == nil {
		m.dec = AVR
	}
	if m.clk == nil {
		m.clk = timex.System()
	}
	if m.cpuHz == 0 {
		m.cpuHz = DefaultCPUHz
	}
	if m.maxSpeed == 0 {
		m.maxSpeed = SpeedFast
	}
	if cfg.Logger != nil {
		m.log = *cfg.Logger
	} else {
		m.log = zerolog.Nop()
	}
	m.speed = ClampSpeed(cfg.Speed, m.maxSpeed)
	m.SetRetries(cfg.Retries)
	m.SetTimeout(cfg.TimeoutMs)
	return m
}

// Init enables the peripheral at speed: bit rate programmed, acknowledge and
// module enable armed. Pin muxing and pull-ups are the board's business.
func (m *Master) Init(speed Speed) Speed {
	return m.SetSpeed(speed)
}

// Uninit disables the peripheral and releases the bus lines.
func (m *Master) Uninit() {
	m.regs.SetControl(0)
}

// SetSpeed snaps speed onto a supported tier, reprograms the bit-rate
// divider with the module disabled, re-arms it and returns the applied speed.
func (m *Master) SetSpeed(speed Speed) Speed {
	m.speed = ClampSpeed(speed, m.maxSpeed)

	m.regs.SetControl(m.regs.Control() &^ CtlEn)
	m.regs.SetStatus(m.regs.Status() &^ (stPS0 | stPS1))
	m.regs.SetBitRate(BitRate(m.cpuHz, m.speed))
	m.Reset()

	m.log.Debug().Uint16("khz", uint16(m.speed)).Msg("twi speed set")
	return m.speed
}

// SetRetries clamps n to [0, MaxRetries] and returns the applied value.
func (m *Master) SetRetries(n uint8) uint8 {
	m.retries = mathx.Min(n, MaxRetries)
	return m.retries
}

// SetTimeout clamps ms to [0, MaxTimeoutMs] and returns the applied value.
func (m *Master) SetTimeout(ms uint16) uint16 {
	m.timeoutMs = mathx.Min(ms, MaxTimeoutMs)
	return m.timeoutMs
}

func (m *Master) Speed() Speed       { return m.speed }
func (m *Master) Retries() uint8     { return m.retries }
func (m *Master) Timeout() uint16    { return m.timeoutMs }
func (m *Master) IsBusy() bool       { return m.busy.Load() }
func (m *Master) Decoder() Decoder   { return m.dec }
func (m *Master) Clock() timex.Clock { return m.clk }

func (m *Master) Stats() Stats {
	return Stats{
		Attempts: m.attempts.Load(),
		Failures: m.failures.Load(),
		Resets:   m.resets.Load(),
	}
}

// dispatch reserves the bus and runs attempt until it succeeds or the retry
// budget is spent. It returns errcode.Busy untouched when the bus is taken.
func (m *Master) dispatch(op string, attempt func() error) error {
	if !m.busy.CompareAndSwap(false, true) {
		return errcode.Busy
	}
	defer m.busy.Store(false)

	err := m.try(attempt)
	for retry := m.retries; retryable(err) && retry > 0; retry-- {
		m.log.Debug().Str("op", op).Str("cause", errcode.Of(err).Error()).
			Uint8("left", retry).Msg("twi retry")
		m.clk.Sleep(RetryDelay)
		err = m.try(attempt)
	}
	if err != nil {
		m.log.Debug().Str("op", op).Err(err).Msg("twi transaction failed")
	}
	return err
}

// retryable reports whether err came off the bus. Caller mistakes such as an
// empty buffer fail the same way every time.
func retryable(err error) bool {
	return err != nil && errcode.Of(err) != errcode.InvalidParams
}

func (m *Master) try(attempt func() error) error {
	m.attempts.Add(1)
	err := attempt()
	if err != nil {
		m.failures.Add(1)
	}
	return err
}

// Communicate runs one read or write through the slave's strategy with the
// configured retry policy. The result is also stored in the slave.
func (m *Master) Communicate(s *Slave, reg uint16, data []byte, dir Dir) Status {
	st := s.strategy(dir)
	err := m.dispatch(dir.String(), func() error {
		var err error
		if dir == DirRead {
			err = st.Read(m, s, reg, data)
		} else {
			err = st.Write(m, s, reg, data)
		}
		if errcode.IsBusFault(errcode.Of(err)) {
			// Device and cursor may disagree after any bus failure.
			s.Invalidate()
		}
		return err
	})
	switch {
	case err == nil:
		s.status, s.err = StatusOK, nil
	case err == errcode.Busy:
		s.status, s.err = StatusBusy, err
	default:
		s.status, s.err = StatusNoAck, err
	}
	return s.status
}

// Write sends data to register reg of s.
func (m *Master) Write(s *Slave, reg uint16, data []byte) Status {
	return m.Communicate(s, reg, data, DirWrite)
}

// Read fills buf from register reg of s.
func (m *Master) Read(s *Slave, reg uint16, buf []byte) Status {
	return m.Communicate(s, reg, buf, DirRead)
}

// WriteNext continues writing at the slave's cursor.
func (m *Master) WriteNext(s *Slave, data []byte) Status {
	return m.Write(s, s.RegAddr(), data)
}

// ReadNext continues reading at the slave's cursor.
func (m *Master) ReadNext(s *Slave, buf []byte) Status {
	return m.Read(s, s.RegAddr(), buf)
}

// Tx implements drivers.I2C: write w, then read r after a repeated start,
// as one retried transaction. With both empty it only probes the address.
// Errors are errcode values; bus faults carry their cause.
func (m *Master) Tx(addr uint16, w, r []byte) error {
	if addr > MaxAddr {
		return errcode.InvalidParams
	}
	a := uint8(addr)
	err := m.dispatch("tx", func() error { return m.tx(a, w, r) })
	if err == nil || err == errcode.Busy {
		return err
	}
	return &errcode.E{C: errcode.NoAck, Op: "twi.tx", Err: err}
}

func (m *Master) tx(addr uint8, w, r []byte) error {
	if err := m.Start(); err != nil {
		return err
	}
	if len(w) > 0 || len(r) == 0 {
		if err := m.SendAddress(addr, DirWrite); err != nil {
			return err
		}
		for _, b := range w {
			if err := m.WriteByte(b); err != nil {
				return err
			}
		}
		if len(r) == 0 {
			return m.Stop()
		}
		if err := m.Start(); err != nil {
			return err
		}
	}
	if err := m.SendAddress(addr, DirRead); err != nil {
		return err
	}
	return m.readInto(r)
}

// Scan probes every non-reserved address once, without retries, and returns
// those that acknowledged.
func (m *Master) Scan() []uint8 {
	saved := m.retries
	m.retries = 0
	defer func() { m.retries = saved }()

	var found []uint8
	for a := uint8(scanFirst); a <= scanLast; a++ {
		if m.Tx(uint16(a), nil, nil) == nil {
			found = append(found, a)
		}
	}
	return found
}
