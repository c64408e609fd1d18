// Package eeprom24 drives 24Cxx serial EEPROMs through a twi.Master.
//
// Small parts (24C01..24C16) take one address byte and select 256-byte
// blocks with the low bits of the device address; large parts (24C32 and up)
// take a 16-bit address. Writes are split on page boundaries and each page is
// followed by the part's write cycle.
//
//	d, _ := eeprom24.New(m, 0x50, eeprom24.C24C02)
//	d.WriteAt([]byte("hello"), 0x10)
//	d.ReadAt(buf, 0x10)
package eeprom24

import (
	"io"
	"time"

	"twi-go/drivers/twi"
	"twi-go/errcode"
	"twi-go/x/timex"
)

// Bus is the part of twi.Master the driver needs.
type Bus interface {
	Write(s *twi.Slave, reg uint16, data []byte) twi.Status
	Read(s *twi.Slave, reg uint16, buf []byte) twi.Status
}

// Config describes one EEPROM part.
type Config struct {
	Size       int           // bytes
	PageSize   int           // write page, power of two
	WriteCycle time.Duration // self-timed write cycle after each page
	Wide       bool          // 16-bit memory address
}

// Common parts.
var (
	C24C02  = Config{Size: 256, PageSize: 8, WriteCycle: 5 * time.Millisecond}
	C24C16  = Config{Size: 2048, PageSize: 16, WriteCycle: 5 * time.Millisecond}
	C24C256 = Config{Size: 32768, PageSize: 64, WriteCycle: 5 * time.Millisecond, Wide: true}
)

const blockSize = 256

// Device is one EEPROM. It keeps an io.Seeker position for Read and Write;
// ReadAt and WriteAt ignore it.
type Device struct {
	bus    Bus
	cfg    Config
	clk    timex.Clock
	slaves []*twi.Slave // one per device address (block)
	pos    int64
}

// New checks cfg and builds the slave descriptors starting at base. The
// device is not touched.
func New(bus Bus, base uint8, cfg Config) (*Device, error) {
	if err := cfg.validate(base); err != nil {
		return nil, err
	}
	d := &Device{bus: bus, cfg: cfg, clk: timex.System()}

	width := twi.Reg8
	if cfg.Wide {
		width = twi.Reg16
	}
	blocks := cfg.blocks()
	for i := 0; i < blocks; i++ {
		s, err := twi.NewSlave(base+uint8(i), width)
		if err != nil {
			return nil, err
		}
		d.slaves = append(d.slaves, s)
	}
	return d, nil
}

func (c Config) validate(base uint8) error {
	bad := func(msg string) error {
		return &errcode.E{C: errcode.InvalidParams, Op: "eeprom24.new", Msg: msg}
	}
	switch {
	case c.Size <= 0:
		return bad("size must be positive")
	case c.PageSize <= 0 || c.PageSize&(c.PageSize-1) != 0:
		return bad("page size must be a power of two")
	case c.PageSize > c.Size:
		return bad("page larger than device")
	case c.Wide && c.Size > 1<<16:
		return bad("wide parts address at most 64 KiB")
	case !c.Wide && c.Size > 8*blockSize:
		return bad("narrow parts address at most 2 KiB")
	case !c.Wide && c.Size > blockSize && c.Size%blockSize != 0:
		return bad("narrow parts must be whole 256-byte blocks")
	}
	if int(base)+c.blocks()-1 > twi.MaxAddr {
		return bad("device address out of range")
	}
	return nil
}

// blocks is the number of device addresses the part answers to.
func (c Config) blocks() int {
	if c.Wide || c.Size <= blockSize {
		return 1
	}
	return c.Size / blockSize
}

// SetClock replaces the clock used to wait out write cycles.
func (d *Device) SetClock(c timex.Clock) { d.clk = c }

func (d *Device) Size() int64 { return int64(d.cfg.Size) }

// locate maps a memory offset to its slave and register address, forgetting
// the cursor of every other block since the part has one shared counter.
func (d *Device) locate(off int) (*twi.Slave, uint16) {
	if d.cfg.Wide {
		return d.slaves[0], uint16(off)
	}
	b := off / blockSize
	for i, s := range d.slaves {
		if i != b {
			s.Invalidate()
		}
	}
	return d.slaves[b], uint16(off % blockSize)
}

// ReadAt implements io.ReaderAt. Reads are split at block boundaries on
// narrow parts; a read running past the end returns io.EOF with the bytes
// that fit.
func (d *Device) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, errcode.Wrap("eeprom24.read", errcode.InvalidParams)
	}
	if off >= d.Size() {
		return 0, io.EOF
	}
	want := p
	if rem := d.Size() - off; int64(len(p)) > rem {
		p = p[:rem]
	}

	n := 0
	for n < len(p) {
		at := int(off) + n
		chunk := len(p) - n
		if !d.cfg.Wide {
			chunk = min(chunk, blockSize-at%blockSize)
		}
		s, reg := d.locate(at)
		if st := d.bus.Read(s, reg, p[n:n+chunk]); st != twi.StatusOK {
			return n, d.fail("eeprom24.read", s, st)
		}
		n += chunk
	}
	if n < len(want) {
		return n, io.EOF
	}
	return n, nil
}

// WriteAt implements io.WriterAt. Each page gets its own transaction with the
// address framed, followed by the write cycle.
func (d *Device) WriteAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, errcode.Wrap("eeprom24.write", errcode.InvalidParams)
	}
	if off >= d.Size() {
		if len(p) == 0 {
			return 0, nil
		}
		return 0, io.EOF
	}
	full := len(p)
	if rem := d.Size() - off; int64(len(p)) > rem {
		p = p[:rem]
	}

	n := 0
	for n < len(p) {
		at := int(off) + n
		chunk := min(len(p)-n, d.cfg.PageSize-at%d.cfg.PageSize)
		s, reg := d.locate(at)
		// The part's counter rolls over inside the page, so never trust the
		// cursor across a write.
		s.Invalidate()
		st := d.bus.Write(s, reg, p[n:n+chunk])
		s.Invalidate()
		if st != twi.StatusOK {
			return n, d.fail("eeprom24.write", s, st)
		}
		d.clk.Sleep(d.cfg.WriteCycle)
		n += chunk
	}
	if n < full {
		return n, io.EOF
	}
	return n, nil
}

func (d *Device) fail(op string, s *twi.Slave, st twi.Status) error {
	cause := s.Err()
	if cause == nil {
		cause = st.Err()
	}
	return &errcode.E{C: errcode.Of(st.Err()), Op: op, Err: cause}
}

// Read implements io.Reader at the current position.
func (d *Device) Read(p []byte) (int, error) {
	n, err := d.ReadAt(p, d.pos)
	d.pos += int64(n)
	return n, err
}

// Write implements io.Writer at the current position.
func (d *Device) Write(p []byte) (int, error) {
	n, err := d.WriteAt(p, d.pos)
	d.pos += int64(n)
	return n, err
}

// Seek implements io.Seeker. Positions outside [0, Size] are rejected.
func (d *Device) Seek(offset int64, whence int) (int64, error) {
	var p int64
	switch whence {
	case io.SeekStart:
		p = offset
	case io.SeekCurrent:
		p = d.pos + offset
	case io.SeekEnd:
		p = d.Size() + offset
	default:
		return d.pos, &errcode.E{C: errcode.InvalidParams, Op: "eeprom24.seek", Msg: "bad whence"}
	}
	if p < 0 || p > d.Size() {
		return d.pos, &errcode.E{C: errcode.InvalidParams, Op: "eeprom24.seek", Msg: "position out of range"}
	}
	d.pos = p
	return p, nil
}

var (
	_ io.ReaderAt        = (*Device)(nil)
	_ io.WriterAt        = (*Device)(nil)
	_ io.ReadWriteSeeker = (*Device)(nil)
)
