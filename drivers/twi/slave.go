package twi

import "twi-go/errcode"

// RegWidth is the width of a slave's internal register address.
type RegWidth uint8

const (
	RegNone RegWidth = iota // no register map, plain byte stream
	Reg8                    // one address byte
	Reg16                   // two address bytes, high byte first
)

func (w RegWidth) String() string {
	switch w {
	case RegNone:
		return "none"
	case Reg8:
		return "8bit"
	case Reg16:
		return "16bit"
	}
	return "invalid"
}

// noCursor is the cursor value of a fresh or invalidated descriptor.
//
// Caveat: a 16-bit device accessed first at register 0xFFFF will not get its
// address framed. Touch any other register first.
const noCursor uint16 = 0xFFFF

// Strategy performs one attempt of a read or write against a slave. The
// Master calls it with the bus reserved and owns retries; implementations
// drive the bus through the Master's primitives and return the first error.
type Strategy interface {
	Write(m *Master, s *Slave, reg uint16, data []byte) error
	Read(m *Master, s *Slave, reg uint16, buf []byte) error
}

// Slave describes one remote device. It is owned by the caller; the Master
// only updates its cursor and last status.
type Slave struct {
	addr  uint8
	width RegWidth
	reg   uint16 // register cursor

	rd, wr Strategy

	status Status
	err    error
}

// NewSlave returns a descriptor using the Registered strategy in both
// directions. It fails when addr is not a 7-bit address.
func NewSlave(addr uint8, width RegWidth) (*Slave, error) {
	s := &Slave{
		rd:  Registered,
		wr:  Registered,
		reg: noCursor,
	}
	if err := s.SetAddr(addr); err != nil {
		return nil, err
	}
	_ = s.SetRegWidth(width)
	return s, nil
}

// SetAddr changes the slave address. Addresses above 0x7F are rejected and
// leave the descriptor unchanged.
func (s *Slave) SetAddr(addr uint8) error {
	if addr > MaxAddr {
		return errcode.InvalidParams
	}
	s.addr = addr
	return nil
}

// SetRegWidth changes the register address width. Unknown widths select
// Reg16 and report InvalidParams.
func (s *Slave) SetRegWidth(w RegWidth) error {
	if w > Reg16 {
		s.width = Reg16
		return errcode.InvalidParams
	}
	s.width = w
	return nil
}

// SetStrategy replaces the read or write implementation. nil restores
// Registered.
func (s *Slave) SetStrategy(dir Dir, st Strategy) {
	if st == nil {
		st = Registered
	}
	if dir == DirRead {
		s.rd = st
	} else {
		s.wr = st
	}
}

func (s *Slave) strategy(dir Dir) Strategy {
	if dir == DirRead {
		return s.rd
	}
	return s.wr
}

// Invalidate forgets the register cursor so the next access frames its
// register address.
func (s *Slave) Invalidate() { s.reg = noCursor }

func (s *Slave) Addr() uint8        { return s.addr }
func (s *Slave) RegWidth() RegWidth { return s.width }

// RegAddr is the register the next contiguous access would hit.
func (s *Slave) RegAddr() uint16 { return s.reg }

// Status is the outcome of the last Communicate call on this slave.
func (s *Slave) Status() Status { return s.status }

// Err is the cause of the last failed attempt, nil after success. It carries
// the detail (timeout, NACK, arbitration loss) that Status collapses.
func (s *Slave) Err() error { return s.err }
