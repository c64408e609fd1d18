package twi

import "twi-go/errcode"

// Registered is the default strategy: transfers framed with the slave's
// register address, which is skipped when the access continues at the
// slave's cursor.
var Registered Strategy = registered{}

// Stream is a pass-through strategy: start, address, bytes, stop. Register
// address and cursor are ignored.
var Stream Strategy = stream{}

type registered struct{}

func (registered) Write(m *Master, s *Slave, reg uint16, data []byte) error {
	if len(data) == 0 {
		return errcode.InvalidParams
	}
	if err := m.Start(); err != nil {
		return err
	}
	if err := m.SendAddress(s.addr, DirWrite); err != nil {
		return err
	}
	if s.width != RegNone && reg != s.reg {
		if err := m.sendRegAddr(s, reg); err != nil {
			return err
		}
	}
	for _, b := range data {
		if err := m.WriteByte(b); err != nil {
			return err
		}
		s.reg++
	}
	return m.Stop()
}

func (registered) Read(m *Master, s *Slave, reg uint16, buf []byte) error {
	if len(buf) == 0 {
		return errcode.InvalidParams
	}
	if s.width != RegNone && reg != s.reg {
		if err := m.Start(); err != nil {
			return err
		}
		if err := m.SendAddress(s.addr, DirWrite); err != nil {
			return err
		}
		if err := m.sendRegAddr(s, reg); err != nil {
			return err
		}
	}
	// Repeated start when the address phase above held the bus.
	if err := m.Start(); err != nil {
		return err
	}
	if err := m.SendAddress(s.addr, DirRead); err != nil {
		return err
	}
	last := len(buf) - 1
	for i := range buf {
		b, err := m.ReadByte(i != last)
		if err != nil {
			return err
		}
		buf[i] = b
		s.reg++
	}
	return m.Stop()
}

// sendRegAddr moves the cursor to reg and puts the address bytes on the wire,
// high byte first for 16-bit maps. The cursor is moved before sending so a
// failed send still shows the address that was attempted.
func (m *Master) sendRegAddr(s *Slave, reg uint16) error {
	s.reg = reg
	if s.width >= Reg16 {
		if err := m.WriteByte(byte(reg >> 8)); err != nil {
			return err
		}
	}
	return m.WriteByte(byte(reg))
}

type stream struct{}

func (stream) Write(m *Master, s *Slave, _ uint16, data []byte) error {
	if len(data) == 0 {
		return errcode.InvalidParams
	}
	if err := m.Start(); err != nil {
		return err
	}
	if err := m.SendAddress(s.addr, DirWrite); err != nil {
		return err
	}
	for _, b := range data {
		if err := m.WriteByte(b); err != nil {
			return err
		}
	}
	return m.Stop()
}

func (stream) Read(m *Master, s *Slave, _ uint16, buf []byte) error {
	if len(buf) == 0 {
		return errcode.InvalidParams
	}
	if err := m.Start(); err != nil {
		return err
	}
	if err := m.SendAddress(s.addr, DirRead); err != nil {
		return err
	}
	return m.readInto(buf)
}

// readInto clocks len(buf) bytes in, NACKing the last, then stops.
func (m *Master) readInto(buf []byte) error {
	last := len(buf) - 1
	for i := range buf {
		b, err := m.ReadByte(i != last)
		if err != nil {
			return err
		}
		buf[i] = b
	}
	return m.Stop()
}
