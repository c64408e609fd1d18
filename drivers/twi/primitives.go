package twi

import (
	"twi-go/errcode"
	"twi-go/x/timex"
)

// Bus primitives. Each one issues a single command, then spins on the
// peripheral until it reports completion or the watchdog expires. They
// recover the bus themselves before returning an error:
//
//	NACK from the slave          -> Stop
//	arbitration loss, junk state -> Reset
//	watchdog expiry              -> Reset

// await spins until done reports true for the control register. On expiry it
// resets the bus and returns errcode.Timeout.
func (m *Master) await(done func(ctl uint8) bool) error {
	start := m.clk.Millis()
	for !done(m.regs.Control()) {
		if timex.ElapsedMs(start, m.clk.Millis()) >= uint32(m.timeoutMs) {
			m.log.Debug().Uint16("timeout_ms", m.timeoutMs).Msg("twi watchdog expired")
			m.Reset()
			return errcode.Timeout
		}
	}
	return nil
}

func intSet(ctl uint8) bool   { return ctl&CtlInt != 0 }
func stopClear(ctl uint8) bool { return ctl&CtlStop == 0 }

func (m *Master) cond() Cond { return m.dec.Decode(m.regs.Status()) }

// Reset releases SCL/SDA and re-arms the peripheral: control cleared, then
// acknowledge and enable set again.
func (m *Master) Reset() {
	m.regs.SetControl(0)
	m.regs.SetControl(m.regs.Control() | CtlAck)
	m.regs.SetControl(m.regs.Control() | CtlEn)
	m.resets.Add(1)
}

// Start sends a start condition, or a repeated start when the bus is held.
func (m *Master) Start() error {
	m.regs.SetControl(CtlInt | CtlStart | CtlEn)
	if err := m.await(intSet); err != nil {
		return err
	}
	switch c := m.cond(); c {
	case CondStart, CondRepeatedStart:
		return nil
	case CondArbLost:
		m.log.Debug().Msg("twi arbitration lost on start")
		m.Reset()
		return errcode.ArbitrationLost
	default:
		// Left to the caller, which either resets or abandons the transfer.
		return errcode.Protocol
	}
}

// Stop sends a stop condition and waits for the peripheral to put it on the wire.
func (m *Master) Stop() error {
	m.regs.SetControl(CtlInt | CtlEn | CtlStop)
	return m.await(stopClear)
}

// SendAddress transmits the SLA+R/W byte for addr.
func (m *Master) SendAddress(addr uint8, dir Dir) error {
	m.regs.SetData(addr<<1 | uint8(dir))
	m.regs.SetControl(CtlInt | CtlEn)
	if err := m.await(intSet); err != nil {
		return err
	}
	switch c := m.cond(); c {
	case CondAddrWriteAck, CondAddrReadAck:
		return nil
	case CondAddrWriteNack, CondAddrReadNack:
		_ = m.Stop()
		return errcode.AddrNack
	default:
		m.Reset()
		return faultOf(c)
	}
}

// WriteByte transmits one data byte and expects an ACK.
func (m *Master) WriteByte(b byte) error {
	m.regs.SetData(b)
	m.regs.SetControl(CtlInt | CtlEn)
	if err := m.await(intSet); err != nil {
		return err
	}
	switch c := m.cond(); c {
	case CondDataTxAck:
		return nil
	case CondDataTxNack:
		_ = m.Stop()
		return errcode.DataNack
	default:
		m.Reset()
		return faultOf(c)
	}
}

// ReadByte clocks in one byte, answering ACK when ack is true (more bytes
// wanted) and NACK otherwise (last byte).
//
// A reply in the opposite ACK state from the one requested is handled like a
// NACK on the send side (Stop); any other unexpected status resets the bus.
func (m *Master) ReadByte(ack bool) (byte, error) {
	ctl := uint8(CtlInt | CtlEn)
	if ack {
		ctl |= CtlAck
	}
	m.regs.SetControl(ctl)
	if err := m.await(intSet); err != nil {
		return 0, err
	}
	c := m.cond()
	switch {
	case c == CondDataRxAck && ack, c == CondDataRxNack && !ack:
		return m.regs.Data(), nil
	case c == CondDataRxAck, c == CondDataRxNack:
		_ = m.Stop()
		return 0, errcode.DataNack
	default:
		m.Reset()
		return 0, faultOf(c)
	}
}

// faultOf names the error for a status the primitive did not expect.
func faultOf(c Cond) error {
	if c == CondArbLost {
		return errcode.ArbitrationLost
	}
	return errcode.Protocol
}
