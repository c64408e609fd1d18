// Package twisim simulates an AVR-style TWI master peripheral and the slaves
// attached to its bus, for host builds and tests.
//
// Every command completes instantly unless Hang is set. The simulator keeps
// an ordered log of bus events and of every control register write so tests
// can assert on exact call sequences.
package twisim

import (
	"strconv"
	"sync"

	"twi-go/drivers/twi"
	"twi-go/x/conv"
)

// Ensure the simulator satisfies the register contract at compile time.
var _ twi.Regs = (*Peripheral)(nil)

// Device is a slave on the simulated bus.
type Device interface {
	// Address is the 7-bit bus address the device answers to.
	Address() uint8
	// Begin is called after the device's SLA+R/W; false NACKs it.
	Begin(read bool) bool
	// Write receives one data byte; false NACKs it.
	Write(b byte) bool
	// Read supplies one data byte. ack is the master's answer to it.
	Read(ack bool) byte
	// End is called on stop, or when a repeated start abandons the transfer.
	End()
}

// EventKind classifies a bus event.
type EventKind uint8

const (
	EvStart EventKind = iota
	EvRepStart
	EvAddr
	EvWrite
	EvRead
	EvStop
	EvReset
	EvFault
)

func (k EventKind) String() string {
	switch k {
	case EvStart:
		return "START"
	case EvRepStart:
		return "RSTART"
	case EvAddr:
		return "ADDR"
	case EvWrite:
		return "WRITE"
	case EvRead:
		return "READ"
	case EvStop:
		return "STOP"
	case EvReset:
		return "RESET"
	case EvFault:
		return "FAULT"
	}
	return "?"
}

// Event is one entry of the bus log.
type Event struct {
	Kind EventKind
	Byte byte // address byte, written or read data
	Ack  bool // slave ACK for ADDR/WRITE, master ACK for READ
}

func (e Event) String() string {
	switch e.Kind {
	case EvAddr, EvWrite, EvRead:
		var hex [4]byte
		return e.Kind.String() + " " + string(conv.Hex8(hex[:], e.Byte)) + " ack=" + strconv.FormatBool(e.Ack)
	}
	return e.Kind.String()
}

type busState uint8

const (
	stIdle busState = iota
	stStarted
	stAddressed
)

// Peripheral is the simulated register window.
type Peripheral struct {
	mu sync.Mutex

	ctl, status, data, bitRate uint8

	state  busState
	dev    Device
	read   bool
	devs   map[uint8]Device
	events []Event
	ctlLog []uint8

	// Hang leaves the completion flag clear forever (and the stop bit set).
	Hang bool
	// LoseArbitration makes the next command report arbitration loss.
	LoseArbitration bool
}

// New returns an idle peripheral with devs attached.
func New(devs ...Device) *Peripheral {
	p := &Peripheral{devs: map[uint8]Device{}, status: twi.AVRNoInfo}
	for _, d := range devs {
		p.Attach(d)
	}
	return p
}

// Attach puts d on the bus, replacing any device at the same address.
func (p *Peripheral) Attach(d Device) {
	p.mu.Lock()
	p.devs[d.Address()&twi.MaxAddr] = d
	p.mu.Unlock()
}

// Detach removes the device at addr.
func (p *Peripheral) Detach(addr uint8) {
	p.mu.Lock()
	delete(p.devs, addr)
	p.mu.Unlock()
}

// ---- twi.Regs ----

func (p *Peripheral) Control() uint8 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ctl
}

func (p *Peripheral) Status() uint8 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// SetStatus only stores the writable prescaler bits.
func (p *Peripheral) SetStatus(v uint8) {
	p.mu.Lock()
	p.status = p.status&^0x03 | v&0x03
	p.mu.Unlock()
}

func (p *Peripheral) Data() uint8 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.data
}

func (p *Peripheral) SetData(v uint8) {
	p.mu.Lock()
	p.data = v
	p.mu.Unlock()
}

func (p *Peripheral) SetBitRate(v uint8) {
	p.mu.Lock()
	p.bitRate = v
	p.mu.Unlock()
}

// SetControl stores v. Writing TWINT=1 with TWEN launches a command.
func (p *Peripheral) SetControl(v uint8) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.ctlLog = append(p.ctlLog, v)

	if v&twi.CtlEn == 0 {
		// Disabling the module drops the bus.
		if v == 0 {
			p.release()
			p.events = append(p.events, Event{Kind: EvReset})
		}
		p.ctl = v
		return
	}
	if v&twi.CtlInt == 0 {
		p.ctl = v
		return
	}

	if p.Hang {
		p.ctl = v &^ twi.CtlInt
		return
	}

	switch {
	case v&twi.CtlStart != 0:
		p.start()
		p.ctl = v
	case v&twi.CtlStop != 0:
		p.stop()
		p.ctl = v &^ (twi.CtlStop | twi.CtlInt)
	default:
		p.transfer(v&twi.CtlAck != 0)
		p.ctl = v
	}
}

func (p *Peripheral) lostArbitration() bool {
	if !p.LoseArbitration {
		return false
	}
	p.LoseArbitration = false
	p.release()
	p.setStatus(twi.AVRArbLost)
	p.events = append(p.events, Event{Kind: EvFault})
	return true
}

func (p *Peripheral) start() {
	if p.lostArbitration() {
		return
	}
	if p.state == stIdle {
		p.setStatus(twi.AVRStart)
		p.events = append(p.events, Event{Kind: EvStart})
	} else {
		if p.dev != nil {
			p.dev.End()
		}
		p.setStatus(twi.AVRRepeatedStart)
		p.events = append(p.events, Event{Kind: EvRepStart})
	}
	p.state = stStarted
	p.dev = nil
}

func (p *Peripheral) stop() {
	if p.state != stIdle {
		p.events = append(p.events, Event{Kind: EvStop})
	}
	p.release()
	p.setStatus(twi.AVRNoInfo)
}

func (p *Peripheral) release() {
	if p.dev != nil {
		p.dev.End()
	}
	p.dev = nil
	p.state = stIdle
}

func (p *Peripheral) transfer(ack bool) {
	if p.lostArbitration() {
		return
	}
	switch p.state {
	case stStarted:
		b := p.data
		read := b&1 == 1
		d, ok := p.devs[b>>1]
		acked := ok && d.Begin(read)
		p.events = append(p.events, Event{Kind: EvAddr, Byte: b, Ack: acked})
		p.read = read
		switch {
		case acked && read:
			p.setStatus(twi.AVRAddrReadAck)
		case acked:
			p.setStatus(twi.AVRAddrWriteAck)
		case read:
			p.setStatus(twi.AVRAddrReadNack)
		default:
			p.setStatus(twi.AVRAddrWriteNack)
		}
		if acked {
			p.dev = d
		}
		// A NACKed address leaves the master holding the bus until it stops.
		p.state = stAddressed
	case stAddressed:
		if p.dev == nil {
			p.fault()
			return
		}
		if p.read {
			p.data = p.dev.Read(ack)
			p.events = append(p.events, Event{Kind: EvRead, Byte: p.data, Ack: ack})
			if ack {
				p.setStatus(twi.AVRDataRxAck)
			} else {
				p.setStatus(twi.AVRDataRxNack)
			}
			return
		}
		acked := p.dev.Write(p.data)
		p.events = append(p.events, Event{Kind: EvWrite, Byte: p.data, Ack: acked})
		if acked {
			p.setStatus(twi.AVRDataTxAck)
		} else {
			p.setStatus(twi.AVRDataTxNack)
		}
	default:
		p.fault()
	}
}

// fault reports "no relevant state" for a command issued out of sequence.
func (p *Peripheral) fault() {
	p.events = append(p.events, Event{Kind: EvFault})
	p.setStatus(twi.AVRNoInfo)
}

func (p *Peripheral) setStatus(code uint8) {
	p.status = code | p.status&0x03
}

// ---- inspection ----

// Events returns a copy of the bus log.
func (p *Peripheral) Events() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Event(nil), p.events...)
}

// ControlWrites returns a copy of every value written to the control register.
func (p *Peripheral) ControlWrites() []uint8 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]uint8(nil), p.ctlLog...)
}

// BitRate is the last divider programmed.
func (p *Peripheral) BitRate() uint8 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.bitRate
}

// ClearLog drops the recorded events and control writes.
func (p *Peripheral) ClearLog() {
	p.mu.Lock()
	p.events = nil
	p.ctlLog = nil
	p.mu.Unlock()
}

// Count returns how many events of kind k are logged.
func (p *Peripheral) Count(k EventKind) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e.Kind == k {
			n++
		}
	}
	return n
}

// Idle reports whether no transfer is in progress.
func (p *Peripheral) Idle() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state == stIdle
}
