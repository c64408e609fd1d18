package twi

// Regs is the register window of a TWI peripheral. The bit layout of the
// control register follows the AVR TWCR; status codes are interpreted by a
// Decoder so other peripherals only need a status translation.
type Regs interface {
	Control() uint8
	SetControl(v uint8)
	Status() uint8
	SetStatus(v uint8)
	Data() uint8
	SetData(v uint8)
	SetBitRate(v uint8)
}

// Control register bits.
const (
	CtlInt   = 1 << 7 // TWINT: operation complete; write 1 to launch the next command
	CtlAck   = 1 << 6 // TWEA: acknowledge received bytes
	CtlStart = 1 << 5 // TWSTA
	CtlStop  = 1 << 4 // TWSTO: self-clears once the stop is on the wire
	CtlWC    = 1 << 3 // TWWC: write collision (read-only)
	CtlEn    = 1 << 2 // TWEN: peripheral enable
	CtlIE    = 1 << 0 // TWIE: interrupt enable (unused, blocking driver)
)

// Status register prescaler bits (TWPS1:0).
const (
	stPS0 = 1 << 0
	stPS1 = 1 << 1
)

// Dir is the R/W bit appended to a slave address.
type Dir uint8

const (
	DirWrite Dir = 0
	DirRead  Dir = 1
)

func (d Dir) String() string {
	if d == DirRead {
		return "read"
	}
	return "write"
}

// MaxAddr is the largest 7-bit slave address.
const MaxAddr = 0x7F
