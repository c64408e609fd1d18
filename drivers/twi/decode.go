package twi

// Cond is a peripheral-independent reading of the status register.
type Cond uint8

const (
	CondUnknown Cond = iota
	CondStart
	CondRepeatedStart
	CondArbLost
	CondAddrWriteAck
	CondAddrWriteNack
	CondAddrReadAck
	CondAddrReadNack
	CondDataTxAck
	CondDataTxNack
	CondDataRxAck
	CondDataRxNack
)

var condNames = [...]string{
	CondUnknown:       "unknown",
	CondStart:         "start",
	CondRepeatedStart: "repeated_start",
	CondArbLost:       "arbitration_lost",
	CondAddrWriteAck:  "sla_w_ack",
	CondAddrWriteNack: "sla_w_nack",
	CondAddrReadAck:   "sla_r_ack",
	CondAddrReadNack:  "sla_r_nack",
	CondDataTxAck:     "data_tx_ack",
	CondDataTxNack:    "data_tx_nack",
	CondDataRxAck:     "data_rx_ack",
	CondDataRxNack:    "data_rx_nack",
}

func (c Cond) String() string {
	if int(c) < len(condNames) {
		return condNames[c]
	}
	return "unknown"
}

// Decoder translates a raw status register value. It is the only
// peripheral-specific piece the state machine depends on.
type Decoder interface {
	Decode(status uint8) Cond
}

// DecoderFunc adapts a plain function to Decoder.
type DecoderFunc func(status uint8) Cond

func (f DecoderFunc) Decode(status uint8) Cond { return f(status) }

// AVR TWI master status codes (TWSR & 0xF8).
const (
	AVRStart         = 0x08
	AVRRepeatedStart = 0x10
	AVRAddrWriteAck  = 0x18
	AVRAddrWriteNack = 0x20
	AVRDataTxAck     = 0x28
	AVRDataTxNack    = 0x30
	AVRArbLost       = 0x38
	AVRAddrReadAck   = 0x40
	AVRAddrReadNack  = 0x48
	AVRDataRxAck     = 0x50
	AVRDataRxNack    = 0x58
	AVRNoInfo        = 0xF8

	avrStatusMask = 0xF8
)

// AVR decodes the ATmega TWI status register. Prescaler bits are masked off.
var AVR Decoder = DecoderFunc(decodeAVR)

func decodeAVR(status uint8) Cond {
	switch status & avrStatusMask {
	case AVRStart:
		return CondStart
	case AVRRepeatedStart:
		return CondRepeatedStart
	case AVRArbLost:
		return CondArbLost
	case AVRAddrWriteAck:
		return CondAddrWriteAck
	case AVRAddrWriteNack:
		return CondAddrWriteNack
	case AVRAddrReadAck:
		return CondAddrReadAck
	case AVRAddrReadNack:
		return CondAddrReadNack
	case AVRDataTxAck:
		return CondDataTxAck
	case AVRDataTxNack:
		return CondDataTxNack
	case AVRDataRxAck:
		return CondDataRxAck
	case AVRDataRxNack:
		return CondDataRxNack
	default:
		return CondUnknown
	}
}
