package twi

import (
	"github.com/rs/zerolog"

	"twi-go/x/mathx"
	"twi-go/x/timex"
)

// Speed is a bus clock rate in kHz.
type Speed uint16

const (
	SpeedStandard Speed = 100  // Standard mode
	SpeedFast     Speed = 400  // Fast mode
	SpeedFastPlus Speed = 1000 // Fast mode plus
	SpeedHigh     Speed = 3400 // High speed
)

var speedTiers = []Speed{SpeedStandard, SpeedFast, SpeedFastPlus, SpeedHigh}

// Limits and defaults for the bus configuration.
const (
	DefaultRetries   = 3
	DefaultTimeoutMs = 100
	MaxRetries       = 8
	MaxTimeoutMs     = 500

	// DefaultCPUHz is the peripheral input clock used for the bit-rate divider.
	DefaultCPUHz = 16_000_000
)

// Config controls bus behaviour. Zero fields take defaults in New, except
// Retries and TimeoutMs where zero is a legal setting; start from
// DefaultConfig unless you mean it.
type Config struct {
	// Speed is the requested bus clock; snapped to a tier by SetSpeed.
	Speed Speed
	// MaxSpeed is the fastest tier the peripheral supports. Default SpeedFast
	// (AVR TWI tops out at 400 kHz).
	MaxSpeed Speed
	// Retries is the number of extra attempts after a failed transaction (0..8).
	Retries uint8
	// TimeoutMs bounds every wait on the peripheral (0..500).
	TimeoutMs uint16
	// CPUHz feeds the bit-rate divider. Default 16 MHz.
	CPUHz uint32

	// Decoder interprets the status register. Default AVR.
	Decoder Decoder
	// Clock is the watchdog time source and retry delay. Default timex.System().
	Clock timex.Clock
	// Logger receives debug events (resets, timeouts, retries). Default Nop.
	Logger *zerolog.Logger
}

// DefaultConfig mirrors the power-on defaults of the driver.
func DefaultConfig() Config {
	return Config{
		Speed:     SpeedStandard,
		MaxSpeed:  SpeedFast,
		Retries:   DefaultRetries,
		TimeoutMs: DefaultTimeoutMs,
		CPUHz:     DefaultCPUHz,
	}
}

// ClampSpeed snaps a requested rate onto the nearest supported tier and caps
// it at max. Zero selects standard mode.
func ClampSpeed(req, max Speed) Speed {
	if max == 0 {
		max = SpeedFast
	}
	s := SpeedStandard
	if req != 0 {
		s = mathx.Nearest(req, speedTiers...)
	}
	return mathx.Min(s, max)
}

// BitRate returns the TWBR value for speed with a prescaler of 1:
// SCL = CPU / (16 + 2*TWBR).
func BitRate(cpuHz uint32, speed Speed) uint8 {
	if speed == 0 {
		speed = SpeedStandard
	}
	div := int64(cpuHz/1000) / int64(speed)
	br := mathx.Clamp((div-16)/2, 0, 0xFF)
	return uint8(br)
}
