package timex

import "time"

// NowMs returns Unix milliseconds as int64.
func NowMs() int64 { return time.Now().UnixMilli() }

// Clock is the time source used by polled watchdogs: a free-running
// millisecond counter and a blocking delay.
//
// Millis may wrap. Callers measure intervals with ElapsedMs, never by
// comparing absolute readings.
type Clock interface {
	Millis() uint32
	Sleep(d time.Duration)
}

// ElapsedMs returns now-start modulo 2^32. The result is correct across one
// counter wrap, which covers any interval shorter than ~49 days.
func ElapsedMs(start, now uint32) uint32 { return now - start }

// Elapsed16 is ElapsedMs for targets whose tick counter is only 16 bits wide.
// Intervals must stay below 65.5 s.
func Elapsed16(start, now uint16) uint16 { return now - start }

type monotonic struct{ t0 time.Time }

// System returns a Clock backed by the runtime's monotonic clock.
func System() Clock { return monotonic{t0: time.Now()} }

func (m monotonic) Millis() uint32      { return uint32(time.Since(m.t0).Milliseconds()) }
func (monotonic) Sleep(d time.Duration) { time.Sleep(d) }
