package twi_test

import (
	"bytes"
	"reflect"
	"testing"
	"time"

	"twi-go/drivers/twi"
	"twi-go/drivers/twi/twisim"
	"twi-go/errcode"
)

// stepClock advances one millisecond per reading, so spin loops reach their
// deadline without real waiting.
type stepClock struct {
	now   uint32
	slept time.Duration
}

func (c *stepClock) Millis() uint32 { c.now++; return c.now }
func (c *stepClock) Sleep(d time.Duration) {
	c.slept += d
	c.now += uint32(d / time.Millisecond)
}

func newBus(t *testing.T, devs ...twisim.Device) (*twi.Master, *twisim.Peripheral, *stepClock) {
	t.Helper()
	p := twisim.New(devs...)
	clk := &stepClock{}
	cfg := twi.DefaultConfig()
	cfg.Clock = clk
	m := twi.New(p, cfg)
	m.Init(twi.SpeedStandard)
	p.ClearLog()
	return m, p, clk
}

func mustSlave(t *testing.T, addr uint8, w twi.RegWidth) *twi.Slave {
	t.Helper()
	s, err := twi.NewSlave(addr, w)
	if err != nil {
		t.Fatalf("NewSlave(%#x): %v", addr, err)
	}
	return s
}

func trace(p *twisim.Peripheral) []string {
	var out []string
	for _, e := range p.Events() {
		out = append(out, e.String())
	}
	return out
}

func expectTrace(t *testing.T, p *twisim.Peripheral, want ...string) {
	t.Helper()
	got := trace(p)
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("bus trace mismatch\n got: %q\nwant: %q", got, want)
	}
}

// -----------------------------------------------------------------------------
// Configuration
// -----------------------------------------------------------------------------

func TestSpeedClamp(t *testing.T) {
	cases := []struct {
		max, req, want twi.Speed
	}{
		{twi.SpeedFast, 0, twi.SpeedStandard},
		{twi.SpeedFast, 100, twi.SpeedStandard},
		{twi.SpeedFast, 200, twi.SpeedStandard},
		{twi.SpeedFast, 300, twi.SpeedFast},
		{twi.SpeedFast, 1000, twi.SpeedFast},
		{twi.SpeedFast, 65535, twi.SpeedFast},
		{twi.SpeedHigh, 900, twi.SpeedFastPlus},
		{twi.SpeedHigh, 2500, twi.SpeedHigh},
		{twi.SpeedHigh, 9999, twi.SpeedHigh},
	}
	for _, c := range cases {
		p := twisim.New()
		cfg := twi.DefaultConfig()
		cfg.MaxSpeed = c.max
		m := twi.New(p, cfg)
		got := m.SetSpeed(c.req)
		if got != c.want || m.Speed() != c.want {
			t.Fatalf("max=%d SetSpeed(%d) = %d (Speed()=%d), want %d", c.max, c.req, got, m.Speed(), c.want)
		}
	}
}

func TestInitProgramsBitRate(t *testing.T) {
	p := twisim.New()
	m := twi.New(p, twi.DefaultConfig())

	m.Init(twi.SpeedStandard)
	if p.BitRate() != 72 {
		t.Fatalf("100kHz @16MHz: TWBR = %d, want 72", p.BitRate())
	}
	m.SetSpeed(twi.SpeedFast)
	if p.BitRate() != 12 {
		t.Fatalf("400kHz @16MHz: TWBR = %d, want 12", p.BitRate())
	}
	if got := p.Control(); got != twi.CtlAck|twi.CtlEn {
		t.Fatalf("control after init = %#02x, want ACK|EN", got)
	}
	m.Uninit()
	if p.Control() != 0 {
		t.Fatalf("control after uninit = %#02x, want 0", p.Control())
	}
}

func TestBitRateFloorsAtZero(t *testing.T) {
	if got := twi.BitRate(1_000_000, twi.SpeedFast); got != 0 {
		t.Fatalf("BitRate(1MHz, 400k) = %d, want 0", got)
	}
}

func TestRetriesAndTimeoutClamp(t *testing.T) {
	m := twi.New(twisim.New(), twi.DefaultConfig())
	if m.Retries() != twi.DefaultRetries || m.Timeout() != twi.DefaultTimeoutMs {
		t.Fatalf("defaults = %d/%d", m.Retries(), m.Timeout())
	}
	for _, c := range []struct{ in, want uint8 }{{0, 0}, {5, 5}, {8, 8}, {9, 8}, {255, 8}} {
		if got := m.SetRetries(c.in); got != c.want || m.Retries() != c.want {
			t.Fatalf("SetRetries(%d) = %d, want %d", c.in, got, c.want)
		}
	}
	for _, c := range []struct{ in, want uint16 }{{0, 0}, {250, 250}, {500, 500}, {501, 500}, {65535, 500}} {
		if got := m.SetTimeout(c.in); got != c.want || m.Timeout() != c.want {
			t.Fatalf("SetTimeout(%d) = %d, want %d", c.in, got, c.want)
		}
	}
}

// -----------------------------------------------------------------------------
// Slave descriptor
// -----------------------------------------------------------------------------

func TestSlaveAddressBounds(t *testing.T) {
	s := mustSlave(t, 0x42, twi.Reg8)
	for a := 0; a <= 0x7F; a++ {
		if err := s.SetAddr(uint8(a)); err != nil {
			t.Fatalf("SetAddr(%#x): %v", a, err)
		}
		if s.Addr() != uint8(a) {
			t.Fatalf("Addr() = %#x, want %#x", s.Addr(), a)
		}
	}
	for a := 0x80; a <= 0xFF; a++ {
		if err := s.SetAddr(uint8(a)); err != errcode.InvalidParams {
			t.Fatalf("SetAddr(%#x) err = %v, want invalid_params", a, err)
		}
		if s.Addr() != 0x7F {
			t.Fatalf("address changed to %#x by rejected SetAddr(%#x)", s.Addr(), a)
		}
	}
	if _, err := twi.NewSlave(0x80, twi.Reg8); err == nil {
		t.Fatalf("NewSlave(0x80) succeeded")
	}
}

func TestSlaveRegWidth(t *testing.T) {
	s := mustSlave(t, 0x10, twi.RegNone)
	if s.RegAddr() != 0xFFFF {
		t.Fatalf("fresh cursor = %#x, want 0xFFFF", s.RegAddr())
	}
	if err := s.SetRegWidth(twi.Reg8); err != nil || s.RegWidth() != twi.Reg8 {
		t.Fatalf("SetRegWidth(Reg8) = %v, width %v", err, s.RegWidth())
	}
	if err := s.SetRegWidth(twi.RegWidth(7)); err == nil || s.RegWidth() != twi.Reg16 {
		t.Fatalf("invalid width: err=%v width=%v, want error and 16bit", err, s.RegWidth())
	}
}

// -----------------------------------------------------------------------------
// Transactions
// -----------------------------------------------------------------------------

func TestRoundTrip8(t *testing.T) {
	mem := twisim.NewMemory(0x50, 1, 256, 0xFF)
	m, p, _ := newBus(t, mem)
	s := mustSlave(t, 0x50, twi.Reg8)

	if st := m.Write(s, 0x00, []byte{0xAA, 0xBB}); st != twi.StatusOK {
		t.Fatalf("Write = %v (%v)", st, s.Err())
	}
	buf := make([]byte, 2)
	if st := m.Read(s, 0x00, buf); st != twi.StatusOK {
		t.Fatalf("Read = %v (%v)", st, s.Err())
	}
	if !bytes.Equal(buf, []byte{0xAA, 0xBB}) {
		t.Fatalf("read back % x, want aa bb", buf)
	}
	if s.Status() != twi.StatusOK || s.RegAddr() != 0x02 {
		t.Fatalf("status=%v cursor=%#x", s.Status(), s.RegAddr())
	}
	expectTrace(t, p,
		"START", "ADDR 0xa0 ack=true", "WRITE 0x00 ack=true", "WRITE 0xaa ack=true", "WRITE 0xbb ack=true", "STOP",
		"START", "ADDR 0xa0 ack=true", "WRITE 0x00 ack=true",
		"RSTART", "ADDR 0xa1 ack=true", "READ 0xaa ack=true", "READ 0xbb ack=false", "STOP",
	)
}

func TestRoundTrip16AndReadNext(t *testing.T) {
	mem := twisim.NewMemory(0x51, 2, 0x2000, 0)
	m, p, _ := newBus(t, mem)
	s := mustSlave(t, 0x51, twi.Reg16)

	data := []byte{1, 2, 3, 4}
	if st := m.Write(s, 0x1234, data); st != twi.StatusOK {
		t.Fatalf("Write = %v (%v)", st, s.Err())
	}
	if !bytes.Equal(mem.Mem[0x1234:0x1238], data) {
		t.Fatalf("device memory % x", mem.Mem[0x1234:0x1238])
	}
	ev := p.Events()
	if ev[2].Byte != 0x12 || ev[3].Byte != 0x34 {
		t.Fatalf("16-bit framing sent %#x %#x, want 0x12 0x34", ev[2].Byte, ev[3].Byte)
	}

	buf := make([]byte, 2)
	if st := m.Read(s, 0x1234, buf); st != twi.StatusOK || !bytes.Equal(buf, []byte{1, 2}) {
		t.Fatalf("Read = %v % x", st, buf)
	}
	// The cursor sits on 0x1236 and the device pointer agrees: no framing.
	p.ClearLog()
	if st := m.ReadNext(s, buf); st != twi.StatusOK || !bytes.Equal(buf, []byte{3, 4}) {
		t.Fatalf("ReadNext = %v % x", st, buf)
	}
	expectTrace(t, p,
		"START", "ADDR 0xa3 ack=true", "READ 0x03 ack=true", "READ 0x04 ack=false", "STOP",
	)
}

func TestContiguousWriteSkipsRegisterAddress(t *testing.T) {
	dev := &twisim.Script{Addr: 0x20}
	m, p, _ := newBus(t, dev)
	s := mustSlave(t, 0x20, twi.Reg8)

	if st := m.Write(s, 0x10, []byte{0x01}); st != twi.StatusOK {
		t.Fatalf("first write = %v", st)
	}
	expectTrace(t, p, "START", "ADDR 0x40 ack=true", "WRITE 0x10 ack=true", "WRITE 0x01 ack=true", "STOP")

	// The cursor advances past every byte, so repeating 0x10 would re-frame;
	// continuing at the cursor (0x11) is what elides the address bytes.
	p.ClearLog()
	if st := m.Write(s, 0x11, []byte{0x02}); st != twi.StatusOK {
		t.Fatalf("contiguous write = %v", st)
	}
	expectTrace(t, p, "START", "ADDR 0x40 ack=true", "WRITE 0x02 ack=true", "STOP")

	// Cursor is now 0x12; going back to 0x11 frames the address again.
	p.ClearLog()
	if st := m.Write(s, 0x11, []byte{0x03}); st != twi.StatusOK {
		t.Fatalf("rewind write = %v", st)
	}
	expectTrace(t, p, "START", "ADDR 0x40 ack=true", "WRITE 0x11 ack=true", "WRITE 0x03 ack=true", "STOP")
}

func TestNoRegisterSlaveIsPlainStream(t *testing.T) {
	dev := &twisim.Script{Addr: 0x3C, Fill: 0x5A}
	m, p, _ := newBus(t, dev)
	s := mustSlave(t, 0x3C, twi.RegNone)

	if st := m.Write(s, 0x99, []byte{0xAB}); st != twi.StatusOK {
		t.Fatalf("Write = %v", st)
	}
	buf := make([]byte, 1)
	if st := m.Read(s, 0x99, buf); st != twi.StatusOK || buf[0] != 0x5A {
		t.Fatalf("Read = %v %#x", st, buf[0])
	}
	expectTrace(t, p,
		"START", "ADDR 0x78 ack=true", "WRITE 0xab ack=true", "STOP",
		"START", "ADDR 0x79 ack=true", "READ 0x5a ack=false", "STOP",
	)
}

func TestStreamStrategyIgnoresRegister(t *testing.T) {
	dev := &twisim.Script{Addr: 0x21}
	m, p, _ := newBus(t, dev)
	s := mustSlave(t, 0x21, twi.Reg16)
	s.SetStrategy(twi.DirWrite, twi.Stream)

	if st := m.Write(s, 0x0102, []byte{0xEE}); st != twi.StatusOK {
		t.Fatalf("Write = %v", st)
	}
	expectTrace(t, p, "START", "ADDR 0x42 ack=true", "WRITE 0xee ack=true", "STOP")
	if s.RegAddr() != 0xFFFF {
		t.Fatalf("stream write moved the cursor to %#x", s.RegAddr())
	}

	s.SetStrategy(twi.DirWrite, nil)
	p.ClearLog()
	m.Write(s, 0x0102, []byte{0xEE})
	if got := len(p.Events()); got != 6 {
		t.Fatalf("registered write after reset of strategy: %d events, want 6", got)
	}
}

func TestZeroLengthFailsWithoutStart(t *testing.T) {
	m, p, clk := newBus(t, &twisim.Script{Addr: 0x20})
	s := mustSlave(t, 0x20, twi.Reg8)

	if st := m.Write(s, 0, nil); st != twi.StatusNoAck {
		t.Fatalf("zero-length write = %v, want no_ack", st)
	}
	if st := m.Read(s, 0, []byte{}); st != twi.StatusNoAck {
		t.Fatalf("zero-length read = %v, want no_ack", st)
	}
	if n := p.Count(twisim.EvStart); n != 0 {
		t.Fatalf("%d start conditions issued", n)
	}
	if s.Err() != errcode.InvalidParams || clk.slept != 0 {
		t.Fatalf("err=%v slept=%v, want invalid_params and no retry delay", s.Err(), clk.slept)
	}
}

func TestAddressNackRetriesWholeTransaction(t *testing.T) {
	for _, retries := range []uint8{0, 1, 3, 8} {
		dev := &twisim.Script{Addr: 0x20, NackAddr: true}
		m, p, clk := newBus(t, dev)
		m.SetRetries(retries)
		s := mustSlave(t, 0x20, twi.Reg8)

		if st := m.Write(s, 0x05, []byte{1, 2}); st != twi.StatusNoAck {
			t.Fatalf("retries=%d: status %v, want no_ack", retries, st)
		}
		want := int(retries) + 1
		if p.Count(twisim.EvStart) != want || p.Count(twisim.EvStop) != want {
			t.Fatalf("retries=%d: %d starts / %d stops, want %d each",
				retries, p.Count(twisim.EvStart), p.Count(twisim.EvStop), want)
		}
		if clk.slept != time.Duration(retries)*twi.RetryDelay {
			t.Fatalf("retries=%d: slept %v", retries, clk.slept)
		}
		if errcode.Of(s.Err()) != errcode.AddrNack || s.Status() != twi.StatusNoAck {
			t.Fatalf("retries=%d: err=%v status=%v", retries, s.Err(), s.Status())
		}
		if st := m.Stats(); st.Attempts != uint32(want) || st.Failures != uint32(want) {
			t.Fatalf("retries=%d: stats %+v", retries, st)
		}
		if !p.Idle() {
			t.Fatalf("retries=%d: bus left busy", retries)
		}
	}
}

func TestDataNackStopsAndInvalidatesCursor(t *testing.T) {
	dev := &twisim.Script{Addr: 0x20, NackAfter: 3}
	m, p, _ := newBus(t, dev)
	m.SetRetries(0)
	s := mustSlave(t, 0x20, twi.Reg8)

	if st := m.Write(s, 0x40, []byte{1, 2, 3}); st != twi.StatusNoAck {
		t.Fatalf("status %v, want no_ack", st)
	}
	expectTrace(t, p,
		"START", "ADDR 0x40 ack=true", "WRITE 0x40 ack=true", "WRITE 0x01 ack=true", "WRITE 0x02 ack=false", "STOP",
	)
	if errcode.Of(s.Err()) != errcode.DataNack {
		t.Fatalf("err = %v, want data_nack", s.Err())
	}
	if s.RegAddr() != 0xFFFF {
		t.Fatalf("cursor after failure = %#x, want invalidated", s.RegAddr())
	}
}

func TestRetryRecoversAfterTransientNack(t *testing.T) {
	mem := twisim.NewMemory(0x50, 1, 256, 0)
	m, p, _ := newBus(t)
	s := mustSlave(t, 0x50, twi.Reg8)

	// Device absent on the first attempt, present afterwards.
	flaky := &flakyAttach{p: p, dev: mem}
	s.SetStrategy(twi.DirWrite, flaky)
	if st := m.Write(s, 0x07, []byte{0x99}); st != twi.StatusOK {
		t.Fatalf("status %v (%v)", st, s.Err())
	}
	if mem.Mem[0x07] != 0x99 || flaky.calls != 2 {
		t.Fatalf("mem=%#x calls=%d", mem.Mem[0x07], flaky.calls)
	}
}

// flakyAttach attaches its device only from the second attempt on.
type flakyAttach struct {
	p     *twisim.Peripheral
	dev   twisim.Device
	calls int
}

func (f *flakyAttach) Write(m *twi.Master, s *twi.Slave, reg uint16, data []byte) error {
	f.calls++
	if f.calls == 2 {
		f.p.Attach(f.dev)
	}
	return twi.Registered.Write(m, s, reg, data)
}

func (f *flakyAttach) Read(m *twi.Master, s *twi.Slave, reg uint16, buf []byte) error {
	return twi.Registered.Read(m, s, reg, buf)
}

// reentrant issues a nested transaction from inside a running one.
type reentrant struct {
	inner    *twi.Slave
	got      twi.Status
	evBefore int
	evAfter  int
	p        *twisim.Peripheral
}

func (r *reentrant) Write(m *twi.Master, s *twi.Slave, reg uint16, data []byte) error {
	if !m.IsBusy() {
		panic("strategy ran without the bus reserved")
	}
	r.evBefore = len(r.p.Events())
	r.got = m.Write(r.inner, 0x00, []byte{0x01})
	r.evAfter = len(r.p.Events())
	return twi.Registered.Write(m, s, reg, data)
}

func (r *reentrant) Read(m *twi.Master, s *twi.Slave, reg uint16, buf []byte) error {
	return twi.Registered.Read(m, s, reg, buf)
}

func TestBusyShortCircuits(t *testing.T) {
	m, p, clk := newBus(t, &twisim.Script{Addr: 0x20}, &twisim.Script{Addr: 0x21})
	outer := mustSlave(t, 0x20, twi.Reg8)
	inner := mustSlave(t, 0x21, twi.Reg8)
	r := &reentrant{inner: inner, p: p}
	outer.SetStrategy(twi.DirWrite, r)

	if st := m.Write(outer, 0x00, []byte{0xAA}); st != twi.StatusOK {
		t.Fatalf("outer = %v", st)
	}
	if r.got != twi.StatusBusy || inner.Status() != twi.StatusBusy || inner.Err() != errcode.Busy {
		t.Fatalf("inner status %v/%v err %v, want busy", r.got, inner.Status(), inner.Err())
	}
	if r.evAfter != r.evBefore {
		t.Fatalf("busy call touched the bus: %d events", r.evAfter-r.evBefore)
	}
	if clk.slept != 0 {
		t.Fatalf("busy call was retried (slept %v)", clk.slept)
	}
	if m.IsBusy() {
		t.Fatalf("busy flag left set")
	}
	if inner.RegAddr() != 0xFFFF {
		t.Fatalf("busy call moved the cursor")
	}
}

// -----------------------------------------------------------------------------
// Watchdog and recovery
// -----------------------------------------------------------------------------

func TestTimeoutResetsBus(t *testing.T) {
	m, p, clk := newBus(t, &twisim.Script{Addr: 0x20})
	m.SetRetries(0)
	m.SetTimeout(25)
	p.Hang = true
	s := mustSlave(t, 0x20, twi.Reg8)

	start := clk.now
	if st := m.Write(s, 0, []byte{1}); st != twi.StatusNoAck {
		t.Fatalf("status %v, want no_ack", st)
	}
	if errcode.Of(s.Err()) != errcode.Timeout {
		t.Fatalf("err = %v, want timeout", s.Err())
	}
	if clk.now-start < 25 {
		t.Fatalf("gave up after %dms, before the 25ms timeout", clk.now-start)
	}
	w := p.ControlWrites()
	tail := w[len(w)-3:]
	want := []uint8{0, twi.CtlAck, twi.CtlAck | twi.CtlEn}
	if !reflect.DeepEqual(tail, want) {
		t.Fatalf("control writes end with % x, want cleared then re-armed % x", tail, want)
	}
	if p.Count(twisim.EvReset) != 1 || m.Stats().Resets == 0 {
		t.Fatalf("reset not observed")
	}
}

func TestStartTimeoutPrimitive(t *testing.T) {
	m, p, _ := newBus(t)
	m.SetTimeout(3)
	p.Hang = true
	if err := m.Start(); err != errcode.Timeout {
		t.Fatalf("Start = %v, want timeout", err)
	}
	if err := m.Stop(); err != errcode.Timeout {
		t.Fatalf("Stop = %v, want timeout", err)
	}
}

func TestArbitrationLossResetsAndRetries(t *testing.T) {
	mem := twisim.NewMemory(0x50, 1, 16, 0)
	m, p, _ := newBus(t, mem)
	m.SetRetries(1)
	s := mustSlave(t, 0x50, twi.Reg8)

	p.LoseArbitration = true
	if st := m.Write(s, 0x03, []byte{0x77}); st != twi.StatusOK {
		t.Fatalf("status %v (%v)", st, s.Err())
	}
	if mem.Mem[3] != 0x77 {
		t.Fatalf("data not written after recovery")
	}
	if p.Count(twisim.EvReset) != 1 {
		t.Fatalf("%d resets, want 1", p.Count(twisim.EvReset))
	}
}

func TestArbitrationLossMidTransfer(t *testing.T) {
	m, p, _ := newBus(t, twisim.NewMemory(0x50, 1, 16, 0))

	if err := m.Start(); err != nil {
		t.Fatal(err)
	}
	p.LoseArbitration = true
	if err := m.SendAddress(0x50, twi.DirWrite); err != errcode.ArbitrationLost {
		t.Fatalf("SendAddress = %v, want arbitration_lost", err)
	}
	if p.Count(twisim.EvReset) != 1 {
		t.Fatalf("no reset after arbitration loss")
	}
}

// fixedRegs completes every command at once and always reports status.
type fixedRegs struct {
	status uint8
	ctl    []uint8
	cur    uint8
}

func (f *fixedRegs) Control() uint8 { return f.cur }
func (f *fixedRegs) SetControl(v uint8) {
	f.ctl = append(f.ctl, v)
	f.cur = v &^ twi.CtlStop
}
func (f *fixedRegs) Status() uint8    { return f.status }
func (f *fixedRegs) SetStatus(uint8)  {}
func (f *fixedRegs) Data() uint8      { return 0x3C }
func (f *fixedRegs) SetData(uint8)    {}
func (f *fixedRegs) SetBitRate(uint8) {}

func (f *fixedRegs) sawStop() bool {
	for _, v := range f.ctl {
		if v&twi.CtlStop != 0 {
			return true
		}
	}
	return false
}

func TestReadByteStatusMismatch(t *testing.T) {
	cases := []struct {
		name     string
		status   uint8
		ack      bool
		wantErr  error
		wantStop bool
	}{
		{"ack as requested", twi.AVRDataRxAck, true, nil, false},
		{"nack as requested", twi.AVRDataRxNack, false, nil, false},
		{"nack when ack wanted", twi.AVRDataRxNack, true, errcode.DataNack, true},
		{"ack when nack wanted", twi.AVRDataRxAck, false, errcode.DataNack, true},
		{"arbitration lost", twi.AVRArbLost, true, errcode.ArbitrationLost, false},
		{"junk", twi.AVRDataTxAck, true, errcode.Protocol, false},
	}
	for _, c := range cases {
		r := &fixedRegs{status: c.status}
		m := twi.New(r, twi.DefaultConfig())
		b, err := m.ReadByte(c.ack)
		if err != c.wantErr {
			t.Fatalf("%s: err = %v, want %v", c.name, err, c.wantErr)
		}
		if err == nil && b != 0x3C {
			t.Fatalf("%s: byte %#x", c.name, b)
		}
		if r.sawStop() != c.wantStop {
			t.Fatalf("%s: stop issued = %v, want %v", c.name, r.sawStop(), c.wantStop)
		}
	}
}

func TestStartRejectsUnexpectedStatusWithoutReset(t *testing.T) {
	r := &fixedRegs{status: twi.AVRDataTxAck}
	m := twi.New(r, twi.DefaultConfig())
	if err := m.Start(); err != errcode.Protocol {
		t.Fatalf("Start = %v, want protocol", err)
	}
	if m.Stats().Resets != 0 {
		t.Fatalf("unexpected start status caused a reset")
	}
}

// -----------------------------------------------------------------------------
// drivers.I2C adaptor and scan
// -----------------------------------------------------------------------------

func TestTxWriteThenRead(t *testing.T) {
	mem := twisim.NewMemory(0x68, 1, 64, 0)
	m, p, _ := newBus(t, mem)

	if err := m.Tx(0x68, []byte{0x10, 0xDE, 0xAD}, nil); err != nil {
		t.Fatalf("Tx write: %v", err)
	}
	r := make([]byte, 2)
	if err := m.Tx(0x68, []byte{0x10}, r); err != nil {
		t.Fatalf("Tx read: %v", err)
	}
	if !bytes.Equal(r, []byte{0xDE, 0xAD}) {
		t.Fatalf("Tx read % x", r)
	}
	if p.Count(twisim.EvRepStart) != 1 {
		t.Fatalf("write+read did not use a repeated start")
	}
}

func TestTxErrors(t *testing.T) {
	m, _, _ := newBus(t)
	m.SetRetries(0)
	if err := m.Tx(0x80, nil, nil); err != errcode.InvalidParams {
		t.Fatalf("Tx(0x80) = %v", err)
	}
	err := m.Tx(0x33, []byte{1}, nil)
	if errcode.Of(err) != errcode.NoAck {
		t.Fatalf("Tx to absent device = %v, want no_ack", err)
	}
}

func TestScan(t *testing.T) {
	m, _, _ := newBus(t,
		&twisim.Script{Addr: 0x50},
		&twisim.Script{Addr: 0x20},
		&twisim.Script{Addr: 0x03}, // reserved range, never probed
	)
	got := m.Scan()
	if !reflect.DeepEqual(got, []uint8{0x20, 0x50}) {
		t.Fatalf("Scan = % x", got)
	}
	if m.Retries() != twi.DefaultRetries {
		t.Fatalf("Scan did not restore retries")
	}
}
