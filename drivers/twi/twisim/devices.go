package twisim

// Memory is a register-mapped slave: after SLA+W it takes PtrBytes bytes of
// register pointer (high byte first), then stores data at the pointer,
// auto-incrementing. Reads return data from the pointer, auto-incrementing.
// The pointer wraps at len(Mem) and survives between transfers.
type Memory struct {
	Addr     uint8
	PtrBytes int // 0, 1 or 2
	Mem      []byte
	Ptr      int

	// PageSize, when set (a power of two), makes writes roll over inside the
	// current page like a 24Cxx EEPROM. Reads still run through the array.
	PageSize int

	// ReadOnly NACKs data bytes after the pointer.
	ReadOnly bool

	ptrLeft int
	ptrAcc  int
}

// NewMemory returns a memory device of size bytes filled with fill.
func NewMemory(addr uint8, ptrBytes, size int, fill byte) *Memory {
	m := &Memory{Addr: addr, PtrBytes: ptrBytes, Mem: make([]byte, size)}
	for i := range m.Mem {
		m.Mem[i] = fill
	}
	return m
}

func (m *Memory) Address() uint8 { return m.Addr }

func (m *Memory) Begin(read bool) bool {
	if !read {
		m.ptrLeft = m.PtrBytes
		m.ptrAcc = 0
	}
	return true
}

func (m *Memory) Write(b byte) bool {
	if m.ptrLeft > 0 {
		m.ptrAcc = m.ptrAcc<<8 | int(b)
		m.ptrLeft--
		if m.ptrLeft == 0 {
			m.Ptr = m.wrap(m.ptrAcc)
		}
		return true
	}
	if m.ReadOnly {
		return false
	}
	m.Mem[m.Ptr] = b
	if m.PageSize > 0 {
		m.Ptr = m.Ptr&^(m.PageSize-1) | (m.Ptr+1)&(m.PageSize-1)
	} else {
		m.Ptr = m.wrap(m.Ptr + 1)
	}
	return true
}

func (m *Memory) Read(bool) byte {
	b := m.Mem[m.Ptr]
	m.Ptr = m.wrap(m.Ptr + 1)
	return b
}

func (m *Memory) End() { m.ptrLeft = 0 }

func (m *Memory) wrap(p int) int {
	if len(m.Mem) == 0 {
		return 0
	}
	return p % len(m.Mem)
}

// Script is a device with programmable answers, for fault tests.
type Script struct {
	Addr uint8

	// NackAddr NACKs every SLA+R/W.
	NackAddr bool
	// NackAfter NACKs the data byte with this 1-based index in a write
	// transfer; 0 never NACKs.
	NackAfter int
	// Fill is returned for every read.
	Fill byte

	Begins, Ends int
	Written      []byte

	n int
}

func (s *Script) Address() uint8 { return s.Addr }

func (s *Script) Begin(bool) bool {
	s.Begins++
	s.n = 0
	return !s.NackAddr
}

func (s *Script) Write(b byte) bool {
	s.n++
	if s.NackAfter > 0 && s.n >= s.NackAfter {
		return false
	}
	s.Written = append(s.Written, b)
	return true
}

func (s *Script) Read(bool) byte { return s.Fill }
func (s *Script) End()           { s.Ends++ }
