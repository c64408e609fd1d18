package twi

import (
	"context"
	"sync/atomic"
	"time"

	"tinygo.org/x/drivers"

	"twi-go/errcode"
)

// -----------------------------------------------------------------------------
// Owner (one worker per bus)
// -----------------------------------------------------------------------------

// request lifecycle; the worker and the caller race to move it off queued
const (
	reqQueued int32 = iota
	reqRunning
	reqAbandoned
)

// request posted to the bus worker
type ownerReq struct {
	fn    func(m *Master) error
	done  chan error // buffered(1); the worker replies once fn has run
	state atomic.Int32
}

// abandon withdraws a request that the worker has not picked up yet.
func (r *ownerReq) abandon() bool {
	return r.state.CompareAndSwap(reqQueued, reqAbandoned)
}

// Owner confines a Master to a single worker goroutine so that callers on
// other goroutines can share it. Requests are served in arrival order; the
// Master's own busy check never trips because only the worker calls it.
type Owner struct {
	m    *Master
	reqs chan *ownerReq
	quit chan struct{}
}

// NewOwner starts the worker. queueLen <= 0 selects 16.
func NewOwner(m *Master, queueLen int) *Owner {
	if queueLen <= 0 {
		queueLen = 16
	}
	o := &Owner{
		m:    m,
		reqs: make(chan *ownerReq, queueLen),
		quit: make(chan struct{}),
	}
	go o.loop()
	return o
}

func (o *Owner) loop() {
	for {
		select {
		case req := <-o.reqs:
			if !req.state.CompareAndSwap(reqQueued, reqRunning) {
				continue
			}
			req.done <- req.fn(o.m)
		case <-o.quit:
			return
		}
	}
}

// Close stops the worker. Queued requests are dropped.
func (o *Owner) Close() { close(o.quit) }

// Exec runs fn on the worker and returns its error.
//
// errcode.Busy means the request could not be queued before ctx ended;
// errcode.Timeout means it was queued but ctx ended before the worker took
// it. In both cases fn never runs. Once fn has started Exec waits for it:
// the Master's own watchdog bounds the wait. A closed owner answers
// errcode.Unsupported.
func (o *Owner) Exec(ctx context.Context, fn func(m *Master) error) error {
	select {
	case <-o.quit:
		return errcode.Unsupported
	default:
	}
	req := &ownerReq{fn: fn, done: make(chan error, 1)}

	select {
	case o.reqs <- req:
	case <-o.quit:
		return errcode.Unsupported
	case <-ctx.Done():
		return errcode.Busy
	}

	select {
	case err := <-req.done:
		return err
	case <-o.quit:
		if req.abandon() {
			return errcode.Unsupported
		}
	case <-ctx.Done():
		if req.abandon() {
			return errcode.Timeout
		}
	}
	return <-req.done
}

// Write is Master.Write on the worker.
func (o *Owner) Write(ctx context.Context, s *Slave, reg uint16, data []byte) Status {
	return o.comm(ctx, s, reg, data, DirWrite)
}

// Read is Master.Read on the worker.
func (o *Owner) Read(ctx context.Context, s *Slave, reg uint16, buf []byte) Status {
	return o.comm(ctx, s, reg, buf, DirRead)
}

func (o *Owner) comm(ctx context.Context, s *Slave, reg uint16, data []byte, dir Dir) Status {
	var st Status
	err := o.Exec(ctx, func(m *Master) error {
		st = m.Communicate(s, reg, data, dir)
		return nil
	})
	if err != nil {
		// fn did not run: nothing went on the bus.
		return StatusBusy
	}
	return st
}

// I2C returns a drivers.I2C view of the owner. timeout bounds each Tx
// (enqueue and completion); 0 waits indefinitely.
func (o *Owner) I2C(timeout time.Duration) drivers.I2C {
	return ownerI2C{o: o, timeout: timeout}
}

// ownerI2C adapts the owner to tinygo.org/x/drivers.I2C.
type ownerI2C struct {
	o       *Owner
	timeout time.Duration // 0 => no deadline
}

// Ensure compile-time conformance with drivers.I2C
var _ drivers.I2C = ownerI2C{}

func (d ownerI2C) Tx(addr uint16, w, r []byte) error {
	ctx := context.Background()
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}
	return d.o.Exec(ctx, func(m *Master) error { return m.Tx(addr, w, r) })
}
