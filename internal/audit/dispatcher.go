package audit

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// dropLogEvery throttles the drop warning to one line per this many drops.
const dropLogEvery = 1000

// Config controls dispatcher buffering.
type Config struct {
	Enabled    bool
	BufferSize int
	// DropIfFull discards events while the buffer is full instead of
	// blocking the emitting request.
	DropIfFull bool
	Logger     *zap.Logger
}

// Dispatcher hands events to a single sink goroutine through a bounded
// queue. A nil *Dispatcher is valid and discards everything.
type Dispatcher struct {
	sink       Sink
	queue      chan Event
	stop       chan struct{}
	dropIfFull bool
	logger     *zap.Logger

	worker   sync.WaitGroup
	stopping atomic.Bool
	once     sync.Once
	seq      atomic.Uint64
	dropped  atomic.Uint64
}

// NewDispatcher starts the sink goroutine. It returns nil when auditing is
// disabled.
func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if sink == nil {
		sink = NoOpSink{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	d := &Dispatcher{
		sink:       sink,
		queue:      make(chan Event, max(cfg.BufferSize, 1)),
		stop:       make(chan struct{}),
		dropIfFull: cfg.DropIfFull,
		logger:     logger,
	}
	d.worker.Go(d.loop)
	return d
}

func (d *Dispatcher) loop() {
	for {
		select {
		case ev := <-d.queue:
			d.deliver(ev)
		case <-d.stop:
			d.drain()
			return
		}
	}
}

// drain flushes what is still queued once Close was called.
func (d *Dispatcher) drain() {
	for {
		select {
		case ev := <-d.queue:
			d.deliver(ev)
		default:
			return
		}
	}
}

// deliver shields the worker from a panicking sink.
func (d *Dispatcher) deliver(ev Event) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("audit sink panicked", zap.String("event", ev.Type), zap.Any("panic", r))
		}
	}()
	d.sink.Emit(context.Background(), ev)
}

// Emit stamps ev.Seq, queues ev and reports whether it was accepted. In
// drop mode a full queue rejects immediately; otherwise Emit waits for room,
// ctx, or Close.
func (d *Dispatcher) Emit(ctx context.Context, ev Event) bool {
	if d == nil || d.stopping.Load() {
		return false
	}
	ev.Seq = d.seq.Add(1)

	if d.dropIfFull {
		select {
		case d.queue <- ev:
			return true
		default:
			d.recordDrop(ev)
			return false
		}
	}

	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case d.queue <- ev:
		return true
	case <-ctx.Done():
		return false
	case <-d.stop:
		return false
	}
}

func (d *Dispatcher) recordDrop(ev Event) {
	n := d.dropped.Add(1)
	if n == 1 || n%dropLogEvery == 0 {
		d.logger.Warn("audit queue full, dropping events", zap.String("event", ev.Type), zap.Uint64("dropped", n))
	}
}

// Close stops accepting events, flushes the queue and waits for the sink.
// It is safe to call more than once.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.once.Do(func() {
		d.stopping.Store(true)
		close(d.stop)
		d.worker.Wait()
	})
}

// Dropped is the number of events discarded because the queue was full.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}
