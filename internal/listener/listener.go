// Package listener receives IPFIX datagrams over UDP, decodes them on the
// receive goroutine and hands receptions to a pool of workers.
package listener

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/user/pskwatch/internal/ipfix"
	"github.com/user/pskwatch/internal/model"
	"github.com/user/pskwatch/internal/observability"
	"github.com/user/pskwatch/internal/util"
)

// State is the listener lifecycle state.
type State int32

const (
	Stopped State = iota
	Starting
	Running
	Stopping
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Starting:
		return "starting"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

const readErrorBackoff = 50 * time.Millisecond

// Handler processes one decoded reception on a worker goroutine.
type Handler func(ctx context.Context, rec model.Reception)

// BindError is returned by Start when the socket cannot be bound.
type BindError struct {
	Addr string
	Err  error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("bind %s: %v", e.Addr, e.Err)
}

func (e *BindError) Unwrap() error { return e.Err }

// Option customises a Listener.
type Option func(*Listener)

// WithMetrics records listener counters in c.
func WithMetrics(c *observability.Collector) Option {
	return func(l *Listener) { l.metrics = c }
}

// WithDecoder replaces the listener's decoder.
func WithDecoder(d *ipfix.Decoder) Option {
	return func(l *Listener) { l.decoder = d }
}

// Listener owns one UDP socket.
type Listener struct {
	cfg     util.ListenConfig
	handler Handler
	decoder *ipfix.Decoder
	metrics *observability.Collector

	// mu serializes Start and Stop.
	mu       sync.Mutex
	state    atomic.Int32
	conn     net.PacketConn
	q        atomic.Pointer[queue]
	ctx      context.Context
	cancel   context.CancelFunc
	loopDone chan struct{}
	workers  sync.WaitGroup

	datagrams    atomic.Uint64
	bytes        atomic.Uint64
	decodeErrors atomic.Uint64
	receptions   atomic.Uint64
	dropped      atomic.Uint64
	readErrors   atomic.Uint64
}

// New creates a stopped listener.
func New(cfg util.ListenConfig, handler Handler, opts ...Option) *Listener {
	l := &Listener{
		cfg:     cfg,
		handler: handler,
		decoder: ipfix.NewDecoder(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// State returns the current lifecycle state.
func (l *Listener) State() State {
	return State(l.state.Load())
}

func (l *Listener) setState(s State) {
	l.state.Store(int32(s))
}

// Addr returns the bound address, or nil when not running.
func (l *Listener) Addr() net.Addr {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn == nil {
		return nil
	}
	return l.conn.LocalAddr()
}

// Start binds the socket and starts the receive loop and workers.
func (l *Listener) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if s := l.State(); s != Stopped {
		return fmt.Errorf("listener is %s", s)
	}
	l.setState(Starting)

	addr := l.cfg.Addr()
	lc := net.ListenConfig{Control: control(l.cfg.SocketBuffer)}
	conn, err := lc.ListenPacket(context.Background(), "udp", addr)
	if err != nil {
		l.setState(Stopped)
		return &BindError{Addr: addr, Err: err}
	}

	l.conn = conn
	q := newQueue(l.cfg.QueueSize)
	l.q.Store(q)
	l.ctx, l.cancel = context.WithCancel(context.Background())
	l.loopDone = make(chan struct{})

	workers := l.cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		l.workers.Add(1)
		go l.work(l.ctx, q)
	}

	l.setState(Running)
	go l.receive(conn, q, l.loopDone)

	util.Info("listener started", "addr", conn.LocalAddr().String(), "workers", workers)
	return nil
}

// Stop closes the socket, waits for the receive loop, then lets the
// workers drain queued receptions. No reception is handled after Stop
// returns. Calling Stop on a stopped listener is a no-op.
func (l *Listener) Stop() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.State() != Running {
		return nil
	}
	l.setState(Stopping)

	closeErr := l.conn.Close()
	<-l.loopDone

	if q := l.q.Load(); q != nil {
		q.Close()
	}
	l.workers.Wait()
	l.cancel()

	l.conn = nil
	l.setState(Stopped)
	util.Info("listener stopped")

	if closeErr != nil && !errors.Is(closeErr, net.ErrClosed) {
		return fmt.Errorf("close socket: %w", closeErr)
	}
	return nil
}

func (l *Listener) receive(conn net.PacketConn, q *queue, done chan struct{}) {
	defer close(done)

	size := l.cfg.ReadBuffer
	if size < 16 {
		size = 65535
	}
	buf := make([]byte, size)
	timeout := l.cfg.ReceiveTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	for l.State() == Running {
		if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
			if l.State() != Running {
				return
			}
			util.Debug("set read deadline failed", "error", err)
		}

		n, from, err := conn.ReadFrom(buf)
		if err != nil {
			if l.State() != Running || errors.Is(err, net.ErrClosed) {
				return
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			l.readErrors.Add(1)
			l.metrics.IncReadErrors()
			util.Warn("udp read failed", "error", err)
			time.Sleep(readErrorBackoff)
			continue
		}

		l.handleDatagram(q, buf[:n], from)
	}
}

func (l *Listener) handleDatagram(q *queue, data []byte, from net.Addr) {
	l.datagrams.Add(1)
	l.bytes.Add(uint64(len(data)))
	l.metrics.ObserveDatagram(len(data))

	recs, err := l.decoder.Decode(data)
	if err != nil {
		l.decodeErrors.Add(1)
		l.metrics.IncDecodeErrors()
		util.Debug("ipfix decode diagnostics", "from", from.String(), "error", err)
	}
	l.metrics.SetTemplates(l.decoder.Templates())

	l.receptions.Add(uint64(len(recs)))
	l.metrics.AddReceptions(len(recs))
	for _, rec := range recs {
		if q.Push(rec) {
			l.dropped.Add(1)
			l.metrics.IncDropped(observability.DropQueueFull)
		}
	}
	l.metrics.SetQueueLength(q.Len())
}

func (l *Listener) work(ctx context.Context, q *queue) {
	defer l.workers.Done()
	for {
		rec, ok := q.Pop()
		if !ok {
			return
		}
		l.metrics.SetQueueLength(q.Len())
		l.handler(ctx, rec)
	}
}

// Stats returns a snapshot of the listener counters.
func (l *Listener) Stats() model.ListenerStats {
	s := model.ListenerStats{
		State:         l.State().String(),
		Datagrams:     l.datagrams.Load(),
		Bytes:         l.bytes.Load(),
		DecodeErrors:  l.decodeErrors.Load(),
		Receptions:    l.receptions.Load(),
		QueueDropped:  l.dropped.Load(),
		ReadErrors:    l.readErrors.Load(),
		TemplateCount: l.decoder.Templates(),
	}
	if q := l.q.Load(); q != nil {
		s.QueueLength = q.Len()
	}
	return s
}
