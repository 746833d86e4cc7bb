// Package live proxies raw student audio to a streaming multimodal endpoint
// and relays the model's replies back to the socket.
package live

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hubenschmidt/maestro-buddy/gateway/internal/metrics"
)

// ErrClosed is returned by Send once the bridge has closed.
var ErrClosed = errors.New("live bridge closed")

// Client notifications for a bridge that ends without a local close.
const (
	RemoteClosedMessage = "Gemini connection closed"
	SendFailedMessage   = "Gemini connection lost"
)

const defaultSetupTimeout = 15 * time.Second

// State is the bridge lifecycle. It only moves forward.
type State int

const (
	StateUninitialized State = iota
	StateConnecting
	StateReady
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateReady:
		return "ready"
	case StateClosed:
		return "closed"
	default:
		return "uninitialized"
	}
}

// Chunk is one message from the remote endpoint.
type Chunk struct {
	SetupComplete bool
	Text          string
	Audio         []byte
}

// Session is an open connection to the endpoint. Receive blocks until a
// message arrives; Close unblocks it.
type Session interface {
	SendAudio(pcm []byte) error
	Receive() (Chunk, error)
	Close() error
}

// Dialer opens sessions.
type Dialer interface {
	Dial(ctx context.Context) (Session, error)
}

// Emitter receives what the bridge forwards to the client. OnChunk is called
// from the bridge goroutine; OnClosed at most once, from whichever side
// noticed the failure.
type Emitter interface {
	OnChunk(text string, audio []byte)
	OnClosed(message string)
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithSetupTimeout bounds the dial and setup handshake.
func WithSetupTimeout(d time.Duration) Option {
	return func(b *Bridge) { b.setupTimeout = d }
}

// Bridge is one connection's realtime audio proxy. A closed bridge is never
// reused; callers build a new one.
type Bridge struct {
	dialer       Dialer
	emit         Emitter
	setupTimeout time.Duration

	mu       sync.Mutex
	state    State
	session  Session
	setupErr error

	ready  chan struct{}
	closed chan struct{}
	done   chan struct{}
}

// NewBridge creates an uninitialized bridge.
func NewBridge(dialer Dialer, emit Emitter, opts ...Option) *Bridge {
	b := &Bridge{
		dialer:       dialer,
		emit:         emit,
		setupTimeout: defaultSetupTimeout,
		ready:        make(chan struct{}),
		closed:       make(chan struct{}),
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// State returns the current lifecycle state.
func (b *Bridge) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Done is closed once the bridge is closed and its goroutine has exited.
func (b *Bridge) Done() <-chan struct{} {
	return b.done
}

// Start begins the asynchronous setup. Only the first call has an effect.
// ctx bounds the whole bridge lifetime.
func (b *Bridge) Start(ctx context.Context) {
	b.mu.Lock()
	if b.state != StateUninitialized {
		b.mu.Unlock()
		return
	}
	b.state = StateConnecting
	b.mu.Unlock()

	metrics.BridgesActive.Inc()
	go b.run(ctx)
}

// Send waits for setup to finish and forwards one audio frame.
func (b *Bridge) Send(ctx context.Context, pcm []byte) error {
	select {
	case <-b.ready:
	case <-b.closed:
		return b.closedErr()
	case <-ctx.Done():
		return ctx.Err()
	}

	b.mu.Lock()
	if b.state != StateReady {
		b.mu.Unlock()
		return b.closedErr()
	}
	sess := b.session
	b.mu.Unlock()

	if err := sess.SendAudio(pcm); err != nil {
		slog.Warn("live send failed", "error", err)
		b.shutdown(SendFailedMessage)
		return fmt.Errorf("send audio: %w", err)
	}
	metrics.AudioFrames.Inc()
	return nil
}

// Close tears the bridge down without notifying the client.
func (b *Bridge) Close() {
	b.shutdown("")
}

// shutdown moves the bridge to closed. A non-empty notice is emitted to the
// client before the session is released.
func (b *Bridge) shutdown(notice string) {
	b.mu.Lock()
	prev := b.state
	if prev == StateClosed {
		b.mu.Unlock()
		return
	}
	b.state = StateClosed
	sess := b.session
	close(b.closed)
	b.mu.Unlock()

	if notice != "" {
		b.emit.OnClosed(notice)
	}
	if sess != nil {
		sess.Close()
	}
	if prev == StateUninitialized {
		close(b.done)
	}
}

func (b *Bridge) closedErr() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.setupErr != nil {
		return fmt.Errorf("%w: %v", ErrClosed, b.setupErr)
	}
	return ErrClosed
}

func (b *Bridge) run(ctx context.Context) {
	defer close(b.done)
	defer metrics.BridgesActive.Dec()

	start := time.Now()
	sess, err := b.setup(ctx)
	if err != nil {
		if b.State() == StateClosed {
			return
		}
		metrics.Errors.WithLabelValues("live_setup", "connect").Inc()
		slog.Error("live setup failed", "error", err)
		b.fail(err)
		return
	}
	metrics.StageDuration.WithLabelValues("live_setup").Observe(time.Since(start).Seconds())

	b.mu.Lock()
	if b.state == StateClosed {
		b.mu.Unlock()
		return
	}
	b.state = StateReady
	close(b.ready)
	b.mu.Unlock()
	slog.Info("live bridge ready")

	stop := context.AfterFunc(ctx, b.Close)
	defer stop()

	for {
		chunk, recvErr := sess.Receive()
		if recvErr != nil {
			b.remoteClosed(recvErr)
			return
		}
		if chunk.Text == "" && len(chunk.Audio) == 0 {
			continue
		}
		b.emit.OnChunk(chunk.Text, chunk.Audio)
	}
}

// setup dials and waits for the endpoint's setup confirmation.
func (b *Bridge) setup(ctx context.Context) (Session, error) {
	dialCtx, cancel := context.WithTimeout(ctx, b.setupTimeout)
	defer cancel()

	sess, err := b.dialer.Dial(dialCtx)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}

	b.mu.Lock()
	if b.state == StateClosed {
		b.mu.Unlock()
		sess.Close()
		return nil, ErrClosed
	}
	b.session = sess
	b.mu.Unlock()

	// Receive has no context; closing the session unblocks it.
	stop := context.AfterFunc(dialCtx, func() { sess.Close() })
	defer stop()

	for {
		chunk, recvErr := sess.Receive()
		if recvErr != nil {
			if dialCtx.Err() != nil {
				return nil, fmt.Errorf("setup: %w", dialCtx.Err())
			}
			return nil, fmt.Errorf("setup: %w", recvErr)
		}
		if chunk.SetupComplete {
			return sess, nil
		}
	}
}

func (b *Bridge) fail(err error) {
	b.mu.Lock()
	if b.state == StateClosed {
		b.mu.Unlock()
		return
	}
	b.state = StateClosed
	b.setupErr = err
	sess := b.session
	close(b.closed)
	b.mu.Unlock()
	if sess != nil {
		sess.Close()
	}
}

// remoteClosed handles the receive loop ending. If the bridge was not closed
// locally the client is told before teardown.
func (b *Bridge) remoteClosed(err error) {
	b.mu.Lock()
	local := b.state == StateClosed
	b.mu.Unlock()
	if local {
		return
	}
	slog.Warn("live endpoint closed", "error", err)
	b.shutdown(RemoteClosedMessage)
}
