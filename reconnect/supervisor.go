package reconnect

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/d3vgru/easy-peasy-bot/telemetry"
)

// State of the supervised connection.
type State int

const (
	Disconnected State = iota
	Reconnecting
	Connected
)

func (s State) String() string {
	switch s {
	case Connected:
		return "connected"
	case Reconnecting:
		return "reconnecting"
	default:
		return "disconnected"
	}
}

// Connector opens one transport session. Connect blocks for the life of the
// session and returns when it ends; implementations call Supervisor.Opened
// once the session is live.
type Connector interface {
	Connect(ctx context.Context) error
}

type signalKind int

const (
	sigOpened signalKind = iota
	sigClosed
)

type signal struct {
	kind signalKind
	err  error
}

// Supervisor owns the attempt counter and drives reconnects. All signals are
// handled on the Run goroutine.
type Supervisor struct {
	conn   Connector
	policy Policy
	after  func(time.Duration) <-chan time.Time
	notify func(State, int)
	log    *slog.Logger

	signals chan signal
	done    chan struct{}

	mu       sync.RWMutex
	state    State
	attempts int
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithPolicy replaces DefaultPolicy.
func WithPolicy(p Policy) Option { return func(s *Supervisor) { s.policy = p } }

// WithAfter replaces time.After for scheduling reconnects.
func WithAfter(after func(time.Duration) <-chan time.Time) Option {
	return func(s *Supervisor) { s.after = after }
}

// WithNotify registers a callback invoked on the Run goroutine after every
// state change with the new state and the attempt count.
func WithNotify(fn func(State, int)) Option { return func(s *Supervisor) { s.notify = fn } }

// New returns a Supervisor for conn in the Disconnected state with one attempt.
func New(conn Connector, opts ...Option) *Supervisor {
	s := &Supervisor{
		conn:     conn,
		policy:   DefaultPolicy(),
		after:    time.After,
		log:      slog.Default().With(slog.String("component", "reconnect")),
		signals:  make(chan signal, 4),
		done:     make(chan struct{}),
		state:    Disconnected,
		attempts: 1,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Opened reports that the current session is live. Safe from any goroutine.
func (s *Supervisor) Opened() { s.send(signal{kind: sigOpened}) }

func (s *Supervisor) send(sig signal) {
	select {
	case s.signals <- sig:
	case <-s.done:
	}
}

// State returns the current state.
func (s *Supervisor) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Attempts returns the current attempt count.
func (s *Supervisor) Attempts() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.attempts
}

// Connected reports whether the transport session is live.
func (s *Supervisor) Connected() bool { return s.State() == Connected }

func (s *Supervisor) setState(st State) {
	s.mu.Lock()
	s.state = st
	attempts := s.attempts
	s.mu.Unlock()
	telemetry.SetSupervisorState(st.String())
	if s.notify != nil {
		s.notify(st, attempts)
	}
}

// Run starts the first session and supervises until ctx ends. It waits for the
// running session to return before it does.
func (s *Supervisor) Run(ctx context.Context) error {
	var sessionDone chan struct{}
	start := func() {
		sessionDone = make(chan struct{})
		go func(done chan struct{}) {
			defer close(done)
			err := s.conn.Connect(ctx)
			s.send(signal{kind: sigClosed, err: err})
		}(sessionDone)
	}

	s.log.Info("connecting", slog.Int("attempt", s.Attempts()))
	start()

	var timer <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			close(s.done)
			if sessionDone != nil {
				<-sessionDone
			}
			s.log.Info("supervisor stopped")
			return nil

		case sig := <-s.signals:
			switch sig.kind {
			case sigOpened:
				timer = nil
				s.mu.Lock()
				s.attempts = 1
				s.mu.Unlock()
				s.log.Info("transport connected")
				s.setState(Connected)

			case sigClosed:
				telemetry.Inc(telemetry.DisconnectsTotal)
				s.setState(Disconnected)
				if ctx.Err() != nil {
					continue
				}
				attempts := s.Attempts()
				delay := s.policy.Delay(attempts)
				telemetry.Observe(telemetry.ReconnectDelay, delay)
				s.log.Warn("transport closed; scheduling reconnect",
					slog.Any("err", sig.err),
					slog.Int("attempts", attempts),
					slog.Duration("delay", delay),
					slog.Duration("max_delay", s.policy.MaxDelay(attempts)))
				s.setState(Reconnecting)
				timer = s.after(delay)
			}

		case <-timer:
			timer = nil
			s.mu.Lock()
			s.attempts++
			attempts := s.attempts
			s.mu.Unlock()
			telemetry.Inc(telemetry.ReconnectAttempts)
			s.log.Info("reconnecting", slog.Int("attempt", attempts))
			start()
		}
	}
}
