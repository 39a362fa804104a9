// Package supervisor wraps broker and storage connection acquisition in a
// bounded-retry state machine. It replaces wait-forever reconnect loops with
// an explicit terminal Failed state: the pipeline cannot run without its
// collaborators, so exhaustion is fatal for the process.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/bscolinos/ford-fleet-streaming/internal/metrics"
)

type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Failed
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// ErrExhausted is returned once every connection attempt has failed. The
// supervisor is in the terminal Failed state afterwards.
var ErrExhausted = errors.New("connection attempts exhausted")

// ConnectFunc performs one connection attempt.
type ConnectFunc func(ctx context.Context) error

type Supervisor struct {
	target      string
	connect     ConnectFunc
	maxAttempts int
	delay       time.Duration
	lg          *zap.Logger

	// OnTransition, when set, observes every state change.
	OnTransition func(from, to State)

	mu    sync.Mutex
	state State
}

func New(target string, connect ConnectFunc, maxAttempts int, delay time.Duration, lg *zap.Logger) *Supervisor {
	return &Supervisor{
		target:      target,
		connect:     connect,
		maxAttempts: maxAttempts,
		delay:       delay,
		lg:          lg,
		state:       Disconnected,
	}
}

func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Supervisor) setState(to State) {
	s.mu.Lock()
	from := s.state
	s.state = to
	s.mu.Unlock()
	if from != to && s.OnTransition != nil {
		s.OnTransition(from, to)
	}
}

// Connect drives Disconnected → Connecting → Connected, attempting up to
// maxAttempts connections with a fixed delay in between. On exhaustion the
// supervisor transitions to the terminal Failed state and returns
// ErrExhausted. Calling Connect while already Connected is a no-op.
func (s *Supervisor) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.state == Connected {
		s.mu.Unlock()
		return nil
	}
	if s.state == Failed {
		s.mu.Unlock()
		return fmt.Errorf("%s: %w", s.target, ErrExhausted)
	}
	s.mu.Unlock()

	s.setState(Connecting)

	var lastErr error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			s.setState(Disconnected)
			return err
		}

		lastErr = s.connect(ctx)
		if lastErr == nil {
			s.setState(Connected)
			s.lg.Info("connected",
				zap.String("target", s.target),
				zap.Int("attempt", attempt),
			)
			return nil
		}

		s.lg.Warn("connection attempt failed",
			zap.String("target", s.target),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", s.maxAttempts),
			zap.Error(lastErr),
		)

		if attempt < s.maxAttempts {
			select {
			case <-time.After(s.delay):
			case <-ctx.Done():
				s.setState(Disconnected)
				return ctx.Err()
			}
		}
	}

	s.setState(Failed)
	return fmt.Errorf("%s after %d attempts: %w (last error: %v)", s.target, s.maxAttempts, ErrExhausted, lastErr)
}

// MarkFailure records a write failure observed while Connected. The
// supervisor drops back to Disconnected; the caller re-runs Connect and then
// retries its own work against the fresh connection.
func (s *Supervisor) MarkFailure() {
	s.mu.Lock()
	connected := s.state == Connected
	s.mu.Unlock()
	if !connected {
		return
	}
	metrics.Reconnects.WithLabelValues(s.target).Inc()
	s.lg.Warn("connection marked failed", zap.String("target", s.target))
	s.setState(Disconnected)
}
