package adapter

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/dratasich/ndn-orion-adapter/metrics"
	"github.com/dratasich/ndn-orion-adapter/ndn"
	"github.com/dratasich/ndn-orion-adapter/orion"
)

var (
	// ErrBrokerUnavailable is returned by Run when the broker did not
	// answer within the startup timeout.
	ErrBrokerUnavailable = errors.New("adapter: context broker unavailable")
	// ErrStallDetected ends a session that received no interest for the
	// stall timeout.
	ErrStallDetected = errors.New("adapter: no interest received, session stalled")
)

// State of the supervisor.
type State int32

const (
	StateWaitingForBroker State = iota
	StateSessionActive
	StateTeardown
)

func (s State) String() string {
	switch s {
	case StateWaitingForBroker:
		return "WAITING_FOR_BROKER"
	case StateSessionActive:
		return "SESSION_ACTIVE"
	case StateTeardown:
		return "TEARDOWN"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Face is the forwarder session the supervisor drives. *ndn.Face
// implements it.
type Face interface {
	RegisterPrefix(prefix ndn.Name, onInterest ndn.InterestHandler, onFailed func(ndn.Name, error), onSuccess func(ndn.Name, uint64)) (uint64, error)
	ProcessEvents() error
	Shutdown() error
}

// DialFunc opens a new face to the forwarder.
type DialFunc func(ctx context.Context) (Face, error)

// VersionChecker checks whether the broker answers.
type VersionChecker interface {
	Version(ctx context.Context) (string, error)
}

// Provisioner prepares the broker before a session starts.
type Provisioner interface {
	Ensure(ctx context.Context) (bool, error)
}

type SupervisorOptions struct {
	Prefix         ndn.Name
	StartupTimeout time.Duration
	PollInterval   time.Duration
	TickInterval   time.Duration
	StallTimeout   time.Duration
	ReconnectDelay time.Duration
	Metrics        *metrics.Metrics
	Logger         zerolog.Logger
}

// Supervisor owns the forwarder session: it waits for the broker, opens a
// face, serves interests and reconnects when the session stalls or fails.
type Supervisor struct {
	checker     VersionChecker
	provisioner Provisioner
	dial        DialFunc
	onInterest  ndn.InterestHandler
	liveness    *Liveness
	opts        SupervisorOptions
	log         zerolog.Logger
	state       atomic.Int32

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func NewSupervisor(checker VersionChecker, provisioner Provisioner, dial DialFunc, onInterest ndn.InterestHandler, liveness *Liveness, opts SupervisorOptions) *Supervisor {
	return &Supervisor{
		checker:     checker,
		provisioner: provisioner,
		dial:        dial,
		onInterest:  onInterest,
		liveness:    liveness,
		opts:        opts,
		log:         opts.Logger.With().Str("component", "supervisor").Logger(),
		now:         time.Now,
		sleep:       sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// State returns the current state. Safe for concurrent use.
func (s *Supervisor) State() State { return State(s.state.Load()) }

func (s *Supervisor) setState(st State) {
	if State(s.state.Swap(int32(st))) != st {
		s.log.Debug().Msgf("State %s", st)
	}
}

// Healthy reports whether a session is active.
func (s *Supervisor) Healthy() (bool, string) {
	st := s.State()
	return st == StateSessionActive, st.String()
}

// stallThreshold is the number of idle ticks tolerated before a stall.
func (s *Supervisor) stallThreshold() int64 {
	n := int64(s.opts.StallTimeout / s.opts.TickInterval)
	if n < 1 {
		n = 1
	}
	return n
}

// Run loops until ctx is cancelled, which returns nil. It fails with
// ErrBrokerUnavailable when the broker cannot be reached in time.
func (s *Supervisor) Run(ctx context.Context) error {
	for {
		s.setState(StateWaitingForBroker)
		if err := s.waitForBroker(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		err := s.session(ctx)
		s.setState(StateTeardown)
		if ctx.Err() != nil {
			s.log.Info().Msg("Stopped")
			return nil
		}
		switch {
		case errors.Is(err, ErrStallDetected):
			s.log.Info().Msgf("No interest for %s, reconnecting", s.opts.StallTimeout)
		case errors.Is(err, ndn.ErrRegistrationFailed):
			s.log.Error().Err(err).Msg("Prefix registration failed, check localhop_security of the forwarder")
		default:
			s.log.Error().Err(err).Msg("Session failed")
		}

		if err := s.sleep(ctx, s.opts.ReconnectDelay); err != nil {
			return nil
		}
	}
}

func (s *Supervisor) waitForBroker(ctx context.Context) error {
	start := s.now()
	deadline := start.Add(s.opts.StartupTimeout)
	for {
		version, err := s.versionBefore(ctx, deadline)
		var brokerErr *orion.BrokerError
		if err == nil || errors.As(err, &brokerErr) {
			s.log.Info().Str("version", version).Msgf("Broker is up after %s", s.now().Sub(start))
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !s.now().Before(deadline) {
			return fmt.Errorf("%w after %s: %w", ErrBrokerUnavailable, s.opts.StartupTimeout, err)
		}
		if err := s.sleep(ctx, s.opts.PollInterval); err != nil {
			return err
		}
	}
}

// versionBefore asks for the broker version without running past deadline.
func (s *Supervisor) versionBefore(ctx context.Context, deadline time.Time) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, deadline.Sub(s.now()))
	defer cancel()
	return s.checker.Version(ctx)
}

// session runs one forwarder session and returns why it ended.
func (s *Supervisor) session(ctx context.Context) error {
	if _, err := s.provisioner.Ensure(ctx); err != nil {
		return fmt.Errorf("bootstrap subscription: %w", err)
	}

	face, err := s.dial(ctx)
	if err != nil {
		return fmt.Errorf("connect forwarder: %w", err)
	}
	defer func() {
		if err := face.Shutdown(); err != nil {
			s.log.Debug().Err(err).Msg("Face shutdown")
		}
	}()

	s.liveness.Reset()
	var regErr error
	onFailed := func(_ ndn.Name, err error) { regErr = err }
	onSuccess := func(prefix ndn.Name, _ uint64) {
		s.log.Info().Msgf("Registered prefix %s", prefix)
	}
	if _, err := face.RegisterPrefix(s.opts.Prefix, s.onInterest, onFailed, onSuccess); err != nil {
		return fmt.Errorf("send registration command for %s: %w", s.opts.Prefix, err)
	}
	s.setState(StateSessionActive)
	s.opts.Metrics.IncSessions()

	threshold := s.stallThreshold()
	for {
		if err := face.ProcessEvents(); err != nil {
			return err
		}
		if regErr != nil {
			s.opts.Metrics.IncRegistrationFailures()
			return regErr
		}
		ticks := s.liveness.Tick()
		s.opts.Metrics.SetLiveness(ticks)
		if ticks > threshold {
			s.opts.Metrics.IncStalls()
			return ErrStallDetected
		}
		if err := s.sleep(ctx, s.opts.TickInterval); err != nil {
			return err
		}
	}
}
