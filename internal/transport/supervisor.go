package transport

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/sirupsen/logrus"
)

type State string

const (
	StateIdle       State = "idle"
	StateConnecting State = "connecting"
	StateOpen       State = "open"
	StateClosed     State = "closed"
)

// Close codes with special handling, mirroring the channel protocol.
const (
	// Stream noise emitted right after pairing; the session is fine.
	CodeStreamNoise = 515
	// Remote logout: the session is dead for good.
	CodeLoggedOut = 401
	// Auth rejection: credentials no longer accepted.
	CodeAuthRejected = 405
)

const (
	defaultMaxAttempts       = 2
	defaultAuthRejectedDelay = 15 * time.Second
	defaultCleanSlateDelay   = 30 * time.Second
	defaultBenignDelay       = time.Second
)

// MessageHandler processes one inbound message and returns the reply text
// (empty means no reply). A returned error produces the apologetic
// fallback reply instead of crashing the loop.
type MessageHandler func(ctx context.Context, from, text string) (string, error)

// Supervisor drives the connection lifecycle: authenticate, recover from
// transient closes with growing delays, purge credentials on fatal closes
// or after too many consecutive failures, and expose a Sender only while
// the connection is open.
type Supervisor struct {
	Dialer       Dialer
	Creds        CredStore
	Log          *logrus.Logger
	Handler      MessageHandler
	OnPairing    func(challenge string)
	FallbackText string

	// Backoff is cloned semantics-wise from the channel's recovery policy:
	// delays grow per consecutive transient failure up to a ceiling.
	Backoff *backoff.ExponentialBackOff

	// MaxAttempts consecutive transient failures mean the persisted
	// credentials are treated as corrupted and purged.
	MaxAttempts       int
	AuthRejectedDelay time.Duration
	CleanSlateDelay   time.Duration
	BenignDelay       time.Duration

	mu         sync.Mutex
	state      State
	conn       Conn
	gen        uint64
	attempts   int
	connecting bool
}

func NewSupervisor(d Dialer, creds CredStore, log *logrus.Logger, h MessageHandler) *Supervisor {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 10 * time.Second
	bo.MaxInterval = 60 * time.Second
	bo.MaxElapsedTime = 0
	return &Supervisor{
		Dialer:            d,
		Creds:             creds,
		Log:               log,
		Handler:           h,
		FallbackText:      "Desculpe, ocorreu um erro. Tente novamente.",
		Backoff:           bo,
		MaxAttempts:       defaultMaxAttempts,
		AuthRejectedDelay: defaultAuthRejectedDelay,
		CleanSlateDelay:   defaultCleanSlateDelay,
		BenignDelay:       defaultBenignDelay,
		state:             StateIdle,
	}
}

func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start begins the first connection attempt. It returns immediately; the
// lifecycle runs on its own goroutines until ctx is done.
func (s *Supervisor) Start(ctx context.Context) {
	go s.connect(ctx, s.bumpGeneration())
}

// Send implements Sender. Dependents fail fast while the connection is not
// open rather than queue silently.
func (s *Supervisor) Send(ctx context.Context, to string, msg Message) error {
	s.mu.Lock()
	conn, state := s.conn, s.state
	s.mu.Unlock()
	if state != StateOpen || conn == nil {
		return ErrTransportUnavailable
	}

	if msg.ImageURL != "" {
		if err := conn.Send(ctx, to, msg); err != nil {
			s.Log.WithError(err).Warn("image send failed, falling back to text")
			return conn.Send(ctx, to, Message{Text: msg.Caption})
		}
		return nil
	}
	if strings.TrimSpace(msg.Text) == "" {
		return nil
	}
	return conn.Send(ctx, to, msg)
}

// bumpGeneration invalidates every scheduled retry; only timers stamped
// with the current generation may still fire into a connect.
func (s *Supervisor) bumpGeneration() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	return s.gen
}

func (s *Supervisor) scheduleConnect(ctx context.Context, gen uint64, delay time.Duration) {
	time.AfterFunc(delay, func() {
		s.mu.Lock()
		stale := gen != s.gen
		s.mu.Unlock()
		if stale || ctx.Err() != nil {
			return
		}
		s.connect(ctx, gen)
	})
}

func (s *Supervisor) connect(ctx context.Context, gen uint64) {
	s.mu.Lock()
	if s.connecting || gen != s.gen {
		s.mu.Unlock()
		return
	}
	s.connecting = true
	s.state = StateConnecting
	s.mu.Unlock()

	conn, err := s.Dialer.Dial(ctx, s.Creds.Dir)

	s.mu.Lock()
	s.connecting = false
	s.mu.Unlock()

	if err != nil {
		s.Log.WithError(err).Error("dial failed")
		s.onTransientFailure(ctx, gen)
		return
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	go s.readLoop(ctx, gen, conn)
}

func (s *Supervisor) readLoop(ctx context.Context, gen uint64, conn Conn) {
	for ev := range conn.Events() {
		switch ev.Kind {
		case EventOpen:
			s.mu.Lock()
			s.state = StateOpen
			s.attempts = 0
			s.mu.Unlock()
			s.Backoff.Reset()
			s.Log.Info("transport connected")

		case EventPairing:
			s.mu.Lock()
			s.attempts = 0
			s.mu.Unlock()
			s.Log.Info("pairing challenge issued")
			if s.OnPairing != nil {
				s.OnPairing(ev.Challenge)
			}

		case EventMessage:
			s.handleMessage(ctx, ev)

		case EventClosed:
			s.mu.Lock()
			s.state = StateClosed
			s.conn = nil
			s.mu.Unlock()
			s.handleClosed(ctx, gen, ev)
			return
		}
	}
}

func (s *Supervisor) handleMessage(ctx context.Context, ev Event) {
	reply, err := s.Handler(ctx, ev.From, ev.Text)
	if err != nil {
		s.Log.WithError(err).WithField("from", ev.From).Error("message handler failed")
		reply = s.FallbackText
	}
	if strings.TrimSpace(reply) == "" {
		return
	}
	if err := s.Send(ctx, ev.From, Message{Text: reply}); err != nil {
		s.Log.WithError(err).WithField("from", ev.From).Error("reply send failed")
	}
}

func (s *Supervisor) handleClosed(ctx context.Context, gen uint64, ev Event) {
	log := s.Log.WithField("code", ev.Code)
	if ev.Err != nil {
		log = log.WithError(ev.Err)
	}

	switch {
	case isBenign(ev):
		// Known protocol noise: log it, reconnect, no attempt counted.
		log.Info("benign connection close")
		s.scheduleConnect(ctx, s.bumpGeneration(), s.BenignDelay)

	case ev.Code == CodeLoggedOut:
		log.Warn("remote logout, purging session")
		s.purgeAndRestart(ctx, 0)

	case ev.Code == CodeAuthRejected:
		log.Warn("auth rejected, purging session")
		s.purgeAndRestart(ctx, s.AuthRejectedDelay)

	default:
		log.Warn("transient connection close")
		s.onTransientFailure(ctx, gen)
	}
}

func (s *Supervisor) onTransientFailure(ctx context.Context, gen uint64) {
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return
	}
	s.attempts++
	exceeded := s.attempts >= s.MaxAttempts
	s.mu.Unlock()

	if exceeded {
		// Too many consecutive failures: treat the persisted session as
		// corrupted, same recovery as an explicit auth rejection.
		s.Log.Warn("attempt ceiling reached, purging session")
		s.purgeAndRestart(ctx, s.CleanSlateDelay)
		return
	}
	s.scheduleConnect(ctx, gen, s.Backoff.NextBackOff())
}

// purgeAndRestart is the only path allowed to discard durable state. It
// resets the attempt counter and supersedes any pending retry.
func (s *Supervisor) purgeAndRestart(ctx context.Context, delay time.Duration) {
	if err := s.Creds.Purge(); err != nil {
		s.Log.WithError(err).Error("credential purge failed")
	}
	s.mu.Lock()
	s.attempts = 0
	s.mu.Unlock()
	s.Backoff.Reset()
	s.scheduleConnect(ctx, s.bumpGeneration(), delay)
}

func isBenign(ev Event) bool {
	if ev.Code == CodeStreamNoise {
		return true
	}
	return ev.Err != nil && strings.Contains(ev.Err.Error(), "stream:error")
}
