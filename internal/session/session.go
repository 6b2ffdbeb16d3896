// Package session implements the per-peer, per-chunk transfer session and
// its resend/timeout ticker (spec.md §4.4). Generalized from the teacher's
// pkg/content/fetcher.go fetchOperation/responseHandlers pairing — a
// sequence-correlated response channel plus a context-timeout watchdog —
// into an explicit state machine so a downloader can drive many sessions
// off one shared ticker instead of one goroutine-per-fetch.
package session

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/cyfs-core/bdt-ndn/internal/cyfserr"
	"github.com/cyfs-core/bdt-ndn/internal/ids"
	"github.com/cyfs-core/bdt-ndn/internal/proto"
)

// State is the session lifecycle (spec.md §4.4): Init → Running →
// {Responded | Canceled}. There is no separate error state; a session that
// fails ends in Canceled with the error's Kind.
type State int

const (
	StateInit State = iota
	StateRunning
	StateResponded
	StateCanceled
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateRunning:
		return "running"
	case StateResponded:
		return "responded"
	case StateCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

func (s State) Terminal() bool {
	return s == StateResponded || s == StateCanceled
}

// Result is the terminal snapshot delivered to every waiter (spec.md §4.4:
// "Waiter wakeups deliver a snapshot of terminal state").
type Result struct {
	State    State
	Kind     cyfserr.Kind // set when State == StateCanceled
	Endpoint string       // active_endpoint_pair, set when State == StateResponded
	Value    []byte       // the response payload, set when State == StateResponded
}

// Emitter sends the session's protocol packet (SnCall or equivalent) to the
// remote device. Implementations live in the transport layer; the session
// itself only knows when to call it.
type Emitter interface {
	EmitSnCall(ctx context.Context, target ids.DeviceId, chunkID ids.ChunkId, seq uint64) error
}

// Session is one in-flight chunk transfer with a single remote (spec.md
// §4.4).
type Session struct {
	chunkID        ids.ChunkId
	target         ids.DeviceId
	seq            uint64
	emitter        Emitter
	timeout        time.Duration
	resendInterval time.Duration

	mu            sync.Mutex
	state         State
	firstSendTime time.Time
	lastSendTime  time.Time
	result        Result
	waiters       []chan Result

	startTime     time.Time
	totalBytes    uint64
	curSpeed      float64
	speedSampleAt time.Time
	speedSampleN  uint64

	limiter *Limiter
}

// SetLimiter installs an optional pacing limiter consulted before every
// resend (SPEC_FULL.md §12 item 2). Passing nil disables pacing.
func (s *Session) SetLimiter(l *Limiter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.limiter = l
}

// New builds a session in Init state; no network activity occurs until the
// first Wait call.
func New(chunkID ids.ChunkId, target ids.DeviceId, seq uint64, emitter Emitter, timeout, resendInterval time.Duration) *Session {
	return &Session{
		chunkID:        chunkID,
		target:         target,
		seq:            seq,
		emitter:        emitter,
		timeout:        timeout,
		resendInterval: resendInterval,
		startTime:      nowFunc(),
	}
}

// nowFunc is indirected so tests can advance the clock deterministically
// without sleeping.
var nowFunc = time.Now

// Wait registers the caller as a waiter. On the first call, the session
// transitions Init → Running, emits the first packet, and records
// first_send_time (spec.md §4.4). It blocks until the session reaches a
// terminal state or ctx ends.
func (s *Session) Wait(ctx context.Context) (Result, error) {
	s.mu.Lock()
	if s.state.Terminal() {
		r := s.result
		s.mu.Unlock()
		return r, nil
	}

	ch := make(chan Result, 1)
	s.waiters = append(s.waiters, ch)

	firstWaiter := s.state == StateInit
	if firstWaiter {
		now := nowFunc()
		s.state = StateRunning
		s.firstSendTime = now
		s.lastSendTime = now
		s.speedSampleAt = now
	}
	s.mu.Unlock()

	if firstWaiter {
		if err := s.emitter.EmitSnCall(ctx, s.target, s.chunkID, s.seq); err != nil {
			s.Cancel(cyfserr.Interrupted)
		}
	}

	select {
	case r := <-ch:
		return r, nil
	case <-ctx.Done():
		return Result{}, cyfserr.Wrap(cyfserr.Interrupted, ctx.Err(), "session: wait canceled by caller context")
	}
}

// OnTimeEscape pumps the resend/timeout ticker (spec.md §4.4). It is a
// no-op unless the session is Running.
func (s *Session) OnTimeEscape(ctx context.Context, now time.Time) {
	s.mu.Lock()
	if s.state != StateRunning {
		s.mu.Unlock()
		return
	}
	if now.Sub(s.firstSendTime) > s.timeout {
		s.mu.Unlock()
		s.terminal(StateCanceled, Result{State: StateCanceled, Kind: cyfserr.Timeout})
		return
	}
	resend := now.Sub(s.lastSendTime) > s.resendInterval
	limiter := s.limiter
	if resend {
		s.lastSendTime = now
	}
	s.mu.Unlock()

	if resend && limiter.Allow(proto.MaxPayload) {
		_ = s.emitter.EmitSnCall(ctx, s.target, s.chunkID, s.seq)
	}
}

// Respond transitions Running → Responded, carrying the result and the
// endpoint pair that answered.
func (s *Session) Respond(value []byte, endpoint string) error {
	s.mu.Lock()
	if s.state != StateRunning {
		s.mu.Unlock()
		return cyfserr.New(cyfserr.ErrorState, "session: response received outside Running state")
	}
	s.mu.Unlock()
	s.terminal(StateResponded, Result{State: StateResponded, Endpoint: endpoint, Value: value})
	return nil
}

// Cancel transitions Running → Canceled(kind). Idempotent: canceling a
// session already in a terminal state is a no-op (spec.md §4.4).
func (s *Session) Cancel(kind cyfserr.Kind) {
	s.mu.Lock()
	if s.state.Terminal() {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	s.terminal(StateCanceled, Result{State: StateCanceled, Kind: kind})
}

func (s *Session) terminal(state State, result Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Terminal() {
		return
	}
	s.state = state
	s.result = result
	for _, w := range s.waiters {
		w <- result
	}
	s.waiters = nil
}

// State reports the session's current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// RecordBytes folds n newly-received bytes into the speed meter at time now
// (spec.md §4.4: "cur_speed (instantaneous EWMA), history_speed (bytes/
// duration since session start)").
const speedEWMAHalfLife = 2 * time.Second

func (s *Session) RecordBytes(n int, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.totalBytes += uint64(n)

	if s.speedSampleAt.IsZero() {
		s.speedSampleAt = now
		s.speedSampleN = s.totalBytes
		return
	}
	elapsed := now.Sub(s.speedSampleAt)
	if elapsed <= 0 {
		return
	}
	instBytes := s.totalBytes - s.speedSampleN
	instSpeed := float64(instBytes) / elapsed.Seconds()

	// EWMA with a 2s half-life: weight = 1 - 0.5^(elapsed/halfLife).
	decay := math.Pow(0.5, elapsed.Seconds()/speedEWMAHalfLife.Seconds())
	weight := 1 - decay
	s.curSpeed = s.curSpeed*(1-weight) + instSpeed*weight

	s.speedSampleAt = now
	s.speedSampleN = s.totalBytes
}

// CurSpeed returns the instantaneous EWMA speed estimate in bytes/second.
func (s *Session) CurSpeed() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.curSpeed
}

// HistorySpeed returns the average speed in bytes/second since session
// start.
func (s *Session) HistorySpeed(now time.Time) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	elapsed := now.Sub(s.startTime).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(s.totalBytes) / elapsed
}
