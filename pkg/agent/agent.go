// Package agent implements the device-resident update session: a polled
// state machine that receives framed commands over a channel.Endpoint and
// programs firmware images into a flash.Region.
//
// The session owns all of its state and mutates it only from Poll. Transport
// goroutines signal lifecycle changes through Configure and Reset, which
// enqueue intents that the next Poll applies; nothing else touches the
// receive buffer or the state machine concurrently.
package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/looplab/fsm"

	"fwagent/pkg/channel"
	"fwagent/pkg/flash"
	"fwagent/pkg/logger"
)

// Session states.
const (
	// StateInactive means no control channel is configured; all input is
	// ignored
	StateInactive = "inactive"

	// StateCommandWait means the session is accumulating a command frame
	StateCommandWait = "command-wait"

	// StateUpdating means an update is armed and payload bytes stream to
	// flash
	StateUpdating = "updating"
)

// State machine events.
const (
	eventConfigure = "configure"
	eventReset     = "reset"
	eventArm       = "arm"
	eventComplete  = "complete"
)

// RxBufSize is the size of the session receive buffer.
const RxBufSize = 256

// pendingEvent is a lifecycle intent queued by a transport goroutine.
type pendingEvent int

const (
	pendConfigure pendingEvent = iota
	pendReset
)

// Session is a single update agent session bound to one endpoint and one
// flash region.
type Session struct {
	cfg    Config
	ep     channel.Endpoint
	region *flash.Region
	log    logger.Logger
	sm     *fsm.FSM

	// Lifecycle intents from transport goroutines, drained by Poll
	pendMu  sync.Mutex
	pending []pendingEvent

	// Receive buffer and producer index, owned by Poll
	buf  [RxBufSize]byte
	prod int

	// Outbound response held until the endpoint can take it
	tx []byte

	update struct {
		total   uint32
		written uint32
	}
}

// New creates a session over the given endpoint and flash region and
// registers it as the endpoint's state listener. If the endpoint is already
// live the session configures itself on the first Poll.
func New(ep channel.Endpoint, region *flash.Region, cfg Config) (*Session, error) {
	if ep == nil {
		return nil, fmt.Errorf("endpoint is required")
	}
	if region == nil {
		return nil, fmt.Errorf("flash region is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNoOpLogger()
	}

	s := &Session{
		cfg:    cfg,
		ep:     ep,
		region: region,
		log:    cfg.Logger,
	}

	s.sm = fsm.NewFSM(
		StateInactive,
		fsm.Events{
			{Name: eventConfigure, Src: []string{StateInactive, StateCommandWait, StateUpdating}, Dst: StateCommandWait},
			{Name: eventReset, Src: []string{StateInactive, StateCommandWait, StateUpdating}, Dst: StateInactive},
			{Name: eventArm, Src: []string{StateCommandWait}, Dst: StateUpdating},
			{Name: eventComplete, Src: []string{StateUpdating}, Dst: StateCommandWait},
		},
		fsm.Callbacks{
			"enter_state": func(e *fsm.Event) {
				s.log.Debug("session %s -> %s", e.Src, e.Dst)
			},
		},
	)

	ep.SetStateListener(s)

	return s, nil
}

// Configure implements channel.StateListener. Safe to call from any
// goroutine; the intent is applied by the next Poll.
func (s *Session) Configure() {
	s.enqueue(pendConfigure)
}

// Reset implements channel.StateListener. Safe to call from any goroutine;
// the intent is applied by the next Poll.
func (s *Session) Reset() {
	s.enqueue(pendReset)
}

func (s *Session) enqueue(ev pendingEvent) {
	s.pendMu.Lock()
	s.pending = append(s.pending, ev)
	s.pendMu.Unlock()
}

// applyPending drains queued lifecycle intents in order. Both events clear
// the receive buffer, any held response and the update counters.
func (s *Session) applyPending() {
	s.pendMu.Lock()
	events := s.pending
	s.pending = nil
	s.pendMu.Unlock()

	for _, ev := range events {
		switch ev {
		case pendConfigure:
			s.fireLifecycle(eventConfigure)
			s.log.Info("session configured")
		case pendReset:
			s.fireLifecycle(eventReset)
			s.log.Info("session reset")
		}
		s.prod = 0
		s.tx = nil
		s.update.total = 0
		s.update.written = 0
	}
}

// fireLifecycle fires a configure/reset event, tolerating the case where the
// session is already in the destination state.
func (s *Session) fireLifecycle(event string) {
	err := s.sm.Event(event)
	if _, ok := err.(fsm.NoTransitionError); ok {
		return
	}
	if err != nil {
		s.log.Warn("lifecycle event %s: %v", event, err)
	}
}

// Poll runs one tick of the session: apply queued lifecycle intents, flush
// any held response, then consume input according to the current state.
// All session state is mutated here and only here.
func (s *Session) Poll() error {
	s.applyPending()

	if s.sm.Is(StateInactive) {
		return nil
	}

	s.flushTx()
	if len(s.tx) > 0 {
		// Response still pending; do not consume further input until
		// the host has seen it.
		return nil
	}

	if s.sm.Is(StateUpdating) {
		return s.pollUpdate()
	}
	return s.pollCommand()
}

// flushTx sends the held response once the endpoint can take it.
func (s *Session) flushTx() {
	if len(s.tx) == 0 || !s.ep.TxReady() {
		return
	}
	if err := s.ep.Write(s.tx); err != nil {
		s.log.Warn("send response: %v", err)
		return
	}
	s.tx = nil
}

// fill moves pending endpoint bytes into the receive buffer.
func (s *Session) fill() {
	if s.prod >= len(s.buf) {
		return
	}
	n, err := s.ep.Read(s.buf[s.prod:])
	if err != nil {
		s.log.Warn("receive: %v", err)
		return
	}
	s.prod += n
}

// Run polls the session until ctx is done. Flash errors are fatal to the
// session and returned.
func (s *Session) Run(ctx context.Context) error {
	interval := s.cfg.PollInterval
	if interval == 0 {
		interval = DefaultPollInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.Poll(); err != nil {
				s.log.Error("session poll: %v", err)
				return err
			}
		}
	}
}

// State returns the current session state.
func (s *Session) State() string {
	return s.sm.Current()
}

// Progress returns the written and total byte counts of the update in
// flight. Both are zero outside an update.
func (s *Session) Progress() (written, total uint32) {
	return s.update.written, s.update.total
}

// Statistics returns the underlying endpoint's transport statistics.
func (s *Session) Statistics() channel.TransportStats {
	return s.ep.Statistics()
}
