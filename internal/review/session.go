package review

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/tutu529/qilin-check-bag/internal/config"
)

// Session sequences fetch → review → submit cycles for a single operator.
//
// All state lives on the Run goroutine: user decisions, push notifications
// and async call results enter as events and are applied one at a time, so
// no transition ever races another. Fetch and submit results carry the
// cycle token captured when the call started; a result whose token no
// longer matches the current cycle is stale and dropped.
type Session struct {
	cfg       config.ReviewConfig
	source    ItemSource
	submitter DecisionSubmitter
	logger    *slog.Logger

	events chan event
	closed chan struct{}

	// Loop-owned state. Never touched outside the Run goroutine.
	phase     Phase
	current   *Item
	countdown int
	pending   bool
	stats     Stats
	cycle     uint64
	ticker    *time.Ticker
	delay     *time.Timer
	delayKind delayKind

	snapMu sync.Mutex
	snap   Snapshot
}

type event interface{ isEvent() }

type userDecisionEvent struct{ decision Decision }

type notifyEvent struct{}

type fetchDoneEvent struct {
	cycle uint64
	item  *Item
	err   error
}

type submitDoneEvent struct {
	cycle    uint64
	itemID   string
	decision Decision
	stats    Stats
	err      error
}

func (userDecisionEvent) isEvent() {}
func (notifyEvent) isEvent()       {}
func (fetchDoneEvent) isEvent()    {}
func (submitDoneEvent) isEvent()   {}

// delayKind records why the single delay timer is armed. Every firing
// starts a fetch; the kind only decides how an idle notification is
// arbitrated against it.
type delayKind int

const (
	delayNone     delayKind = iota
	delaySettle             // short pause after a submit resolves
	delayRetry              // pending-notification retry after an empty fetch
	delayJitter             // random desync before a notification-driven fetch
	delayIdlePoll           // starvation backstop while waiting for pushes
)

func NewSession(cfg config.ReviewConfig, source ItemSource, submitter DecisionSubmitter, logger *slog.Logger) *Session {
	return &Session{
		cfg:       cfg,
		source:    source,
		submitter: submitter,
		logger:    logger.With("component", "review"),
		events:    make(chan event, 16),
		closed:    make(chan struct{}),
	}
}

// Run drives the session until ctx is cancelled. The armed countdown and
// any scheduled fetch are torn down synchronously on exit; in-flight
// fetch or submit calls are not aborted, their results are simply dropped.
func (s *Session) Run(ctx context.Context) error {
	defer close(s.closed)

	s.logger.Info("session started",
		"countdown_seconds", s.cfg.CountdownSeconds,
		"idle_poll", s.cfg.IdlePollInterval)

	s.startFetch(ctx)
	s.publish()

	for {
		select {
		case <-ctx.Done():
			s.stopCountdown()
			s.stopDelay()
			s.logger.Info("session stopped")
			return ctx.Err()
		case ev := <-s.events:
			s.apply(ctx, ev)
		case <-s.tickC():
			s.onTick(ctx)
		case <-s.delayC():
			s.onDelayFired(ctx)
		}
		s.publish()
	}
}

// RequestDecision forwards an explicit operator decision. It preempts the
// countdown; outside the reviewing phase it is a no-op.
func (s *Session) RequestDecision(d Decision) {
	s.post(userDecisionEvent{decision: d})
}

// NotifyItemAvailable is the bare push trigger. Safe from any goroutine;
// duplicate or spurious calls coalesce while the session is busy.
func (s *Session) NotifyItemAvailable() {
	s.post(notifyEvent{})
}

// SetConnStatus surfaces the push transport's connection state to the
// presentation layer. The state machine never consults it.
func (s *Session) SetConnStatus(status string) {
	s.snapMu.Lock()
	s.snap.ConnStatus = status
	s.snapMu.Unlock()
}

// Snapshot returns a copy of the current display state.
func (s *Session) Snapshot() Snapshot {
	s.snapMu.Lock()
	defer s.snapMu.Unlock()
	return s.snap
}

func (s *Session) post(ev event) {
	select {
	case s.events <- ev:
	case <-s.closed:
	}
}

func (s *Session) apply(ctx context.Context, ev event) {
	switch ev := ev.(type) {
	case fetchDoneEvent:
		s.onFetchDone(ev)
	case submitDoneEvent:
		s.onSubmitDone(ctx, ev)
	case userDecisionEvent:
		s.onUserDecision(ctx, ev.decision)
	case notifyEvent:
		s.onNotify()
	}
}

// startFetch begins a new cycle. Callers must guarantee no fetch or
// submit is outstanding.
func (s *Session) startFetch(ctx context.Context) {
	s.stopDelay()
	s.cycle++
	s.phase = PhaseFetching
	token := s.cycle

	s.logger.Debug("fetching next item", "cycle", token)
	go func() {
		item, err := s.source.FetchNext(ctx)
		s.post(fetchDoneEvent{cycle: token, item: item, err: err})
	}()
}

func (s *Session) onFetchDone(ev fetchDoneEvent) {
	if ev.cycle != s.cycle || s.phase != PhaseFetching {
		s.logger.Debug("dropping stale fetch result", "cycle", ev.cycle, "current_cycle", s.cycle)
		return
	}

	if ev.err != nil {
		s.logger.Error("fetch failed", "err", ev.err)
		s.setLastError(ev.err.Error())
		s.toIdleWaiting()
		return
	}

	if !ev.item.Valid() {
		s.logger.Info("no reviewable item, waiting for push notification")
		s.toIdleWaiting()
		return
	}

	s.setLastError("")
	s.current = ev.item
	s.phase = PhaseReviewing
	s.armCountdown()
	s.logger.Info("item received",
		"item", ev.item.ID,
		"correlation", ev.item.CorrelationID,
		"queue_depth", ev.item.TotalPending)
}

// toIdleWaiting handles the empty/failed fetch outcome: one short retry
// when a notification already hinted at new data, otherwise idle waiting
// with the polling backstop.
func (s *Session) toIdleWaiting() {
	s.current = nil
	s.phase = PhaseIdle
	if s.pending {
		s.pending = false
		s.armDelay(s.cfg.RetryDelay, delayRetry)
		return
	}
	if s.cfg.IdlePollInterval > 0 {
		s.armDelay(s.cfg.IdlePollInterval, delayIdlePoll)
	}
}

func (s *Session) onTick(ctx context.Context) {
	if s.phase != PhaseReviewing {
		return
	}
	s.countdown--
	if s.countdown > 0 {
		return
	}
	s.stopCountdown()
	s.logger.Info("review window expired, auto-releasing", "item", s.current.ID)
	s.startSubmit(ctx, DecisionRelease)
}

func (s *Session) onUserDecision(ctx context.Context, d Decision) {
	if s.phase != PhaseReviewing || !s.current.Valid() {
		s.logger.Debug("ignoring decision outside review window", "decision", d, "phase", s.phase)
		return
	}
	s.stopCountdown()
	s.logger.Info("operator decision", "item", s.current.ID, "decision", d)
	s.startSubmit(ctx, d)
}

func (s *Session) startSubmit(ctx context.Context, d Decision) {
	s.phase = PhaseSubmitting
	token := s.cycle
	itemID := s.current.ID
	correlationID := s.current.CorrelationID

	go func() {
		stats, err := s.submitter.Submit(ctx, itemID, d, correlationID)
		s.post(submitDoneEvent{cycle: token, itemID: itemID, decision: d, stats: stats, err: err})
	}()
}

func (s *Session) onSubmitDone(ctx context.Context, ev submitDoneEvent) {
	if ev.cycle != s.cycle || s.phase != PhaseSubmitting {
		s.logger.Debug("dropping stale submit result", "cycle", ev.cycle, "current_cycle", s.cycle)
		return
	}

	if ev.err != nil {
		// Soft failure: the pipeline keeps moving, the decision is not retried.
		s.logger.Error("submit failed", "item", ev.itemID, "decision", ev.decision, "err", ev.err)
		s.setLastError(ev.err.Error())
	} else {
		s.stats = ev.stats
		s.setLastError("")
		s.logger.Info("decision recorded",
			"item", ev.itemID,
			"decision", ev.decision,
			"released_today", ev.stats.Released,
			"flagged_today", ev.stats.Flagged)
	}

	s.current = nil
	if s.pending {
		s.pending = false
		s.startFetch(ctx)
		return
	}
	s.phase = PhaseIdle
	s.armDelay(s.cfg.SettleDelay, delaySettle)
}

func (s *Session) onNotify() {
	switch s.phase {
	case PhaseFetching, PhaseSubmitting, PhaseReviewing:
		// Sampled at the next cycle boundary; never preempts the current item.
		s.pending = true
	case PhaseIdle:
		switch s.delayKind {
		case delaySettle, delayRetry, delayJitter:
			// A fetch is already imminent; the notification is coalesced into it.
		default:
			s.stopDelay()
			s.armDelay(s.jitter(), delayJitter)
		}
	}
}

func (s *Session) onDelayFired(ctx context.Context) {
	s.delay = nil
	s.delayKind = delayNone
	if s.phase != PhaseIdle {
		return
	}
	s.startFetch(ctx)
}

// jitter desynchronizes idle viewers reacting to the same broadcast.
func (s *Session) jitter() time.Duration {
	if s.cfg.JitterMax <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(s.cfg.JitterMax)))
}

func (s *Session) armCountdown() {
	s.stopCountdown()
	s.countdown = s.cfg.CountdownSeconds
	s.ticker = time.NewTicker(s.cfg.TickInterval)
}

func (s *Session) stopCountdown() {
	if s.ticker != nil {
		s.ticker.Stop()
		s.ticker = nil
	}
	s.countdown = 0
}

func (s *Session) armDelay(d time.Duration, kind delayKind) {
	s.stopDelay()
	s.delay = time.NewTimer(d)
	s.delayKind = kind
}

func (s *Session) stopDelay() {
	if s.delay != nil {
		s.delay.Stop()
		s.delay = nil
	}
	s.delayKind = delayNone
}

func (s *Session) tickC() <-chan time.Time {
	if s.ticker == nil {
		return nil
	}
	return s.ticker.C
}

func (s *Session) delayC() <-chan time.Time {
	if s.delay == nil {
		return nil
	}
	return s.delay.C
}

func (s *Session) setLastError(msg string) {
	s.snapMu.Lock()
	s.snap.LastError = msg
	s.snapMu.Unlock()
}

func (s *Session) publish() {
	s.snapMu.Lock()
	s.snap.Phase = s.phase
	s.snap.Item = s.current
	s.snap.CountdownRemaining = s.countdown
	s.snap.Stats = s.stats
	s.snapMu.Unlock()
}
