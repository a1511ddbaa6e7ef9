package agentrelay

import (
	"context"
	"errors"
	"io"
	"iter"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/boat-builder/agentrelay/metrics"
)

const (
	DefaultGraceTicks   = 5
	DefaultTickInterval = 100 * time.Millisecond
)

// errStopped reports that the caller stopped pulling events.
var errStopped = errors.New("stream abandoned by caller")

type StreamOption func(*RunStream)

// WithGraceTicks sets how many idle ticks the stream keeps waiting for late
// notifications once the agent run has finished.
func WithGraceTicks(n int) StreamOption {
	return func(s *RunStream) {
		if n >= 0 {
			s.graceTicks = n
		}
	}
}

// WithTickInterval sets the duration of one grace tick.
func WithTickInterval(d time.Duration) StreamOption {
	return func(s *RunStream) {
		if d > 0 {
			s.tickInterval = d
		}
	}
}

func WithLogger(logger *slog.Logger) StreamOption {
	return func(s *RunStream) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// RunStream merges a run's native events with the notifications of one tool
// subscription. Every non-empty notification is shown to the UI as an
// item-added, content-part-added, text-delta..., content-part-done block, is
// committed to the run history as a completed assistant message, and lets the
// agent take exactly one step.
type RunStream struct {
	run    *Run
	source NotificationSource

	graceTicks   int
	tickInterval time.Duration
	logger       *slog.Logger

	consumed atomic.Bool

	// set by StreamableAgent
	cancelRun  context.CancelFunc
	onComplete func(ctx context.Context, run *Run) error
}

// NewRunStream takes ownership of run and source for one Events call.
func NewRunStream(run *Run, source NotificationSource, opts ...StreamOption) *RunStream {
	s := &RunStream{
		run:          run,
		source:       source,
		graceTicks:   DefaultGraceTicks,
		tickInterval: DefaultTickInterval,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RunStream) Run() *Run {
	return s.run
}

// Events yields the merged stream. It can be ranged over once; the sequence
// ends after a nil error on clean exhaustion, or with a single non-nil error
// when a fatal failure occurred. Breaking out of the loop cancels all pending
// waits and releases the notification subscription.
func (s *RunStream) Events(ctx context.Context) iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		if !s.consumed.CompareAndSwap(false, true) {
			yield(Event{}, ErrStreamConsumed)
			return
		}

		started := time.Now()
		metrics.RecordStreamStart()
		logger := s.logger.With("run_id", s.run.ID)

		m := &multiplexer{stream: s, run: s.run, logger: logger, results: make(chan fetchResult, 1)}
		m.ctx, m.cancel = context.WithCancel(ctx)
		err := m.loop(yield)
		m.shutdown()

		if err == nil && s.onComplete != nil {
			err = s.onComplete(ctx, s.run)
		}

		status := metrics.StatusCompleted
		switch {
		case errors.Is(err, errStopped):
			status = metrics.StatusCancelled
			logger.Info("Run stream abandoned by caller")
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			status = metrics.StatusCancelled
			logger.Info("Run stream cancelled", "error", err)
		case err != nil:
			status = metrics.StatusFailed
			logger.Error("Run stream failed", "error", err)
		default:
			logger.Info("Run stream finished", "items", len(s.run.History()))
		}
		metrics.RecordStreamEnd(status, time.Since(started).Seconds())

		if err != nil && !errors.Is(err, errStopped) {
			yield(Event{}, err)
		}
	}
}

type fetchResult struct {
	n   Notification
	err error
}

// multiplexer is the state of one Events call. All of its fields are only
// touched by the goroutine running loop; the fetch goroutine communicates
// through results.
type multiplexer struct {
	stream *RunStream
	run    *Run
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	results     chan fetchResult
	fetching    bool
	fetchCancel context.CancelFunc

	agentDone bool
	notifDone bool

	idle   int
	ticker *time.Ticker
}

// fetch starts the single outstanding wait on the notification source.
func (m *multiplexer) fetch() {
	ctx, cancel := context.WithCancel(m.ctx)
	m.fetchCancel = cancel
	m.fetching = true
	go func() {
		n, err := m.stream.source.Next(ctx)
		m.results <- fetchResult{n: n, err: err}
	}()
}

// stopFetch cancels the outstanding wait and returns whatever it resolved to.
func (m *multiplexer) stopFetch() fetchResult {
	m.fetchCancel()
	res := <-m.results
	m.fetching = false
	return res
}

func (m *multiplexer) shutdown() {
	m.cancel()
	if err := m.stream.source.Close(); err != nil {
		m.logger.Warn("Error closing notification source", "error", err)
	}
	if m.fetching {
		<-m.results
		m.fetching = false
	}
	if m.ticker != nil {
		m.ticker.Stop()
	}
	if m.stream.cancelRun != nil {
		m.stream.cancelRun()
	}
}

func (m *multiplexer) resetIdle() {
	m.idle = 0
	if m.ticker != nil {
		m.ticker.Reset(m.stream.tickInterval)
	}
}

func (m *multiplexer) loop(yield func(Event, error) bool) error {
	m.fetch()
	for !m.agentDone || !m.notifDone {
		var native <-chan struct{}
		if !m.agentDone {
			native = m.run.Ready()
		}
		var results <-chan fetchResult
		if m.fetching {
			results = m.results
		}
		var tick <-chan time.Time
		if m.agentDone && !m.notifDone {
			if m.ticker == nil {
				m.ticker = time.NewTicker(m.stream.tickInterval)
			}
			tick = m.ticker.C
		}

		select {
		case <-m.ctx.Done():
			return m.ctx.Err()

		case <-native:
			ev, ok, err := m.run.TryNext()
			switch {
			case errors.Is(err, io.EOF):
				m.agentDone = true
				m.resetIdle()
				m.logger.Debug("Agent run finished, waiting for notifications")
			case err != nil:
				return err
			case ok:
				if !yield(ev, nil) {
					return errStopped
				}
			}

		case res := <-results:
			m.fetching = false
			if err := m.handle(res, yield); err != nil {
				return err
			}

		case <-tick:
			m.idle++
			if m.idle < m.stream.graceTicks {
				continue
			}
			m.logger.Debug("Grace window elapsed without notifications", "ticks", m.idle)
			res := m.stopFetch()
			switch {
			case res.err == nil && !res.n.IsStreamEnd():
				// resolved just before the cancel landed
				if err := m.handle(res, yield); err != nil {
					return err
				}
				continue
			case res.err != nil && !errors.Is(res.err, context.Canceled) && !errors.Is(res.err, io.EOF):
				if err := m.ctx.Err(); err != nil {
					return err
				}
				return &TransportError{Err: res.err}
			}
			m.notifDone = true
		}
	}
	return nil
}

// handle processes one resolved notification wait and re-arms it.
func (m *multiplexer) handle(res fetchResult, yield func(Event, error) bool) error {
	m.resetIdle()
	if errors.Is(res.err, io.EOF) || (res.err == nil && res.n.IsStreamEnd()) {
		m.notifDone = true
		m.logger.Debug("Notification stream ended")
		return nil
	}
	if res.err != nil {
		if err := m.ctx.Err(); err != nil {
			return err
		}
		return &TransportError{Err: res.err}
	}
	if err := m.relay(res.n, yield); err != nil {
		return err
	}
	m.fetch()
	return nil
}

// relay turns one notification into UI events, a history item and one agent
// step.
func (m *multiplexer) relay(n Notification, yield func(Event, error) bool) error {
	fragments := TextFragments(n)
	if len(fragments) == 0 {
		metrics.RecordSkipped()
		m.logger.Debug("Skipping notification without text", "method", n.Method)
		return nil
	}

	itemID := newItemID("notif_")
	text := strings.Join(fragments, "")
	pending := Item{
		ID:        itemID,
		Kind:      ItemKindMessage,
		Role:      RoleAssistant,
		Status:    ItemStatusInProgress,
		CreatedAt: time.Now(),
	}

	events := make([]Event, 0, len(fragments)+3)
	events = append(events,
		Event{Type: EventTypeOutputItemAdded, ItemID: itemID, Item: &pending},
		Event{Type: EventTypeContentPartAdded, ItemID: itemID},
	)
	for _, fragment := range fragments {
		events = append(events, Event{Type: EventTypeTextDelta, ItemID: itemID, Delta: fragment})
	}
	events = append(events, Event{Type: EventTypeContentPartDone, ItemID: itemID, Text: text})

	for _, ev := range events {
		if !yield(ev, nil) {
			return errStopped
		}
	}

	m.run.Append(NotificationItem(itemID, text))
	metrics.RecordNotification(len(fragments))

	ev, err := Advance(m.ctx, m.run)
	switch {
	case err == nil:
		metrics.RecordStep(metrics.StepOK)
		if !yield(ev, nil) {
			return errStopped
		}
	case errors.Is(err, ErrAlreadyComplete):
		metrics.RecordStep(metrics.StepAlreadyComplete)
		m.logger.Debug("Agent already complete, notification kept in history", "item_id", itemID)
	default:
		metrics.RecordStep(metrics.StepFailed)
		return err
	}
	return nil
}

// StreamableAgent runs an agent while relaying the notifications of its
// remote tools into the run's stream.
type StreamableAgent struct {
	Agent    *Agent
	LLM      LLM
	Model    string
	Notifier Notifier
	// Store, when set, loads the session transcript before the run and saves
	// it after a clean end of the stream.
	Store   TranscriptStore
	Options []StreamOption
}

// RunStreamed subscribes to notifications, starts the agent on input and
// returns the stream to consume. sessionID selects the stored transcript and
// may be empty.
func (a *StreamableAgent) RunStreamed(ctx context.Context, sessionID, input string) (*RunStream, error) {
	var history []Item
	if a.Store != nil && sessionID != "" {
		var err error
		history, err = a.Store.LoadTranscript(ctx, sessionID)
		if err != nil {
			return nil, err
		}
	}

	// subscribe first so no notification of the run is missed
	source, err := a.Notifier.Subscribe(ctx)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	run := a.Agent.Start(runCtx, a.LLM, a.Model, input, history...)

	opts := append([]StreamOption{WithLogger(a.Agent.GetLogger())}, a.Options...)
	stream := NewRunStream(run, source, opts...)
	stream.cancelRun = cancel
	if a.Store != nil && sessionID != "" {
		stream.onComplete = func(ctx context.Context, run *Run) error {
			return a.Store.SaveTranscript(ctx, sessionID, run.History())
		}
	}
	return stream, nil
}
