package chat

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/C2SE29-Capstone2/kinderchat/internal/observability"
)

// AlertFunc receives failures the user should see. It is called from the
// scheduler goroutine.
type AlertFunc func(err error)

// Option configures an Engine.
type Option func(*Engine)

// WithInterval sets the polling period.
func WithInterval(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.interval = d
		}
	}
}

// WithLogger sets the engine logger.
func WithLogger(logger *zerolog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.log = logger
		}
	}
}

// WithAlert sets the callback for user-visible sync failures.
func WithAlert(fn AlertFunc) Option {
	return func(e *Engine) {
		e.alert = fn
	}
}

// WithClock overrides the timestamp source for provisional messages.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// conversation is the state of one open channel. A channel switch replaces
// it wholesale, so nothing carries over between channels.
type conversation struct {
	channel   Channel
	store     *Store
	gate      *Gate
	scheduler *Scheduler

	loaded  atomic.Bool
	alerted atomic.Bool
}

// Engine keeps one channel's message list in sync with the backend by
// polling, and sends messages optimistically.
type Engine struct {
	transport Transport
	session   Session
	interval  time.Duration
	log       *zerolog.Logger
	alert     AlertFunc
	now       func() time.Time
	newRef    func() string

	mu      sync.Mutex
	current *conversation

	draftMu sync.Mutex
	draft   string
}

// NewEngine creates a stopped engine.
func NewEngine(transport Transport, session Session, opts ...Option) *Engine {
	nop := zerolog.Nop()
	e := &Engine{
		transport: transport,
		session:   session,
		interval:  DefaultInterval,
		log:       &nop,
		now:       time.Now,
		newRef:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start opens ch and begins polling it. Starting the channel that is already
// open is a no-op. Starting a different channel stops the previous one first
// and begins from an empty store.
func (e *Engine) Start(ctx context.Context, ch Channel) error {
	if err := ch.Validate(); err != nil {
		return err
	}
	if e.session.Token() == "" {
		return ErrNoToken
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if cur := e.current; cur != nil {
		if cur.channel == ch && cur.scheduler.Running() {
			return nil
		}
		cur.scheduler.Stop()
		e.log.Info().Str("from", cur.channel.String()).Str("to", ch.String()).Msg("switching channel")
	}

	gate := &Gate{}
	conv := &conversation{
		channel:   ch,
		store:     NewStore(ch.ID()),
		gate:      gate,
		scheduler: NewScheduler(gate, e.log),
	}
	e.current = conv
	conv.scheduler.Start(ctx, e.interval, func(ctx context.Context) {
		e.tick(ctx, conv)
	})

	e.log.Info().Str("channel", ch.String()).Dur("interval", e.interval).Msg("sync started")
	return nil
}

// Stop halts polling and closes the current channel. The store of the
// closed channel is discarded.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current == nil {
		return
	}
	e.current.scheduler.Stop()
	e.log.Info().Str("channel", e.current.channel.String()).Msg("sync stopped")
	e.current = nil
}

// Running reports whether a channel is open and polling.
func (e *Engine) Running() bool {
	conv := e.conversation()
	return conv != nil && conv.scheduler.Running()
}

// Channel returns the open channel.
func (e *Engine) Channel() (Channel, bool) {
	conv := e.conversation()
	if conv == nil {
		return Channel{}, false
	}
	return conv.channel, true
}

// Store returns the store of the open channel, or nil.
func (e *Engine) Store() *Store {
	conv := e.conversation()
	if conv == nil {
		return nil
	}
	return conv.store
}

// Messages returns the open channel's messages in display order.
func (e *Engine) Messages() []Message {
	if s := e.Store(); s != nil {
		return s.Messages()
	}
	return nil
}

// Changes returns the change signal of the open channel's store. A nil
// channel is returned when nothing is open.
func (e *Engine) Changes() <-chan struct{} {
	if s := e.Store(); s != nil {
		return s.Changes()
	}
	return nil
}

// Sending reports whether a send is in flight on the open channel.
func (e *Engine) Sending() bool {
	conv := e.conversation()
	return conv != nil && conv.gate.Sending()
}

func (e *Engine) conversation() *conversation {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current
}

func (e *Engine) isCurrent(conv *conversation) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current == conv
}

// close stops conv if it is still the open conversation.
func (e *Engine) close(conv *conversation) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current != conv {
		return
	}
	conv.scheduler.Stop()
	e.current = nil
}

func (e *Engine) tick(ctx context.Context, conv *conversation) {
	if !e.isCurrent(conv) {
		return
	}

	token := e.session.Token()
	if token == "" {
		e.log.Warn().Str("channel", conv.channel.String()).Msg("auth token gone, stopping sync")
		e.close(conv)
		observability.IncTick(observability.TickStopped)
		e.notify(&SyncError{Channel: conv.channel, Err: ErrNoToken})
		return
	}

	issuedAt := conv.store.Revision()
	ch := conv.channel
	snapshot, err := e.transport.FetchHistory(ctx, token, ch.ClassroomID, ch.CounterpartID, ch.IsTeacher())

	if ctx.Err() != nil || !e.isCurrent(conv) {
		observability.IncTick(observability.TickDiscarded)
		return
	}
	if err != nil {
		observability.IncTick(observability.TickFailed)
		e.log.Warn().Err(err).Str("channel", ch.String()).Msg("fetch history failed")
		if errors.Is(err, ErrUnauthorized) {
			e.close(conv)
			e.notify(&SyncError{Channel: ch, Err: err})
			return
		}
		if !conv.loaded.Load() && conv.store.Len() == 0 && conv.alerted.CompareAndSwap(false, true) {
			e.notify(&SyncError{Channel: ch, Err: err})
		}
		return
	}

	conv.loaded.Store(true)
	changed := conv.store.Reconcile(snapshot, issuedAt)
	observability.IncTick(observability.TickOK)
	observability.ObserveReconcile(changed)
	if changed {
		e.log.Debug().Str("channel", ch.String()).Int("messages", conv.store.Len()).Msg("messages updated")
	}
}

func (e *Engine) notify(err error) {
	if e.alert != nil {
		e.alert(err)
	}
}
