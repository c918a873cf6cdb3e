package chat

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/C2SE29-Capstone2/kinderchat/internal/observability"
)

// DefaultInterval is the polling period used when none is configured.
const DefaultInterval = 2 * time.Second

// TickFunc performs one reconciliation pass.
type TickFunc func(ctx context.Context)

// Scheduler fires a tick immediately on start and then on every interval.
// Ticks run one at a time on the scheduler goroutine and are skipped, not
// queued, while the gate reports a send in flight.
type Scheduler struct {
	gate *Gate
	log  *zerolog.Logger

	mu      sync.Mutex
	running bool
	gen     uint64
	cancel  context.CancelFunc
	kick    chan struct{}
}

// NewScheduler creates a stopped scheduler guarded by gate. A nil gate never
// suppresses ticks.
func NewScheduler(gate *Gate, logger *zerolog.Logger) *Scheduler {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Scheduler{gate: gate, log: logger}
}

// Start begins ticking. It returns false and does nothing if the scheduler
// is already running.
func (s *Scheduler) Start(ctx context.Context, interval time.Duration, tick TickFunc) bool {
	if interval <= 0 {
		interval = DefaultInterval
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return false
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.running = true
	s.gen++
	s.cancel = cancel
	s.kick = make(chan struct{}, 1)

	go s.run(runCtx, s.gen, interval, s.kick, tick)
	return true
}

// Stop cancels the timer. A tick that has not started by the time Stop
// returns is never invoked with a live context; a tick already running sees
// its context cancelled.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.running = false
	s.cancel()
	s.cancel = nil
	s.kick = nil
}

// Running reports whether the scheduler is started.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Trigger requests one tick outside the interval. Requests coalesce while
// one is already pending.
func (s *Scheduler) Trigger() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

func (s *Scheduler) run(ctx context.Context, gen uint64, interval time.Duration, kick <-chan struct{}, tick TickFunc) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	defer s.finish(gen)

	s.fire(ctx, gen, tick)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.fire(ctx, gen, tick)
		case <-kick:
			s.fire(ctx, gen, tick)
		}
	}
}

// finish marks the scheduler stopped when its run loop ends on its own,
// which happens when the parent context is cancelled.
func (s *Scheduler) finish(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running || s.gen != gen {
		return
	}
	s.running = false
	s.cancel()
	s.cancel = nil
	s.kick = nil
	s.log.Debug().Msg("scheduler context done")
}

func (s *Scheduler) live(ctx context.Context, gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running && s.gen == gen && ctx.Err() == nil
}

func (s *Scheduler) fire(ctx context.Context, gen uint64, tick TickFunc) {
	if !s.live(ctx, gen) {
		return
	}

	if s.gate != nil && s.gate.Sending() {
		s.log.Debug().Msg("send in flight, skipping tick")
		observability.IncTick(observability.TickSkipped)
		return
	}

	// Stop may have run while the gate was consulted.
	if !s.live(ctx, gen) {
		return
	}
	tick(ctx)
}
