package poller

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thermostat-io/icomfort-bridge/internal/datadog"
	"github.com/thermostat-io/icomfort-bridge/internal/state"
)

// Status is the bridge's view of cloud connectivity.
type Status string

const (
	StatusOnline  Status = "ONLINE"
	StatusOffline Status = "OFFLINE"
)

// Refresher runs one poll cycle and exposes the resulting snapshot.
// Satisfied by *state.Repository.
type Refresher interface {
	Refresh(ctx context.Context) error
	Snapshot() *state.Snapshot
}

// StatusListener is notified on connectivity transitions. Called from the
// poller goroutine; listeners that block slow the loop down.
type StatusListener func(Status)

// SnapshotListener receives every published snapshot after a cycle.
type SnapshotListener func(*state.Snapshot)

// Poller drives the refresh cycle on a fixed delay: the interval starts
// counting when a cycle finishes, so a slow service stretches the period
// instead of stacking requests. Connectivity transitions are deduplicated
// before listeners hear about them.
type Poller struct {
	repo     Refresher
	interval time.Duration

	mu        sync.Mutex
	cancel    context.CancelFunc
	done      chan struct{}
	status    Status
	kick      chan struct{}
	listeners []StatusListener
	snapshots []SnapshotListener
}

func New(repo Refresher, interval time.Duration) *Poller {
	return &Poller{
		repo:     repo,
		interval: interval,
		status:   StatusOffline,
		kick:     make(chan struct{}, 1),
	}
}

// OnStatusChange registers a connectivity listener. Must be called before
// Start.
func (p *Poller) OnStatusChange(fn StatusListener) {
	p.listeners = append(p.listeners, fn)
}

// OnSnapshot registers a snapshot listener. Must be called before Start.
func (p *Poller) OnSnapshot(fn SnapshotListener) {
	p.snapshots = append(p.snapshots, fn)
}

// Status returns the current connectivity status.
func (p *Poller) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// Start launches the poll loop. Starting a running poller cancels the
// existing loop first, so repeated Starts never stack tasks.
func (p *Poller) Start() {
	p.Stop()
	p.mu.Lock()
	defer p.mu.Unlock()
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan struct{})
	go p.run(ctx, p.done)
	log.Info().Dur("interval", p.interval).Msg("Poller started")
}

// Stop halts the loop and waits for the in-flight cycle to finish.
// Stopping a stopped poller is a no-op.
func (p *Poller) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel = nil
	p.done = nil
	p.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	log.Info().Msg("Poller stopped")
}

// ReportTimeout lets the write path flip connectivity to OFFLINE without
// waiting for the next cycle, and schedules an immediate poll to confirm.
func (p *Poller) ReportTimeout() {
	p.setStatus(StatusOffline)
	select {
	case p.kick <- struct{}{}:
	default:
	}
}

func (p *Poller) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	timer := time.NewTimer(0) // first cycle immediately
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.kick:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		case <-timer.C:
		}

		p.cycle(ctx)

		select {
		case <-ctx.Done():
			return
		default:
		}
		timer.Reset(p.interval)
	}
}

func (p *Poller) cycle(ctx context.Context) {
	start := time.Now()
	err := p.repo.Refresh(ctx)
	datadog.Timing("poll.duration", time.Since(start))

	if ctx.Err() != nil {
		return
	}

	if err != nil {
		log.Warn().Err(err).Msg("Poll cycle failed")
		datadog.Count("poll.failure", 1)
		p.setStatus(StatusOffline)
	} else {
		datadog.Count("poll.success", 1)
		p.setStatus(StatusOnline)
	}

	snap := p.repo.Snapshot()
	for _, fn := range p.snapshots {
		fn(snap)
	}
}

func (p *Poller) setStatus(next Status) {
	p.mu.Lock()
	prev := p.status
	p.status = next
	p.mu.Unlock()
	if prev == next {
		return
	}
	log.Info().Str("from", string(prev)).Str("to", string(next)).Msg("Connectivity changed")
	datadog.Gauge("bridge.online", onlineValue(next))
	for _, fn := range p.listeners {
		fn(next)
	}
}

func onlineValue(s Status) float64 {
	if s == StatusOnline {
		return 1
	}
	return 0
}
