package poller

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thermostat-io/icomfort-bridge/internal/api"
	"github.com/thermostat-io/icomfort-bridge/internal/state"
)

// scriptedRefresher returns errors from a script, then nil forever.
type scriptedRefresher struct {
	mu     sync.Mutex
	script []error
	calls  int
	snap   *state.Snapshot
}

func newScriptedRefresher(script ...error) *scriptedRefresher {
	return &scriptedRefresher{script: script, snap: &state.Snapshot{}}
}

func (s *scriptedRefresher) Refresh(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if len(s.script) > 0 {
		err := s.script[0]
		s.script = s.script[1:]
		return err
	}
	return nil
}

func (s *scriptedRefresher) Snapshot() *state.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

func (s *scriptedRefresher) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestPoller_TransitionsAreDeduplicated(t *testing.T) {
	refresher := newScriptedRefresher(nil, nil, api.ErrTimeout, api.ErrTimeout, nil)

	var mu sync.Mutex
	var transitions []Status
	p := New(refresher, time.Millisecond)
	p.OnStatusChange(func(s Status) {
		mu.Lock()
		transitions = append(transitions, s)
		mu.Unlock()
	})

	p.Start()
	defer p.Stop()

	waitFor(t, func() bool { return refresher.callCount() >= 6 })
	p.Stop()

	mu.Lock()
	defer mu.Unlock()
	// Two ONLINE cycles, two OFFLINE cycles, then ONLINE again: listeners
	// hear each edge exactly once.
	assert.Equal(t, []Status{StatusOnline, StatusOffline, StatusOnline}, transitions)
}

func TestPoller_SnapshotListenersRunEveryCycle(t *testing.T) {
	refresher := newScriptedRefresher()

	var mu sync.Mutex
	var got int
	p := New(refresher, time.Millisecond)
	p.OnSnapshot(func(snap *state.Snapshot) {
		mu.Lock()
		got++
		mu.Unlock()
		require.NotNil(t, snap)
	})

	p.Start()
	defer p.Stop()

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return got >= 3
	})
}

func TestPoller_StartAndStopAreIdempotent(t *testing.T) {
	refresher := newScriptedRefresher()
	p := New(refresher, time.Millisecond)

	p.Start()
	p.Start() // restarts the loop, never stacks a second one
	waitFor(t, func() bool { return refresher.callCount() >= 1 })

	p.Stop()
	p.Stop() // second stop is a no-op

	settled := refresher.callCount()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, settled, refresher.callCount(), "no cycles after Stop")

	// Restart works.
	p.Start()
	waitFor(t, func() bool { return refresher.callCount() > settled })
	p.Stop()
}

func TestPoller_ReportTimeoutFlipsOfflineImmediately(t *testing.T) {
	refresher := newScriptedRefresher()
	p := New(refresher, time.Hour) // no natural cycles after the first

	var mu sync.Mutex
	var transitions []Status
	p.OnStatusChange(func(s Status) {
		mu.Lock()
		transitions = append(transitions, s)
		mu.Unlock()
	})

	p.Start()
	defer p.Stop()
	waitFor(t, func() bool { return p.Status() == StatusOnline })

	before := refresher.callCount()
	p.ReportTimeout()

	// The kick schedules a confirming cycle without waiting out the hour;
	// that cycle succeeds and brings the bridge back ONLINE.
	waitFor(t, func() bool { return refresher.callCount() > before })
	waitFor(t, func() bool { return p.Status() == StatusOnline })

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []Status{StatusOnline, StatusOffline, StatusOnline}, transitions)
}
