package fusion

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/banshee-data/geofuse/internal/monitoring"
)

// stubFeed is an in-memory FeedSource for manager tests.
type stubFeed struct {
	mu   sync.Mutex
	next int
	subs map[string]chan Measurement
}

func newStubFeed() *stubFeed {
	return &stubFeed{subs: make(map[string]chan Measurement)}
}

func (f *stubFeed) Subscribe() (string, chan Measurement) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	id := string(rune('a' + f.next))
	ch := make(chan Measurement, 16)
	f.subs[id] = ch
	return id, ch
}

func (f *stubFeed) Unsubscribe(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ch, ok := f.subs[id]; ok {
		close(ch)
		delete(f.subs, id)
	}
}

func (f *stubFeed) publish(m Measurement) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range f.subs {
		ch <- m
	}
}

func (f *stubFeed) subscriberCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

func TestManager_StartValidation(t *testing.T) {
	muteLogs(t)
	m := NewManager(DefaultTuning(), newStubFeed(), nil)

	if _, err := m.Start(SessionConfig{Use: UseGPS}, nil); !errors.Is(err, ErrNilCallback) {
		t.Errorf("expected ErrNilCallback, got %v", err)
	}

	out := func(Estimate) {}
	if _, err := m.Start(SessionConfig{Use: "bogus"}, out); !errors.Is(err, ErrInvalidFeeds) {
		t.Errorf("expected ErrInvalidFeeds, got %v", err)
	}
	if _, err := m.Start(SessionConfig{Use: UseNet}, out); !errors.Is(err, ErrFeedUnavailable) {
		t.Errorf("expected ErrFeedUnavailable for missing net source, got %v", err)
	}
	if _, err := m.Start(SessionConfig{Use: UseGPSAndNet}, out); !errors.Is(err, ErrFeedUnavailable) {
		t.Errorf("expected ErrFeedUnavailable for partial source set, got %v", err)
	}
}

func TestManager_NegativeIntervalsClamped(t *testing.T) {
	var warnings int
	original := monitoring.Logf
	monitoring.SetLogger(func(string, ...interface{}) { warnings++ })
	defer func() { monitoring.Logf = original }()

	m := NewManager(DefaultTuning(), newStubFeed(), nil)
	handle, err := m.Start(SessionConfig{
		Use:              UseGPS,
		EmissionInterval: -time.Second,
		GPSMinInterval:   -time.Second,
	}, func(Estimate) {})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	defer m.Stop(handle)

	m.mu.Lock()
	cfg := m.sessions[handle].session.Config()
	m.mu.Unlock()

	if cfg.EmissionInterval != 0 || cfg.GPSMinInterval != 0 {
		t.Errorf("negative intervals must clamp to zero, got %+v", cfg)
	}
	if warnings < 2 {
		t.Errorf("each clamped interval must be warned about, got %d warnings", warnings)
	}
}

func TestManager_EndToEndThroughFeed(t *testing.T) {
	muteLogs(t)
	gps := newStubFeed()
	m := NewManager(DefaultTuning(), gps, nil)

	var c estimateCollector
	handle, err := m.Start(SessionConfig{
		Use:              UseGPS,
		EmissionInterval: 10 * time.Millisecond,
	}, c.collect)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	defer m.Stop(handle)

	gps.publish(gpsFix(52.0, 13.0, 5.0))
	got := c.waitFor(t, 2, time.Second)
	if got[0].Feed != FeedFused {
		t.Errorf("expected fused estimates, got %v", got[0].Feed)
	}
}

func TestManager_StopIsIdempotent(t *testing.T) {
	muteLogs(t)
	gps := newStubFeed()
	m := NewManager(DefaultTuning(), gps, nil)

	handle, err := m.Start(SessionConfig{Use: UseGPS, EmissionInterval: time.Hour}, func(Estimate) {})
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	m.Stop(handle)
	if gps.subscriberCount() != 0 {
		t.Error("stop must release the feed subscription")
	}

	m.Stop(handle)          // already stopped: no-op
	m.Stop("ses_never-was") // never registered: no-op
}

func TestManager_ThrottlesFeedByMinInterval(t *testing.T) {
	muteLogs(t)
	gps := newStubFeed()
	m := NewManager(DefaultTuning(), gps, nil)

	var c estimateCollector
	handle, err := m.Start(SessionConfig{
		Use:              UseGPS,
		EmissionInterval: 5 * time.Millisecond,
		GPSMinInterval:   time.Hour, // admits exactly one fix
		ForwardRaw:       true,
	}, c.collect)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	defer m.Stop(handle)

	for i := 0; i < 5; i++ {
		gps.publish(gpsFix(52.0+float64(i), 13.0, 5.0))
	}

	c.waitFor(t, 1, time.Second)
	// Give any stragglers a chance to surface before counting.
	time.Sleep(30 * time.Millisecond)
	var raw int
	for _, est := range c.snapshot() {
		if est.Feed == FeedGPS {
			raw++
		}
	}
	if raw != 1 {
		t.Errorf("min-interval gate should admit exactly one raw fix, got %d", raw)
	}
}

func TestManager_StopAll(t *testing.T) {
	muteLogs(t)
	gps := newStubFeed()
	m := NewManager(DefaultTuning(), gps, nil)

	for i := 0; i < 3; i++ {
		if _, err := m.Start(SessionConfig{Use: UseGPS, EmissionInterval: time.Hour}, func(Estimate) {}); err != nil {
			t.Fatalf("start %d: %v", i, err)
		}
	}
	if got := len(m.Sessions()); got != 3 {
		t.Fatalf("expected 3 live sessions, got %d", got)
	}

	m.StopAll()
	if got := len(m.Sessions()); got != 0 {
		t.Errorf("expected no sessions after StopAll, got %d", got)
	}
	if gps.subscriberCount() != 0 {
		t.Errorf("expected all subscriptions released, have %d", gps.subscriberCount())
	}
}
