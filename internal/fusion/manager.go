package fusion

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/geofuse/internal/monitoring"
)

// Configuration errors rejected synchronously by Manager.Start.
var (
	ErrNilCallback     = fmt.Errorf("output callback can't be nil")
	ErrInvalidFeeds    = fmt.Errorf("unrecognised feed selection")
	ErrFeedUnavailable = fmt.Errorf("selected feed has no configured source")
)

// FeedSource is the subscription surface a measurement feed exposes to the
// Manager. Subscribe returns a unique subscriber ID and a channel of fixes;
// Unsubscribe closes the channel and stops delivery. internal/feeds provides
// the serial, UDP and mock implementations.
type FeedSource interface {
	Subscribe() (string, chan Measurement)
	Unsubscribe(string)
}

// Manager owns the session registry. Each Start creates one independent
// Session wired to the selected feeds; Stop tears it down. Sessions share no
// filter state and run fully in parallel.
type Manager struct {
	tuning Tuning
	gps    FeedSource // may be nil when no gps source is configured
	net    FeedSource // may be nil when no net source is configured

	mu       sync.Mutex
	sessions map[string]*managedSession
}

type managedSession struct {
	session *Session
	// unsubscribe tears down the feed subscriptions; closing the
	// subscription channels stops the forwarder goroutines.
	unsubscribe []func()
	forwarders  sync.WaitGroup
}

// NewManager creates a Manager using the given feed sources. Either source
// may be nil; Start rejects configurations that select a missing feed.
func NewManager(tuning Tuning, gps, net FeedSource) *Manager {
	return &Manager{
		tuning:   tuning,
		gps:      gps,
		net:      net,
		sessions: make(map[string]*managedSession),
	}
}

// Start validates cfg, creates a session and subscribes it to the selected
// feeds. The returned handle identifies the session for Stop. Estimates (and,
// with cfg.ForwardRaw, raw fixes) are delivered to out from the session's
// event loop.
func (m *Manager) Start(cfg SessionConfig, out func(Estimate)) (string, error) {
	if out == nil {
		return "", ErrNilCallback
	}
	if !cfg.Use.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidFeeds, cfg.Use)
	}
	if cfg.Use.wantsGPS() && m.gps == nil {
		return "", fmt.Errorf("%w: gps", ErrFeedUnavailable)
	}
	if cfg.Use.wantsNet() && m.net == nil {
		return "", fmt.Errorf("%w: net", ErrFeedUnavailable)
	}

	// Out-of-range intervals are clamped, not rejected.
	cfg.EmissionInterval = clampInterval("emission_interval", cfg.EmissionInterval)
	cfg.GPSMinInterval = clampInterval("gps_min_interval", cfg.GPSMinInterval)
	cfg.NetMinInterval = clampInterval("net_min_interval", cfg.NetMinInterval)

	handle := fmt.Sprintf("ses_%s", uuid.NewString())
	ms := &managedSession{
		session: NewSession(handle, cfg, m.tuning, out),
	}

	if cfg.Use.wantsGPS() {
		m.attach(ms, m.gps, cfg.GPSMinInterval)
	}
	if cfg.Use.wantsNet() {
		m.attach(ms, m.net, cfg.NetMinInterval)
	}

	m.mu.Lock()
	m.sessions[handle] = ms
	m.mu.Unlock()

	return handle, nil
}

// attach subscribes the session to one feed source and starts a forwarder
// goroutine applying the feed's min-interval gate.
func (m *Manager) attach(ms *managedSession, src FeedSource, minInterval time.Duration) {
	subID, ch := src.Subscribe()
	ms.unsubscribe = append(ms.unsubscribe, func() { src.Unsubscribe(subID) })

	gate := NewRateGate(minInterval)
	ms.forwarders.Add(1)
	go func() {
		defer ms.forwarders.Done()
		for fix := range ch {
			if !gate.Allow(time.Now()) {
				continue
			}
			ms.session.Offer(fix)
		}
	}()
}

// Stop tears down the session identified by handle: feed subscriptions are
// released and the emission timer cancelled. Stopping an unknown or
// already-stopped handle is a no-op, reported once as a diagnostic.
func (m *Manager) Stop(handle string) {
	m.mu.Lock()
	ms, ok := m.sessions[handle]
	if ok {
		delete(m.sessions, handle)
	}
	m.mu.Unlock()

	if !ok {
		monitoring.Logf("fusion: stop for unknown session %q, ignoring", handle)
		return
	}

	for _, unsub := range ms.unsubscribe {
		unsub()
	}
	ms.forwarders.Wait()
	ms.session.Close()
}

// StopAll stops every live session. Used at service shutdown.
func (m *Manager) StopAll() {
	m.mu.Lock()
	handles := make([]string, 0, len(m.sessions))
	for h := range m.sessions {
		handles = append(handles, h)
	}
	m.mu.Unlock()

	for _, h := range handles {
		m.Stop(h)
	}
}

// Sessions returns the handles of all live sessions.
func (m *Manager) Sessions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	handles := make([]string, 0, len(m.sessions))
	for h := range m.sessions {
		handles = append(handles, h)
	}
	return handles
}

// clampInterval clamps a negative duration to zero with a warning, matching
// the "clamp, don't reject" policy for out-of-range intervals.
func clampInterval(name string, d time.Duration) time.Duration {
	if d < 0 {
		monitoring.Logf("fusion: %s < 0, clamping to 0", name)
		return 0
	}
	return d
}
