package feeds

import (
	"bufio"
	"context"
	crand "crypto/rand"
	"encoding/hex"
	"errors"
	"sync"

	"github.com/banshee-data/geofuse/internal/fusion"
	"github.com/banshee-data/geofuse/internal/monitoring"
)

// ErrSkipLine is returned by a Parser for transport lines that carry no fix
// (unsupported NMEA sentences, keepalives, partial reads). The Mux drops such
// lines silently.
var ErrSkipLine = errors.New("line carries no fix")

// subscriberBuffer is the capacity of each subscriber channel. A subscriber
// that falls this far behind starts losing fixes rather than stalling the
// monitor loop.
const subscriberBuffer = 16

// Parser turns one transport line into a measurement.
type Parser interface {
	Parse(line string) (fusion.Measurement, error)
}

// Mux reads lines from a feed transport, parses them into measurements and
// fans them out to any number of subscribers. It implements
// fusion.FeedSource; one Mux per physical feed, shared by all sessions that
// selected that feed.
type Mux struct {
	feed   fusion.FeedKind
	port   Porter
	parser Parser

	subscribers  map[string]chan fusion.Measurement
	subscriberMu sync.Mutex
	closing      bool
}

// NewMux creates a mux for the given feed identity over the given transport.
func NewMux(feed fusion.FeedKind, port Porter, parser Parser) *Mux {
	return &Mux{
		feed:        feed,
		port:        port,
		parser:      parser,
		subscribers: make(map[string]chan fusion.Measurement),
	}
}

// Feed returns the feed identity stamped on every measurement.
func (m *Mux) Feed() fusion.FeedKind { return m.feed }

// randomID generates a random subscriber ID (8 byte random hex encoded value).
func randomID() string {
	b := make([]byte, 8)
	crand.Read(b)
	return hex.EncodeToString(b)
}

// Subscribe registers a new measurement channel and returns its ID for
// Unsubscribe.
func (m *Mux) Subscribe() (string, chan fusion.Measurement) {
	id := randomID()
	ch := make(chan fusion.Measurement, subscriberBuffer)
	m.subscriberMu.Lock()
	defer m.subscriberMu.Unlock()
	m.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (m *Mux) Unsubscribe(id string) {
	m.subscriberMu.Lock()
	defer m.subscriberMu.Unlock()
	if ch, ok := m.subscribers[id]; ok {
		close(ch)
		delete(m.subscribers, id)
	}
}

// Monitor reads lines from the transport until the context is cancelled or
// the transport fails, broadcasting each parsed fix to all subscribers.
func (m *Mux) Monitor(ctx context.Context) error {
	scan := bufio.NewScanner(m.port)

	lineChan := make(chan string)
	scanErrChan := make(chan error, 1)

	// The blocking scan.Scan lives in its own goroutine so the outer loop
	// can also await context cancellation.
	go func() {
		defer close(lineChan)
		for scan.Scan() {
			select {
			case lineChan <- scan.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := scan.Err(); err != nil {
			select {
			case scanErrChan <- err:
			case <-ctx.Done():
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-scanErrChan:
			return err

		case line, ok := <-lineChan:
			if !ok {
				// Transport drained; treat EOF as a clean stop.
				return scan.Err()
			}
			fix, err := m.parser.Parse(line)
			if err != nil {
				if !errors.Is(err, ErrSkipLine) {
					monitoring.Logf("feeds: %s parse error: %v (line %q)", m.feed, err, line)
				}
				continue
			}
			fix.Feed = m.feed
			m.broadcast(fix)
		}
	}
}

// broadcast delivers a fix to every subscriber without blocking; a full
// subscriber loses the fix.
func (m *Mux) broadcast(fix fusion.Measurement) {
	m.subscriberMu.Lock()
	defer m.subscriberMu.Unlock()
	if m.closing {
		return
	}
	for id, ch := range m.subscribers {
		select {
		case ch <- fix:
		default:
			monitoring.Logf("feeds: %s subscriber %s backlogged, dropping fix", m.feed, id)
		}
	}
}

// Close closes the transport and every subscriber channel. Safe to call once
// Monitor has returned or concurrently with it.
func (m *Mux) Close() error {
	m.subscriberMu.Lock()
	if !m.closing {
		m.closing = true
		for id, ch := range m.subscribers {
			close(ch)
			delete(m.subscribers, id)
		}
	}
	m.subscriberMu.Unlock()
	return m.port.Close()
}
