package fusion

import (
	"time"
)

// FeedKind identifies which feed produced a measurement or estimate.
type FeedKind string

const (
	// FeedGPS is the sparse high-precision feed.
	FeedGPS FeedKind = "gps"
	// FeedNet is the denser low-precision feed.
	FeedNet FeedKind = "net"
	// FeedFused tags estimates produced by the filter itself.
	FeedFused FeedKind = "fused"
)

// UseFeeds selects which input feeds a session subscribes to.
type UseFeeds string

const (
	UseGPS       UseFeeds = "gps"
	UseNet       UseFeeds = "net"
	UseGPSAndNet UseFeeds = "gps_and_net"
)

// Valid reports whether u is one of the recognised feed selections.
func (u UseFeeds) Valid() bool {
	switch u {
	case UseGPS, UseNet, UseGPSAndNet:
		return true
	}
	return false
}

// wantsGPS reports whether the selection includes the gps feed.
func (u UseFeeds) wantsGPS() bool { return u == UseGPS || u == UseGPSAndNet }

// wantsNet reports whether the selection includes the net feed.
func (u UseFeeds) wantsNet() bool { return u == UseNet || u == UseGPSAndNet }

// Measurement is a single raw position fix from one of the input feeds.
// Latitude, Longitude and AccuracyMeters are always present; Altitude, Speed
// and Bearing depend on the reporting feed's capability.
type Measurement struct {
	Feed           FeedKind  `json:"feed"`
	Latitude       float64   `json:"latitude"`
	Longitude      float64   `json:"longitude"`
	Altitude       *float64  `json:"altitude,omitempty"`
	AccuracyMeters float64   `json:"accuracy_meters"`
	Speed          *float64  `json:"speed,omitempty"`
	Bearing        *float64  `json:"bearing,omitempty"`
	Time           time.Time `json:"time"`
}

// Estimate is a fused position/velocity estimate emitted by a session, or a
// raw measurement forwarded unfiltered (Feed then names the originating feed
// rather than FeedFused).
type Estimate struct {
	Feed           FeedKind  `json:"feed"`
	Latitude       float64   `json:"latitude"`
	Longitude      float64   `json:"longitude"`
	Altitude       *float64  `json:"altitude,omitempty"`
	AccuracyMeters float64   `json:"accuracy_meters"`
	Speed          *float64  `json:"speed,omitempty"`
	Bearing        *float64  `json:"bearing,omitempty"`
	Time           time.Time `json:"time"`
}

// SessionConfig holds the per-session options recognised by the Manager.
type SessionConfig struct {
	// Use selects which feeds drive the session.
	Use UseFeeds `json:"use"`
	// EmissionInterval is the cadence at which fused estimates are emitted.
	// Zero means "as fast as the timer allows". Negative values are clamped
	// to zero with a warning.
	EmissionInterval time.Duration `json:"emission_interval"`
	// GPSMinInterval drops gps fixes arriving closer together than this.
	GPSMinInterval time.Duration `json:"gps_min_interval"`
	// NetMinInterval drops net fixes arriving closer together than this.
	NetMinInterval time.Duration `json:"net_min_interval"`
	// ForwardRaw also surfaces raw fixes to the output callback, tagged by
	// originating feed, in addition to fused estimates.
	ForwardRaw bool `json:"forward_raw"`
}

// measurementEstimate converts a raw measurement into an Estimate for
// forwarding when SessionConfig.ForwardRaw is set.
func measurementEstimate(m Measurement) Estimate {
	return Estimate{
		Feed:           m.Feed,
		Latitude:       m.Latitude,
		Longitude:      m.Longitude,
		Altitude:       m.Altitude,
		AccuracyMeters: m.AccuracyMeters,
		Speed:          m.Speed,
		Bearing:        m.Bearing,
		Time:           m.Time,
	}
}
