// Package main provides an offline simulator for the fusion filter. It drives
// synthetic gps/net fixes with configurable noise through the estimator,
// reports error statistics against the true track, and optionally renders a
// PNG comparing raw and fused positions.
package main

import (
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand"
	"time"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/geofuse/internal/fusion"
)

type simConfig struct {
	Steps        int
	Seed         int64
	GPSNoiseM    float64
	NetNoiseM    float64
	GPSEvery     int // gps fix every N steps
	NetEvery     int // net fix every N steps
	SpeedMPerSec float64
	PlotFile     string
}

// simPoint is one step of the run: the true position plus whatever the
// simulated feeds and the filter produced at that step.
type simPoint struct {
	step     int
	trueLat  float64
	trueLon  float64
	rawLat   *float64
	rawLon   *float64
	fusedLat float64
	fusedLon float64
}

func main() {
	cfg := simConfig{}
	flag.IntVar(&cfg.Steps, "steps", 120, "Simulation steps (one per second)")
	flag.Int64Var(&cfg.Seed, "seed", 42, "Random seed for measurement noise")
	flag.Float64Var(&cfg.GPSNoiseM, "gps-noise", 6.0, "Gps measurement noise stddev (meters)")
	flag.Float64Var(&cfg.NetNoiseM, "net-noise", 35.0, "Net measurement noise stddev (meters)")
	flag.IntVar(&cfg.GPSEvery, "gps-every", 5, "Emit a gps fix every N steps (0 disables)")
	flag.IntVar(&cfg.NetEvery, "net-every", 1, "Emit a net fix every N steps (0 disables)")
	flag.Float64Var(&cfg.SpeedMPerSec, "speed", 8.0, "True northbound speed (m/s)")
	flag.StringVar(&cfg.PlotFile, "plot", "", "Write a track comparison PNG to this path")
	flag.Parse()

	points := runSimulation(cfg)
	report(cfg, points)

	if cfg.PlotFile != "" {
		if err := renderPlot(cfg.PlotFile, points); err != nil {
			log.Fatalf("failed to render plot: %v", err)
		}
		fmt.Printf("wrote %s\n", cfg.PlotFile)
	}
}

func runSimulation(cfg simConfig) []simPoint {
	rng := rand.New(rand.NewSource(cfg.Seed))
	est := fusion.NewEstimator(fusion.DefaultTuning())

	const startLat, startLon = 52.5200, 13.4050
	latStepPerSec := cfg.SpeedMPerSec / fusion.DegToMeter

	start := time.Now()
	points := make([]simPoint, 0, cfg.Steps)
	for i := 0; i < cfg.Steps; i++ {
		now := start.Add(time.Duration(i) * time.Second)
		trueLat := startLat + float64(i)*latStepPerSec
		trueLon := startLon

		p := simPoint{step: i, trueLat: trueLat, trueLon: trueLon}

		if cfg.NetEvery > 0 && i%cfg.NetEvery == 0 {
			m := noisyFix(rng, fusion.FeedNet, trueLat, trueLon, cfg.NetNoiseM, now)
			est.Observe(m)
			p.rawLat, p.rawLon = &m.Latitude, &m.Longitude
		}
		if cfg.GPSEvery > 0 && i%cfg.GPSEvery == 0 {
			m := noisyFix(rng, fusion.FeedGPS, trueLat, trueLon, cfg.GPSNoiseM, now)
			est.Observe(m)
			p.rawLat, p.rawLon = &m.Latitude, &m.Longitude
		}

		e, ok := est.Emit(now)
		if !ok {
			continue
		}
		p.fusedLat, p.fusedLon = e.Latitude, e.Longitude
		points = append(points, p)
	}
	return points
}

func noisyFix(rng *rand.Rand, feed fusion.FeedKind, lat, lon, noiseM float64, now time.Time) fusion.Measurement {
	return fusion.Measurement{
		Feed:           feed,
		Latitude:       lat + rng.NormFloat64()*noiseM/fusion.DegToMeter,
		Longitude:      lon + rng.NormFloat64()*noiseM/fusion.DegToMeter,
		AccuracyMeters: noiseM,
		Time:           now,
	}
}

func report(cfg simConfig, points []simPoint) {
	rawErrs := make([]float64, 0, len(points))
	fusedErrs := make([]float64, 0, len(points))
	for _, p := range points {
		fusedErrs = append(fusedErrs, distanceMeters(p.trueLat, p.trueLon, p.fusedLat, p.fusedLon))
		if p.rawLat != nil {
			rawErrs = append(rawErrs, distanceMeters(p.trueLat, p.trueLon, *p.rawLat, *p.rawLon))
		}
	}

	fmt.Printf("simulated %d steps (gps noise %.1fm every %d, net noise %.1fm every %d)\n",
		cfg.Steps, cfg.GPSNoiseM, cfg.GPSEvery, cfg.NetNoiseM, cfg.NetEvery)
	fmt.Printf("raw   error: mean %6.2fm  stddev %6.2fm  (n=%d)\n",
		stat.Mean(rawErrs, nil), stat.StdDev(rawErrs, nil), len(rawErrs))
	fmt.Printf("fused error: mean %6.2fm  stddev %6.2fm  (n=%d)\n",
		stat.Mean(fusedErrs, nil), stat.StdDev(fusedErrs, nil), len(fusedErrs))
}

// distanceMeters approximates the flat-earth distance between two nearby
// coordinates. Fine for simulation tracks spanning a few kilometers.
func distanceMeters(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := (lat2 - lat1) * fusion.DegToMeter
	dLon := (lon2 - lon1) * fusion.DegToMeter * math.Cos(lat1*math.Pi/180)
	return math.Hypot(dLat, dLon)
}

func renderPlot(path string, points []simPoint) error {
	p := plot.New()
	p.Title.Text = "Fusion Simulation"
	p.X.Label.Text = "Longitude"
	p.Y.Label.Text = "Latitude"

	truePts := make(plotter.XYs, 0, len(points))
	fusedPts := make(plotter.XYs, 0, len(points))
	rawPts := make(plotter.XYs, 0, len(points))
	for _, pt := range points {
		truePts = append(truePts, plotter.XY{X: pt.trueLon, Y: pt.trueLat})
		fusedPts = append(fusedPts, plotter.XY{X: pt.fusedLon, Y: pt.fusedLat})
		if pt.rawLat != nil {
			rawPts = append(rawPts, plotter.XY{X: *pt.rawLon, Y: *pt.rawLat})
		}
	}

	trueLine, err := plotter.NewLine(truePts)
	if err != nil {
		return err
	}
	trueLine.Width = vg.Points(1)

	fusedLine, err := plotter.NewLine(fusedPts)
	if err != nil {
		return err
	}
	fusedLine.Width = vg.Points(1)
	fusedLine.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}

	rawScatter, err := plotter.NewScatter(rawPts)
	if err != nil {
		return err
	}

	p.Add(trueLine, fusedLine, rawScatter)
	p.Legend.Add("true", trueLine)
	p.Legend.Add("fused", fusedLine)
	p.Legend.Add("raw", rawScatter)

	return p.Save(14*vg.Inch, 6*vg.Inch, path)
}
