// Package prepass predicts the next ARGOS satellite pass over a station
// from the satellites orbit bulletins.
//
// Orbits are treated as circular: the sub satellite point is propagated from
// the bulletin epoch with the mean motion corrected for the semi major axis
// decay, while the ascending node drifts linearly in the Earth fixed frame.
// Visibility is tested on the squared chord distance between the sub
// satellite point and the station on the unit sphere.
package prepass

import (
	"math"
	"sort"

	"github.com/golang/geo/s1"
	"github.com/golang/geo/s2"
)

const (
	// EarthRadius is the equatorial radius in km.
	EarthRadius = 6378.137

	// Epoch1990 is 1990-01-01T00:00:00Z as Unix seconds, the origin of the
	// internal time scale.
	Epoch1990 = 631152000

	secondsPerDay = 86400
	deg2rad       = math.Pi / 180
	rad2deg       = 180 / math.Pi

	// stepSafety scales the angular travel per step before choosing a coarser step.
	stepSafety = 1.5
)

// Config tunes the prediction.
type Config struct {
	// MinElevation is the visibility threshold in degrees.
	MinElevation float64 `yaml:"min_elevation"`
	// MinPeakElevation is the culmination a pass must reach to be kept, degrees.
	MinPeakElevation float64 `yaml:"min_peak_elevation"`
	// TimeMargin in seconds added on both sides of a pass.
	TimeMargin float64 `yaml:"time_margin"`
	// GeoMargin in km added on both sides of a pass, converted at ground track speed.
	GeoMargin float64 `yaml:"geo_margin"`
	// MaxPasses per satellite.
	MaxPasses int `yaml:"max_passes"`
	// Step is the base computation step in seconds.
	Step uint32 `yaml:"step"`
	// Horizon is the computation window in seconds.
	Horizon uint32 `yaml:"horizon"`
}

// DefaultConfig returns the settings used when none are configured.
func DefaultConfig() Config {
	return Config{
		MinElevation:     15,
		MinPeakElevation: 15,
		MaxPasses:        5,
		Step:             30,
		Horizon:          secondsPerDay,
	}
}

func (c Config) normalized() Config {
	d := DefaultConfig()
	if c.Step == 0 {
		c.Step = d.Step
	}
	if c.Horizon == 0 {
		c.Horizon = d.Horizon
	}
	if c.MaxPasses <= 0 {
		c.MaxPasses = d.MaxPasses
	}
	if c.MinPeakElevation < c.MinElevation {
		c.MinPeakElevation = c.MinElevation
	}
	return c
}

// Pass is a visibility window of one satellite.
type Pass struct {
	SatID string
	// Start and End are Unix seconds, margins included.
	Start, End uint32
	// PeakElevation is the highest sampled elevation in degrees.
	PeakElevation float64
}

// Midpoint returns the middle of the window.
func (p Pass) Midpoint() uint32 {
	return p.Start + (p.End-p.Start)/2
}

// Predict returns the midpoint of the earliest pass, across all bulletins,
// whose midpoint is not before now. lon and lat are in degrees.
func Predict(bulletins []Bulletin, cfg Config, lon, lat float64, now uint32) (uint32, error) {
	passes, err := Passes(bulletins, cfg, lon, lat, now)
	if err != nil {
		return 0, err
	}

	var best uint32
	found := false
	for _, p := range passes {
		mid := p.Midpoint()
		if mid < now {
			continue
		}
		if !found || mid < best {
			best = mid
			found = true
		}
	}
	if !found {
		return 0, ErrNoPass
	}
	return best, nil
}

// Passes lists the candidate passes of every satellite in the computation
// window starting at now, ordered by start time.
func Passes(bulletins []Bulletin, cfg Config, lon, lat float64, now uint32) ([]Pass, error) {
	if len(bulletins) == 0 {
		return nil, ErrNoBulletin
	}
	for _, b := range bulletins {
		if err := b.Validate(); err != nil {
			return nil, err
		}
	}

	cfg = cfg.normalized()
	station := s2.PointFromLatLng(s2.LatLngFromDegrees(lat, lon))
	from := to1990(now)
	to := from + float64(cfg.Horizon)

	var res []Pass
	for _, b := range bulletins {
		o := newOrbit(b)
		res = append(res, o.passes(cfg, station, from, to)...)
	}
	if len(res) == 0 {
		return nil, ErrNoPass
	}

	sort.Slice(res, func(i, j int) bool { return res[i].Start < res[j].Start })
	return res, nil
}

// Elevation returns the elevation in degrees of the satellite described by b
// seen from the station at t, negative below the horizon.
func Elevation(b Bulletin, lon, lat float64, t uint32) float64 {
	o := newOrbit(b)
	station := s2.PointFromLatLng(s2.LatLngFromDegrees(lat, lon))
	t90 := to1990(t)
	d := s2.ChordAngleBetweenPoints(o.position(t90), station)
	return elevation(d.Angle().Radians(), o.radius(t90))
}

type orbit struct {
	id         string
	epoch      float64 // seconds since 1990
	a0         float64 // km
	adot       float64 // km/s
	sinI, cosI float64
	node0      float64 // rad
	nodeRate   float64 // rad/s, Earth fixed
	n0         float64 // rad/s
	ndot       float64 // rad/s²
}

func newOrbit(b Bulletin) orbit {
	period := b.OrbitPeriod * 60
	n0 := 2 * math.Pi / period
	adot := b.SemiMajorAxisDrift / 1000 / secondsPerDay
	return orbit{
		id:       b.ID,
		epoch:    to1990(b.Epoch),
		a0:       b.SemiMajorAxis,
		adot:     adot,
		sinI:     math.Sin(b.Inclination * deg2rad),
		cosI:     math.Cos(b.Inclination * deg2rad),
		node0:    b.AscendingNode * deg2rad,
		nodeRate: b.NodeDrift * deg2rad / period,
		n0:       n0,
		ndot:     -1.5 * n0 * adot / b.SemiMajorAxis,
	}
}

// position returns the sub satellite point at t, the satellite crossing its
// ascending node at the bulletin epoch.
func (o orbit) position(t float64) s2.Point {
	dt := t - o.epoch
	u := o.n0*dt + 0.5*o.ndot*dt*dt
	node := o.node0 + o.nodeRate*dt

	su, cu := math.Sincos(u)
	sn, cn := math.Sincos(node)

	return s2.PointFromCoords(
		cn*cu-sn*su*o.cosI,
		sn*cu+cn*su*o.cosI,
		su*o.sinI,
	)
}

func (o orbit) radius(t float64) float64 {
	return o.a0 + o.adot*(t-o.epoch)
}

func (o orbit) passes(cfg Config, station s2.Point, from, to float64) []Pass {
	step := float64(cfg.Step)
	theta := maxCentralAngle(o.radius(from), cfg.MinElevation)
	limit := s1.ChordAngleFromAngle(s1.Angle(theta))

	// angular travel of the sub satellite point during one base step
	arc := (o.n0 + math.Abs(o.nodeRate)) * step * stepSafety
	margin := cfg.TimeMargin + cfg.GeoMargin/(EarthRadius*o.n0)

	var (
		res        []Pass
		inView     bool
		start, end float64
		closest    s1.ChordAngle
	)

	closePass := func() bool {
		inView = false
		peak := elevation(closest.Angle().Radians(), o.radius(end))
		if peak < cfg.MinPeakElevation {
			return false
		}
		res = append(res, Pass{
			SatID:         o.id,
			Start:         toUnix(start - margin),
			End:           toUnix(end + margin),
			PeakElevation: peak,
		})
		return len(res) >= cfg.MaxPasses
	}

	for t := from; t <= to; {
		d := s2.ChordAngleBetweenPoints(o.position(t), station)
		if d <= limit {
			if !inView {
				inView = true
				start = t
				closest = d
			}
			end = t
			if d < closest {
				closest = d
			}
			t += step
			continue
		}

		if inView && closePass() {
			return res
		}
		t += step * float64(multiplier(d.Angle().Radians()-theta, arc))
	}

	if inView {
		closePass()
	}
	return res
}

// multiplier selects how many base steps can be skipped while the satellite
// is at angular distance gap from the visibility circle.
func multiplier(gap, arc float64) int {
	for _, m := range []int{16, 8, 4} {
		if gap > float64(m)*arc {
			return m
		}
	}
	return 1
}

// maxCentralAngle is the Earth central angle at which a satellite orbiting
// at radius km is seen at elevation degrees.
func maxCentralAngle(radius, elevationDeg float64) float64 {
	e := elevationDeg * deg2rad
	return math.Acos(EarthRadius/radius*math.Cos(e)) - e
}

// elevation in degrees of a satellite at radius km and central angle theta.
func elevation(theta, radius float64) float64 {
	return math.Atan2(math.Cos(theta)-EarthRadius/radius, math.Sin(theta)) * rad2deg
}

func to1990(unix uint32) float64 {
	return float64(unix) - Epoch1990
}

func toUnix(t float64) uint32 {
	u := math.Round(t + Epoch1990)
	if u < 0 {
		return 0
	}
	if u > math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(u)
}
