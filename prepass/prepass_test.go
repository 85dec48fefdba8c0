package prepass

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const testNow = 1580068417

// sun synchronous orbit close to the ARGOS carriers
var polar = Bulletin{
	ID:                 "MA",
	Epoch:              1580000000,
	SemiMajorAxis:      7195.6,
	Inclination:        98.7,
	AscendingNode:      320.5,
	NodeDrift:          -25.34,
	OrbitPeriod:        101.36,
	SemiMajorAxisDrift: -0.1,
}

var polar2 = Bulletin{
	ID:            "MB",
	Epoch:         1580010000,
	SemiMajorAxis: 7200.3,
	Inclination:   98.5,
	AscendingNode: 110.2,
	NodeDrift:     -25.35,
	OrbitPeriod:   101.45,
}

var equatorial = Bulletin{
	ID:            "EQ",
	Epoch:         1580000000,
	SemiMajorAxis: 7200,
	Inclination:   0,
	AscendingNode: 0,
	NodeDrift:     -25.3,
	OrbitPeriod:   101.3,
}

func TestPredictIsVisible(t *testing.T) {
	cfg := DefaultConfig()
	for _, loc := range []struct{ lon, lat float64 }{
		{-1.5, 43.5},
		{2.2, 48.8},
		{-123.1, 49.3},
		{15.6, 78.2},
	} {
		ts, err := Predict([]Bulletin{polar}, cfg, loc.lon, loc.lat, testNow)
		require.NoError(t, err)
		require.GreaterOrEqual(t, ts, uint32(testNow))
		require.Less(t, ts, uint32(testNow+secondsPerDay))

		el := Elevation(polar, loc.lon, loc.lat, ts)
		require.GreaterOrEqual(t, el, cfg.MinElevation-0.5, "lon %f lat %f", loc.lon, loc.lat)
	}
}

func TestPredictEarliestAcrossSatellites(t *testing.T) {
	cfg := DefaultConfig()
	a, err := Predict([]Bulletin{polar}, cfg, 2.2, 48.8, testNow)
	require.NoError(t, err)
	b, err := Predict([]Bulletin{polar2}, cfg, 2.2, 48.8, testNow)
	require.NoError(t, err)

	both, err := Predict([]Bulletin{polar, polar2}, cfg, 2.2, 48.8, testNow)
	require.NoError(t, err)

	want := a
	if b < a {
		want = b
	}
	require.Equal(t, want, both)
}

func TestPredictNoPass(t *testing.T) {
	_, err := Predict([]Bulletin{equatorial}, DefaultConfig(), 2.2, 80, testNow)
	require.ErrorIs(t, err, ErrNoPass)
}

func TestPredictErrors(t *testing.T) {
	_, err := Predict(nil, DefaultConfig(), 0, 0, testNow)
	require.ErrorIs(t, err, ErrNoBulletin)

	bad := polar
	bad.OrbitPeriod = 0
	_, err = Predict([]Bulletin{bad}, DefaultConfig(), 0, 0, testNow)
	require.ErrorIs(t, err, ErrInvalidBulletin)

	bad = polar
	bad.SemiMajorAxis = 6000
	_, err = Predict([]Bulletin{bad}, DefaultConfig(), 0, 0, testNow)
	require.ErrorIs(t, err, ErrInvalidBulletin)

	bad = polar
	bad.ID = "M"
	_, err = Predict([]Bulletin{bad}, DefaultConfig(), 0, 0, testNow)
	require.ErrorIs(t, err, ErrInvalidBulletin)
}

func TestPassesPeakAndLimit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinPeakElevation = 40
	cfg.MaxPasses = 3

	passes, err := Passes([]Bulletin{polar, polar2}, cfg, 15.6, 78.2, testNow)
	require.NoError(t, err)
	require.NotEmpty(t, passes)

	count := map[string]int{}
	for i, p := range passes {
		require.GreaterOrEqual(t, p.PeakElevation, 40.0)
		require.Less(t, p.Start, p.End)
		if i > 0 {
			require.LessOrEqual(t, passes[i-1].Start, p.Start)
		}
		count[p.SatID]++
	}
	for id, n := range count {
		require.LessOrEqual(t, n, 3, id)
	}
}

func TestPassesMargins(t *testing.T) {
	cfg := DefaultConfig()
	plain, err := Passes([]Bulletin{polar}, cfg, 2.2, 48.8, testNow)
	require.NoError(t, err)

	cfg.TimeMargin = 60
	wide, err := Passes([]Bulletin{polar}, cfg, 2.2, 48.8, testNow)
	require.NoError(t, err)
	require.Equal(t, len(plain), len(wide))
	require.Equal(t, plain[0].Start-60, wide[0].Start)
	require.Equal(t, plain[0].End+60, wide[0].End)
	require.Equal(t, plain[0].Midpoint(), wide[0].Midpoint())

	cfg.TimeMargin = 0
	cfg.GeoMargin = 200
	geo, err := Passes([]Bulletin{polar}, cfg, 2.2, 48.8, testNow)
	require.NoError(t, err)
	require.Less(t, geo[0].Start, plain[0].Start)
	require.Greater(t, geo[0].End, plain[0].End)
}

// the adaptive step must not skip passes a fine scan finds
func TestPassesAgainstFineScan(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinElevation = 5
	cfg.MinPeakElevation = 20
	cfg.MaxPasses = 100

	lon, lat := -1.5, 43.5
	passes, err := Passes([]Bulletin{polar}, cfg, lon, lat, testNow)
	require.NoError(t, err)

	countAbove := func(peakMin float64) int {
		n := 0
		inView := false
		peak := -90.0
		for ts := uint32(testNow); ts <= testNow+secondsPerDay; ts += 5 {
			el := Elevation(polar, lon, lat, ts)
			if el >= cfg.MinElevation {
				inView = true
				if el > peak {
					peak = el
				}
				continue
			}
			if inView {
				if peak >= peakMin {
					n++
				}
				inView = false
				peak = -90
			}
		}
		if inView && peak >= peakMin {
			n++
		}
		return n
	}

	require.GreaterOrEqual(t, len(passes), countAbove(cfg.MinPeakElevation+1))
	require.LessOrEqual(t, len(passes), countAbove(cfg.MinPeakElevation-1))
}

func TestElevationOverhead(t *testing.T) {
	// at epoch the satellite crosses its ascending node, right above lat 0
	el := Elevation(polar, polar.AscendingNode-360, 0, polar.Epoch)
	require.InDelta(t, 90, el, 0.01)

	el = Elevation(polar, polar.AscendingNode+180, 0, polar.Epoch)
	require.Less(t, el, 0.0)
}

func TestTable(t *testing.T) {
	var tbl Table
	for i := 0; i < MaxBulletins; i++ {
		require.NoError(t, tbl.Add(polar))
	}
	require.ErrorIs(t, tbl.Add(polar), ErrTableFull)
	require.Equal(t, MaxBulletins, tbl.Len())
	require.Len(t, tbl.Bulletins(), MaxBulletins)

	_, ok := tbl.At(MaxBulletins)
	require.False(t, ok)
	b, ok := tbl.At(0)
	require.True(t, ok)
	require.Equal(t, "MA", b.ID)
}

func TestTimeScale(t *testing.T) {
	require.Equal(t, float64(0), to1990(Epoch1990))
	require.Equal(t, uint32(testNow), toUnix(to1990(testNow)))
	require.Equal(t, uint32(0), toUnix(-Epoch1990-10))
}
