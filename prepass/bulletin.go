package prepass

import (
	"errors"
	"fmt"
)

// MaxBulletins is the capacity of a bulletin table.
const MaxBulletins = 8

var (
	ErrNoBulletin      = errors.New("no orbit bulletin")
	ErrInvalidBulletin = errors.New("invalid orbit bulletin")
	ErrNoPass          = errors.New("no satellite pass in the computation window")
	ErrTableFull       = errors.New("bulletin table full")
)

// Bulletin holds the orbital elements of one satellite.
type Bulletin struct {
	// ID is the 2 characters satellite identifier.
	ID string `yaml:"id" json:"id"`
	// Epoch of the elements, Unix seconds.
	Epoch uint32 `yaml:"epoch" json:"epoch"`
	// SemiMajorAxis in km.
	SemiMajorAxis float64 `yaml:"semi_major_axis" json:"semi_major_axis"`
	// Inclination in degrees.
	Inclination float64 `yaml:"inclination" json:"inclination"`
	// AscendingNode is the longitude of the ascending node at Epoch, degrees.
	AscendingNode float64 `yaml:"ascending_node" json:"ascending_node"`
	// NodeDrift is the longitude shift between two ascending nodes, degrees per revolution.
	NodeDrift float64 `yaml:"node_drift" json:"node_drift"`
	// OrbitPeriod in minutes.
	OrbitPeriod float64 `yaml:"orbit_period" json:"orbit_period"`
	// SemiMajorAxisDrift is the orbit decay in m per day, negative when decaying.
	SemiMajorAxisDrift float64 `yaml:"semi_major_axis_drift" json:"semi_major_axis_drift"`
}

// Validate checks b describes a usable orbit.
func (b Bulletin) Validate() error {
	switch {
	case len(b.ID) != 2:
		return fmt.Errorf("id %q: %w", b.ID, ErrInvalidBulletin)
	case b.OrbitPeriod <= 0:
		return fmt.Errorf("%s period %f: %w", b.ID, b.OrbitPeriod, ErrInvalidBulletin)
	case b.SemiMajorAxis <= EarthRadius:
		return fmt.Errorf("%s semi major axis %f: %w", b.ID, b.SemiMajorAxis, ErrInvalidBulletin)
	}
	return nil
}

// Table is a fixed capacity set of bulletins.
type Table struct {
	entries [MaxBulletins]Bulletin
	n       int
}

// Add appends b to the table.
func (t *Table) Add(b Bulletin) error {
	if t.n == MaxBulletins {
		return ErrTableFull
	}
	t.entries[t.n] = b
	t.n++
	return nil
}

// Len returns the number of populated entries.
func (t *Table) Len() int { return t.n }

// At returns entry i.
func (t *Table) At(i int) (Bulletin, bool) {
	if i < 0 || i >= t.n {
		return Bulletin{}, false
	}
	return t.entries[i], true
}

// Bulletins returns the populated entries.
func (t *Table) Bulletins() []Bulletin {
	return t.entries[:t.n]
}
