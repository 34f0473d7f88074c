package weather

import (
	"fmt"
	"sort"
	"sync"

	"github.com/yegors/tracon-sim/internal/physics"
)

// Layer is the wind at one altitude
type Layer struct {
	AltitudeFt float64      `json:"altitude_ft" yaml:"altitude_ft" toml:"altitude_ft"`
	Wind       physics.Wind `json:"wind" yaml:"wind" toml:"wind"`
}

// Provider supplies the wind acting on an aircraft
type Provider interface {
	WindAt(pos physics.LatLon, altFt float64) physics.Wind
}

// Layers is a vertical wind profile that applies across the whole terminal area.
// It is safe for concurrent use; Set swaps the profile atomically for subsequent reads.
type Layers struct {
	mu     sync.RWMutex
	layers []Layer // sorted by altitude
}

// NewLayers builds a wind profile from the given layers
func NewLayers(layers []Layer) (*Layers, error) {
	l := &Layers{}
	if err := l.Set(layers); err != nil {
		return nil, err
	}
	return l, nil
}

// Calm returns a profile with no wind at any altitude
func Calm() *Layers {
	return &Layers{}
}

// Set replaces the wind profile
func (l *Layers) Set(layers []Layer) error {
	sorted := make([]Layer, len(layers))
	copy(sorted, layers)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].AltitudeFt < sorted[j].AltitudeFt })

	for i, layer := range sorted {
		if layer.Wind.SpeedKts < 0 {
			return fmt.Errorf("invalid wind layer at %.0f ft: negative speed %.1f", layer.AltitudeFt, layer.Wind.SpeedKts)
		}
		if i > 0 && sorted[i-1].AltitudeFt == layer.AltitudeFt {
			return fmt.Errorf("duplicate wind layer at %.0f ft", layer.AltitudeFt)
		}
	}

	l.mu.Lock()
	l.layers = sorted
	l.mu.Unlock()
	return nil
}

// Snapshot returns a copy of the current layers
func (l *Layers) Snapshot() []Layer {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Layer, len(l.layers))
	copy(out, l.layers)
	return out
}

// WindAt returns the wind at the given altitude. Between two layers the wind
// vectors are interpolated linearly; outside the profile the nearest layer applies.
func (l *Layers) WindAt(_ physics.LatLon, altFt float64) physics.Wind {
	l.mu.RLock()
	defer l.mu.RUnlock()

	n := len(l.layers)
	switch {
	case n == 0:
		return physics.Wind{}
	case altFt <= l.layers[0].AltitudeFt:
		return l.layers[0].Wind
	case altFt >= l.layers[n-1].AltitudeFt:
		return l.layers[n-1].Wind
	}

	upper := sort.Search(n, func(i int) bool { return l.layers[i].AltitudeFt >= altFt })
	lo, hi := l.layers[upper-1], l.layers[upper]
	ratio := (altFt - lo.AltitudeFt) / (hi.AltitudeFt - lo.AltitudeFt)

	v1, v2 := lo.Wind.Vector(), hi.Wind.Vector()
	v := physics.Vector2D{
		X: v1.X + (v2.X-v1.X)*ratio,
		Y: v1.Y + (v2.Y-v1.Y)*ratio,
	}
	if v.Length() == 0 {
		return physics.Wind{}
	}
	// The air mass moves toward v.Heading(); the wind blows from the reciprocal
	return physics.Wind{DirectionDeg: physics.NormalizeHeading(v.Heading() + 180), SpeedKts: v.Length()}
}
