package conflict

import (
	"reflect"
	"testing"
	"time"

	"github.com/yegors/tracon-sim/internal/aircraft"
	"github.com/yegors/tracon-sim/internal/dynamics"
	"github.com/yegors/tracon-sim/internal/physics"
	"github.com/yegors/tracon-sim/internal/procedure"
	"github.com/yegors/tracon-sim/internal/simtest"
	"github.com/yegors/tracon-sim/pkg/logger"
)

func newDetector(t *testing.T) *Detector {
	t.Helper()
	d, err := NewDetector(simtest.Airport(), DefaultConfig(), logger.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func kinds(alerts []Alert) map[Kind][]Alert {
	out := map[Kind][]Alert{}
	for _, a := range alerts {
		out[a.Kind] = append(out[a.Kind], a)
	}
	return out
}

func TestConvergingPair(t *testing.T) {
	d := newDetector(t)
	a := simtest.Flying("A", "B738", simtest.At(-20, 0), 5000, 90, 250)
	b := simtest.Flying("B", "B738", simtest.At(20, 2.5), 5900, 270, 250)
	lat, vert := d.minima(a, b)
	window := d.Config().LookAheadSeconds

	caution, warning, crossed := -1, -1, -1
	raisedCautions := 0
	for tick := 1; tick <= 300 && warning < 0; tick++ {
		dynamics.Step(a, physics.Wind{}, 1)
		dynamics.Step(b, physics.Wind{}, 1)
		if crossed < 0 && physics.DistanceNM(a.Position, b.Position) < lat && b.AltitudeFt-a.AltitudeFt < vert {
			crossed = tick
		}
		res := d.Scan([]*aircraft.Aircraft{a, b}, time.Duration(tick)*time.Second)
		for _, al := range res.Raised {
			if al.Kind != KindConflict {
				continue
			}
			switch al.Severity {
			case Caution:
				raisedCautions++
				if caution < 0 {
					caution = tick
				}
				if !al.Predicted {
					t.Error("caution not marked predicted")
				}
			case Warning:
				warning = tick
			}
		}
	}
	if warning < 0 || caution < 0 {
		t.Fatalf("caution at %d, warning at %d", caution, warning)
	}
	if warning-crossed > 1 {
		t.Errorf("warning at tick %d, minima crossed at %d", warning, crossed)
	}
	if lead := float64(warning - caution); lead < window-2 {
		t.Errorf("caution only %.0f s before the warning", lead)
	}
	if raisedCautions != 1 {
		t.Errorf("caution raised %d times", raisedCautions)
	}
}

func TestPairAlertIsSymmetric(t *testing.T) {
	a := simtest.Flying("A", "B738", simtest.At(0, 10), 6000, 90, 250)
	b := simtest.Flying("B", "B738", simtest.At(1, 10), 6500, 270, 250)

	d1, d2 := newDetector(t), newDetector(t)
	r1 := d1.Scan([]*aircraft.Aircraft{a, b}, 0)
	r2 := d2.Scan([]*aircraft.Aircraft{b, a}, 0)

	c1, c2 := kinds(r1.Raised)[KindConflict], kinds(r2.Raised)[KindConflict]
	if len(c1) != 1 || len(c2) != 1 {
		t.Fatalf("conflict alerts: %v / %v", c1, c2)
	}
	if !reflect.DeepEqual(c1[0].Aircraft, []string{"A", "B"}) || !reflect.DeepEqual(c1[0].Aircraft, c2[0].Aircraft) {
		t.Errorf("aircraft %v vs %v", c1[0].Aircraft, c2[0].Aircraft)
	}
	ab, ok1 := d1.Lookup(KindConflict, "A", "B")
	ba, ok2 := d1.Lookup(KindConflict, "B", "A")
	if !ok1 || !ok2 || ab.ID != ba.ID {
		t.Errorf("lookup (A,B) = %v, (B,A) = %v", ab, ba)
	}
}

func TestAlertDeduplication(t *testing.T) {
	d := newDetector(t)
	a := simtest.Flying("A", "B738", simtest.At(0, 10), 6000, 90, 250)
	b := simtest.Flying("B", "B738", simtest.At(10, 10), 6500, 270, 250)
	traffic := []*aircraft.Aircraft{a, b}

	steps := []struct {
		name  string
		bx    float64
		raise Severity // 0 for nothing new
	}{
		{"predicted", 10, Caution},
		{"still predicted", 9.9, 0},
		{"escalates", 2, Warning},
		{"still violated", 2, 0},
		{"de-escalates", 8, 0},
		{"re-escalates", 2, Warning},
		{"lapses", 30, 0},
		{"recurs", 2, Warning},
	}
	for i, s := range steps {
		b.Position = simtest.At(s.bx, 10)
		res := d.Scan(traffic, time.Duration(i)*time.Second)
		got := kinds(res.Raised)[KindConflict]
		if s.raise == 0 {
			if len(got) != 0 {
				t.Errorf("%s: raised %v", s.name, got)
			}
			continue
		}
		if len(got) != 1 || got[0].Severity != s.raise {
			t.Errorf("%s: raised %v, want one %s", s.name, got, s.raise)
		}
	}
}

func TestMSAW(t *testing.T) {
	tests := []struct {
		name  string
		pos   physics.LatLon
		alt   float64
		setup func(*aircraft.Aircraft)
		want  bool
	}{
		{"below west floor", simtest.At(-20, 0), 1500, nil, true},
		{"above east floor", simtest.At(20, 0), 1500, nil, false},
		{"inside runway zone", simtest.At(-2, 0), 300, nil, false},
		{"climbing departure near the field", simtest.At(-4, 0), 1500, func(ac *aircraft.Aircraft) {
			ac.Category = aircraft.Departure
			ac.VerticalFPM = 2000
		}, false},
		{"level departure", simtest.At(-4, 0), 1500, func(ac *aircraft.Aircraft) {
			ac.Category = aircraft.Departure
		}, true},
		{"established on glide path", simtest.At(4, 0), 900, func(ac *aircraft.Aircraft) {
			ac.Nav.Flags.ClearedApproach = true
			ac.Nav.Route = aircraft.Route{Kind: procedure.Approach, Legs: []procedure.Leg{
				{Kind: procedure.LegCF, Fix: "RW27", Course: 270, GlidePathDeg: 3, Resolved: true},
			}}
		}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newDetector(t)
			ac := simtest.Flying("A", "C208", tt.pos, tt.alt, 90, 120)
			if tt.setup != nil {
				tt.setup(ac)
			}
			res := d.Scan([]*aircraft.Aircraft{ac}, 0)
			if got := len(kinds(res.Raised)[KindMSAW]) == 1; got != tt.want {
				t.Errorf("msaw = %v, want %v", got, tt.want)
			}
			// served from the cache on the next scan
			res = d.Scan([]*aircraft.Aircraft{ac}, time.Second)
			if got := len(kinds(res.Active)[KindMSAW]) == 1; got != tt.want {
				t.Errorf("cached msaw = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMSAWSectorBoundaryInsideCell(t *testing.T) {
	// Sectors split along a meridian 10.1 nm east of the field, off the cache grid
	edge := simtest.At(10.1, 0)
	box := func(lon0, lon1 float64) procedure.Polygon {
		return procedure.Polygon{
			{Lat: edge.Lat - 1, Lon: lon0}, {Lat: edge.Lat - 1, Lon: lon1},
			{Lat: edge.Lat + 1, Lon: lon1}, {Lat: edge.Lat + 1, Lon: lon0},
		}
	}
	airport := simtest.Airport()
	airport.Airspace.MSA = []procedure.MSACell{
		{Name: "EAST", Polygon: box(edge.Lon, edge.Lon+1), FloorFt: 1000},
		{Name: "WEST", Polygon: box(edge.Lon-1, edge.Lon), FloorFt: 4000},
	}
	d, err := NewDetector(airport, DefaultConfig(), logger.NewNop())
	if err != nil {
		t.Fatal(err)
	}

	sw, ne := d.bounds(d.cellOf(edge))
	mid := (sw.Lat + ne.Lat) / 2
	east := simtest.Flying("E", "B738", physics.LatLon{Lat: mid, Lon: (edge.Lon + ne.Lon) / 2}, 5000, 90, 250)
	west := simtest.Flying("W", "B738", physics.LatLon{Lat: mid, Lon: (sw.Lon + edge.Lon) / 2}, 3000, 90, 250)
	if d.cellOf(east.Position) != d.cellOf(west.Position) {
		t.Fatal("aircraft not in the same cell")
	}

	// The east aircraft fills the cache for the shared cell first
	d.Scan([]*aircraft.Aircraft{east}, 0)
	res := d.Scan([]*aircraft.Aircraft{west}, time.Second)
	if len(kinds(res.Raised)[KindMSAW]) != 1 {
		t.Errorf("west aircraft at 3000 ft below the 4000 ft sector raised no msaw: %+v", res.Raised)
	}
}

func TestRunwayConflict(t *testing.T) {
	d := newDetector(t)
	lander := simtest.Flying("A", "B738", simtest.At(1.5, 0), 250, 270, 140)
	departure := simtest.Flying("B", "B738", simtest.At(-0.5, 0), 100, 270, 140)
	res := d.Scan([]*aircraft.Aircraft{lander, departure}, 0)
	rc := kinds(res.Raised)[KindRunway]
	if len(rc) != 1 || rc[0].Severity != Warning || rc[0].Subject != "09/27" {
		t.Errorf("runway alerts = %v", rc)
	}
}

func TestWake(t *testing.T) {
	tests := []struct {
		name     string
		aboveFt  float64
		behindNM float64
		want     bool
	}{
		{"close behind", 0, 4, true},
		{"well above", 1500, 4, false},
		{"far enough", 0, 9, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newDetector(t)
			heavy := simtest.Flying("H", "A388", simtest.At(20, 10), 6000, 180, 200)
			light := simtest.Flying("L", "C208", simtest.At(20, 10+tt.behindNM), 6000+tt.aboveFt, 180, 150)
			res := d.Scan([]*aircraft.Aircraft{light, heavy}, 0)
			got := kinds(res.Raised)[KindWake]
			if (len(got) == 1) != tt.want {
				t.Errorf("wake alerts = %v", got)
			}
		})
	}
}

func TestAirspaceAlerts(t *testing.T) {
	tests := []struct {
		name      string
		pos       physics.LatLon
		alt, hdg  float64
		handedOff bool
		subject   string
	}{
		{"restricted area", simtest.At(-7.5, -12.5), 5000, 0, false, "R-1"},
		{"above restricted area", simtest.At(-7.5, -12.5), 9000, 0, false, ""},
		{"leaving laterally", simtest.At(39, 0), 9000, 90, false, "exit"},
		{"leaving after handoff", simtest.At(39, 0), 9000, 90, true, ""},
		{"near boundary inbound", simtest.At(39, 0), 9000, 270, false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newDetector(t)
			ac := simtest.Flying("A", "B738", tt.pos, tt.alt, tt.hdg, 250)
			ac.Nav.Flags.HandedOff = tt.handedOff
			got := kinds(d.Scan([]*aircraft.Aircraft{ac}, 0).Raised)[KindAirspace]
			if tt.subject == "" {
				if len(got) != 0 {
					t.Errorf("unexpected %v", got)
				}
				return
			}
			if len(got) != 1 || got[0].Subject != tt.subject {
				t.Errorf("airspace alerts = %v, want %s", got, tt.subject)
			}
		})
	}
}

func TestMalformedPolygonSkipsCheck(t *testing.T) {
	ap := simtest.Airport()
	ap.Airspace.Restricted = append(ap.Airspace.Restricted, procedure.RestrictedArea{
		Name: "BROKEN", Polygon: procedure.Polygon{simtest.At(0, 0), simtest.At(1, 1)}, CeilingFt: 5000,
	})
	d, err := NewDetector(ap, DefaultConfig(), logger.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	ac := simtest.Flying("A", "B738", simtest.At(-7.5, -12.5), 5000, 0, 250)
	got := kinds(d.Scan([]*aircraft.Aircraft{ac}, 0).Raised)[KindAirspace]
	if len(got) != 1 || got[0].Subject != "R-1" {
		t.Errorf("airspace alerts = %v", got)
	}
}

func TestTerminalAircraftIgnored(t *testing.T) {
	d := newDetector(t)
	a := simtest.Flying("A", "B738", simtest.At(0, 10), 6000, 90, 250)
	b := simtest.Flying("B", "B738", simtest.At(1, 10), 6000, 270, 250)
	b.Status = aircraft.StatusLanded
	if res := d.Scan([]*aircraft.Aircraft{a, b}, 0); len(kinds(res.Raised)[KindConflict]) != 0 {
		t.Errorf("landed aircraft in conflict: %v", res.Raised)
	}
}
