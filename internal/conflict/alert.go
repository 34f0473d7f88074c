package conflict

import (
	"fmt"
	"sort"
	"time"
)

// Kind classifies an alert
type Kind string

const (
	KindConflict Kind = "conflict"
	KindMSAW     Kind = "msaw"
	KindWake     Kind = "wake"
	KindRunway   Kind = "runway_conflict"
	KindAirspace Kind = "airspace"
)

// Severity orders alerts; a warning outranks a caution
type Severity int

const (
	Caution Severity = iota + 1
	Warning
)

func (s Severity) String() string {
	switch s {
	case Caution:
		return "caution"
	case Warning:
		return "warning"
	}
	return fmt.Sprintf("Severity(%d)", int(s))
}

func (s Severity) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Severity) UnmarshalText(b []byte) error {
	switch string(b) {
	case "caution":
		*s = Caution
	case "warning":
		*s = Warning
	default:
		return fmt.Errorf("unknown severity %q", b)
	}
	return nil
}

// Alert is an immutable hazard fact. Aircraft ids are sorted, so a pair has a
// single alert whichever order it is examined in.
type Alert struct {
	ID        uint64        `json:"id"`
	Kind      Kind          `json:"kind"`
	Severity  Severity      `json:"severity"`
	Aircraft  []string      `json:"aircraft"`
	Subject   string        `json:"subject,omitempty"` // area or runway name
	Message   string        `json:"message"`
	SimTime   time.Duration `json:"sim_time"`
	Predicted bool          `json:"predicted,omitempty"`
}

// key identifies the condition an alert is raised for
type key struct {
	kind    Kind
	a, b    string
	subject string
}

func pairKey(kind Kind, a, b string) key {
	if b < a {
		a, b = b, a
	}
	return key{kind: kind, a: a, b: b}
}

func (k key) aircraft() []string {
	if k.b == "" {
		return []string{k.a}
	}
	return []string{k.a, k.b}
}

func (k key) less(o key) bool {
	if k.kind != o.kind {
		return k.kind < o.kind
	}
	if k.a != o.a {
		return k.a < o.a
	}
	if k.b != o.b {
		return k.b < o.b
	}
	return k.subject < o.subject
}

// finding is one condition observed during a scan
type finding struct {
	severity  Severity
	message   string
	predicted bool
}

// open is an unresolved condition and the alert last raised for it
type open struct {
	alert   Alert
	current Severity
}

// findings collects the conditions of one scan, keeping the most severe per key
type findings map[key]finding

func (f findings) add(k key, fd finding) {
	if prev, ok := f[k]; ok && prev.severity >= fd.severity {
		return
	}
	f[k] = fd
}

func (f findings) sortedKeys() []key {
	keys := make([]key, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].less(keys[j]) })
	return keys
}
