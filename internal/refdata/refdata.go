// Package refdata loads the static reference data a session runs against:
// the aircraft performance table and the airport procedure graph, both from
// YAML files.
package refdata

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/yegors/tracon-sim/internal/perf"
	"github.com/yegors/tracon-sim/internal/procedure"
)

// decodeFile reads a YAML file into a T. Unknown keys are rejected so typos in
// hand-edited data files surface at startup.
func decodeFile[T any](path string) (*T, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	defer f.Close()

	var out T
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s: %w", path, err)
	}
	return &out, nil
}

type performanceFile struct {
	Types []*perf.AircraftType `yaml:"types"`
}

// LoadPerformance reads and validates a performance table
func LoadPerformance(path string) (*perf.Table, error) {
	pf, err := decodeFile[performanceFile](path)
	if err != nil {
		return nil, err
	}
	if len(pf.Types) == 0 {
		return nil, fmt.Errorf("%s: no aircraft types", path)
	}
	t, err := perf.NewTable(pf.Types)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// LoadAirport reads an airport, links its procedures and validates it. The
// returned warnings are unresolved references and malformed hazard polygons;
// the airport is still usable with them. Any other problem is an error.
func LoadAirport(path string) (*procedure.Airport, []error, error) {
	af, err := decodeFile[airportFile](path)
	if err != nil {
		return nil, nil, err
	}
	ap, err := af.build()
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}

	warnings := ap.Link()
	if err := ap.Validate(); err != nil {
		if !geometryOnly(err) {
			return nil, nil, fmt.Errorf("invalid airport %s: %w", ap.ICAO, err)
		}
		warnings = append(warnings, err)
	}
	return ap, warnings, nil
}

// geometryOnly reports whether every error joined into err is a polygon problem
func geometryOnly(err error) bool {
	if j, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range j.Unwrap() {
			if !geometryOnly(e) {
				return false
			}
		}
		return true
	}
	return errors.Is(err, procedure.ErrBadPolygon)
}
