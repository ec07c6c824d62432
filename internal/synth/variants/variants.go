// Package variants enumerates the persona x complexity x tool data mode grid.
package variants

import (
	"strings"

	errx "github.com/trajgen/server/internal/core/error"
	"github.com/trajgen/server/internal/synth/model"
)

// All selects every value of a filter.
const All = "all"

// Filters restricts enumeration. Empty or "all" means unrestricted.
type Filters struct {
	Persona    string
	Complexity string
}

// Job pairs a seed with one of its variants.
type Job struct {
	Seed    model.SeedQuery
	Variant model.Variant
}

// Enumerate returns every variant selected by the filters, persona-major,
// then complexity, then tool data mode. The seed does not influence the
// result; it is part of the signature so callers enumerate per seed.
func Enumerate(_ model.SeedQuery, f Filters) ([]model.Variant, error) {
	personas, err := selectPersonas(f.Persona)
	if err != nil {
		return nil, err
	}
	complexities, err := selectComplexities(f.Complexity)
	if err != nil {
		return nil, err
	}

	out := make([]model.Variant, 0, len(personas)*len(complexities)*len(model.ToolDataModes))
	for _, p := range personas {
		for _, c := range complexities {
			for _, m := range model.ToolDataModes {
				out = append(out, model.Variant{Persona: p, Complexity: c, ToolDataMode: m})
			}
		}
	}
	return out, nil
}

// Expand enumerates every seed in order.
func Expand(seeds []model.SeedQuery, f Filters) ([]Job, error) {
	var jobs []Job
	for _, s := range seeds {
		vs, err := Enumerate(s, f)
		if err != nil {
			return nil, err
		}
		for _, v := range vs {
			jobs = append(jobs, Job{Seed: s, Variant: v})
		}
	}
	return jobs, nil
}

// ExpansionFactor is the number of variants produced per seed.
func ExpansionFactor(f Filters) (int, error) {
	vs, err := Enumerate(model.SeedQuery{}, f)
	if err != nil {
		return 0, err
	}
	return len(vs), nil
}

func unrestricted(v string) bool {
	v = strings.TrimSpace(v)
	return v == "" || strings.EqualFold(v, All)
}

func selectPersonas(v string) ([]model.Persona, error) {
	if unrestricted(v) {
		return model.Personas, nil
	}
	p := model.Persona(strings.ToUpper(strings.TrimSpace(v)))
	if !p.Valid() {
		return nil, errx.InvalidFilter("persona", v)
	}
	return []model.Persona{p}, nil
}

func selectComplexities(v string) ([]model.Complexity, error) {
	if unrestricted(v) {
		return model.Complexities, nil
	}
	c := model.Complexity(strings.ToUpper(strings.TrimSpace(v)))
	if !c.Valid() {
		return nil, errx.InvalidFilter("complexity", v)
	}
	return []model.Complexity{c}, nil
}
