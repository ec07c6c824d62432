package variants

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errx "github.com/trajgen/server/internal/core/error"
	"github.com/trajgen/server/internal/synth/model"
)

var retirement = model.SeedQuery{ID: 0, Text: "How should I allocate my retirement portfolio?"}

func TestEnumerateFullGrid(t *testing.T) {
	vs, err := Enumerate(retirement, Filters{})
	require.NoError(t, err)
	require.Len(t, vs, 30)

	seen := map[string]bool{}
	for _, v := range vs {
		assert.False(t, seen[v.Key()], "duplicate %s", v.Key())
		seen[v.Key()] = true
	}
	for _, p := range model.Personas {
		for _, c := range model.Complexities {
			for _, m := range model.ToolDataModes {
				assert.True(t, seen[model.Variant{Persona: p, Complexity: c, ToolDataMode: m}.Key()])
			}
		}
	}

	assert.Equal(t, "P1|Q-|valid", vs[0].Key())
	assert.Equal(t, "P1|Q-|invalid", vs[1].Key())
	assert.Equal(t, "P1|Q|valid", vs[2].Key())
	assert.Equal(t, "P5|Q+|invalid", vs[29].Key())
}

func TestEnumerateIdempotent(t *testing.T) {
	for _, f := range []Filters{{}, {Persona: "P3"}, {Complexity: "Q+"}, {Persona: "p2", Complexity: "all"}} {
		a, err := Enumerate(retirement, f)
		require.NoError(t, err)
		b, err := Enumerate(retirement, f)
		require.NoError(t, err)
		assert.Equal(t, a, b)
	}
}

func TestEnumerateFilters(t *testing.T) {
	tests := []struct {
		name    string
		filters Filters
		want    int
	}{
		{"all keyword", Filters{Persona: "all", Complexity: "ALL"}, 30},
		{"persona only", Filters{Persona: "P4"}, 6},
		{"complexity only", Filters{Complexity: "Q"}, 10},
		{"both", Filters{Persona: "P1", Complexity: "Q-"}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vs, err := Enumerate(retirement, tt.filters)
			require.NoError(t, err)
			assert.Len(t, vs, tt.want)
			n, err := ExpansionFactor(tt.filters)
			require.NoError(t, err)
			assert.Equal(t, tt.want, n)
		})
	}
}

func TestEnumerateInvalidFilter(t *testing.T) {
	for _, f := range []Filters{{Persona: "P6"}, {Complexity: "Q++"}} {
		vs, err := Enumerate(retirement, f)
		assert.Nil(t, vs)
		assert.True(t, errors.Is(err, errx.ErrInvalidFilter))
	}
}

func TestExpandKeepsSeedOrder(t *testing.T) {
	seeds := []model.SeedQuery{retirement, {ID: 1, Text: "What is an ETF?"}}
	jobs, err := Expand(seeds, Filters{Persona: "P2", Complexity: "Q"})
	require.NoError(t, err)
	require.Len(t, jobs, 4)
	assert.Equal(t, 0, jobs[0].Seed.ID)
	assert.Equal(t, 0, jobs[1].Seed.ID)
	assert.Equal(t, 1, jobs[2].Seed.ID)
	assert.Equal(t, model.InvalidData, jobs[3].Variant.ToolDataMode)
}
