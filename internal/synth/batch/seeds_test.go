package batch

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trajgen/server/internal/synth/model"
)

func TestParseSeeds(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"string list", `["How should I invest?", "What is a bond?"]`, []string{"How should I invest?", "What is a bond?"}},
		{"queries object", `{"queries": [{"query": "A?"}, {"Q": "B?"}]}`, []string{"A?", "B?"}},
		{"seed_queries object", `{"seed_queries": ["C?"]}`, []string{"C?"}},
		{"jsonl", "{\"query\": \"D?\"}\n\n\"E?\"\n", []string{"D?", "E?"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSeeds([]byte(tt.input))
			require.NoError(t, err)
			var texts []string
			for i, s := range got {
				texts = append(texts, s.Text)
				assert.Equal(t, i+1, s.ID)
			}
			assert.Equal(t, tt.want, texts)
		})
	}
}

func TestParseSeedsKeepsPositionIDs(t *testing.T) {
	got, err := ParseSeeds([]byte(`["A?", 42, "", "B?"]`))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 1, got[0].ID)
	assert.Equal(t, 4, got[1].ID)
}

func TestParseSeedsErrors(t *testing.T) {
	_, err := ParseSeeds(nil)
	assert.ErrorIs(t, err, ErrNoSeeds)
	_, err = ParseSeeds([]byte(`[]`))
	assert.ErrorIs(t, err, ErrNoSeeds)
	_, err = ParseSeeds([]byte("not json"))
	assert.Error(t, err)
}

func TestLoadRewrittenRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "transformed_queries.jsonl")
	w, err := CreateJSONL[model.RewrittenQuery](path, false)
	require.NoError(t, err)

	seed := model.SeedQuery{ID: 3, Text: "How should I allocate my retirement portfolio?"}
	v := model.Variant{Persona: model.P2, Complexity: model.Complex, ToolDataMode: model.InvalidData}
	require.NoError(t, w.Write(model.NewRewrittenQuery(seed, v, "What allocation <optimizes> my risk-adjusted return?")))
	require.NoError(t, w.Close())

	got, err := LoadRewritten(path)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, v, got[0].Variant())
	assert.Equal(t, seed.ID, got[0].SeedID)
	assert.Equal(t, seed.Text, got[0].SeedText)
	assert.Equal(t, "What allocation <optimizes> my risk-adjusted return?", got[0].Text)

	w, err = CreateJSONL[model.RewrittenQuery](path, true)
	require.NoError(t, err)
	require.NoError(t, w.Write(model.NewRewrittenQuery(seed, v, "again")))
	require.NoError(t, w.Close())
	got, err = LoadRewritten(path)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestLoadRewrittenRejectsSeeds(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seeds.jsonl")
	w, err := CreateJSONL[map[string]string](path, false)
	require.NoError(t, err)
	require.NoError(t, w.Write(map[string]string{"query": "plain seed"}))
	require.NoError(t, w.Close())

	_, err = LoadRewritten(path)
	assert.Error(t, err)
}
