package dataset

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"
)

const (
	minMeanCOTChars = 50
	lowUniqueShare  = 0.5
	highUniqueShare = 0.8
)

// LengthStats describes a rune length distribution.
type LengthStats struct {
	Min    int     `json:"min"`
	Max    int     `json:"max"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
}

// Quality holds the distributions the generator controls: how many steps
// trajectories take, which tools CALL steps use and how evenly variants are
// covered.
type Quality struct {
	Iterations   map[int]int    `json:"iteration_distribution"`
	Personas     map[string]int `json:"persona_distribution"`
	Complexities map[string]int `json:"complexity_distribution"`
	ToolDataMode map[string]int `json:"tool_data_mode_distribution"`
	// ToolUsage counts tool names across the Tool Set of CALL records.
	ToolUsage     map[string]int `json:"tool_usage"`
	CallRecords   int            `json:"call_records"`
	COTLength     LengthStats    `json:"cot_length"`
	QueryLength   LengthStats    `json:"query_length"`
	UniqueQueries int            `json:"unique_queries"`
	DuplicateRate float64        `json:"duplicate_rate"`
}

// ToolsPerCall is the mean Tool Set size of CALL records.
func (q Quality) ToolsPerCall() float64 {
	if q.CallRecords == 0 {
		return 0
	}
	total := 0
	for _, n := range q.ToolUsage {
		total += n
	}
	return float64(total) / float64(q.CallRecords)
}

// MaxIteration is the deepest step seen, or -1 for an empty dataset.
func (q Quality) MaxIteration() int {
	deepest := -1
	for it := range q.Iterations {
		if it > deepest {
			deepest = it
		}
	}
	return deepest
}

// Issues lists the coverage problems of a dataset with the given decision
// distribution. An empty result means every check passed.
func (q Quality) Issues(decisions map[string]int, examples int) []string {
	if examples == 0 {
		return []string{"no examples"}
	}
	var out []string
	if q.COTLength.Mean < minMeanCOTChars {
		out = append(out, fmt.Sprintf("mean COT length %.0f is below %d chars", q.COTLength.Mean, minMeanCOTChars))
	}
	if decisions["CALL"] == 0 {
		out = append(out, "no CALL decisions")
	}
	if q.MaxIteration() < 1 {
		out = append(out, "no multi-iteration trajectories")
	}
	if share := float64(q.UniqueQueries) / float64(examples); share < lowUniqueShare {
		out = append(out, fmt.Sprintf("low query diversity (%.0f%% unique)", share*100))
	}
	return out
}

// DiversityLevel grades the unique query share as high, moderate or low.
func (q Quality) DiversityLevel() string {
	unique := 1 - q.DuplicateRate
	switch {
	case unique > highUniqueShare:
		return "high"
	case unique > lowUniqueShare:
		return "moderate"
	default:
		return "low"
	}
}

// observation is the part of one record that quality metrics read. Tool Set
// and metadata are decoded lazily so a malformed field only drops that
// field from the metrics.
type observation struct {
	Q        json.RawMessage `json:"Q"`
	COT      json.RawMessage `json:"COT"`
	Decision string          `json:"Decision"`
	ToolSet  json.RawMessage `json:"Tool Set"`
	Metadata json.RawMessage `json:"metadata"`
}

type observedMetadata struct {
	Iteration    *int   `json:"iteration"`
	Persona      string `json:"persona"`
	Complexity   string `json:"complexity"`
	ToolDataMode string `json:"tool_data_mode"`
}

// text decodes a string field, treating anything else as empty.
func text(raw json.RawMessage) string {
	var s string
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &s)
	}
	return s
}

func (o observation) metadata() observedMetadata {
	var m observedMetadata
	if len(o.Metadata) > 0 {
		_ = json.Unmarshal(o.Metadata, &m)
	}
	return m
}

func (o observation) toolNames() []string {
	var set []struct {
		Name string `json:"name"`
	}
	if len(o.ToolSet) == 0 || json.Unmarshal(o.ToolSet, &set) != nil {
		return nil
	}
	names := make([]string, 0, len(set))
	for _, t := range set {
		names = append(names, t.Name)
	}
	return names
}

type qualityAcc struct {
	q       Quality
	cot     []int
	query   []int
	queries map[string]struct{}
}

func newQualityAcc() *qualityAcc {
	return &qualityAcc{
		q: Quality{
			Iterations:   map[int]int{},
			Personas:     map[string]int{},
			Complexities: map[string]int{},
			ToolDataMode: map[string]int{},
			ToolUsage:    map[string]int{},
		},
		queries: map[string]struct{}{},
	}
}

func (a *qualityAcc) add(obs ...observation) {
	for _, o := range obs {
		q := text(o.Q)
		a.cot = append(a.cot, utf8.RuneCountInString(text(o.COT)))
		a.query = append(a.query, utf8.RuneCountInString(q))
		a.queries[strings.TrimSpace(q)] = struct{}{}

		m := o.metadata()
		if m.Iteration != nil {
			a.q.Iterations[*m.Iteration]++
		}
		count(a.q.Personas, m.Persona)
		count(a.q.Complexities, m.Complexity)
		count(a.q.ToolDataMode, m.ToolDataMode)

		if DecisionKind(o.Decision) == "CALL" {
			a.q.CallRecords++
			for _, name := range o.toolNames() {
				count(a.q.ToolUsage, name)
			}
		}
	}
}

func (a *qualityAcc) result() Quality {
	q := a.q
	q.COTLength = lengthStats(a.cot)
	q.QueryLength = lengthStats(a.query)
	if n := len(a.cot); n > 0 {
		q.UniqueQueries = len(a.queries)
		q.DuplicateRate = 1 - float64(q.UniqueQueries)/float64(n)
	}
	return q
}

func count(m map[string]int, key string) {
	if key != "" {
		m[key]++
	}
}

func lengthStats(v []int) LengthStats {
	if len(v) == 0 {
		return LengthStats{}
	}
	sorted := append([]int(nil), v...)
	sort.Ints(sorted)
	total := 0
	for _, n := range sorted {
		total += n
	}
	mid := len(sorted) / 2
	median := float64(sorted[mid])
	if len(sorted)%2 == 0 {
		median = float64(sorted[mid-1]+sorted[mid]) / 2
	}
	return LengthStats{
		Min:    sorted[0],
		Max:    sorted[len(sorted)-1],
		Mean:   float64(total) / float64(len(sorted)),
		Median: median,
	}
}
