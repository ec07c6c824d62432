package batch

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/trajgen/server/internal/synth/model"
)

// ErrNoSeeds is returned when an input file holds no usable query.
var ErrNoSeeds = errors.New("no seed queries found")

// LoadSeeds reads seed queries from a JSON list, a {"queries": [...]} or
// {"seed_queries": [...]} object, or JSONL. Entries are strings or objects
// with a "query" or "Q" field. Seed ids are 1-based positions.
func LoadSeeds(path string) ([]model.SeedQuery, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seeds: %w", err)
	}
	return ParseSeeds(b)
}

func ParseSeeds(b []byte) ([]model.SeedQuery, error) {
	entries, err := seedEntries(bytes.TrimSpace(b))
	if err != nil {
		return nil, err
	}

	var out []model.SeedQuery
	for i, raw := range entries {
		text, ok := seedText(raw)
		if !ok {
			continue
		}
		out = append(out, model.SeedQuery{ID: i + 1, Text: text})
	}
	if len(out) == 0 {
		return nil, ErrNoSeeds
	}
	return out, nil
}

func seedEntries(b []byte) ([]json.RawMessage, error) {
	if len(b) == 0 {
		return nil, ErrNoSeeds
	}
	switch b[0] {
	case '[':
		var list []json.RawMessage
		if err := json.Unmarshal(b, &list); err != nil {
			return nil, fmt.Errorf("parse seed list: %w", err)
		}
		return list, nil
	case '{':
		var doc struct {
			Queries     []json.RawMessage `json:"queries"`
			SeedQueries []json.RawMessage `json:"seed_queries"`
		}
		if err := json.Unmarshal(b, &doc); err == nil {
			if doc.Queries != nil {
				return doc.Queries, nil
			}
			if doc.SeedQueries != nil {
				return doc.SeedQueries, nil
			}
		}
	}
	return jsonLines(b)
}

func jsonLines(b []byte) ([]json.RawMessage, error) {
	var out []json.RawMessage
	sc := bufio.NewScanner(bytes.NewReader(b))
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for n := 1; sc.Scan(); n++ {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		if !json.Valid(line) {
			return nil, fmt.Errorf("line %d: invalid JSON", n)
		}
		out = append(out, json.RawMessage(append([]byte(nil), line...)))
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func seedText(raw json.RawMessage) (string, bool) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		s = strings.TrimSpace(s)
		return s, s != ""
	}
	var obj struct {
		Query string `json:"query"`
		Q     string `json:"Q"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return "", false
	}
	text := strings.TrimSpace(obj.Query)
	if text == "" {
		text = strings.TrimSpace(obj.Q)
	}
	return text, text != ""
}

// LoadRewritten reads a transformed_queries.jsonl file.
func LoadRewritten(path string) ([]model.RewrittenQuery, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read transformed queries: %w", err)
	}
	lines, err := jsonLines(b)
	if err != nil {
		return nil, err
	}
	out := make([]model.RewrittenQuery, 0, len(lines))
	for i, l := range lines {
		var q model.RewrittenQuery
		if err := json.Unmarshal(l, &q); err != nil {
			return nil, fmt.Errorf("line %d: %w", i+1, err)
		}
		v := q.Variant()
		if !v.Persona.Valid() || !v.Complexity.Valid() || !v.ToolDataMode.Valid() || strings.TrimSpace(q.Text) == "" {
			return nil, fmt.Errorf("line %d: not a transformed query", i+1)
		}
		out = append(out, q)
	}
	if len(out) == 0 {
		return nil, ErrNoSeeds
	}
	return out, nil
}
