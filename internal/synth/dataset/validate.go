// Package dataset checks and summarizes generated JSONL training files.
package dataset

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"
)

const (
	minQueryChars = 10
	minCOTChars   = 20
)

var requiredFields = []string{"Q", "COT", "Tool Set", "Decision"}

var decisionPrefixes = []string{"CALL", "ASK", "ANSWER"}

// ValidationReport is the result of checking one file.
type ValidationReport struct {
	File     string   `json:"file"`
	Total    int      `json:"total_examples"`
	Valid    int      `json:"valid_examples"`
	Invalid  int      `json:"invalid_examples"`
	Problems []string `json:"errors"`
}

func (r ValidationReport) OK() bool {
	return r.Total > 0 && len(r.Problems) == 0
}

// ValidateFile checks every line of a JSONL file.
func ValidateFile(path string) (ValidationReport, error) {
	f, err := os.Open(path)
	if err != nil {
		return ValidationReport{File: path}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	rep, err := Validate(f)
	rep.File = path
	return rep, err
}

func Validate(r io.Reader) (ValidationReport, error) {
	var rep ValidationReport
	err := eachLine(r, func(n int, line []byte) {
		rep.Total++
		var ex map[string]any
		if err := json.Unmarshal(line, &ex); err != nil {
			rep.Invalid++
			rep.Problems = append(rep.Problems, fmt.Sprintf("Example %d: invalid JSON: %v", n, err))
			return
		}
		if problems := ValidateExample(ex, n); len(problems) > 0 {
			rep.Invalid++
			rep.Problems = append(rep.Problems, problems...)
			return
		}
		rep.Valid++
	})
	return rep, err
}

// ValidateExample returns the problems of one decoded record, numbered by
// its 1-based line.
func ValidateExample(ex map[string]any, n int) []string {
	var out []string
	for _, f := range requiredFields {
		if _, ok := ex[f]; !ok {
			out = append(out, fmt.Sprintf("Example %d: Missing required field '%s'", n, f))
		}
	}
	if len(out) > 0 {
		return out
	}

	if q, ok := ex["Q"].(string); !ok || utf8.RuneCountInString(strings.TrimSpace(q)) < minQueryChars {
		out = append(out, fmt.Sprintf("Example %d: Query too short or invalid", n))
	}
	if cot, ok := ex["COT"].(string); !ok || utf8.RuneCountInString(strings.TrimSpace(cot)) < minCOTChars {
		out = append(out, fmt.Sprintf("Example %d: COT too short (should be reasoning)", n))
	}
	if _, ok := ex["Tool Set"].([]any); !ok {
		out = append(out, fmt.Sprintf("Example %d: Tool Set must be a list", n))
	}
	d, ok := ex["Decision"].(string)
	if !ok {
		out = append(out, fmt.Sprintf("Example %d: Decision must be a string", n))
	} else if DecisionKind(d) == "" {
		out = append(out, fmt.Sprintf("Example %d: Invalid decision format (should start with CALL, ASK, or ANSWER)", n))
	}
	return out
}

// DecisionKind returns CALL, ASK or ANSWER for a Decision label, or "".
func DecisionKind(label string) string {
	up := strings.ToUpper(label)
	for _, p := range decisionPrefixes {
		if strings.HasPrefix(up, p) {
			return p
		}
	}
	return ""
}

func eachLine(r io.Reader, fn func(n int, line []byte)) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	n := 0
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		n++
		fn(n, []byte(line))
	}
	return sc.Err()
}
