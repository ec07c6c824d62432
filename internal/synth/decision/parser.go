package decision

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	logx "github.com/trajgen/server/pkg/logger"
)

// basic safety limits to avoid pathological inputs
const (
	maxContentLen = 32 * 1024
	maxErrSnippet = 200
)

// ErrMalformedOutput is returned when a completion lacks a required section.
var ErrMalformedOutput = errors.New("malformed decision output")

type section string

const (
	secDecision      section = "DECISION"
	secReasoning     section = "REASONING"
	secTools         section = "TOOLS"
	secQuestion      section = "QUESTION"
	secClarification section = "CLARIFICATION"
	secAnswer        section = "ANSWER"
)

var knownSections = []section{secDecision, secReasoning, secTools, secQuestion, secClarification, secAnswer}

// Sections holds the labeled parts of a decision completion. Continuation
// lines are folded into the preceding section.
type Sections struct {
	Decision  string
	Reasoning string
	Tools     []string
	Question  string
	Answer    string
	// Headers is false when no "LABEL:" line was found at all.
	Headers bool
}

// ParseSections splits a completion into its labeled sections.
func ParseSections(content string) (out Sections, err error) {
	defer func() {
		if r := recover(); r != nil {
			logx.Error().Str("component", "decision_parser").Msgf("panic recovered: %v", r)
			out, err = Sections{}, fmt.Errorf("%w: parser panic", ErrMalformedOutput)
		}
	}()

	if !utf8.ValidString(content) {
		return Sections{}, fmt.Errorf("%w: invalid utf8", ErrMalformedOutput)
	}
	if len(content) > maxContentLen {
		logx.Warn().
			Str("component", "decision_parser").
			Int("max_len", maxContentLen).
			Int("orig_len", len(content)).
			Msg("content truncated due to size limit")
		content = truncate(content, maxContentLen)
	}

	parts := map[section]*strings.Builder{}
	var current section
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if sec, rest, ok := header(line); ok {
			current = sec
			out.Headers = true
			b := &strings.Builder{}
			b.WriteString(rest)
			parts[sec] = b
			continue
		}
		if line == "" || current == "" {
			continue
		}
		b := parts[current]
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(line)
	}

	get := func(s section) string {
		if b, ok := parts[s]; ok {
			return strings.TrimSpace(b.String())
		}
		return ""
	}
	out.Decision = strings.ToUpper(get(secDecision))
	out.Reasoning = get(secReasoning)
	out.Answer = get(secAnswer)
	out.Question = get(secQuestion)
	if out.Question == "" {
		out.Question = get(secClarification)
	}
	for _, t := range strings.Split(get(secTools), ",") {
		if t = strings.TrimSpace(t); t != "" {
			out.Tools = append(out.Tools, t)
		}
	}
	return out, nil
}

// header recognizes "LABEL: rest", tolerating markdown bold and bracketed
// labels the model sometimes adds.
func header(line string) (section, string, bool) {
	l := strings.TrimLeft(line, "*#[ ")
	for _, s := range knownSections {
		name := string(s)
		if len(l) < len(name) || !strings.EqualFold(l[:len(name)], name) {
			continue
		}
		rest := strings.TrimLeft(l[len(name):], "*] ")
		if !strings.HasPrefix(rest, ":") {
			continue
		}
		rest = strings.TrimLeft(rest[1:], "* ")
		return s, strings.TrimSpace(strings.Trim(rest, "[]")), true
	}
	return "", "", false
}

func safeSnippet(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= maxErrSnippet {
		return s
	}
	return truncate(s, maxErrSnippet) + "..."
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
