package tools

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/trajgen/server/internal/synth/model"
)

var (
	tickerRe     = regexp.MustCompile(`\$?\b([A-Z]{2,5})\b`)
	accountRe    = regexp.MustCompile(`(?i)\b(?:acc|acct|account)(?:\s*(?:number|no\.?|#))?[\s:#-]*([A-Z]{0,3}-?\d{4,})\b`)
	horizonRe    = regexp.MustCompile(`(?i)\b(\d{1,2})\s*(?:-\s*)?(?:years?|yrs?)\b`)
	retireInRe   = regexp.MustCompile(`(?i)\bretir\w*\s+in\s+(\d{1,2})\b`)
	riskWordsMap = []struct {
		words []string
		value string
	}{
		{[]string{"conservative", "low risk", "low-risk", "safe", "worried", "losing"}, "conservative"},
		{[]string{"aggressive", "high risk", "high-risk", "maximi"}, "aggressive"},
		{[]string{"moderate", "balanced"}, "moderate"},
	}
)

// Uppercase tokens that look like tickers but are not.
var tickerStopwords = map[string]bool{
	"ETF": true, "ETFS": true, "IRA": true, "USD": true, "CEO": true, "FAQ": true, "API": true,
	"US": true, "AI": true, "OK": true, "ROI": true, "CFO": true, "TAX": true, "ASAP": true,
	"VAR": true, "ESG": true, "RMD": true, "HSA": true, "CD": true, "CDS": true, "NOW": true,
}

// InferArguments extracts parameter values for spec from the query text. Only
// parameters with a confident match are returned.
func InferArguments(query string, spec model.ToolSpec) map[string]any {
	args := map[string]any{}
	for name := range spec.Parameters {
		if v, ok := inferParam(name, query); ok {
			args[name] = v
		}
	}
	return args
}

func inferParam(name, query string) (any, bool) {
	switch name {
	case "query":
		return strings.TrimSpace(query), strings.TrimSpace(query) != ""
	case "symbol", "ticker":
		for _, m := range tickerRe.FindAllStringSubmatch(query, -1) {
			if !tickerStopwords[m[1]] {
				return m[1], true
			}
		}
	case "account_id":
		if m := accountRe.FindStringSubmatch(query); m != nil {
			return strings.ToUpper(m[1]), true
		}
	case "time_horizon_years", "years":
		if m := retireInRe.FindStringSubmatch(query); m != nil {
			n, _ := strconv.Atoi(m[1])
			return n, true
		}
		if m := horizonRe.FindStringSubmatch(query); m != nil {
			n, _ := strconv.Atoi(m[1])
			return n, true
		}
	case "risk_tolerance":
		q := strings.ToLower(query)
		for _, r := range riskWordsMap {
			if matchesAny(q, r.words) {
				return r.value, true
			}
		}
	}
	return nil, false
}

// Plan builds calls for specs. Required parameters the query does not state
// fall back to their declared default; a corrective plan additionally fills
// optional parameters that have defaults.
func Plan(query string, specs []model.ToolSpec, corrective bool) []model.ToolCall {
	calls := make([]model.ToolCall, 0, len(specs))
	for _, s := range specs {
		args := InferArguments(query, s)
		for name, p := range s.Parameters {
			if _, ok := args[name]; ok || p.Default == nil {
				continue
			}
			if p.Required || corrective {
				args[name] = p.Default
			}
		}
		calls = append(calls, model.ToolCall{Tool: s.Name, Arguments: args, Corrective: corrective})
	}
	return calls
}

// MissingRequired returns the first required parameter absent from args.
func MissingRequired(spec model.ToolSpec, args map[string]any) (string, bool) {
	for _, name := range spec.RequiredParams() {
		v, ok := args[name]
		if !ok || v == nil || v == "" {
			return name, true
		}
	}
	return "", false
}
