package decision

import (
	"fmt"
	"regexp"
	"strings"
)

// AmbiguityRule asks for clarification when Pattern matches a query and
// Resolved (if set) does not.
type AmbiguityRule struct {
	Name     string
	Pattern  *regexp.Regexp
	Resolved *regexp.Regexp
	Question string
}

func (r AmbiguityRule) Matches(query string) bool {
	if r.Pattern == nil || !r.Pattern.MatchString(query) {
		return false
	}
	return r.Resolved == nil || !r.Resolved.MatchString(query)
}

// DefaultAmbiguityRules covers the two gaps the tools cannot fill on their
// own: which account, and over which period.
func DefaultAmbiguityRules() []AmbiguityRule {
	return []AmbiguityRule{
		{
			Name:     "unspecified_account",
			Pattern:  regexp.MustCompile(`(?i)\bmy\s+(?:\w+\s+)?(?:account|balance|statement|holdings|positions)\b`),
			Resolved: regexp.MustCompile(`(?i)\b(?:acc|acct|account)(?:\s*(?:number|no\.?|#))?[\s:#-]*[A-Z]{0,3}-?\d{4,}\b`),
			Question: "Which account are you asking about? Please share the account number.",
		},
		{
			Name:     "unspecified_time_horizon",
			Pattern:  regexp.MustCompile(`(?i)\b(?:how\s+(?:has|have|did|is|are)\s+my\b.*\b(?:perform|doing|done)|my\s+(?:portfolio|investments?|funds?|stocks?)(?:'s)?\s+(?:returns?|performance))`),
			Resolved: regexp.MustCompile(`(?i)\b(?:\d+\s*(?:years?|months?|weeks?|days?)|ytd|year[- ]to[- ]date|(?:this|last|past)\s+(?:year|month|quarter|week)|since\s+\w+)\b`),
			Question: "Over what time period would you like me to review the performance?",
		},
	}
}

var (
	definitionalPrefixes = []string{"what is ", "what are ", "what's ", "what does ", "define ", "who is ", "explain what "}
	firstPersonRe        = regexp.MustCompile(`(?i)\b(?:i|i'm|i've|me|my|mine|we|our|us)\b`)
)

const maxGeneralKnowledgeWords = 12

// isGeneralKnowledge reports a short definitional question with no personal
// context, answerable without tools.
func isGeneralKnowledge(query string) bool {
	q := strings.ToLower(strings.TrimSpace(query))
	if len(strings.Fields(q)) > maxGeneralKnowledgeWords || firstPersonRe.MatchString(q) {
		return false
	}
	for _, p := range definitionalPrefixes {
		if strings.HasPrefix(q, p) {
			return true
		}
	}
	return false
}

// questionForParam phrases a clarifying question for a missing tool input.
func questionForParam(param string) string {
	switch param {
	case "account_id":
		return "Which account should I look up? Please share the account number."
	case "symbol", "ticker":
		return "Which ticker symbol are you asking about?"
	case "risk_tolerance":
		return "How would you describe your risk tolerance: conservative, moderate, or aggressive?"
	case "time_horizon_years", "years":
		return "How many years do you plan to keep this money invested?"
	default:
		return fmt.Sprintf("Could you provide the %s so I can continue?", strings.ReplaceAll(param, "_", " "))
	}
}

func questionForFailure(tools []string) string {
	return fmt.Sprintf("I couldn't retrieve reliable data from %s. Could you confirm the details of your request, or would you like me to try again later?",
		strings.Join(tools, " and "))
}
