package tools

import (
	"fmt"
	"strings"

	"github.com/trajgen/server/internal/synth/model"
)

const (
	ToolSearchKnowledgeBase = "search_knowledge_base"
	ToolGetAccountInfo      = "get_account_info"
	ToolGetMarketData       = "get_market_data"
	ToolCalculateAllocation = "calculate_allocation"
	ToolGetRiskProfile      = "get_risk_profile"
)

// Catalog is an ordered, name-indexed set of tool specs. Order matters: the
// planner prefers earlier tools.
type Catalog struct {
	specs  []model.ToolSpec
	byName map[string]int
}

func NewCatalog(specs []model.ToolSpec) (*Catalog, error) {
	if len(specs) == 0 {
		return nil, fmt.Errorf("tool catalog is empty")
	}
	c := &Catalog{byName: make(map[string]int, len(specs))}
	for _, s := range specs {
		s.Name = strings.TrimSpace(s.Name)
		if s.Name == "" {
			return nil, fmt.Errorf("tool without name")
		}
		if _, dup := c.byName[s.Name]; dup {
			return nil, fmt.Errorf("duplicate tool %q", s.Name)
		}
		if s.Kind == "" {
			s.Kind = model.KindKnowledge
		}
		if s.Parameters == nil {
			s.Parameters = map[string]model.ParamSpec{}
		}
		c.byName[s.Name] = len(c.specs)
		c.specs = append(c.specs, s)
	}
	return c, nil
}

func (c *Catalog) Specs() []model.ToolSpec {
	out := make([]model.ToolSpec, len(c.specs))
	copy(out, c.specs)
	return out
}

func (c *Catalog) Lookup(name string) (model.ToolSpec, bool) {
	i, ok := c.byName[name]
	if !ok {
		return model.ToolSpec{}, false
	}
	return c.specs[i], true
}

// Relevant returns the tools whose keywords appear in query, plus every
// Always tool, in catalog order.
func (c *Catalog) Relevant(query string) []model.ToolSpec {
	q := strings.ToLower(query)
	var out []model.ToolSpec
	for _, s := range c.specs {
		if s.Always || matchesAny(q, s.Keywords) {
			out = append(out, s)
		}
	}
	return out
}

// Entry builds the record "Tool Set" element for a planned call.
func (c *Catalog) Entry(call model.ToolCall) model.ToolSetEntry {
	s, ok := c.Lookup(call.Tool)
	if !ok {
		return model.ToolSetEntry{
			Name:        call.Tool,
			Description: "Tool " + call.Tool,
			Parameters:  map[string]model.ParamSpec{},
			Arguments:   call.Arguments,
		}
	}
	return model.ToolSetEntry{
		Name:        s.Name,
		Description: s.Description,
		Parameters:  s.Parameters,
		Arguments:   call.Arguments,
	}
}

func matchesAny(lowerQuery string, keywords []string) bool {
	for _, k := range keywords {
		if k != "" && strings.Contains(lowerQuery, strings.ToLower(k)) {
			return true
		}
	}
	return false
}

// DefaultCatalog is the built-in finance assistant toolset.
func DefaultCatalog() *Catalog {
	c, err := NewCatalog(defaultSpecs())
	if err != nil {
		panic(err)
	}
	return c
}

func defaultSpecs() []model.ToolSpec {
	return []model.ToolSpec{
		{
			Name:        ToolSearchKnowledgeBase,
			Description: "Search the financial knowledge base for documents relevant to the query. Returns ranked document snippets.",
			Kind:        model.KindKnowledge,
			Always:      true,
			Parameters: map[string]model.ParamSpec{
				"query": {Type: "string", Description: "Natural language search query", Required: true},
				"top_k": {Type: "integer", Description: "Number of documents to return", Default: 3},
			},
		},
		{
			Name:        ToolGetAccountInfo,
			Description: "Retrieve balance and holdings for a client account.",
			Kind:        model.KindAccount,
			Keywords:    []string{"my account", "balance", "holdings", "statement", "account number", "my position"},
			Parameters: map[string]model.ParamSpec{
				"account_id": {Type: "string", Description: "Client account identifier, e.g. ACC-1234", Required: true},
			},
		},
		{
			Name:        ToolGetMarketData,
			Description: "Get the latest price and daily change for a ticker symbol.",
			Kind:        model.KindMarket,
			Keywords:    []string{"price", "stock", "ticker", "share", "quote", "market", "trading at"},
			Parameters: map[string]model.ParamSpec{
				"symbol": {Type: "string", Description: "Ticker symbol, e.g. AAPL", Required: true, Default: "SPY"},
			},
		},
		{
			Name:        ToolCalculateAllocation,
			Description: "Compute a recommended asset allocation for a risk tolerance and investment horizon.",
			Kind:        model.KindAllocation,
			Keywords:    []string{"allocat", "portfolio", "diversif", "split", "rebalanc", "asset mix", "retire"},
			Parameters: map[string]model.ParamSpec{
				"risk_tolerance":     {Type: "string", Description: "Investor risk tolerance", Required: true, Enum: []string{"conservative", "moderate", "aggressive"}, Default: "moderate"},
				"time_horizon_years": {Type: "integer", Description: "Years until the money is needed", Required: true, Default: 20},
			},
		},
		{
			Name:        ToolGetRiskProfile,
			Description: "Assess the investor's risk profile and score from stated preferences.",
			Kind:        model.KindRisk,
			Keywords:    []string{"risk", "volatil", "safe", "losing", "worried", "conservative", "aggressive", "drawdown"},
			Parameters: map[string]model.ParamSpec{
				"risk_tolerance": {Type: "string", Description: "Stated risk tolerance if known", Enum: []string{"conservative", "moderate", "aggressive"}},
			},
		},
	}
}
