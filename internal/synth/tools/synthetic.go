package tools

import (
	"fmt"
	"hash/fnv"
	"math"
	"math/rand/v2"
	"strings"

	"github.com/trajgen/server/internal/synth/model"
)

const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Envelope is the JSON document every synthetic tool returns.
type Envelope struct {
	Tool   string         `json:"tool"`
	Status string         `json:"status"`
	Error  *ToolError     `json:"error,omitempty"`
	Data   map[string]any `json:"data,omitempty"`
}

type ToolError struct {
	Kind    model.ErrorKind `json:"kind"`
	Message string          `json:"message"`
	Param   string          `json:"param,omitempty"`
}

// Simulation fixes the inputs that make a synthetic outcome reproducible.
type Simulation struct {
	Mode      model.ToolDataMode
	Query     string
	Iteration int
}

func (s Simulation) rng(tool string, corrective bool) *rand.Rand {
	h := fnv.New64a()
	fmt.Fprintf(h, "%s\x00%s\x00%d\x00%s\x00%t", s.Query, tool, s.Iteration, s.Mode, corrective)
	sum := h.Sum64()
	return rand.New(rand.NewPCG(sum, sum>>17|0x9e3779b97f4a7c15))
}

type knowledgeDoc struct {
	title    string
	snippet  string
	keywords []string
}

var knowledgeBase = []knowledgeDoc{
	{"Asset Allocation Basics", "Asset allocation divides a portfolio among stocks, bonds and cash according to goals, risk tolerance and time horizon.", []string{"allocat", "portfolio", "split", "asset"}},
	{"Retirement Planning Guide", "A common rule of thumb shifts from growth assets toward bonds as retirement approaches, reducing sequence-of-returns risk.", []string{"retire", "pension", "401k"}},
	{"Diversification Explained", "Holding assets with low correlation reduces portfolio volatility without necessarily lowering expected return.", []string{"diversif", "correlation", "volatil"}},
	{"Understanding Risk Tolerance", "Risk tolerance combines the ability and the willingness to absorb losses; questionnaires score it from conservative to aggressive.", []string{"risk", "losing", "worried", "safe"}},
	{"Index Funds and ETFs", "Index funds and ETFs offer broad market exposure at low cost and are a core holding for many long-term investors.", []string{"etf", "index", "fund"}},
	{"Rebalancing Strategies", "Rebalancing periodically restores target weights, selling assets that outperformed and buying those that lagged.", []string{"rebalanc", "drift", "target"}},
	{"Market Data Primer", "Quoted prices reflect the last trade; daily change is measured against the previous close.", []string{"price", "stock", "market", "share"}},
	{"Emergency Funds", "Keeping three to six months of expenses in cash protects long-term investments from forced selling.", []string{"cash", "emergency", "saving"}},
}

// validPayload produces a plausible result for spec.
func validPayload(spec model.ToolSpec, args map[string]any, sim Simulation, r *rand.Rand) map[string]any {
	switch spec.Kind {
	case model.KindAccount:
		id := stringArg(args, "account_id")
		if id == "" {
			id = fmt.Sprintf("ACC-%04d", 1000+r.IntN(9000))
		}
		total := round2(5_000 + r.Float64()*495_000)
		return map[string]any{
			"account_id": id,
			"currency":   "USD",
			"balance":    total,
			"holdings":   holdings(r),
		}
	case model.KindMarket:
		sym := stringArg(args, "symbol")
		if sym == "" {
			sym = "SPY"
		}
		return map[string]any{
			"symbol":     sym,
			"price":      round2(10 + r.Float64()*590),
			"change_pct": round2(r.Float64()*6 - 3),
			"currency":   "USD",
		}
	case model.KindAllocation:
		risk := stringArg(args, "risk_tolerance")
		if risk == "" {
			risk = "moderate"
		}
		years := intArg(args, "time_horizon_years", 20)
		return map[string]any{
			"risk_tolerance":     risk,
			"time_horizon_years": years,
			"allocation":         allocation(risk, years),
		}
	case model.KindRisk:
		score := 1 + r.IntN(10)
		return map[string]any{
			"risk_score": score,
			"category":   riskCategory(score),
		}
	default:
		docs := searchDocs(sim.Query, intArg(args, "top_k", 3), r)
		return map[string]any{
			"n_results": len(docs),
			"documents": docs,
		}
	}
}

// corruptPayload produces a well-formed document whose content fails the
// plausibility checks for spec.Kind.
func corruptPayload(spec model.ToolSpec, args map[string]any, sim Simulation, r *rand.Rand) map[string]any {
	data := validPayload(spec, args, sim, r)
	switch spec.Kind {
	case model.KindAccount:
		data["balance"] = -round2(1 + r.Float64()*10_000)
	case model.KindMarket:
		data["price"] = 0.0
		if r.IntN(2) == 0 {
			data["symbol"] = "XXXX"
		}
	case model.KindAllocation:
		data["allocation"] = map[string]any{"stocks": 80, "bonds": 60, "cash": 30}
	case model.KindRisk:
		data["risk_score"] = 11 + r.IntN(90)
	default:
		data["documents"] = []any{}
	}
	return data
}

func searchDocs(query string, k int, r *rand.Rand) []any {
	if k <= 0 || k > len(knowledgeBase) {
		k = 3
	}
	q := strings.ToLower(query)
	var hits, rest []knowledgeDoc
	for _, d := range knowledgeBase {
		if matchesAny(q, d.keywords) {
			hits = append(hits, d)
		} else {
			rest = append(rest, d)
		}
	}
	r.Shuffle(len(rest), func(i, j int) { rest[i], rest[j] = rest[j], rest[i] })
	ordered := append(hits, rest...)

	out := make([]any, 0, k)
	score := 0.95 - r.Float64()*0.1
	for _, d := range ordered[:k] {
		out = append(out, map[string]any{"title": d.title, "snippet": d.snippet, "score": round2(score)})
		score = max(0.05, score-0.05-r.Float64()*0.1)
	}
	return out
}

func holdings(r *rand.Rand) []any {
	symbols := []string{"VTI", "BND", "VXUS", "AAPL", "MSFT", "SCHD"}
	r.Shuffle(len(symbols), func(i, j int) { symbols[i], symbols[j] = symbols[j], symbols[i] })
	n := 2 + r.IntN(3)
	remaining := 100
	out := make([]any, 0, n)
	for i := 0; i < n; i++ {
		w := remaining
		if i < n-1 {
			w = 10 + r.IntN(remaining-10*(n-i)+1)
		}
		remaining -= w
		out = append(out, map[string]any{"symbol": symbols[i], "weight_pct": w})
	}
	return out
}

func allocation(risk string, years int) map[string]any {
	stocks := 60
	switch risk {
	case "conservative":
		stocks = 35
	case "aggressive":
		stocks = 85
	}
	if years < 5 {
		stocks -= 20
	} else if years > 25 {
		stocks += 5
	}
	stocks = max(10, min(95, stocks))
	cash := 5
	return map[string]any{"stocks": stocks, "bonds": 100 - stocks - cash, "cash": cash}
}

func riskCategory(score int) string {
	switch {
	case score <= 3:
		return "conservative"
	case score <= 7:
		return "moderate"
	default:
		return "aggressive"
	}
}

func stringArg(args map[string]any, name string) string {
	if v, ok := args[name].(string); ok {
		return v
	}
	return ""
}

func intArg(args map[string]any, name string, def int) int {
	switch v := args[name].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return def
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
