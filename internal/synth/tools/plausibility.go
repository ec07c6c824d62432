package tools

import (
	"errors"
	"fmt"
	"math"

	"github.com/trajgen/server/internal/synth/model"
)

var errImplausible = errors.New("implausible payload")

// CheckPlausible validates the content of a successful tool payload.
func CheckPlausible(spec model.ToolSpec, data map[string]any, args map[string]any) error {
	if data == nil {
		return fmt.Errorf("%w: no data", errImplausible)
	}
	switch spec.Kind {
	case model.KindAccount:
		if bal, ok := number(data["balance"]); !ok || bal < 0 {
			return fmt.Errorf("%w: balance %v", errImplausible, data["balance"])
		}
		if want := stringArg(args, "account_id"); want != "" && data["account_id"] != want {
			return fmt.Errorf("%w: account %v does not match %s", errImplausible, data["account_id"], want)
		}
		return percentSum(data["holdings"], "weight_pct")
	case model.KindMarket:
		if p, ok := number(data["price"]); !ok || p <= 0 {
			return fmt.Errorf("%w: price %v", errImplausible, data["price"])
		}
		if want := stringArg(args, "symbol"); want != "" && data["symbol"] != want {
			return fmt.Errorf("%w: symbol %v does not match %s", errImplausible, data["symbol"], want)
		}
	case model.KindAllocation:
		alloc, ok := data["allocation"].(map[string]any)
		if !ok || len(alloc) == 0 {
			return fmt.Errorf("%w: missing allocation", errImplausible)
		}
		total := 0.0
		for k, v := range alloc {
			n, ok := number(v)
			if !ok || n < 0 || n > 100 {
				return fmt.Errorf("%w: allocation %s=%v", errImplausible, k, v)
			}
			total += n
		}
		if math.Abs(total-100) > 0.5 {
			return fmt.Errorf("%w: allocation sums to %.1f", errImplausible, total)
		}
	case model.KindRisk:
		if s, ok := number(data["risk_score"]); !ok || s < 1 || s > 10 {
			return fmt.Errorf("%w: risk score %v", errImplausible, data["risk_score"])
		}
	default:
		docs, ok := data["documents"].([]any)
		if !ok || len(docs) == 0 {
			return fmt.Errorf("%w: no documents", errImplausible)
		}
		if n, ok := number(data["n_results"]); ok && int(n) != len(docs) {
			return fmt.Errorf("%w: n_results %d but %d documents", errImplausible, int(n), len(docs))
		}
		for _, d := range docs {
			doc, _ := d.(map[string]any)
			if s, ok := number(doc["score"]); !ok || s < 0 || s > 1 {
				return fmt.Errorf("%w: document score %v", errImplausible, doc["score"])
			}
		}
	}
	return nil
}

func percentSum(v any, field string) error {
	items, ok := v.([]any)
	if !ok || len(items) == 0 {
		return fmt.Errorf("%w: no holdings", errImplausible)
	}
	total := 0.0
	for _, it := range items {
		m, _ := it.(map[string]any)
		n, ok := number(m[field])
		if !ok || n < 0 {
			return fmt.Errorf("%w: %s %v", errImplausible, field, m[field])
		}
		total += n
	}
	if math.Abs(total-100) > 0.5 {
		return fmt.Errorf("%w: %s sums to %.1f", errImplausible, field, total)
	}
	return nil
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, !math.IsNaN(n) && !math.IsInf(n, 0)
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
