package textgen

import (
	"sync"

	"github.com/cloudwego/eino/schema"
)

// Pricing defines USD cost per 1M tokens for input/output.
type Pricing struct {
	InputPerM  float64
	OutputPerM float64
}

// defaultPricing provides hardcoded USD pricing per 1M tokens (text tokens).
var defaultPricing = map[string]Pricing{
	"gemini-2.5-flash":      {InputPerM: 0.30, OutputPerM: 2.50},
	"gemini-2.5-flash-lite": {InputPerM: 0.10, OutputPerM: 0.40},
	"gemini-2.5-pro":        {InputPerM: 1.25, OutputPerM: 10.00},
}

// ResolvePricing returns hardcoded pricing for a model; unknown models cost 0.
func ResolvePricing(model string) Pricing {
	return defaultPricing[model]
}

// ComputeCost converts token usage to USD cost using per-1M Pricing.
func ComputeCost(usage *schema.TokenUsage, p Pricing) (inputCost, outputCost, total float64) {
	if usage == nil {
		return 0, 0, 0
	}
	inputCost = p.InputPerM * float64(usage.PromptTokens) / 1_000_000.0
	outputCost = p.OutputPerM * float64(usage.CompletionTokens) / 1_000_000.0
	total = inputCost + outputCost
	return
}

// Usage is a running total across completions.
type Usage struct {
	Calls            int     `json:"calls"`
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	CostUSD          float64 `json:"cost_usd"`
}

// UsageMeter accumulates token usage; safe for concurrent use.
type UsageMeter struct {
	mu    sync.Mutex
	total Usage
}

func NewUsageMeter() *UsageMeter {
	return &UsageMeter{}
}

func (m *UsageMeter) Record(model string, usage *schema.TokenUsage) {
	if usage == nil {
		return
	}
	_, _, cost := ComputeCost(usage, ResolvePricing(model))

	m.mu.Lock()
	defer m.mu.Unlock()
	m.total.Calls++
	m.total.PromptTokens += usage.PromptTokens
	m.total.CompletionTokens += usage.CompletionTokens
	m.total.CostUSD += cost
}

func (m *UsageMeter) Snapshot() Usage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.total
}
