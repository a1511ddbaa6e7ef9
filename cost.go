package agentrelay

type TokenRates struct {
	Input  float64
	Output float64
}

// Pricing constants in dollars per million tokens
const (
	GPT4oInputRate      = 2.5
	GPT4oOutputRate     = 10.0
	GPT4oMiniInputRate  = 0.15
	GPT4oMiniOutputRate = 0.60
	GPT41InputRate      = 2.0
	GPT41OutputRate     = 8.0
	GPT41MiniInputRate  = 0.40
	GPT41MiniOutputRate = 1.60
	O3MiniInputRate     = 1.10
	O3MiniOutputRate    = 4.40
)

// ModelPricings maps model names to per-million-token prices.
var ModelPricings = map[string]TokenRates{
	"gpt-4o":            {Input: GPT4oInputRate, Output: GPT4oOutputRate},
	"gpt-4o-mini":       {Input: GPT4oMiniInputRate, Output: GPT4oMiniOutputRate},
	"gpt-4.1":           {Input: GPT41InputRate, Output: GPT41OutputRate},
	"gpt-4.1-mini":      {Input: GPT41MiniInputRate, Output: GPT41MiniOutputRate},
	"o3-mini":           {Input: O3MiniInputRate, Output: O3MiniOutputRate},
	"azure/gpt-4o":      {Input: GPT4oInputRate, Output: GPT4oOutputRate},
	"azure/gpt-4o-mini": {Input: GPT4oMiniInputRate, Output: GPT4oMiniOutputRate},
	"azure/o3-mini":     {Input: O3MiniInputRate, Output: O3MiniOutputRate},
}

// CostDetails represents detailed cost information for a run
type CostDetails struct {
	InputTokens  int64
	OutputTokens int64
	TotalCost    float64
}

// Cost returns the accumulated cost of the run priced for model. The second
// value is false when the model has no known pricing.
func (r *Run) Cost(model string) (*CostDetails, bool) {
	pricing, exists := ModelPricings[model]
	if !exists {
		return nil, false
	}

	usage := r.Usage()
	inputCost := float64(usage.InputTokens) * pricing.Input / 1000000
	outputCost := float64(usage.OutputTokens) * pricing.Output / 1000000

	return &CostDetails{
		InputTokens:  usage.InputTokens,
		OutputTokens: usage.OutputTokens,
		TotalCost:    inputCost + outputCost,
	}, true
}
