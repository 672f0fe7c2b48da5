// Package cost estimates model spend from observed call volume. Exact
// token usage is not part of the client contract, so estimates lean on
// the common four-characters-per-token heuristic; treat the totals as
// telemetry, not billing.
package cost

// ModelRate holds per-model token pricing in dollars per million
// tokens.
type ModelRate struct {
	Input  float64 `yaml:"input" mapstructure:"input"`
	Output float64 `yaml:"output" mapstructure:"output"`
}

// Rates maps model names to their pricing. Keys match the names models
// are registered under, so lookups work directly off record rows.
type Rates map[string]ModelRate

// Calculator computes estimated costs for model calls.
type Calculator struct {
	rates Rates
}

// NewCalculator creates a Calculator with the given rates. Models
// missing from the table cost zero.
func NewCalculator(rates Rates) *Calculator {
	return &Calculator{rates: rates}
}

// EstimateTokens approximates the token count of a text by its length
// in characters.
func EstimateTokens(chars int) int {
	if chars <= 0 {
		return 0
	}
	return (chars + 3) / 4
}

// Call estimates the cost of one model call from the prompt and answer
// lengths in characters.
func (c *Calculator) Call(model string, promptChars, answerChars int) float64 {
	rate, ok := c.rates[model]
	if !ok {
		return 0
	}

	inCost := float64(EstimateTokens(promptChars)) / 1e6 * rate.Input
	outCost := float64(EstimateTokens(answerChars)) / 1e6 * rate.Output
	return inCost + outCost
}

// DefaultRates returns pricing for commonly registered models, keyed by
// vendor model id. Entries in the models config section can override
// them per registered name.
func DefaultRates() Rates {
	return Rates{
		"claude-haiku-4-5-20251001":  {Input: 0.80, Output: 4.00},
		"claude-sonnet-4-5-20250929": {Input: 3.00, Output: 15.00},
		"gpt-4o":                     {Input: 2.50, Output: 10.00},
		"gpt-4o-mini":                {Input: 0.15, Output: 0.60},
		"mistral-large-latest":       {Input: 2.00, Output: 6.00},
		"deepseek-chat":              {Input: 0.27, Output: 1.10},
	}
}
