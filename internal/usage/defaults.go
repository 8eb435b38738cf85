package usage

// modelPricing is USD per million tokens.
type modelPricing struct {
	InputPerM  float64
	OutputPerM float64
}

var pricing = map[string]modelPricing{
	"gpt-4o":           {InputPerM: 2.50, OutputPerM: 10.00},
	"gpt-4o-mini":      {InputPerM: 0.15, OutputPerM: 0.60},
	"gpt-4.1":          {InputPerM: 2.00, OutputPerM: 8.00},
	"gpt-4.1-mini":     {InputPerM: 0.40, OutputPerM: 1.60},
	"o3-mini":          {InputPerM: 1.10, OutputPerM: 4.40},
	"claude-sonnet-4":  {InputPerM: 3.00, OutputPerM: 15.00},
	"claude-haiku-3.5": {InputPerM: 0.80, OutputPerM: 4.00},
}

// defaultPricing covers models missing from the table so spend is never
// silently dropped.
var defaultPricing = modelPricing{InputPerM: 2.50, OutputPerM: 10.00}

// Cost computes the USD cost for one invocation.
func Cost(model string, inputTokens, outputTokens int64) float64 {
	p, ok := pricing[model]
	if !ok {
		p = defaultPricing
	}
	return float64(inputTokens)/1e6*p.InputPerM + float64(outputTokens)/1e6*p.OutputPerM
}
