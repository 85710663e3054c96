package pricing

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultTable []byte

type ModelPricing struct {
	Input  float64 `yaml:"input"`
	Output float64 `yaml:"output"`
}

type Table struct {
	Providers map[string]map[string]ModelPricing
}

// Default returns the built-in price list for the models papertune uses.
func Default() *Table {
	t, err := parse(defaultTable)
	if err != nil {
		panic(fmt.Sprintf("pricing: embedded table: %v", err))
	}
	return t
}

// Load reads a price file. An empty path yields the built-in table.
func Load(path string) (*Table, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading pricing file: %w", err)
	}
	t, err := parse(data)
	if err != nil {
		return nil, fmt.Errorf("parsing pricing file: %w", err)
	}
	return t, nil
}

func parse(data []byte) (*Table, error) {
	var providers map[string]map[string]ModelPricing
	if err := yaml.Unmarshal(data, &providers); err != nil {
		return nil, err
	}
	return &Table{Providers: providers}, nil
}

// Cost calculates total cost for a request. Prices are per 1K tokens. Dated
// model snapshots such as gpt-4o-mini-2024-07-18 fall back to the longest
// listed model name they start with.
func (t *Table) Cost(provider, model string, inputTokens, outputTokens int) float64 {
	if t == nil || t.Providers == nil {
		return 0
	}
	models, ok := t.Providers[provider]
	if !ok {
		return 0
	}
	p, ok := models[model]
	if !ok {
		p, ok = longestPrefix(models, model)
		if !ok {
			return 0
		}
	}
	return (float64(inputTokens)/1000.0)*p.Input + (float64(outputTokens)/1000.0)*p.Output
}

func longestPrefix(models map[string]ModelPricing, model string) (ModelPricing, bool) {
	var (
		best    ModelPricing
		bestLen int
	)
	for name, p := range models {
		if strings.HasPrefix(model, name+"-") && len(name) > bestLen {
			best, bestLen = p, len(name)
		}
	}
	return best, bestLen > 0
}
