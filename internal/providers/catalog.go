package providers

import "fmt"

// Provider identifiers.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
	ProviderDeepSeek  = "deepseek"
	ProviderLlama     = "llama"
)

// ModelInfo describes a model offered for peer review.
type ModelInfo struct {
	// Name is the user-facing identifier passed to --models.
	Name string `json:"name"`
	// Provider selects the client implementation.
	Provider string `json:"provider"`
	// Service names the credential used to authenticate.
	Service string `json:"service"`
	// APIModel is the identifier sent to the provider API.
	APIModel      string `json:"apiModel"`
	ContextWindow int    `json:"contextWindow"`
	MaxOutput     int    `json:"maxOutput"`
	// Reasoning models think before answering and count those hidden
	// tokens against the completion budget. OpenAI's also reject
	// temperature.
	Reasoning bool `json:"reasoning,omitempty"`
}

// Catalog is the ordered list of supported review models.
var Catalog = []ModelInfo{
	{
		Name: "gpt4-o1", Provider: ProviderOpenAI, Service: "openai",
		APIModel: "o1", ContextWindow: 200000, MaxOutput: 100000, Reasoning: true,
	},
	{
		Name: "gpt4-o3-mini", Provider: ProviderOpenAI, Service: "openai",
		APIModel: "o3-mini", ContextWindow: 200000, MaxOutput: 100000, Reasoning: true,
	},
	{
		Name: "claude-3.7-sonnet", Provider: ProviderAnthropic, Service: "anthropic",
		APIModel: "claude-3-7-sonnet-20250219", ContextWindow: 200000, MaxOutput: 8192,
	},
	{
		Name: "gemini-2.5-pro", Provider: ProviderGemini, Service: "google",
		APIModel: "gemini-2.5-pro-preview-05-06", ContextWindow: 1048576, MaxOutput: 65536, Reasoning: true,
	},
	{
		Name: "deepseek-r1", Provider: ProviderDeepSeek, Service: "deepseek",
		APIModel: "deepseek-reasoner", ContextWindow: 64000, MaxOutput: 8192, Reasoning: true,
	},
	{
		Name: "llama-4-maverick", Provider: ProviderLlama, Service: "llama",
		APIModel: "meta-llama/Llama-4-Maverick-17B-128E-Instruct-FP8", ContextWindow: 1048576, MaxOutput: 8192,
	},
}

// ModelNames returns the names of all catalog models in catalog order.
func ModelNames() []string {
	names := make([]string, 0, len(Catalog))
	for _, m := range Catalog {
		names = append(names, m.Name)
	}
	return names
}

// Lookup returns the catalog entry for name.
func Lookup(name string) (ModelInfo, error) {
	for _, m := range Catalog {
		if m.Name == name {
			return m, nil
		}
	}
	return ModelInfo{}, fmt.Errorf("unknown model: %s", name)
}

// SelectModels filters requested against the catalog, keeping request order
// and dropping duplicates. Names not in the catalog are returned in unknown.
// An empty request selects every catalog model.
func SelectModels(requested []string) (selected, unknown []string) {
	if len(requested) == 0 {
		return ModelNames(), nil
	}
	seen := make(map[string]bool)
	for _, name := range requested {
		if seen[name] {
			continue
		}
		seen[name] = true
		if _, err := Lookup(name); err != nil {
			unknown = append(unknown, name)
			continue
		}
		selected = append(selected, name)
	}
	return selected, unknown
}

// Completion budgets used when no limit is configured.
const (
	DefaultOutputTokens   = 4096
	ReasoningOutputTokens = 32768
)

// OutputBudget clamps requested to the model's output limit. When requested
// is zero, reasoning models get [ReasoningOutputTokens] so that thinking
// leaves room for the answer, other models [DefaultOutputTokens].
func (m ModelInfo) OutputBudget(requested int) int {
	if requested <= 0 {
		requested = DefaultOutputTokens
		if m.Reasoning {
			requested = ReasoningOutputTokens
		}
	}
	if m.MaxOutput > 0 && requested > m.MaxOutput {
		return m.MaxOutput
	}
	return requested
}

// InputBudget returns how many prompt tokens fit in the context window once
// the output budget is reserved, capped by limit when limit is positive.
func (m ModelInfo) InputBudget(limit, outputTokens int) int {
	budget := m.ContextWindow - outputTokens
	if budget < 0 {
		budget = 0
	}
	if limit > 0 && limit < budget {
		return limit
	}
	return budget
}
