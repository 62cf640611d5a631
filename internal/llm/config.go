// Package llm provides the extraction capability: an abstraction over LLM
// providers plus the guideline extraction schemas and output validation.
package llm

// ModelTier represents the capability level requested for a call.
type ModelTier string

const (
	// TierLite is for simple per-section extraction calls.
	TierLite ModelTier = "lite"
	// TierStandard is for structured extraction with larger outputs.
	TierStandard ModelTier = "standard"
)

// Config holds the model selection for the process.
type Config struct {
	Models map[ModelTier]string
}

// DefaultConfig returns the default Gemini model mapping.
func DefaultConfig() *Config {
	return &Config{
		Models: map[ModelTier]string{
			TierLite:     "gemini-2.5-flash-lite",
			TierStandard: "gemini-2.5-flash",
		},
	}
}

// GetModel returns the model for a tier, falling back to the standard tier.
func (c *Config) GetModel(tier ModelTier) string {
	if model, ok := c.Models[tier]; ok {
		return model
	}
	return c.Models[TierStandard]
}
