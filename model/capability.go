// Package model maps Taskhub's AI features to LLM endpoints.
//
// Features ask for a capability (planning, writing) rather than a model
// name, and the registry resolves the capability to an ordered chain of
// configured endpoints, skipping endpoints whose circuit is open.
package model

// Capability represents a semantic capability for model selection.
type Capability string

const (
	// CapabilityPlanning breaks projects down into tasks.
	CapabilityPlanning Capability = "planning"

	// CapabilityWriting produces prose such as project summaries.
	CapabilityWriting Capability = "writing"
)

// FeatureCapabilities maps assistant features to their capability.
var FeatureCapabilities = map[string]Capability{
	"generate-tasks":   CapabilityPlanning,
	"analyze-project":  CapabilityPlanning,
	"generate-summary": CapabilityWriting,
}

// CapabilityForFeature returns the capability for an assistant feature,
// CapabilityPlanning for unknown features.
func CapabilityForFeature(feature string) Capability {
	if c, ok := FeatureCapabilities[feature]; ok {
		return c
	}
	return CapabilityPlanning
}

// IsValid checks if a capability string is a known capability.
func (c Capability) IsValid() bool {
	return c == CapabilityPlanning || c == CapabilityWriting
}

func (c Capability) String() string {
	return string(c)
}

// ParseCapability converts a string to a Capability, returning empty for invalid values.
func ParseCapability(s string) Capability {
	c := Capability(s)
	if c.IsValid() {
		return c
	}
	return ""
}
