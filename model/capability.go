// Package model provides capability-based model selection for research stages.
// Instead of hardcoding model names, callers specify capabilities (classify,
// research, synthesize) and the registry resolves them to available models
// with fallback chains.
package model

// Capability represents a semantic capability for model selection.
// Instead of specifying "claude-sonnet", callers specify "classify" or
// "synthesize".
type Capability string

const (
	// CapabilityClassify is for fast structured extraction from short requests.
	CapabilityClassify Capability = "classify"

	// CapabilityResearch is for tool-driven analysis turns inside sub-tasks.
	CapabilityResearch Capability = "research"

	// CapabilitySynthesize is for long-form report writing over collected data.
	CapabilitySynthesize Capability = "synthesize"
)

// StageCapabilities maps run stages to their default capability.
var StageCapabilities = map[string]Capability{
	"parse":       CapabilityClassify,
	"metrics":     CapabilityResearch,
	"positioning": CapabilityResearch,
	"synthesize":  CapabilitySynthesize,
}

// CapabilityForStage returns the default capability for a run stage.
// Returns CapabilityResearch as fallback for unknown stages.
func CapabilityForStage(stage string) Capability {
	if cap, ok := StageCapabilities[stage]; ok {
		return cap
	}
	return CapabilityResearch
}

// IsValid checks if a capability string is a known capability.
func (c Capability) IsValid() bool {
	switch c {
	case CapabilityClassify, CapabilityResearch, CapabilitySynthesize:
		return true
	}
	return false
}

// String returns the string representation of the capability.
func (c Capability) String() string {
	return string(c)
}

// ParseCapability converts a string to a Capability, returning empty for
// unknown values.
func ParseCapability(s string) Capability {
	cap := Capability(s)
	if cap.IsValid() {
		return cap
	}
	return ""
}
