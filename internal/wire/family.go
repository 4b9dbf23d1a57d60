// Package wire speaks the request and response dialects of the supported
// provider API families. A provider row names its family; everything
// family-specific (endpoint path, auth headers, parameter spelling,
// response shape) lives here.
package wire

import "fmt"

// Family identifies a provider wire dialect.
type Family int

const (
	// FamilyOpenAI covers OpenAI-compatible chat completion APIs. Groq,
	// xAI and Gemini's compatibility endpoint all speak this dialect.
	FamilyOpenAI Family = iota
	// FamilyAnthropic is the Anthropic Messages API.
	FamilyAnthropic
	// FamilyGemini is the native Gemini generateContent API.
	FamilyGemini
)

func (f Family) String() string {
	switch f {
	case FamilyOpenAI:
		return "openai"
	case FamilyAnthropic:
		return "anthropic"
	case FamilyGemini:
		return "gemini"
	default:
		return fmt.Sprintf("family(%d)", int(f))
	}
}

// ParseFamily maps a stored wire_family value to its Family.
func ParseFamily(s string) (Family, error) {
	switch s {
	case "openai", "":
		return FamilyOpenAI, nil
	case "anthropic":
		return FamilyAnthropic, nil
	case "gemini":
		return FamilyGemini, nil
	default:
		return 0, fmt.Errorf("unknown wire family %q", s)
	}
}
