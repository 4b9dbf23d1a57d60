package wire

import (
	"strings"
	"unicode"

	"multichat/internal/core"
)

// Merge layers caller overrides on top of implementation defaults. Neither
// input is modified; a key present in both takes the caller's value.
func Merge(defaults, overrides core.Params) core.Params {
	merged := make(core.Params, len(defaults)+len(overrides))
	for k, v := range defaults {
		merged[k] = v
	}
	for k, v := range overrides {
		merged[k] = v
	}
	return merged
}

// camelToSnake rewrites a camelCase key as snake_case. Keys already in
// snake_case pass through unchanged.
func camelToSnake(key string) string {
	var b strings.Builder
	b.Grow(len(key) + 4)
	for i, r := range key {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// snakeKeyAliases maps spellings that differ beyond pure case conversion
// onto the snake_case name the OpenAI and Anthropic dialects expect.
var snakeKeyAliases = map[string]string{
	"maxOutputTokens":   "max_tokens",
	"max_output_tokens": "max_tokens",
	"stop":              "stop_sequences",
}

// geminiConfigKeys maps canonical snake_case parameter names onto the
// camelCase fields of Gemini's generationConfig.
var geminiConfigKeys = map[string]string{
	"temperature":        "temperature",
	"top_p":              "topP",
	"top_k":              "topK",
	"max_tokens":         "maxOutputTokens",
	"max_output_tokens":  "maxOutputTokens",
	"stop_sequences":     "stopSequences",
	"candidate_count":    "candidateCount",
	"presence_penalty":   "presencePenalty",
	"frequency_penalty":  "frequencyPenalty",
	"response_mime_type": "responseMimeType",
	"seed":               "seed",
}

// canonicalizeSnake normalizes parameter keys for the snake_case dialects.
// camelCase spellings are converted and known aliases are folded, so a
// caller sending topP and an implementation default of top_p land on the
// same key.
func canonicalizeSnake(params core.Params) core.Params {
	out := make(core.Params, len(params))
	for k, v := range params {
		if alias, ok := snakeKeyAliases[k]; ok {
			k = alias
		} else {
			k = camelToSnake(k)
		}
		out[k] = v
	}
	return out
}

// canonicalizeGemini normalizes keys into Gemini generationConfig form.
// Unrecognized keys are dropped rather than forwarded, since Gemini
// rejects unknown generationConfig fields.
func canonicalizeGemini(params core.Params) core.Params {
	out := make(core.Params, len(params))
	for k, v := range params {
		snake := k
		if alias, ok := snakeKeyAliases[snake]; ok {
			snake = alias
		} else {
			snake = camelToSnake(snake)
		}
		if camel, ok := geminiConfigKeys[snake]; ok {
			out[camel] = v
		}
	}
	return out
}

// Canonicalize normalizes parameter keys into the spelling the given
// family's API expects. Merging canonicalized maps keeps the caller's
// value when an override and a default spell the same parameter
// differently.
func Canonicalize(family Family, params core.Params) core.Params {
	switch family {
	case FamilyGemini:
		return canonicalizeGemini(params)
	default:
		return canonicalizeSnake(params)
	}
}
