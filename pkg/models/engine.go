package models

import (
	"fmt"
	"strings"
)

// Engine identifies an AI answer engine whose responses are monitored.
type Engine string

const (
	EngineChatGPT    Engine = "chatgpt"
	EngineGemini     Engine = "gemini"
	EngineClaude     Engine = "claude"
	EnginePerplexity Engine = "perplexity"
	EngineCopilot    Engine = "copilot"
)

// DefaultEngines are checked when neither the request nor the project names any.
var DefaultEngines = []Engine{EngineChatGPT, EngineGemini}

// AllEngines returns every supported engine in declaration order.
func AllEngines() []Engine {
	return []Engine{EngineChatGPT, EngineGemini, EngineClaude, EnginePerplexity, EngineCopilot}
}

// Valid reports whether e is one of the supported engines.
func (e Engine) Valid() bool {
	switch e {
	case EngineChatGPT, EngineGemini, EngineClaude, EnginePerplexity, EngineCopilot:
		return true
	}
	return false
}

// ParseEngine normalizes s and returns the matching engine.
func ParseEngine(s string) (Engine, error) {
	e := Engine(strings.ToLower(strings.TrimSpace(s)))
	if !e.Valid() {
		return "", fmt.Errorf("unknown engine %q", s)
	}
	return e, nil
}

// ParseEngines parses a list of engine names, dropping duplicates while
// preserving first-seen order.
func ParseEngines(values []string) ([]Engine, error) {
	seen := make(map[Engine]bool, len(values))
	engines := make([]Engine, 0, len(values))
	for _, v := range values {
		e, err := ParseEngine(v)
		if err != nil {
			return nil, err
		}
		if seen[e] {
			continue
		}
		seen[e] = true
		engines = append(engines, e)
	}
	return engines, nil
}
