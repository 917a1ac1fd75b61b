package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEngine(t *testing.T) {
	tests := []struct {
		in      string
		want    Engine
		wantErr bool
	}{
		{"chatgpt", EngineChatGPT, false},
		{"  Gemini ", EngineGemini, false},
		{"CLAUDE", EngineClaude, false},
		{"perplexity", EnginePerplexity, false},
		{"copilot", EngineCopilot, false},
		{"bard", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseEngine(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseEngines_DedupesInOrder(t *testing.T) {
	got, err := ParseEngines([]string{"claude", "chatgpt", "Claude"})
	require.NoError(t, err)
	assert.Equal(t, []Engine{EngineClaude, EngineChatGPT}, got)
}

func TestParseEngines_RejectsUnknown(t *testing.T) {
	_, err := ParseEngines([]string{"chatgpt", "altavista"})
	assert.Error(t, err)
}

func TestAllEngines_AreValid(t *testing.T) {
	engines := AllEngines()
	assert.Len(t, engines, 5)
	for _, e := range engines {
		assert.True(t, e.Valid(), "engine %s should be valid", e)
	}
}
