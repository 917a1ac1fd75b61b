package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeDomain(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"example.com", "example.com"},
		{"  Example.COM ", "example.com"},
		{"https://www.example.com/pricing?x=1", "example.com"},
		{"http://user@shop.example.co.uk:8080/", "shop.example.co.uk"},
		{"www.example.com.", "example.com"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeDomain(tt.in))
		})
	}
}

func TestNormalizeKeyword(t *testing.T) {
	assert.Equal(t, "best crm", NormalizeKeyword("  Best CRM\t"))
}

func TestProject_DefaultCheckEngines(t *testing.T) {
	p := &Project{}
	assert.Equal(t, DefaultEngines, p.DefaultCheckEngines())

	p.Settings.Engines = []Engine{EngineClaude}
	assert.Equal(t, []Engine{EngineClaude}, p.DefaultCheckEngines())
}

func TestKeywordCategory_Valid(t *testing.T) {
	assert.True(t, KeywordLongTail.Valid())
	assert.False(t, KeywordCategory("tertiary").Valid())
}
