package provider

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeQuery(t *testing.T) {
	tests := []struct {
		name   string
		in     string
		expect string
	}{
		{"trademark and colon", "Speed™ Racer: Deluxe", "Speed Racer Deluxe"},
		{"registered and copyright", "Game® ©1994", "Game 1994"},
		{"bracketed qualifiers", "Final Quest (USA) [Rev 1]", "Final Quest"},
		{"embedded quotes", `The "Best" Game's Trial`, "The Best Game s Trial"},
		{"grammar operators", "one&two+three/four=five", "one two three four five"},
		{"whitespace collapsed", "A   B\t\tC", "A B C"},
		{"hyphens preserved", "F-Zero X", "F-Zero X"},
		{"unbalanced brackets", "Broken (Beta Title [v2", "Broken Beta Title v2"},
		{"already clean", "Chrono Trigger", "Chrono Trigger"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expect, SanitizeQuery(tt.in))
		})
	}
}

func TestSanitizeQuery_Properties(t *testing.T) {
	inputs := []string{
		"Speed™ Racer: Deluxe",
		`"Quoted" Title`,
		"Name [with] (lots) {of} qualifiers!",
		"a®b©c™d",
		"semi;colon: and, more? yes!",
	}

	for _, in := range inputs {
		out := SanitizeQuery(in)
		assert.NotEmpty(t, out, "input %q", in)
		assert.NotContains(t, out, `"`, "input %q", in)
		assert.NotContains(t, out, "  ", "input %q", in)
	}
}

func TestStripHTML(t *testing.T) {
	tests := []struct {
		name   string
		in     string
		expect string
	}{
		{"plain text untouched", "no markup here", "no markup here"},
		{"tags removed", "<b>bold</b> and <i>italic</i>", "bold and italic"},
		{"nested markup", `<div><p>request <a href="x">failed</a></p></div>`, "request failed"},
		{"collapses whitespace", "a\n\n  b", "a b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expect, StripHTML(tt.in))
		})
	}
}

func TestStripHTML_NoRawTags(t *testing.T) {
	out := StripHTML("<html><body><h1>504</h1><p>gateway timeout</p></body></html>")
	assert.False(t, strings.ContainsAny(out, "<>"))
	assert.Contains(t, out, "gateway timeout")
}
