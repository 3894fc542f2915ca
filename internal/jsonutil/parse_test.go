package jsonutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStripMarkdownFences(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"no fences", `{"a": 1}`, `{"a": 1}`},
		{"json fences", "```json\n{\"a\": 1}\n```", `{"a": 1}`},
		{"bare fences", "```\n{\"a\": 1}\n```", `{"a": 1}`},
		{"leading whitespace", "  ```json\n{\"a\": 1}\n```  ", `{"a": 1}`},
		{"too short", "```", "```"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StripMarkdownFences(tt.in))
		})
	}
}

func TestExtractObject(t *testing.T) {
	got, err := ExtractObject(`prefix {"Background": "Pass"} suffix`)
	require.NoError(t, err)
	assert.Equal(t, `{"Background": "Pass"}`, got)

	_, err = ExtractObject("no object here")
	assert.Error(t, err)

	_, err = ExtractObject("{ never closed")
	assert.Error(t, err)
}

func TestParseObject(t *testing.T) {
	got, err := ParseObject[map[string]string]("```json\n{\"Lighting\": \"Fail\"}\n```")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"Lighting": "Fail"}, got)

	_, err = ParseObject[map[string]string](`{"Lighting": }`)
	assert.Error(t, err)
}
