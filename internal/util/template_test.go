package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderTemplate(t *testing.T) {
	tests := []struct {
		name string
		text string
		data map[string]any
		want string
	}{
		{name: "no markers", text: `{"type":"AdaptiveCard"}`, want: `{"type":"AdaptiveCard"}`},
		{name: "value", text: `Hi {{.name}}`, data: map[string]any{"name": "Alice"}, want: "Hi Alice"},
		{name: "json quoting", text: `{"text":{{json .name}}}`, data: map[string]any{"name": `say "hi"`}, want: `{"text":"say \"hi\""}`},
		{name: "default", text: `{{default "friend" .name}}`, data: map[string]any{}, want: "friend"},
		{name: "join", text: `{{join ", " .items}}`, data: map[string]any{"items": []string{"a", "b"}}, want: "a, b"},
		{name: "title", text: `{{title .name}}`, data: map[string]any{"name": "bOB"}, want: "Bob"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := RenderTemplate(tt.text, tt.data)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRenderTemplate_ParseError(t *testing.T) {
	_, err := RenderTemplate("{{.name", nil)
	require.Error(t, err)
}
