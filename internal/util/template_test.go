package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRenderTemplate_NoMarkers(t *testing.T) {
	out, err := RenderTemplate("plain instruction text", map[string]any{"x": 1})
	assert.NoError(t, err)
	assert.Equal(t, "plain instruction text", out)
}

func TestRenderTemplate_StateSubstitution(t *testing.T) {
	state := map[string]any{"topic": "travel", "city": "Lisbon"}
	out, err := RenderTemplate("You advise on {{.topic}} to {{.city}}.", state)
	assert.NoError(t, err)
	assert.Equal(t, "You advise on travel to Lisbon.", out)
}

func TestRenderTemplate_Helpers(t *testing.T) {
	state := map[string]any{"name": "ada", "missing": ""}

	out, err := RenderTemplate("{{upper .name}}", state)
	assert.NoError(t, err)
	assert.Equal(t, "ADA", out)

	out, err = RenderTemplate("{{title .name}}", state)
	assert.NoError(t, err)
	assert.Equal(t, "Ada", out)

	out, err = RenderTemplate(`{{default "fallback" .missing}}`, state)
	assert.NoError(t, err)
	assert.Equal(t, "fallback", out)

	out, err = RenderTemplate(`{{join ", " .items}}`, map[string]any{"items": []any{"a", "b"}})
	assert.NoError(t, err)
	assert.Equal(t, "a, b", out)
}

func TestRenderTemplate_ParseError(t *testing.T) {
	_, err := RenderTemplate("{{.unclosed", map[string]any{})
	assert.Error(t, err)
}
