package openai

import (
	"strings"
	"testing"

	"github.com/openai/openai-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/semkit/semkit/core"
	"github.com/semkit/semkit/model"
)

var _ model.Model = (*Model)(nil)

func TestEmitFinalChunk_ToolCallOrder(t *testing.T) {
	m := &Model{}

	toolAgg := map[int64]*aggCall{
		2: {id: "call_c", name: "gamma", args: `{"n":3}`},
		0: {id: "call_a", name: "alpha", args: `{"n":1}`},
		1: {id: "call_b", name: "beta", args: `{"n":2}`},
	}

	// repeat: a single lucky map iteration must not pass the test
	for i := 0; i < 20; i++ {
		out := make(chan model.Response, 1)
		var builder strings.Builder
		ch := openai.ChatCompletionChunkChoice{FinishReason: "tool_calls"}

		m.emitFinalChunk(ch, &builder, toolAgg, out)

		resp := <-out
		assert.False(t, resp.Partial)
		assert.Equal(t, "tool_calls", resp.FinishReason)

		require.Len(t, resp.Content.Parts, 3)
		var names []string
		for _, p := range resp.Content.Parts {
			fc, ok := p.(core.FunctionCallPart)
			require.True(t, ok)
			names = append(names, fc.FunctionCall.Name)
		}
		assert.Equal(t, []string{"alpha", "beta", "gamma"}, names)
	}
}

func TestEmitFinalChunk_TextPrecedesToolCalls(t *testing.T) {
	m := &Model{}
	out := make(chan model.Response, 1)

	var builder strings.Builder
	builder.WriteString("let me check")
	toolAgg := map[int64]*aggCall{
		0: {id: "call_a", name: "lookup", args: `{}`},
	}

	m.emitFinalChunk(openai.ChatCompletionChunkChoice{FinishReason: "tool_calls"}, &builder, toolAgg, out)

	resp := <-out
	require.Len(t, resp.Content.Parts, 2)
	tp, ok := resp.Content.Parts[0].(core.TextPart)
	require.True(t, ok)
	assert.Equal(t, "let me check", tp.Text)
	_, ok = resp.Content.Parts[1].(core.FunctionCallPart)
	assert.True(t, ok)
}
