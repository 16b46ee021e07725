package llm

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamParser_Next(t *testing.T) {
	input := strings.Join([]string{
		": keep-alive",
		"",
		`data: {"choices":[{"delta":{"role":"assistant","content":""}}]}`,
		`data: {"choices":[{"delta":{"content":"Bon"}}]}`,
		"data: not-json",
		`data:{"choices":[{"delta":{"content":"jour"}}]}`,
		`data: {"choices":[{"delta":{},"finish_reason":"stop"}]}`,
	}, "\n")

	p := NewStreamParser(strings.NewReader(input))

	chunk, err := p.Next()
	require.NoError(t, err)
	assert.Equal(t, "", chunk.Content)
	assert.False(t, chunk.Done)

	chunk, err = p.Next()
	require.NoError(t, err)
	assert.Equal(t, "Bon", chunk.Content)

	chunk, err = p.Next()
	require.NoError(t, err)
	assert.Equal(t, "jour", chunk.Content)

	chunk, err = p.Next()
	require.NoError(t, err)
	assert.True(t, chunk.Done)
	assert.Equal(t, "stop", chunk.FinishReason)
}

func TestStreamParser_ParseAll(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{
			name:  "done marker",
			input: "data: {\"choices\":[{\"delta\":{\"content\":\"a\"}}]}\ndata: [DONE]\ndata: {\"choices\":[{\"delta\":{\"content\":\"ignored\"}}]}\n",
			want:  []string{"a"},
		},
		{
			name:  "content on final chunk",
			input: "data: {\"choices\":[{\"delta\":{\"content\":\"end\"},\"finish_reason\":\"stop\"}]}\n",
			want:  []string{"end"},
		},
		{
			name:  "eof without marker",
			input: "data: {\"choices\":[{\"delta\":{\"content\":\"x\"}}]}\n",
			want:  []string{"x"},
		},
		{
			name:  "empty",
			input: "",
			want:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resultCh := make(chan string, 10)
			require.NoError(t, NewStreamParser(strings.NewReader(tt.input)).ParseAll(context.Background(), resultCh))
			close(resultCh)

			var got []string
			for s := range resultCh {
				got = append(got, s)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStreamParser_ParseAllCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// unbuffered and never read, so only cancellation can unblock the send
	resultCh := make(chan string)
	err := NewStreamParser(strings.NewReader("data: {\"choices\":[{\"delta\":{\"content\":\"a\"}}]}\n")).ParseAll(ctx, resultCh)
	assert.ErrorIs(t, err, context.Canceled)
}
