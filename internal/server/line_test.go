package server

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runLineServer(t *testing.T, ctx context.Context, input string) ([]Response, error) {
	t.Helper()
	dispatcher, _, _ := newTestStack(t)
	var out bytes.Buffer
	s := NewLineServer(dispatcher, strings.NewReader(input), &out)

	err := s.Run(ctx)

	var responses []Response
	decoder := json.NewDecoder(&out)
	for decoder.More() {
		var resp Response
		require.NoError(t, decoder.Decode(&resp))
		responses = append(responses, resp)
	}
	return responses, err
}

func TestLineServerConversation(t *testing.T) {
	input := strings.Join([]string{
		`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`,
		``,
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		`{not json`,
		`{"jsonrpc":"2.0","id":2,"method":"ping"}`,
	}, "\n") + "\n"

	responses, err := runLineServer(t, context.Background(), input)
	require.NoError(t, err)
	require.Len(t, responses, 3, "notification and blank line produce no output")

	require.Nil(t, responses[0].Error)
	result, ok := responses[0].Result.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, ProtocolVersion, result["protocolVersion"])

	require.NotNil(t, responses[1].Error)
	assert.Equal(t, codeParseError, responses[1].Error.Code)

	require.Nil(t, responses[2].Error)
	assert.Equal(t, float64(2), responses[2].ID)
}

func TestLineServerToolCall(t *testing.T) {
	input := `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"search_literature_graph","arguments":{"query":"dense retrieval"}}}` + "\n"

	responses, err := runLineServer(t, context.Background(), input)
	require.NoError(t, err)
	require.Len(t, responses, 1)
	require.Nil(t, responses[0].Error)

	result, ok := responses[0].Result.(map[string]any)
	require.True(t, ok)
	assert.NotEqual(t, true, result["isError"])
	assert.NotEmpty(t, result["content"])
	assert.Contains(t, result, "structuredContent")
}

func TestLineServerEmptyStream(t *testing.T) {
	responses, err := runLineServer(t, context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, responses)
}

func TestLineServerHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := runLineServer(t, ctx, `{"jsonrpc":"2.0","id":1,"method":"ping"}`+"\n")
	assert.ErrorIs(t, err, context.Canceled)
}
