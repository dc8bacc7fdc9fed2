package llm

import (
	"context"
	"strings"
	"testing"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCompleter replays scripted replies and records every request
type fakeCompleter struct {
	replies  []string
	err      error
	requests []openai.ChatCompletionRequest
}

func (f *fakeCompleter) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return openai.ChatCompletionResponse{}, f.err
	}

	reply := ""
	if len(f.replies) > 0 {
		reply = f.replies[0]
		f.replies = f.replies[1:]
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: reply}},
		},
	}, nil
}

func TestAskReturnsProse(t *testing.T) {
	fake := &fakeCompleter{replies: []string{"Un firewall filtra tráfico de red."}}
	mc := NewConversationContext(fake, "test-model", nil)

	prose, intent, err := mc.Ask(context.Background(), "obj", "tipo", "¿qué es un firewall?", "req")

	require.NoError(t, err)
	assert.Nil(t, intent)
	assert.Equal(t, "Un firewall filtra tráfico de red.", prose)

	// The dynamic prompt is composed from the four named fields
	req := fake.requests[0]
	last := req.Messages[len(req.Messages)-1]
	assert.Contains(t, last.Content, "**Objetivo actual de esta interacción:** obj")
	assert.Contains(t, last.Content, "**Petición del usuario:** ¿qué es un firewall?")

	// System directive and tool declarations ride along on every request
	assert.Equal(t, openai.ChatMessageRoleSystem, req.Messages[0].Role)
	assert.Len(t, req.Tools, 5)
}

func TestAskReturnsIntent(t *testing.T) {
	fake := &fakeCompleter{replies: []string{
		"Claro, iniciando:\n```json\n{\"action\": \"start_network_scan\", \"parameters\": {\"target\": \"192.168.1.1\"}}\n```",
	}}
	mc := NewConversationContext(fake, "test-model", nil)

	prose, intent, err := mc.Ask(context.Background(), "obj", "tipo", "escanea 192.168.1.1", "req")

	require.NoError(t, err)
	require.NotNil(t, intent)
	assert.Empty(t, prose)
	assert.Equal(t, "start_network_scan", intent.Action)
	assert.Equal(t, "192.168.1.1", intent.StringParam("target"))
}

func TestAskHistoryAccumulates(t *testing.T) {
	fake := &fakeCompleter{replies: []string{"primera", "segunda"}}
	mc := NewConversationContext(fake, "test-model", nil)

	_, _, err := mc.Ask(context.Background(), "o", "t", "uno", "r")
	require.NoError(t, err)
	_, _, err = mc.Ask(context.Background(), "o", "t", "dos", "r")
	require.NoError(t, err)

	// second request carries both prior turns: user+assistant+user
	secondReq := fake.requests[1]
	assert.Len(t, secondReq.Messages, 4) // system + user + assistant + user

	history := mc.History()
	assert.Len(t, history, 4)
}

func TestInjectToolResultFraming(t *testing.T) {
	fake := &fakeCompleter{replies: []string{"entendido", "resumen final"}}
	mc := NewConversationContext(fake, "test-model", nil)

	reply, err := mc.InjectToolResult(context.Background(),
		map[string]any{"action_completed": "start_network_scan", "hosts_found_count": 2},
		"genera un resumen")

	require.NoError(t, err)
	assert.Equal(t, "resumen final", reply)

	injection := fake.requests[0].Messages[len(fake.requests[0].Messages)-1]
	assert.Equal(t, openai.ChatMessageRoleUser, injection.Role, "tool results are injected as user turns")
	assert.Contains(t, injection.Content, "Aquí están los resultados de la acción solicitada:")
	assert.Contains(t, injection.Content, "```json")
	assert.Contains(t, injection.Content, "\"hosts_found_count\": 2")
}

func TestInjectToolResultWithoutFollowUp(t *testing.T) {
	fake := &fakeCompleter{replies: []string{"ok"}}
	mc := NewConversationContext(fake, "test-model", nil)

	reply, err := mc.InjectToolResult(context.Background(), map[string]any{"x": 1}, "")

	require.NoError(t, err)
	assert.Empty(t, reply)
	assert.Len(t, fake.requests, 1, "no follow-up round-trip without a prompt")
}

func TestReset(t *testing.T) {
	fake := &fakeCompleter{replies: []string{"hola", "hola de nuevo"}}
	mc := NewConversationContext(fake, "test-model", nil)

	_, _, err := mc.Ask(context.Background(), "o", "t", "uno", "r")
	require.NoError(t, err)
	require.NotEmpty(t, mc.History())

	mc.Reset()
	assert.Empty(t, mc.History())

	// Context stays usable after a reset
	_, _, err = mc.Ask(context.Background(), "o", "t", "dos", "r")
	require.NoError(t, err)
	assert.Len(t, mc.History(), 2)
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name     string
		apiErr   *openai.APIError
		wantErr  error
		wantText string
	}{
		{
			name:     "quota",
			apiErr:   &openai.APIError{HTTPStatusCode: 429, Message: "You exceeded your current quota"},
			wantErr:  ErrQuotaExceeded,
			wantText: QuotaExceededMessage,
		},
		{
			name:     "blocked",
			apiErr:   &openai.APIError{HTTPStatusCode: 400, Code: "content_filter", Message: "blocked"},
			wantErr:  ErrBlockedPrompt,
			wantText: BlockedPromptMessage,
		},
		{
			name:     "other",
			apiErr:   &openai.APIError{HTTPStatusCode: 500, Message: "boom"},
			wantErr:  ErrUnavailable,
			wantText: UnavailableMessage,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeCompleter{err: tt.apiErr}
			mc := NewConversationContext(fake, "test-model", nil)

			_, _, err := mc.Ask(context.Background(), "o", "t", "x", "r")
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, tt.wantText, UserMessage(err))

			// the user turn stays in history even on failure
			assert.Len(t, mc.History(), 1)
		})
	}
}

func TestExtractIntent(t *testing.T) {
	tests := []struct {
		name       string
		text       string
		wantNil    bool
		wantAction string
		wantTarget string
	}{
		{
			name:       "fenced json with parameters",
			text:       "```json\n{\"action\": \"start_network_scan\", \"parameters\": {\"target\": \"10.0.0.1\"}}\n```",
			wantAction: "start_network_scan",
			wantTarget: "10.0.0.1",
		},
		{
			name:       "top-level target promoted into parameters",
			text:       "```json\n{\"action\": \"start_network_scan\", \"target\": \"10.0.0.2\"}\n```",
			wantAction: "start_network_scan",
			wantTarget: "10.0.0.2",
		},
		{
			name:       "legacy params key",
			text:       "```json\n{\"action\": \"get_scan_results\", \"params\": {\"session_name\": \"S1\"}}\n```",
			wantAction: "get_scan_results",
		},
		{
			name:       "surrounding prose tolerated",
			text:       "Voy a escanear.\n```json\n{\"action\": \"start_network_scan\", \"parameters\": {\"target\": \"10.0.0.3\"}}\n```\n¡Listo!",
			wantAction: "start_network_scan",
			wantTarget: "10.0.0.3",
		},
		{
			name:       "bare fences",
			text:       "```\n{\"action\": \"get_scan_results\"}\n```",
			wantAction: "get_scan_results",
		},
		{
			name:    "json without action is prose",
			text:    "```json\n{\"respuesta\": \"hola\"}\n```",
			wantNil: true,
		},
		{
			name:    "malformed json is prose",
			text:    "```json\n{\"action\": \"start_network_scan\",\n```",
			wantNil: true,
		},
		{
			name:    "plain prose",
			text:    "Un firewall filtra tráfico.",
			wantNil: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			intent := ExtractIntent(tt.text)
			if tt.wantNil {
				assert.Nil(t, intent)
				return
			}
			require.NotNil(t, intent)
			assert.Equal(t, tt.wantAction, intent.Action)
			if tt.wantTarget != "" {
				assert.Equal(t, tt.wantTarget, intent.StringParam("target"))
			}
		})
	}
}

func TestToolIntentParams(t *testing.T) {
	intent := ExtractIntent("```json\n{\"action\": \"get_scan_results\", \"parameters\": {\"scan_id\": 7, \"session_name\": \"S1\"}}\n```")
	require.NotNil(t, intent)

	assert.Equal(t, int64(7), intent.IntParam("scan_id"))
	assert.Equal(t, "S1", intent.StringParam("session_name"))
	assert.Equal(t, int64(0), intent.IntParam("missing"))
	assert.Equal(t, "", intent.StringParam("missing"))
}

func TestToolDeclarations(t *testing.T) {
	tools := Tools()
	require.Len(t, tools, 5)

	var names []string
	for _, tool := range tools {
		names = append(names, tool.Function.Name)
	}
	assert.Equal(t, []string{
		"start_network_scan",
		"analyze_service_vulnerability",
		"get_scan_results",
		"generate_detailed_host_report",
		"get_cve_details",
	}, names)

	assert.True(t, strings.Contains(SystemPrompt, "start_network_scan"))
}
