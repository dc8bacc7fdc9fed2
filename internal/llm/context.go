// Package llm maintains per-chat conversational state over an OpenAI-style
// chat completion API, with tool-use semantics layered on top of prose.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

var (
	// ErrQuotaExceeded indicates the provider rejected the request for quota
	ErrQuotaExceeded = errors.New("llm quota exceeded")

	// ErrBlockedPrompt indicates the provider blocked the request on policy
	ErrBlockedPrompt = errors.New("llm prompt blocked")

	// ErrUnavailable indicates any other LLM transport failure
	ErrUnavailable = errors.New("llm unavailable")
)

// Fixed user-facing messages for LLM failure modes. The chat history is
// preserved when these are surfaced.
const (
	QuotaExceededMessage = "He excedido mi cuota de solicitudes. Por favor, intenta de nuevo más tarde."
	BlockedPromptMessage = "Lo siento, tu consulta fue bloqueada por las políticas de seguridad de la IA."
	UnavailableMessage   = "Lo siento, no pude comunicarme con la IA en este momento. Por favor, inténtalo de nuevo más tarde."
)

// ChatCompleter is the slice of the OpenAI client the conversation context
// needs. *openai.Client satisfies it.
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// ToolIntent is a machine-readable action request extracted from model output
type ToolIntent struct {
	Action     string
	Parameters map[string]any
}

// StringParam returns a string-typed parameter, or "" when absent
func (t *ToolIntent) StringParam(key string) string {
	if t.Parameters == nil {
		return ""
	}
	v, ok := t.Parameters[key]
	if !ok {
		return ""
	}
	switch s := v.(type) {
	case string:
		return s
	case float64:
		// JSON numbers decode as float64; scan ids arrive this way
		return fmt.Sprintf("%.0f", s)
	default:
		return fmt.Sprintf("%v", s)
	}
}

// IntParam returns an integer-typed parameter, or 0 when absent
func (t *ToolIntent) IntParam(key string) int64 {
	if t.Parameters == nil {
		return 0
	}
	switch v := t.Parameters[key].(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case int:
		return int64(v)
	default:
		return 0
	}
}

// ConversationContext owns the ordered turn history for one chat session.
// The model is bound to a fixed system directive and tool declarations at
// construction; only the dynamic turns accumulate. The context is not
// internally synchronized beyond its history mutex; callers must serialize
// full ask/inject sequences per chat.
type ConversationContext struct {
	completer ChatCompleter
	model     string
	tools     []openai.Tool
	logger    *zap.Logger

	mu      sync.Mutex
	history []openai.ChatCompletionMessage
}

// NewConversationContext creates a context bound to a model and completer
func NewConversationContext(completer ChatCompleter, model string, logger *zap.Logger) *ConversationContext {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConversationContext{
		completer: completer,
		model:     model,
		tools:     Tools(),
		logger:    logger,
	}
}

// Ask composes a dynamic user turn from the four named fields and sends it.
// When the reply carries a fenced JSON block whose object contains an
// "action" field, the decoded intent is returned; otherwise the raw prose is.
func (c *ConversationContext) Ask(ctx context.Context, objective, inputType, inputData, responseRequirements string) (string, *ToolIntent, error) {
	prompt := fmt.Sprintf(
		"**Objetivo actual de esta interacción:** %s\n"+
			"**Tipo de entrada:** %s\n"+
			"**Petición del usuario:** %s\n"+
			"**Requisitos de respuesta específicos:** %s\n",
		objective, inputType, inputData, responseRequirements)

	text, err := c.send(ctx, prompt)
	if err != nil {
		return "", nil, err
	}

	if intent := ExtractIntent(text); intent != nil {
		c.logger.Info("model requested an action",
			zap.String("action", intent.Action))
		return "", intent, nil
	}

	return text, nil, nil
}

// InjectToolResult appends a synthetic user turn carrying a tool's structured
// output, then optionally sends a follow-up turn and returns the model's
// reply. Results are injected as user-role turns, never tool-role turns, so
// the provider's strict function-response contract is never engaged.
func (c *ConversationContext) InjectToolResult(ctx context.Context, toolOutput any, followUp string) (string, error) {
	encoded, err := json.MarshalIndent(toolOutput, "", "  ")
	if err != nil {
		encoded = []byte(fmt.Sprintf("%q", fmt.Sprintf("%v", toolOutput)))
	}

	message := fmt.Sprintf("Aquí están los resultados de la acción solicitada:\n```json\n%s\n```\n", encoded)

	c.logger.Debug("injecting tool results as user turn")
	if _, err := c.send(ctx, message); err != nil {
		return "", err
	}

	if followUp == "" {
		return "", nil
	}
	return c.send(ctx, followUp)
}

// Reset discards the turn history; the system directive and tool bindings
// remain in place.
func (c *ConversationContext) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history = nil
	c.logger.Info("chat history reset")
}

// History returns a copy of the accumulated turns
func (c *ConversationContext) History() []openai.ChatCompletionMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]openai.ChatCompletionMessage, len(c.history))
	copy(out, c.history)
	return out
}

// send appends a user turn, performs one model round-trip with the full
// history, and appends the assistant reply. The user turn stays in history
// even when the round-trip fails.
func (c *ConversationContext) send(ctx context.Context, content string) (string, error) {
	c.mu.Lock()
	c.history = append(c.history, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: content,
	})
	messages := make([]openai.ChatCompletionMessage, 0, len(c.history)+1)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: SystemPrompt,
	})
	messages = append(messages, c.history...)
	c.mu.Unlock()

	resp, err := c.completer.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: messages,
		Tools:    c.tools,
	})
	if err != nil {
		return "", classifyError(err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: empty completion", ErrUnavailable)
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)

	c.mu.Lock()
	c.history = append(c.history, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleAssistant,
		Content: text,
	})
	c.mu.Unlock()

	return text, nil
}

// ExtractIntent scans model output for a fenced JSON block containing an
// action object. Malformed JSON, or JSON without an action, is treated as
// prose. Top-level "target" and "session_name" keys are promoted into
// parameters when absent there, for backward compatibility with older model
// output.
func ExtractIntent(text string) *ToolIntent {
	jsonStr, ok := fencedJSON(text)
	if !ok {
		return nil
	}

	var decoded map[string]any
	if err := json.Unmarshal([]byte(jsonStr), &decoded); err != nil {
		return nil
	}

	action, ok := decoded["action"].(string)
	if !ok || action == "" {
		return nil
	}

	params, _ := decoded["parameters"].(map[string]any)
	if params == nil {
		params, _ = decoded["params"].(map[string]any)
	}
	if params == nil {
		params = make(map[string]any)
	}

	for _, key := range []string{"target", "session_name"} {
		if _, present := params[key]; !present {
			if v, exists := decoded[key]; exists {
				params[key] = v
			}
		}
	}

	return &ToolIntent{Action: action, Parameters: params}
}

// fencedJSON extracts the contents of the first ```json fenced block, or of
// a bare ``` block when the whole response is fenced.
func fencedJSON(text string) (string, bool) {
	if start := strings.Index(text, "```json"); start != -1 {
		rest := text[start+len("```json"):]
		if end := strings.Index(rest, "```"); end != -1 {
			return strings.TrimSpace(rest[:end]), true
		}
		return "", false
	}

	trimmed := strings.TrimSpace(text)
	if strings.HasPrefix(trimmed, "```") && strings.HasSuffix(trimmed, "```") {
		inner := strings.TrimSuffix(strings.TrimPrefix(trimmed, "```"), "```")
		return strings.TrimSpace(inner), true
	}

	// Some models skip the fence entirely when asked for pure JSON
	if strings.HasPrefix(trimmed, "{") && strings.HasSuffix(trimmed, "}") {
		return trimmed, true
	}

	return "", false
}

// classifyError maps provider errors to the package's sentinel kinds
func classifyError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.HTTPStatusCode == 429:
			return fmt.Errorf("%w: %v", ErrQuotaExceeded, err)
		case apiErr.Code == "content_filter" || apiErr.Code == "content_policy_violation":
			return fmt.Errorf("%w: %v", ErrBlockedPrompt, err)
		}
	}
	if strings.Contains(err.Error(), "429") && strings.Contains(err.Error(), "quota") {
		return fmt.Errorf("%w: %v", ErrQuotaExceeded, err)
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

// UserMessage translates an LLM error into its fixed user-facing prose
func UserMessage(err error) string {
	switch {
	case errors.Is(err, ErrQuotaExceeded):
		return QuotaExceededMessage
	case errors.Is(err, ErrBlockedPrompt):
		return BlockedPromptMessage
	default:
		return UnavailableMessage
	}
}
