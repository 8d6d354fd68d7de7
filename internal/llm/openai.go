// Package llm is the LLM fallback boundary: open-domain Q&A with exactly two
// advisory function tools (booking and opt-out). The dialog controller, not
// the model, decides whether a proposed commit may execute.
package llm

import (
	"context"
	"encoding/json"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/reliefline/chloe-voice/internal/dialog"
	"github.com/reliefline/chloe-voice/pkg/logging"
)

const (
	defaultTemperature = 0.3
	defaultMaxTokens   = 220
)

const systemEN = "Do not mention documents, uploads, tools, or vector stores. " +
	"Keep answers to 2 short sentences or fewer, then ask a question. " +
	"Prioritize booking using the 3-step flow: time, name on property, property address. " +
	"Stay in the chosen language. Honor opt-out immediately. " +
	"If interrupted, stop speaking and address the latest utterance."

const systemES = "No menciones documentos, cargas, herramientas ni almacenes vectoriales. " +
	"Mantén respuestas de 2 frases o menos y haz una pregunta. " +
	"Prioriza agendar con el flujo de 3 pasos: hora, nombre en la propiedad, dirección. " +
	"Mantén el idioma elegido. Respeta el opt-out de inmediato. " +
	"Si te interrumpen, detente y responde a lo último dicho."

// Config configures the OpenAI-backed client.
type Config struct {
	APIKey        string
	Model         string
	OrgName       string
	AssistantName string
}

// Client implements dialog.ChatClient against the OpenAI chat API.
type Client struct {
	api       *openai.Client
	model     string
	orgName   string
	assistant string
	logger    *logging.Logger
	tools     []openai.Tool
}

var _ dialog.ChatClient = (*Client)(nil)

// New creates the fallback client.
func New(cfg Config, logger *logging.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("llm: api key required")
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.AssistantName == "" {
		cfg.AssistantName = "Chloe"
	}
	if logger == nil {
		logger = logging.Default()
	}
	tools, err := functionTools()
	if err != nil {
		return nil, err
	}
	return &Client{
		api:       openai.NewClient(cfg.APIKey),
		model:     cfg.Model,
		orgName:   cfg.OrgName,
		assistant: cfg.AssistantName,
		logger:    logger,
		tools:     tools,
	}, nil
}

// functionTools builds and validates the two commit tools.
func functionTools() ([]openai.Tool, error) {
	bookParams := json.RawMessage(`{
		"type": "object",
		"properties": {
			"iso_start":    {"type": "string", "description": "ISO-8601 start"},
			"duration_min": {"type": "integer", "default": 30},
			"name":         {"type": "string"},
			"address":      {"type": "string"},
			"phone":        {"type": "string"},
			"note":         {"type": "string"}
		},
		"required": ["iso_start", "name", "address"],
		"additionalProperties": false
	}`)
	optOutParams := json.RawMessage(`{
		"type": "object",
		"properties": {
			"name":    {"type": "string"},
			"phone":   {"type": "string"},
			"address": {"type": "string"}
		},
		"required": ["name"],
		"additionalProperties": false
	}`)

	tools := []openai.Tool{
		{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        dialog.ToolBookAppointment,
				Description: "Schedule a consult. Call only after the caller clearly agrees to schedule.",
				Parameters:  bookParams,
			},
		},
		{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        dialog.ToolMarkOptOut,
				Description: "Record a do-not-contact request.",
				Parameters:  optOutParams,
			},
		},
	}
	if err := validateTools(tools); err != nil {
		return nil, err
	}
	return tools, nil
}

// validateTools rejects malformed tool definitions before they ever reach a
// live call.
func validateTools(tools []openai.Tool) error {
	for i, t := range tools {
		if t.Type != openai.ToolTypeFunction {
			return fmt.Errorf("llm: tool %d has unexpected type %q", i, t.Type)
		}
		if t.Function == nil || t.Function.Name == "" {
			return fmt.Errorf("llm: tool %d missing function name", i)
		}
		raw, ok := t.Function.Parameters.(json.RawMessage)
		if !ok || !json.Valid(raw) {
			return fmt.Errorf("llm: tool %q has invalid parameters schema", t.Function.Name)
		}
	}
	return nil
}

// Chat sends the rolling history with the language-matched system prompt and
// translates any tool calls into advisory dialog proposals.
func (c *Client) Chat(ctx context.Context, req dialog.ChatRequest) (*dialog.ChatReply, error) {
	system := systemEN
	if req.Language == dialog.LangSpanish {
		system = systemES
	}
	if c.orgName != "" {
		system = "You are " + c.assistant + " with " + c.orgName + ". " + system
	}

	messages := make([]openai.ChatCompletionMessage, 0, len(req.History)+1)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: system,
	})
	for _, turn := range req.History {
		role := openai.ChatMessageRoleUser
		if turn.Role == "assistant" {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: turn.Content})
	}

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		Tools:       c.tools,
		Temperature: defaultTemperature,
		MaxTokens:   defaultMaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("llm: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("llm: empty completion")
	}

	choice := resp.Choices[0].Message
	reply := &dialog.ChatReply{Text: choice.Content}
	for _, tc := range choice.ToolCalls {
		if tc.Function.Name == "" {
			continue
		}
		args := map[string]any{}
		if tc.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
				c.logger.Warn("llm: undecodable tool arguments", "tool", tc.Function.Name, "error", err)
				continue
			}
		}
		reply.ToolCalls = append(reply.ToolCalls, dialog.ToolCall{Name: tc.Function.Name, Args: args})
	}
	return reply, nil
}
