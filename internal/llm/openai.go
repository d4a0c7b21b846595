package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"unicode/utf8"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/azure"
	"github.com/openai/openai-go/option"

	"github.com/sozercan/patentgpt/internal/config"
	"github.com/sozercan/patentgpt/internal/tools"
)

const maxToolResultBytes = 16000

// OpenAI runs conversations against the OpenAI (or Azure OpenAI) chat completions API.
type OpenAI struct {
	client *openai.Client
	cfg    *config.OpenAIConfig
}

// NewOpenAI builds the runner. Extra request options are appended after the
// provider options, which lets tests point the client at a stub server.
func NewOpenAI(cfg *config.OpenAIConfig, opts ...option.RequestOption) (*OpenAI, error) {
	var clientOpts []option.RequestOption

	switch cfg.Provider {
	case "azure":
		if cfg.APIEndpoint == "" || cfg.APIKey == "" {
			return nil, errors.New("azure provider requires OPENAI_ENDPOINT and OPENAI_API_KEY")
		}
		clientOpts = append(clientOpts,
			azure.WithEndpoint(cfg.APIEndpoint, cfg.APIVersion),
			azure.WithAPIKey(cfg.APIKey),
		)
	case "openai", "":
		// an empty key leaves the SDK's own OPENAI_API_KEY lookup in place
		if cfg.APIKey != "" {
			clientOpts = append(clientOpts, option.WithAPIKey(cfg.APIKey))
		}
		if cfg.APIEndpoint != "" {
			clientOpts = append(clientOpts, option.WithBaseURL(cfg.APIEndpoint))
		}
	default:
		return nil, fmt.Errorf("unsupported provider %q", cfg.Provider)
	}

	clientOpts = append(clientOpts, opts...)

	return &OpenAI{
		client: openai.NewClient(clientOpts...),
		cfg:    cfg,
	}, nil
}

// Run executes up to req.MaxSteps chat completions. After each completion the
// requested tool calls are executed in order and their results are sent back
// in the next step. The loop ends when the model answers without tool calls or
// the step cap is reached. Any error aborts the whole run.
func (o *OpenAI) Run(ctx context.Context, req RunRequest) (*Result, error) {
	maxSteps := req.MaxSteps
	if maxSteps <= 0 {
		maxSteps = 1
	}
	model := req.Model
	if model == "" {
		model = o.cfg.Model
	}

	messages, err := toMessageParams(req.Messages)
	if err != nil {
		return nil, err
	}
	toolParams := toToolParams(req.Tools)

	result := &Result{Steps: make([]Step, 0, maxSteps)}
	for stepNum := 1; ; stepNum++ {
		params := openai.ChatCompletionNewParams{
			Model:    openai.F(model),
			Messages: openai.F(messages),
		}
		if len(toolParams) > 0 {
			params.Tools = openai.F(toolParams)
		}

		slog.Debug("Requesting chat completion", "model", model, "step", stepNum, "messages", len(messages))
		completion, err := o.client.Chat.Completions.New(ctx, params)
		if err != nil {
			return nil, fmt.Errorf("chat completion failed at step %d: %w", stepNum, err)
		}
		if len(completion.Choices) == 0 {
			return nil, fmt.Errorf("chat completion returned no choices at step %d", stepNum)
		}

		choice := completion.Choices[0]
		step := Step{
			Text:         choice.Message.Content,
			FinishReason: string(choice.FinishReason),
			Usage: Usage{
				PromptTokens:     completion.Usage.PromptTokens,
				CompletionTokens: completion.Usage.CompletionTokens,
				TotalTokens:      completion.Usage.TotalTokens,
			},
			ToolCalls: []ToolCall{},
		}
		result.Usage.add(step.Usage)

		messages = append(messages, choice.Message)
		for _, tc := range choice.Message.ToolCalls {
			call, output, err := executeToolCall(ctx, req.Tools, tc)
			if err != nil {
				return nil, fmt.Errorf("step %d: %w", stepNum, err)
			}
			step.ToolCalls = append(step.ToolCalls, call)
			messages = append(messages, openai.ToolMessage(tc.ID, output))
		}

		result.Steps = append(result.Steps, step)
		result.Text = step.Text

		if len(step.ToolCalls) == 0 || stepNum >= maxSteps {
			break
		}
	}

	slog.Info("Conversation finished",
		"model", model,
		"steps", len(result.Steps),
		"totalTokens", result.Usage.TotalTokens,
	)
	return result, nil
}

func executeToolCall(ctx context.Context, set tools.Set, tc openai.ChatCompletionMessageToolCall) (ToolCall, string, error) {
	name := tc.Function.Name
	tool, ok := set[name]
	if !ok {
		return ToolCall{}, "", fmt.Errorf("%w: %q", ErrUnknownTool, name)
	}

	raw := json.RawMessage(bytes.TrimSpace([]byte(tc.Function.Arguments)))
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	var args map[string]interface{}
	if err := json.Unmarshal(raw, &args); err != nil {
		return ToolCall{}, "", fmt.Errorf("%w for %s: %v", tools.ErrInvalidArguments, name, err)
	}
	if args == nil {
		args = map[string]interface{}{}
	}

	slog.Info("Executing tool call", "tool", name, "arguments", string(raw))
	out, err := tool.Invoke(ctx, raw)
	if err != nil {
		slog.Error("Tool call failed", "tool", name, "error", err)
		return ToolCall{}, "", fmt.Errorf("tool %s failed: %w", name, err)
	}

	output, err := encodeToolOutput(out)
	if err != nil {
		return ToolCall{}, "", fmt.Errorf("tool %s: %w", name, err)
	}

	return ToolCall{ID: tc.ID, ToolName: name, Args: args}, output, nil
}

func encodeToolOutput(out interface{}) (string, error) {
	var s string
	switch v := out.(type) {
	case string:
		s = v
	case json.RawMessage:
		s = string(v)
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("failed to encode tool output: %w", err)
		}
		s = string(data)
	}
	return truncateString(s, maxToolResultBytes), nil
}

func toMessageParams(msgs []Message) ([]openai.ChatCompletionMessageParamUnion, error) {
	params := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case RoleSystem:
			params = append(params, openai.SystemMessage(m.Content))
		case RoleUser:
			params = append(params, openai.UserMessage(m.Content))
		case RoleAssistant:
			params = append(params, openai.AssistantMessage(m.Content))
		default:
			return nil, fmt.Errorf("unsupported message role %q", m.Role)
		}
	}
	return params, nil
}

func toToolParams(set tools.Set) []openai.ChatCompletionToolParam {
	params := make([]openai.ChatCompletionToolParam, 0, len(set))
	for _, name := range set.Names() {
		t := set[name]
		params = append(params, openai.ChatCompletionToolParam{
			Type: openai.F(openai.ChatCompletionToolTypeFunction),
			Function: openai.F(openai.FunctionDefinitionParam{
				Name:        openai.String(t.Name),
				Description: openai.String(t.Description),
				Parameters:  openai.F(openai.FunctionParameters(t.Parameters)),
			}),
		})
	}
	return params
}

// truncateString cuts s to at most maxLen bytes without splitting a UTF-8 sequence.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "\n[truncated]"
}
