package llm

import (
	"context"
	"errors"

	"github.com/sozercan/patentgpt/internal/tools"
)

// ErrUnknownTool is returned when the model calls a tool that is not in the tool set.
var ErrUnknownTool = errors.New("model requested an unknown tool")

// Runner executes a tool-calling conversation with a hosted model.
type Runner interface {
	Run(ctx context.Context, req RunRequest) (*Result, error)
}

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role    Role
	Content string
}

type RunRequest struct {
	// Model is the provider's model identifier. Empty means the runner default.
	Model    string
	Messages []Message
	Tools    tools.Set
	// MaxSteps caps the number of model calls in one conversation.
	MaxSteps int
}

type Usage struct {
	PromptTokens     int64
	CompletionTokens int64
	TotalTokens      int64
}

func (u *Usage) add(o Usage) {
	u.PromptTokens += o.PromptTokens
	u.CompletionTokens += o.CompletionTokens
	u.TotalTokens += o.TotalTokens
}

// ToolCall is one tool invocation requested by the model.
type ToolCall struct {
	ID       string
	ToolName string
	Args     map[string]interface{}
}

// Step is one round of the conversation: a model call plus the tool calls it requested.
type Step struct {
	Text         string
	FinishReason string
	ToolCalls    []ToolCall
	Usage        Usage
}

type Result struct {
	// Text is the text produced by the last step.
	Text  string
	Steps []Step
	Usage Usage
}
