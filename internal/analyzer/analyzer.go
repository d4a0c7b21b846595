package analyzer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/sozercan/patentgpt/apimodels"
	"github.com/sozercan/patentgpt/internal/config"
	"github.com/sozercan/patentgpt/internal/llm"
	"github.com/sozercan/patentgpt/internal/tools"
)

const DefaultModel = "gpt-4o"

const SystemPrompt = "You are PatentGPT, a patent intelligence assistant. Analyze patents and provide insights about technologies."

// ErrMissingQuery is returned when the request carries no query.
var ErrMissingQuery = errors.New("query parameter is required")

// ToolProvider supplies the tools offered to the model.
type ToolProvider interface {
	GetTools() (tools.Set, error)
}

type Analyzer struct {
	tools        ToolProvider
	runner       llm.Runner
	defaultModel string
	maxSteps     int
	timeout      time.Duration
}

func New(toolProvider ToolProvider, runner llm.Runner, cfg config.Config) *Analyzer {
	a := &Analyzer{
		tools:        toolProvider,
		runner:       runner,
		defaultModel: cfg.OpenAI.Model,
		maxSteps:     cfg.Analysis.MaxSteps,
		timeout:      cfg.Analysis.Timeout,
	}
	if a.defaultModel == "" {
		a.defaultModel = DefaultModel
	}
	return a
}

// Analyze runs one query through the tool-calling loop and maps the result
// into the client-facing response. Any failure discards the partial result.
func (a *Analyzer) Analyze(ctx context.Context, req apimodels.AnalysisRequest) (*apimodels.AnalysisResponse, error) {
	if req.Query == "" {
		return nil, ErrMissingQuery
	}
	model := req.Model
	if model == "" {
		model = a.defaultModel
	}

	runID := uuid.NewString()
	log := slog.With("runID", runID, "model", model)
	log.Info("Starting analysis", "query", req.Query)
	startTime := time.Now()

	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	toolSet, err := a.tools.GetTools()
	if err != nil {
		log.Error("Failed to load tools", "error", err)
		return nil, fmt.Errorf("failed to load tools: %w", err)
	}

	result, err := a.runner.Run(ctx, llm.RunRequest{
		Model: model,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: SystemPrompt},
			{Role: llm.RoleUser, Content: req.Query},
		},
		Tools:    toolSet,
		MaxSteps: a.maxSteps,
	})
	if err != nil {
		log.Error("Analysis failed", "query", req.Query, "error", err)
		return nil, err
	}

	log.Info("Analysis completed",
		"duration", time.Since(startTime).String(),
		"steps", len(result.Steps),
		"tokensUsed", result.Usage.TotalTokens,
	)
	return toResponse(result), nil
}

func toResponse(result *llm.Result) *apimodels.AnalysisResponse {
	resp := &apimodels.AnalysisResponse{
		Text:  result.Text,
		Steps: make([]apimodels.StepRecord, 0, len(result.Steps)),
	}
	for _, step := range result.Steps {
		record := apimodels.StepRecord{
			ToolCalls: make([]apimodels.ToolCallRecord, 0, len(step.ToolCalls)),
		}
		for _, call := range step.ToolCalls {
			args := call.Args
			if args == nil {
				args = map[string]interface{}{}
			}
			record.ToolCalls = append(record.ToolCalls, apimodels.ToolCallRecord{
				Tool: call.ToolName,
				Args: args,
			})
		}
		resp.Steps = append(resp.Steps, record)
	}
	return resp
}
