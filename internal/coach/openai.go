package coach

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"github.com/hubenschmidt/maestro-buddy/gateway/internal/metrics"
	"github.com/hubenschmidt/maestro-buddy/gateway/internal/prompts"
)

// OpenAIFactory creates coaches backed by any OpenAI-compatible Chat Completions endpoint.
type OpenAIFactory struct {
	client       openai.Client
	model        string
	systemPrompt string
	maxTokens    int64
}

// NewOpenAIFactory creates a factory. baseURL may be empty for the public API.
func NewOpenAIFactory(apiKey, baseURL, model, systemPrompt string, opts ...option.RequestOption) *OpenAIFactory {
	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(baseURL))
	}
	reqOpts = append(reqOpts, opts...)
	return &OpenAIFactory{
		client:       openai.NewClient(reqOpts...),
		model:        model,
		systemPrompt: prompts.ForSession(systemPrompt),
		maxTokens:    geminiMaxOutputTokens,
	}
}

// NewCoach starts a conversation seeded with the system prompt.
func (f *OpenAIFactory) NewCoach(context.Context) Coach {
	return &openaiCoach{
		factory: f,
		history: []openai.ChatCompletionMessageParamUnion{openai.SystemMessage(f.systemPrompt)},
	}
}

type openaiCoach struct {
	factory *OpenAIFactory
	history []openai.ChatCompletionMessageParamUnion
}

func (c *openaiCoach) ProcessMetrics(ctx context.Context, batch []Metric) Feedback {
	msg, err := windowMessage(batch)
	if err != nil {
		slog.Error("openai window message", "error", err)
		return Feedback{Text: FallbackError}
	}

	messages := append(c.history, openai.UserMessage(msg))
	completion, err := c.factory.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:               openai.ChatModel(c.factory.model),
		Messages:            messages,
		Tools:               openAITools(),
		Temperature:         openai.Float(geminiTemperature),
		MaxCompletionTokens: openai.Int(c.factory.maxTokens),
	})
	if err != nil {
		metrics.Errors.WithLabelValues("coach", "api").Inc()
		slog.Error("openai processing", "error", err)
		return Feedback{Text: FallbackError}
	}

	fb := parseOpenAICompletion(completion)
	c.history = c.record(messages, completion)
	return fb
}

// record appends the assistant turn and a stub result for every tool call so
// the next request is a valid continuation.
func (c *openaiCoach) record(messages []openai.ChatCompletionMessageParamUnion, completion *openai.ChatCompletion) []openai.ChatCompletionMessageParamUnion {
	if completion == nil || len(completion.Choices) == 0 {
		return messages
	}
	reply := completion.Choices[0].Message
	messages = append(messages, reply.ToParam())
	for _, call := range reply.ToolCalls {
		messages = append(messages, openai.ToolMessage("ok", call.ID))
	}
	return messages
}

func parseOpenAICompletion(completion *openai.ChatCompletion) Feedback {
	if completion == nil || len(completion.Choices) == 0 {
		return Feedback{Text: FallbackNoCandidates}
	}
	reply := completion.Choices[0].Message

	text := strings.TrimSpace(reply.Content)
	if text == "" {
		text = FallbackNoText
	}
	if len(reply.ToolCalls) == 0 {
		return Feedback{Text: text}
	}

	call := reply.ToolCalls[0]
	trace := &ToolTrace{Tool: call.Function.Name, Args: map[string]any{}, Status: StatusSuccess}
	if raw := strings.TrimSpace(call.Function.Arguments); raw != "" {
		if err := json.Unmarshal([]byte(raw), &trace.Args); err != nil {
			slog.Warn("openai tool arguments", "tool", call.Function.Name, "error", err)
			trace.Args = map[string]any{}
			trace.Status = StatusError
		}
	}
	return Feedback{Text: text, ToolTrace: trace}
}

func openAITools() []openai.ChatCompletionToolUnionParam {
	tools := make([]openai.ChatCompletionToolUnionParam, 0, len(Tools))
	for _, t := range Tools {
		tools = append(tools, openai.ChatCompletionFunctionTool(openai.FunctionDefinitionParam{
			Name:        string(t.Name),
			Description: openai.String(t.Description),
			Parameters:  openai.FunctionParameters(t.Parameters.JSONSchema()),
		}))
	}
	return tools
}
