package coach

import (
	"context"
	"log/slog"
	"strings"

	"google.golang.org/genai"

	"github.com/hubenschmidt/maestro-buddy/gateway/internal/metrics"
	"github.com/hubenschmidt/maestro-buddy/gateway/internal/prompts"
)

const (
	geminiTemperature     = 0.7
	geminiMaxOutputTokens = 256
	geminiThinkingBudget  = 1024
)

// GeminiFactory creates coaches backed by a genai chat session.
type GeminiFactory struct {
	client       *genai.Client
	model        string
	systemPrompt string
}

// NewGeminiFactory creates a factory for model. An empty systemPrompt uses the default persona.
func NewGeminiFactory(client *genai.Client, model, systemPrompt string) *GeminiFactory {
	return &GeminiFactory{
		client:       client,
		model:        model,
		systemPrompt: prompts.ForSession(systemPrompt),
	}
}

// NewCoach opens a new chat. If the chat cannot be created the offline coach is returned.
func (f *GeminiFactory) NewCoach(ctx context.Context) Coach {
	chat, err := f.client.Chats.Create(ctx, f.model, f.config(), nil)
	if err != nil {
		metrics.Errors.WithLabelValues("coach", "chat_create").Inc()
		slog.Error("gemini chat create", "model", f.model, "error", err)
		return Offline{}
	}
	return &geminiCoach{chat: chat}
}

func (f *GeminiFactory) config() *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr[float32](geminiTemperature),
		MaxOutputTokens: geminiMaxOutputTokens,
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: f.systemPrompt}},
		},
		SafetySettings: []*genai.SafetySetting{
			{
				Category:  genai.HarmCategoryHateSpeech,
				Threshold: genai.HarmBlockThresholdBlockLowAndAbove,
			},
		},
		Tools: []*genai.Tool{{FunctionDeclarations: geminiDeclarations()}},
	}
	if strings.Contains(f.model, "thinking") {
		cfg.ThinkingConfig = &genai.ThinkingConfig{
			IncludeThoughts: true,
			ThinkingBudget:  genai.Ptr[int32](geminiThinkingBudget),
		}
	}
	return cfg
}

type geminiCoach struct {
	chat *genai.Chat
	// pending holds the previous turn's function calls. The next message
	// answers them first or the chat history is rejected.
	pending []*genai.FunctionCall
}

func (c *geminiCoach) ProcessMetrics(ctx context.Context, batch []Metric) Feedback {
	msg, err := windowMessage(batch)
	if err != nil {
		slog.Error("gemini window message", "error", err)
		return Feedback{Text: FallbackError}
	}
	parts := make([]genai.Part, 0, len(c.pending)+1)
	for _, call := range c.pending {
		parts = append(parts, genai.Part{FunctionResponse: &genai.FunctionResponse{
			ID:       call.ID,
			Name:     call.Name,
			Response: map[string]any{"status": "ok"},
		}})
	}
	parts = append(parts, genai.Part{Text: msg})

	resp, err := c.chat.SendMessage(ctx, parts...)
	if err != nil {
		metrics.Errors.WithLabelValues("coach", "api").Inc()
		slog.Error("gemini processing", "error", err)
		return Feedback{Text: FallbackError}
	}
	c.pending = functionCalls(resp)
	return parseGeminiResponse(resp)
}

func functionCalls(resp *genai.GenerateContentResponse) []*genai.FunctionCall {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0] == nil || resp.Candidates[0].Content == nil {
		return nil
	}
	var calls []*genai.FunctionCall
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil && part.FunctionCall != nil {
			calls = append(calls, part.FunctionCall)
		}
	}
	return calls
}

// parseGeminiResponse keeps user-visible text parts, drops thought parts and
// takes the first function call as the tool trace.
func parseGeminiResponse(resp *genai.GenerateContentResponse) Feedback {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0] == nil || resp.Candidates[0].Content == nil {
		return Feedback{Text: FallbackNoCandidates}
	}

	var texts []string
	var trace *ToolTrace
	for _, part := range resp.Candidates[0].Content.Parts {
		if part == nil {
			continue
		}
		if part.FunctionCall != nil {
			if trace == nil {
				trace = &ToolTrace{
					Tool:   part.FunctionCall.Name,
					Args:   cloneArgs(part.FunctionCall.Args),
					Status: StatusSuccess,
				}
			}
			continue
		}
		if part.Thought {
			continue
		}
		if t := strings.TrimSpace(part.Text); t != "" {
			texts = append(texts, t)
		}
	}

	text := strings.Join(texts, " ")
	if text == "" {
		text = FallbackNoText
	}
	return Feedback{Text: text, ToolTrace: trace}
}

func geminiDeclarations() []*genai.FunctionDeclaration {
	decls := make([]*genai.FunctionDeclaration, 0, len(Tools))
	for _, t := range Tools {
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        string(t.Name),
			Description: t.Description,
			Parameters:  geminiSchema(t.Parameters),
		})
	}
	return decls
}

var geminiTypes = map[string]genai.Type{
	"object":  genai.TypeObject,
	"array":   genai.TypeArray,
	"number":  genai.TypeNumber,
	"string":  genai.TypeString,
	"integer": genai.TypeInteger,
	"boolean": genai.TypeBoolean,
}

func geminiSchema(p *Param) *genai.Schema {
	if p == nil {
		return nil
	}
	s := &genai.Schema{
		Type:        geminiTypes[p.Type],
		Description: p.Description,
		Required:    p.Required,
	}
	if len(p.Properties) > 0 {
		s.Properties = make(map[string]*genai.Schema, len(p.Properties))
		for name, sub := range p.Properties {
			s.Properties[name] = geminiSchema(sub)
		}
	}
	if p.Items != nil {
		s.Items = geminiSchema(p.Items)
	}
	return s
}
