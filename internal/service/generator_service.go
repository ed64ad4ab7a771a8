package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pulseworks/pulse-api/internal/dto"
	"github.com/pulseworks/pulse-api/internal/models"
	appErrors "github.com/pulseworks/pulse-api/pkg/errors"
)

// Generator produces a survey authoring document from a free-form brief.
// The document is validated by the same ingestion path as human-authored
// surveys; a generator can therefore never bypass schema rules.
type Generator interface {
	Generate(ctx context.Context, req dto.GenerateRequest) (dto.SurveyDocument, error)
}

// GeneratorConfig points at an OpenAI-compatible chat completions
// endpoint. With no APIKey the template generator is used instead.
type GeneratorConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// NewGenerator selects the LLM-backed generator when credentials are
// configured and falls back to the deterministic template otherwise.
func NewGenerator(cfg GeneratorConfig, logger *zap.Logger) Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.APIKey == "" {
		logger.Info("no generator credentials configured, using template generator")
		return NewTemplateGenerator()
	}
	return NewLLMGenerator(cfg, logger)
}

// LLMGenerator drives an OpenAI-compatible chat completions API and
// parses the model's JSON output into an authoring document.
type LLMGenerator struct {
	cfg      GeneratorConfig
	client   *http.Client
	logger   *zap.Logger
	fallback Generator
}

func NewLLMGenerator(cfg GeneratorConfig, logger *zap.Logger) *LLMGenerator {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LLMGenerator{
		cfg:      cfg,
		client:   &http.Client{Timeout: cfg.Timeout},
		logger:   logger,
		fallback: NewTemplateGenerator(),
	}
}

const generatorSystemPrompt = `You design employee surveys. Respond with a single JSON object, no prose, matching:
{"title": string, "description": string, "sections": [{"title": string, "description": string, "questions": [{"type": one of LIKERT|MULTI|SINGLE|MATRIX|SHORT_TEXT|LONG_TEXT|NPS|RANK|DATE|NUMBER, "prompt": string, "required": bool, "anonymity_mode": one of ANONYMOUS|ESCROW|SIGNED, "options": [string], "rows": [string], "columns": [string]}]}]}
Use 2-4 sections and 3-6 questions per section. Only include options/rows/columns where the type needs them.`

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Generate asks the model for a survey document. A malformed or
// unreachable model falls back to the template generator rather than
// failing the request.
func (g *LLMGenerator) Generate(ctx context.Context, req dto.GenerateRequest) (dto.SurveyDocument, error) {
	doc, err := g.generate(ctx, req)
	if err != nil {
		g.logger.Warn("generator call failed, falling back to template", zap.Error(err))
		return g.fallback.Generate(ctx, req)
	}
	return doc, nil
}

func (g *LLMGenerator) generate(ctx context.Context, req dto.GenerateRequest) (dto.SurveyDocument, error) {
	var doc dto.SurveyDocument

	body, err := json.Marshal(chatRequest{
		Model: g.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: generatorSystemPrompt},
			{Role: "user", Content: briefPrompt(req)},
		},
		Temperature: 0.4,
	})
	if err != nil {
		return doc, fmt.Errorf("marshal chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return doc, fmt.Errorf("build chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+g.cfg.APIKey)

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return doc, fmt.Errorf("call generator: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return doc, fmt.Errorf("generator returned %d: %s", resp.StatusCode, payload)
	}

	var chat chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chat); err != nil {
		return doc, fmt.Errorf("decode chat response: %w", err)
	}
	if len(chat.Choices) == 0 {
		return doc, fmt.Errorf("generator returned no choices")
	}

	content := stripCodeFence(chat.Choices[0].Message.Content)
	if err := json.Unmarshal([]byte(content), &doc); err != nil {
		return doc, fmt.Errorf("parse generated document: %w", err)
	}
	if doc.Title == "" || len(doc.Sections) == 0 {
		return doc, fmt.Errorf("generated document is incomplete")
	}
	return doc, nil
}

func briefPrompt(req dto.GenerateRequest) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Topic: %s\n", req.Topic)
	if req.Goals != "" {
		fmt.Fprintf(&sb, "Goals: %s\n", req.Goals)
	}
	if req.Audience != "" {
		fmt.Fprintf(&sb, "Audience: %s\n", req.Audience)
	}
	if req.Tone != "" {
		fmt.Fprintf(&sb, "Tone: %s\n", req.Tone)
	}
	if req.LengthHint != "" {
		fmt.Fprintf(&sb, "Length: %s\n", req.LengthHint)
	}
	return sb.String()
}

// stripCodeFence removes a ```json fence some models wrap payloads in.
func stripCodeFence(content string) string {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, "```") {
		return content
	}
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	return strings.TrimSpace(content)
}

// TemplateGenerator produces a serviceable engagement survey without any
// external dependency. It keeps demos and offline environments working.
type TemplateGenerator struct{}

func NewTemplateGenerator() *TemplateGenerator {
	return &TemplateGenerator{}
}

func (g *TemplateGenerator) Generate(_ context.Context, req dto.GenerateRequest) (dto.SurveyDocument, error) {
	topic := strings.TrimSpace(req.Topic)
	if topic == "" {
		return dto.SurveyDocument{}, appErrors.Clone(appErrors.ErrValidation, "a topic is required")
	}

	required := true
	return dto.SurveyDocument{
		Title:       fmt.Sprintf("%s survey", topic),
		Description: fmt.Sprintf("Tell us how things are going with %s.", strings.ToLower(topic)),
		Sections: []dto.SectionDocument{
			{
				Title: "Overall sentiment",
				Questions: []dto.QuestionDocument{
					{
						Type:          models.QuestionNPS,
						Prompt:        fmt.Sprintf("How likely are you to recommend working here, thinking about %s?", strings.ToLower(topic)),
						Required:      &required,
						AnonymityMode: models.AnonymityAnonymous,
					},
					{
						Type:          models.QuestionLikert,
						Prompt:        fmt.Sprintf("I am satisfied with %s.", strings.ToLower(topic)),
						Required:      &required,
						AnonymityMode: models.AnonymityAnonymous,
					},
				},
			},
			{
				Title: "In your own words",
				Questions: []dto.QuestionDocument{
					{
						Type:          models.QuestionLongText,
						Prompt:        fmt.Sprintf("What is working well with %s?", strings.ToLower(topic)),
						AnonymityMode: models.AnonymityEscrow,
					},
					{
						Type:          models.QuestionLongText,
						Prompt:        fmt.Sprintf("What should change about %s?", strings.ToLower(topic)),
						AnonymityMode: models.AnonymityEscrow,
					},
				},
			},
		},
	}, nil
}
