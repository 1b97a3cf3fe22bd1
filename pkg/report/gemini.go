package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"github.com/echodoc-ai/echodoc/pkg/sessions"
)

const DefaultModel = "gemini-2.5-flash"

// contentGenerator is the part of *genai.Models the generator uses.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Gemini generates reports with the Gemini API in JSON response mode.
type Gemini struct {
	models contentGenerator
	model  string
	logger *slog.Logger
}

type GeminiConfig struct {
	APIKey     string
	Model      string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

func NewGemini(ctx context.Context, cfg GeminiConfig) (*Gemini, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("report: gemini api key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: cfg.HTTPClient,
	})
	if err != nil {
		return nil, fmt.Errorf("report: create gemini client: %w", err)
	}
	return newGemini(client.Models, cfg.Model, cfg.Logger), nil
}

func newGemini(models contentGenerator, model string, logger *slog.Logger) *Gemini {
	if strings.TrimSpace(model) == "" {
		model = DefaultModel
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Gemini{models: models, model: model, logger: logger}
}

func (g *Gemini) Generate(ctx context.Context, rec sessions.Record, transcript []sessions.Utterance) (json.RawMessage, error) {
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemInstruction, genai.RoleUser),
		ResponseMIMEType:  "application/json",
		Temperature:       genai.Ptr[float32](0.2),
	}
	resp, err := g.models.GenerateContent(ctx, g.model, genai.Text(BuildPrompt(rec, transcript)), cfg)
	if err != nil {
		return nil, fmt.Errorf("report: generate content: %w", err)
	}
	if resp == nil {
		return nil, ErrEmptyReport
	}
	out, err := Normalize(resp.Text())
	if err != nil {
		g.logger.Warn("unusable report from model", "model", g.model, "session_id", rec.SessionID, "error", err)
		return nil, err
	}
	return out, nil
}
