package vision

import (
	"context"
	"encoding/base64"
	"strings"

	"google.golang.org/genai"

	"github.com/raine/hotpotato/internal/apperr"
)

const DefaultGeminiModel = "gemini-2.5-flash-lite"

// Gemini calls Google's Gemini API directly.
type Gemini struct {
	client *genai.Client
	model  string
}

var _ Provider = (*Gemini)(nil)

func NewGemini(ctx context.Context, apiKey, model string) (*Gemini, error) {
	if apiKey == "" {
		return nil, apperr.Config("Gemini API key is not configured")
	}
	if model == "" {
		model = DefaultGeminiModel
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindConfig, err, "failed to create Gemini client")
	}
	return &Gemini{client: client, model: model}, nil
}

func geminiConfig(req CompletionRequest) *genai.GenerateContentConfig {
	config := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(float32(req.Temperature)),
		MaxOutputTokens: int32(req.MaxTokens),
	}
	if req.System != "" {
		config.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	return config
}

func (g *Gemini) Complete(ctx context.Context, req CompletionRequest) (*Completion, error) {
	image, err := base64.StdEncoding.DecodeString(req.ImageBase64)
	if err != nil {
		return nil, apperr.Codec(err, "Failed to decode image")
	}

	parts := []*genai.Part{
		genai.NewPartFromText(req.Prompt),
		genai.NewPartFromBytes(image, "image/jpeg"),
	}
	contents := []*genai.Content{
		genai.NewContentFromParts(parts, genai.RoleUser),
	}

	result, err := g.client.Models.GenerateContent(ctx, g.model, contents, geminiConfig(req))
	if err != nil {
		if ctx.Err() != nil {
			return nil, apperr.Network(err)
		}
		return nil, apperr.Wrap(apperr.KindRemote, err, err.Error())
	}

	if len(result.Candidates) == 0 || result.Candidates[0].Content == nil {
		return nil, apperr.Parse(MsgNoResponse)
	}

	completion := &Completion{
		Text:  strings.TrimSpace(result.Text()),
		Model: g.model,
	}
	if result.UsageMetadata != nil {
		completion.Usage = Usage{
			InputTokens:  int64(result.UsageMetadata.PromptTokenCount),
			OutputTokens: int64(result.UsageMetadata.CandidatesTokenCount),
			TotalTokens:  int64(result.UsageMetadata.TotalTokenCount),
		}
	}
	return completion, nil
}
