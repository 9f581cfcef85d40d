package vision

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"

	"github.com/raine/hotpotato/internal/apperr"
	"github.com/raine/hotpotato/internal/imagecodec"
)

const (
	OpenRouterBaseURL      = "https://openrouter.ai/api/v1"
	DefaultOpenRouterModel = "google/gemini-2.0-flash-exp:free"

	appReferer = "https://hotpotato.app"
	appTitle   = "HotPotato"
)

type OpenRouterOptions struct {
	APIKey  string
	Model   string
	BaseURL string
}

// OpenRouter talks to the OpenRouter chat completions endpoint.
type OpenRouter struct {
	httpClient *resty.Client
	model      string
}

var _ Provider = (*OpenRouter)(nil)

func NewOpenRouter(opts OpenRouterOptions) (*OpenRouter, error) {
	if opts.APIKey == "" {
		return nil, apperr.Config("OpenRouter API key is not configured")
	}
	if opts.Model == "" {
		return nil, apperr.Config("OpenRouter model is not configured")
	}
	model := opts.Model
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = OpenRouterBaseURL
	}

	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetAuthToken(opts.APIKey).
		SetHeaders(map[string]string{
			"Content-Type": "application/json",
			"HTTP-Referer": appReferer,
			"X-Title":      appTitle,
		})

	return &OpenRouter{httpClient: httpClient, model: model}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature"`
}

type chatError struct {
	Message string `json:"message"`
	Code    any    `json:"code,omitempty"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content messageContent `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int64 `json:"prompt_tokens"`
		CompletionTokens int64 `json:"completion_tokens"`
		TotalTokens      int64 `json:"total_tokens"`
	} `json:"usage"`
	Error *chatError `json:"error"`
}

type errorEnvelope struct {
	Error *chatError `json:"error"`
}

// messageContent is either a plain string or a list of typed parts, of
// which only the text parts are kept.
type messageContent string

func (m *messageContent) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*m = messageContent(s)
		return nil
	}
	var parts []contentPart
	if err := json.Unmarshal(data, &parts); err != nil {
		if string(data) == "null" {
			*m = ""
			return nil
		}
		return fmt.Errorf("unexpected message content: %w", err)
	}
	var b strings.Builder
	for _, p := range parts {
		if p.Type == "text" {
			b.WriteString(p.Text)
		}
	}
	*m = messageContent(b.String())
	return nil
}

func (o *OpenRouter) Complete(ctx context.Context, req CompletionRequest) (*Completion, error) {
	body := chatRequest{
		Model: o.model,
		Messages: []chatMessage{
			{Role: "system", Content: req.System},
			{Role: "user", Content: []contentPart{
				{Type: "text", Text: req.Prompt},
				{Type: "image_url", ImageURL: &imageURL{URL: imagecodec.DataURLPrefix + req.ImageBase64}},
			}},
		},
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}

	result := &chatResponse{}
	res, err := o.httpClient.NewRequest().
		SetContext(ctx).
		SetBody(body).
		SetResult(result).
		SetError(&errorEnvelope{}).
		Post("/chat/completions")
	if err != nil {
		return nil, apperr.Network(err)
	}

	if res.IsError() {
		msg := fmt.Sprintf("OpenRouter request failed (status: %d)", res.StatusCode())
		if env, ok := res.Error().(*errorEnvelope); ok && env.Error != nil && env.Error.Message != "" {
			msg = env.Error.Message
		}
		return nil, apperr.Remote(msg)
	}
	// OpenRouter reports some upstream failures with a 200 and an error body.
	if result.Error != nil && result.Error.Message != "" {
		return nil, apperr.Remote(result.Error.Message)
	}
	if len(result.Choices) == 0 {
		return nil, apperr.Parse(MsgNoResponse)
	}

	completion := &Completion{
		Text:  strings.TrimSpace(string(result.Choices[0].Message.Content)),
		Model: result.Model,
	}
	if result.Usage != nil {
		completion.Usage = Usage{
			InputTokens:  result.Usage.PromptTokens,
			OutputTokens: result.Usage.CompletionTokens,
			TotalTokens:  result.Usage.TotalTokens,
		}
	}
	return completion, nil
}
