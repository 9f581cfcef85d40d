package vision

import (
	"context"
	"errors"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/raine/hotpotato/internal/apperr"
	"github.com/raine/hotpotato/internal/imagecodec"
)

const DefaultOpenAIModel = "gpt-4o-mini"

type OpenAIOptions struct {
	APIKey  string
	Model   string
	BaseURL string
}

// OpenAI uses the official SDK against any OpenAI-compatible endpoint.
type OpenAI struct {
	client openai.Client
	model  string
}

var _ Provider = (*OpenAI)(nil)

func NewOpenAI(opts OpenAIOptions) (*OpenAI, error) {
	if opts.APIKey == "" {
		return nil, apperr.Config("OpenAI API key is not configured")
	}
	model := opts.Model
	if model == "" {
		model = DefaultOpenAIModel
	}
	reqOpts := []option.RequestOption{
		option.WithAPIKey(opts.APIKey),
		option.WithMaxRetries(0),
	}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}
	return &OpenAI{client: openai.NewClient(reqOpts...), model: model}, nil
}

func (o *OpenAI) Complete(ctx context.Context, req CompletionRequest) (*Completion, error) {
	resp, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: o.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(req.System),
			openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
				openai.TextContentPart(req.Prompt),
				openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
					URL: imagecodec.DataURLPrefix + req.ImageBase64,
				}),
			}),
		},
		MaxTokens:   openai.Int(int64(req.MaxTokens)),
		Temperature: openai.Float(req.Temperature),
	})
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			msg := apiErr.Message
			if msg == "" {
				msg = apiErr.Error()
			}
			return nil, apperr.Wrap(apperr.KindRemote, err, msg)
		}
		return nil, apperr.Network(err)
	}

	if len(resp.Choices) == 0 {
		return nil, apperr.Parse(MsgNoResponse)
	}

	return &Completion{
		Text:  strings.TrimSpace(resp.Choices[0].Message.Content),
		Model: resp.Model,
		Usage: Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
			TotalTokens:  resp.Usage.TotalTokens,
		},
	}, nil
}
