// Package vision identifies items in photos and drafts marketplace listing
// copy using a remote chat-completion model.
package vision

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/raine/hotpotato/internal/apperr"
	"github.com/raine/hotpotato/internal/imagecodec"
	"github.com/raine/hotpotato/internal/storage"
)

// DetectionResult is the item named in a photo. Confidence is 0-100 and
// advisory only.
type DetectionResult struct {
	DetectedItem string `json:"detectedItem"`
	Confidence   int    `json:"confidence"`
}

// GeneratedListing is the AI-written draft used as initial form values.
type GeneratedListing struct {
	Title          string  `json:"title"`
	Description    string  `json:"description"`
	SuggestedPrice float64 `json:"suggestedPrice"`
	DetectedItem   string  `json:"detectedItem"`
}

// Service is what the listing pipeline needs from the vision layer.
type Service interface {
	DetectItem(ctx context.Context, imageRef string) (*DetectionResult, error)
	GenerateListing(ctx context.Context, itemName, imageRef string) (*GeneratedListing, error)
}

// Usage contains token usage reported by the provider.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
	TotalTokens  int64
}

// CompletionRequest is a single system + user turn with one image.
type CompletionRequest struct {
	System      string
	Prompt      string
	ImageBase64 string
	MaxTokens   int
	Temperature float64
}

// Completion is the text reply of a provider.
type Completion struct {
	Text  string
	Model string
	Usage Usage
}

// Provider sends a CompletionRequest to a concrete model API.
type Provider interface {
	Complete(ctx context.Context, req CompletionRequest) (*Completion, error)
}

// Cache stores detection results by image hash.
type Cache interface {
	GetVisionCache(imageHash string) (*storage.VisionCacheEntry, error)
	SetVisionCache(imageHash string, entry *storage.VisionCacheEntry) error
}

const (
	detectMaxTokens     = 150
	detectTemperature   = 0.3
	generateMaxTokens   = 500
	generateTemperature = 0.7
)

const (
	MsgNoResponse        = "No response from AI"
	MsgNoItemDetected    = "Could not recognise the item, please enter its name"
	MsgParseFailed       = "Failed to parse AI response"
	MsgItemNameRequired  = "Please enter an item name"
	MsgProviderNotConfig = "Vision provider is not configured"
)

// ErrNoItemDetected is returned by DetectItem when the model answered but
// named no item. Other detection failures, an empty reply included, are
// not this error.
var ErrNoItemDetected = apperr.Parse(MsgNoItemDetected)

// Client implements Service on top of a Provider.
type Client struct {
	provider Provider
	encoder  imagecodec.Encoder
	cache    Cache
}

var _ Service = (*Client)(nil)

// NewClient creates a vision client. The encoder turns image references into
// the base64 payload embedded in each request.
func NewClient(provider Provider, encoder imagecodec.Encoder) (*Client, error) {
	if provider == nil {
		return nil, apperr.Config(MsgProviderNotConfig)
	}
	if encoder == nil {
		return nil, apperr.Config("image encoder is not configured")
	}
	return &Client{provider: provider, encoder: encoder}, nil
}

// WithCache enables caching of detection results.
func (c *Client) WithCache(cache Cache) *Client {
	c.cache = cache
	return c
}

// DetectItem names the main item in the image.
func (c *Client) DetectItem(ctx context.Context, imageRef string) (*DetectionResult, error) {
	b64, err := c.encoder.Base64(ctx, imageRef)
	if err != nil {
		return nil, err
	}
	hash := hashImage(b64)

	if cached := c.cachedDetection(hash); cached != nil {
		return cached, nil
	}

	completion, err := c.complete(ctx, "detect", CompletionRequest{
		System:      detectSystemPrompt,
		Prompt:      detectUserPrompt,
		ImageBase64: b64,
		MaxTokens:   detectMaxTokens,
		Temperature: detectTemperature,
	})
	if err != nil {
		return nil, err
	}

	result, err := parseDetection(completion.Text)
	if err != nil {
		log.Warn().Str("response", completion.Text).Msg("could not parse detection reply")
		return nil, err
	}

	c.storeDetection(hash, result)
	return result, nil
}

// GenerateListing writes a title, description and suggested price for
// itemName. The returned DetectedItem is always itemName.
func (c *Client) GenerateListing(ctx context.Context, itemName, imageRef string) (*GeneratedListing, error) {
	if itemName == "" {
		return nil, apperr.Validation(MsgItemNameRequired)
	}

	b64, err := c.encoder.Base64(ctx, imageRef)
	if err != nil {
		return nil, err
	}

	completion, err := c.complete(ctx, "generate", CompletionRequest{
		System:      generateSystemPrompt,
		Prompt:      generateUserPrompt(itemName),
		ImageBase64: b64,
		MaxTokens:   generateMaxTokens,
		Temperature: generateTemperature,
	})
	if err != nil {
		return nil, err
	}

	listing, err := parseGeneratedListing(completion.Text)
	if err != nil {
		log.Warn().Err(err).Str("response", completion.Text).Msg("could not parse generated listing")
		return nil, apperr.Wrap(apperr.KindParse, err, MsgParseFailed)
	}
	listing.DetectedItem = itemName
	return listing, nil
}

func (c *Client) complete(ctx context.Context, op string, req CompletionRequest) (*Completion, error) {
	start := time.Now()
	completion, err := c.provider.Complete(ctx, req)
	if err != nil {
		log.Error().Err(err).Str("op", op).Msg("vision llm call failed")
		return nil, err
	}

	log.Info().
		Str("op", op).
		Str("model", completion.Model).
		Int64("inputTokens", completion.Usage.InputTokens).
		Int64("outputTokens", completion.Usage.OutputTokens).
		Dur("took", time.Since(start)).
		Msg("vision llm call")

	if completion.Text == "" {
		return nil, apperr.Parse(MsgNoResponse)
	}
	return completion, nil
}

func (c *Client) cachedDetection(hash string) *DetectionResult {
	if c.cache == nil {
		return nil
	}
	entry, err := c.cache.GetVisionCache(hash)
	if err != nil {
		log.Warn().Err(err).Msg("failed to check vision cache")
		return nil
	}
	if entry == nil {
		return nil
	}
	log.Debug().Str("hash", hash[:16]).Msg("vision cache hit")
	return &DetectionResult{DetectedItem: entry.DetectedItem, Confidence: entry.Confidence}
}

func (c *Client) storeDetection(hash string, result *DetectionResult) {
	if c.cache == nil {
		return
	}
	entry := &storage.VisionCacheEntry{DetectedItem: result.DetectedItem, Confidence: result.Confidence}
	if err := c.cache.SetVisionCache(hash, entry); err != nil {
		log.Warn().Err(err).Msg("failed to cache vision result")
		return
	}
	log.Debug().Str("hash", hash[:16]).Msg("cached vision result")
}

func hashImage(b64 string) string {
	sum := sha256.Sum256([]byte(b64))
	return hex.EncodeToString(sum[:])
}
