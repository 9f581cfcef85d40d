package vision

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

const defaultConfidence = 80

var (
	confidenceRe  = regexp.MustCompile(`(?i)confidence.*?(\d+)`)
	itemPrefixRe  = regexp.MustCompile(`(?i)^(item:|the item is:)\s*`)
	itemTrimChars = "*_\"' \t"
)

// parseDetection reads the item name from the first line of text and a
// confidence score from anywhere in it. A missing score defaults to 80.
func parseDetection(text string) (*DetectionResult, error) {
	text = strings.TrimSpace(text)
	first, _, _ := strings.Cut(text, "\n")
	first = strings.Trim(first, "*_ \t\r")
	first = itemPrefixRe.ReplaceAllString(first, "")
	item := strings.Trim(first, itemTrimChars+"\r")

	if item == "" {
		return nil, ErrNoItemDetected
	}

	return &DetectionResult{DetectedItem: item, Confidence: parseConfidence(text)}, nil
}

func parseConfidence(text string) int {
	m := confidenceRe.FindStringSubmatch(text)
	if m == nil {
		return defaultConfidence
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return defaultConfidence
	}
	return min(max(n, 0), 100)
}

// extractJSONObject returns the text between the first '{' and the last '}'.
// This tolerates markdown fences and chatter around the object.
func extractJSONObject(text string) (string, error) {
	text = strings.TrimSpace(text)
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end == -1 || end <= start {
		return "", fmt.Errorf("no JSON object found in response")
	}
	return text[start : end+1], nil
}

// flexPrice accepts 120, 120.5, "120" and "$1,200".
type flexPrice float64

func (p *flexPrice) UnmarshalJSON(data []byte) error {
	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		*p = flexPrice(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("suggestedPrice is neither a number nor a string")
	}
	s = strings.NewReplacer("$", "", ",", "", " ", "").Replace(s)
	if s == "" {
		*p = 0
		return nil
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("invalid suggestedPrice %q: %w", s, err)
	}
	*p = flexPrice(n)
	return nil
}

func parseGeneratedListing(text string) (*GeneratedListing, error) {
	jsonStr, err := extractJSONObject(text)
	if err != nil {
		return nil, err
	}

	var raw struct {
		Title          string    `json:"title"`
		Description    string    `json:"description"`
		SuggestedPrice flexPrice `json:"suggestedPrice"`
	}
	if err := json.Unmarshal([]byte(jsonStr), &raw); err != nil {
		return nil, fmt.Errorf("failed to unmarshal listing: %w", err)
	}

	return &GeneratedListing{
		Title:          strings.TrimSpace(raw.Title),
		Description:    strings.TrimSpace(raw.Description),
		SuggestedPrice: float64(raw.SuggestedPrice),
	}, nil
}
