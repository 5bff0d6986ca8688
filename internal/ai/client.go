// Package ai implements the attempt-level client for the external nutrition
// analysis provider. One Analyze call is stateless and cancellable; retry
// and hedging policy live entirely in the hedge package.
package ai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/nutrilog/go-meal-backend/internal/nutrition"
)

// Request is one meal submission to analyze. At least one of Message/Image
// is non-empty (validated upstream). Locale asks the provider to include a
// translation variant for that tag.
type Request struct {
	Message string
	Image   []byte
	Locale  string
}

// Analyzer performs a single analysis attempt against the provider.
// Implementations must honor ctx for cancellation and deadlines.
type Analyzer interface {
	Analyze(ctx context.Context, req Request) (*nutrition.AnalysisResult, error)
}

// Typed attempt failures. The hedger treats all of them as input to the
// next hedging decision; they are never surfaced to clients directly.
var (
	// ErrEmptyCompletion is returned when the provider replies with no
	// choices.
	ErrEmptyCompletion = errors.New("ai: provider returned no choices")

	// ErrBadPayload is returned when the provider's reply is not the
	// expected JSON analysis.
	ErrBadPayload = errors.New("ai: provider returned an unparseable analysis")
)

const systemPrompt = `You are a nutrition analyst. Given a meal description and/or a photo,
respond with STRICT JSON only, no markdown, matching:
{
  "dish": string,
  "confidence": number,            // 0..1
  "totals": {"kcal": number, "protein_g": number, "fat_g": number, "carbs_g": number},
  "items": [{"name": string, "grams": number, "protein_g": number|null, "fat_g": number|null, "carbs_g": number|null}],
  "warnings": [string],
  "landing_type": "breakfast"|"lunch"|"dinner"|"snack"|null,
  "translations": { "<locale>": { same shape, display text localized } }
}
Totals belong to the canonical object; translations only localize text.`

// Client is the OpenAI-backed Analyzer.
type Client struct {
	api   *openai.Client
	model string
}

// NewClient builds a Client for the given API key and model.
func NewClient(apiKey, model string) *Client {
	return &Client{api: openai.NewClient(apiKey), model: model}
}

// Analyze performs one provider call and decodes the JSON analysis.
func (c *Client) Analyze(ctx context.Context, req Request) (*nutrition.AnalysisResult, error) {
	user := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser}
	text := strings.TrimSpace(req.Message)
	if text == "" {
		text = "Analyze the attached meal photo."
	}
	if req.Locale != "" {
		text += fmt.Sprintf("\nInclude a %q entry in translations.", req.Locale)
	}
	if len(req.Image) > 0 {
		user.MultiContent = []openai.ChatMessagePart{
			{Type: openai.ChatMessagePartTypeText, Text: text},
			{
				Type: openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{
					URL:    dataURL(req.Image),
					Detail: openai.ImageURLDetailLow,
				},
			},
		}
	} else {
		user.Content = text
	}

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			user,
		},
		Temperature: 0.2,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("ai: completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, ErrEmptyCompletion
	}

	return Decode([]byte(resp.Choices[0].Message.Content))
}

// Decode parses a provider reply into an AnalysisResult, tolerating a JSON
// body wrapped in a markdown code fence.
func Decode(raw []byte) (*nutrition.AnalysisResult, error) {
	var res nutrition.AnalysisResult
	if err := json.Unmarshal(raw, &res); err != nil {
		stripped := stripCodeFence(string(raw))
		if err2 := json.Unmarshal([]byte(stripped), &res); err2 != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
		}
	}
	if res.Dish == "" && len(res.Items) == 0 {
		return nil, ErrBadPayload
	}
	return &res, nil
}

// stripCodeFence extracts the body of a ```json ... ``` block, returning the
// input unchanged when no fence is present.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	if i := strings.LastIndex(s, "```"); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

// dataURL wraps raw image bytes into an inline data URL for the provider.
func dataURL(img []byte) string {
	mime := http.DetectContentType(img)
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(img)
}
