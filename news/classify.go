package news

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

const classifierModel = openai.GPT4oMini

var openaiAPIKey = os.Getenv("OPENAI_API_KEY")

// Classification is the sentiment metadata attached to broadcast items.
// Score runs from -1 (strongly negative for the asset) to 1; Tier is
// the coarse bucket the app colors cards by.
type Classification struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Score       float64 `json:"score"`
	Tier        string  `json:"tier"`
}

const classifierPrompt = `You label Brazilian market news for a retail audience.
Given an analysis text, reply with JSON only:
{"title": short headline in pt-BR, "description": one-paragraph summary in pt-BR,
"score": sentiment from -1.0 to 1.0, "tier": one of "alta", "neutra", "baixa"}`

// Classify asks the model for a title, summary and sentiment for the
// given analysis text.
func Classify(ctx context.Context, text string) (*Classification, error) {
	client := openai.NewClient(openaiAPIKey)

	resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: classifierModel,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: classifierPrompt},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("classifying news: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("classifier returned no choices")
	}

	var c Classification
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &c); err != nil {
		return nil, fmt.Errorf("decoding classification: %w", err)
	}
	c.Tier = normalizeTier(c.Tier)
	if c.Score > 1 {
		c.Score = 1
	}
	if c.Score < -1 {
		c.Score = -1
	}
	return &c, nil
}

func normalizeTier(tier string) string {
	switch strings.ToLower(strings.TrimSpace(tier)) {
	case "alta":
		return "alta"
	case "baixa":
		return "baixa"
	default:
		return "neutra"
	}
}
