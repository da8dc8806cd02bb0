package sentiment

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/Fauzanmhr/skripsi/internal/models"
)

const classifySystemPrompt = `You are a sentiment classifier for customer reviews of a single venue.
Classify the review into exactly one of these labels:
positive, negative, neutral, satisfied, disappointed.
Respond with the label only, nothing else.`

// OpenAIClassifier labels reviews with a chat completion model. It is the
// fallback when no dedicated sentiment service is configured.
type OpenAIClassifier struct {
	client *openai.Client
	model  string
}

// NewOpenAIClassifier creates a classifier using the given API key and
// model. An empty model picks gpt-4o-mini.
func NewOpenAIClassifier(apiKey, model string) *OpenAIClassifier {
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAIClassifier{
		client: openai.NewClient(apiKey),
		model:  model,
	}
}

// Classify sends the review text to the chat completion API. Temperature is
// pinned to zero so repeated runs over the same text stay stable.
func (c *OpenAIClassifier) Classify(ctx context.Context, text string) (models.Sentiment, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: 0,
		MaxTokens:   8,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: classifySystemPrompt,
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: text,
			},
		},
	})
	if err != nil {
		return "", &ClassificationError{Err: err}
	}
	if len(resp.Choices) == 0 {
		return "", &ClassificationError{Err: fmt.Errorf("completion returned no choices")}
	}

	raw := strings.ToLower(strings.TrimSpace(strings.Trim(resp.Choices[0].Message.Content, ".")))
	label, err := models.ParseSentiment(raw)
	if err != nil {
		return "", &ClassificationError{Err: err}
	}
	return label, nil
}
