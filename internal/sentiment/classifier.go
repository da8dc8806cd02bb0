package sentiment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Fauzanmhr/skripsi/internal/models"
)

// Classifier assigns a sentiment label to a piece of review text.
type Classifier interface {
	Classify(ctx context.Context, text string) (models.Sentiment, error)
}

// ClassificationError wraps a failed classification attempt. The backfill
// job treats it as transient: the attempt counter advances and the review
// stays in the queue.
type ClassificationError struct {
	Err error
}

func (e *ClassificationError) Error() string {
	return fmt.Sprintf("classify review: %v", e.Err)
}

func (e *ClassificationError) Unwrap() error {
	return e.Err
}

// HTTPClassifier calls an external sentiment analysis service over HTTP.
// The service accepts {"text": ...} and answers {"sentiment": ...} with one
// of the known labels.
type HTTPClassifier struct {
	baseURL string
	client  *http.Client
}

// NewHTTPClassifier creates a classifier against the given service base
// URL. A nil client falls back to a default with a 60s timeout; model
// inference on long texts can be slow.
func NewHTTPClassifier(baseURL string, client *http.Client) *HTTPClassifier {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &HTTPClassifier{baseURL: baseURL, client: client}
}

// Classify posts the text to the service's /sentiment endpoint.
func (c *HTTPClassifier) Classify(ctx context.Context, text string) (models.Sentiment, error) {
	payload, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return "", &ClassificationError{Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/sentiment", bytes.NewReader(payload))
	if err != nil {
		return "", &ClassificationError{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", &ClassificationError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", &ClassificationError{Err: fmt.Errorf("sentiment service returned %d: %s", resp.StatusCode, body)}
	}

	var result struct {
		Sentiment string `json:"sentiment"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", &ClassificationError{Err: fmt.Errorf("decoding sentiment response: %w", err)}
	}
	if result.Sentiment == "" {
		return "", &ClassificationError{Err: fmt.Errorf("sentiment service response missing label")}
	}

	label, err := models.ParseSentiment(result.Sentiment)
	if err != nil {
		return "", &ClassificationError{Err: err}
	}
	return label, nil
}
