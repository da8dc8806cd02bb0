package models

import (
	"fmt"
	"time"
)

// Review represents a single public review collected from the configured
// place. The ID is assigned by the review source and is stable across
// scrapes, which makes it the reconciliation key.
type Review struct {
	ID                 string     `json:"id"`
	Author             string     `json:"author,omitempty"`
	Rating             int        `json:"rating,omitempty"`
	Text               string     `json:"text"`
	PublishedAt        time.Time  `json:"published_at"`
	EditedAt           *time.Time `json:"edited_at,omitempty"`
	Language           string     `json:"language"`
	Source             string     `json:"source"`
	Sentiment          *Sentiment `json:"sentiment,omitempty"`
	ProcessedAt        *time.Time `json:"processed_at,omitempty"`
	ProcessingAttempts int        `json:"processing_attempts"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// Classified reports whether the review carries a sentiment label.
func (r *Review) Classified() bool {
	return r.Sentiment != nil
}

// RawReview is a review as returned by the fetch collaborator, before
// reconciliation against stored state. Text is whitespace-normalized by the
// fetcher.
type RawReview struct {
	ID          string     `json:"id"`
	Author      string     `json:"author,omitempty"`
	Rating      int        `json:"rating,omitempty"`
	Text        string     `json:"text"`
	PublishedAt time.Time  `json:"published_at"`
	EditedAt    *time.Time `json:"edited_at,omitempty"`
	Language    string     `json:"language"`
	Source      string     `json:"source"`
}

// Sentiment is one of a fixed closed set of classification labels.
type Sentiment string

const (
	SentimentPositive     Sentiment = "positive"
	SentimentNegative     Sentiment = "negative"
	SentimentNeutral      Sentiment = "neutral"
	SentimentSatisfied    Sentiment = "satisfied"
	SentimentDisappointed Sentiment = "disappointed"
)

// Sentiments lists every valid label in display order.
func Sentiments() []Sentiment {
	return []Sentiment{
		SentimentPositive,
		SentimentNegative,
		SentimentNeutral,
		SentimentSatisfied,
		SentimentDisappointed,
	}
}

// Valid reports whether s is a member of the closed label set.
func (s Sentiment) Valid() bool {
	switch s {
	case SentimentPositive, SentimentNegative, SentimentNeutral,
		SentimentSatisfied, SentimentDisappointed:
		return true
	}
	return false
}

// ParseSentiment converts an external label into a Sentiment, rejecting
// anything outside the closed set.
func ParseSentiment(raw string) (Sentiment, error) {
	s := Sentiment(raw)
	if !s.Valid() {
		return "", fmt.Errorf("unknown sentiment label: %q", raw)
	}
	return s, nil
}
