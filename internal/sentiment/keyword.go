package sentiment

import (
	"context"
	"strings"

	"github.com/Fauzanmhr/skripsi/internal/models"
)

// KeywordClassifier provides a rule-based classifier for development and
// tests, with no external calls. Keyword lists cover the two languages the
// scraper keeps.
type KeywordClassifier struct{}

// NewKeywordClassifier creates a rule-based classifier.
func NewKeywordClassifier() *KeywordClassifier {
	return &KeywordClassifier{}
}

var keywordLabels = []struct {
	label models.Sentiment
	words []string
}{
	{models.SentimentSatisfied, []string{"satisfied", "puas", "worth it", "recommended", "rekomendasi"}},
	{models.SentimentDisappointed, []string{"disappointed", "kecewa", "expected more", "tidak sesuai"}},
	{models.SentimentNegative, []string{"bad", "terrible", "awful", "buruk", "jelek", "kotor", "lama", "mahal"}},
	{models.SentimentPositive, []string{"good", "great", "excellent", "love", "bagus", "enak", "ramah", "bersih", "murah"}},
}

// Classify scans for known keywords, first match in priority order wins,
// defaulting to neutral.
func (c *KeywordClassifier) Classify(ctx context.Context, text string) (models.Sentiment, error) {
	lowered := strings.ToLower(text)
	for _, entry := range keywordLabels {
		for _, word := range entry.words {
			if strings.Contains(lowered, word) {
				return entry.label, nil
			}
		}
	}
	return models.SentimentNeutral, nil
}
