package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/Fauzanmhr/skripsi/internal/models"
)

const (
	sourceName = "Google Maps Reviews"
	userAgent  = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

	// listugcposts is the internal RPC Google Maps pages call for review
	// listings. Responses are JSON prefixed with an XSSI guard.
	reviewsEndpoint = "https://www.google.com/maps/rpc/listugcposts"
	xssiPrefix      = ")]}'"
)

var (
	whitespaceRe = regexp.MustCompile(`\s+`)
	featureIDRe  = regexp.MustCompile(`0x[0-9a-fA-F]+:0x[0-9a-fA-F]+`)
	placeNameRe  = regexp.MustCompile(`/place/([^/@]+)`)
)

// NormalizeText collapses runs of whitespace into single spaces and trims
// the result. Reconciliation compares normalized texts, so normalization
// must be stable across scrapes.
func NormalizeText(text string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(text, " "))
}

// ExtractPlaceName pulls the human-readable place name out of a Google Maps
// place URL. Returns "" when the URL has no place segment.
func ExtractPlaceName(placeURL string) string {
	match := placeNameRe.FindStringSubmatch(placeURL)
	if match == nil {
		return ""
	}
	name := strings.ReplaceAll(match[1], "+", " ")
	if decoded, err := url.QueryUnescape(name); err == nil {
		name = decoded
	}
	return name
}

// Config controls how many review pages are fetched and which languages are
// kept.
type Config struct {
	// Pages caps pagination through the review listing.
	Pages int
	// Languages whitelists review languages; empty keeps everything.
	Languages []string
	// Retry governs transient page fetch failures.
	Retry RetryPolicy
}

// GoogleMapsFetcher retrieves reviews for a place directly from the Google
// Maps review listing endpoint, newest first.
type GoogleMapsFetcher struct {
	client    *http.Client
	pages     int
	languages map[string]struct{}
	retry     RetryPolicy
	logger    *slog.Logger
}

// NewGoogleMapsFetcher creates a fetcher. A nil client falls back to a
// default with a 30s timeout.
func NewGoogleMapsFetcher(client *http.Client, cfg Config, logger *slog.Logger) *GoogleMapsFetcher {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.Pages <= 0 {
		cfg.Pages = 1
	}
	languages := make(map[string]struct{}, len(cfg.Languages))
	for _, lang := range cfg.Languages {
		languages[strings.ToLower(strings.TrimSpace(lang))] = struct{}{}
	}
	return &GoogleMapsFetcher{
		client:    client,
		pages:     cfg.Pages,
		languages: languages,
		retry:     cfg.Retry,
		logger:    logger,
	}
}

// Fetch resolves the place behind the URL and pages through its review
// listing. Reviews without text or outside the configured languages are
// dropped; kept texts are whitespace-normalized.
func (f *GoogleMapsFetcher) Fetch(ctx context.Context, placeURL string) ([]models.RawReview, error) {
	featureID, err := f.resolveFeatureID(ctx, placeURL)
	if err != nil {
		return nil, fmt.Errorf("resolving place: %w", err)
	}

	var reviews []models.RawReview
	token := ""
	for page := 0; page < f.pages; page++ {
		entries, nextToken, err := f.fetchPage(ctx, featureID, token)
		if err != nil {
			return nil, fmt.Errorf("fetching review page %d: %w", page+1, err)
		}

		for _, entry := range entries {
			raw, ok := parseReviewEntry(entry)
			if !ok {
				continue
			}
			if raw.Text == "" || !f.languageAllowed(raw.Language) {
				continue
			}
			reviews = append(reviews, raw)
		}

		if nextToken == "" {
			break
		}
		token = nextToken
	}

	f.logger.Debug("Fetched reviews from Google Maps", "place", featureID, "count", len(reviews))
	return reviews, nil
}

func (f *GoogleMapsFetcher) languageAllowed(language string) bool {
	if len(f.languages) == 0 {
		return true
	}
	_, ok := f.languages[strings.ToLower(language)]
	return ok
}

// resolveFeatureID loads the place page and extracts the hex feature ID the
// review endpoint keys on. The ID appears both in the page metadata and
// inline in application state scripts.
func (f *GoogleMapsFetcher) resolveFeatureID(ctx context.Context, placeURL string) (string, error) {
	// URLs copied out of the browser often embed the feature ID directly.
	if id := featureIDRe.FindString(placeURL); id != "" {
		return id, nil
	}

	var body []byte
	err := Retry(ctx, f.retry, func() error {
		data, err := f.get(ctx, placeURL)
		if err != nil {
			return err
		}
		body = data
		return nil
	})
	if err != nil {
		return "", err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return "", fmt.Errorf("parsing place page: %w", err)
	}

	var featureID string
	doc.Find("meta[content], script").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		haystack, _ := sel.Attr("content")
		if haystack == "" {
			haystack = sel.Text()
		}
		if id := featureIDRe.FindString(haystack); id != "" {
			featureID = id
			return false
		}
		return true
	})
	if featureID == "" {
		return "", fmt.Errorf("no feature ID found in place page %s", placeURL)
	}
	return featureID, nil
}

// fetchPage retrieves one page of the review listing, sorted newest first,
// and returns the raw review entries plus the token for the next page.
func (f *GoogleMapsFetcher) fetchPage(ctx context.Context, featureID, token string) ([]json.RawMessage, string, error) {
	pageURL := reviewsEndpoint + "?authuser=0&hl=en&pb=" + url.QueryEscape(buildListingPB(featureID, token))
	return f.fetchPageFrom(ctx, pageURL)
}

// fetchPageFrom retrieves and decodes one listing page from a fully built
// URL.
func (f *GoogleMapsFetcher) fetchPageFrom(ctx context.Context, pageURL string) ([]json.RawMessage, string, error) {
	var body []byte
	err := Retry(ctx, f.retry, func() error {
		data, err := f.get(ctx, pageURL)
		if err != nil {
			return err
		}
		body = data
		return nil
	})
	if err != nil {
		return nil, "", err
	}

	payload := strings.TrimPrefix(string(body), xssiPrefix)

	var envelope []json.RawMessage
	if err := json.Unmarshal([]byte(payload), &envelope); err != nil {
		return nil, "", fmt.Errorf("decoding listing response: %w", err)
	}
	if len(envelope) < 3 {
		return nil, "", nil
	}

	var nextToken string
	// A null token marks the last page.
	_ = json.Unmarshal(envelope[1], &nextToken)

	var entries []json.RawMessage
	if err := json.Unmarshal(envelope[2], &entries); err != nil {
		// Some places return no review block at all.
		return nil, nextToken, nil
	}
	return entries, nextToken, nil
}

// buildListingPB encodes the protobuf-over-URL parameter the listing
// endpoint expects: feature ID, page size, newest-first sort, and the
// continuation token.
func buildListingPB(featureID, token string) string {
	return fmt.Sprintf("!1m6!1s%s!6m4!4m1!1e1!4m1!1e3!2m2!1i20!2s%s!5m2!1s0!7e81!8m5!1b1!2b1!3b1!5b1!7b1!11m0!13m1!1e2", featureID, token)
}

func (f *GoogleMapsFetcher) get(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &RetryableError{Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &RetryableError{Err: fmt.Errorf("rate limited by %s", req.URL.Host), RetryAfter: 10 * time.Second}
	case resp.StatusCode >= 500:
		return nil, &RetryableError{Err: fmt.Errorf("upstream returned %d", resp.StatusCode)}
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("upstream returned %d", resp.StatusCode)
	}

	return io.ReadAll(resp.Body)
}

// parseReviewEntry walks one entry of the listing response. The layout is
// an undocumented nested-array protobuf rendering, so every access is
// guarded; entries that do not match are skipped rather than failing the
// whole page.
func parseReviewEntry(entry json.RawMessage) (models.RawReview, bool) {
	var node any
	if err := json.Unmarshal(entry, &node); err != nil {
		return models.RawReview{}, false
	}

	review := at(node, 0)
	if review == nil {
		return models.RawReview{}, false
	}

	id, ok := asString(at(review, 0))
	if !ok || id == "" {
		return models.RawReview{}, false
	}

	raw := models.RawReview{
		ID:     id,
		Source: sourceName,
	}

	if author, ok := asString(at(review, 1, 4, 5, 0)); ok {
		raw.Author = author
	}
	if rating, ok := asFloat(at(review, 2, 0, 0)); ok {
		raw.Rating = int(rating)
	}
	if text, ok := asString(at(review, 2, 15, 0, 0)); ok {
		raw.Text = NormalizeText(text)
	}
	if language, ok := asString(at(review, 2, 14, 0)); ok {
		raw.Language = strings.ToLower(language)
	}

	// Timestamps are microseconds since the epoch.
	if published, ok := asFloat(at(review, 1, 2)); ok {
		raw.PublishedAt = time.UnixMicro(int64(published)).UTC()
	}
	if edited, ok := asFloat(at(review, 1, 3)); ok && edited > 0 {
		editedAt := time.UnixMicro(int64(edited)).UTC()
		raw.EditedAt = &editedAt
	}

	return raw, true
}

// at descends through nested arrays by index, returning nil when any step
// is out of range or not an array.
func at(node any, path ...int) any {
	for _, idx := range path {
		arr, ok := node.([]any)
		if !ok || idx < 0 || idx >= len(arr) {
			return nil
		}
		node = arr[idx]
	}
	return node
}

func asString(node any) (string, bool) {
	s, ok := node.(string)
	return s, ok
}

func asFloat(node any) (float64, bool) {
	f, ok := node.(float64)
	return f, ok
}
