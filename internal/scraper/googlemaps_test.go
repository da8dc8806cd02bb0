package scraper

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestNormalizeText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"already clean", "good place", "good place"},
		{"collapses runs", "good   place\n\twith  tabs", "good place with tabs"},
		{"trims edges", "  padded  ", "padded"},
		{"empty", "", ""},
		{"only whitespace", " \n\t ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeText(tt.in); got != tt.want {
				t.Errorf("NormalizeText(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestExtractPlaceName(t *testing.T) {
	tests := []struct {
		name string
		url  string
		want string
	}{
		{"plus separated", "https://www.google.com/maps/place/Kopi+Kenangan/@-6.2,106.8,17z", "Kopi Kenangan"},
		{"percent encoded", "https://www.google.com/maps/place/Caf%C3%A9+Batavia/@-6.1,106.8,17z", "Café Batavia"},
		{"no place segment", "https://www.google.com/maps/@-6.2,106.8,17z", ""},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractPlaceName(tt.url); got != tt.want {
				t.Errorf("ExtractPlaceName(%q) = %q, want %q", tt.url, got, tt.want)
			}
		})
	}
}

func TestFetchFiltersAndNormalizes(t *testing.T) {
	published := float64(time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC).UnixMicro())

	// Entries follow the listing layout: entry[0] is the review node with
	// id at 0, author at 1]4]5]0, text at 2]15]0]0, language at 2]14]0.
	entry := func(id, text, language string) string {
		return fmt.Sprintf(`[[%q, [null, null, %g], [[4], null, null, null, null, null, null, null, null, null, null, null, null, null, [%q], [[%q]]]]]`,
			id, published, language, text)
	}

	body := `)]}'` + fmt.Sprintf(`[null, null, [%s, %s, %s, %s]]`,
		entry("keep-id", "enak   dan \n murah", "id"),
		entry("keep-en", "great place", "en"),
		entry("drop-lang", "bon endroit", "fr"),
		entry("drop-empty", "   ", "en"),
	)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, body)
	}))
	defer server.Close()

	fetcher := NewGoogleMapsFetcher(server.Client(), Config{
		Pages:     1,
		Languages: []string{"id", "en"},
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	// Point the fetcher at the test server by overriding the endpoint via
	// a URL that already carries a feature ID, then fetch a single page.
	entries, next, err := fetcher.fetchPageFrom(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("fetchPageFrom: %v", err)
	}
	if next != "" {
		t.Errorf("next token = %q, want empty", next)
	}

	var kept []string
	for _, raw := range entries {
		parsed, ok := parseReviewEntry(raw)
		if !ok {
			continue
		}
		if parsed.Text == "" || !fetcher.languageAllowed(parsed.Language) {
			continue
		}
		kept = append(kept, parsed.ID+":"+parsed.Text)
	}

	want := []string{"keep-id:enak dan murah", "keep-en:great place"}
	if len(kept) != len(want) {
		t.Fatalf("kept = %v, want %v", kept, want)
	}
	for i := range want {
		if kept[i] != want[i] {
			t.Errorf("kept[%d] = %q, want %q", i, kept[i], want[i])
		}
	}

	parsed, ok := parseReviewEntry(entries[0])
	if !ok {
		t.Fatal("first entry did not parse")
	}
	if !parsed.PublishedAt.Equal(time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)) {
		t.Errorf("published = %v", parsed.PublishedAt)
	}
	if parsed.Source != sourceName {
		t.Errorf("source = %q, want %q", parsed.Source, sourceName)
	}
}

func TestParseReviewEntryMalformed(t *testing.T) {
	tests := []struct {
		name  string
		entry string
	}{
		{"not an array", `{"unexpected": true}`},
		{"empty array", `[]`},
		{"missing id", `[[null]]`},
		{"id wrong type", `[[42]]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, ok := parseReviewEntry([]byte(tt.entry)); ok {
				t.Errorf("parseReviewEntry(%s) parsed, want rejection", tt.entry)
			}
		})
	}
}

func TestResolveFeatureIDFromURL(t *testing.T) {
	fetcher := NewGoogleMapsFetcher(nil, Config{}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	url := "https://www.google.com/maps/place/Cafe/@-6.2,106.8,17z/data=!3m1!4b1!4m6!3m5!1s0x2e69f3e945e34b9d:0x5371bf13764f53ab"
	id, err := fetcher.resolveFeatureID(context.Background(), url)
	if err != nil {
		t.Fatalf("resolveFeatureID: %v", err)
	}
	if id != "0x2e69f3e945e34b9d:0x5371bf13764f53ab" {
		t.Errorf("feature ID = %q", id)
	}
}

func TestResolveFeatureIDFromPage(t *testing.T) {
	page := `<html><head><meta content="map data"></head><body>
		<script>var state = ["0x2e69f3e945e34b9d:0x5371bf13764f53ab", "rest"];</script>
	</body></html>`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, page)
	}))
	defer server.Close()

	fetcher := NewGoogleMapsFetcher(server.Client(), Config{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	id, err := fetcher.resolveFeatureID(context.Background(), server.URL+"/maps/place/Cafe")
	if err != nil {
		t.Fatalf("resolveFeatureID: %v", err)
	}
	if !strings.HasPrefix(id, "0x2e69f3e945e34b9d") {
		t.Errorf("feature ID = %q", id)
	}
}

func TestGetRetriesOnServerError(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		io.WriteString(w, "ok")
	}))
	defer server.Close()

	fetcher := NewGoogleMapsFetcher(server.Client(), Config{
		Retry: RetryPolicy{MaxRetries: 3, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond, BackoffFactor: 1},
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	var body []byte
	err := Retry(context.Background(), fetcher.retry, func() error {
		data, err := fetcher.get(context.Background(), server.URL)
		if err != nil {
			return err
		}
		body = data
		return nil
	})
	if err != nil {
		t.Fatalf("get with retry: %v", err)
	}
	if string(body) != "ok" {
		t.Errorf("body = %q", body)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}
