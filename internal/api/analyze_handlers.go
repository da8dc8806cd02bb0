package api

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Fauzanmhr/skripsi/internal/models"
	"github.com/Fauzanmhr/skripsi/internal/sentiment"
)

const (
	maxUploadBytes = 10 << 20 // 10 MiB
	uploadTTL      = time.Hour
	previewRows    = 10
)

// uploadedFile is a parsed CSV held between the upload and process steps.
type uploadedFile struct {
	columns  []string
	rows     [][]string
	filename string
}

// AnalyzeHandler serves ad-hoc sentiment analysis of uploaded CSV files,
// independent of the scraped review store. Uploads are held in memory and
// expire after an hour.
type AnalyzeHandler struct {
	classifier sentiment.Classifier
	logger     *slog.Logger

	mu      sync.Mutex
	uploads map[string]*uploadedFile
}

// NewAnalyzeHandler creates the file analysis handler.
func NewAnalyzeHandler(classifier sentiment.Classifier, logger *slog.Logger) *AnalyzeHandler {
	return &AnalyzeHandler{
		classifier: classifier,
		logger:     logger,
		uploads:    make(map[string]*uploadedFile),
	}
}

// Upload handles POST /api/analyze/upload: parses the CSV, stores it under
// a fresh ID and returns the columns plus a preview so the client can pick
// the text column.
func (h *AnalyzeHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid upload")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "no file uploaded")
		return
	}
	defer file.Close()

	if !strings.HasSuffix(strings.ToLower(header.Filename), ".csv") {
		writeError(w, http.StatusBadRequest, "unsupported file type, expected CSV")
		return
	}

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("failed to parse CSV: %v", err))
		return
	}
	if len(records) < 2 {
		writeError(w, http.StatusBadRequest, "no data rows found in file")
		return
	}

	upload := &uploadedFile{
		columns:  records[0],
		rows:     records[1:],
		filename: header.Filename,
	}

	id := uuid.New().String()
	h.mu.Lock()
	h.uploads[id] = upload
	h.mu.Unlock()

	time.AfterFunc(uploadTTL, func() {
		h.mu.Lock()
		delete(h.uploads, id)
		h.mu.Unlock()
	})

	preview := upload.rows
	if len(preview) > previewRows {
		preview = preview[:previewRows]
	}

	h.logger.Info("File uploaded for analysis", "file_id", id, "rows", len(upload.rows))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"file_id":    id,
		"columns":    upload.columns,
		"preview":    preview,
		"total_rows": len(upload.rows),
	})
}

// analyzedRow is one processed row of an uploaded file.
type analyzedRow struct {
	Text      string `json:"text"`
	Sentiment string `json:"sentiment,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Process handles POST /api/analyze/process: classifies the chosen column
// of a previously uploaded file, row by row. Per-row classification
// failures are reported inline and do not abort the run.
func (h *AnalyzeHandler) Process(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		FileID string `json:"file_id"`
		Column string `json:"column"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	h.mu.Lock()
	upload, ok := h.uploads[req.FileID]
	h.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "file not found or expired")
		return
	}

	columnIdx := -1
	for i, column := range upload.columns {
		if column == req.Column {
			columnIdx = i
			break
		}
	}
	if columnIdx < 0 {
		writeError(w, http.StatusBadRequest, "unknown column")
		return
	}

	results := make([]analyzedRow, 0, len(upload.rows))
	counts := make(map[models.Sentiment]int)
	for _, row := range upload.rows {
		if columnIdx >= len(row) {
			continue
		}
		text := strings.TrimSpace(row[columnIdx])
		if text == "" {
			continue
		}

		label, err := h.classifier.Classify(r.Context(), text)
		if err != nil {
			results = append(results, analyzedRow{Text: text, Error: "classification failed"})
			continue
		}
		counts[label]++
		results = append(results, analyzedRow{Text: text, Sentiment: string(label)})
	}

	h.logger.Info("Processed uploaded file", "file_id", req.FileID, "rows", len(results))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"filename": upload.filename,
		"results":  results,
		"counts":   counts,
	})
}
