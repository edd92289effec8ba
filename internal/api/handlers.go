package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"wegtop/internal"
	"wegtop/internal/ingest"
	"wegtop/internal/tops"
)

type trackerResponse struct {
	Source       string               `json:"source"`
	MeetingDate  string               `json:"meeting_date"`
	OCRUsed      bool                 `json:"ocr_used"`
	Approved     int                  `json:"approved"`
	Rejected     int                  `json:"rejected"`
	Undetermined int                  `json:"undetermined"`
	Tops         []internal.ExportRow `json:"tops"`
}

func newTrackerResponse(tr tops.Tracker) trackerResponse {
	return trackerResponse{
		Source:       filepath.Base(tr.Source),
		MeetingDate:  tr.MeetingDate,
		OCRUsed:      tr.OCRUsed,
		Approved:     tr.Count(tops.VerdictApproved),
		Rejected:     tr.Count(tops.VerdictRejected),
		Undetermined: tr.Count(tops.VerdictUndetermined),
		Tops:         tr.Rows(),
	}
}

type pagesRequest struct {
	Source  string          `json:"source"`
	OCRUsed bool            `json:"ocr_used"`
	Pages   []internal.Page `json:"pages"`
}

func (s *Server) handleParseUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes+1024*1024)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		jsonError(w, "invalid multipart form: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		jsonError(w, "file is required: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer file.Close()

	filename := sanitizeFilename(header.Filename)
	if !ingest.IsSupported(filename) {
		jsonError(w, fmt.Sprintf("unsupported file type: %s", filepath.Ext(filename)), http.StatusBadRequest)
		return
	}

	data, err := io.ReadAll(io.LimitReader(file, s.cfg.MaxUploadBytes+1))
	if err != nil {
		jsonError(w, "failed to read file", http.StatusInternalServerError)
		return
	}
	if int64(len(data)) > s.cfg.MaxUploadBytes {
		jsonError(w, fmt.Sprintf("file exceeds max size (%d bytes)", s.cfg.MaxUploadBytes), http.StatusRequestEntityTooLarge)
		return
	}

	// The original name is kept so a date in the filename still counts.
	dir, err := os.MkdirTemp("", "wegtop-upload-")
	if err != nil {
		jsonError(w, "failed to stage upload", http.StatusInternalServerError)
		return
	}
	defer os.RemoveAll(dir)
	path := filepath.Join(dir, filename)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		jsonError(w, "failed to stage upload", http.StatusInternalServerError)
		return
	}

	doc, err := s.proc.Ingester().Ingest(r.Context(), path)
	if err != nil {
		s.log.Warn("upload ingest failed", "file", filename, "err", err)
		jsonError(w, "ingest failed: "+err.Error(), http.StatusUnprocessableEntity)
		return
	}
	s.respondTracker(w, doc)
}

func (s *Server) handleParsePages(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	var req pagesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid JSON body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Source) == "" {
		req.Source = "request"
	}
	for i := range req.Pages {
		if req.Pages[i].Number <= 0 {
			req.Pages[i].Number = i + 1
		}
	}
	doc := internal.Document{Identifier: req.Source, Pages: req.Pages, OCRUsed: req.OCRUsed, AvgCharsPerPage: ingest.AvgChars(req.Pages)}
	s.respondTracker(w, doc)
}

func (s *Server) respondTracker(w http.ResponseWriter, doc internal.Document) {
	tr, err := s.proc.Engine().Parse(doc)
	if err != nil {
		var integrity *tops.IntegrityError
		if errors.As(err, &integrity) {
			jsonError(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, newTrackerResponse(tr))
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		jsonError(w, "storage not configured", http.StatusServiceUnavailable)
		return
	}
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	docs, err := s.db.ListDocuments(limit)
	if err != nil {
		jsonError(w, "failed to list documents", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": docs, "count": len(docs)})
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	doc, ok := s.documentFromPath(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleDocumentTops(w http.ResponseWriter, r *http.Request) {
	doc, ok := s.documentFromPath(w, r)
	if !ok {
		return
	}
	rows, err := s.db.ListTops(doc.ID)
	if err != nil {
		jsonError(w, "failed to list TOPs", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"document": doc, "tops": rows})
}

func (s *Server) documentFromPath(w http.ResponseWriter, r *http.Request) (*internal.DocumentRow, bool) {
	if s.db == nil {
		jsonError(w, "storage not configured", http.StatusServiceUnavailable)
		return nil, false
	}
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id <= 0 {
		jsonError(w, "invalid document id", http.StatusBadRequest)
		return nil, false
	}
	doc, err := s.db.GetDocumentByID(id)
	if err != nil {
		jsonError(w, "failed to load document", http.StatusInternalServerError)
		return nil, false
	}
	if doc == nil {
		jsonError(w, "document not found", http.StatusNotFound)
		return nil, false
	}
	return doc, true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func sanitizeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	name = strings.ReplaceAll(name, "..", "_")
	if name == "" || name == "." || name == "/" {
		name = "unnamed"
	}
	return name
}
