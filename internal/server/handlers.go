package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-chi/chi/v5"
	"github.com/hyperjump/lotuswxr/internal/keyword"
	"github.com/hyperjump/lotuswxr/internal/models"
	"go.uber.org/zap"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleMedia serves one archived media file by its archive filename.
func (s *Server) handleMedia(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		s.respondError(w, http.StatusBadRequest, "invalid media name")
		return
	}
	path := filepath.Join(models.MediaPath(s.archiveDir), name)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			s.respondError(w, http.StatusNotFound, "media not found")
			return
		}
		s.logger.Error("open media failed", zap.String("path", path), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "open media failed")
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil || info.IsDir() {
		s.respondError(w, http.StatusNotFound, "media not found")
		return
	}
	if mt, err := mimetype.DetectReader(f); err == nil {
		w.Header().Set("Content-Type", mt.String())
	}
	if _, err := f.Seek(0, 0); err != nil {
		s.respondError(w, http.StatusInternalServerError, "read media failed")
		return
	}
	http.ServeContent(w, r, name, info.ModTime(), f)
}

// handleExport renders the export in memory so that a failed export yields an error status.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	if s.exporter == nil {
		s.respondError(w, http.StatusNotImplemented, "export not enabled")
		return
	}
	var buf bytes.Buffer
	summary, err := s.exporter.Export(r.Context(), &buf)
	if err != nil {
		s.logger.Error("export failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.logger.Debug("served export", zap.Int("posts", summary.Posts), zap.Int("bytes", buf.Len()))
	w.Header().Set("Content-Type", "application/rss+xml; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="export.xml"`)
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func (s *Server) handleSearchGet(w http.ResponseWriter, r *http.Request) {
	v := r.URL.Query()
	query := models.SearchQuery{Query: v.Get("q")}
	opts := &keyword.SearchOptions{}
	for name, dst := range map[string]*int{"limit": &query.Limit, "offset": &query.Offset, "fuzzy": &opts.Fuzziness} {
		raw := v.Get(name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "invalid "+name)
			return
		}
		*dst = n
	}
	s.search(w, r, &query, opts)
}

func (s *Server) handleSearchPost(w http.ResponseWriter, r *http.Request) {
	var query models.SearchQuery
	if err := json.NewDecoder(r.Body).Decode(&query); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.search(w, r, &query, nil)
}

func (s *Server) search(w http.ResponseWriter, r *http.Request, query *models.SearchQuery, opts *keyword.SearchOptions) {
	if s.searcher == nil {
		s.respondError(w, http.StatusNotImplemented, "search not enabled")
		return
	}
	if query.Limit == 0 {
		query.Limit = s.defaultLimit
	}
	if err := query.Validate(); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Debug("search request", zap.String("query", query.Query), zap.Int("limit", query.Limit))
	response, err := s.searcher.Search(r.Context(), query, opts)
	if err != nil {
		s.logger.Error("search failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, response)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	keys, err := models.PageKeys(s.archiveDir)
	if err != nil {
		s.logger.Error("status: list pages failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	media, err := os.ReadDir(models.MediaPath(s.archiveDir))
	if err != nil && !os.IsNotExist(err) {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	resp := map[string]interface{}{
		"archive": s.archiveDir,
		"pages":   len(keys),
		"media":   len(media),
	}
	if s.searcher != nil {
		if n, err := s.searcher.DocCount(); err == nil {
			resp["indexed"] = n
		}
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
