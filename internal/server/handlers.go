package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/rag"
	"github.com/hyperjump/kotae/pkg/utils"
	"go.uber.org/zap"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req models.IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		s.respondError(w, http.StatusBadRequest, "text is required")
		return
	}
	id, err := s.rag.Ingest(r.Context(), *req.Text)
	if err != nil {
		s.respondServiceError(w, "ingest failed", err)
		return
	}
	s.logger.Debug("ingest request", zap.Int("passage_id", id))
	s.respondJSON(w, http.StatusOK, models.IngestResponse{Status: models.StatusAdded, Text: *req.Text})
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req models.AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		s.respondError(w, http.StatusBadRequest, "question is required")
		return
	}
	s.logger.Debug("ask request", zap.String("question", utils.Truncate(utils.CollapseSpace(*req.Question), 80)))
	ans, err := s.rag.Answer(r.Context(), *req.Question)
	if err != nil {
		s.respondServiceError(w, "answer failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, models.AskResponse{Answer: ans.Answer, Context: ans.Context})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, models.HealthResponse{Status: "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	store := s.rag.Store()
	resp := models.StatusResponse{
		Passages:   store.Len(),
		Dimensions: store.Dimensions(),
		IndexType:  store.Type(),
		Embedder:   s.embedder,
		Generator:  s.generator,
	}
	if s.journal != nil {
		ctx := r.Context()
		ingestions, err := s.journal.CountIngestions(ctx)
		if err != nil {
			s.logger.Error("status: count ingestions failed", zap.Error(err))
			s.respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
		answers, err := s.journal.CountAnswers(ctx)
		if err != nil {
			s.logger.Error("status: count answers failed", zap.Error(err))
			s.respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
		js := &models.JournalStatus{
			Path:       s.config.Storage.JournalPath,
			Ingestions: ingestions,
			Answers:    answers,
		}
		if sized, ok := s.journal.(interface{ SizeBytes() (int64, error) }); ok {
			if n, err := sized.SizeBytes(); err == nil {
				js.SizeBytes = n
			}
		}
		resp.Journal = js
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetPassage(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid passage id")
		return
	}
	p, ok := s.rag.Store().Passage(id)
	if !ok {
		s.respondError(w, http.StatusNotFound, "passage not found")
		return
	}
	s.respondJSON(w, http.StatusOK, models.PassageResponse{ID: p.ID, Text: p.Text})
}

func (s *Server) handleListAnswers(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		s.respondError(w, http.StatusNotImplemented, "journal not enabled")
		return
	}
	offset, limit, ok := s.page(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	records, err := s.journal.ListAnswers(ctx, offset, limit)
	if err != nil {
		s.logger.Error("list answers failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	total, err := s.journal.CountAnswers(ctx)
	if err != nil {
		s.logger.Error("count answers failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	resp := models.AnswersResponse{
		Answers: make([]models.AnswerEntry, 0, len(records)),
		Total:   total,
		Offset:  offset,
		Limit:   limit,
	}
	for _, rec := range records {
		entry := models.AnswerEntry{
			ID:        rec.ID,
			Question:  rec.Question,
			Context:   rec.Context,
			Answer:    rec.Answer,
			CreatedAt: rec.CreatedAt,
		}
		if rec.PassageID >= 0 {
			id := rec.PassageID
			entry.PassageID = &id
			entry.Score = rec.Score
		}
		resp.Answers = append(resp.Answers, entry)
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListIngestions(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		s.respondError(w, http.StatusNotImplemented, "journal not enabled")
		return
	}
	offset, limit, ok := s.page(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	records, err := s.journal.ListIngestions(ctx, offset, limit)
	if err != nil {
		s.logger.Error("list ingestions failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	total, err := s.journal.CountIngestions(ctx)
	if err != nil {
		s.logger.Error("count ingestions failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	resp := models.IngestionsResponse{
		Ingestions: make([]models.IngestionEntry, 0, len(records)),
		Total:      total,
		Offset:     offset,
		Limit:      limit,
	}
	for _, rec := range records {
		resp.Ingestions = append(resp.Ingestions, models.IngestionEntry{
			ID:        rec.ID,
			PassageID: rec.PassageID,
			Source:    rec.Source,
			Text:      rec.Text,
			CreatedAt: rec.CreatedAt,
		})
	}
	s.respondJSON(w, http.StatusOK, resp)
}

// page reads the offset and limit query parameters, answering 400 when either is invalid.
func (s *Server) page(w http.ResponseWriter, r *http.Request) (offset, limit int, ok bool) {
	offset, err := queryInt(r, "offset", 0)
	if err != nil || offset < 0 {
		s.respondError(w, http.StatusBadRequest, "invalid offset")
		return 0, 0, false
	}
	limit, err = queryInt(r, "limit", defaultPageLimit)
	if err != nil || limit <= 0 {
		s.respondError(w, http.StatusBadRequest, "invalid limit")
		return 0, 0, false
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	return offset, limit, true
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}

func (s *Server) handleWatchDirectoriesList(w http.ResponseWriter, r *http.Request) {
	if s.watch == nil {
		s.respondError(w, http.StatusNotImplemented, "watch not enabled")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"directories": s.watch.Directories()})
}

type watchAddRequest struct {
	Path string `json:"path"`
	Sync *bool  `json:"sync,omitempty"`
}

func (s *Server) handleWatchDirectoriesAdd(w http.ResponseWriter, r *http.Request) {
	if s.watch == nil {
		s.respondError(w, http.StatusNotImplemented, "watch not enabled")
		return
	}
	var req watchAddRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Path == "" {
		s.respondError(w, http.StatusBadRequest, "path is required")
		return
	}
	abs, err := filepath.Abs(req.Path)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid path")
		return
	}
	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			s.respondError(w, http.StatusNotFound, "directory not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !info.IsDir() {
		s.respondError(w, http.StatusBadRequest, "path is not a directory")
		return
	}
	syncExisting := true
	if req.Sync != nil {
		syncExisting = *req.Sync
	}
	if err := s.watch.AddDirectory(abs, syncExisting); err != nil {
		s.logger.Error("watch add directory failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.persistWatchDirectories()
	s.respondJSON(w, http.StatusCreated, map[string]string{"path": abs, "status": "added"})
}

// handleWatchDirectoriesRemove stops watching a directory. Passages already loaded stay in the store.
func (s *Server) handleWatchDirectoriesRemove(w http.ResponseWriter, r *http.Request) {
	if s.watch == nil {
		s.respondError(w, http.StatusNotImplemented, "watch not enabled")
		return
	}
	path := r.URL.Query().Get("path")
	if path == "" {
		s.respondError(w, http.StatusBadRequest, "path is required")
		return
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid path")
		return
	}
	if err := s.watch.RemoveDirectory(abs); err != nil {
		s.logger.Error("watch remove directory failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.persistWatchDirectories()
	s.respondJSON(w, http.StatusOK, map[string]string{"path": abs, "status": "removed"})
}

func (s *Server) persistWatchDirectories() {
	if s.configPath == "" {
		return
	}
	s.configMu.Lock()
	defer s.configMu.Unlock()
	s.config.Watch.Directories = s.watch.Directories()
	if err := config.Save(s.configPath, s.config); err != nil {
		s.logger.Warn("failed to persist watch config", zap.Error(err))
	}
}

// respondServiceError maps provider failures to 502 and everything else to 500.
func (s *Server) respondServiceError(w http.ResponseWriter, msg string, err error) {
	var perr *rag.ProviderError
	if errors.As(err, &perr) {
		s.logger.Warn(msg, zap.String("op", perr.Op), zap.Error(err))
		s.respondError(w, http.StatusBadGateway, err.Error())
		return
	}
	s.logger.Error(msg, zap.Error(err))
	s.respondError(w, http.StatusInternalServerError, err.Error())
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, models.ErrorResponse{Error: message})
}
