package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"whisper-backend/internal/archive"
	"whisper-backend/internal/config"
	"whisper-backend/internal/jobstore"
	"whisper-backend/internal/models"
	"whisper-backend/internal/queue"
	"whisper-backend/internal/ratelimit"
	"whisper-backend/internal/telemetry"
)

// supportedMIMETypes is the upload allow-list: mp3, wav, m4a, ogg and webm
// variants.
var supportedMIMETypes = map[string]bool{
	"audio/mpeg":  true,
	"audio/wav":   true,
	"audio/x-wav": true,
	"audio/m4a":   true,
	"audio/x-m4a": true,
	"audio/mp4":   true,
	"audio/ogg":   true,
	"audio/webm":  true,
}

// maxUploadBytes caps multipart bodies at ~100MB.
const maxUploadBytes = 100 << 20

// Server wires HTTP handlers for the submission and status services.
type Server struct {
	cfg     config.Config
	store   *jobstore.Store
	queue   *queue.RedisQueue
	limiter *ratelimit.TokenBucket
	archive *archive.Archive // optional
}

// New constructs the API server. limiter and arc may be nil.
func New(cfg config.Config, st *jobstore.Store, q *queue.RedisQueue, limiter *ratelimit.TokenBucket, arc *archive.Archive) *Server {
	return &Server{
		cfg:     cfg,
		store:   st,
		queue:   q,
		limiter: limiter,
		archive: arc,
	}
}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Mount("/metrics", telemetry.Handler())

	r.Post("/transcribe", s.handleTranscribe)
	r.Get("/job/{id}", s.handleJobStatus)
	r.Get("/transcripts", s.handleTranscripts)
	return r
}

type submitResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

// jobResponse is shaped per status: queued/processing carry only the id and
// status, completed adds the result fields, failed adds the error.
type jobResponse struct {
	JobID               string   `json:"job_id"`
	Status              string   `json:"status"`
	Text                *string  `json:"text,omitempty"`
	Language            *string  `json:"language,omitempty"`
	Duration            *float64 `json:"duration,omitempty"`
	LanguageProbability *float64 `json:"language_probability,omitempty"`
	Error               *string  `json:"error,omitempty"`
}

func (s *Server) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	if s.limiter != nil {
		allowed, err := s.limiter.Allow(r.Context(), clientIP(r))
		if err != nil {
			writeError(w, http.StatusInternalServerError, "rate limit error")
			return
		}
		if !allowed {
			telemetry.RateLimitRejects.Inc()
			writeError(w, http.StatusTooManyRequests, "rate limited")
			return
		}
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "multipart field 'file' is required")
		return
	}
	defer file.Close()

	contentType := strings.TrimSpace(strings.Split(header.Header.Get("Content-Type"), ";")[0])
	if !supportedMIMETypes[contentType] {
		telemetry.UploadsRejected.Inc()
		writeJSON(w, http.StatusUnsupportedMediaType, map[string]any{
			"error":           fmt.Sprintf("unsupported file type: %s", contentType),
			"supported_types": supportedTypes(),
		})
		return
	}

	jobID := uuid.New().String()
	path, err := s.saveUpload(file, header.Filename, jobID)
	if err != nil {
		log.Printf("job %s: save upload: %v", jobID, err)
		writeError(w, http.StatusInternalServerError, "failed to process upload")
		return
	}

	job, err := s.store.Create(r.Context(), jobID)
	if err != nil {
		removeFile(path)
		log.Printf("job %s: create record: %v", jobID, err)
		writeError(w, http.StatusInternalServerError, "failed to process upload")
		return
	}

	task := models.Task{JobID: jobID, Path: path, ContentType: contentType}
	if err := s.queue.Enqueue(r.Context(), task); err != nil {
		removeFile(path)
		_ = s.store.Fail(r.Context(), jobID, "failed to enqueue task")
		log.Printf("job %s: enqueue: %v", jobID, err)
		writeError(w, http.StatusInternalServerError, "failed to process upload")
		return
	}

	telemetry.UploadsAccepted.Inc()
	log.Printf("job %s: accepted %q (%s)", jobID, header.Filename, contentType)
	writeJSON(w, http.StatusAccepted, submitResponse{JobID: job.ID, Status: job.Status})
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	job, err := s.store.Get(r.Context(), id)
	if errors.Is(err, jobstore.ErrNotFound) {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if err != nil {
		log.Printf("job %s: lookup: %v", id, err)
		writeError(w, http.StatusInternalServerError, "failed to retrieve job status")
		return
	}

	resp := jobResponse{JobID: job.ID, Status: job.Status}
	switch job.Status {
	case models.StatusCompleted:
		if job.Result != nil {
			resp.Text = &job.Result.Text
			resp.Language = &job.Result.Language
			resp.Duration = &job.Result.Duration
			resp.LanguageProbability = &job.Result.LanguageProbability
		}
	case models.StatusFailed:
		resp.Error = &job.Error
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleTranscripts lists recent archived transcripts. The list is empty
// when no archive is configured.
func (s *Server) handleTranscripts(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		writeJSON(w, http.StatusOK, map[string]any{"transcripts": []archive.Transcript{}})
		return
	}
	items, err := s.archive.Recent(r.Context(), 20)
	if err != nil {
		log.Printf("list transcripts: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to list transcripts")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"transcripts": items})
}

// saveUpload copies the uploaded file into the uploads dir, named after the
// job so the worker can find and delete it.
func (s *Server) saveUpload(file io.Reader, filename, jobID string) (string, error) {
	if err := os.MkdirAll(s.cfg.UploadDir, 0o755); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}
	ext := strings.ToLower(filepath.Ext(filename))
	if ext == "" {
		ext = ".tmp"
	}
	path := filepath.Join(s.cfg.UploadDir, jobID+ext)
	dst, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create upload file: %w", err)
	}
	defer dst.Close()
	if _, err := io.Copy(dst, file); err != nil {
		removeFile(path)
		return "", fmt.Errorf("write upload: %w", err)
	}
	return path, nil
}

func supportedTypes() []string {
	out := make([]string, 0, len(supportedMIMETypes))
	for t := range supportedMIMETypes {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func removeFile(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("cleanup %s: %v", path, err)
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}
