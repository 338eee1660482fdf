package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"

	middleware "github.com/lexium-ai/lexium/internal/api/middlewares"
	"github.com/lexium-ai/lexium/internal/config"
	"github.com/lexium-ai/lexium/internal/core"
	"github.com/lexium-ai/lexium/internal/core/index"
	"github.com/lexium-ai/lexium/internal/ingestion"
	"github.com/lexium-ai/lexium/internal/logger"
	"github.com/lexium-ai/lexium/internal/models"
)

type KnowledgeHandler struct {
	dbclient     core.DbClient
	objectclient core.ObjectClient
	orchestrator *ingestion.Orchestrator
	dispatcher   *ingestion.Dispatcher
	publisher    *index.Publisher
	cfg          *config.Config
	log          *logger.Logger
}

func NewKnowledgeHandler(dbclient core.DbClient, objectclient core.ObjectClient, orch *ingestion.Orchestrator, disp *ingestion.Dispatcher, pub *index.Publisher, cfg *config.Config, log *logger.Logger) *KnowledgeHandler {
	return &KnowledgeHandler{
		dbclient:     dbclient,
		objectclient: objectclient,
		orchestrator: orch,
		dispatcher:   disp,
		publisher:    pub,
		cfg:          cfg,
		log:          log.With("component", "api"),
	}
}

// UploadFiles ingests a multipart batch into the account's knowledge base.
func (h *KnowledgeHandler) UploadFiles(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.AccountID(r.Context())
	if !ok {
		http.Error(w, "account_id not found in context", http.StatusUnauthorized)
		return
	}

	if err := r.ParseMultipartForm(128 << 20); err != nil {
		http.Error(w, "invalid multipart form", http.StatusBadRequest)
		return
	}

	fileHeaders := r.MultipartForm.File["files"]
	if len(fileHeaders) == 0 {
		http.Error(w, "no files provided", http.StatusBadRequest)
		return
	}

	var uploads []ingestion.FileUpload
	for _, header := range fileHeaders {
		f, err := header.Open()
		if err != nil {
			http.Error(w, fmt.Sprintf("open %q: %v", header.Filename, err), http.StatusBadRequest)
			return
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			http.Error(w, fmt.Sprintf("read %q: %v", header.Filename, err), http.StatusBadRequest)
			return
		}

		uploads = append(uploads, ingestion.FileUpload{
			FileName: filepath.Base(header.Filename),
			MimeType: header.Header.Get("Content-Type"),
			Data:     data,
		})
	}

	ingestCtx, cancel := context.WithTimeout(r.Context(), 10*time.Minute)
	defer cancel()

	result, err := h.orchestrator.Ingest(ingestCtx, accountID, uploads, r.FormValue("session_id"))
	if err != nil {
		http.Error(w, fmt.Sprintf("ingestion failed: %v", err), http.StatusInternalServerError)
		return
	}

	// Index publication is best-effort and decoupled from ingestion: the
	// files are already durably stored, so failures here are logged and the
	// caller may retry publication later.
	go h.publishProcessed(accountID, result)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

func (h *KnowledgeHandler) publishProcessed(accountID string, result *ingestion.SessionResult) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	for _, res := range result.Results {
		if !res.Success || res.Duplicate || res.FileID == "" {
			continue
		}
		file, err := h.dbclient.GetFileByID(ctx, res.FileID)
		if err != nil || file == nil || file.ExtractedText == nil {
			h.log.Warn("skipping index publish", "file_id", res.FileID, "err", err)
			continue
		}
		ref, err := h.publisher.Publish(ctx, accountID, file.ID, *file.ExtractedText)
		if err != nil {
			h.log.Error("index publish failed", "file_id", file.ID, "err", err)
			continue
		}
		if err := h.dbclient.SetFileIndexRef(ctx, file.ID, ref); err != nil {
			h.log.Error("store index ref failed", "file_id", file.ID, "err", err)
		}
	}
}

// ListFiles returns the account's non-deleted knowledge files.
func (h *KnowledgeHandler) ListFiles(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.AccountID(r.Context())
	if !ok {
		http.Error(w, "account_id not found in context", http.StatusUnauthorized)
		return
	}

	files, err := h.dbclient.ListFilesByAccount(r.Context(), accountID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(files)
}

// GetSession reports a processing session with its per-file statuses.
func (h *KnowledgeHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.AccountID(r.Context())
	if !ok {
		http.Error(w, "account_id not found in context", http.StatusUnauthorized)
		return
	}

	sessionID := chi.URLParam(r, "id")
	session, err := h.dbclient.GetSessionByID(r.Context(), sessionID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if session == nil || session.AccountID != accountID {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	files, err := h.dbclient.ListFilesBySession(r.Context(), sessionID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"session": session,
		"files":   files,
	})
}

// DeleteFile soft-deletes a knowledge file and removes its raw object and
// index chunks.
func (h *KnowledgeHandler) DeleteFile(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.AccountID(r.Context())
	if !ok {
		http.Error(w, "account_id not found in context", http.StatusUnauthorized)
		return
	}

	fileID := chi.URLParam(r, "id")
	file, err := h.dbclient.GetFileByID(r.Context(), fileID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if file == nil || file.AccountID != accountID || file.Status == models.FileStatusDeleted {
		http.Error(w, "file not found", http.StatusNotFound)
		return
	}

	if err := h.dbclient.SoftDeleteFile(r.Context(), fileID); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if err := h.dbclient.DeleteChunksByFile(r.Context(), fileID); err != nil {
		h.log.Error("delete chunks failed", "file_id", fileID, "err", err)
	}
	if err := h.objectclient.DeleteFile(r.Context(), h.cfg.BucketName, file.StorageKey); err != nil {
		h.log.Error("delete object failed", "file_id", fileID, "key", file.StorageKey, "err", err)
	}

	w.WriteHeader(http.StatusNoContent)
}

// ExtractPreview runs extraction on one file without persisting anything.
// Useful for client-side previews before committing an upload.
func (h *KnowledgeHandler) ExtractPreview(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(64 << 20); err != nil {
		http.Error(w, "invalid multipart form", http.StatusBadRequest)
		return
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "no file provided", http.StatusBadRequest)
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		http.Error(w, fmt.Sprintf("read file: %v", err), http.StatusBadRequest)
		return
	}

	extraction, err := h.dispatcher.Extract(r.Context(), data, filepath.Base(header.Filename), header.Header.Get("Content-Type"))
	if err != nil {
		http.Error(w, fmt.Sprintf("extraction failed: %v", err), http.StatusUnprocessableEntity)
		return
	}

	text := ingestion.CleanText(extraction.Text)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"file_name":   header.Filename,
		"file_size":   len(data),
		"text":        text,
		"text_length": len(text),
		"page_count":  extraction.PageCount,
	})
}
