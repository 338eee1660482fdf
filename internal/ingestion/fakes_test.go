package ingestion

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/lexium-ai/lexium/internal/core"
	"github.com/lexium-ai/lexium/internal/models"
)

// memDB is an in-memory core.DbClient mirroring the database's transition
// guards, so the state-machine behavior under test matches production.
type memDB struct {
	mu       sync.Mutex
	accounts map[string]*models.Account
	files    map[string]*models.KnowledgeFile
	sessions map[string]*models.ProcessingSession
	chunks   map[string][]models.KnowledgeChunk

	createFileErr error
	// dupLookupMisses makes the next N checksum lookups miss, simulating a
	// concurrent writer that commits between lookup and insert.
	dupLookupMisses int
}

func newMemDB(accounts ...*models.Account) *memDB {
	db := &memDB{
		accounts: map[string]*models.Account{},
		files:    map[string]*models.KnowledgeFile{},
		sessions: map[string]*models.ProcessingSession{},
		chunks:   map[string][]models.KnowledgeChunk{},
	}
	for _, a := range accounts {
		db.accounts[a.ID] = a
	}
	return db
}

func (m *memDB) GetAccountByID(_ context.Context, id string) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.accounts[id]; ok {
		cp := *a
		return &cp, nil
	}
	return nil, nil
}

func (m *memDB) CreateKnowledgeFile(_ context.Context, file *models.KnowledgeFile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createFileErr != nil {
		return m.createFileErr
	}
	for _, f := range m.files {
		if f.AccountID == file.AccountID && f.Checksum == file.Checksum && f.Status != models.FileStatusDeleted {
			return core.ErrDuplicateFile
		}
	}
	cp := *file
	m.files[file.ID] = &cp
	return nil
}

func (m *memDB) GetFileByID(_ context.Context, id string) (*models.KnowledgeFile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if f, ok := m.files[id]; ok {
		cp := *f
		return &cp, nil
	}
	return nil, nil
}

func (m *memDB) FindFileByChecksum(_ context.Context, accountID, checksum string) (*models.KnowledgeFile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dupLookupMisses > 0 {
		m.dupLookupMisses--
		return nil, nil
	}
	for _, f := range m.files {
		if f.AccountID == accountID && f.Checksum == checksum && f.Status != models.FileStatusDeleted {
			cp := *f
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memDB) ListFilesByAccount(_ context.Context, accountID string) ([]models.KnowledgeFile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.KnowledgeFile
	for _, f := range m.files {
		if f.AccountID == accountID && f.Status != models.FileStatusDeleted {
			out = append(out, *f)
		}
	}
	return out, nil
}

func (m *memDB) ListFilesBySession(_ context.Context, sessionID string) ([]models.KnowledgeFile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.KnowledgeFile
	for _, f := range m.files {
		if f.SessionID != nil && *f.SessionID == sessionID {
			out = append(out, *f)
		}
	}
	return out, nil
}

func (m *memDB) UpdateFileStatus(_ context.Context, id string, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.files[id]
	if !ok || f.Status != models.FileStatusPending {
		return errors.New("no pending file to update")
	}
	f.Status = status
	return nil
}

func (m *memDB) MarkFileProcessed(_ context.Context, id string, text string, pageCount int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.files[id]
	if !ok || f.Status != models.FileStatusProcessing {
		return errors.New("no processing file to mark")
	}
	now := time.Now()
	f.Status = models.FileStatusProcessed
	f.ExtractedText = &text
	f.TextLength = len(text)
	f.PageCount = &pageCount
	f.ProcessedAt = &now
	return nil
}

func (m *memDB) MarkFileError(_ context.Context, id string, processingError string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.files[id]
	if !ok || (f.Status != models.FileStatusPending && f.Status != models.FileStatusProcessing) {
		return errors.New("no active file to mark errored")
	}
	f.Status = models.FileStatusError
	f.ProcessingError = &processingError
	return nil
}

func (m *memDB) SetFileIndexRef(_ context.Context, id string, ref string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.files[id]
	if !ok {
		return errors.New("file not found")
	}
	f.IndexRef = &ref
	return nil
}

func (m *memDB) SoftDeleteFile(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.files[id]
	if !ok || (f.Status != models.FileStatusProcessed && f.Status != models.FileStatusError) {
		return errors.New("no terminal file to delete")
	}
	f.Status = models.FileStatusDeleted
	return nil
}

func (m *memDB) CreateSession(_ context.Context, session *models.ProcessingSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *session
	m.sessions[session.ID] = &cp
	return nil
}

func (m *memDB) GetSessionByID(_ context.Context, id string) (*models.ProcessingSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		cp := *s
		return &cp, nil
	}
	return nil, nil
}

func (m *memDB) StartSession(_ context.Context, id string, totalFiles int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok || s.Status != models.SessionStatusPending {
		return errors.New("no pending session to start")
	}
	now := time.Now()
	s.Status = models.SessionStatusProcessing
	s.TotalFiles = totalFiles
	s.StartedAt = &now
	return nil
}

func (m *memDB) IncrementSessionProcessed(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok || s.CompletedAt != nil {
		return errors.New("session frozen")
	}
	s.ProcessedFiles++
	return nil
}

func (m *memDB) IncrementSessionError(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok || s.CompletedAt != nil {
		return errors.New("session frozen")
	}
	s.ErrorFiles++
	return nil
}

func (m *memDB) CompleteSession(_ context.Context, id string, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok || s.Status != models.SessionStatusProcessing {
		return errors.New("session not in processing state")
	}
	now := time.Now()
	s.Status = status
	s.CompletedAt = &now
	return nil
}

func (m *memDB) InsertKnowledgeChunks(_ context.Context, chunks []models.KnowledgeChunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range chunks {
		m.chunks[c.FileID] = append(m.chunks[c.FileID], c)
	}
	return nil
}

func (m *memDB) DeleteChunksByFile(_ context.Context, fileID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.chunks, fileID)
	return nil
}

func (m *memDB) Close() error { return nil }

func (m *memDB) fileByID(id string) *models.KnowledgeFile {
	m.mu.Lock()
	defer m.mu.Unlock()
	if f, ok := m.files[id]; ok {
		cp := *f
		return &cp
	}
	return nil
}

var _ core.DbClient = (*memDB)(nil)

// memObject is an in-memory core.ObjectClient.
type memObject struct {
	mu        sync.Mutex
	objects   map[string][]byte
	uploadErr error
}

func newMemObject() *memObject {
	return &memObject{objects: map[string][]byte{}}
}

func (m *memObject) UploadFile(_ context.Context, bucket, key string, data []byte, _ string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.uploadErr != nil {
		return "", m.uploadErr
	}
	m.objects[bucket+"/"+key] = append([]byte(nil), data...)
	return "https://" + bucket + "/" + key, nil
}

func (m *memObject) GetFile(_ context.Context, bucket, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if data, ok := m.objects[bucket+"/"+key]; ok {
		return data, nil
	}
	return nil, errors.New("object not found")
}

func (m *memObject) DeleteFile(_ context.Context, bucket, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, bucket+"/"+key)
	return nil
}

var _ core.ObjectClient = (*memObject)(nil)

// scriptedRunner returns canned helper results keyed by kind, so extraction
// chains can be exercised without spawning subprocesses.
type scriptedRunner struct {
	results map[HelperKind]HelperResult
	calls   []HelperKind
	mu      sync.Mutex
}

func (s *scriptedRunner) Run(_ context.Context, kind HelperKind, _ []byte, _ time.Duration) HelperResult {
	s.mu.Lock()
	s.calls = append(s.calls, kind)
	s.mu.Unlock()
	if res, ok := s.results[kind]; ok {
		return res
	}
	return HelperResult{Success: false, Error: "no scripted result"}
}

var _ HelperRunner = (*scriptedRunner)(nil)
