// Package coretest provides in-memory implementations of the core interfaces
// for tests that exercise the pipeline, chat engine and handlers without
// Postgres or S3.
package coretest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sgdea/docucore/internal/core"
	"github.com/sgdea/docucore/internal/models"
)

// MemStore is a thread-safe in-memory core.DbClient with the same state
// machine semantics as the Postgres client.
type MemStore struct {
	mu    sync.Mutex
	docs  map[string]*models.Document
	frags map[string][]models.Fragment
}

var _ core.DbClient = (*MemStore)(nil)

func NewMemStore() *MemStore {
	return &MemStore{
		docs:  make(map[string]*models.Document),
		frags: make(map[string][]models.Fragment),
	}
}

func (s *MemStore) CreateDocument(_ context.Context, doc *models.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *doc
	s.docs[doc.ID] = &cp
	return nil
}

func (s *MemStore) GetDocumentByID(_ context.Context, id string) (*models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[id]
	if !ok {
		return nil, nil
	}
	cp := *doc
	return &cp, nil
}

func (s *MemStore) ListDocuments(_ context.Context, filter models.DocumentFilter) ([]models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Document
	for _, doc := range s.docs {
		if filter.Status != nil && doc.Status != *filter.Status {
			continue
		}
		if filter.OriginDomain != "" && doc.OriginDomain != filter.OriginDomain {
			continue
		}
		out = append(out, *doc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ReceivedAt.After(out[j].ReceivedAt) })
	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return nil, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *MemStore) ClaimDocument(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[id]
	if !ok || doc.Status != models.StatusPending {
		return false, nil
	}
	doc.Status = models.StatusProcessing
	return true, nil
}

func (s *MemStore) CompleteDocument(_ context.Context, id string, info *models.ContentInfo, content *models.ContentJSON, proc *models.ProcessingInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[id]
	if !ok || doc.Status != models.StatusProcessing {
		return fmt.Errorf("%w: document %s not in procesando", core.ErrPersistenceFailure, id)
	}
	doc.Status = models.StatusProcessed
	doc.ContentInfo = info
	doc.ContentJSON = content
	doc.Processing = proc
	return nil
}

func (s *MemStore) FailDocument(_ context.Context, id string, proc *models.ProcessingInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[id]
	if !ok {
		return core.ErrDocumentNotFound
	}
	doc.Status = models.StatusError
	doc.Processing = proc
	return nil
}

func (s *MemStore) Heartbeat(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if doc, ok := s.docs[id]; ok {
		doc.LastHeartbeat = &at
	}
	return nil
}

func (s *MemStore) ListStaleProcessing(_ context.Context, olderThan time.Duration) ([]models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := time.Now().Add(-olderThan)
	var out []models.Document
	for _, doc := range s.docs {
		if doc.Status != models.StatusProcessing {
			continue
		}
		if doc.LastHeartbeat == nil || doc.LastHeartbeat.Before(cutoff) {
			out = append(out, *doc)
		}
	}
	return out, nil
}

func (s *MemStore) DeleteDocument(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[id]
	if !ok {
		return core.ErrDocumentNotFound
	}
	if doc.Status == models.StatusProcessing {
		return core.ErrDocumentBusy
	}
	delete(s.docs, id)
	delete(s.frags, id)
	return nil
}

func (s *MemStore) InsertFragments(_ context.Context, frags []models.Fragment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range frags {
		s.frags[f.DocumentID] = append(s.frags[f.DocumentID], f)
	}
	return nil
}

func (s *MemStore) FragmentsByDocument(_ context.Context, documentID string) ([]models.Fragment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := append([]models.Fragment(nil), s.frags[documentID]...)
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (s *MemStore) SearchFragments(_ context.Context, documentID string, queryVec []float32, limit int) ([]models.Fragment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Fragment
	for _, f := range s.frags[documentID] {
		if f.Embedding != nil {
			out = append(out, f)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return l2(out[i].Embedding, queryVec) < l2(out[j].Embedding, queryVec)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemStore) Close() error { return nil }

func l2(a, b []float32) float64 {
	var sum float64
	for i := 0; i < len(a) && i < len(b); i++ {
		d := float64(a[i] - b[i])
		sum += d * d
	}
	return sum
}

// MemObjects is an in-memory core.ObjectClient.
type MemObjects struct {
	mu   sync.Mutex
	data map[string][]byte
}

var _ core.ObjectClient = (*MemObjects)(nil)

func NewMemObjects() *MemObjects {
	return &MemObjects{data: make(map[string][]byte)}
}

func (o *MemObjects) UploadFile(_ context.Context, bucket, key string, data []byte, _ string) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.data[bucket+"/"+key] = append([]byte(nil), data...)
	return fmt.Sprintf("https://%s.s3.us-east-2.amazonaws.com/%s", bucket, key), nil
}

func (o *MemObjects) GetFile(_ context.Context, bucket, key string) ([]byte, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	data, ok := o.data[bucket+"/"+key]
	if !ok {
		return nil, fmt.Errorf("object %s/%s not found", bucket, key)
	}
	return append([]byte(nil), data...), nil
}

func (o *MemObjects) DeleteFile(_ context.Context, bucket, key string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.data, bucket+"/"+key)
	return nil
}
