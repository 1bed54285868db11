package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"

	"DocFlow/internal/models"
	"DocFlow/pkg/logger"
)

type memDocStore struct {
	docs map[string]*models.DocumentRecord
}

func newMemDocStore() *memDocStore {
	return &memDocStore{docs: map[string]*models.DocumentRecord{}}
}

func (s *memDocStore) Create(ctx context.Context, doc *models.DocumentRecord) error {
	s.docs[doc.ID] = doc
	return nil
}
func (s *memDocStore) GetByID(ctx context.Context, id string) (*models.DocumentRecord, error) {
	doc, ok := s.docs[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return doc, nil
}
func (s *memDocStore) GetByUser(ctx context.Context, userID string, page, limit int) ([]*models.DocumentRecord, error) {
	var out []*models.DocumentRecord
	for _, doc := range s.docs {
		if doc.UserID == userID {
			out = append(out, doc)
		}
	}
	return out, nil
}
func (s *memDocStore) GetByTopic(ctx context.Context, userID, topicID string) ([]*models.DocumentRecord, error) {
	var out []*models.DocumentRecord
	for _, doc := range s.docs {
		if doc.UserID == userID && doc.TopicID == topicID {
			out = append(out, doc)
		}
	}
	return out, nil
}
func (s *memDocStore) Delete(ctx context.Context, id string) error {
	delete(s.docs, id)
	return nil
}
func (s *memDocStore) DeleteByUser(ctx context.Context, userID string) error {
	for id, doc := range s.docs {
		if doc.UserID == userID {
			delete(s.docs, id)
		}
	}
	return nil
}
func (s *memDocStore) SetStatus(ctx context.Context, documentID string, status models.DocumentStatus) error {
	if doc, ok := s.docs[documentID]; ok {
		doc.Status = status
	}
	return nil
}
func (s *memDocStore) SetDone(ctx context.Context, documentID string, chunkCount int) error {
	if doc, ok := s.docs[documentID]; ok {
		doc.Status = models.StatusDone
		doc.ChunkCount = chunkCount
	}
	return nil
}
func (s *memDocStore) SetFailed(ctx context.Context, documentID string, reason string) error {
	if doc, ok := s.docs[documentID]; ok {
		doc.Status = models.StatusFailed
		doc.ErrorMessage = reason
	}
	return nil
}

type memTopicStore struct {
	topics map[string]*models.TopicRecord
}

func newMemTopicStore() *memTopicStore {
	return &memTopicStore{topics: map[string]*models.TopicRecord{}}
}

func (s *memTopicStore) Create(ctx context.Context, topic *models.TopicRecord) error {
	s.topics[topic.ID] = topic
	return nil
}
func (s *memTopicStore) GetByID(ctx context.Context, id string) (*models.TopicRecord, error) {
	topic, ok := s.topics[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return topic, nil
}
func (s *memTopicStore) GetByUser(ctx context.Context, userID string) ([]*models.TopicRecord, error) {
	var out []*models.TopicRecord
	for _, topic := range s.topics {
		if topic.UserID == userID {
			out = append(out, topic)
		}
	}
	return out, nil
}
func (s *memTopicStore) Delete(ctx context.Context, id string) error {
	delete(s.topics, id)
	return nil
}
func (s *memTopicStore) DeleteByUser(ctx context.Context, userID string) error {
	for id, topic := range s.topics {
		if topic.UserID == userID {
			delete(s.topics, id)
		}
	}
	return nil
}

type memObjects struct {
	stored  map[string]bool
	removed []string
}

func newMemObjects() *memObjects { return &memObjects{stored: map[string]bool{}} }

func (o *memObjects) Download(ctx context.Context, objectKey, localPath string) error { return nil }
func (o *memObjects) Upload(ctx context.Context, objectKey, localPath, contentType string) error {
	o.stored[objectKey] = true
	return nil
}
func (o *memObjects) Remove(ctx context.Context, objectKey string) error {
	o.removed = append(o.removed, objectKey)
	delete(o.stored, objectKey)
	return nil
}

type memIndex struct {
	docDeletes   []string
	topicDeletes []string
	purged       []string
}

func (m *memIndex) Upsert(ctx context.Context, chunks []*models.ChunkData, embeddings [][]float32, tenant models.TenantContext) (int, error) {
	return len(chunks), nil
}
func (m *memIndex) Query(ctx context.Context, embedding []float32, userID, topicID string, topK int) ([]*models.ChunkData, error) {
	return nil, nil
}
func (m *memIndex) DeleteByDocument(ctx context.Context, userID, documentID string) error {
	m.docDeletes = append(m.docDeletes, documentID)
	return nil
}
func (m *memIndex) DeleteByTopic(ctx context.Context, userID, topicID string) error {
	m.topicDeletes = append(m.topicDeletes, topicID)
	return nil
}
func (m *memIndex) PurgeUser(ctx context.Context, userID string) error {
	m.purged = append(m.purged, userID)
	return nil
}

type memPublisher struct {
	published []models.IngestTask
	err       error
}

func (p *memPublisher) Publish(ctx context.Context, task models.IngestTask) error {
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, task)
	return nil
}
func (p *memPublisher) Close() error { return nil }

type fixture struct {
	svc       *IngestionService
	docs      *memDocStore
	topics    *memTopicStore
	objects   *memObjects
	index     *memIndex
	publisher *memPublisher
}

func newFixture() *fixture {
	logger.Init(logrus.ErrorLevel)
	f := &fixture{
		docs:      newMemDocStore(),
		topics:    newMemTopicStore(),
		objects:   newMemObjects(),
		index:     &memIndex{},
		publisher: &memPublisher{},
	}
	f.svc = NewIngestionService(f.docs, f.topics, f.objects, f.index, f.publisher, nil, logger.New("service-test", "", ""))
	return f
}

func (f *fixture) addTopic(t *testing.T, userID string) *models.TopicRecord {
	t.Helper()
	topic, err := f.svc.CreateTopic(context.Background(), userID, "reports", "")
	if err != nil {
		t.Fatalf("CreateTopic() error = %v", err)
	}
	return topic
}

func tempUploadFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "report.pdf")
	if err := os.WriteFile(path, []byte("%PDF-1.4 test"), 0o644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	return path
}

func TestUploadDocument(t *testing.T) {
	f := newFixture()
	topic := f.addTopic(t, "alice")

	doc, err := f.svc.UploadDocument(context.Background(), "alice", topic.ID, "report.pdf", tempUploadFile(t))
	if err != nil {
		t.Fatalf("UploadDocument() error = %v", err)
	}

	if doc.Status != models.StatusPending {
		t.Errorf("status = %q, want pending", doc.Status)
	}
	if !f.objects.stored[doc.FilePath] {
		t.Errorf("file should be stored under %q", doc.FilePath)
	}
	if len(f.publisher.published) != 1 || f.publisher.published[0].DocumentID != doc.ID {
		t.Errorf("published = %+v", f.publisher.published)
	}
	if _, err := f.docs.GetByID(context.Background(), doc.ID); err != nil {
		t.Errorf("record not persisted: %v", err)
	}
}

func TestUploadDocument_WrongTopicOwner(t *testing.T) {
	f := newFixture()
	topic := f.addTopic(t, "alice")

	_, err := f.svc.UploadDocument(context.Background(), "mallory", topic.ID, "report.pdf", tempUploadFile(t))
	if !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}

func TestUploadDocument_PublishFailureMarksFailed(t *testing.T) {
	f := newFixture()
	f.publisher.err = errors.New("broker down")
	topic := f.addTopic(t, "alice")

	_, err := f.svc.UploadDocument(context.Background(), "alice", topic.ID, "report.pdf", tempUploadFile(t))
	if err == nil {
		t.Fatal("expected an error")
	}

	for _, doc := range f.docs.docs {
		if doc.Status != models.StatusFailed {
			t.Errorf("document status = %q, want failed", doc.Status)
		}
	}
}

func TestGetDocument_ScopedToUser(t *testing.T) {
	f := newFixture()
	topic := f.addTopic(t, "alice")
	doc, err := f.svc.UploadDocument(context.Background(), "alice", topic.ID, "report.pdf", tempUploadFile(t))
	if err != nil {
		t.Fatalf("UploadDocument() error = %v", err)
	}

	if _, err := f.svc.GetDocument(context.Background(), "alice", doc.ID); err != nil {
		t.Errorf("owner lookup failed: %v", err)
	}
	if _, err := f.svc.GetDocument(context.Background(), "mallory", doc.ID); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("cross-user lookup error = %v, want ErrNotFound", err)
	}
}

func TestDeleteDocument_RemovesEverything(t *testing.T) {
	f := newFixture()
	topic := f.addTopic(t, "alice")
	doc, err := f.svc.UploadDocument(context.Background(), "alice", topic.ID, "report.pdf", tempUploadFile(t))
	if err != nil {
		t.Fatalf("UploadDocument() error = %v", err)
	}

	if err := f.svc.DeleteDocument(context.Background(), "alice", doc.ID); err != nil {
		t.Fatalf("DeleteDocument() error = %v", err)
	}

	if len(f.index.docDeletes) != 1 || f.index.docDeletes[0] != doc.ID {
		t.Errorf("index deletes = %v", f.index.docDeletes)
	}
	if len(f.objects.removed) != 1 {
		t.Errorf("object removals = %v", f.objects.removed)
	}
	if _, err := f.docs.GetByID(context.Background(), doc.ID); !errors.Is(err, models.ErrNotFound) {
		t.Error("record should be gone")
	}
}

func TestDeleteTopic_Cascades(t *testing.T) {
	f := newFixture()
	topic := f.addTopic(t, "alice")
	doc, err := f.svc.UploadDocument(context.Background(), "alice", topic.ID, "report.pdf", tempUploadFile(t))
	if err != nil {
		t.Fatalf("UploadDocument() error = %v", err)
	}

	if err := f.svc.DeleteTopic(context.Background(), "alice", topic.ID); err != nil {
		t.Fatalf("DeleteTopic() error = %v", err)
	}

	if len(f.index.topicDeletes) != 1 || f.index.topicDeletes[0] != topic.ID {
		t.Errorf("topic deletes = %v", f.index.topicDeletes)
	}
	if _, err := f.docs.GetByID(context.Background(), doc.ID); !errors.Is(err, models.ErrNotFound) {
		t.Error("document record should be gone")
	}
	if _, err := f.topics.GetByID(context.Background(), topic.ID); !errors.Is(err, models.ErrNotFound) {
		t.Error("topic record should be gone")
	}
}

func TestPurgeUser(t *testing.T) {
	f := newFixture()
	topic := f.addTopic(t, "alice")
	if _, err := f.svc.UploadDocument(context.Background(), "alice", topic.ID, "report.pdf", tempUploadFile(t)); err != nil {
		t.Fatalf("UploadDocument() error = %v", err)
	}

	if err := f.svc.PurgeUser(context.Background(), "alice"); err != nil {
		t.Fatalf("PurgeUser() error = %v", err)
	}

	if len(f.index.purged) != 1 || f.index.purged[0] != "alice" {
		t.Errorf("purged = %v", f.index.purged)
	}
	if docs, _ := f.docs.GetByUser(context.Background(), "alice", 1, 100); len(docs) != 0 {
		t.Errorf("documents remain after purge: %d", len(docs))
	}
	if topics, _ := f.topics.GetByUser(context.Background(), "alice"); len(topics) != 0 {
		t.Errorf("topics remain after purge: %d", len(topics))
	}
}

func TestReingestDocument_RejectsInFlight(t *testing.T) {
	f := newFixture()
	topic := f.addTopic(t, "alice")
	doc, err := f.svc.UploadDocument(context.Background(), "alice", topic.ID, "report.pdf", tempUploadFile(t))
	if err != nil {
		t.Fatalf("UploadDocument() error = %v", err)
	}

	// Still pending: not a terminal state.
	if _, err := f.svc.ReingestDocument(context.Background(), "alice", doc.ID); err == nil {
		t.Fatal("expected rejection for an in-flight document")
	}

	_ = f.docs.SetDone(context.Background(), doc.ID, 5)
	reDoc, err := f.svc.ReingestDocument(context.Background(), "alice", doc.ID)
	if err != nil {
		t.Fatalf("ReingestDocument() error = %v", err)
	}
	if reDoc.Status != models.StatusPending {
		t.Errorf("status = %q, want pending", reDoc.Status)
	}
	if len(f.publisher.published) != 2 {
		t.Errorf("published %d tasks, want 2", len(f.publisher.published))
	}
}

func TestCreateTopic_RequiresName(t *testing.T) {
	f := newFixture()
	_, err := f.svc.CreateTopic(context.Background(), "alice", "", "")
	var vErr *models.ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("error = %v, want *models.ValidationError", err)
	}
}
