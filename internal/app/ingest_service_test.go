package app

import (
	"context"
	"errors"
	"testing"

	"docuchat/internal/model"
)

type fakeDocuments struct {
	nextID uint
	docs   map[uint]*model.Document

	lastChunks     []string
	lastEmbeddings [][]float32
}

func newFakeDocuments() *fakeDocuments {
	return &fakeDocuments{nextID: 1, docs: make(map[uint]*model.Document)}
}

func (f *fakeDocuments) CreateWithSegments(_ context.Context, doc *model.Document, chunks []string, embeddings [][]float32) error {
	doc.ID = f.nextID
	f.nextID++
	f.docs[doc.ID] = doc
	f.lastChunks = chunks
	f.lastEmbeddings = embeddings
	return nil
}

func (f *fakeDocuments) ListByUserID(_ context.Context, userID uint) ([]model.Document, error) {
	var out []model.Document
	for _, d := range f.docs {
		if d.UserID == userID {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (f *fakeDocuments) GetByIDAndUserID(_ context.Context, documentID, userID uint) (*model.Document, error) {
	d, ok := f.docs[documentID]
	if !ok || d.UserID != userID {
		return nil, nil
	}
	return d, nil
}

func (f *fakeDocuments) DeleteByIDAndUserID(_ context.Context, documentID, _ uint) error {
	delete(f.docs, documentID)
	return nil
}

type fakeLinkStore struct {
	linked   map[[2]uint]bool
	unlinked [][2]uint
}

func newFakeLinkStore() *fakeLinkStore {
	return &fakeLinkStore{linked: make(map[[2]uint]bool)}
}

func (f *fakeLinkStore) Link(_ context.Context, sessionID, documentID uint) error {
	f.linked[[2]uint{sessionID, documentID}] = true
	return nil
}

func (f *fakeLinkStore) Unlink(_ context.Context, sessionID, documentID uint) error {
	f.unlinked = append(f.unlinked, [2]uint{sessionID, documentID})
	delete(f.linked, [2]uint{sessionID, documentID})
	return nil
}

func (f *fakeLinkStore) ListDocuments(_ context.Context, _ uint) ([]model.Document, error) {
	return nil, nil
}

type fakeBatchEmbedder struct {
	batchSizes []int
	err        error
}

func (f *fakeBatchEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.batchSizes = append(f.batchSizes, len(texts))
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(i)}
	}
	return out, nil
}

type fakeSegmentCounter struct {
	count int64
}

func (f *fakeSegmentCounter) CountByDocumentID(_ context.Context, _ uint) (int64, error) {
	return f.count, nil
}

type ingestFixture struct {
	svc      *IngestService
	docs     *fakeDocuments
	links    *fakeLinkStore
	sessions *fakeSessions
	counter  *fakeSegmentCounter
	embedder *fakeBatchEmbedder
}

func newIngestFixture() *ingestFixture {
	f := &ingestFixture{
		docs:     newFakeDocuments(),
		links:    newFakeLinkStore(),
		sessions: newFakeSessions(),
		counter:  &fakeSegmentCounter{},
		embedder: &fakeBatchEmbedder{},
	}
	f.svc = NewIngestService(f.docs, f.links, f.sessions, f.counter, f.embedder, IngestConfig{ChunkSize: 100, ChunkOverlap: 20}, nil)
	return f
}

func (f *ingestFixture) seedDocument(userID uint) *model.Document {
	doc := &model.Document{UserID: userID, Filename: "seed.pdf"}
	_ = f.docs.CreateWithSegments(context.Background(), doc, nil, nil)
	return doc
}

func TestIngestPDFRejectsNonPDFFilename(t *testing.T) {
	f := newIngestFixture()
	_, err := f.svc.IngestPDF(context.Background(), 1, "notes.txt", []byte("%PDF"))
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}

func TestIngestPDFRejectsEmptyUpload(t *testing.T) {
	f := newIngestFixture()
	_, err := f.svc.IngestPDF(context.Background(), 1, "doc.pdf", nil)
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}

func TestIngestPDFRejectsOversizedUpload(t *testing.T) {
	f := newIngestFixture()
	_, err := f.svc.IngestPDF(context.Background(), 1, "doc.pdf", make([]byte, MaxUploadBytes+1))
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}

func TestIngestPDFRejectsGarbageBytes(t *testing.T) {
	f := newIngestFixture()
	_, err := f.svc.IngestPDF(context.Background(), 1, "doc.pdf", []byte("not a pdf at all"))
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
	if len(f.docs.docs) != 0 {
		t.Errorf("document persisted despite extraction failure")
	}
}

func TestEmbedChunksBatchesAndPreservesOrder(t *testing.T) {
	f := newIngestFixture()
	chunks := make([]string, 23)
	for i := range chunks {
		chunks[i] = "chunk"
	}

	embeddings, err := f.svc.embedChunks(context.Background(), chunks)
	if err != nil {
		t.Fatalf("embedChunks: %v", err)
	}
	if len(embeddings) != 23 {
		t.Fatalf("got %d embeddings, want 23", len(embeddings))
	}

	want := []int{10, 10, 3}
	if len(f.embedder.batchSizes) != len(want) {
		t.Fatalf("batch sizes = %v, want %v", f.embedder.batchSizes, want)
	}
	for i, n := range want {
		if f.embedder.batchSizes[i] != n {
			t.Errorf("batch[%d] = %d, want %d", i, f.embedder.batchSizes[i], n)
		}
	}
}

func TestEmbedChunksPropagatesProviderError(t *testing.T) {
	f := newIngestFixture()
	f.embedder.err = errors.New("provider down")
	if _, err := f.svc.embedChunks(context.Background(), []string{"a"}); err == nil {
		t.Fatal("expected error")
	}
}

func TestLinkDocumentChecksOwnershipOfBoth(t *testing.T) {
	f := newIngestFixture()
	session := &model.ChatSession{UserID: 1}
	_ = f.sessions.Create(context.Background(), session)
	doc := f.seedDocument(1)
	foreignDoc := f.seedDocument(2)

	if err := f.svc.LinkDocument(context.Background(), 1, session.ID, doc.ID); err != nil {
		t.Fatalf("LinkDocument: %v", err)
	}
	if !f.links.linked[[2]uint{session.ID, doc.ID}] {
		t.Fatal("link not recorded")
	}

	if err := f.svc.LinkDocument(context.Background(), 1, session.ID, foreignDoc.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("foreign document err = %v, want ErrNotFound", err)
	}
	if err := f.svc.LinkDocument(context.Background(), 2, session.ID, foreignDoc.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("foreign session err = %v, want ErrNotFound", err)
	}
}

func TestUnlinkDocument(t *testing.T) {
	f := newIngestFixture()
	session := &model.ChatSession{UserID: 1}
	_ = f.sessions.Create(context.Background(), session)
	doc := f.seedDocument(1)

	if err := f.svc.LinkDocument(context.Background(), 1, session.ID, doc.ID); err != nil {
		t.Fatalf("LinkDocument: %v", err)
	}
	if err := f.svc.UnlinkDocument(context.Background(), 1, session.ID, doc.ID); err != nil {
		t.Fatalf("UnlinkDocument: %v", err)
	}
	if f.links.linked[[2]uint{session.ID, doc.ID}] {
		t.Fatal("link still present after unlink")
	}
}

func TestGetDocumentIncludesChunkCount(t *testing.T) {
	f := newIngestFixture()
	doc := f.seedDocument(1)
	f.counter.count = 7

	info, err := f.svc.GetDocument(context.Background(), 1, doc.ID)
	if err != nil {
		t.Fatalf("GetDocument: %v", err)
	}
	if info.ChunkCount != 7 {
		t.Errorf("chunk count = %d, want 7", info.ChunkCount)
	}
	if info.Filename != "seed.pdf" {
		t.Errorf("filename = %q", info.Filename)
	}
}

func TestDeleteDocumentRequiresOwnership(t *testing.T) {
	f := newIngestFixture()
	doc := f.seedDocument(1)

	if err := f.svc.DeleteDocument(context.Background(), 2, doc.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if err := f.svc.DeleteDocument(context.Background(), 1, doc.ID); err != nil {
		t.Fatalf("DeleteDocument: %v", err)
	}
}

func TestSanitizeTextStripsNULBytes(t *testing.T) {
	got := sanitizeText("ab\x00cd\x00")
	if got != "abcd" {
		t.Errorf("sanitizeText = %q, want %q", got, "abcd")
	}
}
