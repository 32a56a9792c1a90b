package app

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"docuchat/internal/chunker"
	"docuchat/internal/model"
	"docuchat/internal/pkg/pdfextract"
)

// MaxUploadBytes caps a single PDF upload.
const MaxUploadBytes = 10 << 20

// embedBatchSize bounds one embedding request so large documents do not hit
// provider payload limits.
const embedBatchSize = 10

type (
	BatchEmbedder interface {
		EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	}

	DocumentStore interface {
		CreateWithSegments(ctx context.Context, doc *model.Document, chunks []string, embeddings [][]float32) error
		ListByUserID(ctx context.Context, userID uint) ([]model.Document, error)
		GetByIDAndUserID(ctx context.Context, documentID, userID uint) (*model.Document, error)
		DeleteByIDAndUserID(ctx context.Context, documentID, userID uint) error
	}

	LinkStore interface {
		Link(ctx context.Context, sessionID, documentID uint) error
		Unlink(ctx context.Context, sessionID, documentID uint) error
		ListDocuments(ctx context.Context, sessionID uint) ([]model.Document, error)
	}

	SegmentCounter interface {
		CountByDocumentID(ctx context.Context, documentID uint) (int64, error)
	}
)

// DocumentInfo is a document together with its stored segment count.
type DocumentInfo struct {
	model.Document
	ChunkCount int64 `json:"chunk_count"`
}

// IngestConfig tunes document chunking.
type IngestConfig struct {
	ChunkSize    int
	ChunkOverlap int
}

type IngestService struct {
	documents DocumentStore
	links     LinkStore
	sessions  SessionStore
	segments  SegmentCounter
	embedder  BatchEmbedder

	cfg IngestConfig
	log *logrus.Logger
}

func NewIngestService(documents DocumentStore, links LinkStore, sessions SessionStore, segments SegmentCounter, embedder BatchEmbedder, cfg IngestConfig, log *logrus.Logger) *IngestService {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 1000
	}
	if cfg.ChunkOverlap < 0 {
		cfg.ChunkOverlap = 0
	}
	if log == nil {
		log = logrus.New()
	}
	return &IngestService{
		documents: documents,
		links:     links,
		sessions:  sessions,
		segments:  segments,
		embedder:  embedder,
		cfg:       cfg,
		log:       log,
	}
}

// IngestPDF runs the full ingestion pipeline for one uploaded PDF: extract
// text, chunk it, embed every chunk, and persist the document with all its
// segments in one transaction. Nothing is stored if any step fails.
func (s *IngestService) IngestPDF(ctx context.Context, userID uint, filename string, data []byte) (*DocumentInfo, error) {
	if userID == 0 {
		return nil, ErrValidation
	}
	filename = strings.TrimSpace(filename)
	if filename == "" {
		return nil, fmt.Errorf("filename must not be empty: %w", ErrValidation)
	}
	if !strings.HasSuffix(strings.ToLower(filename), ".pdf") {
		return nil, fmt.Errorf("only PDF uploads are supported: %w", ErrValidation)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("empty upload: %w", ErrValidation)
	}
	if len(data) > MaxUploadBytes {
		return nil, fmt.Errorf("upload exceeds %d bytes: %w", MaxUploadBytes, ErrValidation)
	}

	text, pages, err := pdfextract.ExtractText(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("extract pdf text: %v: %w", err, ErrValidation)
	}
	text = sanitizeText(text)
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("document has no extractable text: %w", ErrValidation)
	}

	chunks, err := chunker.Chunk(text, s.cfg.ChunkSize, s.cfg.ChunkOverlap)
	if err != nil {
		return nil, fmt.Errorf("chunk document: %v: %w", err, ErrValidation)
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("document produced no chunks: %w", ErrValidation)
	}

	embeddings, err := s.embedChunks(ctx, chunks)
	if err != nil {
		return nil, fmt.Errorf("embed chunks: %v: %w", err, ErrUpstream)
	}

	doc := &model.Document{
		UserID:    userID,
		Filename:  filename,
		ByteSize:  int64(len(data)),
		PageCount: pages,
	}
	if err := s.documents.CreateWithSegments(ctx, doc, chunks, embeddings); err != nil {
		return nil, fmt.Errorf("persist document: %v: %w", err, ErrPersistence)
	}

	s.log.WithFields(logrus.Fields{
		"user_id":     userID,
		"document_id": doc.ID,
		"chunks":      len(chunks),
		"pages":       pages,
	}).Info("document ingested")
	return &DocumentInfo{Document: *doc, ChunkCount: int64(len(chunks))}, nil
}

// embedChunks embeds in fixed-size batches, preserving chunk order.
func (s *IngestService) embedChunks(ctx context.Context, chunks []string) ([][]float32, error) {
	embeddings := make([][]float32, 0, len(chunks))
	for start := 0; start < len(chunks); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch, err := s.embedder.EmbedBatch(ctx, chunks[start:end])
		if err != nil {
			return nil, err
		}
		embeddings = append(embeddings, batch...)
	}
	return embeddings, nil
}

func (s *IngestService) ListDocuments(ctx context.Context, userID uint) ([]model.Document, error) {
	if userID == 0 {
		return nil, ErrValidation
	}
	docs, err := s.documents.ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %v: %w", err, ErrPersistence)
	}
	return docs, nil
}

func (s *IngestService) GetDocument(ctx context.Context, userID, documentID uint) (*DocumentInfo, error) {
	doc, err := s.ownedDocument(ctx, userID, documentID)
	if err != nil {
		return nil, err
	}
	count, err := s.segments.CountByDocumentID(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("count segments: %v: %w", err, ErrPersistence)
	}
	return &DocumentInfo{Document: *doc, ChunkCount: count}, nil
}

// DeleteDocument removes the document together with its segments and any
// session links.
func (s *IngestService) DeleteDocument(ctx context.Context, userID, documentID uint) error {
	if _, err := s.ownedDocument(ctx, userID, documentID); err != nil {
		return err
	}
	if err := s.documents.DeleteByIDAndUserID(ctx, documentID, userID); err != nil {
		return fmt.Errorf("delete document: %v: %w", err, ErrPersistence)
	}
	return nil
}

// LinkDocument attaches a document to a chat session's retrieval scope. Both
// the session and the document must belong to the caller. Linking twice is a
// no-op.
func (s *IngestService) LinkDocument(ctx context.Context, userID, sessionID, documentID uint) error {
	if err := s.checkLinkOwnership(ctx, userID, sessionID, documentID); err != nil {
		return err
	}
	if err := s.links.Link(ctx, sessionID, documentID); err != nil {
		return fmt.Errorf("link document: %v: %w", err, ErrPersistence)
	}
	return nil
}

func (s *IngestService) UnlinkDocument(ctx context.Context, userID, sessionID, documentID uint) error {
	if err := s.checkLinkOwnership(ctx, userID, sessionID, documentID); err != nil {
		return err
	}
	if err := s.links.Unlink(ctx, sessionID, documentID); err != nil {
		return fmt.Errorf("unlink document: %v: %w", err, ErrPersistence)
	}
	return nil
}

func (s *IngestService) ListSessionDocuments(ctx context.Context, userID, sessionID uint) ([]model.Document, error) {
	session, err := s.sessions.GetByIDAndUserID(ctx, sessionID, userID)
	if err != nil {
		return nil, fmt.Errorf("load session: %v: %w", err, ErrPersistence)
	}
	if session == nil {
		return nil, fmt.Errorf("chat session %d: %w", sessionID, ErrNotFound)
	}
	docs, err := s.links.ListDocuments(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list session documents: %v: %w", err, ErrPersistence)
	}
	return docs, nil
}

func (s *IngestService) checkLinkOwnership(ctx context.Context, userID, sessionID, documentID uint) error {
	if userID == 0 || sessionID == 0 || documentID == 0 {
		return ErrValidation
	}
	session, err := s.sessions.GetByIDAndUserID(ctx, sessionID, userID)
	if err != nil {
		return fmt.Errorf("load session: %v: %w", err, ErrPersistence)
	}
	if session == nil {
		return fmt.Errorf("chat session %d: %w", sessionID, ErrNotFound)
	}
	if _, err := s.ownedDocument(ctx, userID, documentID); err != nil {
		return err
	}
	return nil
}

func (s *IngestService) ownedDocument(ctx context.Context, userID, documentID uint) (*model.Document, error) {
	if userID == 0 || documentID == 0 {
		return nil, ErrValidation
	}
	doc, err := s.documents.GetByIDAndUserID(ctx, documentID, userID)
	if err != nil {
		return nil, fmt.Errorf("load document: %v: %w", err, ErrPersistence)
	}
	if doc == nil {
		return nil, fmt.Errorf("document %d: %w", documentID, ErrNotFound)
	}
	return doc, nil
}

// sanitizeText strips NUL bytes, which Postgres text columns reject.
func sanitizeText(text string) string {
	return strings.ReplaceAll(text, "\x00", "")
}
