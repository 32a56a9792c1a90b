package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"

	"docuchat/internal/model"
)

type DocumentRepository struct {
	db *gorm.DB
}

func NewDocumentRepository(db *gorm.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

// CreateWithSegments persists the document row and every segment in one
// transaction. Any failure rolls the whole document back; no orphan segments
// survive a partial ingestion.
func (r *DocumentRepository) CreateWithSegments(ctx context.Context, doc *model.Document, contents []string, vectors [][]float32) error {
	if len(contents) != len(vectors) {
		return fmt.Errorf("segment content/vector count mismatch: %d vs %d", len(contents), len(vectors))
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(doc).Error; err != nil {
			return err
		}
		segments := make([]model.Segment, len(contents))
		for i := range contents {
			segments[i] = model.Segment{
				DocumentID: doc.ID,
				UserID:     doc.UserID,
				Filename:   doc.Filename,
				ChunkIndex: i,
				Content:    contents[i],
				Embedding:  pgvector.NewVector(vectors[i]),
			}
		}
		if len(segments) == 0 {
			return nil
		}
		return tx.Create(&segments).Error
	})
	if err != nil {
		return fmt.Errorf("create document with segments failed: %w", err)
	}
	return nil
}

func (r *DocumentRepository) ListByUserID(ctx context.Context, userID uint) ([]model.Document, error) {
	var docs []model.Document
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at DESC").Find(&docs).Error; err != nil {
		return nil, fmt.Errorf("list documents failed: %w", err)
	}
	return docs, nil
}

func (r *DocumentRepository) GetByIDAndUserID(ctx context.Context, id, userID uint) (*model.Document, error) {
	var doc model.Document
	if err := r.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&doc).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get document failed: %w", err)
	}
	return &doc, nil
}

// DeleteByIDAndUserID removes the document, its segments, and any session
// links, in one transaction.
func (r *DocumentRepository) DeleteByIDAndUserID(ctx context.Context, id, userID uint) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ? AND user_id = ?", id, userID).Delete(&model.Document{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		if err := tx.Where("document_id = ?", id).Delete(&model.Segment{}).Error; err != nil {
			return err
		}
		return tx.Where("document_id = ?", id).Delete(&model.SessionDocument{}).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		return fmt.Errorf("delete document failed: %w", err)
	}
	return nil
}
