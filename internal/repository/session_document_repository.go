package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"docuchat/internal/model"
)

type SessionDocumentRepository struct {
	db *gorm.DB
}

func NewSessionDocumentRepository(db *gorm.DB) *SessionDocumentRepository {
	return &SessionDocumentRepository{db: db}
}

// Link associates a document with a session. Linking an already-linked
// document is a no-op success.
func (r *SessionDocumentRepository) Link(ctx context.Context, sessionID, documentID uint) error {
	link := model.SessionDocument{SessionID: sessionID, DocumentID: documentID}
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&link).Error; err != nil {
		return fmt.Errorf("link document to session failed: %w", err)
	}
	return nil
}

func (r *SessionDocumentRepository) Unlink(ctx context.Context, sessionID, documentID uint) error {
	if err := r.db.WithContext(ctx).
		Where("session_id = ? AND document_id = ?", sessionID, documentID).
		Delete(&model.SessionDocument{}).Error; err != nil {
		return fmt.Errorf("unlink document from session failed: %w", err)
	}
	return nil
}

// ListDocumentIDs returns the ids of documents linked to the session.
func (r *SessionDocumentRepository) ListDocumentIDs(ctx context.Context, sessionID uint) ([]uint, error) {
	var ids []uint
	if err := r.db.WithContext(ctx).
		Model(&model.SessionDocument{}).
		Where("session_id = ?", sessionID).
		Order("document_id ASC").
		Pluck("document_id", &ids).Error; err != nil {
		return nil, fmt.Errorf("list linked document ids failed: %w", err)
	}
	return ids, nil
}

// ListDocuments returns the documents linked to the session.
func (r *SessionDocumentRepository) ListDocuments(ctx context.Context, sessionID uint) ([]model.Document, error) {
	var docs []model.Document
	err := r.db.WithContext(ctx).
		Model(&model.Document{}).
		Joins("JOIN session_documents ON session_documents.document_id = documents.id").
		Where("session_documents.session_id = ?", sessionID).
		Order("documents.created_at DESC").
		Find(&docs).Error
	if err != nil {
		return nil, fmt.Errorf("list linked documents failed: %w", err)
	}
	return docs, nil
}
