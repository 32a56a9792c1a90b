package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"docuchat/internal/model"
)

type MessageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// AppendTurn inserts the user query and the assistant answer as one
// transaction. A turn is never half-written: either both rows commit or
// neither does.
func (r *MessageRepository) AppendTurn(ctx context.Context, sessionID uint, userID uint, query, answer string) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		userMsg := model.ChatMessage{
			SessionID: sessionID,
			UserID:    &userID,
			Role:      model.RoleUser,
			Content:   query,
		}
		if err := tx.Create(&userMsg).Error; err != nil {
			return err
		}
		assistantMsg := model.ChatMessage{
			SessionID: sessionID,
			Role:      model.RoleAssistant,
			Content:   answer,
		}
		return tx.Create(&assistantMsg).Error
	})
	if err != nil {
		return fmt.Errorf("append turn failed: %w", err)
	}
	return nil
}

// ListRecentBySessionID returns up to limit messages, most recent first.
// Callers needing chronological order must reverse.
func (r *MessageRepository) ListRecentBySessionID(ctx context.Context, sessionID uint, limit int) ([]model.ChatMessage, error) {
	if limit <= 0 {
		limit = 10
	}
	var messages []model.ChatMessage
	if err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&messages).Error; err != nil {
		return nil, fmt.Errorf("list recent messages failed: %w", err)
	}
	return messages, nil
}

// ListBySessionID returns all messages in chronological order.
func (r *MessageRepository) ListBySessionID(ctx context.Context, sessionID uint) ([]model.ChatMessage, error) {
	var messages []model.ChatMessage
	if err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at ASC, id ASC").
		Find(&messages).Error; err != nil {
		return nil, fmt.Errorf("list messages failed: %w", err)
	}
	return messages, nil
}
