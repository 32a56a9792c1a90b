package repository

import (
	"context"
	"fmt"

	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"

	"docuchat/internal/model"
)

type SegmentRepository struct {
	db *gorm.DB
}

// SegmentFilter restricts nearest-neighbor candidates. A zero UserID leaves
// the search unscoped; the chat path always sets it.
type SegmentFilter struct {
	UserID      uint
	DocumentIDs []uint
}

// SegmentHit is one ranked result. Distance is cosine distance: 0 identical,
// 2 opposite.
type SegmentHit struct {
	model.Segment
	Distance float64 `json:"distance"`
}

func NewSegmentRepository(db *gorm.DB) *SegmentRepository {
	return &SegmentRepository{db: db}
}

// Search returns the topN segments nearest to queryVec, ascending by cosine
// distance with ties broken by (document_id, chunk_index) so the order is
// deterministic. Fewer candidates than topN is not an error.
func (r *SegmentRepository) Search(ctx context.Context, queryVec []float32, topN int, filter SegmentFilter) ([]SegmentHit, error) {
	if topN <= 0 {
		return nil, fmt.Errorf("top n must be positive, got %d", topN)
	}

	q := r.db.WithContext(ctx).
		Model(&model.Segment{}).
		Select("*, embedding <=> ? AS distance", pgvector.NewVector(queryVec))
	if filter.UserID != 0 {
		q = q.Where("user_id = ?", filter.UserID)
	}
	if len(filter.DocumentIDs) > 0 {
		q = q.Where("document_id IN ?", filter.DocumentIDs)
	}

	var hits []SegmentHit
	if err := q.Order("distance ASC, document_id ASC, chunk_index ASC").Limit(topN).Find(&hits).Error; err != nil {
		return nil, fmt.Errorf("segment search failed: %w", err)
	}
	return hits, nil
}

func (r *SegmentRepository) CountByDocumentID(ctx context.Context, documentID uint) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&model.Segment{}).Where("document_id = ?", documentID).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count segments failed: %w", err)
	}
	return count, nil
}
