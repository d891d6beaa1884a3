package repository

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"ragstack/internal/model"
)

type DocumentRepository struct {
	db *gorm.DB
}

func NewDocumentRepository(db *gorm.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

func (r *DocumentRepository) Create(doc *model.Document) error {
	if err := r.db.Create(doc).Error; err != nil {
		return fmt.Errorf("create document failed: %w", err)
	}
	return nil
}

func (r *DocumentRepository) GetByIDAndUserID(id, userID uint) (*model.Document, error) {
	var doc model.Document
	if err := r.db.Where("id = ? AND user_id = ?", id, userID).First(&doc).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get document failed: %w", err)
	}
	return &doc, nil
}

func (r *DocumentRepository) ListByInstanceID(instanceID uint) ([]model.Document, error) {
	var list []model.Document
	if err := r.db.Where("rag_instance_id = ?", instanceID).Order("created_at ASC").Find(&list).Error; err != nil {
		return nil, fmt.Errorf("list documents failed: %w", err)
	}
	return list, nil
}

func (r *DocumentRepository) ListPendingByInstance(instanceID uint) ([]model.Document, error) {
	var list []model.Document
	err := r.db.Where("rag_instance_id = ? AND status = ?", instanceID, model.StatusPending).
		Order("created_at ASC").Find(&list).Error
	if err != nil {
		return nil, fmt.Errorf("list pending documents failed: %w", err)
	}
	return list, nil
}

func (r *DocumentRepository) MarkProcessing(id uint) error {
	err := r.db.Model(&model.Document{}).Where("id = ?", id).
		Update("status", model.StatusProcessing).Error
	if err != nil {
		return fmt.Errorf("mark document processing failed: %w", err)
	}
	return nil
}

// MarkCompleted records the reconciled point IDs and chunk count and stamps
// processed_at.
func (r *DocumentRepository) MarkCompleted(id uint, pointIDs []string, totalChunks int) error {
	doc := model.Document{}
	doc.SetPointIDs(pointIDs)
	now := time.Now()
	err := r.db.Model(&model.Document{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":        model.StatusCompleted,
		"point_ids":     doc.PointIDs,
		"total_chunks":  totalChunks,
		"processed_at":  &now,
		"error_message": "",
	}).Error
	if err != nil {
		return fmt.Errorf("mark document completed failed: %w", err)
	}
	return nil
}

func (r *DocumentRepository) MarkFailed(id uint, message string) error {
	err := r.db.Model(&model.Document{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":        model.StatusFailed,
		"error_message": message,
	}).Error
	if err != nil {
		return fmt.Errorf("mark document failed failed: %w", err)
	}
	return nil
}

func (r *DocumentRepository) CountByInstanceID(instanceID uint) (int64, error) {
	var count int64
	if err := r.db.Model(&model.Document{}).Where("rag_instance_id = ?", instanceID).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count documents failed: %w", err)
	}
	return count, nil
}

// DeleteByInstanceID removes all document rows of an instance (cascade step
// of instance deletion).
func (r *DocumentRepository) DeleteByInstanceID(instanceID uint) error {
	if err := r.db.Where("rag_instance_id = ?", instanceID).Delete(&model.Document{}).Error; err != nil {
		return fmt.Errorf("delete documents by instance failed: %w", err)
	}
	return nil
}
