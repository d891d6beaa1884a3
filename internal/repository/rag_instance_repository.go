package repository

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"ragstack/internal/model"
)

type RAGInstanceRepository struct {
	db *gorm.DB
}

func NewRAGInstanceRepository(db *gorm.DB) *RAGInstanceRepository {
	return &RAGInstanceRepository{db: db}
}

func (r *RAGInstanceRepository) Create(inst *model.RAGInstance) error {
	if err := r.db.Create(inst).Error; err != nil {
		return fmt.Errorf("create rag instance failed: %w", err)
	}
	return nil
}

func (r *RAGInstanceRepository) GetByID(id uint) (*model.RAGInstance, error) {
	var inst model.RAGInstance
	if err := r.db.Where("id = ?", id).First(&inst).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get rag instance failed: %w", err)
	}
	return &inst, nil
}

func (r *RAGInstanceRepository) GetByIDAndUserID(id, userID uint) (*model.RAGInstance, error) {
	var inst model.RAGInstance
	if err := r.db.Where("id = ? AND user_id = ?", id, userID).First(&inst).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get rag instance failed: %w", err)
	}
	return &inst, nil
}

// GetByCollection looks an instance up by its vector-collection name
// (globally unique).
func (r *RAGInstanceRepository) GetByCollection(collection string) (*model.RAGInstance, error) {
	var inst model.RAGInstance
	if err := r.db.Where("collection = ?", collection).First(&inst).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get rag instance by collection failed: %w", err)
	}
	return &inst, nil
}

func (r *RAGInstanceRepository) ListByUserID(userID uint) ([]model.RAGInstance, error) {
	var list []model.RAGInstance
	if err := r.db.Where("user_id = ?", userID).Order("created_at DESC").Find(&list).Error; err != nil {
		return nil, fmt.Errorf("list rag instances failed: %w", err)
	}
	return list, nil
}

func (r *RAGInstanceRepository) UpdateStatus(id uint, status string) error {
	if err := r.db.Model(&model.RAGInstance{}).Where("id = ?", id).Update("status", status).Error; err != nil {
		return fmt.Errorf("update rag instance status failed: %w", err)
	}
	return nil
}

func (r *RAGInstanceRepository) SetDocumentCount(id uint, count int) error {
	if err := r.db.Model(&model.RAGInstance{}).Where("id = ?", id).Update("document_count", count).Error; err != nil {
		return fmt.Errorf("update rag instance document count failed: %w", err)
	}
	return nil
}

func (r *RAGInstanceRepository) DeleteByIDAndUserID(id, userID uint) error {
	if err := r.db.Where("id = ? AND user_id = ?", id, userID).Delete(&model.RAGInstance{}).Error; err != nil {
		return fmt.Errorf("delete rag instance failed: %w", err)
	}
	return nil
}
