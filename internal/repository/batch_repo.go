package repository

import (
	"context"
	"errors"

	"github.com/kursadbilgin/sms-dispatch/internal/domain"
	"gorm.io/gorm"
)

type BatchRepository interface {
	Create(ctx context.Context, b *domain.BatchRecord) error
	GetByID(ctx context.Context, id string) (*domain.BatchRecord, error)
	Complete(ctx context.Context, id string, sent int, failed int) error
}

type GormBatchRepo struct {
	db *gorm.DB
}

func NewGormBatchRepo(db *gorm.DB) *GormBatchRepo {
	return &GormBatchRepo{db: db}
}

func (r *GormBatchRepo) Create(ctx context.Context, b *domain.BatchRecord) error {
	model := batchModelFromDomain(b)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	if b != nil {
		*b = *batchModelToDomain(model)
	}
	return nil
}

func (r *GormBatchRepo) GetByID(ctx context.Context, id string) (*domain.BatchRecord, error) {
	var model DispatchBatchModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return batchModelToDomain(&model), nil
}

// Complete stores the final counters and the status derived from them.
func (r *GormBatchRepo) Complete(ctx context.Context, id string, sent int, failed int) error {
	result := r.db.WithContext(ctx).
		Model(&DispatchBatchModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"sent_count":   sent,
			"failed_count": failed,
			"status":       domain.StatusFor(sent, failed),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}
