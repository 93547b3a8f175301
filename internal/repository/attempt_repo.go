package repository

import (
	"context"

	"github.com/kursadbilgin/sms-dispatch/internal/domain"
	"gorm.io/gorm"
)

type AttemptRepository interface {
	CreateBatch(ctx context.Context, attempts []*domain.DeliveryAttempt) error
	GetByBatchID(ctx context.Context, batchID string) ([]domain.DeliveryAttempt, error)
}

type GormAttemptRepo struct {
	db *gorm.DB
}

func NewGormAttemptRepo(db *gorm.DB) *GormAttemptRepo {
	return &GormAttemptRepo{db: db}
}

func (r *GormAttemptRepo) CreateBatch(ctx context.Context, attempts []*domain.DeliveryAttempt) error {
	models := make([]DeliveryAttemptModel, 0, len(attempts))
	for _, a := range attempts {
		if model := attemptModelFromDomain(a); model != nil {
			models = append(models, *model)
		}
	}
	if len(models) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).CreateInBatches(&models, 100).Error
}

func (r *GormAttemptRepo) GetByBatchID(ctx context.Context, batchID string) ([]domain.DeliveryAttempt, error) {
	var models []DeliveryAttemptModel
	err := r.db.WithContext(ctx).
		Where("batch_id = ?", batchID).
		Order("created_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	attempts := make([]domain.DeliveryAttempt, 0, len(models))
	for i := range models {
		attempts = append(attempts, *attemptModelToDomain(&models[i]))
	}

	return attempts, nil
}
