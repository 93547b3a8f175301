package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kursadbilgin/sms-dispatch/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	defaultFailedListLimit = 500
	maxFailedListLimit     = 5000
)

type FailedMessageListParams struct {
	Resolved *bool
	Limit    int
}

type FailedMessageRepository interface {
	CreateBatch(ctx context.Context, messages []*domain.FailedMessage) error
	List(ctx context.Context, params FailedMessageListParams) ([]domain.FailedMessage, error)
	GetByIDs(ctx context.Context, ids []int64) ([]domain.FailedMessage, error)
	// ClaimForResend claims the pending, unclaimed ids for one resend and
	// returns the ids it claimed. Claims older than staleBefore are taken over.
	ClaimForResend(ctx context.Context, ids []int64, claimedAt time.Time, staleBefore time.Time) ([]int64, error)
	ReleaseClaims(ctx context.Context, ids []int64) error
	MarkResolved(ctx context.Context, id int64, resolvedAt time.Time) error
	RecordFailure(ctx context.Context, id int64, lastError string) error
}

type GormFailedMessageRepo struct {
	db *gorm.DB
}

func NewGormFailedMessageRepo(db *gorm.DB) *GormFailedMessageRepo {
	return &GormFailedMessageRepo{db: db}
}

func (r *GormFailedMessageRepo) CreateBatch(ctx context.Context, messages []*domain.FailedMessage) error {
	models := make([]FailedMessageModel, 0, len(messages))
	modelIndexes := make([]int, 0, len(messages))
	for i, m := range messages {
		model := failedMessageModelFromDomain(m)
		if model != nil {
			models = append(models, *model)
			modelIndexes = append(modelIndexes, i)
		}
	}

	if len(models) == 0 {
		return nil
	}

	if err := r.db.WithContext(ctx).CreateInBatches(&models, 100).Error; err != nil {
		return err
	}

	for i := range models {
		idx := modelIndexes[i]
		if idx < len(messages) && messages[idx] != nil {
			*messages[idx] = *failedMessageModelToDomain(&models[i])
		}
	}

	return nil
}

// List returns failure records newest first.
func (r *GormFailedMessageRepo) List(ctx context.Context, params FailedMessageListParams) ([]domain.FailedMessage, error) {
	query := r.db.WithContext(ctx).Model(&FailedMessageModel{})
	if params.Resolved != nil {
		query = query.Where("resolved = ?", *params.Resolved)
	}

	limit := params.Limit
	if limit < 1 {
		limit = defaultFailedListLimit
	}
	limit = min(limit, maxFailedListLimit)

	var models []FailedMessageModel
	err := query.
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	messages := make([]domain.FailedMessage, 0, len(models))
	for i := range models {
		messages = append(messages, *failedMessageModelToDomain(&models[i]))
	}
	return messages, nil
}

// GetByIDs returns the records that exist, ordered by id. Missing ids are simply absent.
func (r *GormFailedMessageRepo) GetByIDs(ctx context.Context, ids []int64) ([]domain.FailedMessage, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var models []FailedMessageModel
	err := r.db.WithContext(ctx).
		Where("id IN ?", ids).
		Order("id ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	messages := make([]domain.FailedMessage, 0, len(models))
	for i := range models {
		messages = append(messages, *failedMessageModelToDomain(&models[i]))
	}
	return messages, nil
}

func (r *GormFailedMessageRepo) ClaimForResend(ctx context.Context, ids []int64, claimedAt time.Time, staleBefore time.Time) ([]int64, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var claimed []int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var models []FailedMessageModel
		err := tx.
			Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Select("id").
			Where("id IN ? AND resolved = ?", ids, false).
			Where("(resend_claimed_at IS NULL OR resend_claimed_at < ?)", staleBefore).
			Order("id ASC").
			Find(&models).Error
		if err != nil {
			return err
		}
		if len(models) == 0 {
			return nil
		}

		claimed = make([]int64, 0, len(models))
		for i := range models {
			claimed = append(claimed, models[i].ID)
		}
		return tx.Model(&FailedMessageModel{}).
			Where("id IN ?", claimed).
			Update("resend_claimed_at", claimedAt).Error
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func (r *GormFailedMessageRepo) ReleaseClaims(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Model(&FailedMessageModel{}).
		Where("id IN ?", ids).
		Update("resend_claimed_at", nil).Error
}

// MarkResolved flips resolved exactly once; a second call reports ErrAlreadyResolved.
func (r *GormFailedMessageRepo) MarkResolved(ctx context.Context, id int64, resolvedAt time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&FailedMessageModel{}).
		Where("id = ? AND resolved = ?", id, false).
		Updates(map[string]any{
			"resolved":      true,
			"resolved_at":   resolvedAt,
			"attempt_count":     gorm.Expr("attempt_count + 1"),
			"last_error":        nil,
			"resend_claimed_at": nil,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 1 {
		return nil
	}
	return r.missingOrResolved(ctx, id)
}

func (r *GormFailedMessageRepo) RecordFailure(ctx context.Context, id int64, lastError string) error {
	result := r.db.WithContext(ctx).
		Model(&FailedMessageModel{}).
		Where("id = ? AND resolved = ?", id, false).
		Updates(map[string]any{
			"attempt_count":     gorm.Expr("attempt_count + 1"),
			"last_error":        lastError,
			"resend_claimed_at": nil,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 1 {
		return nil
	}
	return r.missingOrResolved(ctx, id)
}

func (r *GormFailedMessageRepo) missingOrResolved(ctx context.Context, id int64) error {
	var model FailedMessageModel
	err := r.db.WithContext(ctx).Select("id", "resolved").First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.ErrNotFound
	}
	if err != nil {
		return err
	}
	if model.Resolved {
		return domain.NewAlreadyResolvedError([]int64{id})
	}
	return fmt.Errorf("%w: failed message %d was not updated", domain.ErrConflict, id)
}
