package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/Ghepes/checkout-ui-app/internal/model"
)

type TransferAttemptRepository interface {
	Record(ctx context.Context, attempt *model.TransferAttempt) error
	ListFailed(ctx context.Context) ([]*model.TransferAttempt, error)
}

type transferAttemptRepoImpl struct {
	db *gorm.DB
}

func NewTransferAttemptRepository(db *gorm.DB) TransferAttemptRepository {
	return &transferAttemptRepoImpl{db: db}
}

func (r *transferAttemptRepoImpl) Record(ctx context.Context, attempt *model.TransferAttempt) error {
	return r.db.WithContext(ctx).Create(attempt).Error
}

func (r *transferAttemptRepoImpl) ListFailed(ctx context.Context) ([]*model.TransferAttempt, error) {
	var attempts []*model.TransferAttempt
	err := r.db.WithContext(ctx).
		Where("status = ?", model.TransferStatusFailed).
		Order("created_at DESC").
		Find(&attempts).Error

	if err != nil {
		return nil, err
	}

	return attempts, nil
}
