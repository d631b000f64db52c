package repositories

import (
	"context"
	"errors"

	"pnptv_backend/internal/models"

	"gorm.io/gorm"
)

var ErrPlanNotFound = errors.New("subscription plan not found")

// PlanRepository — каталог планов. Для платежного ядра это read-only
// справочник, цены здесь никогда не меняются из кода.
type PlanRepository interface {
	FindByID(ctx context.Context, id string) (*models.SubscriptionPlan, error)
	FindBySKU(ctx context.Context, sku string) (*models.SubscriptionPlan, error)
	FindActive(ctx context.Context) ([]models.SubscriptionPlan, error)
}

type PlanRepositoryImpl struct {
	db *gorm.DB
}

func NewPlanRepository(db *gorm.DB) PlanRepository {
	return &PlanRepositoryImpl{db: db}
}

func (r *PlanRepositoryImpl) FindByID(ctx context.Context, id string) (*models.SubscriptionPlan, error) {
	var plan models.SubscriptionPlan
	err := r.db.WithContext(ctx).First(&plan, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPlanNotFound
		}
		return nil, err
	}
	return &plan, nil
}

func (r *PlanRepositoryImpl) FindBySKU(ctx context.Context, sku string) (*models.SubscriptionPlan, error) {
	var plan models.SubscriptionPlan
	err := r.db.WithContext(ctx).Where("sku = ?", sku).First(&plan).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPlanNotFound
		}
		return nil, err
	}
	return &plan, nil
}

func (r *PlanRepositoryImpl) FindActive(ctx context.Context) ([]models.SubscriptionPlan, error) {
	var plans []models.SubscriptionPlan
	err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("price ASC").
		Find(&plans).Error
	return plans, err
}
