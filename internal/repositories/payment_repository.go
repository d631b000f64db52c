package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"pnptv_backend/internal/models"

	"gorm.io/gorm"
)

var (
	ErrPaymentNotFound = errors.New("payment not found")
)

type PaymentRepository interface {
	Create(ctx context.Context, payment *models.Payment) error
	FindByID(ctx context.Context, id string) (*models.Payment, error)
	FindByTransactionID(ctx context.Context, provider models.PaymentProvider, txnID string) (*models.Payment, error)
	FindByReference(ctx context.Context, reference string) (*models.Payment, error)
	FindByUser(ctx context.Context, userID string) ([]models.Payment, error)

	// SetCheckoutInfo проставляет invoice-код, ссылку на оплату и
	// стартовые metadata сразу после создания платежа.
	SetCheckoutInfo(ctx context.Context, id, reference, paymentURL string, metadata map[string]interface{}) error

	// Условные переходы. Все пишущие операции ниже выполняются одним
	// UPDATE с условием на текущий статус: выигрывает ровно один вызов.
	CompleteIfPending(ctx context.Context, id, txnID, gatewayRef string) (bool, error)
	MarkRejected(ctx context.Context, id, reason string) (bool, error)
	MarkAwaiting3DS(ctx context.Context, id, txnID, gatewayRef string) (bool, error)
	MarkProcessing(ctx context.Context, id string) (bool, error)
	MarkAbandonedIfStale(ctx context.Context, id string, olderThan time.Time) (bool, error)

	MergeMetadata(ctx context.Context, id string, patch map[string]interface{}) error
	FindStale(ctx context.Context, olderThan time.Time, statuses []models.PaymentStatus) ([]models.Payment, error)
}

type PaymentRepositoryImpl struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) PaymentRepository {
	return &PaymentRepositoryImpl{db: db}
}

func (r *PaymentRepositoryImpl) Create(ctx context.Context, payment *models.Payment) error {
	return r.db.WithContext(ctx).Create(payment).Error
}

func (r *PaymentRepositoryImpl) FindByID(ctx context.Context, id string) (*models.Payment, error) {
	var payment models.Payment
	err := r.db.WithContext(ctx).First(&payment, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	return &payment, nil
}

func (r *PaymentRepositoryImpl) FindByTransactionID(ctx context.Context, provider models.PaymentProvider, txnID string) (*models.Payment, error) {
	var payment models.Payment
	err := r.db.WithContext(ctx).
		Where("provider = ? AND transaction_id = ?", provider, txnID).
		First(&payment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	return &payment, nil
}

func (r *PaymentRepositoryImpl) FindByReference(ctx context.Context, reference string) (*models.Payment, error) {
	var payment models.Payment
	err := r.db.WithContext(ctx).Where("reference = ?", reference).First(&payment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	return &payment, nil
}

func (r *PaymentRepositoryImpl) FindByUser(ctx context.Context, userID string) ([]models.Payment, error) {
	var payments []models.Payment
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&payments).Error
	return payments, err
}

func (r *PaymentRepositoryImpl) SetCheckoutInfo(ctx context.Context, id, reference, paymentURL string, metadata map[string]interface{}) error {
	patch, err := json.Marshal(metadata)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Model(&models.Payment{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"reference":   reference,
			"payment_url": paymentURL,
			"metadata":    gorm.Expr("COALESCE(metadata, '{}'::jsonb) || ?::jsonb", string(patch)),
			"updated_at":  time.Now(),
		}).Error
}

// CompleteIfPending переводит платеж в completed, только если он еще
// не терминальный. RowsAffected == 1 означает, что этот вызов выиграл
// переход и именно он обязан выполнить активацию подписки.
func (r *PaymentRepositoryImpl) CompleteIfPending(ctx context.Context, id, txnID, gatewayRef string) (bool, error) {
	now := time.Now()
	patch, _ := json.Marshal(map[string]string{"ref_payco": gatewayRef})
	result := r.db.WithContext(ctx).Model(&models.Payment{}).
		Where("id = ? AND status IN ?", id, models.NonTerminalStatuses()).
		Updates(map[string]interface{}{
			"status":         models.PaymentStatusCompleted,
			"transaction_id": txnID,
			"metadata":       gorm.Expr("COALESCE(metadata, '{}'::jsonb) || ?::jsonb", string(patch)),
			"completed_at":   &now,
			"updated_at":     now,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *PaymentRepositoryImpl) MarkRejected(ctx context.Context, id, reason string) (bool, error) {
	now := time.Now()
	patch, _ := json.Marshal(map[string]string{"rejection_reason": reason})
	result := r.db.WithContext(ctx).Model(&models.Payment{}).
		Where("id = ? AND status IN ?", id, models.NonTerminalStatuses()).
		Updates(map[string]interface{}{
			"status":     models.PaymentStatusRejected,
			"failed_at":  &now,
			"updated_at": now,
			"metadata":   gorm.Expr("COALESCE(metadata, '{}'::jsonb) || ?::jsonb", string(patch)),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *PaymentRepositoryImpl) MarkAwaiting3DS(ctx context.Context, id, txnID, gatewayRef string) (bool, error) {
	patch, _ := json.Marshal(map[string]string{"ref_payco": gatewayRef})
	result := r.db.WithContext(ctx).Model(&models.Payment{}).
		Where("id = ? AND status IN ?", id,
			[]models.PaymentStatus{models.PaymentStatusPending, models.PaymentStatusProcessing}).
		Updates(map[string]interface{}{
			"status":         models.PaymentStatusAwaiting3DS,
			"transaction_id": txnID,
			"metadata":       gorm.Expr("COALESCE(metadata, '{}'::jsonb) || ?::jsonb", string(patch)),
			"updated_at":     time.Now(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *PaymentRepositoryImpl) MarkProcessing(ctx context.Context, id string) (bool, error) {
	result := r.db.WithContext(ctx).Model(&models.Payment{}).
		Where("id = ? AND status = ?", id, models.PaymentStatusPending).
		Updates(map[string]interface{}{
			"status":     models.PaymentStatusProcessing,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// MarkAbandonedIfStale ретирует зависший платеж. Условие на created_at
// защищает от гонки с свежим вебхуком: терминальный платеж не трогаем.
func (r *PaymentRepositoryImpl) MarkAbandonedIfStale(ctx context.Context, id string, olderThan time.Time) (bool, error) {
	result := r.db.WithContext(ctx).Model(&models.Payment{}).
		Where("id = ? AND status IN ? AND created_at < ?", id, models.NonTerminalStatuses(), olderThan).
		Updates(map[string]interface{}{
			"status":     models.PaymentStatusAbandoned,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// MergeMetadata дописывает пары в metadata, не затирая остальные ключи.
func (r *PaymentRepositoryImpl) MergeMetadata(ctx context.Context, id string, patch map[string]interface{}) error {
	raw, err := json.Marshal(patch)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Model(&models.Payment{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"metadata":   gorm.Expr("COALESCE(metadata, '{}'::jsonb) || ?::jsonb", string(raw)),
			"updated_at": time.Now(),
		}).Error
}

func (r *PaymentRepositoryImpl) FindStale(ctx context.Context, olderThan time.Time, statuses []models.PaymentStatus) ([]models.Payment, error) {
	var payments []models.Payment
	err := r.db.WithContext(ctx).
		Where("status IN ? AND created_at < ?", statuses, olderThan).
		Order("created_at ASC").
		Limit(100).
		Find(&payments).Error
	return payments, err
}
