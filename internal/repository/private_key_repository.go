package repository

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"transaction-certification-service/internal/domain"
)

// PrivateKeyRecordModel はgorm用の秘密鍵レコードモデル定義。
type PrivateKeyRecordModel struct {
	ID                string     `gorm:"type:char(36);primaryKey"`
	AccountID         string     `gorm:"type:char(36);not null;index:idx_pk_account"`
	EncryptedKey      []byte     `gorm:"type:blob;not null"`
	DeprecatedAt      *time.Time
	DeprecationReason string     `gorm:"type:varchar(255)"`
	CreatedAt         time.Time  `gorm:"not null;autoCreateTime"`
}

// TableName はテーブル名を返す。
func (PrivateKeyRecordModel) TableName() string {
	return "private_key_records"
}

// BeforeCreate はレコード作成前にUUIDを生成する。
func (m *PrivateKeyRecordModel) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	return nil
}

func (m *PrivateKeyRecordModel) toDomain() *domain.PrivateKeyRecord {
	return &domain.PrivateKeyRecord{
		ID:                m.ID,
		AccountID:         m.AccountID,
		EncryptedKey:      m.EncryptedKey,
		DeprecatedAt:      m.DeprecatedAt,
		DeprecationReason: m.DeprecationReason,
		CreatedAt:         m.CreatedAt,
	}
}

// PrivateKeyRepository は秘密鍵レコードのデータアクセスを提供する。
type PrivateKeyRepository struct {
	db *gorm.DB
}

// NewPrivateKeyRepository は新しいPrivateKeyRepositoryを生成する。
func NewPrivateKeyRepository(db *gorm.DB) *PrivateKeyRepository {
	return &PrivateKeyRepository{db: db}
}

// Create は新しい秘密鍵レコードを保存する。
func (r *PrivateKeyRepository) Create(ctx context.Context, record *domain.PrivateKeyRecord) error {
	model := &PrivateKeyRecordModel{
		ID:           record.ID,
		AccountID:    record.AccountID,
		EncryptedKey: record.EncryptedKey,
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		slog.ErrorContext(ctx, "failed to create private key record",
			"operation", "create_private_key_record",
			"account_id", record.AccountID,
			"error", err,
		)
		return err
	}
	record.ID = model.ID
	record.CreatedAt = model.CreatedAt
	return nil
}

// FindCurrentByAccountID は口座の現行（未廃止）レコードを取得する。
func (r *PrivateKeyRepository) FindCurrentByAccountID(ctx context.Context, accountID string) (*domain.PrivateKeyRecord, error) {
	var model PrivateKeyRecordModel
	err := r.db.WithContext(ctx).
		Where("account_id = ? AND deprecated_at IS NULL", accountID).
		Order("created_at DESC").
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		slog.ErrorContext(ctx, "failed to find current private key record",
			"operation", "find_current_private_key",
			"account_id", accountID,
			"error", err,
		)
		return nil, err
	}
	return model.toDomain(), nil
}

// FindAllByAccountID は口座の全レコードを作成順で取得する。
func (r *PrivateKeyRepository) FindAllByAccountID(ctx context.Context, accountID string) ([]*domain.PrivateKeyRecord, error) {
	var models []PrivateKeyRecordModel
	err := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("created_at ASC").
		Find(&models).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to find private key records",
			"operation", "find_all_private_keys",
			"account_id", accountID,
			"error", err,
		)
		return nil, err
	}
	records := make([]*domain.PrivateKeyRecord, len(models))
	for i, m := range models {
		records[i] = m.toDomain()
	}
	return records, nil
}

// Deprecate はレコードを廃止済みにする。
func (r *PrivateKeyRepository) Deprecate(ctx context.Context, id string, at time.Time, reason string) error {
	err := r.db.WithContext(ctx).
		Model(&PrivateKeyRecordModel{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"deprecated_at":      at,
			"deprecation_reason": reason,
		}).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to deprecate private key record",
			"operation", "deprecate_private_key",
			"id", id,
			"error", err,
		)
		return err
	}
	return nil
}

// PurgeDeprecatedBefore は猶予期間を過ぎた廃止済みレコードを削除し、件数を返す。
func (r *PrivateKeyRepository) PurgeDeprecatedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("deprecated_at IS NOT NULL AND deprecated_at < ?", cutoff).
		Delete(&PrivateKeyRecordModel{})
	if result.Error != nil {
		slog.ErrorContext(ctx, "failed to purge deprecated private key records",
			"operation", "purge_deprecated_private_keys",
			"error", result.Error,
		)
		return 0, result.Error
	}
	return result.RowsAffected, nil
}
