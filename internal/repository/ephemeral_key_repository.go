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

// EphemeralKeyModel はgorm用の短命鍵モデル定義。
type EphemeralKeyModel struct {
	ID        string    `gorm:"type:char(36);primaryKey"`
	SessionID string    `gorm:"type:char(64);not null;uniqueIndex:uk_ephemeral_session"`
	AccountID string    `gorm:"type:char(36);not null;index:idx_ephemeral_account"`
	PublicKey string    `gorm:"type:text;not null"`
	ExpiresAt time.Time `gorm:"not null"`
	Active    bool      `gorm:"not null;default:true;index:idx_ephemeral_active"`
	CreatedAt time.Time `gorm:"not null;autoCreateTime"`
}

// TableName はテーブル名を返す。
func (EphemeralKeyModel) TableName() string {
	return "ephemeral_keys"
}

// BeforeCreate はレコード作成前にUUIDを生成する。
func (m *EphemeralKeyModel) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	return nil
}

func (m *EphemeralKeyModel) toDomain() *domain.EphemeralKey {
	return &domain.EphemeralKey{
		ID:        m.ID,
		SessionID: m.SessionID,
		AccountID: m.AccountID,
		PublicKey: m.PublicKey,
		ExpiresAt: m.ExpiresAt,
		Active:    m.Active,
		CreatedAt: m.CreatedAt,
	}
}

// EphemeralKeyRepository は短命鍵のデータアクセスを提供する。
type EphemeralKeyRepository struct {
	db *gorm.DB
}

// NewEphemeralKeyRepository は新しいEphemeralKeyRepositoryを生成する。
func NewEphemeralKeyRepository(db *gorm.DB) *EphemeralKeyRepository {
	return &EphemeralKeyRepository{db: db}
}

// Create は新しい短命鍵をactiveとして保存する。
func (r *EphemeralKeyRepository) Create(ctx context.Context, key *domain.EphemeralKey) error {
	model := &EphemeralKeyModel{
		ID:        key.ID,
		SessionID: key.SessionID,
		AccountID: key.AccountID,
		PublicKey: key.PublicKey,
		ExpiresAt: key.ExpiresAt,
		Active:    true,
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		slog.ErrorContext(ctx, "failed to create ephemeral key",
			"operation", "create_ephemeral_key",
			"account_id", key.AccountID,
			"error", err,
		)
		return err
	}
	key.ID = model.ID
	key.Active = true
	key.CreatedAt = model.CreatedAt
	return nil
}

// FindBySessionID はセッションIDで短命鍵を取得する。存在しない場合はnilを返す。
func (r *EphemeralKeyRepository) FindBySessionID(ctx context.Context, sessionID string) (*domain.EphemeralKey, error) {
	var model EphemeralKeyModel
	err := r.db.WithContext(ctx).Where("session_id = ?", sessionID).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		slog.ErrorContext(ctx, "failed to find ephemeral key",
			"operation", "find_ephemeral_key",
			"session_id", sessionID,
			"error", err,
		)
		return nil, err
	}
	return model.toDomain(), nil
}

// DeactivateBySessionID は短命鍵を無効化する。行が存在したかどうかを返す（冪等）。
func (r *EphemeralKeyRepository) DeactivateBySessionID(ctx context.Context, sessionID string) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&EphemeralKeyModel{}).
		Where("session_id = ? AND active = ?", sessionID, true).
		Update("active", false)
	if result.Error != nil {
		slog.ErrorContext(ctx, "failed to deactivate ephemeral key",
			"operation", "deactivate_ephemeral_key",
			"session_id", sessionID,
			"error", result.Error,
		)
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// DeactivateByAccountID は口座のactiveな短命鍵を全て無効化する。
// 口座ごとにactiveな鍵は高々1件という不変条件を登録時に維持するために使う。
func (r *EphemeralKeyRepository) DeactivateByAccountID(ctx context.Context, accountID string) error {
	err := r.db.WithContext(ctx).
		Model(&EphemeralKeyModel{}).
		Where("account_id = ? AND active = ?", accountID, true).
		Update("active", false).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to deactivate ephemeral keys for account",
			"operation", "deactivate_ephemeral_keys_by_account",
			"account_id", accountID,
			"error", err,
		)
		return err
	}
	return nil
}

// SweepExpired は期限切れのactiveな短命鍵を一括で無効化し、件数を返す。
func (r *EphemeralKeyRepository) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&EphemeralKeyModel{}).
		Where("active = ? AND expires_at < ?", true, now).
		Update("active", false)
	if result.Error != nil {
		slog.ErrorContext(ctx, "failed to sweep expired ephemeral keys",
			"operation", "sweep_expired_ephemeral_keys",
			"error", result.Error,
		)
		return 0, result.Error
	}
	return result.RowsAffected, nil
}
