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

// AccountModel はgorm用の口座モデル定義。
type AccountModel struct {
	ID              string     `gorm:"type:char(36);primaryKey"`
	OwnerName       string     `gorm:"type:varchar(128);not null"`
	AccountNumber   string     `gorm:"type:varchar(32);not null;uniqueIndex:uk_account_number"`
	PublicKey       string     `gorm:"type:text"`
	BalanceCents    int64      `gorm:"not null;default:0"`
	Active          bool       `gorm:"not null;default:true"`
	KeyVersion      uint       `gorm:"not null;default:1"`
	KeyRotatedAt    *time.Time
	TransferPINHash string     `gorm:"type:varchar(128)"`
	CreatedAt       time.Time  `gorm:"not null;autoCreateTime"`
	UpdatedAt       time.Time  `gorm:"not null;autoUpdateTime"`
}

// TableName はテーブル名を返す。
func (AccountModel) TableName() string {
	return "accounts"
}

// BeforeCreate はレコード作成前にUUIDを生成する。
func (a *AccountModel) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	return nil
}

func (a *AccountModel) toDomain() *domain.Account {
	return &domain.Account{
		ID:              a.ID,
		OwnerName:       a.OwnerName,
		AccountNumber:   a.AccountNumber,
		PublicKey:       a.PublicKey,
		BalanceCents:    a.BalanceCents,
		Active:          a.Active,
		KeyVersion:      a.KeyVersion,
		KeyRotatedAt:    a.KeyRotatedAt,
		TransferPINHash: a.TransferPINHash,
		CreatedAt:       a.CreatedAt,
		UpdatedAt:       a.UpdatedAt,
	}
}

// AccountRepository は口座のデータアクセスを提供する。
type AccountRepository struct {
	db *gorm.DB
}

// NewAccountRepository は新しいAccountRepositoryを生成する。
func NewAccountRepository(db *gorm.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// Create は新しい口座を保存する。
func (r *AccountRepository) Create(ctx context.Context, account *domain.Account) error {
	model := &AccountModel{
		ID:              account.ID,
		OwnerName:       account.OwnerName,
		AccountNumber:   account.AccountNumber,
		PublicKey:       account.PublicKey,
		BalanceCents:    account.BalanceCents,
		Active:          account.Active,
		KeyVersion:      account.KeyVersion,
		KeyRotatedAt:    account.KeyRotatedAt,
		TransferPINHash: account.TransferPINHash,
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		slog.ErrorContext(ctx, "failed to create account",
			"operation", "create_account",
			"account_number", account.AccountNumber,
			"error", err,
		)
		return err
	}
	account.ID = model.ID
	account.CreatedAt = model.CreatedAt
	account.UpdatedAt = model.UpdatedAt
	return nil
}

// FindByID は口座をIDで取得する。存在しない場合はnilを返す。
func (r *AccountRepository) FindByID(ctx context.Context, id string) (*domain.Account, error) {
	var model AccountModel
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		slog.ErrorContext(ctx, "failed to find account",
			"operation", "find_account_by_id",
			"id", id,
			"error", err,
		)
		return nil, err
	}
	return model.toDomain(), nil
}

// FindByAccountNumber は口座を口座番号で取得する。存在しない場合はnilを返す。
func (r *AccountRepository) FindByAccountNumber(ctx context.Context, accountNumber string) (*domain.Account, error) {
	var model AccountModel
	err := r.db.WithContext(ctx).Where("account_number = ?", accountNumber).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		slog.ErrorContext(ctx, "failed to find account",
			"operation", "find_account_by_number",
			"account_number", accountNumber,
			"error", err,
		)
		return nil, err
	}
	return model.toDomain(), nil
}

// FindByIDForUpdate は口座を行ロック付きで取得する。トランザクション内でのみ使用する。
func (r *AccountRepository) FindByIDForUpdate(ctx context.Context, id string) (*domain.Account, error) {
	var model AccountModel
	err := forUpdate(r.db.WithContext(ctx)).Where("id = ?", id).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		slog.ErrorContext(ctx, "failed to lock account",
			"operation", "find_account_for_update",
			"id", id,
			"error", err,
		)
		return nil, err
	}
	return model.toDomain(), nil
}

// UpdateBalance は口座残高を更新する。
func (r *AccountRepository) UpdateBalance(ctx context.Context, id string, balanceCents int64) error {
	err := r.db.WithContext(ctx).
		Model(&AccountModel{}).
		Where("id = ?", id).
		Update("balance_cents", balanceCents).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to update balance",
			"operation", "update_balance",
			"id", id,
			"error", err,
		)
		return err
	}
	return nil
}

// UpdatePublicKey は鍵ローテーション時に公開鍵・鍵バージョンを更新する。
func (r *AccountRepository) UpdatePublicKey(ctx context.Context, id, publicKeyPEM string, keyVersion uint, rotatedAt time.Time) error {
	err := r.db.WithContext(ctx).
		Model(&AccountModel{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"public_key":     publicKeyPEM,
			"key_version":    keyVersion,
			"key_rotated_at": rotatedAt,
		}).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to update public key",
			"operation", "update_public_key",
			"id", id,
			"error", err,
		)
		return err
	}
	return nil
}
