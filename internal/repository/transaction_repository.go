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

// TransactionModel はgorm用の取引モデル定義。
type TransactionModel struct {
	ID                string    `gorm:"type:char(36);primaryKey"`
	SenderAccountID   string    `gorm:"type:char(36);not null;index:idx_tx_sender"`
	ReceiverAccountID string    `gorm:"type:char(36);not null;index:idx_tx_receiver"`
	AmountCents       int64     `gorm:"not null"`
	TransactionHash   string    `gorm:"type:char(64);not null"`
	DigitalSignature  string    `gorm:"type:text;not null"`
	SignatureScheme   string    `gorm:"type:varchar(16);not null;default:'canonical'"`
	Status            string    `gorm:"type:varchar(16);not null;default:'pending';index:idx_tx_status"`
	RejectionReason   string    `gorm:"type:varchar(255)"`
	CreatedAt         time.Time `gorm:"not null;autoCreateTime"`
	UpdatedAt         time.Time `gorm:"not null;autoUpdateTime"`
}

// TableName はテーブル名を返す。
func (TransactionModel) TableName() string {
	return "transactions"
}

// BeforeCreate はレコード作成前にUUIDを生成する。
func (m *TransactionModel) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	return nil
}

func (m *TransactionModel) toDomain() *domain.Transaction {
	return &domain.Transaction{
		ID:                m.ID,
		SenderAccountID:   m.SenderAccountID,
		ReceiverAccountID: m.ReceiverAccountID,
		AmountCents:       m.AmountCents,
		TransactionHash:   m.TransactionHash,
		DigitalSignature:  m.DigitalSignature,
		SignatureScheme:   domain.SignatureScheme(m.SignatureScheme),
		Status:            domain.TransactionStatus(m.Status),
		RejectionReason:   m.RejectionReason,
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
	}
}

// TransactionRepository は取引のデータアクセスを提供する。
type TransactionRepository struct {
	db *gorm.DB
}

// NewTransactionRepository は新しいTransactionRepositoryを生成する。
func NewTransactionRepository(db *gorm.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// Create は新しい取引をpendingで保存する。
func (r *TransactionRepository) Create(ctx context.Context, tx *domain.Transaction) error {
	model := &TransactionModel{
		ID:                tx.ID,
		SenderAccountID:   tx.SenderAccountID,
		ReceiverAccountID: tx.ReceiverAccountID,
		AmountCents:       tx.AmountCents,
		TransactionHash:   tx.TransactionHash,
		DigitalSignature:  tx.DigitalSignature,
		SignatureScheme:   string(tx.SignatureScheme),
		Status:            string(domain.TransactionStatusPending),
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		slog.ErrorContext(ctx, "failed to create transaction",
			"operation", "create_transaction",
			"sender_account_id", tx.SenderAccountID,
			"error", err,
		)
		return err
	}
	tx.ID = model.ID
	tx.Status = domain.TransactionStatusPending
	tx.CreatedAt = model.CreatedAt
	tx.UpdatedAt = model.UpdatedAt
	return nil
}

// FindByID は取引をIDで取得する。存在しない場合はnilを返す。
func (r *TransactionRepository) FindByID(ctx context.Context, id string) (*domain.Transaction, error) {
	var model TransactionModel
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		slog.ErrorContext(ctx, "failed to find transaction",
			"operation", "find_transaction",
			"id", id,
			"error", err,
		)
		return nil, err
	}
	return model.toDomain(), nil
}

// FindByIDForUpdate は取引を行ロック付きで取得する。トランザクション内でのみ使用する。
func (r *TransactionRepository) FindByIDForUpdate(ctx context.Context, id string) (*domain.Transaction, error) {
	var model TransactionModel
	err := forUpdate(r.db.WithContext(ctx)).Where("id = ?", id).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		slog.ErrorContext(ctx, "failed to lock transaction",
			"operation", "find_transaction_for_update",
			"id", id,
			"error", err,
		)
		return nil, err
	}
	return model.toDomain(), nil
}

// UpdateStatus は取引を終端状態に遷移させる。
// pending以外からの遷移を防ぐため、現ステータス条件付きで更新する。
func (r *TransactionRepository) UpdateStatus(ctx context.Context, id string, status domain.TransactionStatus, reason string) error {
	err := r.db.WithContext(ctx).
		Model(&TransactionModel{}).
		Where("id = ? AND status = ?", id, string(domain.TransactionStatusPending)).
		Updates(map[string]interface{}{
			"status":           string(status),
			"rejection_reason": reason,
		}).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to update transaction status",
			"operation", "update_transaction_status",
			"id", id,
			"status", status,
			"error", err,
		)
		return err
	}
	return nil
}
