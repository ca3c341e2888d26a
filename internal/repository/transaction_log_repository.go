package repository

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"transaction-certification-service/internal/domain"
)

// TransactionLogModel はgorm用の監査ログモデル定義。追記専用。
type TransactionLogModel struct {
	ID            string    `gorm:"type:char(36);primaryKey"`
	TransactionID string    `gorm:"type:char(36);not null;index:idx_txlog_transaction"`
	Action        string    `gorm:"type:varchar(32);not null"`
	Details       string    `gorm:"type:text"`
	Actor         string    `gorm:"type:varchar(128)"`
	CreatedAt     time.Time `gorm:"not null;autoCreateTime"`
}

// TableName はテーブル名を返す。
func (TransactionLogModel) TableName() string {
	return "transaction_logs"
}

// BeforeCreate はレコード作成前にUUIDを生成する。
func (m *TransactionLogModel) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	return nil
}

// TransactionLogRepository は監査ログのデータアクセスを提供する。
type TransactionLogRepository struct {
	db *gorm.DB
}

// NewTransactionLogRepository は新しいTransactionLogRepositoryを生成する。
func NewTransactionLogRepository(db *gorm.DB) *TransactionLogRepository {
	return &TransactionLogRepository{db: db}
}

// Append は監査ログエントリを追記する。
func (r *TransactionLogRepository) Append(ctx context.Context, entry *domain.TransactionLog) error {
	model := &TransactionLogModel{
		ID:            entry.ID,
		TransactionID: entry.TransactionID,
		Action:        entry.Action,
		Details:       entry.Details,
		Actor:         entry.Actor,
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		slog.ErrorContext(ctx, "failed to append transaction log",
			"operation", "append_transaction_log",
			"transaction_id", entry.TransactionID,
			"action", entry.Action,
			"error", err,
		)
		return err
	}
	entry.ID = model.ID
	entry.CreatedAt = model.CreatedAt
	return nil
}

// FindByTransactionID は取引の監査ログを時系列で取得する。
func (r *TransactionLogRepository) FindByTransactionID(ctx context.Context, transactionID string) ([]*domain.TransactionLog, error) {
	var models []TransactionLogModel
	err := r.db.WithContext(ctx).
		Where("transaction_id = ?", transactionID).
		Order("created_at ASC").
		Find(&models).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to find transaction logs",
			"operation", "find_transaction_logs",
			"transaction_id", transactionID,
			"error", err,
		)
		return nil, err
	}
	logs := make([]*domain.TransactionLog, len(models))
	for i, m := range models {
		logs[i] = &domain.TransactionLog{
			ID:            m.ID,
			TransactionID: m.TransactionID,
			Action:        m.Action,
			Details:       m.Details,
			Actor:         m.Actor,
			CreatedAt:     m.CreatedAt,
		}
	}
	return logs, nil
}
