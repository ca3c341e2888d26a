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

// CertificateModel はgorm用の証明書モデル定義。
type CertificateModel struct {
	ID            string    `gorm:"type:char(36);primaryKey"`
	TransactionID string    `gorm:"type:char(36);not null;uniqueIndex:uk_cert_transaction"`
	SerialNumber  string    `gorm:"type:char(32);not null;uniqueIndex:uk_cert_serial"`
	IssuerDN      string    `gorm:"type:varchar(255);not null"`
	SubjectDN     string    `gorm:"type:varchar(255);not null"`
	CASignature   string    `gorm:"type:text;not null"`
	Envelope      string    `gorm:"type:text;not null"`
	IssuedAt      time.Time `gorm:"not null"`
	ExpiresAt     time.Time `gorm:"not null"`
}

// TableName はテーブル名を返す。
func (CertificateModel) TableName() string {
	return "certificates"
}

// BeforeCreate はレコード作成前にUUIDを生成する。
func (m *CertificateModel) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	return nil
}

func (m *CertificateModel) toDomain() *domain.Certificate {
	return &domain.Certificate{
		ID:            m.ID,
		TransactionID: m.TransactionID,
		SerialNumber:  m.SerialNumber,
		IssuerDN:      m.IssuerDN,
		SubjectDN:     m.SubjectDN,
		CASignature:   m.CASignature,
		Envelope:      m.Envelope,
		IssuedAt:      m.IssuedAt,
		ExpiresAt:     m.ExpiresAt,
	}
}

// CertificateRepository は証明書のデータアクセスを提供する。
type CertificateRepository struct {
	db *gorm.DB
}

// NewCertificateRepository は新しいCertificateRepositoryを生成する。
func NewCertificateRepository(db *gorm.DB) *CertificateRepository {
	return &CertificateRepository{db: db}
}

// Create は新しい証明書を保存する。発行後の証明書は変更されない。
func (r *CertificateRepository) Create(ctx context.Context, cert *domain.Certificate) error {
	model := &CertificateModel{
		ID:            cert.ID,
		TransactionID: cert.TransactionID,
		SerialNumber:  cert.SerialNumber,
		IssuerDN:      cert.IssuerDN,
		SubjectDN:     cert.SubjectDN,
		CASignature:   cert.CASignature,
		Envelope:      cert.Envelope,
		IssuedAt:      cert.IssuedAt,
		ExpiresAt:     cert.ExpiresAt,
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		slog.ErrorContext(ctx, "failed to create certificate",
			"operation", "create_certificate",
			"transaction_id", cert.TransactionID,
			"error", err,
		)
		return err
	}
	cert.ID = model.ID
	return nil
}

// FindByTransactionID は取引に対応する証明書を取得する。存在しない場合はnilを返す。
func (r *CertificateRepository) FindByTransactionID(ctx context.Context, transactionID string) (*domain.Certificate, error) {
	var model CertificateModel
	err := r.db.WithContext(ctx).Where("transaction_id = ?", transactionID).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		slog.ErrorContext(ctx, "failed to find certificate",
			"operation", "find_certificate",
			"transaction_id", transactionID,
			"error", err,
		)
		return nil, err
	}
	return model.toDomain(), nil
}
