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

// CertificateAuthorityModel はgorm用のCAメタデータモデル定義。
type CertificateAuthorityModel struct {
	ID            string    `gorm:"type:char(36);primaryKey"`
	Name          string    `gorm:"type:varchar(128);not null"`
	Organization  string    `gorm:"type:varchar(128);not null"`
	Country       string    `gorm:"type:char(2);not null"`
	PublicKey     string    `gorm:"type:text;not null"`
	Fingerprint   string    `gorm:"type:char(64);not null"`
	KeySize       int       `gorm:"not null"`
	CustodyKeyID  string    `gorm:"type:varchar(128);not null"`
	Active        bool      `gorm:"not null;default:true;index:idx_ca_active"`
	EstablishedAt time.Time `gorm:"not null;autoCreateTime"`
}

// TableName はテーブル名を返す。
func (CertificateAuthorityModel) TableName() string {
	return "certificate_authorities"
}

// BeforeCreate はレコード作成前にUUIDを生成する。
func (m *CertificateAuthorityModel) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	return nil
}

func (m *CertificateAuthorityModel) toDomain() *domain.CertificateAuthority {
	return &domain.CertificateAuthority{
		ID:            m.ID,
		Name:          m.Name,
		Organization:  m.Organization,
		Country:       m.Country,
		PublicKey:     m.PublicKey,
		Fingerprint:   m.Fingerprint,
		KeySize:       m.KeySize,
		CustodyKeyID:  m.CustodyKeyID,
		Active:        m.Active,
		EstablishedAt: m.EstablishedAt,
	}
}

// CARepository はCAメタデータのデータアクセスを提供する。
// グローバルなシングルトンアクセサは使わず、必要とする側に注入する。
type CARepository struct {
	db *gorm.DB
}

// NewCARepository は新しいCARepositoryを生成する。
func NewCARepository(db *gorm.DB) *CARepository {
	return &CARepository{db: db}
}

// FindActive は現在activeなCA行を取得する。存在しない場合はnilを返す。
func (r *CARepository) FindActive(ctx context.Context) (*domain.CertificateAuthority, error) {
	var model CertificateAuthorityModel
	err := r.db.WithContext(ctx).Where("active = ?", true).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		slog.ErrorContext(ctx, "failed to find active CA",
			"operation", "find_active_ca",
			"error", err,
		)
		return nil, err
	}
	return model.toDomain(), nil
}

// DeactivateAll は全てのCA行を非activeにする。新しいCA行の作成前に呼ぶ。
func (r *CARepository) DeactivateAll(ctx context.Context) error {
	err := r.db.WithContext(ctx).
		Model(&CertificateAuthorityModel{}).
		Where("active = ?", true).
		Update("active", false).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to deactivate CAs",
			"operation", "deactivate_all_cas",
			"error", err,
		)
		return err
	}
	return nil
}

// Create は新しいCA行をactiveとして保存する。
func (r *CARepository) Create(ctx context.Context, ca *domain.CertificateAuthority) error {
	model := &CertificateAuthorityModel{
		ID:           ca.ID,
		Name:         ca.Name,
		Organization: ca.Organization,
		Country:      ca.Country,
		PublicKey:    ca.PublicKey,
		Fingerprint:  ca.Fingerprint,
		KeySize:      ca.KeySize,
		CustodyKeyID: ca.CustodyKeyID,
		Active:       true,
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		slog.ErrorContext(ctx, "failed to create CA",
			"operation", "create_ca",
			"name", ca.Name,
			"error", err,
		)
		return err
	}
	ca.ID = model.ID
	ca.Active = true
	ca.EstablishedAt = model.EstablishedAt
	return nil
}
