// Package repository はデータアクセス層の実装を提供する。
package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repositories は全リポジトリを束ねたデータストアを表す。
// Atomicで同一トランザクションに束ねられた複製を取得できる。
type Repositories struct {
	db            *gorm.DB
	Accounts      *AccountRepository
	PrivateKeys   *PrivateKeyRepository
	Transactions  *TransactionRepository
	Certificates  *CertificateRepository
	CAs           *CARepository
	EphemeralKeys *EphemeralKeyRepository
	Logs          *TransactionLogRepository
}

// New は全リポジトリを生成する。
func New(db *gorm.DB) *Repositories {
	return &Repositories{
		db:            db,
		Accounts:      NewAccountRepository(db),
		PrivateKeys:   NewPrivateKeyRepository(db),
		Transactions:  NewTransactionRepository(db),
		Certificates:  NewCertificateRepository(db),
		CAs:           NewCARepository(db),
		EphemeralKeys: NewEphemeralKeyRepository(db),
		Logs:          NewTransactionLogRepository(db),
	}
}

// Atomic はfnをひとつのデータベーストランザクションとして実行する。
// fnがエラーを返した場合は全てロールバックされ、何も永続化されない。
func (r *Repositories) Atomic(ctx context.Context, fn func(tx *Repositories) error) error {
	return r.db.WithContext(ctx).Transaction(func(txDB *gorm.DB) error {
		return fn(New(txDB))
	})
}

// AutoMigrate は全モデルのスキーマを作成する。テストとローカル開発用。
// 本番スキーマはmigrations/のSQLで管理する。
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&AccountModel{},
		&PrivateKeyRecordModel{},
		&TransactionModel{},
		&CertificateModel{},
		&CertificateAuthorityModel{},
		&EphemeralKeyModel{},
		&TransactionLogModel{},
	)
}

// forUpdate は行ロック（SELECT ... FOR UPDATE）を付与する。
// SQLiteはFOR UPDATE構文を持たないが書き込みが単一ライターで直列化される
// ため、テストではロックなしで同じ整合性が得られる。
func forUpdate(db *gorm.DB) *gorm.DB {
	if db.Dialector.Name() == "sqlite" {
		return db
	}
	return db.Clauses(clause.Locking{Strength: "UPDATE"})
}
