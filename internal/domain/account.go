// Package domain はドメインモデルとビジネスルールを定義する。
package domain

import "time"

// Account は口座エンティティを表す。残高は整数セントで保持する。
type Account struct {
	ID              string
	OwnerName       string
	AccountNumber   string
	PublicKey       string // PEM形式のRSA公開鍵
	BalanceCents    int64
	Active          bool
	KeyVersion      uint
	KeyRotatedAt    *time.Time
	TransferPINHash string // bcryptハッシュ済みの送金認可シークレット
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// PrivateKeyRecord は口座の秘密鍵レコードを表す。
// 口座ごとに現行レコードは常に1件。廃止済みレコードは監査用に
// 猶予期間の間だけ保持され、署名検証には使用しない。
type PrivateKeyRecord struct {
	ID                string
	AccountID         string
	EncryptedKey      []byte
	DeprecatedAt      *time.Time
	DeprecationReason string
	CreatedAt         time.Time
}

// Deprecated は廃止済みレコードかどうかを返す。
func (r *PrivateKeyRecord) Deprecated() bool {
	return r.DeprecatedAt != nil
}
