package domain

import "errors"

var (
	// ErrAccountNotFound は指定された口座が存在しない場合のエラー。
	ErrAccountNotFound = errors.New("account not found")

	// ErrAccountInactive は指定された口座が無効化されている場合のエラー。
	ErrAccountInactive = errors.New("account is inactive")

	// ErrSelfTransfer は送金元と送金先が同一口座の場合のエラー。
	ErrSelfTransfer = errors.New("sender and receiver must differ")

	// ErrInvalidAmount は金額が正でない場合のエラー。
	ErrInvalidAmount = errors.New("amount must be positive")

	// ErrAmountOutOfRange はセント換算が9桁を超える場合のエラー。
	// 正規化フォーマットの固定幅を超えるため取引として受け付けない。
	ErrAmountOutOfRange = errors.New("amount exceeds canonical encoding range")

	// ErrInsufficientFunds は送金元残高が不足している場合のエラー。
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrInvalidPIN は送金認可シークレットが一致しない場合のエラー。
	ErrInvalidPIN = errors.New("invalid transfer PIN")

	// ErrMissingPublicKey は口座に公開鍵が登録されていない場合のエラー。
	ErrMissingPublicKey = errors.New("account has no public key")

	// ErrNoCustodialKey はサーバー側署名に使う預託秘密鍵が存在しない場合のエラー。
	ErrNoCustodialKey = errors.New("account has no custodial private key")

	// ErrSignatureMismatch はクライアント提示の署名が検証に失敗した場合のエラー。
	ErrSignatureMismatch = errors.New("client signature does not verify")

	// ErrHashMismatch はクライアント提示のハッシュが再計算と一致しない場合のエラー。
	ErrHashMismatch = errors.New("client hash does not match")

	// ErrTransactionNotFound は指定された取引が存在しない場合のエラー。
	ErrTransactionNotFound = errors.New("transaction not found")

	// ErrCertificateNotFound は指定された証明書が存在しない場合のエラー。
	ErrCertificateNotFound = errors.New("certificate not found")

	// ErrCAAlreadyInitialized はCAが初期化済みの場合のエラー。
	ErrCAAlreadyInitialized = errors.New("certificate authority already initialized")

	// ErrCANotInitialized はCAが未初期化の場合のエラー。
	ErrCANotInitialized = errors.New("certificate authority not initialized")

	// ErrRotationNotDue はローテーション期限前でforce指定もない場合のエラー。
	ErrRotationNotDue = errors.New("key rotation not due")

	// ErrInvalidLifetime は短命鍵の有効期間が範囲外の場合のエラー。
	ErrInvalidLifetime = errors.New("ephemeral key lifetime out of range")

	// ErrSessionNotFound は指定されたセッションIDの鍵が存在しない場合のエラー。
	ErrSessionNotFound = errors.New("ephemeral session not found")

	// ErrMigrationFailed はマイグレーション実行時のエラー。
	ErrMigrationFailed = errors.New("migration failed")

	// ErrInvalidMigrationFile はマイグレーションファイルのフォーマットが不正な場合のエラー。
	ErrInvalidMigrationFile = errors.New("invalid migration file")
)
