// Package custody はCA秘密鍵の保管バックエンドを提供する。
// バックエンドは起動時に一度だけ選択され、呼び出しごとのディスパッチは行わない。
package custody

import (
	"context"
	"errors"
)

var (
	// ErrKeyNotFound は指定された鍵IDが保管されていない場合のエラー。
	ErrKeyNotFound = errors.New("custody key not found")

	// ErrStoreUnsupported は鍵素材の持ち込みに対応しないバックエンドのエラー。
	ErrStoreUnsupported = errors.New("backend does not support storing key material")

	// ErrRetrieveUnsupported は鍵素材を外部に出さないバックエンドのエラー。
	// HSM系バックエンドでは設計上retrieveは常に失敗する。
	ErrRetrieveUnsupported = errors.New("backend does not expose key material")

	// ErrInvalidKeyID は鍵IDに使用できない文字が含まれる場合のエラー。
	ErrInvalidKeyID = errors.New("invalid custody key id")
)

// Store は鍵保管バックエンドのインターフェース。
// 呼び出し側はSignWithoutExposureを優先し、Retrieveは
// ファイルバックエンドの弱いモデルに限って使用する。
type Store interface {
	// Store は秘密鍵素材を保管する。
	Store(ctx context.Context, keyID string, material []byte) error
	// Retrieve は秘密鍵素材を取り出す。サインオンリーのバックエンドでは
	// ErrRetrieveUnsupportedを返す。
	Retrieve(ctx context.Context, keyID string) ([]byte, error)
	// SignWithoutExposure は鍵素材を外部に出さずにデータへ署名する。
	SignWithoutExposure(ctx context.Context, keyID string, data []byte) ([]byte, error)
	// Exists は鍵IDが保管されているかを返す。
	Exists(ctx context.Context, keyID string) (bool, error)
	// ListKeyIDs は保管中の鍵ID一覧を返す。
	ListKeyIDs(ctx context.Context) ([]string, error)
}

// validKeyID は鍵IDの文字集合を検査する。パス区切りなどは受け付けない。
func validKeyID(keyID string) bool {
	if keyID == "" || len(keyID) > 128 {
		return false
	}
	for _, r := range keyID {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '-' || r == '_' || r == '.':
		default:
			return false
		}
	}
	return true
}
