package custody

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"transaction-certification-service/internal/cryptoutil"
)

const fileSuffix = ".key"

// FileStore は暗号化ファイルによる鍵保管バックエンド。デフォルトのバックエンド。
// 鍵素材はCipherでAES-256-GCM暗号化され、owner-only権限のファイルに書き込まれる。
type FileStore struct {
	dir    string
	cipher *Cipher
	log    *slog.Logger
}

// NewFileStore は暗号化ファイルバックエンドを生成する。
func NewFileStore(dir string, cipher *Cipher, log *slog.Logger) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating custody directory: %w", err)
	}
	return &FileStore{
		dir:    dir,
		cipher: cipher,
		log:    log,
	}, nil
}

// Store は鍵素材を暗号化して保管する。
// 同時ローテーションでの部分書き込み破損を避けるため、一時ファイルへ
// 書き込んでからrenameで置き換える。
func (s *FileStore) Store(ctx context.Context, keyID string, material []byte) error {
	if !validKeyID(keyID) {
		return ErrInvalidKeyID
	}

	blob, err := s.cipher.Encrypt(material)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.dir, keyID+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("setting permissions: %w", err)
	}
	if _, err := tmp.Write(blob); err != nil {
		tmp.Close()
		return fmt.Errorf("writing key blob: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}

	if err := os.Rename(tmpName, s.path(keyID)); err != nil {
		return fmt.Errorf("renaming key blob: %w", err)
	}

	s.log.InfoContext(ctx, "stored custody key",
		"backend", "file",
		"key_id", keyID,
	)
	return nil
}

// Retrieve は鍵素材を復号して返す。
// ファイルバックエンドの必然的に弱いモデルのためだけに存在する。
func (s *FileStore) Retrieve(ctx context.Context, keyID string) ([]byte, error) {
	if !validKeyID(keyID) {
		return nil, ErrInvalidKeyID
	}

	blob, err := os.ReadFile(s.path(keyID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrKeyNotFound
		}
		return nil, fmt.Errorf("reading key blob: %w", err)
	}
	return s.cipher.Decrypt(blob)
}

// SignWithoutExposure は鍵素材を内部で復号し、呼び出し側に渡さずに署名する。
func (s *FileStore) SignWithoutExposure(ctx context.Context, keyID string, data []byte) ([]byte, error) {
	material, err := s.Retrieve(ctx, keyID)
	if err != nil {
		return nil, err
	}
	sig, err := cryptoutil.Sign(data, material)
	if err != nil {
		return nil, fmt.Errorf("signing with custody key: %w", err)
	}
	return sig, nil
}

// Exists は鍵IDが保管されているかを返す。
func (s *FileStore) Exists(ctx context.Context, keyID string) (bool, error) {
	if !validKeyID(keyID) {
		return false, ErrInvalidKeyID
	}
	if _, err := os.Stat(s.path(keyID)); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// ListKeyIDs は保管中の鍵ID一覧を返す。
func (s *FileStore) ListKeyIDs(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("reading custody directory: %w", err)
	}
	var ids []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, fileSuffix) {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, fileSuffix))
	}
	return ids, nil
}

func (s *FileStore) path(keyID string) string {
	return filepath.Join(s.dir, keyID+fileSuffix)
}
