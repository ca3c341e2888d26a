package custody

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
)

const (
	saltSize  = 16
	nonceSize = 12
)

// argon2idのパラメータ。暗号化ブロブのフォーマットの一部であり、
// 変更には既存ブロブの再暗号化が必要。
const (
	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
	argonKeyLen  = 32
)

// Cipher は秘密鍵素材の明示的な暗号化・復号を提供する。
// 読み出し時に暗黙に復号するのではなく、保管境界で意図的に呼び出すことで
// 機密素材の露出がコールグラフ上で追跡できるようにする。
type Cipher struct {
	masterSecret []byte
}

// NewCipher はアプリケーション全体のマスターシークレットからCipherを生成する。
func NewCipher(masterSecret string) (*Cipher, error) {
	if masterSecret == "" {
		return nil, errors.New("custody master secret is required")
	}
	return &Cipher{masterSecret: []byte(masterSecret)}, nil
}

// Encrypt は素材をAES-256-GCMで暗号化し、salt || nonce || ciphertext の
// レイアウトのブロブを返す。鍵はブロブごとのsaltとargon2idで導出する。
func (c *Cipher) Encrypt(material []byte) ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("generating salt: %w", err)
	}

	gcm, err := c.aead(salt)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}

	blob := make([]byte, 0, saltSize+nonceSize+len(material)+gcm.Overhead())
	blob = append(blob, salt...)
	blob = append(blob, nonce...)
	blob = gcm.Seal(blob, nonce, material, nil)
	return blob, nil
}

// Decrypt はEncryptが生成したブロブを復号する。
func (c *Cipher) Decrypt(blob []byte) ([]byte, error) {
	if len(blob) < saltSize+nonceSize {
		return nil, errors.New("key blob too short")
	}
	salt := blob[:saltSize]
	nonce := blob[saltSize : saltSize+nonceSize]
	ciphertext := blob[saltSize+nonceSize:]

	gcm, err := c.aead(salt)
	if err != nil {
		return nil, err
	}

	material, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("decrypting key blob: %w", err)
	}
	return material, nil
}

func (c *Cipher) aead(salt []byte) (cipher.AEAD, error) {
	key := argon2.IDKey(c.masterSecret, salt, argonTime, argonMemory, argonThreads, argonKeyLen)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating GCM: %w", err)
	}
	return gcm, nil
}
